package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/rydeworks/farepass/internal/models"
)

func cardRowValues(card models.Card) []any {
	var memberID *uuid.UUID
	if card.MemberID != uuid.Nil {
		id := card.MemberID
		memberID = &id
	}
	return []any{
		card.ID, memberID, card.Type, card.Balance, card.Hash,
		card.FirstUsedAt, card.ExpireAfterHours, card.ExpireAt,
		card.Locked, card.Main, card.CreatedAt, card.UpdatedAt,
	}
}

func testTimePtr(t time.Time) *time.Time { return &t }

func testIntPtr(n int) *int { return &n }

func TestCardService_ListByMember(t *testing.T) {
	memberID := uuid.New()
	cardA := models.Card{ID: uuid.New(), MemberID: memberID, Type: models.CardTypeRound, Balance: 5, Hash: "h1"}
	cardB := models.Card{ID: uuid.New(), MemberID: memberID, Type: models.CardTypeMoney, Balance: 1200, Hash: "h2"}

	db := &fakeDB{
		QueryFunc: func(ctx context.Context, sql string, args ...any) (Rows, error) {
			if !strings.Contains(sql, "FROM cards WHERE member_id") {
				t.Fatalf("unexpected query: %s", sql)
			}
			return &fakeRows{rows: [][]any{cardRowValues(cardA), cardRowValues(cardB)}}, nil
		},
	}

	svc := NewCardService(db)
	cards, err := svc.ListByMember(context.Background(), memberID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(cards))
	}
	if cards[0].ID != cardA.ID || cards[1].ID != cardB.ID {
		t.Fatal("unexpected card order")
	}
	if cards[0].MemberID != memberID {
		t.Fatal("expected member id to be scanned")
	}
}

func TestCardService_ListByMember_Empty(t *testing.T) {
	db := &fakeDB{
		QueryFunc: func(ctx context.Context, sql string, args ...any) (Rows, error) {
			return &fakeRows{}, nil
		},
	}

	svc := NewCardService(db)
	cards, err := svc.ListByMember(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cards == nil || len(cards) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", cards)
	}
}

func TestCardService_SetLocked(t *testing.T) {
	cardID := uuid.New()
	var gotLocked any
	db := &fakeDB{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
			if !strings.Contains(sql, "UPDATE cards SET locked") {
				t.Fatalf("unexpected sql: %s", sql)
			}
			gotLocked = args[0]
			return rowFromValues(cardRowValues(models.Card{ID: cardID, Locked: true})...)
		},
	}

	svc := NewCardService(db)
	card, err := svc.SetLocked(context.Background(), cardID, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotLocked != true {
		t.Fatalf("expected locked=true to reach the query, got %v", gotLocked)
	}
	if !card.Locked {
		t.Fatal("expected returned card to be locked")
	}
}

func TestCardService_SetLocked_NotFound(t *testing.T) {
	db := &fakeDB{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
			return fakeRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
		},
	}

	svc := NewCardService(db)
	_, err := svc.SetLocked(context.Background(), uuid.New(), false)
	if !errors.Is(err, ErrCardNotFound) {
		t.Fatalf("expected ErrCardNotFound, got %v", err)
	}
}

func TestCardService_SetMain_ReplacesPreviousMain(t *testing.T) {
	cardID := uuid.New()
	memberID := uuid.New()

	var execs []string
	committed := false
	tx := &fakeTx{
		QueryFunc: func(ctx context.Context, sql string, args ...any) (Rows, error) {
			if !strings.Contains(sql, "FOR UPDATE") {
				t.Fatalf("expected row locks before mutation, got %s", sql)
			}
			return &fakeRows{rows: [][]any{{cardID}}}, nil
		},
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
			return rowFromValues(cardID)
		},
		ExecFunc: func(ctx context.Context, sql string, args ...any) (CommandTag, error) {
			execs = append(execs, sql)
			return fakeCommandTag{rowsAffected: 1}, nil
		},
		CommitFunc: func(ctx context.Context) error {
			committed = true
			return nil
		},
	}
	db := &fakeDB{BeginFunc: func(ctx context.Context) (Tx, error) { return tx, nil }}

	svc := NewCardService(db)
	if err := svc.SetMain(context.Background(), cardID, memberID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(execs) != 2 {
		t.Fatalf("expected clear+set executions, got %d", len(execs))
	}
	if !strings.Contains(execs[0], "main = FALSE") || !strings.Contains(execs[1], "main = TRUE") {
		t.Fatalf("unexpected exec order: %v", execs)
	}
	if !committed {
		t.Fatal("expected transaction commit")
	}
}

func TestCardService_SetMain_RejectsForeignCard(t *testing.T) {
	tx := &fakeTx{
		QueryFunc: func(ctx context.Context, sql string, args ...any) (Rows, error) {
			return &fakeRows{}, nil
		},
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
			return fakeRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
		},
	}
	db := &fakeDB{BeginFunc: func(ctx context.Context) (Tx, error) { return tx, nil }}

	svc := NewCardService(db)
	err := svc.SetMain(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, ErrCardNotFound) {
		t.Fatalf("expected ErrCardNotFound, got %v", err)
	}
}

func useTx(t *testing.T, card models.Card, onExec func(sql string, args []any)) (*fakeTx, *bool) {
	t.Helper()
	committed := false
	tx := &fakeTx{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
			if !strings.Contains(sql, "WHERE hash = $1 FOR UPDATE") {
				t.Fatalf("expected row lock on hash, got %s", sql)
			}
			return rowFromValues(cardRowValues(card)...)
		},
		ExecFunc: func(ctx context.Context, sql string, args ...any) (CommandTag, error) {
			if onExec != nil {
				onExec(sql, args)
			}
			return fakeCommandTag{rowsAffected: 1}, nil
		},
		CommitFunc: func(ctx context.Context) error {
			committed = true
			return nil
		},
	}
	return tx, &committed
}

func TestCardService_Use_FirstUseActivatesCard(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	card := models.Card{
		ID:               uuid.New(),
		MemberID:         uuid.New(),
		Type:             models.CardTypeRound,
		Balance:          10,
		Hash:             "cardhash",
		ExpireAfterHours: testIntPtr(72),
	}

	var updateArgs []any
	tx, committed := useTx(t, card, func(sql string, args []any) {
		if strings.Contains(sql, "UPDATE cards") {
			updateArgs = args
		}
	})
	db := &fakeDB{BeginFunc: func(ctx context.Context) (Tx, error) { return tx, nil }}

	svc := NewCardService(db)
	svc.now = func() time.Time { return now }

	result, err := svc.Use(context.Background(), models.UseCardParams{Hash: "cardhash", UsedAmount: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RemainingBalance != 9 {
		t.Fatalf("expected remaining balance 9, got %d", result.RemainingBalance)
	}
	if result.ExpireAt == nil || !result.ExpireAt.Equal(now.Add(72*time.Hour)) {
		t.Fatalf("expected derived expiry %v, got %v", now.Add(72*time.Hour), result.ExpireAt)
	}

	if len(updateArgs) != 4 {
		t.Fatalf("expected 4 update args, got %d", len(updateArgs))
	}
	firstUsed, ok := updateArgs[1].(*time.Time)
	if !ok || firstUsed == nil || !firstUsed.Equal(now) {
		t.Fatalf("expected first_used_at=%v, got %v", now, updateArgs[1])
	}
	if !*committed {
		t.Fatal("expected commit")
	}
}

func TestCardService_Use_LockedCard(t *testing.T) {
	card := models.Card{ID: uuid.New(), Type: models.CardTypeMoney, Balance: 100, Hash: "h", Locked: true}
	tx, _ := useTx(t, card, nil)
	db := &fakeDB{BeginFunc: func(ctx context.Context) (Tx, error) { return tx, nil }}

	svc := NewCardService(db)
	_, err := svc.Use(context.Background(), models.UseCardParams{Hash: "h", UsedAmount: 10})
	if !errors.Is(err, ErrCardLocked) {
		t.Fatalf("expected ErrCardLocked, got %v", err)
	}
}

func TestCardService_Use_ExpiredCard(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	card := models.Card{
		ID:          uuid.New(),
		Type:        models.CardTypeMoney,
		Balance:     100,
		Hash:        "h",
		FirstUsedAt: testTimePtr(now.Add(-48 * time.Hour)),
		ExpireAt:    testTimePtr(now.Add(-time.Hour)),
	}
	tx, _ := useTx(t, card, nil)
	db := &fakeDB{BeginFunc: func(ctx context.Context) (Tx, error) { return tx, nil }}

	svc := NewCardService(db)
	svc.now = func() time.Time { return now }
	_, err := svc.Use(context.Background(), models.UseCardParams{Hash: "h", UsedAmount: 10})
	if !errors.Is(err, ErrCardExpired) {
		t.Fatalf("expected ErrCardExpired, got %v", err)
	}
}

func TestCardService_Use_SpentRoundCard(t *testing.T) {
	card := models.Card{ID: uuid.New(), Type: models.CardTypeRound, Balance: 0, Hash: "h"}
	tx, _ := useTx(t, card, nil)
	db := &fakeDB{BeginFunc: func(ctx context.Context) (Tx, error) { return tx, nil }}

	svc := NewCardService(db)
	_, err := svc.Use(context.Background(), models.UseCardParams{Hash: "h", UsedAmount: 1})
	if !errors.Is(err, ErrCardExpired) {
		t.Fatalf("expected spent round card to be expired, got %v", err)
	}
}

func TestCardService_Use_InsufficientBalance(t *testing.T) {
	card := models.Card{ID: uuid.New(), Type: models.CardTypeMoney, Balance: 5, Hash: "h"}
	tx, _ := useTx(t, card, nil)
	db := &fakeDB{BeginFunc: func(ctx context.Context) (Tx, error) { return tx, nil }}

	svc := NewCardService(db)
	_, err := svc.Use(context.Background(), models.UseCardParams{Hash: "h", UsedAmount: 10})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestCardService_Use_RejectsNonPositiveAmount(t *testing.T) {
	svc := NewCardService(&fakeDB{})
	_, err := svc.Use(context.Background(), models.UseCardParams{Hash: "h", UsedAmount: 0})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestCardService_Use_UnknownHash(t *testing.T) {
	tx := &fakeTx{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
			return fakeRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
		},
	}
	db := &fakeDB{BeginFunc: func(ctx context.Context) (Tx, error) { return tx, nil }}

	svc := NewCardService(db)
	_, err := svc.Use(context.Background(), models.UseCardParams{Hash: "nope", UsedAmount: 1})
	if !errors.Is(err, ErrCardNotFound) {
		t.Fatalf("expected ErrCardNotFound, got %v", err)
	}
}

func TestCardService_CheckHash(t *testing.T) {
	unowned := models.Card{ID: uuid.New(), Type: models.CardTypeRound, Balance: 10, Hash: "h"}
	db := &fakeDB{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
			return rowFromValues(cardRowValues(unowned)...)
		},
	}

	svc := NewCardService(db)
	card, err := svc.CheckHash(context.Background(), "h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if card.ID != unowned.ID {
		t.Fatal("unexpected card returned")
	}
}

func TestCardService_CheckHash_Owned(t *testing.T) {
	owned := models.Card{ID: uuid.New(), MemberID: uuid.New(), Type: models.CardTypeRound, Balance: 10, Hash: "h"}
	db := &fakeDB{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
			return rowFromValues(cardRowValues(owned)...)
		},
	}

	svc := NewCardService(db)
	_, err := svc.CheckHash(context.Background(), "h")
	if !errors.Is(err, ErrCardAlreadyOwned) {
		t.Fatalf("expected ErrCardAlreadyOwned, got %v", err)
	}
}

func verifyTx(t *testing.T, cardID uuid.UUID, ownerID *uuid.UUID, codeHash *string) *fakeTx {
	t.Helper()
	return &fakeTx{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
			if strings.Contains(sql, "SELECT id, member_id, verify_code_hash") {
				return rowFromValues(cardID, ownerID, codeHash)
			}
			return rowFromValues(cardRowValues(models.Card{ID: cardID, MemberID: uuid.New(), Type: models.CardTypeRound, Balance: 10, Hash: "h"})...)
		},
	}
}

func TestCardService_VerifyAndLink_WrongCode(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("246810"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	codeHash := string(hashed)

	tx := verifyTx(t, uuid.New(), nil, &codeHash)
	db := &fakeDB{BeginFunc: func(ctx context.Context) (Tx, error) { return tx, nil }}

	svc := NewCardService(db)
	_, err = svc.VerifyAndLink(context.Background(), "h", "000000", uuid.New())
	if !errors.Is(err, ErrInvalidVerifyCode) {
		t.Fatalf("expected ErrInvalidVerifyCode, got %v", err)
	}
}

func TestCardService_VerifyAndLink_OwnedByOther(t *testing.T) {
	otherID := uuid.New()
	codeHash := "irrelevant"
	tx := verifyTx(t, uuid.New(), &otherID, &codeHash)
	db := &fakeDB{BeginFunc: func(ctx context.Context) (Tx, error) { return tx, nil }}

	svc := NewCardService(db)
	_, err := svc.VerifyAndLink(context.Background(), "h", "246810", uuid.New())
	if !errors.Is(err, ErrCardAlreadyOwned) {
		t.Fatalf("expected ErrCardAlreadyOwned, got %v", err)
	}
}

func TestCardService_VerifyAndLink_Success(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("246810"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	codeHash := string(hashed)
	memberID := uuid.New()
	cardID := uuid.New()

	committed := false
	tx := verifyTx(t, cardID, nil, &codeHash)
	tx.CommitFunc = func(ctx context.Context) error {
		committed = true
		return nil
	}
	db := &fakeDB{BeginFunc: func(ctx context.Context) (Tx, error) { return tx, nil }}

	svc := NewCardService(db)
	card, err := svc.VerifyAndLink(context.Background(), "h", "246810", memberID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if card == nil {
		t.Fatal("expected linked card")
	}
	if !committed {
		t.Fatal("expected commit")
	}
}

func TestCardService_TopUp(t *testing.T) {
	cardID := uuid.New()
	var gotAmount any
	db := &fakeDB{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
			gotAmount = args[0]
			return rowFromValues(cardRowValues(models.Card{ID: cardID, Type: models.CardTypeMoney, Balance: 1500})...)
		},
	}

	svc := NewCardService(db)
	card, err := svc.TopUp(context.Background(), cardID, int64(500))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAmount != int64(500) {
		t.Fatalf("expected amount 500 to reach the query, got %v", gotAmount)
	}
	if card.Balance != 1500 {
		t.Fatalf("expected updated balance, got %d", card.Balance)
	}
}

func TestCardService_TopUp_RejectsNonPositiveAmount(t *testing.T) {
	svc := NewCardService(&fakeDB{})
	if _, err := svc.TopUp(context.Background(), uuid.New(), 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := svc.TopUp(context.Background(), uuid.New(), -5); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestCardService_CreateFromGroup(t *testing.T) {
	memberID := uuid.New()
	group := &models.CardGroup{
		ID:               uuid.New(),
		Type:             models.CardTypeRound,
		InitialBalance:   10,
		ExpireAfterHours: testIntPtr(720),
	}

	var insertArgs []any
	db := &fakeDB{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
			if !strings.Contains(sql, "INSERT INTO cards") {
				t.Fatalf("unexpected sql: %s", sql)
			}
			insertArgs = args
			return rowFromValues(cardRowValues(models.Card{ID: uuid.New(), MemberID: memberID, Type: group.Type, Balance: group.InitialBalance})...)
		},
	}

	svc := NewCardService(db)
	card, err := svc.CreateFromGroup(context.Background(), group, memberID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if card.Balance != group.InitialBalance {
		t.Fatalf("expected starting balance %d, got %d", group.InitialBalance, card.Balance)
	}
	if len(insertArgs) != 5 {
		t.Fatalf("expected 5 insert args, got %d", len(insertArgs))
	}
	hash, ok := insertArgs[3].(string)
	if !ok || len(hash) != 40 {
		t.Fatalf("expected 40-char hex hash, got %v", insertArgs[3])
	}
}
