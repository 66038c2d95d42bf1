package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/rydeworks/farepass/internal/models"
)

var (
	ErrCardNotFound        = errors.New("card not found")
	ErrCardLocked          = errors.New("card is locked")
	ErrCardExpired         = errors.New("card is expired")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrCardAlreadyOwned    = errors.New("card already linked to another member")
	ErrCardUnowned         = errors.New("card is not linked to any member")
	ErrInvalidVerifyCode   = errors.New("verification code does not match")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

type CardServiceInterface interface {
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]models.Card, error)
	GetByID(ctx context.Context, cardID uuid.UUID) (*models.Card, error)
	SetLocked(ctx context.Context, cardID uuid.UUID, locked bool) (*models.Card, error)
	SetMain(ctx context.Context, cardID, memberID uuid.UUID) error
	Use(ctx context.Context, params models.UseCardParams) (*models.UseCardResult, error)
	CheckHash(ctx context.Context, hash string) (*models.Card, error)
	VerifyAndLink(ctx context.Context, hash, code string, memberID uuid.UUID) (*models.Card, error)
	TopUp(ctx context.Context, cardID uuid.UUID, amount int64) (*models.Card, error)
	CreateFromGroup(ctx context.Context, group *models.CardGroup, memberID uuid.UUID) (*models.Card, error)
}

type CardService struct {
	db  DB
	now func() time.Time
}

func NewCardService(db DB) *CardService {
	return &CardService{db: db, now: time.Now}
}

const cardColumns = `id, member_id, card_type, balance, hash, first_used_at, expire_after_hours, expire_at, locked, main, created_at, updated_at`

func scanCard(row Row) (*models.Card, error) {
	card := &models.Card{}
	var memberID *uuid.UUID
	err := row.Scan(
		&card.ID, &memberID, &card.Type, &card.Balance, &card.Hash,
		&card.FirstUsedAt, &card.ExpireAfterHours, &card.ExpireAt,
		&card.Locked, &card.Main, &card.CreatedAt, &card.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if memberID != nil {
		card.MemberID = *memberID
	}
	return card, nil
}

func (s *CardService) ListByMember(ctx context.Context, memberID uuid.UUID) ([]models.Card, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE member_id = $1 ORDER BY created_at`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing cards: %w", err)
	}
	defer rows.Close()

	cards := []models.Card{}
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning card: %w", err)
		}
		cards = append(cards, *card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cards: %w", err)
	}

	return cards, nil
}

func (s *CardService) GetByID(ctx context.Context, cardID uuid.UUID) (*models.Card, error) {
	card, err := scanCard(s.db.QueryRow(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE id = $1`, cardID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting card by id: %w", err)
	}
	return card, nil
}

// SetLocked updates the lock flag. The 0/1 wire encoding is mapped in the
// handler; here locked is a plain bool.
func (s *CardService) SetLocked(ctx context.Context, cardID uuid.UUID, locked bool) (*models.Card, error) {
	card, err := scanCard(s.db.QueryRow(ctx,
		`UPDATE cards SET locked = $1, updated_at = NOW() WHERE id = $2
		 RETURNING `+cardColumns,
		locked, cardID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating lock state: %w", err)
	}
	return card, nil
}

// SetMain designates cardID as the member's main card, replacing any
// previous main in one transaction so the single-main invariant holds at
// rest.
func (s *CardService) SetMain(ctx context.Context, cardID, memberID uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // Rollback is a no-op after commit

	if err := lockMemberCardsForUpdate(ctx, tx, memberID); err != nil {
		return err
	}

	var lockedID uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM cards WHERE id = $1 AND member_id = $2`,
		cardID, memberID,
	).Scan(&lockedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrCardNotFound
	}
	if err != nil {
		return fmt.Errorf("checking card ownership: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE cards SET main = FALSE, updated_at = NOW() WHERE member_id = $1 AND main`,
		memberID,
	); err != nil {
		return fmt.Errorf("clearing previous main card: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE cards SET main = TRUE, updated_at = NOW() WHERE id = $1`,
		cardID,
	); err != nil {
		return fmt.Errorf("setting main card: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing main card change: %w", err)
	}
	return nil
}

// Use redeems fare from the card identified by its QR hash. First use
// activates the card: first_used_at is stamped and the absolute expiry is
// derived from the validity window in the same transaction as the balance
// decrement.
func (s *CardService) Use(ctx context.Context, params models.UseCardParams) (*models.UseCardResult, error) {
	if params.UsedAmount <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // Rollback is a no-op after commit

	card, err := scanCard(tx.QueryRow(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE hash = $1 FOR UPDATE`,
		params.Hash,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locking card row: %w", err)
	}

	if card.Locked {
		return nil, ErrCardLocked
	}

	now := s.now().UTC()
	if status := models.Classify(*card, now).Status; status == models.StatusExpired {
		return nil, ErrCardExpired
	}
	if card.Balance < params.UsedAmount {
		return nil, ErrInsufficientBalance
	}

	firstUsedAt := card.FirstUsedAt
	expireAt := card.ExpireAt
	if firstUsedAt == nil {
		firstUsedAt = &now
		if card.ExpireAfterHours != nil && *card.ExpireAfterHours > 0 {
			derived := now.Add(time.Duration(*card.ExpireAfterHours) * time.Hour)
			expireAt = &derived
		}
	}

	remaining := card.Balance - params.UsedAmount
	if _, err := tx.Exec(ctx,
		`UPDATE cards
		 SET balance = $1, first_used_at = $2, expire_at = $3, updated_at = NOW()
		 WHERE id = $4`,
		remaining, firstUsedAt, expireAt, card.ID,
	); err != nil {
		return nil, fmt.Errorf("applying redemption: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO card_usages (card_id, used_amount, route_id, trip_id, latitude, longitude)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		card.ID, params.UsedAmount, nilIfEmpty(params.RouteID), nilIfEmpty(params.TripID),
		params.Latitude, params.Longitude,
	); err != nil {
		return nil, fmt.Errorf("recording usage: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing redemption: %w", err)
	}

	return &models.UseCardResult{
		CardID:           card.ID,
		RemainingBalance: remaining,
		ExpireAt:         expireAt,
	}, nil
}

// CheckHash is the first step of linking a physical card: it confirms the
// scanned hash belongs to an existing, unowned card.
func (s *CardService) CheckHash(ctx context.Context, hash string) (*models.Card, error) {
	card, err := scanCard(s.db.QueryRow(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE hash = $1`, hash,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checking card hash: %w", err)
	}
	if card.MemberID != uuid.Nil {
		return nil, ErrCardAlreadyOwned
	}
	return card, nil
}

// VerifyAndLink is the second step: the human-entered verification code is
// checked against the card's stored digest, then the card is bound to the
// member.
func (s *CardService) VerifyAndLink(ctx context.Context, hash, code string, memberID uuid.UUID) (*models.Card, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // Rollback is a no-op after commit

	var cardID uuid.UUID
	var ownerID *uuid.UUID
	var verifyCodeHash *string
	err = tx.QueryRow(ctx,
		`SELECT id, member_id, verify_code_hash FROM cards WHERE hash = $1 FOR UPDATE`,
		hash,
	).Scan(&cardID, &ownerID, &verifyCodeHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locking card row: %w", err)
	}

	if ownerID != nil && *ownerID != memberID {
		return nil, ErrCardAlreadyOwned
	}
	if verifyCodeHash == nil {
		return nil, ErrInvalidVerifyCode
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*verifyCodeHash), []byte(code)); err != nil {
		return nil, ErrInvalidVerifyCode
	}

	card, err := scanCard(tx.QueryRow(ctx,
		`UPDATE cards SET member_id = $1, updated_at = NOW() WHERE id = $2
		 RETURNING `+cardColumns,
		memberID, cardID,
	))
	if err != nil {
		return nil, fmt.Errorf("linking card: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing link: %w", err)
	}
	return card, nil
}

func (s *CardService) TopUp(ctx context.Context, cardID uuid.UUID, amount int64) (*models.Card, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	card, err := scanCard(s.db.QueryRow(ctx,
		`UPDATE cards SET balance = balance + $1, updated_at = NOW() WHERE id = $2
		 RETURNING `+cardColumns,
		amount, cardID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("topping up card: %w", err)
	}
	return card, nil
}

// CreateFromGroup mints a virtual card for the member from a purchasable
// product definition.
func (s *CardService) CreateFromGroup(ctx context.Context, group *models.CardGroup, memberID uuid.UUID) (*models.Card, error) {
	hash, err := generateCardHash()
	if err != nil {
		return nil, fmt.Errorf("generating card hash: %w", err)
	}

	card, err := scanCard(s.db.QueryRow(ctx,
		`INSERT INTO cards (member_id, card_type, balance, hash, expire_after_hours)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+cardColumns,
		memberID, group.Type, group.InitialBalance, hash, group.ExpireAfterHours,
	))
	if err != nil {
		return nil, fmt.Errorf("creating card: %w", err)
	}
	return card, nil
}

// lockMemberCardsForUpdate takes row locks on all of the member's cards so
// concurrent main-card changes serialize.
func lockMemberCardsForUpdate(ctx context.Context, q DBConn, memberID uuid.UUID) error {
	rows, err := q.Query(ctx, `SELECT id FROM cards WHERE member_id = $1 FOR UPDATE`, memberID)
	if err != nil {
		return fmt.Errorf("locking member cards: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("locking member cards: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("locking member cards: %w", err)
	}
	return nil
}

func generateCardHash() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
