package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rydeworks/farepass/internal/models"
)

var (
	ErrMemberNotFound        = errors.New("member not found")
	ErrInvalidMemberIdentity = errors.New("invalid member identity")
)

type MemberServiceInterface interface {
	UpsertFromIdentity(ctx context.Context, params models.CreateMemberParams) (*models.Member, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error)
}

type MemberService struct {
	db DBConn
}

func NewMemberService(db DBConn) *MemberService {
	return &MemberService{db: db}
}

const memberColumns = `id, provider_subject, display_name, email, created_at, updated_at`

func scanMember(row Row) (*models.Member, error) {
	member := &models.Member{}
	err := row.Scan(
		&member.ID, &member.ProviderSubject, &member.DisplayName,
		&member.Email, &member.CreatedAt, &member.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return member, nil
}

// UpsertFromIdentity creates the member on first login and refreshes the
// profile fields on every subsequent one.
func (s *MemberService) UpsertFromIdentity(ctx context.Context, params models.CreateMemberParams) (*models.Member, error) {
	subject := strings.TrimSpace(params.ProviderSubject)
	if subject == "" {
		return nil, ErrInvalidMemberIdentity
	}

	displayName := strings.TrimSpace(params.DisplayName)
	if displayName == "" {
		displayName = "Rider"
	}

	member, err := scanMember(s.db.QueryRow(ctx,
		`INSERT INTO members (provider_subject, display_name, email)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (provider_subject)
		 DO UPDATE SET display_name = EXCLUDED.display_name,
		               email = COALESCE(EXCLUDED.email, members.email),
		               updated_at = NOW()
		 RETURNING `+memberColumns,
		subject, displayName, params.Email,
	))
	if err != nil {
		return nil, fmt.Errorf("upserting member: %w", err)
	}
	return member, nil
}

func (s *MemberService) GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	member, err := scanMember(s.db.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting member by id: %w", err)
	}
	return member, nil
}
