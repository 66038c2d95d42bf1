package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rydeworks/farepass/internal/models"
)

var ErrCardGroupNotFound = errors.New("card group not found")

type CardGroupServiceInterface interface {
	ListVirtualByCompany(ctx context.Context, companyID string) ([]models.CardGroup, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.CardGroup, error)
}

type CardGroupService struct {
	db DBConn
}

func NewCardGroupService(db DBConn) *CardGroupService {
	return &CardGroupService{db: db}
}

const cardGroupColumns = `id, company_id, name, card_type, initial_balance, expire_after_hours, price, active, created_at`

func scanCardGroup(row Row) (*models.CardGroup, error) {
	group := &models.CardGroup{}
	err := row.Scan(
		&group.ID, &group.CompanyID, &group.Name, &group.Type,
		&group.InitialBalance, &group.ExpireAfterHours, &group.Price,
		&group.Active, &group.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return group, nil
}

func (s *CardGroupService) ListVirtualByCompany(ctx context.Context, companyID string) ([]models.CardGroup, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+cardGroupColumns+` FROM card_groups
		 WHERE company_id = $1 AND active
		 ORDER BY price`,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing card groups: %w", err)
	}
	defer rows.Close()

	groups := []models.CardGroup{}
	for rows.Next() {
		group, err := scanCardGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning card group: %w", err)
		}
		groups = append(groups, *group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating card groups: %w", err)
	}

	return groups, nil
}

func (s *CardGroupService) GetByID(ctx context.Context, id uuid.UUID) (*models.CardGroup, error) {
	group, err := scanCardGroup(s.db.QueryRow(ctx,
		`SELECT `+cardGroupColumns+` FROM card_groups WHERE id = $1 AND active`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCardGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting card group: %w", err)
	}
	return group, nil
}
