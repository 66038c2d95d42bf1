package models

import (
	"time"

	"github.com/google/uuid"
)

// CardGroup is a purchasable virtual card product offered by a transit
// company: buying one mints a Card with the group's starting balance and
// validity window.
type CardGroup struct {
	ID               uuid.UUID `json:"id"`
	CompanyID        string    `json:"company_id"`
	Name             string    `json:"name"`
	Type             CardType  `json:"type"`
	InitialBalance   int64     `json:"initial_balance"`
	ExpireAfterHours *int      `json:"expire_after_hours,omitempty"`
	Price            int64     `json:"price"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
}
