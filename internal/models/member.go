package models

import (
	"time"

	"github.com/google/uuid"
)

// Member is a rider profile bound to a messaging-platform identity.
type Member struct {
	ID              uuid.UUID `json:"id"`
	ProviderSubject string    `json:"-"`
	DisplayName     string    `json:"display_name"`
	Email           *string   `json:"email,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type CreateMemberParams struct {
	ProviderSubject string
	DisplayName     string
	Email           *string
}
