package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type CardType string

const (
	// CardTypeRound decrements discrete trip credits.
	CardTypeRound CardType = "round"
	// CardTypeMoney decrements a stored monetary balance, in minor units.
	CardTypeMoney CardType = "money"
)

func IsValidCardType(t CardType) bool {
	return t == CardTypeRound || t == CardTypeMoney
}

// Card is the server-owned fare card record. Balance is trips for round
// cards and currency minor units for money cards.
type Card struct {
	ID               uuid.UUID  `json:"id"`
	MemberID         uuid.UUID  `json:"member_id"`
	Type             CardType   `json:"type"`
	Balance          int64      `json:"balance"`
	Hash             string     `json:"hash"`
	FirstUsedAt      *time.Time `json:"first_used_at,omitempty"`
	ExpireAfterHours *int       `json:"expire_after_hours,omitempty"`
	ExpireAt         *time.Time `json:"expire_at,omitempty"`
	Locked           bool       `json:"is_locked"`
	Main             bool       `json:"is_main"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// EffectiveExpireAt resolves the card's absolute expiry: the stored value
// when present, otherwise first use plus the validity window. The second
// return is false when no expiry can be derived.
func (c *Card) EffectiveExpireAt() (time.Time, bool) {
	if c.ExpireAt != nil {
		return *c.ExpireAt, true
	}
	if c.FirstUsedAt != nil && c.ExpireAfterHours != nil && *c.ExpireAfterHours > 0 {
		return c.FirstUsedAt.Add(time.Duration(*c.ExpireAfterHours) * time.Hour), true
	}
	return time.Time{}, false
}

// Wire encoding of the lock flag: the upstream fare system transmits
// card_lock as 0 = locked, 1 = unlocked. The inversion never leaves the
// mapping functions below.
const (
	WireLockLocked   = 0
	WireLockUnlocked = 1
)

func LockToWire(locked bool) int {
	if locked {
		return WireLockLocked
	}
	return WireLockUnlocked
}

func LockFromWire(v int) (bool, error) {
	switch v {
	case WireLockLocked:
		return true, nil
	case WireLockUnlocked:
		return false, nil
	default:
		return false, fmt.Errorf("invalid card_lock value %d", v)
	}
}

type CreateCardParams struct {
	MemberID         uuid.UUID
	Type             CardType
	Balance          int64
	ExpireAfterHours *int
}

type UseCardParams struct {
	Hash       string
	UsedAmount int64
	RouteID    string
	TripID     string
	Latitude   *float64
	Longitude  *float64
}

// UseCardResult is what a redemption returns for the transient
// confirmation view; the canonical list comes from the next full fetch.
type UseCardResult struct {
	CardID           uuid.UUID  `json:"card_id"`
	RemainingBalance int64      `json:"remaining_balance"`
	ExpireAt         *time.Time `json:"expire_at,omitempty"`
}
