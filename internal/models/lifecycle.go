package models

import (
	"fmt"
	"time"
)

type CardStatus string

const (
	StatusNew     CardStatus = "new"
	StatusActive  CardStatus = "active"
	StatusExpired CardStatus = "expired"
)

// Display sentinels. Missing or underivable dates degrade to these labels
// instead of surfacing an error to the rider.
const (
	LabelNoExpiry = "no expiry"
	LabelUnknown  = "unknown"
	LabelExpired  = "expired"
)

// Classification is the derived display state for a single card.
type Classification struct {
	Status        CardStatus `json:"status"`
	ExpiresOn     string     `json:"expires_on"`
	TimeRemaining string     `json:"time_remaining"`
}

// Classify maps a card and the current wall-clock time to its lifecycle
// status and display labels. It is pure and never fails: bad date inputs
// degrade to sentinel labels.
func Classify(c Card, now time.Time) Classification {
	// A round card with no trips left is spent no matter what the dates say.
	if c.Type == CardTypeRound && c.Balance == 0 {
		return Classification{
			Status:        StatusExpired,
			ExpiresOn:     expiresOnLabel(&c),
			TimeRemaining: LabelExpired,
		}
	}

	if c.FirstUsedAt == nil {
		remaining := LabelUnknown
		if c.ExpireAfterHours != nil && *c.ExpireAfterHours > 0 {
			remaining = formatRemaining(time.Duration(*c.ExpireAfterHours)*time.Hour) + " from first use"
		}
		return Classification{
			Status:        StatusNew,
			ExpiresOn:     LabelNoExpiry,
			TimeRemaining: remaining,
		}
	}

	expireAt, ok := c.EffectiveExpireAt()
	if !ok {
		// First use recorded but no expiry derivable; treat as active with
		// unknown labels rather than guessing.
		return Classification{
			Status:        StatusActive,
			ExpiresOn:     LabelUnknown,
			TimeRemaining: LabelUnknown,
		}
	}

	if !expireAt.After(now) {
		return Classification{
			Status:        StatusExpired,
			ExpiresOn:     expireAt.Format("2006-01-02"),
			TimeRemaining: LabelExpired,
		}
	}

	return Classification{
		Status:        StatusActive,
		ExpiresOn:     expireAt.Format("2006-01-02"),
		TimeRemaining: formatRemaining(expireAt.Sub(now)),
	}
}

func expiresOnLabel(c *Card) string {
	if expireAt, ok := c.EffectiveExpireAt(); ok {
		return expireAt.Format("2006-01-02")
	}
	return LabelUnknown
}

// formatRemaining renders a duration as days and hours, showing the days
// component only when at least one full day remains.
func formatRemaining(d time.Duration) string {
	if d <= 0 {
		return LabelExpired
	}

	days := int(d / (24 * time.Hour))
	hours := int((d % (24 * time.Hour)) / time.Hour)

	switch {
	case days >= 1 && hours >= 1:
		return fmt.Sprintf("%s %s", pluralize(days, "day"), pluralize(hours, "hour"))
	case days >= 1:
		return pluralize(days, "day")
	case hours >= 1:
		return pluralize(hours, "hour")
	default:
		return "less than an hour"
	}
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
