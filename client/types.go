package client

import (
	"time"

	"github.com/google/uuid"
)

// Lock flag wire encoding: 0 = locked, 1 = unlocked.
const (
	wireLockLocked   = 0
	wireLockUnlocked = 1
)

// Card is a fare card as the service presents it, lifecycle labels
// included.
type Card struct {
	ID            uuid.UUID  `json:"id"`
	CardType      string     `json:"card_type"`
	Balance       int64      `json:"balance"`
	Hash          string     `json:"hash"`
	CardLock      int        `json:"card_lock"`
	IsMain        bool       `json:"is_main"`
	FirstUsedAt   *time.Time `json:"first_used_at,omitempty"`
	Status        string     `json:"status"`
	ExpireDate    string     `json:"expire_date"`
	TimeRemaining string     `json:"time_remaining"`
}

// Locked resolves the wire encoding.
func (c Card) Locked() bool {
	return c.CardLock == wireLockLocked
}

type CardGroup struct {
	ID               uuid.UUID `json:"id"`
	CompanyID        string    `json:"company_id"`
	Name             string    `json:"name"`
	Type             string    `json:"card_type"`
	InitialBalance   int64     `json:"initial_balance"`
	ExpireAfterHours *int      `json:"expire_after_hours,omitempty"`
	Price            int64     `json:"price"`
}

type Member struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       *string   `json:"email,omitempty"`
}

type UseParams struct {
	Hash       string
	UsedAmount int64
	RouteID    string
	TripID     string
	Latitude   *float64
	Longitude  *float64
}

type UseResult struct {
	CardID           uuid.UUID `json:"card_id"`
	RemainingBalance int64     `json:"remaining_balance"`
	ExpireDate       string    `json:"expire_date"`
}

type checkCardResponse struct {
	Status string `json:"status"`
	Card   []Card `json:"card"`
}

type hashCheckResponse struct {
	Status string `json:"status"`
	Card   Card   `json:"card"`
}

type lockRequest struct {
	CardLock *int `json:"card_lock"`
}

type setMainRequest struct {
	CardUserID string `json:"card_user_id"`
}

type useRequest struct {
	HashedInput string   `json:"hashed_input"`
	UsedAmount  int64    `json:"used_amount"`
	RouteID     string   `json:"route_id"`
	TripID      string   `json:"trip_id"`
	Latitude    *float64 `json:"lat"`
	Longitude   *float64 `json:"lng"`
}

type useResponse struct {
	Status string    `json:"status"`
	Data   UseResult `json:"data"`
}

type verifyRequest struct {
	CardHash   string `json:"card_hash"`
	CardQRCode string `json:"card_qrcode"`
	MemberID   string `json:"member_id"`
}

type topUpRequest struct {
	Amount int64 `json:"amount"`
}

type purchaseRequest struct {
	CardGroupID string `json:"card_group_id"`
	MemberID    string `json:"member_id"`
}

type cardGroupListResponse struct {
	CardGroups []CardGroup `json:"card_groups"`
}

type loginRequest struct {
	Code  string `json:"code"`
	Nonce string `json:"nonce"`
}

type loginResponse struct {
	Token  string  `json:"token"`
	Member *Member `json:"member"`
}
