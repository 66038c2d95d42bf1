package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rydeworks/farepass/internal/logging"
	"github.com/rydeworks/farepass/internal/models"
	"github.com/rydeworks/farepass/internal/services"
)

type CardHandler struct {
	cardService       services.CardServiceInterface
	cardGroupService  services.CardGroupServiceInterface
	memberService     services.MemberServiceInterface
	emailService      services.EmailServiceInterface
	now               func() time.Time
	observeRedemption func(outcome string)
}

func NewCardHandler(cardService services.CardServiceInterface, cardGroupService services.CardGroupServiceInterface, memberService services.MemberServiceInterface, emailService services.EmailServiceInterface) *CardHandler {
	return &CardHandler{
		cardService:       cardService,
		cardGroupService:  cardGroupService,
		memberService:     memberService,
		emailService:      emailService,
		now:               time.Now,
		observeRedemption: func(string) {},
	}
}

// SetRedemptionObserver installs a callback recording the outcome of each
// redemption attempt.
func (h *CardHandler) SetRedemptionObserver(fn func(outcome string)) {
	if fn != nil {
		h.observeRedemption = fn
	}
}

// CardResponse is the wire shape of a card. card_lock uses the upstream
// 0=locked/1=unlocked encoding; the lifecycle labels are computed
// server-side so every client renders the same state.
type CardResponse struct {
	ID            uuid.UUID         `json:"id"`
	CardType      models.CardType   `json:"card_type"`
	Balance       int64             `json:"balance"`
	Hash          string            `json:"hash"`
	CardLock      int               `json:"card_lock"`
	IsMain        bool              `json:"is_main"`
	FirstUsedAt   *time.Time        `json:"first_used_at,omitempty"`
	Status        models.CardStatus `json:"status"`
	ExpireDate    string            `json:"expire_date"`
	TimeRemaining string            `json:"time_remaining"`
}

func newCardResponse(card *models.Card, now time.Time) CardResponse {
	cls := models.Classify(*card, now)
	return CardResponse{
		ID:            card.ID,
		CardType:      card.Type,
		Balance:       card.Balance,
		Hash:          card.Hash,
		CardLock:      models.LockToWire(card.Locked),
		IsMain:        card.Main,
		FirstUsedAt:   card.FirstUsedAt,
		Status:        cls.Status,
		ExpireDate:    cls.ExpiresOn,
		TimeRemaining: cls.TimeRemaining,
	}
}

type CheckCardResponse struct {
	Status string         `json:"status"`
	Card   []CardResponse `json:"card"`
}

// CheckCard returns the member's cards, ranked for display. An unknown
// member or a member with no cards is not an error on this path.
func (h *CardHandler) CheckCard(w http.ResponseWriter, r *http.Request) {
	memberID, err := uuid.Parse(r.PathValue("uuid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid member id")
		return
	}

	cards, err := h.cardService.ListByMember(r.Context(), memberID)
	if err != nil {
		logging.Error("Error listing cards", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	status := "exist"
	if len(cards) == 0 {
		status = "not_exist"
	}

	now := h.now()
	ranked := models.Rank(cards)
	resp := CheckCardResponse{Status: status, Card: make([]CardResponse, 0, len(ranked))}
	for i := range ranked {
		resp.Card = append(resp.Card, newCardResponse(&ranked[i], now))
	}
	writeJSON(w, http.StatusOK, resp)
}

type LockCardRequest struct {
	CardLock *int `json:"card_lock"`
}

func (h *CardHandler) Lock(w http.ResponseWriter, r *http.Request) {
	cardID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid card id")
		return
	}

	var req LockCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CardLock == nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	locked, err := models.LockFromWire(*req.CardLock)
	if err != nil {
		writeError(w, http.StatusBadRequest, "card_lock must be 0 or 1")
		return
	}

	card, err := h.cardService.SetLocked(r.Context(), cardID, locked)
	if errors.Is(err, services.ErrCardNotFound) {
		writeError(w, http.StatusNotFound, "Card not found")
		return
	}
	if err != nil {
		logging.Error("Error updating lock state", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, newCardResponse(card, h.now()))
}

type SetMainRequest struct {
	CardUserID string `json:"card_user_id"`
}

type CardMessageResponse struct {
	Message string `json:"message"`
}

func (h *CardHandler) SetMain(w http.ResponseWriter, r *http.Request) {
	cardID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid card id")
		return
	}

	var req SetMainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	memberID, err := uuid.Parse(req.CardUserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid card_user_id")
		return
	}

	err = h.cardService.SetMain(r.Context(), cardID, memberID)
	if errors.Is(err, services.ErrCardNotFound) {
		writeError(w, http.StatusNotFound, "Card not found")
		return
	}
	if err != nil {
		logging.Error("Error setting main card", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, CardMessageResponse{Message: "Main card updated"})
}

type UseCardRequest struct {
	HashedInput string   `json:"hashed_input"`
	UsedAmount  int64    `json:"used_amount"`
	RouteID     string   `json:"route_id"`
	TripID      string   `json:"trip_id"`
	Latitude    *float64 `json:"lat"`
	Longitude   *float64 `json:"lng"`
}

type UseCardData struct {
	CardID           uuid.UUID `json:"card_id"`
	RemainingBalance int64     `json:"remaining_balance"`
	ExpireDate       string    `json:"expire_date"`
}

type UseCardResponse struct {
	Status string      `json:"status"`
	Data   UseCardData `json:"data"`
}

// Use redeems fare from the card identified by the scanned QR payload.
func (h *CardHandler) Use(w http.ResponseWriter, r *http.Request) {
	var req UseCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.HashedInput) == "" {
		writeError(w, http.StatusBadRequest, "hashed_input is required")
		return
	}

	result, err := h.cardService.Use(r.Context(), models.UseCardParams{
		Hash:       req.HashedInput,
		UsedAmount: req.UsedAmount,
		RouteID:    req.RouteID,
		TripID:     req.TripID,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
	})
	switch {
	case errors.Is(err, services.ErrInvalidAmount):
		h.observeRedemption("invalid_amount")
		writeError(w, http.StatusBadRequest, "used_amount must be positive")
		return
	case errors.Is(err, services.ErrCardNotFound):
		h.observeRedemption("not_found")
		writeError(w, http.StatusNotFound, "Card not found")
		return
	case errors.Is(err, services.ErrCardLocked):
		h.observeRedemption("locked")
		writeError(w, http.StatusConflict, "Card is locked")
		return
	case errors.Is(err, services.ErrCardExpired):
		h.observeRedemption("expired")
		writeError(w, http.StatusConflict, "Card is expired")
		return
	case errors.Is(err, services.ErrInsufficientBalance):
		h.observeRedemption("insufficient_balance")
		writeError(w, http.StatusConflict, "Insufficient balance")
		return
	case err != nil:
		h.observeRedemption("error")
		logging.Error("Error redeeming card", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.observeRedemption("success")

	expireDate := ""
	if result.ExpireAt != nil {
		expireDate = result.ExpireAt.Format("2006-01-02")
	}
	writeJSON(w, http.StatusOK, UseCardResponse{
		Status: "success",
		Data: UseCardData{
			CardID:           result.CardID,
			RemainingBalance: result.RemainingBalance,
			ExpireDate:       expireDate,
		},
	})
}

type HashCheckResponse struct {
	Status string       `json:"status"`
	Card   CardResponse `json:"card"`
}

// CheckHash is the first linking step for a physical card: the scanned
// hash must belong to an existing, unowned card.
func (h *CardHandler) CheckHash(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	if strings.TrimSpace(hash) == "" {
		writeError(w, http.StatusBadRequest, "Card hash is required")
		return
	}

	card, err := h.cardService.CheckHash(r.Context(), hash)
	switch {
	case errors.Is(err, services.ErrCardNotFound):
		writeError(w, http.StatusNotFound, "Card not found")
		return
	case errors.Is(err, services.ErrCardAlreadyOwned):
		writeError(w, http.StatusConflict, "Card already linked to another member")
		return
	case err != nil:
		logging.Error("Error checking card hash", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, HashCheckResponse{Status: "exist", Card: newCardResponse(card, h.now())})
}

type VerifyQRCodeRequest struct {
	CardHash   string `json:"card_hash"`
	CardQRCode string `json:"card_qrcode"`
	MemberID   string `json:"member_id"`
}

// VerifyQRCode is the second linking step: the human-entered verification
// code is checked and the card is bound to the member.
func (h *CardHandler) VerifyQRCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyQRCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.CardHash) == "" || strings.TrimSpace(req.CardQRCode) == "" {
		writeError(w, http.StatusBadRequest, "card_hash and card_qrcode are required")
		return
	}

	memberID, err := h.resolveMemberID(r, req.MemberID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid member_id")
		return
	}

	card, err := h.cardService.VerifyAndLink(r.Context(), req.CardHash, req.CardQRCode, memberID)
	switch {
	case errors.Is(err, services.ErrCardNotFound):
		writeError(w, http.StatusNotFound, "Card not found")
		return
	case errors.Is(err, services.ErrCardAlreadyOwned):
		writeError(w, http.StatusConflict, "Card already linked to another member")
		return
	case errors.Is(err, services.ErrInvalidVerifyCode):
		writeError(w, http.StatusUnprocessableEntity, "Verification code does not match")
		return
	case err != nil:
		logging.Error("Error linking card", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, newCardResponse(card, h.now()))
}

type TopUpRequest struct {
	Amount int64 `json:"amount"`
}

func (h *CardHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	cardID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid card id")
		return
	}

	var req TopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	card, err := h.cardService.TopUp(r.Context(), cardID, req.Amount)
	switch {
	case errors.Is(err, services.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	case errors.Is(err, services.ErrCardNotFound):
		writeError(w, http.StatusNotFound, "Card not found")
		return
	case err != nil:
		logging.Error("Error topping up card", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, newCardResponse(card, h.now()))
}

type CreateByLineRequest struct {
	CardGroupID string `json:"card_group_id"`
	MemberID    string `json:"member_id"`
}

// CreateByLine mints a virtual card for the member from a purchasable
// product. The receipt email is best effort.
func (h *CardHandler) CreateByLine(w http.ResponseWriter, r *http.Request) {
	var req CreateByLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	groupID, err := uuid.Parse(req.CardGroupID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid card_group_id")
		return
	}
	memberID, err := h.resolveMemberID(r, req.MemberID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid member_id")
		return
	}

	group, err := h.cardGroupService.GetByID(r.Context(), groupID)
	if errors.Is(err, services.ErrCardGroupNotFound) {
		writeError(w, http.StatusNotFound, "Card group not found")
		return
	}
	if err != nil {
		logging.Error("Error loading card group", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	card, err := h.cardService.CreateFromGroup(r.Context(), group, memberID)
	if err != nil {
		logging.Error("Error creating card", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if member, err := h.memberService.GetByID(r.Context(), memberID); err == nil {
		if err := h.emailService.SendPurchaseReceipt(r.Context(), member, card, group); err != nil {
			logging.Warn("Receipt email failed", map[string]interface{}{"error": err.Error()})
		}
	}

	writeJSON(w, http.StatusCreated, newCardResponse(card, h.now()))
}

// resolveMemberID prefers the authenticated member over an id supplied in
// the request body.
func (h *CardHandler) resolveMemberID(r *http.Request, bodyID string) (uuid.UUID, error) {
	if member := GetMemberFromContext(r.Context()); member != nil {
		return member.ID, nil
	}
	return uuid.Parse(bodyID)
}
