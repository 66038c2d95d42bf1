package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rydeworks/farepass/internal/logging"
	"github.com/rydeworks/farepass/internal/models"
	"github.com/rydeworks/farepass/internal/services"
)

type PassHandler struct {
	cardService services.CardServiceInterface
	now         func() time.Time
}

func NewPassHandler(cardService services.CardServiceInterface) *PassHandler {
	return &PassHandler{cardService: cardService, now: time.Now}
}

// QRImage serves the rendered pass for a card. A locked card does not
// expose its QR payload.
func (h *PassHandler) QRImage(w http.ResponseWriter, r *http.Request) {
	cardID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid card id")
		return
	}

	card, err := h.cardService.GetByID(r.Context(), cardID)
	if errors.Is(err, services.ErrCardNotFound) {
		writeError(w, http.StatusNotFound, "Card not found")
		return
	}
	if err != nil {
		logging.Error("Error loading card", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if card.Locked {
		writeError(w, http.StatusConflict, "Card is locked")
		return
	}

	data, err := services.RenderPassPNG(card, models.Classify(*card, h.now()))
	if err != nil {
		logging.Error("Error rendering pass", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logging.Warn("Error writing pass image", map[string]interface{}{"error": err.Error()})
	}
}
