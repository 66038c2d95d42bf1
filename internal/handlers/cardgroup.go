package handlers

import (
	"net/http"
	"strings"

	"github.com/rydeworks/farepass/internal/logging"
	"github.com/rydeworks/farepass/internal/models"
	"github.com/rydeworks/farepass/internal/services"
)

type CardGroupHandler struct {
	cardGroupService services.CardGroupServiceInterface
}

func NewCardGroupHandler(cardGroupService services.CardGroupServiceInterface) *CardGroupHandler {
	return &CardGroupHandler{cardGroupService: cardGroupService}
}

type CardGroupListResponse struct {
	CardGroups []models.CardGroup `json:"card_groups"`
}

// ListVirtual returns the purchasable virtual card catalog for a company.
func (h *CardGroupHandler) ListVirtual(w http.ResponseWriter, r *http.Request) {
	companyID := r.PathValue("companyId")
	if strings.TrimSpace(companyID) == "" {
		writeError(w, http.StatusBadRequest, "Company id is required")
		return
	}

	groups, err := h.cardGroupService.ListVirtualByCompany(r.Context(), companyID)
	if err != nil {
		logging.Error("Error listing card groups", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, CardGroupListResponse{CardGroups: groups})
}
