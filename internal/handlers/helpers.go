package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rydeworks/farepass/internal/models"
)

const sessionCookieName = "session_token"

type contextKey string

const memberContextKey contextKey = "member"

// SetMemberInContext attaches the authenticated member to the request
// context.
func SetMemberInContext(ctx context.Context, member *models.Member) context.Context {
	return context.WithValue(ctx, memberContextKey, member)
}

// GetMemberFromContext returns the authenticated member, or nil when the
// request carries no valid session.
func GetMemberFromContext(ctx context.Context) *models.Member {
	member, _ := ctx.Value(memberContextKey).(*models.Member)
	return member
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
