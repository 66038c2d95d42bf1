package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rydeworks/farepass/internal/logging"
	"github.com/rydeworks/farepass/internal/models"
	"github.com/rydeworks/farepass/internal/services"
)

type AuthHandler struct {
	provider      services.PlatformAuthProvider
	memberService services.MemberServiceInterface
	authService   services.AuthServiceInterface
	secure        bool
}

func NewAuthHandler(provider services.PlatformAuthProvider, memberService services.MemberServiceInterface, authService services.AuthServiceInterface, secure bool) *AuthHandler {
	return &AuthHandler{
		provider:      provider,
		memberService: memberService,
		authService:   authService,
		secure:        secure,
	}
}

type LoginRequest struct {
	Code  string `json:"code"`
	Nonce string `json:"nonce"`
}

type LoginResponse struct {
	Token  string         `json:"token"`
	Member *models.Member `json:"member"`
}

type AuthMessageResponse struct {
	Message string `json:"message"`
}

// Login exchanges a platform authorization code for a session. The member
// record is created on first login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		writeError(w, http.StatusServiceUnavailable, "Platform login is not enabled")
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "Authorization code is required")
		return
	}

	claims, err := h.provider.ExchangeAndVerify(r.Context(), req.Code, req.Nonce)
	if err != nil {
		logging.Warn("Platform code exchange failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusUnauthorized, "Invalid authorization code")
		return
	}

	member, err := h.memberService.UpsertFromIdentity(r.Context(), models.CreateMemberParams{
		ProviderSubject: claims.Subject,
		DisplayName:     claims.DisplayName,
		Email:           nilIfEmptyString(claims.Email),
	})
	if err != nil {
		logging.Error("Member upsert failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	token, err := h.authService.CreateSession(r.Context(), member.ID)
	if err != nil {
		logging.Error("Session creation failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, Member: member})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		_ = h.authService.DeleteSession(r.Context(), cookie.Value)
	}
	if token := bearerToken(r); token != "" {
		_ = h.authService.DeleteSession(r.Context(), token)
	}

	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, AuthMessageResponse{Message: "Logged out"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	member := GetMemberFromContext(r.Context())
	if member == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int((30 * 24 * time.Hour).Seconds()),
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Unix(0, 0),
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

func nilIfEmptyString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
