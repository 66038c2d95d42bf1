package middleware

import (
	"net/http"
	"strings"

	"github.com/rydeworks/farepass/internal/handlers"
	"github.com/rydeworks/farepass/internal/services"
)

const sessionCookieName = "session_token"

type AuthMiddleware struct {
	authService   services.AuthServiceInterface
	memberService services.MemberServiceInterface
}

func NewAuthMiddleware(authService services.AuthServiceInterface, memberService services.MemberServiceInterface) *AuthMiddleware {
	return &AuthMiddleware{
		authService:   authService,
		memberService: memberService,
	}
}

// Authenticate resolves the session token, if any, and attaches the member
// to the request context. It never rejects; RequireMember does that.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		memberID, err := m.authService.GetSession(r.Context(), token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		member, err := m.memberService.GetByID(r.Context(), memberID)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(handlers.SetMemberInContext(r.Context(), member)))
	})
}

// RequireMember rejects requests that did not authenticate.
func (m *AuthMiddleware) RequireMember(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handlers.GetMemberFromContext(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}
