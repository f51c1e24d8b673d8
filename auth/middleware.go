package auth

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"net/http"
	"strings"
)

// SessionCookie holds the session token set on register and login.
const SessionCookie = "relay_session"

type contextKey string

const principalKey contextKey = "principal"

// TokenFromRequest reads the session cookie, then the bearer header.
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// Authenticate resolves the principal behind the request's session token.
func (i *TokenIssuer) Authenticate(r *http.Request) (domain.Principal, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return domain.Principal{}, errors.ErrAuthentication
	}
	return i.ValidateToken(token)
}

// RequireAuth rejects requests without a valid session with 401 and injects
// the principal into the context of the others.
func (i *TokenIssuer) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := i.Authenticate(r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

func WithPrincipal(ctx context.Context, principal domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	principal, ok := ctx.Value(principalKey).(domain.Principal)
	return principal, ok
}
