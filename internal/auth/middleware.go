package auth

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
)

type contextKey struct{}

var userContextKey contextKey

// CurrentUser returns the authenticated user attached by Authenticate.
func CurrentUser(r *http.Request) (User, bool) {
	user, ok := r.Context().Value(userContextKey).(User)
	return user, ok
}

// RevocationChecker reports whether a token has been logged out.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// Authenticate verifies the bearer token, checks revocation, loads the user
// and attaches it to the request context. Every failure is a 401.
type Authenticate struct {
	tokens      *TokenService
	revocations RevocationChecker
	users       UserStore
}

func NewAuthenticate(tokens *TokenService, revocations RevocationChecker, users UserStore) *Authenticate {
	return &Authenticate{tokens: tokens, revocations: revocations, users: users}
}

func (m *Authenticate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		claims, err := m.tokens.Verify(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		if claims.TokenType != TokenTypeAccess {
			writeError(w, http.StatusUnauthorized, "invalid token type")
			return
		}

		revoked, err := m.revocations.IsRevoked(r.Context(), tokenString)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to check token")
			return
		}
		if revoked {
			writeError(w, http.StatusUnauthorized, "token revoked")
			return
		}

		userID, err := claims.UserID()
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		user, err := m.users.GetByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				writeError(w, http.StatusUnauthorized, "user not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to load user")
			return
		}
		if !user.IsActive {
			writeError(w, http.StatusUnauthorized, "user is inactive")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRoles gates a route to the declared role set. It runs after
// Authenticate. An empty set means any authenticated role.
func RequireRoles(roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := CurrentUser(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing authorization token")
				return
			}

			if len(allowed) > 0 {
				if _, member := allowed[user.Role]; !member {
					writeError(w, http.StatusForbidden, "insufficient role")
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}
