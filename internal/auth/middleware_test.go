package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(t *testing.T, want User) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := CurrentUser(r)
		require.True(t, ok)
		assert.Equal(t, want.ID, user.ID)
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthenticate(t *testing.T) {
	tokens := NewTokenService(testSecret, 15*time.Minute, 7*24*time.Hour)
	users := newFakeUserStore()
	revocations := newFakeRevocations()
	authenticate := NewAuthenticate(tokens, revocations, users)

	user := testUser("alice", "Weakpass1!", RoleViewer)
	users.put(user)

	pair, err := tokens.IssuePair(user.ID, user.Username, user.Role)
	require.NoError(t, err)

	do := func(authorization string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/documents", nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		rec := httptest.NewRecorder()
		authenticate.Middleware(okHandler(t, user)).ServeHTTP(rec, req)
		return rec
	}

	t.Run("valid access token", func(t *testing.T) {
		rec := do("Bearer " + pair.AccessToken)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("lowercase scheme accepted", func(t *testing.T) {
		rec := do("bearer " + pair.AccessToken)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("missing header", func(t *testing.T) {
		rec := do("")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "missing authorization token")
	})

	t.Run("wrong scheme", func(t *testing.T) {
		rec := do("Basic " + pair.AccessToken)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := do("Bearer not-a-token")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid or expired token")
	})

	t.Run("refresh token rejected", func(t *testing.T) {
		rec := do("Bearer " + pair.RefreshToken)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid token type")
	})

	t.Run("expired token rejected", func(t *testing.T) {
		expired := NewTokenService(testSecret, -time.Minute, -time.Minute)
		stale, err := expired.IssuePair(user.ID, user.Username, user.Role)
		require.NoError(t, err)

		rec := do("Bearer " + stale.AccessToken)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("revoked token rejected", func(t *testing.T) {
		require.NoError(t, revocations.Revoke(t.Context(), pair.AccessToken, time.Now().Add(time.Hour)))
		t.Cleanup(func() {
			revocations.mu.Lock()
			delete(revocations.revoked, pair.AccessToken)
			revocations.mu.Unlock()
		})

		rec := do("Bearer " + pair.AccessToken)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "token revoked")
	})

	t.Run("deleted user rejected", func(t *testing.T) {
		ghost := testUser("ghost", "Weakpass1!", RoleViewer)
		ghostPair, err := tokens.IssuePair(ghost.ID, ghost.Username, ghost.Role)
		require.NoError(t, err)

		rec := do("Bearer " + ghostPair.AccessToken)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "user not found")
	})

	t.Run("inactive user rejected", func(t *testing.T) {
		inactive := testUser("bob", "Weakpass1!", RoleViewer)
		inactive.IsActive = false
		users.put(inactive)

		inactivePair, err := tokens.IssuePair(inactive.ID, inactive.Username, inactive.Role)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/documents", nil)
		req.Header.Set("Authorization", "Bearer "+inactivePair.AccessToken)
		rec := httptest.NewRecorder()
		authenticate.Middleware(okHandler(t, inactive)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "user is inactive")
	})
}

func TestRequireRoles(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	do := func(user *User, roles ...Role) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/documents", nil)
		if user != nil {
			ctx := context.WithValue(req.Context(), userContextKey, *user)
			req = req.WithContext(ctx)
		}
		rec := httptest.NewRecorder()
		RequireRoles(roles...)(next).ServeHTTP(rec, req)
		return rec
	}

	admin := testUser("root", "Weakpass1!", RoleAdmin)
	viewer := testUser("alice", "Weakpass1!", RoleViewer)

	t.Run("allowed role passes", func(t *testing.T) {
		rec := do(&admin, RoleAdmin, RoleEditor)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("disallowed role forbidden", func(t *testing.T) {
		rec := do(&viewer, RoleAdmin, RoleEditor)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "insufficient role")
	})

	t.Run("empty set admits any authenticated user", func(t *testing.T) {
		rec := do(&viewer)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("unauthenticated request rejected", func(t *testing.T) {
		rec := do(nil, RoleAdmin)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
