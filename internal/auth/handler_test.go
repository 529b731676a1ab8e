package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docvault/internal/observability"
)

// newTestRouter wires the auth routes the way the server does, backed by
// in-memory fakes.
func newTestRouter(t *testing.T) (*http.ServeMux, *fakeUserStore, *fakeRevocations) {
	t.Helper()

	users := newFakeUserStore()
	revocations := newFakeRevocations()
	tokens := NewTokenService(testSecret, 15*time.Minute, 7*24*time.Hour)
	throttle := NewThrottle(NewMemoryAttemptStore(15*time.Minute), 5, 15*time.Minute)
	service := NewService(users, tokens, throttle, revocations)
	handler := NewHandler(service, observability.NewNopLogger())
	authenticate := NewAuthenticate(tokens, revocations, users)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", handler.Register)
	mux.HandleFunc("POST /auth/login", handler.Login)
	mux.HandleFunc("POST /auth/refresh", handler.Refresh)
	mux.Handle("POST /auth/logout", authenticate.Middleware(http.HandlerFunc(handler.Logout)))
	mux.Handle("GET /documents", authenticate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	return mux, users, revocations
}

func doJSON(mux *http.ServeMux, method, path, body, bearer string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestAuthFlow(t *testing.T) {
	mux, _, _ := newTestRouter(t)

	// Register.
	rec := doJSON(mux, http.MethodPost, "/auth/register", `{"username":"alice","password":"Weakpass1!","role":"viewer"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created UserView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "alice", created.Username)
	assert.Equal(t, RoleViewer, created.Role)
	assert.True(t, created.IsActive)
	assert.NotContains(t, rec.Body.String(), "password")

	// Login.
	rec = doJSON(mux, http.MethodPost, "/auth/login", `{"username":"alice","password":"Weakpass1!"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var login loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	require.NotEmpty(t, login.AccessToken)
	require.NotEmpty(t, login.RefreshToken)
	assert.Equal(t, created.ID, login.User.ID)

	// The access token opens a protected route.
	rec = doJSON(mux, http.MethodGet, "/documents", "", login.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Refresh.
	rec = doJSON(mux, http.MethodPost, "/auth/refresh", `{"refresh_token":"`+login.RefreshToken+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var refreshed TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &refreshed))
	assert.NotEmpty(t, refreshed.AccessToken)

	// Logout blacklists the presented token.
	rec = doJSON(mux, http.MethodPost, "/auth/logout", "", login.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "successfully logged out")

	// Reusing it is rejected.
	rec = doJSON(mux, http.MethodGet, "/documents", "", login.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "token revoked")

	// The refreshed token still works.
	rec = doJSON(mux, http.MethodGet, "/documents", "", refreshed.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_RegisterValidation(t *testing.T) {
	mux, users, _ := newTestRouter(t)

	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"weak password", `{"username":"alice","password":"short","role":"viewer"}`, http.StatusBadRequest, "password"},
		{"bad username", `{"username":"a","password":"Weakpass1!"}`, http.StatusBadRequest, "username format is invalid"},
		{"unknown role", `{"username":"alice","password":"Weakpass1!","role":"superuser"}`, http.StatusBadRequest, "unknown role"},
		{"unknown field", `{"username":"alice","password":"Weakpass1!","admin":true}`, http.StatusBadRequest, "invalid json body"},
		{"malformed json", `{"username":`, http.StatusBadRequest, "invalid json body"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(mux, http.MethodPost, "/auth/register", tc.body, "")
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.message)
		})
	}

	assert.Equal(t, 0, users.count())
}

func TestHandler_RegisterDefaultsRoleToViewer(t *testing.T) {
	mux, _, _ := newTestRouter(t)

	rec := doJSON(mux, http.MethodPost, "/auth/register", `{"username":"alice","password":"Weakpass1!"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created UserView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, RoleViewer, created.Role)
}

func TestHandler_RegisterDuplicate(t *testing.T) {
	mux, _, _ := newTestRouter(t)

	rec := doJSON(mux, http.MethodPost, "/auth/register", `{"username":"alice","password":"Weakpass1!"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(mux, http.MethodPost, "/auth/register", `{"username":"alice","password":"Weakpass1!"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "username already taken")
}

func TestHandler_LoginFailures(t *testing.T) {
	mux, users, _ := newTestRouter(t)
	users.put(testUser("alice", "Weakpass1!", RoleViewer))

	rec := doJSON(mux, http.MethodPost, "/auth/login", `{"username":"alice","password":"wrong-Password1!"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid credentials")

	rec = doJSON(mux, http.MethodPost, "/auth/login", `{"username":"nobody","password":"Weakpass1!"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid credentials")
}

func TestHandler_LoginLockout(t *testing.T) {
	mux, users, _ := newTestRouter(t)
	users.put(testUser("alice", "Weakpass1!", RoleViewer))

	for i := 0; i < 5; i++ {
		rec := doJSON(mux, http.MethodPost, "/auth/login", `{"username":"alice","password":"wrong-Password1!"}`, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
	}

	rec := doJSON(mux, http.MethodPost, "/auth/login", `{"username":"alice","password":"Weakpass1!"}`, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "account temporarily locked")
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestHandler_RefreshFailures(t *testing.T) {
	mux, users, _ := newTestRouter(t)

	rec := doJSON(mux, http.MethodPost, "/auth/refresh", `{"refresh_token":"not-a-token"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid refresh token")

	// An access token is not accepted as a refresh token.
	users.put(testUser("alice", "Weakpass1!", RoleViewer))
	login := doJSON(mux, http.MethodPost, "/auth/login", `{"username":"alice","password":"Weakpass1!"}`, "")
	require.Equal(t, http.StatusOK, login.Code)

	var session loginResponse
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &session))

	rec = doJSON(mux, http.MethodPost, "/auth/refresh", `{"refresh_token":"`+session.AccessToken+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid refresh token")
}

func TestHandler_LogoutRequiresAuthentication(t *testing.T) {
	mux, _, _ := newTestRouter(t)

	rec := doJSON(mux, http.MethodPost, "/auth/logout", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing authorization token")
}
