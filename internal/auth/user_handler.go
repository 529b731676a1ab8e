package auth

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"docvault/internal/observability"
)

// UserAdminHandler exposes the admin-only user management routes.
type UserAdminHandler struct {
	repo   *Repository
	logger *observability.Logger
}

func NewUserAdminHandler(repo *Repository, logger *observability.Logger) *UserAdminHandler {
	return &UserAdminHandler{repo: repo, logger: logger}
}

func (h *UserAdminHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("list_users_failed", map[string]any{"error": err.Error()})
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	views := make([]UserView, 0, len(users))
	for _, user := range users {
		views = append(views, user.View())
	}

	writeJSON(w, http.StatusOK, views)
}

type roleUpdateRequest struct {
	Role string `json:"role"`
}

func (h *UserAdminHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var body roleUpdateRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	role := Role(strings.TrimSpace(body.Role))
	if !ValidRole(string(role)) {
		writeError(w, http.StatusBadRequest, "unknown role")
		return
	}

	user, err := h.repo.UpdateRole(r.Context(), id, role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}

		h.logger.Error("update_user_role_failed", map[string]any{"user_id": id.String(), "error": err.Error()})
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to update user role")
		return
	}

	writeJSON(w, http.StatusOK, user.View())
}
