package ingestion

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"docvault/internal/auth"
	"docvault/internal/document"
	"docvault/internal/observability"
)

// Trigger starts a processing job on the external worker.
type Trigger interface {
	Trigger(ctx context.Context, ingestionID uuid.UUID, fileKey string, parameters json.RawMessage) error
}

type Handler struct {
	repo      *Repository
	documents *document.Repository
	processor Trigger
	logger    *observability.Logger
}

func NewHandler(repo *Repository, documents *document.Repository, processor Trigger, logger *observability.Logger) *Handler {
	return &Handler{repo: repo, documents: documents, processor: processor, logger: logger}
}

type createRequest struct {
	DocumentID string          `json:"document_id"`
	Parameters json.RawMessage `json:"parameters"`
}

// Create inserts a pending job for an existing document and fires the worker.
// A worker failure marks the job failed instead of dropping it.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	var body createRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	documentID, err := uuid.Parse(strings.TrimSpace(body.DocumentID))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	doc, err := h.documents.GetByID(r.Context(), documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to fetch document")
		return
	}

	job, err := h.repo.Create(r.Context(), doc.ID, user.ID)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to create ingestion")
		return
	}

	job.Status = StatusInProgress
	if err := h.repo.UpdateStatus(r.Context(), job.ID, StatusInProgress, nil, ""); err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to start ingestion")
		return
	}
	_ = h.documents.UpdateStatus(r.Context(), doc.ID, document.StatusProcessing)

	if err := h.processor.Trigger(r.Context(), job.ID, doc.FileKey, body.Parameters); err != nil {
		h.logger.Error("ingestion_trigger_failed", map[string]any{
			"ingestion_id": job.ID.String(),
			"document_id":  doc.ID.String(),
			"error":        err.Error(),
		})
		job.Status = StatusFailed
		job.Error = "processing trigger failed"
		_ = h.repo.UpdateStatus(r.Context(), job.ID, StatusFailed, nil, job.Error)
		_ = h.documents.UpdateStatus(r.Context(), doc.ID, document.StatusFailed)
	}

	writeJSON(w, http.StatusCreated, job)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	jobs, err := h.repo.ListForUser(r.Context(), user.ID, user.Role == auth.RoleAdmin)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list ingestions")
		return
	}
	if jobs == nil {
		jobs = []Ingestion{}
	}

	writeJSON(w, http.StatusOK, jobs)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ingestion id")
		return
	}

	job, err := h.repo.GetForUser(r.Context(), id, user.ID, user.Role == auth.RoleAdmin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "ingestion not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to fetch ingestion")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

type statusUpdateRequest struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// UpdateStatus lets the worker (or an admin) report the job outcome. The
// owning document's status follows the job's.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ingestion id")
		return
	}

	var body statusUpdateRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	status := Status(strings.TrimSpace(body.Status))
	if !ValidStatus(string(status)) {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	job, err := h.repo.GetForUser(r.Context(), id, uuid.Nil, true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "ingestion not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to fetch ingestion")
		return
	}

	if err := h.repo.UpdateStatus(r.Context(), job.ID, status, body.Result, body.Error); err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to update ingestion")
		return
	}

	switch status {
	case StatusCompleted:
		_ = h.documents.UpdateStatus(r.Context(), job.DocumentID, document.StatusCompleted)
	case StatusFailed:
		_ = h.documents.UpdateStatus(r.Context(), job.DocumentID, document.StatusFailed)
	}

	job, err = h.repo.GetForUser(r.Context(), id, uuid.Nil, true)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to fetch ingestion")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
