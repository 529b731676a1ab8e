package document

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"docvault/internal/auth"
	"docvault/internal/observability"
	"docvault/internal/storage"
)

const maxUploadBytes = 32 << 20

type Handler struct {
	repo   *Repository
	blobs  storage.BlobStore
	logger *observability.Logger
}

func NewHandler(repo *Repository, blobs storage.BlobStore, logger *observability.Logger) *Handler {
	return &Handler{repo: repo, blobs: blobs, logger: logger}
}

// Upload accepts a multipart form with a file part plus optional title and
// metadata fields. The file lands in object storage under the document id.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file part is required")
		return
	}
	defer file.Close()

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = header.Filename
	}

	var metadata json.RawMessage
	if raw := strings.TrimSpace(r.FormValue("metadata")); raw != "" {
		if !json.Valid([]byte(raw)) {
			writeError(w, http.StatusBadRequest, "metadata must be valid json")
			return
		}
		metadata = json.RawMessage(raw)
	}

	fileKey := uuid.NewString()
	contentType := header.Header.Get("Content-Type")
	if err := h.blobs.Upload(r.Context(), fileKey, file, header.Size, contentType); err != nil {
		h.logger.Error("document_upload_failed", map[string]any{"user_id": user.ID.String(), "error": err.Error()})
		sentry.CaptureException(err)
		writeError(w, http.StatusBadGateway, "failed to store file")
		return
	}

	doc, err := h.repo.Create(r.Context(), title, header.Filename, fileKey, metadata, user.ID)
	if err != nil {
		h.logger.Error("document_create_failed", map[string]any{"user_id": user.ID.String(), "error": err.Error()})
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to create document")
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	docs, err := h.repo.ListForUser(r.Context(), user.ID, user.Role == auth.RoleAdmin)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	if docs == nil {
		docs = []Document{}
	}

	writeJSON(w, http.StatusOK, docs)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// Download streams the stored file back with its original filename.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	reader, err := h.blobs.Download(r.Context(), doc.FileKey)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusBadGateway, "failed to fetch file")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = io.Copy(w, reader)
}

type updateRequest struct {
	Title    string          `json:"title"`
	Metadata json.RawMessage `json:"metadata"`
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	var body updateRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	updated, err := h.repo.Update(r.Context(), doc.ID, strings.TrimSpace(body.Title), body.Metadata)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to update document")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	if err := h.blobs.Delete(r.Context(), doc.FileKey); err != nil {
		h.logger.Error("document_blob_delete_failed", map[string]any{"document_id": doc.ID.String(), "error": err.Error()})
	}

	if err := h.repo.Delete(r.Context(), doc.ID); err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to delete document")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) loadOwned(w http.ResponseWriter, r *http.Request) (Document, bool) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return Document{}, false
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return Document{}, false
	}

	doc, err := h.repo.GetForUser(r.Context(), id, user.ID, user.Role == auth.RoleAdmin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "document not found")
			return Document{}, false
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to fetch document")
		return Document{}, false
	}

	return doc, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
