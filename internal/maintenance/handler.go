package maintenance

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"docvault/internal/observability"
)

// RevocationSweeper deletes expired blacklist rows.
type RevocationSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// IngestionPruner deletes finished ingestion jobs older than a cutoff.
type IngestionPruner interface {
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

type CleanupResult struct {
	DeletedRevokedTokens int64 `json:"deleted_revoked_tokens"`
	DeletedIngestions    int64 `json:"deleted_ingestions"`
}

// CleanupHandler is the secret-guarded endpoint for external cron services.
// The same sweeps also run in-process on a schedule.
type CleanupHandler struct {
	revocations        RevocationSweeper
	ingestions         IngestionPruner
	logger             *observability.Logger
	cronSecret         string
	ingestionRetention time.Duration
}

func NewCleanupHandler(
	revocations RevocationSweeper,
	ingestions IngestionPruner,
	logger *observability.Logger,
	cronSecret string,
	ingestionRetention time.Duration,
) *CleanupHandler {
	if ingestionRetention <= 0 {
		ingestionRetention = 30 * 24 * time.Hour
	}

	return &CleanupHandler{
		revocations:        revocations,
		ingestions:         ingestions,
		logger:             logger,
		cronSecret:         strings.TrimSpace(cronSecret),
		ingestionRetention: ingestionRetention,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	result, err := h.Run(r.Context())
	if err != nil {
		h.logger.Error("cleanup_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}

// Run executes both sweeps. Called by the handler and by the cron schedule.
func (h *CleanupHandler) Run(ctx context.Context) (CleanupResult, error) {
	deletedTokens, err := h.revocations.SweepExpired(ctx)
	if err != nil {
		return CleanupResult{}, err
	}

	deletedIngestions, err := h.ingestions.DeleteStale(ctx, time.Now().UTC().Add(-h.ingestionRetention))
	if err != nil {
		return CleanupResult{}, err
	}

	result := CleanupResult{
		DeletedRevokedTokens: deletedTokens,
		DeletedIngestions:    deletedIngestions,
	}

	h.logger.Info("cleanup_completed", map[string]any{
		"deleted_revoked_tokens": result.DeletedRevokedTokens,
		"deleted_ingestions":     result.DeletedIngestions,
	})

	return result, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
