package ingestion

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func ValidStatus(value string) bool {
	switch Status(value) {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Ingestion is one processing job for a document, executed by the external
// worker.
type Ingestion struct {
	ID          uuid.UUID       `json:"id"`
	DocumentID  uuid.UUID       `json:"documentId"`
	Status      Status          `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	TriggeredBy uuid.UUID       `json:"triggeredBy"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}
