package document

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func ValidStatus(value string) bool {
	switch Status(value) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

type Document struct {
	ID         uuid.UUID       `json:"id"`
	Title      string          `json:"title"`
	Filename   string          `json:"filename"`
	FileKey    string          `json:"-"`
	Status     Status          `json:"status"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	UploadedBy uuid.UUID       `json:"uploadedBy"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}
