package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Processor is the client for the external document processing service. The
// worker is a black box reached over HTTP.
type Processor struct {
	baseURL string
	client  *http.Client
}

func NewProcessor(baseURL string, timeout time.Duration) *Processor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Processor{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type processRequest struct {
	IngestionID string          `json:"ingestion_id"`
	FileKey     string          `json:"file_key"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Trigger asks the worker to process the document file. Any non-2xx response
// counts as a failure.
func (p *Processor) Trigger(ctx context.Context, ingestionID uuid.UUID, fileKey string, parameters json.RawMessage) error {
	payload, err := json.Marshal(processRequest{
		IngestionID: ingestionID.String(),
		FileKey:     fileKey,
		Parameters:  parameters,
	})
	if err != nil {
		return fmt.Errorf("encode process request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/process", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build process request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("call processing service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("processing service returned status %d", resp.StatusCode)
	}

	return nil
}
