package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/datagoal/datagoal/internal/models"
)

// HTTPGenerator asks the external orchestration pipeline to (re)generate a
// run's report. The pipeline works asynchronously; its terminal outcome comes
// back through Controller.CompleteGeneration.
type HTTPGenerator struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPGenerator creates a generator client for the pipeline endpoint.
func NewHTTPGenerator(endpoint, apiKey string) *HTTPGenerator {
	return &HTTPGenerator{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type generateRequest struct {
	RunID     string `json:"run_id"`
	MeetingID string `json:"meeting_id"`
}

// StartGeneration posts a regeneration request for the run.
func (g *HTTPGenerator) StartGeneration(ctx context.Context, run *models.DeliveryRun) error {
	body, err := json.Marshal(generateRequest{RunID: run.ID, MeetingID: run.MeetingID})
	if err != nil {
		return fmt.Errorf("delivery: marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("delivery: create generate request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivery: generate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delivery: pipeline returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
