package qa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPEvaluator calls the platform's QA service over HTTP.
type HTTPEvaluator struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPEvaluator creates an evaluator for the given QA endpoint.
func NewHTTPEvaluator(endpoint, apiKey string) *HTTPEvaluator {
	return &HTTPEvaluator{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

type evaluateRequest struct {
	RunID   string `json:"run_id"`
	Content string `json:"content"`
}

type evaluateResponse struct {
	Checkpoints []Checkpoint `json:"checkpoints"`
}

// Evaluate posts the run content to the QA service and returns its checkpoints.
func (e *HTTPEvaluator) Evaluate(ctx context.Context, runID, content string) ([]Checkpoint, error) {
	body, err := json.Marshal(evaluateRequest{RunID: runID, Content: content})
	if err != nil {
		return nil, fmt.Errorf("qa: marshal evaluate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("qa: create evaluate request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qa: evaluate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("qa: evaluator returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed evaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("qa: decode evaluate response: %w", err)
	}
	return parsed.Checkpoints, nil
}
