package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pauxiel/goalwhisper/pkg/analysis"
)

// HTTPProvider talks to a remote capability provider over its REST API.
type HTTPProvider struct {
	baseURL    string
	kinds      []string
	httpClient *http.Client
}

// NewHTTPProvider creates a provider client. When no kinds are given the
// provider is assumed to support exactly the required detection kinds.
func NewHTTPProvider(baseURL string, kinds ...string) *HTTPProvider {
	if len(kinds) == 0 {
		kinds = analysis.RequiredKinds()
	}
	return &HTTPProvider{
		baseURL: baseURL,
		kinds:   kinds,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Kinds returns the job kinds the remote provider supports.
func (p *HTTPProvider) Kinds() []string {
	out := make([]string, len(p.kinds))
	copy(out, p.kinds)
	return out
}

type submitJobRequest struct {
	Kind     string `json:"kind"`
	VideoKey string `json:"video_key"`
	Tag      string `json:"tag"`
}

type submitJobResponse struct {
	JobID string `json:"job_id"`
}

type pollJobResponse struct {
	Status  string               `json:"status"`
	Payload *analysis.JobPayload `json:"payload,omitempty"`
	Message string               `json:"message,omitempty"`
}

// Submit starts one detection job via POST /v1/jobs.
func (p *HTTPProvider) Submit(ctx context.Context, kind, videoKey, tag string) (string, error) {
	body, err := json.Marshal(submitJobRequest{Kind: kind, VideoKey: videoKey, Tag: tag})
	if err != nil {
		return "", fmt.Errorf("failed to marshal submit request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/jobs", p.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("submit rejected with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var out submitJobResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode submit response: %w", err)
	}
	if out.JobID == "" {
		return "", fmt.Errorf("provider returned empty job id")
	}

	return out.JobID, nil
}

// Poll fetches one job's status via GET /v1/jobs/{kind}/{jobID}.
func (p *HTTPProvider) Poll(ctx context.Context, kind, jobID string) (*PollResult, error) {
	url := fmt.Sprintf("%s/v1/jobs/%s/%s", p.baseURL, kind, jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("poll failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var out pollJobResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode poll response: %w", err)
	}

	switch out.Status {
	case analysis.JobPending, analysis.JobSucceeded, analysis.JobFailed:
	default:
		return nil, fmt.Errorf("provider reported unknown job status %q", out.Status)
	}

	return &PollResult{
		Status:  out.Status,
		Payload: out.Payload,
		Message: out.Message,
	}, nil
}
