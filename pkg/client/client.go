package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pauxiel/goalwhisper/pkg/analysis"
)

// ErrTimedOut is returned by WaitForReport when the analysis does not
// reach a terminal state before the deadline.
var ErrTimedOut = errors.New("timed out waiting for analysis")

// ErrAnalysisFailed is returned by WaitForReport when the analysis
// reaches the failed state.
var ErrAnalysisFailed = errors.New("analysis failed")

// Client is an HTTP client for the video analysis service
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new analysis client
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewWithHTTPClient creates a new analysis client with a custom HTTP client
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// Submit reports a video upload event and starts its analysis
func (c *Client) Submit(ctx context.Context, req analysis.SubmitRequest) (*analysis.SubmitResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/videos", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var submitResp analysis.SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &submitResp, nil
}

// GetAnalysis polls the current state of one analysis record
func (c *Client) GetAnalysis(ctx context.Context, videoID string) (*analysis.RecordResponse, error) {
	url := fmt.Sprintf("%s/v1/videos/%s", c.baseURL, videoID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var record analysis.RecordResponse
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &record, nil
}

// Refresh asks the service to re-check outstanding jobs for one analysis
func (c *Client) Refresh(ctx context.Context, videoID string) (*analysis.RecordResponse, error) {
	url := fmt.Sprintf("%s/v1/videos/%s/refresh", c.baseURL, videoID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var record analysis.RecordResponse
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &record, nil
}

// WaitForReport triggers refreshes at the given interval until the
// analysis completes, fails, or the timeout elapses. On completion it
// returns the record carrying the report.
func (c *Client) WaitForReport(ctx context.Context, videoID string, interval, timeout time.Duration) (*analysis.RecordResponse, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	deadline := time.Now().Add(timeout)

	for {
		record, err := c.Refresh(ctx, videoID)
		if err != nil {
			return nil, err
		}

		switch record.Status {
		case "completed":
			return record, nil
		case "failed":
			return record, fmt.Errorf("%w: %s", ErrAnalysisFailed, record.Error)
		}

		if time.Now().Add(interval).After(deadline) {
			return record, ErrTimedOut
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}
