package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/pauxiel/goalwhisper/internal/model"
	"github.com/pauxiel/goalwhisper/internal/orchestrator"
	"github.com/pauxiel/goalwhisper/internal/store"
	"github.com/pauxiel/goalwhisper/pkg/analysis"
)

// JobIngest is the workflow job name for the upload ingest path.
const JobIngest = "ingest"

// IngestRunner enqueues the ingest workflow for an upload event.
type IngestRunner interface {
	RunAsync(ctx context.Context, job string, req analysis.SubmitRequest) (string, error)
}

// DedupeTracker records repeated uploads of the same key.
type DedupeTracker interface {
	Record(ctx context.Context, videoID, videoKey string) (int, error)
}

// AnalysisHandler serves the video analysis HTTP surface
type AnalysisHandler struct {
	runner IngestRunner
	orch   *orchestrator.Orchestrator
	dedupe DedupeTracker
}

// NewAnalysisHandler creates a new analysis handler. The dedupe tracker
// is optional; pass nil when no ledger is configured.
func NewAnalysisHandler(runner IngestRunner, orch *orchestrator.Orchestrator, dedupe DedupeTracker) *AnalysisHandler {
	return &AnalysisHandler{
		runner: runner,
		orch:   orch,
		dedupe: dedupe,
	}
}

// HandleVideos handles /v1/videos - POST submits an upload event,
// GET lists analysis records newest first.
func (h *AnalysisHandler) HandleVideos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleSubmit(w, r)
	case http.MethodGet:
		h.handleList(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AnalysisHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req analysis.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	if req.VideoKey == "" {
		http.Error(w, "video_key is required", http.StatusBadRequest)
		return
	}

	videoID := model.VideoIDFromKey(req.VideoKey)

	// Record the upload in the dedupe ledger so the caller sees the
	// count immediately, before the async workflow runs.
	seenCount := 0
	if h.dedupe != nil {
		n, err := h.dedupe.Record(r.Context(), videoID, req.VideoKey)
		if err != nil {
			log.Printf("Failed to record dedupe entry for %s: %v", videoID, err)
		} else {
			seenCount = n
		}
	}

	log.Printf("Enqueueing ingest workflow: video_key=%s, video_id=%s", req.VideoKey, videoID)

	runID, err := h.runner.RunAsync(r.Context(), JobIngest, req)
	if err != nil {
		log.Printf("Failed to enqueue ingest workflow: %v", err)
		http.Error(w, fmt.Sprintf("Failed to enqueue workflow: %v", err), http.StatusInternalServerError)
		return
	}

	log.Printf("Ingest workflow enqueued: run_id=%s", runID)

	resp := analysis.SubmitResponse{
		VideoID:         videoID,
		RunID:           runID,
		DedupeSeenCount: seenCount,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(resp)
}

func (h *AnalysisHandler) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.orch.List(r.Context())
	if err != nil {
		log.Printf("Failed to list analyses: %v", err)
		http.Error(w, "Failed to list analyses", http.StatusInternalServerError)
		return
	}

	resp := analysis.ListResponse{
		Analyses: make([]analysis.Summary, 0, len(records)),
		Total:    len(records),
	}
	for _, rec := range records {
		resp.Analyses = append(resp.Analyses, toSummary(rec))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// HandleVideoByID handles /v1/videos/{videoID} - GET polls one record,
// POST to /v1/videos/{videoID}/refresh re-checks outstanding jobs.
func (h *AnalysisHandler) HandleVideoByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/videos/")
	if rest == "" {
		http.Error(w, "video_id is required", http.StatusBadRequest)
		return
	}

	if videoID, ok := strings.CutSuffix(rest, "/refresh"); ok {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.handleRefresh(w, r, videoID)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.handleGet(w, r, rest)
}

func (h *AnalysisHandler) handleGet(w http.ResponseWriter, r *http.Request, videoID string) {
	rec, err := h.orch.Get(r.Context(), videoID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Analysis not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Failed to load analysis %s: %v", videoID, err)
		http.Error(w, "Failed to load analysis", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(toRecordResponse(rec))
}

func (h *AnalysisHandler) handleRefresh(w http.ResponseWriter, r *http.Request, videoID string) {
	outcome, rec, err := h.orch.Refresh(r.Context(), videoID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Analysis not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Failed to refresh analysis %s: %v", videoID, err)
		http.Error(w, "Failed to refresh analysis", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if outcome == orchestrator.OutcomeStillPending {
		status = http.StatusAccepted
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(toRecordResponse(rec))
}

// HandleNotification handles POST /v1/notifications - applies a pushed
// job status event from the provider.
func (h *AnalysisHandler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var n analysis.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		http.Error(w, fmt.Sprintf("Invalid notification: %v", err), http.StatusBadRequest)
		return
	}
	if n.VideoID == "" || n.JobID == "" || n.Kind == "" {
		http.Error(w, "video_id, job_id and kind are required", http.StatusBadRequest)
		return
	}

	err := h.orch.ApplyNotification(r.Context(), n)
	if errors.Is(err, store.ErrNotFound) {
		// The record may not exist yet; the provider should retry.
		http.Error(w, "Analysis not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid notification: %v", err), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// HandleHealth handles GET /health
func (h *AnalysisHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// RegisterRoutes wires the analysis surface onto a mux
func (h *AnalysisHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/videos", h.HandleVideos)
	mux.HandleFunc("/v1/videos/", h.HandleVideoByID)
	mux.HandleFunc("/v1/notifications", h.HandleNotification)
	mux.HandleFunc("/health", h.HandleHealth)
}

func toSummary(rec *model.Record) analysis.Summary {
	s := analysis.Summary{
		VideoID:   rec.VideoID,
		VideoKey:  rec.VideoKey,
		Status:    rec.Status,
		CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	if rec.CompletedAt != nil {
		s.CompletedAt = rec.CompletedAt.UTC().Format(time.RFC3339)
	}
	return s
}

func toRecordResponse(rec *model.Record) analysis.RecordResponse {
	resp := analysis.RecordResponse{
		VideoID:   rec.VideoID,
		VideoKey:  rec.VideoKey,
		Status:    rec.Status,
		CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
		Error:     rec.Error,
		Report:    rec.Report,
	}
	if rec.CompletedAt != nil {
		resp.CompletedAt = rec.CompletedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
