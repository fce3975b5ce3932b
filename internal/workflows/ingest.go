package workflows

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/pauxiel/goalwhisper/internal/model"
	"github.com/pauxiel/goalwhisper/internal/store"
	"github.com/pauxiel/goalwhisper/pkg/analysis"
)

// JobSubmitter starts the detection jobs for an uploaded video
type JobSubmitter interface {
	SubmitJobs(ctx context.Context, req analysis.SubmitRequest) (*model.Record, error)
}

// DedupeTracker records repeated uploads of the same key
type DedupeTracker interface {
	Record(ctx context.Context, videoID, videoKey string) (int, error)
}

// IngestWorkflow handles a video upload event: it records the upload in
// the dedupe ledger and submits the detection jobs.
type IngestWorkflow struct {
	submitter JobSubmitter
	dedupe    DedupeTracker
}

// NewIngestWorkflow creates the ingest workflow. The dedupe tracker is
// optional; pass nil when no ledger is configured.
func NewIngestWorkflow(submitter JobSubmitter, dedupe DedupeTracker) *IngestWorkflow {
	return &IngestWorkflow{
		submitter: submitter,
		dedupe:    dedupe,
	}
}

// Name returns the workflow name
func (w *IngestWorkflow) Name() string {
	return "IngestWorkflow"
}

// Execute runs the ingest workflow
func (w *IngestWorkflow) Execute(wctx *WorkflowContext) (*WorkflowResult, error) {
	log.Printf("[%s] Starting ingest workflow for video_key=%s", wctx.RunID, wctx.Request.VideoKey)

	// Step 1: Validate request
	if wctx.Request.VideoKey == "" {
		log.Printf("[%s] Validation failed: empty video key", wctx.RunID)
		return &WorkflowResult{
			Success: false,
			Error:   ErrInvalidRequest,
		}, ErrInvalidRequest
	}

	videoID := model.VideoIDFromKey(wctx.Request.VideoKey)

	// Step 2: Record the upload in the dedupe ledger
	seenCount := 0
	if w.dedupe != nil {
		n, err := w.dedupe.Record(wctx.Ctx, videoID, wctx.Request.VideoKey)
		if err != nil {
			log.Printf("[%s] Failed to record dedupe entry: %v", wctx.RunID, err)
			// Continue anyway - the ledger is advisory
		} else {
			seenCount = n
			if n > 1 {
				log.Printf("[%s] Repeat upload detected (seen %d times): %s", wctx.RunID, n, wctx.Request.VideoKey)
			}
		}
	}

	// Step 3: Submit detection jobs
	rec, err := w.submitter.SubmitJobs(wctx.Ctx, wctx.Request)
	if errors.Is(err, store.ErrExists) {
		log.Printf("[%s] Analysis already exists for %s (status=%s) - skipping", wctx.RunID, videoID, rec.Status)
		return &WorkflowResult{
			Success: true,
			Outputs: map[string]interface{}{
				"video_id":   rec.VideoID,
				"status":     rec.Status,
				"seen_count": seenCount,
				"skipped":    true,
			},
		}, nil
	}
	if err != nil {
		log.Printf("[%s] Job submission failed: %v", wctx.RunID, err)
		return &WorkflowResult{
			Success: false,
			Error:   fmt.Errorf("job submission failed: %w", err),
		}, err
	}

	log.Printf("[%s] ✓ Ingest complete: video_id=%s, %d jobs started", wctx.RunID, rec.VideoID, len(rec.Tickets))

	return &WorkflowResult{
		Success: true,
		Outputs: map[string]interface{}{
			"video_id":   rec.VideoID,
			"status":     rec.Status,
			"seen_count": seenCount,
			"jobs":       len(rec.Tickets),
		},
	}, nil
}
