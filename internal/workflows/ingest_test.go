package workflows

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pauxiel/goalwhisper/internal/model"
	"github.com/pauxiel/goalwhisper/internal/store"
	"github.com/pauxiel/goalwhisper/pkg/analysis"
)

type fakeSubmitter struct {
	record *model.Record
	err    error
	calls  int
}

func (f *fakeSubmitter) SubmitJobs(ctx context.Context, req analysis.SubmitRequest) (*model.Record, error) {
	f.calls++
	return f.record, f.err
}

type fakeDedupe struct {
	count int
	err   error
}

func (f *fakeDedupe) Record(ctx context.Context, videoID, videoKey string) (int, error) {
	return f.count, f.err
}

func wctx(key string) *WorkflowContext {
	return &WorkflowContext{
		Ctx:     context.Background(),
		Request: analysis.SubmitRequest{VideoKey: key},
		RunID:   "run-test",
	}
}

func TestIngestWorkflow_SubmitsJobs(t *testing.T) {
	rec := model.NewRecord("match.mp4", 0, "", time.Now())
	submitter := &fakeSubmitter{record: rec}

	w := NewIngestWorkflow(submitter, &fakeDedupe{count: 1})
	result, err := w.Execute(wctx("match.mp4"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("result not successful: %+v", result)
	}
	if result.Outputs["video_id"] != rec.VideoID {
		t.Fatalf("outputs = %+v", result.Outputs)
	}
	if result.Outputs["seen_count"] != 1 {
		t.Fatalf("seen_count = %v", result.Outputs["seen_count"])
	}
}

func TestIngestWorkflow_EmptyKeyIsInvalid(t *testing.T) {
	w := NewIngestWorkflow(&fakeSubmitter{}, nil)

	result, err := w.Execute(wctx(""))
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("got %v, want ErrInvalidRequest", err)
	}
	if result.Success {
		t.Fatalf("invalid request reported success")
	}
}

func TestIngestWorkflow_ExistingAnalysisIsSkipped(t *testing.T) {
	rec := model.NewRecord("match.mp4", 0, "", time.Now())
	submitter := &fakeSubmitter{record: rec, err: fmt.Errorf("analysis exists: %w", store.ErrExists)}

	w := NewIngestWorkflow(submitter, nil)
	result, err := w.Execute(wctx("match.mp4"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("duplicate upload should succeed as a skip")
	}
	if result.Outputs["skipped"] != true {
		t.Fatalf("outputs = %+v", result.Outputs)
	}
}

func TestIngestWorkflow_DedupeErrorIsAdvisory(t *testing.T) {
	rec := model.NewRecord("match.mp4", 0, "", time.Now())
	submitter := &fakeSubmitter{record: rec}

	w := NewIngestWorkflow(submitter, &fakeDedupe{err: fmt.Errorf("ledger down")})
	result, err := w.Execute(wctx("match.mp4"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("dedupe failure must not block ingest")
	}
}

func TestIngestWorkflow_SubmitFailurePropagates(t *testing.T) {
	submitter := &fakeSubmitter{err: fmt.Errorf("provider unavailable")}

	w := NewIngestWorkflow(submitter, nil)
	result, err := w.Execute(wctx("match.mp4"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if result.Success {
		t.Fatalf("failed submission reported success")
	}
}

func TestRunner_UnknownJob(t *testing.T) {
	runner := NewWorkflowRunner(nil)

	_, err := runner.Run("no-such-job", wctx("match.mp4"))
	if !errors.Is(err, ErrWorkflowNotFound) {
		t.Fatalf("got %v, want ErrWorkflowNotFound", err)
	}
}

func TestRunner_RunDispatchesByJobName(t *testing.T) {
	rec := model.NewRecord("match.mp4", 0, "", time.Now())
	runner := NewWorkflowRunner(nil)
	runner.Register("ingest", NewIngestWorkflow(&fakeSubmitter{record: rec}, nil))

	result, err := runner.Run("ingest", wctx("match.mp4"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.Success {
		t.Fatalf("result not successful: %+v", result)
	}
}
