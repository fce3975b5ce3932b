package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pauxiel/goalwhisper/internal/model"
	"github.com/pauxiel/goalwhisper/pkg/analysis"
)

func newTestRecord(key string, createdAt time.Time) *model.Record {
	rec := model.NewRecord(key, 1024, key, createdAt)
	return rec
}

func TestMemoryStore_CreateRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := newTestRecord("match.mp4", time.Now())
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, rec); !errors.Is(err, ErrExists) {
		t.Fatalf("duplicate create: got %v, want ErrExists", err)
	}
}

func TestMemoryStore_GetUnknownReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_ListSortsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, key := range []string{"a.mp4", "b.mp4", "c.mp4"} {
		rec := newTestRecord(key, base.Add(time.Duration(i)*time.Minute))
		if err := s.Create(ctx, rec); err != nil {
			t.Fatalf("create %s: %v", key, err)
		}
	}

	recs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	want := []string{"c-mp4", "b-mp4", "a-mp4"}
	for i, id := range want {
		if recs[i].VideoID != id {
			t.Fatalf("position %d: got %s, want %s", i, recs[i].VideoID, id)
		}
	}
}

func TestMemoryStore_UpdateStatusGuard(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := newTestRecord("match.mp4", time.Now())
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := s.UpdateStatus(ctx, rec.VideoID, model.StatusProcessing, func(r *model.Record) error {
		return r.Transition(model.StatusAnalyzing)
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	// Guard against the old status now fails.
	err = s.UpdateStatus(ctx, rec.VideoID, model.StatusProcessing, func(r *model.Record) error {
		return r.Transition(model.StatusFailed)
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}

	got, err := s.Get(ctx, rec.VideoID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusAnalyzing {
		t.Fatalf("status = %q, want analyzing", got.Status)
	}
}

func TestMemoryStore_UpdateStatusMutateErrorLeavesRecordUntouched(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := newTestRecord("match.mp4", time.Now())
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	wantErr := errors.New("boom")
	err := s.UpdateStatus(ctx, rec.VideoID, model.StatusProcessing, func(r *model.Record) error {
		r.Error = "half-written"
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want mutate error", err)
	}

	got, _ := s.Get(ctx, rec.VideoID)
	if got.Error != "" {
		t.Fatalf("mutate error leaked partial write: %q", got.Error)
	}
}

func TestMemoryStore_PutTicketNeverRegressesTerminal(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := newTestRecord("match.mp4", time.Now())
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	succeeded := &model.Ticket{JobID: "j1", Kind: analysis.KindLabel, Status: analysis.JobSucceeded}
	if err := s.PutTicket(ctx, rec.VideoID, succeeded); err != nil {
		t.Fatalf("put succeeded: %v", err)
	}

	// Re-applying the same terminal status is an idempotent no-op.
	if err := s.PutTicket(ctx, rec.VideoID, succeeded); err != nil {
		t.Fatalf("idempotent put: %v", err)
	}

	failed := &model.Ticket{JobID: "j1", Kind: analysis.KindLabel, Status: analysis.JobFailed}
	if err := s.PutTicket(ctx, rec.VideoID, failed); !errors.Is(err, ErrConflict) {
		t.Fatalf("downgrade put: got %v, want ErrConflict", err)
	}

	got, _ := s.Get(ctx, rec.VideoID)
	if got.Tickets[analysis.KindLabel].Status != analysis.JobSucceeded {
		t.Fatalf("terminal ticket status regressed")
	}
}

func TestMemoryStore_TerminalRecordRoundTripsReport(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := newTestRecord("match.mp4", time.Now())
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.UpdateStatus(ctx, rec.VideoID, model.StatusProcessing, func(r *model.Record) error {
		return r.Transition(model.StatusAnalyzing)
	}); err != nil {
		t.Fatalf("to analyzing: %v", err)
	}

	blob := json.RawMessage(`{"summary":"test"}`)
	now := time.Now().UTC()
	err := s.UpdateStatus(ctx, rec.VideoID, model.StatusAnalyzing, func(r *model.Record) error {
		if err := r.Transition(model.StatusCompleted); err != nil {
			return err
		}
		r.Report = blob
		r.CompletedAt = &now
		return nil
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	first, _ := s.Get(ctx, rec.VideoID)
	second, _ := s.Get(ctx, rec.VideoID)
	if string(first.Report) != string(blob) || string(second.Report) != string(blob) {
		t.Fatalf("report blob not returned verbatim on repeat reads")
	}
	if first.CompletedAt == nil {
		t.Fatalf("completedAt not persisted")
	}
}

func TestMemoryStore_UpdateStatusLeavesTicketsToPutTicket(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := newTestRecord("match.mp4", time.Now())
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.UpdateStatus(ctx, rec.VideoID, model.StatusProcessing, func(r *model.Record) error {
		return r.Transition(model.StatusAnalyzing)
	}); err != nil {
		t.Fatalf("to analyzing: %v", err)
	}

	// A per-kind write lands before the terminal transition, the way a
	// push notification does during a refresh.
	failed := &model.Ticket{JobID: "j1", Kind: analysis.KindTrack, Status: analysis.JobFailed, Message: "backend error"}
	if err := s.PutTicket(ctx, rec.VideoID, failed); err != nil {
		t.Fatalf("put ticket: %v", err)
	}

	// The terminal transition works from its own snapshot; any ticket
	// state it carries must not overwrite the per-kind write.
	err := s.UpdateStatus(ctx, rec.VideoID, model.StatusAnalyzing, func(r *model.Record) error {
		if err := r.Transition(model.StatusCompleted); err != nil {
			return err
		}
		r.Tickets[analysis.KindTrack] = &model.Ticket{JobID: "j1", Kind: analysis.KindTrack, Status: analysis.JobPending}
		return nil
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	got, _ := s.Get(ctx, rec.VideoID)
	if got.Status != model.StatusCompleted {
		t.Fatalf("status = %q, want completed", got.Status)
	}
	ticket := got.Tickets[analysis.KindTrack]
	if ticket == nil || ticket.Status != analysis.JobFailed || ticket.Message != "backend error" {
		t.Fatalf("terminal transition clobbered the ticket: %+v", ticket)
	}
}
