// Package orchestrator drives analysis records through their lifecycle:
// submission, in-flight job tracking, finalization and failure capture.
// It is the only component that writes to the record store.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/pauxiel/goalwhisper/internal/aggregate"
	"github.com/pauxiel/goalwhisper/internal/metrics"
	"github.com/pauxiel/goalwhisper/internal/model"
	"github.com/pauxiel/goalwhisper/internal/provider"
	"github.com/pauxiel/goalwhisper/internal/report"
	"github.com/pauxiel/goalwhisper/internal/store"
	"github.com/pauxiel/goalwhisper/pkg/analysis"
)

// RefreshOutcome is the result of one status refresh.
type RefreshOutcome int

const (
	// OutcomeStillPending means at least one job is still running.
	OutcomeStillPending RefreshOutcome = iota

	// OutcomeCompleted means the record holds its merged report.
	OutcomeCompleted

	// OutcomeFailed means the record ended failed.
	OutcomeFailed
)

func (o RefreshOutcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	default:
		return "still_pending"
	}
}

// Orchestrator coordinates one record's lifecycle against the capability
// provider and the record store. Both collaborators are injected so
// tests can substitute fakes.
type Orchestrator struct {
	provider provider.Provider
	store    store.Store
	kinds    []string
	logger   *log.Logger
}

// New creates an orchestrator. The job kinds submitted per video are the
// required detection kinds plus tracking when the provider supports it.
func New(p provider.Provider, s store.Store, logger *log.Logger) *Orchestrator {
	kinds := analysis.RequiredKinds()
	for _, k := range p.Kinds() {
		if k == analysis.KindTrack {
			kinds = append(kinds, analysis.KindTrack)
		}
	}

	return &Orchestrator{
		provider: p,
		store:    s,
		kinds:    kinds,
		logger:   logger,
	}
}

// SubmitJobs creates a record for an upload event and starts one
// detection job per kind. Submission is all-or-nothing for the caller:
// any submit failure marks the record failed immediately, but tickets
// already created are left in place for diagnostics.
//
// A video that is already tracked is not resubmitted; the existing
// record is returned alongside store.ErrExists.
func (o *Orchestrator) SubmitJobs(ctx context.Context, req analysis.SubmitRequest) (*model.Record, error) {
	if req.VideoKey == "" {
		return nil, fmt.Errorf("video key is required")
	}

	rec := model.NewRecord(req.VideoKey, req.SizeHint, req.NameHint, time.Now())
	o.logger.Printf("[%s] Starting analysis for video key: %s", rec.VideoID, req.VideoKey)

	if err := o.store.Create(ctx, rec); err != nil {
		if errors.Is(err, store.ErrExists) {
			o.logger.Printf("[%s] Video already tracked, not resubmitting", rec.VideoID)
			existing, gerr := o.store.Get(ctx, rec.VideoID)
			if gerr != nil {
				return nil, fmt.Errorf("failed to load existing record: %w", gerr)
			}
			return existing, fmt.Errorf("video %s: %w", rec.VideoID, store.ErrExists)
		}
		return nil, fmt.Errorf("failed to create record: %w", err)
	}
	metrics.VideosSubmitted.Inc()

	for _, kind := range o.kinds {
		jobID, err := o.provider.Submit(ctx, kind, rec.VideoKey, rec.VideoID)
		if err != nil {
			o.logger.Printf("[%s] ERROR: %s job submission failed: %v", rec.VideoID, kind, err)
			return o.failRecord(ctx, rec, model.StatusProcessing,
				fmt.Sprintf("%s job submission failed: %v", kind, err))
		}

		ticket := &model.Ticket{JobID: jobID, Kind: kind, Status: analysis.JobPending}
		if err := o.store.PutTicket(ctx, rec.VideoID, ticket); err != nil {
			o.logger.Printf("[%s] ERROR: failed to store %s ticket: %v", rec.VideoID, kind, err)
			return o.failRecord(ctx, rec, model.StatusProcessing,
				fmt.Sprintf("failed to store %s ticket: %v", kind, err))
		}
		rec.Tickets[kind] = ticket
		metrics.JobsSubmitted.WithLabelValues(kind).Inc()
		o.logger.Printf("[%s] Submitted %s job: %s", rec.VideoID, kind, jobID)
	}

	err := o.store.UpdateStatus(ctx, rec.VideoID, model.StatusProcessing, func(r *model.Record) error {
		return r.Transition(model.StatusAnalyzing)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to move record to analyzing: %w", err)
	}

	updated, err := o.store.Get(ctx, rec.VideoID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload record: %w", err)
	}
	o.logger.Printf("[%s] All %d jobs submitted, record analyzing", rec.VideoID, len(o.kinds))
	return updated, nil
}

// Refresh queries the provider for every ticket still awaiting a usable
// terminal result, then finalizes or fails the record when all jobs are
// done. A refresh on an already-terminal record is a read-only no-op.
func (o *Orchestrator) Refresh(ctx context.Context, videoID string) (RefreshOutcome, *model.Record, error) {
	rec, err := o.store.Get(ctx, videoID)
	if err != nil {
		return OutcomeStillPending, nil, err
	}

	if rec.Terminal() {
		return terminalOutcome(rec), rec, nil
	}
	if rec.Status == model.StatusProcessing {
		// Submission still in flight; nothing to poll yet.
		return OutcomeStillPending, rec, nil
	}

	o.refreshTickets(ctx, rec)

	out := aggregate.Evaluate(o.expectedKinds(rec), rec.Tickets)
	metrics.RefreshOutcomes.WithLabelValues(out.Decision.String()).Inc()

	switch out.Decision {
	case aggregate.AllFailed:
		failure := fmt.Sprintf("all analysis jobs failed: %s", strings.Join(out.FailedKinds, ", "))
		o.logger.Printf("[%s] %s", videoID, failure)
		return o.finishFailed(ctx, videoID, failure)

	case aggregate.ReadyToFinalize:
		if len(out.FailedKinds) > 0 {
			o.logger.Printf("[%s] Finalizing with partial results, failed kinds: %s",
				videoID, strings.Join(out.FailedKinds, ", "))
		}
		return o.finalize(ctx, videoID, out.Succeeded)

	default:
		return OutcomeStillPending, rec, nil
	}
}

// refreshTickets polls every ticket that is pending or succeeded without
// its payload, updating rec in place as statuses land. Transient poll
// errors leave the ticket as is; they are retried on the next trigger.
func (o *Orchestrator) refreshTickets(ctx context.Context, rec *model.Record) {
	for _, kind := range o.expectedKinds(rec) {
		t, ok := rec.Tickets[kind]
		if !ok {
			continue
		}
		needsPoll := t.Status == analysis.JobPending ||
			(t.Status == analysis.JobSucceeded && t.Payload == nil)
		if !needsPoll {
			continue
		}

		res, err := o.provider.Poll(ctx, kind, t.JobID)
		if err != nil {
			metrics.TransientPollErrors.Inc()
			o.logger.Printf("[%s] Transient error polling %s job %s, will retry: %v",
				rec.VideoID, kind, t.JobID, err)
			continue
		}

		switch res.Status {
		case analysis.JobPending:
			// no store write for an unchanged status

		case analysis.JobSucceeded:
			next := &model.Ticket{JobID: t.JobID, Kind: kind, Status: analysis.JobSucceeded}
			if err := provider.ValidatePayload(kind, res.Payload); err != nil {
				o.logger.Printf("[%s] ERROR: %s job %s returned invalid payload: %v",
					rec.VideoID, kind, t.JobID, err)
				next.Status = analysis.JobFailed
				next.Message = fmt.Sprintf("invalid payload: %v", err)
			} else {
				next.Payload = res.Payload
			}
			o.writeTicket(ctx, rec, next)

		case analysis.JobFailed:
			o.logger.Printf("[%s] %s job %s failed: %s", rec.VideoID, kind, t.JobID, res.Message)
			o.writeTicket(ctx, rec, &model.Ticket{
				JobID:   t.JobID,
				Kind:    kind,
				Status:  analysis.JobFailed,
				Message: res.Message,
			})
		}
	}
}

func (o *Orchestrator) writeTicket(ctx context.Context, rec *model.Record, ticket *model.Ticket) {
	if err := o.store.PutTicket(ctx, rec.VideoID, ticket); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// A concurrent writer already placed a terminal status for
			// this ticket; keep the stored one.
			o.logger.Printf("[%s] %s ticket already terminal, keeping stored status", rec.VideoID, ticket.Kind)
			return
		}
		o.logger.Printf("[%s] ERROR: failed to store %s ticket update: %v", rec.VideoID, ticket.Kind, err)
		return
	}
	rec.Tickets[ticket.Kind] = ticket
}

// finalize builds the merged report and writes it with a conditional
// transition. Losing the race to a concurrent finalizer is success: the
// stored terminal record is returned untouched.
func (o *Orchestrator) finalize(ctx context.Context, videoID string, payloads map[string]*analysis.JobPayload) (RefreshOutcome, *model.Record, error) {
	rep := report.Build(payloads)
	blob, err := json.Marshal(rep)
	if err != nil {
		return OutcomeStillPending, nil, fmt.Errorf("failed to serialize report: %w", err)
	}

	completedAt := time.Now().UTC()
	err = o.store.UpdateStatus(ctx, videoID, model.StatusAnalyzing, func(r *model.Record) error {
		if err := r.Transition(model.StatusCompleted); err != nil {
			return err
		}
		r.Report = blob
		r.CompletedAt = &completedAt
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return o.lostRace(ctx, videoID)
		}
		return OutcomeStillPending, nil, fmt.Errorf("failed to finalize record: %w", err)
	}

	rec, err := o.store.Get(ctx, videoID)
	if err != nil {
		return OutcomeStillPending, nil, fmt.Errorf("failed to reload record: %w", err)
	}
	o.logger.Printf("[%s] ✓ Analysis completed: %d scenes, %d key moments", videoID, len(rep.Scenes), len(rep.KeyMoments))
	return OutcomeCompleted, rec, nil
}

func (o *Orchestrator) finishFailed(ctx context.Context, videoID, failure string) (RefreshOutcome, *model.Record, error) {
	err := o.store.UpdateStatus(ctx, videoID, model.StatusAnalyzing, func(r *model.Record) error {
		if err := r.Transition(model.StatusFailed); err != nil {
			return err
		}
		r.Error = failure
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return o.lostRace(ctx, videoID)
		}
		return OutcomeStillPending, nil, fmt.Errorf("failed to mark record failed: %w", err)
	}

	rec, err := o.store.Get(ctx, videoID)
	if err != nil {
		return OutcomeStillPending, nil, fmt.Errorf("failed to reload record: %w", err)
	}
	return OutcomeFailed, rec, nil
}

// lostRace reloads a record after a conditional write lost to a
// concurrent caller and reports the winner's terminal state.
func (o *Orchestrator) lostRace(ctx context.Context, videoID string) (RefreshOutcome, *model.Record, error) {
	metrics.FinalizeConflicts.Inc()
	o.logger.Printf("[%s] Lost terminal-transition race, returning stored record", videoID)

	rec, err := o.store.Get(ctx, videoID)
	if err != nil {
		return OutcomeStillPending, nil, fmt.Errorf("failed to reload record after conflict: %w", err)
	}
	return terminalOutcome(rec), rec, nil
}

// Get returns the stored record verbatim. A completed record's cached
// report is returned without recomputation.
func (o *Orchestrator) Get(ctx context.Context, videoID string) (*model.Record, error) {
	return o.store.Get(ctx, videoID)
}

// List returns all records, newest first.
func (o *Orchestrator) List(ctx context.Context) ([]*model.Record, error) {
	return o.store.List(ctx)
}

// ApplyNotification applies one out-of-band job status event to its
// ticket. The update is idempotent: duplicates are no-ops, conflicting
// terminal signals are logged as anomalies and dropped, and finalization
// is left to the next Refresh.
func (o *Orchestrator) ApplyNotification(ctx context.Context, n analysis.Notification) error {
	if n.Status != analysis.JobSucceeded && n.Status != analysis.JobFailed {
		metrics.Notifications.WithLabelValues("anomaly").Inc()
		return fmt.Errorf("notification with non-terminal status %q for job %s", n.Status, n.JobID)
	}

	rec, err := o.store.Get(ctx, n.VideoID)
	if err != nil {
		metrics.Notifications.WithLabelValues("unknown").Inc()
		return fmt.Errorf("notification for unknown video %s: %w", n.VideoID, err)
	}

	if rec.Terminal() {
		metrics.Notifications.WithLabelValues("stale").Inc()
		o.logger.Printf("[%s] Notification for %s record ignored: %s job %s reported %s",
			n.VideoID, rec.Status, n.Kind, n.JobID, n.Status)
		return nil
	}

	t, ok := rec.Tickets[n.Kind]
	if !ok {
		metrics.Notifications.WithLabelValues("unknown").Inc()
		o.logger.Printf("[%s] Notification for unknown %s ticket, ignoring (job %s)", n.VideoID, n.Kind, n.JobID)
		return nil
	}
	if t.JobID != n.JobID {
		metrics.Notifications.WithLabelValues("anomaly").Inc()
		o.logger.Printf("[%s] ANOMALY: notification job id %s does not match %s ticket job %s",
			n.VideoID, n.JobID, n.Kind, t.JobID)
		return nil
	}

	if t.Status == n.Status {
		metrics.Notifications.WithLabelValues("duplicate").Inc()
		return nil
	}
	if t.Terminal() {
		metrics.Notifications.WithLabelValues("anomaly").Inc()
		o.logger.Printf("[%s] ANOMALY: conflicting terminal signals for %s job %s: stored %s, notified %s",
			n.VideoID, n.Kind, n.JobID, t.Status, n.Status)
		return nil
	}

	next := &model.Ticket{JobID: t.JobID, Kind: n.Kind, Status: n.Status, Message: n.Message}
	if err := o.store.PutTicket(ctx, n.VideoID, next); err != nil {
		if errors.Is(err, store.ErrConflict) {
			metrics.Notifications.WithLabelValues("duplicate").Inc()
			o.logger.Printf("[%s] Notification raced a terminal ticket write for %s, keeping stored status", n.VideoID, n.Kind)
			return nil
		}
		return fmt.Errorf("failed to apply notification: %w", err)
	}

	metrics.Notifications.WithLabelValues("applied").Inc()
	o.logger.Printf("[%s] Notification applied: %s job %s is %s", n.VideoID, n.Kind, n.JobID, n.Status)
	return nil
}

// failRecord conditionally marks a record failed and returns its stored
// state alongside the diagnostic error.
func (o *Orchestrator) failRecord(ctx context.Context, rec *model.Record, expected, failure string) (*model.Record, error) {
	err := o.store.UpdateStatus(ctx, rec.VideoID, expected, func(r *model.Record) error {
		if err := r.Transition(model.StatusFailed); err != nil {
			return err
		}
		r.Error = failure
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrConflict) {
		return nil, fmt.Errorf("failed to mark record failed: %w", err)
	}

	stored, gerr := o.store.Get(ctx, rec.VideoID)
	if gerr != nil {
		return nil, fmt.Errorf("failed to reload record: %w", gerr)
	}
	return stored, errors.New(failure)
}

// expectedKinds is the set of job kinds aggregation must account for:
// every required kind plus any extra kind a ticket exists for.
func (o *Orchestrator) expectedKinds(rec *model.Record) []string {
	seen := make(map[string]bool, len(o.kinds))
	kinds := make([]string, 0, len(o.kinds))
	for _, k := range o.kinds {
		seen[k] = true
		kinds = append(kinds, k)
	}
	extras := make([]string, 0, 1)
	for k := range rec.Tickets {
		if !seen[k] {
			extras = append(extras, k)
		}
	}
	sort.Strings(extras)
	return append(kinds, extras...)
}

func terminalOutcome(rec *model.Record) RefreshOutcome {
	if rec.Status == model.StatusCompleted {
		return OutcomeCompleted
	}
	return OutcomeFailed
}
