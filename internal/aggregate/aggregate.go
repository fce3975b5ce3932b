// Package aggregate decides when a record's job tickets are ready to
// merge. It is a pure decision function with no side effects.
package aggregate

import (
	"sort"

	"github.com/pauxiel/goalwhisper/internal/model"
	"github.com/pauxiel/goalwhisper/pkg/analysis"
)

// Decision is the readiness verdict over a record's tickets.
type Decision int

const (
	// StillPending means at least one job has not reached a usable
	// terminal state yet.
	StillPending Decision = iota

	// ReadyToFinalize means every job is terminal and at least one
	// succeeded; partial results from failed siblings are acceptable.
	ReadyToFinalize

	// AllFailed means every job ended failed.
	AllFailed
)

func (d Decision) String() string {
	switch d {
	case ReadyToFinalize:
		return "ready_to_finalize"
	case AllFailed:
		return "all_failed"
	default:
		return "still_pending"
	}
}

// Outcome carries the decision plus the material for acting on it.
type Outcome struct {
	Decision Decision

	// Succeeded maps job kind to its payload, populated when the
	// decision is ReadyToFinalize.
	Succeeded map[string]*analysis.JobPayload

	// FailedKinds lists job kinds that ended failed or were never
	// submitted, sorted for deterministic error messages.
	FailedKinds []string
}

// Evaluate inspects the tickets for every expected job kind. A kind with
// no ticket counts as failed: the only way a ticket goes missing is a
// partial submission failure, which is terminal for that job. A ticket
// marked succeeded by notification but still awaiting its payload counts
// as pending, since there is nothing to merge yet.
func Evaluate(expectedKinds []string, tickets map[string]*model.Ticket) Outcome {
	out := Outcome{
		Decision:  StillPending,
		Succeeded: make(map[string]*analysis.JobPayload),
	}

	anyPending := false
	for _, kind := range expectedKinds {
		t, ok := tickets[kind]
		if !ok {
			out.FailedKinds = append(out.FailedKinds, kind)
			continue
		}

		switch t.Status {
		case analysis.JobSucceeded:
			if t.Payload == nil {
				anyPending = true
				continue
			}
			out.Succeeded[kind] = t.Payload
		case analysis.JobFailed:
			out.FailedKinds = append(out.FailedKinds, kind)
		default:
			anyPending = true
		}
	}

	sort.Strings(out.FailedKinds)

	if anyPending {
		out.Decision = StillPending
		return out
	}
	if len(out.Succeeded) == 0 {
		out.Decision = AllFailed
		return out
	}
	out.Decision = ReadyToFinalize
	return out
}
