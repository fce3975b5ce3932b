package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pauxiel/goalwhisper/pkg/analysis"
)

// Record lifecycle statuses.
const (
	StatusProcessing = "processing"
	StatusAnalyzing  = "analyzing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var allowedTransitions = map[string]map[string]bool{
	StatusProcessing: {
		StatusAnalyzing: true,
		StatusFailed:    true,
	},
	StatusAnalyzing: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
	// terminal states admit no transitions
	StatusCompleted: {},
	StatusFailed:    {},
}

// IsKnownStatus reports whether status is a valid record status.
func IsKnownStatus(status string) bool {
	_, ok := allowedTransitions[status]
	return ok
}

// IsTerminal reports whether status is completed or failed.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// CanTransition reports whether a record may move from one status to
// another.
func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// Ticket tracks one external analysis job for a record.
type Ticket struct {
	JobID   string               `json:"jobId"`
	Kind    string               `json:"kind"`
	Status  string               `json:"status"`
	Payload *analysis.JobPayload `json:"payload,omitempty"`
	Message string               `json:"message,omitempty"`
}

// Terminal reports whether the ticket reached a terminal job status.
func (t *Ticket) Terminal() bool {
	return t.Status == analysis.JobSucceeded || t.Status == analysis.JobFailed
}

// TicketCanTransition reports whether a ticket's last known status may
// move from one job status to another. Terminal statuses never regress;
// re-applying the same status is a permitted no-op.
func TicketCanTransition(from, to string) bool {
	if from == to {
		return true
	}
	return from == analysis.JobPending &&
		(to == analysis.JobSucceeded || to == analysis.JobFailed)
}

// Record is one video's analysis lifecycle state.
type Record struct {
	VideoID     string             `json:"videoId"`
	VideoKey    string             `json:"videoKey"`
	SizeHint    int64              `json:"sizeHint,omitempty"`
	NameHint    string             `json:"nameHint,omitempty"`
	Status      string             `json:"status"`
	CreatedAt   time.Time          `json:"createdAt"`
	CompletedAt *time.Time         `json:"completedAt,omitempty"`
	Error       string             `json:"error,omitempty"`
	Tickets     map[string]*Ticket `json:"tickets"`
	Report      json.RawMessage    `json:"report,omitempty"`
}

// NewRecord creates a record in the processing state for an upload event.
func NewRecord(videoKey string, sizeHint int64, nameHint string, now time.Time) *Record {
	return &Record{
		VideoID:   VideoIDFromKey(videoKey),
		VideoKey:  videoKey,
		SizeHint:  sizeHint,
		NameHint:  nameHint,
		Status:    StatusProcessing,
		CreatedAt: now.UTC(),
		Tickets:   make(map[string]*Ticket),
	}
}

// Transition moves the record to a new status, enforcing the lifecycle
// table.
func (r *Record) Transition(to string) error {
	if !CanTransition(r.Status, to) {
		return fmt.Errorf("invalid record status transition: %q -> %q (video_id=%s)", r.Status, to, r.VideoID)
	}
	r.Status = to
	return nil
}

// Terminal reports whether the record reached completed or failed.
func (r *Record) Terminal() bool {
	return IsTerminal(r.Status)
}

// Clone returns a deep copy so stored records cannot be mutated through
// returned references.
func (r *Record) Clone() *Record {
	out := *r
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	out.Tickets = make(map[string]*Ticket, len(r.Tickets))
	for kind, t := range r.Tickets {
		tc := *t
		out.Tickets[kind] = &tc
	}
	if r.Report != nil {
		out.Report = append(json.RawMessage(nil), r.Report...)
	}
	return &out
}

// VideoIDFromKey derives the stable record identifier from a storage
// object key: every non-alphanumeric byte becomes a dash.
func VideoIDFromKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, c := range key {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}
