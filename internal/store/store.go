// Package store holds the analysis record store contract and its
// implementations. The store's conditional update is the only
// concurrency-control mechanism in the system: terminal transitions are
// written as compare-and-swap on the record status, and ticket updates
// never regress a terminal job status.
package store

import (
	"context"
	"errors"

	"github.com/pauxiel/goalwhisper/internal/model"
)

var (
	// ErrNotFound means no record exists for the video id.
	ErrNotFound = errors.New("analysis record not found")

	// ErrExists means a record already exists for the video id.
	ErrExists = errors.New("analysis record already exists")

	// ErrConflict means a conditional write lost its race: the record's
	// current status did not match the expected status, or a ticket
	// update would regress a terminal job status.
	ErrConflict = errors.New("conditional update conflict")
)

// Store persists analysis records keyed by video id.
type Store interface {
	// Create stores a new record. Returns ErrExists when the video id is
	// already tracked.
	Create(ctx context.Context, rec *model.Record) error

	// Get returns the stored record verbatim, or ErrNotFound.
	Get(ctx context.Context, videoID string) (*model.Record, error)

	// List returns all records sorted by creation time descending, video
	// id ascending as tiebreaker.
	List(ctx context.Context) ([]*model.Record, error)

	// PutTicket upserts one job ticket on a record. Writes for different
	// kinds are independent. Returns ErrConflict when the stored ticket
	// already holds a different terminal status, ErrNotFound when the
	// record does not exist.
	PutTicket(ctx context.Context, videoID string, ticket *model.Ticket) error

	// UpdateStatus applies mutate to the record only if its current
	// status equals expectedStatus, as a single conditional write.
	// Mutate may change status, completedAt, error and report; tickets
	// are owned by PutTicket and any ticket change made by mutate is
	// not persisted. Returns ErrConflict when the guard fails.
	UpdateStatus(ctx context.Context, videoID, expectedStatus string, mutate func(*model.Record) error) error
}
