package store

import (
	"context"
	"sort"
	"sync"

	"github.com/pauxiel/goalwhisper/internal/model"
)

// MemoryStore is an in-process record store for standalone runs and
// tests. All methods are safe for concurrent use; the mutex gives the
// same per-record atomicity the Postgres store gets from conditional
// writes.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*model.Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*model.Record),
	}
}

func (s *MemoryStore) Create(ctx context.Context, rec *model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.VideoID]; ok {
		return ErrExists
	}
	s.records[rec.VideoID] = rec.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, videoID string) (*model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[videoID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].VideoID < out[j].VideoID
	})
	return out, nil
}

func (s *MemoryStore) PutTicket(ctx context.Context, videoID string, ticket *model.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[videoID]
	if !ok {
		return ErrNotFound
	}

	if existing, ok := rec.Tickets[ticket.Kind]; ok {
		if !model.TicketCanTransition(existing.Status, ticket.Status) {
			return ErrConflict
		}
	}

	tc := *ticket
	rec.Tickets[ticket.Kind] = &tc
	return nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, videoID, expectedStatus string, mutate func(*model.Record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[videoID]
	if !ok {
		return ErrNotFound
	}
	if rec.Status != expectedStatus {
		return ErrConflict
	}

	next := rec.Clone()
	if err := mutate(next); err != nil {
		return err
	}
	// Tickets are owned by PutTicket; keep the stored ones so mutate
	// cannot overwrite them, matching the Postgres store.
	next.Tickets = rec.Tickets
	s.records[videoID] = next
	return nil
}
