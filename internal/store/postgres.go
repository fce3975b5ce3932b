package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/pauxiel/goalwhisper/internal/model"
)

// PostgresStore persists analysis records in Postgres. One row per video
// id; tickets are embedded as a JSONB object keyed by kind, the report as
// an opaque JSONB blob. Terminal transitions are guarded by a status
// predicate on the UPDATE so concurrent finalizers converge to one
// winner.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates the store and ensures its table exists.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure analysis_records table: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) ensureTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS analysis_records (
			video_id TEXT PRIMARY KEY,
			video_key TEXT NOT NULL,
			size_hint BIGINT NOT NULL DEFAULT 0,
			name_hint TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ,
			error_text TEXT NOT NULL DEFAULT '',
			tickets JSONB NOT NULL DEFAULT '{}'::jsonb,
			report JSONB
		)
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create analysis_records table: %w", err)
	}

	log.Printf("✓ analysis_records table ready")
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, rec *model.Record) error {
	tickets, err := json.Marshal(rec.Tickets)
	if err != nil {
		return fmt.Errorf("failed to marshal tickets: %w", err)
	}

	query := `
		INSERT INTO analysis_records (video_id, video_key, size_hint, name_hint, status, created_at, completed_at, error_text, tickets, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (video_id) DO NOTHING
	`

	res, err := s.db.ExecContext(ctx, query,
		rec.VideoID, rec.VideoKey, rec.SizeHint, rec.NameHint,
		rec.Status, rec.CreatedAt, rec.CompletedAt, rec.Error,
		tickets, nullableJSON(rec.Report),
	)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read insert result: %w", err)
	}
	if affected == 0 {
		return ErrExists
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, videoID string) (*model.Record, error) {
	query := `
		SELECT video_id, video_key, size_hint, name_hint, status, created_at, completed_at, error_text, tickets, report
		FROM analysis_records
		WHERE video_id = $1
	`
	return scanRecord(s.db.QueryRowContext(ctx, query, videoID))
}

func (s *PostgresStore) List(ctx context.Context) ([]*model.Record, error) {
	query := `
		SELECT video_id, video_key, size_hint, name_hint, status, created_at, completed_at, error_text, tickets, report
		FROM analysis_records
		ORDER BY created_at DESC, video_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var out []*model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return out, nil
}

// PutTicket writes one kind's ticket with jsonb_set so concurrent writes
// for different kinds do not conflict. The WHERE clause refuses to
// regress a terminal ticket status.
func (s *PostgresStore) PutTicket(ctx context.Context, videoID string, ticket *model.Ticket) error {
	body, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("failed to marshal ticket: %w", err)
	}

	query := `
		UPDATE analysis_records
		SET tickets = jsonb_set(tickets, ARRAY[$2], $3::jsonb, true)
		WHERE video_id = $1
		  AND (
			NOT tickets ? $2
			OR tickets->$2->>'status' = 'pending'
			OR tickets->$2->>'status' = $4
		  )
	`

	res, err := s.db.ExecContext(ctx, query, videoID, ticket.Kind, body, ticket.Status)
	if err != nil {
		return fmt.Errorf("failed to put ticket: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read ticket update result: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// Guard failed: distinguish a missing record from a regression.
	if _, err := s.Get(ctx, videoID); err != nil {
		return err
	}
	return ErrConflict
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, videoID, expectedStatus string, mutate func(*model.Record) error) error {
	rec, err := s.Get(ctx, videoID)
	if err != nil {
		return err
	}
	if rec.Status != expectedStatus {
		return ErrConflict
	}

	next := rec.Clone()
	if err := mutate(next); err != nil {
		return err
	}

	// Tickets are deliberately not written back here: they belong to
	// PutTicket, and rewriting the snapshot would clobber a concurrent
	// per-kind update landing between the read and this UPDATE.
	query := `
		UPDATE analysis_records
		SET status = $3, completed_at = $4, error_text = $5, report = $6
		WHERE video_id = $1 AND status = $2
	`

	res, err := s.db.ExecContext(ctx, query,
		videoID, expectedStatus,
		next.Status, next.CompletedAt, next.Error, nullableJSON(next.Report),
	)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.Record, error) {
	var (
		rec         model.Record
		completedAt sql.NullTime
		tickets     []byte
		report      []byte
	)

	err := row.Scan(
		&rec.VideoID, &rec.VideoKey, &rec.SizeHint, &rec.NameHint,
		&rec.Status, &rec.CreatedAt, &completedAt, &rec.Error,
		&tickets, &report,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}

	if completedAt.Valid {
		t := completedAt.Time.UTC()
		rec.CompletedAt = &t
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	rec.Tickets = make(map[string]*model.Ticket)
	if len(tickets) > 0 {
		if err := json.Unmarshal(tickets, &rec.Tickets); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tickets: %w", err)
		}
	}
	if len(report) > 0 {
		rec.Report = json.RawMessage(report)
	}

	return &rec, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
