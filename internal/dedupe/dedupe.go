package dedupe

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// Tracker counts repeated upload events per video. A re-delivered upload
// notification must not restart an analysis; the seen count is echoed in
// the submit response so callers can tell a replay from a first sighting.
type Tracker struct {
	db *sql.DB
}

// NewTracker creates an upload-event dedupe tracker.
func NewTracker(db *sql.DB) (*Tracker, error) {
	tracker := &Tracker{db: db}

	if err := tracker.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure upload_dedupe table: %w", err)
	}

	return tracker, nil
}

func (t *Tracker) ensureTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS upload_dedupe (
			video_id TEXT PRIMARY KEY,
			video_key TEXT,
			first_seen_at TIMESTAMPTZ DEFAULT NOW(),
			last_seen_at TIMESTAMPTZ DEFAULT NOW(),
			seen_count INTEGER DEFAULT 1
		)
	`

	_, err := t.db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create upload_dedupe table: %w", err)
	}

	log.Printf("✓ upload_dedupe table ready")
	return nil
}

// Record records one upload event and returns how many times this video
// has been seen, including this one.
func (t *Tracker) Record(ctx context.Context, videoID, videoKey string) (int, error) {
	query := `
		INSERT INTO upload_dedupe (video_id, video_key, first_seen_at, last_seen_at, seen_count)
		VALUES ($1, $2, NOW(), NOW(), 1)
		ON CONFLICT (video_id) DO UPDATE
		SET last_seen_at = NOW(),
		    seen_count = upload_dedupe.seen_count + 1
		RETURNING seen_count
	`

	var seenCount int
	err := t.db.QueryRowContext(ctx, query, videoID, videoKey).Scan(&seenCount)
	if err != nil {
		return 0, fmt.Errorf("failed to record upload event: %w", err)
	}

	return seenCount, nil
}

// GetSeenCount retrieves the seen count for a video id, zero when the
// video was never seen.
func (t *Tracker) GetSeenCount(ctx context.Context, videoID string) (int, error) {
	query := `SELECT seen_count FROM upload_dedupe WHERE video_id = $1`

	var seenCount int
	err := t.db.QueryRowContext(ctx, query, videoID).Scan(&seenCount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get seen count: %w", err)
	}

	return seenCount, nil
}
