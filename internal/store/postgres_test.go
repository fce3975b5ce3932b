package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pauxiel/goalwhisper/pkg/analysis"
)

// fakeRow feeds scanRecord the column values a Postgres row would carry.
type fakeRow struct {
	vals []any
	err  error
}

func (f *fakeRow) Scan(dest ...any) error {
	if f.err != nil {
		return f.err
	}
	if len(dest) != len(f.vals) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = f.vals[i].(string)
		case *int64:
			*p = f.vals[i].(int64)
		case *time.Time:
			*p = f.vals[i].(time.Time)
		case *sql.NullTime:
			*p = f.vals[i].(sql.NullTime)
		case *[]byte:
			if f.vals[i] == nil {
				*p = nil
			} else {
				*p = f.vals[i].([]byte)
			}
		default:
			return errors.New("unexpected scan destination")
		}
	}
	return nil
}

func TestScanRecord_RoundTripsStoredColumns(t *testing.T) {
	createdAt := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	completedAt := createdAt.Add(3 * time.Minute)
	tickets := []byte(`{"label":{"jobId":"j1","kind":"label","status":"succeeded"}}`)
	report := []byte(`{"summary":"done"}`)

	row := &fakeRow{vals: []any{
		"match-mp4", "match.mp4", int64(1024), "match.mp4",
		"completed", createdAt, sql.NullTime{Time: completedAt, Valid: true}, "",
		tickets, report,
	}}

	rec, err := scanRecord(row)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if rec.VideoID != "match-mp4" || rec.VideoKey != "match.mp4" || rec.SizeHint != 1024 {
		t.Fatalf("identity columns wrong: %+v", rec)
	}
	if rec.Status != "completed" {
		t.Fatalf("status = %q", rec.Status)
	}
	if rec.CompletedAt == nil || !rec.CompletedAt.Equal(completedAt) {
		t.Fatalf("completedAt = %v", rec.CompletedAt)
	}
	ticket := rec.Tickets[analysis.KindLabel]
	if ticket == nil || ticket.JobID != "j1" || ticket.Status != analysis.JobSucceeded {
		t.Fatalf("tickets not decoded: %+v", rec.Tickets)
	}
	if string(rec.Report) != string(report) {
		t.Fatalf("report = %s", rec.Report)
	}
}

func TestScanRecord_NullColumns(t *testing.T) {
	row := &fakeRow{vals: []any{
		"match-mp4", "match.mp4", int64(0), "",
		"processing", time.Now(), sql.NullTime{}, "",
		[]byte(`{}`), nil,
	}}

	rec, err := scanRecord(row)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if rec.CompletedAt != nil {
		t.Fatalf("null completed_at decoded as %v", rec.CompletedAt)
	}
	if len(rec.Report) != 0 {
		t.Fatalf("null report decoded as %s", rec.Report)
	}
	if rec.Tickets == nil || len(rec.Tickets) != 0 {
		t.Fatalf("tickets = %+v, want empty map", rec.Tickets)
	}
}

func TestScanRecord_NoRowsIsNotFound(t *testing.T) {
	row := &fakeRow{err: sql.ErrNoRows}

	if _, err := scanRecord(row); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestScanRecord_MalformedTickets(t *testing.T) {
	row := &fakeRow{vals: []any{
		"match-mp4", "match.mp4", int64(0), "",
		"processing", time.Now(), sql.NullTime{}, "",
		[]byte(`not json`), nil,
	}}

	if _, err := scanRecord(row); err == nil {
		t.Fatalf("expected unmarshal error")
	}
}

func TestNullableJSON(t *testing.T) {
	if got := nullableJSON(nil); got != nil {
		t.Fatalf("nil blob = %v, want nil", got)
	}
	if got := nullableJSON(json.RawMessage{}); got != nil {
		t.Fatalf("empty blob = %v, want nil", got)
	}
	got := nullableJSON(json.RawMessage(`{"a":1}`))
	b, ok := got.([]byte)
	if !ok || string(b) != `{"a":1}` {
		t.Fatalf("blob = %v", got)
	}
}
