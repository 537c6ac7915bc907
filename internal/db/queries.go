package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lucasnoah/fixfactory/internal/pipeline"
)

// RunRow represents a row in the runs table.
type RunRow struct {
	ID              string
	Source          string
	Phase           string
	Reason          string
	RecordCount     int
	SuggestionCount int
	ErrorCount      int
	MeanConfidence  float64
	StartedAt       string
	FinishedAt      string
}

// RunEvent represents a row in the run_events table.
type RunEvent struct {
	ID        int
	RunID     string
	Event     string
	Phase     string
	Detail    string
	Timestamp string
}

// KindCount is the number of records of a kind across stored runs.
type KindCount struct {
	Kind  string
	Count int
}

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

// SaveRun stores a run and its records, replacing an earlier save of the same run.
func (d *DB) SaveRun(run *pipeline.AnalysisRun) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var mean sql.NullFloat64
	if n := len(run.Suggestions); n > 0 {
		var sum float64
		for _, s := range run.Suggestions {
			sum += s.Confidence
		}
		mean = sql.NullFloat64{Float64: sum / float64(n), Valid: true}
	}

	_, err = tx.Exec(
		`INSERT INTO runs (id, source, phase, reason, record_count, suggestion_count, error_count, mean_confidence, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   source = excluded.source, phase = excluded.phase, reason = excluded.reason,
		   record_count = excluded.record_count, suggestion_count = excluded.suggestion_count,
		   error_count = excluded.error_count, mean_confidence = excluded.mean_confidence,
		   started_at = excluded.started_at, finished_at = excluded.finished_at`,
		run.ID, run.Source, string(run.Phase), run.Reason,
		len(run.Records), len(run.Suggestions), len(run.Errors), mean,
		formatTime(run.StartedAt), formatTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM records WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	stmt, err := tx.Prepare(
		`INSERT INTO records (run_id, record_id, seq, kind, severity, message, file, line, logged_at, title, confidence)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare record insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range run.Ordered() {
		r := p.Record
		var (
			file     sql.NullString
			line     sql.NullInt64
			loggedAt sql.NullString
			title    sql.NullString
			conf     sql.NullFloat64
		)
		if r.Location != nil {
			file = sql.NullString{String: r.Location.File, Valid: true}
			line = sql.NullInt64{Int64: int64(r.Location.Line), Valid: true}
		}
		if r.Timestamp != nil {
			loggedAt = formatTime(*r.Timestamp)
		}
		if p.Suggestion != nil {
			title = sql.NullString{String: p.Suggestion.Title, Valid: true}
			conf = sql.NullFloat64{Float64: p.Suggestion.Confidence, Valid: true}
		}
		if _, err := stmt.Exec(run.ID, r.ID, i, string(r.Kind), r.Severity.String(), r.Message, file, line, loggedAt, title, conf); err != nil {
			return fmt.Errorf("insert record %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// Consume saves the run. It lets the database act as a report consumer.
func (d *DB) Consume(ctx context.Context, run *pipeline.AnalysisRun) error {
	return d.SaveRun(run)
}

// LogRunEvent inserts a run lifecycle event.
func (d *DB) LogRunEvent(runID, event string, phase pipeline.Phase, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO run_events (run_id, event, phase, detail) VALUES (?, ?, ?, ?)`,
		runID, event, string(phase), detail,
	)
	if err != nil {
		return fmt.Errorf("log run event: %w", err)
	}
	return nil
}

// GetRunEvents returns the events of a run in insertion order.
func (d *DB) GetRunEvents(runID string) ([]RunEvent, error) {
	rows, err := d.conn.Query(
		`SELECT id, run_id, event, phase, detail, timestamp FROM run_events WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query run events: %w", err)
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var e RunEvent
		var phase, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.Event, &phase, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		e.Phase = phase.String
		e.Detail = detail.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
func (d *DB) ListRuns(limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.conn.Query(
		`SELECT id, source, phase, reason, record_count, suggestion_count, error_count, mean_confidence, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRow
	for rows.Next() {
		var r RunRow
		var source, reason, finished sql.NullString
		var mean sql.NullFloat64
		if err := rows.Scan(&r.ID, &source, &r.Phase, &reason, &r.RecordCount, &r.SuggestionCount,
			&r.ErrorCount, &mean, &r.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Source = source.String
		r.Reason = reason.String
		r.FinishedAt = finished.String
		r.MeanConfidence = mean.Float64
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// KindCounts returns record counts per kind across all stored runs,
// most frequent first.
func (d *DB) KindCounts() ([]KindCount, error) {
	rows, err := d.conn.Query(
		`SELECT kind, COUNT(*) AS n FROM records GROUP BY kind ORDER BY n DESC, kind`,
	)
	if err != nil {
		return nil, fmt.Errorf("query kind counts: %w", err)
	}
	defer rows.Close()

	var counts []KindCount
	for rows.Next() {
		var c KindCount
		if err := rows.Scan(&c.Kind, &c.Count); err != nil {
			return nil, fmt.Errorf("scan kind count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
