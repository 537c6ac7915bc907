package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/pipeline"
)

// DBPool abstracts pgxpool.Pool so the store can be tested with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store writes analysis runs to PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, log: logger.Named("pgstore")}, nil
}

// Open connects to dsn with a pgx pool. The caller closes the returned pool.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("create pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS analysis_runs (
    id          UUID PRIMARY KEY,
    source      TEXT,
    phase       TEXT NOT NULL,
    reason      TEXT,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS error_records (
    run_id     UUID NOT NULL REFERENCES analysis_runs(id) ON DELETE CASCADE,
    record_id  TEXT NOT NULL,
    seq        INTEGER NOT NULL,
    kind       TEXT NOT NULL,
    severity   TEXT NOT NULL,
    message    TEXT NOT NULL,
    file       TEXT,
    line       INTEGER,
    logged_at  TIMESTAMPTZ,
    signature  TEXT,
    PRIMARY KEY (run_id, record_id)
);
CREATE TABLE IF NOT EXISTS fix_suggestions (
    run_id      UUID NOT NULL REFERENCES analysis_runs(id) ON DELETE CASCADE,
    record_id   TEXT NOT NULL,
    kind        TEXT NOT NULL,
    title       TEXT NOT NULL,
    original    TEXT,
    proposed    TEXT,
    explanation TEXT,
    prevention  TEXT,
    confidence  DOUBLE PRECISION NOT NULL,
    identifiers JSONB NOT NULL DEFAULT '{}',
    PRIMARY KEY (run_id, record_id)
);
`

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const upsertRunSQL = `
INSERT INTO analysis_runs (id, source, phase, reason, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    source = EXCLUDED.source,
    phase = EXCLUDED.phase,
    reason = EXCLUDED.reason,
    started_at = EXCLUDED.started_at,
    finished_at = EXCLUDED.finished_at;
`

var (
	recordColumns     = []string{"run_id", "record_id", "seq", "kind", "severity", "message", "file", "line", "logged_at", "signature"}
	suggestionColumns = []string{"run_id", "record_id", "kind", "title", "original", "proposed", "explanation", "prevention", "confidence", "identifiers"}
)

// SaveRun writes the run, its records and its suggestions in one transaction,
// replacing any earlier save of the same run.
func (s *Store) SaveRun(ctx context.Context, run *pipeline.AnalysisRun) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.log.Error("rollback failed", zap.Error(rbErr))
		}
	}()

	var finished any
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt.UTC()
	}
	if _, err := tx.Exec(ctx, upsertRunSQL, run.ID, run.Source, string(run.Phase), run.Reason, run.StartedAt.UTC(), finished); err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	for _, table := range []string{"fix_suggestions", "error_records"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE run_id = $1", run.ID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	pairs := run.Ordered()
	if len(pairs) > 0 {
		if err := copyRows(ctx, tx, "error_records", recordColumns, recordRows(run.ID, pairs)); err != nil {
			return err
		}
	}
	if rows, err := suggestionRows(run.ID, pairs); err != nil {
		return err
	} else if len(rows) > 0 {
		if err := copyRows(ctx, tx, "fix_suggestions", suggestionColumns, rows); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.log.Debug("saved run", zap.String("run_id", run.ID), zap.Int("records", len(pairs)))
	return nil
}

// Consume saves the run. It lets the store act as a report consumer.
func (s *Store) Consume(ctx context.Context, run *pipeline.AnalysisRun) error {
	return s.SaveRun(ctx, run)
}

func copyRows(ctx context.Context, tx pgx.Tx, table string, columns []string, rows [][]any) error {
	n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy %s: %w", table, err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("copy %s: expected %d rows, got %d", table, len(rows), n)
	}
	return nil
}

func recordRows(runID string, pairs []pipeline.Pair) [][]any {
	rows := make([][]any, 0, len(pairs))
	for i, p := range pairs {
		r := p.Record
		var file, line, loggedAt, signature any
		if r.Location != nil {
			file, line = r.Location.File, r.Location.Line
		}
		if r.Timestamp != nil {
			loggedAt = r.Timestamp.UTC()
		}
		if r.Signature != "" {
			signature = r.Signature
		}
		rows = append(rows, []any{runID, r.ID, i, string(r.Kind), r.Severity.String(), r.Message, file, line, loggedAt, signature})
	}
	return rows
}

func suggestionRows(runID string, pairs []pipeline.Pair) ([][]any, error) {
	var rows [][]any
	for _, p := range pairs {
		sg := p.Suggestion
		if sg == nil {
			continue
		}
		ids := sg.Identifiers
		if ids == nil {
			ids = map[string]string{}
		}
		idJSON, err := json.Marshal(ids)
		if err != nil {
			return nil, fmt.Errorf("marshal identifiers for %s: %w", sg.RecordID, err)
		}
		rows = append(rows, []any{
			runID, sg.RecordID, string(sg.Kind), sg.Title,
			sg.OriginalExcerpt, sg.ProposedExcerpt, sg.Explanation, sg.PreventionNote,
			sg.Confidence, json.RawMessage(idJSON),
		})
	}
	return rows, nil
}
