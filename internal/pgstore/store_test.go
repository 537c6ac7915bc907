package pgstore

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lucasnoah/fixfactory/internal/catalog"
	"github.com/lucasnoah/fixfactory/internal/pipeline"
)

// flexibleSQLMatcher makes a whitespace-insensitive regex for a statement.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func sampleRun() *pipeline.AnalysisRun {
	ts := time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC)
	return &pipeline.AnalysisRun{
		ID:     "6f1c2b0e-8d4a-4c53-9d0e-0d1f5b7a9c11",
		Source: "app.log",
		Phase:  pipeline.PhaseCompleted,
		Records: []pipeline.ErrorRecord{
			{ID: "rec-001", Kind: catalog.DivisionByZero, Message: "ZeroDivisionError: division by zero",
				Location: &pipeline.Location{File: "calculator.py", Line: 25}, Timestamp: &ts,
				Severity: catalog.SeverityHigh, Signature: "ZeroDivisionError"},
			{ID: "rec-002", Kind: catalog.Unclassified, Message: "odd", Severity: catalog.SeverityLow},
		},
		Suggestions: map[string]pipeline.FixSuggestion{
			"rec-001": {RecordID: "rec-001", Kind: catalog.DivisionByZero, Title: "Guard the divisor against zero",
				Confidence: 0.9, Identifiers: map[string]string{"denominator": "b"}},
		},
		StartedAt:  ts,
		FinishedAt: ts.Add(time.Second),
	}
}

func TestNew(t *testing.T) {
	t.Run("propagates ping failure", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, nil)
	require.NoError(t, err)

	mockPool.ExpectExec("CREATE TABLE IF NOT EXISTS analysis_runs").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSaveRun(t *testing.T) {
	ctx := context.Background()

	t.Run("writes run, records and suggestions", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		core, logs := observer.New(zapcore.ErrorLevel)
		mockPool.ExpectPing()
		s, err := New(ctx, mockPool, zap.New(core))
		require.NoError(t, err)

		run := sampleRun()
		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(upsertRunSQL)).
			WithArgs(run.ID, "app.log", "completed", "", run.StartedAt, run.FinishedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec("DELETE FROM fix_suggestions").WithArgs(run.ID).WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectExec("DELETE FROM error_records").WithArgs(run.ID).WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectCopyFrom(pgx.Identifier{"error_records"}, recordColumns).WillReturnResult(2)
		mockPool.ExpectCopyFrom(pgx.Identifier{"fix_suggestions"}, suggestionColumns).WillReturnResult(1)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.Consume(ctx, run))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Zero(t, logs.Len(), "closed-transaction rollback must not be logged")
	})

	t.Run("rolls back when copy fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing()
		s, err := New(ctx, mockPool, nil)
		require.NoError(t, err)

		run := sampleRun()
		copyErr := errors.New("copy failed")
		mockPool.ExpectBegin()
		mockPool.ExpectExec("INSERT INTO analysis_runs").WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec("DELETE FROM fix_suggestions").WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectExec("DELETE FROM error_records").WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectCopyFrom(pgx.Identifier{"error_records"}, recordColumns).WillReturnError(copyErr)
		mockPool.ExpectRollback()

		err = s.SaveRun(ctx, run)
		require.Error(t, err)
		assert.ErrorIs(t, err, copyErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("detects short copy", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing()
		s, err := New(ctx, mockPool, nil)
		require.NoError(t, err)

		mockPool.ExpectBegin()
		mockPool.ExpectExec("INSERT INTO analysis_runs").WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec("DELETE FROM fix_suggestions").WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectExec("DELETE FROM error_records").WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectCopyFrom(pgx.Identifier{"error_records"}, recordColumns).WillReturnResult(1)
		mockPool.ExpectRollback()

		err = s.SaveRun(ctx, sampleRun())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected 2 rows, got 1")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestRecordRows(t *testing.T) {
	run := sampleRun()
	rows := recordRows(run.ID, run.Ordered())
	require.Len(t, rows, 2)
	assert.Equal(t, "calculator.py", rows[0][6])
	assert.Equal(t, 25, rows[0][7])
	assert.Equal(t, "high", rows[0][4])
	assert.Nil(t, rows[1][6], "missing location stores NULL")
	assert.Nil(t, rows[1][9], "empty signature stores NULL")
}
