package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
)

// runStore implements driven.RunStore.
type runStore struct {
	store *Store
}

var _ driven.RunStore = (*runStore)(nil)

// SaveRun records the outcome of one case. Saving the same run id again
// replaces the earlier row.
func (s *runStore) SaveRun(ctx context.Context, run domain.RunRecord) error {
	if run.RunID == "" {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, batch_id, row_id, generation, status, score, passed, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			batch_id = excluded.batch_id,
			row_id = excluded.row_id,
			generation = excluded.generation,
			status = excluded.status,
			score = excluded.score,
			passed = excluded.passed,
			error = excluded.error,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at
	`, run.RunID, nullString(run.BatchID), nullInt(run.RowID), run.Generation,
		string(run.Status), run.Score, boolToInt(run.Passed), nullString(run.Error),
		formatTime(run.StartedAt), formatTime(run.FinishedAt))
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

// ListRuns returns recent runs, newest first. A non-positive limit returns all runs.
func (s *runStore) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	query := `
		SELECT run_id, batch_id, row_id, generation, status, score, passed, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC, run_id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

func scanRun(rows *sql.Rows) (*domain.RunRecord, error) {
	var run domain.RunRecord
	var batchID, errText sql.NullString
	var rowID sql.NullInt64
	var status, startedAt, finishedAt string
	var passed int

	err := rows.Scan(&run.RunID, &batchID, &rowID, &run.Generation, &status,
		&run.Score, &passed, &errText, &startedAt, &finishedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}

	run.BatchID = batchID.String
	if rowID.Valid {
		id := int(rowID.Int64)
		run.RowID = &id
	}
	run.Status = domain.RunStatus(status)
	run.Passed = passed == 1
	run.Error = errText.String
	run.StartedAt = parseTime(startedAt)
	run.FinishedAt = parseTime(finishedAt)
	return &run, nil
}
