package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/loomworks/loom/internal/model"
)

// AppendRun persists a run record. Records are append-only: existing runs
// for the same (datasetID, rowIndex) are never touched.
func (db *DB) AppendRun(ctx context.Context, rec model.RunRecord) error {
	traceJSON, err := json.Marshal(rec.Trace)
	if err != nil {
		return fmt.Errorf("storage: marshal run trace: %w", err)
	}

	_, err = db.db.ExecContext(ctx, `
		INSERT INTO run_records (
			run_id, created_at, project_id, dataset_id, row_index,
			status, output_digest, missing_variables, trace
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, timeToDB(rec.CreatedAt), rec.ProjectID, rec.DatasetID, rec.RowIndex,
		string(rec.Status), rec.OutputDigest, rec.MissingVariablesCount, string(traceJSON),
	)
	if err != nil {
		return fmt.Errorf("storage: append run: %w", err)
	}
	return nil
}

// GetRun retrieves one run record by run ID, trace included.
func (db *DB) GetRun(ctx context.Context, runID string) (model.RunRecord, error) {
	var (
		rec       model.RunRecord
		createdAt string
		status    string
		traceJSON string
	)
	err := db.db.QueryRowContext(ctx, `
		SELECT run_id, created_at, project_id, dataset_id, row_index,
		       status, output_digest, missing_variables, trace
		FROM run_records WHERE run_id = ?`, runID,
	).Scan(&rec.RunID, &createdAt, &rec.ProjectID, &rec.DatasetID, &rec.RowIndex,
		&status, &rec.OutputDigest, &rec.MissingVariablesCount, &traceJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RunRecord{}, ErrNotFound
		}
		return model.RunRecord{}, fmt.Errorf("storage: get run: %w", err)
	}

	rec.Status = model.RunStatus(status)
	if err := json.Unmarshal([]byte(traceJSON), &rec.Trace); err != nil {
		return model.RunRecord{}, fmt.Errorf("storage: unmarshal run trace: %w", err)
	}
	if rec.CreatedAt, err = timeFromDB(createdAt); err != nil {
		return model.RunRecord{}, err
	}
	return rec, nil
}

// ListRuns returns run summaries for a dataset, most recent first. rowIndex
// narrows to one logical row when non-nil. limit caps the result count; a
// non-positive limit means no cap.
func (db *DB) ListRuns(ctx context.Context, datasetID string, rowIndex *int, limit int) ([]model.RunSummary, error) {
	query := `
		SELECT run_id, created_at, row_index, status, output_digest, missing_variables
		FROM run_records WHERE dataset_id = ?`
	args := []any{datasetID}
	if rowIndex != nil {
		query += ` AND row_index = ?`
		args = append(args, *rowIndex)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list runs: %w", err)
	}
	defer rows.Close()

	var summaries []model.RunSummary
	for rows.Next() {
		var (
			s         model.RunSummary
			createdAt string
			status    string
		)
		if err := rows.Scan(&s.RunID, &createdAt, &s.RowIndex, &status, &s.OutputDigest, &s.MissingVariablesCount); err != nil {
			return nil, fmt.Errorf("storage: scan run: %w", err)
		}
		s.Status = model.RunStatus(status)
		if s.CreatedAt, err = timeFromDB(createdAt); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
