package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loomworks/loom/internal/model"
)

// CreateDataset inserts a new dataset and returns it with its assigned ID.
func (db *DB) CreateDataset(ctx context.Context, name string, rows []model.Row) (model.Dataset, error) {
	now := time.Now().UTC()
	d := model.Dataset{
		ID:        uuid.NewString(),
		Name:      name,
		Rows:      rows,
		CreatedAt: now,
		UpdatedAt: now,
	}

	rowsJSON, err := json.Marshal(d.Rows)
	if err != nil {
		return model.Dataset{}, fmt.Errorf("storage: marshal dataset rows: %w", err)
	}

	_, err = db.db.ExecContext(ctx,
		`INSERT INTO datasets (id, name, rows, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.Name, string(rowsJSON), timeToDB(d.CreatedAt), timeToDB(d.UpdatedAt),
	)
	if err != nil {
		return model.Dataset{}, fmt.Errorf("storage: create dataset: %w", err)
	}
	return d, nil
}

// GetDataset retrieves a dataset by ID, rows included.
func (db *DB) GetDataset(ctx context.Context, id string) (model.Dataset, error) {
	var (
		d         model.Dataset
		rowsJSON  string
		createdAt string
		updatedAt string
	)
	err := db.db.QueryRowContext(ctx,
		`SELECT id, name, rows, created_at, updated_at FROM datasets WHERE id = ?`, id,
	).Scan(&d.ID, &d.Name, &rowsJSON, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Dataset{}, ErrNotFound
		}
		return model.Dataset{}, fmt.Errorf("storage: get dataset: %w", err)
	}

	if err := json.Unmarshal([]byte(rowsJSON), &d.Rows); err != nil {
		return model.Dataset{}, fmt.Errorf("storage: unmarshal dataset rows: %w", err)
	}
	if d.CreatedAt, err = timeFromDB(createdAt); err != nil {
		return model.Dataset{}, err
	}
	if d.UpdatedAt, err = timeFromDB(updatedAt); err != nil {
		return model.Dataset{}, err
	}
	return d, nil
}

// ListDatasets returns dataset headers (no rows), newest first.
func (db *DB) ListDatasets(ctx context.Context) ([]model.Dataset, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM datasets ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list datasets: %w", err)
	}
	defer rows.Close()

	var datasets []model.Dataset
	for rows.Next() {
		var (
			d         model.Dataset
			createdAt string
			updatedAt string
		)
		if err := rows.Scan(&d.ID, &d.Name, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan dataset: %w", err)
		}
		if d.CreatedAt, err = timeFromDB(createdAt); err != nil {
			return nil, err
		}
		if d.UpdatedAt, err = timeFromDB(updatedAt); err != nil {
			return nil, err
		}
		datasets = append(datasets, d)
	}
	return datasets, rows.Err()
}
