package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loomworks/loom/internal/model"
)

// CreateDataSource inserts a data source record. SealedURL must already be
// sealed; this layer never sees cleartext connection strings.
func (db *DB) CreateDataSource(ctx context.Context, name, kind, sealedURL string) (model.DataSource, error) {
	ds := model.DataSource{
		ID:        uuid.NewString(),
		Name:      name,
		Kind:      kind,
		SealedURL: sealedURL,
		CreatedAt: time.Now().UTC(),
	}

	_, err := db.db.ExecContext(ctx,
		`INSERT INTO data_sources (id, name, kind, sealed_url, created_at) VALUES (?, ?, ?, ?, ?)`,
		ds.ID, ds.Name, ds.Kind, ds.SealedURL, timeToDB(ds.CreatedAt),
	)
	if err != nil {
		return model.DataSource{}, fmt.Errorf("storage: create data source: %w", err)
	}
	return ds, nil
}

// GetDataSource retrieves a data source by ID, sealed URL included.
func (db *DB) GetDataSource(ctx context.Context, id string) (model.DataSource, error) {
	var (
		ds        model.DataSource
		createdAt string
	)
	err := db.db.QueryRowContext(ctx,
		`SELECT id, name, kind, sealed_url, created_at FROM data_sources WHERE id = ?`, id,
	).Scan(&ds.ID, &ds.Name, &ds.Kind, &ds.SealedURL, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.DataSource{}, ErrNotFound
		}
		return model.DataSource{}, fmt.Errorf("storage: get data source: %w", err)
	}
	if ds.CreatedAt, err = timeFromDB(createdAt); err != nil {
		return model.DataSource{}, err
	}
	return ds, nil
}

// ListDataSources returns all data source records, newest first. Sealed
// URLs are omitted; listings never need them.
func (db *DB) ListDataSources(ctx context.Context) ([]model.DataSource, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT id, name, kind, created_at FROM data_sources ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list data sources: %w", err)
	}
	defer rows.Close()

	var sources []model.DataSource
	for rows.Next() {
		var (
			ds        model.DataSource
			createdAt string
		)
		if err := rows.Scan(&ds.ID, &ds.Name, &ds.Kind, &createdAt); err != nil {
			return nil, fmt.Errorf("storage: scan data source: %w", err)
		}
		if ds.CreatedAt, err = timeFromDB(createdAt); err != nil {
			return nil, err
		}
		sources = append(sources, ds)
	}
	return sources, rows.Err()
}
