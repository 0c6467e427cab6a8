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

// CreateProject inserts a new project and returns it with its assigned ID.
func (db *DB) CreateProject(ctx context.Context, name string, state model.ProjectState) (model.Project, error) {
	now := time.Now().UTC()
	p := model.Project{
		ID:        uuid.NewString(),
		Name:      name,
		State:     state,
		CreatedAt: now,
		UpdatedAt: now,
	}

	stateJSON, err := json.Marshal(p.State)
	if err != nil {
		return model.Project{}, fmt.Errorf("storage: marshal project state: %w", err)
	}

	_, err = db.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, state, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, string(stateJSON), timeToDB(p.CreatedAt), timeToDB(p.UpdatedAt),
	)
	if err != nil {
		return model.Project{}, fmt.Errorf("storage: create project: %w", err)
	}
	return p, nil
}

// GetProject retrieves a project by ID.
func (db *DB) GetProject(ctx context.Context, id string) (model.Project, error) {
	var (
		p         model.Project
		stateJSON string
		createdAt string
		updatedAt string
	)
	err := db.db.QueryRowContext(ctx,
		`SELECT id, name, state, created_at, updated_at FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &stateJSON, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Project{}, ErrNotFound
		}
		return model.Project{}, fmt.Errorf("storage: get project: %w", err)
	}

	if err := json.Unmarshal([]byte(stateJSON), &p.State); err != nil {
		return model.Project{}, fmt.Errorf("storage: unmarshal project state: %w", err)
	}
	if p.CreatedAt, err = timeFromDB(createdAt); err != nil {
		return model.Project{}, err
	}
	if p.UpdatedAt, err = timeFromDB(updatedAt); err != nil {
		return model.Project{}, err
	}
	return p, nil
}

// UpdateProjectState replaces a project's graph snapshot.
func (db *DB) UpdateProjectState(ctx context.Context, id string, state model.ProjectState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("storage: marshal project state: %w", err)
	}

	res, err := db.db.ExecContext(ctx,
		`UPDATE projects SET state = ?, updated_at = ? WHERE id = ?`,
		string(stateJSON), timeToDB(time.Now().UTC()), id,
	)
	if err != nil {
		return fmt.Errorf("storage: update project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: update project: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListProjects returns all projects ordered by creation time, newest first.
func (db *DB) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT id, name, state, created_at, updated_at FROM projects ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list projects: %w", err)
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		var (
			p         model.Project
			stateJSON string
			createdAt string
			updatedAt string
		)
		if err := rows.Scan(&p.ID, &p.Name, &stateJSON, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan project: %w", err)
		}
		if err := json.Unmarshal([]byte(stateJSON), &p.State); err != nil {
			return nil, fmt.Errorf("storage: unmarshal project state: %w", err)
		}
		if p.CreatedAt, err = timeFromDB(createdAt); err != nil {
			return nil, err
		}
		if p.UpdatedAt, err = timeFromDB(updatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}
