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

// CreateSession inserts a chat session with its initial messages.
func (db *DB) CreateSession(ctx context.Context, title string, messages []model.ChatMessage) (model.Session, error) {
	now := time.Now().UTC()
	s := model.Session{
		ID:        uuid.NewString(),
		Title:     title,
		Messages:  messages,
		CreatedAt: now,
		UpdatedAt: now,
	}

	msgJSON, err := json.Marshal(s.Messages)
	if err != nil {
		return model.Session{}, fmt.Errorf("storage: marshal session messages: %w", err)
	}

	_, err = db.db.ExecContext(ctx,
		`INSERT INTO sessions (id, title, messages, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.Title, string(msgJSON), timeToDB(s.CreatedAt), timeToDB(s.UpdatedAt),
	)
	if err != nil {
		return model.Session{}, fmt.Errorf("storage: create session: %w", err)
	}
	return s, nil
}

// GetSession retrieves a chat session by ID.
func (db *DB) GetSession(ctx context.Context, id string) (model.Session, error) {
	var (
		s         model.Session
		msgJSON   string
		createdAt string
		updatedAt string
	)
	err := db.db.QueryRowContext(ctx,
		`SELECT id, title, messages, created_at, updated_at FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.Title, &msgJSON, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Session{}, ErrNotFound
		}
		return model.Session{}, fmt.Errorf("storage: get session: %w", err)
	}

	if err := json.Unmarshal([]byte(msgJSON), &s.Messages); err != nil {
		return model.Session{}, fmt.Errorf("storage: unmarshal session messages: %w", err)
	}
	if s.CreatedAt, err = timeFromDB(createdAt); err != nil {
		return model.Session{}, err
	}
	if s.UpdatedAt, err = timeFromDB(updatedAt); err != nil {
		return model.Session{}, err
	}
	return s, nil
}

// AppendSessionMessages adds messages to the end of a session's transcript.
func (db *DB) AppendSessionMessages(ctx context.Context, id string, messages []model.ChatMessage) (model.Session, error) {
	s, err := db.GetSession(ctx, id)
	if err != nil {
		return model.Session{}, err
	}
	s.Messages = append(s.Messages, messages...)
	s.UpdatedAt = time.Now().UTC()

	msgJSON, err := json.Marshal(s.Messages)
	if err != nil {
		return model.Session{}, fmt.Errorf("storage: marshal session messages: %w", err)
	}
	_, err = db.db.ExecContext(ctx,
		`UPDATE sessions SET messages = ?, updated_at = ? WHERE id = ?`,
		string(msgJSON), timeToDB(s.UpdatedAt), id,
	)
	if err != nil {
		return model.Session{}, fmt.Errorf("storage: append session messages: %w", err)
	}
	return s, nil
}
