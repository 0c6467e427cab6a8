package model

import (
	"encoding/json"
	"time"
)

// ProjectState is the graph + variable snapshot a render executes against.
type ProjectState struct {
	Nodes     []Node     `json:"nodes"`
	Edges     []Edge     `json:"edges"`
	Variables []Variable `json:"variables"`
}

// Project is a stored, named ProjectState.
type Project struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	State     ProjectState `json:"state"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Row is one dataset record, kept as raw JSON. Replay parses rows
// individually, so one malformed row fails alone instead of poisoning the
// whole dataset.
type Row = json.RawMessage

// Dataset is an ordered collection of rows used to drive replay.
type Dataset struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Rows      []Row     `json:"rows"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ChatMessage is one turn of a stored chat session.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is a stored chat transcript, the target of chat:// resolvers.
type Session struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// DataSource is a named external connection record. URL holds the sealed
// (encrypted) connection string; it is never returned in cleartext by the
// API.
type DataSource struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"` // sql | neo4j | milvus | qdrant | pgvector
	SealedURL string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}
