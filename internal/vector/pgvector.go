package vector

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/loomworks/loom/internal/embedding"
)

// safeIdent limits collection names to plain identifiers. The collection
// name is interpolated into SQL as a table name, so it cannot be a bind
// parameter.
var safeIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// PgvectorRetriever implements Retriever on a postgres table with a
// pgvector embedding column. The collection maps to a table with columns
// (id, text, embedding vector).
type PgvectorRetriever struct {
	pool     *pgxpool.Pool
	embedder embedding.Provider
}

// NewPgvectorRetriever connects to postgres and registers the pgvector
// codec on every pooled connection.
func NewPgvectorRetriever(ctx context.Context, url string, embedder embedding.Provider) (*PgvectorRetriever, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("vector: parse postgres url: %w", err)
	}
	cfg.AfterConnect = pgxvec.RegisterTypes
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("vector: connect postgres: %w", err)
	}
	return &PgvectorRetriever{pool: pool, embedder: embedder}, nil
}

// Retrieve embeds the query and orders the collection's rows by cosine
// distance to it.
func (p *PgvectorRetriever) Retrieve(ctx context.Context, collection, query string, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 5
	}
	if !safeIdent.MatchString(collection) {
		return nil, fmt.Errorf("vector: invalid collection name %q", collection)
	}

	vec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vector: embed query: %w", err)
	}

	sql := fmt.Sprintf(
		`SELECT id::text, text, 1 - (embedding <=> $1) AS score FROM %s ORDER BY embedding <=> $1 LIMIT $2`,
		collection,
	)
	rows, err := p.pool.Query(ctx, sql, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("vector: pgvector query: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Text, &d.Score); err != nil {
			return nil, fmt.Errorf("vector: scan row: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector: read rows: %w", err)
	}
	return docs, nil
}

// Healthy pings the pool.
func (p *PgvectorRetriever) Healthy(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("vector: pgvector unhealthy: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *PgvectorRetriever) Close() {
	p.pool.Close()
}
