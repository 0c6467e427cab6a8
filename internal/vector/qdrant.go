package vector

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"golang.org/x/sync/singleflight"

	"github.com/loomworks/loom/internal/embedding"
)

// QdrantConfig holds configuration for connecting to Qdrant.
type QdrantConfig struct {
	URL    string // e.g. "https://xyz.cloud.qdrant.io:6333" or "http://localhost:6333"
	APIKey string
}

// QdrantRetriever implements Retriever backed by a Qdrant instance. The
// query text is embedded through the configured provider and searched as a
// dense vector; the stored "text" payload field becomes the document body.
type QdrantRetriever struct {
	client   *qdrant.Client
	embedder embedding.Provider
	logger   *slog.Logger

	healthGroup singleflight.Group
	healthErr   atomic.Value // stores *error (pointer-to-error, never nil pointer; inner error may be nil)
	healthAt    atomic.Int64 // unix nanos of last check
}

// parseQdrantURL extracts host, port, and TLS flag from a Qdrant URL.
// Accepts forms like "https://host:6333", "http://host:6333", or "host:6334".
func parseQdrantURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("vector: invalid qdrant URL: %q", rawURL)
	}

	useTLS = u.Scheme == "https"
	host = u.Hostname()

	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("vector: invalid port in qdrant URL: %q", portStr)
		}
		// If the user specified the REST port (6333), use the gRPC port (6334).
		if p == 6333 {
			port = 6334
		} else {
			port = p
		}
	} else {
		port = 6334
	}

	return host, port, useTLS, nil
}

// NewQdrantRetriever creates a QdrantRetriever and connects via gRPC.
func NewQdrantRetriever(cfg QdrantConfig, embedder embedding.Provider, logger *slog.Logger) (*QdrantRetriever, error) {
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vector: connect to qdrant at %s:%d: %w", host, port, err)
	}

	return &QdrantRetriever{
		client:   client,
		embedder: embedder,
		logger:   logger,
	}, nil
}

// Retrieve embeds the query and runs a dense-vector search against the
// collection, returning documents with their "text" payload.
func (q *QdrantRetriever) Retrieve(ctx context.Context, collection, query string, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 5
	}

	vec, err := q.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vector: embed query: %w", err)
	}

	fetchLimit := uint64(limit) //nolint:gosec // limit is bounded by caller
	scored, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(vec.Slice()),
		Limit:          &fetchLimit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vector: qdrant query: %w", err)
	}

	docs := make([]Document, 0, len(scored))
	for _, sp := range scored {
		doc := Document{Score: sp.Score}
		if id := sp.Id.GetUuid(); id != "" {
			doc.ID = id
		} else {
			doc.ID = strconv.FormatUint(sp.Id.GetNum(), 10)
		}
		if payload := sp.Payload; payload != nil {
			if v, ok := payload["text"]; ok {
				doc.Text = v.GetStringValue()
			}
		}
		if doc.Text == "" {
			q.logger.Warn("qdrant: point has no text payload", "id", doc.ID, "collection", collection)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Healthy returns nil if Qdrant is reachable. Results are cached for 5
// seconds; concurrent checks after cache expiry are deduplicated via
// singleflight so only one gRPC call is made.
func (q *QdrantRetriever) Healthy(ctx context.Context) error {
	if time.Since(time.Unix(0, q.healthAt.Load())) < 5*time.Second {
		return q.loadHealthErr()
	}

	// Use context.Background() instead of the caller's ctx because
	// singleflight reuses the first caller's context; if that caller
	// cancels, all waiters would get a stale error.
	result, _, _ := q.healthGroup.Do("health", func() (any, error) {
		checkCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		_, err := q.client.HealthCheck(checkCtx)
		if err != nil {
			q.storeHealthErr(fmt.Errorf("vector: qdrant unhealthy: %w", err))
		} else {
			q.storeHealthErr(nil)
		}
		q.healthAt.Store(time.Now().UnixNano())
		return q.loadHealthErr(), nil
	})
	if result == nil {
		return nil
	}
	return result.(error)
}

// storeHealthErr stores an error (or nil) in the atomic.Value.
// atomic.Value cannot store nil directly, so we wrap it in a pointer.
func (q *QdrantRetriever) storeHealthErr(err error) {
	q.healthErr.Store(&err)
}

func (q *QdrantRetriever) loadHealthErr() error {
	v := q.healthErr.Load()
	if v == nil {
		return nil
	}
	return *v.(*error)
}

// Close shuts down the Qdrant gRPC connection.
func (q *QdrantRetriever) Close() error {
	return q.client.Close()
}
