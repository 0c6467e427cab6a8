package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/storage"
	"github.com/loomworks/loom/internal/vector"
)

// RetrieverFactory builds a retriever from an unsealed data-source payload.
type RetrieverFactory func(ctx context.Context, unsealed string) (vector.Retriever, error)

// RetrievalCapability answers qdrant:// and pgvector:// probes. Target is
// "<dataSourceID>/<collection>"; probe is the query text, or a JSON
// envelope {"query": ..., "limit": N}. The value is the retrieved
// documents' text, one per line in rank order.
type RetrievalCapability struct {
	scheme  string
	store   DataSourceStore
	sealer  URLOpener
	factory RetrieverFactory

	mu     sync.Mutex
	cache  map[string]vector.Retriever
	flight singleflight.Group
}

// NewRetrievalCapability builds a retrieval capability for one scheme.
func NewRetrievalCapability(scheme string, store DataSourceStore, sealer URLOpener, factory RetrieverFactory) *RetrievalCapability {
	return &RetrievalCapability{
		scheme:  scheme,
		store:   store,
		sealer:  sealer,
		factory: factory,
		cache:   make(map[string]vector.Retriever),
	}
}

func (c *RetrievalCapability) Scheme() string { return c.scheme }

func (c *RetrievalCapability) Resolve(ctx context.Context, target, probe string) (string, error) {
	id, collection, ok := strings.Cut(strings.TrimSpace(target), "/")
	if !ok || id == "" || collection == "" {
		return "", Errf(model.ErrCodeInvalidURL, "%s resolver target must be <dataSourceId>/<collection>", c.scheme)
	}

	query, limit, err := parseRetrievalProbe(probe)
	if err != nil {
		return "", err
	}
	if query == "" {
		return "", nil
	}

	r, err := c.retriever(ctx, id)
	if err != nil {
		return "", err
	}
	docs, err := r.Retrieve(ctx, collection, query, limit)
	if err != nil {
		return "", Errf(model.ErrCodeConnectFailed, "retrieve from %s: %v", c.scheme, err)
	}
	return vector.Render(docs), nil
}

// retriever shares one backend per data source; concurrent variables
// against the same data source create it only once.
func (c *RetrievalCapability) retriever(ctx context.Context, id string) (vector.Retriever, error) {
	c.mu.Lock()
	if r, ok := c.cache[id]; ok {
		c.mu.Unlock()
		return r, nil
	}
	c.mu.Unlock()

	v, err, _ := c.flight.Do(id, func() (any, error) {
		ds, err := c.store.GetDataSource(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, Errf(model.ErrCodeInvalidURL, "unknown data source %q", id)
			}
			return nil, fmt.Errorf("resolve: load data source %q: %w", id, err)
		}
		unsealed, err := c.sealer.Open(ds.SealedURL)
		if err != nil {
			return nil, Errf(model.ErrCodeDecryptFailed, "unseal data source %q: %v", id, err)
		}
		r, err := c.factory(ctx, unsealed)
		if err != nil {
			return nil, Errf(model.ErrCodeConnectFailed, "connect %s backend: %v", c.scheme, err)
		}
		c.mu.Lock()
		c.cache[id] = r
		c.mu.Unlock()
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(vector.Retriever), nil
}

func parseRetrievalProbe(probe string) (query string, limit int, err error) {
	probe = strings.TrimSpace(probe)
	if !strings.HasPrefix(probe, "{") {
		return probe, 0, nil
	}
	var envelope struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal([]byte(probe), &envelope); err != nil {
		return "", 0, Errf(model.ErrCodeInvalidURL, "parse retrieval envelope: %v", err)
	}
	return envelope.Query, envelope.Limit, nil
}
