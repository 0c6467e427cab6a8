package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/storage"
	"github.com/loomworks/loom/internal/vector"
)

// milvusConfig is the unsealed payload of a milvus data source.
type milvusConfig struct {
	BaseURL string `json:"baseUrl"`
	Token   string `json:"token"`
}

// MilvusCapability answers milvus:// probes through the v2 REST API.
// Target is a data-source ID. An empty probe or "list_collections" lists
// collection names; a JSON envelope {"op": "insert"|"search"|"query", ...}
// forwards the remaining fields as the operation payload.
type MilvusCapability struct {
	store  DataSourceStore
	sealer URLOpener
}

// NewMilvusCapability builds the milvus:// capability.
func NewMilvusCapability(store DataSourceStore, sealer URLOpener) *MilvusCapability {
	return &MilvusCapability{store: store, sealer: sealer}
}

func (c *MilvusCapability) Scheme() string { return "milvus" }

func (c *MilvusCapability) Resolve(ctx context.Context, target, probe string) (string, error) {
	client, err := c.client(ctx, strings.TrimSpace(target))
	if err != nil {
		return "", err
	}

	probe = strings.TrimSpace(probe)
	if probe == "" || strings.EqualFold(probe, "list_collections") {
		return listCollections(ctx, client)
	}
	if !strings.HasPrefix(probe, "{") {
		return "", Errf(model.ErrCodeInvalidURL, "milvus probe must be list_collections or a JSON op envelope")
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(probe), &body); err != nil {
		return "", Errf(model.ErrCodeInvalidURL, "parse milvus envelope: %v", err)
	}
	op, _ := body["op"].(string)
	delete(body, "op")

	switch {
	case op == "" || strings.EqualFold(op, "list_collections"):
		return listCollections(ctx, client)
	case strings.EqualFold(op, "insert"):
		out, err := client.Insert(ctx, body)
		if err != nil {
			return "", Errf(model.ErrCodeConnectFailed, "milvus insert: %v", err)
		}
		return out, nil
	case strings.EqualFold(op, "search"):
		out, err := client.Search(ctx, body)
		if err != nil {
			return "", Errf(model.ErrCodeConnectFailed, "milvus search: %v", err)
		}
		return out, nil
	case strings.EqualFold(op, "query"):
		out, err := client.Query(ctx, body)
		if err != nil {
			return "", Errf(model.ErrCodeConnectFailed, "milvus query: %v", err)
		}
		return out, nil
	default:
		return "", Errf(model.ErrCodeInvalidURL, "unsupported milvus op %q", op)
	}
}

func listCollections(ctx context.Context, client *vector.MilvusClient) (string, error) {
	names, err := client.ListCollections(ctx)
	if err != nil {
		return "", Errf(model.ErrCodeConnectFailed, "milvus list collections: %v", err)
	}
	return strings.Join(names, ", "), nil
}

func (c *MilvusCapability) client(ctx context.Context, id string) (*vector.MilvusClient, error) {
	if id == "" {
		return nil, Errf(model.ErrCodeInvalidURL, "milvus resolver needs a data source id")
	}
	ds, err := c.store.GetDataSource(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, Errf(model.ErrCodeInvalidURL, "unknown data source %q", id)
		}
		return nil, fmt.Errorf("resolve: load data source %q: %w", id, err)
	}
	text, err := c.sealer.Open(ds.SealedURL)
	if err != nil {
		return nil, Errf(model.ErrCodeDecryptFailed, "unseal data source %q: %v", id, err)
	}

	var cfg milvusConfig
	if err := json.Unmarshal([]byte(text), &cfg); err != nil {
		// A bare URL payload also works for unauthenticated deployments.
		cfg = milvusConfig{BaseURL: strings.TrimSpace(text)}
	}
	if cfg.BaseURL == "" {
		return nil, Errf(model.ErrCodeInvalidURL, "data source %q has no milvus base url", id)
	}
	return vector.NewMilvusClient(cfg.BaseURL, cfg.Token), nil
}
