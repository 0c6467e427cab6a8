package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/storage"
)

// neo4jConfig is the unsealed payload of a neo4j data source.
type neo4jConfig struct {
	URI      string `json:"uri"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Neo4jCapability answers neo4j:// probes. Target is a data-source ID
// whose sealed payload is a JSON connection config; probe is a Cypher
// statement, or a JSON envelope {"cypher": ..., "params": {...}}. The
// value is the "value" column of the first record.
type Neo4jCapability struct {
	store  DataSourceStore
	sealer URLOpener
}

// NewNeo4jCapability builds the neo4j:// capability.
func NewNeo4jCapability(store DataSourceStore, sealer URLOpener) *Neo4jCapability {
	return &Neo4jCapability{store: store, sealer: sealer}
}

func (c *Neo4jCapability) Scheme() string { return "neo4j" }

func (c *Neo4jCapability) Resolve(ctx context.Context, target, probe string) (string, error) {
	probe = strings.TrimSpace(probe)
	if probe == "" {
		return "", nil
	}
	cypher, params, err := parseCypherProbe(probe)
	if err != nil {
		return "", err
	}

	cfg, err := c.unsealConfig(ctx, strings.TrimSpace(target))
	if err != nil {
		return "", err
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return "", Errf(model.ErrCodeConnectFailed, "init neo4j driver: %v", err)
	}
	defer driver.Close(ctx)

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		return "", Errf(model.ErrCodeConnectFailed, "run cypher: %v", err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return "", fmt.Errorf("resolve: read neo4j result: %w", err)
		}
		return "", nil
	}

	v, ok := result.Record().Get("value")
	if !ok {
		return "", nil
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "<unprintable>", nil
	}
}

func (c *Neo4jCapability) unsealConfig(ctx context.Context, id string) (neo4jConfig, error) {
	var cfg neo4jConfig
	if id == "" {
		return cfg, Errf(model.ErrCodeInvalidURL, "neo4j resolver needs a data source id")
	}
	ds, err := c.store.GetDataSource(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return cfg, Errf(model.ErrCodeInvalidURL, "unknown data source %q", id)
		}
		return cfg, fmt.Errorf("resolve: load data source %q: %w", id, err)
	}
	text, err := c.sealer.Open(ds.SealedURL)
	if err != nil {
		return cfg, Errf(model.ErrCodeDecryptFailed, "unseal data source %q: %v", id, err)
	}
	if err := json.Unmarshal([]byte(text), &cfg); err != nil {
		return cfg, Errf(model.ErrCodeInvalidURL, "data source %q payload is not a neo4j config: %v", id, err)
	}
	if cfg.URI == "" {
		return cfg, Errf(model.ErrCodeInvalidURL, "data source %q config has no uri", id)
	}
	return cfg, nil
}

// parseCypherProbe splits a probe into statement and parameters. A probe
// starting with '{' is the JSON envelope form.
func parseCypherProbe(probe string) (string, map[string]any, error) {
	if !strings.HasPrefix(probe, "{") {
		return probe, nil, nil
	}
	var envelope struct {
		Cypher string         `json:"cypher"`
		Params map[string]any `json:"params"`
	}
	if err := json.Unmarshal([]byte(probe), &envelope); err != nil {
		return "", nil, Errf(model.ErrCodeInvalidURL, "parse cypher envelope: %v", err)
	}
	if envelope.Cypher == "" {
		return "", nil, Errf(model.ErrCodeInvalidURL, "cypher envelope has no cypher field")
	}
	return envelope.Cypher, envelope.Params, nil
}
