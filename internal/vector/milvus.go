package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MilvusClient speaks the Milvus v2 REST API. No gRPC SDK involved; the
// REST surface covers everything the milvus:// capability needs.
type MilvusClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewMilvusClient creates a client for a Milvus REST endpoint. Token may
// be empty for unauthenticated deployments.
func NewMilvusClient(baseURL, token string) *MilvusClient {
	return &MilvusClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *MilvusClient) postJSON(ctx context.Context, path string, body any) (map[string]json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("vector: marshal milvus request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+strings.TrimLeft(path, "/"), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("vector: create milvus request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vector: milvus request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("vector: read milvus response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("vector: milvus http %d: %s", resp.StatusCode, string(raw))
	}

	var out map[string]json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("vector: decode milvus response: %w", err)
	}
	return out, nil
}

// ListCollections returns the collection names of the instance.
func (c *MilvusClient) ListCollections(ctx context.Context) ([]string, error) {
	out, err := c.postJSON(ctx, "/v2/vectordb/collections/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	data, ok := out["data"]
	if !ok {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal(data, &names); err == nil {
		return names, nil
	}
	// Older deployments nest the names under collectionNames.
	var nested struct {
		CollectionNames []string `json:"collectionNames"`
	}
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, fmt.Errorf("vector: decode collection list: %w", err)
	}
	return nested.CollectionNames, nil
}

// Insert writes entities. Body is the raw v2 insert payload; the response
// insert count is returned when present, otherwise the raw response text.
func (c *MilvusClient) Insert(ctx context.Context, body map[string]any) (string, error) {
	out, err := c.postJSON(ctx, "/v2/vectordb/entities/insert", body)
	if err != nil {
		return "", err
	}
	if data, ok := out["data"]; ok {
		var counted struct {
			InsertCount *int64 `json:"insertCount"`
		}
		if err := json.Unmarshal(data, &counted); err == nil && counted.InsertCount != nil {
			return fmt.Sprintf("%d", *counted.InsertCount), nil
		}
	}
	return rawResponse(out), nil
}

// Search runs a vector search with the raw v2 search payload.
func (c *MilvusClient) Search(ctx context.Context, body map[string]any) (string, error) {
	out, err := c.postJSON(ctx, "/v2/vectordb/entities/search", body)
	if err != nil {
		return "", err
	}
	return rawResponse(out), nil
}

// Query runs a scalar query with the raw v2 query payload.
func (c *MilvusClient) Query(ctx context.Context, body map[string]any) (string, error) {
	out, err := c.postJSON(ctx, "/v2/vectordb/entities/query", body)
	if err != nil {
		return "", err
	}
	return rawResponse(out), nil
}

func rawResponse(out map[string]json.RawMessage) string {
	b, err := json.Marshal(out)
	if err != nil {
		return ""
	}
	return string(b)
}
