package resolve

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/internal/model"
)

func milvusFixture(t *testing.T) (*MilvusCapability, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/vectordb/collections/list":
			_, _ = w.Write([]byte(`{"code":0,"data":["docs","memories"]}`))
		case "/v2/vectordb/entities/insert":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if _, hasOp := body["op"]; hasOp {
				t.Error("op field must be stripped before forwarding")
			}
			_, _ = w.Write([]byte(`{"code":0,"data":{"insertCount":3}}`))
		case "/v2/vectordb/entities/search":
			_, _ = w.Write([]byte(`{"code":0,"data":[{"id":1,"distance":0.2}]}`))
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	sealer := testSealer(t)
	sealed, err := sealer.Seal(`{"baseUrl":"` + server.URL + `"}`)
	require.NoError(t, err)

	store := &fakeDataSourceStore{sources: map[string]model.DataSource{
		"mv1": {ID: "mv1", Kind: "milvus", SealedURL: sealed},
	}}
	return NewMilvusCapability(store, sealer), server
}

func TestMilvusListCollections(t *testing.T) {
	c, _ := milvusFixture(t)

	got, err := c.Resolve(context.Background(), "mv1", "")
	require.NoError(t, err)
	assert.Equal(t, "docs, memories", got)

	got, err = c.Resolve(context.Background(), "mv1", "list_collections")
	require.NoError(t, err)
	assert.Equal(t, "docs, memories", got)
}

func TestMilvusInsertReturnsCount(t *testing.T) {
	c, _ := milvusFixture(t)

	got, err := c.Resolve(context.Background(), "mv1",
		`{"op":"insert","collectionName":"docs","data":[{"id":1}]}`)
	require.NoError(t, err)
	assert.Equal(t, "3", got)
}

func TestMilvusSearchReturnsRawJSON(t *testing.T) {
	c, _ := milvusFixture(t)

	got, err := c.Resolve(context.Background(), "mv1",
		`{"op":"search","collectionName":"docs","data":[[0.1,0.2]]}`)
	require.NoError(t, err)
	assert.Contains(t, got, `"distance"`)
}

func TestMilvusUnsupportedOp(t *testing.T) {
	c, _ := milvusFixture(t)

	_, err := c.Resolve(context.Background(), "mv1", `{"op":"drop_collection"}`)
	require.Error(t, err)
	assert.Equal(t, model.ErrCodeInvalidURL, CodeOf(err))
}

func TestMilvusBarePlaintextProbeRejected(t *testing.T) {
	c, _ := milvusFixture(t)

	_, err := c.Resolve(context.Background(), "mv1", "drop everything")
	require.Error(t, err)
	assert.Equal(t, model.ErrCodeInvalidURL, CodeOf(err))
}

func TestMilvusUnknownDataSource(t *testing.T) {
	c, _ := milvusFixture(t)

	_, err := c.Resolve(context.Background(), "ghost", "")
	require.Error(t, err)
	assert.Equal(t, model.ErrCodeInvalidURL, CodeOf(err))
}
