// Package vector provides the retrieval backends behind the vector
// resolver capabilities: qdrant over gRPC, pgvector over postgres, and
// milvus over its v2 REST API.
package vector

import "context"

// Document is one retrieved item: its ID, raw similarity score, and the
// stored text payload.
type Document struct {
	ID    string
	Score float32
	Text  string
}

// Retriever finds documents similar to a text query within a collection.
// Implementations must be safe for concurrent use.
type Retriever interface {
	Retrieve(ctx context.Context, collection, query string, limit int) ([]Document, error)

	// Healthy returns nil if the backend is reachable.
	Healthy(ctx context.Context) error
}

// Render joins retrieved documents for template substitution, one document
// per line in rank order.
func Render(docs []Document) string {
	out := ""
	for i, d := range docs {
		if i > 0 {
			out += "\n"
		}
		out += d.Text
	}
	return out
}
