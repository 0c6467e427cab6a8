package loom

import "context"

// Resolver resolves dynamic variables for one custom scheme.
// When registered via WithResolver, variables whose resolver URI uses the
// scheme are dispatched here instead of a built-in capability. Registering
// a built-in scheme (chat, sql, sqlite, neo4j, milvus, qdrant, pgvector)
// replaces that capability.
//
// Target is the part of the resolver URI after "scheme://"; probe is the
// variable's value field. Resolve runs under the server's per-variable
// timeout and concurrency limit, and failures degrade to render diagnostics
// rather than errors, so implementations may simply return what they have.
type Resolver interface {
	Scheme() string
	Resolve(ctx context.Context, target, probe string) (string, error)
}
