package loom

import (
	"io/fs"
	"log/slog"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all overrides after applying defaults.
// Unexported, callers use the With* functions.
type resolvedOptions struct {
	port      int
	dbPath    string
	dataKey   string
	logger    *slog.Logger
	version   string
	uiFS      fs.FS
	resolvers []Resolver
}

// WithPort overrides the TCP port from config (LOOM_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDBPath overrides the SQLite database path from config (LOOM_DB_PATH env var).
func WithDBPath(path string) Option {
	return func(o *resolvedOptions) { o.dbPath = path }
}

// WithDataKey overrides the data-source sealing key from config (LOOM_DATA_KEY
// env var). The key is a 32-byte value in base64; generate one with
// scripts/genkey.
func WithDataKey(key string) Option {
	return func(o *resolvedOptions) { o.dataKey = key }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithUI overrides the embedded SPA filesystem. The filesystem must contain an
// index.html at its root. If not set, the build-tagged ui package embed is used.
func WithUI(dist fs.FS) Option {
	return func(o *resolvedOptions) { o.uiFS = dist }
}

// WithResolver registers a custom resolver capability. Multiple resolvers
// may be registered; each is keyed by its Scheme(). Registered after the
// built-ins, so a matching scheme replaces the built-in capability.
func WithResolver(r Resolver) Option {
	return func(o *resolvedOptions) { o.resolvers = append(o.resolvers, r) }
}
