package resolve

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite"

	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/storage"
)

// DataSourceStore is the slice of storage the connection-backed
// capabilities need.
type DataSourceStore interface {
	GetDataSource(ctx context.Context, id string) (model.DataSource, error)
}

// URLOpener unseals a data source's connection string.
type URLOpener interface {
	Open(sealed string) (string, error)
}

// SQLCapability answers sql:// probes. Target is a data-source ID whose
// sealed URL points at postgres or a local sqlite file; probe is a single
// read-only SQL statement. The value is the first column of the first row.
type SQLCapability struct {
	store  DataSourceStore
	sealer URLOpener

	mu     sync.Mutex
	pools  map[string]*pgxpool.Pool
	flight singleflight.Group
}

// NewSQLCapability builds the sql:// capability.
func NewSQLCapability(store DataSourceStore, sealer URLOpener) *SQLCapability {
	return &SQLCapability{
		store:  store,
		sealer: sealer,
		pools:  make(map[string]*pgxpool.Pool),
	}
}

func (c *SQLCapability) Scheme() string { return "sql" }

func (c *SQLCapability) Resolve(ctx context.Context, target, probe string) (string, error) {
	query := strings.TrimSpace(probe)
	if query == "" {
		return "", nil
	}
	if err := checkReadonly(query); err != nil {
		return "", err
	}

	id := strings.TrimSpace(target)
	if id == "" {
		return "", Errf(model.ErrCodeInvalidURL, "sql resolver needs a data source id")
	}
	url, err := c.unsealURL(ctx, id)
	if err != nil {
		return "", err
	}

	scheme, rest, _ := strings.Cut(url, "://")
	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		return c.queryPostgres(ctx, url, query)
	case "sqlite", "file":
		return querySQLite(ctx, rest, query)
	default:
		return "", Errf(model.ErrCodeUnsupportedScheme, "data source %q has unsupported url scheme %q", id, scheme)
	}
}

func (c *SQLCapability) unsealURL(ctx context.Context, id string) (string, error) {
	ds, err := c.store.GetDataSource(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", Errf(model.ErrCodeInvalidURL, "unknown data source %q", id)
		}
		return "", fmt.Errorf("resolve: load data source %q: %w", id, err)
	}
	url, err := c.sealer.Open(ds.SealedURL)
	if err != nil {
		return "", Errf(model.ErrCodeDecryptFailed, "unseal data source %q: %v", id, err)
	}
	return url, nil
}

// queryPostgres shares one pool per URL. Concurrent variables against the
// same data source race to create it only once.
func (c *SQLCapability) queryPostgres(ctx context.Context, url, query string) (string, error) {
	pool, err := c.pool(ctx, url)
	if err != nil {
		return "", Errf(model.ErrCodeConnectFailed, "connect postgres: %v", err)
	}

	rows, err := pool.Query(ctx, query)
	if err != nil {
		return "", fmt.Errorf("resolve: query postgres: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return "", rows.Err()
	}
	values, err := rows.Values()
	if err != nil {
		return "", fmt.Errorf("resolve: read row: %w", err)
	}
	if len(values) == 0 {
		return "", nil
	}
	return FormatScalar(values[0]), nil
}

func (c *SQLCapability) pool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	c.mu.Lock()
	if p, ok := c.pools[url]; ok {
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	v, err, _ := c.flight.Do(url, func() (any, error) {
		p, err := pgxpool.New(ctx, url)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.pools[url] = p
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*pgxpool.Pool), nil
}

// Close releases all cached connection pools.
func (c *SQLCapability) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for url, p := range c.pools {
		p.Close()
		delete(c.pools, url)
	}
}

// SQLiteCapability answers sqlite:// probes against a local database file
// named directly in the resolver URI, no data-source record involved.
type SQLiteCapability struct{}

func (SQLiteCapability) Scheme() string { return "sqlite" }

func (SQLiteCapability) Resolve(ctx context.Context, target, probe string) (string, error) {
	query := strings.TrimSpace(probe)
	if query == "" {
		return "", nil
	}
	if err := checkReadonly(query); err != nil {
		return "", err
	}
	path := strings.TrimSpace(target)
	if path == "" {
		return "", Errf(model.ErrCodeInvalidURL, "sqlite resolver needs a file path")
	}
	return querySQLite(ctx, path, query)
}

func querySQLite(ctx context.Context, path, query string) (string, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return "", Errf(model.ErrCodeSQLiteOpenFailed, "open %q: %v", path, err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return "", Errf(model.ErrCodeSQLiteOpenFailed, "open %q: %v", path, err)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("resolve: query sqlite: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return "", rows.Err()
	}
	cols, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("resolve: read columns: %w", err)
	}
	values := make([]any, len(cols))
	dests := make([]any, len(cols))
	for i := range values {
		dests[i] = &values[i]
	}
	if err := rows.Scan(dests...); err != nil {
		return "", fmt.Errorf("resolve: read row: %w", err)
	}
	if len(values) == 0 {
		return "", nil
	}
	return FormatScalar(values[0]), nil
}

// checkReadonly accepts exactly one SELECT-style statement.
func checkReadonly(query string) error {
	lower := strings.ToLower(query)
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return Errf(model.ErrCodeReadonlyRequired, "only read statements are allowed")
	}
	if i := statementEnd(query); i >= 0 && strings.TrimSpace(query[i+1:]) != "" {
		return Errf(model.ErrCodeReadonlyRequired, "only a single statement is allowed")
	}
	return nil
}

// statementEnd returns the index of the first statement-separating ';', or
// -1. Semicolons inside '...' string literals and "..." quoted identifiers
// do not separate statements; a doubled quote re-enters the literal on the
// next iteration, so '' escapes fall out of the toggle.
func statementEnd(query string) int {
	var inString, inIdent bool
	for i := 0; i < len(query); i++ {
		switch c := query[i]; {
		case inString:
			if c == '\'' {
				inString = false
			}
		case inIdent:
			if c == '"' {
				inIdent = false
			}
		case c == '\'':
			inString = true
		case c == '"':
			inIdent = true
		case c == ';':
			return i
		}
	}
	return -1
}

// FormatScalar stringifies a database value the way the wire format
// expects: NULL is empty, numbers and booleans are bare, bytes pass as
// text.
func FormatScalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}
