package resolve

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/secrets"
	"github.com/loomworks/loom/internal/storage"
)

type fakeDataSourceStore struct {
	sources map[string]model.DataSource
}

func (f *fakeDataSourceStore) GetDataSource(_ context.Context, id string) (model.DataSource, error) {
	ds, ok := f.sources[id]
	if !ok {
		return model.DataSource{}, storage.ErrNotFound
	}
	return ds, nil
}

func testSealer(t *testing.T) *secrets.Sealer {
	t.Helper()
	b64, err := secrets.GenerateKey()
	require.NoError(t, err)
	key, err := secrets.ParseKey(b64)
	require.NoError(t, err)
	s, err := secrets.NewSealer(key)
	require.NoError(t, err)
	return s
}

func TestCheckReadonly(t *testing.T) {
	assert.NoError(t, checkReadonly("SELECT 1"))
	assert.NoError(t, checkReadonly("select name from users"))
	assert.NoError(t, checkReadonly("WITH x AS (SELECT 1) SELECT * FROM x"))
	assert.NoError(t, checkReadonly("SELECT 1;"))

	// Semicolons inside literals and quoted identifiers are data, not
	// statement separators.
	assert.NoError(t, checkReadonly("SELECT 'a;b'"))
	assert.NoError(t, checkReadonly("SELECT 'it''s; fine' FROM notes"))
	assert.NoError(t, checkReadonly(`SELECT "weird;col" FROM t`))

	for _, q := range []string{
		"DELETE FROM users",
		"DROP TABLE users",
		"INSERT INTO users VALUES (1)",
		"UPDATE users SET name = 'x'",
		"SELECT 1; DELETE FROM users",
		"SELECT 'a;b'; DROP TABLE users",
	} {
		err := checkReadonly(q)
		require.Error(t, err, q)
		assert.Equal(t, model.ErrCodeReadonlyRequired, CodeOf(err), q)
	}
}

func TestFormatScalar(t *testing.T) {
	assert.Equal(t, "", FormatScalar(nil))
	assert.Equal(t, "text", FormatScalar("text"))
	assert.Equal(t, "bytes", FormatScalar([]byte("bytes")))
	assert.Equal(t, "true", FormatScalar(true))
	assert.Equal(t, "42", FormatScalar(int64(42)))
	assert.Equal(t, "7", FormatScalar(int32(7)))
	assert.Equal(t, "3.5", FormatScalar(3.5))
	assert.Equal(t, "2026-01-02T00:00:00Z", FormatScalar(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)))
}

func seedSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "probe.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE facts (k TEXT, v TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO facts VALUES ('tone', 'formal'), ('lang', 'en')`)
	require.NoError(t, err)
	return path
}

func TestSQLiteCapabilityResolvesFirstValue(t *testing.T) {
	path := seedSQLite(t)
	c := SQLiteCapability{}

	got, err := c.Resolve(context.Background(), path, "SELECT v FROM facts WHERE k = 'tone'")
	require.NoError(t, err)
	assert.Equal(t, "formal", got)
}

func TestSQLiteCapabilityEmptyResult(t *testing.T) {
	path := seedSQLite(t)
	c := SQLiteCapability{}

	got, err := c.Resolve(context.Background(), path, "SELECT v FROM facts WHERE k = 'missing'")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestSQLiteCapabilityRejectsWrites(t *testing.T) {
	path := seedSQLite(t)
	c := SQLiteCapability{}

	_, err := c.Resolve(context.Background(), path, "DELETE FROM facts")
	require.Error(t, err)
	assert.Equal(t, model.ErrCodeReadonlyRequired, CodeOf(err))
}

func TestSQLiteCapabilityEmptyProbeIsNoop(t *testing.T) {
	c := SQLiteCapability{}
	got, err := c.Resolve(context.Background(), "whatever.db", "  ")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestSQLCapabilityUnknownDataSource(t *testing.T) {
	c := NewSQLCapability(&fakeDataSourceStore{}, testSealer(t))
	_, err := c.Resolve(context.Background(), "ghost", "SELECT 1")
	require.Error(t, err)
	assert.Equal(t, model.ErrCodeInvalidURL, CodeOf(err))
}

func TestSQLCapabilityDecryptFailed(t *testing.T) {
	store := &fakeDataSourceStore{sources: map[string]model.DataSource{
		"ds1": {ID: "ds1", Kind: "sql", SealedURL: "bm90IHNlYWxlZCBhdCBhbGw="},
	}}
	c := NewSQLCapability(store, testSealer(t))
	_, err := c.Resolve(context.Background(), "ds1", "SELECT 1")
	require.Error(t, err)
	assert.Equal(t, model.ErrCodeDecryptFailed, CodeOf(err))
}

func TestSQLCapabilityRoutesSQLiteURL(t *testing.T) {
	path := seedSQLite(t)
	sealer := testSealer(t)
	sealed, err := sealer.Seal("sqlite://" + path)
	require.NoError(t, err)

	store := &fakeDataSourceStore{sources: map[string]model.DataSource{
		"ds1": {ID: "ds1", Kind: "sql", SealedURL: sealed},
	}}
	c := NewSQLCapability(store, sealer)

	got, err := c.Resolve(context.Background(), "ds1", "SELECT v FROM facts WHERE k = 'lang'")
	require.NoError(t, err)
	assert.Equal(t, "en", got)
}

func TestSQLCapabilityUnsupportedURLScheme(t *testing.T) {
	sealer := testSealer(t)
	sealed, err := sealer.Seal("mongodb://localhost/db")
	require.NoError(t, err)

	store := &fakeDataSourceStore{sources: map[string]model.DataSource{
		"ds1": {ID: "ds1", Kind: "sql", SealedURL: sealed},
	}}
	c := NewSQLCapability(store, sealer)

	_, err = c.Resolve(context.Background(), "ds1", "SELECT 1")
	require.Error(t, err)
	assert.Equal(t, model.ErrCodeUnsupportedScheme, CodeOf(err))
}
