package prefs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spmonitor/dashboard/internal/downloads"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, ttl), mr
}

func TestStoresRoundTrip(t *testing.T) {
	redisStore, _ := newRedisStore(t, 0)
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
		"scoped": Scoped(NewMemoryStore(), "sess-1"),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, ok, err := store.Get(ctx, KeyTheme)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Set(ctx, KeyTheme, "dark"))
			value, ok, err := store.Get(ctx, KeyTheme)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "dark", value)

			assert.ErrorIs(t, store.Set(ctx, " ", "x"), ErrInvalidKey)
		})
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	store, mr := newRedisStore(t, time.Hour)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, KeyTheme, "dark"))
	assert.Equal(t, time.Hour, mr.TTL(redisPrefix+KeyTheme))

	mr.FastForward(2 * time.Hour)
	_, ok, err := store.Get(ctx, KeyTheme)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScopedIsolatesClients(t *testing.T) {
	base := NewMemoryStore()
	ctx := context.Background()
	a := Scoped(base, "a")
	b := Scoped(base, "b")

	require.NoError(t, a.Set(ctx, KeyTheme, "dark"))
	_, ok, err := b.Get(ctx, KeyTheme)
	require.NoError(t, err)
	assert.False(t, ok)

	raw, ok, _ := base.Get(ctx, "a:"+KeyTheme)
	assert.True(t, ok)
	assert.Equal(t, "dark", raw)
	assert.Equal(t, Store(base), Scoped(base, ""))
}

func TestPreferencesTheme(t *testing.T) {
	ctx := context.Background()
	p := New(NewMemoryStore(), Defaults{})

	theme, err := p.Theme(ctx)
	require.NoError(t, err)
	assert.Equal(t, ThemeLight, theme)

	next, err := p.ToggleTheme(ctx)
	require.NoError(t, err)
	assert.Equal(t, ThemeDark, next)
	theme, _ = p.Theme(ctx)
	assert.Equal(t, ThemeDark, theme)

	assert.Error(t, p.SetTheme(ctx, Theme("sepia")))
}

func TestPreferencesIgnoresUnknownStoredTheme(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, KeyTheme, "sepia"))
	theme, err := New(store, Defaults{Theme: ThemeDark}).Theme(ctx)
	require.NoError(t, err)
	assert.Equal(t, ThemeDark, theme)
}

func TestPreferencesConnection(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	p := New(store, Defaults{}).For("sess-1")

	conn, err := p.Connection(ctx)
	require.NoError(t, err)
	assert.Equal(t, downloads.DefaultConnection(), conn)

	saved := downloads.Connection{StorageAccount: "spexports", Container: "data", FileName: " /latest.json"}
	require.NoError(t, p.SetConnection(ctx, saved))

	raw, ok, _ := store.Get(ctx, "sess-1:"+KeyConnection)
	require.True(t, ok)
	assert.JSONEq(t, `{"storageAccountName":"spexports","containerName":"data","fileName":"latest.json"}`, raw)

	conn, err = p.Connection(ctx)
	require.NoError(t, err)
	assert.Equal(t, "latest.json", conn.FileName)

	var cfgErr *downloads.ConfigurationError
	require.ErrorAs(t, p.SetConnection(ctx, downloads.Connection{StorageAccount: "NOPE"}), &cfgErr)
}

func TestPreferencesConnectionCheck(t *testing.T) {
	ctx := context.Background()
	p := New(NewMemoryStore(), Defaults{}).WithConnectionCheck(downloads.Connection.ValidateBucketObject).For("sess-1")

	require.NoError(t, p.SetConnection(ctx, downloads.Connection{Container: "exports", FileName: "latest.json"}))
	conn, err := p.Connection(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", conn.StorageAccount)
	assert.Equal(t, "exports", conn.Container)

	var cfgErr *downloads.ConfigurationError
	require.ErrorAs(t, p.SetConnection(ctx, downloads.Connection{Container: "Bad Bucket", FileName: "x.json"}), &cfgErr)
}

func TestPreferencesConnectionCorruptValue(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, KeyConnection, "{not json"))
	conn, err := New(store, Defaults{}).Connection(ctx)
	require.NoError(t, err)
	assert.Equal(t, downloads.DefaultConnection(), conn)
}

func TestParseDefaults(t *testing.T) {
	d, err := ParseDefaults([]byte("theme: dark\nconnection:\n  storage_account: spexports\n  container: exports\n"))
	require.NoError(t, err)
	assert.Equal(t, ThemeDark, d.Theme)
	assert.Equal(t, "spexports", d.Connection.StorageAccount)
	assert.Equal(t, "exports", d.Connection.Container)
	assert.Equal(t, "sharepoint-downloads-latest.json", d.Connection.FileName)

	_, err = ParseDefaults([]byte("theme: sepia\n"))
	assert.Error(t, err)

	_, err = ParseDefaults([]byte("colour: dark\n"))
	assert.Error(t, err, "unknown fields are rejected")

	empty, err := ParseDefaults(nil)
	require.NoError(t, err)
	assert.Equal(t, BuiltinDefaults(), empty)
}

func TestLoadDefaultsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defaults.yaml")
	require.NoError(t, os.WriteFile(path, []byte("connection:\n  storage_account: spexports\n"), 0o600))
	d, err := LoadDefaults(path)
	require.NoError(t, err)
	assert.Equal(t, ThemeLight, d.Theme)
	assert.Equal(t, "spexports", d.Connection.StorageAccount)

	_, err = LoadDefaults(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	builtin, err := LoadDefaults("")
	require.NoError(t, err)
	assert.Equal(t, BuiltinDefaults(), builtin)
}

type fakeRow struct {
	value string
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.value
	return nil
}

type fakeDB struct {
	rows  map[string]string
	execs []string
	err   error
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	if len(args) == 2 {
		f.rows[args[0].(string)] = args[1].(string)
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	if f.err != nil {
		return fakeRow{err: f.err}
	}
	value, ok := f.rows[args[0].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{value: value}
}

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	db := &fakeDB{rows: map[string]string{}}
	store := NewPostgresStore(db)

	require.NoError(t, store.EnsureSchema(ctx))
	_, ok, err := store.Get(ctx, KeyTheme)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, KeyTheme, "dark"))
	value, ok, err := store.Get(ctx, KeyTheme)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dark", value)
	assert.Len(t, db.execs, 2)
}

func TestPostgresStoreWrapsErrors(t *testing.T) {
	boom := errors.New("connection reset")
	store := NewPostgresStore(&fakeDB{rows: map[string]string{}, err: boom})
	_, _, err := store.Get(context.Background(), KeyTheme)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, store.Set(context.Background(), KeyTheme, "dark"), boom)
}
