package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confirmbot/internal/shared"
)

func strPtr(s string) *string { return &s }

// exerciseStore checks load-or-init and round trips for any driver.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, found, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	rec, created, err := LoadOrInit(ctx, s, Record{IntervalDays: 25})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, Record{Version: CurrentVersion, Users: []string{}, IntervalDays: 25}, rec)

	rec, created, err = LoadOrInit(ctx, s, Record{IntervalDays: 99})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 25, rec.IntervalDays)
	assert.Nil(t, rec.LastReminder)

	want := Record{
		Version:      CurrentVersion,
		Users:        []string{"300", "100", "200"},
		LastReminder: strPtr("2024-01-01"),
		IntervalDays: 25,
	}
	require.NoError(t, s.Save(ctx, want))
	got, found, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want, got)

	want.Users = want.Users[:1]
	want.LastReminder = nil
	want.IntervalDays = 7
	require.NoError(t, s.Save(ctx, want))
	got, _, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRecordClone(t *testing.T) {
	empty := Record{Users: []string{}}.Clone()
	assert.NotNil(t, empty.Users)
	assert.Equal(t, []string{}, empty.Users)

	assert.Nil(t, Record{}.Clone().Users)

	orig := Record{Users: []string{"1", "2"}, LastReminder: strPtr("2024-01-01")}
	c := orig.Clone()
	c.Users[0] = "9"
	*c.LastReminder = "2024-02-02"
	assert.Equal(t, []string{"1", "2"}, orig.Users)
	assert.Equal(t, "2024-01-01", *orig.LastReminder)
}

func TestJSONStore(t *testing.T) {
	s, err := NewJSONStore(filepath.Join(t.TempDir(), "data", "reminder_data.json"))
	require.NoError(t, err)
	exerciseStore(t, s)

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
	assert.Equal(t, "reminder_data.json", entries[0].Name())
}

func TestJSONStore_ReadsLegacyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminder_data.json")
	legacy := `{
    "users": ["111", "222"],
    "last_reminder": "2024-03-05T14:22:01.123456",
    "interval_days": 25
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	s, err := NewJSONStore(path)
	require.NoError(t, err)
	rec, found, err := s.Load(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 0, rec.Version)
	assert.Equal(t, []string{"111", "222"}, rec.Users)
	assert.Equal(t, "2024-03-05T14:22:01.123456", *rec.LastReminder)
}

func TestJSONStore_RejectsMalformedDocuments(t *testing.T) {
	tests := map[string]string{
		"not json":        `{"users": [`,
		"unknown key":     `{"users": [], "last_reminder": null, "interval_days": 25, "extra": 1}`,
		"numeric user":    `{"users": [123], "last_reminder": null, "interval_days": 25}`,
		"numeric date":    `{"users": [], "last_reminder": 20240101, "interval_days": 25}`,
		"fraction days":   `{"users": [], "last_reminder": null, "interval_days": 2.5}`,
		"future version":  `{"version": 9, "users": [], "last_reminder": null, "interval_days": 25}`,
		"trailing object": `{"users": [], "last_reminder": null, "interval_days": 25} {}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.json")
			require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
			s, err := NewJSONStore(path)
			require.NoError(t, err)

			_, _, err = s.Load(context.Background())
			require.Error(t, err)
			assert.True(t, shared.IsPersistence(err))
		})
	}
}

func TestJSONStore_FailedSaveRemovesTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	s, err := NewJSONStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, Record{Users: []string{"1"}, IntervalDays: 25}))

	// Turning the target into a non-empty directory makes the rename fail.
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.MkdirAll(filepath.Join(path, "blocker"), 0o755))

	err = s.Save(ctx, Record{Users: []string{"2"}, IntervalDays: 25})
	require.Error(t, err)
	assert.True(t, shared.IsPersistence(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file is removed after a failed rename")
}

func TestMarshalRecord(t *testing.T) {
	b, err := MarshalRecord(Record{IntervalDays: 25})
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"users":[],"last_reminder":null,"interval_days":25}`, string(b))
	assert.Contains(t, string(b), "\n    \"users\"")
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestBoltStore(t *testing.T) {
	s, err := OpenBolt(filepath.Join(t.TempDir(), "state.bolt"))
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.pool.Exec(ctx, `TRUNCATE reminder_users; DELETE FROM reminder_settings;`)
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "redis"}, nil)
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestOpen_JSONDefault(t *testing.T) {
	s, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "s.json")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "json", s.Name())
	assert.NoError(t, s.Close())
}
