package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// JSONStore keeps the record in a single JSON file, compatible with files written by
// the earlier bot ("users", "last_reminder", "interval_days").
type JSONStore struct {
	path string
	mu   sync.Mutex
}

// NewJSONStore returns a store for path. The file is created on the first Save.
func NewJSONStore(path string) (*JSONStore, error) {
	if path == "" {
		return nil, persistErr(errors.New("empty path"), "json store")
	}
	return &JSONStore{path: path}, nil
}

func (s *JSONStore) Name() string { return "json" }

// Path returns the backing file path.
func (s *JSONStore) Path() string { return s.path }

func (s *JSONStore) Load(ctx context.Context) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, persistErr(err, "read %s", s.path)
	}
	rec, err := UnmarshalRecord(data)
	if err != nil {
		return Record{}, false, persistErr(err, "parse %s", s.path)
	}
	return rec, true, nil
}

// Save writes the record to a temporary file in the same directory and renames it
// over the target, so a crash leaves either the old or the new snapshot.
func (s *JSONStore) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := MarshalRecord(rec)
	if err != nil {
		return persistErr(err, "encode state")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return persistErr(err, "create directory %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return persistErr(err, "create temp file")
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return persistErr(err, "write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return persistErr(err, "sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return persistErr(err, "close %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return persistErr(err, "chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return persistErr(err, "replace %s", s.path)
	}
	syncDir(dir)
	return nil
}

func (s *JSONStore) Close() error { return nil }

// syncDir flushes the directory entry after a rename. Not every platform supports it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
