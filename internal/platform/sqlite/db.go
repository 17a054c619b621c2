package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Options holds connection settings.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
	BusyTimeout     time.Duration
	WALMode         bool
	ForeignKeys     bool
	// ImmediateTx starts write transactions with BEGIN IMMEDIATE to avoid SQLITE_BUSY
	// upgrades in the middle of a transaction.
	ImmediateTx bool
}

// DefaultOptions returns settings for a single-writer embedded database.
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    4,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		PingTimeout:     5 * time.Second,
		BusyTimeout:     5 * time.Second,
		WALMode:         true,
		ForeignKeys:     true,
		ImmediateTx:     true,
	}
}

// Open opens (creating if needed) the database at path and verifies the connection.
func Open(ctx context.Context, path string, opts Options) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", BuildDSN(path, opts))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	return db, nil
}

// BuildDSN renders path and opts as a modernc.org/sqlite DSN.
func BuildDSN(path string, opts Options) string {
	q := url.Values{}
	if opts.BusyTimeout > 0 {
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	}
	if opts.WALMode {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	if opts.ForeignKeys {
		q.Add("_pragma", "foreign_keys(1)")
	}
	q.Add("_pragma", "synchronous(NORMAL)")
	if opts.ImmediateTx {
		q.Set("_txlock", "immediate")
	}
	return "file:" + path + "?" + q.Encode()
}
