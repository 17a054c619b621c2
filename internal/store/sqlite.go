package store

import (
	"context"
	"database/sql"
	"errors"

	"confirmbot/internal/platform/sqlite"
)

// SQLiteStore keeps the record in two tables of an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens the database at path and migrates it to the current schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sqlite.Open(ctx, path, sqlite.DefaultOptions())
	if err != nil {
		return nil, persistErr(err, "open sqlite store")
	}
	if err := sqlite.ApplyMigrationsFS(path, migrations, "migrations/sqlite"); err != nil {
		_ = db.Close()
		return nil, persistErr(err, "migrate sqlite store")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

func (s *SQLiteStore) Load(ctx context.Context) (Record, bool, error) {
	var (
		rec  Record
		last sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, last_reminder, interval_days FROM reminder_settings WHERE id = 1`,
	).Scan(&rec.Version, &last, &rec.IntervalDays)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, persistErr(err, "load settings")
	}
	if last.Valid {
		rec.LastReminder = &last.String
	}

	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM reminder_users ORDER BY position`)
	if err != nil {
		return Record{}, false, persistErr(err, "load users")
	}
	defer rows.Close()
	rec.Users = []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return Record{}, false, persistErr(err, "scan user")
		}
		rec.Users = append(rec.Users, id)
	}
	if err := rows.Err(); err != nil {
		return Record{}, false, persistErr(err, "load users")
	}
	return rec, true, nil
}

// Save replaces settings and users in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	var last sql.NullString
	if rec.LastReminder != nil {
		last = sql.NullString{String: *rec.LastReminder, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO reminder_settings (id, version, last_reminder, interval_days)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			version = excluded.version,
			last_reminder = excluded.last_reminder,
			interval_days = excluded.interval_days`,
		CurrentVersion, last, rec.IntervalDays,
	); err != nil {
		return persistErr(err, "save settings")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM reminder_users`); err != nil {
		return persistErr(err, "clear users")
	}
	for i, id := range rec.Users {
		if _, err := tx.ExecContext(ctx, `INSERT INTO reminder_users (user_id, position) VALUES (?, ?)`, id, i); err != nil {
			return persistErr(err, "save user %s", id)
		}
	}
	if err := tx.Commit(); err != nil {
		return persistErr(err, "commit")
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error { return s.db.Close() }
