package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"confirmbot/internal/platform/pg"
)

// PostgresStore keeps the record in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if err := pg.ApplyMigrationsFS(dsn, migrations, "migrations/postgres"); err != nil {
		return nil, persistErr(err, "migrate postgres store")
	}
	pool, err := pg.NewPool(ctx, dsn, pg.DefaultPoolOptions())
	if err != nil {
		return nil, persistErr(err, "open postgres store")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Name() string { return "postgres" }

func (s *PostgresStore) Load(ctx context.Context) (Record, bool, error) {
	var rec Record
	err := s.pool.QueryRow(ctx,
		`SELECT version, last_reminder, interval_days FROM reminder_settings WHERE id = 1`,
	).Scan(&rec.Version, &rec.LastReminder, &rec.IntervalDays)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, persistErr(err, "load settings")
	}

	rows, err := s.pool.Query(ctx, `SELECT user_id FROM reminder_users ORDER BY position`)
	if err != nil {
		return Record{}, false, persistErr(err, "load users")
	}
	users, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return Record{}, false, persistErr(err, "load users")
	}
	rec.Users = append([]string{}, users...)
	return rec, true, nil
}

func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
	err := pg.WithinTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO reminder_settings (id, version, last_reminder, interval_days)
			VALUES (1, $1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET
				version = EXCLUDED.version,
				last_reminder = EXCLUDED.last_reminder,
				interval_days = EXCLUDED.interval_days`,
			CurrentVersion, rec.LastReminder, rec.IntervalDays,
		); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM reminder_users`); err != nil {
			return err
		}
		if len(rec.Users) == 0 {
			return nil
		}
		rows := make([][]any, len(rec.Users))
		for i, id := range rec.Users {
			rows[i] = []any{id, i}
		}
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"reminder_users"}, []string{"user_id", "position"}, pgx.CopyFromRows(rows))
		return err
	})
	return persistErr(err, "save state")
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
