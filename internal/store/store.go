// Package store persists the reminder state record.
//
// Every driver stores the same logical schema: the subscriber list in insertion
// order, the raw last_reminder value and interval_days. Drivers never interpret
// last_reminder; decoding and repair of that value belong to the reminder package.
package store

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"confirmbot/internal/shared"
)

//go:embed migrations
var migrations embed.FS

// CurrentVersion is the schema version written by Save.
const CurrentVersion = 1

// Record is the persisted form of the reminder state.
type Record struct {
	Version      int
	Users        []string
	LastReminder *string
	IntervalDays int
}

// Clone returns a deep copy of r. An empty non-nil Users stays non-nil.
func (r Record) Clone() Record {
	out := r
	if r.Users != nil {
		out.Users = append(make([]string, 0, len(r.Users)), r.Users...)
	}
	if r.LastReminder != nil {
		v := *r.LastReminder
		out.LastReminder = &v
	}
	return out
}

// Store is a durable home for a single Record.
type Store interface {
	// Name identifies the driver in logs.
	Name() string
	// Load returns the stored record; found is false when nothing was saved yet.
	Load(ctx context.Context) (rec Record, found bool, err error)
	// Save replaces the stored record. A failed Save leaves the previous record intact.
	Save(ctx context.Context, rec Record) error
	Close() error
}

// Pinger is implemented by stores backed by a database connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config selects and configures a driver.
type Config struct {
	Driver string // json, sqlite, postgres, bolt
	Path   string // file path for json, sqlite and bolt
	DSN    string // postgres connection string
}

// Open creates the store selected by cfg.Driver.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (Store, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "store"), slog.String("driver", cfg.Driver))

	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", "json":
		s, err = NewJSONStore(cfg.Path)
	case "sqlite":
		s, err = OpenSQLite(ctx, cfg.Path)
	case "postgres":
		s, err = OpenPostgres(ctx, cfg.DSN)
	case "bolt":
		s, err = OpenBolt(cfg.Path)
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", shared.ErrValidation, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	log.Info("store opened", slog.String("path", cfg.Path))
	return s, nil
}

// LoadOrInit returns the stored record, or saves and returns def when the store is
// empty. created reports the latter.
func LoadOrInit(ctx context.Context, s Store, def Record) (rec Record, created bool, err error) {
	rec, found, err := s.Load(ctx)
	if err != nil {
		return Record{}, false, err
	}
	if found {
		return rec, false, nil
	}
	def = def.Clone()
	def.Version = CurrentVersion
	if def.Users == nil {
		def.Users = []string{}
	}
	if err := s.Save(ctx, def); err != nil {
		return Record{}, false, err
	}
	return def, true, nil
}

func persistErr(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return shared.MarkKind(shared.Wrapf(err, format, args...), shared.KindPersistence)
}
