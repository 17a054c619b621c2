package sqlite

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"strings"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// BuildMigrateURL builds a golang-migrate database URL for dbPath.
// "C:\data\x.db" becomes "sqlite:///C:/data/x.db", "/data/x.db" becomes "sqlite:///data/x.db".
func BuildMigrateURL(dbPath string) (string, error) {
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}
	p := filepath.ToSlash(abs)
	if runtime.GOOS == "windows" && len(p) >= 2 && p[1] == ':' {
		p = "/" + p
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return "sqlite://" + p, nil
}

// ApplyMigrationsFS applies the migrations found in dir of fsys. It is safe to call on
// every start: an up-to-date schema is not an error.
//
// golang-migrate opens and closes its own connection, so dbPath must be a file.
func ApplyMigrationsFS(dbPath string, fsys fs.FS, dir string) error {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	dbURL, err := BuildMigrateURL(dbPath)
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if _, dirty, err := m.Version(); err == nil && dirty {
		return errors.New("sqlite schema is in a dirty state")
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
