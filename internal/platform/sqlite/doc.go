// Package sqlite opens embedded SQLite databases (modernc.org/sqlite, no cgo) and
// applies schema migrations with golang-migrate.
//
// Pragmas are passed through the DSN so that every pooled connection gets them:
//
//	db, err := sqlite.Open(ctx, "data/reminder.db", sqlite.DefaultOptions())
//	if err != nil { ... }
//	if err := sqlite.ApplyMigrationsFS("data/reminder.db", migrations, "migrations/sqlite"); err != nil { ... }
package sqlite
