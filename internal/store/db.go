package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	"github.com/markahope-aag/hazardos-sub008/internal/store/migrations"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// FileDSN builds a modernc SQLite DSN for a database file with WAL journaling
// and a busy timeout.
func FileDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	return "file:" + path + "?" + q.Encode()
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// openDB opens the database and applies migrations. SQLite allows one writer,
// so the pool is limited to a single connection.
func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, Classify(err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, Classify(fmt.Errorf("open local database: %w", err))
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, Classify(fmt.Errorf("migrate local database: %w", err))
	}
	return db, nil
}
