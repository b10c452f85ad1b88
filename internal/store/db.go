package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Open connects to the database named by databaseURL. postgres:// and
// postgresql:// URLs go through pgx; sqlite:///path URLs (the path may be
// :memory:) go through modernc's pure-Go driver.
func Open(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	dialect, dsn, err := parseDatabaseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	driver := "pgx"
	if dialect == DialectSQLite {
		driver = "sqlite"
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if dialect == DialectSQLite {
		// One connection: writes are serialised and :memory: stays a single database.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	} else {
		db.SetConnMaxIdleTime(5 * time.Minute)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetMaxIdleConns(10)
		db.SetMaxOpenConns(20)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// Dialect reports which SQL dialect a handle returned by Open speaks.
func Dialect(db *sqlx.DB) string {
	if db.DriverName() == "sqlite" {
		return DialectSQLite
	}
	return DialectPostgres
}

func parseDatabaseURL(databaseURL string) (dialect, dsn string, err error) {
	value := strings.TrimSpace(databaseURL)
	switch {
	case strings.HasPrefix(value, "postgres://"), strings.HasPrefix(value, "postgresql://"):
		return DialectPostgres, value, nil
	case strings.HasPrefix(value, "sqlite://"):
		path := strings.TrimPrefix(value, "sqlite://")
		path = strings.TrimPrefix(path, "/")
		if path == "" {
			path = ":memory:"
		}
		return DialectSQLite, path, nil
	default:
		return "", "", fmt.Errorf("unsupported database url %q: want postgres:// or sqlite:///", redactDSN(value))
	}
}

func redactDSN(value string) string {
	if at := strings.LastIndex(value, "@"); at >= 0 {
		if scheme := strings.Index(value, "://"); scheme >= 0 && scheme < at {
			return value[:scheme+3] + "***" + value[at:]
		}
	}
	return value
}
