package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// MemoryDSN opens a private in-memory SQLite database.
const MemoryDSN = ":memory:"

// OpenSQLite opens a SQLite reference snapshot. path is a file path or
// MemoryDSN. An in-memory database is pinned to a single connection so every
// query sees the same data.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	path = strings.TrimPrefix(path, "sqlite://")

	dsn := path
	if path != MemoryDSN {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)", strings.TrimPrefix(path, "file:"))
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if path == MemoryDSN {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	return db, nil
}
