package database

import (
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// SQLiteBackend is the embedded secondary store. It shares the bun query
// implementation with the primary; only the dialect differs.
type SQLiteBackend struct {
	bunBackend
}

func NewSQLite(path string) (*SQLiteBackend, error) {
	if path == "" {
		path = "mazadbot.db"
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}
	// SQLite handles one writer at a time.
	sqldb.SetMaxOpenConns(1)

	return &SQLiteBackend{
		bunBackend: bunBackend{name: "sqlite", db: bun.NewDB(sqldb, sqlitedialect.New())},
	}, nil
}
