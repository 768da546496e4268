// Package store persists suites, environments, credentials and execution
// results in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("not found")

const MemoryDSN = ":memory:"

type Store struct {
	db         *sql.DB
	dataSource string
}

// Open connects to the database named by connStr and applies the schema.
// Accepted forms are sqlite://path, sqlite:path, a bare file path, and
// ":memory:" (or an empty string) for a private in-memory database.
func Open(ctx context.Context, connStr string) (*Store, error) {
	dsn, err := parseConnectionString(connStr)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps an in-memory
	// database alive for the lifetime of the Store.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db, dataSource: dsn}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func parseConnectionString(connStr string) (string, error) {
	connStr = strings.TrimSpace(connStr)

	switch {
	case connStr == "" || connStr == MemoryDSN:
		return withParams(MemoryDSN), nil
	case strings.HasPrefix(connStr, "sqlite://"):
		connStr = strings.TrimPrefix(connStr, "sqlite://")
	case strings.HasPrefix(connStr, "sqlite:"):
		connStr = strings.TrimPrefix(connStr, "sqlite:")
	case strings.Contains(connStr, "://"):
		return "", fmt.Errorf("unsupported database scheme: %s", connStr[:strings.Index(connStr, "://")])
	}
	if connStr == "" {
		return "", errors.New("database path is empty")
	}
	return withParams(connStr), nil
}

func withParams(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000"
}
