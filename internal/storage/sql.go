package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// SQLKV stores entries in the kv_entries table of a SQL database.
type SQLKV struct {
	db      *sql.DB
	queries *Queries
}

// NewSQLiteKV opens (creating if needed) the SQLite file at dbPath and
// migrates it.
func NewSQLiteKV(dbPath string) (*SQLKV, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunSQLiteMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLKV{db: db, queries: newQueries(db, sqliteDialect)}, nil
}

// NewPostgresKV connects to dsn and migrates the database.
func NewPostgresKV(ctx context.Context, dsn string) (*SQLKV, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunPostgresMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLKV{db: db, queries: newQueries(db, postgresDialect)}, nil
}

func (s *SQLKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.queries.GetEntry(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return v, ok, nil
}

func (s *SQLKV) Set(ctx context.Context, key, value string) error {
	if err := s.queries.UpsertEntry(ctx, key, value); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	slog.DebugContext(ctx, "KV entry written",
		"dialect", s.queries.d.name,
		"key", key,
		"bytes", len(value))
	return nil
}

func (s *SQLKV) CompareAndSwap(ctx context.Context, key, old, value string) (bool, error) {
	ok, err := s.queries.SwapEntry(ctx, key, old, value)
	if err != nil {
		return false, fmt.Errorf("swap %q: %w", key, err)
	}
	if !ok {
		slog.DebugContext(ctx, "KV entry changed since read, not written",
			"dialect", s.queries.d.name,
			"key", key)
	}
	return ok, nil
}

func (s *SQLKV) Remove(ctx context.Context, key string) error {
	if err := s.queries.DeleteEntry(ctx, key); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

func (s *SQLKV) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.queries.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

func (s *SQLKV) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.queries.EntryExists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check %q: %w", key, err)
	}
	return ok, nil
}

// Clear removes every entry in a single transaction.
func (s *SQLKV) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer tx.Rollback()

	if err := s.queries.WithTx(tx).DeleteAll(ctx); err != nil {
		return fmt.Errorf("clear entries: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}
	slog.InfoContext(ctx, "KV store cleared", "dialect", s.queries.d.name)
	return nil
}

func (s *SQLKV) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
