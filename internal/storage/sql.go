package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// SQLStore keeps values in the kv_store table of a SQLite or PostgreSQL database.
type SQLStore struct {
	db      *sql.DB
	dialect string
	getQ    string
	putQ    string
	deleteQ string
}

// NewSQLiteStore opens (creating if needed) the SQLite database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	if path == "" {
		return nil, errors.New("storage: sqlite backend requires a database path")
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	if err := migrateUp(BackendSQLite, "sqlite", dsn); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: opening sqlite: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	return newSQLStore(ctx, db, BackendSQLite,
		`SELECT value FROM kv_store WHERE key = ?`,
		`INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		`DELETE FROM kv_store WHERE key = ?`)
}

// NewPostgresStore connects to PostgreSQL using dsn.
func NewPostgresStore(ctx context.Context, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, errors.New("storage: postgres backend requires a connection string")
	}
	if err := migrateUp(BackendPostgres, "postgres", dsn); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: opening postgres: %w", err)
	}
	db.SetMaxOpenConns(5)

	return newSQLStore(ctx, db, BackendPostgres,
		`SELECT value FROM kv_store WHERE key = $1`,
		`INSERT INTO kv_store (key, value, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		`DELETE FROM kv_store WHERE key = $1`)
}

func newSQLStore(ctx context.Context, db *sql.DB, dialect, getQ, putQ, deleteQ string) (*SQLStore, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: pinging %s: %w", dialect, err)
	}
	return &SQLStore{db: db, dialect: dialect, getQ: getQ, putQ: putQ, deleteQ: deleteQ}, nil
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, s.getQ, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: %s get %s: %w", s.dialect, key, err)
	}
	return value, nil
}

func (s *SQLStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, s.putQ, key, value); err != nil {
		return fmt.Errorf("storage: %s put %s: %w", s.dialect, key, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.deleteQ, key); err != nil {
		return fmt.Errorf("storage: %s delete %s: %w", s.dialect, key, err)
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
