package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "github.com/mattn/go-sqlite3"    // registers the "sqlite3" database/sql driver

	"github.com/kailas-cloud/tablekit/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Store implements db.Store over database/sql. Each doctype maps to one table.
type Store struct {
	db          *sql.DB
	dialect     Dialect
	tablePrefix string
}

// Option configures a Store.
type Option func(*Store)

// WithTablePrefix maps doctype "x" to table "<prefix>x".
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.tablePrefix = prefix }
}

// New wraps an open database handle.
func New(conn *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{db: conn, dialect: dialect}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenPostgres connects to PostgreSQL through the pgx stdlib driver.
func OpenPostgres(dsn string, opts ...Option) (*Store, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return New(conn, Postgres, opts...), nil
}

// OpenClickHouse connects to ClickHouse from a clickhouse:// DSN.
func OpenClickHouse(dsn string, opts ...Option) (*Store, error) {
	options, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	if options.Compression == nil {
		options.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}
	}
	return New(clickhouse.OpenDB(options), ClickHouse, opts...), nil
}

// OpenSQLite opens a SQLite database file.
func OpenSQLite(path string, opts ...Option) (*Store, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return New(conn, SQLite, opts...), nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (s *Store) Close() {
	_ = s.db.Close()
}

// WaitForReady polls Ping until the database responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// PutDocuments is not supported: SQL tables are owned by the application that writes them.
func (s *Store) PutDocuments(context.Context, string, []db.Document) error {
	return fmt.Errorf("%s: %w", s.dialect.Name, db.ErrUnsupported)
}

func (s *Store) table(doctype string) (string, error) {
	name := s.tablePrefix + doctype
	if !db.IsValidFieldName(name) {
		return "", db.ErrUnknownDoctype
	}
	return name, nil
}
