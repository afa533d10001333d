package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the SQL DDL for the correction_history table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS correction_history (
    id         BIGSERIAL PRIMARY KEY,
    kind       TEXT NOT NULL,
    source     TEXT NOT NULL DEFAULT '',
    result     TEXT NOT NULL,
    tone       TEXT NOT NULL DEFAULT '',
    version    INT NOT NULL DEFAULT 0,
    total      INT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_correction_history_created ON correction_history(created_at);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db   DB
	pool *pgxpool.Pool
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Connect opens a connection pool for dsn, verifies it with a ping and
// returns a migrated store. Closing the store closes the pool.
func Connect(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}

	s := &PostgresStore{db: pool, pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate executes the [Schema] DDL against the database, creating the
// correction_history table and index if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Record inserts a new history entry.
func (s *PostgresStore) Record(ctx context.Context, e Entry) error {
	const query = `
		INSERT INTO correction_history (kind, source, result, tone, version, total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	err := s.db.QueryRow(ctx, query, string(e.Kind), e.Source, e.Result, e.Tone, e.Version, e.Total, createdAt).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("history: record: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT id, kind, source, result, tone, version, total, created_at
		FROM correction_history
		ORDER BY created_at DESC, id DESC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.Source, &e.Result, &e.Tone, &e.Version, &e.Total, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: recent scan: %w", err)
		}
		e.Kind = Kind(kind)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: recent rows: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than the retention period.
func (s *PostgresStore) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	const query = `DELETE FROM correction_history WHERE created_at < $1`

	cutoff := time.Now().UTC().Add(-retention)
	tag, err := s.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close closes the underlying pool when the store owns one.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
