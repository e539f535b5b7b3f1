// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/apitosql/internal/store"
)

const defaultTable = "public.json_ruby"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

// DocumentStoreConfig controls the Postgres connection pool used for documents.
type DocumentStoreConfig struct {
	DSN   string
	Table string
}

type txBeginner interface {
	Begin(context.Context) (pgx.Tx, error)
	Ping(context.Context) error
	Close()
}

// DocumentStore keeps one row per document id in a JSON table and only
// replaces a row with a strictly newer document.
type DocumentStore struct {
	pool  txBeginner
	table string
}

// NewDocumentStore connects to Postgres and verifies the connection.
func NewDocumentStore(ctx context.Context, cfg DocumentStoreConfig) (*DocumentStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &DocumentStore{pool: pool, table: table}, nil
}

// NewDocumentStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewDocumentStoreWithPool(pool txBeginner, table string) (*DocumentStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &DocumentStore{pool: pool, table: table}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *DocumentStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *DocumentStore) createSQL() string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	json_id VARCHAR(50) UNIQUE,
	json_col JSON,
	json_ruby_pk SERIAL4,
	mod_date TIMESTAMP,
	PRIMARY KEY (json_ruby_pk)
)`, s.table)
}

func (s *DocumentStore) upsertSQL() string {
	return fmt.Sprintf(`
INSERT INTO %s AS old (json_id, json_col, mod_date)
VALUES ($1, $2, $3)
ON CONFLICT (json_id) DO UPDATE SET
	json_col = EXCLUDED.json_col,
	mod_date = EXCLUDED.mod_date
WHERE EXCLUDED.mod_date > old.mod_date
RETURNING (xmax = 0)`, s.table)
}

// Upsert creates the table when absent and writes doc in its own transaction.
func (s *DocumentStore) Upsert(ctx context.Context, doc store.Document) (store.Outcome, error) {
	if s == nil || s.pool == nil {
		return "", fmt.Errorf("document store is not configured")
	}
	if err := doc.Validate(); err != nil {
		return "", err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	outcome, err := s.upsert(ctx, tx, doc)
	if err != nil {
		return "", rollback(ctx, tx, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit %s: %w", doc.ID, err)
	}
	return outcome, nil
}

func (s *DocumentStore) upsert(ctx context.Context, tx pgx.Tx, doc store.Document) (store.Outcome, error) {
	if _, err := tx.Exec(ctx, s.createSQL()); err != nil {
		return "", fmt.Errorf("create table %s: %w", s.table, err)
	}
	var inserted bool
	err := tx.QueryRow(ctx, s.upsertSQL(), doc.ID, doc.Raw, doc.StoredAt()).Scan(&inserted)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return store.OutcomeStale, nil
	case err != nil:
		return "", fmt.Errorf("upsert %s: %w", doc.ID, err)
	case inserted:
		return store.OutcomeInserted, nil
	default:
		return store.OutcomeUpdated, nil
	}
}

// Flatten rebuilds public.Mietobjekte, one row per lease of every area unit
// of the stored valuations.
func (s *DocumentStore) Flatten(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("document store is not configured")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if _, err := tx.Exec(ctx, dropFlatSQL); err != nil {
		return rollback(ctx, tx, fmt.Errorf("drop %s: %w", flatTable, err))
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(flattenSQL, flatTable, s.table)); err != nil {
		return rollback(ctx, tx, fmt.Errorf("populate %s: %w", flatTable, err))
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit flatten: %w", err)
	}
	return nil
}

func rollback(ctx context.Context, tx pgx.Tx, cause error) error {
	if err := tx.Rollback(ctx); err != nil {
		return fmt.Errorf("%w (rollback: %v)", cause, err)
	}
	return cause
}
