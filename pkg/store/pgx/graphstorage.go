// Package pgx implements the graph store on postgres with pgvector. All
// writes are natural-key upserts executed in chunked transactions, so that
// reapplying a batch leaves the tables unchanged.
package pgx

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"momentum/pkg/logger"
	"momentum/pkg/store"
)

const writeChunk = 500

// GraphDBStorage implements store.GraphStorage on a pgx connection pool.
type GraphDBStorage struct {
	conn *pgxpool.Pool
}

var _ store.GraphStorage = (*GraphDBStorage)(nil)

// New connects a storage to the given database URL and registers the
// pgvector types on every pooled connection.
func New(ctx context.Context, databaseURL string) (*GraphDBStorage, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &GraphDBStorage{conn: pool}, nil
}

// Pool exposes the underlying pool for collaborators that share the
// connection, like the lease lock.
func (s *GraphDBStorage) Pool() *pgxpool.Pool {
	return s.conn
}

func (s *GraphDBStorage) Close() {
	s.conn.Close()
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *GraphDBStorage) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// claimNodeKeys registers the chunk's keys in the node registry and returns
// the set that belongs to the requested node type. Keys already registered
// under a different type are rejected and logged.
func claimNodeKeys(ctx context.Context, tx pgx.Tx, keys []string, nodeType string) (map[string]bool, int, error) {
	keys = store.DedupeStrings(keys)
	if len(keys) == 0 {
		return nil, 0, nil
	}
	rows, err := tx.Query(ctx, `
		INSERT INTO node_keys (key, node_type)
		SELECT unnest($1::text[]), $2
		ON CONFLICT (key) DO UPDATE SET node_type = node_keys.node_type
		RETURNING key, node_type
	`, keys, nodeType)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	ok := make(map[string]bool, len(keys))
	rejected := 0
	for rows.Next() {
		var key, existing string
		if err := rows.Scan(&key, &existing); err != nil {
			return nil, 0, err
		}
		if existing != nodeType {
			logger.Error("[Store] Rejecting record: key collides with another node type",
				"key", key, "want", nodeType, "have", existing)
			rejected++
			continue
		}
		ok[key] = true
	}
	return ok, rejected, rows.Err()
}
