package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"payment-console/internal/domain"

	"github.com/lib/pq"
)

const (
	createStateTable = `CREATE TABLE IF NOT EXISTS agent_state (
		key VARCHAR(64) PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP NOT NULL
	)`

	getStateQuery    = `SELECT value FROM agent_state WHERE key = $1`
	upsertStateQuery = `INSERT INTO agent_state (key, value, updated_at) VALUES ($1, $2, CURRENT_TIMESTAMP) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	deleteStateQuery = `DELETE FROM agent_state WHERE key = ANY($1)`
)

// KVStore keeps the agent's durable keys in a single agent_state table.
type KVStore struct {
	db         *sql.DB
	tx         *TxManager
	getStmt    *sql.Stmt
	upsertStmt *sql.Stmt
	deleteStmt *sql.Stmt
}

// NewKVStore creates the agent_state table if needed and prepares statements.
func NewKVStore(ctx context.Context, db *sql.DB) (*KVStore, error) {
	if _, err := db.ExecContext(ctx, createStateTable); err != nil {
		return nil, fmt.Errorf("failed to create agent_state table: %w", err)
	}

	store := &KVStore{db: db, tx: NewTxManager(db)}

	var err error
	store.getStmt, err = db.PrepareContext(ctx, getStateQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare get statement: %w", err)
	}

	store.upsertStmt, err = db.PrepareContext(ctx, upsertStateQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare upsert statement: %w", err)
	}

	store.deleteStmt, err = db.PrepareContext(ctx, deleteStateQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	return store, nil
}

func (s *KVStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.getStmt.QueryRowContext(ctx, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

func (s *KVStore) Set(ctx context.Context, key, value string) error {
	if _, err := s.upsertStmt.ExecContext(ctx, key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// SetMany writes every value inside one transaction.
func (s *KVStore) SetMany(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	return s.tx.WithTx(ctx, func(tx *sql.Tx) error {
		for _, key := range sortedKeys(values) {
			if _, err := tx.ExecContext(ctx, upsertStateQuery, key, values[key]); err != nil {
				return fmt.Errorf("failed to set %s: %w", key, err)
			}
		}
		return nil
	})
}

func (s *KVStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := s.deleteStmt.ExecContext(ctx, pq.Array(keys)); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

func (s *KVStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the prepared statements. The *sql.DB stays open.
func (s *KVStore) Close() error {
	var errs []error
	for _, stmt := range []*sql.Stmt{s.getStmt, s.upsertStmt, s.deleteStmt} {
		if stmt != nil {
			errs = append(errs, stmt.Close())
		}
	}
	return errors.Join(errs...)
}

// sortedKeys gives SetMany a stable write order so concurrent writers lock rows
// in the same sequence.
func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
