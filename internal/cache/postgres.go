package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps keys in a two-column table.
// The table name must already be validated as an identifier.
type PostgresStore struct {
	db    *pgxpool.Pool
	table string
	owned bool
}

// NewPostgresStore creates the table if needed. When owned is true, Close
// also closes the pool.
func NewPostgresStore(ctx context.Context, db *pgxpool.Pool, table string, owned bool) (*PostgresStore, error) {
	s := &PostgresStore{db: db, table: pgx.Identifier{table}.Sanitize(), owned: owned}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, s.table)
	if _, err := db.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create cache table: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, s.table),
		key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select %s: %w", key, err)
	}
	return value, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (key, value, updated_at) VALUES ($1, $2, now())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, s.table),
		key, value,
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE key = ANY($1)`, s.table),
		keys,
	)
	if err != nil {
		return fmt.Errorf("delete keys: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.owned {
		s.db.Close()
	}
	return nil
}
