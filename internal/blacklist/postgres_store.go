package blacklist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the durable blacklist backed by Postgres.
//
// Schema:
//
//	CREATE TABLE IF NOT EXISTS blacklist (
//	    wallet           TEXT PRIMARY KEY,
//	    reason           TEXT NOT NULL,
//	    linked_rug_count INT NOT NULL DEFAULT 0,
//	    added_at         TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) LoadAll(ctx context.Context) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT wallet, reason, linked_rug_count, added_at FROM blacklist`)
	if err != nil {
		return nil, fmt.Errorf("load blacklist: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Wallet, &e.Reason, &e.LinkedRugCount, &e.AddedAt); err != nil {
			return nil, fmt.Errorf("scan blacklist row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blacklist rows: %w", err)
	}
	return entries, nil
}

// Insert adds the entry if the wallet is not already present. ON CONFLICT
// keeps the insert atomic across concurrent engine instances.
func (s *PostgresStore) Insert(ctx context.Context, e Entry) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO blacklist (wallet, reason, linked_rug_count, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (wallet) DO NOTHING
	`, e.Wallet, e.Reason, e.LinkedRugCount, e.AddedAt)
	if err != nil {
		return false, fmt.Errorf("insert blacklist entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
