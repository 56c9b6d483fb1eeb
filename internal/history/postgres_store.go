package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentinel-trading/sentinel/internal/solana"
)

// PostgresStore is the durable history store.
//
// Schema:
//
//	CREATE TABLE IF NOT EXISTS creator_history (
//	    token_mint          TEXT PRIMARY KEY,
//	    creator             TEXT NOT NULL,
//	    outcome             TEXT NOT NULL DEFAULT 'unknown',
//	    pnl_pct             DOUBLE PRECISION,
//	    funding_source      TEXT NOT NULL DEFAULT '',
//	    funding_source_hop2 TEXT NOT NULL DEFAULT ''
//	);
//	CREATE INDEX IF NOT EXISTS idx_history_creator ON creator_history (creator);
//	CREATE INDEX IF NOT EXISTS idx_history_funder  ON creator_history (funding_source);
//	CREATE INDEX IF NOT EXISTS idx_history_funder2 ON creator_history (funding_source_hop2);
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) InsertIfAbsent(ctx context.Context, rec Record) error {
	outcome := rec.Outcome
	if outcome == "" {
		outcome = OutcomeUnknown
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO creator_history (token_mint, creator, outcome, funding_source, funding_source_hop2)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token_mint) DO NOTHING
	`, rec.TokenMint, rec.Creator, string(outcome), rec.FundingSource, rec.FundingSourceHop2)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateOutcome(ctx context.Context, mint solana.Pubkey, outcome Outcome, pnlPct float64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE creator_history SET outcome = $2, pnl_pct = $3 WHERE token_mint = $1
	`, mint, string(outcome), pnlPct)
	if err != nil {
		return fmt.Errorf("update history outcome: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountCreatorsSharingFunder(ctx context.Context, funder solana.Pubkey) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT creator) FROM creator_history
		WHERE funding_source = $1 OR funding_source_hop2 = $1
	`, funder).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count creators sharing funder: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountRugsForCreator(ctx context.Context, creator solana.Pubkey) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM creator_history WHERE creator = $1 AND outcome = 'rug'
	`, creator).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count rugs for creator: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountRugsSharingFunder(ctx context.Context, funder solana.Pubkey) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM creator_history
		WHERE (funding_source = $1 OR funding_source_hop2 = $1) AND outcome = 'rug'
	`, funder).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count rugs sharing funder: %w", err)
	}
	return count, nil
}
