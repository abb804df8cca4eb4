package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cosmossdk.io/math"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantarc/oracled/internal/domain"
)

// HistoryStore implements domain.HistoryStore using PostgreSQL. The
// consensus_rounds table is append-only; nothing here updates or
// deletes rows.
type HistoryStore struct {
	pool *pgxpool.Pool
}

// NewHistoryStore creates a new HistoryStore backed by the given connection pool.
func NewHistoryStore(pool *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

const roundSelectCols = `round_id, symbol, status, median_price, median_expo,
	accepted_sources, rejected_sources, computed_at`

func scanRoundRows(rows pgx.Rows) ([]domain.ConsensusResult, error) {
	var results []domain.ConsensusResult
	for rows.Next() {
		var (
			r            domain.ConsensusResult
			medianStr    string
			acceptedJSON []byte
			rejectedJSON []byte
		)
		if err := rows.Scan(
			&r.RoundID, &r.Symbol, &r.Status, &medianStr, &r.MedianExpo,
			&acceptedJSON, &rejectedJSON, &r.ComputedAt,
		); err != nil {
			return nil, err
		}
		median, ok := math.NewIntFromString(medianStr)
		if !ok {
			return nil, fmt.Errorf("invalid median_price %q for round %s", medianStr, r.RoundID)
		}
		r.MedianPrice = median
		if err := json.Unmarshal(acceptedJSON, &r.Accepted); err != nil {
			return nil, fmt.Errorf("decode accepted_sources for round %s: %w", r.RoundID, err)
		}
		if err := json.Unmarshal(rejectedJSON, &r.Rejected); err != nil {
			return nil, fmt.Errorf("decode rejected_sources for round %s: %w", r.RoundID, err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Append records one consensus round. Failed rounds are appended too,
// so the history is a complete audit trail.
func (s *HistoryStore) Append(ctx context.Context, result domain.ConsensusResult) error {
	accepted := result.Accepted
	if accepted == nil {
		accepted = []domain.Source{}
	}
	rejected := result.Rejected
	if rejected == nil {
		rejected = []domain.RejectedSource{}
	}
	acceptedJSON, err := json.Marshal(accepted)
	if err != nil {
		return fmt.Errorf("postgres: marshal accepted_sources: %w", err)
	}
	rejectedJSON, err := json.Marshal(rejected)
	if err != nil {
		return fmt.Errorf("postgres: marshal rejected_sources: %w", err)
	}

	const query = `
		INSERT INTO consensus_rounds (
			round_id, symbol, status, median_price, median_expo,
			accepted_sources, rejected_sources, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (round_id) DO NOTHING`

	if _, err := s.pool.Exec(ctx, query,
		result.RoundID, result.Symbol, string(result.Status),
		result.MedianPrice.String(), result.MedianExpo,
		acceptedJSON, rejectedJSON, result.ComputedAt,
	); err != nil {
		return fmt.Errorf("postgres: append round %s: %w", result.RoundID, err)
	}
	return nil
}

// Query returns the most recent rounds for a symbol, newest first.
func (s *HistoryStore) Query(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.ConsensusResult, error) {
	query := `SELECT ` + roundSelectCols + ` FROM consensus_rounds WHERE symbol = $1 ORDER BY computed_at DESC`
	args := []any{symbol}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query rounds for %s: %w", symbol, err)
	}
	defer rows.Close()

	results, err := scanRoundRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan rounds for %s: %w", symbol, err)
	}
	return results, nil
}

// ListBefore returns rounds computed strictly before the cutoff,
// oldest first, capped at limit (for archiving).
func (s *HistoryStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ConsensusResult, error) {
	query := `SELECT ` + roundSelectCols + ` FROM consensus_rounds WHERE computed_at < $1 ORDER BY computed_at ASC`
	args := []any{cutoff}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list rounds before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	defer rows.Close()

	results, err := scanRoundRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan rounds before cutoff: %w", err)
	}
	return results, nil
}

// Count returns the number of recorded rounds for a symbol.
func (s *HistoryStore) Count(ctx context.Context, symbol string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM consensus_rounds WHERE symbol = $1", symbol).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count rounds for %s: %w", symbol, err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.HistoryStore = (*HistoryStore)(nil)
