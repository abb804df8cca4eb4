package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for history queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// HistoryStore is the append-only record of every consensus round,
// including failed ones. Nothing in the ingestion path updates or
// deletes rows; archival copies old rounds elsewhere but the table is
// never mutated in place.
type HistoryStore interface {
	Append(ctx context.Context, result ConsensusResult) error
	Query(ctx context.Context, symbol string, opts ListOpts) ([]ConsensusResult, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]ConsensusResult, error)
	Count(ctx context.Context, symbol string) (int64, error)
}
