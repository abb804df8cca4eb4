// Package service contains the read-side facade over the consensus cache
// and round history. Handlers call into this layer rather than touching
// Redis or Postgres directly.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantarc/oracled/internal/domain"
)

// HealthState classifies the freshness of a symbol's latest consensus.
type HealthState string

const (
	HealthHealthy HealthState = "healthy"
	HealthStale   HealthState = "stale"
	HealthNoData  HealthState = "no_data"
)

// SymbolHealth reports the freshness of one symbol's latest consensus value.
type SymbolHealth struct {
	Symbol       string      `json:"symbol"`
	State        HealthState `json:"state"`
	AgeSec       int64       `json:"age_sec"`
	ThresholdSec int64       `json:"threshold_sec"`
}

// OracleService serves reads against the consensus cache and round history.
// It never triggers fetches or recomputation; the ingest pipeline owns writes.
type OracleService struct {
	cache      domain.ConsensusCache
	history    domain.HistoryStore
	thresholds map[string]int64 // symbol -> max staleness seconds
	logger     *slog.Logger

	now func() time.Time
}

// NewOracleService creates an OracleService. thresholds maps each configured
// symbol to its staleness bound in seconds, used by Health.
func NewOracleService(
	cache domain.ConsensusCache,
	history domain.HistoryStore,
	thresholds map[string]int64,
	logger *slog.Logger,
) *OracleService {
	return &OracleService{
		cache:      cache,
		history:    history,
		thresholds: thresholds,
		logger:     logger,
		now:        time.Now,
	}
}

// Symbols returns the configured symbols in no particular order.
func (s *OracleService) Symbols() []string {
	out := make([]string, 0, len(s.thresholds))
	for sym := range s.thresholds {
		out = append(out, sym)
	}
	return out
}

// Latest returns the most recent consensus for a symbol from the cache.
// Returns domain.ErrUnknownSymbol for symbols outside the configured set and
// domain.ErrNotFound when no round has been cached yet.
func (s *OracleService) Latest(ctx context.Context, symbol string) (domain.ConsensusResult, error) {
	if _, ok := s.thresholds[symbol]; !ok {
		return domain.ConsensusResult{}, fmt.Errorf("oracle_service: latest %q: %w", symbol, domain.ErrUnknownSymbol)
	}
	res, err := s.cache.Get(ctx, symbol)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ConsensusResult{}, fmt.Errorf("oracle_service: latest %q: %w", symbol, domain.ErrNotFound)
		}
		return domain.ConsensusResult{}, fmt.Errorf("oracle_service: latest %q: %w", symbol, err)
	}
	return res, nil
}

// LatestAll returns the latest cached consensus for every configured symbol.
// Symbols without a cached round are omitted; cache errors for one symbol are
// logged and do not fail the whole call.
func (s *OracleService) LatestAll(ctx context.Context) (map[string]domain.ConsensusResult, error) {
	out := make(map[string]domain.ConsensusResult, len(s.thresholds))
	for sym := range s.thresholds {
		res, err := s.cache.Get(ctx, sym)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				s.logger.WarnContext(ctx, "oracle_service: latest all: cache read failed",
					slog.String("symbol", sym),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		out[sym] = res
	}
	return out, nil
}

// History returns the most recent rounds for a symbol, newest first,
// along with the total number of recorded rounds so clients can page.
func (s *OracleService) History(ctx context.Context, symbol string, limit, offset int) ([]domain.ConsensusResult, int64, error) {
	if _, ok := s.thresholds[symbol]; !ok {
		return nil, 0, fmt.Errorf("oracle_service: history %q: %w", symbol, domain.ErrUnknownSymbol)
	}
	rounds, err := s.history.Query(ctx, symbol, domain.ListOpts{Limit: limit, Offset: offset})
	if err != nil {
		return nil, 0, fmt.Errorf("oracle_service: history %q: %w", symbol, err)
	}
	total, err := s.history.Count(ctx, symbol)
	if err != nil {
		return nil, 0, fmt.Errorf("oracle_service: history count %q: %w", symbol, err)
	}
	return rounds, total, nil
}

// Health reports whether the latest cached consensus for a symbol is within
// its configured staleness bound. A symbol with no cached round is no_data.
func (s *OracleService) Health(ctx context.Context, symbol string) (SymbolHealth, error) {
	threshold, ok := s.thresholds[symbol]
	if !ok {
		return SymbolHealth{}, fmt.Errorf("oracle_service: health %q: %w", symbol, domain.ErrUnknownSymbol)
	}
	h := SymbolHealth{Symbol: symbol, ThresholdSec: threshold}

	res, err := s.cache.Get(ctx, symbol)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.State = HealthNoData
			return h, nil
		}
		return SymbolHealth{}, fmt.Errorf("oracle_service: health %q: %w", symbol, err)
	}

	age := res.Age(s.now())
	h.AgeSec = int64(age / time.Second)
	if h.AgeSec > threshold {
		h.State = HealthStale
	} else {
		h.State = HealthHealthy
	}
	return h, nil
}

// HealthAll reports freshness for every configured symbol.
func (s *OracleService) HealthAll(ctx context.Context) ([]SymbolHealth, error) {
	out := make([]SymbolHealth, 0, len(s.thresholds))
	for sym := range s.thresholds {
		h, err := s.Health(ctx, sym)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}
