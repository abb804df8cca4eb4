package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantarc/oracled/internal/domain"
	"github.com/quantarc/oracled/internal/oracle"
)

// Ingestor runs the ingestion loop for one symbol: fetch every
// configured feed concurrently, normalize, gate, run consensus, and
// publish the round. All per-source and per-round failures are counted
// and logged; nothing a single cycle does can stop the loop.
type Ingestor struct {
	symbol       string
	policy       domain.Policy
	feeds        []domain.FeedClient
	cache        domain.ConsensusCache
	history      domain.HistoryStore
	bus          domain.SignalBus
	metrics      domain.MetricsSink
	fetchTimeout time.Duration
	cacheTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// NewIngestor creates the per-symbol ingestor. A policy with fewer
// than two required sources is unsound and refused outright, so a
// misconfigured symbol never starts. bus may be nil when no live
// subscribers exist (ingest-only mode without the WS hub).
func NewIngestor(
	symbol string,
	policy domain.Policy,
	feeds []domain.FeedClient,
	cache domain.ConsensusCache,
	history domain.HistoryStore,
	bus domain.SignalBus,
	metrics domain.MetricsSink,
	fetchTimeout, cacheTimeout time.Duration,
	logger *slog.Logger,
) (*Ingestor, error) {
	if policy.MinSources < 2 {
		return nil, fmt.Errorf("pipeline: %w: min_sources must be >= 2, got %d", domain.ErrInvalidPolicy, policy.MinSources)
	}
	if len(feeds) == 0 {
		return nil, fmt.Errorf("pipeline: %w: no feeds configured for %s", domain.ErrInvalidPolicy, symbol)
	}
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &Ingestor{
		symbol:       symbol,
		policy:       policy,
		feeds:        feeds,
		cache:        cache,
		history:      history,
		bus:          bus,
		metrics:      metrics,
		fetchTimeout: fetchTimeout,
		cacheTimeout: cacheTimeout,
		logger:       logger.With(slog.String("symbol", symbol)),
		now:          time.Now,
	}, nil
}

// fetchOutcome is one source's contribution to a cycle.
type fetchOutcome struct {
	source  domain.Source
	payload []byte
	err     error
}

// RunCycle executes one complete cycle and returns the round it
// produced. The returned error is always nil today; the signature
// matches the other pipeline runners.
func (i *Ingestor) RunCycle(ctx context.Context) (domain.ConsensusResult, error) {
	outcomes := i.fetchAll(ctx)

	// Normalize. Fetch and parse failures are counted but produce no
	// quote; they are not gate rejections and do not appear in
	// rejected_sources.
	var quotes []domain.Quote
	for _, o := range outcomes {
		if o.err != nil {
			var ferr *domain.FetchError
			if errors.As(o.err, &ferr) {
				i.metrics.FetchFailure(ferr.Source, ferr.Kind)
			} else {
				i.metrics.FetchFailure(o.source, domain.FetchUnreachable)
			}
			i.logger.Warn("feed fetch failed",
				slog.String("source", string(o.source)),
				slog.String("error", o.err.Error()),
			)
			continue
		}
		q, err := oracle.Normalize(o.source, i.symbol, o.payload)
		if err != nil {
			var nerr *domain.NormalizationError
			if errors.As(err, &nerr) {
				i.metrics.NormalizationFailure(nerr.Source, nerr.Reason)
			}
			i.logger.Warn("normalization failed",
				slog.String("source", string(o.source)),
				slog.String("error", err.Error()),
			)
			continue
		}
		quotes = append(quotes, q)
	}

	// Gate against wall clock at gate time, sampled once for the
	// whole cycle so every quote is judged against the same instant.
	gateNow := i.now()
	var gated []domain.Quote
	var gateRejections []domain.RejectedSource
	for _, q := range quotes {
		reason, ok := oracle.Gate(q, i.policy, gateNow.Unix())
		if !ok {
			i.metrics.GateRejection(q.Source, reason)
			gateRejections = append(gateRejections, domain.RejectedSource{Source: q.Source, Reason: reason})
			continue
		}
		gated = append(gated, q)
	}

	result := oracle.Consensus(i.symbol, gated, i.policy, gateNow)
	result.RoundID = uuid.NewString()
	result.Rejected = append(gateRejections, result.Rejected...)
	for _, r := range result.Rejected[len(gateRejections):] {
		i.metrics.ConsensusRejection(r.Source, r.Reason)
	}
	i.metrics.ConsensusRound(i.symbol, result.Status)

	i.publish(ctx, result)
	return result, nil
}

// fetchAll queries every feed concurrently with a per-source timeout.
// One source hanging or failing never blocks or taints the others.
func (i *Ingestor) fetchAll(ctx context.Context) []fetchOutcome {
	outcomes := make([]fetchOutcome, len(i.feeds))
	var wg sync.WaitGroup
	for idx, fc := range i.feeds {
		wg.Add(1)
		go func(idx int, fc domain.FeedClient) {
			defer wg.Done()
			i.metrics.FetchAttempt(fc.Source())

			fetchCtx, cancel := context.WithTimeout(ctx, i.fetchTimeout)
			defer cancel()

			start := time.Now()
			payload, err := fc.Fetch(fetchCtx, i.symbol)
			i.metrics.FetchLatency(fc.Source(), time.Since(start))

			outcomes[idx] = fetchOutcome{source: fc.Source(), payload: payload, err: err}
		}(idx, fc)
	}
	wg.Wait()
	return outcomes
}

// publish writes the round out. Only Ok rounds touch the cache and the
// signal bus; every round is appended to history for audit. Collaborator
// failures are soft: logged, counted nowhere fatal, cycle completes.
func (i *Ingestor) publish(ctx context.Context, result domain.ConsensusResult) {
	if result.Status == domain.StatusOk {
		cacheCtx, cancel := context.WithTimeout(ctx, i.cacheTimeout)
		if err := i.cache.Put(cacheCtx, result); err != nil {
			i.logger.Error("cache put failed", slog.String("error", err.Error()))
		}
		cancel()

		if i.bus != nil {
			if payload, err := json.Marshal(result); err == nil {
				if err := i.bus.Publish(ctx, "consensus:"+i.symbol, payload); err != nil {
					i.logger.Warn("bus publish failed", slog.String("error", err.Error()))
				}
			}
		}
	}

	if err := i.history.Append(ctx, result); err != nil {
		i.logger.Error("history append failed",
			slog.String("round_id", result.RoundID),
			slog.String("error", err.Error()),
		)
	}
}

// RunLoop runs cycles at the configured cadence until the context is
// cancelled. Cycles are strictly sequential for the symbol: a tick
// that arrives while a cycle is still running is not acted on until
// that cycle finishes.
func (i *Ingestor) RunLoop(ctx context.Context, interval time.Duration) error {
	i.logger.Info("ingestor starting",
		slog.Duration("interval", interval),
		slog.Int("feeds", len(i.feeds)),
	)

	// Run immediately on start.
	if res, _ := i.RunCycle(ctx); res.Status != domain.StatusOk {
		i.logger.Warn("initial cycle did not produce consensus", slog.String("status", string(res.Status)))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			i.logger.Info("ingestor stopped")
			return ctx.Err()
		case <-ticker.C:
			res, _ := i.RunCycle(ctx)
			if ctx.Err() != nil {
				// Shutdown raced the cycle; nothing more to do.
				return ctx.Err()
			}
			i.logger.Debug("cycle complete",
				slog.String("round_id", res.RoundID),
				slog.String("status", string(res.Status)),
			)
		}
	}
}
