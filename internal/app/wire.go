package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/quantarc/oracled/internal/blob/s3"
	"github.com/quantarc/oracled/internal/cache/redis"
	"github.com/quantarc/oracled/internal/config"
	"github.com/quantarc/oracled/internal/domain"
	"github.com/quantarc/oracled/internal/feed"
	"github.com/quantarc/oracled/internal/metrics"
	"github.com/quantarc/oracled/internal/pipeline"
	"github.com/quantarc/oracled/internal/service"
	"github.com/quantarc/oracled/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	ConsensusCache domain.ConsensusCache
	HistoryStore   domain.HistoryStore
	SignalBus      domain.SignalBus
	RateLimiter    domain.RateLimiter
	Metrics        domain.MetricsSink

	Feeds     *feed.Registry
	Ingestors []*pipeline.Ingestor
	Archiver  *pipeline.Archiver // nil unless archival is enabled

	Oracle *service.OracleService
}

// needsIngest returns true for modes that run the fetch/consensus loop.
func needsIngest(mode string) bool {
	return mode == "ingest" || mode == "full"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (round history) ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}
	history := postgres.NewHistoryStore(pgClient.Pool())
	deps.HistoryStore = history

	// --- Redis (consensus cache + signal bus) ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.ConsensusCache = redis.NewConsensusCache(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	// --- Metrics ---
	deps.Metrics = metrics.New()

	// --- Ingest pipeline (feeds + per-symbol ingestors) ---
	if needsIngest(cfg.Mode) {
		deps.Feeds = feed.NewRegistry(cfg.Feeds, cfg.Symbols)

		for _, sym := range cfg.Symbols {
			clients, err := deps.Feeds.Resolve(sym.Sources)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: feeds for %s: %w", sym.Symbol, err)
			}
			ing, err := pipeline.NewIngestor(
				sym.Symbol,
				sym.Policy(),
				clients,
				deps.ConsensusCache,
				deps.HistoryStore,
				deps.SignalBus,
				deps.Metrics,
				cfg.Pipeline.FetchTimeout.Duration,
				cfg.Pipeline.CacheTimeout.Duration,
				logger,
			)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: ingestor for %s: %w", sym.Symbol, err)
			}
			deps.Ingestors = append(deps.Ingestors, ing)
		}

		// --- S3 archival (optional) ---
		if cfg.Pipeline.ArchiveEnabled {
			s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
				Endpoint:       cfg.S3.Endpoint,
				Region:         cfg.S3.Region,
				Bucket:         cfg.S3.Bucket,
				AccessKey:      cfg.S3.AccessKey,
				SecretKey:      cfg.S3.SecretKey,
				UseSSL:         cfg.S3.UseSSL,
				ForcePathStyle: cfg.S3.ForcePathStyle,
			})
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: s3: %w", err)
			}
			closers = append(closers, func() { _ = s3Client.Close() })

			blobArchiver := s3blob.NewArchiver(s3blob.NewWriter(s3Client), history)
			deps.Archiver = pipeline.NewArchiver(blobArchiver, cfg.Pipeline.ArchiveRetentionDays, logger)
		}
	}

	// --- Read-side service ---
	thresholds := make(map[string]int64, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		thresholds[sym.Symbol] = sym.MaxStalenessSec
	}
	deps.Oracle = service.NewOracleService(deps.ConsensusCache, deps.HistoryStore, thresholds, logger)

	return deps, cleanup, nil
}
