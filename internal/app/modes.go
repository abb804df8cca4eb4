package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantarc/oracled/internal/pipeline"
	"github.com/quantarc/oracled/internal/server"
	"github.com/quantarc/oracled/internal/server/handler"
	"github.com/quantarc/oracled/internal/server/ws"
)

// IngestMode runs only the fetch/consensus pipeline. The HTTP API, if
// enabled, is not started; another process in serve mode handles reads.
func (a *App) IngestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting ingest mode")

	orch := pipeline.NewOrchestrator(
		deps.Ingestors,
		deps.Archiver,
		a.cfg.Pipeline.PollInterval.Duration,
		a.cfg.Pipeline.ArchiveCron,
		a.logger,
	)
	return orch.Run(ctx)
}

// ServeMode runs only the HTTP + WebSocket API over the cache and history
// written by an ingest process elsewhere.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the ingest pipeline and the API server in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	orch := pipeline.NewOrchestrator(
		deps.Ingestors,
		deps.Archiver,
		a.cfg.Pipeline.PollInterval.Duration,
		a.cfg.Pipeline.ArchiveCron,
		a.logger,
	)
	g.Go(func() error {
		return orch.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// startHTTPServer adds the API server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return err
	})

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimiter:     deps.RateLimiter,
		RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(deps.Oracle, a.logger),
		Prices:  handler.NewPriceHandler(deps.Oracle, deps.Metrics, a.logger),
		History: handler.NewHistoryHandler(deps.Oracle, deps.Metrics, a.logger),
	}, hub, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
