package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator runs one ingestor goroutine per symbol plus the
// optional archiver cron. Symbol loops are fully independent; one
// symbol's collaborator trouble never affects another's cadence.
type Orchestrator struct {
	ingestors    []*Ingestor
	archiver     *Archiver
	pollInterval time.Duration
	archiveCron  string
	logger       *slog.Logger
}

// NewOrchestrator creates an Orchestrator. archiver may be nil when
// archival is disabled.
func NewOrchestrator(
	ingestors []*Ingestor,
	archiver *Archiver,
	pollInterval time.Duration,
	archiveCron string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		ingestors:    ingestors,
		archiver:     archiver,
		pollInterval: pollInterval,
		archiveCron:  archiveCron,
		logger:       logger,
	}
}

// Run starts every symbol loop as a concurrent goroutine using an
// errgroup. Ingestors only ever return on context cancellation, so in
// practice Run blocks until shutdown; the error plumbing exists for
// the archiver's unrecoverable cron-parse failure.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Duration("poll_interval", o.pollInterval),
		slog.Int("symbols", len(o.ingestors)),
	)

	g, ctx := errgroup.WithContext(ctx)

	for _, ing := range o.ingestors {
		g.Go(func() error {
			err := ing.RunLoop(ctx, o.pollInterval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("ingestor %s: %w", ing.symbol, err)
		})
	}

	if o.archiver != nil {
		g.Go(func() error {
			o.logger.Info("starting archiver cron")
			err := o.archiver.RunCron(ctx, o.archiveCron)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
