// Package sweeper periodically finalizes lapsed CANCEL_PENDING
// registrations. The lifecycle is correct without it (observation
// finalizes lazily); the sweep keeps rows from lingering unobserved.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"volunteerhub/pkg/requestcontext"
)

const batchSize = 200

// Finalizer is the sweep entry point on the registration service.
type Finalizer interface {
	Sweep(ctx context.Context, limit int) (int, error)
}

// Sweeper drives periodic finalization on a cron schedule.
type Sweeper struct {
	finalizer Finalizer
	interval  time.Duration
	logger    *slog.Logger
	cron      *cron.Cron
}

func New(finalizer Finalizer, interval time.Duration, logger *slog.Logger) (*Sweeper, error) {
	if finalizer == nil {
		return nil, fmt.Errorf("finalizer is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		finalizer: finalizer,
		interval:  interval,
		logger:    logger,
		cron:      cron.New(),
	}, nil
}

// Start schedules the sweep and begins running it. Runs overlap-free:
// cron skips a tick while the previous run is still in flight.
func (s *Sweeper) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.interval)
	_, err := s.cron.AddJob(spec, cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(
		cron.FuncJob(func() { s.run(ctx) }),
	))
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits for an in-flight run to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) run(ctx context.Context) {
	// One instant per batch; the service reads the clock from the context.
	ctx = requestcontext.WithTime(ctx, time.Now())
	finalized, err := s.finalizer.Sweep(ctx, batchSize)
	if err != nil {
		s.logger.WarnContext(ctx, "finalization sweep failed", "error", err)
		return
	}
	if finalized > 0 {
		s.logger.InfoContext(ctx, "finalization sweep completed", "finalized", finalized)
	}
}
