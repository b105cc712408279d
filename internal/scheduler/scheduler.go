package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
	"github.com/josh-kwaku/chainfund-payouts/internal/logging"
	"github.com/josh-kwaku/chainfund-payouts/internal/service/payout"
)

type reconciler interface {
	ReconcileAll(ctx context.Context) (payout.Summary, error)
}

type notifier interface {
	Dispatch(ctx context.Context, notifications []domain.Notification)
}

// Scheduler runs the periodic reconciliation job. Overlapping runs are
// skipped, and a panicking run is recovered and logged.
type Scheduler struct {
	cron       *cron.Cron
	reconciler reconciler
	notifier   notifier
	logger     *slog.Logger
	schedule   string
	timeout    time.Duration
}

func New(r reconciler, n notifier, logger *slog.Logger, schedule string, timeout time.Duration) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))

	return &Scheduler{
		cron:       c,
		reconciler: r,
		notifier:   n,
		logger:     logger,
		schedule:   schedule,
		timeout:    timeout,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.RunReconciliation); err != nil {
		s.logger.Error("failed to schedule reconciliation job", "schedule", s.schedule, "error", err)
		return err
	}
	s.logger.Info("scheduled reconciliation job", "schedule", s.schedule)
	s.cron.Start()
	return nil
}

// Stop waits for a running job to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("reconciliation job still running at shutdown")
	}
}

func (s *Scheduler) RunReconciliation() {
	ctx := logging.WithLogger(context.Background(), s.logger.With("job", "reconciliation"))
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	log := logging.FromContext(ctx)

	start := time.Now()
	summary, err := s.reconciler.ReconcileAll(ctx)
	if err != nil {
		log.Error("reconciliation run failed", "error", err, "updated", summary.Updated)
	} else {
		log.Info("reconciliation run finished",
			"total", summary.Total,
			"updated", summary.Updated,
			"errors", len(summary.Errors),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	// Changes committed before a failure still notify.
	if s.notifier != nil && len(summary.Notifications) > 0 {
		s.notifier.Dispatch(ctx, summary.Notifications)
	}
}
