package repair

import (
	"context"
	"log/slog"
	"time"
)

// Pass is one repair strategy run over a batch of unresolved records.
type Pass interface {
	Name() string
	Run(ctx context.Context, limit int) (RunResult, error)
}

// Scheduler runs the repair passes sequentially on a fixed interval. Passes
// never run concurrently: each one feeds the next (artists unlock albums,
// albums unlock songs) and they all write the same tables.
type Scheduler struct {
	passes    []Pass
	batchSize int
	logger    *slog.Logger
}

// NewScheduler creates a scheduler running the given passes in order.
func NewScheduler(batchSize int, logger *slog.Logger, passes ...Pass) *Scheduler {
	return &Scheduler{
		passes:    passes,
		batchSize: batchSize,
		logger:    logger.With(slog.String("component", "scheduler")),
	}
}

// RunOnce runs every pass once and returns the combined result. A failing
// pass ends the cycle; whatever earlier passes fixed is kept.
func (s *Scheduler) RunOnce(ctx context.Context) (RunResult, error) {
	var total RunResult
	for _, pass := range s.passes {
		result, err := pass.Run(ctx, s.batchSize)
		total = total.Add(result)
		if err != nil {
			return total, err
		}
		s.logger.Info("pass complete",
			slog.String("pass", pass.Name()),
			slog.Int("processed", result.Processed),
			slog.Int("fixed", result.Fixed))
	}
	return total, nil
}

// Start runs repair cycles until the context is canceled, one immediately
// and then one per interval. Blocks; callers run it in a goroutine.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	s.logger.Info("starting", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := s.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			s.logger.Error("repair cycle failed", slog.String("error", err.Error()))
		} else if err == nil {
			s.logger.Info("cycle complete",
				slog.Int("processed", result.Processed),
				slog.Int("fixed", result.Fixed))
		}

		select {
		case <-ctx.Done():
			s.logger.Info("stopping")
			return
		case <-ticker.C:
		}
	}
}
