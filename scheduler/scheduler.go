package scheduler

import (
	"context"
	"log/slog"
	"time"
)

type Reindexer interface {
	ReindexIfNeeded(ctx context.Context) error
}

// Scheduler periodically rebalances the vector index as the chunk table
// grows. It owns no other state; skipping a run only delays index
// maintenance.
type Scheduler struct {
	checkInterval time.Duration
	indexManager  Reindexer
	logger        *slog.Logger
}

func New(checkInterval time.Duration, indexManager Reindexer, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		checkInterval: checkInterval,
		indexManager:  indexManager,
		logger:        logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting index maintenance scheduler",
		slog.Duration("check_interval", s.checkInterval))

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.indexManager.ReindexIfNeeded(ctx); err != nil {
				s.logger.Error("Index maintenance failed",
					slog.String("error", err.Error()))
			}
		case <-ctx.Done():
			s.logger.Info("Stopping index maintenance scheduler")
			return
		}
	}
}
