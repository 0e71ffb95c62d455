package worker

import (
	"context"
	"time"

	"enrollment-service/internal/util"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// pruneSchedule runs daily at 03:30; the first field is seconds
const pruneSchedule = "0 30 3 * * *"

// EventPruner deletes old idempotency records
type EventPruner interface {
	PruneProcessedEvents(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler runs periodic maintenance jobs
type Scheduler struct {
	cron      *cron.Cron
	pruner    EventPruner
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewScheduler creates a scheduler that keeps processed events for
// retentionDays.
func NewScheduler(pruner EventPruner, retentionDays int) *Scheduler {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &Scheduler{
		cron:      cron.New(cron.WithSeconds()),
		pruner:    pruner,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// Start registers jobs and starts the scheduler
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(pruneSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_, _ = s.PruneProcessedEvents(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("Scheduler started", zap.String("prune_schedule", pruneSchedule))
	return nil
}

// Stop waits for running jobs to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// PruneProcessedEvents removes processed-event rows older than the retention
// window.
func (s *Scheduler) PruneProcessedEvents(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)

	deleted, err := s.pruner.PruneProcessedEvents(ctx, cutoff)
	if err != nil {
		s.logger.Error("Failed to prune processed events", zap.Error(err))
		return 0, err
	}

	s.logger.Info("Pruned processed events",
		zap.Int64("deleted", deleted),
		zap.Time("cutoff", cutoff))
	return deleted, nil
}
