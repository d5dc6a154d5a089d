package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sales-reconciler/internal/broker"
	"sales-reconciler/internal/models"
	"sales-reconciler/internal/service"
	"sales-reconciler/internal/timeparse"
	"sales-reconciler/internal/util"

	"go.uber.org/zap"
)

// Syncer is the live sync surface the workers drive.
type Syncer interface {
	SyncToday(ctx context.Context, force bool) (*service.SyncResult, error)
	SyncProductDate(ctx context.Context, productID int64, date time.Time, force bool) (*service.SyncResult, error)
}

// SyncWorker consumes sync.requested commands
type SyncWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	syncer       Syncer
	logger       *zap.Logger
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(consumer *broker.Consumer, syncer Syncer) *SyncWorker {
	w := &SyncWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		syncer:       syncer,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnSyncRequested(w.HandleSyncRequested)
	return w
}

// Start starts the worker
func (w *SyncWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting sync worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *SyncWorker) Stop() error {
	w.logger.Info("Stopping sync worker")
	return w.consumer.Close()
}

// HandleSyncRequested runs the requested sync. A sync already running
// elsewhere is not an error; the message is acknowledged.
func (w *SyncWorker) HandleSyncRequested(ctx context.Context, event *models.SyncRequestedEvent) error {
	var (
		result *service.SyncResult
		err    error
	)

	if event.ProductID > 0 {
		date, perr := timeparse.ParseDate(event.Date)
		if perr != nil {
			// a malformed command will never succeed, drop it
			w.logger.Warn("Dropping sync request with bad date",
				zap.String("event_id", event.EventID),
				zap.String("date", event.Date))
			return nil
		}
		result, err = w.syncer.SyncProductDate(ctx, event.ProductID, date, event.Force)
	} else {
		result, err = w.syncer.SyncToday(ctx, event.Force)
	}

	if errors.Is(err, service.ErrSyncInProgress) {
		w.logger.Info("Sync already in progress, request dropped", zap.String("event_id", event.EventID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run requested sync: %w", err)
	}

	w.logger.Info("Requested sync finished",
		zap.String("scope", result.Scope),
		zap.Bool("throttled", result.Throttled),
		zap.Int("recorded", result.Stats.Recorded))
	return nil
}

// Scheduler runs SyncToday on a fixed interval
type Scheduler struct {
	syncer   Syncer
	interval time.Duration
	logger   *zap.Logger
}

// NewScheduler creates a scheduler. A non-positive interval disables it.
func NewScheduler(syncer Syncer, interval time.Duration) *Scheduler {
	return &Scheduler{syncer: syncer, interval: interval, logger: util.GetLogger()}
}

// Start blocks until ctx is done
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info("Sync scheduler disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	s.logger.Info("Starting sync scheduler", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	result, err := s.syncer.SyncToday(ctx, false)
	switch {
	case errors.Is(err, service.ErrSyncInProgress):
		s.logger.Debug("Scheduled sync skipped, another sync holds the lock")
	case err != nil:
		s.logger.Error("Scheduled sync failed", zap.Error(err))
	case result.Throttled:
		s.logger.Debug("Scheduled sync throttled")
	default:
		s.logger.Info("Scheduled sync finished", zap.Int("recorded", result.Stats.Recorded))
	}
}
