package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Syncer is the periodic job the scheduler drives.
type Syncer interface {
	SyncAllAccounts(ctx context.Context) error
}

// SyncScheduler runs SyncAllAccounts on a fixed interval
type SyncScheduler struct {
	syncer   Syncer
	interval time.Duration
	logger   *zap.Logger

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
}

func NewSyncScheduler(syncer Syncer, interval time.Duration, logger *zap.Logger) *SyncScheduler {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &SyncScheduler{
		syncer:   syncer,
		interval: interval,
		logger:   logger.Named("scheduler"),
	}
}

// Start begins the scheduler loop. The first run happens immediately.
func (s *SyncScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.logger.Info("starting sync scheduler", zap.Duration("interval", s.interval))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.RunOnce(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.RunOnce(ctx)
			case <-ctx.Done():
				s.logger.Info("sync scheduler stopped")
				return
			}
		}
	}()
}

// Stop cancels the running pass, if any, and waits for the loop to exit.
func (s *SyncScheduler) Stop() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
	s.wg.Wait()
}

// RunOnce runs a single pass. It reports false without running when a pass is
// already in progress.
func (s *SyncScheduler) RunOnce(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous sync pass still running, skipping")
		return false
	}
	defer s.running.Store(false)

	started := time.Now()
	if err := s.syncer.SyncAllAccounts(ctx); err != nil {
		s.logger.Error("sync pass failed", zap.Error(err))
		return true
	}
	s.logger.Info("sync pass finished", zap.Duration("elapsed", time.Since(started)))
	return true
}
