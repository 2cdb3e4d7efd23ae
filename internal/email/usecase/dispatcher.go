package usecase

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// AccountSyncer is the entry point the dispatcher drives.
type AccountSyncer interface {
	SyncAccount(ctx context.Context, accountID string) error
}

// Dispatcher runs account syncs in the background, e.g. right after an account is
// linked or when a push notification arrives. An account already waiting in the queue
// is not queued twice.
type Dispatcher struct {
	syncer      AccountSyncer
	queue       chan string
	workerCount int
	logger      *zap.Logger

	mu      sync.Mutex
	pending map[string]bool
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewDispatcher(syncer AccountSyncer, workerCount, queueSize int, logger *zap.Logger) *Dispatcher {
	if workerCount <= 0 {
		workerCount = 2
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Dispatcher{
		syncer:      syncer,
		queue:       make(chan string, queueSize),
		workerCount: workerCount,
		logger:      logger.Named("dispatcher"),
		pending:     make(map[string]bool),
	}
}

// Start launches the workers. They stop when ctx is cancelled or Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.workerCount; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	d.started = true
	d.logger.Info("dispatcher started", zap.Int("workers", d.workerCount))
}

// Stop cancels running syncs, drops queued ones and waits for the workers to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	cancel := d.cancel
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
	d.logger.Info("dispatcher stopped")
}

// Submit queues a sync for the account without blocking. It reports false when the
// queue is full or the dispatcher is stopped.
func (d *Dispatcher) Submit(accountID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	if d.pending[accountID] {
		return true
	}
	select {
	case d.queue <- accountID:
		d.pending[accountID] = true
		return true
	default:
		d.logger.Warn("sync queue full, dropping request", zap.String("account_id", accountID))
		return false
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case accountID := <-d.queue:
			d.mu.Lock()
			delete(d.pending, accountID)
			d.mu.Unlock()
			d.run(ctx, accountID)
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, accountID string) {
	log := d.logger.With(zap.String("account_id", accountID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("background sync panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	if err := d.syncer.SyncAccount(ctx, accountID); err != nil {
		log.Warn("background sync failed", zap.Error(err))
	}
}
