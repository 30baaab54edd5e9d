package worker

import (
	"context"
	"time"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/mnemo-lab/mnemosyne/pkg/service/shortterm"
	"github.com/mnemo-lab/mnemosyne/pkg/utils/logging"
)

// expiryPurger is implemented by store backends that only purge expired
// entries lazily on access (the in-process backend). The remote store
// expires keys itself.
type expiryPurger interface {
	PurgeExpired(ctx context.Context) int
}

// SweepWorker periodically evicts expired short-term messages and, when
// the store backend supports it, reclaims expired store entries.
//
// Architecture assumptions:
// - Single server instance (no distributed locking)
// - Expired entries are already logically absent; the sweep only bounds
//   memory growth between accesses
type SweepWorker struct {
	store     interfaces.KVStore
	shortTerm *shortterm.Service
	interval  time.Duration
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewSweepWorker creates a new expiry sweep worker
func NewSweepWorker(store interfaces.KVStore, shortTerm *shortterm.Service, interval time.Duration) *SweepWorker {
	return &SweepWorker{
		store:     store,
		shortTerm: shortTerm,
		interval:  interval,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background sweep loop. Does not block startup.
func (w *SweepWorker) Start(ctx context.Context) error {
	logging.Default().Info("expiry sweep worker starting", "interval", w.interval.String())

	go w.run(ctx)

	return nil
}

// Stop signals the worker to stop and waits for completion
func (w *SweepWorker) Stop() {
	logging.Default().Info("expiry sweep worker stopping")
	close(w.stopCh)
	<-w.doneCh
	logging.Default().Info("expiry sweep worker stopped")
}

// run is the main worker loop (runs in goroutine)
func (w *SweepWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sweep(ctx)

		case <-w.stopCh:
			return

		case <-ctx.Done():
			logging.Default().Info("expiry sweep worker context cancelled")
			return
		}
	}
}

// sweep performs a single sweep cycle. Errors never stop the worker.
func (w *SweepWorker) sweep(ctx context.Context) {
	evicted := 0
	if w.shortTerm != nil {
		evicted = w.shortTerm.CleanupAll(ctx)
	}

	purged := 0
	if purger, ok := w.store.(expiryPurger); ok {
		purged = purger.PurgeExpired(ctx)
	}

	if evicted > 0 || purged > 0 {
		logging.Default().Debug("expiry sweep completed",
			"evicted_messages", evicted,
			"purged_entries", purged)
	}
}
