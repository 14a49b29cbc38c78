package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-client/internal/service"
)

// Scheduler is the core flush-run entry point the worker drives.
type Scheduler interface {
	RunOnce(ctx context.Context) service.RunResult
}

// SyncWorker is the periodic adapter behind service.SchedulerPort: it owns
// the OS-level ticker that wakes the Background Sync Scheduler. Register
// and Unregister are idempotent.
type SyncWorker struct {
	scheduler Scheduler
	interval  time.Duration
	log       zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSyncWorker creates a new SyncWorker.
func NewSyncWorker(scheduler Scheduler, interval time.Duration, log zerolog.Logger) *SyncWorker {
	return &SyncWorker{
		scheduler: scheduler,
		interval:  interval,
		log:       log.With().Str("component", "sync_worker").Logger(),
	}
}

// Register starts the periodic ticker. Registering while already registered
// is a no-op returning success.
func (w *SyncWorker) Register() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.loop(ctx, w.done)
	w.log.Info().Dur("interval", w.interval).Msg("Background sync registered")
	return nil
}

// Unregister stops the ticker and waits for the loop to exit.
// Unregistering when not registered is a no-op.
func (w *SyncWorker) Unregister() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	<-done
	w.log.Info().Msg("Background sync unregistered")
	return nil
}

// IsRegistered reports whether the periodic ticker is active.
func (w *SyncWorker) IsRegistered() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

func (w *SyncWorker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result := w.scheduler.RunOnce(ctx)
			w.log.Debug().Str("result", string(result)).Msg("Periodic sync tick")
		}
	}
}
