package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/dmoretti/lifeline/internal/logger"
)

// Runner drives the engine from its two triggers: the offline->online
// edge and a periodic schedule. It owns a single goroutine; triggers
// arriving while a drain is in flight collapse into the engine's no-op.
type Runner struct {
	engine   *Engine
	interval time.Duration

	mu       sync.Mutex
	started  bool
	wakeCh   chan Trigger
	stopCh   chan struct{}
	stopped  chan struct{}
}

// NewRunner creates a runner draining every interval. An interval of zero
// disables the periodic trigger; online and manual triggers still work.
func NewRunner(engine *Engine, interval time.Duration) *Runner {
	return &Runner{
		engine:   engine,
		interval: interval,
		wakeCh:   make(chan Trigger, 1),
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start launches the drain loop. Idempotent.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	logger.Info("Sync runner started", "interval", r.interval.String())
	go r.loop(ctx)
}

// Stop shuts the loop down and waits for it to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	close(r.stopCh)
	<-r.stopped
}

// NotifyOnline signals the offline->online edge. Non-blocking; a pending
// wake is enough.
func (r *Runner) NotifyOnline() {
	r.wake(TriggerOnline)
}

// RequestSync force-triggers a drain outside the normal edge, for the
// control channel and CLI.
func (r *Runner) RequestSync() {
	r.wake(TriggerManual)
}

func (r *Runner) wake(trigger Trigger) {
	select {
	case r.wakeCh <- trigger:
	default:
		// A wake is already pending; the coming drain covers this one.
	}
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.stopped)

	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case trigger := <-r.wakeCh:
			r.drain(ctx, trigger)
		case <-tick:
			r.drain(ctx, TriggerInterval)
		}
	}
}

func (r *Runner) drain(ctx context.Context, trigger Trigger) {
	if _, err := r.engine.Drain(ctx, trigger); err != nil {
		// Degrade to "try again next trigger"; never crash the process.
		logger.Error("Drain failed", logger.KeyTrigger, string(trigger), "error", err)
	}
}
