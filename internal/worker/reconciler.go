package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gastos/internal/core"
	"gastos/internal/log"
)

// ReconcilerConfig holds configuration for the periodic reconciler.
type ReconcilerConfig struct {
	// Interval is how often to reconcile (default: 15m)
	Interval time.Duration

	// Months is how many months back from the current one to cover (default: 2)
	Months int
}

func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Interval: 15 * time.Minute,
		Months:   2,
	}
}

// Reconciler periodically re-mirrors recent months so events lost while the
// broker or a mirror was unavailable are eventually applied.
type Reconciler struct {
	worker *SyncWorker
	config ReconcilerConfig
	now    func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewReconciler(worker *SyncWorker, config ReconcilerConfig) *Reconciler {
	if config.Interval <= 0 {
		config.Interval = DefaultReconcilerConfig().Interval
	}
	if config.Months <= 0 {
		config.Months = 1
	}
	return &Reconciler{worker: worker, config: config, now: time.Now}
}

// Start begins the loop. Returns an error if already running.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reconciler is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.runLoop(ctx)

	log.FromContext(ctx).WithComponent(log.ComponentWorker).InfoContext(ctx, "Reconciler started",
		"interval", r.config.Interval,
		"months", r.config.Months)
	return nil
}

// Stop signals the loop and waits for it to finish or for ctx to end.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	stopCh, doneCh := r.stopCh, r.doneCh
	r.running = false
	r.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Reconciler) runLoop(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.RunOnce(ctx)
	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// Periods returns the months covered by one pass, newest first.
func (r *Reconciler) Periods() []core.Period {
	p := core.CurrentPeriod(r.now())
	out := make([]core.Period, 0, r.config.Months)
	for i := 0; i < r.config.Months; i++ {
		out = append(out, p)
		p = p.Prev()
	}
	return out
}

// RunOnce reconciles every covered month, logging failures.
func (r *Reconciler) RunOnce(ctx context.Context) {
	logger := log.FromContext(ctx).WithComponent(log.ComponentWorker)
	for _, p := range r.Periods() {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.worker.ReconcileMonth(ctx, p); err != nil {
			logger.WarnContext(ctx, "Reconciliation failed",
				log.FieldPeriod, p.String(),
				log.FieldError, err)
		}
	}
}
