package billing

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReelPass/internal/pkg/config"
)

// Reconciler periodically verifies stale pending payments with the gateway,
// for checkouts whose webhook never arrived and whose user never came back.
type Reconciler struct {
	svc *Service
	cfg config.ReconcileConfig

	mu      sync.Mutex
	running bool
	ticker  *time.Ticker
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewReconciler(svc *Service, cfg config.ReconcileConfig) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Reconciler{svc: svc, cfg: cfg}
}

// Start launches the worker. Calling it twice is a no-op.
func (r *Reconciler) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.stopCh = make(chan struct{})
	r.running = true
	r.ticker = time.NewTicker(r.cfg.Interval)
	r.wg.Add(1)
	go r.worker()
	log.Infof("[Reconciler] Started, interval %s, min age %s", r.cfg.Interval, r.cfg.MinAge)
}

// Stop halts the worker and waits for a running pass to finish.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.ticker.Stop()
	close(r.stopCh)
	r.running = false
	r.mu.Unlock()

	r.wg.Wait()
	log.Info("[Reconciler] Stopped")
}

func (r *Reconciler) worker() {
	defer r.wg.Done()
	for {
		select {
		case <-r.stopCh:
			return
		case <-r.ticker.C:
			r.RunOnce()
		}
	}
}

// RunOnce performs a single reconcile pass.
func (r *Reconciler) RunOnce() int {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Interval)
	defer cancel()

	n, err := r.svc.ReconcilePending(ctx, r.cfg.MinAge, r.cfg.BatchSize)
	if err != nil {
		log.Errorw("[Reconciler] pass failed", "error", err)
	}
	return n
}
