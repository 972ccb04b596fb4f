// Package janitor implements background cleanup of expired capture targets,
// expired URI results and orphan files. It runs independently from the app
// Service so file lifecycle stays out of the request path.
package janitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/haukened/snap/internal/metrics"
)

// Store is the slice of app.CaptureStore the janitor drives.
type Store interface {
	// ExpireBefore deletes files whose expiry precedes t and returns the number removed.
	ExpireBefore(ctx context.Context, t time.Time) (int, error)
	// Reconcile removes files without ledger rows and rows without files.
	Reconcile(ctx context.Context) error
}

// Recorder receives cycle metrics. Satisfied by *metrics.Manager.
type Recorder interface {
	Inc(name string, delta int64)
	Observe(name string, value int64)
}

// Config holds tunables for the Janitor.
type Config struct {
	Interval time.Duration    // how often a cycle begins
	Logger   *slog.Logger     // optional logger (defaults to slog.Default())
	Metrics  Recorder         // optional
	Now      func() time.Time // optional clock (defaults to time.Now)
}

// Stats is a read-only snapshot of janitor activity.
type Stats struct {
	Cycles        uint64
	Expired       uint64
	Failures      uint64
	LastDuration  time.Duration
	LastCompleted time.Time
}

// Janitor encapsulates the background cleanup loop.
type Janitor struct {
	store Store
	cfg   Config

	mu    sync.Mutex
	stats Stats

	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	once    sync.Once
}

// New constructs but does not start a Janitor.
func New(store Store, cfg Config) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Janitor{
		store:  store,
		cfg:    cfg,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start runs one cycle immediately, so files left by a previous process are
// swept at boot, then launches the periodic loop.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	if j.started {
		j.mu.Unlock()
		return
	}
	j.started = true
	j.mu.Unlock()
	go j.loop(ctx)
}

// Stop signals the loop to exit and waits for completion. Stopping a janitor
// that was never started returns immediately.
func (j *Janitor) Stop() {
	j.once.Do(func() { close(j.stopCh) })
	j.mu.Lock()
	started := j.started
	j.mu.Unlock()
	if started {
		<-j.doneCh
	}
}

// Stats returns a copy of current stats.
func (j *Janitor) Stats() Stats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stats
}

func (j *Janitor) loop(ctx context.Context) {
	log := j.cfg.Logger.With("domain", "janitor")
	ticker := time.NewTicker(j.cfg.Interval)
	defer func() {
		ticker.Stop()
		close(j.doneCh)
	}()
	j.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("janitor stop", "reason", "context_cancel")
			return
		case <-j.stopCh:
			log.Info("janitor stop", "reason", "stop_signal")
			return
		case <-ticker.C:
			j.RunCycle(ctx)
		}
	}
}

// RunCycle performs one expiry + reconcile pass.
func (j *Janitor) RunCycle(ctx context.Context) {
	start := j.cfg.Now()
	log := j.cfg.Logger.With("domain", "janitor", "action", "cycle")
	failed := false

	count, err := j.store.ExpireBefore(ctx, start.UTC())
	if err != nil && !errors.Is(err, context.Canceled) {
		failed = true
		log.Error("expire", "error", err)
	}
	if rerr := j.store.Reconcile(ctx); rerr != nil && !errors.Is(rerr, context.Canceled) {
		failed = true
		log.Error("reconcile", "error", rerr)
	}
	elapsed := j.cfg.Now().Sub(start)

	j.mu.Lock()
	j.stats.Cycles++
	if count > 0 {
		j.stats.Expired += uint64(count)
	}
	if failed {
		j.stats.Failures++
	}
	j.stats.LastDuration = elapsed
	j.stats.LastCompleted = start.Add(elapsed)
	j.mu.Unlock()

	if j.cfg.Metrics != nil {
		j.cfg.Metrics.Inc(metrics.CounterFilesExpired, int64(count))
		j.cfg.Metrics.Observe(metrics.SummaryJanitorDeletedPerCycle, int64(count))
	}
	log.Info("cycle complete", "expired", count, "ms", elapsed.Milliseconds())
}
