/*
scheduler.go - Stale staging janitor

PURPOSE:
  Periodically drops staging snapshots that no longer carry pending work.
  A snapshot is stale when it reconciles as identical to production: the
  same ids and canonically equal content. Such a copy is what clients
  ignore on load anyway, so purging it only removes clutter.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Uses workflow.ComputeDiff, the same comparison clients reconcile with
  - Skips domains whose staging is empty or differs from production
  - Records each purge for audit (GET /api/janitor/runs)

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether the janitor is active (default: true)

RACES:
  The purge is conditional (store.PurgeIfUnchanged): a save that lands
  after the janitor read staging makes the purge a no-op, and the new
  snapshot is judged on the next sweep.

USAGE:
  janitor := NewStagingJanitor(store, logger)
  janitor.Start()
  // ... later
  janitor.Stop()

SEE ALSO:
  - workflow/reconcile.go: ComputeDiff
  - store/store.go: PurgeIfUnchanged, RecordPurge
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/staging-engine/catalog"
	"github.com/warp/staging-engine/store"
	"github.com/warp/staging-engine/workflow"
)

// StagingJanitor purges stale staging snapshots.
type StagingJanitor struct {
	Store         store.Store
	Logger        *zap.Logger
	Domains       []catalog.Domain
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewStagingJanitor creates a janitor over the given domains, or every
// registered domain when none are given.
func NewStagingJanitor(st store.Store, logger *zap.Logger, domains ...catalog.Domain) *StagingJanitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(domains) == 0 {
		domains = catalog.Domains()
	}
	return &StagingJanitor{
		Store:         st,
		Logger:        logger.Named("janitor"),
		Domains:       domains,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
	}
}

// Start begins the janitor. It sweeps once immediately.
func (j *StagingJanitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.Enabled {
		j.Logger.Info("disabled, not starting")
		return
	}
	if j.ticker != nil {
		return
	}

	j.ticker = time.NewTicker(j.CheckInterval)
	j.stop = make(chan struct{})
	j.wg.Add(1)

	go j.run(j.ticker, j.stop)

	j.Logger.Info("started", zap.Duration("interval", j.CheckInterval))
}

// Stop stops the janitor and waits for an in-progress sweep.
func (j *StagingJanitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.ticker == nil {
		return
	}
	j.ticker.Stop()
	close(j.stop)
	j.wg.Wait()
	j.ticker = nil
	j.Logger.Info("stopped")
}

func (j *StagingJanitor) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer j.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	j.RunNow(ctx)

	for {
		select {
		case <-ticker.C:
			j.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow sweeps every domain once and returns how many records were
// purged per domain. Domains with nothing purged are omitted.
func (j *StagingJanitor) RunNow(ctx context.Context) map[string]int {
	purged := make(map[string]int)
	for _, d := range j.Domains {
		if ctx.Err() != nil {
			break
		}
		n, err := j.sweep(ctx, d)
		if err != nil {
			j.Logger.Warn("sweep failed", zap.String("domain", d.Name), zap.Error(err))
			continue
		}
		if n > 0 {
			purged[d.Name] = n
		}
	}
	if len(purged) > 0 {
		j.Logger.Info("sweep completed", zap.Any("purged", purged))
	}
	return purged
}

func (j *StagingJanitor) sweep(ctx context.Context, d catalog.Domain) (int, error) {
	staged, err := j.Store.List(ctx, store.Staging, d.Name)
	if err != nil || len(staged) == 0 {
		return 0, err
	}
	production, err := j.Store.List(ctx, store.Production, d.Name)
	if err != nil {
		return 0, err
	}

	diff := workflow.ComputeDiff(staged, production, nil)
	if diff.Pending() {
		return 0, nil
	}

	n, err := j.Store.PurgeIfUnchanged(ctx, store.Staging, d.Name, staged)
	if errors.Is(err, store.ErrChanged) {
		j.Logger.Debug("staging changed during sweep, kept", zap.String("domain", d.Name))
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if err := j.Store.RecordPurge(ctx, store.PurgeRun{Domain: d.Name, RecordCount: n}); err != nil {
		j.Logger.Warn("purge not recorded", zap.String("domain", d.Name), zap.Error(err))
	}
	j.Logger.Debug("stale staging purged", zap.String("domain", d.Name), zap.Int("count", n))
	return n, nil
}

// NextRunTime returns when the next scheduled sweep will occur.
func (j *StagingJanitor) NextRunTime() time.Time {
	return time.Now().Add(j.CheckInterval)
}
