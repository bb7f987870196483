// Package refresh drives the pull side of the synchronization protocol: five
// pollers claim due work from the store, run their callback and push the next
// deadline back, so load self-paces without any central scheduler.
package refresh

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

// Callbacks hold the work done per due entity. Nil callbacks are no-ops so a
// deployment can run a subset of the pollers.
type Callbacks struct {
	Connector   func(ctx context.Context, connector domain.ConnectorToRefresh) error
	Proxies     func(ctx context.Context, proxies []domain.ProxyToRefresh) error
	Freeproxies func(ctx context.Context, freeproxies []domain.FreeproxyToRefresh) error
	Source      func(ctx context.Context, source domain.Source) error
	Task        func(ctx context.Context, task domain.Task) (domain.Task, error)
}

type Config struct {
	EmptyDelay     time.Duration
	ErrorDelay     time.Duration
	ConnectorDelay time.Duration
	TaskRetryDelay time.Duration
	ProxyBatch     int
	FreeproxyBatch int
}

func DefaultConfig() Config {
	return Config{
		EmptyDelay:     time.Second,
		ErrorDelay:     2 * time.Second,
		ConnectorDelay: 30 * time.Second,
		TaskRetryDelay: 5 * time.Second,
		ProxyBatch:     100,
		FreeproxyBatch: 100,
	}
}

type Runner struct {
	store storage.Store
	cb    Callbacks
	cfg   Config
}

func NewRunner(store storage.Store, cb Callbacks, cfg Config) *Runner {
	defaults := DefaultConfig()
	if cfg.EmptyDelay <= 0 {
		cfg.EmptyDelay = defaults.EmptyDelay
	}
	if cfg.ErrorDelay <= 0 {
		cfg.ErrorDelay = defaults.ErrorDelay
	}
	if cfg.ConnectorDelay <= 0 {
		cfg.ConnectorDelay = defaults.ConnectorDelay
	}
	if cfg.TaskRetryDelay <= 0 {
		cfg.TaskRetryDelay = defaults.TaskRetryDelay
	}
	if cfg.ProxyBatch <= 0 {
		cfg.ProxyBatch = defaults.ProxyBatch
	}
	if cfg.FreeproxyBatch <= 0 {
		cfg.FreeproxyBatch = defaults.FreeproxyBatch
	}
	return &Runner{store: store, cb: cb, cfg: cfg}
}

// Run starts one goroutine per poller and blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return r.loop(ctx, "connectors", r.refreshConnectorsOnce) })
	g.Go(func() error { return r.loop(ctx, "proxies", r.refreshProxiesOnce) })
	g.Go(func() error { return r.loop(ctx, "freeproxies", r.refreshFreeproxiesOnce) })
	g.Go(func() error { return r.loop(ctx, "sources", r.refreshSourcesOnce) })
	g.Go(func() error { return r.loop(ctx, "tasks", r.refreshTasksOnce) })

	return g.Wait()
}

func (r *Runner) loop(ctx context.Context, kind string, once func(ctx context.Context) (bool, error)) error {
	for {
		worked, err := once(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			log.Error("refresh: pass failed", "kind", kind, "error", err)
			if err := sleep(ctx, r.cfg.ErrorDelay); err != nil {
				return err
			}
		case !worked:
			if err := sleep(ctx, r.cfg.EmptyDelay); err != nil {
				return err
			}
		}
	}
}

// refreshConnectorsOnce claims at most one due connector. It reports false
// when nothing is due.
func (r *Runner) refreshConnectorsOnce(ctx context.Context) (bool, error) {
	now := nowMs()

	connector, err := r.store.GetNextConnectorToRefresh(ctx, now)
	if storage.NoWorkAvailable(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if r.cb.Connector != nil {
		if err := r.cb.Connector(ctx, connector); err != nil {
			log.Error("refresh: connector pass failed",
				"connector", connector.ID, "error", err)
		}
	}

	next := now + r.cfg.ConnectorDelay.Milliseconds()
	err = r.store.UpdateConnectorNextRefreshTs(ctx, connector.ProjectID, connector.ID, next)
	if storage.IsNotFound(err) {
		// Removed while we were working on it.
		return true, nil
	}
	return true, err
}

func (r *Runner) refreshProxiesOnce(ctx context.Context) (bool, error) {
	now := nowMs()

	proxies, err := r.store.GetNextProxiesToRefresh(ctx, now, r.cfg.ProxyBatch)
	if storage.NoWorkAvailable(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if r.cb.Proxies != nil {
		if err := r.cb.Proxies(ctx, proxies); err != nil {
			log.Error("refresh: proxies pass failed", "count", len(proxies), "error", err)
		}
	}

	ids := make([]string, 0, len(proxies))
	for _, proxy := range proxies {
		ids = append(ids, proxy.ID)
	}
	// Each row adds its own disconnect timeout on top of the base, so a busy
	// fleet spreads itself out.
	err = r.store.UpdateProxiesNextRefreshTs(ctx, ids, now)
	if storage.IsNotFound(err) {
		return true, nil
	}
	return true, err
}

func (r *Runner) refreshFreeproxiesOnce(ctx context.Context) (bool, error) {
	now := nowMs()

	freeproxies, err := r.store.GetNextFreeproxiesToRefresh(ctx, now, r.cfg.FreeproxyBatch)
	if storage.NoWorkAvailable(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if r.cb.Freeproxies != nil {
		if err := r.cb.Freeproxies(ctx, freeproxies); err != nil {
			log.Error("refresh: freeproxies pass failed", "count", len(freeproxies), "error", err)
		}
	}

	ids := make([]string, 0, len(freeproxies))
	for _, freeproxy := range freeproxies {
		ids = append(ids, freeproxy.ID)
	}
	err = r.store.UpdateFreeproxiesNextRefreshTs(ctx, ids, now)
	if storage.IsNotFound(err) {
		return true, nil
	}
	return true, err
}

// refreshSourcesOnce fetches one due source, records the attempt outcome on
// the row and reschedules it by its own delay.
func (r *Runner) refreshSourcesOnce(ctx context.Context) (bool, error) {
	now := nowMs()

	source, err := r.store.GetNextSourceToRefresh(ctx, now)
	if storage.NoWorkAvailable(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var refreshErr error
	if r.cb.Source != nil {
		refreshErr = r.cb.Source(ctx, source)
	}

	source.LastRefreshTs = &now
	source.LastRefreshError = nil
	if refreshErr != nil {
		message := refreshErr.Error()
		source.LastRefreshError = &message
		log.Error("refresh: source fetch failed", "source", source.ID, "url", source.URL, "error", refreshErr)
	}

	if err := r.store.UpdateSources(ctx, []domain.Source{source}); err != nil && !storage.IsNotFound(err) {
		return true, err
	}

	err = r.store.UpdateSourceNextRefreshTs(ctx, source.ProjectID, source.ConnectorID, source.ID, now+source.Delay)
	if storage.IsNotFound(err) {
		return true, nil
	}
	return true, err
}

// refreshTasksOnce claims one due task under the task lock, runs a step and
// writes the stepped task back, which also releases the lock.
func (r *Runner) refreshTasksOnce(ctx context.Context) (bool, error) {
	now := nowMs()

	task, err := r.store.GetNextTaskToRefresh(ctx, now)
	if storage.NoWorkAvailable(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := r.store.LockTask(ctx, task.ProjectID, task.ID); err != nil {
		return true, err
	}

	if r.cb.Task != nil {
		stepped, err := r.cb.Task(ctx, task)
		if err != nil {
			log.Error("refresh: task step failed", "task", task.ID, "error", err)
			task.Message = err.Error()
			task.NextRetryTs = now + r.cfg.TaskRetryDelay.Milliseconds()
		} else {
			task = stepped
		}
	}

	err = r.store.UpdateTask(ctx, task)
	if storage.IsNotFound(err) {
		return true, nil
	}
	return true, err
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
