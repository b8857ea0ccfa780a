package edgecache

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"
)

// LifecycleState tracks the transition between worker generations.
type LifecycleState int

const (
	StateInstalling LifecycleState = iota
	StateInstalled
	StateActivating
	StateActivated
)

func (s LifecycleState) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	}
	return "unknown"
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() LifecycleState {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.state
}

func (w *Worker) setState(s LifecycleState) {
	w.stateMu.Lock()
	w.state = s
	w.stateMu.Unlock()
}

// Install pre-warms the static partition with the shell asset manifest.
// Pre-warm failures are logged and skipped: a missing optional asset must
// not block activation, it is simply fetched normally on first use.
// Install always succeeds.
func (w *Worker) Install(ctx context.Context) {
	w.setState(StateInstalling)
	w.log.Info().Int("assets", len(w.prewarm)).Msg("Installing: pre-warming static partition")

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, assetPath := range w.prewarm {
		assetPath := assetPath
		g.Go(func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetPath, nil)
			if err != nil {
				w.log.Error().Err(err).Str("path", assetPath).Msg("Could not create pre-warm request")
				w.metrics.PrewarmFailures.Inc()
				return nil
			}
			saver, err := w.fetcher.Fetch(req)
			if err != nil {
				w.log.Warn().Err(err).Str("path", assetPath).Msg("Could not pre-warm asset")
				w.metrics.PrewarmFailures.Inc()
				return nil
			}
			if !w.storeResponse(w.parts.Static, req, saver) {
				w.log.Debug().Int("status", saver.StatusCode()).Str("path", assetPath).
					Msg("Pre-warm response not cacheable")
			}
			return nil
		})
	}
	g.Wait()
	w.setState(StateInstalled)
}

// Activate evicts partitions from older generations, sweeps poisoned 404
// entries out of the static partition, and takes control of traffic.
// It is idempotent: running it twice has no additional effect.
func (w *Worker) Activate(ctx context.Context) error {
	w.setState(StateActivating)

	allowed := make(map[string]bool)
	for _, name := range w.parts.AllowList() {
		allowed[name] = true
	}
	partitions, err := w.cache.Partitions()
	if err != nil {
		return err
	}
	for _, name := range partitions {
		if allowed[name] {
			continue
		}
		w.log.Info().Str("partition", name).Msg("Dropping stale partition")
		if err := w.cache.Drop(name); err != nil {
			w.log.Error().Err(err).Str("partition", name).Msg("Could not drop partition")
		}
	}

	// stale "not found" must not shadow an asset that later becomes
	// available; the per-request self-heal is the other line of defense
	w.sweepNotFound()

	w.setState(StateActivated)
	w.log.Info().Str("version", w.parts.Umbrella).Msg("Activated")
	return nil
}

func (w *Worker) sweepNotFound() {
	poisoned := make([]string, 0)
	w.cache.Keys(w.parts.Static, func(key string, status int) {
		if status == http.StatusNotFound {
			poisoned = append(poisoned, key)
		}
	})
	for _, key := range poisoned {
		w.log.Debug().Str("key", key).Msg("Sweeping cached 404")
		if err := w.cache.Delete(w.parts.Static, key); err != nil {
			w.log.Error().Err(err).Str("key", key).Msg("Could not sweep cached 404")
		}
	}
}

// Run performs the full install/activate transition. The waiting phase is
// always skipped so the new generation takes over immediately.
func (w *Worker) Run(ctx context.Context) error {
	w.Install(ctx)
	return w.Activate(ctx)
}
