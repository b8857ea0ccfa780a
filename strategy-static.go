package edgecache

import (
	"net/http"
)

// serveStatic satisfies a static-asset request cache-first from the static
// partition, with self-healing of poisoned 404 entries.
//
// Fallback order on network failure is explicit: cached copy, then (for
// non-image assets) one more network retry, then a silent empty 404.
// Missing optional images must never block page rendering.
func (w *Worker) serveStatic(rw http.ResponseWriter, r *http.Request) error {
	// third-party font hosts go straight to network, never cached
	if isFontHost(r.URL.Host) {
		w.passThrough(rw, r)
		return nil
	}

	key := requestKey(r)
	entry, found, err := w.cache.Get(w.parts.Static, key)
	if err != nil {
		// cache unavailable for this operation, continue network-only
		w.log.Trace().Err(err).Str("key", key).Msg("Cache read failed")
		found = false
	}
	if found {
		if entry.Status == http.StatusNotFound {
			// poisoned entry: a previously-missing asset gets a fresh
			// network attempt instead of staying cached as absent
			w.metrics.SelfHeals.Inc()
			w.log.Debug().Str("key", key).Msg("Evicting stale 404 entry")
			if err := w.cache.Delete(w.parts.Static, key); err != nil {
				w.log.Error().Err(err).Str("key", key).Msg("Could not evict stale 404 entry")
			}
		} else {
			w.metrics.Hits.WithLabelValues("static").Inc()
			cs := CacheStatus{}
			cs.Hit()
			return w.sendCached(rw, r, entry, cs)
		}
	}

	w.metrics.Misses.WithLabelValues("static").Inc()
	saver, err := w.fetchFor(r)
	if err != nil {
		return w.staticFallback(rw, r)
	}
	w.storeResponse(w.parts.Static, r, saver)
	if w.env.IsDevelopment && saver.StatusCode() >= 400 && !w.suppressStaticWarning(r, saver.StatusCode()) {
		w.log.Warn().Int("status", saver.StatusCode()).Str("url", r.URL.String()).
			Msg("Static asset returned error status")
	}
	cs := CacheStatus{}
	cs.Forward(fwdReasonMiss)
	return w.send(rw, r, saver, cs)
}

// suppressStaticWarning silences 404s for image and upload paths; missing
// user-uploaded or optional images are expected and must not spam
// diagnostics.
func (w *Worker) suppressStaticWarning(r *http.Request, status int) bool {
	return status == http.StatusNotFound && isImageOrUpload(r)
}

// staticFallback is the recovery chain for static assets whose network
// fetch failed at the transport level.
func (w *Worker) staticFallback(rw http.ResponseWriter, r *http.Request) error {
	key := requestKey(r)

	// last-resort cache read: any valid (non-404) entry will do
	if entry, found, err := w.cache.Get(w.parts.Static, key); err == nil && found &&
		entry.Status != http.StatusNotFound {
		w.metrics.Hits.WithLabelValues("static").Inc()
		cs := CacheStatus{}
		cs.Hit()
		cs.Detail("offline")
		return w.sendCached(rw, r, entry, cs)
	}

	// one more direct network attempt, except for images and uploads,
	// which fail silently and immediately
	if !isImageOrUpload(r) {
		if saver, err := w.fetchFor(r); err == nil {
			w.storeResponse(w.parts.Static, r, saver)
			cs := CacheStatus{}
			cs.Forward(fwdReasonMiss)
			cs.Detail("retry")
			return w.send(rw, r, saver, cs)
		}
	}

	writeEmptyNotFound(rw)
	return nil
}
