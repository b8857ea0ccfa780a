package edgecache

import "net/http"

// servePage satisfies a page navigation network-first from the storefront
// origin, caching rendered pages in the dynamic partition. When the origin
// is unreachable the cached copy is served, then the pre-cached offline
// document, then a synthesized plain-text 503.
func (w *Worker) servePage(rw http.ResponseWriter, r *http.Request) error {
	saver, err := w.fetcher.Fetch(r)
	if err == nil {
		w.storeResponse(w.parts.Dynamic, r, saver)
		w.metrics.Misses.WithLabelValues("page").Inc()
		cs := CacheStatus{}
		cs.Forward(fwdReasonMiss)
		return w.send(rw, r, saver, cs)
	}

	w.log.Debug().Err(err).Str("url", r.URL.String()).Msg("Page fetch failed, trying cache")
	if entry, found, cacheErr := w.cache.Get(w.parts.Dynamic, requestKey(r)); cacheErr == nil && found {
		w.metrics.Hits.WithLabelValues("page").Inc()
		cs := CacheStatus{}
		cs.Hit()
		cs.Detail("offline")
		return w.sendCached(rw, r, entry, cs)
	}

	if entry, found, cacheErr := w.cache.Get(w.parts.Static, w.offlinePath); cacheErr == nil && found {
		cs := CacheStatus{}
		cs.Hit()
		cs.Detail("offline-page")
		return w.sendCached(rw, r, entry, cs)
	}

	writeOfflineText(rw)
	return nil
}
