package edgecache

import "net/http"

// serveAPI satisfies an API request network-first: freshness is prioritized
// over speed. Successful responses are stored in the API partition so that
// stale data can be served when the backend becomes unreachable.
func (w *Worker) serveAPI(rw http.ResponseWriter, r *http.Request) error {
	saver, err := w.fetcher.FetchAPI(r)
	if err == nil {
		if w.storeResponse(w.parts.API, r, saver) {
			w.metrics.Misses.WithLabelValues("api").Inc()
		}
		cs := CacheStatus{}
		cs.Forward(fwdReasonMiss)
		return w.send(rw, r, saver, cs)
	}

	w.log.Debug().Err(err).Str("url", r.URL.String()).Msg("API fetch failed, trying cache")
	if entry, found, cacheErr := w.cache.Get(w.parts.API, requestKey(r)); cacheErr == nil && found {
		// stale API data is preferred over no data
		w.metrics.Hits.WithLabelValues("api").Inc()
		cs := CacheStatus{}
		cs.Hit()
		cs.Detail("offline")
		return w.sendCached(rw, r, entry, cs)
	}

	writeOfflineJSON(rw)
	return nil
}
