package edgecache

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ControlHandler exposes the out-of-band command vocabulary over HTTP,
// for the storefront application and operators. It is meant to be bound
// on a separate listener from proxied traffic.
func (w *Worker) ControlHandler() http.Handler {
	r := chi.NewRouter()

	r.Post("/control/skip-waiting", func(rw http.ResponseWriter, req *http.Request) {
		w.Dispatch(SkipWaiting{})
		rw.WriteHeader(http.StatusNoContent)
	})

	r.Post("/control/cache-urls", func(rw http.ResponseWriter, req *http.Request) {
		var payload struct {
			URLs []string `json:"urls"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			http.Error(rw, "invalid payload", http.StatusBadRequest)
			return
		}
		w.Dispatch(CacheURLs{URLs: payload.URLs})
		rw.WriteHeader(http.StatusNoContent)
	})

	r.Post("/control/clear-cache", func(rw http.ResponseWriter, req *http.Request) {
		var payload struct {
			CacheName string `json:"cacheName"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil || payload.CacheName == "" {
			http.Error(rw, "invalid payload", http.StatusBadRequest)
			return
		}
		w.Dispatch(ClearCache{CacheName: payload.CacheName})
		rw.WriteHeader(http.StatusNoContent)
	})

	r.Get("/control/cache-size", func(rw http.ResponseWriter, req *http.Request) {
		reply := make(chan int64, 1)
		w.Dispatch(GetCacheSize{Reply: reply})
		rw.Header().Set("Content-Type", "application/json")
		json.NewEncoder(rw).Encode(map[string]interface{}{
			"type": "CACHE_SIZE",
			"size": <-reply,
		})
	})

	r.Post("/control/sync", func(rw http.ResponseWriter, req *http.Request) {
		// connectivity-restored trigger; retry/backoff happens inside Sync
		go func() {
			if err := w.syncer.Sync(context.Background()); err != nil {
				w.log.Warn().Err(err).Msg("Background sync gave up")
			}
		}()
		rw.WriteHeader(http.StatusAccepted)
	})

	r.Get("/healthz", func(rw http.ResponseWriter, req *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		json.NewEncoder(rw).Encode(map[string]string{
			"state":   w.State().String(),
			"version": w.parts.Umbrella,
		})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
		w.metrics.Registry, promhttp.HandlerOpts{}))

	return r
}
