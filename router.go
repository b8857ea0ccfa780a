package edgecache

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"path"
	"strings"

	tee "github.com/muhlstore/edgecache/pkg/response-writer-tee"
)

// Schemes handled natively by the browser, never intercepted.
var extensionSchemes = map[string]bool{
	"chrome-extension": true,
	"moz-extension":    true,
	"safari-extension": true,
	"chrome-search":    true,
}

// Third-party font hosts are passed straight to network, never cached.
var fontHosts = map[string]bool{
	"fonts.googleapis.com": true,
	"fonts.gstatic.com":    true,
}

var staticExtensions = map[string]bool{
	".js": true, ".css": true, ".map": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".svg": true, ".ico": true, ".webp": true, ".avif": true, ".bmp": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true, ".otf": true,
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".svg": true, ".ico": true, ".webp": true, ".avif": true, ".bmp": true,
}

// Streaming media is never cached, regardless of status.
var mediaExtensions = map[string]bool{
	".mp4": true, ".webm": true, ".ogg": true, ".ogv": true,
	".avi": true, ".mov": true, ".mkv": true,
	".mp3": true, ".wav": true, ".flac": true, ".aac": true,
	".m4a": true, ".opus": true,
}

const uploadPathPrefix = "/uploads/"

// ServeHTTP implements the http.Handler interface.
// Every request is classified into exactly one lane and dispatched to the
// matching strategy. A failing strategy degrades to direct pass-through;
// nothing escapes this boundary as a panic.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			w.log.Error().Interface("panic", rec).Str("url", r.URL.String()).
				Msg("Strategy panicked, passing request through")
			w.passThrough(rw, r)
		}
	}()

	if extensionSchemes[r.URL.Scheme] {
		// not ours to intercept
		w.passThrough(rw, r)
		return
	}

	if r.Method != http.MethodGet {
		w.metrics.Requests.WithLabelValues("mutation").Inc()
		w.serveMutation(rw, r)
		return
	}

	var err error
	switch {
	case strings.HasPrefix(r.URL.Path, w.apiPrefix):
		w.metrics.Requests.WithLabelValues("api").Inc()
		err = w.serveAPI(rw, r)
	case isStaticAsset(r.URL.Path):
		w.metrics.Requests.WithLabelValues("static").Inc()
		err = w.serveStatic(rw, r)
	default:
		w.metrics.Requests.WithLabelValues("page").Inc()
		err = w.servePage(rw, r)
	}
	if err != nil {
		// a bug in a strategy must never surface to the client;
		// fall back to plain pass-through
		w.log.Error().Err(err).Str("url", r.URL.String()).Msg("Strategy failed, passing request through")
		w.passThrough(rw, r)
	}
}

// serveMutation forwards non-GET traffic without any caching.
// A network failure becomes a synthesized 503 JSON error instead of
// propagating uncaught.
func (w *Worker) serveMutation(rw http.ResponseWriter, r *http.Request) {
	// buffer the body so a failed request can be queued for background sync
	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
	}
	saver, err := w.fetchFor(r)
	if err != nil {
		w.log.Debug().Err(err).Str("url", r.URL.String()).Msg("Mutation failed on network")
		w.syncer.QueueIfSyncable(r, body)
		writeOfflineJSON(rw)
		return
	}
	cs := CacheStatus{}
	cs.Forward(fwdReasonMethod)
	w.send(rw, r, saver, cs)
}

// fetchFor picks the fetch target for a request: API-prefixed and upload
// paths go to the API origin during development, everything else to the
// storefront origin.
func (w *Worker) fetchFor(r *http.Request) (*tee.ResponseSaver, error) {
	if strings.HasPrefix(r.URL.Path, w.apiPrefix) || strings.HasPrefix(r.URL.Path, uploadPathPrefix) {
		return w.fetcher.FetchAPI(r)
	}
	return w.fetcher.Fetch(r)
}

// passThrough forwards the request with no cache involvement.
// If even the network fails, a silent empty 404 is returned, deliberately
// choosing a degraded response over a hard failure.
func (w *Worker) passThrough(rw http.ResponseWriter, r *http.Request) {
	saver, err := w.fetcher.Fetch(r)
	if err != nil {
		writeEmptyNotFound(rw)
		return
	}
	copyHeader(rw.Header(), saver.Header())
	rw.WriteHeader(saver.StatusCode())
	rw.Write(saver.Body())
}

func isStaticAsset(p string) bool {
	return staticExtensions[strings.ToLower(path.Ext(p))]
}

func isMediaPath(p string) bool {
	return mediaExtensions[strings.ToLower(path.Ext(p))]
}

// isImageOrUpload reports whether the request looks like an optional image
// or a user upload, for which 404s are expected and silenced.
func isImageOrUpload(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, uploadPathPrefix) {
		return true
	}
	if imageExtensions[strings.ToLower(path.Ext(r.URL.Path))] {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "image/")
}

func isFontHost(host string) bool {
	return fontHosts[host]
}

// writeOfflineJSON synthesizes the 503 error body used for API and
// mutation requests that fail at the network level.
func writeOfflineJSON(rw http.ResponseWriter) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(rw).Encode(map[string]string{
		"error":   "offline",
		"message": "Sem conexão com o servidor. Tente novamente mais tarde.",
	})
}

// writeEmptyNotFound synthesizes the silent empty 404 used when a static
// asset cannot be resolved from cache or network.
func writeEmptyNotFound(rw http.ResponseWriter) {
	rw.WriteHeader(http.StatusNotFound)
}

// writeOfflineText synthesizes the plain-text 503 used when a page
// navigation cannot be satisfied at all.
func writeOfflineText(rw http.ResponseWriter) {
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.WriteHeader(http.StatusServiceUnavailable)
	rw.Write([]byte("Offline: a loja não está acessível no momento."))
}
