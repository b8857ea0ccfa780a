package edgecache

import (
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/muhlstore/edgecache/cache"
	serializer "github.com/muhlstore/edgecache/pkg/response-serializer"
	tee "github.com/muhlstore/edgecache/pkg/response-writer-tee"

	"github.com/rs/zerolog"
)

type Config struct {
	// Storage for cache partitions.
	Cache cache.CacheProvider
	// URL of the storefront origin server.
	// Origins with paths are not supported.
	OriginURL url.URL
	// URL the worker itself is reachable at.
	// Drives development/production classification.
	PublicURL url.URL
	// Product name embedded in partition names. Defaults to "muhlstore".
	Product string
	// Partition version. Bumping it marks all older partitions for
	// deletion on activation. Defaults to "1".
	Version string
	// Path prefix routed to the API strategy. Defaults to "/api/".
	APIPrefix string
	// Paths pre-fetched into the static partition at install time.
	// Defaults to DefaultPrewarmManifest.
	PrewarmManifest []string
	// Path of the pre-cached offline fallback document.
	// Defaults to "/offline.html".
	OfflinePath string
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
}

// DefaultPrewarmManifest is the fixed list of shell assets fetched and
// cached at install time.
var DefaultPrewarmManifest = []string{
	"/",
	"/index.html",
	"/static/js/bundle.js",
	"/static/css/main.css",
	"/manifest.json",
	"/favicon.ico",
	"/logo192.png",
	"/offline.html",
}

// Worker is the request interception and cache management core.
// It classifies every request into one of three lanes (API, static asset,
// page navigation) and satisfies it with the matching cache strategy.
// It implements http.Handler.
type Worker struct {
	cache       cache.CacheProvider
	parts       Partitions
	env         Environment
	log         zerolog.Logger
	fetcher     *originFetcher
	apiPrefix   string
	prewarm     []string
	offlinePath string
	metrics     *Metrics
	syncer      *SyncManager

	stateMu sync.Mutex
	state   LifecycleState
}

// CreateWorker initializes the edge worker.
// It resolves the environment once and sets up the needed variables.
// Install and Activate still need to be run (or Run called) before the
// worker considers itself in control.
func CreateWorker(config Config) *Worker {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	// create a child logger and add defaults
	logger = logger.With().
		Str("origin", config.OriginURL.String()).
		Logger()

	if config.Product == "" {
		config.Product = "muhlstore"
	}
	if config.Version == "" {
		config.Version = "1"
	}
	if config.APIPrefix == "" {
		config.APIPrefix = "/api/"
	}
	if config.PrewarmManifest == nil {
		config.PrewarmManifest = DefaultPrewarmManifest
	}
	if config.OfflinePath == "" {
		config.OfflinePath = "/offline.html"
	}

	env := ResolveEnvironment(
		config.PublicURL.Hostname(),
		config.PublicURL.Port(),
		config.PublicURL.Scheme,
	)
	if env.IsDevelopment {
		logger.Debug().
			Bool("localhost", env.IsLocalhost).
			Str("apiBase", env.APIBaseURL).
			Msg("Running in development mode")
	}

	parts := NewPartitions(config.Product, config.Version)

	w := &Worker{
		cache:       config.Cache,
		parts:       parts,
		env:         env,
		log:         logger,
		fetcher:     newOriginFetcher(config.OriginURL, env, logger),
		apiPrefix:   config.APIPrefix,
		prewarm:     config.PrewarmManifest,
		offlinePath: config.OfflinePath,
		metrics:     newMetrics(),
		state:       StateInstalling,
	}
	w.syncer = newSyncManager(w.fetcher, config.Cache, parts, w.metrics.SyncFlushes, logger)
	return w
}

// requestKey is the cache key for a request. Only GET requests are ever
// stored, so the key is the request URI alone.
func requestKey(r *http.Request) string {
	return r.URL.RequestURI()
}

// storeResponse writes a captured origin response into the given partition
// if the cacheability rules allow it. It reports whether the response was
// stored.
func (w *Worker) storeResponse(partition string, r *http.Request, saver *tee.ResponseSaver) bool {
	if !isCacheable(saver.StatusCode(), r.URL) {
		return false
	}
	entry := cache.Entry{
		Key:      requestKey(r),
		Status:   saver.StatusCode(),
		BodySize: int64(len(saver.Body())),
		Bytes:    saver.Response(),
		StoredAt: time.Now(),
	}
	w.log.Trace().Str("partition", partition).Str("key", entry.Key).Msg("Writing to cache")
	if err := w.cache.Put(partition, entry); err != nil {
		w.log.Error().Err(err).Str("key", entry.Key).Msg("Could not write to cache")
		return false
	}
	return true
}

// isCacheable decides whether a network response may be written to any
// partition: success range only, never 206 partial content, never streaming
// media, and only http(s) (or same-origin relative) URLs.
func isCacheable(status int, u *url.URL) bool {
	if status < 200 || status >= 300 || status == http.StatusPartialContent {
		return false
	}
	if isMediaPath(u.Path) {
		return false
	}
	switch u.Scheme {
	case "", "http", "https":
		return true
	}
	return false
}

// send writes a captured origin response to the client.
func (w *Worker) send(rw http.ResponseWriter, r *http.Request, saver *tee.ResponseSaver, cs CacheStatus) error {
	copyHeader(rw.Header(), saver.Header())
	rw.Header().Set("Cache-Status", cs.String())
	rw.WriteHeader(saver.StatusCode())
	if _, err := rw.Write(saver.Body()); err != nil {
		w.log.Error().Err(err).Msg("Could not write response body to client")
	}
	w.logRequest(r, cs)
	return nil
}

// sendCached writes a stored cache entry to the client.
func (w *Worker) sendCached(rw http.ResponseWriter, r *http.Request, entry cache.Entry, cs CacheStatus) error {
	res, err := serializer.BytesToResponse(entry.Bytes)
	if err != nil {
		w.log.Error().Err(err).Str("key", entry.Key).Msg("Could not parse stored response")
		return err
	}
	defer res.Body.Close()
	copyHeader(rw.Header(), res.Header)
	rw.Header().Set("Cache-Status", cs.String())
	if !entry.StoredAt.IsZero() {
		rw.Header().Set("Age", strconv.Itoa(int(time.Since(entry.StoredAt).Seconds())))
	}
	rw.WriteHeader(res.StatusCode)
	bytesWritten, err := io.Copy(rw, res.Body)
	if err != nil {
		w.log.Error().Err(err).Msg("Could not write response body to client")
	}
	w.logRequest(r, cs)
	w.log.Trace().Msgf("Wrote body (%d bytes)", bytesWritten)
	return nil
}

func (w *Worker) logRequest(r *http.Request, cs CacheStatus) {
	isHit := 0
	if cs.hit {
		isHit = 1
	}
	w.log.Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("fwd", cs.fwdReason).
		Int("hit", isHit).
		Msg("Sending response to client")
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		// this is a workaround to remove default headers sent by an upstream proxy
		// some servers do not like the presence of these headers in the downstream request
		if k != "X-Forwarded-For" && k != "X-Forwarded-Proto" && k != "X-Forwarded-Host" {
			for _, v := range vv {
				dst.Add(k, v)
			}
		}
	}
}
