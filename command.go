package edgecache

import (
	"context"
	"net/http"
)

// Command is the closed set of out-of-band cache control commands the
// controlling application may post to the worker. The set is a tagged
// union matched exhaustively in Dispatch; an unknown value is logged and
// ignored, never an error.
type Command interface {
	isCommand()
}

// SkipWaiting forces immediate activation of this worker generation.
type SkipWaiting struct{}

// CacheURLs best-effort caches the listed URLs into the dynamic partition,
// applying the same media/206 exclusion rules as the request strategies.
type CacheURLs struct {
	URLs []string
}

// ClearCache deletes every entry in the named partition. The partition
// itself survives.
type ClearCache struct {
	CacheName string
}

// GetCacheSize reports the total byte length of all cached entry bodies
// across every partition, asynchronously on the reply channel.
type GetCacheSize struct {
	Reply chan<- int64
}

func (SkipWaiting) isCommand()  {}
func (CacheURLs) isCommand()    {}
func (ClearCache) isCommand()   {}
func (GetCacheSize) isCommand() {}

// Dispatch executes a cache control command.
func (w *Worker) Dispatch(cmd Command) {
	switch c := cmd.(type) {
	case SkipWaiting:
		if err := w.Activate(context.Background()); err != nil {
			w.log.Error().Err(err).Msg("Could not activate on skip-waiting")
		}
	case CacheURLs:
		w.cacheURLs(c.URLs)
	case ClearCache:
		w.log.Info().Str("partition", c.CacheName).Msg("Clearing partition")
		if err := w.cache.Clear(c.CacheName); err != nil {
			w.log.Error().Err(err).Str("partition", c.CacheName).Msg("Could not clear partition")
		}
	case GetCacheSize:
		size, err := w.cache.Size()
		if err != nil {
			w.log.Error().Err(err).Msg("Could not compute cache size")
		}
		c.Reply <- size
	default:
		w.log.Warn().Interface("command", cmd).Msg("Unknown command, ignoring")
	}
}

func (w *Worker) cacheURLs(urls []string) {
	for _, u := range urls {
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			w.log.Error().Err(err).Str("url", u).Msg("Could not create request for cache-urls")
			continue
		}
		saver, err := w.fetcher.Fetch(req)
		if err != nil {
			w.log.Warn().Err(err).Str("url", u).Msg("Could not fetch url for caching")
			continue
		}
		if !w.storeResponse(w.parts.Dynamic, req, saver) {
			w.log.Debug().Str("url", u).Msg("Requested url not cacheable")
		}
	}
}
