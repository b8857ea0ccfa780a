package edgecache

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	tee "github.com/muhlstore/edgecache/pkg/response-writer-tee"

	"github.com/rs/zerolog"
)

// originFetcher performs origin requests through a reverse proxy and
// captures the full response in a buffer, so strategies can inspect the
// result before deciding to serve, cache, or fall back.
type originFetcher struct {
	origin *httputil.ReverseProxy
	// api targets the local API origin during development; nil when API
	// requests are same-origin (production, or development on a LAN
	// address).
	api *httputil.ReverseProxy
	log zerolog.Logger
}

func newOriginFetcher(originURL url.URL, env Environment, logger zerolog.Logger) *originFetcher {
	f := &originFetcher{
		origin: newProxy(originURL),
		log:    logger,
	}
	if env.IsDevelopment && env.APIBaseURL != "" {
		if apiURL, err := url.Parse(env.APIBaseURL); err == nil {
			f.api = newProxy(*apiURL)
		} else {
			logger.Error().Err(err).Str("apiBase", env.APIBaseURL).Msg("Could not parse API base URL")
		}
	}
	return f
}

func newProxy(target url.URL) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Director:     createDirector(target.Scheme, target.Host),
		ErrorHandler: captureProxyError,
	}
}

func createDirector(scheme, host string) func(req *http.Request) {
	return func(req *http.Request) {
		req.URL.Scheme = scheme
		req.URL.Host = host
		req.Host = host
	}
}

// proxyWriter buffers the proxied response and records any transport-level
// error instead of letting the proxy synthesize a 502.
type proxyWriter struct {
	*tee.ResponseSaver
	err error
}

func captureProxyError(rw http.ResponseWriter, r *http.Request, err error) {
	if pw, ok := rw.(*proxyWriter); ok {
		pw.err = err
	}
}

// Fetch requests the given URL from the storefront origin.
// A non-nil error means the network request itself failed; HTTP error
// statuses are returned as captured responses, not errors.
func (f *originFetcher) Fetch(r *http.Request) (*tee.ResponseSaver, error) {
	return f.do(f.origin, r)
}

// FetchAPI requests the given URL from the API origin when a development
// rewrite target is configured, and from the storefront origin otherwise.
func (f *originFetcher) FetchAPI(r *http.Request) (*tee.ResponseSaver, error) {
	if f.api != nil {
		return f.do(f.api, r)
	}
	return f.do(f.origin, r)
}

func (f *originFetcher) do(proxy *httputil.ReverseProxy, r *http.Request) (*tee.ResponseSaver, error) {
	pw := &proxyWriter{ResponseSaver: tee.NewResponseSaver(nil)}
	proxy.ServeHTTP(pw, r)
	if pw.err != nil {
		return nil, pw.err
	}
	return pw.ResponseSaver, nil
}
