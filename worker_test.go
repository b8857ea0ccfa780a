package edgecache

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/muhlstore/edgecache/cache"
	serializer "github.com/muhlstore/edgecache/pkg/response-serializer"

	"github.com/rs/zerolog"
)

// newTestWorker builds a worker proxying to the given origin, with an
// in-memory provider and a production-like public URL (so no development
// URL rewriting kicks in).
func newTestWorker(t *testing.T, origin *httptest.Server, overrides ...func(*Config)) *Worker {
	t.Helper()
	originURL, err := url.Parse(origin.URL)
	if err != nil {
		t.Fatal(err)
	}
	logger := zerolog.Nop()
	config := Config{
		Cache:     cache.NewMemoryCache(),
		OriginURL: *originURL,
		PublicURL: url.URL{Scheme: "https", Host: "loja.muhlstore.com.br"},
		Logger:    &logger,
	}
	for _, override := range overrides {
		override(&config)
	}
	return CreateWorker(config)
}

// newFlakyOrigin returns an origin whose connectivity can be toggled.
// While offline, connections are aborted mid-flight so the worker sees a
// transport-level failure rather than an HTTP error status.
func newFlakyOrigin(handler http.HandlerFunc) (*httptest.Server, *atomic.Bool) {
	online := &atomic.Bool{}
	online.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !online.Load() {
			panic(http.ErrAbortHandler)
		}
		handler(w, r)
	}))
	return srv, online
}

// seedEntry stores a synthetic response directly in a partition.
func seedEntry(t *testing.T, w *Worker, partition, key string, status int, body string) {
	t.Helper()
	res := &http.Response{
		StatusCode:    status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"text/plain"}},
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
	bts, err := serializer.ResponseToBytes(res)
	if err != nil {
		t.Fatal(err)
	}
	err = w.cache.Put(partition, cache.Entry{
		Key:      key,
		Status:   status,
		BodySize: int64(len(body)),
		Bytes:    bts,
		StoredAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func cacheEntryCount(w *Worker, partition string) int {
	count := 0
	w.cache.Keys(partition, func(string, int) { count++ })
	return count
}
