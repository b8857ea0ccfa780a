package edgecache

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAPIPrefersNetwork(t *testing.T) {
	var fetchCount int
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetchCount++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"produtos":[]}`))
	}))
	defer origin.Close()
	w := newTestWorker(t, origin)

	w.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/produtos", nil))
	w.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/produtos", nil))

	// network-first: the cache must never short-circuit a reachable origin
	if fetchCount != 2 {
		t.Fatalf("origin fetched %d times", fetchCount)
	}
}

func TestAPIOfflineFallbackServesCachedBody(t *testing.T) {
	origin, online := newFlakyOrigin(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"produtos":[{"id":1,"nome":"Caneca"}]}`))
	})
	defer origin.Close()
	w := newTestWorker(t, origin)

	w.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/produtos", nil))
	online.Store(false)

	rr := httptest.NewRecorder()
	w.ServeHTTP(rr, httptest.NewRequest("GET", "/api/produtos", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	if rr.Body.String() != `{"produtos":[{"id":1,"nome":"Caneca"}]}` {
		t.Fatalf("body is %s", rr.Body.String())
	}
	if ct := rr.Result().Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type is %s", ct)
	}
}

func TestAPIOfflineWithoutCacheSynthesizes503(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := newTestWorker(t, origin)
	origin.Close()

	rr := httptest.NewRecorder()
	w.ServeHTTP(rr, httptest.NewRequest("GET", "/api/pedidos", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d", rr.Code)
	}
	if ct := rr.Result().Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type is %s", ct)
	}
}

func TestAPIErrorStatusNotCached(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer origin.Close()
	w := newTestWorker(t, origin)

	rr := httptest.NewRecorder()
	w.ServeHTTP(rr, httptest.NewRequest("GET", "/api/produtos", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", rr.Code)
	}
	if cacheEntryCount(w, w.parts.API) != 0 {
		t.Fatal("error response was cached")
	}
}
