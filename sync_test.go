package edgecache

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFailedCartMutationIsQueued(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := newTestWorker(t, origin)
	origin.Close()

	rr := httptest.NewRecorder()
	w.ServeHTTP(rr, httptest.NewRequest("POST", "/api/cart", strings.NewReader(`{"itens":[1]}`)))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d", rr.Code)
	}
	if w.syncer.Pending() != 1 {
		t.Fatalf("%d mutations queued", w.syncer.Pending())
	}
}

func TestUnsyncableMutationNotQueued(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := newTestWorker(t, origin)
	origin.Close()

	w.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/avaliacoes", nil))

	if w.syncer.Pending() != 0 {
		t.Fatalf("%d mutations queued", w.syncer.Pending())
	}
}

func TestFlushReplaysWithBearerToken(t *testing.T) {
	var gotAuth, gotBody, gotPath string
	origin, online := newFlakyOrigin(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			gotAuth = r.Header.Get("Authorization")
			gotPath = r.URL.Path
			body, _ := io.ReadAll(r.Body)
			gotBody = string(body)
		}
		w.Write([]byte("ok"))
	})
	defer origin.Close()
	w := newTestWorker(t, origin)
	seedEntry(t, w, w.parts.API, authTokenKey, http.StatusOK, "tok123")

	online.Store(false)
	w.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/cart", strings.NewReader(`{"itens":[7]}`)))
	if w.syncer.Pending() != 1 {
		t.Fatalf("%d mutations queued", w.syncer.Pending())
	}

	online.Store(true)
	if err := w.syncer.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if w.syncer.Pending() != 0 {
		t.Fatalf("%d mutations still queued", w.syncer.Pending())
	}
	if gotAuth != "Bearer tok123" {
		t.Fatalf("authorization header is %q", gotAuth)
	}
	if gotPath != "/api/cart" || gotBody != `{"itens":[7]}` {
		t.Fatalf("replayed %s with body %s", gotPath, gotBody)
	}
}

func TestFlushKeepsRejectedMutations(t *testing.T) {
	origin, online := newFlakyOrigin(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "não autorizado", http.StatusUnauthorized)
	})
	defer origin.Close()
	w := newTestWorker(t, origin)

	online.Store(false)
	w.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("PUT", "/api/user/profile", strings.NewReader(`{"nome":"Ana"}`)))
	online.Store(true)

	if err := w.syncer.Flush(context.Background()); err != ErrSyncIncomplete {
		t.Fatalf("err is %v", err)
	}
	if w.syncer.Pending() != 1 {
		t.Fatalf("%d mutations queued after rejected flush", w.syncer.Pending())
	}
}

func TestSyncDrainsQueue(t *testing.T) {
	origin, online := newFlakyOrigin(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	defer origin.Close()
	w := newTestWorker(t, origin)

	online.Store(false)
	w.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/cart", strings.NewReader(`{}`)))
	online.Store(true)

	if err := w.syncer.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if w.syncer.Pending() != 0 {
		t.Fatalf("%d mutations still queued", w.syncer.Pending())
	}
}
