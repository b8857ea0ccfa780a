package edgecache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestInstallPrewarmsStaticPartition(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("shell"))
	}))
	defer origin.Close()
	w := newTestWorker(t, origin, func(c *Config) {
		c.PrewarmManifest = []string{"/", "/offline.html", "/static/js/bundle.js"}
	})

	w.Install(context.Background())

	if w.State() != StateInstalled {
		t.Fatalf("state is %s", w.State())
	}
	for _, path := range []string{"/", "/offline.html", "/static/js/bundle.js"} {
		if _, found, _ := w.cache.Get(w.parts.Static, path); !found {
			t.Fatalf("%s not pre-warmed", path)
		}
	}
}

func TestInstallFailsSoftWhenOriginUnreachable(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := newTestWorker(t, origin)
	origin.Close()

	w.Install(context.Background())

	if w.State() != StateInstalled {
		t.Fatalf("failed pre-warm blocked install, state is %s", w.State())
	}
	if cacheEntryCount(w, w.parts.Static) != 0 {
		t.Fatal("unreachable origin produced cache entries")
	}
}

func TestActivateDropsStalePartitions(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer origin.Close()
	w := newTestWorker(t, origin, func(c *Config) { c.Version = "2" })

	old := NewPartitions("muhlstore", "1")
	seedEntry(t, w, old.Static, "/static/js/bundle.js", http.StatusOK, "old bundle")
	seedEntry(t, w, old.API, "/api/produtos", http.StatusOK, "[]")
	seedEntry(t, w, w.parts.Static, "/static/js/bundle.js", http.StatusOK, "new bundle")

	if err := w.Activate(context.Background()); err != nil {
		t.Fatal(err)
	}

	partitions, err := w.cache.Partitions()
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range partitions {
		if name == old.Static || name == old.API {
			t.Fatalf("stale partition %s survived activation", name)
		}
	}
	if _, found, _ := w.cache.Get(w.parts.Static, "/static/js/bundle.js"); !found {
		t.Fatal("current-version entry did not survive activation")
	}
	if w.State() != StateActivated {
		t.Fatalf("state is %s", w.State())
	}
}

func TestActivateWithEmptyStorage(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer origin.Close()
	w := newTestWorker(t, origin)

	if err := w.Activate(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestActivateSweepsCachedNotFound(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer origin.Close()
	w := newTestWorker(t, origin)

	seedEntry(t, w, w.parts.Static, "/static/js/app.js", http.StatusNotFound, "")
	seedEntry(t, w, w.parts.Static, "/static/css/main.css", http.StatusOK, "body{}")

	// run twice: the sweep must be idempotent
	for i := 0; i < 2; i++ {
		if err := w.Activate(context.Background()); err != nil {
			t.Fatal(err)
		}
		if _, found, _ := w.cache.Get(w.parts.Static, "/static/js/app.js"); found {
			t.Fatal("cached 404 survived activation")
		}
		if _, found, _ := w.cache.Get(w.parts.Static, "/static/css/main.css"); !found {
			t.Fatal("valid entry swept")
		}
	}
}
