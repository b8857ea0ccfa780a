package edgecache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/muhlstore/edgecache/cache"
	serializer "github.com/muhlstore/edgecache/pkg/response-serializer"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// The bearer token the backend expects is kept as a regular cache entry
// under this key in the API partition, mirroring how the storefront
// application stores it.
const authTokenKey = "/auth-token"

const (
	syncKindCart    = "cart"
	syncKindProfile = "profile"
)

// PendingMutation is an offline-queued write waiting to be flushed to the
// backend once connectivity returns.
type PendingMutation struct {
	ID          uuid.UUID
	Kind        string
	Method      string
	Path        string
	ContentType string
	Body        []byte
	QueuedAt    time.Time
}

// SyncManager queues mutations that failed on the network and replays them
// against the backend. A queued entry is cleared only on a 2xx response.
type SyncManager struct {
	mu      sync.Mutex
	queue   []PendingMutation
	fetcher *originFetcher
	cache   cache.CacheProvider
	parts   Partitions
	flushes prometheus.Counter
	log     zerolog.Logger
}

func newSyncManager(fetcher *originFetcher, provider cache.CacheProvider, parts Partitions, flushes prometheus.Counter, logger zerolog.Logger) *SyncManager {
	return &SyncManager{
		fetcher: fetcher,
		cache:   provider,
		parts:   parts,
		flushes: flushes,
		log:     logger,
	}
}

// QueueIfSyncable queues a failed mutation for background sync if it is
// one of the replayable kinds (cart updates, profile edits). The request
// body must already be buffered by the caller.
func (s *SyncManager) QueueIfSyncable(r *http.Request, body []byte) bool {
	var kind string
	switch {
	case strings.Contains(r.URL.Path, "/cart") || strings.Contains(r.URL.Path, "/carrinho"):
		kind = syncKindCart
	case strings.Contains(r.URL.Path, "/user") || strings.Contains(r.URL.Path, "/profile"):
		kind = syncKindProfile
	default:
		return false
	}

	m := PendingMutation{
		ID:          uuid.New(),
		Kind:        kind,
		Method:      r.Method,
		Path:        r.URL.RequestURI(),
		ContentType: r.Header.Get("Content-Type"),
		Body:        body,
		QueuedAt:    time.Now(),
	}
	s.mu.Lock()
	s.queue = append(s.queue, m)
	s.mu.Unlock()
	s.log.Info().Str("kind", kind).Str("path", m.Path).Str("id", m.ID.String()).
		Msg("Queued mutation for background sync")
	return true
}

// Pending returns the number of queued mutations.
func (s *SyncManager) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Flush replays every queued mutation once. Mutations answered with a 2xx
// are removed from the queue; everything else is kept for the next attempt.
// It returns ErrSyncIncomplete when mutations remain queued.
func (s *SyncManager) Flush(ctx context.Context) error {
	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()

	token := s.authToken()
	remaining := make([]PendingMutation, 0, len(pending))
	for _, m := range pending {
		if err := s.replay(ctx, m, token); err != nil {
			s.log.Warn().Err(err).Str("id", m.ID.String()).Str("path", m.Path).
				Msg("Could not flush queued mutation")
			remaining = append(remaining, m)
			continue
		}
		s.flushes.Inc()
		s.log.Info().Str("id", m.ID.String()).Str("path", m.Path).Msg("Flushed queued mutation")
	}

	if len(remaining) > 0 {
		s.mu.Lock()
		s.queue = append(remaining, s.queue...)
		s.mu.Unlock()
		return ErrSyncIncomplete
	}
	return nil
}

// Sync flushes the queue under the sync tag, retrying with exponential
// backoff until the queue drains or the backoff gives up.
func (s *SyncManager) Sync(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = time.Minute
	return backoff.Retry(func() error {
		return s.Flush(ctx)
	}, backoff.WithContext(b, ctx))
}

var ErrSyncIncomplete = errSyncIncomplete{}

type errSyncIncomplete struct{}

func (errSyncIncomplete) Error() string { return "some queued mutations could not be flushed" }

func (s *SyncManager) replay(ctx context.Context, m PendingMutation, token string) error {
	req, err := http.NewRequestWithContext(ctx, m.Method, m.Path, bytes.NewReader(m.Body))
	if err != nil {
		return err
	}
	if m.ContentType != "" {
		req.Header.Set("Content-Type", m.ContentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	saver, err := s.fetcher.FetchAPI(req)
	if err != nil {
		return err
	}
	if saver.StatusCode() < 200 || saver.StatusCode() >= 300 {
		return &replayError{status: saver.StatusCode()}
	}
	return nil
}

type replayError struct {
	status int
}

func (e *replayError) Error() string {
	return fmt.Sprintf("backend rejected replayed mutation with status %d", e.status)
}

// authToken reads the bearer token from the API partition.
// The storefront stores its session token as a regular cached response,
// so sync replay reads it from the same place.
func (s *SyncManager) authToken() string {
	entry, found, err := s.cache.Get(s.parts.API, authTokenKey)
	if err != nil || !found {
		return ""
	}
	res, err := serializer.BytesToResponse(entry.Bytes)
	if err != nil {
		return ""
	}
	defer res.Body.Close()
	token, err := io.ReadAll(res.Body)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(token))
}
