package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/TimurManjosov/flagpage/internal/snapshot"
)

// FlagService is an in-process flagship service speaking the snapshot and
// stream endpoints the flag client consumes.
type FlagService struct {
	URL string

	srv    *httptest.Server
	sdkKey string

	mu         sync.Mutex
	snap       *snapshot.Snapshot
	failStatus int
	streams    map[chan string]struct{}

	snapshotReqs atomic.Int64
	streamConns  atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
}

// NewFlagService starts a service that accepts sdkKey and serves flags.
// It is shut down when the test ends.
func NewFlagService(t *testing.T, sdkKey string, flags ...snapshot.FlagView) *FlagService {
	t.Helper()
	fs := &FlagService{
		sdkKey:  sdkKey,
		snap:    snapshot.Build(flags, ""),
		streams: make(map[chan string]struct{}),
		done:    make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Get("/v1/flags/snapshot", fs.handleSnapshot)
	r.Get("/v1/flags/stream", fs.handleStream)

	fs.srv = httptest.NewServer(r)
	fs.URL = fs.srv.URL
	t.Cleanup(fs.Close)
	return fs
}

// SetFlags replaces the flag set and announces the new ETag to connected streams.
func (fs *FlagService) SetFlags(flags ...snapshot.FlagView) {
	fs.SetSnapshot(snapshot.Build(flags, ""))
}

func (fs *FlagService) SetSnapshot(s *snapshot.Snapshot) {
	fs.mu.Lock()
	fs.snap = s
	subs := make([]chan string, 0, len(fs.streams))
	for ch := range fs.streams {
		subs = append(subs, ch)
	}
	fs.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- s.ETag:
		default:
		}
	}
}

// FailWith makes both endpoints answer with status until called again with 0.
func (fs *FlagService) FailWith(status int) {
	fs.mu.Lock()
	fs.failStatus = status
	fs.mu.Unlock()
}

func (fs *FlagService) ETag() string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.snap.ETag
}

// SnapshotRequests counts authorized snapshot requests, including 304s and failures.
func (fs *FlagService) SnapshotRequests() int { return int(fs.snapshotReqs.Load()) }

// StreamConnections counts stream connections that got an init event.
func (fs *FlagService) StreamConnections() int { return int(fs.streamConns.Load()) }

func (fs *FlagService) Close() {
	fs.closeOnce.Do(func() {
		close(fs.done)
		fs.srv.CloseClientConnections()
		fs.srv.Close()
	})
}

func (fs *FlagService) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer "+fs.sdkKey {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func (fs *FlagService) current() (*snapshot.Snapshot, int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.snap, fs.failStatus
}

func (fs *FlagService) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !fs.authorized(w, r) {
		return
	}
	fs.snapshotReqs.Add(1)
	snap, fail := fs.current()
	if fail != 0 {
		http.Error(w, http.StatusText(fail), fail)
		return
	}
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == snap.ETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("ETag", snap.ETag)
	_ = json.NewEncoder(w).Encode(snap)
}

func (fs *FlagService) handleStream(w http.ResponseWriter, r *http.Request) {
	if !fs.authorized(w, r) {
		return
	}
	snap, fail := fs.current()
	if fail != 0 {
		http.Error(w, http.StatusText(fail), fail)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := make(chan string, 4)
	fs.mu.Lock()
	fs.streams[ch] = struct{}{}
	fs.mu.Unlock()
	defer func() {
		fs.mu.Lock()
		delete(fs.streams, ch)
		fs.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	writeEvent(w, "init", snap.ETag)
	fmt.Fprint(w, ": heartbeat\n\n")
	flusher.Flush()
	fs.streamConns.Add(1)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-fs.done:
			return
		case etag := <-ch:
			writeEvent(w, "update", etag)
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event, etag string) {
	data, _ := json.Marshal(map[string]string{"etag": etag})
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
