package snapshot

import (
	"sync"
	"sync/atomic"
)

// Holder keeps the current snapshot behind an atomic pointer and notifies
// subscribers with the new ETag whenever it is replaced.
// Readers never block writers.
type Holder struct {
	current atomic.Pointer[Snapshot]

	mu   sync.Mutex
	subs map[chan string]struct{}
}

func NewHolder() *Holder {
	return &Holder{subs: make(map[chan string]struct{})}
}

// Load returns the current snapshot, or nil before the first Store.
func (h *Holder) Load() *Snapshot {
	return h.current.Load()
}

// Store swaps in s and notifies subscribers.
func (h *Holder) Store(s *Snapshot) {
	h.current.Store(s)
	h.publish(s.ETag)
}

// Subscribe registers a listener. The returned func unregisters it and closes the channel.
func (h *Holder) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 1)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
}

// publish never blocks: a subscriber that hasn't drained its last ETag misses this one.
func (h *Holder) publish(etag string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- etag:
		default:
		}
	}
}
