// Package asynchook moves Hooks callbacks off the cache's call path.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{EvictedEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := expcache.New[User](expcache.Options[User]{
//	    Store: memory.New(memory.Config{MaxBytes: 5 << 20}),
//	    Codec: codec.JSON[User]{},
//	    Hooks: hooks, // or raw to stay synchronous
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/expcache"
)

// Hooks forwards events to inner on worker goroutines. A full queue drops the
// event instead of stalling the cache; Dropped counts them.
type Hooks struct {
	inner   expcache.Hooks
	events  chan func()
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
}

var _ expcache.Hooks = (*Hooks)(nil)

func New(inner expcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}
	h := &Hooks{inner: inner, events: make(chan func(), qlen)}
	h.wg.Add(workers)
	for range workers {
		go h.run()
	}
	return h
}

func (h *Hooks) run() {
	defer h.wg.Done()
	for ev := range h.events {
		ev()
	}
}

// Close delivers what is queued and stops the workers. The cache must not emit
// events after Close.
func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.events)
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded on a full queue.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) enqueue(ev func()) {
	select {
	case h.events <- ev:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) StoreProbed(ok bool, err error) { h.enqueue(func() { h.inner.StoreProbed(ok, err) }) }
func (h *Hooks) Expired(k string)               { h.enqueue(func() { h.inner.Expired(k) }) }
func (h *Hooks) Evicted(k string, size int, exp int64) {
	h.enqueue(func() { h.inner.Evicted(k, size, exp) })
}
func (h *Hooks) SetAbandoned(k, reason string, err error) {
	h.enqueue(func() { h.inner.SetAbandoned(k, reason, err) })
}
