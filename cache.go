package expcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	c "github.com/unkn0wn-root/expcache/codec"
	"github.com/unkn0wn-root/expcache/internal/evict"
	"github.com/unkn0wn-root/expcache/internal/keyspace"
	"github.com/unkn0wn-root/expcache/internal/timeunit"
	pr "github.com/unkn0wn-root/expcache/provider"
)

type cache[V any] struct {
	// mu serializes operations of this instance; an eviction pass must not
	// interleave with another call on the same namespace.
	mu sync.Mutex

	store    pr.Store
	codec    c.Codec[V]
	ks       keyspace.Keyspace
	clock    timeunit.Clock
	maxUnit  int64
	log      Logger
	hooks    Hooks
	warnings bool
	disabled bool

	probeOnce sync.Once
	supported bool
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("expcache: store is required")
	}
	if opts.Resolution < 0 || (opts.Resolution > 0 && opts.Resolution < time.Millisecond) {
		return nil, fmt.Errorf("expcache: resolution must be at least 1ms, got %v", opts.Resolution)
	}
	if opts.Radix != 0 && (opts.Radix < 2 || opts.Radix > 36) {
		return nil, fmt.Errorf("expcache: radix must be in [2, 36], got %d", opts.Radix)
	}
	if opts.MaxUnit < 0 {
		return nil, fmt.Errorf("expcache: max unit must not be negative")
	}

	cc := &cache[V]{
		store:    opts.Store,
		codec:    opts.Codec,
		warnings: opts.Warnings,
		disabled: opts.Disabled,
	}

	// defaults
	cc.log = coalesce[Logger](opts.Logger, NopLogger{})
	cc.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	cc.ks = keyspace.Keyspace{
		Prefix: coalesce(opts.Prefix, DefaultPrefix),
		Bucket: opts.Bucket,
		Suffix: coalesce(opts.Suffix, DefaultSuffix),
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	cc.clock = timeunit.Clock{
		Resolution: coalesce(opts.Resolution, DefaultResolution),
		Radix:      coalesce(opts.Radix, DefaultRadix),
		Now:        now,
	}
	cc.maxUnit = coalesce(opts.MaxUnit, timeunit.FarFuture(cc.clock.Resolution))

	return cc, nil
}

func (cc *cache[V]) Supported() bool {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.available(context.Background())
}

// available runs the capability probe on first use and memoizes the result.
// Caller holds mu.
func (cc *cache[V]) available(ctx context.Context) bool {
	if cc.disabled {
		return false
	}
	cc.probeOnce.Do(func() {
		err := cc.probe(ctx)
		cc.supported = err == nil
		cc.hooks.StoreProbed(cc.supported, err)
		if cc.supported {
			cc.log.Info("storage supported", Fields{"root": cc.ks.Root()})
		} else {
			cc.log.Info("storage not supported", Fields{"root": cc.ks.Root(), "err": err})
		}
	})
	return cc.supported
}

func (cc *cache[V]) probe(ctx context.Context) error {
	k := cc.ks.Key(probeKey)
	if err := cc.store.Set(ctx, k, probeKey); err != nil {
		// a full store is still a working store
		if errors.Is(err, pr.ErrQuotaExceeded) {
			return nil
		}
		return err
	}
	return cc.store.Del(ctx, k)
}

func (cc *cache[V]) Close(ctx context.Context) error {
	if cc.store != nil {
		return cc.store.Close(ctx)
	}
	return nil
}

func (cc *cache[V]) Set(ctx context.Context, key string, value V, ttl int64) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if !cc.available(ctx) {
		return
	}
	if cc.codec == nil {
		cc.abandon(key, ReasonEncode, ErrNoCodec)
		return
	}
	b, err := cc.codec.Encode(value)
	if err != nil {
		cc.abandon(key, ReasonEncode, err)
		return
	}
	cc.put(ctx, key, string(b), ttl)
}

func (cc *cache[V]) SetString(ctx context.Context, key, value string, ttl int64) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if !cc.available(ctx) {
		return
	}
	cc.put(ctx, key, value, ttl)
}

func (cc *cache[V]) put(ctx context.Context, key, value string, ttl int64) {
	k, mk := cc.ks.Key(key), cc.ks.Marker(key)
	var marker string
	if ttl != 0 {
		marker = cc.clock.Format(cc.expiry(ttl))
	}

	evicted := false
	if err := cc.store.Set(ctx, k, value); err != nil {
		if !errors.Is(err, pr.ErrQuotaExceeded) {
			cc.abandon(key, ReasonStoreError, err)
			return
		}
		// the marker is written right after and needs room too
		cc.makeRoom(ctx, len(value)+len(marker), key)
		evicted = true
		if err := cc.store.Set(ctx, k, value); err != nil {
			cc.abandon(key, ReasonQuota, err)
			return
		}
	}

	if ttl == 0 {
		// a previous Set may have left a marker behind
		_ = cc.store.Del(ctx, mk)
		return
	}
	err := cc.store.Set(ctx, mk, marker)
	if err != nil && errors.Is(err, pr.ErrQuotaExceeded) && !evicted {
		cc.makeRoom(ctx, len(marker), key)
		err = cc.store.Set(ctx, mk, marker)
	}
	switch {
	case err == nil:
	case errors.Is(err, pr.ErrQuotaExceeded):
		// keep the value as a non-expiring entry; a stale marker would expire it early
		_ = cc.store.Del(ctx, mk)
		cc.warn("stored item without expiration", Fields{"key": key, "err": err})
	default:
		// without its marker the value would never expire; drop it
		_ = cc.store.Del(ctx, k)
		cc.abandon(key, ReasonMarker, err)
	}
}

// expiry returns the unit ttl units from now, capped at maxUnit.
func (cc *cache[V]) expiry(ttl int64) int64 {
	now := cc.clock.Current()
	if ttl > 0 && now > cc.maxUnit-ttl {
		return cc.maxUnit
	}
	return now + ttl
}

// makeRoom runs one eviction pass over the active bucket. The entry being
// written (keep) is never a victim.
func (cc *cache[V]) makeRoom(ctx context.Context, required int, keep string) {
	seq, err := evict.Scan(ctx, cc.store, cc.ks, cc.clock.Parse, cc.maxUnit)
	if err != nil {
		cc.warn("eviction scan failed", Fields{"root": cc.ks.Root(), "err": err})
		return
	}
	var entries []evict.Candidate
	for e := range seq {
		if e.Key != keep {
			entries = append(entries, e)
		}
	}
	victims := evict.Plan(entries, required)
	for _, v := range victims {
		k := cc.ks.Key(v.Key)
		cc.warn("cache is full, removing item", Fields{"key": v.Key, "size": v.Size, "expiration": v.Expiration})
		_ = cc.store.Del(ctx, k)
		_ = cc.store.Del(ctx, cc.ks.Marker(v.Key))
		cc.hooks.Evicted(k, v.Size, v.Expiration)
	}
}

func (cc *cache[V]) abandon(key, reason string, err error) {
	e := &SetError{Key: key, Reason: reason, Err: err}
	cc.hooks.SetAbandoned(cc.ks.Key(key), reason, e)
	cc.warn("could not add item", Fields{"key": key, "reason": reason, "err": err})
}

func (cc *cache[V]) Get(ctx context.Context, key string) (Item[V], bool) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	raw, ok := cc.lookup(ctx, key)
	if !ok {
		return Item[V]{}, false
	}
	it := Item[V]{Raw: raw}
	if cc.codec == nil {
		return it, true
	}
	// no type tag is stored: whatever decodes is structured, the rest is a string
	if v, err := cc.codec.Decode([]byte(raw)); err == nil {
		it.Value = v
		it.Decoded = true
	}
	return it, true
}

func (cc *cache[V]) GetString(ctx context.Context, key string) (string, bool) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.lookup(ctx, key)
}

func (cc *cache[V]) lookup(ctx context.Context, key string) (string, bool) {
	if !cc.available(ctx) {
		return "", false
	}
	k, mk := cc.ks.Key(key), cc.ks.Marker(key)

	rawExp, hasMarker, err := cc.store.Get(ctx, mk)
	if err != nil {
		cc.log.Debug("marker read failed", Fields{"key": key, "err": err})
		return "", false
	}
	if hasMarker {
		if exp, ok := cc.clock.Parse(rawExp); ok && cc.clock.Current() >= exp {
			_ = cc.store.Del(ctx, k)
			_ = cc.store.Del(ctx, mk)
			cc.hooks.Expired(k)
			return "", false
		}
	}

	v, ok, err := cc.store.Get(ctx, k)
	if err != nil {
		cc.log.Debug("value read failed", Fields{"key": key, "err": err})
		return "", false
	}
	if !ok {
		if hasMarker {
			_ = cc.store.Del(ctx, mk) // self-heal orphan marker
		}
		return "", false
	}
	return v, true
}

func (cc *cache[V]) Remove(ctx context.Context, key string) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if !cc.available(ctx) {
		return
	}
	_ = cc.store.Del(ctx, cc.ks.Key(key))
	_ = cc.store.Del(ctx, cc.ks.Marker(key))
}

func (cc *cache[V]) Flush(ctx context.Context) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if !cc.available(ctx) {
		return
	}
	keys, err := pr.List(ctx, cc.store, cc.ks.Root())
	if err != nil {
		cc.warn("flush: listing keys failed", Fields{"root": cc.ks.Root(), "err": err})
		return
	}
	// reverse: index-addressed stores shift their tail on removal
	for i := len(keys) - 1; i >= 0; i-- {
		if cc.ks.Owns(keys[i]) {
			_ = cc.store.Del(ctx, keys[i])
		}
	}
	cc.log.Debug("flushed bucket", Fields{"root": cc.ks.Root(), "keys": len(keys)})
}

func (cc *cache[V]) ClearAll(ctx context.Context) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if !cc.available(ctx) {
		return
	}
	if err := cc.store.Clear(ctx); err != nil {
		cc.warn("clear failed", Fields{"err": err})
	}
}

func (cc *cache[V]) SetBucket(name string) {
	cc.mu.Lock()
	cc.ks.Bucket = name
	cc.mu.Unlock()
}

func (cc *cache[V]) ResetBucket() { cc.SetBucket("") }

func (cc *cache[V]) Bucket() string {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.ks.Bucket
}

func (cc *cache[V]) Prefix() string { return cc.ks.Prefix }

func (cc *cache[V]) EnableWarnings(enabled bool) {
	cc.mu.Lock()
	cc.warnings = enabled
	cc.mu.Unlock()
}
