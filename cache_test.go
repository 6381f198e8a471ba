package expcache

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	c "github.com/unkn0wn-root/expcache/codec"
	pr "github.com/unkn0wn-root/expcache/provider"
	"github.com/unkn0wn-root/expcache/provider/memory"
)

type user struct {
	ID   string `json:"id" msgpack:"id" cbor:"id"`
	Name string `json:"name" msgpack:"name" cbor:"name"`
}

// baseUnit is the time unit the fake clock starts at.
const baseUnit = 1000

type fakeClock struct{ now time.Time }

func newFakeClock() *fakeClock { return &fakeClock{now: time.UnixMilli(baseUnit * 60_000)} }

func (f *fakeClock) Now() time.Time          { return f.now }
func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

type recHooks struct {
	probes    []bool
	expired   []string
	evicted   []string
	abandoned map[string]string // storage key -> reason
}

func newRecHooks() *recHooks { return &recHooks{abandoned: map[string]string{}} }

func (h *recHooks) StoreProbed(ok bool, _ error)      { h.probes = append(h.probes, ok) }
func (h *recHooks) Expired(k string)                  { h.expired = append(h.expired, k) }
func (h *recHooks) Evicted(k string, _ int, _ int64)  { h.evicted = append(h.evicted, k) }
func (h *recHooks) SetAbandoned(k, r string, _ error) { h.abandoned[k] = r }

type recLogger struct {
	NopLogger
	warns []string
}

func (l *recLogger) Warn(msg string, _ Fields) { l.warns = append(l.warns, msg) }

// failingStore wraps a Memory and fails Set for chosen keys, or for all keys.
type failingStore struct {
	*memory.Memory
	setCalls int
	fail     func(key string) error
}

func (s *failingStore) Set(ctx context.Context, key, value string) error {
	s.setCalls++
	if s.fail != nil {
		if err := s.fail(key); err != nil {
			return err
		}
	}
	return s.Memory.Set(ctx, key, value)
}

var _ pr.Store = (*failingStore)(nil)

func newTestCache[V any](t *testing.T, st pr.Store, codec c.Codec[V], optsOpt func(*Options[V])) *cache[V] {
	t.Helper()
	opts := Options[V]{
		Store:  st,
		Codec:  codec,
		Prefix: "p-",
		Suffix: "-x",
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	cc, err := New[V](opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return mustImpl(t, cc)
}

func mustImpl[V any](t *testing.T, cc Cache[V]) *cache[V] {
	t.Helper()
	impl, ok := cc.(*cache[V])
	if !ok {
		t.Fatalf("unexpected concrete type for Cache")
	}
	return impl
}

func has(t *testing.T, st pr.Store, key string) bool {
	t.Helper()
	_, ok, err := st.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("store get %q: %v", key, err)
	}
	return ok
}

// ==============================
// Round trip / value shapes
// ==============================

func TestRoundTripCodecs(t *testing.T) {
	ctx := context.Background()
	v := user{ID: "1", Name: "Ada"}
	codecs := map[string]c.Codec[user]{
		"json":    c.JSON[user]{},
		"msgpack": c.Msgpack[user]{},
		"cbor":    c.MustCBOR[user](true),
	}
	for name, codec := range codecs {
		t.Run(name, func(t *testing.T) {
			cc := newTestCache(t, memory.New(memory.Config{}), codec, nil)
			cc.Set(ctx, "u:1", v, 0)
			it, ok := cc.Get(ctx, "u:1")
			if !ok || !it.Decoded || it.Value != v {
				t.Fatalf("Get: ok=%v item=%+v", ok, it)
			}
		})
	}
}

func TestRoundTripNestedJSON(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache[map[string]any](t, memory.New(memory.Config{}), c.JSON[map[string]any]{}, nil)
	v := map[string]any{"a": []any{1.0, "two"}, "b": map[string]any{"c": true}}
	cc.Set(ctx, "k", v, 0)
	it, ok := cc.Get(ctx, "k")
	if !ok || !reflect.DeepEqual(it.Value, v) {
		t.Fatalf("Get: ok=%v got=%#v", ok, it.Value)
	}
}

func TestPlainStringFallsBackOnDecode(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(memory.Config{}), c.JSON[user]{}, nil)

	cc.SetString(ctx, "greeting", "hello world", 0)
	it, ok := cc.Get(ctx, "greeting")
	if !ok || it.Decoded || it.Raw != "hello world" {
		t.Fatalf("Get plain string: ok=%v item=%+v", ok, it)
	}
	if s, ok := cc.GetString(ctx, "greeting"); !ok || s != "hello world" {
		t.Fatalf("GetString: %q %v", s, ok)
	}
}

func TestEmptyStringIsPresent(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache[string](t, memory.New(memory.Config{}), nil, nil)
	cc.SetString(ctx, "k", "", 0)
	if s, ok := cc.GetString(ctx, "k"); !ok || s != "" {
		t.Fatalf("empty value should be a hit: %q %v", s, ok)
	}
}

func TestNoCodecStringsOnly(t *testing.T) {
	ctx := context.Background()
	st := memory.New(memory.Config{})
	h := newRecHooks()
	cc := newTestCache[user](t, st, nil, func(o *Options[user]) { o.Hooks = h })

	cc.Set(ctx, "u", user{ID: "1"}, 0)
	if has(t, st, "p-u") {
		t.Fatalf("structured write without codec must be dropped")
	}
	if h.abandoned["p-u"] != ReasonEncode {
		t.Fatalf("want encode abandon, got %v", h.abandoned)
	}

	cc.SetString(ctx, "s", `{"id":"1"}`, 0)
	it, ok := cc.Get(ctx, "s")
	if !ok || it.Decoded || it.Raw != `{"id":"1"}` {
		t.Fatalf("strings-only Get: ok=%v item=%+v", ok, it)
	}
}

func TestEncodeFailureAbandonsSilently(t *testing.T) {
	ctx := context.Background()
	st := memory.New(memory.Config{})
	h := newRecHooks()
	cc := newTestCache[any](t, st, c.JSON[any]{}, func(o *Options[any]) { o.Hooks = h })

	cc.Set(ctx, "ch", make(chan int), 0)
	if has(t, st, "p-ch") {
		t.Fatalf("unencodable value must not be stored")
	}
	if h.abandoned["p-ch"] != ReasonEncode {
		t.Fatalf("want encode abandon, got %v", h.abandoned)
	}
}

func TestLimitCodecRefusesOversized(t *testing.T) {
	ctx := context.Background()
	st := memory.New(memory.Config{})
	codec := c.Limit[string]{Inner: c.JSON[string]{}, MaxEncode: 8}
	cc := newTestCache[string](t, st, codec, nil)

	cc.Set(ctx, "small", "abc", 0)
	cc.Set(ctx, "big", "abcdefghijkl", 0)
	if !has(t, st, "p-small") || has(t, st, "p-big") {
		t.Fatalf("limit codec: small=%v big=%v", has(t, st, "p-small"), has(t, st, "p-big"))
	}
}

// ==============================
// Expiration
// ==============================

func TestExpiration(t *testing.T) {
	ctx := context.Background()
	st := memory.New(memory.Config{})
	clk := newFakeClock()
	h := newRecHooks()
	cc := newTestCache[string](t, st, nil, func(o *Options[string]) {
		o.Now = clk.Now
		o.Hooks = h
	})

	cc.SetString(ctx, "k", "v", 1)
	if raw, _, _ := st.Get(ctx, "p-k-x"); raw != "1001" {
		t.Fatalf("marker=%q want 1001", raw)
	}
	if _, ok := cc.GetString(ctx, "k"); !ok {
		t.Fatalf("entry must be present at T")
	}

	clk.advance(59 * time.Second)
	if _, ok := cc.GetString(ctx, "k"); !ok {
		t.Fatalf("entry must be present within the same unit")
	}

	clk.advance(time.Second)
	if _, ok := cc.GetString(ctx, "k"); ok {
		t.Fatalf("entry must be absent at T+1")
	}
	if has(t, st, "p-k") || has(t, st, "p-k-x") {
		t.Fatalf("expired value and marker must be removed")
	}
	if len(h.expired) != 1 || h.expired[0] != "p-k" {
		t.Fatalf("Expired hook: %v", h.expired)
	}
}

func TestRadixUsedForMarkers(t *testing.T) {
	ctx := context.Background()
	st := memory.New(memory.Config{})
	clk := newFakeClock()
	cc := newTestCache[string](t, st, nil, func(o *Options[string]) {
		o.Now = clk.Now
		o.Radix = 36
	})

	cc.SetString(ctx, "k", "v", 10)
	if raw, _, _ := st.Get(ctx, "p-k-x"); raw != "s2" { // 1010 in base 36
		t.Fatalf("marker=%q want s2", raw)
	}
	clk.advance(9 * time.Minute)
	if _, ok := cc.GetString(ctx, "k"); !ok {
		t.Fatalf("entry must be present before expiry")
	}
	clk.advance(time.Minute)
	if _, ok := cc.GetString(ctx, "k"); ok {
		t.Fatalf("entry must expire at 1010")
	}
}

func TestHugeTTLSaturates(t *testing.T) {
	ctx := context.Background()
	st := memory.New(memory.Config{})
	cc := newTestCache[string](t, st, nil, nil)

	cc.SetString(ctx, "k", "v", math.MaxInt64)
	if _, ok := cc.GetString(ctx, "k"); !ok {
		t.Fatalf("entry with the largest ttl must be present")
	}
	raw, _, _ := st.Get(ctx, "p-k-x")
	if raw != cc.clock.Format(cc.maxUnit) {
		t.Fatalf("marker=%q want %q", raw, cc.clock.Format(cc.maxUnit))
	}
}

func TestSetWithoutTTLClearsMarker(t *testing.T) {
	ctx := context.Background()
	st := memory.New(memory.Config{})
	clk := newFakeClock()
	cc := newTestCache[string](t, st, nil, func(o *Options[string]) { o.Now = clk.Now })

	cc.SetString(ctx, "k", "v1", 1)
	cc.SetString(ctx, "k", "v2", 0)
	if has(t, st, "p-k-x") {
		t.Fatalf("marker must be removed when re-set without ttl")
	}
	clk.advance(time.Hour)
	if v, ok := cc.GetString(ctx, "k"); !ok || v != "v2" {
		t.Fatalf("non-expiring entry: %q %v", v, ok)
	}
}

func TestMarkerWithoutValueSelfHeals(t *testing.T) {
	ctx := context.Background()
	st := memory.New(memory.Config{})
	cc := newTestCache[string](t, st, nil, func(o *Options[string]) { o.Now = newFakeClock().Now })

	_ = st.Set(ctx, "p-k-x", "99999") // far in the future, value missing
	if _, ok := cc.GetString(ctx, "k"); ok {
		t.Fatalf("orphan marker must read as absent")
	}
	if has(t, st, "p-k-x") {
		t.Fatalf("orphan marker must be removed")
	}
}

func TestUnparsableMarkerNeverExpires(t *testing.T) {
	ctx := context.Background()
	st := memory.New(memory.Config{})
	clk := newFakeClock()
	cc := newTestCache[string](t, st, nil, func(o *Options[string]) { o.Now = clk.Now })

	_ = st.Set(ctx, "p-k", "v")
	_ = st.Set(ctx, "p-k-x", "not-a-number")
	clk.advance(24 * time.Hour)
	if v, ok := cc.GetString(ctx, "k"); !ok || v != "v" {
		t.Fatalf("unparsable marker: %q %v", v, ok)
	}
}

func TestMarkerWriteFailureDropsValue(t *testing.T) {
	ctx := context.Background()
	st := &failingStore{Memory: memory.New(memory.Config{}), fail: func(k string) error {
		if strings.HasSuffix(k, "-x") {
			return errors.New("marker write refused")
		}
		return nil
	}}
	h := newRecHooks()
	cc := newTestCache[string](t, st, nil, func(o *Options[string]) { o.Hooks = h })

	cc.SetString(ctx, "k", "v", 5)
	if has(t, st, "p-k") {
		t.Fatalf("value without its marker would never expire")
	}
	if h.abandoned["p-k"] != ReasonMarker {
		t.Fatalf("want marker abandon, got %v", h.abandoned)
	}
}

// ==============================
// Buckets / flush / remove
// ==============================

func TestBucketIsolation(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache[string](t, memory.New(memory.Config{}), nil, nil)

	cc.SetBucket("a")
	cc.SetString(ctx, "k", "v1", 0)
	cc.SetBucket("b")
	cc.SetString(ctx, "k", "v2", 0)
	cc.SetBucket("a")
	if v, ok := cc.GetString(ctx, "k"); !ok || v != "v1" {
		t.Fatalf("bucket a: %q %v", v, ok)
	}
	cc.ResetBucket()
	if cc.Bucket() != "" {
		t.Fatalf("ResetBucket left %q", cc.Bucket())
	}
	if _, ok := cc.GetString(ctx, "k"); ok {
		t.Fatalf("default bucket must not see bucketed entries")
	}
}

func TestFlushScope(t *testing.T) {
	ctx := context.Background()
	st := memory.New(memory.Config{})
	cc := newTestCache[string](t, st, nil, func(o *Options[string]) { o.Now = newFakeClock().Now })
	_ = st.Set(ctx, "foreign", "keep me")

	cc.SetBucket("a")
	cc.SetString(ctx, "k", "v", 5)
	cc.SetBucket("b")
	cc.SetString(ctx, "k2", "v2", 0)
	cc.SetBucket("a")
	cc.Flush(ctx)

	if _, ok := cc.GetString(ctx, "k"); ok {
		t.Fatalf("flushed entry still present")
	}
	if has(t, st, "p-ak-x") {
		t.Fatalf("flush must remove markers too")
	}
	cc.SetBucket("b")
	if v, ok := cc.GetString(ctx, "k2"); !ok || v != "v2" {
		t.Fatalf("other bucket affected by flush: %q %v", v, ok)
	}
	if !has(t, st, "foreign") {
		t.Fatalf("flush removed a key outside the namespace")
	}
}

func TestClearAllWipesStore(t *testing.T) {
	ctx := context.Background()
	st := memory.New(memory.Config{})
	cc := newTestCache[string](t, st, nil, nil)
	_ = st.Set(ctx, "foreign", "x")
	cc.SetString(ctx, "k", "v", 0)

	cc.ClearAll(ctx)
	if keys, _ := st.Keys(ctx); len(keys) != 0 {
		t.Fatalf("ClearAll left %v", keys)
	}
}

func TestRemoveIdempotent(t *testing.T) {
	ctx := context.Background()
	st := memory.New(memory.Config{})
	cc := newTestCache[string](t, st, nil, func(o *Options[string]) { o.Now = newFakeClock().Now })

	cc.Remove(ctx, "missing")
	cc.SetString(ctx, "k", "v", 3)
	cc.Remove(ctx, "k")
	cc.Remove(ctx, "k")
	if has(t, st, "p-k") || has(t, st, "p-k-x") {
		t.Fatalf("Remove must drop value and marker")
	}
}

func TestReadsDataWrittenWithDefaultLayout(t *testing.T) {
	ctx := context.Background()
	st := memory.New(memory.Config{})
	clk := newFakeClock()
	_ = st.Set(ctx, "angular-webstorage-u:1", `{"id":"1","name":"Ada"}`)
	_ = st.Set(ctx, "angular-webstorage-u:1-cacheexpiration", "1005")

	cc, err := New[user](Options[user]{Store: st, Codec: c.JSON[user]{}, Now: clk.Now})
	if err != nil {
		t.Fatal(err)
	}
	it, ok := cc.Get(ctx, "u:1")
	if !ok || !it.Decoded || it.Value.Name != "Ada" {
		t.Fatalf("existing entry: ok=%v item=%+v", ok, it)
	}
	clk.advance(5 * time.Minute)
	if _, ok := cc.Get(ctx, "u:1"); ok {
		t.Fatalf("existing marker must be honored")
	}
}

// ==============================
// Eviction
// ==============================

// Sizes: prefix "p-" and suffix "-x"; markers at baseUnit hold 4 digits.
// A 1-letter key with a 25-byte value and a marker costs 3+25 + 5+4 = 37 bytes.

func TestEvictionUnderPressure(t *testing.T) {
	ctx := context.Background()
	st := memory.New(memory.Config{MaxBytes: 120})
	h := newRecHooks()
	cc := newTestCache[string](t, st, nil, func(o *Options[string]) {
		o.Now = newFakeClock().Now
		o.Hooks = h
	})

	val := strings.Repeat("v", 25)
	cc.SetString(ctx, "b", val, 20)
	cc.SetString(ctx, "a", val, 10) // soonest
	cc.SetString(ctx, "c", val, 30)
	if st.Used() != 111 {
		t.Fatalf("setup used=%d want 111", st.Used())
	}

	cc.SetString(ctx, "d", strings.Repeat("d", 20), 40) // 23 more bytes -> over quota

	if _, ok := cc.GetString(ctx, "d"); !ok {
		t.Fatalf("new entry must be stored after eviction")
	}
	if _, ok := cc.GetString(ctx, "a"); ok {
		t.Fatalf("soonest-expiring entry must be evicted")
	}
	for _, k := range []string{"b", "c"} {
		if _, ok := cc.GetString(ctx, k); !ok {
			t.Fatalf("entry %q should survive", k)
		}
	}
	if has(t, st, "p-a-x") {
		t.Fatalf("evicted entry's marker must be removed")
	}
	if len(h.evicted) != 1 || h.evicted[0] != "p-a" {
		t.Fatalf("evicted=%v", h.evicted)
	}
}

func TestEvictionMakesRoomForMarker(t *testing.T) {
	ctx := context.Background()
	st := memory.New(memory.Config{MaxBytes: 90})
	h := newRecHooks()
	cc := newTestCache[string](t, st, nil, func(o *Options[string]) {
		o.Now = newFakeClock().Now
		o.Hooks = h
	})

	val := strings.Repeat("v", 25)
	for _, k := range []string{"a", "b", "c"} {
		cc.SetString(ctx, k, val, 0) // 28 each
	}
	// value 28 + marker 9 ("p-d-x" + "1005") do not fit; the pass must free both
	cc.SetString(ctx, "d", val, 5)

	if got, ok := cc.GetString(ctx, "d"); !ok || got != val {
		t.Fatalf("new entry must survive eviction: %q %v", got, ok)
	}
	if !has(t, st, "p-d-x") {
		t.Fatalf("new entry lost its expiration")
	}
	if len(h.abandoned) != 0 {
		t.Fatalf("nothing should be abandoned, got %v", h.abandoned)
	}
	if len(h.evicted) != 2 || h.evicted[0] != "p-c" || h.evicted[1] != "p-b" {
		t.Fatalf("evicted=%v", h.evicted)
	}
	if _, ok := cc.GetString(ctx, "a"); !ok {
		t.Fatalf("a should survive")
	}
}

func TestEvictionForMarkerOnly(t *testing.T) {
	ctx := context.Background()
	st := memory.New(memory.Config{MaxBytes: 40})
	h := newRecHooks()
	cc := newTestCache[string](t, st, nil, func(o *Options[string]) {
		o.Now = newFakeClock().Now
		o.Hooks = h
	})

	cc.SetString(ctx, "a", strings.Repeat("v", 25), 0) // 28
	cc.SetString(ctx, "d", "v", 5)                     // value 4 fits, marker 9 does not

	if _, ok := cc.GetString(ctx, "d"); !ok || !has(t, st, "p-d-x") {
		t.Fatalf("d must be stored with its marker")
	}
	if len(h.evicted) != 1 || h.evicted[0] != "p-a" {
		t.Fatalf("evicted=%v", h.evicted)
	}
}

func TestMarkerOverQuotaKeepsValue(t *testing.T) {
	ctx := context.Background()
	full := false
	st := &failingStore{Memory: memory.New(memory.Config{}), fail: func(k string) error {
		if full && strings.HasSuffix(k, "-x") {
			return pr.ErrQuotaExceeded
		}
		return nil
	}}
	clock := newFakeClock()
	h := newRecHooks()
	cc := newTestCache[string](t, st, nil, func(o *Options[string]) {
		o.Now = clock.Now
		o.Hooks = h
	})

	cc.SetString(ctx, "k", "v1", 1)
	full = true
	cc.SetString(ctx, "k", "v2", 5)

	if has(t, st, "p-k-x") {
		t.Fatalf("stale marker must not outlive the new value")
	}
	if len(h.abandoned) != 0 {
		t.Fatalf("value was kept, nothing abandoned: %v", h.abandoned)
	}
	clock.advance(10 * time.Minute)
	if got, ok := cc.GetString(ctx, "k"); !ok || got != "v2" {
		t.Fatalf("markerless value never expires: %q %v", got, ok)
	}
}

func TestEvictionPrefersExpiringEntries(t *testing.T) {
	ctx := context.Background()
	st := memory.New(memory.Config{MaxBytes: 120})
	h := newRecHooks()
	cc := newTestCache[string](t, st, nil, func(o *Options[string]) {
		o.Now = newFakeClock().Now
		o.Hooks = h
	})

	val := strings.Repeat("v", 25)
	cc.SetString(ctx, "n", val, 0) // 28
	cc.SetString(ctx, "e", val, 5) // 37
	cc.SetString(ctx, "m", val, 0) // 28

	cc.SetString(ctx, "z", val, 0) // +28 -> 121

	if len(h.evicted) != 1 || h.evicted[0] != "p-e" {
		t.Fatalf("only the expiring entry should go, evicted=%v", h.evicted)
	}
	for _, k := range []string{"n", "m", "z"} {
		if _, ok := cc.GetString(ctx, k); !ok {
			t.Fatalf("entry %q should be present", k)
		}
	}
}

func TestEvictionStaysInActiveBucket(t *testing.T) {
	ctx := context.Background()
	st := memory.New(memory.Config{MaxBytes: 60})
	h := newRecHooks()
	cc := newTestCache[string](t, st, nil, func(o *Options[string]) { o.Hooks = h })

	cc.SetBucket("x")
	cc.SetString(ctx, "k", strings.Repeat("v", 20), 0) // 24
	cc.SetBucket("y")
	cc.SetString(ctx, "k", strings.Repeat("w", 40), 0) // 44 -> over, nothing to evict in y

	if len(h.evicted) != 0 {
		t.Fatalf("other buckets must not be evicted, got %v", h.evicted)
	}
	if h.abandoned["p-yk"] != ReasonQuota {
		t.Fatalf("want quota abandon, got %v", h.abandoned)
	}
	if !has(t, st, "p-xk") {
		t.Fatalf("bucket x entry was removed")
	}
}

func TestSecondQuotaFailureGivesUp(t *testing.T) {
	ctx := context.Background()
	st := memory.New(memory.Config{MaxBytes: 120})
	h := newRecHooks()
	logger := &recLogger{}
	cc := newTestCache[string](t, st, nil, func(o *Options[string]) {
		o.Now = newFakeClock().Now
		o.Hooks = h
		o.Logger = logger
		o.Warnings = true
	})

	cc.SetString(ctx, "a", "small", 1)
	cc.SetString(ctx, "huge", strings.Repeat("h", 200), 0)

	if has(t, st, "p-huge") {
		t.Fatalf("value larger than the quota cannot be stored")
	}
	if h.abandoned["p-huge"] != ReasonQuota {
		t.Fatalf("want quota abandon, got %v", h.abandoned)
	}
	// one pass: everything in the bucket was planned and removed, nothing more
	if len(h.evicted) != 1 || h.evicted[0] != "p-a" {
		t.Fatalf("evicted=%v", h.evicted)
	}
	if len(logger.warns) != 2 {
		t.Fatalf("want eviction + abandon warnings, got %v", logger.warns)
	}
}

func TestOtherStoreErrorSkipsEviction(t *testing.T) {
	ctx := context.Background()
	st := &failingStore{Memory: memory.New(memory.Config{}), fail: func(k string) error {
		if k == "p-bad" {
			return errors.New("disk on fire")
		}
		return nil
	}}
	h := newRecHooks()
	cc := newTestCache[string](t, st, nil, func(o *Options[string]) { o.Hooks = h })

	cc.SetString(ctx, "good", "v", 0)
	cc.SetString(ctx, "bad", "v", 0)

	if h.abandoned["p-bad"] != ReasonStoreError {
		t.Fatalf("want store_error abandon, got %v", h.abandoned)
	}
	if len(h.evicted) != 0 || !has(t, st, "p-good") {
		t.Fatalf("non-capacity errors must not evict: evicted=%v", h.evicted)
	}
}

// ==============================
// Capability probe / degradation
// ==============================

func TestUnsupportedStoreDegrades(t *testing.T) {
	ctx := context.Background()
	st := &failingStore{Memory: memory.New(memory.Config{}), fail: func(string) error {
		return errors.New("storage disabled")
	}}
	_ = st.Memory.Set(ctx, "p-k", "pre-existing")
	h := newRecHooks()
	cc := newTestCache[user](t, st, c.JSON[user]{}, func(o *Options[user]) { o.Hooks = h })

	if cc.Supported() {
		t.Fatalf("probe should report unsupported")
	}
	cc.Set(ctx, "k", user{ID: "1"}, 1)
	cc.SetString(ctx, "k", "v", 0)
	if _, ok := cc.Get(ctx, "k"); ok {
		t.Fatalf("Get must miss on unsupported store")
	}
	if _, ok := cc.GetString(ctx, "k"); ok {
		t.Fatalf("GetString must miss on unsupported store")
	}
	cc.Remove(ctx, "k")
	cc.Flush(ctx)
	if !has(t, st, "p-k") {
		t.Fatalf("unsupported cache must not touch the store")
	}
	if st.setCalls != 1 || len(h.probes) != 1 {
		t.Fatalf("probe must run once: setCalls=%d probes=%v", st.setCalls, h.probes)
	}
}

func TestFullStoreStillSupported(t *testing.T) {
	st := memory.New(memory.Config{MaxBytes: 1})
	cc := newTestCache[string](t, st, nil, nil)
	if !cc.Supported() {
		t.Fatalf("a full store is available")
	}
}

func TestDisabled(t *testing.T) {
	ctx := context.Background()
	st := memory.New(memory.Config{})
	cc := newTestCache[string](t, st, nil, func(o *Options[string]) { o.Disabled = true })
	cc.SetString(ctx, "k", "v", 0)
	if cc.Supported() || has(t, st, "p-k") {
		t.Fatalf("disabled cache must not write")
	}
}

func TestProbeLeavesNoKey(t *testing.T) {
	ctx := context.Background()
	st := memory.New(memory.Config{})
	cc := newTestCache[string](t, st, nil, nil)
	if !cc.Supported() {
		t.Fatalf("memory store should be supported")
	}
	if keys, _ := st.Keys(ctx); len(keys) != 0 {
		t.Fatalf("probe left keys behind: %v", keys)
	}
}

// ==============================
// Options / diagnostics
// ==============================

func TestNewValidates(t *testing.T) {
	st := memory.New(memory.Config{})
	cases := map[string]Options[string]{
		"no store":      {},
		"radix 1":       {Store: st, Radix: 1},
		"radix 37":      {Store: st, Radix: 37},
		"negative res":  {Store: st, Resolution: -time.Second},
		"sub-ms res":    {Store: st, Resolution: time.Microsecond},
		"negative tail": {Store: st, MaxUnit: -1},
	}
	for name, o := range cases {
		if _, err := New[string](o); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestDefaults(t *testing.T) {
	cc := newTestCache[string](t, memory.New(memory.Config{}), nil, func(o *Options[string]) {
		o.Prefix = ""
		o.Suffix = ""
		o.Bucket = "start"
	})
	if cc.Prefix() != DefaultPrefix || cc.ks.Suffix != DefaultSuffix || cc.Bucket() != "start" {
		t.Fatalf("defaults: prefix=%q suffix=%q bucket=%q", cc.Prefix(), cc.ks.Suffix, cc.Bucket())
	}
	if cc.clock.Radix != 10 || cc.clock.Resolution != time.Minute || cc.maxUnit != 144_000_000_000 {
		t.Fatalf("defaults: radix=%d res=%v max=%d", cc.clock.Radix, cc.clock.Resolution, cc.maxUnit)
	}
}

func TestWarningsGated(t *testing.T) {
	ctx := context.Background()
	logger := &recLogger{}
	cc := newTestCache[string](t, memory.New(memory.Config{MaxBytes: 40}), nil, func(o *Options[string]) {
		o.Logger = logger
	})

	cc.SetString(ctx, "big", strings.Repeat("x", 100), 0)
	if len(logger.warns) != 0 {
		t.Fatalf("warnings disabled, got %v", logger.warns)
	}
	cc.EnableWarnings(true)
	cc.SetString(ctx, "big", strings.Repeat("x", 100), 0)
	if len(logger.warns) != 1 {
		t.Fatalf("warnings enabled, got %v", logger.warns)
	}
}

func TestSetErrorUnwraps(t *testing.T) {
	e := &SetError{Key: "k", Reason: ReasonQuota, Err: pr.ErrQuotaExceeded}
	if !errors.Is(e, pr.ErrQuotaExceeded) {
		t.Fatalf("SetError must unwrap")
	}
	if !strings.Contains(e.Error(), "too big") {
		t.Fatalf("Error()=%q", e.Error())
	}
}
