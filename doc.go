// Package expcache implements a namespaced, expiring key-value cache on top of a
// flat, capacity-bounded string store (see package provider).
//
// Components:
//   - Store: synchronous string store (memory, bbolt, Redis, BigCache, Ristretto, Postgres).
//   - Codec[V]: (de)serializes structured values V <-> string payloads.
//   - Time units: expirations are kept as floor(unix ms / Resolution), formatted in Radix.
//
// Keys:
//
//	<prefix><bucket><key>           - value
//	<prefix><bucket><key><suffix>   - expiration marker
//
// Expiration is lazy: an entry is dropped when Get finds its marker in the past.
// When the store rejects a write for quota, the cache evicts the entries of the
// active bucket that expire soonest (entries without a marker last) until the new
// value's length is freed, then retries the write once.
//
// The cache is best-effort: Set/Get/Remove/Flush never return errors. Failures
// surface through Hooks and, when warnings are enabled, through the Logger.
//
//	c, _ := expcache.New(expcache.Options[User]{
//	    Store: memory.New(memory.Config{MaxBytes: 5 << 20}),
//	    Codec: codec.JSON[User]{},
//	})
//	c.Set(ctx, "u:1", u, 30) // 30 units (minutes by default)
//	it, ok := c.Get(ctx, "u:1")
package expcache
