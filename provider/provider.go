// Package provider defines the flat string store used by expcache.
//
// Implementations MUST be transparent: Get must return exactly the string that
// was previously passed to Set for a key. Stores are flat - there is no TTL at this
// layer; expiration lives in separate marker entries owned by expcache.
//
// Important: keys under the cache prefix (default "angular-webstorage-") are owned
// by expcache. Foreign writes under that prefix will be enumerated, evicted and
// flushed like cache entries.
package provider

import (
	"context"
	"errors"
	"strings"
)

// ErrQuotaExceeded is returned (possibly wrapped) by Set when the store is out of
// capacity. expcache reacts to it with one eviction pass and a single retry.
var ErrQuotaExceeded = errors.New("provider: quota exceeded")

// Store is a synchronous, capacity-bounded string store.
// Must be safe for concurrent use.
type Store interface {
	// Get returns (value, true, nil) on hit; ("", false, nil) on miss.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key. Returns an error wrapping ErrQuotaExceeded
	// when the write does not fit.
	Set(ctx context.Context, key, value string) error

	// Del removes a key. Missing keys are not an error.
	Del(ctx context.Context, key string) error

	// Keys returns a fresh snapshot of every key in the store, in store order.
	Keys(ctx context.Context) ([]string, error)

	// Clear removes every key in the store, not only the cache's.
	Clear(ctx context.Context) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// PrefixLister is implemented by stores that can enumerate a key range cheaper
// than a full Keys snapshot.
type PrefixLister interface {
	KeysWithPrefix(ctx context.Context, prefix string) ([]string, error)
}

// List returns the keys of s starting with prefix, using PrefixLister when available.
func List(ctx context.Context, s Store, prefix string) ([]string, error) {
	if pl, ok := s.(PrefixLister); ok {
		return pl.KeysWithPrefix(ctx, prefix)
	}
	all, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, k := range all {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}
