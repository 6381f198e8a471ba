// Package evict selects which cache entries to drop when the store is full.
package evict

import (
	"cmp"
	"context"
	"iter"
	"slices"

	"github.com/unkn0wn-root/expcache/internal/keyspace"
	pr "github.com/unkn0wn-root/expcache/provider"
)

// Candidate is one value entry seen during an eviction pass.
type Candidate struct {
	Key        string // logical
	Size       int    // len(value)
	Expiration int64  // time unit; far future when the entry has no marker
}

// Scan lists the value keys under ks.Root() and returns a one-shot sequence of
// candidates. Values and markers are read while the sequence is consumed;
// entries that vanish in between are skipped.
func Scan(ctx context.Context, s pr.Store, ks keyspace.Keyspace, parse func(string) (int64, bool), farFuture int64) (iter.Seq[Candidate], error) {
	keys, err := pr.List(ctx, s, ks.Root())
	if err != nil {
		return nil, err
	}
	return func(yield func(Candidate) bool) {
		for _, physical := range keys {
			logical, ok := ks.Logical(physical)
			if !ok {
				continue
			}
			v, ok, err := s.Get(ctx, physical)
			if err != nil || !ok {
				continue
			}
			exp := farFuture
			if raw, ok, err := s.Get(ctx, ks.Marker(logical)); err == nil && ok {
				if n, ok := parse(raw); ok {
					exp = n
				}
			}
			if !yield(Candidate{Key: logical, Size: len(v), Expiration: exp}) {
				return
			}
		}
	}, nil
}

// Plan orders entries latest-expiration first and takes victims from the tail
// (soonest expiration) until at least required bytes are freed or nothing is left.
// Ties keep scan order. entries is reordered in place.
func Plan(entries []Candidate, required int) []Candidate {
	slices.SortStableFunc(entries, func(a, b Candidate) int {
		return cmp.Compare(b.Expiration, a.Expiration)
	})
	var victims []Candidate
	for remaining := required; remaining > 0 && len(entries) > 0; {
		last := entries[len(entries)-1]
		entries = entries[:len(entries)-1]
		victims = append(victims, last)
		remaining -= last.Size
	}
	return victims
}
