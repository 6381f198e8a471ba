package expcache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/expcache/codec"
	pr "github.com/unkn0wn-root/expcache/provider"
)

// Cache is the expiring, bucketed cache API. V is the structured value type
// handled by the configured Codec; plain strings go through SetString/GetString.
//
// ttl is measured in time units (Options.Resolution). 0 means "never expires".
type Cache[V any] interface {
	Supported() bool
	Close(context.Context) error

	Set(ctx context.Context, key string, value V, ttl int64)
	SetString(ctx context.Context, key, value string, ttl int64)
	Get(ctx context.Context, key string) (Item[V], bool)
	GetString(ctx context.Context, key string) (string, bool)
	Remove(ctx context.Context, key string)

	// Flush drops every value and marker of the active bucket.
	Flush(ctx context.Context)
	// ClearAll clears the whole store, including keys the cache does not own.
	ClearAll(ctx context.Context)

	SetBucket(name string)
	ResetBucket()
	Bucket() string
	Prefix() string

	EnableWarnings(enabled bool)
}

// Item is a Get result. Raw is the stored string. Value is set only when Raw
// decoded with the codec; otherwise the entry is a plain string.
type Item[V any] struct {
	Raw     string
	Value   V
	Decoded bool
}

// Options configure a cache. Only Store is required.
// Everything except Bucket and Warnings is fixed for the cache's lifetime.
type Options[V any] struct {
	// Required
	Store pr.Store

	Codec  c.Codec[V] // nil => strings only; Set abandons every write
	Prefix string     // "" => DefaultPrefix
	Bucket string     // initial bucket; "" is the default bucket
	Suffix string     // "" => DefaultSuffix

	Resolution time.Duration // size of one time unit; 0 => 1m
	Radix      int           // base of stored expirations, 2..36; 0 => 10
	MaxUnit    int64         // expiration assumed for markerless entries and the latest one Set writes; 0 => last representable date

	Warnings bool             // emit Warn diagnostics through Logger
	Logger   Logger           // if nil, NopLogger is used
	Hooks    Hooks            // if nil, NopHooks is used
	Now      func() time.Time // nil => time.Now
	Disabled bool             // report the store as unsupported
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}
