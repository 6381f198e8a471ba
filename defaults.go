package expcache

import "time"

const (
	// DefaultPrefix and DefaultSuffix match the key layout of existing stored data.
	DefaultPrefix = "angular-webstorage-"
	DefaultSuffix = "-cacheexpiration"

	DefaultResolution = time.Minute
	DefaultRadix      = 10

	probeKey = "__storagetest__"
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
