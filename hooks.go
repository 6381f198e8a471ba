package expcache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; they run inside cache operations.
// Unlike Warn logs, hooks fire regardless of Options.Warnings.
type Hooks interface {
	// The capability probe ran (once per cache). err is the probe failure, if any.
	StoreProbed(supported bool, err error)

	// Get found the entry past its expiration and removed value and marker.
	Expired(storageKey string)

	// An eviction pass removed the entry to make room.
	Evicted(storageKey string, size int, expiration int64)

	// A write was dropped. err is a *SetError.
	// reason ∈ {"encode", "quota", "store_error", "marker"}
	SetAbandoned(storageKey, reason string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) StoreProbed(bool, error)            {}
func (NopHooks) Expired(string)                     {}
func (NopHooks) Evicted(string, int, int64)         {}
func (NopHooks) SetAbandoned(string, string, error) {}
