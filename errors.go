package expcache

import (
	"errors"
	"fmt"
)

// Reasons reported for abandoned writes.
const (
	ReasonEncode     = "encode"      // no codec, or the codec failed
	ReasonQuota      = "quota"       // still over quota after the eviction pass
	ReasonStoreError = "store_error" // non-capacity store failure, no eviction attempted
	ReasonMarker     = "marker"      // value written but its expiration marker was not
)

var ErrNoCodec = errors.New("expcache: no codec configured")

// SetError describes a write the cache dropped. It is never returned to callers;
// it is handed to Hooks.SetAbandoned and logged.
type SetError struct {
	Key    string
	Reason string
	Err    error
}

func (e *SetError) Error() string {
	switch e.Reason {
	case ReasonQuota:
		return fmt.Sprintf("set %q: does not fit after eviction, perhaps it's too big: %v", e.Key, e.Err)
	case ReasonEncode:
		return fmt.Sprintf("set %q: encode failed: %v", e.Key, e.Err)
	default:
		return fmt.Sprintf("set %q: %s: %v", e.Key, e.Reason, e.Err)
	}
}

func (e *SetError) Unwrap() error { return e.Err }
