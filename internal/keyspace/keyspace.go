package keyspace

import "strings"

// Keyspace derives physical store keys from logical keys.
//
//	value:  <prefix><bucket><key>
//	marker: <prefix><bucket><key><suffix>
//
// The layout is the on-store format shared with earlier writers and must not change.
type Keyspace struct {
	Prefix string
	Bucket string
	Suffix string
}

// Root is the namespace root every physical key of this keyspace starts with.
func (k Keyspace) Root() string { return k.Prefix + k.Bucket }

// Key returns the physical key holding the value for logical key.
func (k Keyspace) Key(logical string) string { return k.Root() + logical }

// Marker returns the physical key holding the expiration of logical key.
func (k Keyspace) Marker(logical string) string { return k.Key(logical) + k.Suffix }

// Owns reports whether physical lives under this keyspace root (markers included).
func (k Keyspace) Owns(physical string) bool { return strings.HasPrefix(physical, k.Root()) }

// IsMarker reports whether physical is an expiration marker key.
func (k Keyspace) IsMarker(physical string) bool {
	return k.Suffix != "" && strings.HasSuffix(physical, k.Suffix)
}

// Logical strips the root from a value key. ok is false for foreign keys and markers.
func (k Keyspace) Logical(physical string) (string, bool) {
	if !k.Owns(physical) || k.IsMarker(physical) {
		return "", false
	}
	return physical[len(k.Root()):], true
}
