// Package codec turns structured values into the payloads expcache stores.
//
// Stores are string-valued; payload bytes are stored verbatim as a Go string, so
// binary codecs (Msgpack, CBOR, Protobuf) work against any transparent store.
// Nothing records which codec wrote an entry: on read the cache tries to Decode and
// treats a failure as a plain string.
package codec

// Codec encodes/decodes values V to payload bytes.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
