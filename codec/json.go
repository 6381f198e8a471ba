package codec

import "encoding/json"

// JSON is the default codec and reads entries written as JSON text by earlier
// instances of the cache. Cyclic or unsupported values fail to Encode, and the
// cache drops the write.
type JSON[V any] struct{}

var _ Codec[struct{}] = JSON[struct{}]{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
