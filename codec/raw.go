package codec

// String is an identity codec for string values. Every stored entry decodes, so
// Item.Decoded is always true with it; use it when V is string and you still want
// the typed Set/Get path.
type String struct{}

var _ Codec[string] = String{}

func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (String) Decode(b []byte) (string, error) { return string(b), nil }
