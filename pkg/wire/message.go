package wire

import (
	"fmt"
	"io"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Message is a dictionary exchanged on the transfer command channel.
// Values must be representable in a google.protobuf.Struct: strings,
// booleans, numbers, nil, lists and nested maps. Numbers decode as
// float64; use Int to read them back.
type Message map[string]any

// Has reports whether key is present.
func (m Message) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// String returns the string under key, or "" when absent or not a string.
func (m Message) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// Int returns the number under key.
func (m Message) Int(key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	default:
		return 0, false
	}
}

// Strings returns the list under key as strings; non-string items are
// skipped.
func (m Message) Strings(key string) []string {
	items, _ := m[key].([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// MarshalMessage encodes m as a serialized protobuf Struct.
func MarshalMessage(m Message) ([]byte, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("wire: encode message: %w", err)
	}
	return proto.Marshal(s)
}

// UnmarshalMessage decodes a serialized protobuf Struct.
func UnmarshalMessage(b []byte) (Message, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("wire: decode message: %w", err)
	}
	return Message(s.AsMap()), nil
}

// WriteMessage sends m as one frame.
func WriteMessage(w io.Writer, m Message) error {
	b, err := MarshalMessage(m)
	if err != nil {
		return err
	}
	return WriteFrame(w, b)
}

// ReadMessage receives one frame and decodes it.
func ReadMessage(r io.Reader) (Message, error) {
	b, err := ReadFrame(r, DefaultMaxFrame)
	if err != nil {
		return nil, err
	}
	return UnmarshalMessage(b)
}
