package luabridge

import (
	"encoding/json"
	"fmt"
)

// Codec converts payloads of type T to and from the map form handed to Lua.
type Codec[T any] struct {
	Encode func(v T) (map[string]any, error)
	Decode func(m map[string]any) (T, error)
}

// JSONCodec converts through the JSON encoding of T, so field names follow
// T's json tags. T must encode as a JSON object.
func JSONCodec[T any]() Codec[T] {
	return Codec[T]{
		Encode: func(v T) (map[string]any, error) {
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			var m map[string]any
			if err := json.Unmarshal(raw, &m); err != nil {
				return nil, fmt.Errorf("payload is not an object: %w", err)
			}
			return m, nil
		},
		Decode: func(m map[string]any) (T, error) {
			var v T
			raw, err := json.Marshal(m)
			if err != nil {
				return v, err
			}
			err = json.Unmarshal(raw, &v)
			return v, err
		},
	}
}
