package http

import (
	"bytes"
	"encoding/json"

	"github.com/iancoleman/strcase"
)

// KeyTranslator converts object keys between the application convention and
// the wire convention.
type KeyTranslator interface {
	ToWire(key string) string
	FromWire(key string) string
}

// SnakeCamel sends snake_case keys and hands camelCase keys back to callers.
type SnakeCamel struct{}

func (SnakeCamel) ToWire(key string) string   { return strcase.ToSnake(key) }
func (SnakeCamel) FromWire(key string) string { return strcase.ToLowerCamel(key) }

// TransformKeys rewrites every object key in v, recursing through nested
// objects and arrays. Scalars are returned unchanged.
func TransformKeys(v any, fn func(string) string) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fn(k)] = TransformKeys(val, fn)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = TransformKeys(val, fn)
		}
		return out
	default:
		return v
	}
}

// TransformJSONKeys applies TransformKeys to a JSON document. Numbers keep
// their exact text. ok is false when b is not valid JSON.
func TransformJSONKeys(b []byte, fn func(string) string) (out []byte, ok bool) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return nil, false
	}
	out, err := json.Marshal(TransformKeys(v, fn))
	if err != nil {
		return nil, false
	}
	return out, true
}
