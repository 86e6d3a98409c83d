package value

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FromAny converts a decoded JSON value (as produced by encoding/json into an
// any via map[string]any/[]any/float64/string/bool/nil) into a Value. This is
// the boundary every snapshot and WAL record crosses on the way into the
// store.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return NullValue()
	case bool:
		return BoolValue(t)
	case float64:
		return NumberValue(t)
	case string:
		return StringValue(t)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromAny(item)
		}

		return ListValue(items)
	case map[string]any:
		m := NewOrderedMap()
		for k, item := range t {
			m.Set(k, FromAny(item))
		}

		return MapValue(m)
	default:
		return NullValue()
	}
}

// ToAny converts a Value back into plain Go data suitable for
// encoding/json.Marshal (map[string]any/[]any/float64/string/bool/nil).
func ToAny(v Value) any {
	switch v.Kind {
	case Null:
		return nil
	case Bool:
		return v.boolVal
	case Number:
		return v.numberVal
	case String:
		return v.stringVal
	case List:
		out := make([]any, len(v.listVal))
		for i, item := range v.listVal {
			out[i] = ToAny(item)
		}

		return out
	case Map:
		out := make(map[string]any, v.mapVal.Len())
		for _, k := range v.mapVal.Keys() {
			item, _ := v.mapVal.Get(k)
			out[k] = ToAny(item)
		}

		return out
	default:
		return nil
	}
}

// FieldsFromJSON decodes a JSON object into an ordered fields map, preserving
// the source object's key order the way [OrderedMap] requires.
func FieldsFromJSON(data []byte) (*OrderedMap, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))

	tok, err := decoder.Token()
	if err != nil {
		return nil, fmt.Errorf("fields from json: %w", err)
	}

	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return nil, fmt.Errorf("fields from json: expected object")
	}

	m := NewOrderedMap()

	for decoder.More() {
		keyTok, err := decoder.Token()
		if err != nil {
			return nil, fmt.Errorf("fields from json: %w", err)
		}

		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("fields from json: expected string key")
		}

		var raw any

		err = decoder.Decode(&raw)
		if err != nil {
			return nil, fmt.Errorf("fields from json: decode %q: %w", key, err)
		}

		m.Set(key, FromAny(raw))
	}

	return m, nil
}

// FieldsToJSON encodes an ordered fields map as a JSON object, preserving key
// order in the output bytes.
func FieldsToJSON(m *OrderedMap) ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}

	buf := []byte{'{'}

	for i, k := range m.Keys() {
		if i > 0 {
			buf = append(buf, ',')
		}

		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("fields to json: marshal key %q: %w", k, err)
		}

		buf = append(buf, keyBytes...)
		buf = append(buf, ':')

		v, _ := m.Get(k)

		valBytes, err := json.Marshal(ToAny(v))
		if err != nil {
			return nil, fmt.Errorf("fields to json: marshal value for %q: %w", k, err)
		}

		buf = append(buf, valBytes...)
	}

	buf = append(buf, '}')

	return buf, nil
}
