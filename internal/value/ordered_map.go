package value

// OrderedMap is an insertion-ordered string-keyed map, mirroring the
// restricted-YAML Frontmatter convention of keeping field order stable for
// deterministic output rather than relying on Go's randomized map iteration.
type OrderedMap struct {
	keys   []string
	values map[string]Value
}

// NewOrderedMap returns an empty OrderedMap.
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{values: make(map[string]Value)}
}

// Set inserts or overwrites key. Overwriting an existing key does not change
// its position in iteration order; a brand new key is appended.
func (m *OrderedMap) Set(key string, v Value) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}

	m.values[key] = v
}

// Get returns the value at key and whether it was present.
func (m *OrderedMap) Get(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}

	v, ok := m.values[key]

	return v, ok
}

// Delete removes key if present.
func (m *OrderedMap) Delete(key string) {
	if _, exists := m.values[key]; !exists {
		return
	}

	delete(m.values, key)

	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)

			break
		}
	}
}

// Keys returns the keys in insertion order. Callers must not mutate the
// returned slice.
func (m *OrderedMap) Keys() []string {
	if m == nil {
		return nil
	}

	return m.keys
}

// Len reports the number of entries.
func (m *OrderedMap) Len() int {
	if m == nil {
		return 0
	}

	return len(m.keys)
}

// Clone returns a deep copy, recursing into nested Values.
func (m *OrderedMap) Clone() *OrderedMap {
	if m == nil {
		return nil
	}

	clone := &OrderedMap{
		keys:   append([]string(nil), m.keys...),
		values: make(map[string]Value, len(m.values)),
	}

	for k, v := range m.values {
		clone.values[k] = v.Clone()
	}

	return clone
}

// Equal reports whether two maps have the same keys (any order) each mapping
// to structurally equal values. Map equality is defined over content, not
// insertion order, matching JSON object equality semantics.
func (m *OrderedMap) Equal(other *OrderedMap) bool {
	if m == nil || other == nil {
		return m == nil && other == nil
	}

	if len(m.keys) != len(other.keys) {
		return false
	}

	for k, v := range m.values {
		ov, ok := other.values[k]
		if !ok || !Equal(v, ov) {
			return false
		}
	}

	return true
}

// Merge returns a new OrderedMap equal to base with every key in delta
// overwritten or appended ("delta wins per key"), matching the store's
// updatePartial merge semantics. Neither input is mutated.
func Merge(base, delta *OrderedMap) *OrderedMap {
	result := NewOrderedMap()

	if base != nil {
		for _, k := range base.keys {
			v, _ := base.values[k]
			result.Set(k, v.Clone())
		}
	}

	if delta != nil {
		for _, k := range delta.keys {
			v, _ := delta.values[k]
			result.Set(k, v.Clone())
		}
	}

	return result
}

func (m *OrderedMap) asAnyMap() map[string]any {
	out := make(map[string]any, m.Len())

	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		out[k] = ToString(v)
	}

	return out
}
