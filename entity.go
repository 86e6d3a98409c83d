package docstore

import "github.com/calvinalkan/docstore/internal/value"

// Entity is an (id, fields) pair: a non-empty string id and an ordered
// mapping of field names to values. The store enforces that fields' "id"
// key, if present, equals the entity's id -- see [Store.Insert].
type Entity struct {
	ID     string
	Fields *value.OrderedMap
}

// withIDField returns a deep copy of fields with "id" set to id, overwriting
// any existing "id" key. This is the boundary at which the store takes
// ownership of the caller's fields (spec: "the store's copy is not mutated
// by external aliasing").
func withIDField(id string, fields *value.OrderedMap) *value.OrderedMap {
	out := value.NewOrderedMap()

	if fields != nil {
		for _, k := range fields.Keys() {
			v, _ := fields.Get(k)
			out.Set(k, v.Clone())
		}
	}

	out.Set("id", value.StringValue(id))

	return out
}
