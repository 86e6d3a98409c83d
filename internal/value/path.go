package value

import (
	"strconv"
	"strings"
)

// SplitPath splits a dotted path into its segments. A non-empty sequence of
// segments separated by "." is the only accepted shape; an empty path yields
// no segments.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}

	return strings.Split(path, ".")
}

// Resolve walks v through the dotted path segments. A segment resolves
// against a Map by key lookup and against a List by base-10 index; any other
// combination (missing key, out-of-range or non-numeric index, scalar with
// remaining segments) yields null.
func Resolve(v Value, segments []string) Value {
	current := v

	for _, seg := range segments {
		switch current.Kind {
		case Map:
			next, ok := current.mapVal.Get(seg)
			if !ok {
				return NullValue()
			}

			current = next
		case List:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(current.listVal) {
				return NullValue()
			}

			current = current.listVal[idx]
		default:
			return NullValue()
		}
	}

	return current
}

// ResolvePath is a convenience wrapper combining [SplitPath] and [Resolve].
func ResolvePath(v Value, path string) Value {
	return Resolve(v, SplitPath(path))
}

// Walk performs a full recursive descent through v, invoking fn for every
// leaf reached (a value that is not itself a Map or List) together with its
// dotted path from the root. This is the shared traversal the index manager
// uses to discover every indexable path of an entity's fields.
func Walk(v Value, prefix string, fn func(path string, leaf Value)) {
	switch v.Kind {
	case Map:
		for _, k := range v.mapVal.Keys() {
			child, _ := v.mapVal.Get(k)
			Walk(child, joinPath(prefix, k), fn)
		}
	case List:
		for i, child := range v.listVal {
			Walk(child, joinPath(prefix, strconv.Itoa(i)), fn)
		}
	default:
		if prefix != "" {
			fn(prefix, v)
		}
	}
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}

	return prefix + "." + segment
}
