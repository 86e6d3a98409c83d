// Package index implements the ordered and text secondary indexes the
// document store maintains over every dotted field path of every live
// entity.
package index

import (
	"sort"
	"strings"

	"github.com/calvinalkan/docstore/internal/diagnostics"
	"github.com/calvinalkan/docstore/internal/value"
)

// Manager owns, per dotted path: an ordered index (normalized value -> id
// set) supporting range views, and a text index (id -> lowercased string)
// supporting substring and wildcard match. A Manager is a per-store instance,
// never a process singleton — a process may host multiple stores on disjoint
// directories.
type Manager struct {
	log Logger

	// ordered holds, per path, a slice of buckets sorted by normalized key.
	// Go has no stdlib ordered map with range-view support, so this is a
	// sorted slice searched with sort.Search.
	ordered map[string][]bucket

	// text holds, per path, id -> lowercased original string.
	text map[string]map[string]string
}

// Logger is satisfied by [diagnostics.Logger]; declared locally so this
// package doesn't need to import diagnostics types into its public surface
// beyond what New requires.
type Logger = diagnostics.Logger

type bucket struct {
	key value.Normalized
	ids map[string]struct{}
}

// New returns an empty Manager. A nil Logger disables warnings.
func New(log Logger) *Manager {
	if log == nil {
		log = diagnostics.Noop()
	}

	return &Manager{
		log:     log,
		ordered: make(map[string][]bucket),
		text:    make(map[string]map[string]string),
	}
}

// Index adds entries for every indexable path reached by a full recursive
// descent through fields. At each leaf: if the value is a number or
// comparable scalar, it is added to the ordered index under the normalized
// key; additionally, if the value is a string, the lowercased string is
// recorded in the text index.
func (m *Manager) Index(id string, fields *value.OrderedMap) {
	if id == "" || fields == nil {
		m.log.Warn("index: skipping null argument", "id", id)

		return
	}

	value.Walk(value.MapValue(fields), "", func(path string, leaf value.Value) {
		m.indexLeaf(id, path, leaf)
	})
}

func (m *Manager) indexLeaf(id, path string, leaf value.Value) {
	if norm, ok := value.Normalize(leaf); ok {
		m.insertOrdered(path, norm, id)
	}

	if leaf.Kind == value.String {
		m.insertText(path, id, leaf.String())
	}
}

// Remove mirrors Index, removing the id from each entry it holds and pruning
// empty value-buckets and empty path buckets so the index never accumulates
// stale entries.
func (m *Manager) Remove(id string, fields *value.OrderedMap) {
	if id == "" || fields == nil {
		m.log.Warn("remove: skipping null argument", "id", id)

		return
	}

	value.Walk(value.MapValue(fields), "", func(path string, leaf value.Value) {
		if norm, ok := value.Normalize(leaf); ok {
			m.removeOrdered(path, norm, id)
		}

		if leaf.Kind == value.String {
			m.removeText(path, id)
		}
	})
}

func (m *Manager) insertOrdered(path string, key value.Normalized, id string) {
	buckets := m.ordered[path]

	idx, found := searchBucket(buckets, key)
	if found {
		buckets[idx].ids[id] = struct{}{}

		return
	}

	newBucket := bucket{key: key, ids: map[string]struct{}{id: {}}}

	buckets = append(buckets, bucket{})
	copy(buckets[idx+1:], buckets[idx:])
	buckets[idx] = newBucket

	m.ordered[path] = buckets
}

func (m *Manager) removeOrdered(path string, key value.Normalized, id string) {
	buckets := m.ordered[path]

	idx, found := searchBucket(buckets, key)
	if !found {
		return
	}

	delete(buckets[idx].ids, id)

	if len(buckets[idx].ids) == 0 {
		buckets = append(buckets[:idx], buckets[idx+1:]...)
	}

	if len(buckets) == 0 {
		delete(m.ordered, path)

		return
	}

	m.ordered[path] = buckets
}

// searchBucket returns the index of the bucket with the given key, and
// whether it was found; if not found, the index is where it would be
// inserted to keep buckets sorted.
func searchBucket(buckets []bucket, key value.Normalized) (int, bool) {
	idx := sort.Search(len(buckets), func(i int) bool {
		return value.Compare(buckets[i].key, key) >= 0
	})

	if idx < len(buckets) && value.Compare(buckets[idx].key, key) == 0 {
		return idx, true
	}

	return idx, false
}

func (m *Manager) insertText(path, id, s string) {
	byID, ok := m.text[path]
	if !ok {
		byID = make(map[string]string)
		m.text[path] = byID
	}

	byID[id] = strings.ToLower(s)
}

func (m *Manager) removeText(path, id string) {
	byID, ok := m.text[path]
	if !ok {
		return
	}

	delete(byID, id)

	if len(byID) == 0 {
		delete(m.text, path)
	}
}

func unionAll(buckets []bucket) map[string]struct{} {
	out := make(map[string]struct{})

	for _, b := range buckets {
		for id := range b.ids {
			out[id] = struct{}{}
		}
	}

	return out
}

// SearchEquals returns the id set whose value at path normalizes equal to
// value. A null value argument returns the empty set and logs a warning; an
// unindexable value simply yields no entries (no error).
func (m *Manager) SearchEquals(path string, v value.Value) map[string]struct{} {
	norm, ok := value.Normalize(v)
	if !ok {
		m.log.Warn("search equals: unindexable value", "path", path)

		return map[string]struct{}{}
	}

	buckets := m.ordered[path]

	idx, found := searchBucket(buckets, norm)
	if !found {
		return map[string]struct{}{}
	}

	out := make(map[string]struct{}, len(buckets[idx].ids))
	for id := range buckets[idx].ids {
		out[id] = struct{}{}
	}

	return out
}

// SearchGreaterThan returns the union of all id-sets whose normalized key is
// strictly greater than value, restricted to the same normalized kind (the
// ordered index never compares across kinds implicitly).
func (m *Manager) SearchGreaterThan(path string, v value.Value) map[string]struct{} {
	return m.searchRange(path, v, false, true, false)
}

// SearchGreaterOrEquals returns SearchGreaterThan ∪ SearchEquals.
func (m *Manager) SearchGreaterOrEquals(path string, v value.Value) map[string]struct{} {
	return m.searchRange(path, v, true, true, false)
}

// SearchLessThan returns the union of all id-sets whose normalized key is
// strictly less than value, restricted to the same normalized kind.
func (m *Manager) SearchLessThan(path string, v value.Value) map[string]struct{} {
	return m.searchRange(path, v, false, false, true)
}

// SearchLessOrEquals returns SearchLessThan ∪ SearchEquals.
func (m *Manager) SearchLessOrEquals(path string, v value.Value) map[string]struct{} {
	return m.searchRange(path, v, true, false, true)
}

func (m *Manager) searchRange(path string, v value.Value, inclusive, greater, less bool) map[string]struct{} {
	norm, ok := value.Normalize(v)
	if !ok {
		m.log.Warn("search range: unindexable value", "path", path)

		return map[string]struct{}{}
	}

	buckets := m.ordered[path]
	idx, found := searchBucket(buckets, norm)

	var selected []bucket

	switch {
	case greater:
		start := idx
		if found && !inclusive {
			start = idx + 1
		}

		selected = sameKindSlice(buckets, start, len(buckets), norm.Kind)
	case less:
		end := idx
		if found && inclusive {
			end = idx + 1
		}

		selected = sameKindSlice(buckets, 0, end, norm.Kind)
	}

	return unionAll(selected)
}

func sameKindSlice(buckets []bucket, start, end int, kind value.NormKind) []bucket {
	if start < 0 {
		start = 0
	}

	if end > len(buckets) {
		end = len(buckets)
	}

	if start >= end {
		return nil
	}

	out := make([]bucket, 0, end-start)

	for _, b := range buckets[start:end] {
		if b.key.Kind == kind {
			out = append(out, b)
		}
	}

	return out
}

// SearchContains lowercases needle and returns ids whose lowercased text at
// path contains it as a substring.
func (m *Manager) SearchContains(path, needle string) map[string]struct{} {
	byID, ok := m.text[path]
	if !ok {
		return map[string]struct{}{}
	}

	lower := strings.ToLower(needle)
	out := make(map[string]struct{})

	for id, text := range byID {
		if strings.Contains(text, lower) {
			out[id] = struct{}{}
		}
	}

	return out
}

// SearchLike matches SQL-style wildcards against the lowercased text index:
// '%' matches any run of characters, '_' matches one character, '\' escapes.
// The match is anchored (the whole string must match the pattern).
func (m *Manager) SearchLike(path, pattern string) map[string]struct{} {
	byID, ok := m.text[path]
	if !ok {
		return map[string]struct{}{}
	}

	re := CompileLike(pattern)
	out := make(map[string]struct{})

	for id, text := range byID {
		if re.MatchString(text) {
			out[id] = struct{}{}
		}
	}

	return out
}
