// Package version implements per-id history: an append-only, timestamp-sorted
// list of versions supporting point-in-time reads and full-history
// enumeration.
package version

import (
	"sort"

	"github.com/calvinalkan/docstore/internal/value"
)

// Version is one entry in an id's history: a timestamp, a deep copy of the
// entity's fields at that point (or nil for a tombstone), and whether this
// version is a delete.
type Version struct {
	Timestamp int64
	Fields    *value.OrderedMap
	Deleted   bool
}

// Entry is the shape [Manager.Bootstrap] replays: one history record sourced
// from the snapshot or the WAL.
type Entry struct {
	ID        string
	Timestamp int64
	Fields    *value.OrderedMap // nil for a delete entry
	Deleted   bool              // marks a delete; Bootstrap checks this, not Fields
}

// Manager owns per-id history. It is a per-store instance, never a process
// singleton: a process may host multiple stores on disjoint directories,
// each with its own Manager.
type Manager struct {
	history map[string][]Version
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{history: make(map[string][]Version)}
}

// RecordInsert appends an insert/replace version for id with a deep copy of
// fields.
func (m *Manager) RecordInsert(id string, fields *value.OrderedMap, timestamp int64) {
	m.append(id, Version{Timestamp: timestamp, Fields: fields.Clone(), Deleted: false})
}

// RecordUpdate appends an update version for id with a deep copy of fields.
func (m *Manager) RecordUpdate(id string, fields *value.OrderedMap, timestamp int64) {
	m.append(id, Version{Timestamp: timestamp, Fields: fields.Clone(), Deleted: false})
}

// RecordDelete appends a tombstone version for id.
func (m *Manager) RecordDelete(id string, timestamp int64) {
	m.append(id, Version{Timestamp: timestamp, Fields: nil, Deleted: true})
}

// append inserts at the correct position to keep history sorted by
// timestamp, tolerating an out-of-order append: the invariant is sorted
// order, not arrival order. Among equal timestamps, the new entry is placed
// after existing ones with the same timestamp so ties break by insertion
// order.
func (m *Manager) append(id string, v Version) {
	versions := m.history[id]

	idx := sort.Search(len(versions), func(i int) bool {
		return versions[i].Timestamp > v.Timestamp
	})

	versions = append(versions, Version{})
	copy(versions[idx+1:], versions[idx:])
	versions[idx] = v

	m.history[id] = versions
}

// GetAt returns the deep copy of the newest non-deleted version whose
// timestamp is <= t, or nil if none exists or that version is a tombstone.
func (m *Manager) GetAt(id string, t int64) *value.OrderedMap {
	versions := m.history[id]

	idx := sort.Search(len(versions), func(i int) bool {
		return versions[i].Timestamp > t
	}) - 1

	if idx < 0 {
		return nil
	}

	v := versions[idx]
	if v.Deleted {
		return nil
	}

	return v.Fields.Clone()
}

// IsLive reports whether id's most recent version (if any) is not a
// tombstone.
func (m *Manager) IsLive(id string) bool {
	versions := m.history[id]
	if len(versions) == 0 {
		return false
	}

	return !versions[len(versions)-1].Deleted
}

// GetHistory returns every version for id in chronological order. Each
// returned map is annotated with synthetic "_timestamp" and "_deleted" keys
// in addition to the version's fields (or just the synthetic keys for a
// tombstone).
func (m *Manager) GetHistory(id string) []*value.OrderedMap {
	versions := m.history[id]
	out := make([]*value.OrderedMap, 0, len(versions))

	for _, v := range versions {
		snapshot := value.NewOrderedMap()

		if v.Fields != nil {
			for _, k := range v.Fields.Keys() {
				fv, _ := v.Fields.Get(k)
				snapshot.Set(k, fv.Clone())
			}
		}

		snapshot.Set("_timestamp", value.NumberValue(float64(v.Timestamp)))
		snapshot.Set("_deleted", value.BoolValue(v.Deleted))

		out = append(out, snapshot)
	}

	return out
}

// SnapshotAt assembles the live-at-t view for every id that has history,
// omitting ids deleted at t.
func (m *Manager) SnapshotAt(t int64) map[string]*value.OrderedMap {
	out := make(map[string]*value.OrderedMap)

	for id := range m.history {
		fields := m.GetAt(id, t)
		if fields != nil {
			out[id] = fields
		}
	}

	return out
}

// Bootstrap resets history and replays entries in non-decreasing timestamp
// order, applying insert/update as a version and delete as a tombstone. It is
// the versioning half of [Store] recovery from the persistence layer's load
// feed.
func (m *Manager) Bootstrap(entries []Entry) {
	m.history = make(map[string][]Version)

	sorted := append([]Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	for _, e := range sorted {
		if e.Deleted {
			m.RecordDelete(e.ID, e.Timestamp)
		} else {
			m.RecordInsert(e.ID, e.Fields, e.Timestamp)
		}
	}
}

// Ids returns every id that has at least one recorded version, live or not.
func (m *Manager) Ids() []string {
	ids := make([]string, 0, len(m.history))
	for id := range m.history {
		ids = append(ids, id)
	}

	return ids
}
