// Package docstore implements a small, embeddable, schemaless document
// store: an in-memory live map of entities with secondary indexes over
// nested fields, a filter/query language, full per-entity version history,
// and durable write-ahead-log-plus-snapshot persistence.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/calvinalkan/docstore/internal/diagnostics"
	"github.com/calvinalkan/docstore/internal/filter"
	"github.com/calvinalkan/docstore/internal/index"
	"github.com/calvinalkan/docstore/internal/persist"
	"github.com/calvinalkan/docstore/internal/value"
	"github.com/calvinalkan/docstore/internal/version"
)

// Options configures [OpenWithOptions]. The zero Options is a purely
// in-memory store: BaseDir empty disables persistence and the advisory lock
// entirely (secondary indexes are still maintained). Use [DefaultOptions] to
// get Options with the advisory lock enabled.
type Options struct {
	// BaseDir is the directory persistence reads and writes. Empty disables
	// persistence: no WAL, no snapshot, no lock, and the store holds
	// everything purely in memory.
	BaseDir string

	// Lock enables the advisory cross-process lock on BaseDir. Only
	// meaningful when BaseDir is non-empty.
	Lock bool

	// SnapshotOnClose saves a snapshot during Close, truncating the WAL.
	SnapshotOnClose bool

	// Logger receives non-fatal warnings (IndexWarning). Defaults to a
	// log/slog-backed logger; pass [diagnostics.Noop] to silence them.
	Logger diagnostics.Logger

	// Clock returns the current time as Unix milliseconds, called once per
	// mutation so the WAL and in-memory history agree exactly. Defaults to
	// time.Now().UnixMilli. Tests supply a deterministic clock (see
	// internal/testutil.Clock).
	Clock func() int64
}

// DefaultOptions returns Options for baseDir with the advisory lock enabled,
// the recommended starting point for a persisted store.
func DefaultOptions(baseDir string) Options {
	return Options{BaseDir: baseDir, Lock: true}
}

// Store is the document store. All public methods are safe to call from
// multiple goroutines: they serialize on one mutex. A Store assumes it is
// the sole writer of its directory; the advisory lock only protects against
// a second Open, not concurrent callers within one process.
type Store struct {
	mu sync.Mutex

	snapshotOnClose bool
	clock           func() int64
	log             diagnostics.Logger

	live map[string]*value.OrderedMap
	idx  *index.Manager
	ver  *version.Manager
	per  *persist.Persistence // nil when running purely in memory
}

// Open opens (or creates) a store persisted under baseDir, with the
// advisory lock enabled. Equivalent to OpenWithOptions(ctx,
// DefaultOptions(baseDir)).
func Open(ctx context.Context, baseDir string) (*Store, error) {
	return OpenWithOptions(ctx, DefaultOptions(baseDir))
}

// OpenWithOptions opens a store per opts. With an empty BaseDir the store is
// purely in-memory: no lock is taken, no files are touched, and Close is a
// no-op. With a non-empty BaseDir, opening triggers (in order) the advisory
// lock, a load of snapshot+WAL, a Versioning bootstrap from the resulting
// history feed, and re-indexing of every id in the reconstructed live map.
func OpenWithOptions(ctx context.Context, opts Options) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("docstore: open: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = diagnostics.Default()
	}

	clock := opts.Clock
	if clock == nil {
		clock = func() int64 { return time.Now().UnixMilli() }
	}

	s := &Store{
		snapshotOnClose: opts.SnapshotOnClose,
		clock:           clock,
		log:             log,
		live:            make(map[string]*value.OrderedMap),
		idx:             index.New(log),
		ver:             version.New(),
	}

	if opts.BaseDir == "" {
		return s, nil
	}

	p, err := persist.Open(opts.BaseDir, persist.Options{Lock: opts.Lock})
	if err != nil {
		if errors.Is(err, persist.ErrLockHeld) {
			return nil, fmt.Errorf("docstore: open: %w: %w", ErrLockHeld, err)
		}

		return nil, fmt.Errorf("docstore: open: %w: %w", ErrIO, err)
	}

	p.SetLogger(log)

	live, feed, err := p.Load(ctx)
	if err != nil {
		_ = p.Close()

		return nil, fmt.Errorf("docstore: open: %w: %w", ErrIO, err)
	}

	s.per = p
	s.ver.Bootstrap(feed)

	for id, fields := range live {
		s.live[id] = fields
		s.idx.Index(id, fields)
	}

	return s, nil
}

// Close saves a final snapshot (if Options.SnapshotOnClose was set) and
// releases the WAL file handle and advisory lock. It is a no-op for a purely
// in-memory store.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.per == nil {
		return nil
	}

	if s.snapshotOnClose {
		if err := ctx.Err(); err == nil {
			if err := s.per.SaveSnapshot(s.liveCopyLocked()); err != nil {
				_ = s.per.Close()

				return fmt.Errorf("docstore: close: %w: %w", ErrIO, err)
			}
		}
	}

	if err := s.per.Close(); err != nil {
		return fmt.Errorf("docstore: close: %w: %w", ErrIO, err)
	}

	return nil
}

// Insert overwrites any existing entity at id: the old entity (if any) is
// de-indexed first. On success the live map, index, version history, and
// (if persisted) WAL are all updated; the entity's fields are stamped with
// "id" = id.
func (s *Store) Insert(ctx context.Context, id string, fields *value.OrderedMap) error {
	if fields == nil {
		return fmt.Errorf("docstore: insert: %w: nil fields", ErrInvalidArgument)
	}

	return s.mutate(ctx, id, persist.OpInsert, func(*value.OrderedMap) (*value.OrderedMap, error) {
		return fields, nil
	})
}

// Update performs a full-replacement mutation equivalent to Insert; the two
// differ only in which WAL operation and version kind are recorded.
func (s *Store) Update(ctx context.Context, id string, fields *value.OrderedMap) error {
	if fields == nil {
		return fmt.Errorf("docstore: update: %w: nil fields", ErrInvalidArgument)
	}

	return s.mutate(ctx, id, persist.OpUpdate, func(*value.OrderedMap) (*value.OrderedMap, error) {
		return fields, nil
	})
}

// UpdatePartial merges delta into the current fields at id (delta wins per
// key; missing current fields start from an empty map) and writes the
// result, all within the same critical section that reads the current
// fields -- so a concurrent Insert/Update/Delete on id can never land
// invisibly between the read and the write.
func (s *Store) UpdatePartial(ctx context.Context, id string, delta *value.OrderedMap) error {
	return s.mutate(ctx, id, persist.OpUpdate, func(current *value.OrderedMap) (*value.OrderedMap, error) {
		return value.Merge(current, delta), nil
	})
}

// mutate computes the fields to write via transform(current) and applies
// them to id under a single hold of s.mu, so the read of the current value
// and the write that depends on it are never split across a lock release.
func (s *Store) mutate(ctx context.Context, id string, op persist.Operation, transform func(current *value.OrderedMap) (*value.OrderedMap, error)) error {
	if id == "" {
		return fmt.Errorf("docstore: mutate: %w: empty id", ErrInvalidArgument)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("docstore: mutate: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, existed := s.live[id]

	fields, err := transform(old)
	if err != nil {
		return err
	}

	stamped := withIDField(id, fields)

	if existed {
		s.idx.Remove(id, old)
	}

	s.live[id] = stamped
	s.idx.Index(id, stamped)

	timestamp := s.clock()

	switch op {
	case persist.OpInsert:
		s.ver.RecordInsert(id, stamped, timestamp)
	default:
		s.ver.RecordUpdate(id, stamped, timestamp)
	}

	if s.per == nil {
		return nil
	}

	switch op {
	case persist.OpInsert:
		err = s.per.AppendInsert(id, stamped, timestamp)
	default:
		err = s.per.AppendUpdate(id, stamped, timestamp)
	}

	if err != nil {
		return fmt.Errorf("docstore: mutate: %w: %w", ErrIO, err)
	}

	return nil
}

// Delete removes id from the live map if present, recording a tombstone
// version and WAL delete. Deleting an unknown id is a no-op that reports
// success: deletion is idempotent.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("docstore: delete: %w: empty id", ErrInvalidArgument)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("docstore: delete: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, existed := s.live[id]
	if !existed {
		return nil
	}

	s.idx.Remove(id, old)
	delete(s.live, id)

	timestamp := s.clock()
	s.ver.RecordDelete(id, timestamp)

	if s.per == nil {
		return nil
	}

	if err := s.per.AppendDelete(id, timestamp); err != nil {
		return fmt.Errorf("docstore: delete: %w: %w", ErrIO, err)
	}

	return nil
}

// Query parses filterText and returns every live entity matching it, in an
// unspecified but deterministic (id-sorted) order.
func (s *Store) Query(ctx context.Context, filterText string) ([]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("docstore: query: %w", err)
	}

	node, err := filter.Parse(filterText)
	if err != nil {
		return nil, fmt.Errorf("docstore: query: %w: %w", ErrParse, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := filter.Evaluate(node, s.idx, storeEntities{s})

	return s.entitiesForLocked(value.SortedIDs(ids)), nil
}

// Get returns the live entity at id and whether it exists.
func (s *Store) Get(ctx context.Context, id string) (Entity, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entity{}, false, fmt.Errorf("docstore: get: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fields, ok := s.live[id]
	if !ok {
		return Entity{}, false, nil
	}

	return Entity{ID: id, Fields: fields.Clone()}, true, nil
}

// FindAll returns every live entity, id-sorted.
func (s *Store) FindAll(ctx context.Context) ([]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("docstore: find all: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.live))
	for id := range s.live {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return s.entitiesForLocked(ids), nil
}

// GetAllIds returns every live id, sorted.
func (s *Store) GetAllIds(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("docstore: get all ids: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.live))
	for id := range s.live {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids, nil
}

// GetAt returns the entity as it existed at or before timestamp t, or
// (Entity{}, false, nil) if id had no version at or before t, or its version
// there was a tombstone.
func (s *Store) GetAt(ctx context.Context, id string, t int64) (Entity, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entity{}, false, fmt.Errorf("docstore: get at: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fields := s.ver.GetAt(id, t)
	if fields == nil {
		return Entity{}, false, nil
	}

	return Entity{ID: id, Fields: fields}, true, nil
}

// SnapshotAt returns every entity live at timestamp t, id-sorted.
func (s *Store) SnapshotAt(ctx context.Context, t int64) ([]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("docstore: snapshot at: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.ver.SnapshotAt(t)

	ids := make([]string, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	out := make([]Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, Entity{ID: id, Fields: snap[id]})
	}

	return out, nil
}

// GetHistory returns every recorded version for id, oldest first, each
// annotated with synthetic "_timestamp"/"_deleted" fields.
func (s *Store) GetHistory(ctx context.Context, id string) ([]*value.OrderedMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("docstore: get history: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ver.GetHistory(id), nil
}

// SaveSnapshot serializes the live map via the persistence layer, which also
// atomically truncates the WAL. Returns ErrInvalidArgument if the store was
// opened without a base directory.
func (s *Store) SaveSnapshot(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("docstore: save snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.per == nil {
		return fmt.Errorf("docstore: save snapshot: %w: store has no base directory", ErrInvalidArgument)
	}

	if err := s.per.SaveSnapshot(s.liveCopyLocked()); err != nil {
		return fmt.Errorf("docstore: save snapshot: %w: %w", ErrIO, err)
	}

	return nil
}

func (s *Store) liveCopyLocked() map[string]*value.OrderedMap {
	out := make(map[string]*value.OrderedMap, len(s.live))
	for id, fields := range s.live {
		out[id] = fields
	}

	return out
}

func (s *Store) entitiesForLocked(ids []string) []Entity {
	out := make([]Entity, 0, len(ids))

	for _, id := range ids {
		if fields, ok := s.live[id]; ok {
			out = append(out, Entity{ID: id, Fields: fields.Clone()})
		}
	}

	return out
}

// storeEntities adapts Store to filter.EntitySource. Every method assumes
// the caller already holds s.mu (Query does, for its whole duration).
type storeEntities struct {
	s *Store
}

func (e storeEntities) AllIDs() []string {
	ids := make([]string, 0, len(e.s.live))
	for id := range e.s.live {
		ids = append(ids, id)
	}

	return ids
}

func (e storeEntities) Fields(id string) *value.OrderedMap {
	return e.s.live[id]
}
