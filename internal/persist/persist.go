// Package persist implements the write-ahead log and snapshot files that
// back a [Store]'s base directory: a newline-delimited JSON WAL
// (wal.log) and an atomically-replaced snapshot (snapshot.json), plus an
// advisory cross-process lock on the directory.
package persist

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/natefinch/atomic"

	"github.com/calvinalkan/docstore/internal/diagnostics"
	"github.com/calvinalkan/docstore/internal/value"
	"github.com/calvinalkan/docstore/internal/version"
)

const (
	snapshotFileName = "snapshot.json"
	walFileName      = "wal.log"
	lockFileName     = "docstore.lock"
)

// Operation enumerates the WAL record kinds.
type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// record is the on-disk WAL line shape: one JSON object per line with
// exactly the keys operation, id, fields, timestamp.
type record struct {
	Operation Operation `json:"operation"`
	ID        string    `json:"id"`
	Fields    any       `json:"fields"`
	Timestamp int64     `json:"timestamp"`
}

// Persistence owns the on-disk state for one base directory: the WAL file
// handle (kept open for the lifetime of the store so appends don't pay
// open/close per mutation) and, optionally, the advisory directory lock.
type Persistence struct {
	dir  string
	wal  *os.File
	lock *dirLock
	log  diagnostics.Logger
}

// Options configures [Open].
type Options struct {
	// Lock enables the advisory cross-process lock on the base directory.
	// The zero value takes no lock; the root package's DefaultOptions turns
	// it on, and embedders inside sandboxes without flock support leave it
	// off.
	Lock bool
}

// Open ensures dir exists, takes the advisory lock (unless disabled), and
// opens wal.log for append. It does not read any files; call [Persistence.Load]
// to do that.
func Open(dir string, opts Options) (*Persistence, error) {
	if dir == "" {
		return nil, fmt.Errorf("persist: open: %w: empty directory", ErrIO)
	}

	err := os.MkdirAll(dir, 0o750)
	if err != nil {
		return nil, fmt.Errorf("persist: open: mkdir %s: %w: %w", dir, ErrIO, err)
	}

	var lock *dirLock

	if opts.Lock {
		lock, err = acquireDirLock(filepath.Join(dir, lockFileName))
		if err != nil {
			return nil, err
		}
	}

	walFile, err := os.OpenFile(filepath.Join(dir, walFileName), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o640)
	if err != nil {
		if lock != nil {
			_ = lock.release()
		}

		return nil, fmt.Errorf("persist: open: wal: %w: %w", ErrIO, err)
	}

	return &Persistence{dir: dir, wal: walFile, lock: lock, log: diagnostics.Default()}, nil
}

// SetLogger overrides the default diagnostics logger.
func (p *Persistence) SetLogger(log diagnostics.Logger) {
	if log != nil {
		p.log = log
	}
}

// Close releases the WAL file handle and the advisory lock, if held.
func (p *Persistence) Close() error {
	if p == nil {
		return nil
	}

	var errs []error

	if p.wal != nil {
		if err := p.wal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("persist: close wal: %w", err))
		}

		p.wal = nil
	}

	if p.lock != nil {
		if err := p.lock.release(); err != nil {
			errs = append(errs, fmt.Errorf("persist: release lock: %w", err))
		}

		p.lock = nil
	}

	return errors.Join(errs...)
}

// Load reads snapshot.json (if present) and every WAL line in order,
// returning the final live map and the full ordered history feed for
// [version.Manager.Bootstrap]. The snapshot's modification time becomes the
// timestamp assigned to each of its entries; each WAL line uses its own
// timestamp.
func (p *Persistence) Load(ctx context.Context) (map[string]*value.OrderedMap, []version.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("persist: load: %w", err)
	}

	live := make(map[string]*value.OrderedMap)

	feed, err := p.loadSnapshotFeed(live)
	if err != nil {
		return nil, nil, err
	}

	walFeed, err := p.loadWALFeed(live)
	if err != nil {
		return nil, nil, err
	}

	feed = append(feed, walFeed...)

	return live, feed, nil
}

func (p *Persistence) loadSnapshotFeed(live map[string]*value.OrderedMap) ([]version.Entry, error) {
	snapshotPath := filepath.Join(p.dir, snapshotFileName)

	info, err := os.Stat(snapshotPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("persist: load: stat snapshot: %w: %w", ErrIO, err)
	}

	data, err := os.ReadFile(snapshotPath) //nolint:gosec // base dir is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("persist: load: read snapshot: %w: %w", ErrIO, err)
	}

	var raw map[string]json.RawMessage

	err = json.Unmarshal(data, &raw)
	if err != nil {
		return nil, fmt.Errorf("persist: load: parse snapshot: %w: %w", ErrIO, err)
	}

	timestamp := info.ModTime().UnixMilli()

	feed := make([]version.Entry, 0, len(raw))

	for id, fieldsRaw := range raw {
		fields, err := value.FieldsFromJSON(fieldsRaw)
		if err != nil {
			return nil, fmt.Errorf("persist: load: parse snapshot entity %s: %w: %w", id, ErrIO, err)
		}

		live[id] = fields
		feed = append(feed, version.Entry{ID: id, Timestamp: timestamp, Fields: fields})
	}

	return feed, nil
}

func (p *Persistence) loadWALFeed(live map[string]*value.OrderedMap) ([]version.Entry, error) {
	_, err := p.wal.Seek(0, 0)
	if err != nil {
		return nil, fmt.Errorf("persist: load: seek wal: %w: %w", ErrIO, err)
	}

	scanner := bufio.NewScanner(p.wal)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	feed := make([]version.Entry, 0)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		rec, ok := p.parseWALLine(line)
		if !ok {
			continue
		}

		switch rec.Operation {
		case OpDelete:
			delete(live, rec.ID)

			feed = append(feed, version.Entry{ID: rec.ID, Timestamp: rec.Timestamp, Deleted: true})
		case OpInsert, OpUpdate:
			fields, err := fieldsFromRecordValue(rec.Fields)
			if err != nil {
				p.log.Warn("persist: skipping malformed wal record", "id", rec.ID, "error", err)

				continue
			}

			live[rec.ID] = fields
			feed = append(feed, version.Entry{ID: rec.ID, Timestamp: rec.Timestamp, Fields: fields})
		default:
			p.log.Warn("persist: skipping wal record with unknown operation", "id", rec.ID, "operation", rec.Operation)
		}
	}

	if err := scanner.Err(); err != nil {
		// A scan error at EOF on a truncated final line is a partial write
		// from a crash mid-append; skip it silently. Anything else is a
		// genuine read failure.
		if !errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("persist: load: read wal: %w: %w", ErrIO, err)
		}

		p.log.Warn("persist: skipping oversized wal line")
	}

	_, err = p.wal.Seek(0, 2)
	if err != nil {
		return nil, fmt.Errorf("persist: load: seek wal end: %w: %w", ErrIO, err)
	}

	return feed, nil
}

func (p *Persistence) parseWALLine(line []byte) (record, bool) {
	var rec record

	err := json.Unmarshal(line, &rec)
	if err != nil {
		p.log.Warn("persist: skipping malformed wal line", "error", err)

		return record{}, false
	}

	if rec.ID == "" {
		p.log.Warn("persist: skipping wal record with empty id")

		return record{}, false
	}

	return rec, true
}

func fieldsFromRecordValue(raw any) (*value.OrderedMap, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-marshal record fields: %w", err)
	}

	return value.FieldsFromJSON(data)
}

// AppendInsert writes a single INSERT record line, deep-copying fields first
// so later mutation by the caller can't alias the persisted bytes.
func (p *Persistence) AppendInsert(id string, fields *value.OrderedMap, timestamp int64) error {
	return p.append(OpInsert, id, fields, timestamp)
}

// AppendUpdate writes a single UPDATE record line.
func (p *Persistence) AppendUpdate(id string, fields *value.OrderedMap, timestamp int64) error {
	return p.append(OpUpdate, id, fields, timestamp)
}

// AppendDelete writes a single DELETE record line.
func (p *Persistence) AppendDelete(id string, timestamp int64) error {
	return p.append(OpDelete, id, nil, timestamp)
}

func (p *Persistence) append(op Operation, id string, fields *value.OrderedMap, timestamp int64) error {
	var fieldsJSON []byte

	var err error

	if fields != nil {
		fieldsJSON, err = value.FieldsToJSON(fields.Clone())
		if err != nil {
			return fmt.Errorf("persist: append %s: %w: %w", op, ErrIO, err)
		}
	} else {
		fieldsJSON = []byte("null")
	}

	line := map[string]json.RawMessage{
		"operation": mustMarshal(op),
		"id":        mustMarshal(id),
		"fields":    fieldsJSON,
		"timestamp": mustMarshal(timestamp),
	}

	encoded, err := marshalOrdered(line, []string{"operation", "id", "fields", "timestamp"})
	if err != nil {
		return fmt.Errorf("persist: append %s: %w: %w", op, ErrIO, err)
	}

	encoded = append(encoded, '\n')

	_, err = p.wal.Write(encoded)
	if err != nil {
		return fmt.Errorf("persist: append %s: write wal: %w: %w", op, ErrIO, err)
	}

	err = p.wal.Sync()
	if err != nil {
		return fmt.Errorf("persist: append %s: sync wal: %w: %w", op, ErrIO, err)
	}

	return nil
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		// Only ever called with a string, a timestamp int64, or an
		// Operation (also a string) -- all always marshalable.
		panic(fmt.Sprintf("persist: unexpected marshal failure: %v", err))
	}

	return data
}

func marshalOrdered(fields map[string]json.RawMessage, order []string) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, key := range order {
		if i > 0 {
			buf.WriteByte(',')
		}

		keyJSON, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}

		buf.Write(keyJSON)
		buf.WriteByte(':')
		buf.Write(fields[key])
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// SaveSnapshot writes every live entity to a temporary file in the base
// directory, atomically renames it over snapshot.json via
// github.com/natefinch/atomic, then truncates the WAL. The rename is
// crash-safe: a readable snapshot.json is always either the prior snapshot
// or the new one, never a partial write.
func (p *Persistence) SaveSnapshot(entities map[string]*value.OrderedMap) error {
	out := make(map[string]json.RawMessage, len(entities))

	for id, fields := range entities {
		encoded, err := value.FieldsToJSON(fields)
		if err != nil {
			return fmt.Errorf("persist: save snapshot: encode %s: %w: %w", id, ErrIO, err)
		}

		out[id] = encoded
	}

	body, err := marshalSnapshotObject(out)
	if err != nil {
		return fmt.Errorf("persist: save snapshot: %w: %w", ErrIO, err)
	}

	err = atomic.WriteFile(filepath.Join(p.dir, snapshotFileName), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("persist: save snapshot: write: %w: %w", ErrIO, err)
	}

	err = p.truncateWAL()
	if err != nil {
		return fmt.Errorf("persist: save snapshot: truncate wal: %w: %w", ErrIO, err)
	}

	return nil
}

func marshalSnapshotObject(entries map[string]json.RawMessage) ([]byte, error) {
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, id := range ids {
		if i > 0 {
			buf.WriteByte(',')
		}

		keyJSON, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}

		buf.Write(keyJSON)
		buf.WriteByte(':')
		buf.Write(entries[id])
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

func (p *Persistence) truncateWAL() error {
	err := p.wal.Truncate(0)
	if err != nil {
		return err
	}

	_, err = p.wal.Seek(0, 0)

	return err
}

// WALLineCount reports the number of non-empty lines currently in wal.log,
// for tests asserting that a snapshot truncates the WAL.
func (p *Persistence) WALLineCount() (int, error) {
	_, err := p.wal.Seek(0, 0)
	if err != nil {
		return 0, fmt.Errorf("persist: wal line count: seek: %w", err)
	}

	defer func() { _, _ = p.wal.Seek(0, 2) }()

	scanner := bufio.NewScanner(p.wal)

	count := 0

	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) > 0 {
			count++
		}
	}

	return count, scanner.Err()
}
