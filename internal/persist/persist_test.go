package persist_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/calvinalkan/docstore/internal/persist"
	"github.com/calvinalkan/docstore/internal/value"
)

func f(kv map[string]float64) *value.OrderedMap {
	m := value.NewOrderedMap()
	for k, v := range kv {
		m.Set(k, value.NumberValue(v))
	}

	return m
}

func Test_Load_ReturnsEmpty_When_DirectoryIsFresh(t *testing.T) {
	t.Parallel()

	p, err := persist.Open(t.TempDir(), persist.Options{Lock: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	defer func() { _ = p.Close() }()

	live, feed, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(live) != 0 || len(feed) != 0 {
		t.Fatalf("expected empty store, got live=%v feed=%v", live, feed)
	}
}

func Test_AppendInsert_IsVisible_After_Reopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	p, err := persist.Open(dir, persist.Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	err = p.AppendInsert("1", f(map[string]float64{"age": 30}), 100)
	if err != nil {
		t.Fatalf("append insert: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	p2, err := persist.Open(dir, persist.Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	defer func() { _ = p2.Close() }()

	live, feed, err := p2.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(feed) != 1 {
		t.Fatalf("expected 1 feed entry, got %d", len(feed))
	}

	age, ok := live["1"].Get("age")
	if !ok || age.Number() != 30 {
		t.Fatalf("expected age=30 after reopen, got %v ok=%v", age, ok)
	}
}

func Test_AppendDelete_RemovesFromLive_After_Reopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	p, err := persist.Open(dir, persist.Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	err = p.AppendInsert("1", f(map[string]float64{"age": 30}), 100)
	if err != nil {
		t.Fatalf("append insert: %v", err)
	}

	err = p.AppendDelete("1", 200)
	if err != nil {
		t.Fatalf("append delete: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	p2, err := persist.Open(dir, persist.Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	defer func() { _ = p2.Close() }()

	live, _, err := p2.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if _, ok := live["1"]; ok {
		t.Fatal("expected id to be absent from live after delete")
	}
}

func Test_SaveSnapshot_TruncatesWAL_And_SurvivesReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	p, err := persist.Open(dir, persist.Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	err = p.AppendInsert("1", f(map[string]float64{"age": 30}), 100)
	if err != nil {
		t.Fatalf("append insert: %v", err)
	}

	err = p.SaveSnapshot(map[string]*value.OrderedMap{"1": f(map[string]float64{"age": 30})})
	if err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	count, err := p.WALLineCount()
	if err != nil {
		t.Fatalf("wal line count: %v", err)
	}

	if count != 0 {
		t.Fatalf("expected wal truncated after snapshot, got %d lines", count)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	p2, err := persist.Open(dir, persist.Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	defer func() { _ = p2.Close() }()

	live, _, err := p2.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	age, ok := live["1"].Get("age")
	if !ok || age.Number() != 30 {
		t.Fatalf("expected snapshot entity to survive reopen, got %v ok=%v", age, ok)
	}
}

func Test_Open_ReturnsErrLockHeld_When_AlreadyLocked(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	p1, err := persist.Open(dir, persist.Options{Lock: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	defer func() { _ = p1.Close() }()

	_, err = persist.Open(dir, persist.Options{Lock: true})
	if err == nil {
		t.Fatal("expected second open to fail while lock is held")
	}

	if !errors.Is(err, persist.ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
}

func Test_Open_CreatesLockFile_InBaseDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	p, err := persist.Open(dir, persist.Options{Lock: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	defer func() { _ = p.Close() }()

	if _, err := filepath.Abs(dir); err != nil {
		t.Fatalf("abs: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "docstore.lock")); err != nil {
		t.Fatalf("expected docstore.lock in base dir: %v", err)
	}
}
