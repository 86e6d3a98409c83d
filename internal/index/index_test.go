package index_test

import (
	"testing"

	"github.com/calvinalkan/docstore/internal/index"
	"github.com/calvinalkan/docstore/internal/value"
)

func fields(t *testing.T, kv map[string]value.Value) *value.OrderedMap {
	t.Helper()

	m := value.NewOrderedMap()
	for k, v := range kv {
		m.Set(k, v)
	}

	return m
}

func Test_SearchEquals_FindsID_After_Index(t *testing.T) {
	t.Parallel()

	mgr := index.New(nil)
	mgr.Index("1", fields(t, map[string]value.Value{"age": value.NumberValue(30)}))

	ids := mgr.SearchEquals("age", value.NumberValue(30))
	if _, ok := ids["1"]; !ok {
		t.Fatalf("expected id 1 in result, got %v", ids)
	}
}

func Test_SearchEquals_CollidesIntegerAndFloat(t *testing.T) {
	t.Parallel()

	mgr := index.New(nil)
	mgr.Index("1", fields(t, map[string]value.Value{"age": value.NumberValue(5)}))

	ids := mgr.SearchEquals("age", value.NumberValue(5.0))
	if _, ok := ids["1"]; !ok {
		t.Fatal("expected integer 5 and floating 5.0 to collide")
	}
}

func Test_Remove_PrunesEmptyBucketsAndPaths(t *testing.T) {
	t.Parallel()

	mgr := index.New(nil)
	f := fields(t, map[string]value.Value{"age": value.NumberValue(30)})
	mgr.Index("1", f)
	mgr.Remove("1", f)

	ids := mgr.SearchEquals("age", value.NumberValue(30))
	if len(ids) != 0 {
		t.Fatalf("expected empty result after remove, got %v", ids)
	}
}

func Test_SearchRange_IsCompleteAndDisjoint(t *testing.T) {
	t.Parallel()

	mgr := index.New(nil)
	mgr.Index("1", fields(t, map[string]value.Value{"age": value.NumberValue(25)}))
	mgr.Index("2", fields(t, map[string]value.Value{"age": value.NumberValue(30)}))
	mgr.Index("3", fields(t, map[string]value.Value{"age": value.NumberValue(35)}))

	gt := mgr.SearchGreaterThan("age", value.NumberValue(30))
	eq := mgr.SearchEquals("age", value.NumberValue(30))
	lt := mgr.SearchLessThan("age", value.NumberValue(30))

	total := len(gt) + len(eq) + len(lt)
	if total != 3 {
		t.Fatalf("expected range completeness over 3 ids, got %d (gt=%v eq=%v lt=%v)", total, gt, eq, lt)
	}

	for id := range gt {
		if _, ok := lt[id]; ok {
			t.Fatalf("expected gt and lt to be disjoint, found %s in both", id)
		}
	}
}

func Test_SearchGreaterOrEquals_IncludesBoundary(t *testing.T) {
	t.Parallel()

	mgr := index.New(nil)
	mgr.Index("1", fields(t, map[string]value.Value{"age": value.NumberValue(30)}))

	ids := mgr.SearchGreaterOrEquals("age", value.NumberValue(30))
	if _, ok := ids["1"]; !ok {
		t.Fatal("expected >= to include the boundary value")
	}
}

func Test_SearchContains_IsCaseInsensitive(t *testing.T) {
	t.Parallel()

	mgr := index.New(nil)
	mgr.Index("1", fields(t, map[string]value.Value{"name": value.StringValue("Alice")}))
	mgr.Index("2", fields(t, map[string]value.Value{"name": value.StringValue("Bob")}))

	ids := mgr.SearchContains("name", "LI")
	if _, ok := ids["1"]; !ok {
		t.Fatalf("expected case-insensitive substring match, got %v", ids)
	}

	if _, ok := ids["2"]; ok {
		t.Fatal("expected Bob not to match")
	}
}

func Test_SearchLike_MatchesWildcards(t *testing.T) {
	t.Parallel()

	mgr := index.New(nil)
	mgr.Index("1", fields(t, map[string]value.Value{"name": value.StringValue("Alice")}))
	mgr.Index("2", fields(t, map[string]value.Value{"name": value.StringValue("Alfred")}))

	ids := mgr.SearchLike("name", "Al%")
	if len(ids) != 2 {
		t.Fatalf("expected both names to match Al%%, got %v", ids)
	}

	ids = mgr.SearchLike("name", "Al_ce")
	if _, ok := ids["1"]; !ok || len(ids) != 1 {
		t.Fatalf("expected only Alice to match Al_ce, got %v", ids)
	}
}

func Test_SearchEquals_ReturnsEmptySet_When_PathUnindexed(t *testing.T) {
	t.Parallel()

	mgr := index.New(nil)
	ids := mgr.SearchEquals("missing", value.NumberValue(1))

	if len(ids) != 0 {
		t.Fatalf("expected empty set for unindexed path, got %v", ids)
	}
}

func Test_Index_DescendsNestedMapsAndLists(t *testing.T) {
	t.Parallel()

	address := value.NewOrderedMap()
	address.Set("city", value.StringValue("Belgrade"))

	mgr := index.New(nil)
	mgr.Index("1", fields(t, map[string]value.Value{
		"address": value.MapValue(address),
		"tags":    value.ListValue([]value.Value{value.StringValue("bug")}),
	}))

	ids := mgr.SearchEquals("address.city", value.StringValue("Belgrade"))
	if _, ok := ids["1"]; !ok {
		t.Fatal("expected nested path to be indexed")
	}

	ids = mgr.SearchEquals("tags.0", value.StringValue("bug"))
	if _, ok := ids["1"]; !ok {
		t.Fatal("expected list index path to be indexed")
	}
}
