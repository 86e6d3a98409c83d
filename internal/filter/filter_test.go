package filter_test

import (
	"testing"

	"github.com/calvinalkan/docstore/internal/filter"
	"github.com/calvinalkan/docstore/internal/index"
	"github.com/calvinalkan/docstore/internal/value"
)

type fakeEntities struct {
	fields map[string]*value.OrderedMap
}

func (f *fakeEntities) AllIDs() []string {
	ids := make([]string, 0, len(f.fields))
	for id := range f.fields {
		ids = append(ids, id)
	}

	return ids
}

func (f *fakeEntities) Fields(id string) *value.OrderedMap {
	return f.fields[id]
}

func fieldsOf(kv map[string]value.Value) *value.OrderedMap {
	m := value.NewOrderedMap()
	for k, v := range kv {
		m.Set(k, v)
	}

	return m
}

func buildFixture(t *testing.T) (*index.Manager, *fakeEntities) {
	t.Helper()

	idx := index.New(nil)
	entities := &fakeEntities{fields: make(map[string]*value.OrderedMap)}

	add := func(id string, kv map[string]value.Value) {
		f := fieldsOf(kv)
		entities.fields[id] = f
		idx.Index(id, f)
	}

	address1 := value.NewOrderedMap()
	address1.Set("city", value.StringValue("Belgrade"))

	address2 := value.NewOrderedMap()
	address2.Set("city", value.StringValue("Paris"))

	add("1", map[string]value.Value{
		"age":     value.NumberValue(30),
		"name":    value.StringValue("Alice"),
		"address": value.MapValue(address1),
	})
	add("2", map[string]value.Value{
		"age":     value.NumberValue(25),
		"name":    value.StringValue("Bob"),
		"address": value.MapValue(address2),
	})
	add("3", map[string]value.Value{
		"age":  value.NumberValue(40),
		"name": value.StringValue("Carol"),
	})

	return idx, entities
}

func query(t *testing.T, text string, idx *index.Manager, entities *fakeEntities) map[string]struct{} {
	t.Helper()

	node, err := filter.Parse(text)
	if err != nil {
		t.Fatalf("parse %q: %v", text, err)
	}

	return filter.Evaluate(node, idx, entities)
}

func Test_Query_NumericComparison_UsesIndexFastPath(t *testing.T) {
	t.Parallel()

	idx, entities := buildFixture(t)

	ids := query(t, "age >= 30", idx, entities)

	if _, ok := ids["1"]; !ok || len(ids) != 2 {
		t.Fatalf("expected ids 1 and 3, got %v", ids)
	}
}

func Test_Query_NestedAndLogical(t *testing.T) {
	t.Parallel()

	idx, entities := buildFixture(t)

	ids := query(t, `address.city == "Belgrade" and age < 35`, idx, entities)

	if len(ids) != 1 {
		t.Fatalf("expected exactly 1 match, got %v", ids)
	}

	if _, ok := ids["1"]; !ok {
		t.Fatal("expected id 1 to match")
	}
}

func Test_Query_ContainsIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	idx, entities := buildFixture(t)

	ids := query(t, `name contains "LI"`, idx, entities)

	if len(ids) != 1 {
		t.Fatalf("expected exactly 1 match, got %v", ids)
	}

	if _, ok := ids["1"]; !ok {
		t.Fatal("expected Alice to match")
	}
}

func Test_Query_Not_NegatesOverAllIDs(t *testing.T) {
	t.Parallel()

	idx, entities := buildFixture(t)

	ids := query(t, `not (age >= 30)`, idx, entities)

	if _, ok := ids["2"]; !ok || len(ids) != 1 {
		t.Fatalf("expected only id 2, got %v", ids)
	}
}

func Test_Query_Or_UnionsBothSides(t *testing.T) {
	t.Parallel()

	idx, entities := buildFixture(t)

	ids := query(t, `age == 25 or age == 40`, idx, entities)

	if len(ids) != 2 {
		t.Fatalf("expected 2 matches, got %v", ids)
	}
}

func Test_Query_JSONFilter_DesugarsToConjunction(t *testing.T) {
	t.Parallel()

	idx, entities := buildFixture(t)

	ids := query(t, `{"age": 30, "name": "Alice"}`, idx, entities)

	if _, ok := ids["1"]; !ok || len(ids) != 1 {
		t.Fatalf("expected only id 1, got %v", ids)
	}
}

func Test_Query_FieldReference_ComparesAcrossFields(t *testing.T) {
	t.Parallel()

	idx := index.New(nil)
	entities := &fakeEntities{fields: map[string]*value.OrderedMap{
		"1": fieldsOf(map[string]value.Value{"a": value.NumberValue(5), "b": value.NumberValue(5)}),
		"2": fieldsOf(map[string]value.Value{"a": value.NumberValue(5), "b": value.NumberValue(9)}),
	}}

	ids := query(t, "a == &b", idx, entities)

	if _, ok := ids["1"]; !ok || len(ids) != 1 {
		t.Fatalf("expected only id 1, got %v", ids)
	}
}

func Test_Query_ArithmeticValueExpr_EvaluatesOnScanPath(t *testing.T) {
	t.Parallel()

	idx := index.New(nil)
	entities := &fakeEntities{fields: map[string]*value.OrderedMap{
		"1": fieldsOf(map[string]value.Value{"total": value.NumberValue(10)}),
		"2": fieldsOf(map[string]value.Value{"total": value.NumberValue(7)}),
	}}

	ids := query(t, "total == 4 + 6", idx, entities)

	if _, ok := ids["1"]; !ok || len(ids) != 1 {
		t.Fatalf("expected only id 1, got %v", ids)
	}
}

func Test_ParseValueExpression_ParsesStandaloneArithmetic(t *testing.T) {
	t.Parallel()

	node, err := filter.ParseValueExpression("2 * (3 + 4)")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	got := filter.EvaluateValue(node, nil)

	if got.Number() != 14 {
		t.Fatalf("expected 14, got %v", got.Number())
	}
}

func Test_Parse_ReturnsParseError_When_ParenUnclosed(t *testing.T) {
	t.Parallel()

	_, err := filter.Parse("(age == 30")
	if err == nil {
		t.Fatal("expected a parse error")
	}

	var perr *filter.ParseError
	if !asParseError(err, &perr) {
		t.Fatalf("expected *filter.ParseError, got %T: %v", err, err)
	}
}

func Test_Parse_ReturnsParseError_When_StringUnterminated(t *testing.T) {
	t.Parallel()

	_, err := filter.Parse(`name == "Alice`)
	if err == nil {
		t.Fatal("expected a parse error")
	}

	var perr *filter.ParseError
	if !asParseError(err, &perr) {
		t.Fatalf("expected *filter.ParseError, got %T: %v", err, err)
	}
}

func asParseError(err error, target **filter.ParseError) bool {
	pe, ok := err.(*filter.ParseError)
	if !ok {
		return false
	}

	*target = pe

	return true
}
