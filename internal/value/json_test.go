package value_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/docstore/internal/value"
)

func Test_FieldsFromJSON_RoundTrips_ThroughToAny(t *testing.T) {
	t.Parallel()

	input := []byte(`{"name":"Alice","age":30,"tags":["a","b"],"address":{"city":"Belgrade"},"active":true,"deleted":null}`)

	fields, err := value.FieldsFromJSON(input)
	require.NoError(t, err)

	age, ok := fields.Get("age")
	require.True(t, ok)
	require.Equal(t, float64(30), age.Number())

	want := map[string]any{
		"name":    "Alice",
		"age":     float64(30),
		"tags":    []any{"a", "b"},
		"address": map[string]any{"city": "Belgrade"},
		"active":  true,
		"deleted": nil,
	}

	got := map[string]any{}
	for _, k := range fields.Keys() {
		v, _ := fields.Get(k)
		got[k] = value.ToAny(v)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round-tripped fields mismatch (-want +got):\n%s", diff)
	}
}

func Test_FieldsToJSON_PreservesInsertionOrder(t *testing.T) {
	t.Parallel()

	m := value.NewOrderedMap()
	m.Set("z", value.NumberValue(1))
	m.Set("a", value.NumberValue(2))

	out, err := value.FieldsToJSON(m)
	require.NoError(t, err)
	require.Equal(t, `{"z":1,"a":2}`, string(out))
}

func Test_FieldsFromJSON_RejectsNonObject(t *testing.T) {
	t.Parallel()

	_, err := value.FieldsFromJSON([]byte(`[1,2,3]`))
	require.Error(t, err)
}
