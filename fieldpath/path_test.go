package fieldpath

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name string
		path string
		want []Segment
	}{
		{"Single identifier", "name", []Segment{{Key: "name"}}},
		{"Dotted", "customer.address.city", []Segment{{Key: "customer"}, {Key: "address"}, {Key: "city"}}},
		{"Numeric index", "items[2].price", []Segment{{Key: "items"}, {Index: 2, IsIndex: true}, {Key: "price"}}},
		{"Double-quoted key", `meta["display name"]`, []Segment{{Key: "meta"}, {Key: "display name"}}},
		{"Single-quoted key", `meta['k'].tags[0]`, []Segment{{Key: "meta"}, {Key: "k"}, {Key: "tags"}, {Index: 0, IsIndex: true}}},
		{"Escaped quote", `m["a\"b"]`, []Segment{{Key: "m"}, {Key: `a"b`}}},
		{"Leading index", "[1].x", []Segment{{Index: 1, IsIndex: true}, {Key: "x"}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.path)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, path := range []string{"", "a..b", "a.", ".a", "a[", "a[x]", "a[-1]", "a[10001]", `a["x]`, "a]", "a[0]b"} {
		t.Run(path, func(t *testing.T) {
			_, err := Parse(path)
			if !errors.Is(err, ErrInvalidPath) {
				t.Errorf("Parse(%q) error = %v, want ErrInvalidPath", path, err)
			}
		})
	}
}

func TestGet(t *testing.T) {
	data := map[string]any{
		"name":  "Ada",
		"empty": nil,
		"items": []any{
			map[string]any{"price": 10.0},
			map[string]any{"price": 20.0},
		},
		"meta":  map[string]any{"display name": "x"},
		"tags":  []string{"a", "b"},
		"count": map[string]int{"n": 3},
	}

	testCases := []struct {
		path      string
		want      any
		wantFound bool
	}{
		{"name", "Ada", true},
		{"empty", nil, true},
		{"missing", nil, false},
		{"items[1].price", 20.0, true},
		{"items.0.price", 10.0, true},
		{"items[5].price", nil, false},
		{`meta["display name"]`, "x", true},
		{"tags[1]", "b", true},
		{"count.n", 3, true},
		{"name.first", nil, false},
		{"a..b", nil, false},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			got, found := Get(data, tc.path)
			assert.Equal(t, tc.wantFound, found)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSetDoesNotMutateInput(t *testing.T) {
	orig := map[string]any{
		"customer": map[string]any{"name": "Ada"},
		"other":    map[string]any{"keep": true},
	}

	out, err := Set(orig, "customer.name", "Grace")
	require.NoError(t, err)

	assert.Equal(t, "Ada", orig["customer"].(map[string]any)["name"], "input must be untouched")
	assert.Equal(t, "Grace", out.(map[string]any)["customer"].(map[string]any)["name"])

	// Untouched branches are shared, not copied.
	assert.Equal(t,
		reflect.ValueOf(orig["other"]).Pointer(),
		reflect.ValueOf(out.(map[string]any)["other"]).Pointer())
}

func TestSetCreatesIntermediates(t *testing.T) {
	out, err := Set(nil, "a.b[2].c", 1)
	require.NoError(t, err)

	got, found := Get(out, "a.b[2].c")
	require.True(t, found)
	assert.Equal(t, 1, got)

	arr, _ := Get(out, "a.b")
	assert.Len(t, arr, 3)
}

func TestSetExtendsArray(t *testing.T) {
	orig := map[string]any{"xs": []any{1, 2}}
	out, err := Set(orig, "xs[3]", 4)
	require.NoError(t, err)

	assert.Equal(t, []any{1, 2}, orig["xs"])
	assert.Equal(t, []any{1, 2, nil, 4}, out.(map[string]any)["xs"])
}

func TestSetReplacesScalar(t *testing.T) {
	out, err := Set(map[string]any{"a": "scalar"}, "a.b", true)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": map[string]any{"b": true}}, out)
}

func TestSetInvalidPath(t *testing.T) {
	orig := map[string]any{"a": 1}
	for _, path := range []string{"a[", "items[9223372036854775807]", "items[10001]"} {
		t.Run(path, func(t *testing.T) {
			out, err := Set(orig, path, 2)
			require.ErrorIs(t, err, ErrInvalidPath)
			assert.Equal(t, orig, out)
		})
	}
}

func TestSetIndexLimit(t *testing.T) {
	out, err := Set(map[string]any{}, "items[10000]", 1)
	require.NoError(t, err)
	assert.Len(t, out.(map[string]any)["items"], MaxIndex+1)

	// A dotted numeric key past the limit is a key, not an index
	orig := map[string]any{"xs": []any{1}}
	out, err = Set(orig, "xs.9223372036854775807", 2)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"9223372036854775807": 2}, out.(map[string]any)["xs"])
}

func TestDelete(t *testing.T) {
	orig := map[string]any{
		"a":  map[string]any{"b": 1, "c": 2},
		"xs": []any{"x", "y", "z"},
	}

	out, err := Delete(orig, "a.b")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"c": 2}, out.(map[string]any)["a"])
	assert.Equal(t, map[string]any{"b": 1, "c": 2}, orig["a"])

	out, err = Delete(orig, "xs[1]")
	require.NoError(t, err)
	assert.Equal(t, []any{"x", "z"}, out.(map[string]any)["xs"])
	assert.Len(t, orig["xs"], 3)

	out, err = Delete(orig, "nope.deeper")
	require.NoError(t, err)
	assert.Equal(t, orig, out)
}

func TestClone(t *testing.T) {
	orig := map[string]any{"a": []any{map[string]any{"b": 1}}}
	cp := CloneMap(orig)

	cp["a"].([]any)[0].(map[string]any)["b"] = 2
	assert.Equal(t, 1, orig["a"].([]any)[0].(map[string]any)["b"])
	assert.Equal(t, map[string]any{}, CloneMap(nil))
}
