package qs

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  map[string]any
	}{
		{"empty", "", map[string]any{}},
		{"single", "a=1", map[string]any{"a": "1"}},
		{"repeated", "a=1&a=2&a=3", map[string]any{"a": []any{"1", "2", "3"}}},
		{"nested", "a[b]=1&a[c]=2", map[string]any{"a": map[string]any{"b": "1", "c": "2"}}},
		{"deep", "a[b][c]=x", map[string]any{"a": map[string]any{"b": map[string]any{"c": "x"}}}},
		{"append", "a[]=1&a[]=2", map[string]any{"a": []any{"1", "2"}}},
		{"indexed", "a[1]=y&a[0]=x", map[string]any{"a": []any{"x", "y"}}},
		{"sparse indices compact", "a[3]=x&a[10]=y", map[string]any{"a": []any{"x", "y"}}},
		{"index over limit stays object", "a[21]=x", map[string]any{"a": map[string]any{"21": "x"}}},
		{"array of objects", "a[0][b]=1&a[1][b]=2", map[string]any{"a": []any{map[string]any{"b": "1"}, map[string]any{"b": "2"}}}},
		{"escapes", "a%20b=c+d&e=%26", map[string]any{"a b": "c d", "e": "&"}},
		{"malformed escape kept", "a=%zz+1", map[string]any{"a": "%zz 1"}},
		{"key without value", "flag&b=", map[string]any{"flag": "", "b": ""}},
		{"unbalanced bracket literal", "a[b=1", map[string]any{"a[b": "1"}},
		{"scalar then object", "a=1&a[b]=2", map[string]any{"a": []any{"1", map[string]any{"b": "2"}}}},
		{"empty pairs skipped", "&&a=1&", map[string]any{"a": "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.query))
		})
	}
}

func TestParse_DepthLimit(t *testing.T) {
	got := Parse("a[b][c][d][e][f][g]=x")

	want := map[string]any{
		"a": map[string]any{"b": map[string]any{"c": map[string]any{"d": map[string]any{"e": map[string]any{
			"f": map[string]any{"[g]": "x"},
		}}}}},
	}
	assert.Equal(t, want, got)
}

func TestParse_ParameterLimit(t *testing.T) {
	var parts []string
	for i := 0; i < ParameterLimit+50; i++ {
		parts = append(parts, "a=1")
	}

	got := Parse(strings.Join(parts, "&"))
	assert.Len(t, got["a"], ParameterLimit)
}

func TestParse_AppendsBeyondArrayLimit(t *testing.T) {
	parts := make([]string, ArrayLimit+5)
	want := make([]any, ArrayLimit+5)
	for i := range parts {
		parts[i] = "a[]=" + strconv.Itoa(i)
		want[i] = strconv.Itoa(i)
	}

	got := Parse(strings.Join(parts, "&"))
	assert.Equal(t, map[string]any{"a": want}, got)
}

func TestExpand_ManyAppends(t *testing.T) {
	const n = 10000
	pairs := make([]Pair, n)
	for i := range pairs {
		pairs[i] = Pair{Key: "files[]", Value: i}
	}

	got := Expand(pairs)
	files, ok := got["files"].([]any)
	require.True(t, ok)
	require.Len(t, files, n)
	assert.Equal(t, 0, files[0])
	assert.Equal(t, n-1, files[n-1])
}

func TestExpand_AppendAfterExplicitIndex(t *testing.T) {
	got := Expand([]Pair{
		{Key: "a[2]", Value: "x"},
		{Key: "a[]", Value: "y"},
	})
	assert.Equal(t, map[string]any{"a": []any{"x", "y"}}, got)
}

func TestSplitKey(t *testing.T) {
	tests := []struct {
		key  string
		want []string
	}{
		{"a", []string{"a"}},
		{"a[b]", []string{"a", "b"}},
		{"a[b][]", []string{"a", "b", ""}},
		{"a[b]rest", []string{"a", "b", "rest"}},
		{"a[", []string{"a["}},
		{"[a]", []string{"a"}},
		{"a[1][2][3][4][5][6]", []string{"a", "1", "2", "3", "4", "5", "[6]"}},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitKey(tt.key))
		})
	}
}

func TestExpand_KeepsNonStringValues(t *testing.T) {
	type file struct{ Path string }

	got := Expand([]Pair{
		{Key: "docs[]", Value: file{Path: "/a"}},
		{Key: "docs[]", Value: file{Path: "/b"}},
		{Key: "n", Value: 1},
	})

	assert.Equal(t, map[string]any{
		"docs": []any{file{Path: "/a"}, file{Path: "/b"}},
		"n":    1,
	}, got)
}

func TestEncode(t *testing.T) {
	got := Encode(map[string]any{
		"b":    "x y",
		"a":    []any{"1", "2"},
		"user": map[string]any{"name": "ann&co"},
		"nil":  nil,
		"n":    3,
	})

	assert.Equal(t, "a%5B0%5D=1&a%5B1%5D=2&b=x+y&n=3&nil=&user%5Bname%5D=ann%26co", got)
}

func TestEncodeParse_RoundTrip(t *testing.T) {
	key := rapid.StringMatching(`[a-z]{1,6}`)
	value := rapid.String()

	rapid.Check(t, func(t *rapid.T) {
		m := rapid.MapOfN(key, rapid.OneOf(
			rapid.Map(value, func(s string) any { return s }),
			rapid.Map(rapid.SliceOfN(value, 1, ArrayLimit), func(items []string) any {
				out := make([]any, len(items))
				for i, item := range items {
					out[i] = item
				}
				return out
			}),
			rapid.Map(rapid.MapOfN(key, value, 1, 4), func(nested map[string]string) any {
				out := make(map[string]any, len(nested))
				for k, v := range nested {
					out[k] = v
				}
				return out
			}),
		), 1, 10).Draw(t, "m")

		assert.Equal(t, m, Parse(Encode(m)))
	})
}
