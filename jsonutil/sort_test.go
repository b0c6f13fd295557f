package jsonutil

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortedArrays(t *testing.T) {
	v := Sorted([]any{"c", "a", "b"})
	assert.Equal(t, []any{"a", "b", "c"}, v)
}

func TestSortedNested(t *testing.T) {
	v := Sorted(map[string]any{
		"outer": []any{
			map[string]any{"k": "z"},
			map[string]any{"k": "a"},
		},
	})

	assert.Equal(t, map[string]any{
		"outer": []any{
			map[string]any{"k": "a"},
			map[string]any{"k": "z"},
		},
	}, v)
}

func TestSortedNumbersNumerically(t *testing.T) {
	v := Sorted([]any{10.0, 2.0, 1.5})
	assert.Equal(t, []any{1.5, 2.0, 10.0}, v)
}

func TestSortStreamNumbersNumerically(t *testing.T) {
	in := strings.NewReader(`[10, 2]`)
	out := bytes.Buffer{}

	require.NoError(t, SortStream(in, &out))

	assert.Equal(t, `[
    2,
    10
]
`, out.String())
}

func TestSortedScalarsPassThrough(t *testing.T) {
	assert.Equal(t, "x", Sorted("x"))
	assert.Equal(t, nil, Sorted(nil))
	assert.Equal(t, 4.5, Sorted(4.5))
}

func TestSortStream(t *testing.T) {
	in := strings.NewReader(`{"b": [3, 1, 2], "a": "first"}`)
	out := bytes.Buffer{}

	require.NoError(t, SortStream(in, &out))

	assert.Equal(t, `{
    "a": "first",
    "b": [
        1,
        2,
        3
    ]
}
`, out.String())
}

func TestSortStreamBadInput(t *testing.T) {
	err := SortStream(strings.NewReader("{not json"), &bytes.Buffer{})
	assert.Error(t, err)
}
