// Package jsonutil normalizes decoded JSON values so that two documents
// with the same contents render identically.
package jsonutil

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/pkg/errors"
)

// Sorted returns a copy of a decoded JSON value with every array sorted by
// its elements' canonical encoding. Objects are copied as is; encoding/json
// already emits object keys in sorted order.
func Sorted(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = Sorted(val)
		}
		return out

	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = Sorted(val)
		}
		sort.SliceStable(out, func(i, j int) bool {
			return less(out[i], out[j])
		})
		return out

	default:
		return v
	}
}

// less orders array elements: numbers numerically, everything else by its
// canonical encoding.
func less(a, b any) bool {
	if x, ok := numeric(a); ok {
		if y, ok := numeric(b); ok {
			return x < y
		}
	}
	return canonical(a) < canonical(b)
}

func numeric(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func canonical(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// SortStream decodes a JSON document from r and writes its sorted,
// 4-space-indented rendition to w.
func SortStream(r io.Reader, w io.Writer) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return errors.Wrap(err, "failed to decode JSON")
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")

	return errors.Wrap(enc.Encode(Sorted(v)), "failed to encode JSON")
}
