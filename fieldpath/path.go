// Package fieldpath addresses values inside nested form snapshots.
//
// A path is a sequence of dotted identifiers and bracketed indices:
//
//	customer.address.city
//	items[0].price
//	meta["display name"]
//	meta['key'].tags[2]
//
// Snapshots are trees of map[string]any and []any (the shape produced by
// encoding/json and yaml.v3). Updates are clone-on-write: Set and Delete copy
// only the containers along the touched path and never mutate the caller's tree.
package fieldpath

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// ErrInvalidPath is returned for paths that cannot be parsed.
var ErrInvalidPath = errors.New("invalid field path")

// MaxIndex is the largest array index a path may address. Set grows arrays
// up to the addressed index.
const MaxIndex = 10000

// Segment is one step of a parsed path.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

func (s Segment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Key
}

// Parse splits a path expression into segments.
func Parse(path string) ([]Segment, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	var segs []Segment
	i := 0
	expectIdent := true
	for i < len(path) {
		switch c := path[i]; {
		case c == '[':
			seg, next, err := parseBracket(path, i)
			if err != nil {
				return nil, err
			}
			segs = append(segs, seg)
			i = next
			expectIdent = false
		case c == '.':
			if expectIdent {
				return nil, fmt.Errorf("%w: empty segment at offset %d in %q", ErrInvalidPath, i, path)
			}
			i++
			expectIdent = true
			if i == len(path) {
				return nil, fmt.Errorf("%w: trailing dot in %q", ErrInvalidPath, path)
			}
		default:
			if !expectIdent {
				return nil, fmt.Errorf("%w: unexpected %q at offset %d in %q", ErrInvalidPath, c, i, path)
			}
			start := i
			for i < len(path) && path[i] != '.' && path[i] != '[' {
				if path[i] == ']' {
					return nil, fmt.Errorf("%w: unbalanced ']' at offset %d in %q", ErrInvalidPath, i, path)
				}
				i++
			}
			segs = append(segs, Segment{Key: path[start:i]})
			expectIdent = false
		}
	}
	return segs, nil
}

// parseBracket reads a "[...]" group starting at path[start] == '['.
func parseBracket(path string, start int) (Segment, int, error) {
	i := start + 1
	if i >= len(path) {
		return Segment{}, 0, fmt.Errorf("%w: unterminated '[' in %q", ErrInvalidPath, path)
	}

	if q := path[i]; q == '"' || q == '\'' {
		var b strings.Builder
		i++
		for {
			if i >= len(path) {
				return Segment{}, 0, fmt.Errorf("%w: unterminated string in %q", ErrInvalidPath, path)
			}
			c := path[i]
			if c == '\\' && i+1 < len(path) {
				b.WriteByte(path[i+1])
				i += 2
				continue
			}
			if c == q {
				break
			}
			b.WriteByte(c)
			i++
		}
		i++ // closing quote
		if i >= len(path) || path[i] != ']' {
			return Segment{}, 0, fmt.Errorf("%w: expected ']' after quoted key in %q", ErrInvalidPath, path)
		}
		return Segment{Key: b.String()}, i + 1, nil
	}

	end := strings.IndexByte(path[i:], ']')
	if end < 0 {
		return Segment{}, 0, fmt.Errorf("%w: unterminated '[' in %q", ErrInvalidPath, path)
	}
	raw := strings.TrimSpace(path[i : i+end])
	idx, err := strconv.Atoi(raw)
	if err != nil || idx < 0 {
		return Segment{}, 0, fmt.Errorf("%w: index %q is not a non-negative integer in %q", ErrInvalidPath, raw, path)
	}
	if idx > MaxIndex {
		return Segment{}, 0, fmt.Errorf("%w: index %d exceeds %d in %q", ErrInvalidPath, idx, MaxIndex, path)
	}
	return Segment{Index: idx, IsIndex: true}, i + end + 1, nil
}

// Get returns the value at path and whether it was present. A malformed
// path is reported as absent.
func Get(data any, path string) (any, bool) {
	segs, err := Parse(path)
	if err != nil {
		return nil, false
	}
	return GetSegments(data, segs)
}

// GetSegments walks already-parsed segments.
func GetSegments(data any, segs []Segment) (any, bool) {
	cur := data
	for _, seg := range segs {
		next, ok := step(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func step(node any, seg Segment) (any, bool) {
	switch n := node.(type) {
	case map[string]any:
		if seg.IsIndex {
			v, ok := n[strconv.Itoa(seg.Index)]
			return v, ok
		}
		v, ok := n[seg.Key]
		return v, ok
	case []any:
		idx, ok := indexOf(seg)
		if !ok || idx >= len(n) {
			return nil, false
		}
		return n[idx], true
	case nil:
		return nil, false
	}

	// Typed Go containers supplied by host code ([]string, map[string]int, ...).
	rv := reflect.ValueOf(node)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		key := seg.Key
		if seg.IsIndex {
			key = strconv.Itoa(seg.Index)
		}
		v := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice, reflect.Array:
		idx, ok := indexOf(seg)
		if !ok || idx >= rv.Len() {
			return nil, false
		}
		return rv.Index(idx).Interface(), true
	}
	return nil, false
}

// indexOf accepts both "[2]" and "items.2" forms when addressing arrays.
func indexOf(seg Segment) (int, bool) {
	if seg.IsIndex {
		return seg.Index, true
	}
	idx, err := strconv.Atoi(seg.Key)
	if err != nil || idx < 0 || idx > MaxIndex {
		return 0, false
	}
	return idx, true
}

// Set returns a copy of data with value stored at path. Missing intermediate
// containers are created: objects for key segments, arrays for index segments.
// Scalars found along the way are replaced by containers.
func Set(data any, path string, value any) (any, error) {
	segs, err := Parse(path)
	if err != nil {
		return data, err
	}
	return setAt(data, segs, value), nil
}

func setAt(node any, segs []Segment, value any) any {
	if len(segs) == 0 {
		return value
	}
	seg, rest := segs[0], segs[1:]

	if arr, ok := node.([]any); ok {
		if idx, ok := indexOf(seg); ok {
			size := len(arr)
			if idx >= size {
				size = idx + 1
			}
			out := make([]any, size)
			copy(out, arr)
			out[idx] = setAt(out[idx], rest, value)
			return out
		}
	}

	if seg.IsIndex {
		if _, isMap := node.(map[string]any); !isMap {
			out := make([]any, seg.Index+1)
			out[seg.Index] = setAt(nil, rest, value)
			return out
		}
	}

	src, _ := node.(map[string]any)
	out := make(map[string]any, len(src)+1)
	for k, v := range src {
		out[k] = v
	}
	key := seg.Key
	if seg.IsIndex {
		key = strconv.Itoa(seg.Index)
	}
	out[key] = setAt(out[key], rest, value)
	return out
}

// Delete returns a copy of data without the value at path. A path that does
// not resolve leaves data untouched and returns it as-is.
func Delete(data any, path string) (any, error) {
	segs, err := Parse(path)
	if err != nil {
		return data, err
	}
	if _, ok := GetSegments(data, segs); !ok {
		return data, nil
	}
	return deleteAt(data, segs), nil
}

func deleteAt(node any, segs []Segment) any {
	seg, rest := segs[0], segs[1:]
	switch n := node.(type) {
	case map[string]any:
		key := seg.Key
		if seg.IsIndex {
			key = strconv.Itoa(seg.Index)
		}
		out := make(map[string]any, len(n))
		for k, v := range n {
			out[k] = v
		}
		if len(rest) == 0 {
			delete(out, key)
		} else {
			out[key] = deleteAt(n[key], rest)
		}
		return out
	case []any:
		idx, _ := indexOf(seg)
		if len(rest) == 0 {
			out := make([]any, 0, len(n)-1)
			out = append(out, n[:idx]...)
			return append(out, n[idx+1:]...)
		}
		out := make([]any, len(n))
		copy(out, n)
		out[idx] = deleteAt(n[idx], rest)
		return out
	}
	return node
}
