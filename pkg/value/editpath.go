package value

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tagspeak/tagspeak/tsapi"
)

// Segment is one step of an edit path: an object key or a list index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// ParsePath parses paths such as `a.b[0]["k.x"]`.
// The empty path (or ".") addresses the whole document.
//
// Errors:
//
//   - tagspeak-error-edit-path -- if the path is malformed.
func ParsePath(path string) ([]Segment, error) {
	var segs []Segment
	s := strings.TrimSpace(path)
	if s == "." {
		return nil, nil
	}
	i := 0
	expectKey := true
	for i < len(s) {
		switch c := s[i]; {
		case c == '.':
			if expectKey && i != 0 {
				return nil, tsapi.ErrorEditPath(path, "empty key")
			}
			i++
			expectKey = true
			if i == len(s) {
				return nil, tsapi.ErrorEditPath(path, "path ends with '.'")
			}
		case c == '[':
			end := i + 1
			if end < len(s) && (s[end] == '"' || s[end] == '\'') {
				q := s[end]
				j := end + 1
				var sb strings.Builder
				for ; j < len(s) && s[j] != q; j++ {
					if s[j] == '\\' && j+1 < len(s) {
						j++
					}
					sb.WriteByte(s[j])
				}
				if j+1 >= len(s) || s[j+1] != ']' {
					return nil, tsapi.ErrorEditPath(path, "unterminated quoted key")
				}
				segs = append(segs, Segment{Key: sb.String()})
				i = j + 2
			} else {
				j := strings.IndexByte(s[i:], ']')
				if j < 0 {
					return nil, tsapi.ErrorEditPath(path, "missing ']'")
				}
				n, err := strconv.Atoi(strings.TrimSpace(s[i+1 : i+j]))
				if err != nil || n < 0 {
					return nil, tsapi.ErrorEditPath(path, fmt.Sprintf("bad index %q", s[i+1:i+j]))
				}
				segs = append(segs, Segment{Index: n, IsIndex: true})
				i += j + 1
			}
			expectKey = false
		default:
			j := i
			for j < len(s) && s[j] != '.' && s[j] != '[' {
				j++
			}
			segs = append(segs, Segment{Key: s[i:j]})
			i = j
			expectKey = false
		}
	}
	return segs, nil
}

type deleted struct{}

// update walks to path, creating intermediate objects, and replaces the target with fn's result.
// fn returning deleted{} removes the target.
func update(node any, segs []Segment, path string, fn func(old any, exists bool) (any, error)) (any, error) {
	if len(segs) == 0 {
		return fn(node, true)
	}
	seg := segs[0]
	if seg.IsIndex {
		list, ok := node.([]any)
		if !ok {
			return nil, tsapi.ErrorEditPath(path, fmt.Sprintf("[%d] applied to something that is not a list", seg.Index))
		}
		if seg.Index > len(list) || seg.Index == len(list) && len(segs) > 1 {
			return nil, tsapi.ErrorEditPath(path, fmt.Sprintf("index %d out of range", seg.Index))
		}
		var child any
		exists := seg.Index < len(list)
		if exists {
			child = list[seg.Index]
		}
		nv, err := descend(child, exists, segs, path, fn)
		if err != nil {
			return nil, err
		}
		switch {
		case nv == (deleted{}):
			return append(list[:seg.Index:seg.Index], list[seg.Index+1:]...), nil
		case !exists:
			return append(list, nv), nil
		}
		list[seg.Index] = nv
		return list, nil
	}
	obj, ok := node.(map[string]any)
	if node == nil {
		obj, ok = map[string]any{}, true
	}
	if !ok {
		return nil, tsapi.ErrorEditPath(path, fmt.Sprintf("key %q applied to something that is not an object", seg.Key))
	}
	child, exists := obj[seg.Key]
	nv, err := descend(child, exists, segs, path, fn)
	if err != nil {
		return nil, err
	}
	if nv == (deleted{}) {
		delete(obj, seg.Key)
	} else {
		obj[seg.Key] = nv
	}
	return obj, nil
}

func descend(child any, exists bool, segs []Segment, path string, fn func(any, bool) (any, error)) (any, error) {
	if len(segs) == 1 {
		return fn(child, exists)
	}
	if !exists && segs[1].IsIndex {
		return nil, tsapi.ErrorEditPath(path, "cannot index into a missing list")
	}
	return update(child, segs[1:], path, fn)
}

// Apply runs a ';'-separated edit script against the document.
// Operations are `set PATH VALUE`, `del PATH`, `push PATH VALUE` and `merge [PATH] OBJECT`;
// VALUE is JSON, or else taken as a bare string.
// The document is left untouched if any operation fails.
//
// Errors:
//
//   - tagspeak-error-edit-path -- for malformed scripts, bad paths, or type mismatches along a path.
func (d *Document) Apply(script string) error {
	data := cloneTree(d.Data)
	for _, op := range splitTop(script, ';') {
		op = strings.TrimSpace(op)
		if op == "" {
			continue
		}
		verb, rest := cutWord(op)
		var err error
		switch verb {
		case "set":
			path, val := cutWord(rest)
			if val == "" {
				return tsapi.ErrorEditPath(path, "set needs a value")
			}
			data, err = edit(data, path, func(any, bool) (any, error) { return parseLiteral(val), nil })
		case "del":
			path := strings.TrimSpace(rest)
			if path == "" || path == "." {
				return tsapi.ErrorEditPath(path, "cannot delete the whole document")
			}
			data, err = edit(data, path, func(_ any, exists bool) (any, error) {
				if !exists {
					return nil, tsapi.ErrorEditPath(path, "no such path")
				}
				return deleted{}, nil
			})
		case "push":
			path, val := cutWord(rest)
			if val == "" {
				return tsapi.ErrorEditPath(path, "push needs a value")
			}
			data, err = edit(data, path, func(old any, exists bool) (any, error) {
				if !exists || old == nil {
					return []any{parseLiteral(val)}, nil
				}
				list, ok := old.([]any)
				if !ok {
					return nil, tsapi.ErrorEditPath(path, "push target is not a list")
				}
				return append(list, parseLiteral(val)), nil
			})
		case "merge":
			path, obj := "", strings.TrimSpace(rest)
			if !strings.HasPrefix(obj, "{") {
				path, obj = cutWord(rest)
			}
			patch, ok := parseLiteral(obj).(map[string]any)
			if !ok {
				return tsapi.ErrorEditPath(path, "merge needs a JSON object")
			}
			data, err = edit(data, path, func(old any, exists bool) (any, error) {
				if !exists || old == nil {
					return patch, nil
				}
				target, ok := old.(map[string]any)
				if !ok {
					return nil, tsapi.ErrorEditPath(path, "merge target is not an object")
				}
				return mergeTree(target, patch), nil
			})
		default:
			return tsapi.ErrorEditPath(op, fmt.Sprintf("unknown edit operation %q", verb))
		}
		if err != nil {
			return err
		}
	}
	d.Data = data
	return nil
}

func edit(data any, path string, fn func(any, bool) (any, error)) (any, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	return update(data, segs, path, fn)
}

func mergeTree(dst, src map[string]any) map[string]any {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if have, ok := dst[k].(map[string]any); ok {
				dst[k] = mergeTree(have, sub)
				continue
			}
		}
		dst[k] = v
	}
	return dst
}

// parseLiteral reads JSON, falling back to the trimmed text as a string.
func parseLiteral(text string) any {
	text = strings.TrimSpace(text)
	if v, err := decodeJSON([]byte(text)); err == nil {
		return v
	}
	return text
}

// cutWord splits off the first whitespace-delimited word, respecting brackets and quotes.
func cutWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[' || c == '{':
			depth++
		case c == ']' || c == '}':
			depth--
		case (c == ' ' || c == '\t' || c == '\n') && depth == 0:
			return s[:i], strings.TrimSpace(s[i+1:])
		}
	}
	return s, ""
}

// splitTop splits on sep outside of quotes and brackets.
func splitTop(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[' || c == '{':
			depth++
		case c == ']' || c == '}':
			depth--
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
