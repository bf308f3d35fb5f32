package adapter

import (
	"fmt"
	"strconv"
	"strings"
)

// Path is a parsed dot/bracket path expression such as
// "data.items[0].title", evaluated against decoded JSON values.
type Path struct {
	raw      string
	segments []pathSegment
}

type pathSegment struct {
	key   string
	index int
	isKey bool
}

// ParsePath parses a dot/bracket path expression.
func ParsePath(raw string) (Path, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Path{}, fmt.Errorf("empty path expression")
	}

	var segments []pathSegment
	for part := range strings.SplitSeq(trimmed, ".") {
		if part == "" {
			return Path{}, fmt.Errorf("path %q has an empty segment", raw)
		}
		key := part
		var brackets string
		if i := strings.IndexByte(part, '['); i >= 0 {
			key, brackets = part[:i], part[i:]
		}
		if key != "" {
			segments = append(segments, pathSegment{key: key, isKey: true})
		}
		for brackets != "" {
			if brackets[0] != '[' {
				return Path{}, fmt.Errorf("path %q: expected '[' in %q", raw, part)
			}
			end := strings.IndexByte(brackets, ']')
			if end < 1 {
				return Path{}, fmt.Errorf("path %q: unterminated index in %q", raw, part)
			}
			idx, err := strconv.Atoi(brackets[1:end])
			if err != nil || idx < 0 {
				return Path{}, fmt.Errorf("path %q: invalid index %q", raw, brackets[1:end])
			}
			segments = append(segments, pathSegment{index: idx})
			brackets = brackets[end+1:]
		}
	}
	return Path{raw: trimmed, segments: segments}, nil
}

// String returns the original expression.
func (p Path) String() string {
	return p.raw
}

// Resolve walks the decoded JSON value. The second return is false when
// any segment is absent or of the wrong shape.
func (p Path) Resolve(value any) (any, bool) {
	current := value
	for _, seg := range p.segments {
		if seg.isKey {
			obj, ok := current.(map[string]any)
			if !ok {
				return nil, false
			}
			current, ok = obj[seg.key]
			if !ok {
				return nil, false
			}
			continue
		}
		list, ok := current.([]any)
		if !ok || seg.index >= len(list) {
			return nil, false
		}
		current = list[seg.index]
	}
	return current, true
}

// resolveString evaluates path against value and renders scalars as
// strings. Missing values and empty paths yield "".
func resolveString(value any, path string) string {
	if path == "" {
		return ""
	}
	p, err := ParsePath(path)
	if err != nil {
		return ""
	}
	v, ok := p.Resolve(value)
	if !ok {
		return ""
	}
	return stringify(v)
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// resolveBool evaluates path and coerces the value to a bool; absent or
// non-boolean values return the fallback.
func resolveBool(value any, path string, fallback bool) bool {
	if path == "" {
		return fallback
	}
	p, err := ParsePath(path)
	if err != nil {
		return fallback
	}
	v, ok := p.Resolve(value)
	if !ok {
		return fallback
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		parsed, err := strconv.ParseBool(t)
		if err != nil {
			return fallback
		}
		return parsed
	case float64:
		return t != 0
	default:
		return fallback
	}
}
