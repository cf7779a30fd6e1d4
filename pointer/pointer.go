// Package pointer implements RFC 6901 JSON Pointers with strict escape
// handling. Unlike the teacher's delegated jsonpointer library, this package
// never percent-decodes a token on its own — percent-decoding only ever
// applies to pointers that originate from a URI fragment, which is the
// refresolver package's job, not this one's.
package pointer

import (
	"strconv"
	"strings"

	"github.com/speclab/schemacore/diag"
	"github.com/speclab/schemacore/document"
)

// Pointer is a parsed RFC 6901 pointer: an ordered sequence of unescaped
// segments. A nil/empty Segments slice denotes the document root.
type Pointer struct {
	Segments []string
}

// Root is the pointer denoting the whole document.
func Root() Pointer { return Pointer{} }

// ErrorKind enumerates the ways a pointer operation can fail, matching
// spec.md §4.1's failure kinds exactly.
type ErrorKind string

const (
	ErrMalformedPointer     ErrorKind = "malformed-pointer"
	ErrSegmentNotFound      ErrorKind = "segment-not-found"
	ErrArrayIndexOutOfRange ErrorKind = "array-index-out-of-range"
	ErrNotAContainer        ErrorKind = "not-a-container"
	ErrInvalidEscape        ErrorKind = "invalid-escape"
)

// Error is returned by every pointer operation that can fail; it carries a
// stable Kind plus the offending pointer text for attribution.
type Error struct {
	Kind    ErrorKind
	Pointer string
	Detail  string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind) + ": " + e.Pointer
	}
	return string(e.Kind) + ": " + e.Pointer + ": " + e.Detail
}

func fail(kind ErrorKind, raw, detail string) *Error {
	return &Error{Kind: kind, Pointer: raw, Detail: detail}
}

// Parse parses raw into a Pointer, enforcing RFC 6901 strictly: raw must be
// empty (root) or start with "/"; each segment has '~1' unescaped to '/'
// then '~0' unescaped to '~', in that order; a bare unescaped '~' not
// followed by '0' or '1' is rejected as an invalid escape. Percent-encoding
// is left untouched.
func Parse(raw string) (Pointer, error) {
	if raw == "" {
		return Root(), nil
	}
	if !strings.HasPrefix(raw, "/") {
		return Pointer{}, fail(ErrMalformedPointer, raw, "pointer must be empty or start with '/'")
	}
	parts := strings.Split(raw[1:], "/")
	segments := make([]string, len(parts))
	for i, part := range parts {
		unescaped, err := unescapeSegment(part, raw)
		if err != nil {
			return Pointer{}, err
		}
		segments[i] = unescaped
	}
	return Pointer{Segments: segments}, nil
}

func unescapeSegment(part, raw string) (string, error) {
	if !strings.ContainsRune(part, '~') {
		return part, nil
	}
	var b strings.Builder
	b.Grow(len(part))
	for i := 0; i < len(part); i++ {
		c := part[i]
		if c != '~' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(part) || (part[i+1] != '0' && part[i+1] != '1') {
			return "", fail(ErrInvalidEscape, raw, "'~' must be followed by '0' or '1'")
		}
		if part[i+1] == '1' {
			b.WriteByte('/')
		} else {
			b.WriteByte('~')
		}
		i++
	}
	return b.String(), nil
}

// Format renders a Pointer back to its RFC 6901 string form: '~' escaped to
// "~0" first, then '/' escaped to "~1".
func Format(p Pointer) string {
	if len(p.Segments) == 0 {
		return ""
	}
	var b strings.Builder
	for _, seg := range p.Segments {
		b.WriteByte('/')
		b.WriteString(escapeSegment(seg))
	}
	return b.String()
}

func escapeSegment(seg string) string {
	if !strings.ContainsAny(seg, "~/") {
		return seg
	}
	seg = strings.ReplaceAll(seg, "~", "~0")
	seg = strings.ReplaceAll(seg, "/", "~1")
	return seg
}

// String implements fmt.Stringer via Format.
func (p Pointer) String() string { return Format(p) }

// Child returns a new Pointer with seg appended.
func (p Pointer) Child(seg string) Pointer {
	segs := make([]string, len(p.Segments)+1)
	copy(segs, p.Segments)
	segs[len(p.Segments)] = seg
	return Pointer{Segments: segs}
}

// Parent returns p with its last segment removed, and whether p was
// non-root.
func (p Pointer) Parent() (Pointer, bool) {
	if len(p.Segments) == 0 {
		return p, false
	}
	return Pointer{Segments: p.Segments[:len(p.Segments)-1]}, true
}

// IsRoot reports whether p denotes the document root.
func (p Pointer) IsRoot() bool { return len(p.Segments) == 0 }

// isArrayIndex reports whether seg is a valid array index token per RFC
// 6901 (a non-negative decimal integer, no leading zeros except "0", no
// whitespace) and the parsed value, or whether seg is the literal "-".
func isArrayIndex(seg string) (idx int, isDash bool, ok bool) {
	if seg == "-" {
		return 0, true, true
	}
	if seg == "" {
		return 0, false, false
	}
	if seg == "0" {
		return 0, false, true
	}
	if seg[0] == '0' || seg[0] < '0' || seg[0] > '9' {
		return 0, false, false
	}
	for i := 1; i < len(seg); i++ {
		if seg[i] < '0' || seg[i] > '9' {
			return 0, false, false
		}
	}
	n, err := strconv.Atoi(seg)
	if err != nil {
		return 0, false, false
	}
	return n, false, true
}

// Resolve walks doc following p and returns the Value found there.
func Resolve(doc document.Value, p Pointer) (document.Value, error) {
	raw := Format(p)
	current := doc
	for _, seg := range p.Segments {
		switch document.KindOf(current) {
		case document.KindObject:
			obj := current.(*document.Object)
			v, ok := obj.Get(seg)
			if !ok {
				return nil, fail(ErrSegmentNotFound, raw, "no member '"+seg+"'")
			}
			current = v
		case document.KindArray:
			arr := current.([]document.Value)
			idx, isDash, ok := isArrayIndex(seg)
			if !ok {
				return nil, fail(ErrMalformedPointer, raw, "'"+seg+"' is not a valid array index")
			}
			if isDash {
				return nil, fail(ErrArrayIndexOutOfRange, raw, "'-' is not valid during resolve")
			}
			if idx < 0 || idx >= len(arr) {
				return nil, fail(ErrArrayIndexOutOfRange, raw, "index out of range")
			}
			current = arr[idx]
		default:
			return nil, fail(ErrNotAContainer, raw, "cannot descend into a "+document.KindOf(current).String())
		}
	}
	return current, nil
}

// Exists reports whether p resolves within doc without error.
func Exists(doc document.Value, p Pointer) bool {
	_, err := Resolve(doc, p)
	return err == nil
}

// Set writes value at p within the tree rooted at *root, growing arrays via
// append when the final segment is "-" or one past the current end. Unlike
// the ingested spec Document (which the rest of the module only ever
// borrows and never mutates), Set operates on trees a caller owns outright
// — e.g. a ResponseGenerator building up its output value. root must point
// at the variable holding the tree's root Value so that appends, which may
// reallocate an array's backing storage, are visible to the caller.
func Set(root *document.Value, p Pointer, value document.Value) error {
	raw := Format(p)
	if len(p.Segments) == 0 {
		*root = value
		return nil
	}
	updated, err := setAt(*root, p.Segments, value, raw)
	if err != nil {
		return err
	}
	*root = updated
	return nil
}

// setAt returns a new value for the subtree rooted at current with value
// written at the path described by segments, reusing *document.Object
// references in place (they are already pointers) and only replacing array
// slice headers where growth occurred.
func setAt(current document.Value, segments []string, value document.Value, raw string) (document.Value, error) {
	seg := segments[0]
	rest := segments[1:]

	switch document.KindOf(current) {
	case document.KindObject:
		obj := current.(*document.Object)
		if len(rest) == 0 {
			obj.Set(seg, value)
			return obj, nil
		}
		child, ok := obj.Get(seg)
		if !ok {
			return nil, fail(ErrSegmentNotFound, raw, "no member '"+seg+"'")
		}
		newChild, err := setAt(child, rest, value, raw)
		if err != nil {
			return nil, err
		}
		obj.Set(seg, newChild)
		return obj, nil

	case document.KindArray:
		arr := current.([]document.Value)
		idx, isDash, ok := isArrayIndex(seg)
		if !ok {
			return nil, fail(ErrMalformedPointer, raw, "'"+seg+"' is not a valid array index")
		}
		if len(rest) == 0 {
			if isDash || idx == len(arr) {
				return append(arr, value), nil
			}
			if idx < 0 || idx > len(arr) {
				return nil, fail(ErrArrayIndexOutOfRange, raw, "index out of range")
			}
			arr[idx] = value
			return arr, nil
		}
		if isDash || idx < 0 || idx >= len(arr) {
			return nil, fail(ErrArrayIndexOutOfRange, raw, "'-' is not valid during traversal")
		}
		newChild, err := setAt(arr[idx], rest, value, raw)
		if err != nil {
			return nil, err
		}
		arr[idx] = newChild
		return arr, nil

	default:
		return nil, fail(ErrNotAContainer, raw, "cannot descend into a "+document.KindOf(current).String())
	}
}

// ListPointers walks doc depth-first and returns every Pointer reachable
// under prefix (inclusive), in document order. It is primarily a debugging
// and test-fixture aid; SchemaIndexer implements its own bounded walk for
// production use.
func ListPointers(doc document.Value, prefix Pointer) []Pointer {
	var out []Pointer
	var walk func(v document.Value, p Pointer)
	walk = func(v document.Value, p Pointer) {
		out = append(out, p)
		switch document.KindOf(v) {
		case document.KindObject:
			v.(*document.Object).Range(func(k string, child document.Value) bool {
				walk(child, p.Child(k))
				return true
			})
		case document.KindArray:
			for i, child := range v.([]document.Value) {
				walk(child, p.Child(strconv.Itoa(i)))
			}
		}
	}
	root, err := Resolve(doc, prefix)
	if err != nil {
		return nil
	}
	walk(root, prefix)
	return out
}

// ToDiagnostic converts a pointer.Error into a diag.Diagnostic for
// collaborators that want a uniform diagnostic stream.
func ToDiagnostic(err *Error) diag.Diagnostic {
	return diag.Errorf(string(err.Kind), diag.Parse, err.Pointer, "%s", err.Error())
}
