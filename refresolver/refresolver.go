// Package refresolver resolves internal "$ref" strings against a
// document.Document tree: it validates ref syntax, percent-decodes URI
// fragments, resolves through pointer.Resolve, and detects circular
// reference chains during eager resolution. External refs (any scheme,
// "file:", or relative filesystem paths) are explicitly rejected — this
// module only ever resolves internal "#/..." fragments, per spec.
package refresolver

import (
	"fmt"
	"strings"

	"github.com/speclab/schemacore/diag"
	"github.com/speclab/schemacore/document"
	"github.com/speclab/schemacore/pointer"
)

// Ref is a validated, canonical internal reference: always of the form
// "#/seg/seg/..." or the anchor form "#name".
type Ref struct {
	Raw      string
	Pointer  pointer.Pointer
	IsAnchor bool
	Anchor   string
}

// String returns the canonical ref text.
func (r Ref) String() string { return r.Raw }

// ErrorKind enumerates refresolver failure categories.
type ErrorKind string

const (
	ErrExternalRef            ErrorKind = "external-ref-unsupported"
	ErrMalformedRef           ErrorKind = "malformed-ref"
	ErrInvalidPercentEncoding ErrorKind = "invalid-percent-encoding"
	ErrCircular               ErrorKind = "circular-reference"
	ErrTargetNotFound         ErrorKind = "ref-target-not-found"
)

// Error is returned by every refresolver operation that can fail.
type Error struct {
	Kind  ErrorKind
	Ref   string
	Chain []string // populated for ErrCircular
	cause error
}

func (e *Error) Error() string {
	if e.Kind == ErrCircular {
		return fmt.Sprintf("%s: %s (chain: %s)", e.Kind, e.Ref, strings.Join(e.Chain, " -> "))
	}
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Ref)
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

func fail(kind ErrorKind, ref string) *Error { return &Error{Kind: kind, Ref: ref} }

// looksExternal reports whether raw carries a scheme, "file:", "://", or a
// relative filesystem-style path rather than being a pure document-internal
// fragment.
func looksExternal(raw string) bool {
	if raw == "" {
		return false
	}
	if !strings.HasPrefix(raw, "#") {
		return true
	}
	return strings.Contains(raw, "://") || strings.Contains(raw, "file:")
}

// ValidatePointerSyntax validates a raw ref string's syntax without
// resolving it against any document: rejects external refs, double hashes,
// backslashes, multiple '#', query strings, unencoded spaces, and relative
// filesystem paths. The anchor form "#name" (no leading slash after '#') is
// accepted.
func ValidatePointerSyntax(raw string) error {
	if raw == "" {
		return fail(ErrMalformedRef, raw)
	}
	if looksExternal(raw) {
		return fail(ErrExternalRef, raw)
	}
	body := raw[1:] // strip leading '#'
	if strings.Contains(body, "#") {
		return fail(ErrMalformedRef, raw)
	}
	if strings.ContainsRune(body, '\\') {
		return fail(ErrMalformedRef, raw)
	}
	if strings.ContainsRune(body, '?') {
		return fail(ErrMalformedRef, raw)
	}
	if strings.ContainsRune(body, ' ') {
		return fail(ErrMalformedRef, raw)
	}
	if body != "" && !strings.HasPrefix(body, "/") {
		// Anchor form: "#name". Must not look like a relative filesystem
		// path (e.g. "#../foo" or containing further '/' after non-slash
		// start would actually be malformed pointer form, not anchor).
		if strings.ContainsRune(body, '/') {
			return fail(ErrMalformedRef, raw)
		}
	}
	return validatePercentEncoding(body, raw)
}

func validatePercentEncoding(body, raw string) error {
	for i := 0; i < len(body); i++ {
		if body[i] != '%' {
			continue
		}
		if i+2 >= len(body) || !isHex(body[i+1]) || !isHex(body[i+2]) {
			return fail(ErrInvalidPercentEncoding, raw)
		}
		i += 2
	}
	return nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// percentDecode decodes %XX sequences in s. Callers must have already
// validated percent-encoding via validatePercentEncoding.
func percentDecode(s string) string {
	if !strings.ContainsRune(s, '%') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			hi := hexVal(s[i+1])
			lo := hexVal(s[i+2])
			b.WriteByte(byte(hi<<4 | lo))
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// ParseRef validates and parses raw into a Ref, percent-decoding the
// fragment body (pointer form only; anchors are not percent-decoded since
// they are plain names, not pointer segments).
func ParseRef(raw string) (Ref, error) {
	if err := ValidatePointerSyntax(raw); err != nil {
		return Ref{}, err
	}
	body := raw[1:]
	if body == "" {
		return Ref{Raw: raw, Pointer: pointer.Root()}, nil
	}
	if !strings.HasPrefix(body, "/") {
		return Ref{Raw: raw, IsAnchor: true, Anchor: body}, nil
	}
	decoded := percentDecode(body)
	p, err := pointer.Parse(decoded)
	if err != nil {
		return Ref{}, fail(ErrMalformedRef, raw)
	}
	return Ref{Raw: raw, Pointer: p}, nil
}

// IsValidReference reports whether raw both parses and resolves within doc.
func IsValidReference(doc document.Value, raw string) bool {
	ref, err := ParseRef(raw)
	if err != nil || ref.IsAnchor {
		return false
	}
	return pointer.Exists(doc, ref.Pointer)
}

// ResolveRef resolves raw against doc, chasing a chain of "$ref"-only nodes
// (a resolved object whose only relevant content is a further "$ref") up to
// the point a non-ref node is found. visited accumulates the ref strings
// seen so far in this resolution chain; passing a fresh empty set per
// top-level call is the caller's responsibility. A ref reappearing in
// visited fails as ErrCircular with the full chain for diagnostics.
func ResolveRef(doc document.Value, raw string, visited map[string]bool) (document.Value, error) {
	if visited == nil {
		visited = make(map[string]bool)
	}
	ref, err := ParseRef(raw)
	if err != nil {
		return nil, err
	}
	if ref.IsAnchor {
		// Anchor resolution requires schema-level anchor tables; at the
		// document/pointer level an anchor only resolves if ReferenceGraph
		// has pre-indexed it. Bare refresolver cannot do better than fail.
		return nil, fail(ErrTargetNotFound, raw)
	}
	if visited[raw] {
		chain := chainOf(visited, raw)
		return nil, &Error{Kind: ErrCircular, Ref: raw, Chain: chain}
	}
	visited[raw] = true

	resolved, perr := pointer.Resolve(doc, ref.Pointer)
	if perr != nil {
		return nil, fail(ErrTargetNotFound, raw)
	}

	if nestedRef, ok := extractRef(resolved); ok {
		return ResolveRef(doc, nestedRef, visited)
	}
	return resolved, nil
}

// chainOf renders visited (an unordered set) plus the closing ref into a
// best-effort ordered chain for error messages. Exact insertion order isn't
// tracked by the set itself, so this only guarantees the closing ref is
// last; used for diagnostics, not logic.
func chainOf(visited map[string]bool, closing string) []string {
	chain := make([]string, 0, len(visited)+1)
	for r := range visited {
		if r != closing {
			chain = append(chain, r)
		}
	}
	chain = append(chain, closing)
	return chain
}

// extractRef reports whether v is an object carrying a "$ref" string
// member, returning that ref.
func extractRef(v document.Value) (string, bool) {
	obj, ok := v.(*document.Object)
	if !ok {
		return "", false
	}
	raw, ok := obj.Get("$ref")
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	return s, ok
}

// GetAllReferences walks the entire doc and returns every "$ref" string
// found, in document order, each parsed into a Ref. Malformed or external
// refs are skipped (not resolved eagerly); callers wanting validation
// should run ValidatePointerSyntax on the Raw field themselves.
func GetAllReferences(doc document.Value) []Ref {
	var out []Ref
	walkRefs(doc, func(raw string) {
		if ref, err := ParseRef(raw); err == nil {
			out = append(out, ref)
		} else {
			out = append(out, Ref{Raw: raw})
		}
	})
	return out
}

func walkRefs(v document.Value, visit func(raw string)) {
	switch document.KindOf(v) {
	case document.KindObject:
		obj := v.(*document.Object)
		obj.Range(func(k string, child document.Value) bool {
			if k == "$ref" {
				if s, ok := child.(string); ok {
					visit(s)
				}
				return true
			}
			walkRefs(child, visit)
			return true
		})
	case document.KindArray:
		for _, child := range v.([]document.Value) {
			walkRefs(child, visit)
		}
	}
}

// FindCircularReferences performs a DFS over every "$ref" edge reachable
// from doc's root, tracking a recursion stack, and returns every ref that
// closes a back-edge (i.e. participates in a cycle).
func FindCircularReferences(doc document.Value) []Ref {
	state := make(map[string]int) // 0 unvisited, 1 in-stack, 2 done
	var circular []Ref
	seenCircular := make(map[string]bool)

	var dfs func(raw string, chain []string)
	dfs = func(raw string, chain []string) {
		switch state[raw] {
		case 1:
			if !seenCircular[raw] {
				seenCircular[raw] = true
				if ref, err := ParseRef(raw); err == nil {
					circular = append(circular, ref)
				}
			}
			return
		case 2:
			return
		}
		state[raw] = 1
		ref, err := ParseRef(raw)
		if err == nil && !ref.IsAnchor {
			if target, perr := pointer.Resolve(doc, ref.Pointer); perr == nil {
				walkRefs(target, func(nested string) {
					dfs(nested, append(chain, raw))
				})
			}
		}
		state[raw] = 2
	}

	walkRefs(doc, func(raw string) {
		if state[raw] == 0 {
			dfs(raw, nil)
		}
	})
	return circular
}

// ToDiagnostic converts a refresolver.Error into a diag.Diagnostic.
func ToDiagnostic(err *Error) diag.Diagnostic {
	kind := diag.Reference
	if err.Kind == ErrMalformedRef || err.Kind == ErrInvalidPercentEncoding {
		kind = diag.Parse
	}
	return diag.Errorf(string(err.Kind), kind, err.Ref, "%s", err.Error())
}
