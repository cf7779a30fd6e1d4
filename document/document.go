// Package document defines the borrowed, immutable tree shape the rest of
// the module consumes: an arbitrary composition of null, bool, number,
// string, ordered object, and array nodes. Production code never parses
// JSON or YAML bytes itself — a collaborator hands in an already-built
// Document and the core only reads it.
package document

import "fmt"

// Value is any node in a Document tree: nil, bool, float64, string,
// *Object, or []Value. No other concrete type appears in a well-formed
// tree; Kind reports which case a given Value is.
type Value = any

// Kind classifies a Value's dynamic type for dispatch without repeated
// type switches scattered across callers.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindObject
	KindArray
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "invalid"
	}
}

// KindOf classifies v.
func KindOf(v Value) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case float64, int, int64:
		return KindNumber
	case string:
		return KindString
	case *Object:
		return KindObject
	case []Value:
		return KindArray
	default:
		return KindInvalid
	}
}

// Object is an ordered mapping of string to Value. Insertion order is
// preserved and keys are unique, matching spec.md's "ordered-mapping"
// requirement on the Document tree. It intentionally does not implement
// map semantics directly so that key order is never accidentally lost by
// ranging over a Go map.
type Object struct {
	keys   []string
	values map[string]Value
}

// NewObject returns an empty, ready-to-use Object.
func NewObject() *Object {
	return &Object{values: make(map[string]Value)}
}

// Set inserts or overwrites key with value, preserving the original
// insertion position on overwrite.
func (o *Object) Set(key string, value Value) {
	if o.values == nil {
		o.values = make(map[string]Value)
	}
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

// Get returns the value for key and whether it was present.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil || o.values == nil {
		return nil, false
	}
	v, ok := o.values[key]
	return v, ok
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Delete removes key, if present, preserving the order of remaining keys.
func (o *Object) Delete(key string) {
	if o == nil || o.values == nil {
		return
	}
	if _, ok := o.values[key]; !ok {
		return
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the object's keys in insertion order. The returned slice
// must not be mutated by the caller.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return o.keys
}

// Len reports the number of entries.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Range calls fn for each entry in insertion order, stopping early if fn
// returns false.
func (o *Object) Range(fn func(key string, value Value) bool) {
	if o == nil {
		return
	}
	for _, k := range o.keys {
		if !fn(k, o.values[k]) {
			return
		}
	}
}

// Clone returns a shallow copy: a new Object with the same key order and
// the same Value references (nested Objects/arrays are not deep-copied).
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	clone := &Object{
		keys:   make([]string, len(o.keys)),
		values: make(map[string]Value, len(o.values)),
	}
	copy(clone.keys, o.keys)
	for k, v := range o.values {
		clone.values[k] = v
	}
	return clone
}

// Document wraps a root Value, giving callers a named type to pass around
// instead of a bare `any`. The zero value is an empty document (root nil).
type Document struct {
	Root Value
}

// New wraps root as a Document.
func New(root Value) *Document {
	return &Document{Root: root}
}

// IsEmpty reports whether the document has no meaningful content.
func (d *Document) IsEmpty() bool {
	return d == nil || d.Root == nil
}

// Equal reports deep structural equality between two Values using JSON
// equality rules: numbers compare by value, objects compare by key/value
// pairs regardless of order, arrays compare elementwise in order, strings
// and booleans compare exactly. It is used by RuntimeValidator's const/enum/
// uniqueItems checks and is safe to call on self-referential trees only if
// depth is externally bounded (callers pass already depth-capped data).
func Equal(a, b Value) bool {
	ak, bk := KindOf(a), KindOf(b)
	if ak != bk {
		return false
	}
	switch ak {
	case KindNull:
		return true
	case KindBool:
		return a.(bool) == b.(bool)
	case KindNumber:
		return numberOf(a) == numberOf(b)
	case KindString:
		return a.(string) == b.(string)
	case KindArray:
		av, bv := a.([]Value), b.([]Value)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case KindObject:
		ao, bo := a.(*Object), b.(*Object)
		if ao.Len() != bo.Len() {
			return false
		}
		match := true
		ao.Range(func(k string, v Value) bool {
			bv, ok := bo.Get(k)
			if !ok || !Equal(v, bv) {
				match = false
				return false
			}
			return true
		})
		return match
	default:
		return false
	}
}

func numberOf(v Value) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// String renders a compact, deterministic debug form. Not used for
// identity or cycle detection — see schema.Schema's object-identity
// tracking for that.
func String(v Value) string {
	switch k := KindOf(v); k {
	case KindNull:
		return "null"
	case KindBool, KindNumber:
		return fmt.Sprintf("%v", v)
	case KindString:
		return fmt.Sprintf("%q", v.(string))
	case KindArray:
		return "[...]"
	case KindObject:
		return "{...}"
	default:
		return "<invalid>"
	}
}
