// Package schema defines the Schema tagged union — AllowAny | DenyAll |
// Object(fields...) — and builds a Schema tree from a document.Value. It
// mirrors the teacher's Schema struct field-for-field for the keyword set
// spec.md names, but never chases "$ref" while building: a schema object
// carrying "$ref" becomes an Object-kind Schema with Ref set, left for
// SchemaProcessor/ReferenceResolver to dereference later. Because building
// therefore never crosses a $ref edge, Build always terminates even over a
// cyclic document.
package schema

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/speclab/schemacore/document"
)

// Kind discriminates the Schema tagged union.
type Kind int

const (
	KindAllowAny Kind = iota // boolean schema `true`, or absent
	KindDenyAll              // boolean schema `false`
	KindObject               // the full keyword-bearing object form
)

// SchemaMap is an ordered string->*Schema mapping, preserving the document's
// property declaration order the way document.Object does.
type SchemaMap struct {
	keys   []string
	values map[string]*Schema
}

func newSchemaMap() *SchemaMap { return &SchemaMap{values: make(map[string]*Schema)} }

// NewSchemaMap returns an empty, ready-to-use SchemaMap for callers outside
// this package that need to build one synthetically (e.g. ResponseGenerator
// shallow-merging allOf branches).
func NewSchemaMap() *SchemaMap { return newSchemaMap() }

func (m *SchemaMap) set(k string, v *Schema) {
	if _, ok := m.values[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.values[k] = v
}

// Set inserts or overwrites k with v, preserving original insertion order.
func (m *SchemaMap) Set(k string, v *Schema) { m.set(k, v) }

// Get returns the schema for k, if present.
func (m *SchemaMap) Get(k string) (*Schema, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[k]
	return v, ok
}

// Keys returns the keys in declaration order.
func (m *SchemaMap) Keys() []string {
	if m == nil {
		return nil
	}
	return m.keys
}

// Len reports the number of entries.
func (m *SchemaMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Discriminator carries OpenAPI's polymorphism hint; not a 2020-12 keyword
// but part of the object field set this module's callers (OpenAPI schemas)
// actually use.
type Discriminator struct {
	PropertyName string
	Mapping      map[string]string
}

// XML carries OpenAPI's XML serialization hints.
type XML struct {
	Name      string
	Namespace string
	Prefix    string
	Attribute bool
	Wrapped   bool
}

// Schema is the tagged union. Object-only fields are zero-valued when Kind
// is not KindObject. Pointer identity of *Schema is the stable handle used
// for cycle detection throughout the module — schemas are never serialized
// for that purpose.
type Schema struct {
	Kind Kind

	SourcePointer string // the sub-pointer (relative to its processing root) this node was built from, for diagnostics

	// CyclePlaceholderRef is set by processor.Processor when this node was
	// mutated in place from a $ref-bearing object into an AllowAny cycle
	// placeholder; empty otherwise. Preserved on the same *Schema pointer
	// so every existing reference to it observes the substitution.
	CyclePlaceholderRef string

	ID             string
	SchemaURI      string
	Ref            string
	DynamicRef     string
	Anchor         string
	DynamicAnchor  string
	Defs           *SchemaMap
	Comment        string

	Type []string // one or more of: null,boolean,object,array,number,string,integer

	HasConst bool
	Const    document.Value
	Enum     []document.Value
	HasEnum  bool

	MultipleOf       *float64
	Minimum          *float64
	Maximum          *float64
	ExclusiveMinimum *float64
	ExclusiveMaximum *float64

	MinLength  *int
	MaxLength  *int
	Pattern    string
	HasPattern bool
	Format     string
	HasFormat  bool

	PrefixItems []*Schema
	Items       *Schema
	Contains    *Schema
	MinItems    *int
	MaxItems    *int
	UniqueItems bool
	MinContains *int
	MaxContains *int

	Properties            *SchemaMap
	PatternProperties     *SchemaMap
	AdditionalProperties  *Schema
	PropertyNames         *Schema
	Required              []string
	DependentRequired     map[string][]string
	MinProperties         *int
	MaxProperties         *int
	UnevaluatedProperties *Schema
	UnevaluatedItems      *Schema

	AllOf []*Schema
	AnyOf []*Schema
	OneOf []*Schema
	Not   *Schema

	If               *Schema
	Then             *Schema
	Else             *Schema
	DependentSchemas map[string]*Schema

	ContentEncoding  string
	ContentMediaType string
	ContentSchema    *Schema

	Title       string
	Description string
	Default     document.Value
	HasDefault  bool
	Examples    []document.Value
	Deprecated  bool
	ReadOnly    bool
	WriteOnly   bool
	Nullable    bool

	Discriminator *Discriminator
	XML           *XML

	// Extra carries keys not recognized as a known 2020-12/OpenAPI keyword,
	// so SchemaProcessor can emit an "unknown keyword" info diagnostic
	// without losing the data.
	Extra map[string]document.Value

	patternOnce    sync.Once
	compiledPattern *regexp.Regexp
	patternErr     error
}

// CompiledPattern lazily compiles and caches s.Pattern, mirroring the
// teacher's compiledStringPattern caching on Schema.
func (s *Schema) CompiledPattern() (*regexp.Regexp, error) {
	if !s.HasPattern {
		return nil, nil
	}
	s.patternOnce.Do(func() {
		s.compiledPattern, s.patternErr = regexp.Compile(s.Pattern)
	})
	return s.compiledPattern, s.patternErr
}

func knownKeyword(key string) bool {
	_, ok := knownSchemaFields[key]
	return ok
}

// knownSchemaFields enumerates every keyword Build understands, mirroring
// the teacher's knownSchemaFields table so unrecognized keys are reported
// rather than silently dropped.
var knownSchemaFields = map[string]struct{}{
	"$id": {}, "$schema": {}, "$ref": {}, "$dynamicRef": {}, "$anchor": {},
	"$dynamicAnchor": {}, "$defs": {}, "definitions": {}, "$comment": {},

	"allOf": {}, "anyOf": {}, "oneOf": {}, "not": {},
	"if": {}, "then": {}, "else": {}, "dependentSchemas": {},
	"prefixItems": {}, "items": {}, "contains": {},
	"properties": {}, "patternProperties": {}, "additionalProperties": {},
	"propertyNames": {}, "unevaluatedItems": {}, "unevaluatedProperties": {},

	"type": {}, "enum": {}, "const": {},
	"multipleOf": {}, "maximum": {}, "exclusiveMaximum": {},
	"minimum": {}, "exclusiveMinimum": {},
	"maxLength": {}, "minLength": {}, "pattern": {},
	"maxItems": {}, "minItems": {}, "uniqueItems": {},
	"maxContains": {}, "minContains": {},
	"maxProperties": {}, "minProperties": {},
	"required": {}, "dependentRequired": {},

	"format": {},

	"contentEncoding": {}, "contentMediaType": {}, "contentSchema": {},

	"title": {}, "description": {}, "default": {}, "deprecated": {},
	"readOnly": {}, "writeOnly": {}, "examples": {},

	// OpenAPI-specific extensions this module's callers rely on.
	"nullable": {}, "discriminator": {}, "xml": {}, "example": {},
}

// Build constructs a Schema tree from v, a document.Value expected to be a
// JSON Schema 2020-12 (sub-)document: a boolean, or an object. unknown keys
// are recorded on Extra rather than rejected.
func Build(v document.Value) (*Schema, error) {
	switch document.KindOf(v) {
	case document.KindBool:
		if v.(bool) {
			return &Schema{Kind: KindAllowAny}, nil
		}
		return &Schema{Kind: KindDenyAll}, nil
	case document.KindNull:
		return &Schema{Kind: KindAllowAny}, nil
	case document.KindObject:
		return buildObject(v.(*document.Object))
	default:
		return nil, fmt.Errorf("schema: cannot build a schema from a %s value", document.KindOf(v))
	}
}

func buildObject(obj *document.Object) (*Schema, error) {
	s := &Schema{Kind: KindObject}

	var buildErr error
	record := func(err error) {
		if err != nil && buildErr == nil {
			buildErr = err
		}
	}

	obj.Range(func(key string, val document.Value) bool {
		if !knownKeyword(key) {
			if s.Extra == nil {
				s.Extra = make(map[string]document.Value)
			}
			s.Extra[key] = val
			return true
		}
		switch key {
		case "$id":
			s.ID, _ = val.(string)
		case "$schema":
			s.SchemaURI, _ = val.(string)
		case "$ref":
			s.Ref, _ = val.(string)
		case "$dynamicRef":
			s.DynamicRef, _ = val.(string)
		case "$anchor":
			s.Anchor, _ = val.(string)
		case "$dynamicAnchor":
			s.DynamicAnchor, _ = val.(string)
		case "$comment":
			s.Comment, _ = val.(string)
		case "$defs", "definitions":
			s.Defs = buildSchemaMapOrRecord(val, record)
		case "type":
			s.Type = buildTypeSet(val)
		case "enum":
			if arr, ok := val.([]document.Value); ok {
				s.HasEnum = true
				s.Enum = arr
			}
		case "const":
			s.HasConst = true
			s.Const = val
		case "multipleOf":
			s.MultipleOf = floatPtr(val)
		case "maximum":
			s.Maximum = floatPtr(val)
		case "minimum":
			s.Minimum = floatPtr(val)
		case "exclusiveMaximum":
			s.ExclusiveMaximum = floatPtr(val)
		case "exclusiveMinimum":
			s.ExclusiveMinimum = floatPtr(val)
		case "maxLength":
			s.MaxLength = intPtr(val)
		case "minLength":
			s.MinLength = intPtr(val)
		case "pattern":
			if str, ok := val.(string); ok {
				s.Pattern = str
				s.HasPattern = true
			}
		case "maxItems":
			s.MaxItems = intPtr(val)
		case "minItems":
			s.MinItems = intPtr(val)
		case "uniqueItems":
			s.UniqueItems, _ = val.(bool)
		case "maxContains":
			s.MaxContains = intPtr(val)
		case "minContains":
			s.MinContains = intPtr(val)
		case "maxProperties":
			s.MaxProperties = intPtr(val)
		case "minProperties":
			s.MinProperties = intPtr(val)
		case "required":
			s.Required = stringSlice(val)
		case "dependentRequired":
			s.DependentRequired = buildDependentRequired(val)
		case "format":
			if str, ok := val.(string); ok {
				s.Format = str
				s.HasFormat = true
			}
		case "prefixItems":
			s.PrefixItems = buildSchemaSlice(val, record)
		case "items":
			s.Items = buildSchemaOrRecord(val, record)
		case "contains":
			s.Contains = buildSchemaOrRecord(val, record)
		case "properties":
			s.Properties = buildSchemaMapOrRecord(val, record)
		case "patternProperties":
			s.PatternProperties = buildSchemaMapOrRecord(val, record)
		case "additionalProperties":
			s.AdditionalProperties = buildSchemaOrRecord(val, record)
		case "propertyNames":
			s.PropertyNames = buildSchemaOrRecord(val, record)
		case "unevaluatedProperties":
			s.UnevaluatedProperties = buildSchemaOrRecord(val, record)
		case "unevaluatedItems":
			s.UnevaluatedItems = buildSchemaOrRecord(val, record)
		case "allOf":
			s.AllOf = buildSchemaSlice(val, record)
		case "anyOf":
			s.AnyOf = buildSchemaSlice(val, record)
		case "oneOf":
			s.OneOf = buildSchemaSlice(val, record)
		case "not":
			s.Not = buildSchemaOrRecord(val, record)
		case "if":
			s.If = buildSchemaOrRecord(val, record)
		case "then":
			s.Then = buildSchemaOrRecord(val, record)
		case "else":
			s.Else = buildSchemaOrRecord(val, record)
		case "dependentSchemas":
			s.DependentSchemas = buildSchemaStringMap(val, record)
		case "contentEncoding":
			s.ContentEncoding, _ = val.(string)
		case "contentMediaType":
			s.ContentMediaType, _ = val.(string)
		case "contentSchema":
			s.ContentSchema = buildSchemaOrRecord(val, record)
		case "title":
			s.Title, _ = val.(string)
		case "description":
			s.Description, _ = val.(string)
		case "default":
			s.Default = val
			s.HasDefault = true
		case "examples":
			if arr, ok := val.([]document.Value); ok {
				s.Examples = arr
			}
		case "example":
			s.Examples = append(s.Examples, val)
		case "deprecated":
			s.Deprecated, _ = val.(bool)
		case "readOnly":
			s.ReadOnly, _ = val.(bool)
		case "writeOnly":
			s.WriteOnly, _ = val.(bool)
		case "nullable":
			s.Nullable, _ = val.(bool)
		case "discriminator":
			s.Discriminator = buildDiscriminator(val)
		case "xml":
			s.XML = buildXML(val)
		}
		return true
	})

	if buildErr != nil {
		return nil, buildErr
	}
	return s, nil
}

func buildSchemaOrRecord(val document.Value, record func(error)) *Schema {
	s, err := Build(val)
	record(err)
	return s
}

func buildSchemaSlice(val document.Value, record func(error)) []*Schema {
	arr, ok := val.([]document.Value)
	if !ok {
		return nil
	}
	out := make([]*Schema, 0, len(arr))
	for _, item := range arr {
		s, err := Build(item)
		record(err)
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func buildSchemaMapOrRecord(val document.Value, record func(error)) *SchemaMap {
	obj, ok := val.(*document.Object)
	if !ok {
		return nil
	}
	m := newSchemaMap()
	obj.Range(func(k string, v document.Value) bool {
		s, err := Build(v)
		record(err)
		m.set(k, s)
		return true
	})
	return m
}

func buildSchemaStringMap(val document.Value, record func(error)) map[string]*Schema {
	obj, ok := val.(*document.Object)
	if !ok {
		return nil
	}
	out := make(map[string]*Schema, obj.Len())
	obj.Range(func(k string, v document.Value) bool {
		s, err := Build(v)
		record(err)
		out[k] = s
		return true
	})
	return out
}

func buildDependentRequired(val document.Value) map[string][]string {
	obj, ok := val.(*document.Object)
	if !ok {
		return nil
	}
	out := make(map[string][]string, obj.Len())
	obj.Range(func(k string, v document.Value) bool {
		out[k] = stringSlice(v)
		return true
	})
	return out
}

func buildTypeSet(val document.Value) []string {
	switch v := val.(type) {
	case string:
		return []string{v}
	case []document.Value:
		return stringSlice(v)
	default:
		return nil
	}
}

func stringSlice(val document.Value) []string {
	arr, ok := val.([]document.Value)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func floatPtr(val document.Value) *float64 {
	switch n := val.(type) {
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	default:
		return nil
	}
}

func intPtr(val document.Value) *int {
	switch n := val.(type) {
	case float64:
		i := int(n)
		return &i
	case int:
		return &n
	default:
		return nil
	}
}

func buildDiscriminator(val document.Value) *Discriminator {
	obj, ok := val.(*document.Object)
	if !ok {
		return nil
	}
	d := &Discriminator{}
	if pn, ok := obj.Get("propertyName"); ok {
		d.PropertyName, _ = pn.(string)
	}
	if mapping, ok := obj.Get("mapping"); ok {
		if mObj, ok := mapping.(*document.Object); ok {
			d.Mapping = make(map[string]string, mObj.Len())
			mObj.Range(func(k string, v document.Value) bool {
				d.Mapping[k], _ = v.(string)
				return true
			})
		}
	}
	return d
}

func buildXML(val document.Value) *XML {
	obj, ok := val.(*document.Object)
	if !ok {
		return nil
	}
	x := &XML{}
	if v, ok := obj.Get("name"); ok {
		x.Name, _ = v.(string)
	}
	if v, ok := obj.Get("namespace"); ok {
		x.Namespace, _ = v.(string)
	}
	if v, ok := obj.Get("prefix"); ok {
		x.Prefix, _ = v.(string)
	}
	if v, ok := obj.Get("attribute"); ok {
		x.Attribute, _ = v.(bool)
	}
	if v, ok := obj.Get("wrapped"); ok {
		x.Wrapped, _ = v.(bool)
	}
	return x
}

// HasType reports whether t is among s.Type (or s.Type is empty, meaning
// any type is allowed).
func (s *Schema) HasType(t string) bool {
	if len(s.Type) == 0 {
		return true
	}
	for _, ty := range s.Type {
		if ty == t {
			return true
		}
	}
	return false
}
