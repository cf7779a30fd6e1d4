// Package schemaindex implements SchemaIndexer: given a *schema.Schema, it
// records every reachable sub-schema by sub-pointer, the maximum nesting
// depth, and the set of "$ref" strings each sub-schema directly contains.
// Identity for cycle avoidance during the walk uses Go object identity
// (the *schema.Schema pointer itself), never a serialized form.
package schemaindex

import (
	"context"
	"strconv"

	"github.com/speclab/schemacore/diag"
	"github.com/speclab/schemacore/schema"
)

// MaxDepth is the sanity cap spec.md §4.4/§5 mandates: reaching it emits a
// warning and stops descending, though nodes already at the cap are still
// indexed.
const MaxDepth = 1024

// Index is the result of indexing a single Schema tree.
type Index struct {
	Root        *schema.Schema
	SubPointers map[string]*schema.Schema // sub-pointer -> schema
	MaxDepth    int
	RefsPerNode map[string][]string // sub-pointer -> $ref strings directly on that node
	Diagnostics []diag.Diagnostic
}

// Index walks root and builds an Index. visiting is tracked by object
// identity (a map keyed by *schema.Schema) so a schema reachable through
// more than one path (shared by pointer, not by ref) is only descended once
// per path — genuine $ref cycles never reach here because schema.Build
// never follows $ref, so the only cycles possible are through repeated
// object identity, which this guards against directly.
func Index(root *schema.Schema) *Index {
	return IndexCtx(context.Background(), root)
}

// IndexCtx is Index with cooperative cancellation: ctx is checked on every
// descent, the indexer's outer loop per spec.md §5. A cancellation mid-walk
// stops descending immediately and attaches a cancelled diagnostic rather
// than discarding everything gathered so far, since the indexer (unlike
// Validate/ValidateRequest) has no error return to carry ErrCancelled on.
func IndexCtx(ctx context.Context, root *schema.Schema) *Index {
	idx := &Index{
		Root:        root,
		SubPointers: make(map[string]*schema.Schema),
		RefsPerNode: make(map[string][]string),
	}
	onPath := make(map[*schema.Schema]bool)
	cappedWarned := false
	cancelWarned := false

	var walk func(s *schema.Schema, sub string, depth int)
	walk = func(s *schema.Schema, sub string, depth int) {
		if s == nil {
			return
		}
		if err := ctx.Err(); err != nil {
			if !cancelWarned {
				cancelWarned = true
				idx.Diagnostics = append(idx.Diagnostics, diag.Warnf(
					"cancelled", diag.Cancelled, sub, "indexing cancelled: %v", err))
			}
			return
		}
		idx.SubPointers[sub] = s
		if s.SourcePointer == "" {
			s.SourcePointer = sub
		}
		if depth > idx.MaxDepth {
			idx.MaxDepth = depth
		}

		if onPath[s] {
			// Object-identity cycle (a schema node reachable from itself
			// without crossing a $ref) — stop rather than loop forever.
			return
		}
		if depth >= MaxDepth {
			if !cappedWarned {
				cappedWarned = true
				idx.Diagnostics = append(idx.Diagnostics, diag.Warnf(
					"depth-limit-reached", diag.LimitExceeded, sub,
					"schema nesting reached the sanity cap of %d; further descent stopped", MaxDepth))
			}
			return
		}
		onPath[s] = true
		defer func() { onPath[s] = false }()

		if s.Kind != schema.KindObject {
			return
		}

		var refs []string
		if s.Ref != "" {
			refs = append(refs, s.Ref)
		}
		if s.DynamicRef != "" {
			refs = append(refs, s.DynamicRef)
		}

		walkChild := func(child *schema.Schema, seg string) {
			walk(child, sub+"/"+seg, depth+1)
		}
		walkChildren := func(children []*schema.Schema, prefix string) {
			for i, c := range children {
				walkChild(c, prefix+"/"+strconv.Itoa(i))
			}
		}
		walkMap := func(m *schema.SchemaMap, prefix string) {
			if m == nil {
				return
			}
			for _, k := range m.Keys() {
				c, _ := m.Get(k)
				walkChild(c, prefix+"/"+k)
			}
		}

		if s.Defs != nil {
			walkMap(s.Defs, "$defs")
		}
		walkChildren(s.AllOf, "allOf")
		walkChildren(s.AnyOf, "anyOf")
		walkChildren(s.OneOf, "oneOf")
		if s.Not != nil {
			walkChild(s.Not, "not")
		}
		if s.If != nil {
			walkChild(s.If, "if")
		}
		if s.Then != nil {
			walkChild(s.Then, "then")
		}
		if s.Else != nil {
			walkChild(s.Else, "else")
		}
		for k, dep := range s.DependentSchemas {
			walkChild(dep, "dependentSchemas/"+k)
		}
		walkChildren(s.PrefixItems, "prefixItems")
		if s.Items != nil {
			walkChild(s.Items, "items")
		}
		if s.Contains != nil {
			walkChild(s.Contains, "contains")
		}
		walkMap(s.Properties, "properties")
		walkMap(s.PatternProperties, "patternProperties")
		if s.AdditionalProperties != nil {
			walkChild(s.AdditionalProperties, "additionalProperties")
		}
		if s.PropertyNames != nil {
			walkChild(s.PropertyNames, "propertyNames")
		}
		if s.UnevaluatedProperties != nil {
			walkChild(s.UnevaluatedProperties, "unevaluatedProperties")
		}
		if s.UnevaluatedItems != nil {
			walkChild(s.UnevaluatedItems, "unevaluatedItems")
		}
		if s.ContentSchema != nil {
			walkChild(s.ContentSchema, "contentSchema")
		}

		idx.RefsPerNode[sub] = refs
	}

	walk(root, "", 0)
	return idx
}
