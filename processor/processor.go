// Package processor implements SchemaProcessor: the façade that turns a raw
// document.Value plus a root pointer into a ProcessedSchema — an indexed,
// cycle-aware, diagnostic-bearing form ready for RuntimeValidator and
// ResponseGenerator to consume. Processing is memoized by canonical pointer
// in an LRU cache owned by each Processor (default capacity 10 000, per
// spec.md §4.5/§5).
package processor

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/speclab/schemacore/diag"
	"github.com/speclab/schemacore/document"
	"github.com/speclab/schemacore/pointer"
	"github.com/speclab/schemacore/refgraph"
	"github.com/speclab/schemacore/refresolver"
	"github.com/speclab/schemacore/schema"
	"github.com/speclab/schemacore/schemaindex"
)

// DefaultCacheCapacity is spec.md's default ProcessedSchema cache size.
const DefaultCacheCapacity = 10_000

// MetaschemaValidateFunc lets a caller wire RuntimeValidator in without
// processor importing the validator package (which itself depends on
// ProcessedSchema): it validates schemaAsData against meta and returns any
// failures as Diagnostics already tagged attribution=spec.
type MetaschemaValidateFunc func(meta *schema.Schema, schemaAsData document.Value) []diag.Diagnostic

// Options configures a Processor, mirroring the teacher's Compiler fields
// (DefaultBaseURI, AssertFormat) generalized to this module's needs.
type Options struct {
	BaseURI          string
	Metaschema       *schema.Schema
	ValidateMeta     MetaschemaValidateFunc
	CacheCapacity    int
	MaxIndexDepth    int
	RegexStepLimit   int
}

func (o Options) withDefaults() Options {
	if o.CacheCapacity <= 0 {
		o.CacheCapacity = DefaultCacheCapacity
	}
	if o.MaxIndexDepth <= 0 {
		o.MaxIndexDepth = schemaindex.MaxDepth
	}
	if o.RegexStepLimit <= 0 {
		o.RegexStepLimit = 1_000_000
	}
	return o
}

// RefInfo groups the reference-analysis outputs spec.md's ProcessedSchema
// data model names.
type RefInfo struct {
	Resolved     map[string]string   // ref -> canonical pointer string of its target
	Cyclic       map[string]bool     // ref -> participates in a cycle
	Dependencies map[string][]string // ref -> refs it depends on
}

// ProcessedSchema is the result of processing a Schema against a Document.
type ProcessedSchema struct {
	Root         *schema.Schema
	BySubPointer map[string]*schema.Schema
	Refs         RefInfo
	MaxDepth     int
	Diagnostics  []diag.Diagnostic

	doc           document.Value
	canonicalRoot string
}

// Doc returns the borrowed document this ProcessedSchema was built from, so
// collaborators (RuntimeValidator, ResponseGenerator) can dereference
// acyclic refs via Refs.Resolved.
func (ps *ProcessedSchema) Doc() document.Value { return ps.doc }

// CanonicalRoot returns the cache key (canonical pointer) this
// ProcessedSchema was processed under.
func (ps *ProcessedSchema) CanonicalRoot() string { return ps.canonicalRoot }

// Processor is the stateful façade owning the cache and the reference
// graph for a given document.
type Processor struct {
	opts  Options
	cache *lru.Cache[string, *ProcessedSchema]

	// graphs is keyed by document identity (the root Value, which for every
	// realistic OpenAPI document is a *document.Object and therefore a
	// valid, stable map key) so a multi-root ProcessDocument call builds
	// the reference graph once.
	graphs map[document.Value]*refgraph.Graph
}

// New constructs a Processor. opts.CacheCapacity <= 0 uses
// DefaultCacheCapacity.
func New(opts Options) *Processor {
	opts = opts.withDefaults()
	cache, _ := lru.New[string, *ProcessedSchema](opts.CacheCapacity)
	return &Processor{opts: opts, cache: cache, graphs: make(map[document.Value]*refgraph.Graph)}
}

func (p *Processor) graphFor(doc document.Value) *refgraph.Graph {
	if g, ok := p.graphs[doc]; ok {
		return g
	}
	g := refgraph.Build(doc)
	p.graphs[doc] = g
	return g
}

// Process builds a ProcessedSchema for the schema found at root within doc,
// memoized by canonical pointer. Calling Process twice with the same doc
// identity and root returns the cached result without redoing any work.
// It is equivalent to ProcessCtx(context.Background(), doc, root).
func (p *Processor) Process(doc document.Value, root pointer.Pointer) (*ProcessedSchema, error) {
	return p.ProcessCtx(context.Background(), doc, root)
}

// ProcessCtx is Process with cooperative cancellation, per spec.md §5: a
// cancelled ctx aborts processing before any work is done and a cached
// result is never returned for a call made with an already-cancelled ctx.
func (p *Processor) ProcessCtx(ctx context.Context, doc document.Value, root pointer.Pointer) (*ProcessedSchema, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("processor: %w", diag.ErrCancelled)
	}
	canonical := "#" + pointer.Format(root)
	if cached, ok := p.cache.Get(canonical); ok {
		return cached, nil
	}

	rawSchema, err := pointer.Resolve(doc, root)
	if err != nil {
		return nil, fmt.Errorf("processor: resolving root %s: %w", canonical, err)
	}
	built, err := schema.Build(rawSchema)
	if err != nil {
		return nil, fmt.Errorf("processor: building schema at %s: %w", canonical, err)
	}

	ps := &ProcessedSchema{
		doc:           doc,
		canonicalRoot: canonical,
		BySubPointer:  make(map[string]*schema.Schema),
		Refs: RefInfo{
			Resolved:     make(map[string]string),
			Cyclic:       make(map[string]bool),
			Dependencies: make(map[string][]string),
		},
	}

	idx := schemaindex.IndexCtx(ctx, built)
	ps.Root = built
	ps.BySubPointer = idx.SubPointers
	ps.MaxDepth = idx.MaxDepth
	ps.Diagnostics = append(ps.Diagnostics, idx.Diagnostics...)

	graph := p.graphFor(doc)

	for sub, refs := range idx.RefsPerNode {
		node := idx.SubPointers[sub]
		for _, ref := range refs {
			p.resolveOneRef(ps, graph, doc, node, ref)
		}
	}

	ps.Diagnostics = append(ps.Diagnostics, structuralDiagnostics(idx)...)

	if p.opts.Metaschema != nil && p.opts.ValidateMeta != nil {
		for _, d := range p.opts.ValidateMeta(p.opts.Metaschema, rawSchema) {
			d.Attribution = diag.AttributionSpec
			ps.Diagnostics = append(ps.Diagnostics, d)
		}
	}

	p.cache.Add(canonical, ps)
	return ps, nil
}

// resolveOneRef records ref's resolution outcome on ps: acyclic refs get
// their target pointer recorded for lazy dereference; cyclic refs mutate
// node in place into an AllowAny cycle placeholder annotated with ref,
// preserving Go pointer identity so every other reference to node observes
// the substitution.
func (p *Processor) resolveOneRef(ps *ProcessedSchema, graph *refgraph.Graph, doc document.Value, node *schema.Schema, ref string) {
	parsed, err := refresolver.ParseRef(ref)
	if err != nil {
		ps.Diagnostics = append(ps.Diagnostics, refresolver.ToDiagnostic(err.(*refresolver.Error)))
		return
	}
	if parsed.IsAnchor {
		// Anchor resolution is schema-level (needs $anchor/$dynamicAnchor
		// tables), handled by RuntimeValidator's dynamic scope, not here.
		return
	}

	if graph.IsCyclic(ref) {
		ps.Refs.Cyclic[ref] = true
		if node.Kind == schema.KindObject {
			node.Kind = schema.KindAllowAny
			node.CyclePlaceholderRef = ref
		}
		ps.Refs.Dependencies[ref] = graph.Edges(ref)
		return
	}

	if !pointer.Exists(doc, parsed.Pointer) {
		ps.Diagnostics = append(ps.Diagnostics, diag.Errorf(
			"ref-not-found", diag.Reference, ref, "reference target does not exist in the document"))
		return
	}

	ps.Refs.Resolved[ref] = pointer.Format(parsed.Pointer)
	ps.Refs.Dependencies[ref] = graph.Edges(ref)
}

// structuralDiagnostics emits unknown-keyword (info) and conflicting/
// unsatisfiable-constraint (warning) diagnostics over an already-indexed
// schema tree.
func structuralDiagnostics(idx *schemaindex.Index) []diag.Diagnostic {
	var out []diag.Diagnostic

	subs := make([]string, 0, len(idx.SubPointers))
	for sub := range idx.SubPointers {
		subs = append(subs, sub)
	}
	sort.Strings(subs)

	for _, sub := range subs {
		node := idx.SubPointers[sub]
		if node == nil || node.Kind != schema.KindObject {
			continue
		}
		for key := range node.Extra {
			out = append(out, diag.Infof("unknown-keyword", diag.SchemaStructure, sub,
				"unrecognized keyword %q", key))
		}
		if node.Minimum != nil && node.Maximum != nil && *node.Minimum > *node.Maximum {
			out = append(out, diag.Warnf("unsatisfiable-bounds", diag.SchemaStructure, sub,
				"minimum %v is greater than maximum %v", *node.Minimum, *node.Maximum))
		}
		if node.MinLength != nil && node.MaxLength != nil && *node.MinLength > *node.MaxLength {
			out = append(out, diag.Warnf("unsatisfiable-length", diag.SchemaStructure, sub,
				"minLength %d is greater than maxLength %d", *node.MinLength, *node.MaxLength))
		}
		if node.MinItems != nil && node.MaxItems != nil && *node.MinItems > *node.MaxItems {
			out = append(out, diag.Warnf("unsatisfiable-items", diag.SchemaStructure, sub,
				"minItems %d is greater than maxItems %d", *node.MinItems, *node.MaxItems))
		}
		if conflict := typeConflict(node); conflict != "" {
			out = append(out, diag.Warnf("conflicting-keywords", diag.SchemaStructure, sub, "%s", conflict))
		}
	}
	return out
}

func typeConflict(node *schema.Schema) string {
	if len(node.Type) != 1 {
		return ""
	}
	t := node.Type[0]
	arrayOnly := node.Items != nil || node.PrefixItems != nil || node.Contains != nil ||
		node.MinItems != nil || node.MaxItems != nil || node.UniqueItems
	objectOnly := node.Properties != nil || node.PatternProperties != nil ||
		node.Required != nil || node.MinProperties != nil || node.MaxProperties != nil
	stringOnly := node.MinLength != nil || node.MaxLength != nil || node.HasPattern
	numericOnly := node.Minimum != nil || node.Maximum != nil ||
		node.ExclusiveMinimum != nil || node.ExclusiveMaximum != nil || node.MultipleOf != nil

	switch t {
	case "string":
		if arrayOnly || objectOnly || numericOnly {
			return fmt.Sprintf("type %q declared alongside array/object/numeric-only keywords", t)
		}
	case "number", "integer":
		if arrayOnly || objectOnly || stringOnly {
			return fmt.Sprintf("type %q declared alongside array/object/string-only keywords", t)
		}
	case "array":
		if objectOnly || stringOnly || numericOnly {
			return fmt.Sprintf("type %q declared alongside object/string/numeric-only keywords", t)
		}
	case "object":
		if arrayOnly || stringOnly || numericOnly {
			return fmt.Sprintf("type %q declared alongside array/string/numeric-only keywords", t)
		}
	case "boolean", "null":
		if arrayOnly || objectOnly || stringOnly || numericOnly {
			return fmt.Sprintf("type %q declared alongside value-bearing keywords", t)
		}
	}
	return ""
}

// DiscoverRoots locates every schema root a full OpenAPI document should be
// processed for: every member of components.schemas, plus every inline
// object reachable under paths whose key is literally "schema" (request
// bodies, parameters, and response content all nest schemas this way).
// Returned pointers are deduplicated and sorted for determinism.
func DiscoverRoots(doc document.Value) []pointer.Pointer {
	seen := make(map[string]bool)
	var roots []pointer.Pointer
	add := func(p pointer.Pointer) {
		f := pointer.Format(p)
		if !seen[f] {
			seen[f] = true
			roots = append(roots, p)
		}
	}

	root, ok := doc.(*document.Object)
	if !ok {
		return nil
	}
	if components, ok := root.Get("components"); ok {
		if compObj, ok := components.(*document.Object); ok {
			if schemas, ok := compObj.Get("schemas"); ok {
				if schemasObj, ok := schemas.(*document.Object); ok {
					for _, name := range schemasObj.Keys() {
						add(pointer.Pointer{Segments: []string{"components", "schemas", name}})
					}
				}
			}
		}
	}
	if paths, ok := root.Get("paths"); ok {
		walkForSchemaKeys(paths, pointer.Pointer{Segments: []string{"paths"}}, add)
	}

	sort.Slice(roots, func(i, j int) bool {
		return pointer.Format(roots[i]) < pointer.Format(roots[j])
	})
	return roots
}

func walkForSchemaKeys(v document.Value, p pointer.Pointer, add func(pointer.Pointer)) {
	switch document.KindOf(v) {
	case document.KindObject:
		obj := v.(*document.Object)
		obj.Range(func(k string, child document.Value) bool {
			childPointer := p.Child(k)
			if k == "schema" {
				add(childPointer)
			}
			walkForSchemaKeys(child, childPointer, add)
			return true
		})
	case document.KindArray:
		for i, child := range v.([]document.Value) {
			walkForSchemaKeys(child, p.Child(strconv.Itoa(i)), add)
		}
	}
}

// ProcessDocument processes every root DiscoverRoots finds, in the
// reference graph's topological order restricted to refs that correspond to
// a root (so cross-root refs are already processed by the time a dependent
// root is reached), and returns a map from canonical ref ("#/..." pointer
// string) to ProcessedSchema.
func (p *Processor) ProcessDocument(doc document.Value) (map[string]*ProcessedSchema, error) {
	return p.ProcessDocumentCtx(context.Background(), doc)
}

// ProcessDocumentCtx is ProcessDocument with cooperative cancellation: ctx is
// checked once per root, the natural yield point for this outer loop per
// spec.md §5. A cancellation mid-run discards the remaining roots and
// returns the partial results gathered so far alongside ErrCancelled.
func (p *Processor) ProcessDocumentCtx(ctx context.Context, doc document.Value) (map[string]*ProcessedSchema, error) {
	roots := DiscoverRoots(doc)
	graph := p.graphFor(doc)
	order := graph.TopologicalOrder()

	rootByRef := make(map[string]pointer.Pointer, len(roots))
	for _, r := range roots {
		rootByRef["#"+pointer.Format(r)] = r
	}

	results := make(map[string]*ProcessedSchema, len(roots))
	processed := make(map[string]bool, len(roots))

	processRoot := func(ref string, r pointer.Pointer) error {
		if processed[ref] {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("processor: %w", diag.ErrCancelled)
		}
		ps, err := p.ProcessCtx(ctx, doc, r)
		if err != nil {
			return err
		}
		results[ref] = ps
		processed[ref] = true
		return nil
	}

	for _, ref := range order {
		if r, ok := rootByRef[ref]; ok {
			if err := processRoot(ref, r); err != nil {
				return results, err
			}
		}
	}
	// Any root not reachable through a $ref at all (e.g. an unreferenced
	// components.schemas entry) still needs processing.
	for ref, r := range rootByRef {
		if err := processRoot(ref, r); err != nil {
			return results, err
		}
	}
	return results, nil
}

// GetDiagnostics flattens every ProcessedSchema's diagnostics in the map
// into one ordered slice, roots processed in canonical-ref sorted order for
// determinism.
func GetDiagnostics(byRoot map[string]*ProcessedSchema) []diag.Diagnostic {
	refs := make([]string, 0, len(byRoot))
	for ref := range byRoot {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	var out []diag.Diagnostic
	for _, ref := range refs {
		out = append(out, byRoot[ref].Diagnostics...)
	}
	return out
}

// ResolveRef dereferences ref using ps.Refs.Resolved (an acyclic target
// pointer) and returns a freshly processed ProcessedSchema for it. When ref
// is cyclic it returns a nil ProcessedSchema with the bool result true.
func (p *Processor) ResolveRef(ps *ProcessedSchema, ref string) (*ProcessedSchema, bool, error) {
	if ps.Refs.Cyclic[ref] {
		return nil, true, nil
	}
	targetPointer, ok := ps.Refs.Resolved[ref]
	if !ok {
		return nil, false, fmt.Errorf("processor: ref %s was not resolved during processing", ref)
	}
	pp, err := pointer.Parse(targetPointer)
	if err != nil {
		return nil, false, err
	}
	result, err := p.Process(ps.doc, pp)
	return result, false, err
}
