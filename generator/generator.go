// Package generator implements ResponseGenerator: deterministic, seeded
// example-value generation against a processor.ProcessedSchema. Generation
// is a pure function of (schema, seed) — the per-call RNG is never shared
// across calls, mirroring validator's fresh-Context-per-call discipline.
package generator

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/speclab/schemacore/diag"
	"github.com/speclab/schemacore/document"
	"github.com/speclab/schemacore/processor"
	"github.com/speclab/schemacore/schema"
)

// DefaultMaxDepth bounds recursive generation, per spec.md §4.7.
const DefaultMaxDepth = 16

// Options configures a single generate call.
type Options struct {
	Seed           int64
	MaxDepth       int
	PreferExamples bool // withDefaults leaves it as given (false if unset); when false, examples/defaults are preferred only at depth 0
}

func (o Options) withDefaults() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	return o
}

// typePreference is the deterministic tie-break order spec.md §4.7 step 3
// names when a schema's `type` names more than one JSON type.
var typePreference = []string{"object", "array", "string", "number", "integer", "boolean", "null"}

// rng is a small linear-congruential generator, good enough for
// deterministic, seedable, non-cryptographic example selection — the
// standard library's math/rand would work equally well, but a private
// generator keeps every call's sequence independent of any global state
// without needing a *rand.Rand allocation per node.
type rng struct{ state uint64 }

func newRNG(seed int64) *rng {
	s := uint64(seed)
	if s == 0 {
		s = 0x9e3779b97f4a7c15
	}
	return &rng{state: s}
}

func (r *rng) next() uint64 {
	r.state = r.state*6364136223846793005 + 1442695040888963407
	x := r.state
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	return x
}

func (r *rng) intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.next() % uint64(n))
}

func (r *rng) float64() float64 {
	return float64(r.next()>>11) / (1 << 53)
}

// Context carries per-call transient state.
type Context struct {
	Proc        *processor.Processor
	Opts        Options
	rng         *rng
	diagnostics []diag.Diagnostic
}

// Generate produces a Value satisfying ps's root schema whenever it is
// satisfiable, per spec.md §4.7.
func Generate(ps *processor.ProcessedSchema, proc *processor.Processor, opts Options) (document.Value, []diag.Diagnostic) {
	opts = opts.withDefaults()
	ctx := &Context{Proc: proc, Opts: opts, rng: newRNG(opts.Seed)}
	value := generateNode(ctx, ps, ps.Root, 0)
	return value, ctx.diagnostics
}

func (c *Context) warn(code, pointer, message string) {
	c.diagnostics = append(c.diagnostics, diag.Warnf(code, diag.SchemaStructure, pointer, "%s", message))
}

func generateNode(ctx *Context, ps *processor.ProcessedSchema, s *schema.Schema, depth int) document.Value {
	if s == nil {
		return nil
	}
	if s.Kind == schema.KindDenyAll {
		ctx.warn("unsatisfiable-schema", s.SourcePointer, "schema is `false`; no value satisfies it")
		return nil
	}
	if s.Kind == schema.KindAllowAny {
		if s.CyclePlaceholderRef != "" {
			return minimalCycleValue(s)
		}
		return nil
	}

	if s.Ref != "" {
		target, isCyclic, err := ctx.Proc.ResolveRef(ps, s.Ref)
		if isCyclic {
			return minimalCycleValue(s)
		}
		if err == nil {
			return generateNode(ctx, target, target.Root, depth)
		}
	}

	if depth >= ctx.Opts.MaxDepth {
		return minimalValueFor(s)
	}

	if ctx.Opts.PreferExamples || depth == 0 {
		if v, ok := preferredLiteral(s); ok {
			return v
		}
	}

	if s.HasConst {
		return s.Const
	}
	if s.HasEnum && len(s.Enum) > 0 {
		return s.Enum[ctx.rng.intn(len(s.Enum))]
	}
	if s.HasEnum && len(s.Enum) == 0 {
		ctx.warn("empty-enum", s.SourcePointer, "enum has no members; cannot pick a value")
		return nil
	}

	if merged := mergedAllOf(s); merged != nil {
		s = merged
	}

	if len(s.OneOf) > 0 {
		return generateNode(ctx, ps, s.OneOf[ctx.rng.intn(len(s.OneOf))], depth+1)
	}
	if len(s.AnyOf) > 0 {
		return generateNode(ctx, ps, s.AnyOf[ctx.rng.intn(len(s.AnyOf))], depth+1)
	}

	t := pickType(ctx, s)
	switch t {
	case "object":
		return generateObject(ctx, ps, s, depth)
	case "array":
		return generateArray(ctx, ps, s, depth)
	case "string":
		return generateString(ctx, s)
	case "number", "integer":
		return generateNumber(ctx, s, t == "integer")
	case "boolean":
		return ctx.rng.intn(2) == 0
	case "null":
		return nil
	default:
		return nil
	}
}

// minimalCycleValue returns the smallest value consistent with a cycle
// placeholder's originating context: an empty object if s (the placeholder
// node, or the $ref node that pointed at a cyclic target) declares an
// object type or carries object-only keywords, else null, per spec.md §4.7
// step 6.
func minimalCycleValue(s *schema.Schema) document.Value {
	for _, t := range s.Type {
		if t == "object" {
			return document.NewObject()
		}
	}
	if s.Properties != nil || len(s.Required) > 0 {
		return document.NewObject()
	}
	return nil
}

func minimalValueFor(s *schema.Schema) document.Value {
	if s.HasDefault {
		return s.Default
	}
	for _, t := range s.Type {
		switch t {
		case "object":
			return document.NewObject()
		case "array":
			return []document.Value{}
		case "string":
			return ""
		case "number", "integer":
			return 0.0
		case "boolean":
			return false
		}
	}
	return nil
}

func preferredLiteral(s *schema.Schema) (document.Value, bool) {
	if len(s.Examples) > 0 {
		return s.Examples[0], true
	}
	if s.HasDefault {
		return s.Default, true
	}
	return nil, false
}

// mergedAllOf shallow-merges every allOf branch into a synthetic Schema per
// spec.md §4.7 step 5: properties union, required union, intersected
// minimum/maximum, and the first branch type when s declares none. Only one
// level is merged: a branch's own allOf (or other composition keywords) is
// not consulted, and the merged schema's allOf is cleared.
func mergedAllOf(s *schema.Schema) *schema.Schema {
	if len(s.AllOf) == 0 {
		return nil
	}
	merged := *s
	merged.AllOf = nil

	props := map[string]*schema.Schema{}
	var propOrder []string
	required := map[string]bool{}
	var requiredOrder []string

	addBranch := func(b *schema.Schema) {
		if b.Properties != nil {
			for _, k := range b.Properties.Keys() {
				if _, seen := props[k]; !seen {
					propOrder = append(propOrder, k)
				}
				v, _ := b.Properties.Get(k)
				props[k] = v
			}
		}
		for _, r := range b.Required {
			if !required[r] {
				required[r] = true
				requiredOrder = append(requiredOrder, r)
			}
		}
		if b.Minimum != nil && (merged.Minimum == nil || *b.Minimum > *merged.Minimum) {
			merged.Minimum = b.Minimum
		}
		if b.Maximum != nil && (merged.Maximum == nil || *b.Maximum < *merged.Maximum) {
			merged.Maximum = b.Maximum
		}
		if len(b.Type) > 0 && len(merged.Type) == 0 {
			merged.Type = b.Type
		}
	}
	if s.Properties != nil || len(s.Required) > 0 {
		addBranch(s)
	}
	for _, branch := range s.AllOf {
		addBranch(branch)
	}

	if len(propOrder) > 0 {
		sm := schema.NewSchemaMap()
		for _, k := range propOrder {
			sm.Set(k, props[k])
		}
		merged.Properties = sm
	}
	merged.Required = requiredOrder
	return &merged
}

func pickType(ctx *Context, s *schema.Schema) string {
	if len(s.Type) == 0 {
		return "object"
	}
	if len(s.Type) == 1 {
		return s.Type[0]
	}
	for _, pref := range typePreference {
		for _, t := range s.Type {
			if t == pref {
				return pref
			}
		}
	}
	return s.Type[0]
}

func generateNumber(ctx *Context, s *schema.Schema, integer bool) document.Value {
	lo, hi := 0.0, 100.0
	if s.Minimum != nil {
		lo = *s.Minimum
	}
	if s.ExclusiveMinimum != nil && *s.ExclusiveMinimum >= lo {
		lo = *s.ExclusiveMinimum + smallStep(integer)
	}
	if s.Maximum != nil {
		hi = *s.Maximum
	}
	if s.ExclusiveMaximum != nil && *s.ExclusiveMaximum <= hi {
		hi = *s.ExclusiveMaximum - smallStep(integer)
	}
	if lo > hi {
		ctx.warn("unsatisfiable-bounds", s.SourcePointer, "minimum exceeds maximum; returning nearest feasible value")
		return lo
	}

	if s.MultipleOf != nil && *s.MultipleOf > 0 {
		m := *s.MultipleOf
		start := math.Ceil(lo/m) * m
		if start > hi {
			ctx.warn("unsatisfiable-bounds", s.SourcePointer, "no multiple of multipleOf lies within the bounds; returning nearest feasible value")
			return lo
		}
		steps := int((hi - start) / m)
		value := start + float64(ctx.rng.intn(steps+1))*m
		if integer {
			value = math.Round(value)
		}
		return value
	}

	value := lo + ctx.rng.float64()*(hi-lo)
	if integer {
		value = math.Round(value)
		if value < lo {
			value = math.Ceil(lo)
		}
		if value > hi {
			value = math.Floor(hi)
		}
	}
	return value
}

func smallStep(integer bool) float64 {
	if integer {
		return 1
	}
	return 0.0001
}

func generateString(ctx *Context, s *schema.Schema) document.Value {
	if s.HasFormat {
		if v, ok := generateForFormat(ctx, s.Format); ok {
			return v
		}
	}
	if s.HasPattern {
		if v, ok := generateForPattern(s.Pattern); ok {
			return clampString(v, s.MinLength, s.MaxLength)
		}
		ctx.warn("unsupported-pattern", s.SourcePointer, "pattern shape not supported by the generator; using a placeholder string")
	}

	minLen := 1
	if s.MinLength != nil {
		minLen = *s.MinLength
	}
	maxLen := minLen + 8
	if s.MaxLength != nil {
		maxLen = *s.MaxLength
	}
	if minLen > maxLen {
		maxLen = minLen
	}
	length := minLen
	if maxLen > minLen {
		length = minLen + ctx.rng.intn(maxLen-minLen+1)
	}
	return randomASCII(ctx, length)
}

const asciiAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomASCII(ctx *Context, length int) string {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(asciiAlphabet[ctx.rng.intn(len(asciiAlphabet))])
	}
	return b.String()
}

func clampString(s string, minLen, maxLen *int) string {
	runes := []rune(s)
	if maxLen != nil && len(runes) > *maxLen {
		runes = runes[:*maxLen]
	}
	for minLen != nil && len(runes) < *minLen {
		runes = append(runes, 'x')
	}
	return string(runes)
}

// generateForFormat produces a canonical instance for well-known formats,
// wiring google/uuid for `uuid` per SPEC_FULL.md's domain stack.
func generateForFormat(ctx *Context, format string) (document.Value, bool) {
	switch format {
	case "uuid":
		seedBytes := [16]byte{}
		for i := range seedBytes {
			seedBytes[i] = byte(ctx.rng.next())
		}
		id, err := uuid.FromBytes(seedBytes[:])
		if err != nil {
			return nil, false
		}
		return id.String(), true
	case "email":
		return randomASCII(ctx, 6) + "@example.com", true
	case "date":
		return "2020-01-01", true
	case "date-time":
		return "2020-01-01T00:00:00Z", true
	case "time":
		return "00:00:00Z", true
	case "hostname":
		return "example.com", true
	case "ipv4":
		return "192.0.2.1", true
	case "ipv6":
		return "2001:db8::1", true
	case "uri":
		return "https://example.com/resource", true
	default:
		return nil, false
	}
}

// generateForPattern supports a small, documented subset of regex shapes:
// literal strings (no metacharacters) and simple anchored character-class
// repetitions like `^[A-Z]{3}$`. Anything else falls back to the bounded
// ASCII generator in generateString.
func generateForPattern(pattern string) (string, bool) {
	p := strings.TrimPrefix(strings.TrimSuffix(pattern, "$"), "^")
	if !strings.ContainsAny(p, `.*+?()[]{}\|`) {
		return p, true
	}
	if strings.HasPrefix(p, "[") {
		closeIdx := strings.Index(p, "]")
		if closeIdx > 0 && closeIdx+1 < len(p) && p[closeIdx+1] == '{' {
			classBody := p[1:closeIdx]
			braceEnd := strings.Index(p[closeIdx:], "}")
			if braceEnd > 0 {
				countStr := p[closeIdx+2 : closeIdx+braceEnd]
				count, err := strconv.Atoi(countStr)
				if err == nil && count > 0 && count < 256 {
					ch := firstClassChar(classBody)
					return strings.Repeat(string(ch), count), true
				}
			}
		}
	}
	return "", false
}

func firstClassChar(classBody string) rune {
	if classBody == "" {
		return 'A'
	}
	if len(classBody) >= 3 && classBody[1] == '-' {
		return rune(classBody[0])
	}
	return rune(classBody[0])
}

func generateArray(ctx *Context, ps *processor.ProcessedSchema, s *schema.Schema, depth int) document.Value {
	length := 1
	if s.MinItems != nil {
		length = *s.MinItems
	}
	if s.MaxItems != nil && length > *s.MaxItems {
		length = *s.MaxItems
	}

	itemSchema := s.Items
	out := make([]document.Value, 0, length)

	for i := 0; i < len(s.PrefixItems) && i < length; i++ {
		out = append(out, generateNode(ctx, ps, s.PrefixItems[i], depth+1))
	}
	for len(out) < length {
		if itemSchema == nil {
			out = append(out, nil)
			continue
		}
		out = append(out, generateNode(ctx, ps, itemSchema, depth+1))
	}

	if s.UniqueItems {
		out = dedupeBounded(ctx, ps, s, out, depth)
	}
	return out
}

// dedupeBounded regenerates duplicate elements up to a fixed attempt budget,
// widening nothing further than retrying generation — matching spec.md
// §4.7 step 4's "keep regenerating (bounded attempts)" guidance.
func dedupeBounded(ctx *Context, ps *processor.ProcessedSchema, s *schema.Schema, arr []document.Value, depth int) []document.Value {
	const maxAttempts = 10
	seen := map[string]bool{}
	for i, v := range arr {
		key := fingerprint(v)
		attempts := 0
		for seen[key] && attempts < maxAttempts {
			itemSchema := s.Items
			if i < len(s.PrefixItems) {
				itemSchema = s.PrefixItems[i]
			}
			if itemSchema == nil {
				break
			}
			v = generateNode(ctx, ps, itemSchema, depth+1)
			key = fingerprint(v)
			attempts++
		}
		seen[key] = true
		arr[i] = v
	}
	return arr
}

func fingerprint(v document.Value) string {
	switch document.KindOf(v) {
	case document.KindString:
		return "s:" + v.(string)
	case document.KindNumber:
		return "n:" + strconv.FormatFloat(toFloat(v), 'g', -1, 64)
	case document.KindBool:
		return "b:" + strconv.FormatBool(v.(bool))
	case document.KindNull:
		return "null"
	default:
		return "?"
	}
}

func toFloat(v document.Value) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func generateObject(ctx *Context, ps *processor.ProcessedSchema, s *schema.Schema, depth int) document.Value {
	obj := document.NewObject()
	included := map[string]bool{}

	for _, req := range s.Required {
		var propSchema *schema.Schema
		if s.Properties != nil {
			propSchema, _ = s.Properties.Get(req)
		}
		obj.Set(req, generateNode(ctx, ps, propSchema, depth+1))
		included[req] = true
	}

	maxProps := -1
	if s.MaxProperties != nil {
		maxProps = *s.MaxProperties
	}

	if s.Properties != nil {
		keys := append([]string(nil), s.Properties.Keys()...)
		sort.Strings(keys)
		for _, key := range keys {
			if included[key] {
				continue
			}
			if maxProps >= 0 && obj.Len() >= maxProps {
				break
			}
			propSchema, _ := s.Properties.Get(key)
			obj.Set(key, generateNode(ctx, ps, propSchema, depth+1))
			included[key] = true
		}
	}

	if minProps := s.MinProperties; minProps != nil {
		for obj.Len() < *minProps {
			synthetic := "extra" + strconv.Itoa(obj.Len())
			obj.Set(synthetic, nil)
		}
	}
	return obj
}
