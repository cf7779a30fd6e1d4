// Package validator implements RuntimeValidator: validating arbitrary data
// against a processor.ProcessedSchema, covering every JSON Schema 2020-12
// keyword spec.md §4.6 names. Evaluation is recursive descent: object
// properties, array items, $ref targets and composition/conditional
// branches (allOf/anyOf/oneOf/not/if-then-else) are each evaluated through
// a nested evaluateNode call. No explicit work stack is used, so the host
// call stack grows with the nesting depth of the instance and the schema.
package validator

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"

	"github.com/speclab/schemacore/diag"
	"github.com/speclab/schemacore/document"
	"github.com/speclab/schemacore/pointer"
	"github.com/speclab/schemacore/processor"
	"github.com/speclab/schemacore/schema"
)

// ValidationError is a single keyword failure, matching spec.md §3 exactly.
type ValidationError struct {
	DataPointer   string
	SchemaPointer string
	Keyword       string
	Message       string
	Expected      document.Value
	Actual        document.Value
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (at %s, schema %s)", e.Keyword, e.Message, e.DataPointer, e.SchemaPointer)
}

// InvariantError is returned (not accumulated) when a ProcessedSchema
// violates its own internal contract.
type InvariantError struct {
	Message string
}

func (e *InvariantError) Error() string { return "invariant violation: " + e.Message }

// cancelledError is the panic used to unwind out of nested evaluateNode calls
// when the caller's context is done, mirroring InvariantError's recover-based
// abort path per spec.md §7 ("cancelled" is the one other kind allowed to
// halt processing rather than accumulate).
type cancelledError struct{}

func (cancelledError) Error() string { return diag.ErrCancelled.Error() }

// multipleOfTolerance bounds the floating-point slack multipleOf checks
// allow, per spec.md §4.6 ("≤1e-12").
const multipleOfTolerance = 1e-12

// Context carries per-call transient state: the processor needed to
// lazily dereference acyclic $refs, the dynamic scope stack for
// $dynamicRef/$dynamicAnchor, and the regex step budget. A fresh Context is
// created per Validate call; nothing here is shared across calls.
type Context struct {
	Proc           *processor.Processor
	RegexStepLimit int
	Ctx            context.Context

	dynamicScope []*schema.Schema
	visitedRefs  map[string]int
}

// Validate validates data against ps's root schema and returns every
// keyword violation found. It never returns an error for data problems;
// only a ProcessedSchema invariant violation panics-turned-error via
// recover, matching spec.md §7 ("invariant... aborts the call"). It is
// equivalent to ValidateCtx(context.Background(), ps, proc, data).
func Validate(ps *processor.ProcessedSchema, proc *processor.Processor, data document.Value) (errs []ValidationError, err error) {
	return ValidateCtx(context.Background(), ps, proc, data)
}

// ValidateCtx is Validate with cooperative cancellation: ctx is checked at
// evaluateNode, the one recursion point reached by every property, item,
// $ref, and composition-branch evaluation. A cancellation mid-walk discards
// partial errors and returns ErrCancelled.
func ValidateCtx(ctx context.Context, ps *processor.ProcessedSchema, proc *processor.Processor, data document.Value) (errs []ValidationError, err error) {
	defer func() {
		if r := recover(); r != nil {
			if ie, ok := r.(*InvariantError); ok {
				err = ie
				return
			}
			if _, ok := r.(cancelledError); ok {
				err = fmt.Errorf("validator: %w", diag.ErrCancelled)
				errs = nil
				return
			}
			panic(r)
		}
	}()
	vctx := &Context{Proc: proc, Ctx: ctx, visitedRefs: make(map[string]int)}
	if ps == nil || ps.Root == nil {
		panic(&InvariantError{Message: "processed schema has no root"})
	}
	errs = evaluateNode(vctx, ps, ps.Root, data, pointer.Root(), "")
	return errs, nil
}

// evaluateNode evaluates s against data at dataPtr (schemaPtr is a
// human-readable schema-side pointer string for error attribution) and
// returns the accumulated violations.
func evaluateNode(ctx *Context, ps *processor.ProcessedSchema, s *schema.Schema, data document.Value, dataPtr pointer.Pointer, schemaPtr string) []ValidationError {
	if ctx.Ctx != nil {
		if err := ctx.Ctx.Err(); err != nil {
			panic(cancelledError{})
		}
	}
	if s == nil {
		return nil
	}
	switch s.Kind {
	case schema.KindAllowAny:
		return nil
	case schema.KindDenyAll:
		return []ValidationError{{
			DataPointer: pointer.Format(dataPtr), SchemaPointer: schemaPtr,
			Keyword: "false", Message: "schema is `false`; no value satisfies it",
		}}
	}

	if s.Ref != "" {
		return evaluateRef(ctx, ps, s, data, dataPtr, schemaPtr)
	}

	ev := newEvaluatedSet()
	return evaluateKeywords(ctx, ps, s, data, dataPtr, schemaPtr, ev)
}

// evaluateRef dereferences s.Ref (already resolved by processor into
// ps.Refs, or substituted with a cycle placeholder — in which case s.Kind
// would already be KindAllowAny and we'd never reach here) and validates
// against the target, tracking a visited count to guard any resolution
// path the processor's static cycle analysis didn't catch (e.g. refs
// spanning two different ProcessedSchema roots).
func evaluateRef(ctx *Context, ps *processor.ProcessedSchema, s *schema.Schema, data document.Value, dataPtr pointer.Pointer, schemaPtr string) []ValidationError {
	ref := s.Ref
	ctx.visitedRefs[ref]++
	defer func() { ctx.visitedRefs[ref]-- }()
	if ctx.visitedRefs[ref] > 64 {
		// Defensive bound; well-formed cycles are already short-circuited by
		// the processor's AllowAny placeholder before evaluateRef is ever
		// reached for them.
		return nil
	}

	target, isCyclic, err := ctx.Proc.ResolveRef(ps, ref)
	if isCyclic {
		return nil
	}
	if err != nil {
		return []ValidationError{{
			DataPointer: pointer.Format(dataPtr), SchemaPointer: schemaPtr,
			Keyword: "$ref", Message: "could not resolve reference " + ref,
		}}
	}
	ctx.dynamicScope = append(ctx.dynamicScope, s)
	defer func() { ctx.dynamicScope = ctx.dynamicScope[:len(ctx.dynamicScope)-1] }()
	return evaluateNode(ctx, target, target.Root, data, dataPtr, schemaPtr+"/$ref")
}

// evaluatedSet tracks, for a single instance location, which object
// properties and array indices have been "evaluated" by any in-place
// applicator (properties/patternProperties/additionalProperties/items/
// prefixItems/contains, or any composition/conditional branch applied to
// this same instance). unevaluatedProperties/unevaluatedItems consult it.
type evaluatedSet struct {
	properties map[string]bool
	items      map[int]bool
}

func newEvaluatedSet() *evaluatedSet {
	return &evaluatedSet{properties: make(map[string]bool), items: make(map[int]bool)}
}

func (e *evaluatedSet) mergeFrom(other *evaluatedSet) {
	for k := range other.properties {
		e.properties[k] = true
	}
	for k := range other.items {
		e.items[k] = true
	}
}

// evaluateKeywords runs every keyword check on s against data, threading a
// shared evaluatedSet through composition/conditional branches that apply
// to this same instance (allOf/anyOf/oneOf/if-then-else/dependentSchemas),
// and opening a fresh one for every genuinely nested instance (object
// property values, array elements). `not` is evaluated with its own set,
// which is never merged into ev.
func evaluateKeywords(ctx *Context, ps *processor.ProcessedSchema, s *schema.Schema, data document.Value, dataPtr pointer.Pointer, schemaPtr string, ev *evaluatedSet) []ValidationError {
	var errs []ValidationError

	errs = append(errs, evaluateType(s, data, dataPtr, schemaPtr)...)
	errs = append(errs, evaluateConstEnum(s, data, dataPtr, schemaPtr)...)
	errs = append(errs, evaluateNumeric(s, data, dataPtr, schemaPtr)...)
	errs = append(errs, evaluateString(s, data, dataPtr, schemaPtr)...)

	arr, isArr := data.([]document.Value)
	if isArr {
		errs = append(errs, evaluateArray(ctx, ps, s, arr, dataPtr, schemaPtr, ev)...)
	}
	obj, isObj := data.(*document.Object)
	if isObj {
		errs = append(errs, evaluateObject(ctx, ps, s, obj, dataPtr, schemaPtr, ev)...)
	}

	// allOf/anyOf/oneOf/if-then-else run before unevaluatedProperties/
	// unevaluatedItems below: per spec.md §4.6, a property or item evaluated
	// by any composition/conditional branch counts as evaluated, so ev must
	// be fully merged with every branch's evaluatedSet before those two
	// keywords check it.
	errs = append(errs, evaluateComposition(ctx, ps, s, data, dataPtr, schemaPtr, ev)...)
	errs = append(errs, evaluateConditional(ctx, ps, s, data, dataPtr, schemaPtr, ev)...)

	if isArr && s.UnevaluatedItems != nil {
		errs = append(errs, evaluateUnevaluatedItems(ctx, ps, s, arr, dataPtr, schemaPtr, ev)...)
	}
	if isObj && s.UnevaluatedProperties != nil {
		errs = append(errs, evaluateUnevaluatedProperties(ctx, ps, s, obj, dataPtr, schemaPtr, ev)...)
	}

	if s.DynamicRef != "" {
		errs = append(errs, evaluateDynamicRef(ctx, ps, s, data, dataPtr, schemaPtr)...)
	}

	return errs
}

func jsonTypeOf(v document.Value) string {
	switch document.KindOf(v) {
	case document.KindNull:
		return "null"
	case document.KindBool:
		return "boolean"
	case document.KindNumber:
		return "number"
	case document.KindString:
		return "string"
	case document.KindObject:
		return "object"
	case document.KindArray:
		return "array"
	default:
		return "unknown"
	}
}

func isInteger(v document.Value) bool {
	f, ok := asFloat(v)
	if !ok {
		return false
	}
	return f == math.Trunc(f) && !math.IsInf(f, 0)
}

func asFloat(v document.Value) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func evaluateType(s *schema.Schema, data document.Value, dataPtr pointer.Pointer, schemaPtr string) []ValidationError {
	if len(s.Type) == 0 {
		return nil
	}
	actual := jsonTypeOf(data)
	for _, t := range s.Type {
		if t == actual {
			return nil
		}
		if t == "integer" && actual == "number" && isInteger(data) {
			return nil
		}
		if t == "number" && actual == "number" {
			return nil
		}
	}
	return []ValidationError{{
		DataPointer: pointer.Format(dataPtr), SchemaPointer: schemaPtr + "/type",
		Keyword: "type", Message: fmt.Sprintf("expected type %v, got %s", s.Type, actual),
		Expected: s.Type, Actual: data,
	}}
}

func evaluateConstEnum(s *schema.Schema, data document.Value, dataPtr pointer.Pointer, schemaPtr string) []ValidationError {
	var errs []ValidationError
	if s.HasConst {
		if !document.Equal(s.Const, data) {
			errs = append(errs, ValidationError{
				DataPointer: pointer.Format(dataPtr), SchemaPointer: schemaPtr + "/const",
				Keyword: "const", Message: "value does not equal the required constant",
				Expected: s.Const, Actual: data,
			})
		}
	}
	if s.HasEnum {
		matched := false
		for _, candidate := range s.Enum {
			if document.Equal(candidate, data) {
				matched = true
				break
			}
		}
		if !matched {
			errs = append(errs, ValidationError{
				DataPointer: pointer.Format(dataPtr), SchemaPointer: schemaPtr + "/enum",
				Keyword: "enum", Message: "value does not match any enum member",
				Expected: s.Enum, Actual: data,
			})
		}
	}
	return errs
}

func evaluateNumeric(s *schema.Schema, data document.Value, dataPtr pointer.Pointer, schemaPtr string) []ValidationError {
	f, ok := asFloat(data)
	if !ok {
		return nil
	}
	var errs []ValidationError
	fail := func(keyword, message string) {
		errs = append(errs, ValidationError{
			DataPointer: pointer.Format(dataPtr), SchemaPointer: schemaPtr + "/" + keyword,
			Keyword: keyword, Message: message, Actual: data,
		})
	}
	if s.Minimum != nil && f < *s.Minimum {
		fail("minimum", fmt.Sprintf("%v is less than minimum %v", f, *s.Minimum))
	}
	if s.Maximum != nil && f > *s.Maximum {
		fail("maximum", fmt.Sprintf("%v is greater than maximum %v", f, *s.Maximum))
	}
	if s.ExclusiveMinimum != nil && !(f > *s.ExclusiveMinimum) {
		fail("exclusiveMinimum", fmt.Sprintf("%v is not strictly greater than exclusiveMinimum %v", f, *s.ExclusiveMinimum))
	}
	if s.ExclusiveMaximum != nil && !(f < *s.ExclusiveMaximum) {
		fail("exclusiveMaximum", fmt.Sprintf("%v is not strictly less than exclusiveMaximum %v", f, *s.ExclusiveMaximum))
	}
	if s.MultipleOf != nil && *s.MultipleOf != 0 {
		q := f / *s.MultipleOf
		if math.Abs(q-math.Round(q)) > multipleOfTolerance {
			fail("multipleOf", fmt.Sprintf("%v is not a multiple of %v", f, *s.MultipleOf))
		}
	}
	return errs
}

func evaluateString(s *schema.Schema, data document.Value, dataPtr pointer.Pointer, schemaPtr string) []ValidationError {
	str, ok := data.(string)
	if !ok {
		return nil
	}
	var errs []ValidationError
	fail := func(keyword, message string) {
		errs = append(errs, ValidationError{
			DataPointer: pointer.Format(dataPtr), SchemaPointer: schemaPtr + "/" + keyword,
			Keyword: keyword, Message: message, Actual: data,
		})
	}
	length := len([]rune(str))
	if s.MinLength != nil && length < *s.MinLength {
		fail("minLength", fmt.Sprintf("length %d is less than minLength %d", length, *s.MinLength))
	}
	if s.MaxLength != nil && length > *s.MaxLength {
		fail("maxLength", fmt.Sprintf("length %d is greater than maxLength %d", length, *s.MaxLength))
	}
	if s.HasPattern {
		re, err := s.CompiledPattern()
		if err != nil {
			fail("pattern", "pattern does not compile: "+err.Error())
		} else if !re.MatchString(str) {
			fail("pattern", fmt.Sprintf("value does not match pattern %q", s.Pattern))
		}
	}
	if s.HasFormat {
		if check, ok := formatCheckers[s.Format]; ok {
			if !check(str) {
				fail("format", fmt.Sprintf("value does not satisfy format %q", s.Format))
			}
		}
		// Unknown formats are silently accepted here; no diagnostic is
		// emitted for them, here or at processing time.
	}
	return errs
}

func evaluateArray(ctx *Context, ps *processor.ProcessedSchema, s *schema.Schema, arr []document.Value, dataPtr pointer.Pointer, schemaPtr string, ev *evaluatedSet) []ValidationError {
	var errs []ValidationError
	fail := func(keyword, message string) {
		errs = append(errs, ValidationError{
			DataPointer: pointer.Format(dataPtr), SchemaPointer: schemaPtr + "/" + keyword,
			Keyword: keyword, Message: message,
		})
	}
	if s.MinItems != nil && len(arr) < *s.MinItems {
		fail("minItems", fmt.Sprintf("array has %d items, fewer than minItems %d", len(arr), *s.MinItems))
	}
	if s.MaxItems != nil && len(arr) > *s.MaxItems {
		fail("maxItems", fmt.Sprintf("array has %d items, more than maxItems %d", len(arr), *s.MaxItems))
	}
	if s.UniqueItems {
		if dup := findDuplicateIndex(arr); dup >= 0 {
			fail("uniqueItems", fmt.Sprintf("items at index %d duplicate an earlier item", dup))
		}
	}

	for i, item := range s.PrefixItems {
		if i >= len(arr) {
			break
		}
		childErrs := evaluateNode(ctx, ps, item, arr[i], dataPtr.Child(strconv.Itoa(i)), schemaPtr+"/prefixItems/"+strconv.Itoa(i))
		errs = append(errs, childErrs...)
		ev.items[i] = true
	}
	if s.Items != nil {
		start := len(s.PrefixItems)
		if s.Items.Kind == schema.KindDenyAll && start < len(arr) {
			fail("items", "array has items beyond prefixItems but `items` is `false`")
		} else if s.Items.Kind != schema.KindDenyAll {
			for i := start; i < len(arr); i++ {
				childErrs := evaluateNode(ctx, ps, s.Items, arr[i], dataPtr.Child(strconv.Itoa(i)), schemaPtr+"/items")
				errs = append(errs, childErrs...)
				ev.items[i] = true
			}
		}
	}
	if s.Contains != nil {
		count := 0
		for i, item := range arr {
			if len(evaluateNode(ctx, ps, s.Contains, item, dataPtr.Child(strconv.Itoa(i)), schemaPtr+"/contains")) == 0 {
				count++
				ev.items[i] = true
			}
		}
		minContains := 1
		if s.MinContains != nil {
			minContains = *s.MinContains
		}
		if count < minContains {
			fail("minContains", fmt.Sprintf("only %d items match `contains`, fewer than minContains %d", count, minContains))
		}
		if s.MaxContains != nil && count > *s.MaxContains {
			fail("maxContains", fmt.Sprintf("%d items match `contains`, more than maxContains %d", count, *s.MaxContains))
		}
	}

	return errs
}

// evaluateUnevaluatedItems runs the `unevaluatedItems` keyword. It must run
// after evaluateComposition/evaluateConditional have merged every branch's
// evaluatedSet into ev, since an item evaluated by allOf/anyOf/oneOf/if-then-
// else counts as evaluated per spec.md §4.6.
func evaluateUnevaluatedItems(ctx *Context, ps *processor.ProcessedSchema, s *schema.Schema, arr []document.Value, dataPtr pointer.Pointer, schemaPtr string, ev *evaluatedSet) []ValidationError {
	var errs []ValidationError
	fail := func(keyword, message string) {
		errs = append(errs, ValidationError{
			DataPointer: pointer.Format(dataPtr), SchemaPointer: schemaPtr + "/" + keyword,
			Keyword: keyword, Message: message,
		})
	}
	for i, item := range arr {
		if ev.items[i] {
			continue
		}
		if s.UnevaluatedItems.Kind == schema.KindDenyAll {
			fail("unevaluatedItems", fmt.Sprintf("item at index %d was not evaluated by any applicator", i))
			continue
		}
		childErrs := evaluateNode(ctx, ps, s.UnevaluatedItems, item, dataPtr.Child(strconv.Itoa(i)), schemaPtr+"/unevaluatedItems")
		errs = append(errs, childErrs...)
		ev.items[i] = true
	}
	return errs
}

func findDuplicateIndex(arr []document.Value) int {
	seen := make(map[string][]int, len(arr))
	for i, item := range arr {
		key := normalizeForUniqueness(item)
		seen[key] = append(seen[key], i)
	}
	best := -1
	for _, indices := range seen {
		if len(indices) > 1 {
			if best == -1 || indices[1] < best {
				best = indices[1]
			}
		}
	}
	return best
}

// normalizeForUniqueness renders a deterministic key for deep-equality
// comparisons; unlike document.Equal (pairwise), uniqueItems needs an
// O(n log n)-friendly hash, so object keys are sorted before rendering.
func normalizeForUniqueness(v document.Value) string {
	switch document.KindOf(v) {
	case document.KindNull:
		return "n"
	case document.KindBool:
		if v.(bool) {
			return "b:1"
		}
		return "b:0"
	case document.KindNumber:
		f, _ := asFloat(v)
		return "f:" + strconv.FormatFloat(f, 'g', -1, 64)
	case document.KindString:
		return "s:" + strconv.Quote(v.(string))
	case document.KindArray:
		arr := v.([]document.Value)
		out := "a:["
		for i, e := range arr {
			if i > 0 {
				out += ","
			}
			out += normalizeForUniqueness(e)
		}
		return out + "]"
	case document.KindObject:
		obj := v.(*document.Object)
		keys := append([]string(nil), obj.Keys()...)
		sort.Strings(keys)
		out := "o:{"
		for i, k := range keys {
			if i > 0 {
				out += ","
			}
			val, _ := obj.Get(k)
			out += strconv.Quote(k) + ":" + normalizeForUniqueness(val)
		}
		return out + "}"
	default:
		return "?"
	}
}

func evaluateObject(ctx *Context, ps *processor.ProcessedSchema, s *schema.Schema, obj *document.Object, dataPtr pointer.Pointer, schemaPtr string, ev *evaluatedSet) []ValidationError {
	var errs []ValidationError
	fail := func(keyword, message string) {
		errs = append(errs, ValidationError{
			DataPointer: pointer.Format(dataPtr), SchemaPointer: schemaPtr + "/" + keyword,
			Keyword: keyword, Message: message,
		})
	}

	if s.MinProperties != nil && obj.Len() < *s.MinProperties {
		fail("minProperties", fmt.Sprintf("object has %d properties, fewer than minProperties %d", obj.Len(), *s.MinProperties))
	}
	if s.MaxProperties != nil && obj.Len() > *s.MaxProperties {
		fail("maxProperties", fmt.Sprintf("object has %d properties, more than maxProperties %d", obj.Len(), *s.MaxProperties))
	}
	for _, req := range s.Required {
		if !obj.Has(req) {
			fail("required", fmt.Sprintf("missing required property %q", req))
		}
	}
	for key, deps := range s.DependentRequired {
		if !obj.Has(key) {
			continue
		}
		for _, dep := range deps {
			if !obj.Has(dep) {
				fail("dependentRequired", fmt.Sprintf("property %q requires %q to also be present", key, dep))
			}
		}
	}

	var patternRegexes []patternEntry
	if s.PatternProperties != nil {
		for _, pat := range s.PatternProperties.Keys() {
			re, err := compiledPattern(pat)
			if err == nil {
				sub, _ := s.PatternProperties.Get(pat)
				patternRegexes = append(patternRegexes, patternEntry{re: re, schema: sub})
			}
		}
	}

	for _, key := range obj.Keys() {
		val, _ := obj.Get(key)
		childPtr := dataPtr.Child(key)
		matchedAny := false

		if s.Properties != nil {
			if propSchema, ok := s.Properties.Get(key); ok {
				errs = append(errs, evaluateNode(ctx, ps, propSchema, val, childPtr, schemaPtr+"/properties/"+key)...)
				ev.properties[key] = true
				matchedAny = true
			}
		}
		for _, pe := range patternRegexes {
			if pe.re.MatchString(key) {
				errs = append(errs, evaluateNode(ctx, ps, pe.schema, val, childPtr, schemaPtr+"/patternProperties")...)
				ev.properties[key] = true
				matchedAny = true
			}
		}
		if !matchedAny && s.AdditionalProperties != nil {
			if s.AdditionalProperties.Kind == schema.KindDenyAll {
				fail("additionalProperties", fmt.Sprintf("property %q is not allowed", key))
			} else {
				errs = append(errs, evaluateNode(ctx, ps, s.AdditionalProperties, val, childPtr, schemaPtr+"/additionalProperties")...)
			}
			ev.properties[key] = true
		}
	}

	if s.PropertyNames != nil {
		for _, key := range obj.Keys() {
			errs = append(errs, evaluateNode(ctx, ps, s.PropertyNames, key, dataPtr.Child(key), schemaPtr+"/propertyNames")...)
		}
	}

	return errs
}

// evaluateUnevaluatedProperties runs the `unevaluatedProperties` keyword. It
// must run after evaluateComposition/evaluateConditional have merged every
// branch's evaluatedSet into ev, since a property evaluated by
// allOf/anyOf/oneOf/if-then-else counts as evaluated per spec.md §4.6.
func evaluateUnevaluatedProperties(ctx *Context, ps *processor.ProcessedSchema, s *schema.Schema, obj *document.Object, dataPtr pointer.Pointer, schemaPtr string, ev *evaluatedSet) []ValidationError {
	var errs []ValidationError
	fail := func(keyword, message string) {
		errs = append(errs, ValidationError{
			DataPointer: pointer.Format(dataPtr), SchemaPointer: schemaPtr + "/" + keyword,
			Keyword: keyword, Message: message,
		})
	}
	for _, key := range obj.Keys() {
		if ev.properties[key] {
			continue
		}
		val, _ := obj.Get(key)
		childPtr := dataPtr.Child(key)
		if s.UnevaluatedProperties.Kind == schema.KindDenyAll {
			fail("unevaluatedProperties", fmt.Sprintf("property %q was not evaluated by any applicator", key))
			continue
		}
		errs = append(errs, evaluateNode(ctx, ps, s.UnevaluatedProperties, val, childPtr, schemaPtr+"/unevaluatedProperties")...)
		ev.properties[key] = true
	}
	return errs
}

type patternEntry struct {
	re     *regexp.Regexp
	schema *schema.Schema
}

// compiledPattern compiles pat. patternProperties keys are a small, bounded
// set per schema node, so they are compiled on demand rather than cached on
// the Schema the way the single Pattern keyword is.
func compiledPattern(pat string) (*regexp.Regexp, error) {
	return regexp.Compile(pat)
}

func evaluateComposition(ctx *Context, ps *processor.ProcessedSchema, s *schema.Schema, data document.Value, dataPtr pointer.Pointer, schemaPtr string, ev *evaluatedSet) []ValidationError {
	var errs []ValidationError

	if len(s.AllOf) > 0 {
		for i, branch := range s.AllOf {
			branchEv := newEvaluatedSet()
			branchErrs := evaluateKeywords(ctx, ps, branch, data, dataPtr, fmt.Sprintf("%s/allOf/%d", schemaPtr, i), branchEv)
			errs = append(errs, branchErrs...)
			ev.mergeFrom(branchEv)
		}
	}

	if len(s.AnyOf) > 0 {
		matched := false
		var branchErrs []ValidationError
		for i, branch := range s.AnyOf {
			branchEv := newEvaluatedSet()
			thisErrs := evaluateKeywords(ctx, ps, branch, data, dataPtr, fmt.Sprintf("%s/anyOf/%d", schemaPtr, i), branchEv)
			if len(thisErrs) == 0 {
				matched = true
				ev.mergeFrom(branchEv)
			} else {
				branchErrs = append(branchErrs, thisErrs...)
			}
		}
		if !matched {
			errs = append(errs, ValidationError{
				DataPointer: pointer.Format(dataPtr), SchemaPointer: schemaPtr + "/anyOf",
				Keyword: "anyOf", Message: "value does not match any branch of anyOf",
			})
			errs = append(errs, branchErrs...)
		}
	}

	if len(s.OneOf) > 0 {
		var matches []int
		var matchedEv []*evaluatedSet
		var allBranchErrs []ValidationError
		for i, branch := range s.OneOf {
			branchEv := newEvaluatedSet()
			thisErrs := evaluateKeywords(ctx, ps, branch, data, dataPtr, fmt.Sprintf("%s/oneOf/%d", schemaPtr, i), branchEv)
			if len(thisErrs) == 0 {
				matches = append(matches, i)
				matchedEv = append(matchedEv, branchEv)
			} else {
				allBranchErrs = append(allBranchErrs, thisErrs...)
			}
		}
		switch len(matches) {
		case 1:
			ev.mergeFrom(matchedEv[0])
		case 0:
			errs = append(errs, ValidationError{
				DataPointer: pointer.Format(dataPtr), SchemaPointer: schemaPtr + "/oneOf",
				Keyword: "oneOf", Message: "value does not match any branch of oneOf",
			})
			errs = append(errs, allBranchErrs...)
		default:
			errs = append(errs, ValidationError{
				DataPointer: pointer.Format(dataPtr), SchemaPointer: schemaPtr + "/oneOf",
				Keyword: "oneOf", Message: fmt.Sprintf("value matches %d branches of oneOf, expected exactly 1: %v", len(matches), matches),
			})
		}
	}

	if s.Not != nil {
		notErrs := evaluateNode(ctx, ps, s.Not, data, dataPtr, schemaPtr+"/not")
		if len(notErrs) == 0 {
			errs = append(errs, ValidationError{
				DataPointer: pointer.Format(dataPtr), SchemaPointer: schemaPtr + "/not",
				Keyword: "not", Message: "value must not validate against the `not` schema, but it did",
			})
		}
	}

	for key, depSchema := range s.DependentSchemas {
		obj, ok := data.(*document.Object)
		if !ok || !obj.Has(key) {
			continue
		}
		branchEv := newEvaluatedSet()
		errs = append(errs, evaluateKeywords(ctx, ps, depSchema, data, dataPtr, schemaPtr+"/dependentSchemas/"+key, branchEv)...)
		ev.mergeFrom(branchEv)
	}

	return errs
}

func evaluateConditional(ctx *Context, ps *processor.ProcessedSchema, s *schema.Schema, data document.Value, dataPtr pointer.Pointer, schemaPtr string, ev *evaluatedSet) []ValidationError {
	if s.If == nil {
		return nil
	}
	ifPasses := len(evaluateNode(ctx, ps, s.If, data, dataPtr, schemaPtr+"/if")) == 0
	if ifPasses && s.Then != nil {
		branchEv := newEvaluatedSet()
		errs := evaluateKeywords(ctx, ps, s.Then, data, dataPtr, schemaPtr+"/then", branchEv)
		ev.mergeFrom(branchEv)
		return errs
	}
	if !ifPasses && s.Else != nil {
		branchEv := newEvaluatedSet()
		errs := evaluateKeywords(ctx, ps, s.Else, data, dataPtr, schemaPtr+"/else", branchEv)
		ev.mergeFrom(branchEv)
		return errs
	}
	return nil
}

// evaluateDynamicRef resolves $dynamicRef by scanning the dynamic scope
// (outermost first) for a schema whose $dynamicAnchor matches the
// fragment; if none is found, it falls back to treating the ref exactly
// like a static $ref, per spec.md §9's documented fallback.
func evaluateDynamicRef(ctx *Context, ps *processor.ProcessedSchema, s *schema.Schema, data document.Value, dataPtr pointer.Pointer, schemaPtr string) []ValidationError {
	anchor := s.DynamicRef
	if len(anchor) > 0 && anchor[0] == '#' {
		anchor = anchor[1:]
	}
	for _, scopeSchema := range ctx.dynamicScope {
		if scopeSchema.DynamicAnchor == anchor {
			return evaluateNode(ctx, ps, scopeSchema, data, dataPtr, schemaPtr+"/$dynamicRef")
		}
	}
	// Fallback: behave like a static $ref to the same fragment.
	fallback := &schema.Schema{Kind: schema.KindObject, Ref: "#" + anchor}
	return evaluateRef(ctx, ps, fallback, data, dataPtr, schemaPtr)
}

// ToDiagnostics renders a slice of ValidationError as data-validation
// Diagnostics, e.g. for a Sink-based collaborator.
func ToDiagnostics(errs []ValidationError) []diag.Diagnostic {
	out := make([]diag.Diagnostic, 0, len(errs))
	for _, e := range errs {
		out = append(out, diag.Diagnostic{
			Code:        e.Keyword,
			Kind:        diag.DataValidation,
			Severity:    diag.SeverityError,
			Pointer:     e.DataPointer,
			Message:     e.Message,
			Attribution: diag.AttributionNone,
		})
	}
	return out
}

// GetDetailedErrors flattens errs into a pointer -> message map, grounded
// on the teacher's result.go GetDetailedErrors for collaborators that want
// a flat view instead of the ordered slice.
func GetDetailedErrors(errs []ValidationError) map[string]string {
	out := make(map[string]string, len(errs))
	for _, e := range errs {
		if existing, ok := out[e.DataPointer]; ok {
			out[e.DataPointer] = existing + "; " + e.Message
		} else {
			out[e.DataPointer] = e.Message
		}
	}
	return out
}
