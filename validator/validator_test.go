package validator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speclab/schemacore/diag"
	"github.com/speclab/schemacore/document"
	"github.com/speclab/schemacore/pointer"
	"github.com/speclab/schemacore/processor"
)

func mustProcess(t *testing.T, p *processor.Processor, doc document.Value) *processor.ProcessedSchema {
	t.Helper()
	ps, err := p.Process(doc, pointer.Root())
	require.NoError(t, err)
	return ps
}

func num(f float64) document.Value { return f }

func TestExclusiveBounds(t *testing.T) {
	schemaDoc := document.NewObject()
	schemaDoc.Set("type", "integer")
	schemaDoc.Set("exclusiveMinimum", 5.0)
	schemaDoc.Set("exclusiveMaximum", 10.0)

	p := processor.New(processor.Options{})
	ps := mustProcess(t, p, schemaDoc)

	errs, err := Validate(ps, p, num(5))
	require.NoError(t, err)
	assert.NotEmpty(t, errs, "5 should fail exclusiveMinimum")

	errs, err = Validate(ps, p, num(10))
	require.NoError(t, err)
	assert.NotEmpty(t, errs, "10 should fail exclusiveMaximum")

	errs, err = Validate(ps, p, num(6))
	require.NoError(t, err)
	assert.Empty(t, errs)

	errs, err = Validate(ps, p, num(9))
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func buildAllOfUnevaluatedSchema() *document.Object {
	branchA := document.NewObject()
	propsA := document.NewObject()
	aProp := document.NewObject()
	aProp.Set("type", "string")
	propsA.Set("a", aProp)
	branchA.Set("type", "object")
	branchA.Set("properties", propsA)

	branchB := document.NewObject()
	propsB := document.NewObject()
	bProp := document.NewObject()
	bProp.Set("type", "string")
	propsB.Set("b", bProp)
	branchB.Set("type", "object")
	branchB.Set("properties", propsB)

	root := document.NewObject()
	root.Set("allOf", []document.Value{document.Value(branchA), document.Value(branchB)})
	root.Set("unevaluatedProperties", false)
	return root
}

func TestCompositionWithUnevaluatedProperties(t *testing.T) {
	schemaDoc := buildAllOfUnevaluatedSchema()
	p := processor.New(processor.Options{})
	ps := mustProcess(t, p, schemaDoc)

	ok := document.NewObject()
	ok.Set("a", "x")
	ok.Set("b", "y")
	errs, err := Validate(ps, p, ok)
	require.NoError(t, err)
	assert.Empty(t, errs)

	bad := document.NewObject()
	bad.Set("a", "x")
	bad.Set("b", "y")
	bad.Set("c", "z")
	errs, err = Validate(ps, p, bad)
	require.NoError(t, err)
	require.NotEmpty(t, errs)
	found := false
	for _, e := range errs {
		if e.Keyword == "unevaluatedProperties" {
			found = true
		}
	}
	assert.True(t, found)
}

func buildTreeSchemaDoc() *document.Object {
	valueProp := document.NewObject()
	valueProp.Set("type", "string")

	items := document.NewObject()
	items.Set("$ref", "#/$defs/Tree")

	childrenProp := document.NewObject()
	childrenProp.Set("type", "array")
	childrenProp.Set("items", items)

	props := document.NewObject()
	props.Set("value", valueProp)
	props.Set("children", childrenProp)

	tree := document.NewObject()
	tree.Set("type", "object")
	tree.Set("properties", props)

	defs := document.NewObject()
	defs.Set("Tree", tree)

	doc := document.NewObject()
	doc.Set("$defs", defs)
	doc.Set("$ref", "#/$defs/Tree")
	return doc
}

func TestCycleTolerantValidation(t *testing.T) {
	schemaDoc := buildTreeSchemaDoc()
	p := processor.New(processor.Options{})
	ps, err := p.Process(schemaDoc, pointer.Pointer{Segments: []string{"$defs", "Tree"}})
	require.NoError(t, err)

	child := document.NewObject()
	child.Set("value", "b")
	child.Set("children", []document.Value{})

	root := document.NewObject()
	root.Set("value", "a")
	root.Set("children", []document.Value{document.Value(child)})

	errs, err := Validate(ps, p, root)
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestRequiredAndAdditionalProperties(t *testing.T) {
	schemaDoc := document.NewObject()
	schemaDoc.Set("type", "object")
	nameProp := document.NewObject()
	nameProp.Set("type", "string")
	props := document.NewObject()
	props.Set("name", nameProp)
	schemaDoc.Set("properties", props)
	schemaDoc.Set("required", []document.Value{"name"})
	schemaDoc.Set("additionalProperties", false)

	p := processor.New(processor.Options{})
	ps := mustProcess(t, p, schemaDoc)

	missing := document.NewObject()
	errs, err := Validate(ps, p, missing)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "required", errs[0].Keyword)

	extra := document.NewObject()
	extra.Set("name", "x")
	extra.Set("extra", 1.0)
	errs, err = Validate(ps, p, extra)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "additionalProperties", errs[0].Keyword)
}

func TestUniqueItems(t *testing.T) {
	schemaDoc := document.NewObject()
	schemaDoc.Set("type", "array")
	schemaDoc.Set("uniqueItems", true)

	p := processor.New(processor.Options{})
	ps := mustProcess(t, p, schemaDoc)

	errs, err := Validate(ps, p, []document.Value{1.0, 2.0, 1.0})
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "uniqueItems", errs[0].Keyword)

	errs, err = Validate(ps, p, []document.Value{1.0, 2.0, 3.0})
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestOneOfExactlyOneMatch(t *testing.T) {
	branch1 := document.NewObject()
	branch1.Set("type", "string")
	branch2 := document.NewObject()
	branch2.Set("maxLength", 3.0)

	schemaDoc := document.NewObject()
	schemaDoc.Set("oneOf", []document.Value{document.Value(branch1), document.Value(branch2)})

	p := processor.New(processor.Options{})
	ps := mustProcess(t, p, schemaDoc)

	// branch2 has no type constraint, so a string of length <= 3 matches
	// both branches; "ab" exercises the ">1 match" failure.
	errs, err := Validate(ps, p, "ab")
	require.NoError(t, err)
	assert.NotEmpty(t, errs, "\"ab\" matches both branches, violating oneOf")

	errs, err = Validate(ps, p, "abcd")
	require.NoError(t, err)
	assert.Empty(t, errs, "\"abcd\" matches only the string branch")
}

func TestFormatValidation(t *testing.T) {
	schemaDoc := document.NewObject()
	schemaDoc.Set("type", "string")
	schemaDoc.Set("format", "uuid")

	p := processor.New(processor.Options{})
	ps := mustProcess(t, p, schemaDoc)

	errs, err := Validate(ps, p, "not-a-uuid")
	require.NoError(t, err)
	assert.NotEmpty(t, errs)

	errs, err = Validate(ps, p, "550e8400-e29b-41d4-a716-446655440000")
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestValidateCtxRespectsCancellation(t *testing.T) {
	schemaDoc := document.NewObject()
	schemaDoc.Set("type", "string")

	p := processor.New(processor.Options{})
	ps := mustProcess(t, p, schemaDoc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	errs, err := ValidateCtx(ctx, ps, p, "anything")
	require.Error(t, err)
	assert.ErrorIs(t, err, diag.ErrCancelled)
	assert.Empty(t, errs)
}
