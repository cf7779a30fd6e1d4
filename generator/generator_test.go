package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speclab/schemacore/document"
	"github.com/speclab/schemacore/pointer"
	"github.com/speclab/schemacore/processor"
	"github.com/speclab/schemacore/validator"
)

func TestGenerateDeterministicForSameSeed(t *testing.T) {
	schemaDoc := document.NewObject()
	schemaDoc.Set("type", "object")
	nameProp := document.NewObject()
	nameProp.Set("type", "string")
	nameProp.Set("minLength", 3.0)
	nameProp.Set("maxLength", 8.0)
	ageProp := document.NewObject()
	ageProp.Set("type", "integer")
	ageProp.Set("minimum", 0.0)
	ageProp.Set("maximum", 10.0)
	props := document.NewObject()
	props.Set("name", nameProp)
	props.Set("age", ageProp)
	schemaDoc.Set("properties", props)
	schemaDoc.Set("required", []document.Value{"name", "age"})

	p := processor.New(processor.Options{})
	ps, err := p.Process(schemaDoc, pointer.Root())
	require.NoError(t, err)

	v1, _ := Generate(ps, p, Options{Seed: 42})
	v2, _ := Generate(ps, p, Options{Seed: 42})
	assert.True(t, document.Equal(v1, v2))

	v3, _ := Generate(ps, p, Options{Seed: 7})
	// Not asserting inequality: different seeds could coincidentally
	// collide on narrow ranges.
	_ = v3
}

func TestGeneratedValueValidatesCleanly(t *testing.T) {
	schemaDoc := document.NewObject()
	schemaDoc.Set("type", "object")
	emailProp := document.NewObject()
	emailProp.Set("type", "string")
	emailProp.Set("format", "email")
	props := document.NewObject()
	props.Set("email", emailProp)
	schemaDoc.Set("properties", props)
	schemaDoc.Set("required", []document.Value{"email"})

	p := processor.New(processor.Options{})
	ps, err := p.Process(schemaDoc, pointer.Root())
	require.NoError(t, err)

	for seed := int64(0); seed < 5; seed++ {
		v, _ := Generate(ps, p, Options{Seed: seed})
		errs, err := validator.Validate(ps, p, v)
		require.NoError(t, err)
		assert.Empty(t, errs, "seed %d produced an invalid value: %+v", seed, errs)
	}
}

func TestGenerateRespectsCyclePlaceholder(t *testing.T) {
	valueProp := document.NewObject()
	valueProp.Set("type", "string")
	items := document.NewObject()
	items.Set("$ref", "#/$defs/Tree")
	childrenProp := document.NewObject()
	childrenProp.Set("type", "array")
	childrenProp.Set("items", items)
	childrenProp.Set("minItems", 1.0)
	childrenProp.Set("maxItems", 1.0)
	props := document.NewObject()
	props.Set("value", valueProp)
	props.Set("children", childrenProp)
	tree := document.NewObject()
	tree.Set("type", "object")
	tree.Set("properties", props)
	tree.Set("required", []document.Value{"value"})
	defs := document.NewObject()
	defs.Set("Tree", tree)
	doc := document.NewObject()
	doc.Set("$defs", defs)

	p := processor.New(processor.Options{})
	ps, err := p.Process(doc, pointer.Pointer{Segments: []string{"$defs", "Tree"}})
	require.NoError(t, err)

	v, _ := Generate(ps, p, Options{Seed: 1})
	errs, err := validator.Validate(ps, p, v)
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestGenerateUniqueItemsArray(t *testing.T) {
	schemaDoc := document.NewObject()
	schemaDoc.Set("type", "array")
	schemaDoc.Set("uniqueItems", true)
	schemaDoc.Set("minItems", 5.0)
	schemaDoc.Set("maxItems", 5.0)
	itemSchema := document.NewObject()
	itemSchema.Set("type", "integer")
	itemSchema.Set("minimum", 0.0)
	itemSchema.Set("maximum", 100.0)
	schemaDoc.Set("items", itemSchema)

	p := processor.New(processor.Options{})
	ps, err := p.Process(schemaDoc, pointer.Root())
	require.NoError(t, err)

	v, _ := Generate(ps, p, Options{Seed: 3})
	errs, err := validator.Validate(ps, p, v)
	require.NoError(t, err)
	assert.Empty(t, errs)
}
