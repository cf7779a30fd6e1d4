package attribution

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/speclab/schemacore/document"
	"github.com/speclab/schemacore/schema"
	"github.com/speclab/schemacore/validator"
)

func TestAnalyzeEmptyIsAmbiguousZeroConfidence(t *testing.T) {
	result := Analyze(nil, nil, SchemaContext{})
	assert.Equal(t, KindAmbiguous, result.Kind)
	assert.Equal(t, 0.0, result.Confidence)
}

func TestAnalyzeRequiredMissingIsSDK(t *testing.T) {
	errs := []validator.ValidationError{
		{Keyword: "required", DataPointer: "/email", SchemaPointer: "/properties/email/required", Message: "missing required property \"email\""},
	}
	result := Analyze(errs, document.NewObject(), SchemaContext{})
	assert.Equal(t, KindSDK, result.Kind)
	assert.GreaterOrEqual(t, result.Confidence, 0.8)
}

func TestAnalyzeMutuallyUnsatisfiableConstraintsIsSpec(t *testing.T) {
	maxLen := 2
	node := &schema.Schema{
		Kind:      schema.KindObject,
		Type:      []string{"string"},
		MaxLength: &maxLen,
		Pattern:   "^[A-Z]{3}$",
		HasPattern: true,
	}
	errs := []validator.ValidationError{
		{Keyword: "maxLength", DataPointer: "", SchemaPointer: "/maxLength", Message: "length 3 is greater than maxLength 2"},
		{Keyword: "pattern", DataPointer: "", SchemaPointer: "/pattern", Message: "value does not match pattern"},
	}
	ctx := SchemaContext{BySchemaPointer: map[string]*schema.Schema{"": node}}
	result := Analyze(errs, "USD", ctx)
	assert.Equal(t, KindSpec, result.Kind)
}
