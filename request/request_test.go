package request

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speclab/schemacore/document"
	"github.com/speclab/schemacore/pointer"
	"github.com/speclab/schemacore/processor"
)

func mustProcessStringSchema(t *testing.T) *processor.ProcessedSchema {
	t.Helper()
	schemaDoc := document.NewObject()
	schemaDoc.Set("type", "string")
	p := processor.New(processor.Options{})
	ps, err := p.Process(schemaDoc, pointer.Root())
	require.NoError(t, err)
	return ps
}

func TestMatchPathExtractsNamedSegments(t *testing.T) {
	params, ok := MatchPath("/pets/{petId}/owners/{ownerId}", "/pets/42/owners/99")
	require.True(t, ok)
	assert.Equal(t, "42", params["petId"])
	assert.Equal(t, "99", params["ownerId"])
}

func TestMatchPathRejectsSegmentMismatch(t *testing.T) {
	_, ok := MatchPath("/pets/{petId}", "/pets/42/owners/99")
	assert.False(t, ok)

	_, ok = MatchPath("/pets/{petId}", "/owners/42")
	assert.False(t, ok, "literal segment \"pets\" must match the request's \"owners\" segment")
}

func TestMatchPathRejectsLiteralMismatch(t *testing.T) {
	_, ok := MatchPath("/pets/mine", "/pets/yours")
	assert.False(t, ok)
}

func TestValidateRequestMissingRequiredQueryParam(t *testing.T) {
	p := processor.New(processor.Options{})
	op := Operation{
		Parameters: []ParameterSpec{
			{Name: "limit", In: LocationQuery, Required: true, Schema: mustProcessStringSchema(t)},
		},
		Mode: ModeStrict,
	}
	req := View{URLPath: "/items", Query: map[string][]string{}}

	result := ValidateRequest(p, req, op, "/items")
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "required", result.Errors[0].Keyword)
}

func TestValidateRequestUnknownQueryParamStrictVsRelaxed(t *testing.T) {
	p := processor.New(processor.Options{})
	req := View{URLPath: "/items", Query: map[string][]string{"debug": {"1"}}}

	strictOp := Operation{Mode: ModeStrict}
	strictResult := ValidateRequest(p, req, strictOp, "/items")
	require.Len(t, strictResult.Errors, 1)
	assert.Equal(t, "unknown-parameter", strictResult.Errors[0].Keyword)
	assert.Empty(t, strictResult.Warnings)

	relaxedOp := Operation{Mode: ModeRelaxed}
	relaxedResult := ValidateRequest(p, req, relaxedOp, "/items")
	assert.Empty(t, relaxedResult.Errors)
	require.Len(t, relaxedResult.Warnings, 1)
	assert.Equal(t, "unknown-parameter", relaxedResult.Warnings[0].Keyword)
}

func TestValidateRequestPathParamValidatedAgainstSchema(t *testing.T) {
	schemaDoc := document.NewObject()
	schemaDoc.Set("type", "string")
	schemaDoc.Set("pattern", "^[0-9]+$")
	p := processor.New(processor.Options{})
	ps, err := p.Process(schemaDoc, pointer.Root())
	require.NoError(t, err)

	op := Operation{
		Parameters: []ParameterSpec{
			{Name: "petId", In: LocationPath, Required: true, Schema: ps},
		},
		Mode: ModeStrict,
	}

	okResult := ValidateRequest(p, View{URLPath: "/pets/42"}, op, "/pets/{petId}")
	assert.Empty(t, okResult.Errors)

	badResult := ValidateRequest(p, View{URLPath: "/pets/abc"}, op, "/pets/{petId}")
	require.NotEmpty(t, badResult.Errors)
	assert.Equal(t, "/path/petId", badResult.Errors[0].DataPointer)
}

func TestValidateRequestBodyMediaTypeSelection(t *testing.T) {
	bodyDoc := document.NewObject()
	bodyDoc.Set("type", "object")
	nameProp := document.NewObject()
	nameProp.Set("type", "string")
	props := document.NewObject()
	props.Set("name", nameProp)
	bodyDoc.Set("properties", props)
	bodyDoc.Set("required", []document.Value{"name"})

	p := processor.New(processor.Options{})
	ps, err := p.Process(bodyDoc, pointer.Root())
	require.NoError(t, err)

	op := Operation{
		RequestBody: []MediaTypeSpec{
			{ContentType: "application/json", Schema: ps},
		},
		Mode: ModeStrict,
	}

	payload := document.NewObject()
	payload.Set("name", "fido")
	result := ValidateRequest(p, View{URLPath: "/pets", Body: payload, ContentType: "application/json; charset=utf-8"}, op, "/pets")
	assert.Empty(t, result.Errors)

	badPayload := document.NewObject()
	result = ValidateRequest(p, View{URLPath: "/pets", Body: badPayload, ContentType: "application/json"}, op, "/pets")
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "/body", result.Errors[0].DataPointer)
}

func TestValidateRequestBodyUnsupportedMediaType(t *testing.T) {
	p := processor.New(processor.Options{})
	op := Operation{
		RequestBody: []MediaTypeSpec{
			{ContentType: "application/json", Schema: mustProcessStringSchema(t)},
		},
		Mode: ModeStrict,
	}

	result := ValidateRequest(p, View{URLPath: "/pets", Body: "x", ContentType: "text/plain"}, op, "/pets")
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "unsupported-media-type", result.Errors[0].Keyword)
}

func TestSelectMediaTypeWildcardFallback(t *testing.T) {
	candidates := []MediaTypeSpec{
		{ContentType: "application/*"},
		{ContentType: "*/*"},
	}

	mt, ok := selectMediaType(candidates, "application/xml")
	require.True(t, ok)
	assert.Equal(t, "application/*", mt.ContentType)

	mt, ok = selectMediaType(candidates, "text/plain")
	require.True(t, ok)
	assert.Equal(t, "*/*", mt.ContentType)
}

func TestValidateRequestCtxRespectsCancellation(t *testing.T) {
	schemaDoc := document.NewObject()
	schemaDoc.Set("type", "string")
	p := processor.New(processor.Options{})
	ps, err := p.Process(schemaDoc, pointer.Root())
	require.NoError(t, err)

	op := Operation{
		Parameters: []ParameterSpec{
			{Name: "petId", In: LocationPath, Required: true, Schema: ps},
		},
		Mode: ModeStrict,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := ValidateRequestCtx(ctx, p, View{URLPath: "/pets/42"}, op, "/pets/{petId}")
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, "cancelled", result.Errors[0].Keyword)
}
