package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speclab/schemacore/diag"
	"github.com/speclab/schemacore/document"
	"github.com/speclab/schemacore/pointer"
	"github.com/speclab/schemacore/schema"
)

func buildTreeDocument() *document.Object {
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

func TestProcessMarksCycleAsAllowAnyPlaceholder(t *testing.T) {
	doc := buildTreeDocument()
	p := New(Options{})

	ps, err := p.Process(doc, pointer.Root())
	require.NoError(t, err)

	assert.True(t, ps.Refs.Cyclic["#/$defs/Tree"])

	itemsNode := ps.BySubPointer["/$defs/Tree/properties/children/items"]
	require.NotNil(t, itemsNode)
	assert.Equal(t, schema.KindAllowAny, itemsNode.Kind)
	assert.Equal(t, "#/$defs/Tree", itemsNode.CyclePlaceholderRef)
}

func TestProcessMemoizesByCanonicalPointer(t *testing.T) {
	doc := buildTreeDocument()
	p := New(Options{})

	first, err := p.Process(doc, pointer.Root())
	require.NoError(t, err)
	second, err := p.Process(doc, pointer.Root())
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestProcessEmitsRefNotFoundDiagnostic(t *testing.T) {
	obj := document.NewObject()
	items := document.NewObject()
	items.Set("$ref", "#/$defs/Missing")
	obj.Set("type", "array")
	obj.Set("items", items)

	p := New(Options{})
	ps, err := p.Process(obj, pointer.Root())
	require.NoError(t, err)

	found := false
	for _, d := range ps.Diagnostics {
		if d.Code == "ref-not-found" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestProcessEmitsConflictingKeywordsDiagnostic(t *testing.T) {
	obj := document.NewObject()
	obj.Set("type", "string")
	obj.Set("maxItems", 3.0)

	p := New(Options{})
	ps, err := p.Process(obj, pointer.Root())
	require.NoError(t, err)

	found := false
	for _, d := range ps.Diagnostics {
		if d.Code == "conflicting-keywords" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDiscoverRootsFindsComponentSchemasAndInlineSchemas(t *testing.T) {
	widgetSchema := document.NewObject()
	widgetSchema.Set("type", "object")

	schemas := document.NewObject()
	schemas.Set("Widget", widgetSchema)

	components := document.NewObject()
	components.Set("schemas", schemas)

	inlineSchema := document.NewObject()
	inlineSchema.Set("type", "string")

	mediaType := document.NewObject()
	mediaType.Set("schema", inlineSchema)

	content := document.NewObject()
	content.Set("application/json", mediaType)

	response := document.NewObject()
	response.Set("content", content)

	responses := document.NewObject()
	responses.Set("200", response)

	get := document.NewObject()
	get.Set("responses", responses)

	pathItem := document.NewObject()
	pathItem.Set("get", get)

	paths := document.NewObject()
	paths.Set("/widgets", pathItem)

	doc := document.NewObject()
	doc.Set("components", components)
	doc.Set("paths", paths)

	roots := DiscoverRoots(doc)
	var formatted []string
	for _, r := range roots {
		formatted = append(formatted, pointer.Format(r))
	}
	assert.Contains(t, formatted, "/components/schemas/Widget")
	assert.Contains(t, formatted, "/paths/~1widgets/get/responses/200/content/application~1json/schema")
}

func TestProcessCtxRespectsCancellation(t *testing.T) {
	doc := buildTreeDocument()
	p := New(Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ProcessCtx(ctx, doc, pointer.Root())
	require.Error(t, err)
	assert.ErrorIs(t, err, diag.ErrCancelled)
}

func TestProcessDocumentCtxRespectsCancellation(t *testing.T) {
	widget := document.NewObject()
	widget.Set("type", "object")

	schemas := document.NewObject()
	schemas.Set("Widget", widget)

	components := document.NewObject()
	components.Set("schemas", schemas)

	doc := document.NewObject()
	doc.Set("components", components)

	p := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := p.ProcessDocumentCtx(ctx, doc)
	require.Error(t, err)
	assert.ErrorIs(t, err, diag.ErrCancelled)
	assert.Empty(t, results)
}
