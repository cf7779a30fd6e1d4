package refresolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speclab/schemacore/document"
)

// buildUsersDocument builds { paths: { "/users/{id}": { get: { responses: { "200": {...} } } } } }
func buildUsersDocument() *document.Object {
	response200 := document.NewObject()
	response200.Set("description", "ok")

	responses := document.NewObject()
	responses.Set("200", response200)

	get := document.NewObject()
	get.Set("responses", responses)

	pathItem := document.NewObject()
	pathItem.Set("get", get)

	paths := document.NewObject()
	paths.Set("/users/{id}", pathItem)

	doc := document.NewObject()
	doc.Set("paths", paths)
	return doc
}

func TestResolvePercentDecodedRef(t *testing.T) {
	doc := buildUsersDocument()
	got, err := ResolveRef(doc, "#/paths/~1users~1%7Bid%7D/get/responses/200", nil)
	require.NoError(t, err)
	obj, ok := got.(*document.Object)
	require.True(t, ok)
	desc, _ := obj.Get("description")
	assert.Equal(t, "ok", desc)
}

func TestValidatePointerSyntaxRejectsExternal(t *testing.T) {
	cases := []string{
		"http://example.com/schema.json",
		"file:///etc/passwd",
		"some/relative/path.json",
	}
	for _, raw := range cases {
		err := ValidatePointerSyntax(raw)
		require.Error(t, err, raw)
		var rerr *Error
		require.ErrorAs(t, err, &rerr)
		assert.Equal(t, ErrExternalRef, rerr.Kind, raw)
	}
}

func TestValidatePointerSyntaxAcceptsAnchor(t *testing.T) {
	require.NoError(t, ValidatePointerSyntax("#MyAnchor"))
}

func TestValidatePointerSyntaxRejectsBadPercentEncoding(t *testing.T) {
	err := ValidatePointerSyntax("#/foo/%zz")
	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, ErrInvalidPercentEncoding, rerr.Kind)
}

func TestValidatePointerSyntaxRejectsQueryAndSpace(t *testing.T) {
	require.Error(t, ValidatePointerSyntax("#/foo?x=1"))
	require.Error(t, ValidatePointerSyntax("#/foo bar"))
	require.Error(t, ValidatePointerSyntax("#/foo#bar"))
}

func TestResolveRefDetectsCircular(t *testing.T) {
	a := document.NewObject()
	b := document.NewObject()
	a.Set("$ref", "#/defs/b")
	b.Set("$ref", "#/defs/a")

	defs := document.NewObject()
	defs.Set("a", a)
	defs.Set("b", b)

	doc := document.NewObject()
	doc.Set("defs", defs)

	_, err := ResolveRef(doc, "#/defs/a", nil)
	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, ErrCircular, rerr.Kind)
}

func TestIsValidReference(t *testing.T) {
	doc := buildUsersDocument()
	assert.True(t, IsValidReference(doc, "#/paths"))
	assert.False(t, IsValidReference(doc, "#/nonexistent"))
}

func TestFindCircularReferencesTreeSchema(t *testing.T) {
	tree := document.NewObject()
	props := document.NewObject()
	value := document.NewObject()
	value.Set("type", "string")
	children := document.NewObject()
	items := document.NewObject()
	items.Set("$ref", "#/$defs/Tree")
	children.Set("type", "array")
	children.Set("items", items)
	props.Set("value", value)
	props.Set("children", children)
	tree.Set("type", "object")
	tree.Set("properties", props)

	defs := document.NewObject()
	defs.Set("Tree", tree)

	doc := document.NewObject()
	doc.Set("$defs", defs)
	doc.Set("$ref", "#/$defs/Tree")

	circular := FindCircularReferences(doc)
	require.NotEmpty(t, circular)
	found := false
	for _, ref := range circular {
		if ref.Raw == "#/$defs/Tree" {
			found = true
		}
	}
	assert.True(t, found)
}
