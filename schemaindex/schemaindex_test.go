package schemaindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speclab/schemacore/diag"
	"github.com/speclab/schemacore/document"
	"github.com/speclab/schemacore/schema"
)

func TestIndexTreeSchema(t *testing.T) {
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

	root, err := schema.Build(tree)
	require.NoError(t, err)

	idx := Index(root)
	assert.Contains(t, idx.SubPointers, "")
	assert.Contains(t, idx.SubPointers, "/properties/value")
	assert.Contains(t, idx.SubPointers, "/properties/children/items")

	itemsRefs := idx.RefsPerNode["/properties/children/items"]
	require.Len(t, itemsRefs, 1)
	assert.Equal(t, "#/$defs/Tree", itemsRefs[0])
}

func TestIndexMaxDepthCap(t *testing.T) {
	var build func(depth int) *document.Object
	build = func(depth int) *document.Object {
		obj := document.NewObject()
		obj.Set("type", "object")
		if depth > 0 {
			props := document.NewObject()
			props.Set("child", build(depth-1))
			obj.Set("properties", props)
		}
		return obj
	}
	deep := build(MaxDepth + 10)
	root, err := schema.Build(deep)
	require.NoError(t, err)

	idx := Index(root)
	assert.LessOrEqual(t, idx.MaxDepth, MaxDepth)
	require.NotEmpty(t, idx.Diagnostics)
}

func TestIndexCtxRespectsCancellation(t *testing.T) {
	obj := document.NewObject()
	obj.Set("type", "object")
	root, err := schema.Build(obj)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	idx := IndexCtx(ctx, root)
	require.NotEmpty(t, idx.Diagnostics)
	assert.Equal(t, diag.Cancelled, idx.Diagnostics[0].Kind)
}
