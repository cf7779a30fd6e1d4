package refgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speclab/schemacore/document"
)

func buildTreeDoc() *document.Object {
	value := document.NewObject()
	value.Set("type", "string")

	items := document.NewObject()
	items.Set("$ref", "#/$defs/Tree")

	children := document.NewObject()
	children.Set("type", "array")
	children.Set("items", items)

	props := document.NewObject()
	props.Set("value", value)
	props.Set("children", children)

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

func TestBuildDetectsSelfLoopCycle(t *testing.T) {
	doc := buildTreeDoc()
	g := Build(doc)
	assert.True(t, g.IsCyclic("#/$defs/Tree"))
	require.NotEmpty(t, g.Cycles)
}

func TestTopologicalOrderAcyclic(t *testing.T) {
	b := document.NewObject()
	b.Set("type", "string")

	a := document.NewObject()
	a.Set("$ref", "#/defs/b")

	defs := document.NewObject()
	defs.Set("a", a)
	defs.Set("b", b)

	root := document.NewObject()
	root.Set("$ref", "#/defs/a")
	root.Set("defs", defs)

	g := Build(root)
	order := g.TopologicalOrder()

	posA := indexOf(order, "#/defs/a")
	posB := indexOf(order, "#/defs/b")
	require.GreaterOrEqual(t, posA, 0)
	require.GreaterOrEqual(t, posB, 0)
	assert.Less(t, posB, posA, "b has no deps and a depends on b, so b must come first")
}

func TestTopologicalOrderIsDeterministic(t *testing.T) {
	doc := buildTreeDoc()
	g1 := Build(doc)
	g2 := Build(doc)
	assert.Equal(t, g1.TopologicalOrder(), g2.TopologicalOrder())
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
