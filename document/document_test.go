package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectPreservesInsertionOrder(t *testing.T) {
	o := NewObject()
	o.Set("b", 1.0)
	o.Set("a", 2.0)
	o.Set("c", 3.0)
	assert.Equal(t, []string{"b", "a", "c"}, o.Keys())

	o.Set("a", 20.0)
	assert.Equal(t, []string{"b", "a", "c"}, o.Keys(), "overwrite must not move the key")
}

func TestObjectDeleteKeepsOrder(t *testing.T) {
	o := NewObject()
	o.Set("x", 1.0)
	o.Set("y", 2.0)
	o.Set("z", 3.0)
	o.Delete("y")
	assert.Equal(t, []string{"x", "z"}, o.Keys())
	_, ok := o.Get("y")
	assert.False(t, ok)
}

func TestEqualObjectsIgnoreOrder(t *testing.T) {
	a := NewObject()
	a.Set("a", 1.0)
	a.Set("b", 2.0)

	b := NewObject()
	b.Set("b", 2.0)
	b.Set("a", 1.0)

	assert.True(t, Equal(a, b))
}

func TestEqualNumbersByValue(t *testing.T) {
	assert.True(t, Equal(1.0, 1.0))
	assert.False(t, Equal(1.0, 1.1))
}

func TestEqualArraysOrderMatters(t *testing.T) {
	assert.True(t, Equal([]Value{1.0, 2.0}, []Value{1.0, 2.0}))
	assert.False(t, Equal([]Value{1.0, 2.0}, []Value{2.0, 1.0}))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNull, KindOf(nil))
	assert.Equal(t, KindBool, KindOf(true))
	assert.Equal(t, KindNumber, KindOf(1.0))
	assert.Equal(t, KindString, KindOf("s"))
	assert.Equal(t, KindObject, KindOf(NewObject()))
	assert.Equal(t, KindArray, KindOf([]Value{}))
}
