package relation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// node is a minimal entity for package-internal tests.
type node struct {
	id   ID
	name string
}

func (n *node) Identity() (ID, bool) {
	if n == nil || n.id == NoID {
		return NoID, false
	}
	return n.id, true
}

type stringer string

func (s stringer) String() string { return string(s) }

func TestParseID(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		want   ID
		wantOK bool
	}{
		{"id", ID(7), 7, true},
		{"int", 7, 7, true},
		{"int64", int64(7), 7, true},
		{"uint32", uint32(7), 7, true},
		{"integral float", float64(7), 7, true},
		{"fractional float", 7.5, NoID, false},
		{"string", "7", 7, true},
		{"padded string", " 7 ", 7, true},
		{"stringer", stringer("12"), 12, true},
		{"zero", 0, NoID, false},
		{"zero string", "0", NoID, false},
		{"nil", nil, NoID, false},
		{"blank", "  ", NoID, false},
		{"word", "seven", NoID, false},
		{"bool", true, NoID, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseID(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSame(t *testing.T) {
	a := &node{id: 1}
	assert.True(t, Same(a, &node{id: 1}), "persisted entities compare by identity")
	assert.False(t, Same(a, &node{id: 2}))

	fresh := &node{name: "x"}
	assert.True(t, Same(fresh, fresh))
	assert.False(t, Same(fresh, &node{name: "x"}), "unpersisted entities compare by reference")
	assert.False(t, Same(fresh, a))
}

func TestNormalize(t *testing.T) {
	a, b, fresh := &node{id: 1}, &node{id: 2}, &node{}
	got := normalize([]*node{a, nil, b, &node{id: 1}, fresh, fresh})
	assert.Equal(t, []*node{a, b, fresh}, got)
}

func TestSubtractKeepsOrder(t *testing.T) {
	a, b, c := &node{id: 1}, &node{id: 2}, &node{id: 3}
	assert.Equal(t, []*node{c, a}, subtract([]*node{c, b, a}, []*node{b}))
	assert.Nil(t, subtract([]*node{a}, []*node{a}))
}

func TestAttrs(t *testing.T) {
	a := Attrs{"id": 1, "name": "x", "_destroy": true}

	clone := a.Clone()
	clone["name"] = "y"
	assert.Equal(t, "x", a["name"])

	assert.Equal(t, Attrs{"name": "x"}, a.Without(IDKey, DestroyKey))
	assert.Equal(t, Attrs{}, Attrs(nil).Clone())
}

func TestIsBlank(t *testing.T) {
	assert.True(t, isBlank(nil))
	assert.True(t, isBlank(""))
	assert.True(t, isBlank(" \t"))
	assert.True(t, isBlank([]any{}))
	assert.True(t, isBlank(map[string]any{}))
	assert.False(t, isBlank(0))
	assert.False(t, isBlank(false))
	assert.False(t, isBlank("x"))
}
