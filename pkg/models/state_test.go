package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleModel() *ModelState {
	m := NewModelState(ModelAddress("r", "m"), 3)
	o := NewObjectState(m.Address.Child("o"), 2)
	f := NewFieldState(o.Address.Child("f"), 1)
	f.Value = String("v")
	o.Fields["f"] = f
	m.Objects["o"] = o
	return m
}

func TestModelClone(t *testing.T) {
	m := sampleModel()
	c := m.Clone()
	require.True(t, m.Equal(c))

	c.Objects["o"].Fields["f"].Value = String("changed")
	assert.Equal(t, String("v"), m.Objects["o"].Fields["f"].Value)
	assert.False(t, m.Equal(c))

	var nilModel *ModelState
	assert.Nil(t, nilModel.Clone())
}

func TestEqualContentIgnoresRevisions(t *testing.T) {
	a := sampleModel()
	b := sampleModel()
	b.Revision = 10
	b.Objects["o"].Revision = 9
	b.Objects["o"].Fields["f"].Revision = 8

	assert.False(t, a.Equal(b))
	assert.True(t, a.EqualContent(b))

	delete(b.Objects["o"].Fields, "f")
	assert.False(t, a.EqualContent(b))
}

func TestModelLookup(t *testing.T) {
	m := sampleModel()

	rev, _, ok := m.Lookup(m.Address)
	assert.True(t, ok)
	assert.Equal(t, int64(3), rev)

	rev, _, ok = m.Lookup(ObjectAddress("r", "m", "o"))
	assert.True(t, ok)
	assert.Equal(t, int64(2), rev)

	rev, f, ok := m.Lookup(FieldAddress("r", "m", "o", "f"))
	assert.True(t, ok)
	assert.Equal(t, int64(1), rev)
	assert.Equal(t, String("v"), f.Value)

	rev, _, ok = m.Lookup(FieldAddress("r", "m", "o", "missing"))
	assert.False(t, ok)
	assert.Equal(t, NoRevision, rev)

	_, _, ok = m.Lookup(ObjectAddress("r", "other", "o"))
	assert.False(t, ok)
}

func TestSortedIDs(t *testing.T) {
	m := NewModelState(ModelAddress("r", "m"), 0)
	for _, id := range []ID{"c", "a", "b"} {
		m.Objects[id] = NewObjectState(m.Address.Child(id), 0)
	}
	assert.Equal(t, []ID{"a", "b", "c"}, m.ObjectIDs())

	repo := NewRepositoryState(RepositoryAddress("r"))
	repo.Models["m"] = m
	assert.True(t, repo.HasModel("m"))
	assert.Equal(t, []ID{"m"}, repo.Clone().ModelIDs())
}

func TestFieldEqualHandlesNil(t *testing.T) {
	var a, b *FieldState
	assert.True(t, a.Equal(b))

	f := NewFieldState(FieldAddress("r", "m", "o", "f"), 1)
	assert.False(t, a.Equal(f))
	assert.False(t, f.Equal(nil))
	assert.True(t, f.Equal(f.Clone()))
}
