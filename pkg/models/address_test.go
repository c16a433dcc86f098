package models

import (
	"testing"

	"github.com/revstore/revstore/pkg/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	valid := []string{"a", "_x", "model1", "a-b.c_d", "Ünïcode"}
	for _, s := range valid {
		id, err := NewID(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, id.String())
	}

	invalid := []string{"", "1abc", "-a", ".a", "a b", "a/b", "a:b"}
	for _, s := range invalid {
		_, err := NewID(s)
		assert.ErrorIs(t, err, constants.ErrInvalidID, s)
	}

	assert.Panics(t, func() { MustID("9") })
}

func TestNewAddress(t *testing.T) {
	a, err := NewAddress("repo", "model", "obj", "field")
	require.NoError(t, err)
	assert.Equal(t, TypeField, a.Type())

	_, err = NewAddress("repo", "", "obj", "")
	assert.ErrorIs(t, err, constants.ErrInvalidAddress)

	_, err = NewAddress("repo", "model", "", "field")
	assert.ErrorIs(t, err, constants.ErrInvalidAddress)

	_, err = NewAddress("repo", "bad id", "", "")
	assert.ErrorIs(t, err, constants.ErrInvalidID)

	// components must be contiguous from the repository
	_, err = NewAddress("", "model", "", "")
	assert.ErrorIs(t, err, constants.ErrInvalidAddress)
}

func TestAddressNavigation(t *testing.T) {
	f := FieldAddress("r", "m", "o", "f")

	assert.Equal(t, ObjectAddress("r", "m", "o"), f.Parent())
	assert.Equal(t, ModelAddress("r", "m"), f.Parent().Parent())
	assert.Equal(t, RepositoryAddress("r"), f.Parent().Parent().Parent())
	assert.True(t, f.Parent().Parent().Parent().Parent().IsZero())

	assert.Equal(t, f, ObjectAddress("r", "m", "o").Child("f"))
	assert.Equal(t, ID("f"), f.ID())
	assert.Equal(t, ModelAddress("r", "m"), f.ModelAddress())
	assert.Equal(t, ObjectAddress("r", "m", "o"), f.ObjectAddress())
	assert.Panics(t, func() { f.Child("x") })
}

func TestAddressContains(t *testing.T) {
	m := ModelAddress("r", "m")
	o := ObjectAddress("r", "m", "o")
	f := FieldAddress("r", "m", "o", "f")
	other := ObjectAddress("r", "m", "p")

	assert.True(t, m.Contains(m))
	assert.True(t, m.Contains(o))
	assert.True(t, m.Contains(f))
	assert.True(t, o.Contains(f))
	assert.False(t, f.Contains(o))
	assert.False(t, o.Contains(other))
	assert.True(t, Address{}.Contains(f))

	assert.True(t, f.Overlaps(m))
	assert.True(t, m.Overlaps(f))
	assert.False(t, f.Overlaps(other))
}

func TestAddressStringRoundTrip(t *testing.T) {
	cases := []Address{
		{},
		RepositoryAddress("r"),
		ModelAddress("r", "m"),
		ObjectAddress("r", "m", "o"),
		FieldAddress("r", "m", "o", "f"),
	}
	for _, a := range cases {
		t.Run(a.String(), func(t *testing.T) {
			parsed, err := ParseAddress(a.String())
			require.NoError(t, err)
			assert.Equal(t, a, parsed)
		})
	}

	_, err := ParseAddress("r/m")
	assert.ErrorIs(t, err, constants.ErrInvalidAddress)
	_, err = ParseAddress("/r/m/o/f/x")
	assert.ErrorIs(t, err, constants.ErrInvalidAddress)
	_, err = ParseAddress("/r//o")
	assert.ErrorIs(t, err, constants.ErrInvalidAddress)
}

func TestAddressCompare(t *testing.T) {
	assert.Equal(t, 0, ModelAddress("r", "m").Compare(ModelAddress("r", "m")))
	assert.Equal(t, -1, ModelAddress("r", "m").Compare(ObjectAddress("r", "m", "a")))
	assert.Equal(t, 1, ObjectAddress("r", "m", "b").Compare(ObjectAddress("r", "m", "a")))
}
