package models

import (
	"math"
	"testing"

	"github.com/revstore/revstore/pkg/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueEquality(t *testing.T) {
	assert.True(t, EqualValues(String("a"), String("a")))
	assert.False(t, EqualValues(String("a"), IDValue("a")))
	assert.False(t, EqualValues(Integer(1), Long(1)))
	assert.True(t, EqualValues(nil, nil))
	assert.False(t, EqualValues(nil, Boolean(false)))
	assert.True(t, EqualValues(NewBinary([]byte{1, 2}), NewBinary([]byte{1, 2})))
	assert.True(t, EqualValues(AddressValue(ModelAddress("r", "m")), AddressValue(ModelAddress("r", "m"))))
}

func TestBinaryIsImmutable(t *testing.T) {
	raw := []byte{1, 2, 3}
	b := NewBinary(raw)
	raw[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, b.Bytes())

	out := b.Bytes()
	out[1] = 9
	assert.Equal(t, []byte{1, 2, 3}, b.Bytes())
}

func TestCollections(t *testing.T) {
	t.Run("list keeps order and duplicates", func(t *testing.T) {
		l, err := NewList(KindInteger, Integer(2), Integer(1), Integer(2))
		require.NoError(t, err)
		assert.Equal(t, 3, l.Len())
		assert.Equal(t, []Value{Integer(2), Integer(1), Integer(2)}, l.Items())

		other, err := NewList(KindInteger, Integer(1), Integer(2), Integer(2))
		require.NoError(t, err)
		assert.False(t, l.Equal(other))
	})

	t.Run("set ignores order", func(t *testing.T) {
		a, err := NewSet(KindString, String("x"), String("y"), String("x"))
		require.NoError(t, err)
		b, err := NewSet(KindString, String("y"), String("x"))
		require.NoError(t, err)
		assert.Equal(t, 2, a.Len())
		assert.True(t, a.Equal(b))
	})

	t.Run("sorted set orders", func(t *testing.T) {
		s, err := NewSortedSet(KindLong, Long(3), Long(1), Long(2), Long(1))
		require.NoError(t, err)
		assert.Equal(t, []Value{Long(1), Long(2), Long(3)}, s.Items())
	})

	t.Run("kinds must match", func(t *testing.T) {
		_, err := NewList(KindInteger, Integer(1), Long(2))
		assert.ErrorIs(t, err, constants.ErrInvalidValue)

		_, err = NewList(KindList)
		assert.ErrorIs(t, err, constants.ErrInvalidValue)
	})

	t.Run("items is a copy", func(t *testing.T) {
		l, err := NewList(KindBoolean, Boolean(true))
		require.NoError(t, err)
		items := l.Items()
		items[0] = Boolean(false)
		assert.True(t, l.Contains(Boolean(true)))
	})
}

func TestDoubleEquality(t *testing.T) {
	nan := Double(math.NaN())
	assert.True(t, EqualValues(nan, Double(math.NaN())))
	assert.True(t, EqualValues(Double(0), Double(math.Copysign(0, -1))))
	assert.False(t, EqualValues(Double(1), Double(1.5)))

	s, err := NewSet(KindDouble, nan, Double(1), Double(math.NaN()))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains(Double(math.NaN())))
}
