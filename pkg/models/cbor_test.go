package models

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressCBOR(t *testing.T) {
	em := getCborEncoder()
	dm := getCborDecoder()

	a := FieldAddress("r", "m", "o", "f")
	encoded, err := em.Marshal(a)
	require.NoError(t, err, "Should not encounter an error while encoding")

	var tag cbor.RawTag
	require.NoError(t, dm.Unmarshal(encoded, &tag))
	assert.Equal(t, uint64(TagAddress), tag.Number)

	var decoded Address
	require.NoError(t, dm.Unmarshal(encoded, &decoded), "Should not encounter an error while decoding")
	assert.Equal(t, a, decoded)
}

func TestAddressCBORRejectsOtherTags(t *testing.T) {
	em := getCborEncoder()
	dm := getCborDecoder()

	encoded, err := em.Marshal(cbor.Tag{Number: 6, Content: []string{"r", "", "", ""}})
	require.NoError(t, err)

	var decoded Address
	assert.Error(t, dm.Unmarshal(encoded, &decoded))
}

func TestValueBoxCBOR(t *testing.T) {
	list, err := NewList(KindString, String("a"), String("b"), String("a"))
	require.NoError(t, err)
	set, err := NewSet(KindAddress, AddressValue(ModelAddress("r", "m")))
	require.NoError(t, err)
	sorted, err := NewSortedSet(KindDouble, Double(2.5), Double(-1))
	require.NoError(t, err)

	values := []Value{
		nil,
		Boolean(true),
		Integer(-7),
		Long(1 << 40),
		Double(3.25),
		String("text"),
		IDValue("some_id"),
		AddressValue(ObjectAddress("r", "m", "o")),
		NewBinary([]byte{0, 1, 2}),
		list,
		set,
		sorted,
	}

	codec := CborCodec{}
	for _, v := range values {
		name := "nil"
		if v != nil {
			name = v.Kind().String()
		}
		t.Run(name, func(t *testing.T) {
			encoded, err := codec.Marshal(ValueBox{Value: v})
			require.NoError(t, err)

			var decoded ValueBox
			require.NoError(t, codec.Unmarshal(encoded, &decoded))
			assert.True(t, EqualValues(v, decoded.Value), "%v != %v", v, decoded.Value)
		})
	}
}
