package change

import (
	"testing"

	"github.com/revstore/revstore/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventCBOR(t *testing.T) {
	tags, err := models.NewSet(models.KindString, models.String("a"), models.String("b"))
	require.NoError(t, err)

	ev := Event{
		Kind:             TransactionKind,
		Target:           model,
		Actor:            "alice",
		Revision:         9,
		OldModelRevision: 8,
		Children: []Event{
			{
				Kind:              ChangeValue,
				Target:            fieldF,
				Actor:             "alice",
				Revision:          9,
				OldModelRevision:  8,
				OldObjectRevision: 4,
				OldFieldRevision:  4,
				InTransaction:     true,
				Value:             tags,
				OldValue:          models.Long(1),
			},
			{
				Kind:              RemoveObject,
				Target:            models.ObjectAddress("repo", "model", "gone"),
				Actor:             "alice",
				Revision:          9,
				OldModelRevision:  8,
				OldObjectRevision: 2,
				OldFieldRevision:  models.NoRevision,
				InTransaction:     true,
			},
		},
	}

	encoded, err := wire.Marshal(ev)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, wire.Unmarshal(encoded, &decoded))

	require.Len(t, decoded.Children, 2)
	assert.True(t, models.EqualValues(tags, decoded.Children[0].Value))
	assert.Equal(t, models.Long(1), decoded.Children[0].OldValue)
	assert.Nil(t, decoded.Children[1].Value)

	// values are compared above since sets do not compare with ==
	decoded.Children[0].Value = tags
	assert.Equal(t, ev, decoded)
}

func TestBoxCBOR(t *testing.T) {
	cmd := Must(NewValue(AddValue, fieldF, Safe, 2, models.NewBinary([]byte("hi"))))
	tx, err := NewTransaction(model, Must(NewAdd(objA, Forced)), cmd)
	require.NoError(t, err)

	for _, c := range []Change{cmd, tx} {
		encoded, err := wire.Marshal(Box{Change: c})
		require.NoError(t, err)

		var decoded Box
		require.NoError(t, wire.Unmarshal(encoded, &decoded))
		assert.Equal(t, c, decoded.Change)
	}

	var empty Box
	encoded, err := wire.Marshal(boxWire{})
	require.NoError(t, err)
	assert.Error(t, wire.Unmarshal(encoded, &empty))
}
