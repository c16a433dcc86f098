package changelog

import (
	"sync"
	"testing"

	"github.com/revstore/revstore/pkg/change"
	"github.com/revstore/revstore/pkg/constants"
	"github.com/revstore/revstore/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var model = models.ModelAddress("repo", "model")

func addObject(rev int64, id models.ID) change.Event {
	return change.Event{Kind: change.AddObject, Target: model.Child(id), Actor: "alice", Revision: rev}
}

func fill(t *testing.T, l *MemoryLog, n int) {
	t.Helper()
	start := l.CurrentRevision() + 1
	for i := int64(0); i < int64(n); i++ {
		rev, err := l.Append(addObject(start+i, models.ID("o"+string(rune('a'+i)))))
		require.NoError(t, err)
		require.Equal(t, start+i, rev)
	}
}

func TestAppendIsContiguous(t *testing.T) {
	l := NewMemoryLog(model, 0)
	assert.Equal(t, int64(-1), l.CurrentRevision())

	fill(t, l, 3)
	assert.Equal(t, int64(2), l.CurrentRevision())

	_, err := l.Append(addObject(5, "x"))
	assert.ErrorIs(t, err, constants.ErrRevisionGap)
	_, err = l.Append(addObject(2, "x"))
	assert.ErrorIs(t, err, constants.ErrRevisionGap)

	_, err = l.Append(change.Event{Kind: change.AddObject, Target: models.ObjectAddress("repo", "other", "o"), Revision: 3})
	assert.ErrorIs(t, err, constants.ErrOutsideModel)
	assert.Equal(t, int64(2), l.CurrentRevision())
}

func TestAppendChecksChildRevisions(t *testing.T) {
	l := NewMemoryLog(model, 0)
	ev := change.Event{
		Kind:     change.TransactionKind,
		Target:   model,
		Revision: 0,
		Children: []change.Event{addObject(0, "a"), addObject(1, "b")},
	}
	_, err := l.Append(ev)
	assert.ErrorIs(t, err, constants.ErrRevisionGap)
}

func TestConfigurableBase(t *testing.T) {
	l := NewMemoryLog(model, 10)
	assert.Equal(t, int64(9), l.CurrentRevision())
	assert.Equal(t, int64(10), l.BaseRevision())

	fill(t, l, 2)
	ev, ok := l.EventAt(11)
	require.True(t, ok)
	assert.Equal(t, int64(11), ev.Revision)

	_, ok = l.EventAt(9)
	assert.False(t, ok)
}

func TestEventsBetween(t *testing.T) {
	l := NewMemoryLog(model, 0)
	fill(t, l, 5)

	revs := func(evs []change.Event) []int64 {
		out := []int64{}
		for _, e := range evs {
			out = append(out, e.Revision)
		}
		return out
	}

	assert.Equal(t, []int64{1, 2, 3}, revs(l.EventsBetween(1, 4)))
	assert.Equal(t, []int64{3, 4}, revs(l.EventsBetween(3, ToCurrent)))
	assert.Equal(t, []int64{0, 1}, revs(l.EventsBetween(-5, 2)))
	assert.Empty(t, l.EventsBetween(5, ToCurrent))
	assert.Empty(t, l.EventsBetween(3, 3))
	assert.Empty(t, l.EventsBetween(4, 1))
}

func TestTruncate(t *testing.T) {
	l := NewMemoryLog(model, 0)
	fill(t, l, 5)

	l.Truncate(3)
	assert.Equal(t, int64(3), l.BaseRevision())
	assert.Equal(t, int64(4), l.CurrentRevision())
	assert.Len(t, l.EventsBetween(0, ToCurrent), 2)
	_, ok := l.EventAt(2)
	assert.False(t, ok)

	l.Truncate(100)
	assert.Equal(t, int64(5), l.BaseRevision())
	assert.Equal(t, int64(4), l.CurrentRevision())

	fill(t, l, 1)
	assert.Equal(t, int64(5), l.CurrentRevision())
}

func TestStateRoundTrip(t *testing.T) {
	l := NewMemoryLog(model, 0)
	fill(t, l, 3)
	l.Truncate(1)

	s := l.State()
	assert.Equal(t, int64(2), s.CurrentRevision)
	assert.Len(t, s.Events, 2)

	restored, err := FromState(s)
	require.NoError(t, err)
	assert.Equal(t, s, restored.State())

	s.CurrentRevision = 7
	_, err = FromState(s)
	assert.ErrorIs(t, err, constants.ErrRevisionGap)
}

func TestConcurrentReaders(t *testing.T) {
	l := NewMemoryLog(model, 0)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cur := l.CurrentRevision()
				evs := l.EventsBetween(0, ToCurrent)
				assert.GreaterOrEqual(t, int64(len(evs)), cur+1)
			}
		}()
	}
	fill(t, l, 20)
	wg.Wait()
	assert.Equal(t, int64(19), l.CurrentRevision())
}
