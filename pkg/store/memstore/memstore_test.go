package memstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/revstore/revstore/pkg/change"
	"github.com/revstore/revstore/pkg/changelog"
	"github.com/revstore/revstore/pkg/constants"
	"github.com/revstore/revstore/pkg/models"
	"github.com/revstore/revstore/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const actor models.ID = "alice"

var modelAddr = models.ModelAddress("repo", "model")

func TestExecuteAndRead(t *testing.T) {
	ctx := context.Background()
	s := New("repo")

	has, err := s.HasModel(ctx, "model")
	require.NoError(t, err)
	assert.False(t, has)

	r, err := s.ExecuteCommand(ctx, actor, change.Must(change.NewAdd(modelAddr, change.Safe)))
	require.NoError(t, err)
	assert.Equal(t, int64(0), r)

	tx, err := change.NewTransaction(modelAddr,
		change.Must(change.NewAdd(modelAddr.Child("o"), change.Safe)),
		change.Must(change.NewAdd(modelAddr.Child("o").Child("f"), change.Safe)),
	)
	require.NoError(t, err)
	r, err = s.ExecuteCommand(ctx, actor, tx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), r)

	has, err = s.HasModel(ctx, "model")
	require.NoError(t, err)
	assert.True(t, has)

	ids, err := s.ModelIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.ID{"model"}, ids)

	events, err := s.GetEvents(ctx, modelAddr, 0, changelog.ToCurrent)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, change.AddModel, events[0].Kind)
	assert.True(t, events[1].IsTransaction())

	snap, err := s.GetModelSnapshot(ctx, store.GetWithAddressRequest{Address: modelAddr})
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, int64(1), snap.Revision)

	obj, err := s.GetObjectSnapshot(ctx, store.GetWithAddressRequest{Address: modelAddr.Child("o")})
	require.NoError(t, err)
	require.NotNil(t, obj)
	assert.True(t, obj.HasField("f"))

	missing, err := s.GetObjectSnapshot(ctx, store.GetWithAddressRequest{Address: modelAddr.Child("nope")})
	require.NoError(t, err)
	assert.Nil(t, missing)

	// snapshots are copies
	snap.Objects["o"].Fields["f"].Value = models.String("local")
	again, err := s.GetModelSnapshot(ctx, store.GetWithAddressRequest{Address: modelAddr})
	require.NoError(t, err)
	assert.Nil(t, again.Objects["o"].Fields["f"].Value)
}

func TestUnknownModel(t *testing.T) {
	ctx := context.Background()
	s := New("repo")

	events, err := s.GetEvents(ctx, modelAddr, 0, changelog.ToCurrent)
	require.NoError(t, err)
	assert.Empty(t, events)

	snap, err := s.GetModelSnapshot(ctx, store.GetWithAddressRequest{Address: modelAddr})
	require.NoError(t, err)
	assert.Nil(t, snap)

	r, err := s.ExecuteCommand(ctx, actor, change.Must(change.NewAdd(modelAddr.Child("o"), change.Safe)))
	require.NoError(t, err)
	assert.Equal(t, change.Failed, r)
}

func TestAddressChecks(t *testing.T) {
	ctx := context.Background()
	s := New("repo")

	_, err := s.ExecuteCommand(ctx, actor, change.Must(change.NewAdd(models.ModelAddress("other", "m"), change.Safe)))
	assert.ErrorIs(t, err, constants.ErrOutsideRepo)

	_, err = s.GetModelSnapshot(ctx, store.GetWithAddressRequest{Address: modelAddr.Child("o")})
	assert.ErrorIs(t, err, constants.ErrInvalidAddress)

	_, err = s.GetEvents(ctx, models.ModelAddress("other", "m"), 0, changelog.ToCurrent)
	assert.ErrorIs(t, err, constants.ErrOutsideRepo)

	_, err = s.ExecuteCommand(ctx, actor, nil)
	assert.ErrorIs(t, err, constants.ErrInvalidCommand)
}

func TestLogSurvivesModelRemoval(t *testing.T) {
	ctx := context.Background()
	s := New("repo", WithBaseRevision(10))

	exec := func(c change.Command) int64 {
		r, err := s.ExecuteCommand(ctx, actor, c)
		require.NoError(t, err)
		return r
	}

	assert.Equal(t, int64(10), exec(change.Must(change.NewAdd(modelAddr, change.Safe))))
	assert.Equal(t, int64(11), exec(change.Must(change.NewRemove(modelAddr, change.Safe, 10))))

	has, err := s.HasModel(ctx, "model")
	require.NoError(t, err)
	assert.False(t, has)

	assert.Equal(t, int64(12), exec(change.Must(change.NewAdd(modelAddr, change.Safe))))
	assert.Equal(t, int64(12), s.Log("model").CurrentRevision())
}

func TestModelsCommitIndependently(t *testing.T) {
	ctx := context.Background()
	s := New("repo")

	const writers, perWriter = 4, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		addr := models.ModelAddress("repo", models.ID(fmt.Sprintf("m%d", w)))
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ExecuteCommand(ctx, actor, change.Must(change.NewAdd(addr, change.Safe)))
			assert.NoError(t, err)
			for i := 0; i < perWriter; i++ {
				obj := addr.Child(models.ID(fmt.Sprintf("o%d", i)))
				_, err := s.ExecuteCommand(ctx, actor, change.Must(change.NewAdd(obj, change.Forced)))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	ids, err := s.ModelIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, writers)
	for _, id := range ids {
		assert.Equal(t, int64(perWriter), s.Log(id).CurrentRevision())
	}
}

func TestConcurrentWritersOnOneModel(t *testing.T) {
	ctx := context.Background()
	s := New("repo")
	_, err := s.ExecuteCommand(ctx, actor, change.Must(change.NewAdd(modelAddr, change.Safe)))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]int64, 20)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := s.ExecuteCommand(ctx, actor, change.Must(change.NewAdd(modelAddr.Child(models.ID(fmt.Sprintf("o%d", i))), change.Safe)))
			assert.NoError(t, err)
			results[i] = r
		}()
	}
	wg.Wait()

	seen := map[int64]bool{}
	for _, r := range results {
		require.True(t, change.IsSuccess(r))
		assert.False(t, seen[r], "revision %d handed out twice", r)
		seen[r] = true
	}
	assert.Equal(t, int64(len(results)), s.Log("model").CurrentRevision())
}
