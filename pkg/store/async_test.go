package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/revstore/revstore/pkg/change"
	"github.com/revstore/revstore/pkg/constants"
	"github.com/revstore/revstore/pkg/models"
	"github.com/revstore/revstore/pkg/store"
	"github.com/revstore/revstore/pkg/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteAsync(t *testing.T) {
	ctx := context.Background()
	s := memstore.New("repo")
	modelAddr := models.ModelAddress("repo", "model")

	var got int64 = -100
	var failure error
	cb := store.CallbackFuncs[int64]{
		Success: func(r int64) { got = r },
		Failure: func(err error) { failure = err },
	}

	<-store.ExecuteAsync(ctx, s, "alice", change.Must(change.NewAdd(modelAddr, change.Safe)), cb)
	require.NoError(t, failure)
	assert.Equal(t, int64(0), got)

	<-store.ExecuteAsync(ctx, s, "alice", change.Must(change.NewAdd(modelAddr, change.Safe)), cb)
	assert.Equal(t, change.Failed, got, "rejections are results")

	<-store.ExecuteAsync(ctx, s, "", change.Must(change.NewAdd(modelAddr, change.Forced)), cb)
	assert.ErrorIs(t, failure, constants.ErrNoActor)
}

func TestAsyncNilCallbacks(t *testing.T) {
	done := store.Async(context.Background(), func(context.Context) (string, error) {
		return "", errors.New("boom")
	}, store.CallbackFuncs[string]{})
	<-done
}

func TestChangeModel(t *testing.T) {
	repo := models.RepositoryAddress("repo")

	addr, err := store.ChangeModel(repo, change.Must(change.NewAdd(models.FieldAddress("repo", "m", "o", "f"), change.Safe)))
	require.NoError(t, err)
	assert.Equal(t, models.ModelAddress("repo", "m"), addr)

	_, err = store.ChangeModel(repo, change.Must(change.NewAdd(models.ModelAddress("x", "m"), change.Safe)))
	assert.ErrorIs(t, err, constants.ErrOutsideRepo)
}
