package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/revstore/revstore/internal/testenv"
	"github.com/revstore/revstore/pkg/change"
	"github.com/revstore/revstore/pkg/changelog"
	"github.com/revstore/revstore/pkg/models"
	"github.com/revstore/revstore/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const actor models.ID = "alice"

func TestRecordRoundTrip(t *testing.T) {
	s := NewFromDB(nil, "repo")
	model := models.ModelAddress("repo", "m")
	ev := change.Event{
		Kind:              change.AddValue,
		Target:            model.Child("o").Child("f"),
		Actor:             actor,
		Revision:          7,
		OldModelRevision:  6,
		OldObjectRevision: 5,
		OldFieldRevision:  5,
		Value:             models.String("v"),
	}

	row, err := s.encode(model, ev)
	require.NoError(t, err)
	assert.Equal(t, "repo", row.Repository)
	assert.Equal(t, "m", row.Model)
	assert.Equal(t, int64(7), row.Revision)
	assert.Equal(t, "alice", row.Actor)
	assert.Equal(t, change.AddValue.String(), row.Kind)

	got, err := s.decode(row)
	require.NoError(t, err)
	assert.Equal(t, ev.String(), got.String())
	assert.True(t, models.EqualValues(ev.Value, got.Value))

	row.Payload = []byte{0xff}
	_, err = s.decode(row)
	assert.Error(t, err)
}

func TestOptions(t *testing.T) {
	s := NewFromDB(nil, "repo", WithBaseRevision(3), WithMaxAttempts(0))
	assert.Equal(t, int64(3), s.base)
	assert.Equal(t, 1, s.maxAttempts)
	assert.Equal(t, int64(2), s.cached("m").current)
	assert.Equal(t, models.RepositoryAddress("repo"), s.RepositoryAddress())
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := testenv.PostgresDSN(t)
	repo := models.ID(fmt.Sprintf("test_%d", time.Now().UnixNano()))
	s, err := New(dsn, repo)
	require.NoError(t, err)
	t.Cleanup(func() {
		s.getDB().Where("repository = ?", string(repo)).Delete(&EventRecord{})
		_ = s.Close()
	})
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestExecuteAndRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	model := s.RepositoryAddress().Child("m")

	r, err := s.ExecuteCommand(ctx, actor, change.Must(change.NewAdd(model, change.Safe)))
	require.NoError(t, err)
	assert.Equal(t, int64(0), r)

	tx, err := change.NewTransaction(model,
		change.Must(change.NewAdd(model.Child("o"), change.Safe)),
		change.Must(change.NewAdd(model.Child("o").Child("f"), change.Safe)),
	)
	require.NoError(t, err)
	r, err = s.ExecuteCommand(ctx, actor, tx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), r)

	r, err = s.ExecuteCommand(ctx, actor, change.Must(change.NewAdd(model.Child("o"), change.Safe)))
	require.NoError(t, err)
	assert.Equal(t, change.Failed, r)

	events, err := s.GetEvents(ctx, model, 0, changelog.ToCurrent)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, events[1].IsTransaction())

	obj, err := s.GetObjectSnapshot(ctx, store.GetWithAddressRequest{Address: model.Child("o")})
	require.NoError(t, err)
	require.NotNil(t, obj)
	assert.True(t, obj.HasField("f"))

	ids, err := s.ModelIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.ID{"m"}, ids)
}

func TestSecondWriterSeesCommits(t *testing.T) {
	a := newTestStore(t)
	ctx := context.Background()
	b := NewFromDB(a.getDB(), a.RepositoryAddress().Repository)
	model := a.RepositoryAddress().Child("m")

	_, err := a.ExecuteCommand(ctx, actor, change.Must(change.NewAdd(model, change.Safe)))
	require.NoError(t, err)

	// b has never read the log; its commit must land after a's.
	r, err := b.ExecuteCommand(ctx, actor, change.Must(change.NewAdd(model.Child("o"), change.Safe)))
	require.NoError(t, err)
	assert.Equal(t, int64(1), r)

	var wg sync.WaitGroup
	results := make([]int64, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := a
			if i%2 == 1 {
				w = b
			}
			id := models.ID(fmt.Sprintf("f%d", i))
			results[i], _ = w.ExecuteCommand(ctx, actor, change.Must(change.NewAdd(model.Child("o").Child(id), change.Safe)))
		}(i)
	}
	wg.Wait()

	seen := map[int64]bool{}
	for _, r := range results {
		require.True(t, change.IsSuccess(r))
		seen[r] = true
	}
	assert.Len(t, seen, len(results), "every commit consumes its own revision")

	snap, err := a.GetModelSnapshot(ctx, store.GetWithAddressRequest{Address: model})
	require.NoError(t, err)
	assert.Equal(t, int64(1+len(results)), snap.Revision)
	assert.Len(t, snap.Object("o").Fields, len(results))
}
