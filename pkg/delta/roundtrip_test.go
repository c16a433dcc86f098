package delta_test

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/revstore/revstore/pkg/change"
	"github.com/revstore/revstore/pkg/delta"
	"github.com/revstore/revstore/pkg/executor"
	"github.com/revstore/revstore/pkg/models"
	"github.com/stretchr/testify/require"
)

var modelAddr = models.ModelAddress("repo", "model")

var (
	objectIDs = []models.ID{"a", "b", "c", "d"}
	fieldIDs  = []models.ID{"x", "y", "z"}
	values    = []models.Value{nil, models.Integer(1), models.Integer(2), models.String("s")}
)

// direct applies the same operations as the overlay to a plain mutable copy.
type direct struct {
	state *models.ModelState
}

func (d *direct) createObject(id models.ID) {
	if d.state.Objects[id] == nil {
		d.state.Objects[id] = models.NewObjectState(modelAddr.Child(id), 0)
	}
}

func (d *direct) removeObject(id models.ID) {
	delete(d.state.Objects, id)
}

func (d *direct) createField(oid, fid models.ID) {
	o := d.state.Objects[oid]
	if o != nil && o.Fields[fid] == nil {
		o.Fields[fid] = models.NewFieldState(o.Address.Child(fid), 0)
	}
}

func (d *direct) removeField(oid, fid models.ID) {
	if o := d.state.Objects[oid]; o != nil {
		delete(o.Fields, fid)
	}
}

func (d *direct) setValue(oid, fid models.ID, v models.Value) {
	if o := d.state.Objects[oid]; o != nil {
		if f := o.Fields[fid]; f != nil {
			f.Value = v
		}
	}
}

// seed commits a random starting model through the executor.
func seed(t *testing.T, rng *rand.Rand) (*executor.Executor, *executor.Model) {
	ctx := context.Background()
	ex := executor.New(nil)
	m := executor.NewModel(modelAddr, 0)
	_, err := ex.Execute(ctx, "seed", m, change.Must(change.NewAdd(modelAddr, change.Safe)))
	require.NoError(t, err)

	cm := delta.New(m.Snapshot())
	for _, oid := range objectIDs[:2] {
		o := cm.CreateObject(oid)
		for _, fid := range fieldIDs {
			if rng.Intn(2) == 0 {
				o.CreateField(fid)
				o.SetValue(fid, values[rng.Intn(len(values))])
			}
		}
	}
	r, err := ex.Execute(ctx, "seed", m, cm.Transaction())
	require.NoError(t, err)
	require.True(t, change.IsSuccess(r))
	return ex, m
}

func TestTransactionReproducesOverlay(t *testing.T) {
	for round := 0; round < 50; round++ {
		rng := rand.New(rand.NewSource(int64(round)))
		t.Run(fmt.Sprintf("seed %d", round), func(t *testing.T) {
			ex, m := seed(t, rng)
			base := m.Snapshot()

			cm := delta.New(base)
			d := &direct{state: base.Clone()}

			for step := 0; step < 20; step++ {
				oid := objectIDs[rng.Intn(len(objectIDs))]
				fid := fieldIDs[rng.Intn(len(fieldIDs))]
				switch rng.Intn(5) {
				case 0:
					cm.CreateObject(oid)
					d.createObject(oid)
				case 1:
					cm.RemoveObject(oid)
					d.removeObject(oid)
				case 2:
					if o := cm.Object(oid); o != nil {
						o.CreateField(fid)
					}
					d.createField(oid, fid)
				case 3:
					if o := cm.Object(oid); o != nil {
						o.RemoveField(fid)
					}
					d.removeField(oid, fid)
				case 4:
					v := values[rng.Intn(len(values))]
					if o := cm.Object(oid); o != nil {
						o.SetValue(fid, v)
					}
					d.setValue(oid, fid, v)
				}
			}

			require.True(t, d.state.EqualContent(cm.Snapshot(0)), "overlay snapshot diverged")

			r, err := ex.Execute(context.Background(), "tester", m, cm.Transaction())
			require.NoError(t, err)
			require.NotEqual(t, change.Failed, r)
			if cm.IsEmpty() {
				require.Equal(t, change.NoChange, r)
			}
			require.True(t, d.state.EqualContent(m.Snapshot()), "committed state diverged")
		})
	}
}
