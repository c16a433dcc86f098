package executor

import (
	"fmt"

	"github.com/revstore/revstore/pkg/change"
	"github.com/revstore/revstore/pkg/constants"
	"github.com/revstore/revstore/pkg/models"
)

// ApplyEvent replays a logged event onto state and returns the result. state
// is modified in place; it is nil for a model that does not exist, and the
// result is nil after a RemoveModel event.
func ApplyEvent(state *models.ModelState, ev change.Event) (*models.ModelState, error) {
	return applyEvent(state, ev, models.Address{})
}

// ApplyFilteredEvent replays an event of model taken from a stream that left
// out the events a reader may not see. Missing ancestors of a target are
// created and removals of missing entities are skipped, so state ends up
// holding the visible part of the model.
func ApplyFilteredEvent(state *models.ModelState, model models.Address, ev change.Event) (*models.ModelState, error) {
	if model.Type() != models.TypeModel {
		return nil, fmt.Errorf("%w: %v is not a model address", constants.ErrInvalidAddress, model)
	}
	return applyEvent(state, ev, model)
}

// applyEvent replays ev. A non-zero fill is the model whose missing entities
// are created on demand.
func applyEvent(state *models.ModelState, ev change.Event, fill models.Address) (*models.ModelState, error) {
	rev := ev.Revision
	for _, a := range ev.Flatten() {
		var err error
		if state, err = applyAtom(state, a, rev, fill); err != nil {
			return nil, err
		}
	}
	if state != nil {
		state.Revision = rev
	}
	return state, nil
}

func applyAtom(state *models.ModelState, ev change.Event, rev int64, fill models.Address) (*models.ModelState, error) {
	t := ev.Target
	filtered := !fill.IsZero()
	switch ev.Kind {
	case change.AddModel:
		return models.NewModelState(t.ModelAddress(), rev), nil
	case change.RemoveModel:
		return nil, nil
	}

	if filtered && t.ModelAddress() != fill {
		return nil, fmt.Errorf("%w: %v is not in %v", constants.ErrOutsideModel, t, fill)
	}
	if state == nil {
		if !filtered {
			return nil, fmt.Errorf("%w: %v on missing model %v", constants.ErrNoModel, ev.Kind, t.ModelAddress())
		}
		state = models.NewModelState(fill, rev)
	}
	if t.ModelAddress() != state.Address {
		return nil, fmt.Errorf("%w: %v is not in %v", constants.ErrOutsideModel, t, state.Address)
	}

	switch ev.Kind {
	case change.AddObject:
		state.Objects[t.Object] = models.NewObjectState(t, rev)
		return state, nil
	case change.RemoveObject:
		delete(state.Objects, t.Object)
		return state, nil
	}

	o := state.Objects[t.Object]
	if o == nil {
		if !filtered {
			return nil, fmt.Errorf("%w: %v on missing object %v", constants.ErrInvalidCommand, ev.Kind, t.ObjectAddress())
		}
		if ev.Kind == change.RemoveField {
			return state, nil
		}
		o = models.NewObjectState(t.ObjectAddress(), rev)
		state.Objects[t.Object] = o
	}
	o.Revision = rev

	switch ev.Kind {
	case change.AddField:
		o.Fields[t.Field] = models.NewFieldState(t, rev)
	case change.RemoveField:
		delete(o.Fields, t.Field)
	case change.AddValue, change.ChangeValue, change.RemoveValue:
		f := o.Fields[t.Field]
		if f == nil {
			if !filtered {
				return nil, fmt.Errorf("%w: %v on missing field %v", constants.ErrInvalidCommand, ev.Kind, t)
			}
			f = models.NewFieldState(t, rev)
			o.Fields[t.Field] = f
		}
		f.Value = ev.Value
		f.Revision = rev
	default:
		return nil, fmt.Errorf("%w: cannot replay %v", constants.ErrInvalidCommand, ev.Kind)
	}
	return state, nil
}

// Replay rebuilds a model's state from its events in log order.
func Replay(events []change.Event) (*models.ModelState, error) {
	var state *models.ModelState
	for _, ev := range events {
		var err error
		if state, err = ApplyEvent(state, ev); err != nil {
			return nil, fmt.Errorf("replaying revision %d: %w", ev.Revision, err)
		}
	}
	return state, nil
}
