package executor

import (
	"fmt"

	"github.com/revstore/revstore/pkg/change"
	"github.com/revstore/revstore/pkg/constants"
	"github.com/revstore/revstore/pkg/delta"
	"github.com/revstore/revstore/pkg/models"
)

// Outcome is the result of evaluating a change. Event and State are only set
// when Result is a revision; State is nil after the model was removed.
type Outcome struct {
	Result int64
	Event  change.Event
	State  *models.ModelState
}

func rejected(r int64) Outcome {
	return Outcome{Result: r}
}

// Evaluate validates c against the committed state of a model whose log is at
// revision current, and computes the event and resulting state without
// touching anything. state is nil when the model does not exist.
//
// Rejections come back as Outcome.Result. Errors are reserved for malformed
// input.
func Evaluate(actor models.ID, model models.Address, state *models.ModelState, current int64, c change.Change) (Outcome, error) {
	if actor.IsZero() {
		return rejected(change.Failed), constants.ErrNoActor
	}
	if c == nil {
		return rejected(change.Failed), fmt.Errorf("%w: nil change", constants.ErrInvalidCommand)
	}
	if model.Type() != models.TypeModel {
		return rejected(change.Failed), fmt.Errorf("%w: %v is not a model address", constants.ErrInvalidAddress, model)
	}
	if tx, ok := c.(change.Transaction); ok && len(tx.Commands) == 0 {
		if tx.Target.ModelAddress() != model {
			return rejected(change.Failed), fmt.Errorf("%w: %v is not in %v", constants.ErrOutsideModel, tx.Target, model)
		}
		return rejected(change.NoChange), nil
	}
	if err := c.Validate(); err != nil {
		return rejected(change.Failed), err
	}
	target := c.TargetAddress()
	if target.Repository != model.Repository {
		return rejected(change.Failed), fmt.Errorf("%w: %v is not in %v", constants.ErrOutsideRepo, target, model.Parent())
	}
	if target.ModelAddress() != model {
		return rejected(change.Failed), fmt.Errorf("%w: %v is not in %v", constants.ErrOutsideModel, target, model)
	}

	b := &builder{actor: actor, model: model, rev: current + 1}
	var r int64
	switch v := c.(type) {
	case change.Command:
		r = b.command(state, v)
	case change.Transaction:
		r = b.transaction(state, v)
	}
	switch {
	case r == change.Failed:
		return rejected(change.Failed), nil
	case len(b.events) == 0:
		return rejected(change.NoChange), nil
	}

	ev := b.event(target)
	next, err := ApplyEvent(state.Clone(), ev)
	if err != nil {
		return rejected(change.Failed), err
	}
	return Outcome{Result: b.rev, Event: ev, State: next}, nil
}

// builder collects the events of one change. Every event gets the revision
// the change will be committed at.
type builder struct {
	actor  models.ID
	model  models.Address
	rev    int64
	events []change.Event
}

func (b *builder) emit(ev change.Event) {
	ev.Actor = b.actor
	ev.Revision = b.rev
	b.events = append(b.events, ev)
}

// event returns the single event to log. Several events are wrapped in one
// transaction event rooted at target.
func (b *builder) event(target models.Address) change.Event {
	if len(b.events) == 1 {
		return b.events[0]
	}
	children := make([]change.Event, len(b.events))
	for i, ev := range b.events {
		ev.InTransaction = true
		children[i] = ev
	}
	first := children[0]
	return change.Event{
		Kind:              change.TransactionKind,
		Target:            target,
		Actor:             b.actor,
		Revision:          b.rev,
		OldModelRevision:  first.OldModelRevision,
		OldObjectRevision: models.NoRevision,
		OldFieldRevision:  models.NoRevision,
		Children:          children,
	}
}

func (b *builder) command(state *models.ModelState, cmd change.Command) int64 {
	safe := cmd.Intent == change.Safe
	switch cmd.Kind {
	case change.AddModel:
		if state != nil {
			if safe {
				return change.Failed
			}
			return change.NoChange
		}
		b.emit(change.Event{
			Kind:              change.AddModel,
			Target:            b.model,
			OldModelRevision:  models.NoRevision,
			OldObjectRevision: models.NoRevision,
			OldFieldRevision:  models.NoRevision,
		})
		return b.rev

	case change.RemoveModel:
		if state == nil {
			if safe {
				return change.Failed
			}
			return change.NoChange
		}
		if safe && state.Revision != cmd.Revision {
			return change.Failed
		}
		for _, oid := range state.ObjectIDs() {
			b.removeObject(state.Revision, state.Objects[oid])
		}
		b.emit(change.Event{
			Kind:              change.RemoveModel,
			Target:            b.model,
			OldModelRevision:  state.Revision,
			OldObjectRevision: models.NoRevision,
			OldFieldRevision:  models.NoRevision,
		})
		return b.rev
	}

	if state == nil {
		return change.Failed
	}
	return b.apply(delta.New(state), cmd)
}

func (b *builder) transaction(state *models.ModelState, tx change.Transaction) int64 {
	if state == nil {
		return change.Failed
	}
	cm := delta.New(state)
	for _, cmd := range tx.Commands {
		if b.apply(cm, cmd) == change.Failed {
			return change.Failed
		}
	}
	return b.rev
}

// apply runs cmd on the overlay and records its events if it changed
// anything. The events are derived from the overlay before the command runs.
func (b *builder) apply(cm *delta.ChangedModel, cmd change.Command) int64 {
	pending := b.describe(cm, cmd)
	r := cm.Apply(cmd)
	if r == models.RevisionUnconfirmed {
		for _, ev := range pending {
			b.emit(ev)
		}
	}
	return r
}

func (b *builder) describe(cm *delta.ChangedModel, cmd change.Command) []change.Event {
	ev := change.Event{
		Kind:              cmd.Kind,
		Target:            cmd.Target,
		OldModelRevision:  cm.Revision(),
		OldObjectRevision: models.NoRevision,
		OldFieldRevision:  models.NoRevision,
	}
	o := cm.Object(cmd.Target.Object)
	if o == nil {
		return []change.Event{ev}
	}
	ev.OldObjectRevision = o.Revision()

	if cmd.Kind == change.RemoveObject {
		var out []change.Event
		for _, fid := range o.FieldIDs() {
			out = append(out, change.Event{
				Kind:              change.RemoveField,
				Target:            o.Address().Child(fid),
				OldModelRevision:  cm.Revision(),
				OldObjectRevision: o.Revision(),
				OldFieldRevision:  o.FieldRevision(fid),
				Implied:           true,
				OldValue:          o.Value(fid),
			})
		}
		return append(out, ev)
	}

	if cmd.Target.Type() == models.TypeField && o.HasField(cmd.Target.Field) {
		ev.OldFieldRevision = o.FieldRevision(cmd.Target.Field)
		ev.OldValue = o.Value(cmd.Target.Field)
	}
	if cmd.Kind.IsValueKind() {
		ev.Value = cmd.Value
	}
	return []change.Event{ev}
}

// removeObject records the implied removal of a committed object and its
// fields.
func (b *builder) removeObject(modelRev int64, o *models.ObjectState) {
	for _, fid := range o.FieldIDs() {
		f := o.Fields[fid]
		b.emit(change.Event{
			Kind:              change.RemoveField,
			Target:            f.Address,
			OldModelRevision:  modelRev,
			OldObjectRevision: o.Revision,
			OldFieldRevision:  f.Revision,
			Implied:           true,
			OldValue:          f.Value,
		})
	}
	b.emit(change.Event{
		Kind:              change.RemoveObject,
		Target:            o.Address,
		OldModelRevision:  modelRev,
		OldObjectRevision: o.Revision,
		OldFieldRevision:  models.NoRevision,
		Implied:           true,
	})
}
