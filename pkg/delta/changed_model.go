package delta

import (
	"maps"
	"slices"

	"github.com/revstore/revstore/pkg/change"
	"github.com/revstore/revstore/pkg/models"
)

// ChangedModel is an overlay over a committed model snapshot. It records
// added, removed and changed entities and never mutates the base.
//
// A ChangedModel is not safe for concurrent use.
type ChangedModel struct {
	base *models.ModelState
	// objects holds every live object the overlay has looked at.
	objects map[models.ID]*ChangedObject
	// removed holds base objects removed at some point, including those
	// created again afterwards.
	removed map[models.ID]bool
}

// New returns an empty overlay over base, which must not be nil.
func New(base *models.ModelState) *ChangedModel {
	return &ChangedModel{
		base:    base,
		objects: make(map[models.ID]*ChangedObject),
		removed: make(map[models.ID]bool),
	}
}

func (m *ChangedModel) Address() models.Address {
	return m.base.Address
}

// Revision is the revision of the base model.
func (m *ChangedModel) Revision() int64 {
	return m.base.Revision
}

// Base returns the snapshot the overlay is computed against.
func (m *ChangedModel) Base() *models.ModelState {
	return m.base
}

func (m *ChangedModel) HasObject(id models.ID) bool {
	return m.Object(id) != nil
}

// Object returns the overlay view of an object, or nil if it does not exist.
func (m *ChangedModel) Object(id models.ID) *ChangedObject {
	if o, ok := m.objects[id]; ok {
		return o
	}
	if m.removed[id] {
		return nil
	}
	b := m.base.Objects[id]
	if b == nil {
		return nil
	}
	o := newChangedObject(b.Address, b)
	m.objects[id] = o
	return o
}

// ObjectIDs returns the ids of the live objects in ascending order.
func (m *ChangedModel) ObjectIDs() []models.ID {
	ids := make(map[models.ID]struct{}, len(m.base.Objects)+len(m.objects))
	for id := range m.base.Objects {
		if !m.removed[id] {
			ids[id] = struct{}{}
		}
	}
	for id := range m.objects {
		ids[id] = struct{}{}
	}
	return slices.Sorted(maps.Keys(ids))
}

// CreateObject returns the object with the given id, creating it when it does
// not exist. An object removed earlier in this overlay comes back empty with
// an unconfirmed revision.
func (m *ChangedModel) CreateObject(id models.ID) *ChangedObject {
	if o := m.Object(id); o != nil {
		return o
	}
	o := newChangedObject(m.base.Address.Child(id), nil)
	m.objects[id] = o
	return o
}

// RemoveObject removes the object and any pending changes to its fields. It
// reports whether the object existed.
func (m *ChangedModel) RemoveObject(id models.ID) bool {
	if !m.HasObject(id) {
		return false
	}
	delete(m.objects, id)
	if _, inBase := m.base.Objects[id]; inBase {
		m.removed[id] = true
	}
	return true
}

// Apply executes one object- or field-level command against the overlay. It
// returns models.RevisionUnconfirmed when the command changed the overlay,
// change.NoChange or change.Failed otherwise. Model commands always fail.
func (m *ChangedModel) Apply(cmd change.Command) int64 {
	if cmd.Validate() != nil || cmd.Target.ModelAddress() != m.base.Address {
		return change.Failed
	}
	safe := cmd.Intent == change.Safe
	missing := func() int64 {
		if safe {
			return change.Failed
		}
		return change.NoChange
	}

	switch cmd.Kind {
	case change.AddObject:
		if m.HasObject(cmd.Target.Object) {
			return missing()
		}
		m.CreateObject(cmd.Target.Object)

	case change.RemoveObject:
		o := m.Object(cmd.Target.Object)
		if o == nil {
			return missing()
		}
		if safe && o.Revision() != cmd.Revision {
			return change.Failed
		}
		m.RemoveObject(cmd.Target.Object)

	case change.AddField:
		o := m.Object(cmd.Target.Object)
		if o == nil {
			return change.Failed
		}
		if o.HasField(cmd.Target.Field) {
			return missing()
		}
		o.CreateField(cmd.Target.Field)

	case change.RemoveField:
		o := m.Object(cmd.Target.Object)
		if o == nil || !o.HasField(cmd.Target.Field) {
			return missing()
		}
		if safe && o.FieldRevision(cmd.Target.Field) != cmd.Revision {
			return change.Failed
		}
		o.RemoveField(cmd.Target.Field)

	case change.AddValue, change.ChangeValue, change.RemoveValue:
		o := m.Object(cmd.Target.Object)
		if o == nil || !o.HasField(cmd.Target.Field) {
			return change.Failed
		}
		id := cmd.Target.Field
		if safe && o.FieldRevision(id) != cmd.Revision {
			return change.Failed
		}
		cur := o.Value(id)
		if models.EqualValues(cur, cmd.Value) {
			return change.NoChange
		}
		if safe && (cmd.Kind == change.AddValue && cur != nil || cmd.Kind == change.ChangeValue && cur == nil) {
			return change.Failed
		}
		o.SetValue(id, cmd.Value)

	default:
		return change.Failed
	}
	return models.RevisionUnconfirmed
}

// Commands returns the forced commands that turn the base into the overlay
// state, ordered remove-field, remove-object, add-object, add-field,
// change-value.
func (m *ChangedModel) Commands() []change.Command {
	var removeFields, removeObjects, addObjects, addFields, values []change.Command

	for _, id := range slices.Sorted(maps.Keys(m.removed)) {
		b := m.base.Objects[id]
		removeObjects = append(removeObjects, forced(change.RemoveObject, b.Address, b.Revision, nil))
	}

	for _, id := range slices.Sorted(maps.Keys(m.objects)) {
		o := m.objects[id]
		if o.base == nil {
			addObjects = append(addObjects, forced(change.AddObject, o.address, models.NoRevision, nil))
		} else {
			for _, fid := range slices.Sorted(maps.Keys(o.removed)) {
				bf := o.base.Fields[fid]
				removeFields = append(removeFields, forced(change.RemoveField, bf.Address, bf.Revision, nil))
			}
		}

		for _, fid := range slices.Sorted(maps.Keys(o.fields)) {
			f := o.fields[fid]
			var old models.Value
			if bf := o.baseField(fid); bf != nil {
				old = bf.Value
			} else {
				addFields = append(addFields, forced(change.AddField, f.Address, models.NoRevision, nil))
			}
			switch {
			case models.EqualValues(old, f.Value):
			case old == nil:
				values = append(values, forced(change.AddValue, f.Address, f.Revision, f.Value))
			case f.Value == nil:
				values = append(values, forced(change.RemoveValue, f.Address, f.Revision, nil))
			default:
				values = append(values, forced(change.ChangeValue, f.Address, f.Revision, f.Value))
			}
		}
	}

	out := make([]change.Command, 0, len(removeFields)+len(removeObjects)+len(addObjects)+len(addFields)+len(values))
	out = append(out, removeFields...)
	out = append(out, removeObjects...)
	out = append(out, addObjects...)
	out = append(out, addFields...)
	return append(out, values...)
}

func forced(kind change.Kind, target models.Address, rev int64, v models.Value) change.Command {
	return change.Command{Kind: kind, Target: target, Intent: change.Forced, Revision: rev, Value: v}
}

// Transaction wraps Commands. A transaction without commands means the
// overlay nets to no change.
func (m *ChangedModel) Transaction() change.Transaction {
	return change.Transaction{Target: m.base.Address, Commands: m.Commands()}
}

func (m *ChangedModel) IsEmpty() bool {
	return m.CountChanges(1) == 0
}

// CountChanges counts the net changes, stopping once limit is reached.
func (m *ChangedModel) CountChanges(limit int) int {
	n := len(m.removed)
	for _, o := range m.objects {
		if n >= limit {
			return limit
		}
		n += o.countChanges()
	}
	return min(n, limit)
}

// Clear drops every pending change.
func (m *ChangedModel) Clear() {
	clear(m.objects)
	clear(m.removed)
}

// Snapshot materializes the overlay. Entities that differ from the base get
// revision rev, and so does the model.
func (m *ChangedModel) Snapshot(rev int64) *models.ModelState {
	out := models.NewModelState(m.base.Address, rev)
	for id, b := range m.base.Objects {
		if m.removed[id] {
			continue
		}
		if _, touched := m.objects[id]; !touched {
			out.Objects[id] = b.Clone()
		}
	}
	for id, o := range m.objects {
		out.Objects[id] = o.snapshot(rev)
	}
	return out
}
