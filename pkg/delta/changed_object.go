package delta

import (
	"maps"
	"slices"

	"github.com/revstore/revstore/pkg/models"
)

// ChangedObject is the overlay of one object. Fields nest the same way
// objects do in ChangedModel.
type ChangedObject struct {
	address models.Address
	// base is nil when the object was created in the overlay.
	base *models.ObjectState
	// fields holds copies of every live field that was created or written.
	fields map[models.ID]*models.FieldState
	// removed holds base fields removed at some point.
	removed map[models.ID]bool
}

func newChangedObject(addr models.Address, base *models.ObjectState) *ChangedObject {
	return &ChangedObject{
		address: addr,
		base:    base,
		fields:  make(map[models.ID]*models.FieldState),
		removed: make(map[models.ID]bool),
	}
}

func (o *ChangedObject) Address() models.Address {
	return o.address
}

// Revision is the committed revision, or models.RevisionUnconfirmed for an
// object created in the overlay.
func (o *ChangedObject) Revision() int64 {
	if o.base == nil {
		return models.RevisionUnconfirmed
	}
	return o.base.Revision
}

// IsNew reports whether the object was created in the overlay.
func (o *ChangedObject) IsNew() bool {
	return o.base == nil
}

// baseField returns the committed field that the live field with this id
// continues, or nil.
func (o *ChangedObject) baseField(id models.ID) *models.FieldState {
	if o.base == nil || o.removed[id] {
		return nil
	}
	return o.base.Fields[id]
}

func (o *ChangedObject) field(id models.ID) *models.FieldState {
	if f, ok := o.fields[id]; ok {
		return f
	}
	return o.baseField(id)
}

func (o *ChangedObject) HasField(id models.ID) bool {
	return o.field(id) != nil
}

// FieldRevision returns the field's revision or models.NoRevision.
func (o *ChangedObject) FieldRevision(id models.ID) int64 {
	if f := o.field(id); f != nil {
		return f.Revision
	}
	return models.NoRevision
}

// Value returns the field's value, nil when the field is empty or missing.
func (o *ChangedObject) Value(id models.ID) models.Value {
	if f := o.field(id); f != nil {
		return f.Value
	}
	return nil
}

// FieldIDs returns the ids of the live fields in ascending order.
func (o *ChangedObject) FieldIDs() []models.ID {
	ids := make(map[models.ID]struct{})
	if o.base != nil {
		for id := range o.base.Fields {
			if !o.removed[id] {
				ids[id] = struct{}{}
			}
		}
	}
	for id := range o.fields {
		ids[id] = struct{}{}
	}
	return slices.Sorted(maps.Keys(ids))
}

// CreateField adds an empty field. It reports false if the field exists.
func (o *ChangedObject) CreateField(id models.ID) bool {
	if o.HasField(id) {
		return false
	}
	o.fields[id] = models.NewFieldState(o.address.Child(id), models.RevisionUnconfirmed)
	return true
}

// RemoveField reports whether the field existed.
func (o *ChangedObject) RemoveField(id models.ID) bool {
	if !o.HasField(id) {
		return false
	}
	delete(o.fields, id)
	if o.base != nil && o.base.Fields[id] != nil {
		o.removed[id] = true
	}
	return true
}

// SetValue writes the value of an existing field. A nil value empties it.
func (o *ChangedObject) SetValue(id models.ID, v models.Value) bool {
	f := o.field(id)
	if f == nil {
		return false
	}
	if _, own := o.fields[id]; !own {
		f = f.Clone()
		o.fields[id] = f
	}
	f.Value = v
	return true
}

func (o *ChangedObject) countChanges() int {
	n := len(o.removed)
	if o.base == nil {
		n++
	}
	for id, f := range o.fields {
		bf := o.baseField(id)
		if bf == nil {
			n++
			if f.Value != nil {
				n++
			}
		} else if !models.EqualValues(bf.Value, f.Value) {
			n++
		}
	}
	return n
}

func (o *ChangedObject) snapshot(rev int64) *models.ObjectState {
	out := models.NewObjectState(o.address, o.Revision())
	changed := o.base == nil || len(o.removed) > 0
	if o.base != nil {
		for id, bf := range o.base.Fields {
			if _, touched := o.fields[id]; !touched && !o.removed[id] {
				out.Fields[id] = bf.Clone()
			}
		}
	}
	for id, f := range o.fields {
		c := f.Clone()
		if bf := o.baseField(id); bf == nil || !models.EqualValues(bf.Value, f.Value) {
			c.Revision = rev
			changed = true
		}
		out.Fields[id] = c
	}
	if changed {
		out.Revision = rev
	}
	return out
}
