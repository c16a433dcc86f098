package models

import (
	"maps"
	"slices"
)

const (
	// NoRevision marks an entity that does not exist or whose revision is unknown.
	NoRevision int64 = -1
	// RevisionUnconfirmed is the revision of an entity created in an uncommitted
	// overlay.
	RevisionUnconfirmed int64 = 0
)

// FieldState is the committed state of a field. A nil Value means the field
// is empty.
type FieldState struct {
	Address  Address
	Revision int64
	Value    Value
}

func NewFieldState(addr Address, rev int64) *FieldState {
	return &FieldState{Address: addr, Revision: rev}
}

func (f *FieldState) Clone() *FieldState {
	c := *f
	return &c
}

func (f *FieldState) Equal(o *FieldState) bool {
	if f == nil || o == nil {
		return f == nil && o == nil
	}
	return f.EqualContent(o) && f.Revision == o.Revision
}

// EqualContent compares address and value but not the revision.
func (f *FieldState) EqualContent(o *FieldState) bool {
	if f == nil || o == nil {
		return f == nil && o == nil
	}
	return f.Address == o.Address && EqualValues(f.Value, o.Value)
}

// ObjectState is the committed state of an object and its fields.
type ObjectState struct {
	Address  Address
	Revision int64
	Fields   map[ID]*FieldState
}

func NewObjectState(addr Address, rev int64) *ObjectState {
	return &ObjectState{Address: addr, Revision: rev, Fields: make(map[ID]*FieldState)}
}

func (o *ObjectState) Field(id ID) *FieldState {
	return o.Fields[id]
}

func (o *ObjectState) HasField(id ID) bool {
	_, ok := o.Fields[id]
	return ok
}

// FieldIDs returns the field ids in ascending order.
func (o *ObjectState) FieldIDs() []ID {
	return slices.Sorted(maps.Keys(o.Fields))
}

func (o *ObjectState) Clone() *ObjectState {
	c := &ObjectState{Address: o.Address, Revision: o.Revision, Fields: make(map[ID]*FieldState, len(o.Fields))}
	for id, f := range o.Fields {
		c.Fields[id] = f.Clone()
	}
	return c
}

func (o *ObjectState) Equal(other *ObjectState) bool {
	return o.equal(other, true)
}

// EqualContent compares the object tree ignoring revisions.
func (o *ObjectState) EqualContent(other *ObjectState) bool {
	return o.equal(other, false)
}

func (o *ObjectState) equal(other *ObjectState, revs bool) bool {
	if o == nil || other == nil {
		return o == nil && other == nil
	}
	if o.Address != other.Address || len(o.Fields) != len(other.Fields) {
		return false
	}
	if revs && o.Revision != other.Revision {
		return false
	}
	for id, f := range o.Fields {
		g, ok := other.Fields[id]
		if !ok {
			return false
		}
		if revs && !f.Equal(g) || !revs && !f.EqualContent(g) {
			return false
		}
	}
	return true
}

// ModelState is the committed state of a model and its objects.
type ModelState struct {
	Address  Address
	Revision int64
	Objects  map[ID]*ObjectState
}

func NewModelState(addr Address, rev int64) *ModelState {
	return &ModelState{Address: addr, Revision: rev, Objects: make(map[ID]*ObjectState)}
}

func (m *ModelState) Object(id ID) *ObjectState {
	return m.Objects[id]
}

func (m *ModelState) HasObject(id ID) bool {
	_, ok := m.Objects[id]
	return ok
}

// ObjectIDs returns the object ids in ascending order.
func (m *ModelState) ObjectIDs() []ID {
	return slices.Sorted(maps.Keys(m.Objects))
}

// Lookup returns the revision of the entity at addr below the model and
// whether it exists. A field address also returns the field state.
func (m *ModelState) Lookup(addr Address) (int64, *FieldState, bool) {
	if m == nil || addr.ModelAddress() != m.Address {
		return NoRevision, nil, false
	}
	switch addr.Type() {
	case TypeModel:
		return m.Revision, nil, true
	case TypeObject:
		if o := m.Objects[addr.Object]; o != nil {
			return o.Revision, nil, true
		}
	case TypeField:
		if o := m.Objects[addr.Object]; o != nil {
			if f := o.Fields[addr.Field]; f != nil {
				return f.Revision, f, true
			}
		}
	}
	return NoRevision, nil, false
}

func (m *ModelState) Clone() *ModelState {
	if m == nil {
		return nil
	}
	c := &ModelState{Address: m.Address, Revision: m.Revision, Objects: make(map[ID]*ObjectState, len(m.Objects))}
	for id, o := range m.Objects {
		c.Objects[id] = o.Clone()
	}
	return c
}

func (m *ModelState) Equal(other *ModelState) bool {
	return m.equal(other, true)
}

// EqualContent compares the model tree ignoring revisions.
func (m *ModelState) EqualContent(other *ModelState) bool {
	return m.equal(other, false)
}

func (m *ModelState) equal(other *ModelState, revs bool) bool {
	if m == nil || other == nil {
		return m == nil && other == nil
	}
	if m.Address != other.Address || len(m.Objects) != len(other.Objects) {
		return false
	}
	if revs && m.Revision != other.Revision {
		return false
	}
	for id, o := range m.Objects {
		if !o.equal(other.Objects[id], revs) {
			return false
		}
	}
	return true
}

// RepositoryState groups the models of one repository. Repositories carry no
// revision of their own.
type RepositoryState struct {
	Address Address
	Models  map[ID]*ModelState
}

func NewRepositoryState(addr Address) *RepositoryState {
	return &RepositoryState{Address: addr, Models: make(map[ID]*ModelState)}
}

func (r *RepositoryState) Model(id ID) *ModelState {
	return r.Models[id]
}

func (r *RepositoryState) HasModel(id ID) bool {
	_, ok := r.Models[id]
	return ok
}

// ModelIDs returns the model ids in ascending order.
func (r *RepositoryState) ModelIDs() []ID {
	return slices.Sorted(maps.Keys(r.Models))
}

func (r *RepositoryState) Clone() *RepositoryState {
	c := &RepositoryState{Address: r.Address, Models: make(map[ID]*ModelState, len(r.Models))}
	for id, m := range r.Models {
		c.Models[id] = m.Clone()
	}
	return c
}
