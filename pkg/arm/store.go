package arm

import (
	"context"
	"fmt"

	"github.com/revstore/revstore/pkg/change"
	"github.com/revstore/revstore/pkg/constants"
	"github.com/revstore/revstore/pkg/models"
	"github.com/revstore/revstore/pkg/store"
)

// AccessError is returned when an actor lacks the access an operation needs.
type AccessError struct {
	Actor   models.ID
	Address models.Address
	Access  Access
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("%v: %s may not %v %v", constants.ErrAccessDenied, e.Actor, e.Access, e.Address)
}

func (e *AccessError) Unwrap() error {
	return constants.ErrAccessDenied
}

// CanSeeAddress reports whether actor may read addr or, failing that, the
// entity one level up. A field is therefore visible to readers of its object
// even when the field itself is denied.
func CanSeeAddress(am AuthorizationManager, actor models.ID, addr models.Address) bool {
	if am.CanRead(actor, addr) {
		return true
	}
	parent := addr.Parent()
	return !parent.IsZero() && am.CanRead(actor, parent)
}

// CanSee reports whether an atomic event is visible to actor.
func CanSee(am AuthorizationManager, actor models.ID, ev change.Event) bool {
	return CanSeeAddress(am, actor, ev.Target)
}

// FilterEvent returns ev as actor may see it. Transaction events keep their
// visible children only and are hidden when none is left.
func FilterEvent(am AuthorizationManager, actor models.ID, ev change.Event) (change.Event, bool) {
	if !ev.IsTransaction() {
		return ev, CanSee(am, actor, ev)
	}
	var children []change.Event
	for _, c := range ev.Children {
		if fc, ok := FilterEvent(am, actor, c); ok {
			children = append(children, fc)
		}
	}
	if len(children) == 0 {
		return change.Event{}, false
	}
	ev.Children = children
	return ev, true
}

// FilterEvents drops the events actor may not see.
func FilterEvents(am AuthorizationManager, actor models.ID, events []change.Event) []change.Event {
	out := make([]change.Event, 0, len(events))
	for _, ev := range events {
		if fe, ok := FilterEvent(am, actor, ev); ok {
			out = append(out, fe)
		}
	}
	return out
}

// FilterObject returns the visible part of o, or nil when nothing of it is
// visible. o is not modified.
func FilterObject(am AuthorizationManager, actor models.ID, o *models.ObjectState) *models.ObjectState {
	if o == nil {
		return nil
	}
	out := models.NewObjectState(o.Address, o.Revision)
	for id, f := range o.Fields {
		if CanSeeAddress(am, actor, f.Address) {
			out.Fields[id] = f.Clone()
		}
	}
	if len(out.Fields) == 0 && !CanSeeAddress(am, actor, o.Address) {
		return nil
	}
	return out
}

// FilterModel returns the visible part of m, or nil when nothing of it is
// visible. m is not modified.
func FilterModel(am AuthorizationManager, actor models.ID, m *models.ModelState) *models.ModelState {
	if m == nil {
		return nil
	}
	out := models.NewModelState(m.Address, m.Revision)
	for id, o := range m.Objects {
		if fo := FilterObject(am, actor, o); fo != nil {
			out.Objects[id] = fo
		}
	}
	if len(out.Objects) == 0 && !CanSeeAddress(am, actor, m.Address) {
		return nil
	}
	return out
}

// Store is a store.Store restricted to one actor.
type Store struct {
	inner store.Store
	actor models.ID
	am    AuthorizationManager
}

var _ store.Store = (*Store)(nil)

func NewStore(inner store.Store, actor models.ID, am AuthorizationManager) *Store {
	return &Store{inner: inner, actor: actor, am: am}
}

func (s *Store) Actor() models.ID {
	return s.actor
}

func (s *Store) RepositoryAddress() models.Address {
	return s.inner.RepositoryAddress()
}

// ExecuteCommand checks write access to the target of every command before
// delegating. Denied writes return an *AccessError, never change.Failed.
func (s *Store) ExecuteCommand(ctx context.Context, actor models.ID, c change.Change) (int64, error) {
	if actor != s.actor {
		return change.Failed, fmt.Errorf("%w: store of %s used by %s", constants.ErrAccessDenied, s.actor, actor)
	}
	if c == nil {
		return change.Failed, fmt.Errorf("%w: nil change", constants.ErrInvalidCommand)
	}
	for _, cmd := range change.Commands(c) {
		if !s.am.CanWrite(actor, cmd.Target) {
			return change.Failed, &AccessError{Actor: actor, Address: cmd.Target, Access: Write}
		}
	}
	return s.inner.ExecuteCommand(ctx, actor, c)
}

func (s *Store) GetEvents(ctx context.Context, model models.Address, begin, end int64) ([]change.Event, error) {
	events, err := s.inner.GetEvents(ctx, model, begin, end)
	if err != nil {
		return nil, err
	}
	return FilterEvents(s.am, s.actor, events), nil
}

func (s *Store) GetModelSnapshot(ctx context.Context, req store.GetWithAddressRequest) (*models.ModelState, error) {
	m, err := s.inner.GetModelSnapshot(ctx, req)
	if err != nil {
		return nil, err
	}
	return FilterModel(s.am, s.actor, m), nil
}

func (s *Store) GetObjectSnapshot(ctx context.Context, req store.GetWithAddressRequest) (*models.ObjectState, error) {
	o, err := s.inner.GetObjectSnapshot(ctx, req)
	if err != nil {
		return nil, err
	}
	return FilterObject(s.am, s.actor, o), nil
}

// HasModel reports whether the model exists and something of it is visible.
func (s *Store) HasModel(ctx context.Context, id models.ID) (bool, error) {
	m, err := s.GetModelSnapshot(ctx, store.GetWithAddressRequest{Address: s.RepositoryAddress().Child(id)})
	return m != nil, err
}

func (s *Store) ModelIDs(ctx context.Context) ([]models.ID, error) {
	ids, err := s.inner.ModelIDs(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.ID
	for _, id := range ids {
		ok, err := s.HasModel(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, id)
		}
	}
	return out, nil
}
