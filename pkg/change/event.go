package change

import (
	"fmt"
	"strings"

	"github.com/revstore/revstore/pkg/models"
)

// Event is an immutable log record of an applied change.
//
// A TransactionKind event holds its atomic events in Children; every child
// carries the transaction's revision. The old revisions are the revisions of
// the enclosing model, object and field right before the change, or
// models.NoRevision when they did not exist.
type Event struct {
	Kind              Kind
	Target            models.Address
	Actor             models.ID
	Revision          int64
	OldModelRevision  int64
	OldObjectRevision int64
	OldFieldRevision  int64
	InTransaction     bool
	Implied           bool
	Value             models.Value
	OldValue          models.Value
	Children          []Event
}

func (e Event) ChangeType() ChangeType {
	return e.Kind.ChangeType()
}

func (e Event) IsTransaction() bool {
	return e.Kind == TransactionKind
}

// Flatten returns the atomic events in log order.
func (e Event) Flatten() []Event {
	if !e.IsTransaction() {
		return []Event{e}
	}
	out := make([]Event, 0, len(e.Children))
	for _, c := range e.Children {
		out = append(out, c.Flatten()...)
	}
	return out
}

// Touched returns the addresses of every entity the event affects.
func (e Event) Touched() []models.Address {
	atoms := e.Flatten()
	out := make([]models.Address, 0, len(atoms))
	for _, a := range atoms {
		out = append(out, a.Target)
	}
	return out
}

func (e Event) String() string {
	if e.IsTransaction() {
		parts := make([]string, len(e.Children))
		for i, c := range e.Children {
			parts[i] = c.String()
		}
		return fmt.Sprintf("Transaction@%d(%v [%s])", e.Revision, e.Target, strings.Join(parts, ", "))
	}
	s := fmt.Sprintf("%v@%d(%v", e.Kind, e.Revision, e.Target)
	if e.Implied {
		s += " implied"
	}
	if e.Value != nil {
		s += " = " + e.Value.String()
	}
	return s + ")"
}
