package change

import (
	"fmt"
	"strconv"

	"github.com/revstore/revstore/pkg/constants"
	"github.com/revstore/revstore/pkg/models"
)

// Result sentinels returned in place of a revision.
const (
	Failed   int64 = -1
	NoChange int64 = -2
)

// IsSuccess reports whether r is a revision.
func IsSuccess(r int64) bool {
	return r >= 0
}

// IsFailure reports whether r is the Failed sentinel.
func IsFailure(r int64) bool {
	return r == Failed
}

// ResultString renders a result for logs.
func ResultString(r int64) string {
	switch r {
	case Failed:
		return "failed"
	case NoChange:
		return "nochange"
	default:
		return strconv.FormatInt(r, 10)
	}
}

// Intent decides whether a command checks the expected revision.
type Intent int

const (
	// Safe commands fail when the entity's revision differs from the
	// command's expected revision, or when an add finds an existing entity.
	Safe Intent = iota
	// Forced commands ignore revisions and turn redundant operations into
	// no-ops.
	Forced
)

func (i Intent) String() string {
	if i == Forced {
		return "forced"
	}
	return "safe"
}

// Kind is the operation of a command or event.
type Kind int

const (
	AddModel Kind = iota + 1
	RemoveModel
	AddObject
	RemoveObject
	AddField
	RemoveField
	AddValue
	ChangeValue
	RemoveValue
	// TransactionKind only appears on events wrapping a batch.
	TransactionKind
)

var kindNames = map[Kind]string{
	AddModel:        "AddModel",
	RemoveModel:     "RemoveModel",
	AddObject:       "AddObject",
	RemoveObject:    "RemoveObject",
	AddField:        "AddField",
	RemoveField:     "RemoveField",
	AddValue:        "AddValue",
	ChangeValue:     "ChangeValue",
	RemoveValue:     "RemoveValue",
	TransactionKind: "Transaction",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// ChangeType is the coarse category of a kind.
type ChangeType int

const (
	TypeAdd ChangeType = iota + 1
	TypeRemove
	TypeChange
	TypeTransaction
)

func (k Kind) ChangeType() ChangeType {
	switch k {
	case AddModel, AddObject, AddField, AddValue:
		return TypeAdd
	case RemoveModel, RemoveObject, RemoveField, RemoveValue:
		return TypeRemove
	case ChangeValue:
		return TypeChange
	default:
		return TypeTransaction
	}
}

// TargetType is the address type a command of this kind targets.
func (k Kind) TargetType() models.AddressType {
	switch k {
	case AddModel, RemoveModel:
		return models.TypeModel
	case AddObject, RemoveObject:
		return models.TypeObject
	case AddField, RemoveField, AddValue, ChangeValue, RemoveValue:
		return models.TypeField
	default:
		return models.TypeNone
	}
}

// IsValueKind reports whether the kind changes a field's value.
func (k Kind) IsValueKind() bool {
	return k == AddValue || k == ChangeValue || k == RemoveValue
}

// Change is either a Command or a Transaction.
type Change interface {
	// TargetAddress is the address the change is rooted at.
	TargetAddress() models.Address
	Validate() error
	isChange()
}

// Command is one requested mutation.
//
// Target is the entity the command adds, removes or changes. Revision is the
// expected current revision of that entity; it is only checked for Safe
// commands that remove or change something.
type Command struct {
	Kind     Kind
	Target   models.Address
	Intent   Intent
	Revision int64
	Value    models.Value
}

// NewAdd returns the add command matching the target's address type.
func NewAdd(target models.Address, intent Intent) (Command, error) {
	var kind Kind
	switch target.Type() {
	case models.TypeModel:
		kind = AddModel
	case models.TypeObject:
		kind = AddObject
	case models.TypeField:
		kind = AddField
	default:
		return Command{}, fmt.Errorf("%w: cannot add %v", constants.ErrInvalidCommand, target)
	}
	c := Command{Kind: kind, Target: target, Intent: intent, Revision: models.NoRevision}
	return c, c.Validate()
}

// NewRemove returns the remove command matching the target's address type.
func NewRemove(target models.Address, intent Intent, revision int64) (Command, error) {
	var kind Kind
	switch target.Type() {
	case models.TypeModel:
		kind = RemoveModel
	case models.TypeObject:
		kind = RemoveObject
	case models.TypeField:
		kind = RemoveField
	default:
		return Command{}, fmt.Errorf("%w: cannot remove %v", constants.ErrInvalidCommand, target)
	}
	c := Command{Kind: kind, Target: target, Intent: intent, Revision: revision}
	return c, c.Validate()
}

// NewValue returns a value command for a field. RemoveValue takes a nil value.
func NewValue(kind Kind, field models.Address, intent Intent, revision int64, value models.Value) (Command, error) {
	if !kind.IsValueKind() {
		return Command{}, fmt.Errorf("%w: %v is not a value command", constants.ErrInvalidCommand, kind)
	}
	c := Command{Kind: kind, Target: field, Intent: intent, Revision: revision, Value: value}
	return c, c.Validate()
}

// Must panics when err is not nil. Meant for literals and tests.
func Must(c Command, err error) Command {
	if err != nil {
		panic(err)
	}
	return c
}

func (c Command) TargetAddress() models.Address {
	return c.Target
}

// Validate checks the command is well formed. It does not look at any state.
func (c Command) Validate() error {
	if err := c.Target.Validate(); err != nil {
		return fmt.Errorf("%w: %w", constants.ErrInvalidCommand, err)
	}
	want := c.Kind.TargetType()
	if want == models.TypeNone {
		return fmt.Errorf("%w: unknown kind %v", constants.ErrInvalidCommand, c.Kind)
	}
	if c.Target.Type() != want {
		return fmt.Errorf("%w: %v needs a %v address, got %v", constants.ErrInvalidCommand, c.Kind, want, c.Target)
	}
	if c.Intent != Safe && c.Intent != Forced {
		return fmt.Errorf("%w: unknown intent %d", constants.ErrInvalidCommand, c.Intent)
	}
	switch c.Kind {
	case AddValue, ChangeValue:
		if c.Value == nil {
			return fmt.Errorf("%w: %v without a value", constants.ErrInvalidCommand, c.Kind)
		}
	default:
		if c.Value != nil {
			return fmt.Errorf("%w: %v carries a value", constants.ErrInvalidCommand, c.Kind)
		}
	}
	if c.Intent == Safe && c.checksRevision() && c.Revision < models.RevisionUnconfirmed {
		return fmt.Errorf("%w: safe %v without an expected revision", constants.ErrInvalidCommand, c.Kind)
	}
	return nil
}

func (c Command) checksRevision() bool {
	switch c.Kind.ChangeType() {
	case TypeRemove, TypeChange:
		return true
	default:
		return c.Kind == AddValue
	}
}

// ChecksRevision reports whether the command's Revision is compared against
// the current state.
func (c Command) ChecksRevision() bool {
	return c.Intent == Safe && c.checksRevision()
}

// Forced returns a copy of the command with Forced intent.
func (c Command) Forced() Command {
	c.Intent = Forced
	return c
}

// WithRevision returns a copy of the command expecting rev.
func (c Command) WithRevision(rev int64) Command {
	c.Revision = rev
	return c
}

func (c Command) String() string {
	s := fmt.Sprintf("%v(%v %v", c.Kind, c.Intent, c.Target)
	if c.ChecksRevision() {
		s += " @" + strconv.FormatInt(c.Revision, 10)
	}
	if c.Value != nil {
		s += " = " + c.Value.String()
	}
	return s + ")"
}

func (Command) isChange() {}
