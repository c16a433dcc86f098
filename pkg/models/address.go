package models

import (
	"fmt"
	"strings"

	"github.com/revstore/revstore/pkg/constants"
)

// AddressType tells which kind of entity an address points at.
type AddressType int

const (
	TypeNone AddressType = iota
	TypeRepository
	TypeModel
	TypeObject
	TypeField
)

func (t AddressType) String() string {
	switch t {
	case TypeRepository:
		return "repository"
	case TypeModel:
		return "model"
	case TypeObject:
		return "object"
	case TypeField:
		return "field"
	default:
		return "none"
	}
}

// Address is a path of up to four ids from the repository down to a field.
//
// Set components are contiguous from the root: there is no field without an
// object and no object without a model. The zero Address addresses nothing.
type Address struct {
	Repository ID
	Model      ID
	Object     ID
	Field      ID
}

// NewAddress validates the components and returns the address.
func NewAddress(repository, model, object, field ID) (Address, error) {
	a := Address{Repository: repository, Model: model, Object: object, Field: field}
	if err := a.Validate(); err != nil {
		return Address{}, err
	}
	return a, nil
}

func RepositoryAddress(repository ID) Address {
	return Address{Repository: repository}
}

func ModelAddress(repository, model ID) Address {
	return Address{Repository: repository, Model: model}
}

func ObjectAddress(repository, model, object ID) Address {
	return Address{Repository: repository, Model: model, Object: object}
}

func FieldAddress(repository, model, object, field ID) Address {
	return Address{Repository: repository, Model: model, Object: object, Field: field}
}

// ParseAddress reads the "/repo/model/object/field" form produced by String.
func ParseAddress(s string) (Address, error) {
	if !strings.HasPrefix(s, "/") {
		return Address{}, fmt.Errorf("%w: %q must start with '/'", constants.ErrInvalidAddress, s)
	}
	s = strings.TrimSuffix(s[1:], "/")
	if s == "" {
		return Address{}, nil
	}
	parts := strings.Split(s, "/")
	if len(parts) > 4 {
		return Address{}, fmt.Errorf("%w: %q has more than four components", constants.ErrInvalidAddress, s)
	}
	var ids [4]ID
	for i, p := range parts {
		id, err := NewID(p)
		if err != nil {
			return Address{}, fmt.Errorf("%w: %w", constants.ErrInvalidAddress, err)
		}
		ids[i] = id
	}
	return NewAddress(ids[0], ids[1], ids[2], ids[3])
}

// Validate checks contiguity and the grammar of every set component.
func (a Address) Validate() error {
	ids := a.components()
	gap := false
	for _, id := range ids {
		if id.IsZero() {
			gap = true
			continue
		}
		if gap {
			return fmt.Errorf("%w: %v is not contiguous", constants.ErrInvalidAddress, a)
		}
		if !ValidID(string(id)) {
			return fmt.Errorf("%w: %w: %q", constants.ErrInvalidAddress, constants.ErrInvalidID, id)
		}
	}
	return nil
}

func (a Address) components() [4]ID {
	return [4]ID{a.Repository, a.Model, a.Object, a.Field}
}

// Type returns the kind of entity the address points at.
func (a Address) Type() AddressType {
	switch {
	case !a.Field.IsZero():
		return TypeField
	case !a.Object.IsZero():
		return TypeObject
	case !a.Model.IsZero():
		return TypeModel
	case !a.Repository.IsZero():
		return TypeRepository
	default:
		return TypeNone
	}
}

// IsZero reports whether the address has no components.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Parent returns the address one level up. The parent of a repository
// address is the zero Address.
func (a Address) Parent() Address {
	switch a.Type() {
	case TypeField:
		a.Field = ""
	case TypeObject:
		a.Object = ""
	case TypeModel:
		a.Model = ""
	default:
		return Address{}
	}
	return a
}

// Child returns the address of the entity with the given id one level down.
// Children of field addresses do not exist, Child panics for them.
func (a Address) Child(id ID) Address {
	switch a.Type() {
	case TypeNone:
		a.Repository = id
	case TypeRepository:
		a.Model = id
	case TypeModel:
		a.Object = id
	case TypeObject:
		a.Field = id
	default:
		panic(fmt.Errorf("%w: field address %v has no children", constants.ErrInvalidAddress, a))
	}
	return a
}

// ID returns the last set component.
func (a Address) ID() ID {
	switch a.Type() {
	case TypeField:
		return a.Field
	case TypeObject:
		return a.Object
	case TypeModel:
		return a.Model
	default:
		return a.Repository
	}
}

// ModelAddress truncates the address to its model part.
func (a Address) ModelAddress() Address {
	return Address{Repository: a.Repository, Model: a.Model}
}

// ObjectAddress truncates the address to its object part.
func (a Address) ObjectAddress() Address {
	return Address{Repository: a.Repository, Model: a.Model, Object: a.Object}
}

// Contains reports whether other equals a or lies below it.
func (a Address) Contains(other Address) bool {
	if a.IsZero() {
		return true
	}
	ac, oc := a.components(), other.components()
	for i := range ac {
		if ac[i].IsZero() {
			return true
		}
		if ac[i] != oc[i] {
			return false
		}
	}
	return true
}

// Overlaps reports whether one of the addresses contains the other.
func (a Address) Overlaps(other Address) bool {
	return a.Contains(other) || other.Contains(a)
}

func (a Address) Equal(other Address) bool {
	return a == other
}

// Compare orders addresses component by component, shorter first.
func (a Address) Compare(other Address) int {
	ac, oc := a.components(), other.components()
	for i := range ac {
		if c := strings.Compare(string(ac[i]), string(oc[i])); c != 0 {
			return c
		}
	}
	return 0
}

func (a Address) String() string {
	var b strings.Builder
	for _, id := range a.components() {
		if id.IsZero() {
			break
		}
		b.WriteByte('/')
		b.WriteString(string(id))
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}
