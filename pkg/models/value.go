package models

import (
	"bytes"
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/revstore/revstore/pkg/constants"
)

// ValueKind enumerates the closed set of value types a field can hold.
type ValueKind int

const (
	KindBoolean ValueKind = iota + 1
	KindInteger
	KindLong
	KindDouble
	KindString
	KindID
	KindAddress
	KindBinary
	KindList
	KindSet
	KindSortedSet
)

func (k ValueKind) String() string {
	switch k {
	case KindBoolean:
		return "boolean"
	case KindInteger:
		return "integer"
	case KindLong:
		return "long"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindID:
		return "id"
	case KindAddress:
		return "address"
	case KindBinary:
		return "binary"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	case KindSortedSet:
		return "sortedset"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// IsScalar reports whether the kind is not a collection.
func (k ValueKind) IsScalar() bool {
	return k >= KindBoolean && k <= KindBinary
}

// IsCollection reports whether the kind is a list or set kind.
func (k ValueKind) IsCollection() bool {
	return k >= KindList && k <= KindSortedSet
}

// Value is an immutable field value. The implementations in this package are
// the only ones; the interface is sealed.
type Value interface {
	Kind() ValueKind
	Equal(other Value) bool
	String() string
	isValue()
}

// EqualValues compares two possibly nil values by kind and content.
func EqualValues(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(b)
}

type Boolean bool

func (Boolean) Kind() ValueKind { return KindBoolean }
func (v Boolean) Equal(other Value) bool {
	o, ok := other.(Boolean)
	return ok && o == v
}
func (v Boolean) String() string { return strconv.FormatBool(bool(v)) }
func (Boolean) isValue() {}

type Integer int32

func (Integer) Kind() ValueKind { return KindInteger }
func (v Integer) Equal(other Value) bool {
	o, ok := other.(Integer)
	return ok && o == v
}
func (v Integer) String() string { return strconv.FormatInt(int64(v), 10) }
func (Integer) isValue() {}

type Long int64

func (Long) Kind() ValueKind { return KindLong }
func (v Long) Equal(other Value) bool {
	o, ok := other.(Long)
	return ok && o == v
}
func (v Long) String() string { return strconv.FormatInt(int64(v), 10) }
func (Long) isValue() {}

type Double float64

func (Double) Kind() ValueKind { return KindDouble }

// Equal follows the ordering of sorted sets: NaN equals NaN, and -0 equals 0.
func (v Double) Equal(other Value) bool {
	o, ok := other.(Double)
	return ok && cmp.Compare(v, o) == 0
}
func (v Double) String() string { return strconv.FormatFloat(float64(v), 'g', -1, 64) }
func (Double) isValue() {}

type String string

func (String) Kind() ValueKind { return KindString }
func (v String) Equal(other Value) bool {
	o, ok := other.(String)
	return ok && o == v
}
func (v String) String() string { return strconv.Quote(string(v)) }
func (String) isValue() {}

// IDValue holds an id as a field value.
type IDValue ID

func (IDValue) Kind() ValueKind { return KindID }
func (v IDValue) Equal(other Value) bool {
	o, ok := other.(IDValue)
	return ok && o == v
}
func (v IDValue) String() string { return string(v) }
func (IDValue) isValue() {}

// AddressValue holds an address as a field value.
type AddressValue Address

func (AddressValue) Kind() ValueKind { return KindAddress }
func (v AddressValue) Equal(other Value) bool {
	o, ok := other.(AddressValue)
	return ok && o == v
}
func (v AddressValue) String() string { return Address(v).String() }
func (AddressValue) isValue() {}

// Binary holds a private copy of a byte slice.
type Binary struct {
	data string
}

func NewBinary(b []byte) Binary {
	return Binary{data: string(b)}
}

// Bytes returns a copy of the content.
func (v Binary) Bytes() []byte {
	return []byte(v.data)
}

func (Binary) Kind() ValueKind { return KindBinary }
func (v Binary) Equal(other Value) bool {
	o, ok := other.(Binary)
	return ok && o.data == v.data
}
func (v Binary) String() string { return fmt.Sprintf("binary(%d)", len(v.data)) }
func (Binary) isValue() {}

// Collection is a list, set or sorted set of scalar values of one kind.
type Collection struct {
	kind  ValueKind
	elem  ValueKind
	items []Value
}

// NewList returns an ordered collection. Duplicates are kept.
func NewList(elem ValueKind, items ...Value) (Collection, error) {
	return newCollection(KindList, elem, items)
}

// NewSet returns an unordered collection without duplicates.
func NewSet(elem ValueKind, items ...Value) (Collection, error) {
	return newCollection(KindSet, elem, items)
}

// NewSortedSet returns a collection without duplicates ordered by value.
func NewSortedSet(elem ValueKind, items ...Value) (Collection, error) {
	return newCollection(KindSortedSet, elem, items)
}

func newCollection(kind, elem ValueKind, items []Value) (Collection, error) {
	if !elem.IsScalar() {
		return Collection{}, fmt.Errorf("%w: %v cannot hold %v elements", constants.ErrInvalidValue, kind, elem)
	}
	c := Collection{kind: kind, elem: elem, items: make([]Value, 0, len(items))}
	for _, it := range items {
		if it == nil || it.Kind() != elem {
			return Collection{}, fmt.Errorf("%w: %v of %v cannot hold %v", constants.ErrInvalidValue, kind, elem, it)
		}
		if kind != KindList && slices.ContainsFunc(c.items, it.Equal) {
			continue
		}
		c.items = append(c.items, it)
	}
	if kind == KindSortedSet {
		slices.SortFunc(c.items, compareScalar)
	}
	return c, nil
}

func (c Collection) Kind() ValueKind { return c.kind }

// Elem returns the kind of the elements.
func (c Collection) Elem() ValueKind { return c.elem }

func (c Collection) Len() int { return len(c.items) }

// Items returns a copy of the elements.
func (c Collection) Items() []Value {
	return slices.Clone(c.items)
}

func (c Collection) Contains(v Value) bool {
	return slices.ContainsFunc(c.items, v.Equal)
}

func (c Collection) Equal(other Value) bool {
	o, ok := other.(Collection)
	if !ok || o.kind != c.kind || o.elem != c.elem || len(o.items) != len(c.items) {
		return false
	}
	if c.kind == KindSet {
		for _, it := range c.items {
			if !o.Contains(it) {
				return false
			}
		}
		return true
	}
	for i := range c.items {
		if !c.items[i].Equal(o.items[i]) {
			return false
		}
	}
	return true
}

func (c Collection) String() string {
	parts := make([]string, len(c.items))
	for i, it := range c.items {
		parts[i] = it.String()
	}
	return c.kind.String() + "[" + strings.Join(parts, ", ") + "]"
}

func (Collection) isValue() {}

func compareScalar(a, b Value) int {
	if a.Kind() != b.Kind() {
		return cmp.Compare(a.Kind(), b.Kind())
	}
	switch av := a.(type) {
	case Boolean:
		bv := b.(Boolean)
		switch {
		case av == bv:
			return 0
		case !bool(av):
			return -1
		default:
			return 1
		}
	case Integer:
		return cmp.Compare(av, b.(Integer))
	case Long:
		return cmp.Compare(av, b.(Long))
	case Double:
		return cmp.Compare(av, b.(Double))
	case String:
		return cmp.Compare(av, b.(String))
	case IDValue:
		return cmp.Compare(av, b.(IDValue))
	case AddressValue:
		return Address(av).Compare(Address(b.(AddressValue)))
	case Binary:
		return bytes.Compare([]byte(av.data), []byte(b.(Binary).data))
	default:
		return 0
	}
}
