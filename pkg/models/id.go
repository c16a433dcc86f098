package models

import (
	"fmt"
	"unicode"

	"github.com/revstore/revstore/pkg/constants"
)

// ID identifies a repository, model, object or field.
//
// A valid id starts with a letter or an underscore, followed by letters,
// digits, underscores, dashes or dots.
type ID string

// NewID validates s and returns it as an ID.
func NewID(s string) (ID, error) {
	if !ValidID(s) {
		return "", fmt.Errorf("%w: %q", constants.ErrInvalidID, s)
	}
	return ID(s), nil
}

// MustID is like NewID but panics on invalid input.
func MustID(s string) ID {
	id, err := NewID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// ValidID reports whether s matches the id grammar.
func ValidID(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i == 0:
			return false
		case unicode.IsDigit(r) || r == '-' || r == '.':
		default:
			return false
		}
	}
	return true
}

func (id ID) String() string {
	return string(id)
}

// IsZero reports whether the id is unset.
func (id ID) IsZero() bool {
	return id == ""
}
