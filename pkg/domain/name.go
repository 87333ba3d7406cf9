package domain

import (
	"strings"
	"unicode/utf8"

	"usermgmt/pkg/serrors"
)

// Name is a person's first and last name, both trimmed and non-empty.
type Name struct {
	first string
	last  string
}

func NewName(first, last string) (Name, error) {
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)

	if first == "" {
		return Name{}, serrors.With(serrors.ErrInvalidArgument, "first name cannot be blank")
	}
	if last == "" {
		return Name{}, serrors.With(serrors.ErrInvalidArgument, "last name cannot be blank")
	}

	return Name{first: first, last: last}, nil
}

func (n Name) FirstName() string { return n.first }
func (n Name) LastName() string  { return n.last }

// FullName joins both parts with a single space.
func (n Name) FullName() string { return n.first + " " + n.last }

// Initials returns the upper-cased first letter of each part, e.g. "JD".
func (n Name) Initials() string {
	return strings.ToUpper(firstRune(n.first) + firstRune(n.last))
}

func (n Name) String() string { return n.FullName() }

func (n Name) IsZero() bool { return n.first == "" && n.last == "" }

func (n Name) Equals(other Name) bool { return n == other }

func firstRune(s string) string {
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return ""
	}

	return string(r)
}
