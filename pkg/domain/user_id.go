package domain

import (
	"strings"

	"usermgmt/pkg/serrors"

	"github.com/google/uuid"
)

// UserID is the stable identity of a user across persistence boundaries.
// The zero value is not a valid identifier.
type UserID struct {
	value string
}

// GenerateUserID returns a new identifier backed by a random (v4) UUID in its
// canonical hyphenated form.
func GenerateUserID() UserID {
	return UserID{value: uuid.NewString()}
}

// NewUserID wraps raw as a UserID. Blank input is rejected; no other
// normalization is applied, so NewUserID(s).Value() == s.
func NewUserID(raw string) (UserID, error) {
	if strings.TrimSpace(raw) == "" {
		return UserID{}, serrors.With(serrors.ErrInvalidArgument, "user id cannot be blank")
	}

	return UserID{value: raw}, nil
}

func (id UserID) Value() string  { return id.value }
func (id UserID) String() string { return id.value }

// IsZero reports whether id was never constructed.
func (id UserID) IsZero() bool { return id.value == "" }

func (id UserID) Equals(other UserID) bool { return id.value == other.value }
