package domain

import (
	"fmt"
	"time"

	"usermgmt/pkg/serrors"
)

// User is the aggregate root of the user context. Its identity never changes;
// email, name and the active flag change only through the methods below, each
// of which refreshes UpdatedAt.
//
// A *User is not safe for concurrent mutation.
type User struct {
	id     UserID
	email  Email
	name   Name
	active bool

	createdAt time.Time
	updatedAt time.Time
}

// now is replaced in tests that need deterministic timestamps.
var now = func() time.Time { return time.Now().UTC() } //nolint: gochecknoglobals

// NewUser creates a brand-new, active user.
func NewUser(id UserID, email Email, name Name) (*User, error) {
	if err := requireFields(id, email, name); err != nil {
		return nil, err
	}

	t := now()

	return &User{
		id:        id,
		email:     email,
		name:      name,
		active:    true,
		createdAt: t,
		updatedAt: t,
	}, nil
}

// ReconstituteOption customizes a user rebuilt from storage.
type ReconstituteOption func(u *User)

// WithTimestamps restores the persisted creation and modification times.
// Zero values are ignored.
func WithTimestamps(createdAt, updatedAt time.Time) ReconstituteOption {
	return func(u *User) {
		if !createdAt.IsZero() {
			u.createdAt = createdAt
		}
		if !updatedAt.IsZero() {
			u.updatedAt = updatedAt
		}
	}
}

// ReconstituteUser rebuilds a user from a persisted record. Without
// WithTimestamps both timestamps are set to the current time.
func ReconstituteUser(id UserID, email Email, name Name, active bool, opts ...ReconstituteOption) (*User, error) {
	if err := requireFields(id, email, name); err != nil {
		return nil, err
	}

	t := now()
	u := &User{
		id:        id,
		email:     email,
		name:      name,
		active:    active,
		createdAt: t,
		updatedAt: t,
	}
	for _, opt := range opts {
		opt(u)
	}

	return u, nil
}

func requireFields(id UserID, email Email, name Name) error {
	switch {
	case id.IsZero():
		return serrors.With(serrors.ErrInvalidArgument, "user id is required")
	case email.IsZero():
		return serrors.With(serrors.ErrInvalidArgument, "email is required")
	case name.IsZero():
		return serrors.With(serrors.ErrInvalidArgument, "name is required")
	}

	return nil
}

func (u *User) ID() UserID           { return u.id }
func (u *User) Email() Email         { return u.email }
func (u *User) Name() Name           { return u.name }
func (u *User) IsActive() bool       { return u.active }
func (u *User) CreatedAt() time.Time { return u.createdAt }
func (u *User) UpdatedAt() time.Time { return u.updatedAt }

// UpdateProfile replaces name and email. Nothing is written when either
// argument is missing.
func (u *User) UpdateProfile(name Name, email Email) error {
	if name.IsZero() {
		return serrors.With(serrors.ErrInvalidArgument, "name is required")
	}
	if email.IsZero() {
		return serrors.With(serrors.ErrInvalidArgument, "email is required")
	}

	u.name = name
	u.email = email
	u.touch()

	return nil
}

func (u *User) Activate() {
	u.active = true
	u.touch()
}

func (u *User) Deactivate() {
	u.active = false
	u.touch()
}

// CanBeDeleted reports whether the user may be removed. Active users have to
// be deactivated first; enforcing that is up to the caller.
func (u *User) CanBeDeleted() bool { return !u.active }

// Equals compares users by identity only.
func (u *User) Equals(other *User) bool {
	if u == nil || other == nil {
		return u == other
	}

	return u.id.Equals(other.id)
}

func (u *User) String() string {
	return fmt.Sprintf("User{id=%s, email=%s, name=%s, active=%t}", u.id, u.email, u.name.FullName(), u.active)
}

func (u *User) touch() { u.updatedAt = now() }
