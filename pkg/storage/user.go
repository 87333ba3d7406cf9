package storage

import (
	"context"

	"usermgmt/pkg/domain"
)

// UserStorage is the repository port for the user aggregate. Implementations
// own the mapping between their records and domain values and must rebuild
// users through the domain constructors.
//
// Lookups return (nil, nil) when nothing matches.
type UserStorage interface {
	// UserByID returns the user with the given id.
	UserByID(ctx context.Context, id domain.UserID) (*domain.User, error)
	// UserByEmail returns the user owning email. Emails are normalized by the
	// domain, so the lookup is case-insensitive.
	UserByEmail(ctx context.Context, email domain.Email) (*domain.User, error)
	// Users returns every user ordered by creation time, then id.
	Users(ctx context.Context) ([]*domain.User, error)
	// ActiveUsers returns the active users in the same order as Users.
	ActiveUsers(ctx context.Context) ([]*domain.User, error)
	// SaveUser inserts the user or updates the stored record with the same id
	// and returns the user as persisted.
	SaveUser(ctx context.Context, user *domain.User) (*domain.User, error)
	// DeleteUser removes the user. Deleting an unknown id is not an error.
	DeleteUser(ctx context.Context, id domain.UserID) error
	// UserExists reports whether a user with the given id is stored.
	UserExists(ctx context.Context, id domain.UserID) (bool, error)
	// EmailExists reports whether any user owns email.
	EmailExists(ctx context.Context, email domain.Email) (bool, error)
	// UserCount returns the number of stored users.
	UserCount(ctx context.Context) (int64, error)
	// ActiveUserCount returns the number of active users.
	ActiveUserCount(ctx context.Context) (int64, error)
	// UsersByNameContaining returns users whose first or last name contains
	// fragment. Matching is case-sensitive.
	UsersByNameContaining(ctx context.Context, fragment string) ([]*domain.User, error)
}
