package users

import (
	"context"
	"time"

	"usermgmt/pkg/domain"
)

// ListFilter narrows the result of Service.List. The zero value lists every user.
type ListFilter struct {
	// ActiveOnly drops deactivated users.
	ActiveOnly bool
	// Name keeps users whose first or last name contains it (case-sensitive).
	Name string
}

// Stats summarizes the stored users.
type Stats struct {
	Total  int64
	Active int64
}

//go:generate mockgen -package mockusers -source=interface.go -destination=mock/mockusers.go *
type Service interface {
	Register(ctx context.Context, email, firstName, lastName string) (*domain.User, error)
	Get(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context, filter ListFilter) ([]*domain.User, error)
	UpdateProfile(ctx context.Context, id, email, firstName, lastName string) (*domain.User, error)
	Activate(ctx context.Context, id string) (*domain.User, error)
	Deactivate(ctx context.Context, id string) (*domain.User, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (Stats, error)
	Purge(ctx context.Context, id string) (time.Duration, error)
}
