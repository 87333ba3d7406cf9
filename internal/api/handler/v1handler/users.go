package v1handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"usermgmt/internal/users"
	"usermgmt/pkg/domain"
	"usermgmt/pkg/serrors"
)

func (h *Handler) RegisterUser(ctx context.Context, req *RegisterUserRequest) (*User, error) {
	if err := h.validate.StructCtx(ctx, req); err != nil {
		return nil, validationError(err)
	}

	u, err := h.users.Register(ctx, req.Email, req.FirstName, req.LastName)
	if err != nil {
		return nil, fmt.Errorf("could not register user: %w", err)
	}

	return NewUser(u), nil
}

// ListUsers lists users. When an email is given at most one user matches; an
// unknown email yields an empty list rather than an error.
func (h *Handler) ListUsers(ctx context.Context, params ListUsersParams) (*UserList, error) {
	var (
		list []*domain.User
		err  error
	)

	if params.Email != "" {
		u, err := h.users.GetByEmail(ctx, params.Email)
		switch {
		case errors.Is(err, serrors.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("could not get user by email: %w", err)
		default:
			list = []*domain.User{u}
		}

		list = filterUsers(list, params)
	} else {
		list, err = h.users.List(ctx, users.ListFilter{
			ActiveOnly: params.Active != nil && *params.Active,
			Name:       params.Name,
		})
		if err != nil {
			return nil, fmt.Errorf("could not list users: %w", err)
		}

		// the service only filters for active users
		if params.Active != nil && !*params.Active {
			list = filterUsers(list, params)
		}
	}

	return NewUserList(list), nil
}

// filterUsers applies the optional active and name filters in memory.
func filterUsers(list []*domain.User, params ListUsersParams) []*domain.User {
	out := make([]*domain.User, 0, len(list))
	for _, u := range list {
		if params.Active != nil && u.IsActive() != *params.Active {
			continue
		}
		if params.Name != "" && !nameContains(u.Name(), params.Name) {
			continue
		}
		out = append(out, u)
	}

	return out
}

func nameContains(n domain.Name, fragment string) bool {
	return strings.Contains(n.FirstName(), fragment) || strings.Contains(n.LastName(), fragment)
}

func (h *Handler) UserStats(ctx context.Context) (*Stats, error) {
	stats, err := h.users.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not get user stats: %w", err)
	}

	return NewStats(stats), nil
}

func (h *Handler) GetUser(ctx context.Context, params UserParams) (*User, error) {
	u, err := h.users.Get(ctx, params.ID)
	if err != nil {
		return nil, fmt.Errorf("could not get user: %w", err)
	}

	return NewUser(u), nil
}

func (h *Handler) UpdateUserProfile(ctx context.Context, params UserParams, req *UpdateProfileRequest) (*User, error) {
	if err := h.validate.StructCtx(ctx, req); err != nil {
		return nil, validationError(err)
	}

	u, err := h.users.UpdateProfile(ctx, params.ID, req.Email, req.FirstName, req.LastName)
	if err != nil {
		return nil, fmt.Errorf("could not update user profile: %w", err)
	}

	return NewUser(u), nil
}

func (h *Handler) ActivateUser(ctx context.Context, params UserParams) (*User, error) {
	u, err := h.users.Activate(ctx, params.ID)
	if err != nil {
		return nil, fmt.Errorf("could not activate user: %w", err)
	}

	return NewUser(u), nil
}

func (h *Handler) DeactivateUser(ctx context.Context, params UserParams) (*User, error) {
	u, err := h.users.Deactivate(ctx, params.ID)
	if err != nil {
		return nil, fmt.Errorf("could not deactivate user: %w", err)
	}

	return NewUser(u), nil
}

func (h *Handler) DeleteUser(ctx context.Context, params UserParams) error {
	if err := h.users.Delete(ctx, params.ID); err != nil {
		return fmt.Errorf("could not delete user: %w", err)
	}

	return nil
}
