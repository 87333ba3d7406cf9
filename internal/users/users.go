package users

import (
	"context"
	"fmt"
	"time"

	"usermgmt/internal/config"
	"usermgmt/pkg/domain"
	"usermgmt/pkg/logger"
	"usermgmt/pkg/serrors"
	"usermgmt/pkg/storage"

	"go.uber.org/zap"
)

// now is replaced in tests that need a deterministic clock.
var now = func() time.Time { return time.Now().UTC() } //nolint: gochecknoglobals

// Options configure the users use cases.
// These settings are typically derived from application configuration.
type Options struct {
	// PurgeAfter is how long a deactivated user is retained before the purge
	// job deletes it. Zero disables purging.
	PurgeAfter time.Duration
	// PurgeMaxAttempts is the maximum number of attempts the background worker
	// makes for a purge job before marking it failed.
	PurgeMaxAttempts int
}

// NewOptions constructs an Options value from the provided application config.
// Purging is disabled for the memory storage driver, which runs no worker to
// process purge jobs.
func NewOptions(cfg *config.Config) Options {
	purgeAfter := cfg.Users.PurgeAfter
	if cfg.Storage.Driver == config.StorageDriverMemory {
		purgeAfter = 0
	}

	return Options{
		PurgeAfter:       purgeAfter,
		PurgeMaxAttempts: cfg.Users.PurgeMaxAttempts,
	}
}

// service is the concrete implementation of the Service interface.
// It only talks to persistence through the storage port.
type service struct {
	options Options
	storage storage.Storage
}

// New creates a new Service backed by the provided storage and configured
// with the given options.
func New(storage storage.Storage, options Options) Service {
	return &service{
		options: options,
		storage: storage,
	}
}

func parseID(raw string) (domain.UserID, error) {
	id, err := domain.NewUserID(raw)
	if err != nil {
		return domain.UserID{}, fmt.Errorf("invalid user id: %w", err)
	}

	return id, nil
}

func parseProfile(email, firstName, lastName string) (domain.Email, domain.Name, error) {
	e, err := domain.NewEmail(email)
	if err != nil {
		return domain.Email{}, domain.Name{}, fmt.Errorf("invalid email: %w", err)
	}
	n, err := domain.NewName(firstName, lastName)
	if err != nil {
		return domain.Email{}, domain.Name{}, fmt.Errorf("invalid name: %w", err)
	}

	return e, n, nil
}

// userByID loads a user and turns a missing one into a not-found error.
func userByID(ctx context.Context, s storage.AllStorage, id domain.UserID) (*domain.User, error) {
	u, err := s.UserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("could not get user: %w", err)
	}
	if u == nil {
		return nil, serrors.With(serrors.ErrNotFound, "user not found")
	}

	return u, nil
}

// Register creates a new active user. The email must not belong to anyone yet.
func (s *service) Register(ctx context.Context, email, firstName, lastName string) (*domain.User, error) {
	e, n, err := parseProfile(email, firstName, lastName)
	if err != nil {
		return nil, err
	}

	u, err := domain.NewUser(domain.GenerateUserID(), e, n)
	if err != nil {
		return nil, fmt.Errorf("could not create user: %w", err)
	}

	var saved *domain.User
	if err := s.storage.WithTx(ctx, func(tx storage.AllStorage) error {
		taken, err := tx.EmailExists(ctx, e)
		if err != nil {
			return fmt.Errorf("could not check email: %w", err)
		}
		if taken {
			return serrors.With(serrors.ErrConflict, "email is already registered")
		}

		saved, err = tx.SaveUser(ctx, u)
		if err != nil {
			return fmt.Errorf("could not save user: %w", err)
		}

		return nil
	}); err != nil {
		return nil, fmt.Errorf("could not register user: %w", err)
	}

	logger.Info(ctx, "user registered", zap.String("userID", saved.ID().Value()))

	return saved, nil
}

// Get returns a single user by id.
func (s *service) Get(ctx context.Context, id string) (*domain.User, error) {
	uid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	return userByID(ctx, s.storage, uid)
}

// GetByEmail returns the user owning the given email.
func (s *service) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	e, err := domain.NewEmail(email)
	if err != nil {
		return nil, fmt.Errorf("invalid email: %w", err)
	}

	u, err := s.storage.UserByEmail(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("could not get user by email: %w", err)
	}
	if u == nil {
		return nil, serrors.With(serrors.ErrNotFound, "user not found")
	}

	return u, nil
}

// List returns the users matching filter in creation order.
func (s *service) List(ctx context.Context, filter ListFilter) ([]*domain.User, error) {
	var (
		res []*domain.User
		err error
	)

	switch {
	case filter.Name != "":
		res, err = s.storage.UsersByNameContaining(ctx, filter.Name)
	case filter.ActiveOnly:
		res, err = s.storage.ActiveUsers(ctx)
	default:
		res, err = s.storage.Users(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("could not list users: %w", err)
	}

	if filter.Name != "" && filter.ActiveOnly {
		active := res[:0]
		for _, u := range res {
			if u.IsActive() {
				active = append(active, u)
			}
		}
		res = active
	}

	return res, nil
}

// UpdateProfile replaces the user's email and name. The new email must not
// belong to another user.
func (s *service) UpdateProfile(ctx context.Context, id, email, firstName, lastName string) (*domain.User, error) {
	uid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	e, n, err := parseProfile(email, firstName, lastName)
	if err != nil {
		return nil, err
	}

	var saved *domain.User
	if err := s.storage.WithTx(ctx, func(tx storage.AllStorage) error {
		u, err := userByID(ctx, tx, uid)
		if err != nil {
			return err
		}

		if !u.Email().Equals(e) {
			owner, err := tx.UserByEmail(ctx, e)
			if err != nil {
				return fmt.Errorf("could not check email: %w", err)
			}
			if owner != nil && !owner.Equals(u) {
				return serrors.With(serrors.ErrConflict, "email is already registered")
			}
		}

		if err := u.UpdateProfile(n, e); err != nil {
			return fmt.Errorf("could not update profile: %w", err)
		}

		saved, err = tx.SaveUser(ctx, u)
		if err != nil {
			return fmt.Errorf("could not save user: %w", err)
		}

		return nil
	}); err != nil {
		return nil, fmt.Errorf("could not update user profile: %w", err)
	}

	return saved, nil
}

// Activate marks the user active. Activating an active user changes nothing.
// The read happens in the transaction so a cached copy never overwrites newer
// columns.
func (s *service) Activate(ctx context.Context, id string) (*domain.User, error) {
	uid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var saved *domain.User
	if err := s.storage.WithTx(ctx, func(tx storage.AllStorage) error {
		u, err := userByID(ctx, tx, uid)
		if err != nil {
			return err
		}
		if u.IsActive() {
			saved = u

			return nil
		}

		u.Activate()
		saved, err = tx.SaveUser(ctx, u)
		if err != nil {
			return fmt.Errorf("could not save user: %w", err)
		}

		return nil
	}); err != nil {
		return nil, fmt.Errorf("could not activate user: %w", err)
	}

	logger.Info(ctx, "user activated", zap.String("userID", uid.Value()))

	return saved, nil
}

// Deactivate marks the user inactive and, when purging is enabled, schedules
// the purge job in the same transaction. Deactivating an inactive user changes
// nothing, so the retention period is not restarted.
func (s *service) Deactivate(ctx context.Context, id string) (*domain.User, error) {
	uid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var saved *domain.User
	if err := s.storage.WithTx(ctx, func(tx storage.AllStorage) error {
		u, err := userByID(ctx, tx, uid)
		if err != nil {
			return err
		}
		if !u.IsActive() {
			saved = u

			return nil
		}

		u.Deactivate()
		saved, err = tx.SaveUser(ctx, u)
		if err != nil {
			return fmt.Errorf("could not save user: %w", err)
		}

		if s.options.PurgeAfter <= 0 {
			return nil
		}

		// the job stays unique per user, so a pending purge from an earlier
		// deactivation is reused and snoozes until the new due time.
		if _, err := tx.AddJob(ctx, PurgeJobArgs{
			UserID:      uid.Value(),
			maxAttempts: s.options.PurgeMaxAttempts,
			scheduledAt: saved.UpdatedAt().Add(s.options.PurgeAfter),
		}, nil); err != nil {
			return fmt.Errorf("could not add purge job: %w", err)
		}

		return nil
	}); err != nil {
		return nil, fmt.Errorf("could not deactivate user: %w", err)
	}

	logger.Info(ctx, "user deactivated", zap.String("userID", uid.Value()))

	return saved, nil
}

// Delete removes a deactivated user. Active users are rejected with a
// conflict error.
func (s *service) Delete(ctx context.Context, id string) error {
	uid, err := parseID(id)
	if err != nil {
		return err
	}

	if err := s.storage.WithTx(ctx, func(tx storage.AllStorage) error {
		u, err := userByID(ctx, tx, uid)
		if err != nil {
			return err
		}
		if !u.CanBeDeleted() {
			return serrors.With(serrors.ErrConflict, "active users cannot be deleted, deactivate the user first")
		}

		if err := tx.DeleteUser(ctx, uid); err != nil {
			return fmt.Errorf("could not delete user: %w", err)
		}

		return nil
	}); err != nil {
		return fmt.Errorf("could not delete user: %w", err)
	}

	logger.Info(ctx, "user deleted", zap.String("userID", uid.Value()))

	return nil
}

// Stats counts all and active users.
func (s *service) Stats(ctx context.Context) (Stats, error) {
	total, err := s.storage.UserCount(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("could not count users: %w", err)
	}
	active, err := s.storage.ActiveUserCount(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("could not count active users: %w", err)
	}

	return Stats{Total: total, Active: active}, nil
}

// Purge deletes the user once it has been inactive for PurgeAfter. When the
// user is not due yet the remaining wait is returned and nothing is deleted.
// Users that are gone or were reactivated are left alone.
func (s *service) Purge(ctx context.Context, id string) (time.Duration, error) {
	uid, err := parseID(id)
	if err != nil {
		return 0, err
	}
	if s.options.PurgeAfter <= 0 {
		logger.Info(ctx, "purging is disabled, skipping", zap.String("userID", uid.Value()))

		return 0, nil
	}

	var wait time.Duration
	if err := s.storage.WithTx(ctx, func(tx storage.AllStorage) error {
		u, err := tx.UserByID(ctx, uid)
		if err != nil {
			return fmt.Errorf("could not get user: %w", err)
		}
		if u == nil || !u.CanBeDeleted() {
			return nil
		}

		if wait = u.UpdatedAt().Add(s.options.PurgeAfter).Sub(now()); wait > 0 {
			return nil
		}
		wait = 0

		if err := tx.DeleteUser(ctx, uid); err != nil {
			return fmt.Errorf("could not delete user: %w", err)
		}
		logger.Info(ctx, "user purged", zap.String("userID", uid.Value()))

		return nil
	}); err != nil {
		return 0, fmt.Errorf("could not purge user: %w", err)
	}

	return wait, nil
}
