// Package storagetest holds a behavioral test suite every storage.Storage
// implementation is expected to pass.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"usermgmt/pkg/domain"
	"usermgmt/pkg/storage"

	"github.com/stretchr/testify/require"
)

// Factory returns an empty storage for a single subtest.
type Factory func(t *testing.T) storage.Storage

// Run executes the suite. Subtests run sequentially so factories may hand out
// the same instance after clearing it.
func Run(t *testing.T, newStorage Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Storage)
	}{
		{"RoundTrip", testRoundTrip},
		{"SaveUpdatesExisting", testSaveUpdatesExisting},
		{"MissingLookups", testMissingLookups},
		{"UserByEmailIsCaseInsensitive", testUserByEmailCaseInsensitive},
		{"ListingAndCounts", testListingAndCounts},
		{"UsersByNameContaining", testUsersByNameContaining},
		{"DeleteUser", testDeleteUser},
		{"WithTx", testWithTx},
		{"Begin", testBegin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStorage(t))
		})
	}
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) //nolint: gochecknoglobals

// NewUser builds a user with deterministic timestamps offset from a fixed base.
func NewUser(t *testing.T, email, first, last string, active bool, offset time.Duration) *domain.User {
	t.Helper()

	e, err := domain.NewEmail(email)
	require.NoError(t, err)
	n, err := domain.NewName(first, last)
	require.NoError(t, err)

	created := base.Add(offset)
	u, err := domain.ReconstituteUser(domain.GenerateUserID(), e, n, active,
		domain.WithTimestamps(created, created.Add(time.Minute)))
	require.NoError(t, err)

	return u
}

// RequireSameUser asserts identity and field-by-field equality of two users.
func RequireSameUser(t *testing.T, want, got *domain.User) {
	t.Helper()

	require.NotNil(t, got)
	require.True(t, want.Equals(got), "want %s, got %s", want, got)
	require.Equal(t, want.Email(), got.Email())
	require.Equal(t, want.Name(), got.Name())
	require.Equal(t, want.IsActive(), got.IsActive())
	require.WithinDuration(t, want.CreatedAt(), got.CreatedAt(), time.Millisecond)
	require.WithinDuration(t, want.UpdatedAt(), got.UpdatedAt(), time.Millisecond)
}

func ids(users []*domain.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.ID().Value())
	}

	return out
}

func save(t *testing.T, s storage.AllStorage, users ...*domain.User) {
	t.Helper()

	for _, u := range users {
		_, err := s.SaveUser(context.Background(), u)
		require.NoError(t, err)
	}
}

func testRoundTrip(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	u := NewUser(t, "jane@example.com", "Jane", "Doe", true, 0)

	saved, err := s.SaveUser(ctx, u)
	require.NoError(t, err)
	RequireSameUser(t, u, saved)

	got, err := s.UserByID(ctx, u.ID())
	require.NoError(t, err)
	RequireSameUser(t, u, got)
}

func testSaveUpdatesExisting(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	u := NewUser(t, "jane@example.com", "Jane", "Doe", true, 0)
	save(t, s, u)

	email, err := domain.NewEmail("jane.smith@example.com")
	require.NoError(t, err)
	name, err := domain.NewName("Jane", "Smith")
	require.NoError(t, err)
	require.NoError(t, u.UpdateProfile(name, email))
	u.Deactivate()

	saved, err := s.SaveUser(ctx, u)
	require.NoError(t, err)
	require.Equal(t, email, saved.Email())
	require.False(t, saved.IsActive())
	require.WithinDuration(t, base, saved.CreatedAt(), time.Millisecond, "created_at must survive updates")

	count, err := s.UserCount(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	old, err := domain.NewEmail("jane@example.com")
	require.NoError(t, err)
	found, err := s.EmailExists(ctx, old)
	require.NoError(t, err)
	require.False(t, found)
}

func testMissingLookups(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	u, err := s.UserByID(ctx, domain.GenerateUserID())
	require.NoError(t, err)
	require.Nil(t, u)

	email, err := domain.NewEmail("nobody@example.com")
	require.NoError(t, err)
	u, err = s.UserByEmail(ctx, email)
	require.NoError(t, err)
	require.Nil(t, u)

	ok, err := s.UserExists(ctx, domain.GenerateUserID())
	require.NoError(t, err)
	require.False(t, ok)

	users, err := s.Users(ctx)
	require.NoError(t, err)
	require.Empty(t, users)
}

func testUserByEmailCaseInsensitive(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	u := NewUser(t, "Jane@Example.com", "Jane", "Doe", true, 0)
	save(t, s, u)

	query, err := domain.NewEmail("jane@example.com")
	require.NoError(t, err)

	got, err := s.UserByEmail(ctx, query)
	require.NoError(t, err)
	RequireSameUser(t, u, got)

	ok, err := s.EmailExists(ctx, query)
	require.NoError(t, err)
	require.True(t, ok)
}

func testListingAndCounts(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	// saved out of creation order on purpose
	c := NewUser(t, "c@example.com", "Cid", "Lee", true, 2*time.Hour)
	a := NewUser(t, "a@example.com", "Ann", "Smith", true, 0)
	b := NewUser(t, "b@example.com", "Bob", "Hanson", false, time.Hour)
	save(t, s, c, a, b)

	all, err := s.Users(ctx)
	require.NoError(t, err)
	require.Equal(t, ids([]*domain.User{a, b, c}), ids(all))

	active, err := s.ActiveUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, ids([]*domain.User{a, c}), ids(active))

	total, err := s.UserCount(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, total)

	activeCount, err := s.ActiveUserCount(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, activeCount)

	ok, err := s.UserExists(ctx, b.ID())
	require.NoError(t, err)
	require.True(t, ok)
}

func testUsersByNameContaining(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	ann := NewUser(t, "a@example.com", "Ann", "Smith", true, 0)
	bob := NewUser(t, "b@example.com", "Bob", "Hanson", true, time.Hour)
	cid := NewUser(t, "c@example.com", "Cid", "Lee", false, 2*time.Hour)
	save(t, s, ann, bob, cid)

	tests := []struct {
		fragment string
		want     []*domain.User
	}{
		{"an", []*domain.User{bob}},
		{"An", []*domain.User{ann}},
		{"Lee", []*domain.User{cid}},
		{"i", []*domain.User{ann, cid}},
		{"%", nil},
		{"_", nil},
		{"", []*domain.User{ann, bob, cid}},
	}

	for _, tt := range tests {
		got, err := s.UsersByNameContaining(ctx, tt.fragment)
		require.NoError(t, err)
		require.Equal(t, ids(tt.want), ids(got), "fragment %q", tt.fragment)
	}
}

func testDeleteUser(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	u := NewUser(t, "jane@example.com", "Jane", "Doe", false, 0)
	save(t, s, u)

	require.NoError(t, s.DeleteUser(ctx, u.ID()))

	got, err := s.UserByID(ctx, u.ID())
	require.NoError(t, err)
	require.Nil(t, got)

	// deleting again is a no-op
	require.NoError(t, s.DeleteUser(ctx, u.ID()))
}

func testWithTx(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	committed := NewUser(t, "kept@example.com", "Kept", "User", true, 0)
	discarded := NewUser(t, "gone@example.com", "Gone", "User", true, time.Hour)

	require.NoError(t, s.WithTx(ctx, func(tx storage.AllStorage) error {
		_, err := tx.SaveUser(ctx, committed)

		return err //nolint: wrapcheck
	}))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx storage.AllStorage) error {
		if _, err := tx.SaveUser(ctx, discarded); err != nil {
			return err //nolint: wrapcheck
		}

		return boom
	})
	require.ErrorIs(t, err, boom)

	ok, err := s.UserExists(ctx, committed.ID())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.UserExists(ctx, discarded.ID())
	require.NoError(t, err)
	require.False(t, ok)
}

func testBegin(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	u := NewUser(t, "jane@example.com", "Jane", "Doe", true, 0)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	save(t, tx, u)

	// visible inside the transaction
	got, err := tx.UserByID(ctx, u.ID())
	require.NoError(t, err)
	RequireSameUser(t, u, got)

	require.NoError(t, tx.Rollback())

	got, err = s.UserByID(ctx, u.ID())
	require.NoError(t, err)
	require.Nil(t, got)
}
