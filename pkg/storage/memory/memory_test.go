package memory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"usermgmt/pkg/domain"
	"usermgmt/pkg/serrors"
	"usermgmt/pkg/storage"
	"usermgmt/pkg/storage/memory"
	"usermgmt/pkg/storage/storagetest"

	"github.com/riverqueue/river"
	"github.com/stretchr/testify/require"
)

type dummyJobArgs struct {
	N int `json:"n"`
}

func (dummyJobArgs) Kind() string { return "dummy" }

func TestMemory_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		t.Helper()

		return memory.New()
	})
}

func TestMemory_EmailConflict(t *testing.T) {
	ctx := context.Background()
	m := memory.New()

	first := storagetest.NewUser(t, "jane@example.com", "Jane", "Doe", true, 0)
	second := storagetest.NewUser(t, "JANE@example.com", "Other", "Jane", true, 0)

	_, err := m.SaveUser(ctx, first)
	require.NoError(t, err)

	_, err = m.SaveUser(ctx, second)
	require.ErrorIs(t, err, serrors.ErrConflict)
}

func TestMemory_TxLifecycle(t *testing.T) {
	ctx := context.Background()
	m := memory.New()

	require.ErrorIs(t, m.Commit(), storage.ErrNotInTx)
	require.ErrorIs(t, m.Rollback(), storage.ErrNotInTx)

	tx, err := m.Begin(ctx)
	require.NoError(t, err)

	_, err = tx.(*memory.Memory).Begin(ctx)
	require.ErrorIs(t, err, storage.ErrAlreadyInTx)

	u := storagetest.NewUser(t, "jane@example.com", "Jane", "Doe", true, 0)
	_, err = tx.SaveUser(ctx, u)
	require.NoError(t, err)

	// not visible outside before commit
	ok, err := m.UserExists(ctx, u.ID())
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, tx.Commit())

	ok, err = m.UserExists(ctx, u.ID())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = tx.UserByID(ctx, u.ID())
	require.ErrorIs(t, err, memory.ErrTxDone)
	require.ErrorIs(t, tx.Rollback(), memory.ErrTxDone)
}

func TestMemory_DeleteInsideTx(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	u := storagetest.NewUser(t, "jane@example.com", "Jane", "Doe", false, 0)
	_, err := m.SaveUser(ctx, u)
	require.NoError(t, err)

	require.NoError(t, m.WithTx(ctx, func(tx storage.AllStorage) error {
		if err := tx.DeleteUser(ctx, u.ID()); err != nil {
			return err //nolint: wrapcheck
		}

		n, err := tx.UserCount(ctx)
		require.NoError(t, err)
		require.Zero(t, n)

		return nil
	}))

	n, err := m.UserCount(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestMemory_AddJob(t *testing.T) {
	ctx := context.Background()
	m := memory.New()

	added, err := m.AddJob(ctx, dummyJobArgs{N: 1}, nil)
	require.NoError(t, err)
	require.True(t, added)

	_ = m.WithTx(ctx, func(tx storage.AllStorage) error {
		_, err := tx.AddJob(ctx, dummyJobArgs{N: 2}, &river.InsertOpts{Queue: "purge"})
		require.NoError(t, err)

		return serrors.KindOnly(serrors.ErrInternal)
	})

	require.NoError(t, m.WithTx(ctx, func(tx storage.AllStorage) error {
		_, err := tx.AddJob(ctx, dummyJobArgs{N: 3}, nil)

		return err //nolint: wrapcheck
	}))

	jobs := m.Jobs()
	require.Len(t, jobs, 2)
	require.Equal(t, dummyJobArgs{N: 1}, jobs[0].Args)
	require.Equal(t, dummyJobArgs{N: 3}, jobs[1].Args)
}

func TestMemory_ConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	m := memory.New()

	users := make([]*domain.User, 50)
	for i := range users {
		users[i] = storagetest.NewUser(t, fmt.Sprintf("user%d@example.com", i), "First", "Last", i%2 == 0, 0)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(users))
	for _, u := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.SaveUser(ctx, u)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	n, err := m.UserCount(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 50, n)

	active, err := m.ActiveUserCount(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 25, active)
}

func TestMemory_ConcurrentTxEmailConflict(t *testing.T) {
	ctx := context.Background()
	m := memory.New()

	first, err := m.Begin(ctx)
	require.NoError(t, err)
	second, err := m.Begin(ctx)
	require.NoError(t, err)

	_, err = first.SaveUser(ctx, storagetest.NewUser(t, "jane@example.com", "Jane", "Doe", true, 0))
	require.NoError(t, err)
	_, err = second.SaveUser(ctx, storagetest.NewUser(t, "jane@example.com", "Jane", "Other", true, 0))
	require.NoError(t, err)

	require.NoError(t, first.Commit())
	require.ErrorIs(t, second.Commit(), serrors.ErrConflict)

	// the failed commit applied nothing and ended the transaction
	n, err := m.UserCount(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.ErrorIs(t, second.Rollback(), memory.ErrTxDone)
}

func TestMemory_CommitAllowsEmailSwap(t *testing.T) {
	ctx := context.Background()
	m := memory.New()

	jane := storagetest.NewUser(t, "jane@example.com", "Jane", "Doe", true, 0)
	_, err := m.SaveUser(ctx, jane)
	require.NoError(t, err)

	tx, err := m.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.DeleteUser(ctx, jane.ID()))
	_, err = tx.SaveUser(ctx, storagetest.NewUser(t, "jane@example.com", "Janet", "Doe", true, 0))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	got, err := m.UserByEmail(ctx, jane.Email())
	require.NoError(t, err)
	require.Equal(t, "Janet", got.Name().FirstName())
}
