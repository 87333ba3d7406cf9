package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"usermgmt/pkg/storage"
	"usermgmt/pkg/storage/postgres"
	"usermgmt/pkg/storage/storagetest"

	"github.com/stretchr/testify/require"
)

func countUsers(t *testing.T, db *sql.DB, email string) int {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM users WHERE email = $1`, email)
	var c int
	require.NoError(t, row.Scan(&c))

	return c
}

func TestPgSQL_Begin_SuccessAndAlreadyInTx(t *testing.T) {
	pg, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	txStorage, err := pg.Begin(ctx)
	require.NoError(t, err)
	require.NotNil(t, txStorage)

	inner, ok := txStorage.(*postgres.PgSQL)
	require.True(t, ok)
	_, isTx := inner.DB.(*sql.Tx)
	require.True(t, isTx)

	_, err = inner.Begin(ctx)
	require.ErrorIs(t, err, storage.ErrAlreadyInTx)

	require.NoError(t, inner.Rollback())
}

func TestPgSQL_Commit_SuccessAndNotInTx(t *testing.T) {
	pg, cleanup := setupTestDB(t)
	defer cleanup()

	db := pg.DB.(*sql.DB)
	ctx := context.Background()

	require.ErrorIs(t, pg.Commit(), storage.ErrNotInTx)

	txStorage, err := pg.Begin(ctx)
	require.NoError(t, err)

	u := storagetest.NewUser(t, "commit@example.com", "Commit", "Me", true, 0)
	_, err = txStorage.SaveUser(ctx, u)
	require.NoError(t, err)
	require.Equal(t, 0, countUsers(t, db, "commit@example.com"), "uncommitted row must not be visible")

	require.NoError(t, txStorage.Commit())
	require.Equal(t, 1, countUsers(t, db, "commit@example.com"))
}

func TestPgSQL_Rollback_SuccessAndNotInTx(t *testing.T) {
	pg, cleanup := setupTestDB(t)
	defer cleanup()

	db := pg.DB.(*sql.DB)
	ctx := context.Background()

	require.ErrorIs(t, pg.Rollback(), storage.ErrNotInTx)

	txStorage, err := pg.Begin(ctx)
	require.NoError(t, err)

	u := storagetest.NewUser(t, "rollback@example.com", "Roll", "Back", true, 0)
	_, err = txStorage.SaveUser(ctx, u)
	require.NoError(t, err)

	require.NoError(t, txStorage.Rollback())
	require.Equal(t, 0, countUsers(t, db, "rollback@example.com"))
}

func TestPgSQL_WithTx_ConflictRollsBack(t *testing.T) {
	pg, cleanup := setupTestDB(t)
	defer cleanup()

	db := pg.DB.(*sql.DB)
	ctx := context.Background()

	existing := storagetest.NewUser(t, "taken@example.com", "First", "Owner", true, 0)
	_, err := pg.SaveUser(ctx, existing)
	require.NoError(t, err)

	fresh := storagetest.NewUser(t, "fresh@example.com", "Fresh", "User", true, 0)
	clash := storagetest.NewUser(t, "taken@example.com", "Second", "Owner", true, 0)
	err = pg.WithTx(ctx, func(s storage.AllStorage) error {
		if _, err := s.SaveUser(ctx, fresh); err != nil {
			return err //nolint: wrapcheck
		}
		_, err := s.SaveUser(ctx, clash)

		return err //nolint: wrapcheck
	})
	require.Error(t, err)
	require.Equal(t, 0, countUsers(t, db, "fresh@example.com"))

	err = pg.WithTx(ctx, func(storage.AllStorage) error { return errors.New("boom") })
	require.EqualError(t, err, "boom")
}
