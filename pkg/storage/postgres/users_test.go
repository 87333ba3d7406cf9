package postgres_test

import (
	"context"
	"database/sql"
	"testing"

	"usermgmt/pkg/serrors"
	"usermgmt/pkg/storage"
	"usermgmt/pkg/storage/storagetest"

	"github.com/stretchr/testify/require"
)

func TestPgSQL_Conformance(t *testing.T) {
	pg, cleanup := setupTestDB(t)
	t.Cleanup(cleanup)

	storagetest.Run(t, func(t *testing.T) storage.Storage {
		t.Helper()
		_, err := pg.DB.(*sql.DB).ExecContext(context.Background(), `TRUNCATE users`)
		require.NoError(t, err)

		return pg
	})
}

func TestPgSQL_SaveUser_EmailConflict(t *testing.T) {
	pg, cleanup := setupTestDB(t)
	t.Cleanup(cleanup)

	ctx := context.Background()
	first := storagetest.NewUser(t, "jane@example.com", "Jane", "Doe", true, 0)
	second := storagetest.NewUser(t, "Jane@Example.com", "Jane", "Other", true, 0)

	_, err := pg.SaveUser(ctx, first)
	require.NoError(t, err)

	_, err = pg.SaveUser(ctx, second)
	require.ErrorIs(t, err, serrors.ErrConflict)
}

func TestPgSQL_ToDomainRejectsCorruptRows(t *testing.T) {
	pg, cleanup := setupTestDB(t)
	t.Cleanup(cleanup)

	ctx := context.Background()
	_, err := pg.DB.(*sql.DB).ExecContext(ctx,
		`INSERT INTO users (id, email, first_name, last_name) VALUES ('broken', 'not-an-email', 'A', 'B')`)
	require.NoError(t, err)

	_, err = pg.Users(ctx)
	require.ErrorIs(t, err, serrors.ErrInvalidArgument)
}
