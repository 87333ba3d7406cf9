package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"usermgmt/pkg/domain"
	"usermgmt/pkg/serrors"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	usersTable = "users"
)

// likeEscaper escapes LIKE wildcards so a fragment is matched literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`) //nolint: gochecknoglobals

func (p *PgSQL) usersOrdered(where ...exp.Expression) *goqu.SelectDataset {
	return p.Builder.From(usersTable).
		Where(where...).
		Order(goqu.I("created_at").Asc(), goqu.I("id").Asc())
}

func (p *PgSQL) scanUser(ctx context.Context, ds *goqu.SelectDataset) (*domain.User, error) {
	var row PgUser
	found, err := ds.Executor().ScanStructContext(ctx, &row)
	if err != nil {
		return nil, err //nolint: wrapcheck
	}
	if !found {
		return nil, nil
	}

	return row.ToDomain()
}

func (p *PgSQL) scanUsers(ctx context.Context, ds *goqu.SelectDataset) ([]*domain.User, error) {
	var rows []PgUser
	if err := ds.Executor().ScanStructsContext(ctx, &rows); err != nil {
		return nil, err //nolint: wrapcheck
	}

	return pgUsersToDomain(rows)
}

// UserByID returns the user with the given id or nil if it does not exist.
func (p *PgSQL) UserByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	u, err := p.scanUser(ctx, p.Builder.From(usersTable).Where(goqu.I("id").Eq(id.Value())))
	if err != nil {
		return nil, fmt.Errorf("could not fetch user by id from pg: %w", err)
	}

	return u, nil
}

// UserByEmail returns the user owning the (already normalized) email.
func (p *PgSQL) UserByEmail(ctx context.Context, email domain.Email) (*domain.User, error) {
	u, err := p.scanUser(ctx, p.Builder.From(usersTable).Where(goqu.I("email").Eq(email.Value())))
	if err != nil {
		return nil, fmt.Errorf("could not fetch user by email from pg: %w", err)
	}

	return u, nil
}

func (p *PgSQL) Users(ctx context.Context) ([]*domain.User, error) {
	users, err := p.scanUsers(ctx, p.usersOrdered())
	if err != nil {
		return nil, fmt.Errorf("could not fetch users from pg: %w", err)
	}

	return users, nil
}

func (p *PgSQL) ActiveUsers(ctx context.Context) ([]*domain.User, error) {
	users, err := p.scanUsers(ctx, p.usersOrdered(goqu.I("active").IsTrue()))
	if err != nil {
		return nil, fmt.Errorf("could not fetch active users from pg: %w", err)
	}

	return users, nil
}

// UsersByNameContaining matches fragment literally against first and last
// names using LIKE, so the comparison follows the column collation.
func (p *PgSQL) UsersByNameContaining(ctx context.Context, fragment string) ([]*domain.User, error) {
	pattern := "%" + likeEscaper.Replace(fragment) + "%"
	users, err := p.scanUsers(ctx, p.usersOrdered(goqu.Or(
		goqu.I("first_name").Like(pattern),
		goqu.I("last_name").Like(pattern),
	)))
	if err != nil {
		return nil, fmt.Errorf("could not search users by name in pg: %w", err)
	}

	return users, nil
}

// SaveUser upserts the user keyed by id. created_at is never overwritten on
// update. A clash on the unique email index is reported as a conflict.
func (p *PgSQL) SaveUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	var rec PgUser
	rec.FromDomain(user)

	var row PgUser
	_, err := p.Builder.Insert(usersTable).
		Rows(rec).
		OnConflict(goqu.DoUpdate("id", goqu.Record{
			"email":      goqu.I("excluded.email"),
			"first_name": goqu.I("excluded.first_name"),
			"last_name":  goqu.I("excluded.last_name"),
			"active":     goqu.I("excluded.active"),
			"updated_at": goqu.I("excluded.updated_at"),
		})).
		Returning(&PgUser{}).
		Executor().ScanStructContext(ctx, &row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, serrors.Wrap(serrors.ErrConflict, err, "email %s is already taken", rec.Email)
		}

		return nil, fmt.Errorf("could not save user into pg: %w", err)
	}

	return row.ToDomain()
}

// DeleteUser removes the user. Unknown ids are ignored.
func (p *PgSQL) DeleteUser(ctx context.Context, id domain.UserID) error {
	_, err := p.Builder.Delete(usersTable).
		Where(goqu.I("id").Eq(id.Value())).
		Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("could not delete user in pg: %w", err)
	}

	return nil
}

func (p *PgSQL) exists(ctx context.Context, where exp.Expression) (bool, error) {
	var one int
	found, err := p.Builder.From(usersTable).
		Select(goqu.L("1")).
		Where(where).
		Limit(1).
		Executor().ScanValContext(ctx, &one)
	if err != nil {
		return false, err //nolint: wrapcheck
	}

	return found, nil
}

func (p *PgSQL) UserExists(ctx context.Context, id domain.UserID) (bool, error) {
	ok, err := p.exists(ctx, goqu.I("id").Eq(id.Value()))
	if err != nil {
		return false, fmt.Errorf("could not check user existence in pg: %w", err)
	}

	return ok, nil
}

func (p *PgSQL) EmailExists(ctx context.Context, email domain.Email) (bool, error) {
	ok, err := p.exists(ctx, goqu.I("email").Eq(email.Value()))
	if err != nil {
		return false, fmt.Errorf("could not check email existence in pg: %w", err)
	}

	return ok, nil
}

func (p *PgSQL) UserCount(ctx context.Context) (int64, error) {
	n, err := p.Builder.From(usersTable).CountContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("could not count users in pg: %w", err)
	}

	return n, nil
}

func (p *PgSQL) ActiveUserCount(ctx context.Context) (int64, error) {
	n, err := p.Builder.From(usersTable).Where(goqu.I("active").IsTrue()).CountContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("could not count active users in pg: %w", err)
	}

	return n, nil
}
