package postgres

import (
	"fmt"
	"time"

	"usermgmt/pkg/domain"
)

// PgUser is the row shape of the users table.
type PgUser struct {
	ID        string `db:"id"`
	Email     string `db:"email"`
	FirstName string `db:"first_name"`
	LastName  string `db:"last_name"`
	Active    bool   `db:"active"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ToDomain rebuilds the aggregate, passing every column through its value
// object constructor.
func (p *PgUser) ToDomain() (*domain.User, error) {
	id, err := domain.NewUserID(p.ID)
	if err != nil {
		return nil, fmt.Errorf("could not map user id: %w", err)
	}
	email, err := domain.NewEmail(p.Email)
	if err != nil {
		return nil, fmt.Errorf("could not map email of user %s: %w", p.ID, err)
	}
	name, err := domain.NewName(p.FirstName, p.LastName)
	if err != nil {
		return nil, fmt.Errorf("could not map name of user %s: %w", p.ID, err)
	}

	return domain.ReconstituteUser(id, email, name, p.Active, domain.WithTimestamps(p.CreatedAt, p.UpdatedAt))
}

func (p *PgUser) FromDomain(user *domain.User) {
	*p = PgUser{
		ID:        user.ID().Value(),
		Email:     user.Email().Value(),
		FirstName: user.Name().FirstName(),
		LastName:  user.Name().LastName(),
		Active:    user.IsActive(),
		CreatedAt: user.CreatedAt(),
		UpdatedAt: user.UpdatedAt(),
	}
}

func pgUsersToDomain(rows []PgUser) ([]*domain.User, error) {
	out := make([]*domain.User, 0, len(rows))
	for i := range rows {
		u, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}

		out = append(out, u)
	}

	return out, nil
}
