package v1handler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"usermgmt/internal/users"
	"usermgmt/pkg/domain"
	"usermgmt/pkg/serrors"

	"github.com/go-faster/jx"
	"github.com/go-playground/validator/v10"
)

// RegisterUserRequest is the body of POST /v1/users.
type RegisterUserRequest struct {
	Email     string `json:"email"     validate:"required,max=254"`
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName"  validate:"required,max=100"`
}

// UpdateProfileRequest is the body of PUT /v1/users/{id}/profile.
type UpdateProfileRequest struct {
	Email     string `json:"email"     validate:"required,max=254"`
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName"  validate:"required,max=100"`
}

// ListUsersParams are the query parameters of GET /v1/users. All filters are
// optional and combine with AND.
type ListUsersParams struct {
	Active *bool
	Name   string
	Email  string
}

// UserParams identify the user addressed by the path.
type UserParams struct {
	ID string
}

// User is the wire representation of domain.User.
type User struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	FullName  string
	Initials  string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewUser(u *domain.User) *User {
	return &User{
		ID:        u.ID().Value(),
		Email:     u.Email().Value(),
		FirstName: u.Name().FirstName(),
		LastName:  u.Name().LastName(),
		FullName:  u.Name().FullName(),
		Initials:  u.Name().Initials(),
		Active:    u.IsActive(),
		CreatedAt: u.CreatedAt(),
		UpdatedAt: u.UpdatedAt(),
	}
}

// UserList is the body returned by GET /v1/users.
type UserList struct {
	Users []*User
}

func NewUserList(list []*domain.User) *UserList {
	out := &UserList{Users: make([]*User, 0, len(list))}
	for _, u := range list {
		out.Users = append(out.Users, NewUser(u))
	}

	return out
}

// Stats is the body returned by GET /v1/users/stats.
type Stats struct {
	Total    int64
	Active   int64
	Inactive int64
}

func NewStats(s users.Stats) *Stats {
	return &Stats{Total: s.Total, Active: s.Active, Inactive: s.Total - s.Active}
}

func (u *User) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(u.ID)
	e.FieldStart("email")
	e.Str(u.Email)
	e.FieldStart("firstName")
	e.Str(u.FirstName)
	e.FieldStart("lastName")
	e.Str(u.LastName)
	e.FieldStart("fullName")
	e.Str(u.FullName)
	e.FieldStart("initials")
	e.Str(u.Initials)
	e.FieldStart("active")
	e.Bool(u.Active)
	e.FieldStart("createdAt")
	e.Str(u.CreatedAt.Format(time.RFC3339Nano))
	e.FieldStart("updatedAt")
	e.Str(u.UpdatedAt.Format(time.RFC3339Nano))
	e.ObjEnd()
}

func (l *UserList) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("users")
	e.ArrStart()
	for _, u := range l.Users {
		u.Encode(e)
	}
	e.ArrEnd()
	e.FieldStart("count")
	e.Int(len(l.Users))
	e.ObjEnd()
}

func (s *Stats) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("total")
	e.Int64(s.Total)
	e.FieldStart("active")
	e.Int64(s.Active)
	e.FieldStart("inactive")
	e.Int64(s.Inactive)
	e.ObjEnd()
}

func (r *Error) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(r.Code)
	e.FieldStart("message")
	e.Str(r.Message)
	e.ObjEnd()
}

// decodeProfile reads the email and name fields shared by both request bodies.
// Unknown fields are ignored.
func decodeProfile(d *jx.Decoder, email, firstName, lastName *string) error {
	return d.Obj(func(d *jx.Decoder, key string) error { //nolint: wrapcheck
		var target *string
		switch key {
		case "email":
			target = email
		case "firstName":
			target = firstName
		case "lastName":
			target = lastName
		default:
			return d.Skip() //nolint: wrapcheck
		}

		if d.Next() == jx.Null {
			return d.Null() //nolint: wrapcheck
		}
		v, err := d.Str()
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		*target = v

		return nil
	})
}

func (r *RegisterUserRequest) Decode(d *jx.Decoder) error {
	return decodeProfile(d, &r.Email, &r.FirstName, &r.LastName)
}

func (r *UpdateProfileRequest) Decode(d *jx.Decoder) error {
	return decodeProfile(d, &r.Email, &r.FirstName, &r.LastName)
}

// validationError turns validator errors into a bad request listing every
// offending field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return serrors.Wrap(serrors.ErrBadRequest, err, "invalid request")
	}

	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, fe.Field()+" "+fieldErrorMessage(fe))
	}

	return serrors.Wrap(serrors.ErrBadRequest, err, "invalid request: %s", strings.Join(details, ", "))
}

func fieldErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters long"
	default:
		return "failed on " + fe.Tag()
	}
}
