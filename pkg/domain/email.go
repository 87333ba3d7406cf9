package domain

import (
	"regexp"
	"strings"

	"usermgmt/pkg/serrors"
)

// emailPattern requires local@domain.tld with a top-level label of at least
// two letters.
var emailPattern = regexp.MustCompile(`^[A-Za-z0-9+_.-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`) //nolint: gochecknoglobals

// Email is a validated, lower-cased email address.
type Email struct {
	value string
}

// NewEmail validates raw as given, so surrounding whitespace is rejected, and
// stores it lower-cased. Two inputs that differ only in letter case produce
// equal values.
func NewEmail(raw string) (Email, error) {
	if strings.TrimSpace(raw) == "" {
		return Email{}, serrors.With(serrors.ErrInvalidArgument, "email cannot be blank")
	}
	if !emailPattern.MatchString(raw) {
		return Email{}, serrors.With(serrors.ErrInvalidArgument, "invalid email format: %q", raw)
	}

	return Email{value: strings.ToLower(strings.TrimSpace(raw))}, nil
}

func (e Email) Value() string  { return e.value }
func (e Email) String() string { return e.value }

// LocalPart returns the part before the first '@'.
func (e Email) LocalPart() string {
	local, _, _ := strings.Cut(e.value, "@")

	return local
}

// Domain returns the part after the first '@'.
func (e Email) Domain() string {
	_, domain, _ := strings.Cut(e.value, "@")

	return domain
}

func (e Email) IsZero() bool { return e.value == "" }

func (e Email) Equals(other Email) bool { return e.value == other.value }
