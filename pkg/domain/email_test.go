package domain_test

import (
	"testing"

	"usermgmt/pkg/domain"
	"usermgmt/pkg/serrors"

	"github.com/stretchr/testify/require"
)

func TestNewEmail(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "simple", raw: "a@b.co", want: "a@b.co"},
		{name: "lower-cased", raw: "Jane.Doe+news@Example.COM", want: "jane.doe+news@example.com"},
		{name: "surrounding whitespace", raw: " jane@example.com ", wantErr: true},
		{name: "trailing newline", raw: "jane@example.com\n", wantErr: true},
		{name: "subdomain", raw: "x_y-z@mail.example.org", want: "x_y-z@mail.example.org"},
		{name: "blank", raw: "   ", wantErr: true},
		{name: "no at sign", raw: "BAD", wantErr: true},
		{name: "one letter tld", raw: "a@b.c", wantErr: true},
		{name: "numeric tld", raw: "a@b.12", wantErr: true},
		{name: "illegal local char", raw: "a!b@example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := domain.NewEmail(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, serrors.ErrInvalidArgument)
				require.True(t, e.IsZero())

				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.want, e.Value())
		})
	}
}

func TestEmail_Parts(t *testing.T) {
	e, err := domain.NewEmail("John.Smith@Example.com")
	require.NoError(t, err)

	require.Equal(t, "john.smith", e.LocalPart())
	require.Equal(t, "example.com", e.Domain())
	require.Equal(t, "john.smith@example.com", e.String())
}

func TestEmail_CaseInsensitiveEquality(t *testing.T) {
	a, err := domain.NewEmail("Jane@Example.com")
	require.NoError(t, err)
	b, err := domain.NewEmail("jane@example.COM")
	require.NoError(t, err)
	c, err := domain.NewEmail("john@example.com")
	require.NoError(t, err)

	require.True(t, a.Equals(b))
	require.Equal(t, a, b)
	require.False(t, a.Equals(c))
}
