package domain_test

import (
	"testing"

	"usermgmt/pkg/domain"
	"usermgmt/pkg/serrors"

	"github.com/stretchr/testify/require"
)

func TestNewName_Invalid(t *testing.T) {
	for _, tc := range [][2]string{
		{"", "Doe"},
		{"John", ""},
		{"   ", "Doe"},
		{"John", "\t"},
	} {
		_, err := domain.NewName(tc[0], tc[1])
		require.ErrorIs(t, err, serrors.ErrInvalidArgument, "first=%q last=%q", tc[0], tc[1])
	}
}

func TestNewName_TrimsAndDerives(t *testing.T) {
	n, err := domain.NewName(" John ", " Doe ")
	require.NoError(t, err)

	require.Equal(t, "John", n.FirstName())
	require.Equal(t, "Doe", n.LastName())
	require.Equal(t, "John Doe", n.FullName())
	require.Equal(t, "JD", n.Initials())
}

func TestName_Initials(t *testing.T) {
	tests := []struct {
		first, last, want string
	}{
		{"ada", "lovelace", "AL"},
		{"J", "K", "JK"},
		{"élodie", "ñúñez", "ÉÑ"},
	}

	for _, tt := range tests {
		n, err := domain.NewName(tt.first, tt.last)
		require.NoError(t, err)
		require.Equal(t, tt.want, n.Initials())
	}
}

func TestName_Equality(t *testing.T) {
	a, _ := domain.NewName("John", "Doe")
	b, _ := domain.NewName(" John", "Doe ")
	c, _ := domain.NewName("Jane", "Doe")

	require.True(t, a.Equals(b))
	require.False(t, a.Equals(c))
}
