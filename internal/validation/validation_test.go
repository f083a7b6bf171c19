package validation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateSlug(t *testing.T) {
	require.NoError(t, ValidateSlug("acme"))
	require.NoError(t, ValidateSlug("acme-inc-42"))

	require.ErrorIs(t, ValidateSlug("ab"), ErrSlugTooShort)
	require.ErrorIs(t, ValidateSlug("-acme"), ErrInvalidSlug)
	require.ErrorIs(t, ValidateSlug("acme_inc"), ErrInvalidSlug)
}

func TestNormalizeEmail(t *testing.T) {
	email, err := NormalizeEmail("  Bob@X.com ")
	require.NoError(t, err)
	require.Equal(t, "bob@x.com", email)

	_, err = NormalizeEmail("")
	require.ErrorIs(t, err, ErrInvalidEmail)

	_, err = NormalizeEmail("not-an-email")
	require.ErrorIs(t, err, ErrInvalidEmail)
}
