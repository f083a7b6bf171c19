package identity

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeProfile_IncomingWins(t *testing.T) {
	existing := &User{
		Name:  sql.NullString{String: "Invited Bob", Valid: true},
		Image: sql.NullString{String: "https://img.example/old.png", Valid: true},
	}

	name, image := mergeProfile(existing, Profile{Name: "Bob", Image: "https://img.example/new.png"})
	require.Equal(t, "Bob", name)
	require.Equal(t, "https://img.example/new.png", image)
}

func TestMergeProfile_AbsentNeverOverwritesPresent(t *testing.T) {
	existing := &User{
		Name:  sql.NullString{String: "Invited Bob", Valid: true},
		Image: sql.NullString{String: "https://img.example/old.png", Valid: true},
	}

	name, image := mergeProfile(existing, Profile{})
	require.Equal(t, "Invited Bob", name)
	require.Equal(t, "https://img.example/old.png", image)
}

func TestMergeProfile_FillsMissingFields(t *testing.T) {
	existing := &User{}

	name, image := mergeProfile(existing, Profile{Name: "Bob"})
	require.Equal(t, "Bob", name)
	require.Equal(t, "", image)
}
