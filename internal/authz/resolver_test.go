package authz

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProjectRole_TotalOrder(t *testing.T) {
	ordered := []ProjectRole{ProjectNoAccess, ProjectViewer, ProjectEditor, ProjectAdmin}
	for i := 1; i < len(ordered); i++ {
		require.Greater(t, ordered[i].Level(), ordered[i-1].Level(),
			"%s should outrank %s", ordered[i], ordered[i-1])
	}
}

func TestProjectRole_AtLeast(t *testing.T) {
	require.True(t, ProjectAdmin.AtLeast(ProjectEditor))
	require.True(t, ProjectEditor.AtLeast(ProjectEditor))
	require.False(t, ProjectViewer.AtLeast(ProjectEditor))
	require.False(t, ProjectNoAccess.AtLeast(ProjectViewer))

	// Unknown roles rank as NoAccess.
	require.False(t, ProjectRole("SUPERUSER").AtLeast(ProjectViewer))
}
