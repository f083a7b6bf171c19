package orgs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrgRole_IsValid(t *testing.T) {
	require.True(t, RoleOwner.IsValid())
	require.True(t, RoleAdmin.IsValid())
	require.True(t, RoleMember.IsValid())

	require.False(t, OrgRole("VIEWER").IsValid())
	require.False(t, OrgRole("owner").IsValid())
	require.False(t, OrgRole("").IsValid())
}

func TestOrgRole_CanManage(t *testing.T) {
	require.True(t, RoleOwner.CanManage())
	require.True(t, RoleAdmin.CanManage())
	require.False(t, RoleMember.CanManage())
}
