package integration

import (
	"context"
	"testing"
	"time"

	"github.com/crewbasehq/crewbase/internal/identity"
	"github.com/crewbasehq/crewbase/internal/invites"
	"github.com/crewbasehq/crewbase/internal/orgs"
	"github.com/stretchr/testify/require"
)

func TestExpirySweep_DismissesAndCleansPlaceholders(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users := identity.NewService(pool)
	owner, err := users.CreateVerified(ctx, "owner@example.com", "Owner", "", "")
	require.NoError(t, err)

	org, err := orgs.NewService(pool).CreateWithOwner(ctx, "Acme", "acme", owner.ID)
	require.NoError(t, err)

	svc := invites.NewService(pool, 7)

	stale, err := svc.Create(ctx, org.ID, owner.ID, "ghost@example.com", orgs.RoleMember)
	require.NoError(t, err)
	require.True(t, stale.PlaceholderCreated)

	fresh, err := svc.Create(ctx, org.ID, owner.ID, "active@example.com", orgs.RoleMember)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `
		UPDATE invitations SET expires_at = NOW() - INTERVAL '1 day'
		WHERE id = $1
	`, stale.Invitation.ID)
	require.NoError(t, err)

	require.NoError(t, invites.RunExpirySweep(ctx, pool))

	swept, err := svc.GetByID(ctx, stale.Invitation.ID)
	require.NoError(t, err)
	require.Equal(t, invites.StatusDismissed, swept.Status)

	kept, err := svc.GetByID(ctx, fresh.Invitation.ID)
	require.NoError(t, err)
	require.Equal(t, invites.StatusPending, kept.Status)

	// The stale invitation's placeholder and membership are gone.
	_, err = users.GetByID(ctx, stale.PlaceholderUserID)
	require.ErrorIs(t, err, identity.ErrUserNotFound)

	var count int
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM org_memberships WHERE org_id = $1
	`, org.ID).Scan(&count))
	require.Equal(t, 2, count) // owner plus the still-pending placeholder

	// The sweep is idempotent.
	require.NoError(t, invites.RunExpirySweep(ctx, pool))
}

func TestAccept_ExpiredInvitationIsTerminal(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users := identity.NewService(pool)
	owner, err := users.CreateVerified(ctx, "owner@example.com", "Owner", "", "")
	require.NoError(t, err)
	invitee, err := users.CreateVerified(ctx, "late@example.com", "Late", "", "")
	require.NoError(t, err)

	org, err := orgs.NewService(pool).CreateWithOwner(ctx, "Acme", "acme", owner.ID)
	require.NoError(t, err)

	svc := invites.NewService(pool, 7)
	result, err := svc.Create(ctx, org.ID, owner.ID, "late@example.com", orgs.RoleMember)
	require.NoError(t, err)
	require.False(t, result.PlaceholderCreated)

	_, err = pool.Exec(ctx, `
		UPDATE invitations SET expires_at = NOW() - INTERVAL '1 hour'
		WHERE id = $1
	`, result.Invitation.ID)
	require.NoError(t, err)

	err = svc.Accept(ctx, result.Invitation.ID, invitee.ID)
	require.ErrorIs(t, err, invites.ErrInviteExpired)

	// No membership was created.
	role, err := orgs.NewService(pool).GetMemberRole(ctx, org.ID, invitee.ID)
	require.ErrorIs(t, err, orgs.ErrNotMember)
	require.Empty(t, role)
}

func TestReconciler_MergesProfileAndPreservesID(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users := identity.NewService(pool)
	owner, err := users.CreateVerified(ctx, "owner@example.com", "Owner", "", "")
	require.NoError(t, err)

	org, err := orgs.NewService(pool).CreateWithOwner(ctx, "Acme", "acme", owner.ID)
	require.NoError(t, err)

	svc := invites.NewService(pool, 7)
	result, err := svc.Create(ctx, org.ID, owner.ID, "new@example.com", orgs.RoleAdmin)
	require.NoError(t, err)
	require.True(t, result.PlaceholderCreated)

	reconciler := identity.NewReconciler(pool)

	user, reconciled, err := reconciler.Resolve(ctx, "New@Example.com", identity.Profile{Name: "New Person"})
	require.NoError(t, err)
	require.True(t, reconciled)
	require.Equal(t, result.PlaceholderUserID, user.ID)
	require.True(t, user.Verified)
	require.Equal(t, "New Person", user.Name.String)

	// The pre-created membership survives with its invited role.
	role, err := orgs.NewService(pool).GetMemberRole(ctx, org.ID, user.ID)
	require.NoError(t, err)
	require.Equal(t, orgs.RoleAdmin, role)

	// A second resolve is a passthrough.
	again, reconciled, err := reconciler.Resolve(ctx, "new@example.com", identity.Profile{})
	require.NoError(t, err)
	require.False(t, reconciled)
	require.Equal(t, user.ID, again.ID)

	// Unknown emails resolve to nothing.
	missing, reconciled, err := reconciler.Resolve(ctx, "unknown@example.com", identity.Profile{})
	require.NoError(t, err)
	require.False(t, reconciled)
	require.Nil(t, missing)
}
