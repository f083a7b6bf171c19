package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/crewbasehq/crewbase/internal/app"
	"github.com/crewbasehq/crewbase/internal/orgs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestE2E_InvitationLifecycle_PlaceholderReconciliation(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	srv := httptest.NewServer(app.NewRouter(pool, testConfig()))
	t.Cleanup(srv.Close)

	ownerClient, ownerCSRF := newCSRFClient(t, srv.URL)
	inviteeClient, inviteeCSRF := newCSRFClient(t, srv.URL)

	ownerEmail := "owner@example.com"
	inviteeEmail := "invitee@example.com"
	password := "password123"

	ownerUserID := signup(t, ownerClient, srv.URL, ownerCSRF, ownerEmail, password)
	orgID := createOrg(t, ownerClient, srv.URL, ownerCSRF, "Acme", "acme")

	// Inviting an unknown email pre-creates a placeholder member.
	invitationID := createInvitation(t, ownerClient, srv.URL, ownerCSRF, orgID, inviteeEmail, orgs.RoleMember)

	members := listMembers(t, ownerClient, srv.URL, orgID)
	require.Len(t, members, 2)

	ownerMember := findMember(t, members, ownerUserID)
	require.True(t, ownerMember.Verified)
	require.Equal(t, orgs.RoleOwner, ownerMember.Role)

	var placeholderID uuid.UUID
	for _, m := range members {
		if m.Email == inviteeEmail {
			placeholderID = m.UserID
			require.False(t, m.Verified)
			require.Equal(t, orgs.RoleMember, m.Role)
		}
	}
	require.NotEqual(t, uuid.Nil, placeholderID)

	// A second pending invitation for the same email is rejected.
	errEnv := doJSONExpectError(t, ownerClient, http.MethodPost, srv.URL+"/api/v1/orgs/"+orgID.String()+"/invitations", ownerCSRF, http.StatusConflict, map[string]any{
		"email": inviteeEmail,
		"role":  string(orgs.RoleAdmin),
	})
	require.Equal(t, "conflict", errEnv.Error.Code)

	// The invitee signs up. Reconciliation must reuse the placeholder id so
	// the pre-created membership stays attached to the same identity.
	inviteeUserID := signup(t, inviteeClient, srv.URL, inviteeCSRF, inviteeEmail, password)
	require.Equal(t, placeholderID, inviteeUserID)

	members = listMembers(t, ownerClient, srv.URL, orgID)
	postSignup := findMember(t, members, inviteeUserID)
	require.True(t, postSignup.Verified)
	require.Equal(t, orgs.RoleMember, postSignup.Role)

	// Accept is idempotent.
	acceptURL := srv.URL + "/api/v1/invitations/" + invitationID.String() + "/accept"
	doJSONExpectSuccess(t, inviteeClient, http.MethodPost, acceptURL, inviteeCSRF, http.StatusOK, nil)
	doJSONExpectSuccess(t, inviteeClient, http.MethodPost, acceptURL, inviteeCSRF, http.StatusOK, nil)

	// After acceptance the invitee sees the org in their own listing.
	resp, err := inviteeClient.Get(srv.URL + "/api/v1/orgs")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var orgsEnv struct {
		Data struct {
			Orgs []struct {
				ID   uuid.UUID    `json:"id"`
				Role orgs.OrgRole `json:"role"`
			} `json:"orgs"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&orgsEnv))
	require.Len(t, orgsEnv.Data.Orgs, 1)
	require.Equal(t, orgID, orgsEnv.Data.Orgs[0].ID)
	require.Equal(t, orgs.RoleMember, orgsEnv.Data.Orgs[0].Role)

	// Accepting a dismissed invitation is a terminal conflict, and the
	// dismissal removes the placeholder it pre-created.
	secondID := createInvitation(t, ownerClient, srv.URL, ownerCSRF, orgID, "other@example.com", orgs.RoleMember)
	require.Len(t, listMembers(t, ownerClient, srv.URL, orgID), 3)

	dismissURL := srv.URL + "/api/v1/invitations/" + secondID.String() + "/dismiss"
	doJSONExpectSuccess(t, ownerClient, http.MethodPost, dismissURL, ownerCSRF, http.StatusOK, nil)
	// Dismissing again is a no-op.
	doJSONExpectSuccess(t, ownerClient, http.MethodPost, dismissURL, ownerCSRF, http.StatusOK, nil)

	require.Len(t, listMembers(t, ownerClient, srv.URL, orgID), 2)

	// The audit trail records the whole lifecycle.
	events := listAudit(t, ownerClient, srv.URL, orgID, 50)
	actions := make(map[string]bool)
	for _, ev := range events {
		actions[ev.Action] = true
	}
	require.True(t, actions["org.created"], "missing org.created audit event")
	require.True(t, actions["invitation.created"], "missing invitation.created audit event")
	require.True(t, actions["invitation.accepted"], "missing invitation.accepted audit event")
	require.True(t, actions["invitation.dismissed"], "missing invitation.dismissed audit event")
}

func listAudit(t *testing.T, client *http.Client, baseURL string, orgID uuid.UUID, limit int) []struct {
	Action string `json:"action"`
} {
	t.Helper()

	resp, err := client.Get(baseURL + "/api/v1/orgs/" + orgID.String() + "/audit?limit=50")
	require.NoError(t, err)
	defer resp.Body.Close()

	var env struct {
		Data struct {
			Events []struct {
				Action string `json:"action"`
			} `json:"events"`
		} `json:"data"`
	}
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))

	return env.Data.Events
}

func TestE2E_InvitationAccept_RequiresInvitedEmail(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	srv := httptest.NewServer(app.NewRouter(pool, testConfig()))
	t.Cleanup(srv.Close)

	ownerClient, ownerCSRF := newCSRFClient(t, srv.URL)
	inviteeClient, inviteeCSRF := newCSRFClient(t, srv.URL)
	strangerClient, strangerCSRF := newCSRFClient(t, srv.URL)

	password := "password123"
	signup(t, ownerClient, srv.URL, ownerCSRF, "owner@example.com", password)
	signup(t, inviteeClient, srv.URL, inviteeCSRF, "invitee@example.com", password)
	signup(t, strangerClient, srv.URL, strangerCSRF, "stranger@example.com", password)

	orgID := createOrg(t, ownerClient, srv.URL, ownerCSRF, "Acme", "acme")
	invitationID := createInvitation(t, ownerClient, srv.URL, ownerCSRF, orgID, "invitee@example.com", orgs.RoleMember)
	acceptURL := srv.URL + "/api/v1/invitations/" + invitationID.String() + "/accept"

	// A different authenticated account cannot accept someone else's
	// invitation while it is pending.
	errEnv := doJSONExpectError(t, strangerClient, http.MethodPost, acceptURL, strangerCSRF, http.StatusForbidden, nil)
	require.Equal(t, "forbidden", errEnv.Error.Code)

	doJSONExpectSuccess(t, inviteeClient, http.MethodPost, acceptURL, inviteeCSRF, http.StatusOK, nil)

	// Nor once it is accepted: the idempotent success is reserved for the
	// invited user.
	errEnv = doJSONExpectError(t, strangerClient, http.MethodPost, acceptURL, strangerCSRF, http.StatusForbidden, nil)
	require.Equal(t, "forbidden", errEnv.Error.Code)
	doJSONExpectSuccess(t, inviteeClient, http.MethodPost, acceptURL, inviteeCSRF, http.StatusOK, nil)

	// The stranger gained nothing from probing.
	require.Len(t, listMembers(t, ownerClient, srv.URL, orgID), 2)
}
