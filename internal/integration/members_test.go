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

func TestE2E_MemberRoles_LastOwnerGuardrails(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	srv := httptest.NewServer(app.NewRouter(pool, testConfig()))
	t.Cleanup(srv.Close)

	ownerClient, ownerCSRF := newCSRFClient(t, srv.URL)
	secondClient, secondCSRF := newCSRFClient(t, srv.URL)

	password := "password123"
	ownerUserID := signup(t, ownerClient, srv.URL, ownerCSRF, "owner@example.com", password)
	secondUserID := signup(t, secondClient, srv.URL, secondCSRF, "second@example.com", password)

	orgID := createOrg(t, ownerClient, srv.URL, ownerCSRF, "Acme", "acme")

	// Inviting an existing account does not create a placeholder; the
	// membership appears on acceptance.
	invitationID := createInvitation(t, ownerClient, srv.URL, ownerCSRF, orgID, "second@example.com", orgs.RoleAdmin)
	require.Len(t, listMembers(t, ownerClient, srv.URL, orgID), 1)

	doJSONExpectSuccess(t, secondClient, http.MethodPost, srv.URL+"/api/v1/invitations/"+invitationID.String()+"/accept", secondCSRF, http.StatusOK, nil)
	require.Len(t, listMembers(t, ownerClient, srv.URL, orgID), 2)

	ownerMemberURL := srv.URL + "/api/v1/orgs/" + orgID.String() + "/members/" + ownerUserID.String()
	secondMemberURL := srv.URL + "/api/v1/orgs/" + orgID.String() + "/members/" + secondUserID.String()

	// The sole verified owner cannot be demoted or removed, not even by an
	// admin.
	errEnv := doJSONExpectError(t, secondClient, http.MethodPut, ownerMemberURL, secondCSRF, http.StatusConflict, map[string]any{
		"role": string(orgs.RoleMember),
	})
	require.Equal(t, "invariant_violation", errEnv.Error.Code)

	errEnv = doJSONExpectError(t, secondClient, http.MethodDelete, ownerMemberURL, secondCSRF, http.StatusConflict, nil)
	require.Equal(t, "invariant_violation", errEnv.Error.Code)

	// Members cannot leave through the removal endpoint.
	errEnv = doJSONExpectError(t, secondClient, http.MethodDelete, secondMemberURL, secondCSRF, http.StatusBadRequest, nil)
	require.Equal(t, "bad_request", errEnv.Error.Code)

	// Removing someone who is not a member is a 404.
	errEnv = doJSONExpectError(t, ownerClient, http.MethodDelete, srv.URL+"/api/v1/orgs/"+orgID.String()+"/members/"+uuid.NewString(), ownerCSRF, http.StatusNotFound, nil)
	require.Equal(t, "not_found", errEnv.Error.Code)

	// With a second verified owner in place the original owner may step down.
	doJSONExpectSuccess(t, ownerClient, http.MethodPut, secondMemberURL, ownerCSRF, http.StatusOK, map[string]any{
		"role": string(orgs.RoleOwner),
	})
	doJSONExpectSuccess(t, secondClient, http.MethodPut, ownerMemberURL, secondCSRF, http.StatusOK, map[string]any{
		"role": string(orgs.RoleMember),
	})

	members := listMembers(t, ownerClient, srv.URL, orgID)
	require.Equal(t, orgs.RoleMember, findMember(t, members, ownerUserID).Role)
	require.Equal(t, orgs.RoleOwner, findMember(t, members, secondUserID).Role)

	// Demoted members lose management endpoints.
	errEnv = doJSONExpectError(t, ownerClient, http.MethodPut, secondMemberURL, ownerCSRF, http.StatusForbidden, map[string]any{
		"role": string(orgs.RoleAdmin),
	})
	require.Equal(t, "forbidden", errEnv.Error.Code)

	// Now the remaining owner can remove the demoted member.
	doJSONExpectSuccess(t, secondClient, http.MethodDelete, ownerMemberURL, secondCSRF, http.StatusOK, nil)
	require.Len(t, listMembers(t, secondClient, srv.URL, orgID), 1)
}

func TestE2E_OrgDeletion_RequiresNameConfirmation(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	srv := httptest.NewServer(app.NewRouter(pool, testConfig()))
	t.Cleanup(srv.Close)

	ownerClient, ownerCSRF := newCSRFClient(t, srv.URL)
	signup(t, ownerClient, srv.URL, ownerCSRF, "owner@example.com", "password123")

	orgID := createOrg(t, ownerClient, srv.URL, ownerCSRF, "Acme Corp", "acme-corp")
	deleteURL := srv.URL + "/api/v1/orgs/" + orgID.String()

	// Wrong confirmation name is rejected.
	errEnv := doJSONExpectError(t, ownerClient, http.MethodDelete, deleteURL, ownerCSRF, http.StatusForbidden, map[string]any{
		"name": "Acme",
	})
	require.Equal(t, "forbidden", errEnv.Error.Code)

	// Exact name deletes the org and everything under it.
	doJSONExpectSuccess(t, ownerClient, http.MethodDelete, deleteURL, ownerCSRF, http.StatusOK, map[string]any{
		"name": "Acme Corp",
	})

	resp, err := ownerClient.Get(srv.URL + "/api/v1/orgs")
	require.NoError(t, err)
	defer resp.Body.Close()

	var env struct {
		Data struct {
			Orgs []json.RawMessage `json:"orgs"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	require.Empty(t, env.Data.Orgs)
}

func TestE2E_RemoveMember_PlaceholderCleanup(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	srv := httptest.NewServer(app.NewRouter(pool, testConfig()))
	t.Cleanup(srv.Close)

	ownerClient, ownerCSRF := newCSRFClient(t, srv.URL)

	signup(t, ownerClient, srv.URL, ownerCSRF, "owner@example.com", "password123")
	orgID := createOrg(t, ownerClient, srv.URL, ownerCSRF, "Acme", "acme")

	invitationID := createInvitation(t, ownerClient, srv.URL, ownerCSRF, orgID, "ghost@example.com", orgs.RoleMember)

	members := listMembers(t, ownerClient, srv.URL, orgID)
	require.Len(t, members, 2)

	var placeholderID uuid.UUID
	for _, m := range members {
		if m.Email == "ghost@example.com" {
			placeholderID = m.UserID
			require.False(t, m.Verified)
		}
	}
	require.NotEqual(t, uuid.Nil, placeholderID)

	// Removing the placeholder member cascades: the pending invitation and
	// the unreferenced placeholder identity go with the membership.
	doJSONExpectSuccess(t, ownerClient, http.MethodDelete, srv.URL+"/api/v1/orgs/"+orgID.String()+"/members/"+placeholderID.String(), ownerCSRF, http.StatusOK, nil)

	require.Len(t, listMembers(t, ownerClient, srv.URL, orgID), 1)

	resp, err := ownerClient.Get(srv.URL + "/api/v1/orgs/" + orgID.String() + "/invitations")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var pendingEnv struct {
		Data struct {
			Invitations []json.RawMessage `json:"invitations"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pendingEnv))
	require.Empty(t, pendingEnv.Data.Invitations)

	errEnv := doJSONExpectError(t, ownerClient, http.MethodGet, srv.URL+"/api/v1/invitations/"+invitationID.String(), ownerCSRF, http.StatusNotFound, nil)
	require.Equal(t, "not_found", errEnv.Error.Code)

	// With the placeholder row gone, a later signup under the same email
	// starts a brand-new identity with no memberships.
	ghostClient, ghostCSRF := newCSRFClient(t, srv.URL)
	ghostUserID := signup(t, ghostClient, srv.URL, ghostCSRF, "ghost@example.com", "password123")
	require.NotEqual(t, placeholderID, ghostUserID)

	resp, err = ghostClient.Get(srv.URL + "/api/v1/orgs")
	require.NoError(t, err)
	defer resp.Body.Close()

	var orgsEnv struct {
		Data struct {
			Orgs []json.RawMessage `json:"orgs"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&orgsEnv))
	require.Empty(t, orgsEnv.Data.Orgs)
}
