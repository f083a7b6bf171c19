package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/crewbasehq/crewbase/internal/app"
	"github.com/crewbasehq/crewbase/internal/authz"
	"github.com/crewbasehq/crewbase/internal/orgs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestE2E_ProjectPermissions_EffectiveRoleResolution(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	srv := httptest.NewServer(app.NewRouter(pool, testConfig()))
	t.Cleanup(srv.Close)

	ownerClient, ownerCSRF := newCSRFClient(t, srv.URL)
	memberClient, memberCSRF := newCSRFClient(t, srv.URL)

	password := "password123"
	signup(t, ownerClient, srv.URL, ownerCSRF, "owner@example.com", password)
	memberUserID := signup(t, memberClient, srv.URL, memberCSRF, "member@example.com", password)

	orgID := createOrg(t, ownerClient, srv.URL, ownerCSRF, "Acme", "acme")

	invitationID := createInvitation(t, ownerClient, srv.URL, ownerCSRF, orgID, "member@example.com", orgs.RoleMember)
	doJSONExpectSuccess(t, memberClient, http.MethodPost, srv.URL+"/api/v1/invitations/"+invitationID.String()+"/accept", memberCSRF, http.StatusOK, nil)

	// Plain members cannot create projects.
	errEnv := doJSONExpectError(t, memberClient, http.MethodPost, srv.URL+"/api/v1/orgs/"+orgID.String()+"/projects", memberCSRF, http.StatusForbidden, map[string]any{
		"name": "Rocket",
		"slug": "rocket",
	})
	require.Equal(t, "forbidden", errEnv.Error.Code)

	projectResp := doJSONExpectSuccess(t, ownerClient, http.MethodPost, srv.URL+"/api/v1/orgs/"+orgID.String()+"/projects", ownerCSRF, http.StatusCreated, map[string]any{
		"name": "Rocket",
		"slug": "rocket",
	})
	var created struct {
		Project struct {
			ID uuid.UUID `json:"id"`
		} `json:"project"`
	}
	require.NoError(t, json.Unmarshal(projectResp.Data, &created))
	projectID := created.Project.ID
	projectURL := srv.URL + "/api/v1/projects/" + projectID.String()

	// Without a grant the project is invisible to the member.
	resp, err := memberClient.Get(projectURL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.Empty(t, listProjects(t, memberClient, srv.URL, orgID))
	require.Len(t, listProjects(t, ownerClient, srv.URL, orgID), 1)

	// Grants require org membership.
	errEnv = doJSONExpectError(t, ownerClient, http.MethodPut, projectURL+"/permissions", ownerCSRF, http.StatusBadRequest, map[string]any{
		"user_id": uuid.NewString(),
		"role":    "VIEWER",
	})
	require.Equal(t, "bad_request", errEnv.Error.Code)

	doJSONExpectSuccess(t, ownerClient, http.MethodPut, projectURL+"/permissions", ownerCSRF, http.StatusOK, map[string]any{
		"user_id": memberUserID,
		"role":    "VIEWER",
	})

	require.Equal(t, authz.ProjectViewer, effectiveRole(t, memberClient, projectURL, nil))
	require.Len(t, listProjects(t, memberClient, srv.URL, orgID), 1)

	// Viewers cannot manage grants.
	errEnv = doJSONExpectError(t, memberClient, http.MethodPut, projectURL+"/permissions", memberCSRF, http.StatusForbidden, map[string]any{
		"user_id": memberUserID,
		"role":    "ADMIN",
	})
	require.Equal(t, "forbidden", errEnv.Error.Code)

	// Org ADMIN outranks any explicit grant, including a lower one.
	doJSONExpectSuccess(t, ownerClient, http.MethodPut, srv.URL+"/api/v1/orgs/"+orgID.String()+"/members/"+memberUserID.String(), ownerCSRF, http.StatusOK, map[string]any{
		"role": string(orgs.RoleAdmin),
	})
	require.Equal(t, authz.ProjectAdmin, effectiveRole(t, memberClient, projectURL, nil))

	// Back to plain member: the stale VIEWER grant applies again.
	doJSONExpectSuccess(t, ownerClient, http.MethodPut, srv.URL+"/api/v1/orgs/"+orgID.String()+"/members/"+memberUserID.String(), ownerCSRF, http.StatusOK, map[string]any{
		"role": string(orgs.RoleMember),
	})
	require.Equal(t, authz.ProjectViewer, effectiveRole(t, memberClient, projectURL, nil))

	// Managers may ask about other users; the subject may always ask about
	// themselves.
	require.Equal(t, authz.ProjectViewer, effectiveRole(t, ownerClient, projectURL, &memberUserID))

	// Revoking the grant drops the member to no access.
	doJSONExpectSuccess(t, ownerClient, http.MethodDelete, projectURL+"/permissions/"+memberUserID.String(), ownerCSRF, http.StatusOK, nil)

	resp, err = memberClient.Get(projectURL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.Equal(t, authz.ProjectNoAccess, effectiveRole(t, ownerClient, projectURL, &memberUserID))

	// Revoking twice is a 404.
	errEnv = doJSONExpectError(t, ownerClient, http.MethodDelete, projectURL+"/permissions/"+memberUserID.String(), ownerCSRF, http.StatusNotFound, nil)
	require.Equal(t, "not_found", errEnv.Error.Code)
}

func listProjects(t *testing.T, client *http.Client, baseURL string, orgID uuid.UUID) []json.RawMessage {
	t.Helper()

	resp, err := client.Get(baseURL + "/api/v1/orgs/" + orgID.String() + "/projects")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env struct {
		Data struct {
			Projects []json.RawMessage `json:"projects"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))

	return env.Data.Projects
}

func effectiveRole(t *testing.T, client *http.Client, projectURL string, subject *uuid.UUID) authz.ProjectRole {
	t.Helper()

	u := projectURL + "/access"
	if subject != nil {
		u += "?user_id=" + subject.String()
	}

	resp, err := client.Get(u)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env struct {
		Data struct {
			Role authz.ProjectRole `json:"role"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))

	return env.Data.Role
}
