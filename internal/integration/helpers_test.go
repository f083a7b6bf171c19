package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"testing"

	"github.com/crewbasehq/crewbase/internal/auth"
	"github.com/crewbasehq/crewbase/internal/config"
	"github.com/crewbasehq/crewbase/internal/orgs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type envelopeResponse struct {
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	} `json:"error"`
}

func testConfig() *config.Config {
	return &config.Config{
		Env:             "dev",
		HTTPAddr:        ":0",
		BaseURL:         "http://localhost",
		DBDSN:           "unused",
		JWTSecret:       "test-secret",
		IdPSecret:       "test-idp-secret",
		LogLevel:        "error",
		RateLimitRPM:    600,
		SessionDays:     7,
		MailerTimeoutMS: 2000,
		InviteTTLDays:   7,
	}
}

func newCSRFClient(t *testing.T, serverURL string) (*http.Client, string) {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	baseURL, err := url.Parse(serverURL)
	require.NoError(t, err)

	csrfToken, err := auth.GenerateCSRFToken()
	require.NoError(t, err)
	jar.SetCookies(baseURL, []*http.Cookie{{
		Name:  auth.CSRFCookieName,
		Value: csrfToken,
		Path:  "/",
	}})

	return client, csrfToken
}

func signup(t *testing.T, client *http.Client, baseURL, csrfToken, email, password string) uuid.UUID {
	t.Helper()

	resp := doJSONExpectSuccess(t, client, http.MethodPost, baseURL+"/api/v1/auth/signup", csrfToken, http.StatusCreated, map[string]any{
		"email":    email,
		"password": password,
	})

	var session struct {
		UserID uuid.UUID `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &session))
	require.NotEqual(t, uuid.Nil, session.UserID)

	return session.UserID
}

func createOrg(t *testing.T, client *http.Client, baseURL, csrfToken, name, slug string) uuid.UUID {
	t.Helper()

	resp := doJSONExpectSuccess(t, client, http.MethodPost, baseURL+"/api/v1/orgs", csrfToken, http.StatusCreated, map[string]any{
		"name": name,
		"slug": slug,
	})

	var parsed struct {
		Org struct {
			ID uuid.UUID `json:"id"`
		} `json:"org"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &parsed))
	require.NotEqual(t, uuid.Nil, parsed.Org.ID)

	return parsed.Org.ID
}

func createInvitation(t *testing.T, client *http.Client, baseURL, csrfToken string, orgID uuid.UUID, email string, role orgs.OrgRole) uuid.UUID {
	t.Helper()

	resp := doJSONExpectSuccess(t, client, http.MethodPost, baseURL+"/api/v1/orgs/"+orgID.String()+"/invitations", csrfToken, http.StatusCreated, map[string]any{
		"email": email,
		"role":  string(role),
	})

	var parsed struct {
		Invitation struct {
			ID uuid.UUID `json:"id"`
		} `json:"invitation"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &parsed))
	require.NotEqual(t, uuid.Nil, parsed.Invitation.ID)

	return parsed.Invitation.ID
}

func listMembers(t *testing.T, client *http.Client, baseURL string, orgID uuid.UUID) []orgs.MemberInfo {
	t.Helper()

	resp, err := client.Get(baseURL + "/api/v1/orgs/" + orgID.String() + "/members")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", string(body))

	var env struct {
		RequestID string `json:"request_id"`
		Data      struct {
			Members []orgs.MemberInfo `json:"members"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &env))
	require.NotEmpty(t, env.RequestID)

	return env.Data.Members
}

func findMember(t *testing.T, members []orgs.MemberInfo, userID uuid.UUID) orgs.MemberInfo {
	t.Helper()
	for _, m := range members {
		if m.UserID == userID {
			return m
		}
	}
	t.Fatalf("member %s not found", userID)
	return orgs.MemberInfo{}
}

func doJSONExpectSuccess(t *testing.T, client *http.Client, method, urlStr, csrfToken string, wantStatus int, payload any) envelopeResponse {
	t.Helper()

	respBody := doJSONExpectStatus(t, client, method, urlStr, csrfToken, wantStatus, payload)

	var env envelopeResponse
	require.NoError(t, json.Unmarshal(respBody, &env))
	require.NotEmpty(t, env.RequestID)

	return env
}

func doJSONExpectError(t *testing.T, client *http.Client, method, urlStr, csrfToken string, wantStatus int, payload any) errorEnvelope {
	t.Helper()

	respBody := doJSONExpectStatus(t, client, method, urlStr, csrfToken, wantStatus, payload)

	var env errorEnvelope
	require.NoError(t, json.Unmarshal(respBody, &env))
	require.NotEmpty(t, env.Error.RequestID)

	return env
}

func doJSONExpectStatus(t *testing.T, client *http.Client, method, urlStr, csrfToken string, wantStatus int, payload any) []byte {
	t.Helper()

	var bodyReader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, urlStr, bodyReader)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost || method == http.MethodPut || method == http.MethodDelete {
		req.Header.Set(auth.CSRFHeaderName, csrfToken)
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, wantStatus, resp.StatusCode, "body: %s", string(body))

	return body
}
