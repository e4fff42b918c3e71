package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTenant = "tenant-1"

type seenRequest struct {
	Method string
	Path   string
	Query  map[string][]string
	Body   []byte
}

// fakeCloud serves both the token endpoint and the Graph users API.
type fakeCloud struct {
	mu          sync.Mutex
	tokenCalls  int
	graphCalls  []seenRequest
	tokenStatus int

	idp   *httptest.Server
	graph *httptest.Server
}

func newFakeCloud(t *testing.T) *fakeCloud {
	t.Helper()
	fc := &fakeCloud{tokenStatus: http.StatusOK}

	idp := chi.NewRouter()
	idp.Post("/{tenant}/oauth2/v2.0/token", func(w http.ResponseWriter, r *http.Request) {
		fc.mu.Lock()
		fc.tokenCalls++
		status := fc.tokenStatus
		fc.mu.Unlock()

		if status != http.StatusOK {
			respondJSON(w, status, map[string]any{
				"error":             "invalid_client",
				"error_description": "AADSTS7000215: Invalid client secret provided.",
			})
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"access_token": "cli-token", "token_type": "Bearer", "expires_in": 3599})
	})
	fc.idp = httptest.NewServer(idp)
	t.Cleanup(fc.idp.Close)

	graph := chi.NewRouter()
	graph.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer cli-token" {
				respondJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]any{"code": "InvalidAuthenticationToken"}})
				return
			}
			body, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(body))
			fc.mu.Lock()
			fc.graphCalls = append(fc.graphCalls, seenRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query(), Body: body})
			fc.mu.Unlock()
			next.ServeHTTP(w, r)
		})
	})
	graph.Route("/v1.0", func(r chi.Router) {
		r.Get("/users", func(w http.ResponseWriter, _ *http.Request) {
			respondJSON(w, http.StatusOK, map[string]any{
				"value": []map[string]any{
					{"id": "id-1", "displayName": "Ann Lee", "userPrincipalName": "alee@contoso.com", "officeLocation": "B1"},
					{"id": "id-2", "displayName": "Annie Ray", "userPrincipalName": "aray@contoso.com"},
				},
			})
		})
		r.Post("/users", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			respondJSON(w, http.StatusCreated, map[string]any{
				"id":                "new-id",
				"displayName":       body["displayName"],
				"userPrincipalName": body["userPrincipalName"],
			})
		})
		r.Delete("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
			if chi.URLParam(r, "id") == "ghost@contoso.com" {
				respondJSON(w, http.StatusNotFound, map[string]any{
					"error": map[string]any{"code": "Request_ResourceNotFound", "message": "Resource 'ghost@contoso.com' does not exist."},
				})
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})
	fc.graph = httptest.NewServer(graph)
	t.Cleanup(fc.graph.Close)

	return fc
}

func (fc *fakeCloud) calls() (int, []seenRequest) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.tokenCalls, append([]seenRequest(nil), fc.graphCalls...)
}

// writeConfig writes a config file for fc; extra entries override the defaults.
func (fc *fakeCloud) writeConfig(t *testing.T, extra map[string]any) string {
	t.Helper()
	cfg := map[string]any{
		"tenant_id":      testTenant,
		"client_id":      "app-id",
		"client_secret":  "app-secret",
		"graph_api_url":  fc.graph.URL + "/v1.0",
		"authority_host": fc.idp.URL,
		"tenant_domain":  "contoso.com",
	}
	for k, v := range extra {
		if v == nil {
			delete(cfg, k)
			continue
		}
		cfg[k] = v
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// isolate keeps the developer's environment and working directory out of the test.
func isolate(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GRAPHCTL_CONFIG", "GRAPHCTL_DEBUG",
		"GRAPHCTL_TENANT_ID", "GRAPHCTL_CLIENT_ID", "GRAPHCTL_CLIENT_SECRET",
		"GRAPHCTL_GRAPH_API_URL", "GRAPHCTL_TENANT_DOMAIN", "GRAPHCTL_AUTHORITY_HOST",
		"GRAPHCTL_CREDENTIAL_BACKEND", "GRAPHCTL_REQUEST_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
	cwd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(cwd) })
	require.NoError(t, os.Chdir(t.TempDir()))
}

func run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_UsageErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no action", nil, "one of --list-users, --search, --create-user, --delete-user is required"},
		{"list and search", []string{"--list-users", "--search", "Ann"}, "mutually exclusive"},
		{"search and delete", []string{"--search", "Ann", "--delete-user", "x"}, "--search, --delete-user are mutually exclusive"},
		{"create without password", []string{"--create-user", "--display-name", "Ann Lee", "--username", "alee"}, "missing: --password"},
		{"create without anything", []string{"--create-user"}, "missing: --display-name, --username, --password"},
		{"zero limit", []string{"--list-users=0"}, "positive integer"},
		{"negative positional limit", []string{"--list-users", "-5"}, ""},
		{"non numeric limit", []string{"--list-users", "many"}, "expected an integer"},
		{"empty search", []string{"--search", ""}, "non-empty prefix"},
		{"bad top", []string{"--search", "Ann", "--top", "0"}, "--top must be a positive integer"},
		{"stray argument", []string{"--search", "Ann", "extra"}, "unexpected arguments"},
		{"unknown flag", []string{"--list-groups"}, "unknown flag"},
		{"bad output", []string{"--list-users", "-o", "yaml"}, "invalid --output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			fc := newFakeCloud(t)
			cfgPath := fc.writeConfig(t, nil)

			code, stdout, stderr := run(append(tt.args, "--config", cfgPath)...)

			assert.Equal(t, ExitUsage, code, stderr)
			assert.Empty(t, stdout)
			assert.Contains(t, stderr, tt.wantErr)
			assert.Contains(t, stderr, "Usage:")

			tokenCalls, graphCalls := fc.calls()
			assert.Zero(t, tokenCalls, "no token request expected")
			assert.Empty(t, graphCalls, "no directory request expected")
		})
	}
}

func TestRun_UsageErrorPrecedesConfiguration(t *testing.T) {
	isolate(t)

	code, _, stderr := run("--list-users", "--search", "Ann", "--config", "/does/not/exist.json")
	assert.Equal(t, ExitUsage, code)
	assert.NotContains(t, stderr, "configuration error")
}

func TestRun_ListUsers(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantTop string
	}{
		{"default", []string{"--list-users"}, "10"},
		{"positional value", []string{"--list-users", "3"}, "3"},
		{"inline value", []string{"--list-users=25"}, "25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			fc := newFakeCloud(t)

			code, stdout, stderr := run(append(tt.args, "--config", fc.writeConfig(t, nil))...)
			require.Equal(t, ExitOK, code, stderr)

			assert.Equal(t,
				"- Ann Lee | alee@contoso.com | id=id-1\n- Annie Ray | aray@contoso.com | id=id-2\n",
				stdout,
			)

			tokenCalls, graphCalls := fc.calls()
			assert.Equal(t, 1, tokenCalls)
			require.Len(t, graphCalls, 1)
			assert.Equal(t, "/v1.0/users", graphCalls[0].Path)
			assert.Equal(t, []string{tt.wantTop}, graphCalls[0].Query["$top"])
		})
	}
}

func TestRun_ListUsersJSON(t *testing.T) {
	isolate(t)
	fc := newFakeCloud(t)

	code, stdout, stderr := run("--list-users", "--output", "json", "--config", fc.writeConfig(t, nil))
	require.Equal(t, ExitOK, code, stderr)

	var users []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &users))
	require.Len(t, users, 2)
	assert.Equal(t, "B1", users[0]["officeLocation"])
}

func TestRun_SearchUsers(t *testing.T) {
	isolate(t)
	fc := newFakeCloud(t)

	code, stdout, stderr := run("--search", "Ann", "--config", fc.writeConfig(t, nil))
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stdout, "- Ann Lee | alee@contoso.com | id=id-1\n")

	_, graphCalls := fc.calls()
	require.Len(t, graphCalls, 1)
	assert.Equal(t, []string{"startswith(displayName,'Ann') or startswith(mail,'Ann')"}, graphCalls[0].Query["$filter"])
	assert.Equal(t, []string{"10"}, graphCalls[0].Query["$top"])
}

func TestRun_CreateUser(t *testing.T) {
	isolate(t)
	fc := newFakeCloud(t)

	code, stdout, stderr := run(
		"--create-user",
		"--display-name", "Ann Lee",
		"--username", "alee",
		"--password", "P@ssw0rd!",
		"--config", fc.writeConfig(t, nil),
	)
	require.Equal(t, ExitOK, code, stderr)
	assert.Equal(t, "User created:\n- Ann Lee | alee@contoso.com | id=new-id\n", stdout)

	_, graphCalls := fc.calls()
	require.Len(t, graphCalls, 1)
	assert.Equal(t, http.MethodPost, graphCalls[0].Method)

	var body struct {
		AccountEnabled    bool   `json:"accountEnabled"`
		UserPrincipalName string `json:"userPrincipalName"`
		MailNickname      string `json:"mailNickname"`
		PasswordProfile   struct {
			ForceChangePasswordNextSignIn bool `json:"forceChangePasswordNextSignIn"`
		} `json:"passwordProfile"`
	}
	require.NoError(t, json.Unmarshal(graphCalls[0].Body, &body))
	assert.True(t, body.AccountEnabled)
	assert.Equal(t, "alee@contoso.com", body.UserPrincipalName)
	assert.Equal(t, "alee", body.MailNickname)
	assert.True(t, body.PasswordProfile.ForceChangePasswordNextSignIn)
}

func TestRun_CreateUserWithoutTenantDomain(t *testing.T) {
	isolate(t)
	fc := newFakeCloud(t)

	code, stdout, stderr := run(
		"--create-user",
		"--display-name", "Ann Lee",
		"--username", "alee",
		"--password", "P@ssw0rd!",
		"--config", fc.writeConfig(t, map[string]any{"tenant_domain": nil}),
	)
	assert.Equal(t, ExitFailure, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "tenant_domain")

	tokenCalls, graphCalls := fc.calls()
	assert.Zero(t, tokenCalls)
	assert.Empty(t, graphCalls)
}

func TestRun_DeleteUser(t *testing.T) {
	isolate(t)
	fc := newFakeCloud(t)
	cfgPath := fc.writeConfig(t, nil)

	code, stdout, stderr := run("--delete-user", "alee@contoso.com", "--config", cfgPath)
	require.Equal(t, ExitOK, code, stderr)
	assert.Equal(t, "User deleted.\n", stdout)

	code, stdout, stderr = run("--delete-user", "ghost@contoso.com", "--config", cfgPath)
	assert.Equal(t, ExitFailure, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "HTTP 404")
	assert.Contains(t, stderr, "Request_ResourceNotFound")

	_, graphCalls := fc.calls()
	require.Len(t, graphCalls, 2)
	assert.Equal(t, "/v1.0/users/alee@contoso.com", graphCalls[0].Path)
	assert.Equal(t, http.MethodDelete, graphCalls[1].Method)
}

func TestRun_MissingConfiguration(t *testing.T) {
	isolate(t)
	fc := newFakeCloud(t)

	code, _, stderr := run("--list-users", "--config", fc.writeConfig(t, map[string]any{
		"tenant_id":     nil,
		"client_secret": nil,
	}))
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr, "tenant_id, client_secret")
	assert.NotContains(t, stderr, "client_id")

	tokenCalls, _ := fc.calls()
	assert.Zero(t, tokenCalls)
}

func TestRun_AuthenticationFailure(t *testing.T) {
	isolate(t)
	fc := newFakeCloud(t)
	fc.tokenStatus = http.StatusUnauthorized

	code, stdout, stderr := run("--search", "Ann", "--config", fc.writeConfig(t, nil))
	assert.Equal(t, ExitFailure, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "invalid_client")

	tokenCalls, graphCalls := fc.calls()
	assert.Equal(t, 1, tokenCalls)
	assert.Empty(t, graphCalls)
}

func TestRun_IgnoredFlagsWarn(t *testing.T) {
	isolate(t)
	fc := newFakeCloud(t)

	code, _, stderr := run("--list-users", "--password", "x", "--config", fc.writeConfig(t, nil))
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stderr, fmt.Sprintf("--%s is only used with --%s", flagPassword, flagCreateUser))
	assert.False(t, strings.Contains(stderr, "Error"))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, exitCode(nil))
	assert.Equal(t, ExitUsage, exitCode(fmt.Errorf("wrapped: %w", usageErrorf("bad"))))
	assert.Equal(t, ExitFailure, exitCode(fmt.Errorf("boom")))
}
