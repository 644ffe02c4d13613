package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
	"github.com/BarkinBalci/dora-metrics-service/internal/fetcher"
)

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestFetcher() *Fetcher {
	f := NewFetcher(zap.NewNop())
	f.now = func() time.Time { return fixedNow }
	return f
}

func testSource(baseURL string) domain.DataSourceDescriptor {
	return domain.DataSourceDescriptor{
		ID:       "web-github",
		Type:     domain.SourceTypeSCM,
		Provider: domain.ProviderGitHub,
		Scope:    domain.Scope{Owner: "acme", Repo: "web", BaseURL: baseURL},
		Enabled:  true,
	}
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/acme/web/deployments", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"id": 3, "sha": "aaa111", "ref": "main", "created_at": "2024-03-09T12:00:00Z"},
			{"id": 2, "sha": "abc123", "ref": "main", "created_at": "2024-03-09T10:00:00Z"},
			{"id": 1, "sha": "def456", "ref": "main", "created_at": "2024-03-01T10:00:00Z"},
			{"id": 0, "sha": "old", "ref": "main", "created_at": "2023-12-01T10:00:00Z"}
		]`)
	})
	mux.HandleFunc("/api/v3/repos/acme/web/deployments/3/statuses", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": 31, "state": "inactive"}, {"id": 30, "state": "success"}]`)
	})
	mux.HandleFunc("/api/v3/repos/acme/web/deployments/2/statuses", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": 20, "state": "failure"}]`)
	})
	mux.HandleFunc("/api/v3/repos/acme/web/deployments/1/statuses", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	})
	mux.HandleFunc("/api/v3/repos/acme/web/pulls", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "closed", r.URL.Query().Get("state"))
		fmt.Fprint(w, `[
			{"id": 11, "number": 5, "created_at": "2024-03-05T08:00:00Z", "updated_at": "2024-03-06T08:00:00Z",
			 "merged_at": "2024-03-06T08:00:00Z", "head": {"sha": "abc123"}},
			{"id": 12, "number": 6, "created_at": "2024-03-05T08:00:00Z", "updated_at": "2024-03-05T09:00:00Z",
			 "closed_at": "2024-03-05T09:00:00Z"},
			{"id": 13, "number": 2, "created_at": "2023-11-05T08:00:00Z", "updated_at": "2023-11-06T08:00:00Z",
			 "merged_at": "2023-11-06T08:00:00Z"}
		]`)
	})
	mux.HandleFunc("/api/v3/repos/acme/web/issues", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, IncidentLabel, r.URL.Query().Get("labels"))
		assert.Equal(t, "all", r.URL.Query().Get("state"))
		fmt.Fprint(w, `[
			{"id": 31, "number": 9, "created_at": "2024-03-02T00:00:00Z", "closed_at": "2024-03-02T04:00:00Z"},
			{"id": 32, "number": 10, "created_at": "2024-03-03T00:00:00Z", "pull_request": {"url": "x"}}
		]`)
	})
	mux.HandleFunc("/api/v3/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"message": "Bad credentials"}`)
			return
		}
		fmt.Fprint(w, `{"login": "dora-bot"}`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestFetcher_FetchEvents(t *testing.T) {
	server := newServer(t)

	raw, err := newTestFetcher().FetchEvents(context.Background(), testSource(server.URL), 30)

	require.NoError(t, err)

	require.Len(t, raw.Deployments, 3)
	// superseded deployments keep the outcome they had before going inactive
	assert.Equal(t, "success", raw.Deployments[0]["state"])
	assert.Equal(t, "failure", raw.Deployments[1]["state"])
	assert.Equal(t, "abc123", raw.Deployments[1]["sha"])
	assert.NotContains(t, raw.Deployments[2], "state")

	require.Len(t, raw.Changes, 1)
	assert.Equal(t, "abc123", raw.Changes[0]["head_sha"])
	assert.Equal(t, float64(11), raw.Changes[0]["id"])

	require.Len(t, raw.Incidents, 1)
	assert.Equal(t, float64(31), raw.Incidents[0]["id"])
}

func TestFetcher_UnsupportedProvider(t *testing.T) {
	source := testSource("")
	source.Provider = domain.ProviderGitLab

	_, err := newTestFetcher().FetchEvents(context.Background(), source, 30)

	assert.True(t, errors.Is(err, fetcher.ErrUnsupportedSource))
}

func TestFetcher_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	}))
	defer server.Close()

	_, err := newTestFetcher().FetchEvents(context.Background(), testSource(server.URL), 30)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list deployments")
}

func TestFetcher_Ping(t *testing.T) {
	server := newServer(t)

	t.Setenv("TEST_GITHUB_TOKEN", "good-token")
	source := testSource(server.URL)
	source.Credentials.TokenEnv = "TEST_GITHUB_TOKEN"
	assert.NoError(t, newTestFetcher().Ping(context.Background(), source))

	t.Setenv("TEST_GITHUB_TOKEN", "bad-token")
	err := newTestFetcher().Ping(context.Background(), source)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "github authentication failed")
}

func TestFetcher_DeploymentState_PagesPastInactive(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/acme/web/deployments/7/statuses", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"id": 70, "state": "success"}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<http://%s/api/v3/repos/acme/web/deployments/7/statuses?page=2>; rel="next"`, r.Host))
		fmt.Fprint(w, `[{"id": 72, "state": "inactive"}, {"id": 71, "state": "inactive"}]`)
	})
	mux.HandleFunc("/api/v3/repos/acme/web/deployments/8/statuses", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": 80, "state": "inactive"}]`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	f := newTestFetcher()
	client, err := f.client(testSource(server.URL))
	require.NoError(t, err)

	state, err := f.deploymentState(context.Background(), client, "acme", "web", 7)
	require.NoError(t, err)
	assert.Equal(t, "success", state)

	state, err = f.deploymentState(context.Background(), client, "acme", "web", 8)
	require.NoError(t, err)
	assert.Empty(t, state)
}
