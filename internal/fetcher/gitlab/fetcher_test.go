package gitlab

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

func newTestFetcher() *Fetcher {
	f := NewFetcher(zap.NewNop())
	f.now = func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) }
	return f
}

func testSource(baseURL string) domain.DataSourceDescriptor {
	return domain.DataSourceDescriptor{
		ID:       "api-gitlab",
		Type:     domain.SourceTypeSCM,
		Provider: domain.ProviderGitLab,
		Scope:    domain.Scope{Project: "42", BaseURL: baseURL},
		Enabled:  true,
	}
}

func TestFetcher_FetchEvents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v4/projects/42/deployments", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "updated_at", r.URL.Query().Get("order_by"))
		fmt.Fprint(w, `[
			{"id": 1, "iid": 1, "sha": "abc123", "ref": "main", "status": "success", "created_at": "2024-03-09T10:00:00Z"},
			{"id": 2, "iid": 2, "sha": "def456", "ref": "main", "status": "failed", "created_at": "2024-03-08T10:00:00Z"}
		]`)
	})
	mux.HandleFunc("/api/v4/projects/42/merge_requests", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "merged", r.URL.Query().Get("state"))
		fmt.Fprint(w, `[{"id": 7, "iid": 3, "sha": "abc123", "state": "merged",
			"created_at": "2024-03-07T10:00:00Z", "merged_at": "2024-03-08T10:00:00Z"}]`)
	})
	mux.HandleFunc("/api/v4/projects/42/issues", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, IncidentLabel, r.URL.Query().Get("labels"))
		fmt.Fprint(w, `[{"id": 9, "iid": 4, "state": "closed",
			"created_at": "2024-03-02T00:00:00Z", "closed_at": "2024-03-02T02:00:00Z"}]`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	raw, err := newTestFetcher().FetchEvents(context.Background(), testSource(server.URL), 30)

	require.NoError(t, err)
	require.Len(t, raw.Deployments, 2)
	assert.Equal(t, "failed", raw.Deployments[1]["status"])
	require.Len(t, raw.Changes, 1)
	assert.Equal(t, "abc123", raw.Changes[0]["sha"])
	require.Len(t, raw.Incidents, 1)
	assert.NotNil(t, raw.Incidents[0]["closed_at"])
}

func TestFetcher_Pagination(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v4/projects/42/deployments", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			w.Header().Set("X-Next-Page", "2")
			fmt.Fprint(w, `[{"id": 1, "status": "success", "created_at": "2024-03-09T10:00:00Z"}]`)
			return
		}
		fmt.Fprint(w, `[{"id": 2, "status": "success", "created_at": "2024-03-08T10:00:00Z"}]`)
	})
	mux.HandleFunc("/api/v4/projects/42/merge_requests", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	})
	mux.HandleFunc("/api/v4/projects/42/issues", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	raw, err := newTestFetcher().FetchEvents(context.Background(), testSource(server.URL), 30)

	require.NoError(t, err)
	assert.Len(t, raw.Deployments, 2)
}

func TestFetcher_UnsupportedProvider(t *testing.T) {
	source := testSource("")
	source.Provider = domain.ProviderGitHub

	_, err := newTestFetcher().FetchEvents(context.Background(), source, 30)

	assert.True(t, errors.Is(err, fetcher.ErrUnsupportedSource))
}

func TestFetcher_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v4/user" || r.Header.Get("Private-Token") != "glpat-good" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"message": "401 Unauthorized"}`)
			return
		}
		fmt.Fprint(w, `{"id": 1, "username": "dora-bot"}`)
	}))
	defer server.Close()

	source := testSource(server.URL)
	source.Credentials.TokenEnv = "TEST_GITLAB_TOKEN"

	t.Setenv("TEST_GITLAB_TOKEN", "glpat-good")
	assert.NoError(t, newTestFetcher().Ping(context.Background(), source))

	t.Setenv("TEST_GITLAB_TOKEN", "glpat-bad")
	err := newTestFetcher().Ping(context.Background(), source)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "gitlab authentication failed")
}
