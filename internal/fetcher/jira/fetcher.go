// Package jira fetches deployment, change and incident issues from the Jira
// Cloud REST API using JQL searches.
package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
	"github.com/BarkinBalci/dora-metrics-service/internal/fetcher"
	"github.com/BarkinBalci/dora-metrics-service/internal/normalizer"
	"github.com/BarkinBalci/dora-metrics-service/internal/series"
)

const (
	pageSize = 100
	// maxIssues bounds a single search so a broad JQL cannot page forever
	maxIssues = 5000
)

// JQL fragments selecting each event kind
const (
	DeploymentJQL = `(labels in ("deployment", "release") OR issuetype = "Deployment")`
	ChangeJQL     = `issuetype in ("Story", "Task", "Feature", "Improvement", "Change")`
	IncidentJQL   = `(issuetype in ("Incident", "Outage", "Problem") OR labels = "incident")`
)

var searchFields = []string{
	"summary", "created", "resolutiondate", "status", "resolution",
	"issuetype", "priority", "project", "labels", "components",
}

type searchRequest struct {
	JQL        string   `json:"jql"`
	StartAt    int      `json:"startAt"`
	MaxResults int      `json:"maxResults"`
	Fields     []string `json:"fields"`
}

type searchResponse struct {
	StartAt    int               `json:"startAt"`
	MaxResults int               `json:"maxResults"`
	Total      int               `json:"total"`
	Issues     []domain.RawEvent `json:"issues"`
}

// Fetcher implements fetcher.EventFetcher and fetcher.Pinger for Jira
type Fetcher struct {
	http *retryablehttp.Client
	now  func() time.Time
	log  *zap.Logger
}

// NewFetcher creates a new Jira fetcher with retrying HTTP transport
func NewFetcher(log *zap.Logger) *Fetcher {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = &leveledLogger{log: log.Sugar()}

	return &Fetcher{
		http: client,
		now:  time.Now,
		log:  log,
	}
}

func (f *Fetcher) apiURL(source domain.DataSourceDescriptor) (string, error) {
	if source.Provider != domain.ProviderJira {
		return "", fmt.Errorf("%w: %s is not a jira source", fetcher.ErrUnsupportedSource, source.ID)
	}
	if source.Scope.BaseURL == "" {
		return "", fmt.Errorf("jira source %s has no base_url", source.ID)
	}
	return strings.TrimSuffix(source.Scope.BaseURL, "/") + "/rest/api/3", nil
}

// FetchEvents runs one JQL search per event kind over issues created since
// the window start
func (f *Fetcher) FetchEvents(ctx context.Context, source domain.DataSourceDescriptor, windowDays int) (*domain.RawEvents, error) {
	apiURL, err := f.apiURL(source)
	if err != nil {
		return nil, err
	}

	since := series.NewWindow(windowDays, f.now()).Start()

	raw := &domain.RawEvents{}
	for _, q := range []struct {
		kind domain.EventKind
		jql  string
	}{
		{domain.DeploymentEvent, DeploymentJQL},
		{domain.ChangeEvent, ChangeJQL},
		{domain.IncidentEvent, IncidentJQL},
	} {
		issues, err := f.search(ctx, apiURL, source, buildJQL(source.Scope.Project, q.jql, since))
		if err != nil {
			return nil, fmt.Errorf("failed to search %s issues: %w", q.kind, err)
		}
		for _, issue := range issues {
			annotateOutcome(issue)
			raw.Append(q.kind, issue)
		}
	}

	f.log.Debug("Fetched Jira events",
		zap.String("source_id", source.ID),
		zap.String("project", source.Scope.Project),
		zap.Int("deployments", len(raw.Deployments)),
		zap.Int("changes", len(raw.Changes)),
		zap.Int("incidents", len(raw.Incidents)))

	return raw, nil
}

// Ping verifies the credentials against the current-user endpoint
func (f *Fetcher) Ping(ctx context.Context, source domain.DataSourceDescriptor) error {
	apiURL, err := f.apiURL(source)
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/myself", nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	f.authorize(req, source)

	resp, err := f.http.Do(req)
	if err != nil {
		return fmt.Errorf("jira request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jira authentication failed: status %d", resp.StatusCode)
	}
	return nil
}

func (f *Fetcher) search(ctx context.Context, apiURL string, source domain.DataSourceDescriptor, jql string) ([]domain.RawEvent, error) {
	var issues []domain.RawEvent

	for startAt := 0; startAt < maxIssues; {
		body, err := json.Marshal(searchRequest{
			JQL:        jql,
			StartAt:    startAt,
			MaxResults: pageSize,
			Fields:     searchFields,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal search: %w", err)
		}

		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/search", body)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		f.authorize(req, source)
		req.Header.Set("Content-Type", "application/json")

		page, err := f.do(req)
		if err != nil {
			return nil, err
		}

		issues = append(issues, page.Issues...)
		startAt += len(page.Issues)
		if len(page.Issues) == 0 || startAt >= page.Total {
			break
		}
	}

	return issues, nil
}

func (f *Fetcher) do(req *retryablehttp.Request) (*searchResponse, error) {
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jira request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("jira search returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var page searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return &page, nil
}

func (f *Fetcher) authorize(req *retryablehttp.Request, source domain.DataSourceDescriptor) {
	req.Header.Set("Accept", "application/json")
	if source.Credentials.Username != "" {
		req.SetBasicAuth(source.Credentials.Username, source.Credentials.Password())
	} else if token := source.Credentials.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// buildJQL scopes a kind filter to the project and window
func buildJQL(project, filter string, since time.Time) string {
	jql := fmt.Sprintf(`%s AND created >= "%s"`, filter, since.UTC().Format(domain.DateLayout))
	if project != "" {
		jql = fmt.Sprintf(`project = "%s" AND %s`, project, jql)
	}
	return jql + " ORDER BY created ASC"
}

// annotateOutcome sets a top-level result from the issue resolution: an
// unresolved issue stays unknown, a resolution naming a failure is a
// failure, any other resolution is a success
func annotateOutcome(issue domain.RawEvent) {
	fields, ok := issue["fields"].(map[string]interface{})
	if !ok {
		return
	}
	resolution, ok := fields["resolution"].(map[string]interface{})
	if !ok {
		return
	}
	name, _ := resolution["name"].(string)
	if normalizer.ParseOutcome(name) == domain.OutcomeFailure {
		issue["result"] = string(domain.OutcomeFailure)
		return
	}
	issue["result"] = string(domain.OutcomeSuccess)
}

// leveledLogger routes retryablehttp logging to zap
type leveledLogger struct {
	log *zap.SugaredLogger
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, keysAndValues...)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warnw(msg, keysAndValues...)
}
