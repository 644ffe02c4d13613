// Package gitlab fetches deployments, merged merge requests and incident
// issues from the GitLab REST API.
package gitlab

import (
	"context"
	"fmt"
	"strings"
	"time"

	gitlab "gitlab.com/gitlab-org/api/client-go"
	"go.uber.org/zap"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
	"github.com/BarkinBalci/dora-metrics-service/internal/fetcher"
	"github.com/BarkinBalci/dora-metrics-service/internal/series"
)

const (
	defaultBaseURL = "https://gitlab.com"
	perPage        = 100
	// IncidentLabel marks issues counted as incidents
	IncidentLabel = "incident"
)

// Fetcher implements fetcher.EventFetcher and fetcher.Pinger for GitLab
type Fetcher struct {
	now func() time.Time
	log *zap.Logger
}

// NewFetcher creates a new GitLab fetcher
func NewFetcher(log *zap.Logger) *Fetcher {
	return &Fetcher{
		now: time.Now,
		log: log,
	}
}

func (f *Fetcher) client(source domain.DataSourceDescriptor) (*gitlab.Client, error) {
	if source.Provider != domain.ProviderGitLab {
		return nil, fmt.Errorf("%w: %s is not a gitlab source", fetcher.ErrUnsupportedSource, source.ID)
	}

	baseURL := source.Scope.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	apiURL := strings.TrimSuffix(baseURL, "/") + "/api/v4"

	client, err := gitlab.NewClient(source.Credentials.Token(), gitlab.WithBaseURL(apiURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create gitlab client: %w", err)
	}
	return client, nil
}

// projectID returns the numeric ID or namespaced path of the project
func projectID(source domain.DataSourceDescriptor) string {
	if source.Scope.Project != "" {
		return source.Scope.Project
	}
	return source.Scope.Owner + "/" + source.Scope.Repo
}

// FetchEvents returns deployments, merged merge requests and incident
// issues updated since the window start
func (f *Fetcher) FetchEvents(ctx context.Context, source domain.DataSourceDescriptor, windowDays int) (*domain.RawEvents, error) {
	client, err := f.client(source)
	if err != nil {
		return nil, err
	}

	since := series.NewWindow(windowDays, f.now()).Start()
	pid := projectID(source)

	raw := &domain.RawEvents{}
	if err := f.fetchDeployments(ctx, client, pid, since, raw); err != nil {
		return nil, err
	}
	if err := f.fetchMergeRequests(ctx, client, pid, since, raw); err != nil {
		return nil, err
	}
	if err := f.fetchIncidents(ctx, client, pid, since, raw); err != nil {
		return nil, err
	}

	f.log.Debug("Fetched GitLab events",
		zap.String("source_id", source.ID),
		zap.String("project", pid),
		zap.Int("deployments", len(raw.Deployments)),
		zap.Int("changes", len(raw.Changes)),
		zap.Int("incidents", len(raw.Incidents)))

	return raw, nil
}

// Ping verifies the token by fetching the current user
func (f *Fetcher) Ping(ctx context.Context, source domain.DataSourceDescriptor) error {
	client, err := f.client(source)
	if err != nil {
		return err
	}
	if _, _, err := client.Users.CurrentUser(gitlab.WithContext(ctx)); err != nil {
		return fmt.Errorf("gitlab authentication failed: %w", err)
	}
	return nil
}

func (f *Fetcher) fetchDeployments(ctx context.Context, client *gitlab.Client, pid string, since time.Time, raw *domain.RawEvents) error {
	opts := &gitlab.ListProjectDeploymentsOptions{
		OrderBy:      gitlab.Ptr("updated_at"),
		Sort:         gitlab.Ptr("desc"),
		UpdatedAfter: gitlab.Ptr(since),
		ListOptions: gitlab.ListOptions{
			Page:    1,
			PerPage: perPage,
		},
	}

	for {
		deployments, resp, err := client.Deployments.ListProjectDeployments(pid, opts, gitlab.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("failed to list deployments for %s: %w", pid, err)
		}

		for _, d := range deployments {
			record, err := fetcher.ToRawEvent(d)
			if err != nil {
				return err
			}
			raw.Append(domain.DeploymentEvent, record)
		}

		if resp.NextPage == 0 {
			return nil
		}
		opts.Page = resp.NextPage
	}
}

func (f *Fetcher) fetchMergeRequests(ctx context.Context, client *gitlab.Client, pid string, since time.Time, raw *domain.RawEvents) error {
	opts := &gitlab.ListProjectMergeRequestsOptions{
		State:        gitlab.Ptr("merged"),
		UpdatedAfter: gitlab.Ptr(since),
		ListOptions: gitlab.ListOptions{
			Page:    1,
			PerPage: perPage,
		},
	}

	for {
		mergeRequests, resp, err := client.MergeRequests.ListProjectMergeRequests(pid, opts, gitlab.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("failed to list merge requests for %s: %w", pid, err)
		}

		for _, mr := range mergeRequests {
			record, err := fetcher.ToRawEvent(mr)
			if err != nil {
				return err
			}
			raw.Append(domain.ChangeEvent, record)
		}

		if resp.NextPage == 0 {
			return nil
		}
		opts.Page = resp.NextPage
	}
}

func (f *Fetcher) fetchIncidents(ctx context.Context, client *gitlab.Client, pid string, since time.Time, raw *domain.RawEvents) error {
	labels := gitlab.LabelOptions{IncidentLabel}
	opts := &gitlab.ListProjectIssuesOptions{
		State:        gitlab.Ptr("all"),
		Labels:       &labels,
		UpdatedAfter: gitlab.Ptr(since),
		ListOptions: gitlab.ListOptions{
			Page:    1,
			PerPage: perPage,
		},
	}

	for {
		issues, resp, err := client.Issues.ListProjectIssues(pid, opts, gitlab.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("failed to list incident issues for %s: %w", pid, err)
		}

		for _, issue := range issues {
			record, err := fetcher.ToRawEvent(issue)
			if err != nil {
				return err
			}
			raw.Append(domain.IncidentEvent, record)
		}

		if resp.NextPage == 0 {
			return nil
		}
		opts.Page = resp.NextPage
	}
}
