// Package github fetches deployments, merged pull requests and incident
// issues from the GitHub REST API.
package github

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v62/github"
	"go.uber.org/zap"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
	"github.com/BarkinBalci/dora-metrics-service/internal/fetcher"
	"github.com/BarkinBalci/dora-metrics-service/internal/series"
)

const (
	perPage = 100
	// maxRepos caps the repositories scanned when a source is scoped to an owner
	maxRepos = 10
	// IncidentLabel marks issues counted as incidents
	IncidentLabel = "incident"
)

// Fetcher implements fetcher.EventFetcher and fetcher.Pinger for GitHub
type Fetcher struct {
	now func() time.Time
	log *zap.Logger
}

// NewFetcher creates a new GitHub fetcher
func NewFetcher(log *zap.Logger) *Fetcher {
	return &Fetcher{
		now: time.Now,
		log: log,
	}
}

func (f *Fetcher) client(source domain.DataSourceDescriptor) (*github.Client, error) {
	if source.Provider != domain.ProviderGitHub {
		return nil, fmt.Errorf("%w: %s is not a github source", fetcher.ErrUnsupportedSource, source.ID)
	}

	client := github.NewClient(nil)
	if token := source.Credentials.Token(); token != "" {
		client = client.WithAuthToken(token)
	}
	if source.Scope.BaseURL != "" {
		return client.WithEnterpriseURLs(source.Scope.BaseURL, source.Scope.BaseURL)
	}
	return client, nil
}

// FetchEvents returns the window's deployments with their current outcome,
// merged pull requests and issues labelled as incidents
func (f *Fetcher) FetchEvents(ctx context.Context, source domain.DataSourceDescriptor, windowDays int) (*domain.RawEvents, error) {
	client, err := f.client(source)
	if err != nil {
		return nil, err
	}

	since := series.NewWindow(windowDays, f.now()).Start()

	repos, err := f.repositories(ctx, client, source)
	if err != nil {
		return nil, err
	}

	raw := &domain.RawEvents{}
	for _, repo := range repos {
		if err := f.fetchDeployments(ctx, client, source.Scope.Owner, repo, since, raw); err != nil {
			return nil, err
		}
		if err := f.fetchPullRequests(ctx, client, source.Scope.Owner, repo, since, raw); err != nil {
			return nil, err
		}
		if err := f.fetchIncidents(ctx, client, source.Scope.Owner, repo, since, raw); err != nil {
			return nil, err
		}
	}

	f.log.Debug("Fetched GitHub events",
		zap.String("source_id", source.ID),
		zap.Int("repositories", len(repos)),
		zap.Int("deployments", len(raw.Deployments)),
		zap.Int("changes", len(raw.Changes)),
		zap.Int("incidents", len(raw.Incidents)))

	return raw, nil
}

// Ping verifies the token by fetching the authenticated user
func (f *Fetcher) Ping(ctx context.Context, source domain.DataSourceDescriptor) error {
	client, err := f.client(source)
	if err != nil {
		return err
	}
	if _, _, err := client.Users.Get(ctx, ""); err != nil {
		return fmt.Errorf("github authentication failed: %w", err)
	}
	return nil
}

func (f *Fetcher) repositories(ctx context.Context, client *github.Client, source domain.DataSourceDescriptor) ([]string, error) {
	if source.Scope.Repo != "" {
		return []string{source.Scope.Repo}, nil
	}

	repos, _, err := client.Repositories.ListByOrg(ctx, source.Scope.Owner, &github.RepositoryListByOrgOptions{
		Sort:        "pushed",
		ListOptions: github.ListOptions{PerPage: maxRepos},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories for %s: %w", source.Scope.Owner, err)
	}

	names := make([]string, 0, len(repos))
	for _, r := range repos {
		names = append(names, r.GetName())
	}
	return names, nil
}

// fetchDeployments pages newest first and stops at the window start
func (f *Fetcher) fetchDeployments(ctx context.Context, client *github.Client, owner, repo string, since time.Time, raw *domain.RawEvents) error {
	opts := &github.DeploymentsListOptions{ListOptions: github.ListOptions{PerPage: perPage}}

	for {
		deployments, resp, err := client.Repositories.ListDeployments(ctx, owner, repo, opts)
		if err != nil {
			return fmt.Errorf("failed to list deployments for %s/%s: %w", owner, repo, err)
		}

		for _, d := range deployments {
			if d.GetCreatedAt().Time.Before(since) {
				return nil
			}

			record, err := fetcher.ToRawEvent(d)
			if err != nil {
				return err
			}

			state, err := f.deploymentState(ctx, client, owner, repo, d.GetID())
			if err != nil {
				return err
			}
			if state != "" {
				record["state"] = state
			}

			raw.Append(domain.DeploymentEvent, record)
		}

		if resp.NextPage == 0 {
			return nil
		}
		opts.Page = resp.NextPage
	}
}

// deploymentState returns the newest status state other than inactive.
// GitHub marks a successful deployment inactive once a newer one succeeds,
// which says nothing about how the deployment itself went.
func (f *Fetcher) deploymentState(ctx context.Context, client *github.Client, owner, repo string, id int64) (string, error) {
	opts := &github.ListOptions{PerPage: perPage}

	for {
		// statuses are returned newest first
		statuses, resp, err := client.Repositories.ListDeploymentStatuses(ctx, owner, repo, id, opts)
		if err != nil {
			return "", fmt.Errorf("failed to list statuses for deployment %d: %w", id, err)
		}

		for _, status := range statuses {
			if state := status.GetState(); state != "inactive" {
				return state, nil
			}
		}

		if resp.NextPage == 0 {
			return "", nil
		}
		opts.Page = resp.NextPage
	}
}

// fetchPullRequests keeps merged pull requests, paging by most recently updated
func (f *Fetcher) fetchPullRequests(ctx context.Context, client *github.Client, owner, repo string, since time.Time, raw *domain.RawEvents) error {
	opts := &github.PullRequestListOptions{
		State:       "closed",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: perPage},
	}

	for {
		pulls, resp, err := client.PullRequests.List(ctx, owner, repo, opts)
		if err != nil {
			return fmt.Errorf("failed to list pull requests for %s/%s: %w", owner, repo, err)
		}

		for _, pr := range pulls {
			if pr.GetUpdatedAt().Time.Before(since) {
				return nil
			}
			if pr.MergedAt == nil {
				continue
			}

			record, err := fetcher.ToRawEvent(pr)
			if err != nil {
				return err
			}
			if sha := pr.GetHead().GetSHA(); sha != "" {
				record["head_sha"] = sha
			}
			raw.Append(domain.ChangeEvent, record)
		}

		if resp.NextPage == 0 {
			return nil
		}
		opts.Page = resp.NextPage
	}
}

func (f *Fetcher) fetchIncidents(ctx context.Context, client *github.Client, owner, repo string, since time.Time, raw *domain.RawEvents) error {
	opts := &github.IssueListByRepoOptions{
		State:       "all",
		Labels:      []string{IncidentLabel},
		Since:       since,
		ListOptions: github.ListOptions{PerPage: perPage},
	}

	for {
		issues, resp, err := client.Issues.ListByRepo(ctx, owner, repo, opts)
		if err != nil {
			return fmt.Errorf("failed to list incident issues for %s/%s: %w", owner, repo, err)
		}

		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
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
