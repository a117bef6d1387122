// Package github implements the githost backend against the GitHub API and
// git over HTTPS.
//
// Repository management goes through the REST API; chunk payloads move with
// plain git clone/commit/push. The two paths are throttled independently by
// the backend, which is why API errors are mapped onto distinct sentinel
// errors for the transfer engine's classifier.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v55/github"

	"github.com/gitdrive/gitdrive/pkg/githost"
)

// Config holds the account identity and credentials for one GitHub backend.
type Config struct {
	// Owner is the account that owns every drive repository.
	Owner string

	// Token is a personal access token with repo scope. Used for both the
	// REST API and git-over-HTTPS pushes.
	Token string

	// CommitterName and CommitterEmail sign the generated commits.
	CommitterName  string
	CommitterEmail string
}

// Host talks to GitHub. It implements githost.Host.
type Host struct {
	cfg    Config
	client *gh.Client
}

// New returns a Host for the given account.
func New(cfg Config) *Host {
	return &Host{
		cfg:    cfg,
		client: gh.NewClient(nil).WithAuthToken(cfg.Token),
	}
}

// CreateRepo provisions a new private repository under the configured owner.
func (h *Host) CreateRepo(ctx context.Context, name string) error {
	repo := &gh.Repository{
		Name:    gh.String(name),
		Private: gh.Bool(true),
	}

	// Empty org means "the authenticated user".
	_, resp, err := h.client.Repositories.Create(ctx, "", repo)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnprocessableEntity {
			return fmt.Errorf("create %s/%s: %w", h.cfg.Owner, name, githost.ErrRepoExists)
		}
		return fmt.Errorf("create %s/%s: %w", h.cfg.Owner, name, classifyAPIError(err))
	}
	return nil
}

// DeleteRepo removes a repository. Deleting an absent repository succeeds.
func (h *Host) DeleteRepo(ctx context.Context, name string) error {
	resp, err := h.client.Repositories.Delete(ctx, h.cfg.Owner, name)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("delete %s/%s: %w", h.cfg.Owner, name, classifyAPIError(err))
	}
	return nil
}

// RepoExists reports whether the named repository exists under the owner.
func (h *Host) RepoExists(ctx context.Context, name string) (bool, error) {
	_, resp, err := h.client.Repositories.Get(ctx, h.cfg.Owner, name)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("get %s/%s: %w", h.cfg.Owner, name, classifyAPIError(err))
	}
	return true, nil
}

// ListRepos returns the names of all repositories owned by the account.
func (h *Host) ListRepos(ctx context.Context) ([]string, error) {
	var names []string
	opts := &gh.RepositoryListOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	for {
		repos, resp, err := h.client.Repositories.List(ctx, "", opts)
		if err != nil {
			return nil, fmt.Errorf("list repositories: %w", classifyAPIError(err))
		}
		for _, r := range repos {
			names = append(names, r.GetName())
		}
		if resp.NextPage == 0 {
			return names, nil
		}
		opts.Page = resp.NextPage
	}
}

// classifyAPIError maps go-github error types onto the githost sentinels the
// transfer classifier understands. The primary quota (RateLimitError) and the
// secondary burst limit (AbuseRateLimitError) are kept distinct because they
// need different backoff shapes.
func classifyAPIError(err error) error {
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("%v: %w", err, githost.ErrRateLimited)
	}
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return fmt.Errorf("%v: %w", err, githost.ErrSecondaryLimited)
	}
	return err
}
