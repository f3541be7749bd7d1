package scm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/domain"
)

// GitHubService reads pull requests from the GitHub API.
// Params: authenticated API client and logger.
// Returns: PullRequestService implementation for live lookups.
type GitHubService struct {
	client *github.Client
	logger *slog.Logger
}

// NewGitHubService builds a GitHub-backed pull request service.
// Params: token for API auth, optional enterprise base URL, and logger.
// Returns: initialized service or client construction error.
func NewGitHubService(ctx context.Context, token, baseURL string, logger *slog.Logger) (*GitHubService, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("github token is required")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))
	if strings.TrimSpace(baseURL) != "" {
		enterprise, err := client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("github base url: %w", err)
		}
		client = enterprise
	}
	return &GitHubService{client: client, logger: logger}, nil
}

// GetByID fetches one pull request from the API.
// Params: repository id ("owner/repo") and pull request number.
// Returns: normalized pull-request snapshot or lookup error.
func (s *GitHubService) GetByID(ctx context.Context, repoID string, prID int64) (domain.PullRequest, error) {
	owner, repo, err := splitRepoID(repoID)
	if err != nil {
		return domain.PullRequest{}, err
	}
	pr, resp, err := s.client.PullRequests.Get(ctx, owner, repo, int(prID))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return domain.PullRequest{}, fmt.Errorf("pull request %s#%d: %w", repoID, prID, ErrNotFound)
		}
		return domain.PullRequest{}, fmt.Errorf("get pull request %s#%d: %w", repoID, prID, err)
	}
	return normalizePullRequest(repoID, pr), nil
}

// CanMerge reports GitHub's conflict signal for one pull request.
// Params: repository id and pull request number.
// Returns: mergeability, or an error while GitHub is still computing it.
func (s *GitHubService) CanMerge(ctx context.Context, repoID string, prID int64) (bool, error) {
	owner, repo, err := splitRepoID(repoID)
	if err != nil {
		return false, err
	}
	pr, _, err := s.client.PullRequests.Get(ctx, owner, repo, int(prID))
	if err != nil {
		return false, fmt.Errorf("get pull request %s#%d: %w", repoID, prID, err)
	}
	if pr.Mergeable == nil {
		return false, fmt.Errorf("mergeability of %s#%d not yet computed", repoID, prID)
	}
	return pr.GetMergeable(), nil
}

// normalizePullRequest maps one API pull request onto the domain model.
// Params: repository id and API payload.
// Returns: normalized snapshot.
func normalizePullRequest(repoID string, pr *github.PullRequest) domain.PullRequest {
	out := domain.PullRequest{
		RepoID:      repoID,
		ID:          int64(pr.GetNumber()),
		Title:       pr.GetTitle(),
		Description: pr.GetBody(),
		State:       normalizeState(pr),
		Link:        pr.GetHTMLURL(),
		Mergeable:   pr.Mergeable,
		Author: domain.User{
			Name:        pr.GetUser().GetLogin(),
			DisplayName: pr.GetUser().GetName(),
			Email:       pr.GetUser().GetEmail(),
		},
	}
	if head := pr.GetHead(); head != nil {
		out.FromRef = domain.Ref{
			Branch:     head.GetRef(),
			CommitHash: head.GetSHA(),
			RepoSlug:   head.GetRepo().GetName(),
			ProjectKey: head.GetRepo().GetOwner().GetLogin(),
		}
	}
	if base := pr.GetBase(); base != nil {
		out.ToRef = domain.Ref{
			Branch:     base.GetRef(),
			CommitHash: base.GetSHA(),
			RepoSlug:   base.GetRepo().GetName(),
			ProjectKey: base.GetRepo().GetOwner().GetLogin(),
		}
	}
	return out
}

// normalizeState maps GitHub state plus merge flag onto domain states.
// Params: API payload with state and merged signals.
// Returns: OPEN, MERGED, or DECLINED.
func normalizeState(pr *github.PullRequest) domain.PullRequestState {
	if pr.GetState() == "open" {
		return domain.StateOpen
	}
	if pr.GetMerged() || pr.MergedAt != nil {
		return domain.StateMerged
	}
	return domain.StateDeclined
}

// splitRepoID splits "owner/repo" into its parts.
// Params: repository id string.
// Returns: owner, repository name, or a format error.
func splitRepoID(repoID string) (string, string, error) {
	parts := strings.SplitN(strings.TrimSpace(repoID), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository id %q is not owner/repo", repoID)
	}
	return parts[0], parts[1], nil
}
