package scm

import (
	"context"
	"errors"

	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/domain"
)

// ErrNotFound reports a pull request the backend does not know. Lookup
// misses carry it so callers can tell them apart from transport failures.
var ErrNotFound = errors.New("pull request not found")

// PullRequestService reads pull requests from the hosting platform.
// Implementations: live GitHub client or the event-fed snapshot cache.
type PullRequestService interface {
	// GetByID fetches one pull request.
	// Params: repository id ("owner/repo") and pull request number.
	// Returns: pull-request snapshot or lookup error.
	GetByID(ctx context.Context, repoID string, prID int64) (domain.PullRequest, error)

	// CanMerge reports whether the pull request has no conflicts.
	// Params: repository id and pull request number.
	// Returns: mergeability, or an error when the host cannot answer.
	CanMerge(ctx context.Context, repoID string, prID int64) (bool, error)
}
