package scm

import (
	"context"
	"fmt"
	"sync"

	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/domain"
)

// SnapshotCache serves pull requests last seen on inbound events. Used
// when no live host client is configured, so button flows still resolve
// pull requests the engine has already observed.
type SnapshotCache struct {
	mu    sync.RWMutex
	byKey map[string]domain.PullRequest
}

// NewSnapshotCache creates an empty cache.
// Params: none.
// Returns: initialized cache.
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{byKey: make(map[string]domain.PullRequest)}
}

// Put stores the latest snapshot for one pull request.
// Params: snapshot from a validated inbound event.
// Returns: nothing.
func (c *SnapshotCache) Put(pr domain.PullRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byKey[cacheKey(pr.RepoID, pr.ID)] = pr
}

// GetByID returns the last observed snapshot.
// Params: repository id and pull request number.
// Returns: snapshot, or an error when the pull request was never seen.
func (c *SnapshotCache) GetByID(_ context.Context, repoID string, prID int64) (domain.PullRequest, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pr, ok := c.byKey[cacheKey(repoID, prID)]
	if !ok {
		return domain.PullRequest{}, fmt.Errorf("pull request %s#%d not observed yet: %w", repoID, prID, ErrNotFound)
	}
	return pr, nil
}

// CanMerge answers from the last observed conflict signal.
// Params: repository id and pull request number.
// Returns: mergeability, or an error when the event never reported one.
func (c *SnapshotCache) CanMerge(ctx context.Context, repoID string, prID int64) (bool, error) {
	pr, err := c.GetByID(ctx, repoID, prID)
	if err != nil {
		return false, err
	}
	if pr.Mergeable == nil {
		return false, fmt.Errorf("mergeability of %s#%d not reported by host", repoID, prID)
	}
	return *pr.Mergeable, nil
}

func cacheKey(repoID string, prID int64) string {
	return fmt.Sprintf("%s#%d", repoID, prID)
}

var (
	_ PullRequestService = (*SnapshotCache)(nil)
	_ PullRequestService = (*GitHubService)(nil)
)
