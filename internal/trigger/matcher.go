package trigger

import (
	"context"

	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/domain"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/settings"
)

// Renderer substitutes variables into the filter string before matching.
type Renderer interface {
	// Render replaces known placeholders in template.
	// Params: template text.
	// Returns: rendered text.
	Render(template string) string
}

// MergeCheck reports the pull request's current mergeability. Invoked
// lazily, only when the notification's condition requires it.
type MergeCheck func(ctx context.Context) (bool, error)

// ShouldFire decides whether one notification fires for one event.
// Predicates evaluate in order and short-circuit on the first failure:
// trigger membership, ignore states, mergeability condition, filter match.
// Params: request-scoped context, notification under evaluation, action
// tag, pull-request snapshot, lazy merge check, and filter renderer.
// Returns: true when every configured condition passes. A merge check
// failure fails the mergeability condition rather than erroring out.
func ShouldFire(ctx context.Context, n settings.Notification, action domain.Action, pr domain.PullRequest, canMerge MergeCheck, renderer Renderer) bool {
	if !n.TriggersOn(action) {
		return false
	}
	if n.IgnoresState(pr.State) {
		return false
	}
	if !mergeConditionHolds(ctx, n.TriggerIfMerge, canMerge) {
		return false
	}
	if n.HasFilter() {
		return n.FilterMatches(renderer.Render(n.FilterString))
	}
	return true
}

// mergeConditionHolds evaluates the mergeability gate.
// Params: request-scoped context, configured condition, lazy merge check.
// Returns: true when the condition passes; ALWAYS never invokes the check.
func mergeConditionHolds(ctx context.Context, condition settings.TriggerIfMerge, canMerge MergeCheck) bool {
	if condition == settings.TriggerAlways {
		return true
	}
	if canMerge == nil {
		return false
	}
	mergeable, err := canMerge(ctx)
	if err != nil {
		return false
	}
	switch condition {
	case settings.TriggerOnlyIfCanMerge:
		return mergeable
	case settings.TriggerOnlyIfConflicting:
		return !mergeable
	default:
		return false
	}
}
