package listener

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/clock"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/dispatch"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/domain"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/history"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/metrics"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/render"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/scm"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/settings"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/trigger"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/variables"
)

// Listener evaluates configured notifications against events and
// dispatches the ones that fire. Notifications run sequentially in
// configuration order; one failure never stops the siblings.
type Listener struct {
	store   *settings.Store
	prs     scm.PullRequestService
	invoker *dispatch.Invoker
	history *history.Store
	logger  *slog.Logger
	clock   clock.Clock
}

// New wires the evaluation listener.
// Params: settings store, pull-request service (may be nil), invoker,
// dispatch history, and logger.
// Returns: ready listener.
func New(store *settings.Store, prs scm.PullRequestService, invoker *dispatch.Invoker, hist *history.Store, logger *slog.Logger) *Listener {
	return &Listener{
		store:   store,
		prs:     prs,
		invoker: invoker,
		history: hist,
		logger:  logger,
		clock:   clock.RealClock{},
	}
}

// OnPullRequestEvent handles one validated lifecycle event.
// Params: request-scoped context and validated event.
// Returns: nothing. Dispatch outcomes are logged and recorded; they
// never propagate to the event source.
func (l *Listener) OnPullRequestEvent(ctx context.Context, event domain.Event) {
	l.Evaluate(ctx, event.PullRequest, event.Action, event.Actor, nil)
}

// Evaluate runs every configured notification for one (pull request,
// action) pair.
// Params: request-scoped context, pull-request snapshot, action tag,
// acting user, and extra variable suppliers such as the pressed
// button's title.
// Returns: nothing.
func (l *Listener) Evaluate(ctx context.Context, pr domain.PullRequest, action domain.Action, actor domain.User, extra map[variables.Name]variables.Supplier) {
	snapshot := l.store.Load()
	for _, n := range snapshot.Notifications {
		l.evaluateOne(ctx, snapshot, n, pr, action, actor, extra)
	}
}

// WouldFire reports whether one notification matches without rendering
// the outbound request or dispatching. Used for button visibility.
// Params: request-scoped context, notification, pull-request snapshot,
// action tag, acting user, and extra variable suppliers.
// Returns: trigger matcher decision.
func (l *Listener) WouldFire(ctx context.Context, n settings.Notification, pr domain.PullRequest, action domain.Action, actor domain.User, extra map[variables.Name]variables.Supplier) bool {
	vars := variables.NewContext(pr, action, actor, extra)
	renderer := render.NewRenderer(vars)
	return trigger.ShouldFire(ctx, n, action, pr, l.mergeCheck(pr), renderer)
}

// evaluateOne matches, renders, and dispatches one notification.
// Params: snapshot and notification under evaluation plus the event
// coordinates shared with Evaluate.
// Returns: nothing.
func (l *Listener) evaluateOne(ctx context.Context, snapshot *settings.Snapshot, n settings.Notification, pr domain.PullRequest, action domain.Action, actor domain.User, extra map[variables.Name]variables.Supplier) {
	vars := variables.NewContext(pr, action, actor, extra)
	renderer := render.NewRenderer(vars)

	if !trigger.ShouldFire(ctx, n, action, pr, l.mergeCheck(pr), renderer) {
		metrics.NotificationsSuppressed.WithLabelValues(n.Name).Inc()
		return
	}

	acceptAny := snapshot.Global.AcceptAnyCertificate
	if n.HasInjection() {
		fetch := func(ctx context.Context, target string) (string, error) {
			return l.invoker.Fetch(ctx, target, n.Proxy, acceptAny)
		}
		renderer.ApplyInjection(ctx, n, fetch, vars)
	}

	request := dispatch.Request{
		Method:               n.Method,
		URL:                  renderer.Render(n.URL),
		Body:                 renderer.Render(n.PostContent),
		User:                 n.User,
		Password:             n.Password,
		Proxy:                n.Proxy,
		AcceptAnyCertificate: acceptAny,
	}
	for _, header := range n.Headers {
		request.Headers = append(request.Headers, settings.Header{
			Name:  header.Name,
			Value: renderer.Render(header.Value),
		})
	}

	outcome := l.invoker.Do(ctx, request)
	l.report(n, pr, action, request.URL, outcome)
}

// report records one dispatch outcome in metrics, history, and the log.
// Params: notification, event coordinates, rendered url, and outcome.
// Returns: nothing.
func (l *Listener) report(n settings.Notification, pr domain.PullRequest, action domain.Action, url string, outcome dispatch.Outcome) {
	result := "success"
	if !outcome.Success() {
		result = "failure"
	}
	metrics.NotificationsDispatched.WithLabelValues(n.Name, result).Inc()
	metrics.DispatchDuration.WithLabelValues(n.Name).Observe(outcome.Duration.Seconds())

	record := history.Record{
		Notification: n.Name,
		RepoID:       pr.RepoID,
		PullRequest:  pr.ID,
		Action:       action,
		URL:          url,
		Status:       outcome.Status,
		Success:      outcome.Success(),
		Duration:     outcome.Duration,
		At:           l.clock.Now(),
	}
	if outcome.Err != nil {
		record.Error = outcome.Err.Error()
	}
	if l.history != nil {
		l.history.Append(record)
	}

	if l.logger == nil {
		return
	}
	if outcome.Success() {
		l.logger.Info("notification dispatched",
			"notification", n.Name, "repo", pr.RepoID, "pr", pr.ID,
			"action", action, "status", outcome.Status, "duration", outcome.Duration)
		return
	}
	l.logger.Warn("notification dispatch failed",
		"notification", n.Name, "repo", pr.RepoID, "pr", pr.ID,
		"action", action, "error", outcome.Err.Error())
}

// mergeCheck builds the lazy mergeability probe for one pull request.
// Params: pull-request snapshot under evaluation.
// Returns: check preferring the event's own conflict signal over a
// host round trip.
func (l *Listener) mergeCheck(pr domain.PullRequest) trigger.MergeCheck {
	return func(ctx context.Context) (bool, error) {
		if pr.Mergeable != nil {
			return *pr.Mergeable, nil
		}
		if l.prs == nil {
			return false, errors.New("no pull request service configured")
		}
		return l.prs.CanMerge(ctx, pr.RepoID, pr.ID)
	}
}
