package buttons

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/domain"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/listener"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/metrics"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/scm"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/settings"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/variables"
)

// ErrNotAllowed rejects a press by a user outside the button's allow-list.
var ErrNotAllowed = errors.New("user is not allowed to use this button")

// ErrButtonNotFound rejects a press for an unknown button id.
var ErrButtonNotFound = errors.New("button not found")

// Service lists visible buttons and handles presses.
// Params: settings store, pull-request service, permission check, and
// the evaluation listener that performs matching and dispatch.
// Returns: facade consumed by the HTTP surface.
type Service struct {
	store    *settings.Store
	prs      scm.PullRequestService
	check    settings.UserCheck
	listener *listener.Listener
	logger   *slog.Logger
}

// NewService wires the button facade.
// Params: collaborators shared with the evaluation listener.
// Returns: ready service.
func NewService(store *settings.Store, prs scm.PullRequestService, check settings.UserCheck, l *listener.Listener, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		prs:      prs,
		check:    check,
		listener: l,
		logger:   logger,
	}
}

// GetButtons lists buttons visible to user on one pull request.
// A button is visible when the permission check allows it and at least
// one notification would fire for its press.
// Params: request-scoped context, requesting user, repository id, and
// pull request number.
// Returns: visible buttons sorted by title then id, or a lookup error.
func (s *Service) GetButtons(ctx context.Context, user, repoID string, prID int64) ([]settings.Button, error) {
	snapshot := s.store.Load()
	pr, err := s.prs.GetByID(ctx, repoID, prID)
	if err != nil {
		return nil, fmt.Errorf("load pull request: %w", err)
	}

	visible := make([]settings.Button, 0, len(snapshot.Buttons))
	for _, button := range snapshot.Buttons {
		if !s.check.IsAllowedUseButton(user, button) {
			continue
		}
		if s.anyNotificationMatches(ctx, snapshot, pr, user, button) {
			visible = append(visible, button)
		}
	}
	// Snapshot buttons are already ordered; filtering preserves it.
	return visible, nil
}

// HandlePressed fires every matching notification for one button press.
// Params: request-scoped context, pressing user, repository id, pull
// request number, and button id.
// Returns: permission or lookup error; dispatch outcomes never
// propagate, partial failures do not abort the loop.
func (s *Service) HandlePressed(ctx context.Context, user, repoID string, prID int64, buttonID uuid.UUID) error {
	snapshot := s.store.Load()
	button, ok := snapshot.Button(buttonID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrButtonNotFound, buttonID)
	}
	if !s.check.IsAllowedUseButton(user, button) {
		return ErrNotAllowed
	}
	pr, err := s.prs.GetByID(ctx, repoID, prID)
	if err != nil {
		return fmt.Errorf("load pull request: %w", err)
	}

	metrics.ButtonPresses.WithLabelValues(button.Title).Inc()
	if s.logger != nil {
		s.logger.Info("button pressed",
			"button", button.Title, "user", user, "repo", repoID, "pr", prID)
	}

	actor := domain.User{Name: user}
	s.listener.Evaluate(ctx, pr, domain.ActionButtonTrigger, actor, buttonVariables(button))
	return nil
}

// anyNotificationMatches reports whether any notification would fire
// for the synthetic button-trigger action with this button's context.
// Params: snapshot, pull request, requesting user, and candidate button.
// Returns: true when at least one notification matches.
func (s *Service) anyNotificationMatches(ctx context.Context, snapshot *settings.Snapshot, pr domain.PullRequest, user string, button settings.Button) bool {
	actor := domain.User{Name: user}
	for _, n := range snapshot.Notifications {
		if s.listener.WouldFire(ctx, n, pr, domain.ActionButtonTrigger, actor, buttonVariables(button)) {
			return true
		}
	}
	return false
}

// buttonVariables supplies the pressed button's title to the renderer.
// Params: pressed button.
// Returns: extra supplier map for the variable context.
func buttonVariables(button settings.Button) map[variables.Name]variables.Supplier {
	return map[variables.Name]variables.Supplier{
		variables.ButtonTriggerTitle: variables.Static(button.Title),
	}
}
