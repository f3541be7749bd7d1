package trigger

import (
	"context"
	"errors"
	"testing"

	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/domain"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/settings"
)

// staticRenderer returns a fixed string for every template.
type staticRenderer string

func (r staticRenderer) Render(string) string { return string(r) }

func buildNotification(t *testing.T, opts settings.NotificationOpts) settings.Notification {
	t.Helper()
	if opts.URL == "" {
		opts.URL = "https://hook.example.com/fire"
	}
	n, err := settings.NewNotification(opts)
	if err != nil {
		t.Fatalf("build notification: %v", err)
	}
	return n
}

func openPR() domain.PullRequest {
	return domain.PullRequest{RepoID: "proj/repo", ID: 1, State: domain.StateOpen}
}

func TestShouldFireRequiresTriggerMembership(t *testing.T) {
	t.Parallel()

	n := buildNotification(t, settings.NotificationOpts{
		Triggers: []domain.Action{domain.ActionMerged},
	})
	if ShouldFire(context.Background(), n, domain.ActionOpened, openPR(), nil, staticRenderer("")) {
		t.Fatalf("action outside trigger set must not fire")
	}
	if !ShouldFire(context.Background(), n, domain.ActionMerged, openPR(), nil, staticRenderer("")) {
		t.Fatalf("member action must fire")
	}
}

func TestShouldFireEmptyTriggerSetNeverFires(t *testing.T) {
	t.Parallel()

	n := buildNotification(t, settings.NotificationOpts{})
	for _, action := range []domain.Action{domain.ActionOpened, domain.ActionMerged, domain.ActionButtonTrigger} {
		if ShouldFire(context.Background(), n, action, openPR(), nil, staticRenderer("")) {
			t.Fatalf("%s: empty trigger set must not fire", action)
		}
	}
}

func TestShouldFireSuppressedByIgnoreState(t *testing.T) {
	t.Parallel()

	n := buildNotification(t, settings.NotificationOpts{
		Triggers:     []domain.Action{domain.ActionCommented},
		IgnoreStates: []domain.PullRequestState{domain.StateDeclined, domain.StateMerged},
	})
	pr := openPR()
	pr.State = domain.StateDeclined
	if ShouldFire(context.Background(), n, domain.ActionCommented, pr, nil, staticRenderer("")) {
		t.Fatalf("ignored state must suppress firing")
	}
	pr.State = domain.StateOpen
	if !ShouldFire(context.Background(), n, domain.ActionCommented, pr, nil, staticRenderer("")) {
		t.Fatalf("non-ignored state must fire")
	}
}

func TestShouldFireMergeCondition(t *testing.T) {
	t.Parallel()

	mergeable := func(context.Context) (bool, error) { return true, nil }
	conflicting := func(context.Context) (bool, error) { return false, nil }
	failing := func(context.Context) (bool, error) { return false, errors.New("host unavailable") }

	cases := []struct {
		name      string
		condition settings.TriggerIfMerge
		check     MergeCheck
		want      bool
	}{
		{"always ignores check", settings.TriggerAlways, failing, true},
		{"can-merge with mergeable pr", settings.TriggerOnlyIfCanMerge, mergeable, true},
		{"can-merge with conflicts", settings.TriggerOnlyIfCanMerge, conflicting, false},
		{"conflicting with conflicts", settings.TriggerOnlyIfConflicting, conflicting, true},
		{"conflicting with mergeable pr", settings.TriggerOnlyIfConflicting, mergeable, false},
		{"check failure suppresses", settings.TriggerOnlyIfCanMerge, failing, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			n := buildNotification(t, settings.NotificationOpts{
				Triggers:       []domain.Action{domain.ActionRescoped},
				TriggerIfMerge: tc.condition,
			})
			got := ShouldFire(context.Background(), n, domain.ActionRescoped, openPR(), tc.check, staticRenderer(""))
			if got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestShouldFireMergeCheckIsLazy(t *testing.T) {
	t.Parallel()

	invoked := false
	check := func(context.Context) (bool, error) {
		invoked = true
		return true, nil
	}
	n := buildNotification(t, settings.NotificationOpts{
		Triggers: []domain.Action{domain.ActionOpened},
	})
	ShouldFire(context.Background(), n, domain.ActionOpened, openPR(), check, staticRenderer(""))
	if invoked {
		t.Fatalf("ALWAYS must not invoke the merge check")
	}
}

func TestShouldFireFilterRegexp(t *testing.T) {
	t.Parallel()

	n := buildNotification(t, settings.NotificationOpts{
		Triggers:     []domain.Action{domain.ActionOpened},
		FilterRegexp: "^release/",
		FilterString: "${PULL_REQUEST_TO_BRANCH}",
	})
	if !ShouldFire(context.Background(), n, domain.ActionOpened, openPR(), nil, staticRenderer("release/2.4")) {
		t.Fatalf("matching rendered filter must fire")
	}
	if ShouldFire(context.Background(), n, domain.ActionOpened, openPR(), nil, staticRenderer("feature/x")) {
		t.Fatalf("non-matching rendered filter must not fire")
	}
}
