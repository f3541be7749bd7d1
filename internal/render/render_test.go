package render

import (
	"context"
	"errors"
	"testing"

	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/domain"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/settings"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/variables"
)

func newTestContext() *variables.Context {
	pr := domain.PullRequest{
		ID:      15,
		Title:   "Fix <login> & logout",
		State:   domain.StateOpen,
		FromRef: domain.Ref{Branch: "feature/x"},
		ToRef:   domain.Ref{Branch: "main"},
	}
	return variables.NewContext(pr, domain.ActionOpened, domain.User{Name: "reviewer"}, nil)
}

func TestRenderSubstitutesKnownVariables(t *testing.T) {
	t.Parallel()

	r := NewRenderer(newTestContext())
	got := r.Render("pr ${PULL_REQUEST_ID} (${PULL_REQUEST_ACTION}) -> ${PULL_REQUEST_TO_BRANCH}")
	want := "pr 15 (OPENED) -> main"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderLeavesUnknownPlaceholdersVerbatim(t *testing.T) {
	t.Parallel()

	r := NewRenderer(newTestContext())
	got := r.Render("id=${PULL_REQUEST_ID} raw=${NOT_A_VARIABLE} lower=${not_upper}")
	want := "id=15 raw=${NOT_A_VARIABLE} lower=${not_upper}"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderWithoutPlaceholdersIsIdentity(t *testing.T) {
	t.Parallel()

	r := NewRenderer(newTestContext())
	const plain = `{"status": "ok", "cost": "$100"}`
	if got := r.Render(plain); got != plain {
		t.Fatalf("got %q, want %q", got, plain)
	}
}

func injectionNotification(t *testing.T) settings.Notification {
	t.Helper()
	n, err := settings.NewNotification(settings.NotificationOpts{
		URL:                "https://ci.example.com/build",
		Triggers:           []domain.Action{domain.ActionOpened},
		InjectionURL:       "https://vault.example.com/pr/${PULL_REQUEST_ID}",
		InjectionURLRegexp: `"token":"([a-z0-9]+)"`,
	})
	if err != nil {
		t.Fatalf("build notification: %v", err)
	}
	return n
}

func TestApplyInjectionExtractsFirstGroup(t *testing.T) {
	t.Parallel()

	vars := newTestContext()
	r := NewRenderer(vars)

	var fetchedURL string
	fetch := func(_ context.Context, url string) (string, error) {
		fetchedURL = url
		return `{"token":"abc123"}`, nil
	}
	r.ApplyInjection(context.Background(), injectionNotification(t), fetch, vars)

	if fetchedURL != "https://vault.example.com/pr/15" {
		t.Fatalf("injection url not rendered: %q", fetchedURL)
	}
	if got := r.Render("${INJECTION_URL_VALUE}"); got != "abc123" {
		t.Fatalf("got %q, want abc123", got)
	}
}

func TestApplyInjectionFetchFailureResolvesEmpty(t *testing.T) {
	t.Parallel()

	vars := newTestContext()
	r := NewRenderer(vars)

	fetch := func(_ context.Context, _ string) (string, error) {
		return "", errors.New("upstream returned 500")
	}
	r.ApplyInjection(context.Background(), injectionNotification(t), fetch, vars)

	if got := r.Render("value=${INJECTION_URL_VALUE}"); got != "value=" {
		t.Fatalf("got %q, want empty substitution", got)
	}
}

func TestApplyInjectionNoMatchResolvesEmpty(t *testing.T) {
	t.Parallel()

	vars := newTestContext()
	r := NewRenderer(vars)

	fetch := func(_ context.Context, _ string) (string, error) {
		return `{"ttl":60}`, nil
	}
	r.ApplyInjection(context.Background(), injectionNotification(t), fetch, vars)

	if got := r.Render("value=${INJECTION_URL_VALUE}"); got != "value=" {
		t.Fatalf("got %q, want empty substitution", got)
	}
}
