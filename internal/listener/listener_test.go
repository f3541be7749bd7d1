package listener

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/clock"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/dispatch"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/domain"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/history"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/settings"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/variables"
)

// capture records requests delivered to a test endpoint.
type capture struct {
	mu       sync.Mutex
	requests []capturedRequest
}

type capturedRequest struct {
	path   string
	body   string
	header http.Header
}

func (c *capture) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.requests = append(c.requests, capturedRequest{
			path:   r.URL.Path,
			body:   string(raw),
			header: r.Header.Clone(),
		})
		c.mu.Unlock()
		w.WriteHeader(status)
	}
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func (c *capture) last(t *testing.T) capturedRequest {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.requests)
	return c.requests[len(c.requests)-1]
}

func mustNotification(t *testing.T, opts settings.NotificationOpts) settings.Notification {
	t.Helper()
	n, err := settings.NewNotification(opts)
	require.NoError(t, err)
	return n
}

func newListener(t *testing.T, snapshot settings.Snapshot) (*Listener, *history.Store) {
	t.Helper()
	hist := history.NewStore(50)
	store := settings.NewStore(snapshot)
	return New(store, nil, dispatch.NewInvoker(5*time.Second, nil), hist, nil), hist
}

func sampleEvent() domain.Event {
	return domain.Event{
		Action: domain.ActionOpened,
		Actor:  domain.User{Name: "reviewer"},
		PullRequest: domain.PullRequest{
			RepoID:  "acme/widgets",
			ID:      12,
			Title:   "Improve cache",
			State:   domain.StateOpen,
			FromRef: domain.Ref{Branch: "feature/cache"},
			ToRef:   domain.Ref{Branch: "main"},
		},
	}
}

func TestEvaluateRendersURLHeadersAndBody(t *testing.T) {
	t.Parallel()

	var sink capture
	server := httptest.NewServer(sink.handler(http.StatusOK))
	defer server.Close()

	n := mustNotification(t, settings.NotificationOpts{
		Name:        "jenkins",
		URL:         server.URL + "/pr/${PULL_REQUEST_ID}",
		Method:      settings.MethodPost,
		PostContent: `{"branch":"${PULL_REQUEST_FROM_BRANCH}"}`,
		Headers:     []settings.Header{{Name: "X-Actor", Value: "${PULL_REQUEST_USER_NAME}"}},
		Triggers:    []domain.Action{domain.ActionOpened},
	})
	l, hist := newListener(t, settings.Snapshot{Notifications: []settings.Notification{n}})

	l.OnPullRequestEvent(context.Background(), sampleEvent())

	require.Equal(t, 1, sink.count())
	got := sink.last(t)
	require.Equal(t, "/pr/12", got.path)
	require.Equal(t, `{"branch":"feature/cache"}`, got.body)
	require.Equal(t, "reviewer", got.header.Get("X-Actor"))

	records := hist.Recent(0)
	require.Len(t, records, 1)
	require.True(t, records[0].Success)
	require.Equal(t, "jenkins", records[0].Notification)
}

func TestEvaluateFailureDoesNotBlockSiblings(t *testing.T) {
	t.Parallel()

	var failing, healthy capture
	failingServer := httptest.NewServer(failing.handler(http.StatusInternalServerError))
	defer failingServer.Close()
	healthyServer := httptest.NewServer(healthy.handler(http.StatusOK))
	defer healthyServer.Close()

	first := mustNotification(t, settings.NotificationOpts{
		Name:     "first",
		URL:      failingServer.URL,
		Triggers: []domain.Action{domain.ActionOpened},
	})
	second := mustNotification(t, settings.NotificationOpts{
		Name:     "second",
		URL:      healthyServer.URL,
		Triggers: []domain.Action{domain.ActionOpened},
	})
	l, hist := newListener(t, settings.Snapshot{Notifications: []settings.Notification{first, second}})

	l.OnPullRequestEvent(context.Background(), sampleEvent())

	require.Equal(t, 1, failing.count())
	require.Equal(t, 1, healthy.count())

	records := hist.Recent(0)
	require.Len(t, records, 2)
	// Newest first: the healthy sibling dispatched after the failure.
	require.Equal(t, "second", records[0].Notification)
	require.True(t, records[0].Success)
	require.Equal(t, "first", records[1].Notification)
	require.False(t, records[1].Success)
}

func TestEvaluateSuppressedNotificationNeverDispatches(t *testing.T) {
	t.Parallel()

	var sink capture
	server := httptest.NewServer(sink.handler(http.StatusOK))
	defer server.Close()

	n := mustNotification(t, settings.NotificationOpts{
		Name:     "merged-only",
		URL:      server.URL,
		Triggers: []domain.Action{domain.ActionMerged},
	})
	l, hist := newListener(t, settings.Snapshot{Notifications: []settings.Notification{n}})

	l.OnPullRequestEvent(context.Background(), sampleEvent())

	require.Zero(t, sink.count())
	require.Empty(t, hist.Recent(0))
}

func TestEvaluateInjectionFailureStillDispatches(t *testing.T) {
	t.Parallel()

	injectionServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer injectionServer.Close()

	var sink capture
	server := httptest.NewServer(sink.handler(http.StatusOK))
	defer server.Close()

	n := mustNotification(t, settings.NotificationOpts{
		Name:               "with-injection",
		URL:                server.URL + "/deploy",
		Method:             settings.MethodPost,
		PostContent:        `{"token":"${INJECTION_URL_VALUE}"}`,
		Triggers:           []domain.Action{domain.ActionOpened},
		InjectionURL:       injectionServer.URL + "/token",
		InjectionURLRegexp: `"token":"([a-z0-9]+)"`,
	})
	l, hist := newListener(t, settings.Snapshot{Notifications: []settings.Notification{n}})

	l.OnPullRequestEvent(context.Background(), sampleEvent())

	require.Equal(t, 1, sink.count())
	require.Equal(t, `{"token":""}`, sink.last(t).body)
	require.Len(t, hist.Recent(0), 1)
	require.True(t, hist.Recent(0)[0].Success)
}

func TestEvaluateInjectionValueFlowsIntoRequest(t *testing.T) {
	t.Parallel()

	injectionServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"token":"abc123"}`))
	}))
	defer injectionServer.Close()

	var sink capture
	server := httptest.NewServer(sink.handler(http.StatusOK))
	defer server.Close()

	n := mustNotification(t, settings.NotificationOpts{
		Name:               "with-injection",
		URL:                server.URL + "/deploy",
		Method:             settings.MethodPost,
		PostContent:        `{"token":"${INJECTION_URL_VALUE}"}`,
		Triggers:           []domain.Action{domain.ActionOpened},
		InjectionURL:       injectionServer.URL + "/token",
		InjectionURLRegexp: `"token":"([a-z0-9]+)"`,
	})
	l, _ := newListener(t, settings.Snapshot{Notifications: []settings.Notification{n}})

	l.OnPullRequestEvent(context.Background(), sampleEvent())

	require.Equal(t, `{"token":"abc123"}`, sink.last(t).body)
}

func TestWouldFireCarriesButtonTitle(t *testing.T) {
	t.Parallel()

	n := mustNotification(t, settings.NotificationOpts{
		Name:         "deploy-hook",
		URL:          "https://hook.example.com/deploy",
		Triggers:     []domain.Action{domain.ActionButtonTrigger},
		FilterRegexp: "^Deploy",
		FilterString: "${BUTTON_TRIGGER_TITLE}",
	})
	l, _ := newListener(t, settings.Snapshot{Notifications: []settings.Notification{n}})

	event := sampleEvent()
	extra := map[variables.Name]variables.Supplier{
		variables.ButtonTriggerTitle: variables.Static("Deploy to staging"),
	}
	require.True(t, l.WouldFire(context.Background(), n, event.PullRequest, domain.ActionButtonTrigger, event.Actor, extra))

	other := map[variables.Name]variables.Supplier{
		variables.ButtonTriggerTitle: variables.Static("Roll back"),
	}
	require.False(t, l.WouldFire(context.Background(), n, event.PullRequest, domain.ActionButtonTrigger, event.Actor, other))
}

func TestReportStampsRecordsWithClock(t *testing.T) {
	t.Parallel()

	var sink capture
	server := httptest.NewServer(sink.handler(http.StatusOK))
	defer server.Close()

	n := mustNotification(t, settings.NotificationOpts{
		Name:     "jenkins",
		URL:      server.URL,
		Triggers: []domain.Action{domain.ActionOpened},
	})
	l, hist := newListener(t, settings.Snapshot{Notifications: []settings.Notification{n}})
	pinned := time.Date(2026, time.March, 14, 9, 26, 53, 0, time.UTC)
	l.clock = clock.Fixed(pinned)

	l.OnPullRequestEvent(context.Background(), sampleEvent())

	records := hist.Recent(1)
	require.Len(t, records, 1)
	require.Equal(t, pinned, records[0].At)
}
