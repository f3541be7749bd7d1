package variables

import (
	"strconv"

	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/domain"
)

// Name identifies one template variable.
// Params: constants for the closed variable vocabulary.
// Returns: key usage across context construction and rendering.
type Name string

const (
	PullRequestID          Name = "PULL_REQUEST_ID"
	PullRequestVersion     Name = "PULL_REQUEST_VERSION"
	PullRequestTitle       Name = "PULL_REQUEST_TITLE"
	PullRequestDescription Name = "PULL_REQUEST_DESCRIPTION"
	PullRequestState       Name = "PULL_REQUEST_STATE"
	PullRequestAction      Name = "PULL_REQUEST_ACTION"
	PullRequestCommentText Name = "PULL_REQUEST_COMMENT_TEXT"
	PullRequestURL         Name = "PULL_REQUEST_URL"

	PullRequestAuthorName        Name = "PULL_REQUEST_AUTHOR_NAME"
	PullRequestAuthorDisplayName Name = "PULL_REQUEST_AUTHOR_DISPLAY_NAME"
	PullRequestAuthorEmail       Name = "PULL_REQUEST_AUTHOR_EMAIL"

	PullRequestUserName        Name = "PULL_REQUEST_USER_NAME"
	PullRequestUserDisplayName Name = "PULL_REQUEST_USER_DISPLAY_NAME"
	PullRequestUserEmail       Name = "PULL_REQUEST_USER_EMAIL"

	PullRequestFromBranch     Name = "PULL_REQUEST_FROM_BRANCH"
	PullRequestFromHash       Name = "PULL_REQUEST_FROM_HASH"
	PullRequestFromRepoSlug   Name = "PULL_REQUEST_FROM_REPO_SLUG"
	PullRequestFromProjectKey Name = "PULL_REQUEST_FROM_REPO_PROJECT_KEY"

	PullRequestToBranch     Name = "PULL_REQUEST_TO_BRANCH"
	PullRequestToHash       Name = "PULL_REQUEST_TO_HASH"
	PullRequestToRepoSlug   Name = "PULL_REQUEST_TO_REPO_SLUG"
	PullRequestToProjectKey Name = "PULL_REQUEST_TO_REPO_PROJECT_KEY"

	// ButtonTriggerTitle carries the pressed button's title during
	// button-trigger evaluations. Absent for lifecycle events.
	ButtonTriggerTitle Name = "BUTTON_TRIGGER_TITLE"

	// InjectionURLValue carries the value extracted by the injection
	// fetch step. Absent until the fetch runs.
	InjectionURLValue Name = "INJECTION_URL_VALUE"
)

// Supplier produces one variable value on demand.
// Params: none; closes over whatever data or host call it needs.
// Returns: value string or the failure that prevented resolution.
type Supplier func() (string, error)

// Static wraps a known value in a Supplier.
// Params: resolved value.
// Returns: supplier that always yields value.
func Static(value string) Supplier {
	return func() (string, error) { return value, nil }
}

// Context resolves variables for one evaluation, invoking each supplier
// at most once. Not safe for concurrent use; evaluations are sequential.
type Context struct {
	suppliers map[Name]Supplier
	resolved  map[Name]string
}

// NewContext builds a resolver for one (event, notification) evaluation.
// Params: pull-request snapshot, action tag, actor, and extra suppliers
// such as the pressed button's title. Extras override built-ins.
// Returns: ready context; suppliers run only when a value is requested.
func NewContext(pr domain.PullRequest, action domain.Action, actor domain.User, extra map[Name]Supplier) *Context {
	suppliers := map[Name]Supplier{
		PullRequestID:          Static(strconv.FormatInt(pr.ID, 10)),
		PullRequestVersion:     Static(strconv.FormatInt(pr.Version, 10)),
		PullRequestTitle:       Static(pr.Title),
		PullRequestDescription: Static(pr.Description),
		PullRequestState:       Static(string(pr.State)),
		PullRequestAction:      Static(string(action)),
		PullRequestCommentText: Static(pr.CommentText),
		PullRequestURL:         Static(pr.Link),

		PullRequestAuthorName:        Static(pr.Author.Name),
		PullRequestAuthorDisplayName: Static(pr.Author.DisplayName),
		PullRequestAuthorEmail:       Static(pr.Author.Email),

		PullRequestUserName:        Static(actor.Name),
		PullRequestUserDisplayName: Static(actor.DisplayName),
		PullRequestUserEmail:       Static(actor.Email),

		PullRequestFromBranch:     Static(pr.FromRef.Branch),
		PullRequestFromHash:       Static(pr.FromRef.CommitHash),
		PullRequestFromRepoSlug:   Static(pr.FromRef.RepoSlug),
		PullRequestFromProjectKey: Static(pr.FromRef.ProjectKey),

		PullRequestToBranch:     Static(pr.ToRef.Branch),
		PullRequestToHash:       Static(pr.ToRef.CommitHash),
		PullRequestToRepoSlug:   Static(pr.ToRef.RepoSlug),
		PullRequestToProjectKey: Static(pr.ToRef.ProjectKey),
	}
	for name, supplier := range extra {
		suppliers[name] = supplier
	}
	return &Context{
		suppliers: suppliers,
		resolved:  make(map[Name]string),
	}
}

// Value resolves one variable, memoizing the result.
// Params: variable name.
// Returns: resolved value and whether the name is known. A supplier
// failure resolves to the empty string rather than aborting the render.
func (c *Context) Value(name Name) (string, bool) {
	if value, ok := c.resolved[name]; ok {
		return value, true
	}
	supplier, ok := c.suppliers[name]
	if !ok {
		return "", false
	}
	value, err := supplier()
	if err != nil {
		value = ""
	}
	c.resolved[name] = value
	return value, true
}

// Set installs an already-resolved value, overriding any supplier.
// Params: variable name and resolved value.
// Returns: nothing.
func (c *Context) Set(name Name, value string) {
	c.resolved[name] = value
	if c.suppliers[name] == nil {
		c.suppliers[name] = Static(value)
	}
}
