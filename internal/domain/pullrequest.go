package domain

import "strings"

// PullRequestState identifies pull request lifecycle state.
// Params: constants OPEN, MERGED, or DECLINED.
// Returns: normalized state usage across trigger evaluation.
type PullRequestState string

const (
	// StateOpen marks a pull request that is open for review.
	StateOpen PullRequestState = "OPEN"
	// StateMerged marks a pull request whose changes were merged.
	StateMerged PullRequestState = "MERGED"
	// StateDeclined marks a pull request that was declined/closed unmerged.
	StateDeclined PullRequestState = "DECLINED"
)

// Action identifies one pull-request lifecycle event or manual button press.
// Params: constants for every trigger tag a notification may subscribe to.
// Returns: normalized action usage across trigger evaluation.
type Action string

const (
	// ActionOpened fires when a pull request is created.
	ActionOpened Action = "OPENED"
	// ActionUpdated fires when title/description/reviewers change.
	ActionUpdated Action = "UPDATED"
	// ActionRescoped fires when source or target ref changes.
	ActionRescoped Action = "RESCOPED"
	// ActionApproved fires when a reviewer approves.
	ActionApproved Action = "APPROVED"
	// ActionUnapproved fires when a reviewer withdraws approval.
	ActionUnapproved Action = "UNAPPROVED"
	// ActionCommented fires when a comment is added.
	ActionCommented Action = "COMMENTED"
	// ActionMerged fires when a pull request is merged.
	ActionMerged Action = "MERGED"
	// ActionDeclined fires when a pull request is declined.
	ActionDeclined Action = "DECLINED"
	// ActionReopened fires when a declined pull request is reopened.
	ActionReopened Action = "REOPENED"
	// ActionButtonTrigger is the synthetic action used for manual button presses.
	ActionButtonTrigger Action = "BUTTON_TRIGGER"
)

// ParseAction converts raw action tag into a known Action.
// Params: raw action string from transport or configuration.
// Returns: normalized action and validity flag.
func ParseAction(raw string) (Action, bool) {
	action := Action(strings.ToUpper(strings.TrimSpace(raw)))
	switch action {
	case ActionOpened, ActionUpdated, ActionRescoped, ActionApproved, ActionUnapproved,
		ActionCommented, ActionMerged, ActionDeclined, ActionReopened, ActionButtonTrigger:
		return action, true
	default:
		return "", false
	}
}

// ParsePullRequestState converts raw state into a known PullRequestState.
// Params: raw state string from transport or configuration.
// Returns: normalized state and validity flag.
func ParsePullRequestState(raw string) (PullRequestState, bool) {
	state := PullRequestState(strings.ToUpper(strings.TrimSpace(raw)))
	switch state {
	case StateOpen, StateMerged, StateDeclined:
		return state, true
	default:
		return "", false
	}
}

// User describes one pull-request participant.
// Params: account name and optional profile fields.
// Returns: participant metadata for variable resolution.
type User struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Ref describes one side of a pull request (source or destination).
// Params: branch id, latest commit hash, and owning repository.
// Returns: ref metadata for variable resolution.
type Ref struct {
	Branch     string `json:"branch"`
	CommitHash string `json:"commit_hash,omitempty"`
	RepoSlug   string `json:"repo_slug,omitempty"`
	ProjectKey string `json:"project_key,omitempty"`
}

// PullRequest is a read-only snapshot of one pull request.
// Params: identity, lifecycle state, participants, and refs from the host.
// Returns: evaluation-time handle consumed by matcher and variable resolver.
type PullRequest struct {
	RepoID      string           `json:"repo_id"`
	ID          int64            `json:"id"`
	Version     int64            `json:"version,omitempty"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	State       PullRequestState `json:"state"`
	Author      User             `json:"author"`
	FromRef     Ref              `json:"from_ref"`
	ToRef       Ref              `json:"to_ref"`
	Link        string           `json:"link,omitempty"`
	CommentText string           `json:"comment_text,omitempty"`

	// Mergeable is the host-reported conflict signal when the event
	// payload carries one. Nil means not reported.
	Mergeable *bool `json:"mergeable,omitempty"`
}
