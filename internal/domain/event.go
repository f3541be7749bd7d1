package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Event is one normalized inbound pull-request lifecycle event.
// Params: action tag, actor, and full pull-request snapshot from the host.
// Returns: validated event payload for notification evaluation.
type Event struct {
	Action      Action      `json:"action"`
	Actor       User        `json:"actor,omitempty"`
	PullRequest PullRequest `json:"pull_request"`
}

// DecodeEvent decodes and validates one event payload.
// Params: JSON document bytes.
// Returns: validated event or decode/validation error.
func DecodeEvent(raw []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return NormalizeEvent(event)
}

// NormalizeEvent validates a decoded event and canonicalizes its tags.
// Params: decoded event with raw action/state strings.
// Returns: event with upper-cased tags, or a validation error.
func NormalizeEvent(event Event) (Event, error) {
	if err := event.Validate(); err != nil {
		return Event{}, err
	}
	action, _ := ParseAction(string(event.Action))
	event.Action = action
	state, _ := ParsePullRequestState(string(event.PullRequest.State))
	event.PullRequest.State = state
	return event, nil
}

// Validate validates one event against the contract.
// Params: event fields parsed from transport.
// Returns: validation error when schema is violated.
func (e Event) Validate() error {
	action, ok := ParseAction(string(e.Action))
	if !ok {
		return fmt.Errorf("unsupported action %q", e.Action)
	}
	if action == ActionButtonTrigger {
		return errors.New("BUTTON_TRIGGER cannot be delivered as a lifecycle event")
	}

	if strings.TrimSpace(e.PullRequest.RepoID) == "" {
		return errors.New("pull_request.repo_id is required")
	}
	if e.PullRequest.ID <= 0 {
		return errors.New("pull_request.id must be >0")
	}
	if _, ok := ParsePullRequestState(string(e.PullRequest.State)); !ok {
		return fmt.Errorf("unsupported pull_request.state %q", e.PullRequest.State)
	}
	return nil
}
