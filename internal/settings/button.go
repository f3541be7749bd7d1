package settings

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// buttonNamespace seeds deterministic button identifiers derived from
// configuration table names, so an id is stable across reloads.
var buttonNamespace = uuid.MustParse("8f3c1d8a-7a4e-45a2-b5db-52a7f0f3f2aa")

// Button is one manually pressable trigger configured by an admin.
// Params: stable identity, display title, and optional user allow-list.
// Returns: read-only value consumed by button listing and press handling.
type Button struct {
	ID    uuid.UUID
	Title string

	// AllowedUsers restricts who may use the button. Empty means everyone.
	AllowedUsers []string
}

// NewButton builds a button with an identifier derived from key.
// Params: configuration key, display title, and allowed user names.
// Returns: validated button or an error for a blank title.
func NewButton(key, title string, allowedUsers []string) (Button, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Button{}, &ValidationError{Field: "title", Reason: "title is required"}
	}
	b := Button{
		ID:    uuid.NewSHA1(buttonNamespace, []byte(key)),
		Title: title,
	}
	for _, user := range allowedUsers {
		user = strings.TrimSpace(user)
		if user != "" {
			b.AllowedUsers = append(b.AllowedUsers, user)
		}
	}
	return b, nil
}

// AllowsUser reports whether user may press this button.
// Params: authenticated user name.
// Returns: true when the allow-list is empty or contains user.
func (b Button) AllowsUser(user string) bool {
	if len(b.AllowedUsers) == 0 {
		return true
	}
	for _, allowed := range b.AllowedUsers {
		if allowed == user {
			return true
		}
	}
	return false
}

// SortButtons orders buttons by title, then id, for stable UI listings.
// Params: button slice ordered in place.
// Returns: nothing.
func SortButtons(buttons []Button) {
	sort.Slice(buttons, func(i, j int) bool {
		if buttons[i].Title != buttons[j].Title {
			return buttons[i].Title < buttons[j].Title
		}
		return buttons[i].ID.String() < buttons[j].ID.String()
	})
}

// UserCheck answers whether a user may use a button.
type UserCheck interface {
	// IsAllowedUseButton reports whether user may press button.
	// Params: authenticated user name and the candidate button.
	// Returns: true when usage is permitted.
	IsAllowedUseButton(user string, button Button) bool
}

// AllowListCheck permits usage per each button's own allow-list.
type AllowListCheck struct{}

// IsAllowedUseButton applies the button's allow-list to user.
// Params: authenticated user name and the candidate button.
// Returns: true when the allow-list is empty or contains user.
func (AllowListCheck) IsAllowedUseButton(user string, button Button) bool {
	return button.AllowsUser(user)
}

var _ UserCheck = AllowListCheck{}
