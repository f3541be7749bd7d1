package settings

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Global holds settings that apply to every notification.
type Global struct {
	// AcceptAnyCertificate disables TLS certificate validation for
	// outbound dispatch. Explicit opt-in for self-signed endpoints.
	AcceptAnyCertificate bool
}

// Snapshot is one immutable view of the full settings store.
// Params: validated notifications, buttons, and global flags.
// Returns: read-only state shared by every evaluation started after Replace.
type Snapshot struct {
	Notifications []Notification
	Buttons       []Button
	Global        Global
}

// Button looks up a button by id.
// Params: button identifier.
// Returns: matching button and a found flag.
func (s *Snapshot) Button(id uuid.UUID) (Button, bool) {
	for _, button := range s.Buttons {
		if button.ID == id {
			return button, true
		}
	}
	return Button{}, false
}

// Store publishes settings snapshots to concurrent readers.
// Replace swaps the whole snapshot atomically; evaluations in flight keep
// the snapshot they loaded.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore builds a store seeded with snapshot.
// Params: initial snapshot, may be empty.
// Returns: ready store.
func NewStore(snapshot Snapshot) *Store {
	store := &Store{}
	store.Replace(snapshot)
	return store
}

// Load returns the current snapshot.
// Params: none.
// Returns: snapshot pointer, never nil.
func (s *Store) Load() *Snapshot {
	return s.current.Load()
}

// Replace publishes a new snapshot.
// Params: snapshot to expose to subsequent Load calls.
// Returns: nothing.
func (s *Store) Replace(snapshot Snapshot) {
	SortButtons(snapshot.Buttons)
	s.current.Store(&snapshot)
}
