package history

import (
	"sync"
	"time"

	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/domain"
)

// Record is one completed dispatch attempt kept for the admin surface.
// Params: notification identity, event coordinates, and outcome fields.
// Returns: immutable entry listed by Recent.
type Record struct {
	Notification string        `json:"notification"`
	RepoID       string        `json:"repo_id"`
	PullRequest  int64         `json:"pull_request"`
	Action       domain.Action `json:"action"`
	URL          string        `json:"url"`
	Status       int           `json:"status,omitempty"`
	Success      bool          `json:"success"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration"`
	At           time.Time     `json:"at"`
}

// Store keeps the most recent dispatch records in a bounded ring.
// Params: capacity-bounded ring buffer guarded by a mutex.
// Returns: store implementation without external dependencies.
type Store struct {
	mu       sync.RWMutex
	capacity int
	records  []Record
	next     int
	full     bool
}

// NewStore creates a bounded in-memory dispatch history.
// Params: maximum retained records (defaults to 200 when <=0).
// Returns: initialized store.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 200
	}
	return &Store{
		capacity: capacity,
		records:  make([]Record, capacity),
	}
}

// Append stores one record, evicting the oldest when full.
// Params: completed dispatch record.
// Returns: nothing.
func (s *Store) Append(record Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[s.next] = record
	s.next++
	if s.next == s.capacity {
		s.next = 0
		s.full = true
	}
}

// Recent lists retained records, newest first.
// Params: maximum entries to return (all retained when <=0).
// Returns: copied record slice.
func (s *Store) Recent(limit int) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	size := s.next
	if s.full {
		size = s.capacity
	}
	if limit <= 0 || limit > size {
		limit = size
	}
	out := make([]Record, 0, limit)
	for i := 0; i < limit; i++ {
		idx := s.next - 1 - i
		if idx < 0 {
			idx += s.capacity
		}
		out = append(out, s.records[idx])
	}
	return out
}
