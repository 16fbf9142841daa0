package state

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh time-ordered message id.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Transcript is the ordered list of chat messages. Safe for concurrent use.
type Transcript struct {
	mu      sync.Mutex
	entries []Entry
	index   map[string]int
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{index: make(map[string]int)}
}

// Append adds a new entry with a fresh id.
func (t *Transcript) Append(role Role, content string) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.appendLocked(NewID(), role, content)
}

// AppendOrUpdate sets the full content of the entry with id, appending a new
// assistant entry if id is unknown.
func (t *Transcript) AppendOrUpdate(id, content string) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i, ok := t.index[id]; ok {
		t.entries[i].Content = content
		return t.entries[i]
	}
	return t.appendLocked(id, RoleAssistant, content)
}

func (t *Transcript) appendLocked(id string, role Role, content string) Entry {
	e := Entry{
		ID:        id,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	t.index[id] = len(t.entries)
	t.entries = append(t.entries, e)
	return e
}

// Get returns the entry with id.
func (t *Transcript) Get(id string) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.index[id]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return t.entries[i], nil
}

// Entries returns a copy of all entries in order.
func (t *Transcript) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Last returns the most recent entry with the given role.
func (t *Transcript) Last(role Role) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].Role == role {
			return t.entries[i], nil
		}
	}
	return Entry{}, ErrEntryNotFound
}
