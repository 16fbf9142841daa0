package state

import (
	"strings"
	"sync"
)

// maxHistory bounds the canvas undo history.
const maxHistory = 50

// Canvas is the code buffer assistant replies are published to. It keeps
// an undo history of published text and an optional access-locked
// snapshot that merges are computed against. Safe for concurrent use.
type Canvas struct {
	mu       sync.Mutex
	current  string
	snapshot string
	locked   bool
	visible  bool
	history  []string
	pos      int // index of the current history entry, -1 when empty
}

// NewCanvas creates an empty, hidden canvas.
func NewCanvas() *Canvas {
	return &Canvas{pos: -1}
}

// Read returns the current text.
func (c *Canvas) Read() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Write replaces the current text and records it in the undo history.
// Blank text is not recorded.
func (c *Canvas) Write(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = text
	c.push(text, false)
}

// Clear empties the canvas, recording the empty text so it can be undone.
func (c *Canvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = ""
	c.push("", true)
}

func (c *Canvas) push(text string, allowEmpty bool) {
	if !allowEmpty && strings.TrimSpace(text) == "" {
		return
	}
	if c.pos >= 0 && c.history[c.pos] == text {
		return
	}
	c.history = append(c.history[:c.pos+1], text)
	if len(c.history) > maxHistory {
		c.history = c.history[len(c.history)-maxHistory:]
	}
	c.pos = len(c.history) - 1
}

// Undo steps back one history entry and returns the restored text.
func (c *Canvas) Undo() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pos <= 0 {
		return c.current, ErrNothingToUndo
	}
	c.pos--
	c.current = c.history[c.pos]
	return c.current, nil
}

// Redo steps forward one history entry and returns the restored text.
func (c *Canvas) Redo() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pos >= len(c.history)-1 {
		return c.current, ErrNothingToRedo
	}
	c.pos++
	c.current = c.history[c.pos]
	return c.current, nil
}

// HistoryLen returns the number of recorded history entries.
func (c *Canvas) HistoryLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

// Lock grants the assistant access to the current text by freezing a
// snapshot of it. Later edits to the live text do not affect the snapshot.
func (c *Canvas) Lock() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = c.current
	c.locked = true
	return c.snapshot
}

// Unlock revokes access and drops the snapshot.
func (c *Canvas) Unlock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = ""
	c.locked = false
}

// Snapshot returns the access-locked snapshot and whether access is locked.
func (c *Canvas) Snapshot() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot, c.locked
}

// CommitSnapshot advances the snapshot to text after an assistant merge.
func (c *Canvas) CommitSnapshot(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.locked {
		return ErrNotLocked
	}
	c.snapshot = text
	return nil
}

// Show opens the canvas and reports whether it was hidden before.
func (c *Canvas) Show() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.visible
	c.visible = true
	return !was
}

func (c *Canvas) Hide() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = false
}

func (c *Canvas) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

// Version returns a short content hash of the current text.
func (c *Canvas) Version() string {
	return ShortHash(c.Read())
}
