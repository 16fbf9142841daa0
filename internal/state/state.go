// Package state holds the in-memory code canvas and chat transcript a
// streaming session writes to.
package state

import (
	"errors"
)

// Sentinel errors for expected conditions.
var (
	ErrEntryNotFound = errors.New("transcript entry not found")
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
	ErrNotLocked     = errors.New("canvas access is not locked")
)

// State groups the canvas and transcript shared by one chat.
type State struct {
	Canvas     *Canvas
	Transcript *Transcript
}

// New creates an empty State.
func New() *State {
	return &State{
		Canvas:     NewCanvas(),
		Transcript: NewTranscript(),
	}
}
