package state

import (
	"strings"
	"time"
)

// Role identifies who wrote a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is one message in the chat transcript.
type Entry struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// StoppedSuffix marks an assistant message whose stream was stopped by the
// user before it finished.
const StoppedSuffix = "\n\n[Stopped]"

// MarkStopped appends StoppedSuffix to content, trimming trailing whitespace
// first. Content that is already marked is returned unchanged.
func MarkStopped(content string) string {
	if IsStopped(content) {
		return content
	}
	return strings.TrimRight(content, " \t\r\n") + StoppedSuffix
}

// IsStopped reports whether content carries the stopped marker.
func IsStopped(content string) bool {
	return strings.HasSuffix(content, StoppedSuffix)
}

// StripStopped removes the stopped marker, if present.
func StripStopped(content string) string {
	return strings.TrimSuffix(content, StoppedSuffix)
}
