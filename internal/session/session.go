// Package session drives one streamed chat reply at a time: it sends the
// request, decodes the event stream, publishes extracted code to the canvas
// and keeps the assistant's transcript entry up to date.
package session

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/youruser/t4n/internal/llm"
	"github.com/youruser/t4n/internal/prompt"
	"github.com/youruser/t4n/internal/state"
)

var (
	ErrNothingToRetry = errors.New("nothing to retry")
	ErrNotRetryable   = errors.New("last reply completed; nothing to retry")
	ErrEmptyMessage   = errors.New("message is empty")
)

// State is a session's position in its lifecycle.
type State int

const (
	Idle State = iota
	Sending
	Streaming
	Completed
	Cancelled
	Failed
)

var stateNames = [...]string{"idle", "sending", "streaming", "completed", "cancelled", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether s ends a session.
func (s State) Terminal() bool {
	return s == Completed || s == Cancelled || s == Failed
}

// Transport opens the event stream for one message.
type Transport interface {
	StreamMessage(ctx context.Context, message, conversationID string) (*http.Response, error)
}

// Origin identifies the session an event belongs to. Tag is the value the
// session's caller set with WithTag, or "".
type Origin struct {
	SessionID string
	Tag       string
}

type tagKey struct{}

// WithTag returns a copy of ctx that labels the session Send or Retry
// starts with it. The tag is bound only once the controller accepts the
// session, so a rejected call never labels another session's events.
func WithTag(ctx context.Context, tag string) context.Context {
	return context.WithValue(ctx, tagKey{}, tag)
}

func tagFrom(ctx context.Context) string {
	tag, _ := ctx.Value(tagKey{}).(string)
	return tag
}

// Listener observes controller output. Methods are called with the
// controller's lock held, in the order the writes happen, and must not call
// back into the Controller.
type Listener interface {
	OnState(o Origin, st State)
	OnMeta(o Origin, m llm.Meta)
	OnTool(o Origin, t llm.Tool)
	OnCanvas(o Origin, text string, visible bool)
	OnMessage(o Origin, e state.Entry)
}

// NopListener ignores everything. Embed it to implement part of Listener.
type NopListener struct{}

func (NopListener) OnState(Origin, State)         {}
func (NopListener) OnMeta(Origin, llm.Meta)       {}
func (NopListener) OnTool(Origin, llm.Tool)       {}
func (NopListener) OnCanvas(Origin, string, bool) {}
func (NopListener) OnMessage(Origin, state.Entry) {}

// Payload is what the user sent.
type Payload struct {
	Text           string              `json:"text"`
	ConversationID string              `json:"conversation_id,omitempty"`
	Attachments    []prompt.Attachment `json:"attachments,omitempty"`
}

// Result describes how a session ended.
type Result struct {
	SessionID      string `json:"session_id"`
	State          State  `json:"state"`
	Retryable      bool   `json:"retryable"`
	ConversationID string `json:"conversation_id,omitempty"`
	Err            error  `json:"-"`
}

// Failure is the error of a failed session. Message is safe to show to the
// user; Err is the underlying transport or stream error.
type Failure struct {
	Message string
	Err     error
}

func (f *Failure) Error() string { return f.Message }
func (f *Failure) Unwrap() error { return f.Err }

const disabledMessage = "AI is disabled on the free cloud deploy. To use Llama/DeepSeek, run t4n-api locally with Ollama enabled (local mode), then point the web app at your local API."

// FriendlyError rewrites backend messages saying the assistant is disabled
// in cloud mode into instructions for running it locally. Other messages
// are returned unchanged.
func FriendlyError(msg string) string {
	m := strings.ToLower(msg)
	if strings.Contains(m, "llm disabled") || strings.Contains(m, "cloud mode") || strings.Contains(m, "disabled in cloud") {
		return disabledMessage
	}
	return msg
}
