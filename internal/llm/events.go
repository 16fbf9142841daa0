package llm

// Event is one protocol event decoded from an SSE frame. The concrete type is
// one of Meta, Delta, Tool, Done or Ping; consumers switch on it.
type Event interface {
	// Name returns the SSE event name the value was decoded from.
	Name() string
}

// Meta carries capability flags announced by the backend at stream start.
type Meta struct {
	LLMMode   string `json:"llmMode,omitempty"`
	Model     string `json:"model,omitempty"`
	AIEnabled *bool  `json:"aiEnabled,omitempty"`
}

// Delta is one fragment of assistant text.
type Delta struct {
	Text string `json:"delta"`
}

// Tool reports a server-side tool or plugin run.
type Tool struct {
	RunID  string `json:"runId,omitempty"`
	Tool   string `json:"tool,omitempty"`
	Status string `json:"status,omitempty"` // "ok" or "error"
	Error  string `json:"error,omitempty"`
}

// Done marks normal end of stream.
type Done struct {
	ConversationID string `json:"conversationId,omitempty"`
}

// Ping is a keep-alive. It carries nothing and consumers ignore it.
type Ping struct{}

func (Meta) Name() string  { return "meta" }
func (Delta) Name() string { return "delta" }
func (Tool) Name() string  { return "tool" }
func (Done) Name() string  { return "done" }
func (Ping) Name() string  { return "ping" }

// errorPayload is the body of an "error" frame. It never surfaces as an
// Event; the decoder turns it into a *StreamError.
type errorPayload struct {
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}
