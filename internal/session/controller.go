package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/youruser/t4n/internal/config"
	"github.com/youruser/t4n/internal/diff"
	"github.com/youruser/t4n/internal/extract"
	"github.com/youruser/t4n/internal/llm"
	"github.com/youruser/t4n/internal/logging"
	"github.com/youruser/t4n/internal/prompt"
	"github.com/youruser/t4n/internal/state"
)

var log = logging.Get()

// Chat-visible replacements for streamed code.
const (
	CodeHint        = "[Code generated → open the Code panel]"
	CodeDescription = "\n\n**Code updated** — open the Code panel to review changes."
)

// Options tune what a Controller shows and sends.
type Options struct {
	DisplayMode    string // config.DisplayDescription or config.DisplayMinimal
	MaxCodeContext int
}

// Controller runs streaming sessions against one canvas and transcript.
// At most one session is active; starting another cancels it first.
type Controller struct {
	transport  Transport
	canvas     *state.Canvas
	transcript *state.Transcript
	listener   Listener
	opts       Options

	mu              sync.Mutex
	active          *session
	last            *Payload
	lastAssistantID string
	conversationID  string
	retryable       bool
	lastState       State
}

// session is one request/response cycle. Fields below mu-guarded are only
// touched with Controller.mu held.
type session struct {
	id          string
	tag         string
	assistantID string
	ctx         context.Context
	cancel      context.CancelFunc

	text           strings.Builder
	cancelled      bool
	sawDone        bool
	wantsCode      bool
	described      bool
	baseline       string
	merge          bool
	locked         bool
	conversationID string
}

// New creates a Controller. A nil listener discards all output.
func New(t Transport, st *state.State, l Listener, opts Options) *Controller {
	if l == nil {
		l = NopListener{}
	}
	if opts.DisplayMode == "" {
		opts.DisplayMode = config.DisplayDescription
	}
	return &Controller{
		transport:  t,
		canvas:     st.Canvas,
		transcript: st.Transcript,
		listener:   l,
		opts:       opts,
	}
}

// Send records p as the last-sent payload, adds the user message and a new
// assistant message to the transcript, and streams the reply. It blocks
// until the session ends. A tag set on ctx with WithTag is carried by every
// event of the session.
func (c *Controller) Send(ctx context.Context, p Payload) Result {
	if strings.TrimSpace(p.Text) == "" && len(p.Attachments) == 0 {
		return Result{State: Failed, Err: ErrEmptyMessage}
	}

	c.mu.Lock()
	c.cancelActiveLocked()
	if p.ConversationID == "" {
		p.ConversationID = c.conversationID
	} else {
		c.conversationID = p.ConversationID
	}
	c.last = &p
	c.lastAssistantID = state.NewID()
	s := c.startLocked(ctx, c.lastAssistantID, p.ConversationID)
	c.listener.OnMessage(s.origin(), c.transcript.Append(state.RoleUser, strings.TrimSpace(p.Text)))
	c.listener.OnMessage(s.origin(), c.transcript.AppendOrUpdate(s.assistantID, ""))
	c.mu.Unlock()

	res := c.run(s, p)
	if res.State == Failed {
		c.mu.Lock()
		if c.active == nil && c.lastAssistantID == s.assistantID {
			c.listener.OnMessage(s.origin(), c.transcript.Append(state.RoleAssistant, "⚠️ "+res.Err.Error()))
		}
		c.mu.Unlock()
	}
	return res
}

// Retry re-runs the last payload into the last assistant message, which is
// cleared first. Only a reply that was stopped or never completed can be
// retried; a rejected retry emits no events.
func (c *Controller) Retry(ctx context.Context) Result {
	c.mu.Lock()
	switch {
	case c.last == nil:
		c.mu.Unlock()
		return Result{State: Failed, Err: ErrNothingToRetry}
	case c.active != nil || !c.retryable:
		c.mu.Unlock()
		return Result{State: Failed, Err: ErrNotRetryable}
	}
	p := *c.last
	if p.ConversationID == "" {
		p.ConversationID = c.conversationID
		c.last.ConversationID = c.conversationID
	}
	s := c.startLocked(ctx, c.lastAssistantID, p.ConversationID)
	c.listener.OnMessage(s.origin(), c.transcript.AppendOrUpdate(s.assistantID, ""))
	c.mu.Unlock()

	return c.run(s, p)
}

// Stop cancels the active session. Partial assistant text is kept and marked
// stopped. It returns false when nothing was active.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.active
	if s == nil || s.cancelled {
		return false
	}
	c.stopLocked(s)
	return true
}

func (c *Controller) stopLocked(s *session) {
	s.cancelled = true
	s.cancel()
	c.active = nil
	c.retryable = true
	c.lastState = Cancelled

	if e, err := c.transcript.Get(s.assistantID); err == nil && strings.TrimSpace(e.Content) != "" {
		c.listener.OnMessage(s.origin(), c.transcript.AppendOrUpdate(s.assistantID, state.MarkStopped(e.Content)))
	}
	log.Info("session %s: stopped", s.id)
	c.listener.OnState(s.origin(), Cancelled)
}

// cancelActiveLocked silently supersedes the active session.
func (c *Controller) cancelActiveLocked() {
	s := c.active
	if s == nil {
		return
	}
	s.cancelled = true
	s.cancel()
	c.active = nil
	log.Info("session %s: superseded", s.id)
}

// startLocked creates the session for a send or retry and makes it the
// active one.
func (c *Controller) startLocked(ctx context.Context, assistantID, conversationID string) *session {
	sctx, cancel := context.WithCancel(ctx)
	s := &session{
		id:             state.NewID(),
		tag:            tagFrom(ctx),
		assistantID:    assistantID,
		ctx:            sctx,
		cancel:         cancel,
		conversationID: conversationID,
	}
	c.active = s
	c.retryable = false
	c.lastState = Sending
	return s
}

func (c *Controller) run(s *session, p Payload) Result {
	defer s.cancel()

	c.mu.Lock()
	if c.active != s {
		// Superseded before the request went out.
		c.mu.Unlock()
		return c.finish(s, context.Canceled)
	}
	snap, locked := c.canvas.Snapshot()
	s.locked = locked
	s.merge = locked && strings.TrimSpace(snap) != ""
	s.baseline = snap
	built := prompt.Build(prompt.Request{
		Text:           p.Text,
		Attachments:    p.Attachments,
		Code:           snap,
		Access:         locked,
		MaxCodeContext: c.opts.MaxCodeContext,
	})
	s.wantsCode = built.WantsCode
	c.listener.OnState(s.origin(), Sending)
	c.mu.Unlock()

	log.Info("session %s: sending (%d tokens, code mode %v)", s.id, built.Tokens, built.WantsCode)

	resp, err := c.transport.StreamMessage(s.ctx, built.Text, p.ConversationID)
	if err == nil {
		err = c.consume(s.ctx, s, resp)
	}
	return c.finish(s, err)
}

func (s *session) origin() Origin {
	return Origin{SessionID: s.id, Tag: s.tag}
}

func (c *Controller) consume(ctx context.Context, s *session, resp *http.Response) error {
	dec, err := llm.NewDecoder(ctx, resp)
	if err != nil {
		return err
	}
	defer dec.Close()

	c.mu.Lock()
	if c.active == s {
		c.lastState = Streaming
		c.listener.OnState(s.origin(), Streaming)
	}
	c.mu.Unlock()

	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if !c.handle(s, ev) {
			return context.Canceled
		}
	}
}

// handle applies one event. It returns false once s is no longer active.
func (c *Controller) handle(s *session, ev llm.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != s || s.cancelled {
		return false
	}

	switch ev := ev.(type) {
	case llm.Meta:
		c.listener.OnMeta(s.origin(), ev)
	case llm.Delta:
		c.applyDeltaLocked(s, ev.Text)
	case llm.Tool:
		c.listener.OnTool(s.origin(), ev)
	case llm.Done:
		s.sawDone = true
		if s.conversationID == "" && ev.ConversationID != "" {
			s.conversationID = ev.ConversationID
			c.conversationID = ev.ConversationID
			if c.last != nil {
				c.last.ConversationID = ev.ConversationID
			}
			log.Info("session %s: adopted conversation %s", s.id, ev.ConversationID)
		}
	case llm.Ping:
	}
	return true
}

func (c *Controller) applyDeltaLocked(s *session, delta string) {
	s.text.WriteString(delta)
	streamed := s.text.String()
	log.Stream("delta", delta)

	code := extract.Code(streamed)
	if code != "" {
		out := code
		if s.merge {
			out = diff.Reconcile(s.baseline, code)
		}
		changed := out != c.canvas.Read()
		if changed {
			c.canvas.Write(out)
			if s.locked {
				_ = c.canvas.CommitSnapshot(out)
			}
		}
		if opened := c.canvas.Show(); changed || opened {
			c.listener.OnCanvas(s.origin(), out, true)
		}
	}

	c.listener.OnMessage(s.origin(), c.transcript.AppendOrUpdate(s.assistantID, c.displayText(s, streamed, code)))
}

// displayText is what the chat shows for streamed text: instructions
// verbatim, a hint in place of code, otherwise the prose without fences.
func (c *Controller) displayText(s *session, streamed, code string) string {
	switch {
	case extract.HasInstructions(streamed):
		return streamed
	case code != "":
		if s.wantsCode && c.opts.DisplayMode == config.DisplayDescription {
			s.described = true
		}
		if s.described {
			return CodeHint + CodeDescription
		}
		return CodeHint
	}
	return extract.StripCodeBlocks(streamed)
}

func (c *Controller) finish(s *session, err error) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := Result{
		SessionID:      s.id,
		ConversationID: s.conversationID,
		Retryable:      s.cancelled || !s.sawDone,
	}

	switch {
	case s.cancelled:
		res.State = Cancelled
	case err != nil && errors.Is(err, context.Canceled):
		// The caller's context ended without Stop.
		c.stopLocked(s)
		res.State = Cancelled
		res.Retryable = true
	case err != nil:
		msg := FriendlyError(err.Error())
		res.State = Failed
		res.Err = &Failure{Message: msg, Err: err}
		log.Error("session %s: %v", s.id, err)
	default:
		res.State = Completed
	}

	if c.active == s {
		c.active = nil
		c.retryable = res.Retryable
		c.lastState = res.State
		if res.State != Cancelled {
			c.listener.OnState(s.origin(), res.State)
		}
	}
	if res.ConversationID == "" {
		res.ConversationID = c.conversationID
	}
	return res
}

// Status is a point-in-time view of the controller.
type Status struct {
	Active         bool   `json:"active"`
	SessionID      string `json:"session_id,omitempty"`
	State          State  `json:"state"`
	Retryable      bool   `json:"retryable"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		State:          c.lastState,
		Retryable:      c.retryable && c.active == nil && c.last != nil,
		ConversationID: c.conversationID,
	}
	if c.active != nil {
		st.Active = true
		st.SessionID = c.active.id
	}
	return st
}

// ConversationID returns the conversation subsequent sends continue.
func (c *Controller) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// SetConversationID switches to another conversation. It does not affect an
// active session.
func (c *Controller) SetConversationID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conversationID = id
}
