package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/youruser/t4n/internal/config"
	"github.com/youruser/t4n/internal/diff"
	"github.com/youruser/t4n/internal/instructions"
	"github.com/youruser/t4n/internal/llm"
	"github.com/youruser/t4n/internal/prompt"
	"github.com/youruser/t4n/internal/session"
	"github.com/youruser/t4n/internal/state"
)

const maxRequestSize = 1024 * 1024

// chatClient is the part of *llm.Client the backend uses.
type chatClient interface {
	session.Transport
	ExecutePlugin(ctx context.Context, conversationID, plugin string, args map[string]any) (llm.PluginResult, error)
}

// request is the union of every action's fields.
type request struct {
	Action         string              `json:"action"`
	RequestID      any                 `json:"request_id"`
	Content        string              `json:"content"`
	ConversationID string              `json:"conversation_id"`
	Attachments    []prompt.Attachment `json:"attachments"`
	Text           string              `json:"text"`
	MessageID      string              `json:"message_id"`
	Name           string              `json:"name"`
	Args           map[string]any      `json:"args"`
}

type backend struct {
	outMu sync.Mutex
	out   io.Writer

	cfg    *config.Config
	client chatClient
	state  *state.State
	ctrl   *session.Controller
	events *streamListener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newBackend(out io.Writer, cfg *config.Config, client chatClient) *backend {
	b := &backend{
		out:    out,
		cfg:    cfg,
		client: client,
		state:  state.New(),
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.events = &streamListener{b: b}
	b.ctrl = session.New(client, b.state, b.events, session.Options{
		DisplayMode:    cfg.DisplayMode,
		MaxCodeContext: cfg.MaxCodeContext,
	})
	return b
}

// run serves requests from in until EOF, shutdown or ctx ends, then stops
// any active session and waits for in-flight work.
func (b *backend) run(ctx context.Context, in io.Reader) error {
	if ctx != nil {
		stop := context.AfterFunc(ctx, b.cancel)
		defer stop()
	}
	defer b.wait()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestSize)
	for scanner.Scan() {
		if b.handleRequest(scanner.Text()) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			b.respond("", map[string]any{
				"type":    "error",
				"message": "Request too large (max 1MB). Reduce the code or attachment size.",
			})
		}
		return fmt.Errorf("stdin: %w", err)
	}
	return nil
}

func (b *backend) wait() {
	b.ctrl.Stop()
	b.cancel()
	b.wg.Wait()
}

// actionBlockedDuringStream reports whether action changes the canvas and
// so must wait for the active session to end.
func actionBlockedDuringStream(action string) bool {
	switch action {
	case "canvas_set",
		"canvas_lock",
		"canvas_unlock",
		"canvas_undo",
		"canvas_redo",
		"apply_instructions":
		return true
	default:
		return false
	}
}

// handleRequest serves one request line. It returns true on shutdown.
func (b *backend) handleRequest(line string) bool {
	if strings.TrimSpace(line) == "" {
		return false
	}
	var req request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		log.Error("Invalid JSON request: %s", line)
		b.respond("", map[string]any{"type": "error", "message": "Invalid JSON"})
		return false
	}

	log.Request(req.Action, line)
	reqID := requestID(req.RequestID)

	if actionBlockedDuringStream(req.Action) && b.ctrl.Status().Active {
		b.respond(reqID, map[string]any{"type": "error", "message": "A reply is still streaming. Stop it first."})
		return false
	}

	switch req.Action {
	case "ping":
		b.respond(reqID, map[string]any{"type": "ok"})

	case "version":
		b.respond(reqID, map[string]any{"type": "version", "version": versionString()})

	case "send":
		if strings.TrimSpace(req.Content) == "" && len(req.Attachments) == 0 {
			b.respond(reqID, map[string]any{"type": "error", "message": "Missing required field: content"})
			return false
		}
		p := session.Payload{
			Text:           req.Content,
			ConversationID: req.ConversationID,
			Attachments:    req.Attachments,
		}
		var extra map[string]any
		if b.state.Transcript.Len() == 0 && req.ConversationID == "" {
			extra = map[string]any{"title": prompt.Title(req.Content)}
		}
		b.stream(reqID, func(ctx context.Context) session.Result { return b.ctrl.Send(ctx, p) }, extra)

	case "retry":
		b.stream(reqID, b.ctrl.Retry, nil)

	case "stop":
		b.respond(reqID, map[string]any{"type": "ok", "stopped": b.ctrl.Stop()})

	case "state":
		st := b.ctrl.Status()
		_, locked := b.state.Canvas.Snapshot()
		b.respond(reqID, map[string]any{
			"type":            "state",
			"active":          st.Active,
			"session_id":      st.SessionID,
			"state":           st.State,
			"retryable":       st.Retryable,
			"conversation_id": st.ConversationID,
			"title":           b.title(),
			"canvas_visible":  b.state.Canvas.Visible(),
			"canvas_locked":   locked,
			"history":         b.state.Canvas.HistoryLen(),
		})

	case "canvas_get":
		b.respondCanvas(reqID)

	case "canvas_set":
		if strings.TrimSpace(req.Text) == "" {
			b.state.Canvas.Clear()
		} else {
			b.state.Canvas.Write(req.Text)
		}
		b.respondCanvas(reqID)

	case "canvas_lock":
		text := b.state.Canvas.Lock()
		b.respond(reqID, map[string]any{"type": "ok", "locked": true, "version": state.ShortHash(text)})

	case "canvas_unlock":
		b.state.Canvas.Unlock()
		b.respond(reqID, map[string]any{"type": "ok", "locked": false})

	case "canvas_undo":
		if _, err := b.state.Canvas.Undo(); err != nil {
			b.respond(reqID, errorResponse(err))
			return false
		}
		b.respondCanvas(reqID)

	case "canvas_redo":
		if _, err := b.state.Canvas.Redo(); err != nil {
			b.respond(reqID, errorResponse(err))
			return false
		}
		b.respondCanvas(reqID)

	case "apply_instructions":
		b.handleApplyInstructions(reqID, req.MessageID)

	case "transcript":
		b.respond(reqID, map[string]any{"type": "transcript", "messages": transcriptMessages(b.state.Transcript.Entries())})

	case "estimate_tokens":
		b.handleEstimateTokens(reqID, req.Text)

	case "plugin":
		b.handlePlugin(reqID, req.Name, req.Args)

	case "shutdown":
		b.respond(reqID, map[string]any{"type": "ok"})
		return true

	default:
		b.respond(reqID, map[string]any{"type": "error", "message": fmt.Sprintf("Unknown action: %q", req.Action)})
	}
	return false
}

// stream runs fn in the background and reports how it ended with a
// terminal done or error response. Events of the session fn starts carry
// reqID; extra fields are added to the done response.
func (b *backend) stream(reqID string, fn func(context.Context) session.Result, extra map[string]any) {
	ctx := session.WithTag(b.ctx, reqID)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		res := fn(ctx)
		if res.State == session.Failed {
			resp := errorResponse(res.Err)
			resp["session_id"] = res.SessionID
			resp["retryable"] = res.Retryable
			b.respond(reqID, resp)
			return
		}
		resp := map[string]any{
			"type":            "done",
			"session_id":      res.SessionID,
			"state":           res.State,
			"retryable":       res.Retryable,
			"conversation_id": res.ConversationID,
		}
		for k, v := range extra {
			resp[k] = v
		}
		b.respond(reqID, resp)
	}()
}

func (b *backend) respondCanvas(reqID string) {
	_, locked := b.state.Canvas.Snapshot()
	b.respond(reqID, map[string]any{
		"type":    "canvas",
		"text":    b.state.Canvas.Read(),
		"visible": b.state.Canvas.Visible(),
		"locked":  locked,
		"version": b.state.Canvas.Version(),
	})
}

// title names the conversation after its first user message.
func (b *backend) title() string {
	for _, e := range b.state.Transcript.Entries() {
		if e.Role == state.RoleUser {
			return prompt.Title(e.Content)
		}
	}
	return ""
}

// transcriptMessages renders entries for re-display: a stopped reply is
// reported with the marker removed and stopped set.
func transcriptMessages(entries []state.Entry) []map[string]any {
	out := make([]map[string]any, len(entries))
	for i, e := range entries {
		out[i] = map[string]any{
			"id":        e.ID,
			"role":      e.Role,
			"content":   state.StripStopped(e.Content),
			"stopped":   state.IsStopped(e.Content),
			"timestamp": e.Timestamp,
		}
	}
	return out
}

func (b *backend) handleApplyInstructions(reqID, messageID string) {
	if messageID == "" {
		b.respond(reqID, map[string]any{"type": "error", "message": "Missing required field: message_id"})
		return
	}
	entry, err := b.state.Transcript.Get(messageID)
	if err != nil {
		b.respond(reqID, errorResponse(err))
		return
	}
	instrs := instructions.Parse(state.StripStopped(entry.Content))
	if len(instrs) == 0 {
		b.respond(reqID, map[string]any{"type": "error", "message": "Message has no find-and-replace instructions"})
		return
	}

	out, err := instructions.Apply(b.state.Canvas.Read(), instrs)
	if err != nil {
		b.respond(reqID, errorResponse(err))
		return
	}
	b.state.Canvas.Write(out)
	if _, locked := b.state.Canvas.Snapshot(); locked {
		_ = b.state.Canvas.CommitSnapshot(out)
	}
	b.state.Canvas.Show()
	log.Info("applied %d instructions from %s", len(instrs), messageID)

	b.respond(reqID, map[string]any{
		"type":    "canvas",
		"applied": len(instrs),
		"text":    out,
		"visible": true,
		"version": state.ShortHash(out),
	})
}

func (b *backend) handleEstimateTokens(reqID, text string) {
	est := b.state.EstimateTokens(text)
	snap, locked := b.state.Canvas.Snapshot()
	built := prompt.Build(prompt.Request{
		Text:           text,
		Code:           snap,
		Access:         locked,
		MaxCodeContext: b.cfg.MaxCodeContext,
	})
	b.respond(reqID, map[string]any{
		"type":          "tokens",
		"total":         est.Total,
		"history":       est.History,
		"code":          est.Code,
		"input_text":    est.InputText,
		"prompt_tokens": built.Tokens,
		"wants_code":    built.WantsCode,
	})
}

func (b *backend) handlePlugin(reqID, name string, args map[string]any) {
	if name == "" {
		b.respond(reqID, map[string]any{"type": "error", "message": "Missing required field: name"})
		return
	}
	conversationID := b.ctrl.ConversationID()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		res, err := b.client.ExecutePlugin(b.ctx, conversationID, name, args)
		if err != nil {
			b.respond(reqID, errorResponse(err))
			return
		}
		b.respond(reqID, pluginResponse(res))
	}()
}

func pluginResponse(res llm.PluginResult) map[string]any {
	resp := map[string]any{"type": "plugin", "plugin": res.Plugin()}
	switch r := res.(type) {
	case *llm.HealthcheckResult:
		resp["run_id"] = r.RunID
		resp["status"] = r.Status
		resp["ok"] = r.OK
	case *llm.SummaryResult:
		resp["run_id"] = r.RunID
		resp["summary"] = r.Summary
	case *llm.ExportResult:
		resp["run_id"] = r.RunID
		resp["text"] = r.Text
		resp["filename"] = r.Filename
	}
	return resp
}

func errorResponse(err error) map[string]any {
	var msg string
	var editErr *diff.EditError
	switch {
	case errors.Is(err, config.ErrNoConfig):
		msg = "Config file not found: ~/.config/t4n/config.json"
	case errors.Is(err, config.ErrNoAPIKey):
		msg = "API key not set in config"
	case errors.Is(err, session.ErrNothingToRetry):
		msg = "Nothing to retry"
	case errors.Is(err, session.ErrNotRetryable):
		msg = "The last reply completed; send a new message instead"
	case errors.Is(err, state.ErrNothingToUndo):
		msg = "Nothing to undo"
	case errors.Is(err, state.ErrNothingToRedo):
		msg = "Nothing to redo"
	case errors.Is(err, state.ErrEntryNotFound):
		msg = "Message not found"
	case errors.As(err, &editErr):
		msg = fmt.Sprintf("Instruction %d could not be applied: %s", editErr.Index+1, editErr.Reason)
	case errors.Is(err, llm.ErrUnknownPlugin):
		msg = err.Error()
	default:
		msg = session.FriendlyError(err.Error())
	}
	return map[string]any{"type": "error", "message": msg}
}

func (b *backend) respond(reqID string, data map[string]any) {
	out, err := json.Marshal(addResponseID(reqID, data))
	if err != nil {
		log.Error("marshal response: %v", err)
		return
	}
	msgType, _ := data["type"].(string)
	b.outMu.Lock()
	defer b.outMu.Unlock()
	log.Response(msgType, string(out))
	b.out.Write(append(out, '\n'))
}

func addResponseID(reqID string, data map[string]any) map[string]any {
	if reqID == "" {
		return data
	}
	data["request_id"] = reqID
	return data
}

func requestID(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		return ""
	}
}

// streamListener turns controller output into stream events. Each event
// carries the request id its session was started with.
type streamListener struct {
	b *backend
}

func (l *streamListener) OnState(o session.Origin, st session.State) {
	l.b.respond(o.Tag, map[string]any{"type": "state", "session_id": o.SessionID, "state": st})
}

func (l *streamListener) OnMeta(o session.Origin, m llm.Meta) {
	resp := map[string]any{"type": "meta", "session_id": o.SessionID, "llm_mode": m.LLMMode, "model": m.Model}
	if m.AIEnabled != nil {
		resp["ai_enabled"] = *m.AIEnabled
	}
	l.b.respond(o.Tag, resp)
}

func (l *streamListener) OnTool(o session.Origin, t llm.Tool) {
	resp := map[string]any{"type": "tool", "session_id": o.SessionID, "tool": t.Tool, "status": t.Status}
	if t.RunID != "" {
		resp["run_id"] = t.RunID
	}
	if t.Error != "" {
		resp["error"] = t.Error
	}
	l.b.respond(o.Tag, resp)
}

func (l *streamListener) OnCanvas(o session.Origin, text string, visible bool) {
	l.b.respond(o.Tag, map[string]any{
		"type":       "canvas",
		"session_id": o.SessionID,
		"text":       text,
		"visible":    visible,
		"version":    state.ShortHash(text),
	})
}

func (l *streamListener) OnMessage(o session.Origin, e state.Entry) {
	l.b.respond(o.Tag, map[string]any{
		"type":       "message",
		"session_id": o.SessionID,
		"id":         e.ID,
		"role":       e.Role,
		"content":    e.Content,
	})
}
