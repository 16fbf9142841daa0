package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	ErrRequestFailed = errors.New("API request failed")
	ErrStreamError   = errors.New("stream error")
)

const readChunkSize = 4096

// TransportError is returned when the response cannot be streamed at all:
// non-2xx status or no body.
type TransportError struct {
	StatusCode int
	Message    string
}

func (e *TransportError) Error() string {
	return e.Message
}

// Is allows TransportError to match ErrRequestFailed.
func (e *TransportError) Is(target error) bool {
	return target == ErrRequestFailed
}

// StreamError is returned when the server sends an "error" frame mid-stream.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return e.Message
}

// Is allows StreamError to match ErrStreamError.
func (e *StreamError) Is(target error) bool {
	return target == ErrStreamError
}

// Decoder reads protocol events from an SSE response body. It is not
// restartable: once Next returns an error (including io.EOF) the body has
// been released and every later call returns the same error.
type Decoder struct {
	ctx   context.Context
	body  io.ReadCloser
	src   io.Reader
	chunk []byte
	buf   string
	eof   bool
	err   error

	stopAfter func() bool
	closeBody func() error
}

// NewDecoder validates resp and prepares to decode its body. A failed
// response yields a *TransportError before any frame is parsed; the body
// is closed in that case.
func NewDecoder(ctx context.Context, resp *http.Response) (*Decoder, error) {
	if resp == nil {
		return nil, &TransportError{Message: "Request failed (no response)"}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || resp.Body == nil || resp.Body == http.NoBody {
		return nil, transportError(resp)
	}

	d := &Decoder{
		ctx:   ctx,
		body:  resp.Body,
		src:   transform.NewReader(resp.Body, unicode.UTF8BOM.NewDecoder()),
		chunk: make([]byte, readChunkSize),
	}
	d.closeBody = sync.OnceValue(d.body.Close)
	// Closing the body unblocks a Read that is waiting on the network.
	d.stopAfter = context.AfterFunc(ctx, func() { d.closeBody() })
	return d, nil
}

func transportError(resp *http.Response) *TransportError {
	var text string
	if resp.Body != nil {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		text = strings.TrimSpace(string(data))
	}
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	if text == "" {
		text = fmt.Sprintf("Request failed (%d)", resp.StatusCode)
	}
	log.Error("API error %d: %s", resp.StatusCode, text)
	return &TransportError{StatusCode: resp.StatusCode, Message: text}
}

// Next returns the next event. It returns io.EOF when the stream ends, the
// context error when cancelled, or a *StreamError for an "error" frame.
// A partial frame left in the buffer at end of stream is discarded.
func (d *Decoder) Next() (Event, error) {
	if d.err != nil {
		return nil, d.err
	}

	for {
		if err := d.ctx.Err(); err != nil {
			return nil, d.fail(err)
		}

		if idx := strings.Index(d.buf, "\n\n"); idx >= 0 {
			frame := d.buf[:idx]
			d.buf = d.buf[idx+2:]

			ev, err := parseFrame(frame)
			if err != nil {
				return nil, d.fail(err)
			}
			if ev == nil {
				continue
			}
			return ev, nil
		}

		if d.eof {
			return nil, d.fail(io.EOF)
		}

		n, err := d.src.Read(d.chunk)
		if ctxErr := d.ctx.Err(); ctxErr != nil {
			return nil, d.fail(ctxErr)
		}
		if n > 0 {
			d.buf += string(d.chunk[:n])
			if strings.Contains(d.buf, "\r\n") {
				d.buf = strings.ReplaceAll(d.buf, "\r\n", "\n")
			}
		}
		if errors.Is(err, io.EOF) {
			d.eof = true
			continue
		}
		if err != nil {
			log.Error("SSE read error: %v", err)
			return nil, d.fail(err)
		}
	}
}

// Close releases the response body. It is safe to call more than once.
func (d *Decoder) Close() error {
	d.stopAfter()
	return d.closeBody()
}

func (d *Decoder) fail(err error) error {
	d.err = err
	d.buf = ""
	d.Close()
	return err
}

// Decode reads every event from resp and passes it to fn in arrival order.
// It returns nil when the stream ends normally. The body is always released
// before Decode returns. An error returned by fn stops decoding and is
// returned as is.
func Decode(ctx context.Context, resp *http.Response, fn func(Event) error) error {
	d, err := NewDecoder(ctx, resp)
	if err != nil {
		return err
	}
	defer d.Close()

	for {
		ev, err := d.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

// parseFrame turns one blank-line-delimited frame into an event. It returns
// (nil, nil) for frames without data and for unknown event names.
func parseFrame(frame string) (Event, error) {
	name := "message"
	var data strings.Builder
	for _, line := range strings.Split(frame, "\n") {
		if strings.HasPrefix(line, "event:") {
			name = strings.TrimSpace(line[len("event:"):])
		}
		if strings.HasPrefix(line, "data:") {
			data.WriteString(strings.TrimSpace(line[len("data:"):]))
		}
	}
	if data.Len() == 0 {
		return nil, nil
	}

	// Malformed JSON leaves the target zero-valued, which is how an empty
	// payload decodes as well.
	payload := []byte(data.String())
	log.Stream(name, data.String())

	switch name {
	case "meta":
		var m Meta
		_ = json.Unmarshal(payload, &m)
		return m, nil
	case "delta":
		var raw struct {
			Delta any `json:"delta"`
		}
		_ = json.Unmarshal(payload, &raw)
		text := deltaText(raw.Delta)
		if text == "" {
			return nil, nil
		}
		return Delta{Text: text}, nil
	case "tool":
		var t Tool
		_ = json.Unmarshal(payload, &t)
		return t, nil
	case "done":
		var dn Done
		_ = json.Unmarshal(payload, &dn)
		return dn, nil
	case "ping":
		return Ping{}, nil
	case "error":
		var e errorPayload
		_ = json.Unmarshal(payload, &e)
		msg := e.Details
		if msg == "" {
			msg = e.Error
		}
		if msg == "" {
			msg = "Stream error"
		}
		return nil, &StreamError{Message: msg}
	}
	return nil, nil
}

// deltaText converts a delta payload value to text. Non-string scalars are
// rendered; empty, false and zero values carry no text.
func deltaText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == 0 {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "true"
		}
	}
	return ""
}
