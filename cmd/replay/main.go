// Command replay feeds recorded chat streams through the session controller
// and checks the resulting canvas and transcript against each fixture's
// expectations.
//
//	go run ./cmd/replay
//	go run ./cmd/replay --case 4 --chunk 1
//	go run ./cmd/replay --sweep --dir ./my-fixtures
package main

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/youruser/t4n/internal/session"
	"github.com/youruser/t4n/internal/state"
)

//go:embed testdata/*.yaml
var testdataFS embed.FS

// sweepChunks are the read sizes every case is replayed at with --sweep.
// 0 delivers the body in one read.
var sweepChunks = []int{0, 1, 2, 3, 7, 64}

// replayCase is one fixture file.
type replayCase struct {
	Name           string `yaml:"name"`
	Message        string `yaml:"message"`
	ConversationID string `yaml:"conversation_id"`
	DisplayMode    string `yaml:"display_mode"`
	Canvas         string `yaml:"canvas"`
	Locked         bool   `yaml:"locked"`
	Status         int    `yaml:"status"`
	Stream         string `yaml:"stream"`
	Expect         expect `yaml:"expect"`

	file string
}

type expect struct {
	State          string  `yaml:"state"`
	Retryable      bool    `yaml:"retryable"`
	ConversationID string  `yaml:"conversation_id"`
	Canvas         *string `yaml:"canvas"`
	CanvasVisible  *bool   `yaml:"canvas_visible"`
	Reply          *string `yaml:"reply"`
	Last           *string `yaml:"last"`
	Entries        int     `yaml:"entries"`
}

type caseResult struct {
	name    string
	chunk   int
	passed  bool
	elapsed time.Duration
	err     string
}

// logEntry is the JSON structure written to log files.
type logEntry struct {
	Case      string  `json:"case"`
	Chunk     int     `json:"chunk"`
	Passed    bool    `json:"passed"`
	Error     string  `json:"error,omitempty"`
	Elapsed   float64 `json:"elapsed_seconds"`
	State     string  `json:"state"`
	Canvas    string  `json:"canvas"`
	Reply     string  `json:"reply"`
	Retryable bool    `json:"retryable"`
}

func main() {
	app := &cli.App{
		Name:  "replay",
		Usage: "Replay recorded chat streams through the session controller",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "case", Usage: "Run only case `N` (1-based)"},
			&cli.IntFlag{Name: "chunk", Usage: "Deliver the stream `N` bytes per read (0 = whole body)"},
			&cli.BoolFlag{Name: "sweep", Usage: "Replay every case at several read sizes"},
			&cli.StringFlag{Name: "dir", Usage: "Load *.yaml fixtures from `DIR` instead of the built-in set"},
			&cli.StringFlag{Name: "log-dir", Usage: "Write one JSON result per run to `DIR`"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	var fsys fs.FS = testdataFS
	dir := "testdata"
	if d := c.String("dir"); d != "" {
		fsys, dir = os.DirFS(d), "."
	}
	cases, err := loadCases(fsys, dir)
	if err != nil {
		return err
	}
	if len(cases) == 0 {
		return cli.Exit("no fixtures found", 1)
	}

	chunks := []int{c.Int("chunk")}
	if c.Bool("sweep") {
		chunks = sweepChunks
	}

	logDir := c.String("log-dir")
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
	}

	filter := c.Int("case")
	fmt.Printf("stream replay: %d cases, read sizes %v\n", len(cases), chunks)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	passed, total := 0, 0
	for i, rc := range cases {
		if filter > 0 && i+1 != filter {
			continue
		}
		for _, chunk := range chunks {
			total++
			result, entry := runCase(c.Context, rc, chunk)
			if result.passed {
				passed++
			}
			printResult(i, len(cases), result)
			if logDir != "" {
				writeLog(logDir, i+1, entry)
			}
		}
	}

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Result: %d/%d passed\n", passed, total)
	if passed != total {
		return cli.Exit("", 1)
	}
	return nil
}

// loadCases reads every *.yaml fixture in dir, in file name order.
func loadCases(fsys fs.FS, dir string) ([]replayCase, error) {
	names, err := fs.Glob(fsys, path.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	cases := make([]replayCase, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		var rc replayCase
		if err := yaml.Unmarshal(data, &rc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		rc.file = path.Base(name)
		if rc.Name == "" {
			rc.Name = strings.TrimSuffix(rc.file, ".yaml")
		}
		cases = append(cases, rc)
	}
	return cases, nil
}

func runCase(ctx context.Context, rc replayCase, chunk int) (caseResult, logEntry) {
	result := caseResult{name: rc.Name, chunk: chunk}
	start := time.Now()

	st := state.New()
	if rc.Canvas != "" {
		st.Canvas.Write(rc.Canvas)
	}
	if rc.Locked {
		st.Canvas.Lock()
	}

	ctrl := session.New(replayTransport{body: rc.Stream, status: rc.Status, chunk: chunk}, st, nil, session.Options{
		DisplayMode: rc.DisplayMode,
	})
	res := ctrl.Send(ctx, session.Payload{Text: rc.Message, ConversationID: rc.ConversationID})
	result.elapsed = time.Since(start)

	entries := st.Transcript.Entries()
	var reply string
	if len(entries) > 1 {
		reply = entries[1].Content
	}
	entry := logEntry{
		Case:      rc.file,
		Chunk:     chunk,
		Elapsed:   result.elapsed.Seconds(),
		State:     res.State.String(),
		Canvas:    st.Canvas.Read(),
		Reply:     reply,
		Retryable: res.Retryable,
	}

	result.err = check(rc.Expect, res, st, entries)
	result.passed = result.err == ""
	entry.Passed, entry.Error = result.passed, result.err
	return result, entry
}

// check compares the outcome of a replay with want and describes the first
// difference, or returns "" when everything matches.
func check(want expect, res session.Result, st *state.State, entries []state.Entry) string {
	if want.State != "" && res.State.String() != want.State {
		return fmt.Sprintf("state: got %s, want %s", res.State, want.State)
	}
	if res.Retryable != want.Retryable {
		return fmt.Sprintf("retryable: got %v, want %v", res.Retryable, want.Retryable)
	}
	if want.ConversationID != "" && res.ConversationID != want.ConversationID {
		return fmt.Sprintf("conversation: got %q, want %q", res.ConversationID, want.ConversationID)
	}
	if want.Canvas != nil {
		if got := st.Canvas.Read(); normalizeContent(got) != normalizeContent(*want.Canvas) {
			return "canvas: " + describeMismatch(normalizeContent(got), normalizeContent(*want.Canvas))
		}
	}
	if want.CanvasVisible != nil && st.Canvas.Visible() != *want.CanvasVisible {
		return fmt.Sprintf("canvas visible: got %v, want %v", st.Canvas.Visible(), *want.CanvasVisible)
	}
	if want.Entries > 0 && len(entries) != want.Entries {
		return fmt.Sprintf("transcript: got %d entries, want %d", len(entries), want.Entries)
	}
	if want.Reply != nil {
		if len(entries) < 2 {
			return "reply: no assistant entry"
		}
		if got := entries[1].Content; got != *want.Reply {
			return "reply: " + describeMismatch(got, *want.Reply)
		}
	}
	if want.Last != nil {
		if got := entries[len(entries)-1].Content; got != *want.Last {
			return "last entry: " + describeMismatch(got, *want.Last)
		}
	}
	return ""
}

// replayTransport answers every message with a recorded body.
type replayTransport struct {
	body   string
	status int
	chunk  int
}

func (t replayTransport) StreamMessage(ctx context.Context, message, conversationID string) (*http.Response, error) {
	status := t.status
	if status == 0 {
		status = http.StatusOK
	}
	var r io.Reader = strings.NewReader(t.body)
	if t.chunk > 0 {
		r = &chunkReader{r: r, n: t.chunk}
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
		Body:       io.NopCloser(r),
	}, nil
}

// chunkReader returns at most n bytes per Read, splitting frames and
// multi-byte characters the way a slow network does.
type chunkReader struct {
	r io.Reader
	n int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(p) > c.n {
		p = p[:c.n]
	}
	return c.r.Read(p)
}

func writeLog(logDir string, caseNum int, entry logEntry) {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal log entry: %v\n", err)
		return
	}
	logPath := filepath.Join(logDir, fmt.Sprintf("%02d_chunk%d.json", caseNum, entry.Chunk))
	if err := os.WriteFile(logPath, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write log: %v\n", err)
	}
}

func printResult(index, total int, r caseResult) {
	label := fmt.Sprintf("[%d/%d] %s", index+1, total, r.name)
	if r.chunk > 0 {
		label += fmt.Sprintf(" (%dB reads)", r.chunk)
	}

	// Pad with dots to align result
	dots := 56 - len(label)
	if dots < 3 {
		dots = 3
	}

	if r.passed {
		fmt.Printf("%s %s PASS  (%s)\n", label, strings.Repeat(".", dots), r.elapsed.Round(time.Microsecond))
	} else {
		fmt.Printf("%s %s FAIL  (%s)\n", label, strings.Repeat(".", dots), r.elapsed.Round(time.Microsecond))
		fmt.Printf("      %s\n", r.err)
	}
}

// normalizeContent trims trailing whitespace from each line for comparison.
func normalizeContent(content string) string {
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.Join(lines, "\n")
}

// describeMismatch finds the first differing line between got and want.
func describeMismatch(got, want string) string {
	gotLines := strings.Split(got, "\n")
	wantLines := strings.Split(want, "\n")

	for i := 0; i < max(len(gotLines), len(wantLines)); i++ {
		var g, w string
		if i < len(gotLines) {
			g = gotLines[i]
		}
		if i < len(wantLines) {
			w = wantLines[i]
		}
		if g != w {
			if len(g) > 60 {
				g = g[:57] + "..."
			}
			if len(w) > 60 {
				w = w[:57] + "..."
			}
			return fmt.Sprintf("mismatch at line %d: got %q, want %q", i+1, g, w)
		}
	}
	return "mismatch (unknown difference)"
}
