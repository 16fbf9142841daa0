package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/youruser/t4n/internal/session"
	"github.com/youruser/t4n/internal/state"
)

func TestEmbeddedCasesPass(t *testing.T) {
	cases, err := loadCases(testdataFS, "testdata")
	if err != nil {
		t.Fatalf("loadCases: %v", err)
	}
	if len(cases) < 10 {
		t.Fatalf("loaded %d cases, want at least 10", len(cases))
	}

	for _, rc := range cases {
		for _, chunk := range sweepChunks {
			t.Run(fmt.Sprintf("%s/chunk%d", rc.file, chunk), func(t *testing.T) {
				result, entry := runCase(context.Background(), rc, chunk)
				if !result.passed {
					t.Fatalf("%s: %s (state=%s canvas=%q reply=%q)", rc.Name, result.err, entry.State, entry.Canvas, entry.Reply)
				}
			})
		}
	}
}

func TestLoadCasesDefaultsNameToFile(t *testing.T) {
	fsys := fstest.MapFS{
		"b.yaml":     {Data: []byte("message: hi\nexpect:\n  state: completed\n")},
		"a.yaml":     {Data: []byte("name: First\nmessage: hi\n")},
		"notes.txt":  {Data: []byte("ignored")},
		"sub/c.yaml": {Data: []byte("message: nested\n")},
	}
	cases, err := loadCases(fsys, ".")
	if err != nil {
		t.Fatalf("loadCases: %v", err)
	}
	if len(cases) != 2 {
		t.Fatalf("got %d cases, want 2", len(cases))
	}
	if cases[0].Name != "First" || cases[1].Name != "b" || cases[1].Expect.State != "completed" {
		t.Fatalf("cases = %+v", cases)
	}
}

func TestLoadCasesRejectsBadYAML(t *testing.T) {
	fsys := fstest.MapFS{"bad.yaml": {Data: []byte("message: [unclosed\n")}}
	if _, err := loadCases(fsys, "."); err == nil || !strings.Contains(err.Error(), "bad.yaml") {
		t.Fatalf("expected parse error naming the file, got %v", err)
	}
}

func TestChunkReader(t *testing.T) {
	r := &chunkReader{r: strings.NewReader("héllo"), n: 2}
	buf := make([]byte, 16)
	var reads []string
	for {
		n, err := r.Read(buf)
		if n > 0 {
			reads = append(reads, string(buf[:n]))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if n > 2 {
			t.Fatalf("read %d bytes, want at most 2", n)
		}
	}
	if got := strings.Join(reads, ""); got != "héllo" {
		t.Fatalf("reassembled %q", got)
	}
}

func TestCheckReportsFirstDifference(t *testing.T) {
	st := state.New()
	st.Canvas.Write("a\nb")
	entries := []state.Entry{{Content: "q"}, {Content: "answer"}}
	res := session.Result{State: session.Completed}

	canvas := "a\nc"
	if got := check(expect{State: "completed", Canvas: &canvas}, res, st, entries); !strings.Contains(got, "line 2") {
		t.Fatalf("check = %q, want canvas mismatch at line 2", got)
	}
	if got := check(expect{State: "failed"}, res, st, entries); !strings.HasPrefix(got, "state:") {
		t.Fatalf("check = %q, want state mismatch", got)
	}
	if got := check(expect{Retryable: true}, res, st, entries); !strings.HasPrefix(got, "retryable:") {
		t.Fatalf("check = %q, want retryable mismatch", got)
	}
	reply := "answer"
	if got := check(expect{State: "completed", Reply: &reply, Entries: 2}, res, st, entries); got != "" {
		t.Fatalf("check = %q, want match", got)
	}
}

func TestDescribeMismatch(t *testing.T) {
	tests := []struct {
		got, want string
		contains  string
	}{
		{"a\nb", "a\nc", "line 2"},
		{"a", "a\nextra", "line 2"},
		{strings.Repeat("x", 80), "y", "..."},
	}
	for _, tt := range tests {
		if got := describeMismatch(tt.got, tt.want); !strings.Contains(got, tt.contains) {
			t.Fatalf("describeMismatch(%q, %q) = %q, want it to contain %q", tt.got, tt.want, got, tt.contains)
		}
	}
}

func TestNormalizeContent(t *testing.T) {
	if got := normalizeContent("a  \nb\t\n"); got != "a\nb\n" {
		t.Fatalf("normalizeContent = %q", got)
	}
}
