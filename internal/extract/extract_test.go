package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"prose only", "Sure, here is an explanation without code.", ""},
		{
			name: "fenced python is annotated",
			in:   "intro text\n```python\nprint(1)\n```\nmore text",
			want: "// python\nprint(1)",
		},
		{
			name: "unfenced pine returned verbatim",
			in:   "//@version=5\nindicator(\"x\")\nplot(close)",
			want: "//@version=5\nindicator(\"x\")\nplot(close)",
		},
		{
			name: "pine fence not annotated",
			in:   "```pinescript\n//@version=5\nplot(close)\n```",
			want: "//@version=5\nplot(close)",
		},
		{
			name: "native dialect check ignores case",
			in:   "```Pine\n//@version=5\nplot(close)   \n\n```",
			want: "//@version=5\nplot(close)",
		},
		{
			name: "untagged fence",
			in:   "```\nx = 1\n```",
			want: "x = 1",
		},
		{
			name: "multiple blocks joined in order",
			in:   "a\n```js\nconsole.log(1)\n```\nb\n```pine\nplot(close)\n```\n",
			want: "// js\nconsole.log(1)" + BlockSeparator + "plot(close)",
		},
		{
			name: "unclosed fence after stop",
			in:   "Here:\n```pine\n//@version=5\nindicator(\"x\")\nplot(cl",
			want: "//@version=5\nindicator(\"x\")\nplot(cl",
		},
		{
			name: "unclosed fence keeps annotation",
			in:   "```ts\nconst a = 1;\n",
			want: "// ts\nconst a = 1;",
		},
		{
			name: "unclosed fence with blank body falls through",
			in:   "Working on it\n```python\n   \n",
			want: "",
		},
		{
			name: "unclosed fence without newline",
			in:   "```python",
			want: "",
		},
		{
			name: "heuristic starts at the version pragma",
			in:   "Here you go:\n//@version=5\nindicator(\"RSI\")\nplot(ta.rsi(close, 14))\n\n",
			want: "//@version=5\nindicator(\"RSI\")\nplot(ta.rsi(close, 14))",
		},
		{
			name: "heuristic starts at the earliest signature",
			in:   "Add this:\n  plot(close)\nand keep\nstrategy(\"s\")",
			want: "  plot(close)\nand keep\nstrategy(\"s\")",
		},
		{
			name: "mid-line call is not a signature",
			in:   "you should call plot(close) here",
			want: "",
		},
		{
			name: "instructions suppress fences",
			in:   "Ctrl+F: `plot(close)`\nReplace with:\n```pine\nplot(open)\n```",
			want: "",
		},
		{
			name: "instructions suppress heuristics",
			in:   "1. **CTRL+F:** indicator(\"x\")\nReplace with: indicator(\"y\")\n//@version=5",
			want: "",
		},
		{
			name: "marker mid-line is not an instruction",
			in:   "Press ctrl+f: in your browser.\n```js\nx()\n```",
			want: "// js\nx()",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.in))
		})
	}
}

// Re-fencing extracted code and extracting again yields the same code.
func TestCodeIdempotent(t *testing.T) {
	inputs := []string{
		"intro text\n```python\nprint(1)\n```\nmore text",
		"//@version=5\nindicator(\"x\")\nplot(close)",
		"a\n```js\nconsole.log(1)\n```\nb\n```pine\nplot(close)\n```\n",
		"Here:\n```pine\n//@version=5\nplot(cl",
		"Try:\n  hline(50)\n",
		"```c++\nint main() {}\n```",
	}
	for _, in := range inputs {
		first := Code(in)
		if !assert.NotEmpty(t, first, "input %q", in) {
			continue
		}
		refenced := "```\n" + first + "\n```"
		assert.Equal(t, first, Code(refenced), "input %q", in)
	}
}

func TestCodeTotal(t *testing.T) {
	inputs := []string{
		"",
		"```",
		"``````",
		"```\n```",
		"```\n",
		strings.Repeat("`", 100),
		"\n\n\n",
		"ctrl+f:",
		"CTRL+F:",
		"\xff\xfe invalid utf8 ```go\n\xff\n",
		"//@version=",
		"plot(",
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { Code(in) }, "input %q", in)
	}
	assert.Equal(t, "", Code("ctrl+f:"))
	assert.Equal(t, "", Code("  > Ctrl+F: something"))
}

func TestStripCodeBlocks(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"intro text\n```python\nprint(1)\n```\nmore text", "intro text\n\nmore text"},
		{"a\n\n```js\nx\n```\n\n\n\nb", "a\n\nb"},
		{"only\n```\ncode\n```", "only"},
		{"no code here  ", "no code here"},
		{"open ```js\nnot closed", "open ```js\nnot closed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripCodeBlocks(tt.in), "input %q", tt.in)
	}
}

func TestHasInstructions(t *testing.T) {
	yes := []string{
		"ctrl+f: foo",
		"Intro\nCtrl+F: `x`",
		"- ctrl+f: a",
		"> CTRL+F: a",
		"**Ctrl+F:** a",
		"2) ctrl+f: b",
		"### Ctrl+f: c",
	}
	no := []string{
		"",
		"press ctrl+f: in the browser",
		"ctrl+f without colon",
		"ctrl-f: dash",
	}
	for _, s := range yes {
		assert.True(t, HasInstructions(s), "%q", s)
	}
	for _, s := range no {
		assert.False(t, HasInstructions(s), "%q", s)
	}
}

func TestPineSignatureTable(t *testing.T) {
	assert.GreaterOrEqual(t, PatternVersion, 1)

	samples := map[string]string{
		"version-pragma": "  //@version=6",
		"declaration":    "Indicator (\"x\")",
		"plotting":       "plotshape(cond)",
	}
	seen := map[string]bool{}
	for _, p := range PineSignatures {
		assert.False(t, seen[p.Name], "duplicate pattern name %s", p.Name)
		seen[p.Name] = true

		sample, ok := samples[p.Name]
		if assert.True(t, ok, "no sample for %s", p.Name) {
			assert.True(t, p.Re.MatchString("prose\n"+sample), "%s should match %q", p.Name, sample)
			assert.False(t, p.Re.MatchString("prose "+strings.TrimSpace(sample)), "%s should be anchored to line start", p.Name)
		}
	}
	assert.Len(t, seen, len(samples))
}
