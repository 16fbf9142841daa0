package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want Intent
	}{
		{"write a pine script for RSI", Intent{CodeRequest: true}},
		{"make the line blue", Intent{Edit: true}},
		{"it says undeclared identifier, please fix", Intent{ErrorFix: true, ErrorReport: true}},
		{"what's the weather like", Intent{}},
		{"the scripts folder", Intent{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.text), "text %q", tt.text)
	}
}

func TestBuildWantsCode(t *testing.T) {
	tests := []struct {
		req  Request
		want bool
	}{
		{Request{Text: "write some python"}, true},
		{Request{Text: "make it blue", Code: "plot(close)"}, false},
		{Request{Text: "make it blue", Code: "   ", Access: true}, false},
		{Request{Text: "make it blue", Code: "plot(close)", Access: true}, true},
		{Request{Text: "hello", Code: "plot(close)", Access: true}, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Build(tt.req).WantsCode, "request %+v", tt.req)
	}
}

func TestBuildPlain(t *testing.T) {
	b := Build(Request{Text: "  how are you?  "})
	assert.False(t, b.WantsCode)
	assert.Equal(t, "how are you?", b.Text)
	assert.Greater(t, b.Tokens, 0)
}

func TestBuildCodeRequestWithoutAccess(t *testing.T) {
	b := Build(Request{Text: "write an RSI script", Code: "secret()"})
	assert.True(t, b.WantsCode)
	assert.Equal(t, "USER REQUEST:\nwrite an RSI script", b.Text)
	assert.NotContains(t, b.Text, "secret()")
}

func TestBuildWithExistingCode(t *testing.T) {
	b := Build(Request{Text: "make it blue", Code: "plot(close)", Access: true})
	require.True(t, b.WantsCode)
	assert.True(t, strings.HasPrefix(b.Text, "USER REQUEST:\nmake it blue\n\nEXISTING CODE ("))
	assert.True(t, strings.HasSuffix(b.Text, "```pinescript\nplot(close)\n```\n"))
}

func TestBuildTruncatesCode(t *testing.T) {
	code := strings.Repeat("é", 50)
	b := Build(Request{Text: "fix", Code: code, Access: true, MaxCodeContext: 10})
	assert.Contains(t, b.Text, "```pinescript\n"+strings.Repeat("é", 10)+"\n```")
}

func TestOCRContext(t *testing.T) {
	assert.Equal(t, "", OCRContext(nil))
	assert.Equal(t, "\n\n[SCREENSHOT ATTACHED - user is showing a compiler error]\n",
		OCRContext([]Attachment{{Name: "a.png"}}))

	got := OCRContext([]Attachment{
		{Name: "err.png", OCRText: " line 3: undeclared identifier 'x' "},
		{OCRText: ""},
		{OCRText: "mismatched input"},
	})
	want := "\n\n[PINE SCRIPT COMPILER ERROR - exact text from screenshot]\n" +
		"--- err.png ---\nline 3: undeclared identifier 'x'\n\n--- image_3 ---\nmismatched input" +
		"\n[END ERROR]\nFix ONLY the error shown above. Do not change anything else."
	assert.Equal(t, want, got)
}

func TestBuildWithScreenshot(t *testing.T) {
	b := Build(Request{
		Text:        "",
		Attachments: []Attachment{{Name: "s.png", OCRText: "Cannot call 'plot'"}},
		Code:        "plot(x)",
		Access:      true,
	})
	assert.True(t, b.WantsCode)
	assert.True(t, b.Intent.ErrorFix)
	assert.True(t, strings.HasPrefix(b.Text, "USER REQUEST:\n[PINE SCRIPT COMPILER ERROR"))
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "", Title("  \n\t "))
	assert.Equal(t, "short title", Title("  short \n  title "))
	long := "Build me an indicator that plots RSI and MACD together"
	got := Title(long)
	assert.Equal(t, long[:32]+"…", got)
	assert.Equal(t, strings.Repeat("ü", 32)+"…", Title(strings.Repeat("ü", 40)))
}

func TestPatterns(t *testing.T) {
	assert.GreaterOrEqual(t, PatternVersion, 1)
	seen := map[string]bool{}
	for _, p := range Patterns() {
		assert.NotNil(t, p.Re, p.Name)
		assert.False(t, seen[p.Name], "duplicate pattern %s", p.Name)
		seen[p.Name] = true
	}
	for _, name := range []string{"code-request", "edit-request", "error-fix", "error-report", "version-pragma"} {
		assert.True(t, seen[name], "missing pattern %s", name)
	}
}
