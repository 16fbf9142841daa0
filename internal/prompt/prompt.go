// Package prompt builds the text sent to the chat API for a user message.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/youruser/t4n/internal/llm"
)

// DefaultMaxCodeContext is how many characters of existing code are sent
// when no limit is configured.
const DefaultMaxCodeContext = 120000

const titleLength = 32

// Attachment is a screenshot the user attached, with any text recognized
// in it.
type Attachment struct {
	Name    string `json:"name,omitempty"`
	OCRText string `json:"ocr_text,omitempty"`
}

// Request is everything that shapes one outgoing message.
type Request struct {
	Text           string
	Attachments    []Attachment
	Code           string // code the assistant may see
	Access         bool   // user granted access to Code
	MaxCodeContext int
}

// Built is the text to send and how it was derived.
type Built struct {
	Text      string `json:"text"`
	WantsCode bool   `json:"wants_code"`
	Intent    Intent `json:"intent"`
	Tokens    int    `json:"tokens"`
}

// wantsCode reports whether a reply should be treated as code: an
// explicit code request, or any message once the user has shared non-blank
// code.
func wantsCode(in Intent, hasCode bool) bool {
	// Edit and error-fix requests only count with shared code, which
	// already qualifies on its own.
	return in.CodeRequest || hasCode
}

// Build assembles the outgoing text for r. Screenshot context is appended
// to the user text first. In code mode the text is framed as a user
// request and, when access was granted, followed by the existing code.
func Build(r Request) Built {
	text := strings.TrimSpace(r.Text + OCRContext(r.Attachments))
	hasCode := r.Access && strings.TrimSpace(r.Code) != ""

	b := Built{Intent: Classify(text)}
	b.WantsCode = wantsCode(b.Intent, hasCode)

	if !b.WantsCode {
		b.Text = text
	} else {
		var sb strings.Builder
		sb.WriteString("USER REQUEST:\n")
		sb.WriteString(text)
		if hasCode {
			sb.WriteString("\n\n")
			sb.WriteString(codeContext(r.Code, r.MaxCodeContext))
		}
		b.Text = sb.String()
	}
	b.Tokens = llm.EstimateTokens(b.Text)
	return b
}

func codeContext(code string, limit int) string {
	if limit <= 0 {
		limit = DefaultMaxCodeContext
	}
	return fmt.Sprintf("EXISTING CODE (you MUST either give Ctrl+F find-and-replace instructions OR output the FULL corrected file — NEVER output a partial truncated file):\n```pinescript\n%s\n```\n", truncateRunes(code, limit))
}

// OCRContext renders attachments as a note appended to the user text.
// Recognized text is quoted as a compiler error; attachments without text
// only announce the screenshot.
func OCRContext(attachments []Attachment) string {
	var parts []string
	for i, a := range attachments {
		ocr := strings.TrimSpace(a.OCRText)
		if ocr == "" {
			continue
		}
		name := a.Name
		if name == "" {
			name = fmt.Sprintf("image_%d", i+1)
		}
		parts = append(parts, fmt.Sprintf("--- %s ---\n%s", name, ocr))
	}

	switch {
	case len(parts) > 0:
		return "\n\n[PINE SCRIPT COMPILER ERROR - exact text from screenshot]\n" +
			strings.Join(parts, "\n\n") +
			"\n[END ERROR]\nFix ONLY the error shown above. Do not change anything else."
	case len(attachments) > 0:
		return "\n\n[SCREENSHOT ATTACHED - user is showing a compiler error]\n"
	}
	return ""
}

// Title derives a conversation title from the first user message. Blank
// text has no title.
func Title(text string) string {
	t := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(t) > titleLength {
		return truncateRunes(t, titleLength) + "…"
	}
	return t
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
