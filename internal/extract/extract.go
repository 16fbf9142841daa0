// Package extract finds source code inside streamed assistant text.
package extract

import (
	"strings"
	"unicode"
)

// BlockSeparator is placed between fenced blocks when several are joined.
const BlockSeparator = "\n\n// ------------------------\n\n"

// Code returns the best-guess code contained in text, or "" when there is
// none. It is pure and safe to call on every delta. In order of preference:
// every closed fence joined by BlockSeparator; the body of an unclosed
// fence; unfenced Pine Script starting at its earliest signature line.
// Text holding find-and-replace instructions never yields code.
func Code(text string) string {
	if HasInstructions(text) {
		return ""
	}

	if matches := closedFence.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		blocks := make([]string, 0, len(matches))
		for _, m := range matches {
			blocks = append(blocks, annotate(m[1], trimRight(m[2])))
		}
		return strings.Join(blocks, BlockSeparator)
	}

	if code := unclosedFence(text); code != "" {
		return code
	}

	return pineHeuristic(text)
}

// HasInstructions reports whether text contains a find-and-replace
// instruction line.
func HasInstructions(text string) bool {
	return InstructionMarker.MatchString(text)
}

// StripCodeBlocks removes closed fenced blocks from text and collapses the
// blank lines left behind.
func StripCodeBlocks(text string) string {
	text = strippedFence.ReplaceAllString(text, "")
	text = excessBlank.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// unclosedFence handles text cut off inside a fence, e.g. by a stop.
func unclosedFence(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return ""
	}
	after := text[start+3:]
	nl := strings.IndexByte(after, '\n')
	if nl < 0 {
		return ""
	}
	body := trimRight(after[nl+1:])
	if strings.TrimSpace(body) == "" {
		return ""
	}
	return annotate(strings.TrimSpace(after[:nl]), body)
}

func pineHeuristic(text string) string {
	start := -1
	for _, p := range PineSignatures {
		loc := p.Re.FindStringIndex(text)
		if loc != nil && (start < 0 || loc[0] < start) {
			start = loc[0]
		}
	}
	if start < 0 {
		return ""
	}
	body := trimRight(text[start:])
	if strings.TrimSpace(body) == "" {
		return ""
	}
	return body
}

func annotate(lang, body string) string {
	if lang == "" || nativeDialects[strings.ToLower(lang)] {
		return body
	}
	return "// " + lang + "\n" + body
}

func trimRight(s string) string {
	return strings.TrimRightFunc(s, unicode.IsSpace)
}
