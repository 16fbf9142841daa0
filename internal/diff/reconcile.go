// Package diff merges assistant-produced code into existing code.
//
// Reconcile handles whole-file, marked-section and truncated patches.
// ApplyEdits and Replace apply find-and-replace edits line by line.
package diff

import (
	"regexp"
	"strings"
	"unicode"
)

// Section markers the assistant wraps a partial replacement in.
const (
	ReplaceStartMarker = "// --- REPLACE SECTION STARTING HERE ---"
	ReplaceEndMarker   = "// --- REST OF CODE REMAINS UNCHANGED ---"
	PatchAddedMarker   = "// PATCH ADDED:"
)

// TruncationMarkers are comments meaning "the rest of the file is
// unchanged".
var TruncationMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)//\s*\.\.\.\s*\(rest of the code.*?\)`),
	regexp.MustCompile(`(?i)//\s*\.\.\.\s*rest remains`),
	regexp.MustCompile(`(?i)//\s*\.\.\.\s*\(remaining code`),
	regexp.MustCompile(`(?i)//\s*rest of the (?:code|script|file) (?:remains|stays|unchanged)`),
	regexp.MustCompile(`(?i)//\s*\.\.\.\s*unchanged`),
	regexp.MustCompile(`(?i)//\s*\.\.\.\s*same as before`),
}

// truncationOverlap is how many lines before the estimated splice point
// the position fallback re-includes from the existing code.
const truncationOverlap = 3

// minPrefixAnchor is the shortest existing line accepted as a prefix
// anchor for a marked section.
const minPrefixAnchor = 4

// Reconcile merges newCode into existing and returns the new authoritative
// text. A blank existing text returns newCode unchanged. newCode holding
// both section markers replaces that section in place; newCode holding a
// truncation marker is treated as a new head for existing; anything else
// replaces existing entirely. When a patch cannot be located the result
// keeps all of existing rather than dropping content.
func Reconcile(existing, newCode string) string {
	if strings.TrimSpace(existing) == "" {
		return newCode
	}
	if section, ok := markedSection(newCode); ok {
		return spliceSection(existing, section)
	}
	if idx := truncationIndex(newCode); idx >= 0 {
		return spliceHead(existing, strings.TrimRightFunc(newCode[:idx], unicode.IsSpace))
	}
	return newCode
}

// markedSection returns the text between the start marker and the first
// end marker after it.
func markedSection(code string) (string, bool) {
	start := strings.Index(code, ReplaceStartMarker)
	if start < 0 {
		return "", false
	}
	start += len(ReplaceStartMarker)
	end := strings.Index(code[start:], ReplaceEndMarker)
	if end < 0 {
		return "", false
	}
	return trimBlankLines(code[start : start+end]), true
}

// trimBlankLines drops blank lines around s and trailing whitespace, keeping
// the indentation of the first line.
func trimBlankLines(s string) string {
	s = strings.TrimRightFunc(s, unicode.IsSpace)
	for s != "" {
		nl := strings.IndexByte(s, '\n')
		if nl < 0 || strings.TrimSpace(s[:nl]) != "" {
			break
		}
		s = s[nl+1:]
	}
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return s
}

func spliceSection(existing, section string) string {
	if section == "" {
		return existing
	}

	changed := strings.Split(section, "\n")
	lines := strings.Split(existing, "\n")

	var first string
	for _, l := range changed {
		if t := strings.TrimSpace(l); t != "" {
			first = t
			break
		}
	}

	at := findSectionAnchor(lines, first)
	if at < 0 {
		return existing + "\n\n" + PatchAddedMarker + "\n" + section
	}

	end := min(at+len(changed), len(lines))
	out := make([]string, 0, len(lines)-(end-at)+len(changed))
	out = append(out, lines[:at]...)
	out = append(out, changed...)
	out = append(out, lines[end:]...)
	return strings.Join(out, "\n")
}

// findSectionAnchor locates the line a changed section starts at: first a
// line containing first, else the line whose text is the longest prefix of
// first (an edited version of that line).
func findSectionAnchor(lines []string, first string) int {
	if first == "" {
		return -1
	}
	for i, l := range lines {
		if strings.Contains(strings.TrimSpace(l), first) {
			return i
		}
	}

	best, bestLen := -1, 0
	for i, l := range lines {
		t := strings.TrimSpace(l)
		if len(t) >= minPrefixAnchor && len(t) > bestLen && strings.HasPrefix(first, t) {
			best, bestLen = i, len(t)
		}
	}
	return best
}

// truncationIndex returns the position of the earliest truncation marker,
// or -1.
func truncationIndex(code string) int {
	idx := -1
	for _, re := range TruncationMarkers {
		if loc := re.FindStringIndex(code); loc != nil && (idx < 0 || loc[0] < idx) {
			idx = loc[0]
		}
	}
	return idx
}

// spliceHead joins head with the part of existing that follows it. The tail
// starts after the last existing line equal to head's last non-blank line;
// failing that, a position estimate with a small overlap is used.
func spliceHead(existing, head string) string {
	if strings.TrimSpace(head) == "" {
		return existing
	}

	lines := strings.Split(existing, "\n")
	headLines := strings.Split(head, "\n")

	var last string
	for i := len(headLines) - 1; i >= 0; i-- {
		if t := strings.TrimSpace(headLines[i]); t != "" {
			last = t
			break
		}
	}

	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) == last {
			return head + "\n" + strings.Join(lines[i+1:], "\n")
		}
	}

	from := max(0, len(headLines)-truncationOverlap)
	if from >= len(lines) {
		return head + "\n"
	}
	if strings.Contains(head, strings.TrimSpace(lines[from])) {
		skip := min(len(headLines), len(lines))
		return head + "\n" + strings.Join(lines[skip:], "\n")
	}
	return head + "\n" + strings.Join(lines[from:], "\n")
}
