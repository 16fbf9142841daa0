package diff

import (
	"fmt"
	"slices"
	"strings"
)

// Edit replaces the lines matching Find with Content.
type Edit struct {
	Find    []string
	Content []string
}

// EditError describes why one edit could not be applied.
type EditError struct {
	Index  int
	Reason string
	Find   []string
	Err    error
}

func (e *EditError) Error() string {
	msg := fmt.Sprintf("edit %d: %s", e.Index+1, e.Reason)
	if len(e.Find) > 0 {
		msg += fmt.Sprintf(" (find: %q", e.Find[0])
		if len(e.Find) > 1 {
			msg += " ..."
		}
		msg += ")"
	}
	return msg
}

func (e *EditError) Unwrap() error { return e.Err }

type region struct {
	edit  int
	start int // first line, 0-indexed
	end   int // one past the last line
}

// ApplyEdits resolves every edit against lines and applies them together.
// Each Find block must occur exactly once, matched exactly or with trailing
// whitespace ignored. If any edit fails nothing is applied.
func ApplyEdits(lines []string, edits []Edit) ([]string, error) {
	regions := make([]region, 0, len(edits))
	for i, e := range edits {
		if len(e.Find) == 0 {
			return nil, &EditError{Index: i, Reason: "empty find text"}
		}
		pos, err := findAnchor(lines, e.Find)
		if err != nil {
			return nil, &EditError{Index: i, Reason: err.Error(), Find: e.Find, Err: err}
		}
		regions = append(regions, region{edit: i, start: pos, end: pos + len(e.Find)})
	}

	slices.SortFunc(regions, func(a, b region) int { return a.start - b.start })
	for i := 1; i < len(regions); i++ {
		prev, cur := regions[i-1], regions[i]
		if cur.start < prev.end {
			return nil, &EditError{
				Index:  cur.edit,
				Reason: fmt.Sprintf("overlaps edit %d (lines %d-%d and %d-%d)", prev.edit+1, prev.start+1, prev.end, cur.start+1, cur.end),
				Find:   edits[cur.edit].Find,
			}
		}
	}

	out := make([]string, 0, len(lines))
	at := 0
	for _, r := range regions {
		out = append(out, lines[at:r.start]...)
		out = append(out, edits[r.edit].Content...)
		at = r.end
	}
	return append(out, lines[at:]...), nil
}

// findAnchor returns the unique position of anchor in lines: exact match
// first, then with trailing whitespace ignored.
func findAnchor(lines, anchor []string) (int, error) {
	passes := []func(a, b string) bool{
		func(a, b string) bool { return a == b },
		func(a, b string) bool { return trimTrailing(a) == trimTrailing(b) },
	}
	for _, eq := range passes {
		matches := findConsecutive(lines, anchor, eq)
		switch {
		case len(matches) == 1:
			return matches[0], nil
		case len(matches) > 1:
			return 0, fmt.Errorf("%w (lines %s)", ErrNotUnique, lineNumbers(matches))
		}
	}
	return 0, ErrNotFound
}

// findConsecutive returns every position where anchor matches lines
// consecutively under eq.
func findConsecutive(lines, anchor []string, eq func(string, string) bool) []int {
	var matches []int
	for i := 0; i+len(anchor) <= len(lines); i++ {
		ok := true
		for j, a := range anchor {
			if !eq(lines[i+j], a) {
				ok = false
				break
			}
		}
		if ok {
			matches = append(matches, i)
		}
	}
	return matches
}

func trimTrailing(s string) string {
	return strings.TrimRight(s, " \t\r")
}

func lineNumbers(positions []int) string {
	parts := make([]string, len(positions))
	for i, p := range positions {
		parts[i] = fmt.Sprint(p + 1)
	}
	return strings.Join(parts, ", ")
}

// SplitLines splits text into lines, normalizing CRLF. A single trailing
// newline does not produce an empty last line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

// JoinLines is the inverse of SplitLines for text that had a trailing
// newline iff trailingNewline is set.
func JoinLines(lines []string, trailingNewline bool) string {
	if len(lines) == 0 {
		return ""
	}
	s := strings.Join(lines, "\n")
	if trailingNewline {
		s += "\n"
	}
	return s
}
