package diff

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound  = errors.New("find text not found")
	ErrNotUnique = errors.New("find text not unique")
)

// Replace substitutes the single occurrence of find in content with repl.
// Matching is tried with decreasing strictness:
//  1. exact lines
//  2. trailing whitespace ignored
//  3. surrounding whitespace ignored, repl re-indented to the match
//  4. raw substring
//
// The first pass with any match decides; more than one match there is
// ErrNotUnique.
func Replace(content, find, repl string) (string, error) {
	findLines := SplitLines(find)
	if len(findLines) == 0 || strings.TrimSpace(find) == "" {
		return "", fmt.Errorf("%w: empty find text", ErrNotFound)
	}

	trailing := strings.HasSuffix(content, "\n")
	lines := SplitLines(content)
	replLines := SplitLines(repl)

	passes := []func(a, b string) bool{
		func(a, b string) bool { return a == b },
		func(a, b string) bool { return trimTrailing(a) == trimTrailing(b) },
		func(a, b string) bool { return strings.TrimSpace(a) == strings.TrimSpace(b) },
	}
	for pass, eq := range passes {
		matches := findConsecutive(lines, findLines, eq)
		if len(matches) == 0 {
			continue
		}
		if len(matches) > 1 {
			return "", fmt.Errorf("%w (%d matches at lines %s)", ErrNotUnique, len(matches), lineNumbers(matches))
		}

		pos := matches[0]
		insert := replLines
		if pass == 2 {
			insert = reindent(replLines, leadingWhitespace(findLines[0]), leadingWhitespace(lines[pos]))
		}

		out := make([]string, 0, len(lines)-len(findLines)+len(insert))
		out = append(out, lines[:pos]...)
		out = append(out, insert...)
		out = append(out, lines[pos+len(findLines):]...)
		return JoinLines(out, trailing && len(out) > 0), nil
	}

	return replaceSubstring(content, find, repl)
}

func replaceSubstring(content, find, repl string) (string, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	find = strings.ReplaceAll(find, "\r\n", "\n")

	switch strings.Count(content, find) {
	case 0:
		return "", ErrNotFound
	case 1:
		return strings.Replace(content, find, strings.ReplaceAll(repl, "\r\n", "\n"), 1), nil
	default:
		return "", fmt.Errorf("%w (multiple substring matches)", ErrNotUnique)
	}
}

func leadingWhitespace(s string) string {
	return s[:len(s)-len(strings.TrimLeft(s, " \t"))]
}

// reindent moves lines from the indentation the find text used (from) to
// the indentation actually found in the file (to). Lines that do not start
// with from are left alone, as are blank lines.
func reindent(lines []string, from, to string) []string {
	if from == to {
		return lines
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		switch {
		case strings.TrimSpace(l) == "":
			out[i] = l
		case strings.HasPrefix(l, from):
			out[i] = to + l[len(from):]
		default:
			out[i] = l
		}
	}
	return out
}
