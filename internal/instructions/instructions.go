// Package instructions parses the assistant's ctrl+f find-and-replace
// instructions and applies them to canvas text.
package instructions

import (
	"regexp"
	"strings"

	"github.com/youruser/t4n/internal/diff"
	"github.com/youruser/t4n/internal/extract"
	"github.com/youruser/t4n/internal/logging"
)

var log = logging.Get()

// Action says what to do with an instruction's content once the find text
// is located.
type Action int

const (
	Replace Action = iota
	AddAbove
	AddBelow
)

func (a Action) String() string {
	switch a {
	case AddAbove:
		return "ADD ABOVE"
	case AddBelow:
		return "ADD BELOW"
	default:
		return "REPLACE"
	}
}

// Instruction is one FIND block and the content to replace it with or
// insert next to it. Content may be empty, meaning delete the found lines.
type Instruction struct {
	Action  Action
	Find    string
	Content string
}

var (
	findHeader   = regexp.MustCompile(`(?i)^[\s>*_#-]*(?:\d+[.)]\s*)?[*_]*ctrl\+f:[*_]*\s*(.*)$`)
	actionHeader = regexp.MustCompile(`(?i)^[\s>*_#-]*(replace with|add above|add below):[*_]*\s*(.*)$`)
	fenceTag     = regexp.MustCompile("```[\\w+-]*")
	fenceLine    = regexp.MustCompile("^```[\\w+-]*$")
)

// Parse returns the instructions in text, in order. Text without the
// ctrl+f marker has none. Instructions with an empty find text are dropped.
func Parse(text string) []Instruction {
	if !extract.HasInstructions(text) {
		return nil
	}

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	var out []Instruction
	for i := 0; i < len(lines); {
		m := findHeader.FindStringSubmatch(strings.TrimSpace(lines[i]))
		if m == nil {
			i++
			continue
		}
		i++

		var find []string
		if v := cleanInline(m[1]); v != "" {
			find = append(find, v)
		}
		for i < len(lines) && !isHeader(lines[i]) {
			if v := cleanInline(lines[i]); v != "" {
				find = append(find, v)
			}
			i++
		}

		ins := Instruction{Action: Replace}
		var content []string
		if i < len(lines) {
			if a := actionHeader.FindStringSubmatch(strings.TrimSpace(lines[i])); a != nil {
				ins.Action = parseAction(a[1])
				if v := cleanInline(a[2]); v != "" {
					content = append(content, v)
				}
				i++
			}
		}

		for i < len(lines) {
			t := strings.TrimSpace(lines[i])
			if findHeader.MatchString(t) {
				break
			}
			i++
			if fenceLine.MatchString(t) {
				if len(content) > 0 {
					break
				}
				continue
			}
			l := fenceTag.ReplaceAllString(lines[i-1], "")
			if strings.TrimSpace(l) != "" || len(content) > 0 {
				content = append(content, l)
			}
		}

		ins.Find = strings.Join(find, "\n")
		ins.Content = strings.Join(dedent(trimBlank(content)), "\n")
		if ins.Find != "" {
			out = append(out, ins)
		}
	}
	return out
}

// Apply applies instrs to code and returns the result. All find texts are
// first resolved together against exact or trailing-whitespace-trimmed
// lines; if any cannot be resolved that way they are applied one at a time
// with whitespace-tolerant matching instead. Failure returns a
// *diff.EditError and leaves nothing applied.
func Apply(code string, instrs []Instruction) (string, error) {
	if len(instrs) == 0 {
		return code, nil
	}

	edits := make([]diff.Edit, len(instrs))
	for i, ins := range instrs {
		edits[i] = ins.edit()
	}
	out, err := diff.ApplyEdits(diff.SplitLines(code), edits)
	if err == nil {
		return diff.JoinLines(out, strings.HasSuffix(code, "\n")), nil
	}
	log.Debug("instructions: anchored apply failed, retrying sequentially: %v", err)

	result := code
	for i, ins := range instrs {
		next, err := diff.Replace(result, ins.Find, ins.replacement())
		if err != nil {
			return "", &diff.EditError{Index: i, Reason: err.Error(), Find: diff.SplitLines(ins.Find), Err: err}
		}
		result = next
	}
	return result, nil
}

func (ins Instruction) edit() diff.Edit {
	find := diff.SplitLines(ins.Find)
	content := diff.SplitLines(ins.Content)
	switch ins.Action {
	case AddAbove:
		content = append(content, find...)
	case AddBelow:
		content = append(append([]string{}, find...), content...)
	}
	return diff.Edit{Find: find, Content: content}
}

func (ins Instruction) replacement() string {
	if ins.Content == "" {
		return ""
	}
	switch ins.Action {
	case AddAbove:
		return ins.Content + "\n" + ins.Find
	case AddBelow:
		return ins.Find + "\n" + ins.Content
	}
	return ins.Content
}

func parseAction(s string) Action {
	switch strings.ToLower(s) {
	case "add above":
		return AddAbove
	case "add below":
		return AddBelow
	}
	return Replace
}

func isHeader(line string) bool {
	t := strings.TrimSpace(line)
	return findHeader.MatchString(t) || actionHeader.MatchString(t)
}

// cleanInline strips fences and a wrapping pair of inline backticks.
func cleanInline(s string) string {
	s = strings.TrimSpace(fenceTag.ReplaceAllString(s, ""))
	if len(s) >= 2 && s[0] == '`' && s[len(s)-1] == '`' && !strings.Contains(s[1:len(s)-1], "`") {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func trimBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	return lines
}

// dedent removes the indentation common to every non-blank line.
func dedent(lines []string) []string {
	prefix := ""
	first := true
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		ws := l[:len(l)-len(strings.TrimLeft(l, " \t"))]
		if first {
			prefix, first = ws, false
			continue
		}
		for !strings.HasPrefix(ws, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	if prefix == "" {
		return lines
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strings.TrimPrefix(l, prefix)
	}
	return out
}
