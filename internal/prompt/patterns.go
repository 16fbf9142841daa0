package prompt

import (
	"regexp"

	"github.com/youruser/t4n/internal/extract"
)

// PatternVersion is bumped whenever an intent pattern changes.
const PatternVersion = 1

// Intent patterns applied to the outgoing user text.
var (
	CodeRequest = regexp.MustCompile(`(?i)(\bcode\b|\bscript\b|\btradingview\b|\bpine\b|\bpinescript\b|\bimplement\b|\bwrite\b|\btsx\b|\bts\b|\bjs\b|\bpython\b|\bsql\b|\bendpoint\b|\bapi\b)`)
	EditRequest = regexp.MustCompile(`(?i)(\bchange\b|\bmodify\b|\bupdate\b|\bedit\b|\breplace\b|\bset\b|\bturn\b|\bmake\b|\bcolour\b|\bcolor\b|\bblue\b|\bred\b|\bgreen\b)`)
	ErrorFix    = regexp.MustCompile(`(?i)\b(error|fix|wrong|broken|not working|compile|failed|issue|problem|incorrect|crash)\b`)
	ErrorReport = regexp.MustCompile(`(?i)\b(error|cannot call|undeclared|mismatched input|expected|type mismatch|problem)\b`)
)

// Patterns lists the intent patterns by name, followed by the code
// signatures the extractor uses.
func Patterns() []extract.Pattern {
	out := []extract.Pattern{
		{Name: "code-request", Re: CodeRequest},
		{Name: "edit-request", Re: EditRequest},
		{Name: "error-fix", Re: ErrorFix},
		{Name: "error-report", Re: ErrorReport},
	}
	return append(out, extract.PineSignatures...)
}

// Intent records which patterns matched a message.
type Intent struct {
	CodeRequest bool `json:"code_request"`
	Edit        bool `json:"edit"`
	ErrorFix    bool `json:"error_fix"`
	ErrorReport bool `json:"error_report"`
}

// Classify matches text against the intent patterns.
func Classify(text string) Intent {
	return Intent{
		CodeRequest: CodeRequest.MatchString(text),
		Edit:        EditRequest.MatchString(text),
		ErrorFix:    ErrorFix.MatchString(text),
		ErrorReport: ErrorReport.MatchString(text),
	}
}
