package extract

import "regexp"

// PatternVersion identifies the heuristic tables in this file. Bump it when
// any pattern changes so recorded transcripts can be re-checked.
const PatternVersion = 1

// Pattern is one named heuristic regular expression.
type Pattern struct {
	Name string
	Re   *regexp.Regexp
}

// PineSignatures detect unfenced Pine Script. Each match starts at the
// beginning of the line holding the signature.
var PineSignatures = []Pattern{
	{Name: "version-pragma", Re: regexp.MustCompile(`(?im)^[ \t]*//@version=\d+`)},
	{Name: "declaration", Re: regexp.MustCompile(`(?im)^[ \t]*(?:indicator|strategy)\s*\(`)},
	{Name: "plotting", Re: regexp.MustCompile(`(?im)^[ \t]*(?:plot|plotshape|plotchar|hline)\s*\(`)},
}

// InstructionMarker matches a line that opens a find-and-replace
// instruction ("ctrl+f:"), allowing list bullets, quotes, numbering and
// emphasis in front of it.
var InstructionMarker = regexp.MustCompile(`(?im)^[ \t>*_#-]*(?:\d+[.)][ \t]*)?[*_]*ctrl\+f:`)

var (
	closedFence   = regexp.MustCompile("```([\\w+-]*)\\n((?s:.*?))```")
	strippedFence = regexp.MustCompile("```[\\w+-]*\\n(?s:.*?)```")
	excessBlank   = regexp.MustCompile(`\n{3,}`)
)

// nativeDialects are fence languages that must not be annotated: Pine
// requires //@version on its first line.
var nativeDialects = map[string]bool{
	"pinescript": true,
	"pine":       true,
}
