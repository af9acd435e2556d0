package codegen

import (
	"fmt"
	"regexp"
	"strings"
)

// =============================================================================
// CODE EXTRACTION
// =============================================================================

// ParsedCode is the result of extracting code from a model response.
type ParsedCode struct {
	HasCode     bool
	Code        string
	Explanation string
}

var (
	// taggedFenceRe matches a fenced block explicitly tagged as Go or
	// generically as code.
	taggedFenceRe = regexp.MustCompile("(?s)```(?:go|golang|code)[ \t]*\n(.*?)```")

	// genericFenceRe matches any fenced block, tagged or not.
	genericFenceRe = regexp.MustCompile("(?s)```[a-zA-Z0-9]*[ \t]*\n(.*?)```")
)

// codeMarkers are substrings whose presence qualifies an untagged fenced
// block (or raw output) as code.
var codeMarkers = []string{"func ", "import ", "FINAL", "context"}

func looksLikeCode(s string) bool {
	for _, m := range codeMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// ParseCodeOutput extracts executable code from model output. Priority:
// a fenced block tagged as code, then any fenced block whose content looks
// like code, then the raw output when it contains a final-answer call.
// Text preceding an accepted fence becomes the explanation.
func ParseCodeOutput(output string) ParsedCode {
	if loc := taggedFenceRe.FindStringSubmatchIndex(output); loc != nil {
		return ParsedCode{
			HasCode:     true,
			Code:        strings.TrimSpace(output[loc[2]:loc[3]]),
			Explanation: strings.TrimSpace(output[:loc[0]]),
		}
	}

	if loc := genericFenceRe.FindStringSubmatchIndex(output); loc != nil {
		body := output[loc[2]:loc[3]]
		if looksLikeCode(body) {
			return ParsedCode{
				HasCode:     true,
				Code:        strings.TrimSpace(body),
				Explanation: strings.TrimSpace(output[:loc[0]]),
			}
		}
	}

	if strings.Contains(output, "FINAL(") || strings.Contains(output, "FINAL_VAR(") {
		return ParsedCode{HasCode: true, Code: strings.TrimSpace(output)}
	}

	return ParsedCode{}
}

// =============================================================================
// FINAL ANSWER PARSING
// =============================================================================

// Execution carries the sandbox outputs ParseFinalAnswer inspects. The
// session layer adapts the executor's result into this shape.
type Execution struct {
	FinalSet bool
	Final    any
	Stdout   string
	Result   any

	// SubQueries are deferred sub_lm calls, passed through untouched.
	SubQueries []SubQuery
}

// SubQuery is one deferred sub_lm call registered during execution.
type SubQuery struct {
	Index        int
	Query        string
	ContextSlice string
}

// FinalAnswer is the structured outcome of an execution.
type FinalAnswer struct {
	HasAnswer  bool
	Answer     string
	SubQueries []SubQuery
}

// ParseFinalAnswer resolves the answer from an execution: the explicit
// final-answer value when one was set, else trimmed non-empty stdout, else
// the stringified raw result. Pending sub-queries are surfaced untouched.
func ParseFinalAnswer(exec Execution) FinalAnswer {
	ans := FinalAnswer{SubQueries: exec.SubQueries}

	if exec.FinalSet {
		ans.HasAnswer = true
		ans.Answer = stringify(exec.Final)
		return ans
	}
	if out := strings.TrimSpace(exec.Stdout); out != "" {
		ans.HasAnswer = true
		ans.Answer = out
		return ans
	}
	if exec.Result != nil {
		ans.HasAnswer = true
		ans.Answer = stringify(exec.Result)
	}
	return ans
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
