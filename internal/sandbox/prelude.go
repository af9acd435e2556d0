package sandbox

// =============================================================================
// HELPER PRELUDE
// =============================================================================
// The helper library injected into every interpreter instance. It is plain
// Go source evaluated in the interpreter's REPL scope, so generated code can
// call the helpers and read the context variable directly. Host and sandbox
// exchange state exclusively through the double-underscore globals below;
// the executor reads them back with small Eval probes after each run.
//
// Helper names are part of the prompt contract in the codegen package. Keep
// both sides in sync when changing anything here.

const preludeSource = `
import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var _ = fmt.Sprint
var _ = sort.Strings

var context map[string]interface{}

var __final interface{}
var __final_set bool
var __final_var string
var __subqueries []map[string]interface{}

func __agents() []interface{} {
	if context == nil {
		return nil
	}
	raw, ok := context["agents"].([]interface{})
	if !ok {
		return nil
	}
	return raw
}

func __enabled(a map[string]interface{}) bool {
	v, ok := a["enabled"].(bool)
	return !ok || v
}

func __str(a map[string]interface{}, key string) string {
	s, _ := a[key].(string)
	return s
}

func __strs(a map[string]interface{}, key string) []string {
	raw, _ := a[key].([]interface{})
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func __load_context(payload string) string {
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return "error: " + err.Error()
	}
	context = doc
	__final = nil
	__final_set = false
	__final_var = ""
	__subqueries = nil
	return "ok"
}

func partition(text string, chunkSize int) []string {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	words := strings.Fields(text)
	var chunks []string
	current := ""
	for _, w := range words {
		if current == "" {
			current = w
			continue
		}
		if len(current)+1+len(w) > chunkSize {
			chunks = append(chunks, current)
			current = w
			continue
		}
		current = current + " " + w
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}

func grep(pattern string, text string, flags string) []map[string]interface{} {
	if strings.Contains(flags, "i") {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return []map[string]interface{}{{"error": err.Error()}}
	}
	lines := strings.Split(text, "\n")
	var matches []map[string]interface{}
	for i, line := range lines {
		if !re.MatchString(line) {
			continue
		}
		ctxLines := []string{}
		if i > 0 {
			ctxLines = append(ctxLines, lines[i-1])
		}
		ctxLines = append(ctxLines, line)
		if i+1 < len(lines) {
			ctxLines = append(ctxLines, lines[i+1])
		}
		matches = append(matches, map[string]interface{}{
			"line_number": i + 1,
			"line":        line,
			"context":     strings.Join(ctxLines, "\n"),
		})
	}
	return matches
}

func __excerpt(text string, idx int, width int) string {
	start := idx - width
	prefix := ""
	if start < 0 {
		start = 0
	} else if start > 0 {
		prefix = "..."
	}
	end := idx + width
	suffix := ""
	if end > len(text) {
		end = len(text)
	} else if end < len(text) {
		suffix = "..."
	}
	return prefix + text[start:end] + suffix
}

func search_agents(keyword string) []map[string]interface{} {
	needle := strings.ToLower(keyword)
	var results []map[string]interface{}
	for _, raw := range __agents() {
		a, ok := raw.(map[string]interface{})
		if !ok || !__enabled(a) {
			continue
		}
		fields := map[string]string{
			"summary":    __str(a, "summary"),
			"transcript": __str(a, "transcript"),
		}
		fields["key_points"] = strings.Join(__strs(a, "key_points"), "\n")
		fields["action_items"] = strings.Join(__strs(a, "action_items"), "\n")
		for field, text := range fields {
			idx := strings.Index(strings.ToLower(text), needle)
			if idx < 0 {
				continue
			}
			results = append(results, map[string]interface{}{
				"agent":   __str(a, "display_name"),
				"field":   field,
				"excerpt": __excerpt(text, idx, 50),
			})
		}
	}
	return results
}

func get_agent(id string) map[string]interface{} {
	for _, raw := range __agents() {
		a, ok := raw.(map[string]interface{})
		if ok && __str(a, "id") == id {
			return a
		}
	}
	return nil
}

func list_agents() []map[string]interface{} {
	var out []map[string]interface{}
	for _, raw := range __agents() {
		a, ok := raw.(map[string]interface{})
		if ok && __enabled(a) {
			out = append(out, a)
		}
	}
	return out
}

func get_all_action_items() []map[string]interface{} {
	var out []map[string]interface{}
	for _, raw := range __agents() {
		a, ok := raw.(map[string]interface{})
		if !ok || !__enabled(a) {
			continue
		}
		for _, item := range __strs(a, "action_items") {
			out = append(out, map[string]interface{}{
				"agent": __str(a, "display_name"),
				"item":  item,
			})
		}
	}
	return out
}

func get_all_summaries() []map[string]interface{} {
	var out []map[string]interface{}
	for _, raw := range __agents() {
		a, ok := raw.(map[string]interface{})
		if !ok || !__enabled(a) {
			continue
		}
		out = append(out, map[string]interface{}{
			"agent":   __str(a, "display_name"),
			"summary": __str(a, "summary"),
		})
	}
	return out
}

func sub_lm(query string, contextSlice string) string {
	idx := len(__subqueries)
	__subqueries = append(__subqueries, map[string]interface{}{
		"index":         idx,
		"query":         query,
		"context_slice": contextSlice,
	})
	return fmt.Sprintf("[SUB_LM:%d]", idx)
}

func FINAL(value interface{}) {
	__final = value
	__final_set = true
	__final_var = ""
}

func FINAL_VAR(name string) {
	__final_var = name
	__final = nil
	__final_set = false
}
`
