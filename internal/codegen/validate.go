package codegen

import "regexp"

// =============================================================================
// CODE VALIDATION
// =============================================================================
// Purely lexical. Regexes run over the whole snippet, so a forbidden token
// inside a string literal or comment still trips a rule. That is an accepted
// limitation; the sandbox's import whitelist is the real enforcement line.

// ValidationResult reports whether code may be executed.
type ValidationResult struct {
	IsValid  bool
	Errors   []string
	Warnings []string
}

var blockRules = []struct {
	re      *regexp.Regexp
	message string
}{
	{regexp.MustCompile(`import\s+(?:\(\s*)?(?:[A-Za-z_][A-Za-z0-9_]*\s+)?"os"`), "importing os is not allowed"},
	{regexp.MustCompile(`"os/exec"`), "importing os/exec is not allowed"},
	{regexp.MustCompile(`"syscall"`), "importing syscall is not allowed"},
	{regexp.MustCompile(`"unsafe"`), "importing unsafe is not allowed"},
	{regexp.MustCompile(`"net(?:/[a-z/]+)?"`), "importing net packages is not allowed"},
	{regexp.MustCompile(`"plugin"`), "importing plugin is not allowed"},
	{regexp.MustCompile(`"runtime/debug"`), "importing runtime/debug is not allowed"},
	{regexp.MustCompile(`\bos\.(?:Open|Create|OpenFile|Remove|RemoveAll|Mkdir)`), "file system access is not allowed"},
	{regexp.MustCompile(`\bioutil\.(?:ReadFile|WriteFile|ReadDir)`), "file system access is not allowed"},
	{regexp.MustCompile(`\beval\(`), "eval is not allowed"},
	{regexp.MustCompile(`\bexec\(`), "exec is not allowed"},
	{regexp.MustCompile(`__import__`), "dynamic imports are not allowed"},
	{regexp.MustCompile(`\bglobals\(\)`), "globals() is not allowed"},
	{regexp.MustCompile(`\blocals\(\)`), "locals() is not allowed"},
}

var (
	finalCallRe    = regexp.MustCompile(`\bFINAL(?:_VAR)?\(`)
	infiniteLoopRe = regexp.MustCompile(`\bfor\s*\{`)
	breakRe        = regexp.MustCompile(`\bbreak\b`)
)

// ValidateCode checks a snippet against the disallow rules. Rule hits make
// the code invalid; a missing final-answer call or an unconditional loop
// without a break only produce warnings.
func ValidateCode(code string) ValidationResult {
	res := ValidationResult{IsValid: true}

	for _, rule := range blockRules {
		if rule.re.MatchString(code) {
			res.IsValid = false
			res.Errors = append(res.Errors, rule.message)
		}
	}

	if !finalCallRe.MatchString(code) {
		res.Warnings = append(res.Warnings, "code never calls FINAL or FINAL_VAR")
	}
	if infiniteLoopRe.MatchString(code) && !breakRe.MatchString(code) {
		res.Warnings = append(res.Warnings, "unconditional for loop without a break")
	}

	return res
}
