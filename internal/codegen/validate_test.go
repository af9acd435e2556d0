package codegen

import (
	"strings"
	"testing"
)

func TestValidateCodeRejectsEval(t *testing.T) {
	res := ValidateCode(`result := eval(x)`)
	if res.IsValid {
		t.Fatal("eval should be rejected")
	}
	found := false
	for _, msg := range res.Errors {
		if strings.Contains(msg, "eval") {
			found = true
		}
	}
	if !found {
		t.Fatalf("error should name eval: %v", res.Errors)
	}
}

func TestValidateCodeRejectsUnsafeImports(t *testing.T) {
	cases := []string{
		`import "os"`,
		"import (\n\t\"fmt\"\n\t\"os/exec\"\n)",
		`import "syscall"`,
		`import "unsafe"`,
		`import "net/http"`,
	}
	for _, code := range cases {
		if res := ValidateCode(code); res.IsValid {
			t.Errorf("code %q should be rejected", code)
		}
	}
}

func TestValidateCodeRejectsFileAccess(t *testing.T) {
	if res := ValidateCode(`f, _ := os.Open("/etc/passwd")`); res.IsValid {
		t.Fatal("file open should be rejected")
	}
}

func TestValidateCodeRejectsDynamicConstructs(t *testing.T) {
	for _, code := range []string{`__import__("os")`, `g := globals()`, `l := locals()`, `exec(cmd)`} {
		if res := ValidateCode(code); res.IsValid {
			t.Errorf("code %q should be rejected", code)
		}
	}
}

func TestValidateCodeAcceptsSafeCode(t *testing.T) {
	code := `items := list_agents()
FINAL(len(items))`
	res := ValidateCode(code)
	if !res.IsValid {
		t.Fatalf("safe code rejected: %v", res.Errors)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}
}

func TestValidateCodeWarnsOnMissingFinal(t *testing.T) {
	res := ValidateCode(`x := 1`)
	if !res.IsValid {
		t.Fatal("missing FINAL is only a warning")
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected a warning about the missing FINAL call")
	}
}

func TestValidateCodeWarnsOnInfiniteLoop(t *testing.T) {
	res := ValidateCode("for {\n\tx++\n}\nFINAL(x)")
	if !res.IsValid {
		t.Fatal("infinite loop is only a warning")
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "break") {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %v", res.Warnings)
	}
}

func TestValidateCodeLoopWithBreakNoWarning(t *testing.T) {
	res := ValidateCode("for {\n\tbreak\n}\nFINAL(1)")
	if len(res.Warnings) != 0 {
		t.Fatalf("warnings = %v", res.Warnings)
	}
}
