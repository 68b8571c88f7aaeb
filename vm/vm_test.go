package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cmm-lang/cmm/codegen"
	"github.com/cmm-lang/cmm/isa"
	"github.com/cmm-lang/cmm/lexer"
	"github.com/cmm-lang/cmm/parser"
	"github.com/cmm-lang/cmm/symtab"
	"github.com/cmm-lang/cmm/token"
)

func compile(t *testing.T, src string) []isa.Instruction {
	t.Helper()
	l := lexer.New(src)
	var toks []token.Token
	for {
		tok, err := l.Next()
		if err != nil {
			t.Fatalf("lex error: %v", err)
		}
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			break
		}
	}
	prog, err := parser.Parse(toks)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	tbl := symtab.Build(prog)
	code, err := codegen.Generate(prog, tbl)
	if err != nil {
		t.Fatalf("codegen error: %v", err)
	}
	return code
}

func runSrc(t *testing.T, src, stdin string) string {
	t.Helper()
	code := compile(t, src)
	var out bytes.Buffer
	inst, err := New(code, Input(strings.NewReader(stdin)), Output(&out))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := inst.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out.String()
}

func TestOutputLiteralSum(t *testing.T) {
	if got := runSrc(t, "void main(void) { output(1 + 2); }", ""); got != "3\n" {
		t.Fatalf("got %q, want %q", got, "3\n")
	}
}

func TestGlobalAssignment(t *testing.T) {
	src := "int x; void main(void) { x = 5; output(x); }"
	if got := runSrc(t, src, ""); got != "5\n" {
		t.Fatalf("got %q, want %q", got, "5\n")
	}
}

func TestRecursiveFactorial(t *testing.T) {
	src := `
		int fact(int n) {
			if (n <= 1) { return 1; } else { return n * fact(n - 1); }
		}
		void main(void) { output(fact(5)); }
	`
	if got := runSrc(t, src, ""); got != "120\n" {
		t.Fatalf("got %q, want %q", got, "120\n")
	}
}

func TestArraySum(t *testing.T) {
	src := `
		int a[3];
		void main(void) {
			int i;
			int s;
			a[0] = 1;
			a[1] = 2;
			a[2] = 3;
			s = 0;
			i = 0;
			while (i < 3) {
				s = s + a[i];
				i = i + 1;
			}
			output(s);
		}
	`
	if got := runSrc(t, src, ""); got != "6\n" {
		t.Fatalf("got %q, want %q", got, "6\n")
	}
}

func TestWhileLoopSum(t *testing.T) {
	src := `
		void main(void) {
			int i;
			int s;
			i = 1;
			s = 0;
			while (i <= 10) {
				s = s + i;
				i = i + 1;
			}
			output(s);
		}
	`
	if got := runSrc(t, src, ""); got != "55\n" {
		t.Fatalf("got %q, want %q", got, "55\n")
	}
}

func TestInputDoubling(t *testing.T) {
	src := "void main(void) { int n; n = input(); output(n * 2); }"
	if got := runSrc(t, src, "7"); got != "14\n" {
		t.Fatalf("got %q, want %q", got, "14\n")
	}
}

// Determinism: identical stdin and instruction list produce identical
// stdout, run after run.
func TestDeterminism(t *testing.T) {
	code := compile(t, `
		int fib(int n) {
			if (n <= 1) { return n; } else { return fib(n - 1) + fib(n - 2); }
		}
		void main(void) { output(fib(10)); }
	`)
	var first string
	for n := 0; n < 3; n++ {
		var out bytes.Buffer
		inst, err := New(code, Output(&out))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if err := inst.Run(); err != nil {
			t.Fatalf("Run: %v", err)
		}
		if n == 0 {
			first = out.String()
		} else if out.String() != first {
			t.Fatalf("run %d: got %q, want %q", n, out.String(), first)
		}
	}
}

// Stack discipline: after a complete program, SS may be non-empty (globals
// live there), but every CALL/RET pair is balanced by codegen's reclaiming
// POPs, so the final depth must equal the depth codegen allocated for
// globals plus main's own locals, plus the OldBP/OldIP pair of the CALL
// main frame (main gets no RET) - no leaked call-frame state from add.
func TestStackDisciplineAfterRun(t *testing.T) {
	code := compile(t, `
		int g;
		int add(int a, int b) {
			int c;
			c = a + b;
			return c;
		}
		void main(void) {
			int r;
			r = add(1, 2);
			g = r;
			output(g);
		}
	`)
	inst, err := New(code, Output(new(bytes.Buffer)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := inst.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// g(1 slot) + main's locals (r, 1 slot) + CALL main's OldBP and OldIP
	// (2 slots) = 4; nothing from add's frame should remain since its CALL
	// is matched by reclaiming POPs.
	if len(inst.SS) != 4 {
		t.Fatalf("final stack depth = %d, want 4 (SS=%v)", len(inst.SS), inst.SS)
	}
}

func TestDivisionByZeroIsRecoveredAsError(t *testing.T) {
	code := compile(t, "void main(void) { output(1 / 0); }")
	inst, err := New(code, Output(new(bytes.Buffer)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := inst.Run(); err == nil {
		t.Fatalf("expected an error from division by zero")
	}
}
