package compiler

import (
	"testing"

	"github.com/chazu/orca/vm"
)

// ---------------------------------------------------------------------------
// FuzzLexer: ensure the lexer never panics on arbitrary input.
// ---------------------------------------------------------------------------

func FuzzLexer(f *testing.F) {
	seeds := []string{
		// Punctuation and operators
		`( ) [ ] { } ; , : . ... -> ?`,
		`+ - * / % & | ^ ~ ! << >> && || == != < <= > >=`,
		`= += -= *= /= %= &= |= ^= <<= >>=`,
		`++a a++ --a a--`,
		// Numbers
		`42`, `3.14`, `1...3`, `1.5...2.5`,
		// Strings
		`"hello"`, `'hello'`, `""`, `"a;b{c}"`,
		// Keywords
		`var define if else while for in break continue return include new as and or not true false`,
		// Comments
		"// line\nx", "/* block */ x", "/* open",
		// Statements
		`var a:number = 1;`,
		`define f(x:number) -> number { return x * 2; }`,
		`define P { var x:number; } define P.get() -> number { return this.x; }`,
		`for (i in 1...10) { if (i % 2 == 0) continue; print(i); }`,
		`while (true) { break; }`,
		`var a:array = [[1, 2], [3]]; a[0][1] = 5; print(a ? 0);`,
		// Edge cases
		`}`, `{`, `{{}}`, `"unterminated`, `@`, ``, "   ", "\t\n\r",
		`'こんにちは'`, `café`,
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, input string) {
		root, _ := Lex(input)
		if root == nil || !root.Braced {
			t.Fatalf("Lex(%q) returned %v, want a braced root", input, root)
		}
	})
}

// ---------------------------------------------------------------------------
// FuzzCompile: compilation either reports diagnostics or yields linked code.
// ---------------------------------------------------------------------------

func FuzzCompile(f *testing.F) {
	seeds := []string{
		`print(1 + 2 * 3);`,
		`var s:string = "a"; s += 1; print(s);`,
		`define fib(n:number) -> number { if (n < 2) { return n; } return fib(n - 1) + fib(n - 2); }`,
		`define P { var x:number = 1; } var p:P = new P; print(p.x);`,
		`var a:array; a + "s";`,
		`for (i in 1...3) print(i); print(i);`,
		`else { }`,
		`return;`,
		`x = = y`,
		`f(,)`,
		`[1, 2][0]`,
		`(((1)))`,
		`- - - 1`,
		`1 as string as number`,
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, input string) {
		unit, err := CompileUnit(input, nil)
		if unit == nil {
			t.Fatalf("CompileUnit(%q) returned no unit (err %v)", input, err)
		}
		if err == nil && unit.Program == nil {
			t.Fatalf("CompileUnit(%q) succeeded without a program", input)
		}
		if unit.Program == nil {
			return
		}
		for i, in := range unit.Program.Code {
			if in.Op == vm.OpFLG || in.Arg.Kind == vm.OperandFlag {
				t.Fatalf("CompileUnit(%q): code[%d] = %s is unlinked", input, i, in)
			}
		}
	})
}
