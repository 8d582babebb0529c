package compiler

import (
	"context"
	"strings"
	"testing"

	"github.com/chazu/orca/nlib"
	"github.com/chazu/orca/vm"
)

// run compiles src, executes it and returns the printed lines.
func run(t *testing.T, src string) []string {
	t.Helper()
	prog, err := Compile(src, nlib.Standard())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	console := vm.NewConsole(nil)
	m := vm.New(vm.WithNatives(nlib.Natives()), vm.WithConsole(console))
	m.Load(prog)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v\n%s", err, vm.FormatText(prog))
	}
	return console.Lines()
}

func listing(t *testing.T, src string) string {
	t.Helper()
	unit, err := CompileUnit(src, nil)
	if err != nil {
		t.Fatalf("CompileUnit failed: %v", err)
	}
	return vm.FormatListing(unit.Listing)
}

func lines(s ...string) string { return strings.Join(s, "\n") }

// ---------------------------------------------------------------------------
// Exact code
// ---------------------------------------------------------------------------

func TestCodegenVarDecl(t *testing.T) {
	got := listing(t, "var a:number = 2;")
	want := lines(
		"SAL 1", "PSH 2", "PSH 1", "STO", // literal 2 at address 1
		"SAL 0", // a
		"PSH 0", "PSM 1", "OPR 14",
		"POP 0",
		"END",
	)
	if got != want {
		t.Errorf("listing =\n%s\nwant\n%s", got, want)
	}
}

func TestCodegenLiteralsShared(t *testing.T) {
	unit, err := CompileUnit(`var a:number = 2; var b:number = 2; var s:string = "2";`, nil)
	if err != nil {
		t.Fatalf("CompileUnit failed: %v", err)
	}
	lits := unit.Symbols.Literals()
	if len(lits) != 2 {
		t.Fatalf("got %d literals, want 2 (number 2 and string 2)", len(lits))
	}
	if lits[0].Value.Kind != vm.OperandInt || lits[1].Value.Kind != vm.OperandString {
		t.Errorf("literal kinds = %v, %v", lits[0].Value.Kind, lits[1].Value.Kind)
	}
	if unit.Program.HeapBase != 5 {
		t.Errorf("HeapBase = %d, want 5", unit.Program.HeapBase)
	}
}

func TestCodegenFunctionCall(t *testing.T) {
	src := "define f(x:number) -> number { return x; } f(7);"
	unit, err := CompileUnit(src, nil)
	if err != nil {
		t.Fatalf("CompileUnit failed: %v", err)
	}

	want := lines(
		"SAL 1", "PSH 7", "PSH 1", "STO",
		"PSH %1", "JMP",
		"FLG %0",
		"PSM 0", "MOC", "JMP",
		"MOC", "JMP",
		"FLG %1",
		"PSM 1",
		"OSC", "SAL 0", "PSH 0", "STO", "PSC", "PSH %0", "JMP", "CSC",
		"POP 0",
		"END",
	)
	if got := vm.FormatListing(unit.Listing); got != want {
		t.Errorf("listing =\n%s\nwant\n%s", got, want)
	}

	code := unit.Program.Code
	if len(code) != 22 {
		t.Fatalf("linked length = %d, want 22", len(code))
	}
	if got := code[4].String(); got != "PSH 11" {
		t.Errorf("code[4] = %s, want PSH 11 (past the body)", got)
	}
	if got := code[17].String(); got != "PSH 6" {
		t.Errorf("code[17] = %s, want PSH 6 (function entry)", got)
	}
	if code[16].Op != vm.OpPSC || code[16+vm.ReturnOffset].Op != vm.OpCSC {
		t.Errorf("PSC at 16 does not return to CSC: %s", vm.FormatListing(code))
	}
}

func TestCodegenStatementSuppressesIncrement(t *testing.T) {
	got := listing(t, "var i:number; i++;")
	want := lines("SAL 0", "PSH 0", "PSH 1", "OPR 15", "POP 0", "END")
	if got != want {
		t.Errorf("listing =\n%s\nwant\n%s", got, want)
	}
}

func TestCodegenVoidCallNotPopped(t *testing.T) {
	got := listing(t, "info();")
	want := lines("IVK 3", "END")
	if got != want {
		t.Errorf("listing =\n%s\nwant\n%s", got, want)
	}
}

func TestCodegenUnaryPlusEmitsNothing(t *testing.T) {
	if a, b := listing(t, "var x:number; x = +x;"), listing(t, "var x:number; x = x;"); a != b {
		t.Errorf("unary plus changed the code:\n%s\nvs\n%s", a, b)
	}
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

func TestRunPrograms(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			"precedence",
			"print(2 + 3 * 4); print((2 + 3) * 4); print(10 - 4 - 3);",
			[]string{"14", "20", "3"},
		},
		{"double negation", "print(- - 5);", []string{"5"}},
		{
			"chained assignment",
			"var a:number; var b:number; a = b = 4; print(a); print(b);",
			[]string{"4", "4"},
		},
		{
			"compound assignment",
			"var a:number = 2; a += 3; a *= 4; a -= 6; print(a);",
			[]string{"14"},
		},
		{
			"strings",
			`print("a" + "b"); print("x" + 1); print("abc"[1]); print("a" == "a");`,
			[]string{"ab", "x1", "b", "1"},
		},
		{
			"increments",
			"var i:number = 3; print(i++); print(i); i--; print(--i);",
			[]string{"3", "4", "2"},
		},
		{
			"array element write",
			"var a:array = [1, 2, 3]; a[1] = 9; print(a);",
			[]string{"[1,9,3]"},
		},
		{
			"runtime values",
			`var a:array = [1, 2, 3]; print(a ? 0); print("hello" ? 1);`,
			[]string{"3", "5"},
		},
		{
			"if chain",
			`define sign(x:number) -> number {
				if (x < 0) { return -1; }
				else if (x == 0) { return 0; }
				else { return 1; }
			}
			print(sign(-5)); print(sign(0)); print(sign(7));`,
			[]string{"-1", "0", "1"},
		},
		{
			"while with break and continue",
			`var i:number = 0;
			var sum:number = 0;
			while (true) {
				i++;
				if (i > 9) { break; }
				if (i % 2 == 0) { continue; }
				sum += i;
			}
			print(sum);`,
			[]string{"25"},
		},
		{"for loop", "for (i in 1...3) { print(i); }", []string{"1", "2", "3"}},
		{"inline for body", "for (i in 1...2) print(i * 10);", []string{"10", "20"}},
		{
			"class with member function",
			`define Point {
				var x:number = 3;
				var y:number = 4;
			}
			define Point.sum() -> number {
				return this.x + this.y;
			}
			var p:Point = new Point;
			print(p.sum());`,
			[]string{"7"},
		},
		{
			"member initializer calls function",
			`define three() -> number { return 3; }
			define P { var x:number = three(); var y:number = four(); }
			define four() -> number { return 4; }
			var p:P = new P;
			print(p.x); print(p.y);`,
			[]string{"3", "4"},
		},
		{
			"recursion",
			`define fib(n:number) -> number {
				if (n < 2) { return n; }
				return fib(n - 1) + fib(n - 2);
			}
			print(fib(10));`,
			[]string{"55"},
		},
		{
			"forward reference",
			`define isEven(n:number) -> bool {
				if (n == 0) { return true; }
				return isOdd(n - 1);
			}
			define isOdd(n:number) -> bool {
				if (n == 0) { return false; }
				return isEven(n - 1);
			}
			print(isEven(10));`,
			[]string{"1"},
		},
		{
			"casts",
			`print("12" as number + 1); print(5 as string + "!");`,
			[]string{"13", "5!"},
		},
		{
			"nested subscript",
			"var m:array = [[1, 2], [3, 4]]; print(m[1][0]);",
			[]string{"3"},
		},
		{"native call", "print(pow(2, 10));", []string{"1024"}},
		{
			"shadowing",
			"var a:number = 1; { var a:number = 2; print(a); } print(a);",
			[]string{"2", "1"},
		},
		{
			"overloads",
			`define show(x:number) { print("number"); }
			define show(x:string) { print("string"); }
			show(1); show("a");`,
			[]string{"number", "string"},
		},
	}
	for _, tc := range tests {
		got := run(t, tc.src)
		if strings.Join(got, "|") != strings.Join(tc.want, "|") {
			t.Errorf("%s: output = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestRunExitHalts(t *testing.T) {
	got := run(t, `print("before"); exit(); print("after");`)
	if len(got) != 1 || got[0] != "before" {
		t.Errorf("output = %q, want only before", got)
	}
}

func TestToolchainTracksLibrary(t *testing.T) {
	std := Toolchain(nil)
	if !strings.HasPrefix(std, "orca/"+Version+"+") || std != Toolchain(nlib.Standard()) {
		t.Fatalf("Toolchain(nil) = %q", std)
	}
	lib := nlib.Standard()
	lib.Classes = append(lib.Classes, "extra")
	if Toolchain(lib) == std {
		t.Error("a different library kept the toolchain identity")
	}
}
