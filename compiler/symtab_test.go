package compiler

import (
	"testing"

	"github.com/chazu/orca/nlib"
)

func TestSymbolTableScopes(t *testing.T) {
	st := NewSymbolTable()
	st.Push()
	outer := st.AddVariable("a", TypeNumber)

	st.Push()
	inner := st.AddVariable("a", TypeString)
	if got := st.LookupVariable("a"); got != inner {
		t.Errorf("LookupVariable found %v, want the inner a", got)
	}
	if st.LocalVariable("a") != inner {
		t.Error("LocalVariable missed the inner a")
	}
	st.Pop()

	if got := st.LookupVariable("a"); got != outer {
		t.Errorf("after Pop LookupVariable found %v, want the outer a", got)
	}
	if inner.Address == outer.Address {
		t.Error("shadowing variable reused the outer address")
	}
}

func TestSymbolTableAddressesNeverReused(t *testing.T) {
	st := NewSymbolTable()
	st.Push()
	a := st.AddVariable("a", TypeNumber)
	st.Pop()
	st.Push()
	b := st.AddVariable("b", TypeNumber)
	if a.Address == b.Address {
		t.Errorf("address %d reused after Pop", a.Address)
	}
	if got := st.AvailableAddress(); got != 2 {
		t.Errorf("AvailableAddress = %d, want 2", got)
	}
}

func TestSymbolTableRootNeverPopped(t *testing.T) {
	st := NewSymbolTable()
	st.Pop()
	st.Pop()
	if st.Depth() != 1 {
		t.Errorf("Depth = %d, want 1", st.Depth())
	}
}

func TestSymbolTableLiterals(t *testing.T) {
	st := NewSymbolTable()
	a, _ := st.Literal("2", TypeNumber)
	b, _ := st.Literal("2", TypeNumber)
	c, _ := st.Literal("2", TypeString)
	if a != b {
		t.Error("same literal added twice")
	}
	if a == c {
		t.Error("number and string literal were merged")
	}
	if len(st.Literals()) != 2 {
		t.Errorf("got %d literals, want 2", len(st.Literals()))
	}
}

func TestSymbolTableLibrary(t *testing.T) {
	st := NewSymbolTable()
	st.LoadLibrary(nlib.Standard())

	for _, name := range []string{"number", "string", "array", "bool", "void"} {
		c := st.LookupClass(name)
		if c == nil || !c.Builtin {
			t.Errorf("builtin class %s missing", name)
		}
	}
	if !st.IsType(TypeAny) {
		t.Error("wildcard is not a type")
	}

	f := st.LookupFunction("sqrt", []string{TypeNumber})
	if f == nil || !f.Native || f.Type != TypeNumber {
		t.Fatalf("sqrt(number) = %+v", f)
	}
	if st.LookupFunction("sqrt", []string{TypeString}) != nil {
		t.Error("sqrt(string) resolved")
	}
	if st.LookupFunction("sqrt", []string{TypeAny}) == nil {
		t.Error("sqrt(*) did not resolve")
	}
	if st.LookupFunction("print", []string{TypeArray}) == nil {
		t.Error("print(array) did not resolve through the wildcard parameter")
	}
	if !st.HasFunction("pow") || st.HasFunction("nothing") {
		t.Error("HasFunction is wrong")
	}
}

func TestSymbolTableOverloads(t *testing.T) {
	st := NewSymbolTable()
	st.Push()
	num := &Function{SymbolBase: SymbolBase{ID: "f", Type: TypeVoid}}
	num.Params = []*Variable{st.Reserve("x", TypeNumber)}
	str := &Function{SymbolBase: SymbolBase{ID: "f", Type: TypeVoid}}
	str.Params = []*Variable{st.Reserve("x", TypeString)}
	st.AddFunction(num)
	st.AddFunction(str)

	if got := st.LookupFunction("f", []string{TypeString}); got != str {
		t.Errorf("f(string) resolved to %v", got)
	}
	if got := st.LocalFunction("f", []string{TypeNumber}); got != num {
		t.Errorf("LocalFunction(f, number) = %v", got)
	}
	if st.LocalFunction("f", []string{TypeAny}) != nil {
		t.Error("LocalFunction matched a wildcard")
	}
	if num.Address != -1 {
		t.Errorf("function address = %d, want -1", num.Address)
	}
	if got := num.Signature(); got != "f(x:number) -> void" {
		t.Errorf("Signature = %q", got)
	}
}

func TestClassMembers(t *testing.T) {
	st := NewSymbolTable()
	c := st.AddClass("Point")
	st.Push()
	c.Members = append(c.Members, st.AddVariable("x", TypeNumber), st.AddVariable("y", TypeNumber))
	st.Pop()

	if idx, m := c.Member("y"); idx != 1 || m == nil {
		t.Errorf("Member(y) = %d, %v", idx, m)
	}
	if _, m := c.Member("z"); m != nil {
		t.Error("Member(z) found a member")
	}
	if st.LookupVariable("x") != nil {
		t.Error("member leaked into the enclosing scope")
	}
}
