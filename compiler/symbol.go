package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/orca/vm"
)

// Builtin type names the compiler reasons about.
const (
	TypeNumber = "number"
	TypeString = "string"
	TypeBool   = "bool"
	TypeArray  = "array"
	TypeVoid   = "void"
	TypeAny    = "*"
)

// ---------------------------------------------------------------------------
// Symbols
// ---------------------------------------------------------------------------

// SymbolBase holds the fields every symbol shares. Address is -1 for
// symbols without storage (functions and classes).
type SymbolBase struct {
	ID      string
	Type    string
	Address int
}

// Base returns the shared fields.
func (s *SymbolBase) Base() *SymbolBase { return s }

// Symbol is a resolved name: a variable, function, class or literal.
type Symbol interface {
	Base() *SymbolBase
}

// Variable is a storage location: a global, local, parameter, loop counter
// or class member.
type Variable struct {
	SymbolBase
	Initialized bool
}

// Function is a user-defined or native function. User functions are
// entered through EntryFlag and skipped over through ExitFlag; natives
// inline Invoke at the call site.
type Function struct {
	SymbolBase
	Params    []*Variable
	EntryFlag int
	ExitFlag  int
	Native    bool
	Invoke    []vm.Instruction
	Doc       string
	Line      int
}

// ParamTypes returns the declared parameter types in order.
func (f *Function) ParamTypes() []string {
	types := make([]string, len(f.Params))
	for i, p := range f.Params {
		types[i] = p.Type
	}
	return types
}

// Signature renders the function as it would be declared.
func (f *Function) Signature() string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.ID + ":" + p.Type
	}
	return fmt.Sprintf("%s(%s) -> %s", f.ID, strings.Join(params, ", "), f.Type)
}

// Class is a user or builtin class. Instances are field vectors indexed by
// member position.
type Class struct {
	SymbolBase
	Members []*Variable
	Builtin bool
}

// Member returns the index and symbol of the named member, or -1.
func (c *Class) Member(name string) (int, *Variable) {
	for i, m := range c.Members {
		if m.ID == name {
			return i, m
		}
	}
	return -1, nil
}

// Literal is a constant number or string. Each distinct (value, type) pair
// gets one address, initialized before the program starts.
type Literal struct {
	SymbolBase
	Value vm.Operand
}

// newLiteral builds the operand for a literal spelled text of type typ.
func newLiteral(text, typ string) (*Literal, error) {
	lit := &Literal{SymbolBase: SymbolBase{ID: text, Type: typ}}
	if typ == TypeString {
		lit.Value = vm.StrArg(text)
		return lit, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("bad number literal %q", text)
	}
	if strings.Contains(text, ".") {
		lit.Value = vm.NumArg(f)
	} else {
		lit.Value = vm.IntArg(int(f))
	}
	return lit, nil
}

// isValueType reports whether typ is stored as a scalar (SAL) rather than a
// fresh array (SAA).
func isValueType(typ string) bool {
	switch typ {
	case TypeNumber, TypeString, TypeBool:
		return true
	}
	return false
}
