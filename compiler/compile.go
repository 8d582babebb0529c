// Package compiler turns Orca source into linked machine programs. There is
// no syntax tree: the block tree from Lex is parsed statement by statement
// and lowered straight to instructions, then jump flags are linked.
package compiler

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/orca/nlib"
	"github.com/chazu/orca/vm"
)

var log = commonlog.GetLogger("orca.compiler")

// Version changes whenever code generation changes.
const Version = "0.1.0"

// Toolchain identifies the compiler version and the native library lib, so
// cached programs from another toolchain are never reused.
func Toolchain(lib *nlib.Library) string {
	if lib == nil {
		lib = nlib.Standard()
	}
	return "orca/" + Version + "+" + lib.Fingerprint()
}

// Unit is the full result of compiling one source text.
type Unit struct {
	Program     *vm.Program      // nil when linking failed
	Listing     []vm.Instruction // unlinked code, with FLG definitions
	Diagnostics Diagnostics
	Symbols     *SymbolTable
}

// CompileUnit compiles src against lib and keeps every intermediate result.
func CompileUnit(src string, lib *nlib.Library) (*Unit, error) {
	if lib == nil {
		lib = nlib.Standard()
	}
	root, lexDiags := Lex(src)

	st := NewSymbolTable()
	st.LoadLibrary(lib)
	st.Push()

	p := NewParser(st)
	p.diag.diags = append(p.diag.diags, lexDiags...)
	body := p.Program(root)

	listing := literalInit(st.Literals())
	listing = append(listing, body...)
	listing = append(listing, vm.Inst(vm.OpEND))

	unit := &Unit{
		Listing:     listing,
		Diagnostics: p.Diagnostics(),
		Symbols:     st,
	}

	code, err := Link(listing)
	if err != nil {
		if len(unit.Diagnostics) > 0 {
			return unit, unit.Diagnostics
		}
		return unit, fmt.Errorf("compiler: link: %w", err)
	}
	unit.Program = &vm.Program{HeapBase: st.AvailableAddress(), Code: code}

	log.Debugf("compiled %d instructions, %d literals, heap base %d, %d diagnostics",
		len(code), len(st.Literals()), unit.Program.HeapBase, len(unit.Diagnostics))

	if len(unit.Diagnostics) > 0 {
		return unit, unit.Diagnostics
	}
	return unit, nil
}

// Compile compiles src against lib. The error is a Diagnostics value when
// the source has problems; the program is still returned when it linked.
func Compile(src string, lib *nlib.Library) (*vm.Program, error) {
	unit, err := CompileUnit(src, lib)
	return unit.Program, err
}

// Check compiles src and returns only its diagnostics.
func Check(src string, lib *nlib.Library) Diagnostics {
	unit, _ := CompileUnit(src, lib)
	return unit.Diagnostics
}
