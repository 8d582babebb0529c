// Package nlib is the Orca native library: the builtin class names, the
// signatures of native functions with the instruction sequence each call
// inlines, and the machine-side implementations of the invoke codes.
package nlib

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/chazu/orca/vm"
)

// Invoke codes understood by the machine.
const (
	InvokePrint  = 1
	InvokeRead   = 2
	InvokeInfo   = 3
	InvokeAbs    = 4
	InvokeAcos   = 5
	InvokeAsin   = 6
	InvokeAtan   = 7
	InvokeAtan2  = 8
	InvokeCeil   = 9
	InvokeFloor  = 10
	InvokeRound  = 11
	InvokeCos    = 12
	InvokeSin    = 13
	InvokeTan    = 14
	InvokeLog    = 15
	InvokeSqrt   = 16
	InvokePow    = 17
	InvokeRandom = 18

	// InvokeLoopCounter increments the top value at the popped address.
	// The compiler emits it for the counter of a for loop.
	InvokeLoopCounter = 27
)

// Banner is the line printed by info().
const Banner = "ORCA VM(BELUGA) UNSTABLE"

// AnyType matches any argument type in a native signature.
const AnyType = "*"

// ---------------------------------------------------------------------------
// Descriptors
// ---------------------------------------------------------------------------

// Function describes one native function. A call to it emits the argument
// code followed by Invoke.
type Function struct {
	Name   string
	Params []string
	Return string
	Invoke []vm.Instruction
	Doc    string
}

// Signature renders the function as written in a declaration.
func (f Function) Signature() string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = fmt.Sprintf("arg%d:%s", i, p)
	}
	return fmt.Sprintf("%s(%s) -> %s", f.Name, strings.Join(params, ", "), f.Return)
}

// Library is the set of builtin classes and native functions loaded into
// every compile.
type Library struct {
	Classes   []string
	Functions []Function
}

// Lookup returns every native overload named name.
func (l *Library) Lookup(name string) []Function {
	var out []Function
	for _, f := range l.Functions {
		if f.Name == name {
			out = append(out, f)
		}
	}
	return out
}

// Fingerprint identifies the classes and the signatures and invoke code of
// the functions. Programs compiled against libraries with different
// fingerprints are not interchangeable.
func (l *Library) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "classes %s\n", strings.Join(l.Classes, ","))
	for _, f := range l.Functions {
		fmt.Fprintf(h, "fn %s(%s) -> %s\n%s\n",
			f.Name, strings.Join(f.Params, ","), f.Return, vm.FormatListing(f.Invoke))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// HasClass reports whether name is a builtin class.
func (l *Library) HasClass(name string) bool {
	for _, c := range l.Classes {
		if c == name {
			return true
		}
	}
	return false
}

// Standard returns the standard library.
func Standard() *Library {
	num := []string{"number"}
	num2 := []string{"number", "number"}

	return &Library{
		Classes: []string{"number", "string", "array", "bool", "void"},
		Functions: []Function{
			invoke("print", []string{AnyType}, "void", InvokePrint, "Prints a value on its own line."),
			invoke("read", nil, "string", InvokeRead, "Blocks until a line of input is available."),
			invoke("info", nil, "void", InvokeInfo, "Prints the machine banner."),
			{Name: "exit", Return: "void", Invoke: []vm.Instruction{vm.Inst(vm.OpEND)}, Doc: "Halts the program."},
			invoke("abs", num, "number", InvokeAbs, "Absolute value."),
			invoke("asin", num, "number", InvokeAsin, "Arc sine in radians."),
			invoke("acos", num, "number", InvokeAcos, "Arc cosine in radians."),
			invoke("atan", num, "number", InvokeAtan, "Arc tangent in radians."),
			invoke("atan2", num2, "number", InvokeAtan2, "Arc tangent of y/x using the signs of both."),
			invoke("ceil", num, "number", InvokeCeil, "Smallest integer not less than the argument."),
			invoke("floor", num, "number", InvokeFloor, "Largest integer not greater than the argument."),
			invoke("round", num, "number", InvokeRound, "Nearest integer, ties to even."),
			invoke("cos", num, "number", InvokeCos, "Cosine of radians."),
			invoke("sin", num, "number", InvokeSin, "Sine of radians."),
			invoke("tan", num, "number", InvokeTan, "Tangent of radians."),
			invoke("log", num, "number", InvokeLog, "Natural logarithm."),
			invoke("sqrt", num, "number", InvokeSqrt, "Square root."),
			invoke("pow", num2, "number", InvokePow, "First argument raised to the second."),
			invoke("random", nil, "number", InvokeRandom, "Non-negative random 31-bit integer."),
		},
	}
}

func invoke(name string, params []string, ret string, code int, doc string) Function {
	return Function{
		Name:   name,
		Params: params,
		Return: ret,
		Invoke: []vm.Instruction{vm.InstInt(vm.OpIVK, code)},
		Doc:    doc,
	}
}
