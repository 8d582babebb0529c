package vm

import (
	"fmt"
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single VM instruction.
type Opcode byte

// Stack and register operations
const (
	OpPSH Opcode = 0x01 // push operand
	OpPSR Opcode = 0x02 // push register
	OpPSM Opcode = 0x03 // push top of memory cell
	OpPOP Opcode = 0x04 // pop into register
	OpOPR Opcode = 0x05 // apply operator code
)

// Control flow
const (
	OpJMP Opcode = 0x06 // jump to popped target
	OpJMF Opcode = 0x07 // pop target, pop condition, jump when condition <= 0
	OpIVK Opcode = 0x08 // invoke native code
)

// Memory
const (
	OpSAL Opcode = 0x09 // reserve local scalar at address
	OpSAA Opcode = 0x0A // reserve local array at address
	OpDAL Opcode = 0x0B // heap-allocate scalar, push its address
	OpDAA Opcode = 0x0C // heap-allocate array, push it
	OpSTO Opcode = 0x0D // pop address, pop value, write
	OpSTA Opcode = 0x0E // pop array, pop index, pop value, store element
	OpOSC Opcode = 0x0F // open scope
	OpCSC Opcode = 0x10 // close scope, freeing one value per reserved address
	OpFRE Opcode = 0x11 // free one value at address
	OpRDA Opcode = 0x12 // pop array, pop index, push element
)

// Calls
const (
	OpPSC Opcode = 0x13 // push pc+3 onto the call stack
	OpMOC Opcode = 0x14 // move call stack top onto the operand stack
	OpEND Opcode = 0x15 // halt
)

// OpFLG marks a jump-flag definition. It only exists between code generation
// and linking; the machine rejects it.
const OpFLG Opcode = 0xFF

// ReturnOffset is the distance from PSC to the CSC that closes the call.
const ReturnOffset = 3

// OpcodeInfo describes an opcode.
type OpcodeInfo struct {
	Name       string
	HasOperand bool
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpPSH: {"PSH", true},
	OpPSR: {"PSR", true},
	OpPSM: {"PSM", true},
	OpPOP: {"POP", true},
	OpOPR: {"OPR", true},
	OpJMP: {"JMP", false},
	OpJMF: {"JMF", false},
	OpIVK: {"IVK", true},
	OpSAL: {"SAL", true},
	OpSAA: {"SAA", true},
	OpDAL: {"DAL", false},
	OpDAA: {"DAA", false},
	OpSTO: {"STO", false},
	OpSTA: {"STA", false},
	OpOSC: {"OSC", false},
	OpCSC: {"CSC", false},
	OpFRE: {"FRE", true},
	OpRDA: {"RDA", false},
	OpPSC: {"PSC", false},
	OpMOC: {"MOC", false},
	OpEND: {"END", false},
	OpFLG: {"FLG", true},
}

var mnemonicTable = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeTable))
	for op, info := range opcodeTable {
		m[info.Name] = op
	}
	return m
}()

// Info returns metadata about the opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Name returns the three-letter mnemonic.
func (op Opcode) Name() string {
	return op.Info().Name
}

// Executable reports whether the machine can run the opcode.
func (op Opcode) Executable() bool {
	_, ok := opcodeTable[op]
	return ok && op != OpFLG
}

func (op Opcode) String() string {
	return op.Name()
}

// LookupMnemonic returns the opcode for a mnemonic such as "PSH".
func LookupMnemonic(name string) (Opcode, bool) {
	op, ok := mnemonicTable[name]
	return op, ok
}

// ---------------------------------------------------------------------------
// Operator codes (OPR operand)
// ---------------------------------------------------------------------------

// Operator is the operand of OPR.
type Operator int

const (
	OprAdd    Operator = 1
	OprSub    Operator = 2
	OprDiv    Operator = 3
	OprMul    Operator = 4
	OprMod    Operator = 5
	OprBitAnd Operator = 6
	OprBitOr  Operator = 7
	OprBitXor Operator = 8
	OprBitNot Operator = 9
	OprNeg    Operator = 10
	OprShl    Operator = 11
	OprShr    Operator = 12
	OprAppend Operator = 13
)

// Write-back through an address (pops value, then address).
const (
	OprAssign Operator = 14 + iota
	OprAddAssign
	OprSubAssign
	OprDivAssign
	OprMulAssign
	OprModAssign
	OprBitAndAssign
	OprBitOrAssign
	OprBitXorAssign
	OprShlAssign
	OprShrAssign
	OprAppendAssign
)

// ArrayBankOffset converts an address write-back code into the matching
// array-reference code (pops value, then array, then index).
const ArrayBankOffset = 12

const (
	OprEq Operator = 38 + iota
	OprNe
	OprGt
	OprGe
	OprLt
	OprLe
	OprAnd
	OprOr
	OprNot
	OprToNumber
	OprToString
	OprCharAt
	OprRuntimeValue
)

// Selectors for OprRuntimeValue.
const (
	RuntimeArrayLength  = 0
	RuntimeStringLength = 1
	RuntimeCharCode     = 2
	RuntimeFromCharCode = 3
)

var operatorNames = map[Operator]string{
	OprAdd: "add", OprSub: "sub", OprDiv: "div", OprMul: "mul", OprMod: "mod",
	OprBitAnd: "band", OprBitOr: "bor", OprBitXor: "bxor", OprBitNot: "bnot",
	OprNeg: "neg", OprShl: "shl", OprShr: "shr", OprAppend: "append",
	OprAssign: "assign", OprAddAssign: "add=", OprSubAssign: "sub=",
	OprDivAssign: "div=", OprMulAssign: "mul=", OprModAssign: "mod=",
	OprBitAndAssign: "band=", OprBitOrAssign: "bor=", OprBitXorAssign: "bxor=",
	OprShlAssign: "shl=", OprShrAssign: "shr=", OprAppendAssign: "append=",
	OprEq: "eq", OprNe: "ne", OprGt: "gt", OprGe: "ge", OprLt: "lt", OprLe: "le",
	OprAnd: "and", OprOr: "or", OprNot: "not",
	OprToNumber: "tonumber", OprToString: "tostring", OprCharAt: "charat",
	OprRuntimeValue: "runtime",
}

// IsAddressWrite reports whether the code writes back through an address.
func (o Operator) IsAddressWrite() bool {
	return o >= OprAssign && o <= OprAppendAssign
}

// IsArrayWrite reports whether the code writes back through an array reference.
func (o Operator) IsArrayWrite() bool {
	return o >= OprAssign+ArrayBankOffset && o <= OprAppendAssign+ArrayBankOffset
}

// IsUnary reports whether the operator pops a single operand.
func (o Operator) IsUnary() bool {
	switch o {
	case OprBitNot, OprNeg, OprNot, OprToNumber, OprToString:
		return true
	}
	return false
}

func (o Operator) String() string {
	if o.IsArrayWrite() {
		return "[]" + (o - ArrayBankOffset).String()
	}
	if name, ok := operatorNames[o]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_OPR_%d", int(o))
}

// ---------------------------------------------------------------------------
// Operands and instructions
// ---------------------------------------------------------------------------

// OperandKind tags an instruction operand.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandInt
	OperandNumber
	OperandString
	OperandFlag // unresolved jump flag, replaced by the linker
)

// Operand is the tagged argument of an instruction.
type Operand struct {
	Kind OperandKind
	Num  float64
	Str  string
}

// IntArg returns an integer operand (address, code, count).
func IntArg(n int) Operand { return Operand{Kind: OperandInt, Num: float64(n)} }

// NumArg returns a numeric operand.
func NumArg(f float64) Operand { return Operand{Kind: OperandNumber, Num: f} }

// StrArg returns a string operand.
func StrArg(s string) Operand { return Operand{Kind: OperandString, Str: s} }

// FlagArg returns a symbolic reference to jump flag id.
func FlagArg(id int) Operand { return Operand{Kind: OperandFlag, Num: float64(id)} }

// Value converts the operand to the value PSH pushes.
func (o Operand) Value() Value {
	switch o.Kind {
	case OperandInt, OperandNumber:
		return FromFloat64(o.Num)
	case OperandString:
		return FromString(o.Str)
	}
	return Undefined
}

// Int returns the integer view of the operand.
func (o Operand) Int() int {
	return int(o.Num)
}

func (o Operand) String() string {
	switch o.Kind {
	case OperandInt:
		return strconv.Itoa(int(o.Num))
	case OperandNumber:
		if o.Num == math.Trunc(o.Num) && !math.IsInf(o.Num, 0) {
			return strconv.FormatFloat(o.Num, 'f', 1, 64)
		}
		return strconv.FormatFloat(o.Num, 'f', -1, 64)
	case OperandString:
		return escapeString(o.Str) + "s"
	case OperandFlag:
		return "%" + strconv.Itoa(int(o.Num))
	}
	return ""
}

// Instruction is one decoded VM instruction. Addr caches the integer view of
// address-like operands so dispatch does not convert on every step.
type Instruction struct {
	Op   Opcode
	Arg  Operand
	Addr int
}

// Inst builds an instruction without an operand.
func Inst(op Opcode) Instruction {
	return Instruction{Op: op}
}

// InstArg builds an instruction with an operand.
func InstArg(op Opcode, arg Operand) Instruction {
	in := Instruction{Op: op, Arg: arg}
	if arg.Kind == OperandInt || arg.Kind == OperandFlag || arg.Kind == OperandNumber {
		in.Addr = int(arg.Num)
	}
	return in
}

// InstInt is shorthand for InstArg(op, IntArg(n)).
func InstInt(op Opcode, n int) Instruction {
	return InstArg(op, IntArg(n))
}

// Resolve returns the instruction with its flag operand replaced by addr.
func (in Instruction) Resolve(addr int) Instruction {
	return InstArg(in.Op, IntArg(addr))
}

// String renders the instruction in the text assembly form.
func (in Instruction) String() string {
	if in.Arg.Kind == OperandNone {
		return in.Op.Name()
	}
	return in.Op.Name() + " " + in.Arg.String()
}

// Program is a linked, loadable unit: the heap base and the code.
type Program struct {
	HeapBase int
	Code     []Instruction
}

// Len returns the number of instructions.
func (p *Program) Len() int {
	return len(p.Code)
}
