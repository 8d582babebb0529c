package vm

import (
	"context"
	"fmt"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("orca.vm")

// DefaultMaxStack is the operand/call stack limit used when none is set.
const DefaultMaxStack = 1024 * 20

// cancelCheckInterval is how many instructions run between context checks.
const cancelCheckInterval = 1024

// ---------------------------------------------------------------------------
// Natives
// ---------------------------------------------------------------------------

// NativeContext is the machine surface available to native functions.
// Pop faults the run on underflow.
type NativeContext interface {
	Context() context.Context
	Pop() Value
	Push(v Value)
	Memory() *Memory
	Console() *Console
}

// NativeFunc implements one IVK code. A returned error is fatal to the run.
type NativeFunc func(nc NativeContext) error

// Natives maps invoke codes to implementations.
type Natives map[int]NativeFunc

// ---------------------------------------------------------------------------
// Machine
// ---------------------------------------------------------------------------

// Option configures a Machine.
type Option func(*Machine)

// WithMaxStack sets the operand and call stack limit.
func WithMaxStack(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.maxStack = n
		}
	}
}

// WithNatives installs the native invoke table.
func WithNatives(n Natives) Option {
	return func(m *Machine) { m.natives = n }
}

// WithConsole sets the console used by print/read natives.
func WithConsole(c *Console) Option {
	return func(m *Machine) { m.console = c }
}

// WithTrace logs every executed instruction at debug level.
func WithTrace(trace bool) Option {
	return func(m *Machine) { m.trace = trace }
}

// Machine executes linked Orca programs. A Machine is not safe for
// concurrent use; independent runs should use independent machines.
type Machine struct {
	maxStack int
	natives  Natives
	console  *Console
	trace    bool

	program *Program
	memory  *Memory
	stack   []Value
	regs    map[int]Value
	calls   []int
	scopes  [][]int
	pc      int
	halted  bool
	steps   uint64
	ctx     context.Context
}

// New creates a machine.
func New(opts ...Option) *Machine {
	m := &Machine{
		maxStack: DefaultMaxStack,
		natives:  Natives{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.console == nil {
		m.console = NewConsole(nil)
	}
	return m
}

// Load installs a program and resets all execution state.
func (m *Machine) Load(p *Program) {
	m.program = p
	m.memory = NewMemory(p.HeapBase)
	m.stack = m.stack[:0]
	m.regs = make(map[int]Value)
	m.calls = nil
	m.scopes = [][]int{{}}
	m.pc = 0
	m.halted = false
	m.steps = 0
}

// Run executes until END, a fault, or cancellation of ctx.
func (m *Machine) Run(ctx context.Context) (err error) {
	if m.program == nil {
		return ErrNoProgram
	}
	m.ctx = ctx
	defer func() {
		if r := recover(); r != nil {
			err = m.recoverFault(r)
		}
	}()

	code := m.program.Code
	for !m.halted {
		if m.pc < 0 || m.pc >= len(code) {
			fault("program counter %d outside code (len %d)", m.pc, len(code))
		}
		if m.steps%cancelCheckInterval == 0 {
			if cerr := ctx.Err(); cerr != nil {
				panic(&Fault{Message: "run cancelled", Err: cerr})
			}
		}
		m.steps++

		in := code[m.pc]
		if m.trace {
			log.Debugf("%5d  %-16s stack=%d", m.pc, in, len(m.stack))
		}
		if m.exec(in) {
			continue
		}
		m.pc++
	}
	return nil
}

func (m *Machine) recoverFault(r interface{}) error {
	f, ok := r.(*Fault)
	if !ok {
		f = &Fault{Message: fmt.Sprint(r)}
		if e, isErr := r.(error); isErr {
			f.Err = e
		}
	}
	f.PC = m.pc
	if m.program != nil && m.pc >= 0 && m.pc < len(m.program.Code) {
		f.Op = m.program.Code[m.pc].Op
	}
	m.halted = true
	log.Errorf("%s", f.Error())
	return f
}

// exec runs one instruction and reports whether it set the program counter.
func (m *Machine) exec(in Instruction) bool {
	switch in.Op {
	case OpPSH:
		if in.Arg.Kind == OperandFlag {
			fault("unlinked flag %s", in.Arg)
		}
		m.Push(in.Arg.Value())

	case OpPSR:
		m.Push(m.regs[in.Addr])

	case OpPSM:
		m.Push(m.read(in.Addr))

	case OpPOP:
		m.regs[in.Addr] = m.Pop()

	case OpOPR:
		m.Push(m.operate(Operator(in.Addr)))

	case OpJMP:
		m.pc = m.popAddress()
		return true

	case OpJMF:
		target := m.popAddress()
		if m.toNumber(m.Pop()) <= 0 {
			m.pc = target
			return true
		}

	case OpIVK:
		m.invoke(in.Addr)

	case OpSAL:
		m.reserve(in.Addr, Undefined)

	case OpSAA:
		m.reserve(in.Addr, NewArray())

	case OpDAL:
		m.Push(FromInt(m.memory.AllocateHeap(Undefined)))

	case OpDAA:
		arr := NewArray()
		m.memory.AllocateHeap(arr)
		m.Push(arr)

	case OpSTO:
		addr := m.popAddress()
		m.write(addr, m.Pop())

	case OpSTA:
		arr := m.popArray()
		idx := m.popIndex()
		m.storeElement(arr, idx, m.Pop())

	case OpOSC:
		m.scopes = append(m.scopes, nil)

	case OpCSC:
		if len(m.scopes) <= 1 {
			fault("scope close without matching open")
		}
		top := m.scopes[len(m.scopes)-1]
		m.scopes = m.scopes[:len(m.scopes)-1]
		for _, addr := range top {
			m.memory.Free(addr)
		}

	case OpFRE:
		m.memory.Free(in.Addr)

	case OpRDA:
		arr := m.popArray()
		idx := m.popIndex()
		m.Push(m.loadElement(arr, idx))

	case OpPSC:
		if len(m.calls) >= m.maxStack {
			fault("call stack overflow (limit %d)", m.maxStack)
		}
		m.calls = append(m.calls, m.pc+ReturnOffset)

	case OpMOC:
		if len(m.calls) == 0 {
			fault("return without a captured return address")
		}
		ret := m.calls[len(m.calls)-1]
		m.calls = m.calls[:len(m.calls)-1]
		m.Push(FromInt(ret))

	case OpEND:
		m.halted = true

	default:
		fault("unknown opcode %s", in.Op)
	}
	return false
}

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

// Push pushes v onto the operand stack.
func (m *Machine) Push(v Value) {
	if len(m.stack) >= m.maxStack {
		fault("stack overflow (limit %d)", m.maxStack)
	}
	m.stack = append(m.stack, v)
}

// Pop removes and returns the top of the operand stack.
func (m *Machine) Pop() Value {
	n := len(m.stack)
	if n == 0 {
		fault("stack underflow")
	}
	v := m.stack[n-1]
	m.stack[n-1] = Undefined
	m.stack = m.stack[:n-1]
	return v
}

func (m *Machine) popAddress() int {
	v := m.Pop()
	if !v.IsNumber() {
		fault("expected address, got %s", v.Kind())
	}
	return int(v.Float64())
}

func (m *Machine) popArray() *Array {
	v := m.Pop()
	if !v.IsArray() {
		fault("expected array, got %s", v.Kind())
	}
	return v.Array()
}

func (m *Machine) popIndex() int {
	v := m.Pop()
	return int(m.toNumber(v))
}

// ---------------------------------------------------------------------------
// Memory helpers
// ---------------------------------------------------------------------------

func (m *Machine) reserve(addr int, v Value) {
	if err := m.memory.Allocate(addr, v); err != nil {
		faultErr(err)
	}
	top := len(m.scopes) - 1
	m.scopes[top] = append(m.scopes[top], addr)
}

func (m *Machine) read(addr int) Value {
	v, err := m.memory.Read(addr)
	if err != nil {
		faultErr(err)
	}
	return v
}

func (m *Machine) write(addr int, v Value) Value {
	v, err := m.memory.Write(addr, v)
	if err != nil {
		faultErr(err)
	}
	return v
}

func (m *Machine) loadElement(arr *Array, idx int) Value {
	if idx < 0 || idx >= len(arr.Elems) {
		fault("index %d out of range (len %d)", idx, len(arr.Elems))
	}
	return arr.Elems[idx]
}

// storeElement sets arr[idx], growing the array when idx is past the end.
func (m *Machine) storeElement(arr *Array, idx int, v Value) Value {
	if idx < 0 {
		fault("negative index %d", idx)
	}
	for len(arr.Elems) <= idx {
		arr.Elems = append(arr.Elems, Undefined)
	}
	arr.Elems[idx] = v
	return v
}

// ---------------------------------------------------------------------------
// Natives
// ---------------------------------------------------------------------------

func (m *Machine) invoke(code int) {
	fn, ok := m.natives[code]
	if !ok {
		fault("unknown invoke code %d", code)
	}
	if err := fn(m); err != nil {
		faultErr(err)
	}
}

// Context returns the context of the current run.
func (m *Machine) Context() context.Context {
	if m.ctx == nil {
		return context.Background()
	}
	return m.ctx
}

// Memory returns the machine's memory store.
func (m *Machine) Memory() *Memory { return m.memory }

// Console returns the machine's console.
func (m *Machine) Console() *Console { return m.console }

// ---------------------------------------------------------------------------
// Introspection
// ---------------------------------------------------------------------------

// PC returns the program counter.
func (m *Machine) PC() int { return m.pc }

// Halted reports whether the machine reached END or faulted.
func (m *Machine) Halted() bool { return m.halted }

// Steps returns the number of instructions executed since Load.
func (m *Machine) Steps() uint64 { return m.steps }

// Stack returns a copy of the operand stack, bottom first.
func (m *Machine) Stack() []Value {
	out := make([]Value, len(m.stack))
	copy(out, m.stack)
	return out
}

// Register returns the value in register r.
func (m *Machine) Register(r int) Value { return m.regs[r] }

// ScopeDepth returns the number of open scopes, including the outermost.
func (m *Machine) ScopeDepth() int { return len(m.scopes) }
