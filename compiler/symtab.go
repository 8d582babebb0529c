package compiler

import (
	"strconv"

	"github.com/chazu/orca/nlib"
)

// ---------------------------------------------------------------------------
// Symbol table: a stack of scope frames
// ---------------------------------------------------------------------------

type frame struct {
	vars    map[string]*Variable
	classes map[string]*Class
	funcs   []*Function
}

func newFrame() *frame {
	return &frame{
		vars:    make(map[string]*Variable),
		classes: make(map[string]*Class),
	}
}

type literalKey struct {
	value string
	typ   string
}

// SymbolTable resolves names for one compile. Addresses come from a single
// monotonic counter and are never reused, even after a frame is popped.
type SymbolTable struct {
	frames   []*frame
	literals []*Literal
	litIndex map[literalKey]*Literal
	next     int
}

// NewSymbolTable returns a table holding only the root frame.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		frames:   []*frame{newFrame()},
		litIndex: make(map[literalKey]*Literal),
	}
}

// LoadLibrary registers builtin classes and native functions in the root
// frame.
func (st *SymbolTable) LoadLibrary(lib *nlib.Library) {
	root := st.frames[0]
	for _, name := range lib.Classes {
		root.classes[name] = &Class{
			SymbolBase: SymbolBase{ID: name, Type: name, Address: -1},
			Builtin:    true,
		}
	}
	for _, nf := range lib.Functions {
		f := &Function{
			SymbolBase: SymbolBase{ID: nf.Name, Type: nf.Return, Address: -1},
			Native:     true,
			Invoke:     nf.Invoke,
			Doc:        nf.Doc,
		}
		for i, p := range nf.Params {
			f.Params = append(f.Params, &Variable{
				SymbolBase: SymbolBase{ID: "arg" + strconv.Itoa(i), Type: p, Address: -1},
			})
		}
		root.funcs = append(root.funcs, f)
	}
}

// Push opens a scope frame.
func (st *SymbolTable) Push() {
	st.frames = append(st.frames, newFrame())
}

// Pop closes the innermost frame. The root frame is never popped.
func (st *SymbolTable) Pop() {
	if len(st.frames) > 1 {
		st.frames = st.frames[:len(st.frames)-1]
	}
}

// Depth returns the number of open frames, including the root.
func (st *SymbolTable) Depth() int { return len(st.frames) }

func (st *SymbolTable) top() *frame { return st.frames[len(st.frames)-1] }

func (st *SymbolTable) allocate() int {
	addr := st.next
	st.next++
	return addr
}

// AvailableAddress returns the next unassigned address. After a compile it
// is the heap base.
func (st *SymbolTable) AvailableAddress() int { return st.next }

// AddVariable assigns an address to a new variable in the innermost frame.
func (st *SymbolTable) AddVariable(name, typ string) *Variable {
	v := &Variable{SymbolBase: SymbolBase{ID: name, Type: typ, Address: st.allocate()}}
	st.top().vars[name] = v
	return v
}

// Reserve assigns an address to a variable without recording it in any
// frame. Parameters are reserved when their function is registered so calls
// can be emitted before the body is compiled.
func (st *SymbolTable) Reserve(name, typ string) *Variable {
	return &Variable{SymbolBase: SymbolBase{ID: name, Type: typ, Address: st.allocate()}}
}

// Bind records a reserved variable in the innermost frame.
func (st *SymbolTable) Bind(v *Variable) {
	st.top().vars[v.ID] = v
}

// AddClass records a class in the innermost frame.
func (st *SymbolTable) AddClass(name string) *Class {
	c := &Class{SymbolBase: SymbolBase{ID: name, Type: name, Address: -1}}
	st.top().classes[name] = c
	return c
}

// AddFunction records a function overload in the innermost frame.
func (st *SymbolTable) AddFunction(f *Function) {
	f.Address = -1
	st.top().funcs = append(st.top().funcs, f)
}

// Literal returns the literal for (value, typ), adding it on first use.
func (st *SymbolTable) Literal(value, typ string) (*Literal, error) {
	key := literalKey{value, typ}
	if lit, ok := st.litIndex[key]; ok {
		return lit, nil
	}
	lit, err := newLiteral(value, typ)
	if err != nil {
		return nil, err
	}
	lit.Address = st.allocate()
	st.litIndex[key] = lit
	st.literals = append(st.literals, lit)
	return lit, nil
}

// Literals returns every literal in order of first use.
func (st *SymbolTable) Literals() []*Literal { return st.literals }

// LookupVariable finds the nearest variable named name.
func (st *SymbolTable) LookupVariable(name string) *Variable {
	for i := len(st.frames) - 1; i >= 0; i-- {
		if v, ok := st.frames[i].vars[name]; ok {
			return v
		}
	}
	return nil
}

// LocalVariable finds a variable in the innermost frame only.
func (st *SymbolTable) LocalVariable(name string) *Variable {
	return st.top().vars[name]
}

// LookupClass finds the nearest class named name.
func (st *SymbolTable) LookupClass(name string) *Class {
	for i := len(st.frames) - 1; i >= 0; i-- {
		if c, ok := st.frames[i].classes[name]; ok {
			return c
		}
	}
	return nil
}

// LocalClass finds a class in the innermost frame only.
func (st *SymbolTable) LocalClass(name string) *Class {
	return st.top().classes[name]
}

// IsType reports whether name is a known class or the wildcard type.
func (st *SymbolTable) IsType(name string) bool {
	return name == TypeAny || st.LookupClass(name) != nil
}

// LookupFunction finds the nearest overload of name whose parameters accept
// args. A "*" on either side matches any type.
func (st *SymbolTable) LookupFunction(name string, args []string) *Function {
	for i := len(st.frames) - 1; i >= 0; i-- {
		for _, f := range st.frames[i].funcs {
			if f.ID == name && typesMatch(f.ParamTypes(), args) {
				return f
			}
		}
	}
	return nil
}

// LocalFunction finds an overload in the innermost frame with exactly the
// given parameter types.
func (st *SymbolTable) LocalFunction(name string, params []string) *Function {
	for _, f := range st.top().funcs {
		if f.ID == name && typesEqual(f.ParamTypes(), params) {
			return f
		}
	}
	return nil
}

// HasFunction reports whether any overload of name is visible.
func (st *SymbolTable) HasFunction(name string) bool {
	for i := len(st.frames) - 1; i >= 0; i-- {
		for _, f := range st.frames[i].funcs {
			if f.ID == name {
				return true
			}
		}
	}
	return false
}

// Functions returns every visible function, innermost frame first.
func (st *SymbolTable) Functions() []*Function {
	var out []*Function
	for i := len(st.frames) - 1; i >= 0; i-- {
		out = append(out, st.frames[i].funcs...)
	}
	return out
}

func typesMatch(params, args []string) bool {
	if len(params) != len(args) {
		return false
	}
	for i := range params {
		if params[i] != args[i] && params[i] != TypeAny && args[i] != TypeAny {
			return false
		}
	}
	return true
}

func typesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
