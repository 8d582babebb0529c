package compiler

import (
	"strings"

	"github.com/chazu/orca/nlib"
	"github.com/chazu/orca/vm"
)

// ---------------------------------------------------------------------------
// Parser: two-pass code generator over the block tree
// ---------------------------------------------------------------------------

// Parser compiles a block tree straight to instructions. Each block is
// compiled in two passes: scan registers the classes and function
// signatures declared directly in the block, then parse emits code for its
// statements in order. Nested blocks are scanned when parse enters them, so
// every level supports forward references.
type Parser struct {
	st    *SymbolTable
	diag  *sink
	flags int

	// Results of scan, keyed by declaring statement.
	functions map[*Block]*Function
	classes   map[*Block]*Class
	duplicate map[*Block]bool // class declarations rejected as duplicates
}

// parseContext is what the parser knows about the enclosing code.
type parseContext struct {
	fn   *Function // innermost function, nil at top level
	loop *loopFlags
}

type loopFlags struct {
	entry, exit int
}

// NewParser creates a parser resolving names through st.
func NewParser(st *SymbolTable) *Parser {
	return &Parser{
		st:        st,
		diag:      &sink{},
		functions: make(map[*Block]*Function),
		classes:   make(map[*Block]*Class),
		duplicate: make(map[*Block]bool),
	}
}

// Diagnostics returns everything reported so far.
func (p *Parser) Diagnostics() Diagnostics { return p.diag.diags }

func (p *Parser) newFlag() int {
	id := p.flags
	p.flags++
	return id
}

// Program compiles the root block in the current frame.
func (p *Parser) Program(root *Block) []vm.Instruction {
	return p.block(root, parseContext{})
}

// block compiles the entries of b in the current frame.
func (p *Parser) block(b *Block, ctx parseContext) []vm.Instruction {
	code := p.scan(b.Entries)
	return append(code, p.parse(b.Entries, ctx)...)
}

// nested compiles b in a new frame.
func (p *Parser) nested(b *Block, ctx parseContext) []vm.Instruction {
	if b == nil {
		return nil
	}
	p.st.Push()
	defer p.st.Pop()
	return p.block(b, ctx)
}

// nextBlock returns the braced entry following entries[i], if any.
func nextBlock(entries []*Block, i int) *Block {
	if i+1 < len(entries) && entries[i+1].Braced {
		return entries[i+1]
	}
	return nil
}

// bodyOf returns the body of the header at entries[i] and the index of the
// entry after it. Inline tokens form a single-statement body.
func bodyOf(entries []*Block, i int, inline []*Token) (*Block, int) {
	if len(inline) > 0 {
		stmt := &Block{Line: inline[0].Line, Tokens: inline}
		return &Block{Line: stmt.Line, Braced: true, Entries: []*Block{stmt}}, i + 1
	}
	if b := nextBlock(entries, i); b != nil {
		return b, i + 2
	}
	return nil, i + 1
}

// ---------------------------------------------------------------------------
// Pass 1: scan
// ---------------------------------------------------------------------------

// scan registers the class names, then the function signatures, declared
// in entries, and only then the class members, so member initializers can
// call any function of the block. It returns the member reservation code.
func (p *Parser) scan(entries []*Block) []vm.Instruction {
	classes := p.registerClasses(entries)

	p.diag.suppressed(func() {
		for i, e := range entries {
			if e.Braced || classify(e.Tokens) != stmtFunctionDecl {
				continue
			}
			if nextBlock(entries, i) != nil {
				p.registerFunction(e)
			}
		}
	})

	var code []vm.Instruction
	for _, pc := range classes {
		code = append(code, p.scanClassBody(pc)...)
	}
	return code
}

// pendingClass is a registered class whose members are not scanned yet.
type pendingClass struct {
	class  *Class
	body   *Block
	nested []pendingClass
}

// registerClasses adds the classes declared in entries, and the classes
// nested in their bodies, to the current frame.
func (p *Parser) registerClasses(entries []*Block) []pendingClass {
	var pending []pendingClass
	for i, e := range entries {
		if e.Braced || classify(e.Tokens) != stmtClassDecl {
			continue
		}
		body := nextBlock(entries, i)
		if body == nil {
			continue
		}
		if c := p.registerClass(e); c != nil {
			pending = append(pending, pendingClass{c, body, p.registerClasses(body.Entries)})
		}
	}
	return pending
}

func (p *Parser) registerClass(stmt *Block) *Class {
	var syn *ClassDeclSyntax
	p.diag.suppressed(func() { syn = analyzeClassDecl(p.diag, stmt.Tokens) })
	if syn == nil {
		return nil
	}
	if existing := p.st.LookupClass(syn.Name); existing != nil && (existing.Builtin || p.st.LocalClass(syn.Name) != nil) {
		p.duplicate[stmt] = true
		return nil
	}
	c := p.st.AddClass(syn.Name)
	p.classes[stmt] = c
	return c
}

// scanClassBody scans nested classes, then adds the members in a frame of
// their own. Member diagnostics are reported here because parse skips
// variable declarations in a class body.
func (p *Parser) scanClassBody(pc pendingClass) []vm.Instruction {
	var code []vm.Instruction
	for _, nested := range pc.nested {
		code = append(code, p.scanClassBody(nested)...)
	}
	c, body := pc.class, pc.body

	p.st.Push()
	defer p.st.Pop()
	for _, e := range body.Entries {
		if e.Braced || classify(e.Tokens) != stmtVarDecl {
			continue
		}
		mark := p.diag.mark()
		v, vcode := p.declare(e.Tokens)
		if v != nil {
			c.Members = append(c.Members, v)
		}
		if !p.diag.failedSince(mark) {
			code = append(code, vcode...)
		}
	}
	return code
}

// signature resolves the declared types of a function. Parameters get
// addresses only once the signature is known to be valid.
func (p *Parser) signature(syn *FunctionDeclSyntax) *Function {
	f := &Function{
		SymbolBase: SymbolBase{ID: syn.Name, Type: syn.Return},
		Line:       syn.Line,
	}
	var names, types []string
	if syn.Class != "" {
		c := p.st.LookupClass(syn.Class)
		if c == nil || c.Builtin {
			p.diag.report(ReferenceError, syn.Line, "class %s is not defined", syn.Class)
			return nil
		}
		names = append(names, "this")
		types = append(types, c.ID)
	}
	for _, param := range syn.Params {
		names = append(names, param.Name)
		types = append(types, param.Type)
	}

	seen := make(map[string]bool)
	for i, name := range names {
		if seen[name] {
			p.diag.report(DuplicationError, syn.Line, "parameter %s of %s is declared twice", name, syn.Name)
			return nil
		}
		seen[name] = true
		if !p.st.IsType(types[i]) || types[i] == TypeVoid {
			p.diag.report(ReferenceError, syn.Line, "type %s of parameter %s is not defined", types[i], name)
			return nil
		}
	}
	if !p.st.IsType(syn.Return) {
		p.diag.report(ReferenceError, syn.Line, "return type %s of %s is not defined", syn.Return, syn.Name)
		return nil
	}

	if p.st.LocalFunction(syn.Name, types) != nil {
		p.diag.report(DuplicationError, syn.Line, "function %s(%s) is already defined", syn.Name, strings.Join(types, ", "))
		return nil
	}

	for i, name := range names {
		param := p.st.Reserve(name, types[i])
		param.Initialized = true
		f.Params = append(f.Params, param)
	}
	return f
}

func (p *Parser) registerFunction(stmt *Block) {
	syn := analyzeFunctionDecl(p.diag, stmt.Tokens)
	if syn == nil {
		return
	}
	f := p.signature(syn)
	if f == nil {
		return
	}
	f.EntryFlag = p.newFlag()
	f.ExitFlag = p.newFlag()
	p.st.AddFunction(f)
	p.functions[stmt] = f
}

// ---------------------------------------------------------------------------
// Pass 2: parse
// ---------------------------------------------------------------------------

func (p *Parser) parse(entries []*Block, ctx parseContext) []vm.Instruction {
	var code []vm.Instruction
	for i := 0; i < len(entries); i++ {
		e := entries[i]
		if e.Braced {
			code = append(code, p.nested(e, ctx)...)
			continue
		}

		var c []vm.Instruction
		switch kind := classify(e.Tokens); kind {
		case stmtVarDecl:
			c = p.simple(func() []vm.Instruction {
				_, vcode := p.declare(e.Tokens)
				return vcode
			})
		case stmtFunctionDecl:
			body := nextBlock(entries, i)
			if body != nil {
				i++
			}
			c = p.function(e, body)
		case stmtClassDecl:
			body := nextBlock(entries, i)
			if body != nil {
				i++
			}
			p.class(e, body)
		case stmtIf:
			c, i = p.ifChain(entries, i, ctx)
		case stmtElseIf, stmtElse:
			p.diag.report(SyntaxError, e.Line, "else without a matching if")
			if nextBlock(entries, i) != nil {
				i++
			}
		case stmtFor:
			c, i = p.forLoop(entries, i, ctx)
		case stmtWhile:
			c, i = p.whileLoop(entries, i, ctx)
		case stmtContinue, stmtBreak:
			c = p.simple(func() []vm.Instruction { return p.jump(e.Tokens, ctx) })
		case stmtReturn:
			c = p.simple(func() []vm.Instruction { return p.ret(e.Tokens, ctx) })
		case stmtInclude:
			p.diag.report(Unsupported, e.Line, "include is not supported")
		default:
			c = p.simple(func() []vm.Instruction { return p.statement(e.Tokens) })
		}
		code = append(code, c...)
	}
	return code
}

// simple runs a single-statement emitter and drops its code when it
// reported anything.
func (p *Parser) simple(emit func() []vm.Instruction) []vm.Instruction {
	mark := p.diag.mark()
	code := emit()
	if p.diag.failedSince(mark) {
		return nil
	}
	return code
}

// declare adds a variable and emits its reservation and initializer. The
// symbol is returned even when the initializer fails so later uses resolve.
func (p *Parser) declare(tokens []*Token) (*Variable, []vm.Instruction) {
	syn := analyzeVarDecl(p.diag, tokens)
	if syn == nil {
		return nil, nil
	}
	name, line := syn.Name.Literal, syn.Name.Line
	switch {
	case syn.Type == TypeVoid:
		p.diag.report(TypeError, line, "variable %s cannot be void", name)
		return nil, nil
	case !p.st.IsType(syn.Type):
		p.diag.report(ReferenceError, line, "type %s is not defined", syn.Type)
		return nil, nil
	case p.st.LocalVariable(name) != nil:
		p.diag.report(DuplicationError, line, "%s is already declared in this scope", name)
		return nil, nil
	}

	v := p.st.AddVariable(name, syn.Type)
	code := []vm.Instruction{reserve(v)}
	if syn.Init == nil {
		return v, code
	}
	init, ok := p.expr(syn.Init, line)
	if !ok {
		return v, nil
	}
	code = append(code, lower(init.tokens)...)
	return v, append(code, vm.InstInt(vm.OpPOP, 0))
}

func (p *Parser) function(stmt, body *Block) []vm.Instruction {
	f := p.functions[stmt]
	if f == nil {
		p.reportFunction(stmt, body)
		return nil
	}

	p.st.Push()
	for _, param := range f.Params {
		p.st.Bind(param)
	}
	inner := p.block(body, parseContext{fn: f})
	p.st.Pop()

	code := jumpTo(f.ExitFlag)
	code = append(code, defineFlag(f.EntryFlag))
	code = append(code, inner...)
	code = append(code, vm.Inst(vm.OpMOC), vm.Inst(vm.OpJMP))
	return append(code, defineFlag(f.ExitFlag))
}

// reportFunction explains why scan did not register a declaration.
func (p *Parser) reportFunction(stmt, body *Block) {
	syn := analyzeFunctionDecl(p.diag, stmt.Tokens)
	switch {
	case syn == nil:
	case body == nil:
		p.diag.report(SyntaxError, stmt.Line, "expected a body for function %s", syn.Name)
	default:
		p.signature(syn)
	}
}

// class checks a class body. Members were emitted by scan.
func (p *Parser) class(stmt, body *Block) {
	if p.classes[stmt] == nil {
		syn := analyzeClassDecl(p.diag, stmt.Tokens)
		switch {
		case syn == nil:
		case body == nil:
			p.diag.report(SyntaxError, stmt.Line, "expected a body for class %s", syn.Name)
		case p.duplicate[stmt]:
			p.diag.report(DuplicationError, stmt.Line, "class %s is already defined", syn.Name)
		}
		return
	}

	entries := body.Entries
	for i := 0; i < len(entries); i++ {
		e := entries[i]
		if e.Braced {
			p.diag.report(ScopeError, e.Line, "unexpected block in a class body")
			continue
		}
		switch kind := classify(e.Tokens); kind {
		case stmtVarDecl:
		case stmtClassDecl:
			nb := nextBlock(entries, i)
			if nb != nil {
				i++
			}
			p.class(e, nb)
		default:
			p.diag.report(ScopeError, e.Line, "only variable and class declarations are allowed in a class body")
			if kind.takesBody() && nextBlock(entries, i) != nil {
				i++
			}
		}
	}
}

// condition emits a branch condition, which must be a number or bool.
func (p *Parser) condition(tokens []*Token, line int) ([]vm.Instruction, bool) {
	x, ok := p.expr(tokens, line)
	if !ok {
		return nil, false
	}
	if !numeric(x.typ) {
		p.diag.report(TypeError, line, "condition must be a number or bool, not %s", x.typ)
		return nil, false
	}
	return lower(x.tokens), true
}

// ifChain compiles an if with its else-if and else branches. It returns
// the index of the last entry consumed.
func (p *Parser) ifChain(entries []*Block, i int, ctx parseContext) ([]vm.Instruction, int) {
	chainExit := p.newFlag()
	var code []vm.Instruction
	failed := false

	for {
		e := entries[i]
		kind := classify(e.Tokens)
		mark := p.diag.mark()
		var syn *CondSyntax
		switch kind {
		case stmtIf:
			syn = analyzeIf(p.diag, e.Tokens)
		case stmtElseIf:
			syn = analyzeElseIf(p.diag, e.Tokens)
		default:
			syn = analyzeElse(e.Tokens)
		}

		var inline []*Token
		if syn != nil {
			inline = syn.Inline
		}
		body, next := bodyOf(entries, i, inline)
		if body == nil {
			p.diag.report(SyntaxError, e.Line, "expected a body after %s", e.Tokens[0].Literal)
		}
		chained := kind != stmtElse && next < len(entries) && entries[next].StartsWith(TokenElse)

		if kind == stmtElse {
			code = append(code, p.nested(body, ctx)...)
		} else {
			var cond []vm.Instruction
			if syn != nil {
				cond, _ = p.condition(syn.Cond, e.Line)
			}
			skip := p.newFlag()
			code = append(code, cond...)
			code = append(code, jumpUnless(skip)...)
			code = append(code, p.nested(body, ctx)...)
			if chained {
				code = append(code, jumpTo(chainExit)...)
			}
			code = append(code, defineFlag(skip))
		}
		failed = failed || p.diag.failedSince(mark)

		i = next
		if !chained {
			break
		}
	}

	if failed {
		return nil, i - 1
	}
	return append(code, defineFlag(chainExit)), i - 1
}

func (p *Parser) forLoop(entries []*Block, i int, ctx parseContext) ([]vm.Instruction, int) {
	e := entries[i]
	mark := p.diag.mark()
	syn := analyzeFor(p.diag, e.Tokens)
	if syn == nil {
		_, next := bodyOf(entries, i, nil)
		return nil, next - 1
	}
	body, next := bodyOf(entries, i, syn.Inline)
	if body == nil {
		p.diag.report(SyntaxError, e.Line, "expected a body after for")
	}

	name := syn.Counter.Literal
	if p.st.LocalVariable(name) != nil {
		p.diag.report(DuplicationError, e.Line, "loop counter %s is already declared in this scope", name)
	}
	from, ok := p.expr(syn.From, e.Line)
	if ok && from.typ != TypeNumber && from.typ != TypeAny {
		p.diag.report(TypeError, e.Line, "loop start must be a number, not %s", from.typ)
	}

	p.st.Push()
	defer p.st.Pop()
	counter := p.st.AddVariable(name, TypeNumber)
	counter.Initialized = true

	ref := NewToken(TokenID, name, syn.Counter.Line)
	le := NewToken(TokenLe, "<=", syn.Counter.Line)
	cond, _ := p.condition(append([]*Token{ref, le}, syn.To...), e.Line)

	flags := &loopFlags{entry: p.newFlag(), exit: p.newFlag()}
	inner := p.block(orEmpty(body), parseContext{fn: ctx.fn, loop: flags})

	if p.diag.failedSince(mark) {
		return nil, next - 1
	}

	code := []vm.Instruction{vm.InstInt(vm.OpSAL, counter.Address)}
	code = append(code, lower(from.tokens)...)
	code = append(code,
		vm.InstInt(vm.OpPSH, -1),
		opr(vm.OprAdd),
		vm.InstInt(vm.OpPSH, counter.Address),
		vm.Inst(vm.OpSTO),
		defineFlag(flags.entry),
		vm.InstInt(vm.OpPSH, counter.Address),
		vm.InstInt(vm.OpIVK, nlib.InvokeLoopCounter),
	)
	code = append(code, cond...)
	code = append(code, jumpUnless(flags.exit)...)
	code = append(code, inner...)
	code = append(code, jumpTo(flags.entry)...)
	return append(code, defineFlag(flags.exit)), next - 1
}

func (p *Parser) whileLoop(entries []*Block, i int, ctx parseContext) ([]vm.Instruction, int) {
	e := entries[i]
	mark := p.diag.mark()
	syn := analyzeWhile(p.diag, e.Tokens)
	if syn == nil {
		_, next := bodyOf(entries, i, nil)
		return nil, next - 1
	}
	body, next := bodyOf(entries, i, syn.Inline)
	if body == nil {
		p.diag.report(SyntaxError, e.Line, "expected a body after while")
	}

	cond, _ := p.condition(syn.Cond, e.Line)
	flags := &loopFlags{entry: p.newFlag(), exit: p.newFlag()}
	inner := p.nested(body, parseContext{fn: ctx.fn, loop: flags})

	if p.diag.failedSince(mark) {
		return nil, next - 1
	}

	code := []vm.Instruction{defineFlag(flags.entry)}
	code = append(code, cond...)
	code = append(code, jumpUnless(flags.exit)...)
	code = append(code, inner...)
	code = append(code, jumpTo(flags.entry)...)
	return append(code, defineFlag(flags.exit)), next - 1
}

func orEmpty(b *Block) *Block {
	if b == nil {
		return &Block{Braced: true}
	}
	return b
}

func (p *Parser) jump(tokens []*Token, ctx parseContext) []vm.Instruction {
	if !analyzeJump(p.diag, tokens) {
		return nil
	}
	if ctx.loop == nil {
		p.diag.report(ScopeError, lineOf(tokens), "%s outside a loop", tokens[0].Literal)
		return nil
	}
	if tokens[0].Type == TokenContinue {
		return jumpTo(ctx.loop.entry)
	}
	return jumpTo(ctx.loop.exit)
}

func (p *Parser) ret(tokens []*Token, ctx parseContext) []vm.Instruction {
	line := lineOf(tokens)
	if ctx.fn == nil {
		p.diag.report(ScopeError, line, "return outside a function")
		return nil
	}
	syn := analyzeReturn(tokens)
	fn := ctx.fn
	exit := []vm.Instruction{vm.Inst(vm.OpMOC), vm.Inst(vm.OpJMP)}

	if fn.Type == TypeVoid {
		if len(syn.Value) > 0 {
			p.diag.report(TypeError, line, "%s returns void and cannot return a value", fn.ID)
			return nil
		}
		return exit
	}
	if len(syn.Value) == 0 {
		p.diag.report(TypeError, line, "%s must return a %s", fn.ID, fn.Type)
		return nil
	}
	x, ok := p.expr(syn.Value, line)
	if !ok {
		return nil
	}
	if got, want := unifyBool(x.typ), unifyBool(fn.Type); got != want && got != TypeAny && want != TypeAny {
		p.diag.report(TypeError, line, "%s must return a %s, not %s", fn.ID, fn.Type, x.typ)
		return nil
	}
	return append(lower(x.tokens), exit...)
}

func unifyBool(typ string) string {
	if typ == TypeBool {
		return TypeNumber
	}
	return typ
}

// statement emits a plain expression statement. Its value is discarded.
func (p *Parser) statement(tokens []*Token) []vm.Instruction {
	x, ok := p.expr(tokens, lineOf(tokens))
	if !ok {
		return nil
	}
	last := x.tokens[len(x.tokens)-1]
	if last.Type.IsIncrement() {
		last.SuppressPush = true
		return lower(x.tokens)
	}
	code := lower(x.tokens)
	if x.typ == TypeVoid {
		return code
	}
	return append(code, vm.InstInt(vm.OpPOP, 0))
}
