package compiler

import (
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Expressions: typing and postfix ordering
// ---------------------------------------------------------------------------

// parsed is a typed expression in postfix order, ready for lowering.
type parsed struct {
	tokens []*Token
	typ    string
}

func (p *Parser) fail() (parsed, bool) { return parsed{}, false }

// expr parses an expression. On failure a diagnostic was reported.
func (p *Parser) expr(tokens []*Token, line int) (parsed, bool) {
	if len(tokens) == 0 {
		p.diag.report(SyntaxError, line, "expected an expression")
		return p.fail()
	}
	line = lineOf(tokens)
	tokens = pill(tokens)
	if len(tokens) == 0 {
		p.diag.report(SyntaxError, line, "empty parentheses")
		return p.fail()
	}

	form, k := classifyExpr(tokens)
	switch form {
	case exprAtom:
		return p.atom(tokens[0])
	case exprCall:
		return p.call(tokens)
	case exprArray:
		return p.arrayLiteral(tokens)
	case exprInstance:
		return p.instance(tokens)
	case exprAttribute:
		return p.attribute(tokens, k)
	case exprSubscript:
		return p.subscript(tokens, k)
	case exprCast:
		return p.cast(tokens, k)
	case exprSuffix:
		return p.suffix(tokens, k)
	case exprPrefix:
		return p.prefix(tokens, k)
	case exprInfix:
		return p.infix(tokens, k)
	}
	p.diag.report(SyntaxError, line, "cannot parse %s", spell(tokens))
	return p.fail()
}

func spell(tokens []*Token) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		if t.Type == TokenString {
			parts[i] = strconv.Quote(t.Literal)
		} else {
			parts[i] = t.Literal
		}
	}
	return strings.Join(parts, " ")
}

func (p *Parser) atom(t *Token) (parsed, bool) {
	switch t.Type {
	case TokenID:
		v := p.st.LookupVariable(t.Literal)
		if v == nil {
			p.diag.report(ReferenceError, t.Line, "%s is not defined", t.Literal)
			return p.fail()
		}
		t.Symbol = v
		return parsed{[]*Token{t}, v.Type}, true
	case TokenNumber, TokenString:
		typ := TypeNumber
		if t.Type == TokenString {
			typ = TypeString
		}
		lit, err := p.st.Literal(t.Literal, typ)
		if err != nil {
			p.diag.report(SyntaxError, t.Line, "%v", err)
			return p.fail()
		}
		t.Symbol = lit
		return parsed{[]*Token{t}, typ}, true
	case TokenTrue, TokenFalse:
		value := "0"
		if t.Type == TokenTrue {
			value = "1"
		}
		lit, _ := p.st.Literal(value, TypeNumber)
		t.Symbol = lit
		return parsed{[]*Token{t}, TypeBool}, true
	}
	p.diag.report(SyntaxError, t.Line, "unexpected %s", t.Literal)
	return p.fail()
}

// exprList parses each part, reporting every failure.
func (p *Parser) exprList(parts [][]*Token, line int) ([]parsed, bool) {
	out := make([]parsed, len(parts))
	ok := true
	for i, part := range parts {
		var good bool
		out[i], good = p.expr(part, line)
		ok = ok && good
	}
	return out, ok
}

func typesOf(list []parsed) []string {
	types := make([]string, len(list))
	for i, e := range list {
		types[i] = e.typ
	}
	return types
}

// reversed concatenates the code of list from last to first, so the first
// element ends up on top of the stack.
func reversed(list []parsed) []*Token {
	var out []*Token
	for i := len(list) - 1; i >= 0; i-- {
		out = append(out, list[i].tokens...)
	}
	return out
}

// resolveCall finds the overload of name accepting types.
func (p *Parser) resolveCall(name *Token, types []string) (*Function, bool) {
	f := p.st.LookupFunction(name.Literal, types)
	if f != nil {
		return f, true
	}
	if p.st.HasFunction(name.Literal) {
		p.diag.report(TypeError, name.Line, "no overload of %s accepts (%s)", name.Literal, strings.Join(types, ", "))
	} else {
		p.diag.report(ReferenceError, name.Line, "function %s is not defined", name.Literal)
	}
	return nil, false
}

func (p *Parser) call(tokens []*Token) (parsed, bool) {
	syn := analyzeCall(p.diag, tokens)
	if syn == nil {
		return p.fail()
	}
	args, ok := p.exprList(syn.Args, syn.Name.Line)
	if !ok {
		return p.fail()
	}
	f, ok := p.resolveCall(syn.Name, typesOf(args))
	if !ok {
		return p.fail()
	}
	callTok := NewToken(TokenID, syn.Name.Literal, syn.Name.Line)
	callTok.Symbol = f
	return parsed{append(reversed(args), callTok), f.Type}, true
}

func (p *Parser) arrayLiteral(tokens []*Token) (parsed, bool) {
	parts, ok := analyzeArray(p.diag, tokens)
	if !ok {
		return p.fail()
	}
	elems, ok := p.exprList(parts, lineOf(tokens))
	if !ok {
		return p.fail()
	}
	line := lineOf(tokens)
	var code []*Token
	for i := len(elems) - 1; i >= 0; i-- {
		code = append(code, elems[i].tokens...)
		code = append(code, indexToken(i, line))
	}
	arr := NewToken(TokenArray, "[]", line)
	arr.Count = len(elems)
	return parsed{append(code, arr), TypeArray}, true
}

// indexToken is an untagged number: lowered to an immediate push.
func indexToken(i, line int) *Token {
	return NewToken(TokenNumber, strconv.Itoa(i), line)
}

func (p *Parser) instance(tokens []*Token) (parsed, bool) {
	name := tokens[1]
	c := p.st.LookupClass(name.Literal)
	switch {
	case c == nil:
		p.diag.report(ReferenceError, name.Line, "class %s is not defined", name.Literal)
		return p.fail()
	case c.Builtin:
		p.diag.report(TypeError, name.Line, "cannot create an instance of builtin class %s", name.Literal)
		return p.fail()
	}
	t := NewToken(TokenInstance, name.Literal, name.Line)
	t.Symbol = c
	t.Count = len(c.Members)
	return parsed{[]*Token{t}, c.ID}, true
}

// userClass returns the class of typ when it has members.
func (p *Parser) userClass(typ string, line int) (*Class, bool) {
	c := p.st.LookupClass(typ)
	if c == nil || c.Builtin {
		p.diag.report(TypeError, line, "%s has no members", typ)
		return nil, false
	}
	return c, true
}

func (p *Parser) attribute(tokens []*Token, dot int) (parsed, bool) {
	syn := analyzeAttribute(p.diag, tokens, dot)
	if syn == nil {
		return p.fail()
	}
	target, ok := p.expr(syn.Target, lineOf(tokens))
	if !ok {
		return p.fail()
	}
	c, ok := p.userClass(target.typ, syn.Member.Line)
	if !ok {
		return p.fail()
	}

	if syn.Call == nil {
		idx, m := c.Member(syn.Member.Literal)
		if m == nil {
			p.diag.report(ReferenceError, syn.Member.Line, "%s has no member %s", c.ID, syn.Member.Literal)
			return p.fail()
		}
		ref := NewToken(TokenArrayReference, ".", syn.Member.Line)
		ref.Count = 1
		code := append([]*Token{indexToken(idx, syn.Member.Line)}, target.tokens...)
		return parsed{append(code, ref), m.Type}, true
	}

	args, ok := p.exprList(syn.Call.Args, syn.Member.Line)
	if !ok {
		return p.fail()
	}
	types := append([]string{c.ID}, typesOf(args)...)
	f, ok := p.resolveCall(syn.Member, types)
	if !ok {
		return p.fail()
	}
	callTok := NewToken(TokenID, syn.Member.Literal, syn.Member.Line)
	callTok.Symbol = f
	code := append(reversed(args), target.tokens...)
	return parsed{append(code, callTok), f.Type}, true
}

func (p *Parser) subscript(tokens []*Token, open int) (parsed, bool) {
	syn := analyzeSubscript(p.diag, tokens, open)
	if syn == nil {
		return p.fail()
	}
	line := lineOf(tokens)
	target, ok := p.expr(syn.Target, line)
	indices, iok := p.exprList(syn.Indices, line)
	if !ok || !iok {
		return p.fail()
	}
	for _, idx := range indices {
		if idx.typ != TypeNumber && idx.typ != TypeAny {
			p.diag.report(TypeError, line, "subscript must be a number, not %s", idx.typ)
			return p.fail()
		}
	}

	switch target.typ {
	case TypeString:
		if len(indices) != 1 {
			p.diag.report(TypeError, line, "a string takes exactly one subscript")
			return p.fail()
		}
		code := append(target.tokens, indices[0].tokens...)
		return parsed{append(code, NewToken(TokenCharAt, "[]", line)), TypeString}, true
	case TypeArray, TypeAny:
		code := reversed(indices)
		code = append(code, target.tokens...)
		ref := NewToken(TokenArrayReference, "[]", line)
		ref.Count = len(indices)
		return parsed{append(code, ref), TypeAny}, true
	}
	p.diag.report(TypeError, line, "cannot subscript a value of type %s", target.typ)
	return p.fail()
}

func (p *Parser) cast(tokens []*Token, as int) (parsed, bool) {
	syn := analyzeCast(p.diag, tokens, as)
	if syn == nil {
		return p.fail()
	}
	line := tokens[as].Line
	target, ok := p.expr(syn.Target, line)
	if !ok {
		return p.fail()
	}

	switch syn.Type {
	case TypeString:
		switch target.typ {
		case TypeNumber, TypeBool, TypeAny:
			return parsed{append(target.tokens, NewToken(TokenCastToString, "as", line)), TypeString}, true
		}
	case TypeNumber:
		switch target.typ {
		case TypeString, TypeBool, TypeAny:
			return parsed{append(target.tokens, NewToken(TokenCastToNumber, "as", line)), TypeNumber}, true
		}
	default:
		if c := p.st.LookupClass(syn.Type); c != nil && !c.Builtin {
			return parsed{target.tokens, c.ID}, true
		}
	}
	p.diag.report(TypeError, line, "cannot cast %s to %s", target.typ, syn.Type)
	return p.fail()
}

// markWritable flags the trailing token of an assignable operand. It
// returns false when the operand is not a variable, element or member.
func markWritable(operand parsed, op *Token) bool {
	last := operand.tokens[len(operand.tokens)-1]
	switch {
	case len(operand.tokens) == 1 && last.Type == TokenID:
		v, ok := last.Symbol.(*Variable)
		if !ok {
			return false
		}
		v.Initialized = true
		last.UseAsAddress = true
		return true
	case last.Type == TokenArrayReference:
		last.UseAsAddress = true
		op.UseAsArrayReference = true
		return true
	}
	return false
}

func numeric(typ string) bool {
	return typ == TypeNumber || typ == TypeAny || typ == TypeBool
}

// step handles ++ and -- on either side of operand.
func (p *Parser) step(op *Token, operand []*Token) (parsed, bool) {
	x, ok := p.expr(operand, op.Line)
	if !ok {
		return p.fail()
	}
	if !markWritable(x, op) {
		p.diag.report(TypeError, op.Line, "operand of %s must be a variable, element or member", op.Literal)
		return p.fail()
	}
	if x.typ != TypeNumber && x.typ != TypeAny {
		p.diag.report(TypeError, op.Line, "%s needs a number, not %s", op.Literal, x.typ)
		return p.fail()
	}
	return parsed{append(x.tokens, op), TypeNumber}, true
}

func (p *Parser) suffix(tokens []*Token, k int) (parsed, bool) {
	op := tokens[k]
	if k != len(tokens)-1 {
		p.diag.report(SyntaxError, op.Line, "unexpected tokens after %s", op.Literal)
		return p.fail()
	}
	return p.step(op, tokens[:k])
}

func (p *Parser) prefix(tokens []*Token, k int) (parsed, bool) {
	op := tokens[k]
	if k != 0 {
		p.diag.report(SyntaxError, op.Line, "unexpected tokens before %s", op.Literal)
		return p.fail()
	}
	if op.Type.IsIncrement() {
		return p.step(op, tokens[1:])
	}
	x, ok := p.expr(tokens[1:], op.Line)
	if !ok {
		return p.fail()
	}
	if !numeric(x.typ) {
		p.diag.report(TypeError, op.Line, "%s needs a number, not %s", op.Literal, x.typ)
		return p.fail()
	}
	return parsed{append(x.tokens, op), TypeNumber}, true
}

func (p *Parser) infix(tokens []*Token, k int) (parsed, bool) {
	op := tokens[k]
	if k == 0 || k == len(tokens)-1 {
		p.diag.report(SyntaxError, op.Line, "%s needs two operands", op.Literal)
		return p.fail()
	}
	left, lok := p.expr(tokens[:k], op.Line)
	right, rok := p.expr(tokens[k+1:], op.Line)
	if !lok || !rok {
		return p.fail()
	}

	if op.Type == TokenQuestion {
		return parsed{concat(left.tokens, right.tokens, op), TypeAny}, true
	}

	lt, rt := unify(left.typ, right.typ)
	switch {
	case lt == rt:
		if !p.sameTypeOperator(op, lt) {
			return p.fail()
		}
		if lt == TypeString && (op.Type == TokenEq || op.Type == TokenNe) {
			rt = TypeNumber
		}
	case lt == TypeNumber && rt == TypeString && op.Type == TokenAdd:
		left.tokens = append(left.tokens, NewToken(TokenCastToString, "+", op.Line))
		op.Type = TokenAppend
	case lt == TypeString && rt == TypeNumber && op.Type == TokenAdd:
		right.tokens = append(right.tokens, NewToken(TokenCastToString, "+", op.Line))
		op.Type = TokenAppend
		rt = TypeString
	case lt == TypeString && rt == TypeNumber && op.Type == TokenAddAssign:
		right.tokens = append(right.tokens, NewToken(TokenCastToString, "+=", op.Line))
		op.Type = TokenAppendAssign
		rt = TypeString
	default:
		p.diag.report(TypeError, op.Line, "cannot apply %s to %s and %s", op.Literal, left.typ, right.typ)
		return p.fail()
	}

	if op.Precedence() == AssignPrecedence && !markWritable(left, op) {
		p.diag.report(TypeError, op.Line, "left side of %s is not assignable", op.Literal)
		return p.fail()
	}
	return parsed{concat(left.tokens, right.tokens, op), rt}, true
}

// unify applies the wildcard and bool coercions to an operand pair.
func unify(lt, rt string) (string, string) {
	switch {
	case lt == TypeAny && rt == TypeAny:
		lt, rt = TypeNumber, TypeNumber
	case lt == TypeAny:
		lt = rt
	case rt == TypeAny:
		rt = lt
	}
	if lt == TypeBool {
		lt = TypeNumber
	}
	if rt == TypeBool {
		rt = TypeNumber
	}
	return lt, rt
}

// sameTypeOperator checks op for operands both of type typ, rewriting string
// concatenation to the append forms.
func (p *Parser) sameTypeOperator(op *Token, typ string) bool {
	switch typ {
	case TypeNumber:
		return true
	case TypeString:
		switch op.Type {
		case TokenAssign, TokenEq, TokenNe:
			return true
		case TokenAdd:
			op.Type = TokenAppend
			return true
		case TokenAddAssign:
			op.Type = TokenAppendAssign
			return true
		}
	default:
		if op.Type == TokenAssign {
			return true
		}
	}
	p.diag.report(TypeError, op.Line, "operator %s is not defined for %s", op.Literal, typ)
	return false
}

func concat(left, right []*Token, op *Token) []*Token {
	out := make([]*Token, 0, len(left)+len(right)+1)
	out = append(out, left...)
	out = append(out, right...)
	return append(out, op)
}
