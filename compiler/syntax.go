package compiler

// ---------------------------------------------------------------------------
// Statement grammar
// ---------------------------------------------------------------------------

// Each statement form has a match function, which looks only at the leading
// tokens, and an analyze function, which checks the full shape and reports
// through the sink. Analyzers return nil when the statement is malformed.

type stmtKind int

const (
	stmtExpression stmtKind = iota
	stmtVarDecl
	stmtFunctionDecl
	stmtClassDecl
	stmtIf
	stmtElseIf
	stmtElse
	stmtFor
	stmtWhile
	stmtContinue
	stmtBreak
	stmtReturn
	stmtInclude
)

// classify returns the statement form of tokens, trying matchers in order.
func classify(tokens []*Token) stmtKind {
	switch {
	case matchVarDecl(tokens):
		return stmtVarDecl
	case matchFunctionDecl(tokens):
		return stmtFunctionDecl
	case matchClassDecl(tokens):
		return stmtClassDecl
	case matchIf(tokens):
		return stmtIf
	case matchElseIf(tokens):
		return stmtElseIf
	case matchElse(tokens):
		return stmtElse
	case matchFor(tokens):
		return stmtFor
	case matchWhile(tokens):
		return stmtWhile
	case matchContinue(tokens):
		return stmtContinue
	case matchBreak(tokens):
		return stmtBreak
	case matchReturn(tokens):
		return stmtReturn
	case matchInclude(tokens):
		return stmtInclude
	}
	return stmtExpression
}

// takesBody reports whether a statement of kind k owns a block.
func (k stmtKind) takesBody() bool {
	switch k {
	case stmtFunctionDecl, stmtClassDecl, stmtIf, stmtElseIf, stmtElse, stmtFor, stmtWhile:
		return true
	}
	return false
}

func leading(tokens []*Token, types ...TokenType) bool {
	if len(tokens) < len(types) {
		return false
	}
	for i, t := range types {
		if tokens[i].Type != t {
			return false
		}
	}
	return true
}

func lineOf(tokens []*Token) int {
	if len(tokens) == 0 {
		return 0
	}
	return tokens[0].Line
}

// typeName returns the spelling of a type token: a class identifier or the
// wildcard "*".
func typeName(t *Token) (string, bool) {
	switch t.Type {
	case TokenID:
		return t.Literal, true
	case TokenMul:
		return TypeAny, true
	}
	return "", false
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// VarDeclSyntax is `var name:type [= expr]`.
type VarDeclSyntax struct {
	Name *Token
	Type string
	Init []*Token // `name = expr`, nil without an initializer
}

func matchVarDecl(tokens []*Token) bool {
	return leading(tokens, TokenVar)
}

func analyzeVarDecl(s *sink, tokens []*Token) *VarDeclSyntax {
	line := lineOf(tokens)
	if !leading(tokens, TokenVar, TokenID, TokenColon) || len(tokens) < 4 {
		s.report(SyntaxError, line, "expected var name:type")
		return nil
	}
	typ, ok := typeName(tokens[3])
	if !ok {
		s.report(SyntaxError, line, "expected a type after %q", tokens[1].Literal+":")
		return nil
	}
	syn := &VarDeclSyntax{Name: tokens[1], Type: typ}
	if len(tokens) == 4 {
		return syn
	}
	if tokens[4].Type != TokenAssign || len(tokens) == 5 {
		s.report(SyntaxError, line, "expected = and an initializer after the type of %q", tokens[1].Literal)
		return nil
	}
	syn.Init = append([]*Token{tokens[1]}, tokens[4:]...)
	return syn
}

// ParamSyntax is one `name:type` parameter.
type ParamSyntax struct {
	Name string
	Type string
}

// FunctionDeclSyntax is `define name(params) [-> type]` or
// `define Class.name(params) [-> type]`.
type FunctionDeclSyntax struct {
	Name   string
	Class  string // owning class of a member function
	Params []ParamSyntax
	Return string
	Line   int
}

func matchFunctionDecl(tokens []*Token) bool {
	return leading(tokens, TokenDefine) && len(tokens) >= 3
}

func analyzeFunctionDecl(s *sink, tokens []*Token) *FunctionDeclSyntax {
	line := lineOf(tokens)
	if tokens[1].Type != TokenID {
		s.report(SyntaxError, line, "expected a function name after define")
		return nil
	}
	syn := &FunctionDeclSyntax{Return: TypeVoid, Line: line}

	open := 2
	if leading(tokens, TokenDefine, TokenID, TokenDot, TokenID) {
		syn.Class = tokens[1].Literal
		syn.Name = tokens[3].Literal
		open = 4
	} else {
		syn.Name = tokens[1].Literal
	}

	if open >= len(tokens) || tokens[open].Type != TokenLParen {
		s.report(SyntaxError, line, "expected ( after function name %q", syn.Name)
		return nil
	}
	close := indexOfClose(tokens, open)
	if close < 0 {
		s.report(SyntaxError, line, "insert ) to close the parameters of %q", syn.Name)
		return nil
	}

	for _, part := range split(tokens[open+1:close], TokenComma) {
		if len(part) != 3 || part[0].Type != TokenID || part[1].Type != TokenColon {
			s.report(SyntaxError, line, "expected name:type in the parameters of %q", syn.Name)
			return nil
		}
		typ, ok := typeName(part[2])
		if !ok {
			s.report(SyntaxError, line, "expected a type for parameter %q", part[0].Literal)
			return nil
		}
		syn.Params = append(syn.Params, ParamSyntax{Name: part[0].Literal, Type: typ})
	}

	rest := tokens[close+1:]
	switch {
	case len(rest) == 0:
	case len(rest) == 2 && rest[0].Type == TokenRight:
		typ, ok := typeName(rest[1])
		if !ok {
			s.report(SyntaxError, line, "expected a return type after ->")
			return nil
		}
		syn.Return = typ
	default:
		s.report(SyntaxError, line, "unexpected tokens after the parameters of %q", syn.Name)
		return nil
	}
	return syn
}

// ClassDeclSyntax is `define Name`.
type ClassDeclSyntax struct {
	Name string
}

func matchClassDecl(tokens []*Token) bool {
	return leading(tokens, TokenDefine) && len(tokens) <= 2
}

func analyzeClassDecl(s *sink, tokens []*Token) *ClassDeclSyntax {
	if len(tokens) != 2 || tokens[1].Type != TokenID {
		s.report(SyntaxError, lineOf(tokens), "expected a class or function name after define")
		return nil
	}
	return &ClassDeclSyntax{Name: tokens[1].Literal}
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

// CondSyntax is the header of if, else if and while: a parenthesized
// condition and an optional inline body.
type CondSyntax struct {
	Cond   []*Token
	Inline []*Token
}

func matchIf(tokens []*Token) bool    { return leading(tokens, TokenIf) }
func matchWhile(tokens []*Token) bool { return leading(tokens, TokenWhile) }

func matchElseIf(tokens []*Token) bool {
	return leading(tokens, TokenElse, TokenIf)
}

func matchElse(tokens []*Token) bool {
	return leading(tokens, TokenElse)
}

// analyzeCond checks `<keyword> ( cond ) [inline]` where the keyword takes
// skip tokens.
func analyzeCond(s *sink, tokens []*Token, skip int, keyword string) *CondSyntax {
	line := lineOf(tokens)
	if len(tokens) <= skip || tokens[skip].Type != TokenLParen {
		s.report(SyntaxError, line, "expected ( after %s", keyword)
		return nil
	}
	close := indexOfClose(tokens, skip)
	if close < 0 {
		s.report(SyntaxError, line, "insert ) to close the %s condition", keyword)
		return nil
	}
	if close == skip+1 {
		s.report(SyntaxError, line, "empty %s condition", keyword)
		return nil
	}
	return &CondSyntax{Cond: tokens[skip+1 : close], Inline: tokens[close+1:]}
}

func analyzeIf(s *sink, tokens []*Token) *CondSyntax {
	return analyzeCond(s, tokens, 1, "if")
}

func analyzeElseIf(s *sink, tokens []*Token) *CondSyntax {
	return analyzeCond(s, tokens, 2, "else if")
}

func analyzeWhile(s *sink, tokens []*Token) *CondSyntax {
	return analyzeCond(s, tokens, 1, "while")
}

func analyzeElse(tokens []*Token) *CondSyntax {
	return &CondSyntax{Inline: tokens[1:]}
}

// ForSyntax is `for (counter in from...to) [inline]`.
type ForSyntax struct {
	Counter *Token
	From    []*Token
	To      []*Token
	Inline  []*Token
}

func matchFor(tokens []*Token) bool { return leading(tokens, TokenFor) }

func analyzeFor(s *sink, tokens []*Token) *ForSyntax {
	line := lineOf(tokens)
	if !leading(tokens, TokenFor, TokenLParen) {
		s.report(SyntaxError, line, "expected ( after for")
		return nil
	}
	close := indexOfClose(tokens, 1)
	if close < 0 {
		s.report(SyntaxError, line, "insert ) to close the for header")
		return nil
	}
	header := tokens[2:close]
	if !leading(header, TokenID, TokenIn) {
		s.report(SyntaxError, line, "expected for (name in from...to)")
		return nil
	}
	bounds := split(header[2:], TokenFrom)
	if len(bounds) != 2 || len(bounds[0]) == 0 || len(bounds[1]) == 0 {
		s.report(SyntaxError, line, "expected a range from...to in the for header")
		return nil
	}
	return &ForSyntax{
		Counter: header[0],
		From:    bounds[0],
		To:      bounds[1],
		Inline:  tokens[close+1:],
	}
}

func matchContinue(tokens []*Token) bool { return leading(tokens, TokenContinue) }
func matchBreak(tokens []*Token) bool    { return leading(tokens, TokenBreak) }

func analyzeJump(s *sink, tokens []*Token) bool {
	if len(tokens) != 1 {
		s.report(SyntaxError, lineOf(tokens), "unexpected tokens after %s", tokens[0].Literal)
		return false
	}
	return true
}

// ReturnSyntax is `return [expr]`.
type ReturnSyntax struct {
	Value []*Token
}

func matchReturn(tokens []*Token) bool { return leading(tokens, TokenReturn) }

func analyzeReturn(tokens []*Token) *ReturnSyntax {
	return &ReturnSyntax{Value: tokens[1:]}
}

func matchInclude(tokens []*Token) bool { return leading(tokens, TokenInclude) }
