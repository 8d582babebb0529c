package compiler

// ---------------------------------------------------------------------------
// Expression grammar
// ---------------------------------------------------------------------------

type exprForm int

const (
	exprInvalid exprForm = iota
	exprAtom
	exprCall
	exprArray
	exprInstance
	exprAttribute
	exprSubscript
	exprCast
	exprSuffix
	exprPrefix
	exprInfix
)

var exprFormNames = [...]string{
	exprInvalid:   "invalid",
	exprAtom:      "atom",
	exprCall:      "call",
	exprArray:     "array",
	exprInstance:  "instance",
	exprAttribute: "attribute",
	exprSubscript: "subscript",
	exprCast:      "cast",
	exprSuffix:    "suffix",
	exprPrefix:    "prefix",
	exprInfix:     "infix",
}

func (f exprForm) String() string { return exprFormNames[f] }

// classifyExpr selects the form of an expression whose redundant parentheses
// were already stripped. It returns the split index for operator forms.
func classifyExpr(tokens []*Token) (exprForm, int) {
	n := len(tokens)
	switch {
	case n == 0:
		return exprInvalid, -1
	case n == 1:
		return exprAtom, -1
	case matchCall(tokens):
		return exprCall, -1
	case matchArray(tokens):
		return exprArray, -1
	case matchInstance(tokens):
		return exprInstance, -1
	}

	k := lpo(tokens)
	if k < 0 {
		return exprInvalid, -1
	}
	switch op := tokens[k].Type; {
	case op == TokenDot:
		return exprAttribute, k
	case op == TokenLBracket:
		return exprSubscript, k
	case op == TokenAs:
		return exprCast, k
	case op.Affix() == AffixSuffix:
		return exprSuffix, k
	case op.Affix() == AffixPrefix:
		return exprPrefix, k
	}
	return exprInfix, k
}

func matchCall(tokens []*Token) bool {
	return leading(tokens, TokenID, TokenLParen) && indexOfClose(tokens, 1) == len(tokens)-1
}

func matchArray(tokens []*Token) bool {
	return leading(tokens, TokenLBracket) && indexOfClose(tokens, 0) == len(tokens)-1
}

func matchInstance(tokens []*Token) bool {
	return len(tokens) == 2 && leading(tokens, TokenNew, TokenID)
}

// arguments splits the comma list between brackets. An empty part is a
// syntax error.
func arguments(s *sink, tokens []*Token, line int) ([][]*Token, bool) {
	parts := split(tokens, TokenComma)
	for _, part := range parts {
		if len(part) == 0 {
			s.report(SyntaxError, line, "missing expression in a comma list")
			return nil, false
		}
	}
	return parts, true
}

// CallSyntax is `name(args)`.
type CallSyntax struct {
	Name *Token
	Args [][]*Token
}

func analyzeCall(s *sink, tokens []*Token) *CallSyntax {
	args, ok := arguments(s, tokens[2:len(tokens)-1], lineOf(tokens))
	if !ok {
		return nil
	}
	return &CallSyntax{Name: tokens[0], Args: args}
}

func analyzeArray(s *sink, tokens []*Token) ([][]*Token, bool) {
	return arguments(s, tokens[1:len(tokens)-1], lineOf(tokens))
}

// AttributeSyntax is `target.member` or `target.method(args)`.
type AttributeSyntax struct {
	Target []*Token
	Member *Token
	Call   *CallSyntax // nil for a member read
}

func analyzeAttribute(s *sink, tokens []*Token, dot int) *AttributeSyntax {
	line := lineOf(tokens)
	target, step := tokens[:dot], tokens[dot+1:]
	if len(target) == 0 || len(step) == 0 || step[0].Type != TokenID {
		s.report(SyntaxError, line, "expected target.member")
		return nil
	}
	syn := &AttributeSyntax{Target: target, Member: step[0]}
	switch {
	case len(step) == 1:
	case matchCall(step):
		syn.Call = analyzeCall(s, step)
		if syn.Call == nil {
			return nil
		}
	default:
		s.report(SyntaxError, line, "unexpected tokens after .%s", step[0].Literal)
		return nil
	}
	return syn
}

// SubscriptSyntax is `target[i][j]...`. Indices are in source order.
type SubscriptSyntax struct {
	Target  []*Token
	Indices [][]*Token
}

// analyzeSubscript splits at the run of bracket groups ending in the group
// opened at open, which must close the expression.
func analyzeSubscript(s *sink, tokens []*Token, open int) *SubscriptSyntax {
	line := lineOf(tokens)
	if indexOfClose(tokens, open) != len(tokens)-1 {
		s.report(SyntaxError, line, "unexpected tokens after a subscript")
		return nil
	}

	start := open
	for start > 0 && tokens[start-1].Type == TokenRBracket {
		o := indexOfOpen(tokens, start-1)
		if o <= 0 {
			break
		}
		start = o
	}
	if start == 0 {
		s.report(SyntaxError, line, "missing subscript target")
		return nil
	}

	syn := &SubscriptSyntax{Target: tokens[:start]}
	for i := start; i < len(tokens); {
		close := indexOfClose(tokens, i)
		if close == i+1 {
			s.report(SyntaxError, line, "empty subscript")
			return nil
		}
		syn.Indices = append(syn.Indices, tokens[i+1:close])
		i = close + 1
	}
	return syn
}

// CastSyntax is `target as Type`.
type CastSyntax struct {
	Target []*Token
	Type   string
}

func analyzeCast(s *sink, tokens []*Token, as int) *CastSyntax {
	line := lineOf(tokens)
	if as == 0 || as != len(tokens)-2 {
		s.report(SyntaxError, line, "expected value as Type")
		return nil
	}
	typ, ok := typeName(tokens[as+1])
	if !ok {
		s.report(SyntaxError, line, "expected a type after as")
		return nil
	}
	return &CastSyntax{Target: tokens[:as], Type: typ}
}
