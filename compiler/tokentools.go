package compiler

// ---------------------------------------------------------------------------
// Token slice helpers
// ---------------------------------------------------------------------------

// indexOfClose returns the index of the bracket closing tokens[open], or -1.
// Only the bracket kind at tokens[open] is counted.
func indexOfClose(tokens []*Token, open int) int {
	if open < 0 || open >= len(tokens) {
		return -1
	}
	var closer TokenType
	switch tokens[open].Type {
	case TokenLParen:
		closer = TokenRParen
	case TokenLBracket:
		closer = TokenRBracket
	default:
		return -1
	}
	opener := tokens[open].Type
	depth := 0
	for i := open; i < len(tokens); i++ {
		switch tokens[i].Type {
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// indexOfOpen returns the index of the bracket opening tokens[close], or -1.
func indexOfOpen(tokens []*Token, close int) int {
	if close < 0 || close >= len(tokens) {
		return -1
	}
	var opener TokenType
	switch tokens[close].Type {
	case TokenRParen:
		opener = TokenLParen
	case TokenRBracket:
		opener = TokenLBracket
	default:
		return -1
	}
	closer := tokens[close].Type
	depth := 0
	for i := close; i >= 0; i-- {
		switch tokens[i].Type {
		case closer:
			depth++
		case opener:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// split cuts tokens at top-level separators. An empty input yields no parts;
// an empty part between separators is kept so callers can diagnose it.
func split(tokens []*Token, sep TokenType) [][]*Token {
	if len(tokens) == 0 {
		return nil
	}
	var parts [][]*Token
	depth := 0
	start := 0
	for i, t := range tokens {
		switch t.Type {
		case TokenLParen, TokenLBracket:
			depth++
		case TokenRParen, TokenRBracket:
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, tokens[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, tokens[start:])
}

// pill strips redundant enclosing parentheses: "((a + b))" becomes "a + b".
func pill(tokens []*Token) []*Token {
	for len(tokens) >= 2 && tokens[0].Type == TokenLParen && indexOfClose(tokens, 0) == len(tokens)-1 {
		tokens = tokens[1 : len(tokens)-1]
	}
	return tokens
}

// lpoClass is the precedence used when searching for the lowest-priority
// operator. Member access and subscripts share a class so the right-most of
// a mixed chain such as a[0].b is the split point.
func lpoClass(t TokenType) int {
	p := t.Precedence()
	if p == 1 {
		return 2
	}
	return p
}

// lpo returns the index of the lowest-priority operator of tokens at paren
// depth 0, or -1 when there is none. Ties go to the right-most operator,
// except for prefix operators and the assignment family, which group to the
// right and so split at the left-most.
func lpo(tokens []*Token) int {
	best, bestClass := -1, 0
	parens, brackets := 0, 0
	for i, t := range tokens {
		switch t.Type {
		case TokenLParen:
			parens++
		case TokenRParen:
			parens--
		}

		if parens == 0 && brackets == 0 {
			if c := lpoClass(t.Type); c > 0 {
				rightAssoc := c == AssignPrecedence || t.Type.Affix() == AffixPrefix
				if c > bestClass || (c == bestClass && !rightAssoc) {
					best, bestClass = i, c
				}
			}
		}

		switch t.Type {
		case TokenLBracket:
			brackets++
		case TokenRBracket:
			brackets--
		}
	}
	return best
}
