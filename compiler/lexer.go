package compiler

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Block tree
// ---------------------------------------------------------------------------

// Block is a node of the block tree. A braced block holds Entries in source
// order; a statement leaf holds the Tokens of one statement. Statements end
// at ';', at '{' (the statement owns the block that follows) and at '}'.
type Block struct {
	Line    int
	Braced  bool
	Tokens  []*Token
	Entries []*Block
}

// IsStatement reports whether b is a statement leaf.
func (b *Block) IsStatement() bool { return !b.Braced }

// StartsWith reports whether b is a statement whose first token has type t.
func (b *Block) StartsWith(t TokenType) bool {
	return b != nil && !b.Braced && len(b.Tokens) > 0 && b.Tokens[0].Type == t
}

func (b *Block) String() string {
	var sb strings.Builder
	b.write(&sb, 0)
	return sb.String()
}

func (b *Block) write(sb *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	if !b.Braced {
		parts := make([]string, len(b.Tokens))
		for i, t := range b.Tokens {
			parts[i] = t.String()
		}
		fmt.Fprintf(sb, "%s%s\n", indent, strings.Join(parts, " "))
		return
	}
	if depth > 0 {
		fmt.Fprintf(sb, "%s{\n", strings.Repeat("  ", depth-1))
	}
	for _, e := range b.Entries {
		e.write(sb, depth+1)
	}
	if depth > 0 {
		fmt.Fprintf(sb, "%s}\n", strings.Repeat("  ", depth-1))
	}
}

// ---------------------------------------------------------------------------
// Lexer: tokenizer and block splitter for Orca source
// ---------------------------------------------------------------------------

// Lexer tokenizes Orca source code into a block tree.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)

	diags []Diagnostic
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	return l
}

// Lex splits src into a block tree. Lexical problems are returned as
// diagnostics; the tree holds everything that could be tokenized.
func Lex(src string) (*Block, []Diagnostic) {
	l := NewLexer(src)
	root := l.readBlock(1, false)
	return root, l.diags
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
	}
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = l.readPos
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

func (l *Lexer) errorf(format string, args ...interface{}) {
	l.diags = append(l.diags, Diagnostic{
		Category: SyntaxError,
		Message:  fmt.Sprintf(format, args...),
		Line:     l.line,
	})
}

// readBlock reads entries until the matching '}' (nested) or end of input.
func (l *Lexer) readBlock(line int, nested bool) *Block {
	b := &Block{Line: line, Braced: true}
	var stmt []*Token

	flush := func() {
		if len(stmt) > 0 {
			b.Entries = append(b.Entries, &Block{Line: stmt[0].Line, Tokens: stmt})
			stmt = nil
		}
	}

	for {
		l.skipWhitespaceAndComments()
		if l.atEOF() {
			flush()
			if nested {
				l.errorf("insert \"}\" to close the block opened on line %d", line)
			}
			return b
		}

		switch l.ch {
		case ';':
			l.readChar()
			flush()
		case '{':
			open := l.line
			l.readChar()
			flush()
			b.Entries = append(b.Entries, l.readBlock(open, true))
		case '}':
			l.readChar()
			if nested {
				flush()
				return b
			}
			l.errorf("unexpected \"}\"")
		default:
			if tok := l.nextToken(stmt); tok != nil {
				stmt = append(stmt, tok)
			}
		}
	}
}

// skipWhitespaceAndComments skips whitespace and // and /* */ comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for unicode.IsSpace(l.ch) {
			l.readChar()
		}

		if l.ch == '/' && l.peekChar() == '/' {
			for l.ch != '\n' && !l.atEOF() {
				l.readChar()
			}
			continue
		}

		if l.ch == '/' && l.peekChar() == '*' {
			start := l.line
			l.readChar()
			l.readChar()
			for !(l.ch == '*' && l.peekChar() == '/') {
				if l.atEOF() {
					l.errorf("comment opened on line %d is not closed", start)
					return
				}
				l.readChar()
			}
			l.readChar()
			l.readChar()
			continue
		}

		return
	}
}

// nextToken reads one token. prev is the statement so far, used to tell
// binary from unary +/- and suffix from prefix ++/--.
func (l *Lexer) nextToken(prev []*Token) *Token {
	line := l.line

	switch {
	case l.ch == '"' || l.ch == '\'':
		return l.readString(line)
	case isDigit(l.ch):
		return l.readNumber(line)
	case isLetter(l.ch):
		return l.readIdentifierOrKeyword(line)
	}

	rest := l.input[l.pos:]
	for _, op := range operators {
		if !strings.HasPrefix(rest, op.text) {
			continue
		}
		for range op.text {
			l.readChar()
		}
		return NewToken(disambiguate(op.typ, prev), op.text, line)
	}

	ch := l.ch
	l.readChar()
	l.errorf("unexpected character %q", ch)
	return nil
}

// disambiguate picks the binary or suffix form of +, -, ++ and -- when the
// previous token is an operand, and the unary or prefix form otherwise.
func disambiguate(t TokenType, prev []*Token) TokenType {
	operand := false
	if n := len(prev); n > 0 {
		switch prev[n-1].Type {
		case TokenID, TokenNumber, TokenString, TokenRBracket, TokenRParen:
			operand = true
		}
	}

	switch t {
	case TokenAdd, TokenUnaryPlus:
		if operand {
			return TokenAdd
		}
		return TokenUnaryPlus
	case TokenSub, TokenUnaryMinus:
		if operand {
			return TokenSub
		}
		return TokenUnaryMinus
	case TokenPrefixIncrement, TokenSuffixIncrement:
		if operand {
			return TokenSuffixIncrement
		}
		return TokenPrefixIncrement
	case TokenPrefixDecrement, TokenSuffixDecrement:
		if operand {
			return TokenSuffixDecrement
		}
		return TokenPrefixDecrement
	}
	return t
}

// readString reads a string quoted with " or '. There are no escapes.
func (l *Lexer) readString(line int) *Token {
	quote := l.ch
	l.readChar()
	var sb strings.Builder
	for l.ch != quote {
		if l.atEOF() {
			l.diags = append(l.diags, Diagnostic{
				Category: SyntaxError,
				Message:  fmt.Sprintf("insert %c to complete the string", quote),
				Line:     line,
			})
			return NewToken(TokenString, sb.String(), line)
		}
		sb.WriteRune(l.ch)
		l.readChar()
	}
	l.readChar()
	return NewToken(TokenString, sb.String(), line)
}

// readNumber reads an integer or decimal literal. A '.' belongs to the
// number only when a digit follows, so 1...3 lexes as 1, ..., 3.
func (l *Lexer) readNumber(line int) *Token {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return NewToken(TokenNumber, l.input[start:l.pos], line)
}

// readIdentifierOrKeyword reads an identifier or reserved word.
func (l *Lexer) readIdentifierOrKeyword(line int) *Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	word := l.input[start:l.pos]
	if t, ok := reservedWords[word]; ok {
		return NewToken(t, word, line)
	}
	return NewToken(TokenID, word, line)
}

func isLetter(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
