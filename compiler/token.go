package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the Orca lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	TokenIllegal TokenType = iota

	// Keywords
	TokenDefine   // define
	TokenRight    // ->
	TokenInclude  // include
	TokenID       // foo, Bar
	TokenVar      // var
	TokenNew      // new
	TokenIf       // if
	TokenElse     // else
	TokenFor      // for
	TokenWhile    // while
	TokenContinue // continue
	TokenBreak    // break
	TokenReturn   // return
	TokenQuestion // ? (runtime value access)
	TokenTrue     // true
	TokenFalse    // false
	TokenAs       // as
	TokenIn       // in

	// Literals
	TokenString // "hello", 'hello'
	TokenNumber // 42, 3.14

	// Punctuation
	TokenLBracket  // [
	TokenRBracket  // ]
	TokenLBrace    // {
	TokenRBrace    // }
	TokenLParen    // (
	TokenRParen    // )
	TokenDot       // .
	TokenComma     // ,
	TokenColon     // :
	TokenSemicolon // ;
	TokenFrom      // ...

	// Increment and decrement
	TokenPrefixIncrement
	TokenPrefixDecrement
	TokenSuffixIncrement
	TokenSuffixDecrement

	// Unary sign
	TokenUnaryPlus
	TokenUnaryMinus

	// Arithmetic
	TokenAdd // +
	TokenSub // -
	TokenMul // *
	TokenDiv // /
	TokenMod // %

	// Assignment family
	TokenAssign       // =
	TokenAddAssign    // +=
	TokenSubAssign    // -=
	TokenMulAssign    // *=
	TokenDivAssign    // /=
	TokenModAssign    // %=
	TokenBitAndAssign // &=
	TokenBitXorAssign // ^=
	TokenBitOrAssign  // |=
	TokenShlAssign    // <<=
	TokenShrAssign    // >>=

	// Comparison
	TokenEq // ==
	TokenNe // !=
	TokenGt // >
	TokenGe // >=
	TokenLt // <
	TokenLe // <=

	// Logical
	TokenNot // ! and not
	TokenAnd // && and and
	TokenOr  // || and or

	// Bitwise
	TokenBitNot // ~
	TokenBitAnd // &
	TokenBitOr  // |
	TokenBitXor // ^
	TokenShl    // <<
	TokenShr    // >>

	// Synthetic kinds produced by the parser
	TokenArray          // array literal construction, Count elements
	TokenInstance       // instance construction of the preceding class token
	TokenArrayReference // Count subscripts
	TokenCastToNumber
	TokenCastToString
	TokenCharAt
	TokenAppend
	TokenAppendAssign
)

var tokenNames = map[TokenType]string{
	TokenIllegal:         "ILLEGAL",
	TokenDefine:          "define",
	TokenRight:           "->",
	TokenInclude:         "include",
	TokenID:              "IDENTIFIER",
	TokenVar:             "var",
	TokenNew:             "new",
	TokenIf:              "if",
	TokenElse:            "else",
	TokenFor:             "for",
	TokenWhile:           "while",
	TokenContinue:        "continue",
	TokenBreak:           "break",
	TokenReturn:          "return",
	TokenQuestion:        "?",
	TokenTrue:            "true",
	TokenFalse:           "false",
	TokenAs:              "as",
	TokenIn:              "in",
	TokenString:          "STRING",
	TokenNumber:          "NUMBER",
	TokenLBracket:        "[",
	TokenRBracket:        "]",
	TokenLBrace:          "{",
	TokenRBrace:          "}",
	TokenLParen:          "(",
	TokenRParen:          ")",
	TokenDot:             ".",
	TokenComma:           ",",
	TokenColon:           ":",
	TokenSemicolon:       ";",
	TokenFrom:            "...",
	TokenPrefixIncrement: "++x",
	TokenPrefixDecrement: "--x",
	TokenSuffixIncrement: "x++",
	TokenSuffixDecrement: "x--",
	TokenUnaryPlus:       "+x",
	TokenUnaryMinus:      "-x",
	TokenAdd:             "+",
	TokenSub:             "-",
	TokenMul:             "*",
	TokenDiv:             "/",
	TokenMod:             "%",
	TokenAssign:          "=",
	TokenAddAssign:       "+=",
	TokenSubAssign:       "-=",
	TokenMulAssign:       "*=",
	TokenDivAssign:       "/=",
	TokenModAssign:       "%=",
	TokenBitAndAssign:    "&=",
	TokenBitXorAssign:    "^=",
	TokenBitOrAssign:     "|=",
	TokenShlAssign:       "<<=",
	TokenShrAssign:       ">>=",
	TokenEq:              "==",
	TokenNe:              "!=",
	TokenGt:              ">",
	TokenGe:              ">=",
	TokenLt:              "<",
	TokenLe:              "<=",
	TokenNot:             "!",
	TokenAnd:             "&&",
	TokenOr:              "||",
	TokenBitNot:          "~",
	TokenBitAnd:          "&",
	TokenBitOr:           "|",
	TokenBitXor:          "^",
	TokenShl:             "<<",
	TokenShr:             ">>",
	TokenArray:           "ARRAY",
	TokenInstance:        "INSTANCE",
	TokenArrayReference:  "ARRAY_REF",
	TokenCastToNumber:    "CAST_NUMBER",
	TokenCastToString:    "CAST_STRING",
	TokenCharAt:          "CHAR_AT",
	TokenAppend:          "APPEND",
	TokenAppendAssign:    "APPEND_ASSIGN",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Affix classifies unary operators by where the operand sits.
type Affix int

const (
	AffixNone Affix = iota
	AffixPrefix
	AffixSuffix
)

// Precedence returns the operator precedence class of t. Lower classes bind
// tighter; 0 means t is not an operator.
func (t TokenType) Precedence() int {
	switch t {
	case TokenDot:
		return 1
	case TokenLBracket:
		return 2
	case TokenAs:
		return 3
	case TokenSuffixIncrement, TokenSuffixDecrement:
		return 4
	case TokenPrefixIncrement, TokenPrefixDecrement, TokenUnaryPlus, TokenUnaryMinus,
		TokenNot, TokenBitNot:
		return 5
	case TokenMul, TokenDiv, TokenMod:
		return 6
	case TokenAdd, TokenSub:
		return 7
	case TokenShl, TokenShr:
		return 8
	case TokenLt, TokenLe, TokenGt, TokenGe:
		return 9
	case TokenEq, TokenNe:
		return 10
	case TokenBitAnd:
		return 11
	case TokenBitXor:
		return 12
	case TokenBitOr:
		return 13
	case TokenAnd:
		return 14
	case TokenOr, TokenQuestion:
		return 15
	case TokenAssign, TokenAddAssign, TokenSubAssign, TokenMulAssign, TokenDivAssign,
		TokenModAssign, TokenBitAndAssign, TokenBitXorAssign, TokenBitOrAssign,
		TokenShlAssign, TokenShrAssign, TokenAppendAssign:
		return 16
	}
	return 0
}

// AssignPrecedence is the precedence class of the assignment family.
const AssignPrecedence = 16

// Affix returns whether t is a prefix or suffix unary operator.
func (t TokenType) Affix() Affix {
	switch t {
	case TokenPrefixIncrement, TokenPrefixDecrement, TokenUnaryPlus, TokenUnaryMinus,
		TokenNot, TokenBitNot:
		return AffixPrefix
	case TokenSuffixIncrement, TokenSuffixDecrement:
		return AffixSuffix
	}
	return AffixNone
}

// IsIncrement reports whether t is one of the ++/-- forms.
func (t TokenType) IsIncrement() bool {
	switch t {
	case TokenPrefixIncrement, TokenPrefixDecrement, TokenSuffixIncrement, TokenSuffixDecrement:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Token
// ---------------------------------------------------------------------------

// Token is a lexical token. The annotation fields are set by the parser and
// read by the emitter; tokens are shared by pointer so annotations stick.
type Token struct {
	Type    TokenType
	Literal string // the raw text (unquoted for strings)
	Line    int

	Symbol              Symbol // resolved identifier, literal, function or class
	UseAsAddress        bool   // push the address instead of the value
	UseAsArrayReference bool   // write back through an array reference
	SuppressPush        bool   // discard the result of a lone ++/--
	Count               int    // element/subscript count of synthetic kinds
}

// NewToken creates a token.
func NewToken(t TokenType, literal string, line int) *Token {
	return &Token{Type: t, Literal: literal, Line: line}
}

func (t *Token) String() string {
	switch t.Type {
	case TokenID, TokenNumber:
		return t.Literal
	case TokenString:
		return fmt.Sprintf("%q", t.Literal)
	case TokenArray, TokenArrayReference:
		return fmt.Sprintf("%s(%d)", t.Type, t.Count)
	}
	return t.Type.String()
}

// Precedence returns the precedence class of the token's type.
func (t *Token) Precedence() int { return t.Type.Precedence() }

// reservedWords maps keywords to their token types.
var reservedWords = map[string]TokenType{
	"define":   TokenDefine,
	"include":  TokenInclude,
	"var":      TokenVar,
	"new":      TokenNew,
	"if":       TokenIf,
	"else":     TokenElse,
	"for":      TokenFor,
	"while":    TokenWhile,
	"continue": TokenContinue,
	"break":    TokenBreak,
	"return":   TokenReturn,
	"true":     TokenTrue,
	"false":    TokenFalse,
	"as":       TokenAs,
	"in":       TokenIn,
	"not":      TokenNot,
	"and":      TokenAnd,
	"or":       TokenOr,
}

// Keywords returns the reserved words, for completion.
func Keywords() []string {
	out := make([]string, 0, len(reservedWords))
	for w := range reservedWords {
		out = append(out, w)
	}
	return out
}

// operators lists punctuation and operator spellings, longest first so the
// lexer can take the longest match.
var operators = []struct {
	text string
	typ  TokenType
}{
	{"<<=", TokenShlAssign},
	{">>=", TokenShrAssign},
	{"...", TokenFrom},
	{"->", TokenRight},
	{"++", TokenPrefixIncrement},
	{"--", TokenPrefixDecrement},
	{"+=", TokenAddAssign},
	{"-=", TokenSubAssign},
	{"*=", TokenMulAssign},
	{"/=", TokenDivAssign},
	{"%=", TokenModAssign},
	{"&=", TokenBitAndAssign},
	{"^=", TokenBitXorAssign},
	{"|=", TokenBitOrAssign},
	{"==", TokenEq},
	{"!=", TokenNe},
	{">=", TokenGe},
	{"<=", TokenLe},
	{"&&", TokenAnd},
	{"||", TokenOr},
	{"<<", TokenShl},
	{">>", TokenShr},
	{"[", TokenLBracket},
	{"]", TokenRBracket},
	{"(", TokenLParen},
	{")", TokenRParen},
	{"?", TokenQuestion},
	{".", TokenDot},
	{",", TokenComma},
	{":", TokenColon},
	{"=", TokenAssign},
	{">", TokenGt},
	{"<", TokenLt},
	{"+", TokenAdd},
	{"-", TokenSub},
	{"*", TokenMul},
	{"/", TokenDiv},
	{"%", TokenMod},
	{"!", TokenNot},
	{"~", TokenBitNot},
	{"&", TokenBitAnd},
	{"|", TokenBitOr},
	{"^", TokenBitXor},
}
