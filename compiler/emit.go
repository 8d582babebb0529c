package compiler

import (
	"strconv"

	"github.com/chazu/orca/vm"
)

// ---------------------------------------------------------------------------
// Lowering: postfix tokens to instructions
// ---------------------------------------------------------------------------

var binaryOperators = map[TokenType]vm.Operator{
	TokenAdd:      vm.OprAdd,
	TokenSub:      vm.OprSub,
	TokenDiv:      vm.OprDiv,
	TokenMul:      vm.OprMul,
	TokenMod:      vm.OprMod,
	TokenBitAnd:   vm.OprBitAnd,
	TokenBitOr:    vm.OprBitOr,
	TokenBitXor:   vm.OprBitXor,
	TokenShl:      vm.OprShl,
	TokenShr:      vm.OprShr,
	TokenAppend:   vm.OprAppend,
	TokenEq:       vm.OprEq,
	TokenNe:       vm.OprNe,
	TokenGt:       vm.OprGt,
	TokenGe:       vm.OprGe,
	TokenLt:       vm.OprLt,
	TokenLe:       vm.OprLe,
	TokenAnd:      vm.OprAnd,
	TokenOr:       vm.OprOr,
	TokenQuestion: vm.OprRuntimeValue,

	TokenBitNot:       vm.OprBitNot,
	TokenUnaryMinus:   vm.OprNeg,
	TokenNot:          vm.OprNot,
	TokenCastToNumber: vm.OprToNumber,
	TokenCastToString: vm.OprToString,
	TokenCharAt:       vm.OprCharAt,
}

var assignOperators = map[TokenType]vm.Operator{
	TokenAssign:       vm.OprAssign,
	TokenAddAssign:    vm.OprAddAssign,
	TokenSubAssign:    vm.OprSubAssign,
	TokenDivAssign:    vm.OprDivAssign,
	TokenMulAssign:    vm.OprMulAssign,
	TokenModAssign:    vm.OprModAssign,
	TokenBitAndAssign: vm.OprBitAndAssign,
	TokenBitOrAssign:  vm.OprBitOrAssign,
	TokenBitXorAssign: vm.OprBitXorAssign,
	TokenShlAssign:    vm.OprShlAssign,
	TokenShrAssign:    vm.OprShrAssign,
	TokenAppendAssign: vm.OprAppendAssign,
}

func opr(code vm.Operator) vm.Instruction {
	return vm.InstInt(vm.OpOPR, int(code))
}

// flag helpers
func pushFlag(id int) vm.Instruction { return vm.InstArg(vm.OpPSH, vm.FlagArg(id)) }
func defineFlag(id int) vm.Instruction {
	return vm.InstArg(vm.OpFLG, vm.FlagArg(id))
}

// jumpTo emits PSH %id; JMP.
func jumpTo(id int) []vm.Instruction {
	return []vm.Instruction{pushFlag(id), vm.Inst(vm.OpJMP)}
}

// jumpUnless emits PSH %id; JMF, consuming the condition below the target.
func jumpUnless(id int) []vm.Instruction {
	return []vm.Instruction{pushFlag(id), vm.Inst(vm.OpJMF)}
}

// lower turns a typed postfix token list into instructions.
func lower(tokens []*Token) []vm.Instruction {
	var code []vm.Instruction
	for _, t := range tokens {
		code = append(code, lowerToken(t)...)
	}
	return code
}

func lowerToken(t *Token) []vm.Instruction {
	switch sym := t.Symbol.(type) {
	case *Variable:
		if t.UseAsAddress {
			return []vm.Instruction{vm.InstInt(vm.OpPSH, sym.Address)}
		}
		return []vm.Instruction{vm.InstInt(vm.OpPSM, sym.Address)}
	case *Literal:
		return []vm.Instruction{vm.InstInt(vm.OpPSM, sym.Address)}
	case *Function:
		return lowerCall(sym)
	case *Class:
		return lowerInstance(sym)
	}

	switch t.Type {
	case TokenNumber:
		n, _ := strconv.Atoi(t.Literal)
		return []vm.Instruction{vm.InstInt(vm.OpPSH, n)}

	case TokenArray:
		code := []vm.Instruction{vm.Inst(vm.OpDAA), vm.InstInt(vm.OpPOP, 0)}
		for i := 0; i < t.Count; i++ {
			code = append(code, vm.InstInt(vm.OpPSR, 0), vm.Inst(vm.OpSTA))
		}
		return append(code, vm.InstInt(vm.OpPSR, 0))

	case TokenArrayReference:
		n := t.Count
		if t.UseAsAddress {
			n--
		}
		code := make([]vm.Instruction, n)
		for i := range code {
			code[i] = vm.Inst(vm.OpRDA)
		}
		return code

	case TokenPrefixIncrement, TokenPrefixDecrement, TokenSuffixIncrement, TokenSuffixDecrement:
		return lowerStep(t)

	case TokenUnaryPlus:
		return nil
	}

	if code, ok := assignOperators[t.Type]; ok {
		if t.UseAsArrayReference {
			code += vm.ArrayBankOffset
		}
		return []vm.Instruction{opr(code)}
	}
	if code, ok := binaryOperators[t.Type]; ok {
		return []vm.Instruction{opr(code)}
	}
	return nil
}

// lowerStep emits ++ and --. The write-back leaves the new value; a suffix
// form adjusts it back to the old one unless the result is discarded.
func lowerStep(t *Token) []vm.Instruction {
	code := vm.OprAddAssign
	delta := 1
	if t.Type == TokenPrefixDecrement || t.Type == TokenSuffixDecrement {
		code = vm.OprSubAssign
		delta = -1
	}
	if t.UseAsArrayReference {
		code += vm.ArrayBankOffset
	}
	out := []vm.Instruction{vm.InstInt(vm.OpPSH, 1), opr(code)}
	switch {
	case t.SuppressPush:
		out = append(out, vm.InstInt(vm.OpPOP, 0))
	case t.Type.Affix() == AffixSuffix:
		out = append(out, vm.InstInt(vm.OpPSH, -delta), opr(vm.OprAdd))
	}
	return out
}

// lowerCall emits a call. Arguments are already on the stack, first on top.
func lowerCall(f *Function) []vm.Instruction {
	if f.Native {
		return append([]vm.Instruction(nil), f.Invoke...)
	}
	code := []vm.Instruction{vm.Inst(vm.OpOSC)}
	for _, param := range f.Params {
		code = append(code,
			vm.InstInt(vm.OpSAL, param.Address),
			vm.InstInt(vm.OpPSH, param.Address),
			vm.Inst(vm.OpSTO),
		)
	}
	code = append(code, vm.Inst(vm.OpPSC))
	code = append(code, jumpTo(f.EntryFlag)...)
	return append(code, vm.Inst(vm.OpCSC))
}

// lowerInstance builds a field vector holding the current member values.
func lowerInstance(c *Class) []vm.Instruction {
	code := []vm.Instruction{vm.Inst(vm.OpDAA), vm.InstInt(vm.OpPOP, 0)}
	for i, m := range c.Members {
		code = append(code,
			vm.InstInt(vm.OpPSM, m.Address),
			vm.InstInt(vm.OpPSH, i),
			vm.InstInt(vm.OpPSR, 0),
			vm.Inst(vm.OpSTA),
		)
	}
	return append(code, vm.InstInt(vm.OpPSR, 0))
}

// reserve emits the storage reservation for v.
func reserve(v *Variable) vm.Instruction {
	if isValueType(v.Type) {
		return vm.InstInt(vm.OpSAL, v.Address)
	}
	return vm.InstInt(vm.OpSAA, v.Address)
}

// literalInit emits SAL a; PSH v; PSH a; STO for every literal.
func literalInit(lits []*Literal) []vm.Instruction {
	var code []vm.Instruction
	for _, lit := range lits {
		code = append(code,
			vm.InstInt(vm.OpSAL, lit.Address),
			vm.InstArg(vm.OpPSH, lit.Value),
			vm.InstInt(vm.OpPSH, lit.Address),
			vm.Inst(vm.OpSTO),
		)
	}
	return code
}
