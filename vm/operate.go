package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Operator dispatch (OPR)
// ---------------------------------------------------------------------------

// operate pops the operands of code and returns its result.
//
// Unary codes pop a; binary codes pop b then a; address write-backs pop the
// value then the address; array write-backs pop the value, the array, then
// the index.
func (m *Machine) operate(code Operator) Value {
	switch {
	case code.IsUnary():
		return m.unary(code, m.Pop())

	case code.IsAddressWrite():
		v := m.Pop()
		addr := m.popAddress()
		return m.write(addr, m.combine(code, m.read(addr), v))

	case code.IsArrayWrite():
		v := m.Pop()
		arr := m.popArray()
		idx := m.popIndex()
		base := code - ArrayBankOffset
		cur := Undefined
		if base != OprAssign {
			cur = m.loadElement(arr, idx)
		}
		return m.storeElement(arr, idx, m.combine(base, cur, v))
	}

	b := m.Pop()
	a := m.Pop()
	return m.binary(code, a, b)
}

func (m *Machine) unary(code Operator, a Value) Value {
	switch code {
	case OprBitNot:
		return FromInt(int(^m.toInt32(a)))
	case OprNeg:
		return FromFloat64(-m.toNumber(a))
	case OprNot:
		return FromBool(!m.truthy(a))
	case OprToNumber:
		return FromFloat64(m.toNumber(a))
	case OprToString:
		return FromString(a.String())
	}
	fault("unknown operator code %d", int(code))
	return Undefined
}

// combine computes the value a write-back stores: the new value for plain
// assignment, otherwise the binary operation applied to the current value.
func (m *Machine) combine(code Operator, cur, v Value) Value {
	switch code {
	case OprAssign:
		return v
	case OprAppendAssign:
		return FromString(cur.String() + v.String())
	}
	op, ok := compoundOps[code]
	if !ok {
		fault("unknown operator code %d", int(code))
	}
	return m.binary(op, cur, v)
}

var compoundOps = map[Operator]Operator{
	OprAddAssign:    OprAdd,
	OprSubAssign:    OprSub,
	OprDivAssign:    OprDiv,
	OprMulAssign:    OprMul,
	OprModAssign:    OprMod,
	OprBitAndAssign: OprBitAnd,
	OprBitOrAssign:  OprBitOr,
	OprBitXorAssign: OprBitXor,
	OprShlAssign:    OprShl,
	OprShrAssign:    OprShr,
}

func (m *Machine) binary(code Operator, a, b Value) Value {
	switch code {
	case OprAdd:
		return FromFloat64(m.toNumber(a) + m.toNumber(b))
	case OprSub:
		return FromFloat64(m.toNumber(a) - m.toNumber(b))
	case OprMul:
		return FromFloat64(m.toNumber(a) * m.toNumber(b))
	case OprDiv:
		d := m.toNumber(b)
		if d == 0 {
			fault("division by zero")
		}
		return FromFloat64(m.toNumber(a) / d)
	case OprMod:
		d := m.toNumber(b)
		if d == 0 {
			fault("division by zero")
		}
		return FromFloat64(math.Mod(m.toNumber(a), d))
	case OprBitAnd:
		return FromInt(int(m.toInt32(a) & m.toInt32(b)))
	case OprBitOr:
		return FromInt(int(m.toInt32(a) | m.toInt32(b)))
	case OprBitXor:
		return FromInt(int(m.toInt32(a) ^ m.toInt32(b)))
	case OprShl:
		return FromInt(int(m.toInt32(a) << uint32(m.toInt32(b)&31)))
	case OprShr:
		return FromInt(int(m.toInt32(a) >> uint32(m.toInt32(b)&31)))
	case OprAppend:
		return FromString(a.String() + b.String())
	case OprEq:
		return FromBool(a.Equal(b))
	case OprNe:
		return FromBool(!a.Equal(b))
	case OprGt:
		return FromBool(m.compare(a, b) > 0)
	case OprGe:
		return FromBool(m.compare(a, b) >= 0)
	case OprLt:
		return FromBool(m.compare(a, b) < 0)
	case OprLe:
		return FromBool(m.compare(a, b) <= 0)
	case OprAnd:
		return FromBool(m.truthy(a) && m.truthy(b))
	case OprOr:
		return FromBool(m.truthy(a) || m.truthy(b))
	case OprCharAt:
		return m.charAt(a, b)
	case OprRuntimeValue:
		return m.runtimeValue(a, int(m.toNumber(b)))
	}
	fault("unknown operator code %d", int(code))
	return Undefined
}

func (m *Machine) compare(a, b Value) int {
	if a.IsString() && b.IsString() {
		return strings.Compare(a.Str(), b.Str())
	}
	x, y := m.toNumber(a), m.toNumber(b)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func (m *Machine) charAt(s, idx Value) Value {
	if !s.IsString() {
		fault("char-at on %s", s.Kind())
	}
	runes := []rune(s.Str())
	i := int(m.toNumber(idx))
	if i < 0 || i >= len(runes) {
		return FromString("")
	}
	return FromString(string(runes[i]))
}

func (m *Machine) runtimeValue(target Value, selector int) Value {
	switch selector {
	case RuntimeArrayLength:
		if !target.IsArray() {
			fault("array length of %s", target.Kind())
		}
		return FromInt(len(target.Array().Elems))
	case RuntimeStringLength:
		if !target.IsString() {
			fault("string length of %s", target.Kind())
		}
		return FromInt(utf8.RuneCountInString(target.Str()))
	case RuntimeCharCode:
		if !target.IsString() || target.Str() == "" {
			fault("char code of %q", target.String())
		}
		r, _ := utf8.DecodeRuneInString(target.Str())
		return FromInt(int(r))
	case RuntimeFromCharCode:
		return FromString(string(rune(int(m.toNumber(target)))))
	}
	fault("unknown runtime value selector %d", selector)
	return Undefined
}

// ---------------------------------------------------------------------------
// Coercion
// ---------------------------------------------------------------------------

// ToNumber converts a value to a number. Strings must hold a numeric literal;
// undefined reads as zero.
func ToNumber(v Value) (float64, error) {
	switch v.Kind() {
	case KindNumber:
		return v.Float64(), nil
	case KindUndefined:
		return 0, nil
	case KindString:
		s := strings.TrimSpace(v.Str())
		if strings.Contains(s, ".") {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return 0, fmt.Errorf("cannot convert %q to number", v.Str())
			}
			return f, nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to number", v.Str())
		}
		return float64(n), nil
	}
	return 0, fmt.Errorf("cannot convert %s to number", v.Kind())
}

func (m *Machine) toNumber(v Value) float64 {
	f, err := ToNumber(v)
	if err != nil {
		faultErr(err)
	}
	return f
}

func (m *Machine) toInt32(v Value) int32 {
	return int32(int64(m.toNumber(v)))
}

func (m *Machine) truthy(v Value) bool {
	return m.toNumber(v) > 0
}
