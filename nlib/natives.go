package nlib

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/chazu/orca/vm"
)

// ---------------------------------------------------------------------------
// Machine-side implementations
// ---------------------------------------------------------------------------

// Option configures the natives table.
type Option func(*natives)

type natives struct {
	rand *rand.Rand
}

// WithRand makes random() draw from r.
func WithRand(r *rand.Rand) Option {
	return func(n *natives) { n.rand = r }
}

// Natives returns the invoke table for the standard library. Arguments are
// popped first-argument-first: the compiler pushes them in reverse.
func Natives(opts ...Option) vm.Natives {
	n := &natives{}
	for _, opt := range opts {
		opt(n)
	}

	table := vm.Natives{
		InvokePrint: func(nc vm.NativeContext) error {
			nc.Console().Print(nc.Pop().String())
			return nil
		},
		InvokeRead: func(nc vm.NativeContext) error {
			line, err := nc.Console().ReadLine(nc.Context())
			if err != nil {
				return err
			}
			nc.Push(vm.FromString(line))
			return nil
		},
		InvokeInfo: func(nc vm.NativeContext) error {
			nc.Console().Print(Banner)
			return nil
		},
		InvokeAtan2: binaryMath(math.Atan2),
		InvokePow:   binaryMath(math.Pow),
		InvokeRandom: func(nc vm.NativeContext) error {
			if n.rand != nil {
				nc.Push(vm.FromInt(int(n.rand.Int32())))
			} else {
				nc.Push(vm.FromInt(int(rand.Int32())))
			}
			return nil
		},
		InvokeLoopCounter: loopCounter,
	}

	unary := map[int]func(float64) float64{
		InvokeAbs:   math.Abs,
		InvokeAcos:  math.Acos,
		InvokeAsin:  math.Asin,
		InvokeAtan:  math.Atan,
		InvokeCeil:  math.Ceil,
		InvokeFloor: math.Floor,
		InvokeRound: math.RoundToEven,
		InvokeCos:   math.Cos,
		InvokeSin:   math.Sin,
		InvokeTan:   math.Tan,
		InvokeLog:   math.Log,
		InvokeSqrt:  math.Sqrt,
	}
	for code, fn := range unary {
		table[code] = unaryMath(fn)
	}
	return table
}

func popNumber(nc vm.NativeContext) (float64, error) {
	return vm.ToNumber(nc.Pop())
}

func unaryMath(fn func(float64) float64) vm.NativeFunc {
	return func(nc vm.NativeContext) error {
		x, err := popNumber(nc)
		if err != nil {
			return err
		}
		nc.Push(vm.FromFloat64(fn(x)))
		return nil
	}
}

func binaryMath(fn func(float64, float64) float64) vm.NativeFunc {
	return func(nc vm.NativeContext) error {
		x, err := popNumber(nc)
		if err != nil {
			return err
		}
		y, err := popNumber(nc)
		if err != nil {
			return err
		}
		nc.Push(vm.FromFloat64(fn(x, y)))
		return nil
	}
}

func loopCounter(nc vm.NativeContext) error {
	addr, err := popNumber(nc)
	if err != nil {
		return err
	}
	mem := nc.Memory()
	cur, err := mem.Read(int(addr))
	if err != nil {
		return fmt.Errorf("loop counter: %w", err)
	}
	n, err := vm.ToNumber(cur)
	if err != nil {
		return fmt.Errorf("loop counter: %w", err)
	}
	_, err = mem.Write(int(addr), vm.FromFloat64(n+1))
	return err
}
