package compiler

import (
	"errors"
	"fmt"

	"github.com/chazu/orca/vm"
)

// Linker errors.
var (
	ErrUnresolvedFlag = errors.New("compiler: unresolved jump flag")
	ErrDuplicateFlag  = errors.New("compiler: duplicate jump flag")
)

// Link resolves jump flags into absolute addresses. Every FLG definition is
// removed and every flag operand is replaced by the index of the first
// instruction after its definition. Linking linked code returns it
// unchanged.
func Link(code []vm.Instruction) ([]vm.Instruction, error) {
	defs := make(map[int]int)
	size := 0
	for _, in := range code {
		if in.Op != vm.OpFLG {
			size++
			continue
		}
		id := in.Arg.Int()
		if _, ok := defs[id]; ok {
			return nil, fmt.Errorf("flag %%%d defined twice: %w", id, ErrDuplicateFlag)
		}
		defs[id] = size
	}

	out := make([]vm.Instruction, 0, size)
	for _, in := range code {
		if in.Op == vm.OpFLG {
			continue
		}
		if in.Arg.Kind == vm.OperandFlag {
			id := in.Arg.Int()
			addr, ok := defs[id]
			if !ok {
				return nil, fmt.Errorf("flag %%%d is never defined: %w", id, ErrUnresolvedFlag)
			}
			if addr >= size {
				return nil, fmt.Errorf("flag %%%d resolves to %d outside %d instructions: %w", id, addr, size, ErrUnresolvedFlag)
			}
			in = in.Resolve(addr)
		}
		out = append(out, in)
	}
	return out, nil
}
