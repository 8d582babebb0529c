package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Memory: one value stack per address
// ---------------------------------------------------------------------------

// ErrUnallocated is returned when reading or writing an address that holds
// no value.
var ErrUnallocated = errors.New("vm: address not allocated")

// Memory is a flat store indexed by address where each address holds its own
// stack of values. Allocation pushes a value for an address, Free pops one,
// and Read/Write always target the top. A recursive call therefore reuses
// the same compiled local address without renumbering.
//
// Addresses below the heap base are static (assigned by the compiler);
// AllocateHeap hands out addresses from the heap base upward.
type Memory struct {
	cells    [][]Value
	heapBase int
}

// NewMemory creates a store whose dynamic region starts at heapBase.
func NewMemory(heapBase int) *Memory {
	return &Memory{
		cells:    make([][]Value, heapBase),
		heapBase: heapBase,
	}
}

// HeapBase returns the first dynamically allocated address.
func (m *Memory) HeapBase() int { return m.heapBase }

// Size returns the number of addresses in use (static plus heap).
func (m *Memory) Size() int { return len(m.cells) }

// Allocate pushes v onto the stack at a static address.
func (m *Memory) Allocate(addr int, v Value) error {
	if addr < 0 || addr >= m.heapBase {
		return fmt.Errorf("vm: static address %d outside [0,%d)", addr, m.heapBase)
	}
	m.cells[addr] = append(m.cells[addr], v)
	return nil
}

// AllocateHeap stores v at a fresh heap address and returns it.
func (m *Memory) AllocateHeap(v Value) int {
	m.cells = append(m.cells, []Value{v})
	return len(m.cells) - 1
}

// Free pops one value at addr. Freeing an empty address is a no-op.
func (m *Memory) Free(addr int) {
	if addr < 0 || addr >= len(m.cells) {
		return
	}
	if n := len(m.cells[addr]); n > 0 {
		m.cells[addr][n-1] = Undefined
		m.cells[addr] = m.cells[addr][:n-1]
	}
}

// Read returns the top value at addr.
func (m *Memory) Read(addr int) (Value, error) {
	if addr < 0 || addr >= len(m.cells) || len(m.cells[addr]) == 0 {
		return Undefined, fmt.Errorf("%w: %d", ErrUnallocated, addr)
	}
	cell := m.cells[addr]
	return cell[len(cell)-1], nil
}

// Write replaces the top value at addr and returns v.
func (m *Memory) Write(addr int, v Value) (Value, error) {
	if addr < 0 || addr >= len(m.cells) || len(m.cells[addr]) == 0 {
		return Undefined, fmt.Errorf("%w: %d", ErrUnallocated, addr)
	}
	cell := m.cells[addr]
	cell[len(cell)-1] = v
	return v, nil
}

// Depth returns how many values are stacked at addr.
func (m *Memory) Depth(addr int) int {
	if addr < 0 || addr >= len(m.cells) {
		return 0
	}
	return len(m.cells[addr])
}
