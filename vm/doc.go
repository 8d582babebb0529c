// Package vm implements the Orca virtual machine.
//
// This package contains:
//   - the instruction model (opcodes, operator codes, tagged operands)
//   - the text assembly format
//   - tagged runtime values
//   - per-address value-stack memory
//   - the interpreter loop and operator dispatch
//   - the console used by the print/read natives
package vm
