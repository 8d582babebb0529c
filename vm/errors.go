package vm

import (
	"errors"
	"fmt"
)

// ErrNoProgram is returned by Run before Load.
var ErrNoProgram = errors.New("vm: no program loaded")

// Fault is a fatal runtime error. The machine stops at the faulting
// instruction; there is no recovery inside the language.
type Fault struct {
	PC      int
	Op      Opcode
	Message string
	Err     error
}

func (f *Fault) Error() string {
	msg := f.Message
	if msg == "" && f.Err != nil {
		msg = f.Err.Error()
	}
	if f.Op == 0 {
		return fmt.Sprintf("vm fault at %d: %s", f.PC, msg)
	}
	return fmt.Sprintf("vm fault at %d (%s): %s", f.PC, f.Op, msg)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// fault aborts the current step. Run recovers it and fills in the location.
func fault(format string, args ...interface{}) {
	panic(&Fault{Message: fmt.Sprintf(format, args...)})
}

// faultErr aborts the current step with a wrapped error.
func faultErr(err error) {
	panic(&Fault{Message: err.Error(), Err: err})
}
