package compiler

import (
	"fmt"
	"strings"
)

// Diagnostic categories.
const (
	SyntaxError      = "Syntax error"
	TypeError        = "Type error"
	ReferenceError   = "Reference error"
	DuplicationError = "Duplication error"
	ScopeError       = "Scope error"
	Unsupported      = "Unsupported"
)

// Diagnostic is one compile-time problem.
type Diagnostic struct {
	Category string
	Message  string
	Line     int
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("line %d: %s: %s", d.Line, d.Category, d.Message)
}

// Diagnostics is the error returned by Compile when any diagnostic was
// reported.
type Diagnostics []Diagnostic

func (ds Diagnostics) Error() string {
	if len(ds) == 1 {
		return ds[0].String()
	}
	lines := make([]string, len(ds))
	for i, d := range ds {
		lines[i] = d.String()
	}
	return fmt.Sprintf("%d compile errors:\n%s", len(ds), strings.Join(lines, "\n"))
}

// ---------------------------------------------------------------------------
// Sink
// ---------------------------------------------------------------------------

// sink collects diagnostics. While suppressed, reports are dropped; the
// scan pass runs suppressed because the parse pass re-reports.
type sink struct {
	diags    Diagnostics
	suppress int
	reported int // reports since the last mark, including suppressed ones
}

func (s *sink) report(category string, line int, format string, args ...interface{}) {
	s.reported++
	if s.suppress > 0 {
		return
	}
	s.diags = append(s.diags, Diagnostic{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
		Line:     line,
	})
}

func (s *sink) suppressed(fn func()) {
	s.suppress++
	defer func() { s.suppress-- }()
	fn()
}

// mark returns a checkpoint for failedSince.
func (s *sink) mark() int { return s.reported }

// failedSince reports whether anything was reported after the checkpoint.
func (s *sink) failedSince(mark int) bool { return s.reported > mark }
