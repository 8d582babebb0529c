package vm

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Console: print buffer and blocking read rendezvous
// ---------------------------------------------------------------------------

// Console is the machine's line I/O. Print appends to a buffer (and mirrors
// to an optional writer). ReadLine blocks the machine goroutine on a
// one-slot mailbox until a host calls Submit, or until the run is cancelled.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	lines []string

	input   chan string
	pending chan struct{}
	waiting atomic.Bool
}

// NewConsole creates a console mirroring printed lines to out (may be nil).
func NewConsole(out io.Writer) *Console {
	return &Console{
		out:     out,
		input:   make(chan string, 1),
		pending: make(chan struct{}, 1),
	}
}

// Print appends one line.
func (c *Console) Print(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
	if c.out != nil {
		io.WriteString(c.out, line+"\n")
	}
}

// Lines returns a copy of every printed line.
func (c *Console) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}

// Output returns the printed lines joined by newlines.
func (c *Console) Output() string {
	return strings.Join(c.Lines(), "\n")
}

// Reset clears the print buffer.
func (c *Console) Reset() {
	c.mu.Lock()
	c.lines = nil
	c.mu.Unlock()
}

// ReadLine blocks until a line is submitted or ctx is done.
func (c *Console) ReadLine(ctx context.Context) (string, error) {
	c.waiting.Store(true)
	defer c.waiting.Store(false)

	select {
	case c.pending <- struct{}{}:
	default:
	}

	select {
	case line := <-c.input:
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Submit publishes one input line. It blocks while a previous line is still
// unconsumed.
func (c *Console) Submit(line string) {
	c.input <- line
}

// Waiting reports whether the machine is blocked in ReadLine.
func (c *Console) Waiting() bool {
	return c.waiting.Load()
}

// Pending delivers a signal each time the machine starts waiting for input.
// Hosts that read interactively can range over it and Submit one line per
// signal.
func (c *Console) Pending() <-chan struct{} {
	return c.pending
}
