package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"

	"github.com/peterh/liner"

	"github.com/chazu/orca/vm"
)

const readPrompt = "? "

// errEndOfInput cancels a run whose program reads after stdin closed.
var errEndOfInput = errors.New("program read past the end of input")

// input supplies lines to a program's read calls.
type input interface {
	ReadLine() (string, error)
	Close() error
}

// newInput uses line editing when in is a terminal and plain line
// scanning otherwise.
func newInput(in io.Reader) input {
	if f, ok := in.(*os.File); ok && isTerminal(f) {
		return &terminalInput{}
	}
	return &scannerInput{scanner: bufio.NewScanner(in)}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// scannerInput reads newline-terminated lines from a pipe or file.
type scannerInput struct {
	scanner *bufio.Scanner
}

func (s *scannerInput) ReadLine() (string, error) {
	if s.scanner.Scan() {
		return s.scanner.Text(), nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *scannerInput) Close() error { return nil }

// terminalInput prompts with liner. The liner is created on the first read
// so programs that never read leave the terminal untouched.
type terminalInput struct {
	ln *liner.State
}

func (t *terminalInput) ReadLine() (string, error) {
	if t.ln == nil {
		t.ln = liner.NewLiner()
		t.ln.SetCtrlCAborts(true)
	}
	line, err := t.ln.Prompt(readPrompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	if line != "" {
		t.ln.AppendHistory(line)
	}
	return line, nil
}

func (t *terminalInput) Close() error {
	if t.ln == nil {
		return nil
	}
	return t.ln.Close()
}

// feedConsole answers each read the machine blocks on with one line from
// in. When in runs dry the run is cancelled.
func feedConsole(ctx context.Context, console *vm.Console, in input, cancel context.CancelCauseFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-console.Pending():
			line, err := in.ReadLine()
			if err != nil {
				if errors.Is(err, io.EOF) {
					cancel(errEndOfInput)
				} else {
					cancel(err)
				}
				return
			}
			console.Submit(line)
		}
	}
}
