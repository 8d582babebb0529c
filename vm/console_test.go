package vm

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestConsolePrint(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	c.Print("a")
	c.Print("b")
	if got := c.Output(); got != "a\nb" {
		t.Errorf("Output = %q, want %q", got, "a\nb")
	}
	if got := buf.String(); got != "a\nb\n" {
		t.Errorf("mirrored = %q, want %q", got, "a\nb\n")
	}
	c.Reset()
	if n := len(c.Lines()); n != 0 {
		t.Errorf("after Reset, %d lines", n)
	}
}

func TestConsoleReadSubmitted(t *testing.T) {
	c := NewConsole(nil)
	c.Submit("ready")
	line, err := c.ReadLine(context.Background())
	if err != nil || line != "ready" {
		t.Errorf("ReadLine = %q, %v; want ready", line, err)
	}
	if c.Waiting() {
		t.Error("Waiting after ReadLine returned")
	}
}

func TestConsoleReadPending(t *testing.T) {
	c := NewConsole(nil)
	got := make(chan string, 1)
	go func() {
		line, _ := c.ReadLine(context.Background())
		got <- line
	}()

	select {
	case <-c.Pending():
	case <-time.After(2 * time.Second):
		t.Fatal("no pending signal")
	}
	if !c.Waiting() {
		t.Error("Waiting = false while blocked")
	}
	c.Submit("42")
	if line := <-got; line != "42" {
		t.Errorf("ReadLine = %q, want 42", line)
	}
}

func TestConsoleReadCancelled(t *testing.T) {
	c := NewConsole(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.ReadLine(ctx); err == nil {
		t.Error("ReadLine on cancelled context succeeded")
	}
}
