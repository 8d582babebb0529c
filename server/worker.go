package server

import (
	"errors"
	"fmt"
	"sync"
)

// ErrWorkerStopped is returned by Do after Stop.
var ErrWorkerStopped = errors.New("server: worker stopped")

// job is a unit of work executed on the worker goroutine.
type job struct {
	fn   func() (any, error)
	done chan jobResult
}

// jobResult holds the return value of a job.
type jobResult struct {
	value any
	err   error
}

// Worker serializes jobs through a single goroutine. Compiles share the
// program cache and runs share the machine budget, so handlers submit
// their work here instead of running it on the request goroutine.
type Worker struct {
	requests chan job
	quit     chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker() *Worker {
	w := &Worker{
		requests: make(chan job, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes jobs sequentially on a dedicated goroutine.
func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs one job, recovering from panics.
func (w *Worker) execute(fn func() (any, error)) (result jobResult) {
	defer func() {
		if r := recover(); r != nil {
			result.err = fmt.Errorf("server: job panicked: %v", r)
		}
	}()
	result.value, result.err = fn()
	return result
}

// Do submits fn for execution on the worker goroutine and blocks until it
// completes. Panics in fn are returned as errors.
func (w *Worker) Do(fn func() (any, error)) (any, error) {
	req := job{
		fn:   fn,
		done: make(chan jobResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrWorkerStopped
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, ErrWorkerStopped
	}
}

// Stop shuts down the worker goroutine. It is safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
