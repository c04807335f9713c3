// Package session owns the per-viewer engine state: the caption tracks, the
// translation cache and the interval recorder, all driven from one loop.
package session

import (
	"context"
)

// Loop serializes every mutation of session state. Background work posts a
// closure back instead of touching state directly.
type Loop struct {
	tasks chan func()
}

func NewLoop(buffer int) *Loop {
	if buffer < 1 {
		buffer = 256
	}
	return &Loop{tasks: make(chan func(), buffer)}
}

// Post enqueues f. It never blocks the caller.
func (l *Loop) Post(f func()) {
	select {
	case l.tasks <- f:
	default:
		go func() { l.tasks <- f }()
	}
}

// RunPending runs the closures already queued and returns how many ran.
func (l *Loop) RunPending() int {
	n := 0
	for {
		select {
		case f := <-l.tasks:
			f()
			n++
		default:
			return n
		}
	}
}

// Run executes posted closures until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-l.tasks:
			f()
		}
	}
}

// Do runs f on the loop and waits for it. Run must be active in another
// goroutine, and f must not call Do itself.
func (l *Loop) Do(ctx context.Context, f func()) error {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		f()
	}

	select {
	case l.tasks <- task:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
