package loop

import (
	"context"
	"errors"
)

// ErrClosed is returned when posting to a loop that has stopped running.
var ErrClosed = errors.New("event loop closed")

// Loop serializes every state mutation of the chat engine onto one goroutine.
// Network completions and timer ticks post their continuations here, so the
// stores they touch need no locks.
type Loop struct {
	tasks chan func()
	done  chan struct{}
}

// New creates a loop with the given task buffer.
func New(buf int) *Loop {
	if buf <= 0 {
		buf = 256
	}
	return &Loop{
		tasks: make(chan func(), buf),
		done:  make(chan struct{}),
	}
}

// Run drains tasks until ctx is cancelled. It must be called exactly once.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case fn := <-l.tasks:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// Post schedules fn on the loop. It must not be called from the loop
// goroutine itself while the buffer may be full.
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	select {
	case l.tasks <- fn:
		return nil
	case <-l.done:
		return ErrClosed
	}
}

// Call runs fn on the loop and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.Post(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
