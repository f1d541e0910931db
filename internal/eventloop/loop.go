// Package eventloop serializes core work onto a single goroutine.
package eventloop

import (
	"sync"

	"github.com/rs/zerolog"
)

// Dispatcher accepts work for serialized execution.
type Dispatcher interface {
	Post(fn func())
}

// Inline runs posted work immediately on the caller's goroutine.
type Inline struct{}

func (Inline) Post(fn func()) { fn() }

// Loop is an unbounded FIFO drained by one goroutine. Work never runs
// concurrently with other work on the same loop.
type Loop struct {
	logger zerolog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

// New starts a loop.
func New(logger zerolog.Logger) *Loop {
	l := &Loop{
		logger: logger.With().Str("component", "eventloop").Logger(),
		done:   make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

// Post enqueues fn. Work posted after Close is dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.queue = append(l.queue, fn)
	l.cond.Signal()
}

// Call runs fn on the loop and waits for it. It reports false if the loop
// was already closed. Call must not be used from work running on the loop.
func (l *Loop) Call(fn func()) bool {
	done := make(chan struct{})
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, func() {
		defer close(done)
		fn()
	})
	l.cond.Signal()
	l.mu.Unlock()

	select {
	case <-done:
		return true
	case <-l.done:
		return false
	}
}

// Close stops the loop after the work currently running returns. Queued
// work is discarded.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	l.queue = nil
	l.cond.Broadcast()
	l.mu.Unlock()
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if l.closed {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.exec(fn)
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Interface("panic", r).Msg("recovered panic in loop work")
		}
	}()
	fn()
}
