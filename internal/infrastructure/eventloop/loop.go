// Package eventloop runs the tasks of one editing session on a single
// goroutine, so handlers, timer callbacks and request work never interleave
// mid-task.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// ErrStopped is returned when work is submitted to a loop that has exited.
var ErrStopped = errors.New("event loop stopped")

// Poster schedules a task onto a loop. Implemented by *Loop; components take
// this interface so they can post timer callbacks back onto their session.
type Poster interface {
	Post(task func()) bool
}

// Loop is a serial task queue. Post never blocks, so tasks may post
// follow-up work to their own loop.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	stopped bool
	running bool

	stopOnce sync.Once
	logger   *slog.Logger
}

// New creates a loop with room for buffer queued tasks before the queue grows.
func New(buffer int, logger *slog.Logger) *Loop {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loop{
		queue:  make([]func(), 0, buffer),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Post enqueues task. It reports false once the loop has stopped.
func (l *Loop) Post(task func()) bool {
	if task == nil {
		return false
	}
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs task on the loop and waits for its result. It must not be called
// from a task already running on the same loop.
func (l *Loop) Do(ctx context.Context, task func() error) error {
	result := make(chan error, 1)
	if !l.Post(func() { result <- l.call(task) }) {
		return ErrStopped
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		// the task may still have completed before shutdown
		select {
		case err := <-result:
			return err
		default:
			return ErrStopped
		}
	}
}

// Run executes queued tasks until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) {
	l.mu.Lock()
	if l.running || l.stopped {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()

	defer l.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case <-l.wake:
		}

		for {
			task, ok := l.next()
			if !ok {
				break
			}
			l.runTask(task)
			select {
			case <-l.done:
				return
			default:
			}
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task, true
}

func (l *Loop) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Event loop task panicked", "panic", r)
		}
	}()
	task()
}

func (l *Loop) call(task func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task()
}

// Stop ends the loop. Pending tasks are discarded.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.stopped = true
		dropped := len(l.queue)
		l.queue = nil
		l.mu.Unlock()
		close(l.done)
		if dropped > 0 {
			l.logger.Debug("Event loop stopped with pending tasks", "dropped", dropped)
		}
	})
}

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}
