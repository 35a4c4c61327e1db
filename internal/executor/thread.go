// Package executor runs work on one designated OS thread.
//
// Native engines bind their runtime to the thread that created it, so every
// call into a session goes through a Thread: callers post closures and the
// thread runs them in order.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
)

var (
	// ErrStopped is returned when posting to a thread that is stopping or
	// stopped.
	ErrStopped = errors.New("executor: thread stopped")
	// ErrQueueFull is returned by Post when the task queue is at capacity.
	ErrQueueFull = errors.New("executor: queue full")
	// ErrNotStarted is returned when posting to a thread before Start.
	ErrNotStarted = errors.New("executor: thread not started")
)

// DefaultQueueSize is used when Config.QueueSize is zero.
const DefaultQueueSize = 256

// Config configures a Thread.
type Config struct {
	Name      string
	QueueSize int
	Logger    *slog.Logger
}

// task is a unit of work with an optional result channel.
type task struct {
	fn     func()
	result chan error
}

// Thread owns a goroutine locked to its OS thread and runs posted tasks on it
// in FIFO order.
type Thread struct {
	name   string
	queue  chan task
	logger *slog.Logger

	mu      sync.RWMutex
	started bool
	stopped bool

	done chan struct{}
}

// New creates a thread. It does not run anything until Start.
func New(cfg Config) *Thread {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Name == "" {
		cfg.Name = "engine"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Thread{
		name:   cfg.Name,
		queue:  make(chan task, cfg.QueueSize),
		logger: logger.With("thread", cfg.Name),
		done:   make(chan struct{}),
	}
}

// Start launches the thread. Calling it twice is a no-op.
func (t *Thread) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	t.started = true
	ready := make(chan struct{})
	go t.loop(ready)
	<-ready
}

func (t *Thread) loop(ready chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(t.done)
	close(ready)

	for tk := range t.queue {
		err := t.run(tk.fn)
		if tk.result != nil {
			tk.result <- err
		} else if err != nil {
			t.logger.Error("posted task failed", "error", err)
		}
	}
	t.logger.Debug("thread exited")
}

func (t *Thread) run(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor: task panicked: %v", r)
		}
	}()
	fn()
	return nil
}

// Post enqueues fn without waiting for it. It never blocks: a full queue
// returns ErrQueueFull.
func (t *Thread) Post(fn func()) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.admit(); err != nil {
		return err
	}
	select {
	case t.queue <- task{fn: fn}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Do runs fn on the thread and waits for it. ctx bounds the wait for queue
// admission and for the result; a task that already started is not
// interrupted. Calling Do from a task on the same thread deadlocks.
func (t *Thread) Do(ctx context.Context, fn func()) error {
	result := make(chan error, 1)
	if err := t.enqueue(ctx, task{fn: fn, result: result}); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Thread) enqueue(ctx context.Context, tk task) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.admit(); err != nil {
		return err
	}
	select {
	case t.queue <- tk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Thread) admit() error {
	if !t.started {
		return ErrNotStarted
	}
	if t.stopped {
		return ErrStopped
	}
	return nil
}

// Call runs fn on the thread and returns its result.
func Call[T any](ctx context.Context, t *Thread, fn func() (T, error)) (T, error) {
	var (
		out   T
		fnErr error
	)
	if err := t.Do(ctx, func() { out, fnErr = fn() }); err != nil {
		var zero T
		return zero, err
	}
	return out, fnErr
}

// Stop refuses new work, runs everything already queued and waits for the
// thread to exit or ctx to end.
func (t *Thread) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.started {
		t.stopped = true
		t.mu.Unlock()
		return nil
	}
	if !t.stopped {
		t.stopped = true
		close(t.queue)
	}
	t.mu.Unlock()

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Name returns the thread name used in logs.
func (t *Thread) Name() string {
	return t.name
}
