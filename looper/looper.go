// Package looper provides a per-goroutine FIFO message loop.
//
// A Looper owns one goroutine (optionally locked to its OS thread) that runs
// posted closures one at a time, in the order they were posted. Posting never
// blocks and is safe from any goroutine.
//
//	l := looper.New("worker", looper.WithLockOSThread())
//	go l.Loop(ctx)
//	l.Post(func() { ... })
package looper

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var (
	ErrRunning = errors.New("looper already running")
	ErrQuit    = errors.New("looper quit")
)

type Looper struct {
	name       string
	log        zerolog.Logger
	lockThread bool

	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	running bool
	quit    bool
	done    chan struct{}

	inTask atomic.Bool
	tid    atomic.Int64
	served atomic.Uint64
}

// Option configures a Looper.
type Option func(*Looper)

// WithLogger sets the logger used for panics recovered from tasks.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Looper) {
		l.log = log
	}
}

// WithLockOSThread pins the loop goroutine to its OS thread for the lifetime
// of Loop. Required when tasks enter a runtime that must always be called
// from the same thread.
func WithLockOSThread() Option {
	return func(l *Looper) {
		l.lockThread = true
	}
}

func New(name string, opts ...Option) *Looper {
	l := &Looper{
		name: name,
		log:  zerolog.Nop(),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.tid.Store(-1)
	return l
}

// Name returns the name given at construction.
func (l *Looper) Name() string {
	return l.name
}

// Post appends task to the queue. It reports false if the looper has quit.
func (l *Looper) Post(task func()) bool {
	if task == nil {
		return false
	}

	l.mu.Lock()
	if l.quit {
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

// Pending returns the number of queued, not yet started tasks.
func (l *Looper) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Served returns the number of tasks run so far.
func (l *Looper) Served() uint64 {
	return l.served.Load()
}

// Quit stops the loop after the task currently running. Pending tasks are
// dropped and later posts are refused.
func (l *Looper) Quit() {
	l.mu.Lock()
	if l.quit {
		l.mu.Unlock()
		return
	}
	l.quit = true
	l.queue = nil
	running := l.running
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	if !running {
		l.closeDone()
	}
}

// Done is closed once the loop has returned after Quit.
func (l *Looper) Done() <-chan struct{} {
	return l.done
}

// OnLoop reports whether the caller is running on the loop.
// With WithLockOSThread this compares OS thread ids and is exact; otherwise it
// only reports whether some task is executing.
func (l *Looper) OnLoop() bool {
	if tid := l.tid.Load(); tid >= 0 {
		if cur := currentThreadID(); cur >= 0 {
			return cur == tid
		}
	}
	return l.inTask.Load()
}

// Loop drains the queue until Quit is called or ctx is done. It returns nil
// after Quit and ctx.Err() on cancellation.
func (l *Looper) Loop(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrRunning
	}
	if l.quit {
		l.mu.Unlock()
		return ErrQuit
	}
	l.running = true
	l.mu.Unlock()

	if l.lockThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		l.tid.Store(currentThreadID())
		defer l.tid.Store(-1)
	}
	defer l.closeDone()

	for {
		task, ok := l.next()
		if !ok {
			return nil
		}
		if task != nil {
			l.run(task)
			continue
		}

		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.quit = true
			l.queue = nil
			l.mu.Unlock()
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// next pops the head of the queue. A nil task with ok=true means the queue is
// empty; ok=false means the looper has quit.
func (l *Looper) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.quit {
		return nil, false
	}
	if len(l.queue) == 0 {
		return nil, true
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task, true
}

func (l *Looper) run(task func()) {
	l.inTask.Store(true)
	defer func() {
		l.inTask.Store(false)
		l.served.Add(1)
		if r := recover(); r != nil {
			l.log.Error().
				Str("looper", l.name).
				Err(fmt.Errorf("%v", r)).
				Msg("task panicked")
		}
	}()
	task()
}

func (l *Looper) closeDone() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = false
	select {
	case <-l.done:
	default:
		close(l.done)
	}
}
