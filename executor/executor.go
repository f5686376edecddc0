// Package executor provides the single-threaded-per-context cooperative
// scheduler that TLink tasks and channels run on.
//
// Go has no coroutine handles, so a "ready coroutine" is represented here
// as a plain Continuation: a zero-argument function that resumes whatever
// goroutine is parked waiting for it. Exactly one goroutine per Executor
// ever calls Continuations — Run is not safe to call from two goroutines
// at once — but Schedule is safe from any goroutine, which is the one
// cross-thread coupling the runtime needs.
package executor

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tlink-go/tlink/internal/queue"
	"github.com/tlink-go/tlink/logx"
)

// Continuation resumes a suspended task. It must not block.
type Continuation func()

// Executor is a FIFO, single-threaded scheduler for Continuations.
//
// Schedule is callable from any goroutine. Run must be called by exactly
// one goroutine at a time; calling it concurrently from two goroutines is
// a programmer error and panics.
type Executor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	ready   queue.Queue[Continuation]
	running bool

	runnerActive atomic.Bool

	token *liveToken
	log   *slog.Logger
}

// Option configures an Executor at construction time.
type Option func(*Executor)

// WithLogger attaches a structured logger. The default is a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// New constructs an Executor ready to accept Schedule calls and run.
func New(opts ...Option) *Executor {
	e := &Executor{
		running: true,
		token:   &liveToken{},
		log:     logx.NoOp(),
	}
	e.token.alive.Store(true)
	e.cond = sync.NewCond(&e.mu)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schedule enqueues cont to run on e's goroutine and wakes Run if it is
// blocked waiting for work. Safe for concurrent use from any goroutine.
func (e *Executor) Schedule(cont Continuation) {
	e.mu.Lock()
	e.ready.Enqueue(cont)
	e.mu.Unlock()
	e.cond.Signal()
}

// Run drains the ready queue, invoking each Continuation with the executor
// mutex released, until Stop is called and the queue is empty.
//
// Run must not be called twice concurrently on the same Executor.
func (e *Executor) Run() {
	if !e.runnerActive.CompareAndSwap(false, true) {
		panic("executor: Run called concurrently on the same Executor")
	}
	defer e.runnerActive.Store(false)

	e.mu.Lock()
	for {
		for {
			cont, ok := e.ready.Dequeue()
			if !ok {
				break
			}
			e.mu.Unlock()
			cont()
			e.mu.Lock()
		}

		if !e.running {
			e.mu.Unlock()
			return
		}

		e.cond.Wait()
	}
}

// Stop causes a blocked Run to return once the ready queue drains. In-flight
// continuations already dequeued are not interrupted.
func (e *Executor) Stop() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	e.cond.Broadcast()
}

// Close releases e's liveness token. After Close, WeakToken.Lock on any
// token obtained from e fails, and any channel still holding a registered
// waiter from e silently drops it on the next push instead of scheduling
// onto a dead Executor.
func (e *Executor) Close() {
	e.token.kill()
}

// LifeToken returns a weak, observable handle on e's liveness. Channels
// copy this at waiter-registration time so a push can safely test whether
// e is still around before scheduling onto it.
func (e *Executor) LifeToken() WeakToken {
	return WeakToken{token: e.token}
}

// Handle is the strong form of a liveness check: the Executor itself.
// WeakToken.Lock never returns one; callers keep their own Handle and use
// Lock only to confirm it is still alive before touching it.
type Handle = *Executor

// WeakToken is a weak observable of an Executor's liveness, copied out of
// the Executor at waiter-registration time. It never extends the
// Executor's lifetime.
type WeakToken struct {
	token *liveToken
}

// Lock reports whether the owning Executor is still alive, and if so
// returns nothing further — callers already hold their own reference to
// the Executor (a WeakToken never manufactures one), so Lock's only job is
// the liveness check: a waiter's executor is only ever touched after its
// token confirms the executor hasn't been closed.
func (w WeakToken) Lock() bool {
	if w.token == nil {
		return false
	}
	return w.token.alive.Load()
}

// liveToken is a small heap cell an Executor owns and dies with, observed
// through WeakToken without extending the Executor's lifetime.
type liveToken struct {
	alive atomic.Bool
}

func (t *liveToken) kill() {
	t.alive.Store(false)
}
