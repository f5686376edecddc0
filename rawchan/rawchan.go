// Package rawchan implements TLink's multi-producer, multi-consumer byte
// channel, supporting an arbitrary number of concurrent waiters dispatched
// either by Broadcast (every waiter gets a copy) or LoadBalancer (exactly
// one waiter gets each payload, FIFO).
//
// A waiter is represented by a task.Promise, the same Completable a task
// suspends on when awaiting another task — so a task body calling Next
// suspends through its Handle exactly the way it would awaiting a child
// task, and the owning Executor's run loop is never blocked waiting on a
// channel delivery. Next also accepts a nil Handle for callers outside any
// task (tests, a driver's own dedicated goroutine), in which case it blocks
// the calling goroutine directly — safe there precisely because no
// Executor run loop is waiting on that goroutine.
//
// Go has no coroutine frame to destroy when a suspended awaiter is
// cancelled, so cancellation here is driven by the caller's context.Context
// via context.AfterFunc: if ctx is cancelled before delivery, the waiter is
// resolved as closed/empty and removed from the channel's list itself.
package rawchan

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tlink-go/tlink/executor"
	"github.com/tlink-go/tlink/internal/queue"
	"github.com/tlink-go/tlink/logx"
	"github.com/tlink-go/tlink/task"
)

// DispatchMode selects how a pushed payload is handed to waiting consumers.
type DispatchMode int

const (
	// Broadcast delivers a copy of each payload to every registered waiter.
	Broadcast DispatchMode = iota
	// LoadBalancer delivers each payload to exactly one waiter, in the
	// order waiters registered.
	LoadBalancer
)

// ParseMode maps a config-file mode name to a DispatchMode, for components
// (cmd/tlinkctl, examples) that take their default dispatch mode from
// config rather than hardcoding it.
func ParseMode(s string) (DispatchMode, error) {
	switch s {
	case "broadcast":
		return Broadcast, nil
	case "loadbalancer":
		return LoadBalancer, nil
	default:
		return 0, fmt.Errorf("rawchan: unknown dispatch mode %q", s)
	}
}

// Channel is the shared byte-channel state. Zero value is not usable; use
// New. A *Channel is shared by reference the way Go's GC-managed pointers
// always are, so no refcounting lives here; refcounting belongs to
// subscription, which needs explicit teardown ordering.
type Channel struct {
	mu      sync.Mutex
	buffer  queue.Queue[[]byte]
	closed  bool
	waiters queue.Queue[*waiter]
	mode    DispatchMode

	log *slog.Logger
}

// Option configures a Channel at construction time.
type Option func(*Channel)

// WithMode sets the initial dispatch mode. Default is Broadcast.
func WithMode(mode DispatchMode) Option {
	return func(c *Channel) { c.mode = mode }
}

// WithLogger attaches a structured logger, used only to record the
// otherwise-unobservable event of a delivery being dropped because its
// waiter's Executor has died. Default is a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) { c.log = l }
}

// WithBufferCapacity pre-allocates the channel's unconsumed-payload buffer
// to n entries. It is a sizing hint, not a hard limit: Push never blocks or
// drops a payload for exceeding n, it just reallocates past it like any
// growing slice would.
func WithBufferCapacity(n int) Option {
	return func(c *Channel) { c.buffer = queue.NewWithCapacity[[]byte](n) }
}

// New constructs an open Channel.
func New(opts ...Option) *Channel {
	c := &Channel{log: logx.NoOp()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetMode changes the dispatch mode used by subsequent Push calls.
func (c *Channel) SetMode(mode DispatchMode) {
	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()
}

// delivery is what a waiter's Promise resolves to: the payload if one
// arrived, or ok=false if the channel closed or the wait was cancelled.
type delivery struct {
	payload []byte
	ok      bool
}

// waiter is a single heap-allocated node owned by the channel while
// registered, and removed by identity on delivery or cancellation. Go has
// no intrusive list hooks inside a suspended frame, so each Next call
// allocates one of these rather than splicing into a frame-embedded node.
// Its promise is the same Completable a Task suspends on awaiting another
// Task, so rawchan needs no delivery mechanism of its own beyond what task
// already provides.
type waiter struct {
	promise *task.Promise[delivery]
	token   executor.WeakToken
	bound   bool        // true if registered from a task bound to an Executor
	done    atomic.Bool // true once delivered, closed, or cancelled
}

// executorGone reports whether w registered from a task bound to an
// Executor that has since been closed. A waiter registered with no Executor
// is always delivered to directly.
func (w *waiter) executorGone() bool {
	return w.bound && !w.token.Lock()
}

func newWaiter(token executor.WeakToken) *waiter {
	return &waiter{promise: task.NewPromise[delivery](), token: token}
}

func tokenOf(h *task.Handle) executor.WeakToken {
	if h == nil {
		return executor.WeakToken{}
	}
	return h.Token()
}

// tryDeliver attempts to resolve w with payload exactly once. Reports
// whether it won the race; a false return means w was already delivered
// to, closed, or cancelled, and the caller (LoadBalancer dispatch) should
// try the next waiter instead.
func (w *waiter) tryDeliver(payload []byte) bool {
	if !w.done.CompareAndSwap(false, true) {
		return false
	}
	w.promise.Resolve(delivery{payload: payload, ok: true})
	return true
}

// cancel marks w as no longer deliverable, resolving it as empty. Reports
// whether the cancellation won the race against a concurrent delivery.
func (w *waiter) cancel() bool {
	if !w.done.CompareAndSwap(false, true) {
		return false
	}
	w.promise.Resolve(delivery{})
	return true
}

// signalClosed resolves w as empty if it has not already been resolved.
func (w *waiter) signalClosed() {
	if w.done.CompareAndSwap(false, true) {
		w.promise.Resolve(delivery{})
	}
}

// Push hands payload to the channel. If the channel is closed the payload
// is dropped; if any waiters are registered it is dispatched per the
// current DispatchMode; otherwise it is buffered for a future Next call.
func (c *Channel) Push(payload []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	if c.waiters.Len() == 0 {
		c.buffer.Enqueue(payload)
		c.mu.Unlock()
		return
	}

	switch c.mode {
	case Broadcast:
		targets := c.waiters.Drain()
		c.mu.Unlock()
		for _, w := range targets {
			c.deliverTo(w, payload)
		}
	default: // LoadBalancer
		c.dispatchLoadBalanced(payload)
	}
}

// dispatchLoadBalanced walks the waiter queue FIFO, delivering payload to
// the first waiter that is still alive and not already cancelled. Waiters
// whose Executor has died are dropped and logged; dispatch continues to the
// next one.
func (c *Channel) dispatchLoadBalanced(payload []byte) {
	for {
		w, ok := c.waiters.Dequeue()
		if !ok {
			c.buffer.Enqueue(payload)
			c.mu.Unlock()
			return
		}
		if w.executorGone() {
			c.log.Debug("rawchan: dropping load-balanced waiter, executor gone")
			w.done.Store(true)
			continue
		}
		c.mu.Unlock()
		if w.tryDeliver(payload) {
			return
		}
		// w was cancelled concurrently; try the next one.
		c.mu.Lock()
	}
}

// deliverTo attempts delivery to w outside the channel lock, honoring w's
// recorded executor liveness. Used by Broadcast, where every waiter gets a
// copy regardless of the others' outcomes.
func (c *Channel) deliverTo(w *waiter, payload []byte) {
	if w.executorGone() {
		c.log.Debug("rawchan: dropping broadcast waiter, executor gone")
		w.done.Store(true)
		return
	}
	w.tryDeliver(payload)
}

// Next returns the next available payload, suspending until one arrives,
// the channel closes, or ctx is cancelled. The bool is false exactly when
// the channel is closed and no payload arrived (or the context was
// cancelled first) — the Go idiom for a closed-signalling optional value.
//
// h is the calling task's Handle, used to suspend cooperatively through
// the owning Executor rather than blocking the task's own goroutine (which
// would otherwise block that Executor's run loop for as long as the wait
// takes). h may be nil for callers with no Task at all — direct test code,
// or a driver's own dedicated goroutine — in which case Next blocks the
// calling goroutine directly, which is safe there because no Executor run
// loop depends on it.
func (c *Channel) Next(ctx context.Context, h *task.Handle) ([]byte, bool) {
	c.mu.Lock()
	if payload, ok := c.buffer.Dequeue(); ok {
		c.mu.Unlock()
		return payload, true
	}
	if c.closed {
		c.mu.Unlock()
		return nil, false
	}

	w := newWaiter(tokenOf(h))
	w.bound = h != nil && h.Executor() != nil
	c.waiters.Enqueue(w)
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		c.removeWaiter(w)
		w.cancel()
	})
	defer stop()

	if h != nil {
		h.Suspend(w.promise)
	}

	d, _ := w.promise.Await(context.Background())
	return d.payload, d.ok
}

// TryNext returns the next buffered payload without registering a waiter or
// suspending. The bool is false if nothing is buffered right now, whether
// because the channel is empty, closed, or every pending payload has
// already gone to a registered waiter — callers that need to distinguish
// those cases should use Next instead.
func (c *Channel) TryNext() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer.Dequeue()
}

func (c *Channel) removeWaiter(w *waiter) {
	c.mu.Lock()
	c.waiters.Remove(func(x *waiter) bool { return x == w })
	c.mu.Unlock()
}

// Close idempotently closes the channel. Every currently registered waiter
// is resolved as closed/empty outside the lock; resolving a waiter's
// promise is itself the wakeup, no separate scheduling step needed.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.waiters.Drain()
	c.mu.Unlock()

	for _, w := range pending {
		w.signalClosed()
	}
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// WaiterCount reports how many Next calls are currently suspended waiting
// for a payload or closure. Intended for tests and examples that need to
// synchronize on registration before pushing, since Next's registration
// step is otherwise unobservable from outside the package.
func (c *Channel) WaiterCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiters.Len()
}
