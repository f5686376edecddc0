// Package task implements TLink's lazy coroutine abstraction on top of a
// goroutine-per-task model. A Task[T] is created suspended: its backing
// goroutine exists but is parked before its body ever runs, and only takes
// its first step once something awaits it. From there, exactly one side of
// the resume/yield channel pair ever runs the task's Go code at a time,
// giving the single-threaded-per-context guarantee the rest of TLink
// depends on.
package task

import (
	"context"
	"fmt"

	"github.com/tlink-go/tlink/executor"
)

// Body is the function a Task runs. It receives the Handle it was started
// with, which it threads through to Suspend and to the Await function
// whenever it needs to wait on a channel or a child task.
type Body[T any] func(h *Handle) (T, error)

// Task is a lazy, single-shot coroutine producing a T. It implements
// Completable so it can itself be awaited like any other Promise-backed
// value.
type Task[T any] struct {
	h       *Handle
	promise *Promise[T]
	body    Body[T]
	started bool
}

// New constructs a Task that has not started running. Nothing about body
// executes until the Task is awaited or explicitly Spawned onto an
// Executor.
func New[T any](body Body[T]) *Task[T] {
	return &Task[T]{
		h:       newHandle(),
		promise: NewPromise[T](),
		body:    body,
	}
}

// Completed implements Completable by delegating to the backing Promise.
func (t *Task[T]) Completed() bool { return t.promise.Completed() }

// OnComplete implements Completable by delegating to the backing Promise.
func (t *Task[T]) OnComplete(f func()) { t.promise.OnComplete(f) }

// Result returns the Task's resolved value and error. Only meaningful once
// Completed reports true.
func (t *Task[T]) Result() (T, error) { return t.promise.snapshot() }

// Wait blocks the calling goroutine until t resolves or ctx is done, for
// application code and tests outside any task body that need to drive a
// Spawned task to completion without a Handle to suspend through.
func (t *Task[T]) Wait(ctx context.Context) (T, error) { return t.promise.Await(ctx) }

// ensureStarted launches t's goroutine and takes its first step exactly
// once, binding it to exec. Calling ensureStarted on an already-started
// Task with a different executor is a no-op: the first awaiter wins carry
// down, so a task's executor is fixed at first resumption.
func (t *Task[T]) ensureStarted(exec *executor.Executor) {
	if t.started {
		return
	}
	t.started = true
	t.h.bindExecutor(exec)

	go t.run()
	t.step()
}

// run is the Task's dedicated goroutine. It blocks immediately on the
// resume channel — the "created suspended" half of the lazy contract —
// then drives body to completion, recovering a panic into an error rather
// than ever letting the goroutine crash the process.
func (t *Task[T]) run() {
	<-t.h.resumeCh

	value, err := t.invoke()

	t.h.yieldCh <- yieldMsg{done: true}
	t.promise.complete(value, err)
}

func (t *Task[T]) invoke() (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task: panic in task body: %v", r)
		}
	}()
	return t.body(t.h)
}

// step resumes the task's goroutine for one leg and blocks until it either
// finishes or suspends again on a Completable. If it suspended, step
// arranges for itself to be re-invoked — inline if there is no owning
// Executor (the bare test-harness path), or scheduled back onto the
// Executor once the awaited Completable resolves.
func (t *Task[T]) step() {
	t.h.resumeCh <- struct{}{}
	msg := <-t.h.yieldCh
	if msg.done {
		return
	}

	awaited := msg.await
	resume := func() {
		if !t.promise.Completed() {
			t.step()
		}
	}

	if exec := t.h.exec; exec != nil {
		token := t.h.token
		awaited.OnComplete(func() {
			if token.Lock() {
				exec.Schedule(resume)
			}
		})
		return
	}

	awaited.OnComplete(resume)
}

// Spawn starts t running on exec immediately, without waiting for an
// awaiter. Used to root a detached task tree at an Executor, for
// fire-and-forget scheduling of a Task from outside any other coroutine.
func Spawn[T any](exec *executor.Executor, t *Task[T]) {
	exec.Schedule(func() { t.ensureStarted(exec) })
}

// Await suspends the calling task (identified by h) until child resolves,
// returning child's value and error. child carries down h's executor if it
// has not already started under one, so a chain of awaits within a single
// task tree all end up running on the same Executor.
//
// If h has no bound Executor (h came from RunInline or a bare Handle used
// outside any Task), Await drives child synchronously: it starts child
// with a nil executor, which makes child's own Suspend calls resolve
// inline too, so the whole chain is driven without a scheduler: each
// resumption runs on whichever goroutine resolved what the task awaited.
func Await[T any](h *Handle, child *Task[T]) (T, error) {
	child.ensureStarted(h.exec)
	if !child.Completed() {
		h.Suspend(child)
	}
	return child.Result()
}

// RunInline runs body to completion with no bound Executor, blocking the
// calling goroutine until it finishes, for application code and tests
// that want to drive a Task without standing up a scheduler. Any child tasks it Awaits run the same
// way, synchronously, one step at a time.
func RunInline[T any](body Body[T]) (T, error) {
	t := New(body)
	t.ensureStarted(nil)
	return t.promise.Await(context.Background())
}
