package task

import (
	"github.com/tlink-go/tlink/executor"
)

// Handle is the ambient capability threaded through a running Task's body.
// It carries the Task's resume/yield channel pair (the Go substitute for a
// coroutine handle) and the executor the task is currently bound to.
//
// A Handle must not escape its Task's body.
type Handle struct {
	resumeCh chan struct{}
	yieldCh  chan yieldMsg

	exec  *executor.Executor
	token executor.WeakToken
}

type yieldMsg struct {
	done  bool
	await Completable
}

func newHandle() *Handle {
	return &Handle{
		resumeCh: make(chan struct{}),
		yieldCh:  make(chan yieldMsg),
	}
}

// Executor returns the Executor this task is currently bound to, or nil if
// the task has never been spawned or awaited under one (the bare-handle
// case, where a waiter suspends outside any executor).
func (h *Handle) Executor() *executor.Executor { return h.exec }

// Token returns the weak liveness handle of h.Executor(), for callers (like
// rawchan) that must check it before scheduling back onto this task.
func (h *Handle) Token() executor.WeakToken { return h.token }

func (h *Handle) bindExecutor(e *executor.Executor) {
	if h.exec != nil || e == nil {
		return
	}
	h.exec = e
	h.token = e.LifeToken()
}

// Suspend parks the calling task's body until c completes, then returns.
// While parked, the task's goroutine blocks on its own resume channel; the
// owning Executor (if any) is free to run other ready work in the
// meantime — this is the suspension half of the scheduler's cooperative
// contract.
func (h *Handle) Suspend(c Completable) {
	if c.Completed() {
		return
	}
	h.yieldCh <- yieldMsg{await: c}
	<-h.resumeCh
}
