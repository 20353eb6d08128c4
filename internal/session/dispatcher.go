// File: internal/session/dispatcher.go
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stepwright/stepwright/api/schemas"
)

// task pairs one step request with the channel its result travels back on.
// The response channel is buffered so the worker never blocks on a caller
// that gave up.
type task struct {
	ctx  context.Context
	req  *schemas.StepRequest
	resp chan schemas.StepResult
}

// dispatcher serializes all step execution for one session onto a single
// worker goroutine. The driver is never touched from any other goroutine,
// and steps complete strictly in the order they were accepted.
type dispatcher struct {
	tasks chan *task
	// released tells the worker to stop; pending and late tasks are
	// answered with a session-not-ready failure instead of blocking.
	released chan struct{}
	// done closes when the worker goroutine has exited.
	done chan struct{}

	run         func(*task) schemas.StepResult
	log         *zap.Logger
	releaseOnce sync.Once
}

func newDispatcher(queueSize int, run func(*task) schemas.StepResult, log *zap.Logger) *dispatcher {
	d := &dispatcher{
		tasks:    make(chan *task, queueSize),
		released: make(chan struct{}),
		done:     make(chan struct{}),
		run:      run,
		log:      log,
	}
	go d.worker()
	return d
}

// worker is the session's only executor. It keeps draining the queue after
// release so senders blocked on a full queue are always answered.
func (d *dispatcher) worker() {
	defer close(d.done)
	for {
		select {
		case t := <-d.tasks:
			d.finish(t, d.run(t))
		case <-d.released:
			d.drain()
			return
		}
	}
}

// drain rejects whatever is still queued at release time.
func (d *dispatcher) drain() {
	for {
		select {
		case t := <-d.tasks:
			d.finish(t, schemas.Failure(schemas.NewStepError(
				schemas.ErrSessionNotReady, t.req.Action, nil,
				"session released before the step ran")))
		default:
			return
		}
	}
}

func (d *dispatcher) finish(t *task, res schemas.StepResult) {
	select {
	case t.resp <- res:
	default:
		// Caller abandoned the step; nothing is waiting for this result.
		d.log.Debug("dropping result for abandoned step",
			zap.String("action", string(t.req.Action)))
	}
}

// dispatch enqueues one step and blocks until its result, the caller's
// context, or session release.
func (d *dispatcher) dispatch(ctx context.Context, req *schemas.StepRequest) schemas.StepResult {
	t := &task{ctx: ctx, req: req, resp: make(chan schemas.StepResult, 1)}

	select {
	case d.tasks <- t:
	case <-d.released:
		return schemas.Failure(schemas.NewStepError(
			schemas.ErrSessionNotReady, req.Action, nil,
			"session has been released"))
	case <-ctx.Done():
		return schemas.Failure(schemas.NewStepError(
			schemas.ErrTimeout, req.Action, ctx.Err(),
			"context canceled before the step was accepted"))
	}

	select {
	case res := <-t.resp:
		return res
	case <-ctx.Done():
		return schemas.Failure(schemas.NewStepError(
			schemas.ErrTimeout, req.Action, ctx.Err(),
			"context canceled while waiting for the step result"))
	}
}

// release stops the worker and waits for it to exit.
func (d *dispatcher) release(timeout time.Duration) {
	d.releaseOnce.Do(func() { close(d.released) })
	select {
	case <-d.done:
	case <-time.After(timeout):
		d.log.Warn("dispatcher worker did not exit before the release timeout")
	}
}
