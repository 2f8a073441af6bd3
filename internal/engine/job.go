package engine

import (
	"context"
	"sync"
	"sync/atomic"
)

// Executor runs notification callbacks. It is called from a single
// dispatcher goroutine, one callback at a time, in order.
type Executor func(func())

// Callbacks receive a job's notifications through its Executor.
type Callbacks struct {
	Progress func(float64)
	// Done is called exactly once with the output path or an *Error.
	Done func(path string, err error)
	// Executor defaults to calling the function directly on the dispatcher.
	Executor Executor
}

// Job is a composition running on its own worker goroutine.
type Job struct {
	cancel context.CancelFunc
	state  atomic.Int32
	n      *notifier
	done   chan struct{}

	path string
	err  error
}

// Start runs req on a new worker goroutine and returns immediately. Progress
// updates may be coalesced but are delivered in order, never decrease, and
// are followed by exactly one Done notification.
func (c *Composer) Start(ctx context.Context, req Request, cb Callbacks) *Job {
	ctx, cancel := context.WithCancel(ctx)
	j := &Job{
		cancel: cancel,
		n:      newNotifier(cb),
		done:   make(chan struct{}),
	}

	req.Progress = j.n.progress
	go j.n.dispatch()
	go func() {
		defer cancel()
		path, err := c.compose(ctx, req, func(s State) { j.state.Store(int32(s)) })
		j.path, j.err = path, err
		j.n.finish(path, err)
		<-j.n.delivered
		close(j.done)
	}()
	return j
}

// Cancel asks the job to stop at the next entry boundary.
func (j *Job) Cancel() { j.cancel() }

// State reports the current phase.
func (j *Job) State() State { return State(j.state.Load()) }

// Done is closed after the Done callback has returned.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job has finished and its Done callback has run.
func (j *Job) Wait() (string, error) {
	<-j.done
	return j.path, j.err
}

// notifier is the single channel between a job's worker and its callbacks.
// The worker never blocks on a slow consumer: pending progress is coalesced
// to the latest value.
type notifier struct {
	cb        Callbacks
	wake      chan struct{}
	delivered chan struct{}

	mu       sync.Mutex
	pending  float64
	has      bool
	finished bool
	path     string
	err      error
}

func newNotifier(cb Callbacks) *notifier {
	if cb.Executor == nil {
		cb.Executor = func(f func()) { f() }
	}
	return &notifier{
		cb:        cb,
		wake:      make(chan struct{}, 1),
		delivered: make(chan struct{}),
	}
}

func (n *notifier) progress(p float64) {
	n.mu.Lock()
	n.pending, n.has = p, true
	n.mu.Unlock()
	n.signal()
}

func (n *notifier) finish(path string, err error) {
	n.mu.Lock()
	n.finished, n.path, n.err = true, path, err
	n.mu.Unlock()
	n.signal()
}

func (n *notifier) signal() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *notifier) dispatch() {
	defer close(n.delivered)
	for range n.wake {
		n.mu.Lock()
		p, has := n.pending, n.has
		n.has = false
		finished, path, err := n.finished, n.path, n.err
		n.mu.Unlock()

		if has && n.cb.Progress != nil {
			n.run(func() { n.cb.Progress(p) })
		}
		if finished {
			if n.cb.Done != nil {
				n.run(func() { n.cb.Done(path, err) })
			}
			return
		}
	}
}

// run hands f to the executor and waits for it, so callbacks never overlap.
func (n *notifier) run(f func()) {
	ran := make(chan struct{})
	n.cb.Executor(func() {
		defer close(ran)
		f()
	})
	<-ran
}
