package runner

import (
	"context"
	"sync"

	"github.com/chazu/rbvm/vm"
)

// request is a unit of work executed on the interpreter goroutine.
type request struct {
	fn   func(*vm.Interpreter) (vm.Value, error)
	done chan result
}

type result struct {
	value vm.Value
	err   error
}

// Worker serializes all interpreter access through a single goroutine.
// The interpreter is single-threaded; concurrent callers go through Do.
type Worker struct {
	interp   *vm.Interpreter
	requests chan request
	quit     chan struct{}
	stopped  chan struct{}
	stop     sync.Once
}

// NewWorker creates a Worker around interp and starts its goroutine.
func NewWorker(interp *vm.Interpreter) *Worker {
	w := &Worker{
		interp:   interp,
		requests: make(chan request, 64),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	defer close(w.stopped)
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn, turning a panic that escaped the interpreter into an
// error.
func (w *Worker) execute(fn func(*vm.Interpreter) (vm.Value, error)) (res result) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				res.err = ErrWorker.Wrap(e, "panic on interpreter goroutine")
			} else {
				res.err = ErrWorker.New("panic on interpreter goroutine: %v", r)
			}
		}
	}()
	res.value, res.err = fn(w.interp)
	return res
}

// Do submits fn to the interpreter goroutine and waits for it. A request
// still queued when ctx ends is abandoned; one already running completes.
func (w *Worker) Do(ctx context.Context, fn func(*vm.Interpreter) (vm.Value, error)) (vm.Value, error) {
	req := request{fn: fn, done: make(chan result, 1)}
	select {
	case w.requests <- req:
	case <-w.stopped:
		return nil, ErrStopped.New("worker stopped")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-req.done:
		return res.value, res.err
	case <-w.stopped:
		return nil, ErrStopped.New("worker stopped")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop shuts down the worker goroutine. It is safe to call more than once.
func (w *Worker) Stop() {
	w.stop.Do(func() { close(w.quit) })
	<-w.stopped
}
