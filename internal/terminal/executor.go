package terminal

import (
	"sync"

	"go.uber.org/zap"
)

// executor runs posted tasks one at a time on a single goroutine. The
// queue is unbounded so tasks may post further tasks without blocking.
type executor struct {
	logger *zap.Logger

	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

func newExecutor(logger *zap.Logger) *executor {
	e := &executor{
		logger: logger,
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go e.run()
	return e
}

// post enqueues fn. It reports false once the executor is closed.
func (e *executor) post(fn func()) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.queue = append(e.queue, fn)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return true
}

func (e *executor) run() {
	defer close(e.done)
	for {
		select {
		case <-e.quit:
			return
		case <-e.wake:
		}
		for {
			fn, ok := e.pop()
			if !ok {
				break
			}
			e.invoke(fn)
		}
	}
}

func (e *executor) pop() (func(), bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return nil, false
	}
	fn := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	return fn, true
}

func (e *executor) invoke(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("terminal task panicked", zap.Any("panic", p))
		}
	}()
	fn()
}

// close drains queued tasks and stops the goroutine.
func (e *executor) close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.closed = true
	e.mu.Unlock()

	// Run whatever is still queued (teardowns) before stopping.
	drained := make(chan struct{})
	e.mu.Lock()
	e.queue = append(e.queue, func() { close(drained) })
	e.mu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
	<-drained

	close(e.quit)
	<-e.done
}
