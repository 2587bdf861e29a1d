// Package timeline provides serial execution queues.
//
// A Queue owns one goroutine and runs submitted work strictly in submission
// order. framecap uses one Queue per execution timeline: the capture
// controller's session-configuration queue and the processing context's GPU
// queue. Work that touches state owned by a timeline must be submitted to
// that timeline's Queue.
package timeline

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/framecap"
)

// Queue errors.
var (
	// ErrClosed is returned when work is submitted to a closed queue.
	ErrClosed = errors.New("timeline: queue closed")

	// ErrPanicked wraps a panic recovered from a work item.
	ErrPanicked = errors.New("timeline: work panicked")
)

// DefaultDepth is the number of work items buffered before Async blocks.
const DefaultDepth = 64

// Queue is a serial FIFO executor backed by a single goroutine.
//
// Queue is safe for concurrent use. Sync must not be called from work
// already running on the same queue: the caller would wait for itself.
type Queue struct {
	label string

	// work is the FIFO of pending items.
	work chan func()

	// done signals the worker to drain and stop.
	done chan struct{}

	// wg waits for the worker goroutine.
	wg sync.WaitGroup

	// mu orders submissions against Close so nothing is queued after the
	// worker has drained.
	mu      sync.RWMutex
	running atomic.Bool

	executed atomic.Uint64
}

// New creates a queue and starts its goroutine.
// If depth is 0 or negative, DefaultDepth is used.
func New(label string, depth int) *Queue {
	if depth <= 0 {
		depth = DefaultDepth
	}

	q := &Queue{
		label: label,
		work:  make(chan func(), depth),
		done:  make(chan struct{}),
	}
	q.running.Store(true)

	q.wg.Add(1)
	go q.worker()

	return q
}

// worker is the main loop of the queue goroutine.
func (q *Queue) worker() {
	defer q.wg.Done()

	for {
		select {
		case <-q.done:
			q.drain()
			return
		case fn := <-q.work:
			q.run(fn)
		}
	}
}

// drain executes everything still queued at shutdown.
func (q *Queue) drain() {
	for {
		select {
		case fn := <-q.work:
			q.run(fn)
		default:
			return
		}
	}
}

// run executes one item. A panicking Async item is logged and the queue
// keeps going; Sync items convert their own panics into errors.
func (q *Queue) run(fn func()) {
	if fn == nil {
		return
	}
	q.executed.Add(1)
	defer func() {
		if r := recover(); r != nil {
			framecap.Logger().Error("timeline: async work panicked",
				"queue", q.label, "panic", r)
		}
	}()
	fn()
}

// submit enqueues fn unless the queue is closed.
func (q *Queue) submit(fn func()) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if !q.running.Load() {
		return ErrClosed
	}
	q.work <- fn
	return nil
}

// Async enqueues fn and returns immediately.
// Returns ErrClosed if the queue no longer accepts work.
func (q *Queue) Async(fn func()) error {
	if fn == nil {
		return nil
	}
	return q.submit(fn)
}

// Sync enqueues fn and blocks until it has run.
// A panic inside fn is recovered and returned wrapped in ErrPanicked.
func (q *Queue) Sync(fn func() error) error {
	if fn == nil {
		return nil
	}

	result := make(chan error, 1)
	err := q.submit(func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("%w: %s: %v", ErrPanicked, q.label, r)
			}
		}()
		result <- fn()
	})
	if err != nil {
		return err
	}
	return <-result
}

// Close stops accepting work, runs everything already queued, and waits for
// the goroutine to exit. Close is safe to call multiple times.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.running.CompareAndSwap(true, false) {
		q.mu.Unlock()
		return
	}
	close(q.done)
	q.mu.Unlock()

	q.wg.Wait()
}

// Label returns the queue's diagnostic label.
func (q *Queue) Label() string {
	return q.label
}

// IsRunning returns true if the queue still accepts work.
func (q *Queue) IsRunning() bool {
	return q.running.Load()
}

// Pending returns the number of queued items not yet started.
// This is an approximation as the queue can change concurrently.
func (q *Queue) Pending() int {
	return len(q.work)
}

// Executed returns the number of items started so far.
func (q *Queue) Executed() uint64 {
	return q.executed.Load()
}
