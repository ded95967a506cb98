package flow

import (
	"context"
	"sync"
)

var _ Pipe = (*Queue)(nil)

// Queue is an unbounded FIFO flow living in a single process.
//
// Send never blocks. Recv blocks until a value is available, the queue is
// closed and drained, or the context ends.
type Queue struct {
	lk     sync.Mutex
	buf    []int64
	closed bool

	// wake holds at most one pending notification for a blocked reader.
	wake chan struct{}
}

func NewQueue(initial ...int64) *Queue {
	q := &Queue{
		wake: make(chan struct{}, 1),
	}
	q.buf = append(q.buf, initial...)
	return q
}

func (q *Queue) Send(_ context.Context, value int64) error {
	q.lk.Lock()
	if q.closed {
		q.lk.Unlock()
		return ErrFlowClosed
	}
	q.buf = append(q.buf, value)
	q.lk.Unlock()
	q.notify()
	return nil
}

// Push is Send without a context, for drivers seeding a queue.
func (q *Queue) Push(values ...int64) error {
	q.lk.Lock()
	if q.closed {
		q.lk.Unlock()
		return ErrFlowClosed
	}
	q.buf = append(q.buf, values...)
	q.lk.Unlock()
	q.notify()
	return nil
}

func (q *Queue) Recv(ctx context.Context) (int64, error) {
	for {
		q.lk.Lock()
		if len(q.buf) > 0 {
			v := q.buf[0]
			q.buf = q.buf[1:]
			more := len(q.buf) > 0
			q.lk.Unlock()
			if more {
				// another reader may be parked on the token we consumed.
				q.notify()
			}
			return v, nil
		}
		if q.closed {
			q.lk.Unlock()
			q.notify()
			return 0, ErrFlowClosed
		}
		q.lk.Unlock()

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-q.wake:
		}
	}
}

// Len returns how many values are waiting to be received.
func (q *Queue) Len() int {
	q.lk.Lock()
	defer q.lk.Unlock()
	return len(q.buf)
}

// Drain removes and returns every buffered value without blocking.
func (q *Queue) Drain() []int64 {
	q.lk.Lock()
	defer q.lk.Unlock()
	out := q.buf
	q.buf = nil
	return out
}

// Close rejects further sends. Buffered values can still be received,
// after which Recv returns ErrFlowClosed.
func (q *Queue) Close() error {
	q.lk.Lock()
	if q.closed {
		q.lk.Unlock()
		return nil
	}
	q.closed = true
	q.lk.Unlock()
	q.notify()
	return nil
}

func (q *Queue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
