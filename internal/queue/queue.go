package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrInvalidConfig = errors.New("queue: invalid configuration")
	ErrBuffersInUse  = errors.New("queue: buffers still checked out")
)

// ownership tracks who holds a buffer. It is only read or written with the
// owning queue's mutex held.
type ownership uint8

const (
	ownedByPool ownership = iota
	ownedByQueue
	checkedOut
)

// Buffer is one fixed-size storage slot owned by a Queue.
type Buffer[T any] struct {
	data  []T
	owner *Queue[T]
	index int
	state ownership
}

// Data returns the buffer contents. Only the goroutine that currently holds
// the buffer may touch the slice.
func (b *Buffer[T]) Data() []T {
	return b.data
}

// Index returns the position of the buffer inside its queue's pool.
func (b *Buffer[T]) Index() int {
	return b.index
}

// Stats is a sample of queue health since the previous TakeStats call.
type Stats struct {
	Timeouts    uint64
	MaxHoldTime time.Duration
	Length      int
}

// StatsReporter is implemented by every queue regardless of element type.
type StatsReporter interface {
	Name() string
	TakeStats() Stats
}

// Occupancy describes where the buffers of a queue currently are.
type Occupancy struct {
	Free       int `json:"free"`
	Awaiting   int `json:"awaiting"`
	CheckedOut int `json:"checked_out"`
	Capacity   int `json:"capacity"`
}

type pending[T any] struct {
	buf *Buffer[T]
	at  time.Time
}

// Queue exchanges pre-allocated buffers between one producer and one consumer.
type Queue[T any] struct {
	name         string
	elementSize  int
	elementCount int
	timeout      time.Duration

	mu   sync.Mutex
	cond *sync.Cond

	storage    []T
	buffers    []Buffer[T]
	pool       ring[*Buffer[T]]
	awaiting   ring[pending[T]]
	checkedOut int

	timeouts uint64
	maxHold  time.Duration

	shutdown bool
	closed   bool

	// One timer per side so a bounded wait never allocates.
	producerTimer *time.Timer
	consumerTimer *time.Timer
}

// New creates a queue of elementCount buffers holding elementSize items each.
// All storage is allocated here.
func New[T any](name string, elementSize, elementCount int, timeout time.Duration) (*Queue[T], error) {
	if elementSize <= 0 {
		return nil, fmt.Errorf("%w: element size %d", ErrInvalidConfig, elementSize)
	}
	if elementCount <= 0 {
		return nil, fmt.Errorf("%w: element count %d", ErrInvalidConfig, elementCount)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout %s", ErrInvalidConfig, timeout)
	}

	q := &Queue[T]{
		name:         name,
		elementSize:  elementSize,
		elementCount: elementCount,
		timeout:      timeout,
		storage:      make([]T, elementSize*elementCount),
		buffers:      make([]Buffer[T], elementCount),
		pool:         newRing[*Buffer[T]](elementCount),
		awaiting:     newRing[pending[T]](elementCount),
	}
	q.cond = sync.NewCond(&q.mu)

	for i := range q.buffers {
		b := &q.buffers[i]
		b.data = q.storage[i*elementSize : (i+1)*elementSize : (i+1)*elementSize]
		b.owner = q
		b.index = i
		b.state = ownedByPool
		q.pool.push(b)
	}

	q.producerTimer = time.AfterFunc(time.Hour, q.wake)
	q.producerTimer.Stop()
	q.consumerTimer = time.AfterFunc(time.Hour, q.wake)
	q.consumerTimer.Stop()

	return q, nil
}

// Name returns the queue label.
func (q *Queue[T]) Name() string {
	return q.name
}

// ElementSize returns the number of items per buffer.
func (q *Queue[T]) ElementSize() int {
	return q.elementSize
}

// Capacity returns the number of buffers.
func (q *Queue[T]) Capacity() int {
	return q.elementCount
}

// Timeout returns the bound on Allocate and Pop waits.
func (q *Queue[T]) Timeout() time.Duration {
	return q.timeout
}

// Allocate hands an empty buffer to the producer. When the pool is empty it
// waits up to the timeout; if none was released in time it returns nil and
// counts a producer timeout. It returns nil without waiting after Shutdown.
func (q *Queue[T]) Allocate() *Buffer[T] {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shutdown {
		return nil
	}
	if q.pool.len() == 0 {
		deadline := time.Now().Add(q.timeout)
		for q.pool.len() == 0 && !q.shutdown {
			if !q.waitUntil(q.producerTimer, deadline) {
				break
			}
		}
	}
	if q.shutdown {
		return nil
	}
	if q.pool.len() == 0 {
		q.timeouts++
		return nil
	}

	b := q.pool.pop()
	b.state = checkedOut
	q.checkedOut++
	return b
}

// Push moves a filled buffer from the producer to the awaiting list.
func (q *Queue[T]) Push(b *Buffer[T]) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.mustHold(b, "push")
	b.state = ownedByQueue
	q.checkedOut--
	q.awaiting.push(pending[T]{buf: b, at: time.Now()})
	q.cond.Broadcast()
}

// Pop hands the oldest awaiting buffer to the consumer, waiting up to the
// timeout when the list is empty. It returns nil on timeout or after Shutdown.
func (q *Queue[T]) Pop() *Buffer[T] {
	return q.pop(true)
}

// TryPop is Pop without waiting.
func (q *Queue[T]) TryPop() *Buffer[T] {
	return q.pop(false)
}

func (q *Queue[T]) pop(block bool) *Buffer[T] {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shutdown {
		return nil
	}
	if q.awaiting.len() == 0 {
		if !block {
			return nil
		}
		deadline := time.Now().Add(q.timeout)
		for q.awaiting.len() == 0 && !q.shutdown {
			if !q.waitUntil(q.consumerTimer, deadline) {
				break
			}
		}
	}
	if q.shutdown || q.awaiting.len() == 0 {
		return nil
	}

	p := q.awaiting.pop()
	if hold := time.Since(p.at); hold > q.maxHold {
		q.maxHold = hold
	}
	p.buf.state = checkedOut
	q.checkedOut++
	return p.buf
}

// Release returns a buffer the consumer has finished with to the pool.
func (q *Queue[T]) Release(b *Buffer[T]) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.mustHold(b, "release")
	b.state = ownedByPool
	q.checkedOut--
	q.pool.push(b)
	q.cond.Broadcast()
}

// Shutdown makes every current and future Allocate or Pop return nil.
// The flag is never cleared.
func (q *Queue[T]) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.shutdown = true
	q.cond.Broadcast()
}

// TakeStats returns the statistics gathered since the previous call and
// resets the timeout counter and the maximum hold time.
func (q *Queue[T]) TakeStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{
		Timeouts:    q.timeouts,
		MaxHoldTime: q.maxHold,
		Length:      q.awaiting.len(),
	}
	q.timeouts = 0
	q.maxHold = 0
	return s
}

// Occupancy reports where the buffers are right now.
func (q *Queue[T]) Occupancy() Occupancy {
	q.mu.Lock()
	defer q.mu.Unlock()

	return Occupancy{
		Free:       q.pool.len(),
		Awaiting:   q.awaiting.len(),
		CheckedOut: q.checkedOut,
		Capacity:   q.elementCount,
	}
}

// Close shuts the queue down, waits until no buffer is checked out and then
// drops the backing storage. If ctx ends first the storage is kept and an
// error wrapping ErrBuffersInUse is returned. Close is idempotent.
func (q *Queue[T]) Close(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.shutdown = true
	q.cond.Broadcast()

	if q.checkedOut > 0 {
		stop := context.AfterFunc(ctx, q.wake)
		defer stop()
		for q.checkedOut > 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w: queue %s has %d: %w", ErrBuffersInUse, q.name, q.checkedOut, err)
			}
			q.cond.Wait()
		}
	}

	q.closed = true
	q.producerTimer.Stop()
	q.consumerTimer.Stop()
	q.pool.reset()
	q.awaiting.reset()
	for i := range q.buffers {
		q.buffers[i].data = nil
	}
	q.storage = nil
	return nil
}

// waitUntil blocks on the condition until a broadcast or the deadline. It
// reports false once the deadline has passed. Must be called with mu held.
func (q *Queue[T]) waitUntil(t *time.Timer, deadline time.Time) bool {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return false
	}
	t.Reset(remaining)
	q.cond.Wait()
	t.Stop()
	return true
}

func (q *Queue[T]) wake() {
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
}

// mustHold panics unless b is checked out from q. Must be called with mu held.
func (q *Queue[T]) mustHold(b *Buffer[T], op string) {
	if b == nil {
		panic(fmt.Sprintf("queue %s: %s(nil)", q.name, op))
	}
	if b.owner != q {
		panic(fmt.Sprintf("queue %s: %s of a buffer owned by another queue", q.name, op))
	}
	if b.state != checkedOut {
		panic(fmt.Sprintf("queue %s: %s of buffer %d that is not checked out", q.name, op, b.index))
	}
}
