// Package queue provides the bounded buffer-pool queue that links two
// pipeline stages.
//
// A Queue owns a fixed set of pre-allocated, fixed-size buffers. One producer
// takes empty buffers from the pool, fills them and pushes them; one consumer
// pops them in FIFO order, reads them and releases them back to the pool.
//
// Ownership:
//
//	pool ──Allocate──▶ producer ──Push──▶ awaiting ──Pop──▶ consumer ──Release──▶ pool
//
// A buffer always has exactly one owner. Push and Release verify that the
// buffer is currently checked out from the same queue and panic otherwise;
// these are programming errors that must not be masked.
//
// Blocking:
//   - Allocate and Pop wait at most the configured timeout
//   - TryPop never waits
//   - Shutdown wakes every waiter; all later calls return nil immediately
//
// Statistics:
//
// TakeStats returns the producer timeout count and the longest hold time
// (enqueue to dequeue) observed since the previous call, then resets both.
// The watchdog uses it as a sliding-window sample.
//
// Example Usage:
//
//	q, err := queue.New[int16]("samples", 1024, 8, 100*time.Millisecond)
//
//	// producer
//	if buf := q.Allocate(); buf != nil {
//	    copy(buf.Data(), frame)
//	    q.Push(buf)
//	}
//
//	// consumer
//	if buf := q.Pop(); buf != nil {
//	    process(buf.Data())
//	    q.Release(buf)
//	}
package queue
