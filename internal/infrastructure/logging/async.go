package logging

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	DefaultFlushInterval = 100 * time.Millisecond
	DefaultMaxBuffered   = 4096
)

var nextCoreID atomic.Uint64

type record struct {
	core   zapcore.Core
	id     uint64
	entry  zapcore.Entry
	fields []zapcore.Field
	count  int
}

func (r *record) matches(id uint64, ent zapcore.Entry, fields []zapcore.Field) bool {
	if r.id != id || r.entry.Level != ent.Level || r.entry.Message != ent.Message || r.entry.LoggerName != ent.LoggerName {
		return false
	}
	if len(r.fields) != len(fields) {
		return false
	}
	for i := range fields {
		if !fieldEquals(r.fields[i], fields[i]) {
			return false
		}
	}
	return true
}

// fieldEquals reports a field holding an uncomparable value as different.
func fieldEquals(a, b zapcore.Field) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a.Equals(b)
}

// asyncBuffer is shared by an AsyncCore and every core derived from it with
// With, so one goroutine drains them all in order.
type asyncBuffer struct {
	root     zapcore.Core
	max      int
	interval time.Duration

	mu      sync.Mutex
	pending []record
	spare   []record
	dropped uint64
	lost    uint64
	closed  bool

	drainMu sync.Mutex
	quit    chan struct{}
	done    chan struct{}
}

// AsyncCore is a zapcore.Core that returns from Write as soon as the entry is
// buffered. A background goroutine writes buffered entries to the wrapped
// core every flush interval. An entry identical to the one buffered just
// before it is folded into it and written once with a repeated=N field.
//
// The buffer holds at most MaxBuffered distinct entries; beyond that entries
// are dropped and the number dropped is logged on the next drain.
type AsyncCore struct {
	zapcore.LevelEnabler
	inner zapcore.Core
	id    uint64
	buf   *asyncBuffer
}

// NewAsyncCore wraps inner and starts the drain goroutine. Non-positive
// arguments select the defaults.
func NewAsyncCore(inner zapcore.Core, interval time.Duration, maxBuffered int) *AsyncCore {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	if maxBuffered <= 0 {
		maxBuffered = DefaultMaxBuffered
	}
	b := &asyncBuffer{
		root:     inner,
		max:      maxBuffered,
		interval: interval,
		pending:  make([]record, 0, maxBuffered),
		spare:    make([]record, 0, maxBuffered),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go b.loop()

	return &AsyncCore{
		LevelEnabler: inner,
		inner:        inner,
		id:           nextCoreID.Add(1),
		buf:          b,
	}
}

// With returns a core that adds fields to every entry and shares the buffer.
func (c *AsyncCore) With(fields []zapcore.Field) zapcore.Core {
	return &AsyncCore{
		LevelEnabler: c.LevelEnabler,
		inner:        c.inner.With(fields),
		id:           nextCoreID.Add(1),
		buf:          c.buf,
	}
}

// Check implements zapcore.Core.
func (c *AsyncCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

// Write buffers the entry. Once the core is closed entries go straight to the
// wrapped core.
func (c *AsyncCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	if !c.buf.add(c, ent, fields) {
		return c.inner.Write(ent, fields)
	}

	// Fatal and panic entries terminate the process right after Write.
	if ent.Level > zapcore.ErrorLevel {
		return c.buf.drain()
	}
	return nil
}

// add buffers, coalesces or drops the entry. It reports false once the
// buffer is closed.
func (b *asyncBuffer) add(c *AsyncCore, ent zapcore.Entry, fields []zapcore.Field) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	if n := len(b.pending); n > 0 && b.pending[n-1].matches(c.id, ent, fields) {
		b.pending[n-1].count++
		return true
	}
	if len(b.pending) >= b.max {
		b.dropped++
		b.lost++
		return true
	}

	b.pending = append(b.pending, record{
		core:   c.inner,
		id:     c.id,
		entry:  ent,
		fields: append([]zapcore.Field(nil), fields...),
		count:  1,
	})
	return true
}

// Sync writes everything buffered and syncs the wrapped core.
func (c *AsyncCore) Sync() error {
	return multierr.Append(c.buf.drain(), c.inner.Sync())
}

// Close stops the drain goroutine after a final drain. Later writes bypass
// the buffer. Close is idempotent.
func (c *AsyncCore) Close() error {
	b := c.buf
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.quit)
	<-b.done

	err := b.drain()
	return multierr.Append(err, b.root.Sync())
}

// Dropped returns how many entries have been discarded because the buffer
// was full.
func (c *AsyncCore) Dropped() uint64 {
	c.buf.mu.Lock()
	defer c.buf.mu.Unlock()
	return c.buf.lost
}

func (b *asyncBuffer) loop() {
	defer close(b.done)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.quit:
			return
		case <-ticker.C:
			_ = b.drain()
		}
	}
}

// drain swaps the pending slice out under the lock and writes it with the
// lock released.
func (b *asyncBuffer) drain() error {
	b.drainMu.Lock()
	defer b.drainMu.Unlock()

	b.mu.Lock()
	batch := b.pending
	b.pending = b.spare[:0]
	dropped := b.dropped > 0
	b.mu.Unlock()

	var err error
	for i := range batch {
		r := &batch[i]
		fields := r.fields
		if r.count > 1 {
			fields = append(fields, zap.Int("repeated", r.count))
		}
		err = multierr.Append(err, r.core.Write(r.entry, fields))
	}
	if dropped {
		b.mu.Lock()
		n := b.dropped
		b.dropped = 0
		b.mu.Unlock()
		err = multierr.Append(err, b.root.Write(zapcore.Entry{
			Level:   zapcore.WarnLevel,
			Time:    time.Now(),
			Message: "log entries dropped",
		}, []zapcore.Field{zap.Uint64("dropped", n)}))
	}

	clear(batch)
	b.mu.Lock()
	b.spare = batch[:0]
	b.mu.Unlock()
	return err
}
