// Package watchdog periodically samples queue statistics and warns when a
// consumer falls behind its producer.
package watchdog

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/spectra/internal/queue"
	"go.uber.org/zap"
)

// Config controls how often queues are sampled and what counts as too slow.
type Config struct {
	Interval    time.Duration
	MaxHoldTime time.Duration
}

// DefaultConfig polls once per second and tolerates half a second of queue
// latency.
func DefaultConfig() Config {
	return Config{
		Interval:    time.Second,
		MaxHoldTime: 500 * time.Millisecond,
	}
}

// Recorder receives every sample taken by the watchdog.
type Recorder interface {
	ObserveQueue(label string, s queue.Stats, warned bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveQueue(string, queue.Stats, bool) {}

type registration struct {
	reporter queue.StatsReporter
	label    string
}

// Watchdog owns one polling goroutine.
type Watchdog struct {
	cfg      Config
	logger   *zap.Logger
	recorder Recorder

	mu      sync.Mutex
	entries []registration
	seen    map[registration]struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	quit      chan struct{}
	done      chan struct{}
	started   bool
}

// New creates a watchdog. The loop does not run until Start.
func New(cfg Config, logger *zap.Logger, recorder Recorder) *Watchdog {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Watchdog{
		cfg:      cfg,
		logger:   logger.Named("watchdog"),
		recorder: recorder,
		seen:     make(map[registration]struct{}),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// AddQueue registers a queue under the label used in warnings. Registrations
// are never removed; adding the same pair twice is a no-op. It is safe to call
// while the loop is running.
func (w *Watchdog) AddQueue(r queue.StatsReporter, label string) {
	reg := registration{reporter: r, label: label}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.seen[reg]; ok {
		return
	}
	w.seen[reg] = struct{}{}
	w.entries = append(w.entries, reg)
}

// Start launches the polling goroutine. Later calls do nothing.
func (w *Watchdog) Start() {
	w.startOnce.Do(func() {
		w.mu.Lock()
		w.started = true
		w.mu.Unlock()
		go w.loop()
		w.logger.Debug("watchdog started", zap.Duration("interval", w.cfg.Interval))
	})
}

// Check polls every registered queue once and returns how many warnings
// were emitted.
func (w *Watchdog) Check() int {
	w.mu.Lock()
	// entries is append-only, so the slice header is a consistent snapshot.
	snapshot := w.entries
	w.mu.Unlock()

	warnings := 0
	for _, reg := range snapshot {
		s := reg.reporter.TakeStats()
		slow := s.Timeouts > 0 || s.MaxHoldTime > w.cfg.MaxHoldTime
		if slow {
			warnings++
			w.logger.Warn(reg.label+" too slow",
				zap.Uint64("timeouts", s.Timeouts),
				zap.Int64("cycle_time_ms", s.MaxHoldTime.Milliseconds()),
				zap.Int("length", s.Length),
			)
		}
		w.recorder.ObserveQueue(reg.label, s, slow)
	}
	return warnings
}

// Shutdown stops the loop and waits for it to exit. Statistics accumulated
// since the last poll are discarded.
func (w *Watchdog) Shutdown() {
	w.stopOnce.Do(func() {
		close(w.quit)
	})

	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if started {
		<-w.done
	}
}

func (w *Watchdog) loop() {
	defer close(w.done)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.quit:
			w.logger.Debug("watchdog stopped")
			return
		case <-ticker.C:
			w.Check()
		}
	}
}
