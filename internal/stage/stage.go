// Package stage runs one pipeline work loop on its own goroutine.
//
// A Stage moves through Created → Initialized → Running → ShuttingDown →
// Stopped exactly once. The goroutine exists only while the stage is Running
// or ShuttingDown. Cancellation is cooperative: Shutdown sets a flag that the
// loop checks between iterations, so every blocking call inside a Worker's
// Step must be bounded by a timeout.
package stage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	ErrAlreadyInitialized = errors.New("stage: already initialized")
	ErrNotRestartable     = errors.New("stage: stopped stages cannot be restarted")
	ErrPanicked           = errors.New("stage: worker panicked")
)

// State is the lifecycle position of a stage.
type State int32

const (
	StateCreated State = iota
	StateInitialized
	StateRunning
	StateShuttingDown
	StateStopped
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText lets states appear by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Worker is the body of a stage.
type Worker interface {
	// Init prepares every resource needed before data flows.
	Init(ctx context.Context) error
	// Step runs one bounded iteration of the work loop. A non-nil error is
	// fatal and ends the loop.
	Step() error
	// Close releases what Init acquired. It runs once, on the stage goroutine
	// after the loop ends, or on the caller's goroutine when a stage that was
	// never started is shut down.
	Close() error
}

// FaultHandler is told when a running stage stops because Step failed.
type FaultHandler func(stage string, err error)

// Option configures a Stage.
type Option func(*Stage)

// WithFaultHandler registers fn to be called from the stage goroutine when
// Step returns an error.
func WithFaultHandler(fn FaultHandler) Option {
	return func(s *Stage) {
		s.onFault = fn
	}
}

// Stage owns one worker and, once started, one goroutine.
type Stage struct {
	name    string
	worker  Worker
	logger  *zap.Logger
	onFault FaultHandler

	stop atomic.Bool
	done chan struct{}

	mu       sync.Mutex
	state    State
	fault    error
	closeErr error
}

// New creates a stage in the Created state.
func New(name string, worker Worker, logger *zap.Logger, opts ...Option) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Stage{
		name:   name,
		worker: worker,
		logger: logger.With(zap.String("stage", name)),
		done:   make(chan struct{}),
		state:  StateCreated,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the stage name.
func (s *Stage) Name() string {
	return s.name
}

// State returns the current lifecycle state.
func (s *Stage) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the stage reaches Stopped.
func (s *Stage) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the work loop, if any.
func (s *Stage) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault
}

// Init prepares the worker. On failure the stage stays Created and no
// goroutine is spawned.
func (s *Stage) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateCreated:
	case StateStopped:
		return fmt.Errorf("%w: %s", ErrNotRestartable, s.name)
	default:
		return fmt.Errorf("%w: %s is %s", ErrAlreadyInitialized, s.name, s.state)
	}

	if err := s.worker.Init(ctx); err != nil {
		return fmt.Errorf("stage %s: init: %w", s.name, err)
	}
	s.state = StateInitialized
	s.logger.Debug("stage initialized")
	return nil
}

// Start spawns the work loop. Starting a stage that is not Initialized is a
// programming error and panics.
func (s *Stage) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInitialized {
		panic(fmt.Sprintf("stage %s: start in state %s", s.name, s.state))
	}
	s.state = StateRunning
	go s.run()
	s.logger.Info("stage started")
}

// Shutdown asks the work loop to stop after its current iteration. It does
// not wait; use Join. A stage that was initialized but never started is
// closed and stopped immediately. Shutdown is idempotent.
func (s *Stage) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateRunning:
		s.state = StateShuttingDown
		s.stop.Store(true)
	case StateInitialized:
		if err := s.worker.Close(); err != nil {
			s.closeErr = fmt.Errorf("stage %s: close: %w", s.name, err)
		}
		s.state = StateStopped
		close(s.done)
	case StateCreated:
		s.state = StateStopped
		close(s.done)
	}
}

// Join waits until the stage is Stopped and returns the cleanup error, if any.
func (s *Stage) Join(ctx context.Context) error {
	select {
	case <-s.done:
	case <-ctx.Done():
		return fmt.Errorf("stage %s: join: %w", s.name, ctx.Err())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}

func (s *Stage) run() {
	fault := s.loop()
	closeErr := s.worker.Close()
	if closeErr != nil {
		s.logger.Warn("stage cleanup failed", zap.Error(closeErr))
	}
	if fault != nil {
		s.logger.Error("stage failed", zap.Error(fault))
		if s.onFault != nil {
			s.onFault(s.name, fault)
		}
	} else {
		s.logger.Info("stage stopped")
	}

	// Nothing logs after done is closed.
	s.mu.Lock()
	s.fault = fault
	if closeErr != nil {
		s.closeErr = fmt.Errorf("stage %s: close: %w", s.name, closeErr)
	}
	s.state = StateStopped
	close(s.done)
	s.mu.Unlock()
}

func (s *Stage) loop() (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("stage panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
		}
	}()
	for !s.stop.Load() {
		if err := s.worker.Step(); err != nil {
			return err
		}
	}
	return nil
}
