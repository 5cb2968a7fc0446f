package stage

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/spectra/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func joinCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateCreated, "created"},
		{StateInitialized, "initialized"},
		{StateRunning, "running"},
		{StateShuttingDown, "shutting_down"},
		{StateStopped, "stopped"},
		{State(42), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}

func TestLifecycle(t *testing.T) {
	worker := testutil.NewMockWorker(t)
	s := New("capture", worker, zaptest.NewLogger(t))

	assert.Equal(t, StateCreated, s.State())

	require.NoError(t, s.Init(context.Background()))
	assert.Equal(t, StateInitialized, s.State())

	s.Start()
	assert.Equal(t, StateRunning, s.State())
	time.Sleep(20 * time.Millisecond)

	s.Shutdown()
	require.NoError(t, s.Join(joinCtx(t)))
	assert.Equal(t, StateStopped, s.State())
	assert.NoError(t, s.Err())

	worker.AssertCalled(t, "Init", mock.Anything)
	worker.AssertCalled(t, "Step")
	worker.AssertNumberOfCalls(t, "Close", 1)
}

func TestInitFailureLeavesStageCreated(t *testing.T) {
	errDevice := errors.New("device unavailable")
	worker := new(testutil.MockWorker)
	worker.On("Init", mock.Anything).Return(errDevice)

	s := New("capture", worker, zaptest.NewLogger(t))

	err := s.Init(context.Background())
	assert.ErrorIs(t, err, errDevice)
	assert.Equal(t, StateCreated, s.State())
	assert.Panics(t, s.Start)

	worker.AssertNotCalled(t, "Step")
}

func TestStartBeforeInitPanics(t *testing.T) {
	s := New("fft", testutil.NewMockWorker(t), zaptest.NewLogger(t))
	assert.Panics(t, s.Start)
}

func TestInitTwiceIsRejected(t *testing.T) {
	s := New("fft", testutil.NewMockWorker(t), zaptest.NewLogger(t))
	require.NoError(t, s.Init(context.Background()))
	assert.ErrorIs(t, s.Init(context.Background()), ErrAlreadyInitialized)
}

func TestStageIsNotRestartable(t *testing.T) {
	s := New("fft", testutil.NewMockWorker(t), zaptest.NewLogger(t))
	require.NoError(t, s.Init(context.Background()))
	s.Start()
	s.Shutdown()
	require.NoError(t, s.Join(joinCtx(t)))

	assert.ErrorIs(t, s.Init(context.Background()), ErrNotRestartable)
	assert.Panics(t, s.Start)
}

func TestShutdownOfInitializedStageReleasesResources(t *testing.T) {
	worker := testutil.NewMockWorker(t)
	s := New("display", worker, zaptest.NewLogger(t))
	require.NoError(t, s.Init(context.Background()))

	s.Shutdown()
	require.NoError(t, s.Join(joinCtx(t)))

	assert.Equal(t, StateStopped, s.State())
	worker.AssertNumberOfCalls(t, "Close", 1)
	worker.AssertNotCalled(t, "Step")
}

func TestShutdownIsIdempotent(t *testing.T) {
	worker := testutil.NewMockWorker(t)
	s := New("display", worker, zaptest.NewLogger(t))
	require.NoError(t, s.Init(context.Background()))
	s.Start()

	s.Shutdown()
	s.Shutdown()
	require.NoError(t, s.Join(joinCtx(t)))
	s.Shutdown()

	worker.AssertNumberOfCalls(t, "Close", 1)
}

func TestStepFaultStopsLoopAndNotifies(t *testing.T) {
	errRead := errors.New("read failed")
	worker := new(testutil.MockWorker)
	worker.On("Init", mock.Anything).Return(nil)
	worker.On("Step").Return(nil).Times(3)
	worker.On("Step").Return(errRead).Once()
	worker.On("Close").Return(nil)

	faults := make(chan error, 1)
	s := New("capture", worker, zaptest.NewLogger(t), WithFaultHandler(func(name string, err error) {
		assert.Equal(t, "capture", name)
		faults <- err
	}))

	require.NoError(t, s.Init(context.Background()))
	s.Start()

	select {
	case err := <-faults:
		assert.ErrorIs(t, err, errRead)
	case <-time.After(time.Second):
		t.Fatal("fault handler was not called")
	}

	require.NoError(t, s.Join(joinCtx(t)))
	assert.ErrorIs(t, s.Err(), errRead)
	assert.Equal(t, StateStopped, s.State())
	worker.AssertNumberOfCalls(t, "Step", 4)
	worker.AssertNumberOfCalls(t, "Close", 1)
}

func TestJoinReportsCleanupError(t *testing.T) {
	errFlush := errors.New("flush failed")
	worker := new(testutil.MockWorker)
	worker.On("Init", mock.Anything).Return(nil)
	worker.On("Step").Return(nil)
	worker.On("Close").Return(errFlush)

	s := New("capture", worker, zaptest.NewLogger(t))
	require.NoError(t, s.Init(context.Background()))
	s.Start()
	s.Shutdown()

	assert.ErrorIs(t, s.Join(joinCtx(t)), errFlush)
	assert.NoError(t, s.Err())
}

// slowWorker blocks for a bounded interval per step, like a queue Pop.
type slowWorker struct {
	interval time.Duration
	steps    atomic.Int64
}

func (w *slowWorker) Init(context.Context) error { return nil }

func (w *slowWorker) Step() error {
	time.Sleep(w.interval)
	w.steps.Add(1)
	return nil
}

func (w *slowWorker) Close() error { return nil }

func TestShutdownObservedWithinOneIteration(t *testing.T) {
	worker := &slowWorker{interval: 50 * time.Millisecond}
	s := New("fft", worker, zaptest.NewLogger(t))
	require.NoError(t, s.Init(context.Background()))
	s.Start()

	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	s.Shutdown()
	assert.Equal(t, StateShuttingDown, s.State())
	require.NoError(t, s.Join(joinCtx(t)))

	assert.Less(t, time.Since(start), 2*worker.interval+50*time.Millisecond)
	assert.LessOrEqual(t, worker.steps.Load(), int64(2))
}

func TestJoinHonoursContext(t *testing.T) {
	worker := &slowWorker{interval: 10 * time.Millisecond}
	s := New("fft", worker, zaptest.NewLogger(t))
	require.NoError(t, s.Init(context.Background()))
	s.Start()
	defer func() {
		s.Shutdown()
		_ = s.Join(joinCtx(t))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Join(ctx), context.DeadlineExceeded)
}

type panickingWorker struct{}

func (panickingWorker) Init(context.Context) error { return nil }
func (panickingWorker) Step() error                { panic("index out of range") }
func (panickingWorker) Close() error               { return nil }

func TestStepPanicBecomesFault(t *testing.T) {
	faults := make(chan error, 1)
	s := New("fft", panickingWorker{}, zaptest.NewLogger(t), WithFaultHandler(func(_ string, err error) {
		faults <- err
	}))
	require.NoError(t, s.Init(context.Background()))
	s.Start()

	select {
	case err := <-faults:
		assert.ErrorIs(t, err, ErrPanicked)
		assert.Contains(t, err.Error(), "index out of range")
	case <-time.After(time.Second):
		t.Fatal("panic was not reported")
	}
	require.NoError(t, s.Join(joinCtx(t)))
	assert.Equal(t, StateStopped, s.State())
}
