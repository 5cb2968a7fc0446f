package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GriffinCanCode/spectra/internal/capture"
	"github.com/GriffinCanCode/spectra/internal/infrastructure/config"
	"github.com/GriffinCanCode/spectra/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/spectra/internal/queue"
	"github.com/GriffinCanCode/spectra/internal/stage"
	"github.com/GriffinCanCode/spectra/internal/testutil"
	"github.com/GriffinCanCode/spectra/internal/watchdog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func testConfig() Config {
	return Config{
		SampleRate:     8000,
		Window:         80,
		Periods:        2,
		CaptureTimeout: 50 * time.Millisecond,
		QueueDepth:     4,
		QueueTimeout:   20 * time.Millisecond,
		WindowFunction: "hann",
		Refresh:        5 * time.Millisecond,
		Watchdog:       watchdog.Config{Interval: 20 * time.Millisecond, MaxHoldTime: time.Second},
	}
}

func testQueues(t *testing.T) (*queue.Queue[int16], *queue.Queue[float64]) {
	t.Helper()
	samples, err := queue.New[int16](SamplesQueue, 8, 2, 5*time.Millisecond)
	require.NoError(t, err)
	spectra, err := queue.New[float64](SpectraQueue, 5, 2, 5*time.Millisecond)
	require.NoError(t, err)
	return samples, spectra
}

func mockPipeline(t *testing.T, logger *zap.Logger, capt, fft, disp stage.Worker) *Pipeline {
	t.Helper()
	samples, spectra := testQueues(t)
	return assemble(testConfig(), logger, monitoring.NewMetrics(), samples, spectra, []component{
		{StageCapture, capt},
		{StageFFT, fft},
		{StageDisplay, disp},
	})
}

func failingWorker(initErr, stepErr error) *testutil.MockWorker {
	m := new(testutil.MockWorker)
	m.On("Init", mock.Anything).Return(initErr).Maybe()
	m.On("Step").Run(func(mock.Arguments) { time.Sleep(time.Millisecond) }).Return(stepErr).Maybe()
	m.On("Close").Return(nil).Maybe()
	return m
}

func shutdownCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestInitFailureTearsDownInitializedStages(t *testing.T) {
	errFFT := errors.New("plan rejected")
	capt := testutil.NewMockWorker(t)
	fft := failingWorker(errFFT, nil)
	disp := testutil.NewMockWorker(t)

	p := mockPipeline(t, zaptest.NewLogger(t), capt, fft, disp)

	err := p.Init(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errFFT)

	var pe *PhaseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, PhaseInit, pe.Phase)
	assert.Equal(t, StageFFT, pe.Stage)
	assert.Equal(t, 3, ExitCode(err))

	capt.AssertNumberOfCalls(t, "Close", 1)
	fft.AssertNotCalled(t, "Close")
	disp.AssertNotCalled(t, "Init", mock.Anything)

	for _, s := range p.Health().Stages {
		assert.Equal(t, stage.StateStopped, s.State, s.Name)
	}
	assert.Nil(t, p.samples.Allocate(), "queues are closed after teardown")
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestStartIsConsumerFirst(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	p := mockPipeline(t, zap.New(core), testutil.NewMockWorker(t), testutil.NewMockWorker(t), testutil.NewMockWorker(t))

	require.NoError(t, p.Init(context.Background()))
	require.NoError(t, p.Start())
	assert.True(t, p.Health().Healthy())

	require.NoError(t, p.Shutdown(shutdownCtx(t)))

	var order []string
	for _, e := range logs.FilterMessage("stage started").AllUntimed() {
		order = append(order, e.ContextMap()["stage"].(string))
	}
	assert.Equal(t, []string{StageDisplay, StageFFT, StageCapture}, order)
	assert.Equal(t, 1, logs.FilterMessage("pipeline stopped").Len())
}

func TestStartWithoutInitIsStartPhaseError(t *testing.T) {
	capt := testutil.NewMockWorker(t)
	p := mockPipeline(t, zaptest.NewLogger(t), capt, testutil.NewMockWorker(t), testutil.NewMockWorker(t))

	err := p.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStartFailed)

	var pe *PhaseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, PhaseStart, pe.Phase)
	assert.Equal(t, StageDisplay, pe.Stage)
	assert.Equal(t, 4, pe.ExitCode())

	capt.AssertNotCalled(t, "Step")
}

func TestRunReportsStageFault(t *testing.T) {
	errStep := errors.New("transform failed")
	p := mockPipeline(t, zaptest.NewLogger(t),
		testutil.NewMockWorker(t), failingWorker(nil, errStep), testutil.NewMockWorker(t))

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errStep)
		var pe *PhaseError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, PhaseRun, pe.Phase)
		assert.Equal(t, StageFFT, pe.Stage)
		assert.Equal(t, 1, ExitCode(err))
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after a stage fault")
	}

	h := p.Health()
	assert.False(t, h.Healthy())
	assert.Equal(t, errStep.Error(), h.Stages[1].Error)
}

func TestRunReportsFaultRacingCancellation(t *testing.T) {
	errStep := errors.New("device lost")
	p := mockPipeline(t, zaptest.NewLogger(t),
		testutil.NewMockWorker(t), testutil.NewMockWorker(t), testutil.NewMockWorker(t))

	// Both the fault and the cancellation are ready when Run starts waiting.
	p.onFault(StageCapture, errStep)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Run(ctx)
	assert.ErrorIs(t, err, errStep)
	var pe *PhaseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, StageCapture, pe.Stage)
	assert.Equal(t, 1, ExitCode(err))
}

func TestAssembleDefaultsWatchdogFields(t *testing.T) {
	cfg := testConfig()
	cfg.Watchdog = watchdog.Config{MaxHoldTime: 2 * time.Second}
	samples, spectra := testQueues(t)

	p := assemble(cfg, zaptest.NewLogger(t), monitoring.NewMetrics(), samples, spectra, nil)

	assert.Equal(t, watchdog.DefaultConfig().Interval, p.cfg.Watchdog.Interval)
	assert.Equal(t, 2*time.Second, p.cfg.Watchdog.MaxHoldTime)

	cfg.Watchdog = watchdog.Config{Interval: 50 * time.Millisecond}
	p = assemble(cfg, zaptest.NewLogger(t), monitoring.NewMetrics(), samples, spectra, nil)
	assert.Equal(t, 50*time.Millisecond, p.cfg.Watchdog.Interval)
	assert.Equal(t, watchdog.DefaultConfig().MaxHoldTime, p.cfg.Watchdog.MaxHoldTime)
}

func TestRunStopsWhenContextEnds(t *testing.T) {
	workers := []*testutil.MockWorker{testutil.NewMockWorker(t), testutil.NewMockWorker(t), testutil.NewMockWorker(t)}
	p := mockPipeline(t, zaptest.NewLogger(t), workers[0], workers[1], workers[2])

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	for _, w := range workers {
		w.AssertNumberOfCalls(t, "Close", 1)
	}
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestEndToEndSine(t *testing.T) {
	cfg := testConfig()
	metrics := monitoring.NewMetrics()
	dev := capture.NewSineDevice([]float64{1000})

	p, err := New(cfg, dev, zaptest.NewLogger(t), metrics)
	require.NoError(t, err)
	assert.Same(t, metrics, p.Metrics())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := p.Display().Latest()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	frame, _ := p.Display().Latest()
	assert.Equal(t, 100.0, frame.Resolution)
	assert.Len(t, frame.Magnitudes, 41)
	assert.InDelta(t, 1000, frame.PeakHz, 1e-9)
	assert.InDelta(t, 0.5, frame.PeakMagnitude, 0.05)

	h := p.Health()
	assert.True(t, h.Healthy())
	assert.Equal(t, 4, h.Queues[SamplesQueue].Capacity)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	for _, s := range p.Health().Stages {
		assert.Equal(t, stage.StateStopped, s.State, s.Name)
	}
}

func TestNewRejectsInvalidSizes(t *testing.T) {
	cfg := testConfig()
	cfg.QueueDepth = 0
	_, err := New(cfg, capture.NewSineDevice([]float64{1000}), nil, nil)
	assert.ErrorIs(t, err, queue.ErrInvalidConfig)
}

func TestInitRejectsUnplayableTone(t *testing.T) {
	p, err := New(testConfig(), capture.NewSineDevice([]float64{6000}), zaptest.NewLogger(t), nil)
	require.NoError(t, err)

	err = p.Init(context.Background())
	assert.ErrorIs(t, err, capture.ErrInvalidParams)
	assert.Equal(t, 3, ExitCode(err))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain", errors.New("boom"), 1},
		{"args", &PhaseError{Phase: PhaseArgs, Err: errors.New("bad rate")}, 2},
		{"init", &PhaseError{Phase: PhaseInit, Stage: StageCapture, Err: errors.New("no device")}, 3},
		{"start", &PhaseError{Phase: PhaseStart, Stage: StageFFT, Err: errors.New("x")}, 4},
		{"run", &PhaseError{Phase: PhaseRun, Stage: StageFFT, Err: errors.New("x")}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestPhaseErrorMessage(t *testing.T) {
	err := &PhaseError{Phase: PhaseInit, Stage: StageCapture, Err: errors.New("no device")}
	assert.Equal(t, "init: stage capture: no device", err.Error())

	err = &PhaseError{Phase: PhaseArgs, Err: errors.New("bad rate")}
	assert.Equal(t, "args: bad rate", err.Error())
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.Default())
	assert.Equal(t, 48000, cfg.SampleRate)
	assert.Equal(t, 1024, cfg.Window)
	assert.Equal(t, 8, cfg.QueueDepth)
	assert.Equal(t, "hann", cfg.WindowFunction)
	assert.Equal(t, time.Second, cfg.Watchdog.Interval)
	assert.Equal(t, 500*time.Millisecond, cfg.Watchdog.MaxHoldTime)
}
