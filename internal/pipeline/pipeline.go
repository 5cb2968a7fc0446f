package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/spectra/internal/capture"
	"github.com/GriffinCanCode/spectra/internal/display"
	"github.com/GriffinCanCode/spectra/internal/infrastructure/config"
	"github.com/GriffinCanCode/spectra/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/spectra/internal/queue"
	"github.com/GriffinCanCode/spectra/internal/spectrum"
	"github.com/GriffinCanCode/spectra/internal/stage"
	"github.com/GriffinCanCode/spectra/internal/watchdog"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Stage names, also used as metric labels.
const (
	StageCapture = "capture"
	StageFFT     = "fft"
	StageDisplay = "display"
)

// Queue names.
const (
	SamplesQueue = "samples"
	SpectraQueue = "spectra"
)

// DefaultShutdownTimeout bounds teardown started by Run or by a failed Start.
const DefaultShutdownTimeout = 5 * time.Second

// Config sizes the queues and paces the stages.
type Config struct {
	SampleRate     int
	Window         int
	Periods        int
	CaptureTimeout time.Duration

	QueueDepth   int
	QueueTimeout time.Duration

	WindowFunction string
	Refresh        time.Duration

	Watchdog        watchdog.Config
	ShutdownTimeout time.Duration
}

// FromConfig extracts the pipeline settings from the application config.
func FromConfig(c *config.Config) Config {
	return Config{
		SampleRate:     c.Capture.SampleRate,
		Window:         c.Capture.Window,
		Periods:        c.Capture.Periods,
		CaptureTimeout: c.Capture.Timeout.Duration(),
		QueueDepth:     c.Queue.Depth,
		QueueTimeout:   c.Queue.Timeout.Duration(),
		WindowFunction: c.Analyzer.Window,
		Refresh:        c.Display.Refresh.Duration(),
		Watchdog: watchdog.Config{
			Interval:    c.Watchdog.Interval.Duration(),
			MaxHoldTime: c.Watchdog.MaxHoldTime.Duration(),
		},
	}
}

// StageHealth describes one stage.
type StageHealth struct {
	Name  string      `json:"name"`
	State stage.State `json:"state"`
	Error string      `json:"error,omitempty"`
}

// Health is a point-in-time view of the pipeline.
type Health struct {
	Status  string                     `json:"status"`
	Stages  []StageHealth              `json:"stages"`
	Queues  map[string]queue.Occupancy `json:"queues"`
	Metrics monitoring.MetricsSnapshot `json:"metrics"`
}

// Healthy reports whether every stage is running.
func (h Health) Healthy() bool {
	return h.Status == "ok"
}

type fault struct {
	stage string
	err   error
}

type component struct {
	name   string
	worker stage.Worker
}

// Pipeline owns both queues, the three stages and the watchdog.
type Pipeline struct {
	cfg     Config
	logger  *zap.Logger
	metrics *monitoring.Metrics

	samples *queue.Queue[int16]
	spectra *queue.Queue[float64]

	capturer *capture.Capturer
	display  *display.Display

	// stages is in producer-first order.
	stages   []*stage.Stage
	watchdog *watchdog.Watchdog
	faults   chan fault

	shutdownOnce sync.Once
	shutdownErr  error
}

// New builds the queues and stages around device. Nothing runs until Init
// and Start.
func New(cfg Config, device capture.Device, logger *zap.Logger, metrics *monitoring.Metrics) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}

	samples, err := queue.New[int16](SamplesQueue, cfg.Window, cfg.QueueDepth, cfg.QueueTimeout)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	spectra, err := queue.New[float64](SpectraQueue, spectrum.Bins(cfg.Window), cfg.QueueDepth, cfg.QueueTimeout)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	capturer := capture.NewCapturer(device, samples, capture.Config{
		Params: capture.Params{
			SampleRate:   cfg.SampleRate,
			PeriodFrames: cfg.Window,
			Periods:      cfg.Periods,
		},
		Timeout:  cfg.CaptureTimeout,
		Drops:    metrics.Drops(StageCapture),
		Overruns: metrics.Overruns(),
	}, logger.Named(StageCapture))
	analyzer := spectrum.NewAnalyzer(samples, spectra, cfg.WindowFunction, metrics.Drops(StageFFT), logger.Named(StageFFT))
	disp := display.New(spectra, spectrum.Resolution(cfg.SampleRate, cfg.Window), cfg.Refresh, logger.Named(StageDisplay))

	p := assemble(cfg, logger, metrics, samples, spectra, []component{
		{StageCapture, capturer},
		{StageFFT, analyzer},
		{StageDisplay, disp},
	})
	p.capturer = capturer
	p.display = disp
	return p, nil
}

// assemble wires workers, given producer-first, into stages.
func assemble(cfg Config, logger *zap.Logger, metrics *monitoring.Metrics,
	samples *queue.Queue[int16], spectra *queue.Queue[float64], workers []component) *Pipeline {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	defaults := watchdog.DefaultConfig()
	if cfg.Watchdog.Interval <= 0 {
		cfg.Watchdog.Interval = defaults.Interval
	}
	if cfg.Watchdog.MaxHoldTime <= 0 {
		cfg.Watchdog.MaxHoldTime = defaults.MaxHoldTime
	}

	p := &Pipeline{
		cfg:     cfg,
		logger:  logger.Named("pipeline"),
		metrics: metrics,
		samples: samples,
		spectra: spectra,
		faults:  make(chan fault, len(workers)),
	}
	for _, c := range workers {
		p.stages = append(p.stages, stage.New(c.name, c.worker, logger, stage.WithFaultHandler(p.onFault)))
	}

	// Labels name the consumer that falls behind.
	p.watchdog = watchdog.New(cfg.Watchdog, logger, metrics)
	p.watchdog.AddQueue(samples, "analyzer")
	p.watchdog.AddQueue(spectra, "display")
	return p
}

func (p *Pipeline) onFault(name string, err error) {
	select {
	case p.faults <- fault{stage: name, err: err}:
	default:
	}
}

// Display returns the display worker, or nil for a pipeline without one.
func (p *Pipeline) Display() *display.Display {
	return p.display
}

// Metrics returns the collector the pipeline reports into.
func (p *Pipeline) Metrics() *monitoring.Metrics {
	return p.metrics
}

// Init initializes every stage, producer-first. If one fails, the stages
// that succeeded are shut down and joined, the queues are closed and a
// PhaseError naming the failing stage is returned.
func (p *Pipeline) Init(ctx context.Context) error {
	for _, s := range p.stages {
		timer := monitoring.NewTimer(p.metrics, s.Name())
		if err := s.Init(ctx); err != nil {
			timer.Stop("error")
			p.logger.Error("stage init failed", zap.String("stage", s.Name()), zap.Error(err))
			if terr := p.teardown(); terr != nil {
				p.logger.Warn("teardown after init failure", zap.Error(terr))
			}
			return &PhaseError{Phase: PhaseInit, Stage: s.Name(), Err: err}
		}
		timer.Stop("success")
	}

	if p.capturer != nil && p.display != nil {
		actual := p.capturer.Params()
		p.display.SetResolution(spectrum.Resolution(actual.SampleRate, p.cfg.Window))
	}
	p.logger.Info("pipeline initialized",
		zap.Int("window", p.cfg.Window),
		zap.Int("bins", spectrum.Bins(p.cfg.Window)),
		zap.Int("queue_depth", p.cfg.QueueDepth),
	)
	return nil
}

// Start launches the watchdog and then every stage, consumer-first. A stage
// that refuses to start tears the pipeline down and yields a PhaseError.
func (p *Pipeline) Start() (err error) {
	p.watchdog.Start()

	current := ""
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		p.logger.Error("stage start failed", zap.String("stage", current), zap.Any("panic", r))
		if terr := p.teardown(); terr != nil {
			p.logger.Warn("teardown after start failure", zap.Error(terr))
		}
		err = &PhaseError{Phase: PhaseStart, Stage: current, Err: fmt.Errorf("%w: %v", ErrStartFailed, r)}
	}()

	for i := len(p.stages) - 1; i >= 0; i-- {
		current = p.stages[i].Name()
		p.stages[i].Start()
	}
	return nil
}

// Run initializes and starts the pipeline, then blocks until ctx ends or a
// stage faults, and shuts down. A fault is reported as a PhaseRun error.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.Init(ctx); err != nil {
		return err
	}
	if err := p.Start(); err != nil {
		return err
	}
	p.logger.Info("pipeline running")

	var runErr error
	select {
	case <-ctx.Done():
		p.logger.Info("pipeline stopping")
	case f := <-p.faults:
		runErr = &PhaseError{Phase: PhaseRun, Stage: f.stage, Err: f.err}
		p.logger.Error("pipeline stopping after stage fault", zap.String("stage", f.stage), zap.Error(f.err))
	}

	err := p.teardown()

	// A fault racing with cancellation is still reported.
	if runErr == nil {
		select {
		case f := <-p.faults:
			runErr = &PhaseError{Phase: PhaseRun, Stage: f.stage, Err: f.err}
			p.logger.Error("stage fault during shutdown", zap.String("stage", f.stage), zap.Error(f.err))
		default:
		}
	}
	return multierr.Append(runErr, err)
}

// Shutdown signals every stage producer-first, joins them all, closes the
// queues and finally stops the watchdog. Only the first call does any work;
// later calls return its result.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.shutdownOnce.Do(func() {
		p.shutdownErr = p.shutdown(ctx)
	})
	return p.shutdownErr
}

func (p *Pipeline) teardown() error {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ShutdownTimeout)
	defer cancel()
	return p.Shutdown(ctx)
}

func (p *Pipeline) shutdown(ctx context.Context) error {
	for _, s := range p.stages {
		s.Shutdown()
	}

	var err error
	for _, s := range p.stages {
		err = multierr.Append(err, s.Join(ctx))
	}

	err = multierr.Append(err, p.samples.Close(ctx))
	err = multierr.Append(err, p.spectra.Close(ctx))

	p.watchdog.Shutdown()
	p.logger.Info("pipeline stopped")
	return err
}

// Health reports stage states, queue occupancy and the metrics summary.
func (p *Pipeline) Health() Health {
	h := Health{
		Status: "ok",
		Stages: make([]StageHealth, 0, len(p.stages)),
		Queues: map[string]queue.Occupancy{
			p.samples.Name(): p.samples.Occupancy(),
			p.spectra.Name(): p.spectra.Occupancy(),
		},
		Metrics: p.metrics.Snapshot(),
	}
	for _, s := range p.stages {
		sh := StageHealth{Name: s.Name(), State: s.State()}
		if err := s.Err(); err != nil {
			sh.Error = err.Error()
		}
		if sh.State != stage.StateRunning {
			h.Status = "degraded"
		}
		h.Stages = append(h.Stages, sh)
	}
	return h
}
