package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GriffinCanCode/spectra/internal/queue"
	"go.uber.org/zap"
)

// Counter is incremented once per event.
type Counter interface {
	Inc()
}

type nopCounter struct{}

func (nopCounter) Inc() {}

// Config configures a Capturer.
type Config struct {
	Params  Params
	Timeout time.Duration // bound on one Acquire

	Drops    Counter
	Overruns Counter
}

// Capturer is the stage worker that moves device periods into a queue.
type Capturer struct {
	device Device
	out    *queue.Queue[int16]
	cfg    Config
	actual Params
	logger *zap.Logger
}

// NewCapturer creates the worker. Every period must fill exactly one buffer
// of out, so cfg.Params.PeriodFrames should equal out.ElementSize().
func NewCapturer(device Device, out *queue.Queue[int16], cfg Config, logger *zap.Logger) *Capturer {
	if cfg.Drops == nil {
		cfg.Drops = nopCounter{}
	}
	if cfg.Overruns == nil {
		cfg.Overruns = nopCounter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capturer{
		device: device,
		out:    out,
		cfg:    cfg,
		logger: logger,
	}
}

// Params returns what the device agreed to deliver. It is zero before Init.
func (c *Capturer) Params() Params {
	return c.actual
}

// Init opens the device.
func (c *Capturer) Init(ctx context.Context) error {
	want := c.cfg.Params
	got, err := c.device.Open(ctx, want)
	if err != nil {
		return err
	}
	if got.PeriodFrames != c.out.ElementSize() {
		_ = c.device.Close()
		return fmt.Errorf("%w: device period %d does not match window %d",
			ErrInvalidParams, got.PeriodFrames, c.out.ElementSize())
	}
	c.actual = got

	if got.SampleRate != want.SampleRate {
		c.logger.Warn(fmt.Sprintf("sampling rate set to %d (requested %d)", got.SampleRate, want.SampleRate))
	}
	c.logger.Info("capture device opened",
		zap.Int("rate", got.SampleRate),
		zap.Int("period_frames", got.PeriodFrames),
		zap.Int("periods", got.Periods),
		zap.Duration("period", got.PeriodDuration()),
	)
	return nil
}

// Step acquires one period and publishes it. Timeouts and overruns are not
// errors; a period with no free buffer to land in is dropped.
func (c *Capturer) Step() error {
	frame, err := c.device.Acquire(time.Now().Add(c.cfg.Timeout))
	switch {
	case errors.Is(err, ErrTimeout):
		return nil
	case errors.Is(err, ErrOverrun):
		c.cfg.Overruns.Inc()
		c.logger.Warn("capture overrun")
		return nil
	case err != nil:
		return fmt.Errorf("capture: acquire: %w", err)
	}

	b := c.out.Allocate()
	if b == nil {
		c.cfg.Drops.Inc()
		return nil
	}
	copy(b.Data(), frame)
	c.out.Push(b)
	return nil
}

// Close closes the device.
func (c *Capturer) Close() error {
	return c.device.Close()
}
