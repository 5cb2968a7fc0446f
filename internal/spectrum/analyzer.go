package spectrum

import (
	"context"
	"fmt"

	"github.com/GriffinCanCode/spectra/internal/queue"
	"go.uber.org/zap"
)

// Counter is incremented once per event.
type Counter interface {
	Inc()
}

type nopCounter struct{}

func (nopCounter) Inc() {}

// Analyzer is the stage worker that transforms sample frames from one queue
// into spectra on another.
type Analyzer struct {
	in     *queue.Queue[int16]
	out    *queue.Queue[float64]
	window string
	drops  Counter
	logger *zap.Logger

	t *Transformer
}

// NewAnalyzer creates the worker. out must hold Bins(in.ElementSize())
// magnitudes per buffer.
func NewAnalyzer(in *queue.Queue[int16], out *queue.Queue[float64], windowName string, drops Counter, logger *zap.Logger) *Analyzer {
	if drops == nil {
		drops = nopCounter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		in:     in,
		out:    out,
		window: windowName,
		drops:  drops,
		logger: logger,
	}
}

// Init plans the transform.
func (a *Analyzer) Init(context.Context) error {
	n := a.in.ElementSize()
	if a.out.ElementSize() != Bins(n) {
		return fmt.Errorf("%w: %d samples give %d bins, output holds %d",
			ErrInvalidWindow, n, Bins(n), a.out.ElementSize())
	}
	if !IsPowerOfTwo(n) {
		a.logger.Warn("window length is not a power of two, the transform will be slower", zap.Int("window", n))
	}

	t, err := NewTransformer(n, a.window)
	if err != nil {
		return err
	}
	a.t = t
	a.logger.Debug("transform planned", zap.Int("window", n), zap.Int("bins", t.Bins()), zap.String("function", a.window))
	return nil
}

// Step transforms one frame. With no free output buffer the frame is
// returned to its pool unprocessed.
func (a *Analyzer) Step() error {
	src := a.in.Pop()
	if src == nil {
		return nil
	}

	dst := a.out.Allocate()
	if dst == nil {
		a.in.Release(src)
		a.drops.Inc()
		return nil
	}

	a.t.Transform(dst.Data(), src.Data())
	a.out.Push(dst)
	a.in.Release(src)
	return nil
}

// Close drops the transform plan.
func (a *Analyzer) Close() error {
	a.t = nil
	return nil
}
