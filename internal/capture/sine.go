package capture

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// SineDevice synthesizes a sum of tones in real time.
type SineDevice struct {
	frequencies []float64
	amplitude   float64
	noise       float64
	seed        uint64

	params Params
	pacer  *pacer
	frame  []int16
	steps  []float64
	phases []float64
	rng    *rand.Rand
	closed bool
}

// SineOption configures a SineDevice.
type SineOption func(*SineDevice)

// WithAmplitude sets the combined peak level as a fraction of full scale.
func WithAmplitude(a float64) SineOption {
	return func(d *SineDevice) {
		d.amplitude = a
	}
}

// WithNoise adds Gaussian noise with the given standard deviation, as a
// fraction of full scale. The sequence is reproducible for a given seed.
func WithNoise(stddev float64, seed uint64) SineOption {
	return func(d *SineDevice) {
		d.noise = stddev
		d.seed = seed
	}
}

// NewSineDevice creates a device producing the given tones in hertz.
func NewSineDevice(frequencies []float64, opts ...SineOption) *SineDevice {
	d := &SineDevice{
		frequencies: append([]float64(nil), frequencies...),
		amplitude:   0.5,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open implements Device. Every rate is accepted; tones at or above the
// Nyquist frequency are rejected.
func (d *SineDevice) Open(ctx context.Context, want Params) (Params, error) {
	if err := ctx.Err(); err != nil {
		return Params{}, err
	}
	if err := want.validate(); err != nil {
		return Params{}, err
	}
	if len(d.frequencies) == 0 {
		return Params{}, fmt.Errorf("%w: no tones", ErrInvalidParams)
	}

	nyquist := float64(want.SampleRate) / 2
	d.steps = make([]float64, len(d.frequencies))
	d.phases = make([]float64, len(d.frequencies))
	for i, f := range d.frequencies {
		if f <= 0 || f >= nyquist {
			return Params{}, fmt.Errorf("%w: tone %g Hz outside (0, %g)", ErrInvalidParams, f, nyquist)
		}
		d.steps[i] = 2 * math.Pi * f / float64(want.SampleRate)
	}

	d.params = want
	d.frame = make([]int16, want.PeriodFrames)
	d.rng = rand.New(rand.NewPCG(d.seed, d.seed^0x9e3779b97f4a7c15))
	d.pacer = newPacer(want)
	d.closed = false
	return want, nil
}

// Acquire implements Device.
func (d *SineDevice) Acquire(deadline time.Time) ([]int16, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if d.pacer == nil {
		return nil, ErrNotOpen
	}
	if err := d.pacer.wait(deadline); err != nil {
		return nil, err
	}

	gain := d.amplitude / float64(len(d.frequencies))
	for i := range d.frame {
		var v float64
		for k := range d.phases {
			v += math.Sin(d.phases[k])
			d.phases[k] += d.steps[k]
			if d.phases[k] >= 2*math.Pi {
				d.phases[k] -= 2 * math.Pi
			}
		}
		v *= gain
		if d.noise > 0 {
			v += d.rng.NormFloat64() * d.noise
		}
		d.frame[i] = toInt16(v)
	}
	return d.frame, nil
}

// Close implements Device.
func (d *SineDevice) Close() error {
	if d.pacer != nil {
		d.pacer.stop()
	}
	d.closed = true
	return nil
}

func toInt16(v float64) int16 {
	v = math.Round(v * math.MaxInt16)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}
