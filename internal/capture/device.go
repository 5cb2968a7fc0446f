// Package capture produces fixed-size frames of signed 16-bit mono samples
// from a capture device and hands them to the pipeline.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrTimeout means no period became available before the deadline.
	ErrTimeout = errors.New("capture: acquire timed out")
	// ErrOverrun means the caller fell behind and samples were lost. It is
	// transient; the next Acquire resumes with fresh data.
	ErrOverrun = errors.New("capture: overrun")

	ErrClosed        = errors.New("capture: device closed")
	ErrNotOpen       = errors.New("capture: device not open")
	ErrInvalidParams = errors.New("capture: invalid parameters")
	ErrUnknownSource = errors.New("capture: unknown source")
)

// Params describes the stream a device delivers.
type Params struct {
	SampleRate   int // frames per second
	PeriodFrames int // frames returned by one Acquire
	Periods      int // periods the device buffers before overrunning
}

// PeriodDuration is the wall time covered by one period.
func (p Params) PeriodDuration() time.Duration {
	return time.Duration(float64(time.Second) * float64(p.PeriodFrames) / float64(p.SampleRate))
}

func (p Params) validate() error {
	if p.SampleRate <= 0 || p.PeriodFrames <= 0 || p.Periods <= 0 {
		return fmt.Errorf("%w: rate %d, period %d, periods %d", ErrInvalidParams, p.SampleRate, p.PeriodFrames, p.Periods)
	}
	return nil
}

// Device is a source of periodic sample frames.
type Device interface {
	// Open negotiates params with the device and returns what it will
	// actually deliver.
	Open(ctx context.Context, want Params) (Params, error)
	// Acquire waits until the next period is ready or the deadline passes.
	// The returned slice belongs to the device and is valid until the next
	// call. Errors other than ErrTimeout and ErrOverrun are fatal.
	Acquire(deadline time.Time) ([]int16, error)
	Close() error
}

// pacer releases one period per period duration, with up to Periods periods
// of slack, the way a hardware ring buffer fills.
type pacer struct {
	limiter *rate.Limiter
	period  time.Duration
	periods int
	last    time.Time
	timer   *time.Timer
}

func newPacer(p Params) *pacer {
	period := p.PeriodDuration()
	pc := &pacer{
		limiter: rate.NewLimiter(rate.Every(period), p.Periods),
		period:  period,
		periods: p.Periods,
		timer:   time.NewTimer(time.Hour),
	}
	pc.timer.Stop()
	return pc
}

// wait blocks until a period is due. It returns ErrOverrun when the caller
// left more than the buffered periods unread, after discarding them.
func (p *pacer) wait(deadline time.Time) error {
	now := time.Now()
	if p.last.IsZero() {
		// The stream starts on the first read with an empty buffer.
		p.limiter.AllowN(now, p.periods)
		p.last = now
	}
	if now.Sub(p.last) > time.Duration(p.periods+1)*p.period {
		p.limiter.AllowN(now, p.periods)
		p.last = now
		return ErrOverrun
	}

	r := p.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if now.Add(delay).After(deadline) {
		r.CancelAt(now)
		p.sleep(time.Until(deadline))
		return ErrTimeout
	}
	p.sleep(delay)
	p.last = time.Now()
	return nil
}

func (p *pacer) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	p.timer.Reset(d)
	<-p.timer.C
}

func (p *pacer) stop() {
	p.timer.Stop()
}
