package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"time"
)

// FileDevice replays a raw PCM file (signed 16-bit little-endian mono) at
// the negotiated rate, starting over at the end of the file.
type FileDevice struct {
	path string

	samples []int16
	pos     int
	pacer   *pacer
	frame   []int16
	closed  bool
}

// NewFileDevice creates a device reading path.
func NewFileDevice(path string) *FileDevice {
	return &FileDevice{path: path}
}

// Open implements Device. The whole file is loaded here.
func (d *FileDevice) Open(ctx context.Context, want Params) (Params, error) {
	if err := ctx.Err(); err != nil {
		return Params{}, err
	}
	if err := want.validate(); err != nil {
		return Params{}, err
	}

	raw, err := os.ReadFile(d.path)
	if err != nil {
		return Params{}, fmt.Errorf("capture: open %s: %w", d.path, err)
	}
	if len(raw) < 2 {
		return Params{}, fmt.Errorf("%w: %s holds no samples", ErrInvalidParams, d.path)
	}

	d.samples = make([]int16, len(raw)/2)
	for i := range d.samples {
		d.samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	d.pos = 0
	d.frame = make([]int16, want.PeriodFrames)
	d.pacer = newPacer(want)
	d.closed = false
	return want, nil
}

// Acquire implements Device.
func (d *FileDevice) Acquire(deadline time.Time) ([]int16, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if d.pacer == nil {
		return nil, ErrNotOpen
	}
	if err := d.pacer.wait(deadline); err != nil {
		return nil, err
	}

	for n := 0; n < len(d.frame); {
		c := copy(d.frame[n:], d.samples[d.pos:])
		n += c
		d.pos = (d.pos + c) % len(d.samples)
	}
	return d.frame, nil
}

// Close implements Device.
func (d *FileDevice) Close() error {
	if d.pacer != nil {
		d.pacer.stop()
	}
	d.samples = nil
	d.closed = true
	return nil
}
