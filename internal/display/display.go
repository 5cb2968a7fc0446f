// Package display is the consumer end of the pipeline. It keeps the most
// recent spectrum for readers and tells subscribers when it changes.
package display

import (
	"context"
	"sync"
	"time"

	"github.com/GriffinCanCode/spectra/internal/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// DefaultRefresh is the display cadence.
const DefaultRefresh = 10 * time.Millisecond

// Frame is one published spectrum.
type Frame struct {
	Seq           uint64    `json:"seq"`
	At            time.Time `json:"at"`
	Resolution    float64   `json:"resolution_hz"`
	PeakHz        float64   `json:"peak_hz"`
	PeakMagnitude float64   `json:"peak_magnitude"`
	Magnitudes    []float64 `json:"magnitudes"`
}

// Display is the stage worker that drains the spectrum queue on a fixed
// refresh tick.
type Display struct {
	in         *queue.Queue[float64]
	resolution float64
	refresh    time.Duration
	logger     *zap.Logger

	ticker *time.Ticker

	mu     sync.RWMutex
	latest []float64
	seq    uint64
	at     time.Time
	peak   int

	subsMu sync.Mutex
	subs   map[uuid.UUID]chan struct{}
	closed bool
}

// New creates the worker. resolution is the width of one bin in hertz.
func New(in *queue.Queue[float64], resolution float64, refresh time.Duration, logger *zap.Logger) *Display {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Display{
		in:         in,
		resolution: resolution,
		refresh:    refresh,
		logger:     logger,
		subs:       make(map[uuid.UUID]chan struct{}),
	}
}

// Init allocates the snapshot and starts the refresh ticker.
func (d *Display) Init(context.Context) error {
	d.mu.Lock()
	d.latest = make([]float64, d.in.ElementSize())
	d.mu.Unlock()
	d.ticker = time.NewTicker(d.refresh)
	return nil
}

// Step waits for the next refresh tick and takes at most one spectrum
// without blocking.
func (d *Display) Step() error {
	<-d.ticker.C

	b := d.in.TryPop()
	if b == nil {
		return nil
	}

	d.mu.Lock()
	copy(d.latest, b.Data())
	d.seq++
	d.at = time.Now()
	d.peak = floats.MaxIdx(d.latest)
	d.mu.Unlock()

	d.in.Release(b)
	d.notify()
	return nil
}

// Close stops the ticker and closes every subscription.
func (d *Display) Close() error {
	if d.ticker != nil {
		d.ticker.Stop()
	}

	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	for id, ch := range d.subs {
		close(ch)
		delete(d.subs, id)
	}
	d.closed = true
	return nil
}

// Resolution returns the bin width in hertz.
func (d *Display) Resolution() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.resolution
}

// SetResolution replaces the bin width once the sample rate is known.
func (d *Display) SetResolution(hz float64) {
	d.mu.Lock()
	d.resolution = hz
	d.mu.Unlock()
}

// Latest returns a copy of the most recent spectrum. It reports false until
// the first spectrum arrives.
func (d *Display) Latest() (Frame, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.seq == 0 {
		return Frame{}, false
	}
	return Frame{
		Seq:           d.seq,
		At:            d.at,
		Resolution:    d.resolution,
		PeakHz:        float64(d.peak) * d.resolution,
		PeakMagnitude: d.latest[d.peak],
		Magnitudes:    append([]float64(nil), d.latest...),
	}, true
}

// Subscribe returns a channel that receives a value whenever a new spectrum
// is available, and a function that ends the subscription. Notifications
// are coalesced: a slow reader sees one pending signal, not a backlog. The
// channel is closed when the display stops.
func (d *Display) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	d.subsMu.Lock()
	defer d.subsMu.Unlock()

	if d.closed {
		close(ch)
		return ch, func() {}
	}
	id := uuid.New()
	d.subs[id] = ch

	return ch, func() {
		d.subsMu.Lock()
		defer d.subsMu.Unlock()
		if c, ok := d.subs[id]; ok {
			close(c)
			delete(d.subs, id)
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (d *Display) Subscribers() int {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	return len(d.subs)
}

func (d *Display) notify() {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
