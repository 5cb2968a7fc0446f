package spectrum

import (
	"context"
	"testing"
	"time"

	"github.com/GriffinCanCode/spectra/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/floats"
)

type counter struct{ n int }

func (c *counter) Inc() { c.n++ }

func newQueues(t *testing.T, n, depth int) (*queue.Queue[int16], *queue.Queue[float64]) {
	t.Helper()
	in, err := queue.New[int16]("samples", n, depth, 5*time.Millisecond)
	require.NoError(t, err)
	out, err := queue.New[float64]("spectra", Bins(n), depth, 5*time.Millisecond)
	require.NoError(t, err)
	return in, out
}

func push(t *testing.T, q *queue.Queue[int16], frame []int16) {
	t.Helper()
	b := q.Allocate()
	require.NotNil(t, b)
	copy(b.Data(), frame)
	q.Push(b)
}

func TestAnalyzerTransformsFrames(t *testing.T) {
	in, out := newQueues(t, 256, 2)
	drops := &counter{}
	a := NewAnalyzer(in, out, WindowHann, drops, zap.NewNop())
	require.NoError(t, a.Init(context.Background()))

	push(t, in, tone(256, 10, 0.5))
	require.NoError(t, a.Step())

	spectrum := out.TryPop()
	require.NotNil(t, spectrum)
	assert.Equal(t, 10, floats.MaxIdx(spectrum.Data()))
	out.Release(spectrum)

	assert.Equal(t, 2, in.Occupancy().Free, "input returned to its pool")
	assert.Zero(t, drops.n)
	require.NoError(t, a.Close())
}

func TestAnalyzerIdlesWithoutInput(t *testing.T) {
	in, out := newQueues(t, 64, 2)
	a := NewAnalyzer(in, out, WindowHann, nil, nil)
	require.NoError(t, a.Init(context.Background()))

	start := time.Now()
	require.NoError(t, a.Step())
	assert.GreaterOrEqual(t, time.Since(start), in.Timeout())
	assert.Zero(t, out.Occupancy().Awaiting)
}

func TestAnalyzerDropsWhenOutputExhausted(t *testing.T) {
	in, out := newQueues(t, 64, 2)
	drops := &counter{}
	a := NewAnalyzer(in, out, WindowRectangular, drops, nil)
	require.NoError(t, a.Init(context.Background()))

	for i := 0; i < 3; i++ {
		push(t, in, tone(64, 4, 0.25))
		require.NoError(t, a.Step())
	}

	assert.Equal(t, 1, drops.n)
	assert.Equal(t, 2, out.Occupancy().Awaiting)
	o := in.Occupancy()
	assert.Equal(t, 2, o.Free, "dropped input goes back to the pool")
	assert.Equal(t, o.Capacity, o.Free+o.Awaiting+o.CheckedOut)
}

func TestAnalyzerInit(t *testing.T) {
	t.Run("warns on non power of two", func(t *testing.T) {
		in, out := newQueues(t, 1000, 2)
		core, logs := observer.New(zapcore.WarnLevel)
		a := NewAnalyzer(in, out, WindowHann, nil, zap.New(core))
		require.NoError(t, a.Init(context.Background()))
		assert.Equal(t, 1, logs.Len())
	})

	t.Run("rejects mismatched output", func(t *testing.T) {
		in, err := queue.New[int16]("samples", 64, 2, time.Millisecond)
		require.NoError(t, err)
		out, err := queue.New[float64]("spectra", 64, 2, time.Millisecond)
		require.NoError(t, err)
		a := NewAnalyzer(in, out, WindowHann, nil, nil)
		assert.ErrorIs(t, a.Init(context.Background()), ErrInvalidWindow)
	})

	t.Run("rejects unknown window", func(t *testing.T) {
		in, out := newQueues(t, 64, 2)
		a := NewAnalyzer(in, out, "kaiser", nil, nil)
		assert.ErrorIs(t, a.Init(context.Background()), ErrInvalidWindow)
	})
}
