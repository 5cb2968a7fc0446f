// Package spectrum turns frames of samples into magnitude spectra.
package spectrum

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// Window functions applied before the transform.
const (
	WindowHann        = "hann"
	WindowRectangular = "rectangular"
)

var ErrInvalidWindow = errors.New("spectrum: invalid window")

// Bins returns the number of magnitudes produced for n samples.
func Bins(n int) int {
	return n/2 + 1
}

// Resolution returns the width in hertz of one bin.
func Resolution(sampleRate, n int) float64 {
	return float64(sampleRate) / float64(n)
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && bits.OnesCount(uint(n)) == 1
}

// Transformer computes single-sided amplitude spectra of a fixed length. All
// scratch space is allocated by NewTransformer. A Transformer is not safe for
// concurrent use.
type Transformer struct {
	n      int
	fft    *fourier.FFT
	coeffs []float64 // window coefficients
	seq    []float64
	out    []complex128
	scale  float64
}

// NewTransformer plans a transform over n samples using the named window.
func NewTransformer(n int, windowName string) (*Transformer, error) {
	if n < 2 {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidWindow, n)
	}

	coeffs := make([]float64, n)
	for i := range coeffs {
		coeffs[i] = 1
	}
	switch windowName {
	case WindowHann:
		window.Hann(coeffs)
	case WindowRectangular, "":
	default:
		return nil, fmt.Errorf("%w: unknown function %q", ErrInvalidWindow, windowName)
	}

	var sum float64
	for _, c := range coeffs {
		sum += c
	}

	return &Transformer{
		n:      n,
		fft:    fourier.NewFFT(n),
		coeffs: coeffs,
		seq:    make([]float64, n),
		out:    make([]complex128, Bins(n)),
		// Amplitude scaling corrected for the window's coherent gain, so a
		// full-scale tone centred on a bin reads 1.
		scale: 2 / sum,
	}, nil
}

// Size returns the number of input samples.
func (t *Transformer) Size() int {
	return t.n
}

// Bins returns the number of output magnitudes.
func (t *Transformer) Bins() int {
	return len(t.out)
}

// Transform writes the amplitude of every bin of src into dst, in fractions
// of full scale. len(src) must be Size() and len(dst) must be Bins().
func (t *Transformer) Transform(dst []float64, src []int16) {
	if len(src) != t.n || len(dst) != len(t.out) {
		panic(fmt.Sprintf("spectrum: transform of %d samples into %d bins, want %d into %d",
			len(src), len(dst), t.n, len(t.out)))
	}

	for i, s := range src {
		t.seq[i] = float64(s) / -math.MinInt16 * t.coeffs[i]
	}
	t.fft.Coefficients(t.out, t.seq)

	for k, c := range t.out {
		dst[k] = cmplx.Abs(c) * t.scale
	}
	// DC and, for even lengths, Nyquist have no mirrored negative bin.
	dst[0] /= 2
	if t.n%2 == 0 {
		dst[len(dst)-1] /= 2
	}
}
