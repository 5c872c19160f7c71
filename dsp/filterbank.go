package dsp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// Default audible range split by the filter bank, in Hz.
const (
	DefaultLowFrequency  = 20.0
	DefaultHighFrequency = 20000.0
)

// SignAlternate multiplies x element-wise by +1, -1, +1, ... and returns the
// result in a new slice. Applying it twice yields x again.
func SignAlternate(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		if i%2 == 1 {
			v = -v
		}
		out[i] = v
	}

	return out
}

// BandEdges returns nBands+1 normalized frequencies (cycles per sample),
// geometrically spaced from lowHz to highHz.
func BandEdges(nBands int, lowHz, highHz, sampleRate float64) []float64 {
	wLow := lowHz / sampleRate
	wHigh := highHz / sampleRate

	edges := make([]float64, nBands+1)
	for i := range edges {
		edges[i] = wLow * math.Pow(wHigh/wLow, float64(i)/float64(nBands))
	}

	return edges
}

// WidthFactor returns the relative crossover width for which the transition
// regions of adjacent geometric bands meet exactly.
func WidthFactor(wLow, wHigh float64, nBands int) float64 {
	x := math.Pow(wHigh/wLow, 1/float64(nBands))
	return (x - 1) / (x + 1)
}

// LowerGain is the rising raised-cosine skirt of a band around its lower edge.
// df is the distance from the edge, cw the crossover half-width.
func LowerGain(df, cw float64) float64 {
	switch {
	case df < -cw:
		return 0
	case df >= cw:
		return 1
	}

	s := math.Sin(math.Pi * ((df/cw + 1) / 2) / 2)

	return s * s
}

// UpperGain is the falling skirt of a band around its upper edge.
func UpperGain(df, cw float64) float64 {
	switch {
	case df < -cw:
		return 1
	case df >= cw:
		return 0
	}

	c := math.Cos(math.Pi * ((df/cw + 1) / 2) / 2)

	return c * c
}

// TransferFunction evaluates the band-pass gain for band [wLow, wHigh] at the
// given normalized frequencies.
func TransferFunction(freqs []float64, wLow, wHigh, widthFactor float64) []float64 {
	g := make([]float64, len(freqs))
	for i, f := range freqs {
		g[i] = LowerGain(f-wLow, wLow*widthFactor) * UpperGain(f-wHigh, wHigh*widthFactor)
	}

	return g
}

// FilterBankOption configures a FilterBank.
type FilterBankOption func(*FilterBank)

// WithFrequencyRange overrides the outer band edges in Hz.
func WithFrequencyRange(lowHz, highHz float64) FilterBankOption {
	return func(fb *FilterBank) {
		fb.lowHz = lowHz
		fb.highHz = highHz
	}
}

// FilterBank splits the spectrum into geometric bands with crossover skirts
// whose gains sum to one, and recombines independently shaped band signals.
type FilterBank struct {
	nBands      int
	sampleRate  float64
	lowHz       float64
	highHz      float64
	edges       []float64
	widthFactor float64
}

// NewFilterBank creates a filter bank of nBands bands for signals sampled at
// sampleRate.
func NewFilterBank(nBands int, sampleRate float64, opts ...FilterBankOption) (*FilterBank, error) {
	fb := &FilterBank{
		nBands:     nBands,
		sampleRate: sampleRate,
		lowHz:      DefaultLowFrequency,
		highHz:     DefaultHighFrequency,
	}

	for _, opt := range opts {
		opt(fb)
	}

	if nBands <= 0 {
		return nil, fmt.Errorf("%w: band count must be positive, got %d", ErrInvalidParameter, nBands)
	}

	if sampleRate <= 0 || fb.lowHz <= 0 || fb.highHz <= fb.lowHz {
		return nil, fmt.Errorf("%w: sampleRate=%v range=[%v, %v] Hz", ErrInvalidParameter, sampleRate, fb.lowHz, fb.highHz)
	}

	fb.edges = BandEdges(nBands, fb.lowHz, fb.highHz, sampleRate)
	fb.widthFactor = WidthFactor(fb.edges[0], fb.edges[nBands], nBands)

	return fb, nil
}

// Bands returns the number of bands.
func (fb *FilterBank) Bands() int { return fb.nBands }

// Edges returns a copy of the normalized band edges.
func (fb *FilterBank) Edges() []float64 {
	return append([]float64(nil), fb.edges...)
}

// EdgesHz returns the band edges in Hz.
func (fb *FilterBank) EdgesHz() []float64 {
	hz := fb.Edges()
	floats.Scale(fb.sampleRate, hz)

	return hz
}

// WidthFactor returns the relative crossover width shared by all bands.
func (fb *FilterBank) WidthFactor() float64 { return fb.widthFactor }

// Transfer evaluates the transfer function of one band.
func (fb *FilterBank) Transfer(band int, freqs []float64) []float64 {
	return TransferFunction(freqs, fb.edges[band], fb.edges[band+1], fb.widthFactor)
}

// Reconstruct transforms every band signal to the frequency domain, applies
// the band's transfer function, transforms back and sums the bands. All band
// signals must have the same length; the result has that length.
func (fb *FilterBank) Reconstruct(bands [][]float64) ([]float64, error) {
	if len(bands) != fb.nBands {
		return nil, fmt.Errorf("%w: got %d band signals for %d bands", ErrInvalidParameter, len(bands), fb.nBands)
	}

	n := len(bands[0])
	if n == 0 {
		return nil, fmt.Errorf("%w: band signals are empty", ErrInvalidParameter)
	}

	fft := fourier.NewFFT(n)

	freqs := make([]float64, n/2+1)
	for i := range freqs {
		freqs[i] = fft.Freq(i)
	}

	sum := make([]float64, n)
	coeff := make([]complex128, n/2+1)
	seq := make([]float64, n)

	for b, signal := range bands {
		if len(signal) != n {
			return nil, fmt.Errorf("%w: band %d has %d samples, expected %d", ErrInvalidParameter, b, len(signal), n)
		}

		coeff = fft.Coefficients(coeff, signal)

		for i, g := range fb.Transfer(b, freqs) {
			coeff[i] *= complex(g, 0)
		}

		seq = fft.Sequence(seq, coeff)
		floats.Add(sum, seq)
	}

	// gonum's inverse transform is unnormalized.
	floats.Scale(1/float64(n), sum)

	return sum, nil
}
