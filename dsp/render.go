package dsp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// OutputSampleRate is the fixed rate of every rendered waveform.
const OutputSampleRate = 44100

// ErrDegenerateSignal is returned when a signal carries no energy at all, so
// it can neither be truncated nor normalized.
var ErrDegenerateSignal = errors.New("dsp: signal is entirely silent")

// silenceThreshold is the magnitude below which a value rounds to zero at
// eight decimal places.
const silenceThreshold = 0.5e-8

// Waveform is a mono 16-bit PCM signal ready to be persisted.
type Waveform struct {
	SampleRate int
	Samples    []int16
}

// Duration returns the length of the waveform in seconds.
func (w *Waveform) Duration() float64 {
	if w.SampleRate <= 0 {
		return 0
	}

	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// Peak returns the largest absolute sample value.
func (w *Waveform) Peak() int {
	peak := 0
	for _, s := range w.Samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		peak = max(peak, v)
	}

	return peak
}

// LastNonZero returns the highest sample index, over all bands, whose value is
// non-zero at eight decimal places, or -1 if every band is silent.
func LastNonZero(bands [][]float64) int {
	last := -1
	for _, band := range bands {
		for i := len(band) - 1; i > last; i-- {
			if math.Abs(band[i]) > silenceThreshold {
				last = i
				break
			}
		}
	}

	return last
}

// TruncationLength returns the number of samples to keep: everything up to
// the last audible band sample, rounded up to whole seconds at sampleRate.
func TruncationLength(bands [][]float64, sampleRate int) (int, error) {
	if sampleRate <= 0 {
		return 0, fmt.Errorf("%w: sample rate %d", ErrInvalidParameter, sampleRate)
	}

	last := LastNonZero(bands)
	if last < 0 {
		return 0, fmt.Errorf("%w: no band holds a non-zero sample", ErrDegenerateSignal)
	}

	seconds := (last + sampleRate) / sampleRate // ceil((last+1)/sampleRate)

	return seconds * sampleRate, nil
}

// Normalize divides x by its peak magnitude so the result peaks at exactly
// 1.0 (or -1.0).
func Normalize(x []float64) ([]float64, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("%w: empty signal", ErrDegenerateSignal)
	}

	peak := math.Max(floats.Max(x), -floats.Min(x))
	if peak == 0 || math.IsNaN(peak) {
		return nil, ErrDegenerateSignal
	}

	out := append([]float64(nil), x...)
	floats.Scale(1/peak, out)

	return out, nil
}

// Quantize scales a normalized signal to the int16 range, truncating toward
// zero.
func Quantize(x []float64) []int16 {
	out := make([]int16, len(x))
	for i, v := range x {
		out[i] = int16(math.MaxInt16 * v)
	}

	return out
}

// Render truncates summed to the audible length of bands, normalizes it and
// quantizes it to 16-bit PCM at sampleRate.
func Render(summed []float64, bands [][]float64, sampleRate int) (*Waveform, error) {
	n, err := TruncationLength(bands, sampleRate)
	if err != nil {
		return nil, err
	}

	n = min(n, len(summed))

	normalized, err := Normalize(summed[:n])
	if err != nil {
		return nil, err
	}

	return &Waveform{SampleRate: sampleRate, Samples: Quantize(normalized)}, nil
}
