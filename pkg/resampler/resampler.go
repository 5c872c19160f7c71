// Package resampler converts signals between sample rates with windowed sinc
// interpolation.
//
// Band signals synthesized from a histogram run at the histogram's bin rate;
// the resampler brings them to the fixed output rate. The auralizer uses it
// to match a dry recording to the impulse response.
package resampler

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidRate is returned for non-positive or non-finite sample rates.
var ErrInvalidRate = errors.New("resampler: invalid sample rate")

// Quality bounds in sinc lobes per side.
const (
	DefaultLobes = 16
	MinLobes     = 4
	MaxLobes     = 64
)

// Resampler performs sample rate conversion using windowed sinc interpolation.
type Resampler struct {
	// Quality parameter: number of sinc lobes on each side
	sincLobes int
}

// New creates a new Resampler instance with default quality.
func New() *Resampler {
	return &Resampler{sincLobes: DefaultLobes}
}

// NewWithQuality creates a Resampler with the given number of lobes, clamped
// to [MinLobes, MaxLobes]. More lobes = higher quality but slower.
func NewWithQuality(lobes int) *Resampler {
	return &Resampler{sincLobes: min(max(lobes, MinLobes), MaxLobes)}
}

// Lobes returns the configured sinc lobes per side.
func (r *Resampler) Lobes() int { return r.sincLobes }

// sinc computes sin(pi*x)/(pi*x) with proper handling at x=0.
func sinc(x float64) float64 {
	if math.Abs(x) < 1e-10 {
		return 1.0
	}
	pix := math.Pi * x
	return math.Sin(pix) / pix
}

// blackman evaluates the Blackman window at x in [-1, 1] and returns 0
// outside that range.
func blackman(x float64) float64 {
	if x < -1.0 || x > 1.0 {
		return 0.0
	}
	t := (x + 1.0) / 2.0
	return 0.42 - 0.5*math.Cos(2*math.Pi*t) + 0.08*math.Cos(4*math.Pi*t)
}

func checkRates(srcRate, dstRate float64) error {
	for _, rate := range []float64{srcRate, dstRate} {
		if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
			return fmt.Errorf("%w: %v", ErrInvalidRate, rate)
		}
	}

	return nil
}

// Resample converts x from srcRate to dstRate. The output has
// OutputLength(len(x), srcRate, dstRate) samples. Matching rates return a copy.
func (r *Resampler) Resample(x []float64, srcRate, dstRate float64) ([]float64, error) {
	if err := checkRates(srcRate, dstRate); err != nil {
		return nil, err
	}

	if srcRate == dstRate {
		return append([]float64{}, x...), nil
	}

	ratio := dstRate / srcRate
	out := make([]float64, OutputLength(len(x), srcRate, dstRate))

	// Downsampling widens the kernel so it also acts as the anti-aliasing
	// lowpass at the new Nyquist frequency.
	cutoff := min(ratio, 1.0)
	radius := float64(r.sincLobes) / cutoff

	for i := range out {
		pos := float64(i) / ratio

		lo := max(int(math.Floor(pos-radius)), 0)
		hi := min(int(math.Ceil(pos+radius)), len(x)-1)

		var sum, weightSum float64
		for j := lo; j <= hi; j++ {
			d := pos - float64(j)
			w := sinc(d*cutoff) * blackman(d/radius)

			sum += x[j] * w
			weightSum += w
		}

		if weightSum > 0 {
			out[i] = sum / weightSum
		}
	}

	return out, nil
}

// ResampleChannels resamples every channel of a [channel][sample] signal.
func (r *Resampler) ResampleChannels(channels [][]float64, srcRate, dstRate float64) ([][]float64, error) {
	out := make([][]float64, len(channels))

	for ch := range channels {
		resampled, err := r.Resample(channels[ch], srcRate, dstRate)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", ch, err)
		}
		out[ch] = resampled
	}

	return out, nil
}

// OutputLength returns the number of samples Resample produces.
func OutputLength(inputLen int, srcRate, dstRate float64) int {
	if inputLen == 0 {
		return 0
	}
	return int(math.Round(float64(inputLen) * dstRate / srcRate))
}
