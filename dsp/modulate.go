package dsp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// indexEpsilon absorbs floating point drift when converting a time position
// to a sample or bin index (1/44100*44100 must map to 1, not 0).
const indexEpsilon = 1e-9

func floorIndex(x float64) int {
	return int(math.Floor(x + indexEpsilon))
}

// CorrectionFactors returns sqrt(hist[k] / E[k]) for every histogram bin k,
// where E[k] is the energy of the noise samples inside that bin. Undefined
// ratios (zero noise energy) become 0.
func CorrectionFactors(noise []float64, noiseRate float64, hist []float64, binDuration float64) ([]float64, error) {
	if noiseRate <= 0 || binDuration <= 0 {
		return nil, fmt.Errorf("%w: noiseRate=%v binDuration=%v", ErrInvalidParameter, noiseRate, binDuration)
	}

	width := floorIndex(binDuration * noiseRate)
	factors := make([]float64, len(hist))

	for k, target := range hist {
		start := floorIndex(float64(k) * binDuration * noiseRate)
		end := min(start+width, len(noise))

		energy := 0.0
		if start < end {
			window := noise[start:end]
			energy = floats.Dot(window, window)
		}

		ratio := target / energy
		if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
			ratio = 0
		}

		factors[k] = math.Sqrt(ratio)
	}

	return factors, nil
}

// ModulateEnergy scales a noise sequence so that the energy inside every
// histogram bin matches the histogram value of that bin. Samples past the last
// bin are zero. Bins with zero target energy come out exactly zero.
func ModulateEnergy(noise []float64, noiseRate float64, hist []float64, binDuration float64) ([]float64, error) {
	factors, err := CorrectionFactors(noise, noiseRate, hist, binDuration)
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(noise))
	for i, v := range noise {
		k := floorIndex((float64(i) / noiseRate) / binDuration)
		if k < len(factors) {
			out[i] = v * factors[k]
		}
	}

	return out, nil
}
