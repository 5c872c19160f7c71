// Package analysis measures the spectral balance of rendered impulse
// responses: energy per synthesis band and the spectral flatness of the
// smoothed magnitude response.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"math/cmplx"

	"github.com/MeKo-Christian/algo-fft"
	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"rir-synth/dsp"
)

// Flatness is measured over this range with this smoothing kernel length.
const (
	FlatnessLowHz   = 1000.0
	FlatnessHighHz  = 20000.0
	SmoothingLength = 1000
)

// Errors.
var (
	ErrEmptySignal = errors.New("analysis: empty or silent signal")
	ErrEmptyRange  = errors.New("analysis: no spectral bins in range")
)

// Report summarizes one waveform.
type Report struct {
	BandEdgesHz  []float64
	BandEnergies []float64
	// BandLevelsDB is each band's energy relative to the strongest band.
	BandLevelsDB []float64
	Flatness     float64
}

// PCMToFloat scales 16-bit samples so the larger of max and -min maps to 1.
func PCMToFloat(samples []int16) ([]float64, error) {
	x := make([]float64, len(samples))
	for i, s := range samples {
		x[i] = float64(s)
	}

	if len(x) == 0 {
		return nil, ErrEmptySignal
	}

	peak := math.Max(floats.Max(x), -floats.Min(x))
	if peak == 0 {
		return nil, ErrEmptySignal
	}

	floats.Scale(1/peak, x)

	return x, nil
}

// BandEnergies returns the Hann-windowed spectral energy of x between each
// pair of consecutive edges (in Hz). A bin belongs to band b when
// edges[b] <= f < edges[b+1].
func BandEnergies(x []float64, sampleRate float64, edgesHz []float64) ([]float64, error) {
	if len(x) < 2 {
		return nil, ErrEmptySignal
	}

	if len(edgesHz) < 2 || sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d edges at %v Hz", ErrEmptyRange, len(edgesHz), sampleRate)
	}

	n := 1 << bits.Len(uint(len(x)-1))

	plan, err := algofft.NewPlan32(n)
	if err != nil {
		return nil, fmt.Errorf("analysis: FFT plan: %w", err)
	}

	buf := make([]complex64, n)
	for i, w := range window.Hann(len(x)) {
		buf[i] = complex(float32(x[i]*w), 0)
	}

	if err := plan.Forward(buf, buf); err != nil {
		return nil, fmt.Errorf("analysis: forward FFT: %w", err)
	}

	energies := make([]float64, len(edgesHz)-1)
	for k := range n/2 + 1 {
		f := float64(k) * sampleRate / float64(n)

		for b := range energies {
			if f >= edgesHz[b] && f < edgesHz[b+1] {
				re, im := float64(real(buf[k])), float64(imag(buf[k]))
				energies[b] += re*re + im*im
				break
			}
		}
	}

	return energies, nil
}

// MagnitudeResponse returns the frequencies and magnitudes of the real
// spectrum of x restricted to lowHz < f <= highHz.
func MagnitudeResponse(x []float64, sampleRate, lowHz, highHz float64) ([]float64, []float64, error) {
	if len(x) == 0 {
		return nil, nil, ErrEmptySignal
	}

	fft := fourier.NewFFT(len(x))
	spectrum := fft.Coefficients(nil, x)

	var freqs, mags []float64
	for k := range spectrum {
		f := fft.Freq(k) * sampleRate
		if f > lowHz && f <= highHz {
			freqs = append(freqs, f)
			mags = append(mags, cmplx.Abs(spectrum[k]))
		}
	}

	if len(mags) == 0 {
		return nil, nil, fmt.Errorf("%w: (%v, %v] Hz", ErrEmptyRange, lowHz, highHz)
	}

	return freqs, mags, nil
}

// Smooth convolves x with a Hann kernel of the given length and returns the
// centered part, the same length as x.
func Smooth(x []float64, length int) ([]float64, error) {
	full, err := dsp.Convolve(x, window.Hann(length))
	if err != nil {
		return nil, err
	}

	start := (length - 1) / 2

	return full[start : start+len(x)], nil
}

// Flatness returns the ratio of geometric to arithmetic mean of the squared
// values of response: 1 for a perfectly flat response, towards 0 for a peaky
// one.
func Flatness(response []float64) (float64, error) {
	if len(response) == 0 {
		return 0, ErrEmptyRange
	}

	power := make([]float64, len(response))
	for i, v := range response {
		power[i] = v * v
	}

	amean := stat.Mean(power, nil)
	if amean == 0 {
		return 0, ErrEmptySignal
	}

	return stat.GeometricMean(power, nil) / amean, nil
}

// SpectralFlatness measures the flatness of the smoothed magnitude response
// of x between FlatnessLowHz and FlatnessHighHz.
func SpectralFlatness(x []float64, sampleRate float64) (float64, error) {
	_, mags, err := MagnitudeResponse(x, sampleRate, FlatnessLowHz, FlatnessHighHz)
	if err != nil {
		return 0, err
	}

	smoothed, err := Smooth(mags, SmoothingLength)
	if err != nil {
		return 0, err
	}

	return Flatness(smoothed)
}

// Analyze builds a Report for a rendered waveform and the band edges it was
// synthesized with.
func Analyze(w *dsp.Waveform, edgesHz []float64) (*Report, error) {
	x, err := PCMToFloat(w.Samples)
	if err != nil {
		return nil, err
	}

	rate := float64(w.SampleRate)

	energies, err := BandEnergies(x, rate, edgesHz)
	if err != nil {
		return nil, err
	}

	flatness, err := SpectralFlatness(x, rate)
	if err != nil {
		return nil, err
	}

	r := &Report{
		BandEdgesHz:  append([]float64(nil), edgesHz...),
		BandEnergies: energies,
		BandLevelsDB: make([]float64, len(energies)),
		Flatness:     flatness,
	}

	peak := floats.Max(energies)
	for i, e := range energies {
		r.BandLevelsDB[i] = math.Inf(-1)
		if peak > 0 {
			r.BandLevelsDB[i] = 10 * math.Log10(e/peak)
		}
	}

	return r, nil
}
