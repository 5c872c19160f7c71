// Package histogram holds the per-band energy-decay histograms written by the
// acoustic ray tracer, together with the settings record that accompanies them.
//
// A histogram folder contains two files:
//
//	histogram.csv   one row per frequency band, one column per time bin
//	histogram.json  the simulator settings (band count, bin duration, room volume, ...)
//
// The package only parses and normalizes; it never synthesizes audio.
package histogram

import (
	"errors"
	"fmt"
	"math"
)

// DefaultSampleRate is the histogram bin rate assumed when the settings record
// does not carry a bin duration.
const DefaultSampleRate = 44100

// ErrMissingInput is returned when histogram data or settings cannot be
// located or parsed.
var ErrMissingInput = errors.New("histogram: missing or unreadable input")

// Histogram is a [band][bin] matrix of non-negative energy values.
type Histogram [][]float64

// Bands returns the number of frequency bands.
func (h Histogram) Bands() int {
	return len(h)
}

// Bins returns the number of time bins per band.
func (h Histogram) Bins() int {
	if len(h) == 0 {
		return 0
	}

	return len(h[0])
}

// Row returns the energy values of one band.
func (h Histogram) Row(band int) []float64 {
	return h[band]
}

// Validate checks that the matrix is rectangular, non-empty and holds only
// finite, non-negative values.
func (h Histogram) Validate() error {
	if len(h) == 0 {
		return fmt.Errorf("%w: histogram has no bands", ErrMissingInput)
	}

	bins := len(h[0])
	if bins == 0 {
		return fmt.Errorf("%w: histogram has no bins", ErrMissingInput)
	}

	for b, row := range h {
		if len(row) != bins {
			return fmt.Errorf("%w: band %d has %d bins, expected %d", ErrMissingInput, b, len(row), bins)
		}

		for i, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return fmt.Errorf("%w: band %d bin %d has invalid energy %v", ErrMissingInput, b, i, v)
			}
		}
	}

	return nil
}

// Clone returns a deep copy of the matrix.
func (h Histogram) Clone() Histogram {
	out := make(Histogram, len(h))
	for b, row := range h {
		out[b] = append([]float64(nil), row...)
	}

	return out
}

// Normalize returns a copy of h where every band is divided by its own peak so
// that the peak becomes 1.0. Bands without energy are left at zero.
func Normalize(h Histogram) Histogram {
	out := h.Clone()

	for _, row := range out {
		peak := 0.0
		for _, v := range row {
			if v > peak {
				peak = v
			}
		}

		if peak == 0 {
			continue
		}

		for i := range row {
			row[i] /= peak
		}
	}

	return out
}

// Settings mirrors the histogram.json record the ray tracer writes next to
// the CSV matrix.
type Settings struct {
	Samples          int       `json:"HISTOGRAM_SAMPLES"`
	BinSeconds       float64   `json:"HISTOGRAM_SAMPLING_FREQUENCY"` // duration of one bin, despite the name
	Seconds          float64   `json:"HISTOGRAM_SECONDS"`
	RayCount         int64     `json:"RAY_COUNT"`
	MillisElapsed    int64     `json:"MILLISECONDS_ELAPSED"`
	RaysReceived     int64     `json:"RAYS_RECEIVED_BY_SPHERE"`
	ImportanceSample int       `json:"IMPORTANCE_SAMPLING"`
	Volume           float64   `json:"VOLUME"` // room volume in m³
	NBands           int       `json:"N_BANDS"`
	BandEdges        []float64 `json:"BANDS"` // Hz, N_BANDS+1 entries
}

// BinDuration returns the duration of one histogram bin in seconds.
func (s Settings) BinDuration() float64 {
	if s.BinSeconds > 0 {
		return s.BinSeconds
	}

	return 1.0 / DefaultSampleRate
}

// SampleRate returns the histogram bin rate in Hz, rounded to whole Hz since
// the simulator prints the bin duration with only six significant digits.
func (s Settings) SampleRate() float64 {
	rate := 1.0 / s.BinDuration()
	if rounded := math.Round(rate); rounded >= 1 {
		return rounded
	}

	return rate
}

// Validate checks the fields the synthesis depends on.
func (s Settings) Validate() error {
	if s.NBands <= 0 {
		return fmt.Errorf("%w: N_BANDS must be positive, got %d", ErrMissingInput, s.NBands)
	}

	if s.BinSeconds < 0 || math.IsNaN(s.BinSeconds) || math.IsInf(s.BinSeconds, 0) {
		return fmt.Errorf("%w: invalid bin duration %v", ErrMissingInput, s.BinSeconds)
	}

	if s.Volume < 0 {
		return fmt.Errorf("%w: negative room volume %v", ErrMissingInput, s.Volume)
	}

	return nil
}
