package synth

import (
	"fmt"
	"math"

	"rir-synth/dsp"
	"rir-synth/pkg/histogram"
)

// BandSource turns a histogram into one time-domain signal per band. All
// returned signals have the same length and share the returned sample rate.
type BandSource interface {
	Name() Strategy
	BandSignals(h histogram.Histogram, s histogram.Settings) ([][]float64, float64, error)
}

// SignAlternation uses each sign-alternated histogram row directly as the
// band signal, sampled at the histogram bin rate.
type SignAlternation struct{}

// Name implements BandSource.
func (SignAlternation) Name() Strategy { return StrategyFilterBank }

// BandSignals implements BandSource.
func (SignAlternation) BandSignals(h histogram.Histogram, s histogram.Settings) ([][]float64, float64, error) {
	bands := make([][]float64, h.Bands())
	for b := range bands {
		bands[b] = dsp.SignAlternate(h.Row(b))
	}

	return bands, s.SampleRate(), nil
}

// ModulatedNoise draws a fresh arrival sequence for every band and scales it
// so its energy per histogram bin matches the band's row.
type ModulatedNoise struct {
	Generator  *dsp.NoiseGenerator
	Volume     float64
	SampleRate float64
}

// Name implements BandSource.
func (ModulatedNoise) Name() Strategy { return StrategyNoise }

// BandSignals implements BandSource. Bands are generated in order from the
// same generator, so a seeded generator yields the same signals every time.
func (m ModulatedNoise) BandSignals(h histogram.Histogram, s histogram.Settings) ([][]float64, float64, error) {
	// The simulator prints the bin duration with six digits; use the bin
	// rate rounded to whole Hz so bins map onto whole noise samples.
	binRate := s.SampleRate()
	binDuration := 1 / binRate
	n := int(math.Round(float64(h.Bins()) * m.SampleRate / binRate))

	bands := make([][]float64, h.Bands())
	for b := range bands {
		noise, err := m.Generator.GenerateSamples(n, m.SampleRate, m.Volume)
		if err != nil {
			return nil, 0, fmt.Errorf("band %d: %w", b, err)
		}

		bands[b], err = dsp.ModulateEnergy(noise, m.SampleRate, h.Row(b), binDuration)
		if err != nil {
			return nil, 0, fmt.Errorf("band %d: %w", b, err)
		}
	}

	return bands, m.SampleRate, nil
}
