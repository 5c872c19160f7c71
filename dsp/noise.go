package dsp

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// Physical defaults for the reflection arrival model.
const (
	SpeedOfSound          = 343.0   // m/s
	DefaultMaxArrivalRate = 10000.0 // arrivals per second
)

// ErrInvalidParameter is returned for non-physical rates, durations or volumes.
var ErrInvalidParameter = errors.New("dsp: invalid parameter")

// NoiseGenerator produces a sparse Dirac sequence whose arrival density grows
// with t² as reflections do in a diffuse room (Schroeder's statistical model):
//
//	μ(t) = 4π·c³·t² / V
//
// μ is clamped to MaxArrivalRate so arrivals close to the start time do not
// collapse into a single sample.
type NoiseGenerator struct {
	SpeedOfSound   float64
	MaxArrivalRate float64

	rng *rand.Rand
}

// NewNoiseGenerator creates a generator that draws from rng.
func NewNoiseGenerator(rng *rand.Rand) *NoiseGenerator {
	return &NoiseGenerator{
		SpeedOfSound:   SpeedOfSound,
		MaxArrivalRate: DefaultMaxArrivalRate,
		rng:            rng,
	}
}

// StartTime returns t0, the time at which the expected number of arrivals
// reaches one: ∫μ = ln 2 solved for t.
func (g *NoiseGenerator) StartTime(volume float64) float64 {
	c3 := g.SpeedOfSound * g.SpeedOfSound * g.SpeedOfSound
	return math.Cbrt((2 * volume * math.Ln2) / (4 * math.Pi * c3))
}

// ArrivalRate returns the clamped arrival rate μ(t) in arrivals per second.
func (g *NoiseGenerator) ArrivalRate(t, volume float64) float64 {
	c3 := g.SpeedOfSound * g.SpeedOfSound * g.SpeedOfSound
	mu := 4 * math.Pi * c3 * t * t / volume

	if mu > g.MaxArrivalRate {
		mu = g.MaxArrivalRate
	}

	return mu
}

// Generate returns floor(tEnd*sampleRate) samples holding alternating ±1
// pulses at Poisson arrival times between StartTime(volume) and tEnd. All
// other samples are zero.
func (g *NoiseGenerator) Generate(tEnd, sampleRate, volume float64) ([]float64, error) {
	if tEnd < 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("%w: tEnd=%v sampleRate=%v", ErrInvalidParameter, tEnd, sampleRate)
	}

	return g.GenerateSamples(floorIndex(tEnd*sampleRate), sampleRate, volume)
}

// GenerateSamples is Generate for an exact output length of n samples.
func (g *NoiseGenerator) GenerateSamples(n int, sampleRate, volume float64) ([]float64, error) {
	if n < 0 || sampleRate <= 0 || volume <= 0 {
		return nil, fmt.Errorf("%w: n=%d sampleRate=%v volume=%v", ErrInvalidParameter, n, sampleRate, volume)
	}

	if g.rng == nil {
		return nil, fmt.Errorf("%w: noise generator has no random source", ErrInvalidParameter)
	}

	out := make([]float64, n)
	tEnd := float64(n) / sampleRate

	pulse := 1.0
	for t := g.StartTime(volume); t < tEnd; {
		idx := int(t * sampleRate)
		if idx >= n {
			break
		}

		out[idx] = pulse
		pulse = -pulse

		mu := g.ArrivalRate(t, volume)
		t += -math.Log(g.uniform()) / mu
	}

	return out, nil
}

// uniform draws from the open interval (0, 1).
func (g *NoiseGenerator) uniform() float64 {
	for {
		if u := g.rng.Float64(); u > 0 {
			return u
		}
	}
}
