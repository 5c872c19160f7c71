// Package synth turns ray-traced energy histograms into room impulse
// responses.
//
// A Synthesizer derives one time signal per frequency band (see BandSource),
// recombines the bands through a crossover filter bank and renders the sum as
// 16-bit PCM at 44100 Hz. Run wraps Synthesize with input loading, an
// idempotence check against a store.Store, and persistence.
package synth

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"go.uber.org/zap"

	"rir-synth/dsp"
	"rir-synth/internal/wavio"
	"rir-synth/pkg/histogram"
	"rir-synth/pkg/resampler"
	"rir-synth/pkg/store"
)

// seedStream is the PCG stream used with Config.Seed.
const seedStream = 0x726972

// Synthesizer renders histograms. It is not safe for concurrent use when
// constructed WithRand, since the shared generator advances on every call.
type Synthesizer struct {
	cfg       Config
	logger    *zap.Logger
	rng       *rand.Rand
	resampler *resampler.Resampler
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Synthesizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRand makes the noise strategy draw from r instead of a generator
// seeded from Config.Seed on every call.
func WithRand(r *rand.Rand) Option {
	return func(s *Synthesizer) { s.rng = r }
}

// WithResampler replaces the resampler used when band signals are not at
// the output rate.
func WithResampler(r *resampler.Resampler) Option {
	return func(s *Synthesizer) {
		if r != nil {
			s.resampler = r
		}
	}
}

// New validates cfg and returns a Synthesizer.
func New(cfg Config, opts ...Option) (*Synthesizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Synthesizer{
		cfg:       cfg,
		logger:    zap.NewNop(),
		resampler: resampler.New(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Config returns the configuration the synthesizer was built with.
func (s *Synthesizer) Config() Config { return s.cfg }

// Volume returns the room volume the noise strategy uses for settings.
func (s *Synthesizer) Volume(set histogram.Settings) float64 {
	switch {
	case s.cfg.VolumeM3 > 0:
		return s.cfg.VolumeM3
	case set.Volume > 0:
		return set.Volume
	default:
		return DefaultVolume
	}
}

func (s *Synthesizer) source(set histogram.Settings) BandSource {
	if s.cfg.Strategy != StrategyNoise {
		return SignAlternation{}
	}

	rng := s.rng
	if rng == nil {
		rng = rand.New(rand.NewPCG(s.cfg.Seed, seedStream))
	}

	gen := dsp.NewNoiseGenerator(rng)
	gen.SpeedOfSound = s.cfg.SpeedOfSound
	gen.MaxArrivalRate = s.cfg.MaxArrivalRate

	return ModulatedNoise{
		Generator:  gen,
		Volume:     s.Volume(set),
		SampleRate: dsp.OutputSampleRate,
	}
}

// Synthesize renders h into a mono 16-bit waveform at 44100 Hz.
func (s *Synthesizer) Synthesize(h histogram.Histogram, set histogram.Settings) (*dsp.Waveform, error) {
	h, set, err := histogram.Static{Histogram: h, Settings: set}.Load(context.Background())
	if err != nil {
		return nil, err
	}

	src := s.source(set)

	bands, rate, err := src.BandSignals(h, set)
	if err != nil {
		return nil, fmt.Errorf("synth: %s band signals: %w", src.Name(), err)
	}

	fb, err := dsp.NewFilterBank(len(bands), rate,
		dsp.WithFrequencyRange(s.cfg.LowFrequencyHz, s.cfg.HighFrequencyHz))
	if err != nil {
		return nil, fmt.Errorf("synth: filter bank: %w", err)
	}

	summed, err := fb.Reconstruct(bands)
	if err != nil {
		return nil, fmt.Errorf("synth: reconstruct: %w", err)
	}

	s.logger.Debug("bands_filtered",
		zap.String("strategy", string(src.Name())),
		zap.Int("bands", len(bands)),
		zap.Int("samples", len(summed)),
		zap.Float64("sample_rate", rate),
		zap.Float64("width_factor", fb.WidthFactor()),
	)

	w, err := s.render(summed, bands, rate)
	if err != nil {
		return nil, fmt.Errorf("synth: render: %w", err)
	}

	s.logger.Info("rendered",
		zap.String("strategy", string(src.Name())),
		zap.Int("samples", len(w.Samples)),
		zap.Float64("duration_s", w.Duration()),
	)

	return w, nil
}

// render truncates at the band signal rate, converts to the output rate when
// needed and quantizes.
func (s *Synthesizer) render(summed []float64, bands [][]float64, rate float64) (*dsp.Waveform, error) {
	if rate == dsp.OutputSampleRate {
		return dsp.Render(summed, bands, dsp.OutputSampleRate)
	}

	n, err := dsp.TruncationLength(bands, int(math.Round(rate)))
	if err != nil {
		return nil, err
	}

	out, err := s.resampler.Resample(summed[:min(n, len(summed))], rate, dsp.OutputSampleRate)
	if err != nil {
		return nil, err
	}

	normalized, err := dsp.Normalize(out)
	if err != nil {
		return nil, err
	}

	return &dsp.Waveform{SampleRate: dsp.OutputSampleRate, Samples: dsp.Quantize(normalized)}, nil
}

// Result describes the outcome of Run.
type Result struct {
	Key     string
	Skipped bool

	Strategy Strategy
	Seed     uint64
	Volume   float64 // m³; zero for the filter bank strategy
	Bands    int

	Waveform *dsp.Waveform
	Elapsed  time.Duration
}

// Run synthesizes the histogram from src and stores it under the configured
// output name. When st already holds that key and force is false, Run
// returns a skipped Result without loading or computing anything.
func (s *Synthesizer) Run(ctx context.Context, src histogram.Source, st store.Store, force bool) (Result, error) {
	start := time.Now()
	res := Result{Key: s.cfg.OutputName, Strategy: s.cfg.Strategy, Seed: s.cfg.Seed}

	if !force {
		exists, err := st.Exists(ctx, res.Key)
		if err != nil {
			return res, fmt.Errorf("synth: check %s: %w", res.Key, err)
		}

		if exists {
			s.logger.Info("skip_existing", zap.String("key", res.Key))
			res.Skipped = true
			return res, nil
		}
	}

	h, set, err := src.Load(ctx)
	if err != nil {
		return res, err
	}

	s.logger.Info("histogram_loaded",
		zap.Int("bands", h.Bands()),
		zap.Int("bins", h.Bins()),
		zap.Float64("bin_duration_s", set.BinDuration()),
		zap.Float64("volume_m3", set.Volume),
	)

	w, err := s.Synthesize(h, set)
	if err != nil {
		return res, err
	}

	res.Waveform = w
	res.Bands = h.Bands()
	if s.cfg.Strategy == StrategyNoise {
		res.Volume = s.Volume(set)
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	f, err := wavio.TempFile("", w)
	if err != nil {
		return res, fmt.Errorf("synth: encode: %w", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}()

	if err := st.Put(ctx, res.Key, f); err != nil {
		return res, fmt.Errorf("synth: store %s: %w", res.Key, err)
	}

	res.Elapsed = time.Since(start)

	s.logger.Info("stored",
		zap.String("key", res.Key),
		zap.Int("samples", len(w.Samples)),
		zap.Duration("elapsed", res.Elapsed),
	)

	return res, nil
}
