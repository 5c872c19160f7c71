package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"rir-synth/dsp"
	"rir-synth/internal/wavio"
	"rir-synth/pkg/analysis"
	"rir-synth/pkg/histogram"
	"rir-synth/pkg/irformat"
	"rir-synth/pkg/store"
	"rir-synth/pkg/synth"
)

var errNotReadable = errors.New("store cannot read back results")

// getter is implemented by every store in pkg/store.
type getter interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// artifact is a rendered response plus the parameters that produced it.
type artifact struct {
	waveform *dsp.Waveform
	prov     irformat.Provenance
}

// loadArtifact returns the response Run just rendered, or reads the stored
// one back when Run skipped the folder.
func loadArtifact(ctx context.Context, syn *synth.Synthesizer, res synth.Result, st store.Store, folder string) (*artifact, error) {
	a := &artifact{
		waveform: res.Waveform,
		prov: irformat.Provenance{
			Strategy: string(res.Strategy),
			Bands:    res.Bands,
			Seed:     res.Seed,
			Volume:   res.Volume,
			Source:   folder,
		},
	}

	if !res.Skipped {
		return a, nil
	}

	g, ok := st.(getter)
	if !ok {
		return nil, fmt.Errorf("%w: %T", errNotReadable, st)
	}

	data, err := g.Get(ctx, res.Key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", res.Key, err)
	}

	a.waveform, err = wavio.ReadWaveform(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", res.Key, err)
	}

	h, set, err := histogram.Load(folder)
	if err != nil {
		return nil, err
	}

	a.prov.Bands = h.Bands()
	if res.Strategy == synth.StrategyNoise {
		a.prov.Volume = syn.Volume(set)
	}

	return a, nil
}

// bandEdgesHz reproduces the band layout the synthesizer used.
func bandEdgesHz(bands int, cfg synth.Config) ([]float64, error) {
	fb, err := dsp.NewFilterBank(bands, dsp.OutputSampleRate,
		dsp.WithFrequencyRange(cfg.LowFrequencyHz, cfg.HighFrequencyHz))
	if err != nil {
		return nil, err
	}

	return fb.EdgesHz(), nil
}

func logReport(a *artifact, cfg synth.Config, log *zap.Logger) error {
	edges, err := bandEdgesHz(a.prov.Bands, cfg)
	if err != nil {
		return err
	}

	r, err := analysis.Analyze(a.waveform, edges)
	if err != nil {
		return fmt.Errorf("analysis: %w", err)
	}

	log.Info("report",
		zap.Float64s("band_edges_hz", r.BandEdgesHz),
		zap.Float64s("band_levels_db", r.BandLevelsDB),
		zap.Float64("spectral_flatness", r.Flatness),
		zap.Float64("duration_s", a.waveform.Duration()),
		zap.Float64("peak_dbfs", 20*math.Log10(float64(a.waveform.Peak())/math.MaxInt16)),
	)

	return nil
}

func exportIR(libPath string, a *artifact, folder string) error {
	name := irName(folder)

	ir := irformat.NewImpulseResponse(name, a.waveform, a.prov)
	ir.Metadata.Category = inferCategory(folder)
	ir.Metadata.Tags = inferTags(name)
	ir.Metadata.Description = fmt.Sprintf("%s strategy, %d bands", a.prov.Strategy, a.prov.Bands)

	return irformat.Upsert(libPath, ir)
}
