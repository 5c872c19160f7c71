package synth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path"

	"rir-synth/dsp"
)

// ErrInvalidConfig is returned by Validate and LoadConfig.
var ErrInvalidConfig = errors.New("synth: invalid config")

// Strategy selects how per-band time signals are derived from the histogram.
type Strategy string

const (
	// StrategyFilterBank sign-alternates each histogram row.
	StrategyFilterBank Strategy = "filterbank"
	// StrategyNoise shapes a Poisson arrival sequence per band to the row's
	// energy envelope.
	StrategyNoise Strategy = "noise"
)

// Defaults.
const (
	DefaultSeed       uint64 = 42
	DefaultVolume            = 1000.0 // m³, used when neither config nor settings name one
	DefaultOutputName        = "histogram.wav"
)

// Config holds the tunables of a synthesis run.
type Config struct {
	Strategy Strategy `json:"strategy"`
	Seed     uint64   `json:"seed"`

	// VolumeM3 overrides the room volume for the noise strategy. Zero takes
	// the simulator's VOLUME setting.
	VolumeM3       float64 `json:"volume_m3"`
	MaxArrivalRate float64 `json:"max_arrival_rate"`
	SpeedOfSound   float64 `json:"speed_of_sound"`

	LowFrequencyHz  float64 `json:"low_frequency_hz"`
	HighFrequencyHz float64 `json:"high_frequency_hz"`

	// OutputName is the store key of the rendered WAV.
	OutputName string `json:"output_name"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Strategy:        StrategyFilterBank,
		Seed:            DefaultSeed,
		MaxArrivalRate:  dsp.DefaultMaxArrivalRate,
		SpeedOfSound:    dsp.SpeedOfSound,
		LowFrequencyHz:  dsp.DefaultLowFrequency,
		HighFrequencyHz: dsp.DefaultHighFrequency,
		OutputName:      DefaultOutputName,
	}
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// Validate checks the configuration for values the pipeline cannot use.
func (c Config) Validate() error {
	switch c.Strategy {
	case StrategyFilterBank, StrategyNoise:
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, c.Strategy)
	}

	if c.VolumeM3 < 0 || math.IsNaN(c.VolumeM3) || math.IsInf(c.VolumeM3, 0) {
		return fmt.Errorf("%w: volume_m3 %v", ErrInvalidConfig, c.VolumeM3)
	}

	if !positive(c.MaxArrivalRate) {
		return fmt.Errorf("%w: max_arrival_rate %v", ErrInvalidConfig, c.MaxArrivalRate)
	}

	if !positive(c.SpeedOfSound) {
		return fmt.Errorf("%w: speed_of_sound %v", ErrInvalidConfig, c.SpeedOfSound)
	}

	if !positive(c.LowFrequencyHz) || !positive(c.HighFrequencyHz) || c.HighFrequencyHz <= c.LowFrequencyHz {
		return fmt.Errorf("%w: frequency range [%v, %v] Hz", ErrInvalidConfig, c.LowFrequencyHz, c.HighFrequencyHz)
	}

	if c.OutputName == "" || path.IsAbs(c.OutputName) {
		return fmt.Errorf("%w: output_name %q", ErrInvalidConfig, c.OutputName)
	}

	return nil
}

// LoadConfig reads a JSON config file. Fields absent from the file keep
// their DefaultConfig values; unknown fields are rejected.
func LoadConfig(filename string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("synth: read config: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, filename, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}
