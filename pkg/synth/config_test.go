package synth

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig invalid: %v", err)
	}

	if cfg.Seed != 42 || cfg.Strategy != StrategyFilterBank || cfg.OutputName != "histogram.wav" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown strategy", func(c *Config) { c.Strategy = "granular" }},
		{"negative volume", func(c *Config) { c.VolumeM3 = -1 }},
		{"NaN volume", func(c *Config) { c.VolumeM3 = math.NaN() }},
		{"zero arrival rate", func(c *Config) { c.MaxArrivalRate = 0 }},
		{"zero speed of sound", func(c *Config) { c.SpeedOfSound = 0 }},
		{"inverted range", func(c *Config) { c.LowFrequencyHz, c.HighFrequencyHz = 1000, 100 }},
		{"zero low frequency", func(c *Config) { c.LowFrequencyHz = 0 }},
		{"empty output", func(c *Config) { c.OutputName = "" }},
		{"absolute output", func(c *Config) { c.OutputName = "/tmp/x.wav" }},
	}

	for _, tc := range tests {
		cfg := DefaultConfig()
		tc.mutate(&cfg)

		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: got %v, want ErrInvalidConfig", tc.name, err)
		}

		if _, err := New(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: New accepted invalid config", tc.name)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "synth.json")

	if err := os.WriteFile(path, []byte(`{"strategy":"noise","seed":7,"volume_m3":120}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Strategy != StrategyNoise || cfg.Seed != 7 || cfg.VolumeM3 != 120 {
		t.Errorf("overridden fields: %+v", cfg)
	}

	// Untouched fields keep their defaults.
	if cfg.SpeedOfSound != 343 || cfg.HighFrequencyHz != 20000 || cfg.OutputName != DefaultOutputName {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	tests := []struct {
		name string
		path string
	}{
		{"unknown field", write("unknown.json", `{"strategy":"noise","colour":"red"}`)},
		{"malformed", write("bad.json", `{"seed":`)},
		{"invalid value", write("invalid.json", `{"speed_of_sound":-1}`)},
	}

	for _, tc := range tests {
		if _, err := LoadConfig(tc.path); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: got %v, want ErrInvalidConfig", tc.name, err)
		}
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.json")); err == nil || errors.Is(err, ErrInvalidConfig) {
		t.Errorf("missing file: got %v, want a read error", err)
	}
}
