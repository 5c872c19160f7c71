package histogram

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// File names the ray tracer uses inside a histogram folder.
const (
	MatrixFileName   = "histogram.csv"
	SettingsFileName = "histogram.json"
)

// ParseSettings decodes a histogram.json record.
func ParseSettings(r io.Reader) (Settings, error) {
	var s Settings

	dec := json.NewDecoder(r)
	if err := dec.Decode(&s); err != nil {
		return Settings{}, fmt.Errorf("%w: settings: %w", ErrMissingInput, err)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}

	return s, nil
}

// ParseCSV reads the band matrix. Each line holds one band; the simulator
// terminates every value with a comma, so a trailing empty field is dropped.
// Only the first nBands rows are used.
func ParseCSV(r io.Reader, nBands int) (Histogram, error) {
	if nBands <= 0 {
		return nil, fmt.Errorf("%w: band count must be positive, got %d", ErrMissingInput, nBands)
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	h := make(Histogram, 0, nBands)

	for len(h) < nBands {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("%w: csv: %w", ErrMissingInput, err)
		}

		for len(record) > 0 && strings.TrimSpace(record[len(record)-1]) == "" {
			record = record[:len(record)-1]
		}

		if len(record) == 0 {
			continue
		}

		row := make([]float64, len(record))
		for i, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: band %d column %d: %w", ErrMissingInput, len(h), i, err)
			}

			row[i] = v
		}

		h = append(h, row)
	}

	if len(h) != nBands {
		return nil, fmt.Errorf("%w: expected %d bands, found %d", ErrMissingInput, nBands, len(h))
	}

	if err := h.Validate(); err != nil {
		return nil, err
	}

	return h, nil
}

// Load reads histogram.json and histogram.csv from dir and returns the
// band-normalized matrix with its settings.
func Load(dir string) (Histogram, Settings, error) {
	sf, err := os.Open(filepath.Join(dir, SettingsFileName))
	if err != nil {
		return nil, Settings{}, fmt.Errorf("%w: %w", ErrMissingInput, err)
	}
	defer sf.Close()

	settings, err := ParseSettings(sf)
	if err != nil {
		return nil, Settings{}, err
	}

	mf, err := os.Open(filepath.Join(dir, MatrixFileName))
	if err != nil {
		return nil, Settings{}, fmt.Errorf("%w: %w", ErrMissingInput, err)
	}
	defer mf.Close()

	h, err := ParseCSV(mf, settings.NBands)
	if err != nil {
		return nil, Settings{}, err
	}

	return Normalize(h), settings, nil
}

// Source provides a histogram and its settings to the synthesizer.
type Source interface {
	Load(ctx context.Context) (Histogram, Settings, error)
}

// DirSource loads a histogram folder from the local filesystem.
type DirSource struct {
	Dir string
}

// Load implements Source.
func (d DirSource) Load(ctx context.Context) (Histogram, Settings, error) {
	if err := ctx.Err(); err != nil {
		return nil, Settings{}, err
	}

	return Load(d.Dir)
}

// Static is a Source over an already parsed histogram.
type Static struct {
	Histogram Histogram
	Settings  Settings
}

// Load implements Source.
func (s Static) Load(context.Context) (Histogram, Settings, error) {
	if err := s.Settings.Validate(); err != nil {
		return nil, Settings{}, err
	}

	if err := s.Histogram.Validate(); err != nil {
		return nil, Settings{}, err
	}

	if s.Histogram.Bands() != s.Settings.NBands {
		return nil, Settings{}, fmt.Errorf("%w: settings declare %d bands, histogram has %d",
			ErrMissingInput, s.Settings.NBands, s.Histogram.Bands())
	}

	return s.Histogram, s.Settings, nil
}
