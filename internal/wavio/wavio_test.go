package wavio

import (
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rir-synth/dsp"
)

func TestWaveformRoundTrip(t *testing.T) {
	t.Parallel()

	want := &dsp.Waveform{
		SampleRate: 44100,
		Samples:    []int16{0, 32767, -32767, 1, -1, 12345, -20000},
	}

	f, err := TempFile(t.TempDir(), want)
	if err != nil {
		t.Fatalf("TempFile failed: %v", err)
	}
	defer f.Close()

	got, err := ReadWaveform(f)
	if err != nil {
		t.Fatalf("ReadWaveform failed: %v", err)
	}

	if got.SampleRate != want.SampleRate {
		t.Errorf("sample rate: got %d, want %d", got.SampleRate, want.SampleRate)
	}

	if len(got.Samples) != len(want.Samples) {
		t.Fatalf("length: got %d, want %d", len(got.Samples), len(want.Samples))
	}

	for i := range want.Samples {
		if got.Samples[i] != want.Samples[i] {
			t.Errorf("sample %d: got %d, want %d", i, got.Samples[i], want.Samples[i])
		}
	}
}

func TestTempFileStartsWithRIFFHeader(t *testing.T) {
	t.Parallel()

	f, err := TempFile(t.TempDir(), &dsp.Waveform{SampleRate: 44100, Samples: []int16{1, 2, 3}})
	if err != nil {
		t.Fatalf("TempFile failed: %v", err)
	}
	defer f.Close()

	header := make([]byte, 12)
	if _, err := io.ReadFull(f, header); err != nil {
		t.Fatalf("read header: %v", err)
	}

	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		t.Errorf("unexpected header %q", header)
	}

	info, err := f.Stat()
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	// 44-byte canonical header plus two bytes per sample
	if info.Size() != 44+3*2 {
		t.Errorf("file size: got %d, want %d", info.Size(), 44+3*2)
	}
}

func TestWriteWaveformEmpty(t *testing.T) {
	t.Parallel()

	if _, err := TempFile(t.TempDir(), &dsp.Waveform{SampleRate: 44100}); !errors.Is(err, ErrEmptySignal) {
		t.Errorf("got %v, want ErrEmptySignal", err)
	}
}

func TestSignalFileRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stereo.wav")

	in := &Signal{
		SampleRate: 48000,
		Channels: [][]float64{
			{0, 0.5, -0.5, 0.25, 2},
			{1, -1, 0.1, -0.1, -3},
		},
	}

	if err := WriteFile(path, in); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	out, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	if out.SampleRate != in.SampleRate {
		t.Errorf("sample rate: got %d, want %d", out.SampleRate, in.SampleRate)
	}

	if len(out.Channels) != 2 || out.Len() != 5 {
		t.Fatalf("shape: got %d channels of %d frames", len(out.Channels), out.Len())
	}

	for c := range in.Channels {
		for i, v := range in.Channels[c] {
			want := math.Max(-1, math.Min(1, v))
			if math.Abs(out.Channels[c][i]-want) > 1.0/16384 {
				t.Errorf("channel %d sample %d: got %v, want %v", c, i, out.Channels[c][i], want)
			}
		}
	}
}

func TestWriteSignalRaggedChannels(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.wav")
	err := WriteFile(path, &Signal{SampleRate: 44100, Channels: [][]float64{{1, 2}, {1}}})

	if !errors.Is(err, ErrChannelCount) {
		t.Errorf("got %v, want ErrChannelCount", err)
	}

	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Errorf("failed write left %s behind", path)
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Read(strings.NewReader("definitely not a riff file, just text"))
	if !errors.Is(err, ErrNotWAV) {
		t.Errorf("got %v, want ErrNotWAV", err)
	}
}

func TestMono(t *testing.T) {
	t.Parallel()

	s := &Signal{Channels: [][]float64{{1, 0, -1}, {0, 1, -1}}}

	want := []float64{0.5, 0.5, -1}
	for i, v := range s.Mono() {
		if v != want[i] {
			t.Errorf("frame %d: got %v, want %v", i, v, want[i])
		}
	}

	if got := (&Signal{}).Mono(); len(got) != 0 {
		t.Errorf("empty signal: got %v", got)
	}
}
