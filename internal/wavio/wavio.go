// Package wavio reads and writes PCM WAV files through go-audio.
//
// Rendered impulse responses are always mono 16-bit. Decoded signals are
// returned as float64 channels scaled to [-1.0, 1.0).
package wavio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"rir-synth/dsp"
)

// BitDepth of every file written by this package.
const BitDepth = 16

// pcmFormat is the WAVE format tag for integer PCM.
const pcmFormat = 1

// Errors.
var (
	ErrNotWAV       = errors.New("wavio: not a valid WAV file")
	ErrEmptySignal  = errors.New("wavio: signal has no samples")
	ErrChannelCount = errors.New("wavio: channels differ in length")
)

// Signal is decoded multi-channel audio.
type Signal struct {
	SampleRate int
	// Channels holds one slice per channel, all of equal length.
	Channels [][]float64
}

// Len returns the number of frames.
func (s *Signal) Len() int {
	if len(s.Channels) == 0 {
		return 0
	}

	return len(s.Channels[0])
}

// Mono averages all channels into one.
func (s *Signal) Mono() []float64 {
	out := make([]float64, s.Len())
	if len(s.Channels) == 0 {
		return out
	}

	for _, ch := range s.Channels {
		for i, v := range ch {
			out[i] += v
		}
	}

	scale := 1 / float64(len(s.Channels))
	for i := range out {
		out[i] *= scale
	}

	return out
}

// WriteWaveform encodes w as a mono 16-bit WAV stream.
func WriteWaveform(ws io.WriteSeeker, w *dsp.Waveform) error {
	if len(w.Samples) == 0 {
		return ErrEmptySignal
	}

	data := make([]int, len(w.Samples))
	for i, s := range w.Samples {
		data[i] = int(s)
	}

	return encode(ws, w.SampleRate, 1, data)
}

// WriteSignal encodes a float signal as 16-bit PCM. Samples are clipped to
// [-1.0, 1.0].
func WriteSignal(ws io.WriteSeeker, s *Signal) error {
	n := s.Len()
	if n == 0 {
		return ErrEmptySignal
	}

	for _, ch := range s.Channels {
		if len(ch) != n {
			return ErrChannelCount
		}
	}

	numChans := len(s.Channels)
	data := make([]int, n*numChans)

	for i := range n {
		for c, ch := range s.Channels {
			v := math.Max(-1, math.Min(1, ch[i]))
			data[i*numChans+c] = int(math.MaxInt16 * v)
		}
	}

	return encode(ws, s.SampleRate, numChans, data)
}

func encode(ws io.WriteSeeker, sampleRate, numChans int, data []int) error {
	enc := wav.NewEncoder(ws, sampleRate, BitDepth, numChans, pcmFormat)

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: numChans,
			SampleRate:  sampleRate,
		},
		Data:           data,
		SourceBitDepth: BitDepth,
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wavio: failed to write samples: %w", err)
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("wavio: failed to finalize header: %w", err)
	}

	return nil
}

// TempFile encodes w into a new temporary file in dir and rewinds it. The
// caller closes and removes the file.
func TempFile(dir string, w *dsp.Waveform) (*os.File, error) {
	f, err := os.CreateTemp(dir, "rir-*.wav")
	if err != nil {
		return nil, fmt.Errorf("wavio: failed to create temp file: %w", err)
	}

	fail := func(err error) (*os.File, error) {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, err
	}

	if err := WriteWaveform(f, w); err != nil {
		return fail(err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fail(fmt.Errorf("wavio: failed to rewind temp file: %w", err))
	}

	return f, nil
}

// WriteFile writes a float signal to path, replacing any existing file only
// once encoding has succeeded.
func WriteFile(path string, s *Signal) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".wavio-*")
	if err != nil {
		return fmt.Errorf("wavio: failed to create temp file: %w", err)
	}
	tmp := f.Name()

	if err := WriteSignal(f, s); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("wavio: failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("wavio: failed to move %s into place: %w", path, err)
	}

	return nil
}

// Read decodes a PCM WAV stream.
func Read(r io.ReadSeeker) (*Signal, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrNotWAV
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wavio: could not read PCM buffer: %w", err)
	}

	numChans := buf.Format.NumChannels
	if numChans < 1 {
		return nil, fmt.Errorf("%w: %d channels", ErrNotWAV, numChans)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(dec.BitDepth)
	}

	scale := 1 / math.Ldexp(1, bitDepth-1)
	frames := len(buf.Data) / numChans

	sig := &Signal{
		SampleRate: buf.Format.SampleRate,
		Channels:   make([][]float64, numChans),
	}

	for c := range sig.Channels {
		sig.Channels[c] = make([]float64, frames)
	}

	for i := range frames {
		for c := range numChans {
			v := buf.Data[i*numChans+c]
			// 8-bit WAV is unsigned
			if bitDepth == 8 {
				v -= 128
			}
			sig.Channels[c][i] = float64(v) * scale
		}
	}

	return sig, nil
}

// ReadFile decodes the WAV file at path.
func ReadFile(path string) (*Signal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wavio: %w", err)
	}
	defer f.Close()

	return Read(f)
}

// ReadWaveform decodes a mono 16-bit WAV stream back into a Waveform.
func ReadWaveform(r io.ReadSeeker) (*dsp.Waveform, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrNotWAV
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wavio: could not read PCM buffer: %w", err)
	}

	if buf.Format.NumChannels != 1 || dec.BitDepth != BitDepth {
		return nil, fmt.Errorf("%w: want mono %d-bit, got %d channels at %d bits",
			ErrNotWAV, BitDepth, buf.Format.NumChannels, dec.BitDepth)
	}

	w := &dsp.Waveform{SampleRate: buf.Format.SampleRate, Samples: make([]int16, len(buf.Data))}
	for i, v := range buf.Data {
		w.Samples[i] = int16(v)
	}

	return w, nil
}
