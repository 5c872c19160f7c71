// Package irformat reads and writes IR library files (.irlib).
//
// An IR library is a chunked little-endian container holding any number of
// synthesized room impulse responses together with the parameters that
// produced them. Layout:
//
//	header  "IRLB" version(u16) count(u32) indexOffset(u64)
//	IR--    one chunk per response: META sub-chunk, AUDI sub-chunk
//	INDX    name, rate, channels, length and offset of every IR--
//
// Audio is stored as interleaved signed 16-bit PCM, the same resolution the
// synthesizer renders.
package irformat

import (
	"errors"

	"rir-synth/dsp"
)

// Format constants.
const (
	MagicNumber = "IRLB"

	CurrentVersion uint16 = 1

	ChunkTypeIR    = "IR--"
	ChunkTypeIndex = "INDX"
	ChunkTypeMeta  = "META"
	ChunkTypeAudio = "AUDI"
)

// Header sizes in bytes.
const (
	FileHeaderSize     = 18 // Magic(4) + Version(2) + IRCount(4) + IndexOffset(8)
	ChunkHeaderSize    = 12 // ChunkID(4) + ChunkSize(8)
	SubChunkHeaderSize = 8  // ChunkID(4) + ChunkSize(4)

	indexOffsetPos = 10
)

// Errors.
var (
	ErrInvalidMagic       = errors.New("irformat: invalid magic number")
	ErrUnsupportedVersion = errors.New("irformat: unsupported format version")
	ErrInvalidChunk       = errors.New("irformat: invalid chunk")
	ErrCorruptedData      = errors.New("irformat: corrupted data")
	ErrIRNotFound         = errors.New("irformat: IR not found")
	ErrInvalidIndex       = errors.New("irformat: invalid IR index")
	ErrInvalidIR          = errors.New("irformat: invalid impulse response")
)

// Library is an ordered collection of impulse responses.
type Library struct {
	Version uint16
	IRs     []*ImpulseResponse
}

// NewLibrary returns an empty library at the current version.
func NewLibrary() *Library {
	return &Library{Version: CurrentVersion}
}

// Add appends ir, replacing an existing entry with the same name.
func (lib *Library) Add(ir *ImpulseResponse) {
	for i, existing := range lib.IRs {
		if existing.Metadata.Name == ir.Metadata.Name {
			lib.IRs[i] = ir
			return
		}
	}

	lib.IRs = append(lib.IRs, ir)
}

// Provenance records how an impulse response was synthesized.
type Provenance struct {
	Strategy string  // band signal strategy, e.g. "filterbank" or "noise"
	Bands    int     // number of histogram bands
	Seed     uint64  // noise seed; meaningless for the filter bank strategy
	Volume   float64 // room volume in m³; zero when unused
	Source   string  // histogram folder the response was rendered from
}

// Metadata describes one impulse response.
type Metadata struct {
	Name        string
	Description string
	Category    string
	Tags        []string
	SampleRate  float64
	Channels    int
	Length      int // samples per channel

	Provenance Provenance
}

// ImpulseResponse is one library entry.
type ImpulseResponse struct {
	Metadata Metadata
	// Data is organized as [channel][sample].
	Data [][]int16
}

// NewImpulseResponse builds a mono entry from a rendered waveform.
func NewImpulseResponse(name string, w *dsp.Waveform, p Provenance) *ImpulseResponse {
	return &ImpulseResponse{
		Metadata: Metadata{
			Name:       name,
			Category:   "Synthesized",
			SampleRate: float64(w.SampleRate),
			Channels:   1,
			Length:     len(w.Samples),
			Provenance: p,
		},
		Data: [][]int16{append([]int16(nil), w.Samples...)},
	}
}

// Validate checks that the audio matches the declared shape.
func (ir *ImpulseResponse) Validate() error {
	m := ir.Metadata
	if m.Name == "" || m.SampleRate <= 0 || m.Channels < 1 || len(ir.Data) != m.Channels {
		return ErrInvalidIR
	}

	for _, ch := range ir.Data {
		if len(ch) != m.Length {
			return ErrInvalidIR
		}
	}

	return nil
}

// Waveform returns the first channel as a dsp.Waveform.
func (ir *ImpulseResponse) Waveform() *dsp.Waveform {
	w := &dsp.Waveform{SampleRate: int(ir.Metadata.SampleRate)}
	if len(ir.Data) > 0 {
		w.Samples = append([]int16(nil), ir.Data[0]...)
	}

	return w
}

// Duration returns the duration of the impulse response in seconds.
func (ir *ImpulseResponse) Duration() float64 {
	if ir.Metadata.SampleRate <= 0 {
		return 0
	}

	return float64(ir.Metadata.Length) / ir.Metadata.SampleRate
}

// IndexEntry lists an IR without loading its audio.
type IndexEntry struct {
	Offset     uint64
	SampleRate float64
	Channels   int
	Length     int
	Name       string
	Category   string
}

// Duration returns the duration of the indexed IR in seconds.
func (e *IndexEntry) Duration() float64 {
	if e.SampleRate <= 0 {
		return 0
	}

	return float64(e.Length) / e.SampleRate
}
