package irformat

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// maxChunkSize bounds allocations driven by chunk headers.
const maxChunkSize = 1 << 31

// Reader gives indexed access to a library. Audio is loaded on demand.
type Reader struct {
	r           io.ReadSeeker
	version     uint16
	irCount     uint32
	indexOffset uint64
	index       []IndexEntry
}

// NewReader parses the header and index of r.
func NewReader(r io.ReadSeeker) (*Reader, error) {
	reader := &Reader{r: r}

	if err := reader.readHeader(); err != nil {
		return nil, err
	}

	if err := reader.readIndex(); err != nil {
		return nil, err
	}

	return reader, nil
}

func (r *Reader) readHeader() error {
	hdr := make([]byte, FileHeaderSize)
	if _, err := io.ReadFull(r.r, hdr); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}

	if string(hdr[:4]) != MagicNumber {
		return ErrInvalidMagic
	}

	f := fields{b: hdr[4:]}
	r.version = f.u16()
	r.irCount = f.u32()
	r.indexOffset = f.u64()

	if r.version != CurrentVersion {
		return fmt.Errorf("%w: got version %d, expected %d", ErrUnsupportedVersion, r.version, CurrentVersion)
	}

	return nil
}

func (r *Reader) readIndex() error {
	if _, err := r.r.Seek(int64(r.indexOffset), io.SeekStart); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}

	body, err := r.readChunk(ChunkTypeIndex)
	if err != nil {
		return err
	}

	f := fields{b: body}
	r.index = make([]IndexEntry, 0, min(r.irCount, 1024))

	for range r.irCount {
		e := IndexEntry{
			Offset:     f.u64(),
			SampleRate: f.f64(),
			Channels:   int(f.u32()),
			Length:     int(f.u32()),
			Name:       f.str(),
			Category:   f.str(),
		}

		if f.err != nil {
			return fmt.Errorf("%w: index entry %d", ErrCorruptedData, len(r.index))
		}

		r.index = append(r.index, e)
	}

	return nil
}

// readChunk reads a top-level chunk header and body at the current position.
func (r *Reader) readChunk(want string) ([]byte, error) {
	hdr := make([]byte, ChunkHeaderSize)
	if _, err := io.ReadFull(r.r, hdr); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}

	if id := string(hdr[:4]); id != want {
		return nil, fmt.Errorf("%w: expected %q chunk, got %q", ErrInvalidChunk, want, id)
	}

	size := binary.LittleEndian.Uint64(hdr[4:])
	if size > maxChunkSize {
		return nil, fmt.Errorf("%w: %q chunk of %d bytes", ErrCorruptedData, want, size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r.r, body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}

	return body, nil
}

// Version returns the format version of the library.
func (r *Reader) Version() uint16 {
	return r.version
}

// IRCount returns the number of IRs in the library.
func (r *Reader) IRCount() int {
	return int(r.irCount)
}

// ListIRs returns a copy of the index.
func (r *Reader) ListIRs() []IndexEntry {
	return append([]IndexEntry(nil), r.index...)
}

// LoadIR loads the IR at position index.
func (r *Reader) LoadIR(index int) (*ImpulseResponse, error) {
	if index < 0 || index >= len(r.index) {
		return nil, ErrInvalidIndex
	}

	if _, err := r.r.Seek(int64(r.index[index].Offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}

	body, err := r.readChunk(ChunkTypeIR)
	if err != nil {
		return nil, err
	}

	return decodeIR(body)
}

// LoadIRByName loads the first IR called name.
func (r *Reader) LoadIRByName(name string) (*ImpulseResponse, error) {
	for i, entry := range r.index {
		if entry.Name == name {
			return r.LoadIR(i)
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrIRNotFound, name)
}

func decodeIR(body []byte) (*ImpulseResponse, error) {
	f := fields{b: body}
	ir := &ImpulseResponse{}

	meta, err := f.sub(ChunkTypeMeta)
	if err != nil {
		return nil, err
	}

	if err := decodeMeta(meta, &ir.Metadata); err != nil {
		return nil, err
	}

	audio, err := f.sub(ChunkTypeAudio)
	if err != nil {
		return nil, err
	}

	m := ir.Metadata
	if m.Channels < 1 || len(audio)%(2*m.Channels) != 0 || len(audio)/(2*m.Channels) != m.Length {
		return nil, fmt.Errorf("%w: %d audio bytes for %d×%d samples", ErrCorruptedData, len(audio), m.Channels, m.Length)
	}

	ir.Data = make([][]int16, m.Channels)
	for c := range ir.Data {
		ir.Data[c] = make([]int16, m.Length)
	}

	for i := range m.Length {
		for c := range m.Channels {
			off := 2 * (i*m.Channels + c)
			ir.Data[c][i] = int16(binary.LittleEndian.Uint16(audio[off:]))
		}
	}

	return ir, nil
}

func decodeMeta(body []byte, m *Metadata) error {
	f := fields{b: body}

	m.SampleRate = f.f64()
	m.Channels = int(f.u32())
	m.Length = int(f.u32())
	m.Name = f.str()
	m.Description = f.str()
	m.Category = f.str()

	if n := int(f.u16()); n > 0 && f.err == nil {
		m.Tags = make([]string, 0, min(n, len(f.b)/2))
		for range n {
			m.Tags = append(m.Tags, f.str())
		}
	}

	m.Provenance = Provenance{
		Strategy: f.str(),
		Bands:    int(f.u32()),
		Seed:     f.u64(),
		Volume:   f.f64(),
		Source:   f.str(),
	}

	if f.err != nil {
		return fmt.Errorf("%w: metadata of %q", f.err, m.Name)
	}

	return nil
}

// ReadLibrary loads every IR of r.
func ReadLibrary(r io.ReadSeeker) (*Library, error) {
	reader, err := NewReader(r)
	if err != nil {
		return nil, err
	}

	lib := &Library{Version: reader.version, IRs: make([]*ImpulseResponse, 0, len(reader.index))}

	for i := range reader.index {
		ir, err := reader.LoadIR(i)
		if err != nil {
			return nil, fmt.Errorf("irformat: load IR %d: %w", i, err)
		}

		lib.IRs = append(lib.IRs, ir)
	}

	return lib, nil
}

// fields decodes little-endian values from b. The first short read sets err
// and every later read returns zero values.
type fields struct {
	b   []byte
	err error
}

func (f *fields) take(n int) []byte {
	if f.err != nil || len(f.b) < n {
		f.err = ErrCorruptedData
		return make([]byte, min(n, 8))
	}

	out := f.b[:n]
	f.b = f.b[n:]

	return out
}

func (f *fields) u16() uint16 { return binary.LittleEndian.Uint16(f.take(2)) }
func (f *fields) u32() uint32 { return binary.LittleEndian.Uint32(f.take(4)) }
func (f *fields) u64() uint64 { return binary.LittleEndian.Uint64(f.take(8)) }
func (f *fields) f64() float64 { return math.Float64frombits(f.u64()) }

func (f *fields) str() string {
	n := int(f.u16())
	if f.err != nil {
		return ""
	}

	return string(f.take(n))
}

// sub reads a sub-chunk header with the given id and returns its body.
func (f *fields) sub(id string) ([]byte, error) {
	got := string(f.take(4))
	size := int(f.u32())

	if f.err != nil {
		return nil, f.err
	}

	if got != id {
		return nil, fmt.Errorf("%w: expected %q sub-chunk, got %q", ErrInvalidChunk, id, got)
	}

	body := f.take(size)
	if f.err != nil {
		return nil, f.err
	}

	return body, nil
}
