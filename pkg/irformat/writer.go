package irformat

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Writer streams IR chunks and finishes with the index.
type Writer struct {
	w       io.WriteSeeker
	count   uint32
	offsets []uint64
	metas   []Metadata
	pos     uint64
}

// NewWriter returns a Writer on w. Seeking is needed to patch the index
// offset into the header on Close.
func NewWriter(w io.WriteSeeker) *Writer {
	return &Writer{w: w}
}

// WriteHeader writes the file header announcing irCount entries.
func (w *Writer) WriteHeader(irCount int) error {
	w.count = uint32(irCount)

	var b chunkBuf
	b.raw(MagicNumber)
	b.u16(CurrentVersion)
	b.u32(w.count)
	b.u64(0) // index offset, patched by Close

	if _, err := w.w.Write(b); err != nil {
		return fmt.Errorf("irformat: write header: %w", err)
	}

	w.pos = FileHeaderSize

	return nil
}

// WriteIR appends one IR chunk.
func (w *Writer) WriteIR(ir *ImpulseResponse) error {
	if err := ir.Validate(); err != nil {
		return fmt.Errorf("%w: %q", err, ir.Metadata.Name)
	}

	if uint32(len(w.offsets)) >= w.count {
		return fmt.Errorf("%w: header announced %d IRs", ErrInvalidIndex, w.count)
	}

	meta := metaSubChunk(&ir.Metadata)
	audio := audioSubChunk(ir.Data)
	size := uint64(len(meta) + len(audio))

	var b chunkBuf
	b.raw(ChunkTypeIR)
	b.u64(size)
	b = append(b, meta...)
	b = append(b, audio...)

	if _, err := w.w.Write(b); err != nil {
		return fmt.Errorf("irformat: write IR %q: %w", ir.Metadata.Name, err)
	}

	w.offsets = append(w.offsets, w.pos)
	w.metas = append(w.metas, ir.Metadata)
	w.pos += ChunkHeaderSize + size

	return nil
}

// Close writes the index chunk and patches its offset into the header. It
// does not close the underlying writer.
func (w *Writer) Close() error {
	if uint32(len(w.offsets)) != w.count {
		return fmt.Errorf("%w: wrote %d of %d IRs", ErrInvalidIndex, len(w.offsets), w.count)
	}

	index := w.indexData()

	var b chunkBuf
	b.raw(ChunkTypeIndex)
	b.u64(uint64(len(index)))
	b = append(b, index...)

	if _, err := w.w.Write(b); err != nil {
		return fmt.Errorf("irformat: write index: %w", err)
	}

	if _, err := w.w.Seek(indexOffsetPos, io.SeekStart); err != nil {
		return fmt.Errorf("irformat: seek to index offset: %w", err)
	}

	if err := binary.Write(w.w, binary.LittleEndian, w.pos); err != nil {
		return fmt.Errorf("irformat: write index offset: %w", err)
	}

	_, err := w.w.Seek(0, io.SeekEnd)

	return err
}

func (w *Writer) indexData() []byte {
	var b chunkBuf
	for i, m := range w.metas {
		b.u64(w.offsets[i])
		b.f64(m.SampleRate)
		b.u32(uint32(m.Channels))
		b.u32(uint32(m.Length))
		b.str(m.Name)
		b.str(m.Category)
	}

	return b
}

func metaSubChunk(m *Metadata) []byte {
	var body chunkBuf
	body.f64(m.SampleRate)
	body.u32(uint32(m.Channels))
	body.u32(uint32(m.Length))
	body.str(m.Name)
	body.str(m.Description)
	body.str(m.Category)

	body.u16(uint16(len(m.Tags)))
	for _, tag := range m.Tags {
		body.str(tag)
	}

	p := m.Provenance
	body.str(p.Strategy)
	body.u32(uint32(p.Bands))
	body.u64(p.Seed)
	body.f64(p.Volume)
	body.str(p.Source)

	return subChunk(ChunkTypeMeta, body)
}

// audioSubChunk interleaves the channels as little-endian int16.
func audioSubChunk(data [][]int16) []byte {
	frames := 0
	if len(data) > 0 {
		frames = len(data[0])
	}

	body := make(chunkBuf, 0, 2*frames*len(data))
	for i := range frames {
		for _, ch := range data {
			body.u16(uint16(ch[i]))
		}
	}

	return subChunk(ChunkTypeAudio, body)
}

func subChunk(id string, body []byte) []byte {
	b := make(chunkBuf, 0, SubChunkHeaderSize+len(body))
	b.raw(id)
	b.u32(uint32(len(body)))

	return append(b, body...)
}

// WriteLibrary writes every IR of lib to w.
func WriteLibrary(w io.WriteSeeker, lib *Library) error {
	writer := NewWriter(w)

	if err := writer.WriteHeader(len(lib.IRs)); err != nil {
		return err
	}

	for _, ir := range lib.IRs {
		if err := writer.WriteIR(ir); err != nil {
			return err
		}
	}

	return writer.Close()
}

// chunkBuf accumulates little-endian fields.
type chunkBuf []byte

func (b *chunkBuf) raw(s string) { *b = append(*b, s...) }
func (b *chunkBuf) u16(v uint16) { *b = binary.LittleEndian.AppendUint16(*b, v) }
func (b *chunkBuf) u32(v uint32) { *b = binary.LittleEndian.AppendUint32(*b, v) }
func (b *chunkBuf) u64(v uint64) { *b = binary.LittleEndian.AppendUint64(*b, v) }
func (b *chunkBuf) f64(v float64) { b.u64(math.Float64bits(v)) }

// str writes a u16 length-prefixed string, truncated to 65535 bytes.
func (b *chunkBuf) str(s string) {
	if len(s) > math.MaxUint16 {
		s = s[:math.MaxUint16]
	}

	b.u16(uint16(len(s)))
	b.raw(s)
}
