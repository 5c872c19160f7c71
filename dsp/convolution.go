package dsp

import (
	"fmt"

	"github.com/MeKo-Christian/algo-fft"
)

// DefaultBlockSize is the input block length used by Convolve.
const DefaultBlockSize = 4096

// OverlapAddEngine performs FFT-based block convolution with a fixed impulse
// response using overlap-add.
type OverlapAddEngine struct {
	fftSize   int
	blockSize int
	irLen     int

	plan  *algofft.Plan[complex64]
	irFFT []complex64

	// tail accumulates the convolution output not yet emitted
	tail []float64
	buf  []complex64
}

// NewOverlapAddEngine creates an engine for the given impulse response that
// accepts input blocks of up to blockSize samples.
func NewOverlapAddEngine(ir []float64, blockSize int) (*OverlapAddEngine, error) {
	if len(ir) == 0 {
		return nil, fmt.Errorf("%w: impulse response is empty", ErrInvalidParameter)
	}

	if blockSize <= 0 {
		return nil, fmt.Errorf("%w: block size %d", ErrInvalidParameter, blockSize)
	}

	fftSize := nextPowerOf2(blockSize + len(ir) - 1)

	plan, err := algofft.NewPlan32(fftSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create FFT plan: %w", err)
	}

	e := &OverlapAddEngine{
		fftSize:   fftSize,
		blockSize: blockSize,
		irLen:     len(ir),
		plan:      plan,
		irFFT:     make([]complex64, fftSize),
		tail:      make([]float64, fftSize),
		buf:       make([]complex64, fftSize),
	}

	for i, v := range ir {
		e.buf[i] = complex(float32(v), 0)
	}

	if err := plan.Forward(e.irFFT, e.buf); err != nil {
		return nil, fmt.Errorf("failed to compute IR FFT: %w", err)
	}

	return e, nil
}

// ProcessBlock convolves one input block and returns len(input) output
// samples. The remainder of the convolution is carried into the next call.
func (e *OverlapAddEngine) ProcessBlock(input []float64) ([]float64, error) {
	if len(input) > e.blockSize {
		return nil, fmt.Errorf("%w: input block size %d exceeds engine block size %d",
			ErrInvalidParameter, len(input), e.blockSize)
	}

	for i := range e.buf {
		if i < len(input) {
			e.buf[i] = complex(float32(input[i]), 0)
		} else {
			e.buf[i] = 0
		}
	}

	if err := e.plan.Forward(e.buf, e.buf); err != nil {
		return nil, fmt.Errorf("forward FFT failed: %w", err)
	}

	for i := range e.buf {
		e.buf[i] *= e.irFFT[i]
	}

	// algo-fft scales the inverse by 1/N
	if err := e.plan.Inverse(e.buf, e.buf); err != nil {
		return nil, fmt.Errorf("inverse FFT failed: %w", err)
	}

	for i := range len(input) + e.irLen - 1 {
		e.tail[i] += float64(real(e.buf[i]))
	}

	return e.emit(len(input)), nil
}

// Flush returns the irLen-1 samples still held after the last block.
func (e *OverlapAddEngine) Flush() []float64 {
	return e.emit(e.irLen - 1)
}

func (e *OverlapAddEngine) emit(n int) []float64 {
	out := make([]float64, n)
	copy(out, e.tail[:n])

	copy(e.tail, e.tail[n:])
	clear(e.tail[len(e.tail)-n:])

	return out
}

// Convolve returns the full linear convolution of signal with ir, of length
// len(signal)+len(ir)-1.
func Convolve(signal, ir []float64) ([]float64, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("%w: signal is empty", ErrInvalidParameter)
	}

	engine, err := NewOverlapAddEngine(ir, min(DefaultBlockSize, len(signal)))
	if err != nil {
		return nil, err
	}

	out := make([]float64, 0, len(signal)+len(ir)-1)

	for start := 0; start < len(signal); start += engine.blockSize {
		end := min(start+engine.blockSize, len(signal))

		block, err := engine.ProcessBlock(signal[start:end])
		if err != nil {
			return nil, err
		}

		out = append(out, block...)
	}

	return append(out, engine.Flush()...), nil
}

// Mix blends a dry and a wet signal. Levels are clamped to [0, 1]; the result
// has the length of the longer input.
func Mix(dry, wet []float64, dryLevel, wetLevel float64) []float64 {
	dryLevel = clamp01(dryLevel)
	wetLevel = clamp01(wetLevel)

	out := make([]float64, max(len(dry), len(wet)))
	for i := range out {
		if i < len(dry) {
			out[i] += dry[i] * dryLevel
		}
		if i < len(wet) {
			out[i] += wet[i] * wetLevel
		}
	}

	return out
}

func clamp01(v float64) float64 {
	if v < 0.0 {
		return 0.0
	}
	if v > 1.0 {
		return 1.0
	}

	return v
}

// nextPowerOf2 returns the next power of 2 >= n
func nextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p *= 2
	}
	return p
}
