package dsp

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

func newTestRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, 0x5eed))
}

func TestNoiseValuesAndOrdering(t *testing.T) {
	t.Parallel()

	gen := NewNoiseGenerator(newTestRand(1))

	noise, err := gen.Generate(0.5, 44100, 50)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if len(noise) != int(0.5*44100) {
		t.Fatalf("length: got %d, want %d", len(noise), int(0.5*44100))
	}

	prev := -1
	nonZero := 0
	for i, v := range noise {
		if v != 0 && v != 1 && v != -1 {
			t.Fatalf("sample %d: got %v, want one of {-1, 0, 1}", i, v)
		}

		if v != 0 {
			if i <= prev {
				t.Fatalf("non-zero index %d not after %d", i, prev)
			}
			prev = i
			nonZero++
		}
	}

	if nonZero == 0 {
		t.Fatal("no pulses generated")
	}
}

func TestNoiseDensityGrowsOverTime(t *testing.T) {
	t.Parallel()

	// A large room keeps the arrival rate below the clamp for the first
	// windows, so the density must grow from one window to the next.
	gen := NewNoiseGenerator(newTestRand(7))
	const volume = 5000.0
	const rate = 44100.0

	noise, err := gen.Generate(0.3, rate, volume)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	count := func(from, to float64) int {
		n := 0
		for _, v := range noise[int(from*rate):int(to*rate)] {
			if v != 0 {
				n++
			}
		}
		return n
	}

	early := count(0.0, 0.05)
	late := count(0.1, 0.15)

	if late <= early {
		t.Errorf("pulse density did not grow: %d pulses early, %d late", early, late)
	}
}

func TestArrivalRateMonotoneUntilClamp(t *testing.T) {
	t.Parallel()

	gen := NewNoiseGenerator(nil)
	const volume = 50.0

	prev := 0.0
	clamped := false
	for i := 1; i <= 1000; i++ {
		tm := float64(i) * 1e-4
		mu := gen.ArrivalRate(tm, volume)

		if mu < prev {
			t.Fatalf("rate decreased at t=%v: %v < %v", tm, mu, prev)
		}

		if clamped && mu != gen.MaxArrivalRate {
			t.Fatalf("rate left the clamp at t=%v: %v", tm, mu)
		}

		if mu == gen.MaxArrivalRate {
			clamped = true
		}
		prev = mu
	}

	if !clamped {
		t.Error("rate never reached the clamp")
	}
}

func TestStartTime(t *testing.T) {
	t.Parallel()

	gen := NewNoiseGenerator(nil)
	const volume = 50.0

	t0 := gen.StartTime(volume)
	c3 := SpeedOfSound * SpeedOfSound * SpeedOfSound

	// 4πc³t0³/V = 2 ln 2
	if got := 4 * math.Pi * c3 * t0 * t0 * t0 / volume; math.Abs(got-2*math.Ln2) > 1e-9 {
		t.Errorf("t0=%v: 4πc³t0³/V = %v, want %v", t0, got, 2*math.Ln2)
	}

	want := math.Cbrt(2 * volume * math.Ln2 / (4 * math.Pi * c3))
	if math.Abs(t0-want) > 1e-15 {
		t.Errorf("StartTime: got %v, want %v", t0, want)
	}
}

func TestNoiseStartAfterEnd(t *testing.T) {
	t.Parallel()

	gen := NewNoiseGenerator(newTestRand(3))

	// t0 for a huge room lies far beyond 1 ms.
	noise, err := gen.Generate(0.001, 44100, 1e9)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	for i, v := range noise {
		if v != 0 {
			t.Fatalf("sample %d: got %v, want silence", i, v)
		}
	}
}

func TestNoiseDeterministicWithSeed(t *testing.T) {
	t.Parallel()

	a, err := NewNoiseGenerator(newTestRand(42)).Generate(0.01, 44100, 50)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	b, err := NewNoiseGenerator(newTestRand(42)).Generate(0.01, 44100, 50)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestNoiseInvalidParameters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name               string
		tEnd, rate, volume float64
		rng                *rand.Rand
	}{
		{"negative duration", -1, 44100, 50, newTestRand(1)},
		{"zero rate", 1, 0, 50, newTestRand(1)},
		{"zero volume", 1, 44100, 0, newTestRand(1)},
		{"no random source", 1, 44100, 50, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewNoiseGenerator(tc.rng).Generate(tc.tEnd, tc.rate, tc.volume)
			if !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("got %v, want ErrInvalidParameter", err)
			}
		})
	}
}

func TestNoiseLengthCoversEveryBin(t *testing.T) {
	t.Parallel()

	gen := NewNoiseGenerator(newTestRand(3))

	// bins*(1/44100)*44100 lands just below an integer for some counts,
	// starting at 357.
	for bins := 1; bins <= 5000; bins++ {
		noise, err := gen.Generate(float64(bins)*(1.0/44100), 44100, 50)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}

		if len(noise) != bins {
			t.Fatalf("%d bins: got %d samples", bins, len(noise))
		}
	}
}

func TestGenerateSamples(t *testing.T) {
	t.Parallel()

	noise, err := NewNoiseGenerator(newTestRand(4)).GenerateSamples(357, 44100, 50)
	if err != nil {
		t.Fatalf("GenerateSamples failed: %v", err)
	}

	if len(noise) != 357 {
		t.Fatalf("length: got %d, want 357", len(noise))
	}

	if _, err := NewNoiseGenerator(newTestRand(4)).GenerateSamples(-1, 44100, 50); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("negative length: got %v, want ErrInvalidParameter", err)
	}
}
