package phasevoc

import (
	"math"
	"testing"

	algofft "github.com/MeKo-Christian/algo-fft"

	"github.com/voxphase/phasevox/internal/testutil"
)

// dominantFrequency returns the frequency (Hz) of the highest-magnitude
// bin of signal's spectrum, used to check the engine's round-trip and
// pitch-shift invariants independently of Frame.BaseFreq.
func dominantFrequency(t *testing.T, signal []float64, sampleRate float64) float64 {
	t.Helper()

	n := len(signal)

	plan, err := algofft.NewPlan64(n)
	if err != nil {
		t.Fatalf("algofft.NewPlan64() error = %v", err)
	}

	in := make([]complex128, n)
	for i, v := range signal {
		in[i] = complex(v, 0)
	}

	out := make([]complex128, n)
	if err := plan.Forward(out, in); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}

	bestBin := 1
	bestMag := 0.0

	for k := 1; k < n/2; k++ {
		mag := math.Hypot(real(out[k]), imag(out[k]))
		if mag > bestMag {
			bestMag = mag
			bestBin = k
		}
	}

	return float64(bestBin) * sampleRate / float64(n)
}

// TestRoundTripIdentityPitch exercises spec scenario/property "Round-trip
// (identity pitch)": analysing then synthesising with no pitch
// modification reproduces the input's dominant frequency within ±1 bin,
// after skipping N samples of warm-up.
func TestRoundTripIdentityPitch(t *testing.T) {
	const (
		sampleRate = 48000.0
		frameSize  = 2048
		hopSize    = 256
		freq       = 1000.0
		hops       = 80
	)

	a, err := NewAnalyser(sampleRate, frameSize, hopSize)
	if err != nil {
		t.Fatalf("NewAnalyser() error = %v", err)
	}

	s, err := NewSynthesiser(sampleRate, frameSize, hopSize)
	if err != nil {
		t.Fatalf("NewSynthesiser() error = %v", err)
	}

	sine := testutil.DeterministicSine(freq, sampleRate, 0.8, hopSize*hops)
	output := make([]float64, 0, hopSize*hops)

	for hop := range hops {
		chunk := sine[hop*hopSize : (hop+1)*hopSize]

		frame, err := a.FeedAudio(chunk)
		if err != nil {
			t.Fatalf("FeedAudio() error = %v", err)
		}

		out := make([]float64, hopSize)
		if err := s.PullAudio(out, &frame); err != nil {
			t.Fatalf("PullAudio() error = %v", err)
		}

		output = append(output, out...)
	}

	warm := output[frameSize:]

	got := dominantFrequency(t, warm[:frameSize*4], sampleRate)
	binHz := sampleRate / frameSize

	if math.Abs(got-freq) > binHz {
		t.Fatalf("round-trip dominant frequency = %v, want within one bin (%v) of %v", got, binHz, freq)
	}
}

// TestPitchShiftLinearity exercises spec scenario 2 / the pitch-shift
// linearity property: pitch_shift(r) applied to every analysed frame
// before synthesis produces a dominant frequency of r*f within ±1 bin.
func TestPitchShiftLinearity(t *testing.T) {
	const (
		sampleRate = 48000.0
		frameSize  = 2048
		hopSize    = 256
		freq       = 1000.0
		ratio      = 2.0
		hops       = 80
	)

	a, err := NewAnalyser(sampleRate, frameSize, hopSize)
	if err != nil {
		t.Fatalf("NewAnalyser() error = %v", err)
	}

	s, err := NewSynthesiser(sampleRate, frameSize, hopSize)
	if err != nil {
		t.Fatalf("NewSynthesiser() error = %v", err)
	}

	sine := testutil.DeterministicSine(freq, sampleRate, 0.8, hopSize*hops)
	output := make([]float64, 0, hopSize*hops)

	for hop := range hops {
		chunk := sine[hop*hopSize : (hop+1)*hopSize]

		frame, err := a.FeedAudio(chunk)
		if err != nil {
			t.Fatalf("FeedAudio() error = %v", err)
		}

		shifted := frame.PitchShift(ratio)

		out := make([]float64, hopSize)
		if err := s.PullAudio(out, &shifted); err != nil {
			t.Fatalf("PullAudio() error = %v", err)
		}

		output = append(output, out...)
	}

	warm := output[frameSize:]

	got := dominantFrequency(t, warm[:frameSize*4], sampleRate)
	binHz := sampleRate / frameSize
	want := ratio * freq

	if math.Abs(got-want) > binHz {
		t.Fatalf("pitch-shifted dominant frequency = %v, want within one bin (%v) of %v", got, binHz, want)
	}
}

// TestDFTForwardInverseSmoke exercises spec scenario 4: N=4, input
// [5,3,2,1] matches [11+0i, 3+2i, 3+0i, 3-2i] within 1e-5, and the
// inverse of that recovers the original.
func TestDFTForwardInverseSmoke(t *testing.T) {
	plan, err := algofft.NewPlan64(4)
	if err != nil {
		t.Fatalf("algofft.NewPlan64() error = %v", err)
	}

	in := []complex128{5, 3, 2, 1}
	out := make([]complex128, 4)

	if err := plan.Forward(out, in); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}

	want := []complex128{11, 3 + 2i, 3, 3 - 2i}

	for k := range want {
		if math.Abs(real(out[k])-real(want[k])) > 1e-5 || math.Abs(imag(out[k])-imag(want[k])) > 1e-5 {
			t.Fatalf("bin %d: got %v, want %v", k, out[k], want[k])
		}
	}

	back := make([]complex128, 4)
	if err := plan.Inverse(back, out); err != nil {
		t.Fatalf("Inverse() error = %v", err)
	}

	for k := range in {
		if math.Abs(real(back[k])-real(in[k])) > 1e-5 || math.Abs(imag(back[k])) > 1e-5 {
			t.Fatalf("index %d: inverse recovered %v, want %v", k, back[k], in[k])
		}
	}
}
