package phasevoc

import (
	"fmt"
	"math"

	"github.com/voxphase/phasevox/dsp/window"
	algofft "github.com/MeKo-Christian/algo-fft"
)

// Analyser turns a stream of time-domain samples into a stream of spectral
// Frames using a Hann-windowed DFT and phase-advance frequency estimation.
//
// An Analyser is constructed once per stream with (sampleRate, N, H); it
// mutates its internal buffers on every FeedAudio call and is not safe for
// concurrent use.
type Analyser struct {
	sampleRate float64
	frameSize  int // N
	hopSize    int // H

	binHz                float64
	expectedPhaseAdvance float64 // 2*pi*H/N, multiplied per-bin by k
	oversample           float64 // N/H

	sampleBuf []float64    // exactly N real samples, sliding FIFO
	prevPhase []float64    // N entries; stores the previous frame's phase delta
	spectrum  []complex128 // work buffer for the forward transform

	plan *algofft.Plan[complex128]

	windowCoeffs []float64
}

// NewAnalyser constructs an Analyser. It errs if frameSize is not a power
// of two, or hopSize does not satisfy 0 < hopSize < frameSize, or
// sampleRate is not positive and finite.
func NewAnalyser(sampleRate float64, frameSize, hopSize int) (*Analyser, error) {
	a := &Analyser{
		sampleRate: sampleRate,
		frameSize:  frameSize,
		hopSize:    hopSize,
	}

	if err := a.rebuildState(); err != nil {
		return nil, err
	}

	return a, nil
}

// SampleRate returns the configured sample rate in Hz.
func (a *Analyser) SampleRate() float64 { return a.sampleRate }

// FrameSize returns N, the analysis frame size in samples.
func (a *Analyser) FrameSize() int { return a.frameSize }

// StepSize returns H, the hop size in samples.
func (a *Analyser) StepSize() int { return a.hopSize }

// FeedAudio consumes exactly H real samples, shifts them into the sliding
// analysis window, and returns the resulting spectral Frame of N/2 bins.
//
// Calling FeedAudio with a slice of any other length is a contract
// violation: the caller has a programmer error, not a recoverable runtime
// condition, so this returns ErrContractViolation rather than silently
// truncating or padding.
func (a *Analyser) FeedAudio(samples []float64) (Frame, error) {
	if len(samples) != a.hopSize {
		return Frame{}, fmt.Errorf("%w: feed_audio expects exactly %d samples, got %d",
			ErrContractViolation, a.hopSize, len(samples))
	}

	// 1. Shift-in: drop the oldest H samples, append the new H.
	copy(a.sampleBuf, a.sampleBuf[a.hopSize:])
	copy(a.sampleBuf[a.frameSize-a.hopSize:], samples)

	// 2. Window: multiply by the Hann window, producing complex values
	// with zero imaginary part.
	for k := range a.frameSize {
		a.spectrum[k] = complex(a.sampleBuf[k]*a.windowCoeffs[k], 0)
	}

	// 3. Transform.
	if err := a.plan.Forward(a.spectrum, a.spectrum); err != nil {
		return Frame{}, fmt.Errorf("phasevoc: analyser forward FFT failed: %w", err)
	}

	half := a.frameSize / 2
	frame := Frame{Bins: make([]FrequencyBin, half)}

	// 4. Instantaneous frequency per bin.
	for k := range half {
		re := real(a.spectrum[k])
		im := imag(a.spectrum[k])
		amp := math.Hypot(re, im)
		phase := math.Atan2(im, re)

		deltaPhi := phase - a.prevPhase[k]
		a.prevPhase[k] = deltaPhi

		deltaPhi -= float64(k) * a.expectedPhaseAdvance
		deltaPhi = wrapVocoderPhase(deltaPhi)

		deviation := a.oversample * deltaPhi / (2 * math.Pi)
		freq := (float64(k) + deviation) * a.binHz

		frame.Bins[k] = FrequencyBin{Amplitude: amp, Frequency: freq}
	}

	return frame, nil
}

func (a *Analyser) rebuildState() error {
	if !isFinitePositive(a.sampleRate) {
		return fmt.Errorf("%w: %f", ErrInvalidSampleRate, a.sampleRate)
	}

	if !isPowerOfTwo(a.frameSize) {
		return fmt.Errorf("%w: %d", ErrInvalidFrameSize, a.frameSize)
	}

	if a.hopSize <= 0 || a.hopSize >= a.frameSize {
		return fmt.Errorf("%w: got H=%d, N=%d", ErrInvalidHopSize, a.hopSize, a.frameSize)
	}

	a.binHz = a.sampleRate / float64(a.frameSize)
	a.expectedPhaseAdvance = 2 * math.Pi * float64(a.hopSize) / float64(a.frameSize)
	a.oversample = float64(a.frameSize) / float64(a.hopSize)

	plan, err := algofft.NewPlan64(a.frameSize)
	if err != nil {
		return fmt.Errorf("phasevoc: analyser: failed to create FFT plan: %w", err)
	}

	a.plan = plan

	coeffs := window.Generate(a.frameSize, window.WithPeriodic())
	if len(coeffs) != a.frameSize {
		return fmt.Errorf("phasevoc: analyser: window generation failed for size %d", a.frameSize)
	}

	a.windowCoeffs = coeffs
	a.sampleBuf = make([]float64, a.frameSize)
	a.prevPhase = make([]float64, a.frameSize)
	a.spectrum = make([]complex128, a.frameSize)

	return nil
}

// wrapVocoderPhase wraps x into [-pi, pi] using the vocoder-specific
// policy: let n = floor(|x|/pi); subtract n*pi (with the sign of x) and
// clamp the residual strictly to [-pi, pi]. This retains multiples of pi
// rather than wrapping modulo 2*pi, and the Synthesiser's phase
// reconstruction assumes it.
func wrapVocoderPhase(x float64) float64 {
	n := math.Floor(math.Abs(x) / math.Pi)
	if x >= 0 {
		x -= n * math.Pi
	} else {
		x += n * math.Pi
	}

	return clampPhase(x)
}

func clampPhase(x float64) float64 {
	switch {
	case x < -math.Pi:
		return -math.Pi
	case x > math.Pi:
		return math.Pi
	default:
		return x
	}
}

func isPowerOfTwo(v int) bool {
	return v > 0 && v&(v-1) == 0
}

func isFinitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
