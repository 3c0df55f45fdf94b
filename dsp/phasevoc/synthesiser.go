package phasevoc

import (
	"fmt"
	"math"

	"github.com/voxphase/phasevox/dsp/window"
	algofft "github.com/MeKo-Christian/algo-fft"
)

// Synthesiser reconstructs a time-domain signal from a stream of
// (possibly modified) spectral Frames using phase accumulation, inverse
// DFT, and overlap-add.
//
// A Synthesiser is constructed once per stream with (sampleRate, N, H)
// using the same constants as its paired Analyser; it mutates its
// internal buffers on every PullAudio call and is not safe for
// concurrent use.
type Synthesiser struct {
	sampleRate float64
	frameSize  int // N
	hopSize    int // H

	binHz                float64
	expectedPhaseAdvance float64
	oversample           float64

	outputBuf []float64    // exactly N reals, overlap-add accumulation buffer
	phaseAcc  []float64    // N/2 entries, running phase per bin
	spectrum  []complex128 // work buffer for the inverse transform
	timeFrame []complex128

	lastFrame Frame // most recently supplied frame, held across underruns

	plan *algofft.Plan[complex128]

	windowCoeffs []float64
}

// NewSynthesiser constructs a Synthesiser. Error conditions mirror
// NewAnalyser: frameSize must be a power of two, hopSize must satisfy
// 0 < hopSize < frameSize, and sampleRate must be positive and finite.
func NewSynthesiser(sampleRate float64, frameSize, hopSize int) (*Synthesiser, error) {
	s := &Synthesiser{
		sampleRate: sampleRate,
		frameSize:  frameSize,
		hopSize:    hopSize,
	}

	if err := s.rebuildState(); err != nil {
		return nil, err
	}

	s.lastFrame = EmptyFrame(frameSize / 2)

	return s, nil
}

// SampleRate returns the configured sample rate in Hz.
func (s *Synthesiser) SampleRate() float64 { return s.sampleRate }

// FrameSize returns N, the synthesis frame size in samples.
func (s *Synthesiser) FrameSize() int { return s.frameSize }

// StepSize returns H, the hop size in samples.
func (s *Synthesiser) StepSize() int { return s.hopSize }

// PullAudio writes exactly H time-domain samples into the first H
// positions of out. If frame is nil, the last frame supplied to a
// previous call is reused, holding pitch across a queue underrun; if no
// frame has ever been supplied, an empty (all-zero) frame is used.
//
// out must have length >= H; it is a contract violation otherwise.
func (s *Synthesiser) PullAudio(out []float64, frame *Frame) error {
	if len(out) < s.hopSize {
		return fmt.Errorf("%w: pull_audio requires an output slice of at least %d samples, got %d",
			ErrContractViolation, s.hopSize, len(out))
	}

	if frame != nil {
		s.lastFrame = *frame
	}

	half := s.frameSize / 2
	bins := s.lastFrame.Bins

	// 1. Per-bin phase reconstruction.
	for k := range half {
		var bin FrequencyBin
		if k < len(bins) {
			bin = bins[k]
		}

		deviation := (bin.Frequency - float64(k)*s.binHz) / s.binHz
		deltaPhi := 2 * math.Pi * deviation / s.oversample
		deltaPhi += float64(k) * s.expectedPhaseAdvance

		s.phaseAcc[k] += deltaPhi

		sinP, cosP := math.Sincos(s.phaseAcc[k])
		s.spectrum[k] = complex(bin.Amplitude*cosP, bin.Amplitude*sinP)
	}

	// 2. Spectrum zero-fill: the upper half is left at zero rather than
	// conjugate-mirrored. The resulting time-domain signal is complex;
	// only its real part is used below.
	for k := half; k < s.frameSize; k++ {
		s.spectrum[k] = 0
	}

	// 3. Inverse DFT.
	if err := s.plan.Inverse(s.timeFrame, s.spectrum); err != nil {
		return fmt.Errorf("phasevoc: synthesiser inverse FFT failed: %w", err)
	}

	// 4. Window and overlap-add.
	scale := 2.0 / (float64(half) * s.oversample)
	for k := range s.frameSize {
		s.outputBuf[k] += scale * s.windowCoeffs[k] * real(s.timeFrame[k])
	}

	// 5. Emit: drain the first H samples, shift the buffer left by H,
	// zero-fill the new tail.
	copy(out[:s.hopSize], s.outputBuf[:s.hopSize])
	copy(s.outputBuf, s.outputBuf[s.hopSize:])

	for k := s.frameSize - s.hopSize; k < s.frameSize; k++ {
		s.outputBuf[k] = 0
	}

	return nil
}

func (s *Synthesiser) rebuildState() error {
	if !isFinitePositive(s.sampleRate) {
		return fmt.Errorf("%w: %f", ErrInvalidSampleRate, s.sampleRate)
	}

	if !isPowerOfTwo(s.frameSize) {
		return fmt.Errorf("%w: %d", ErrInvalidFrameSize, s.frameSize)
	}

	if s.hopSize <= 0 || s.hopSize >= s.frameSize {
		return fmt.Errorf("%w: got H=%d, N=%d", ErrInvalidHopSize, s.hopSize, s.frameSize)
	}

	s.binHz = s.sampleRate / float64(s.frameSize)
	s.expectedPhaseAdvance = 2 * math.Pi * float64(s.hopSize) / float64(s.frameSize)
	s.oversample = float64(s.frameSize) / float64(s.hopSize)

	plan, err := algofft.NewPlan64(s.frameSize)
	if err != nil {
		return fmt.Errorf("phasevoc: synthesiser: failed to create FFT plan: %w", err)
	}

	s.plan = plan

	coeffs := window.Generate(s.frameSize, window.WithPeriodic())
	if len(coeffs) != s.frameSize {
		return fmt.Errorf("phasevoc: synthesiser: window generation failed for size %d", s.frameSize)
	}

	s.windowCoeffs = coeffs
	s.outputBuf = make([]float64, s.frameSize)
	s.phaseAcc = make([]float64, s.frameSize/2)
	s.spectrum = make([]complex128, s.frameSize)
	s.timeFrame = make([]complex128, s.frameSize)

	return nil
}
