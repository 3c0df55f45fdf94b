package phasevoc

import "errors"

var (
	// ErrInvalidFrameSize is returned when the requested frame size N is not
	// a power of two. A frame too small for the hop is reported as
	// ErrInvalidHopSize.
	ErrInvalidFrameSize = errors.New("phasevoc: frame size must be a power of two")

	// ErrInvalidHopSize is returned when the hop size H does not satisfy
	// 0 < H < N.
	ErrInvalidHopSize = errors.New("phasevoc: hop size must satisfy 0 < H < N")

	// ErrInvalidSampleRate is returned when the sample rate is not positive
	// and finite.
	ErrInvalidSampleRate = errors.New("phasevoc: sample rate must be positive and finite")

	// ErrContractViolation is returned when a caller passes a buffer of the
	// wrong length to FeedAudio or PullAudio. This is a programmer error,
	// not a runtime condition the engine is expected to recover from.
	ErrContractViolation = errors.New("phasevoc: contract violation")
)
