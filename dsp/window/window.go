// Package window generates analysis/synthesis window coefficients.
package window

import "math"

// Option configures window generation.
type Option func(*config)

type config struct {
	periodic bool
}

// WithPeriodic selects the periodic form (used for FFT framing) instead of
// the symmetric form (used for FIR filter design).
func WithPeriodic() Option {
	return func(c *config) {
		c.periodic = true
	}
}

// Generate returns Hann window coefficients of the given length.
//
// The symmetric form divides by length-1 so the first and last samples are
// both exactly zero; the periodic form (WithPeriodic) divides by length so
// the implied length+1'th sample, not present in the output, would be zero.
// Analyser and Synthesiser both use the periodic form, matching their
// overlap-add framing.
func Generate(length int, opts ...Option) []float64 {
	if length <= 0 {
		return nil
	}

	var cfg config

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	out := make([]float64, length)
	for i := range out {
		out[i] = 0.5 * (1 - math.Cos(2*math.Pi*samplePosition(i, length, cfg.periodic)))
	}

	return out
}

func samplePosition(n, size int, periodic bool) float64 {
	if size <= 1 {
		return 0
	}

	den := float64(size - 1)
	if periodic {
		den = float64(size)
	}

	return float64(n) / den
}
