// Package phasevoc implements a streaming phase vocoder: an Analyser that
// turns a sliding window of time-domain samples into a spectral frame
// annotated with true instantaneous frequencies, and a Synthesiser that
// reconstructs a time-domain signal from (possibly modified) spectral
// frames using phase accumulation, inverse DFT, and overlap-add.
//
// Included types:
//   - Frame: an immutable-valued spectral snapshot of N/2 frequency bins.
//   - Analyser: time samples -> Frame.
//   - Synthesiser: Frame -> time samples.
package phasevoc
