// Package notefreq maps frequencies to musical note names. It is pure: no
// state, no I/O, no dependency on the analysis/synthesis engine in
// dsp/phasevoc beyond sharing the same frequency-domain vocabulary.
package notefreq

import (
	"fmt"
	"math"
)

// noteNames is indexed by note value mod 12, with 0 = A (concert pitch
// class), matching the source's naming convention rather than the more
// common C-relative convention.
var noteNames = [12]string{"A", "A#", "B", "C", "C#", "D", "D#", "E", "F", "F#", "G", "G#"}

// FrequencyToSemitone converts a frequency in Hz to a real-valued semitone
// offset from A4 (440 Hz).
func FrequencyToSemitone(f float64) float64 {
	return 12 * math.Log2(f/440)
}

// SemitoneToFrequency is the inverse of FrequencyToSemitone.
func SemitoneToFrequency(semitone float64) float64 {
	return 440 * math.Pow(2, semitone/12)
}

// Note is an integer semitone offset from A4.
type Note int16

// NearestNote rounds semitone to the nearest integer semitone and returns
// it alongside a residual.
//
// The residual is semitone / round(semitone) — a ratio, not a difference.
// This is deliberate: it mirrors the source's own computation, and
// callers that expect "cents" (an offset) must account for that. When
// round(semitone) is 0 (semitone within (-0.5, 0.5), i.e. concert A), the
// residual divides by zero; Go's normal signed-zero float semantics
// apply rather than a special-cased clamp: math.Round preserves the
// operand's sign on an exact-zero result, so a nonzero semitone in that
// range divides by a zero of the same sign and yields +Inf either way,
// and a semitone of exactly 0 yields NaN (0/0).
func NearestNote(semitone float64) (Note, float64) {
	rounded := math.Round(semitone)
	residual := semitone / rounded

	return Note(int16(rounded)), residual
}

// Value returns the note's integer semitone offset from A4.
func (n Note) Value() int16 { return int16(n) }

// Name returns the note's pitch class name (e.g. "A", "C#"), indexed by
// note mod 12 using the A-relative naming convention.
func (n Note) Name() string {
	idx := int(n) % 12
	if idx < 0 {
		idx += 12
	}

	return noteNames[idx]
}

// Octave returns the note's octave number. Octave 4 contains A4 (note 0).
func (n Note) Octave() int {
	return int(math.Floor(float64(n)/12)) + 4
}

// String formats the note as "<name><octave>", e.g. "A4", "C#5".
func (n Note) String() string {
	return fmt.Sprintf("%s%d", n.Name(), n.Octave())
}
