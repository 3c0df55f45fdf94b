// Package pipeline binds a capture source, a phasevoc.Analyser, a bounded
// frame queue, a phasevoc.Synthesiser, and a playback sink into the two
// cooperative tasks (capture, playback) that drive a real-time
// pitch-shifting stream. It owns the run/stop gate and the gain applied
// at playback time; the audio I/O itself is supplied by the caller.
package pipeline
