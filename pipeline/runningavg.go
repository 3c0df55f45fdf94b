package pipeline

// runningAvg is a fixed-length sliding average, a direct port of the source
// pipeline's own running-average helper (voice.rs's RunningAvg.update): a
// sample is pushed, the oldest is evicted once the window reaches its target
// length, and the mean is always reported over the fixed length rather than
// the current (possibly-evicted) window size — so a window that has not yet
// filled divides by a divisor larger than its sample count.
type runningAvg struct {
	window []float64
	length int
}

func newRunningAvg(length int) *runningAvg {
	return &runningAvg{length: length}
}

// push adds a sample and returns the current windowed mean.
func (r *runningAvg) push(v float64) float64 {
	r.window = append(r.window, v)
	if len(r.window) >= r.length {
		r.window = r.window[1:]
	}

	sum := 0.0
	for _, x := range r.window {
		sum += x
	}

	return sum / float64(r.length)
}
