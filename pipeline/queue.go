package pipeline

import (
	"sync"

	"github.com/voxphase/phasevox/dsp/phasevoc"
)

// frameQueue is a bounded FIFO of phasevoc.Frame values shared by the
// capture and playback tasks. Push drops the newest frame once the queue
// exceeds highWater (so depth can reach highWater+1), implementing the
// back-pressure policy of drop-newest on overflow; Pop never blocks and
// returns ok=false on an empty queue.
//
// The spec's concurrency model assumes a single-threaded cooperative
// scheduler, where the two tasks never run simultaneously and the queue
// needs no lock. Go's runtime is preemptive, so a mutex guards the slice;
// contention is negligible since each critical section is O(1).
type frameQueue struct {
	mu        sync.Mutex
	frames    []phasevoc.Frame
	highWater int
}

func newFrameQueue(highWater int) *frameQueue {
	return &frameQueue{highWater: highWater}
}

// push appends a frame, dropping it instead if the queue already exceeds the
// high-water mark, matching the source's "process while depth <= highWater"
// gate — the queue can reach highWater+1 before a push is rejected. It
// reports whether the frame was enqueued.
func (q *frameQueue) push(f phasevoc.Frame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.frames) > q.highWater {
		return false
	}

	q.frames = append(q.frames, f)

	return true
}

// pop removes and returns the oldest frame, if any.
func (q *frameQueue) pop() (phasevoc.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.frames) == 0 {
		return phasevoc.Frame{}, false
	}

	f := q.frames[0]
	q.frames[0] = phasevoc.Frame{}
	q.frames = q.frames[1:]

	return f, true
}

// len returns the current queue depth.
func (q *frameQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.frames)
}
