package pipeline

import (
	"errors"
	"math"
	"testing"

	"github.com/voxphase/phasevox/dsp/phasevoc"
	"github.com/voxphase/phasevox/internal/testutil"
)

func testConfig() Config {
	return Config{
		SampleRate: 48000,
		FrameSize:  1024,
		HopSize:    256,
		PitchRatio: func() float64 { return 1.0 },
		Volume:     func() float64 { return 100.0 },
	}
}

func TestNewInvalidFrameSize(t *testing.T) {
	cfg := testConfig()
	cfg.FrameSize = 1000

	if _, err := New(cfg); !errors.Is(err, phasevoc.ErrInvalidFrameSize) {
		t.Fatalf("New() error = %v, want ErrInvalidFrameSize", err)
	}
}

func TestStartStopRunGate(t *testing.T) {
	p, err := New(testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if p.Running() {
		t.Fatalf("new Pipeline should not be running")
	}

	p.Start()

	if !p.Running() {
		t.Fatalf("Running() = false after Start()")
	}

	p.Stop()

	if p.Running() {
		t.Fatalf("Running() = true after Stop()")
	}
}

// TestFeedCaptureDrainsWithoutProcessingWhenStopped verifies that capture
// input is silently dropped while the run gate is clear, and no frames
// are enqueued.
func TestFeedCaptureDrainsWithoutProcessingWhenStopped(t *testing.T) {
	p, err := New(testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	block := testutil.DeterministicSine(1000, 48000, 0.5, 4096)

	if err := p.FeedCapture(block); err != nil {
		t.Fatalf("FeedCapture() error = %v", err)
	}

	if p.queue.len() != 0 {
		t.Fatalf("queue.len() = %d, want 0 while stopped", p.queue.len())
	}
}

// TestBackPressureHighWaterMark exercises spec's back-pressure property:
// if the capture task produces 2000 frames before the consumer starts,
// the queue length never exceeds the documented high-water mark.
func TestBackPressureHighWaterMark(t *testing.T) {
	cfg := testConfig()
	cfg.QueueHighWater = 1000

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	p.Start()

	samples := make([]float64, cfg.HopSize)
	for i := range samples {
		samples[i] = 0.1
	}

	for range 2000 {
		if err := p.FeedCapture(samples); err != nil {
			t.Fatalf("FeedCapture() error = %v", err)
		}

		if p.queue.len() > cfg.QueueHighWater {
			t.Fatalf("queue.len() = %d, exceeds high-water mark %d", p.queue.len(), cfg.QueueHighWater)
		}
	}

	if p.queue.len() > cfg.QueueHighWater {
		t.Fatalf("final queue.len() = %d, exceeds high-water mark %d", p.queue.len(), cfg.QueueHighWater)
	}
}

// TestStopHoldsLastFrameDuringPlayback exercises spec scenario 5: stopping
// the pipeline does not silence playback; the last frame is held, and
// resuming lets new frames flow again.
func TestStopHoldsLastFrameDuringPlayback(t *testing.T) {
	cfg := testConfig()

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	p.Start()

	sine := testutil.DeterministicSine(1000, cfg.SampleRate, 0.8, cfg.HopSize*4)
	if err := p.FeedCapture(sine); err != nil {
		t.Fatalf("FeedCapture() error = %v", err)
	}

	p.Stop()

	out := make([]float64, cfg.HopSize)

	// Drain whatever was queued, then keep pulling: the synthesiser must
	// keep producing the held frame's tone, not silence, because the run
	// gate only gates capture.
	for range 8 {
		if err := p.PullPlayback(out); err != nil {
			t.Fatalf("PullPlayback() error = %v", err)
		}
	}

	anyNonZero := false

	for _, v := range out {
		if v != 0 {
			anyNonZero = true
			break
		}
	}

	if !anyNonZero {
		t.Fatalf("PullPlayback() after Stop() produced silence, want the held frame's tone")
	}
}

// TestQueueLowWaterEmitsSilence exercises the consumer-side back-pressure
// policy: once the queue (after popping) still exceeds its low-water
// mark, the playback cycle emits silence rather than draining further.
func TestQueueLowWaterEmitsSilence(t *testing.T) {
	cfg := testConfig()
	cfg.QueueLowWater = 2

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	frame := phasevoc.Frame{Bins: make([]phasevoc.FrequencyBin, cfg.FrameSize/2)}
	frame.Bins[10] = phasevoc.FrequencyBin{Amplitude: 1, Frequency: 10 * cfg.SampleRate / cfg.FrameSize}

	for range 5 {
		p.queue.push(frame)
	}

	out := make([]float64, cfg.HopSize)
	if err := p.PullPlayback(out); err != nil {
		t.Fatalf("PullPlayback() error = %v", err)
	}

	for i, v := range out {
		if v != 0 {
			t.Fatalf("index %d: got %v, want 0 (queue above low-water mark)", i, v)
		}
	}
}

type fakeLabels struct {
	values map[string]string
}

func (f *fakeLabels) SetText(name, value string) {
	if f.values == nil {
		f.values = make(map[string]string)
	}

	f.values[name] = value
}

func TestLabelsUpdatedEveryNFrames(t *testing.T) {
	cfg := testConfig()
	cfg.LabelUpdateEvery = 4

	labels := &fakeLabels{}
	cfg.Labels = labels

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	p.Start()

	sine := testutil.DeterministicSine(1000, cfg.SampleRate, 0.8, cfg.HopSize*4)
	if err := p.FeedCapture(sine); err != nil {
		t.Fatalf("FeedCapture() error = %v", err)
	}

	if labels.values["note_name"] == "" {
		t.Fatalf("note_name label was never set after 4 hops with LabelUpdateEvery=4")
	}

	if labels.values["frequency"] == "" {
		t.Fatalf("frequency label was never set after 4 hops with LabelUpdateEvery=4")
	}
}

func TestGainFormula(t *testing.T) {
	cfg := testConfig()

	volume := 0.0
	cfg.Volume = func() float64 { return volume }

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	frame := phasevoc.Frame{Bins: make([]phasevoc.FrequencyBin, cfg.FrameSize/2)}
	frame.Bins[10] = phasevoc.FrequencyBin{Amplitude: 1, Frequency: 10 * cfg.SampleRate / cfg.FrameSize}
	p.queue.push(frame)

	out := make([]float64, cfg.HopSize)
	if err := p.PullPlayback(out); err != nil {
		t.Fatalf("PullPlayback() error = %v", err)
	}

	for i, v := range out {
		if math.Abs(v) > 1e-9 {
			t.Fatalf("index %d: got %v at volume=0, want ~0 (silence)", i, v)
		}
	}
}
