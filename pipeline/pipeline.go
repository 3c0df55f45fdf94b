package pipeline

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/voxphase/phasevox/dsp/core"
	"github.com/voxphase/phasevox/dsp/notefreq"
	"github.com/voxphase/phasevox/dsp/phasevoc"
)

// gainBase is the per-volume-unit exponential gain factor: gain =
// gainBase^volume - 1.0, volume in [0, 100]. gainBase is 11^(1/100), so
// volume=0 yields silence and volume=100 yields a gain of 10.
// Preserve the constant exactly; it is not a tunable.
const gainBase = 1.0242687596005495

const defaultQueueHighWater = 1000
const defaultQueueLowWater = 10
const defaultLabelUpdateEvery = 20
const defaultRunningAvgLength = 20

// CaptureSource supplies blocks of real-valued mono samples, e.g. from a
// microphone. Read may return fewer samples than len(buf).
type CaptureSource interface {
	Read(buf []float64) (n int, err error)
}

// PlaybackSink consumes blocks of real-valued mono samples, e.g. to a
// speaker.
type PlaybackSink interface {
	Write(buf []float64) error
}

// LabelSink receives the textual note-name and frequency labels the
// pipeline updates roughly every LabelUpdateEvery frames.
type LabelSink interface {
	SetText(name, value string)
}

// PitchRatioFunc returns the currently requested pitch ratio, sampled
// once per analysis frame. Callers are expected to clamp to [0.5, 2.0]
// upstream; the pipeline re-clamps defensively.
type PitchRatioFunc func() float64

// VolumeFunc returns the currently requested output volume in [0, 100],
// sampled once per output block.
type VolumeFunc func() float64

// Config configures a Pipeline.
type Config struct {
	SampleRate float64
	FrameSize  int
	HopSize    int

	PitchRatio PitchRatioFunc
	Volume     VolumeFunc
	Labels     LabelSink

	// QueueHighWater is the producer-side back-pressure limit: frames are
	// dropped once the queue reaches this depth. Zero uses the default
	// of 1000, matching the source pipeline.
	QueueHighWater int

	// QueueLowWater is the consumer-side threshold: once the queue
	// (after popping) still exceeds this depth, the playback cycle
	// emits silence instead of synthesising, letting the queue drain.
	// Zero uses the default of 10.
	QueueLowWater int

	// LabelUpdateEvery controls how often (in analysis frames) the note
	// name and frequency labels are refreshed. Zero uses the default of
	// 20.
	LabelUpdateEvery int

	// Metrics, if non-nil, receives frame-queue depth and drop/hold
	// counts. Optional; the pipeline is fully functional without it.
	Metrics *Metrics

	// Logger, if non-nil, receives diagnostic messages (queue drops,
	// start/stop transitions). The DSP engine itself never logs;
	// this is purely pipeline-level observability.
	Logger Logger
}

// Logger is the minimal structured-logging surface the pipeline needs.
// github.com/charmbracelet/log's *log.Logger satisfies it.
type Logger interface {
	Debug(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
}

// Option mutates a Config during construction.
type Option func(*Config)

// WithQueueWaterMarks overrides the default producer/consumer
// back-pressure thresholds.
func WithQueueWaterMarks(high, low int) Option {
	return func(cfg *Config) {
		cfg.QueueHighWater = high
		cfg.QueueLowWater = low
	}
}

// WithLabels sets the label sink that receives note-name and frequency
// updates.
func WithLabels(l LabelSink) Option {
	return func(cfg *Config) { cfg.Labels = l }
}

// WithMetrics attaches a Metrics instance to the pipeline.
func WithMetrics(m *Metrics) Option {
	return func(cfg *Config) { cfg.Metrics = m }
}

// WithLogger attaches a diagnostic logger to the pipeline.
func WithLogger(l Logger) Option {
	return func(cfg *Config) { cfg.Logger = l }
}

// Pipeline binds an Analyser, a frame queue, and a Synthesiser into the
// capture/playback cycle described in the engine's design. It is safe
// for the capture and playback cycles to run concurrently on separate
// goroutines; all shared mutable state is behind the frame queue and the
// run gate, both of which are internally synchronized.
type Pipeline struct {
	cfg Config

	analyser *phasevoc.Analyser
	synth    *phasevoc.Synthesiser
	queue    *frameQueue

	running atomic.Bool

	captureBuf    []float64 // local accumulation buffer for partial blocks
	freqAvg       *runningAvg
	frameCount    int
	lastPitchUsed float64
}

// New constructs a Pipeline. It fails construction under the same
// conditions as phasevoc.NewAnalyser / phasevoc.NewSynthesiser: FrameSize
// must be a power of two and HopSize must satisfy 0 < HopSize < FrameSize.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.QueueHighWater <= 0 {
		cfg.QueueHighWater = defaultQueueHighWater
	}

	if cfg.QueueLowWater <= 0 {
		cfg.QueueLowWater = defaultQueueLowWater
	}

	if cfg.LabelUpdateEvery <= 0 {
		cfg.LabelUpdateEvery = defaultLabelUpdateEvery
	}

	analyser, err := phasevoc.NewAnalyser(cfg.SampleRate, cfg.FrameSize, cfg.HopSize)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	synth, err := phasevoc.NewSynthesiser(cfg.SampleRate, cfg.FrameSize, cfg.HopSize)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	p := &Pipeline{
		cfg:      cfg,
		analyser: analyser,
		synth:    synth,
		queue:    newFrameQueue(cfg.QueueHighWater),
		freqAvg:  newRunningAvg(defaultRunningAvgLength),
	}

	return p, nil
}

// Start sets the run gate, enabling the capture cycle to process new
// audio. The playback cycle ignores the gate and always attempts to
// produce audio, per the source design.
func (p *Pipeline) Start() {
	p.running.Store(true)

	if p.cfg.Logger != nil {
		p.cfg.Logger.Debug("pipeline started")
	}
}

// Stop clears the run gate. It does not flush the frame queue or reset
// the synthesiser: a subsequent Start resumes exactly where playback left
// off, trading a brief hold of the last frame for gapless resume.
func (p *Pipeline) Stop() {
	p.running.Store(false)

	if p.cfg.Logger != nil {
		p.cfg.Logger.Debug("pipeline stopped")
	}
}

// Running reports whether the run gate is currently set.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// FeedCapture accumulates a block of samples from a capture source and
// processes every complete hop it contains. While the run gate is clear,
// incoming samples are dropped without analysis, matching the source's
// "drain without processing" behavior for a stopped capture task.
func (p *Pipeline) FeedCapture(block []float64) error {
	if !p.running.Load() {
		return nil
	}

	p.captureBuf = append(p.captureBuf, block...)

	hop := p.cfg.HopSize
	for len(p.captureBuf) >= hop {
		samples := p.captureBuf[:hop]
		p.captureBuf = p.captureBuf[hop:]

		if err := p.processHop(samples); err != nil {
			return err
		}
	}

	return nil
}

func (p *Pipeline) processHop(samples []float64) error {
	p.frameCount++

	if p.queue.len() >= p.cfg.QueueHighWater {
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.recordDropped()
		}

		if p.cfg.Logger != nil {
			p.cfg.Logger.Warn("pipeline: frame dropped at high-water mark", "depth", p.queue.len())
		}

		return nil
	}

	frame, err := p.analyser.FeedAudio(samples)
	if err != nil {
		return fmt.Errorf("pipeline: capture cycle: %w", err)
	}

	base := p.freqAvg.push(frame.BaseFreq())

	if p.cfg.Labels != nil && p.frameCount%p.cfg.LabelUpdateEvery == 0 {
		semitone := notefreq.FrequencyToSemitone(base)
		note, _ := notefreq.NearestNote(semitone)
		p.cfg.Labels.SetText("note_name", note.String())
		p.cfg.Labels.SetText("frequency", fmt.Sprintf("%.2fHz", base))
	}

	ratio := 1.0
	if p.cfg.PitchRatio != nil {
		ratio = core.Clamp(p.cfg.PitchRatio(), 0.5, 2.0)
	}

	p.lastPitchUsed = ratio
	shifted := frame.PitchShift(ratio)

	enqueued := p.queue.push(shifted)
	if !enqueued && p.cfg.Metrics != nil {
		p.cfg.Metrics.recordDropped()
	}

	if p.cfg.Metrics != nil {
		p.cfg.Metrics.setQueueDepth(p.queue.len())
	}

	return nil
}

// PullPlayback produces exactly HopSize samples into out, applying the
// current volume gain. The run gate does not affect playback: it always
// attempts to produce audio, holding the last synthesised frame across an
// underrun and emitting silence when the queue is backed up beyond its
// low-water mark.
func (p *Pipeline) PullPlayback(out []float64) error {
	frame, ok := p.queue.pop()

	if p.cfg.Metrics != nil {
		p.cfg.Metrics.setQueueDepth(p.queue.len())
	}

	for i := range out[:p.cfg.HopSize] {
		out[i] = 0
	}

	if p.queue.len() > p.cfg.QueueLowWater {
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.recordHeld()
		}

		return nil
	}

	var framePtr *phasevoc.Frame
	if ok {
		framePtr = &frame
	}

	if err := p.synth.PullAudio(out, framePtr); err != nil {
		return fmt.Errorf("pipeline: playback cycle: %w", err)
	}

	volume := 100.0
	if p.cfg.Volume != nil {
		volume = core.Clamp(p.cfg.Volume(), 0, 100)
	}

	gain := math.Pow(gainBase, volume) - 1.0
	for i := range out[:p.cfg.HopSize] {
		out[i] *= gain
	}

	return nil
}

// Run drives the capture/playback cycle to completion against a
// CaptureSource and PlaybackSink, blocking until source.Read returns an
// error (typically io.EOF at stream end). It is a convenience for
// callers that want the pipeline to own its own read/process/write loop
// rather than calling FeedCapture/PullPlayback directly; see
// cmd/phasovoxd for a real device-backed example.
func (p *Pipeline) Run(source CaptureSource, sink PlaybackSink) error {
	p.Start()
	defer p.Stop()

	readBuf := make([]float64, p.cfg.HopSize)
	writeBuf := make([]float64, p.cfg.HopSize)

	for {
		n, err := source.Read(readBuf)
		if n > 0 {
			if ferr := p.FeedCapture(readBuf[:n]); ferr != nil {
				return ferr
			}
		}

		if perr := p.PullPlayback(writeBuf); perr != nil {
			return perr
		}

		if werr := sink.Write(writeBuf); werr != nil {
			return werr
		}

		if err != nil {
			return err
		}
	}
}
