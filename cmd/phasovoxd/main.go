// Command phasovoxd runs the real-time phase-vocoder pitch shifter
// against a live microphone and speaker via PortAudio.
//
// Usage:
//
//	phasovoxd [flags]
//
// Examples:
//
//	phasovoxd
//	phasovoxd --frame-size 4096 --hop-size 1024 --pitch 1.5
//	phasovoxd --list-devices
package main

import (
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/voxphase/phasevox/pipeline"
)

func main() {
	var (
		frameSize   = flag.Int("frame-size", 2048, "analysis frame size N, must be a power of two")
		hopSize     = flag.Int("hop-size", 512, "hop size H, must satisfy 0 < H < N")
		pitch       = flag.Float64("pitch", 1.0, "initial pitch ratio, clamped to [0.5, 2.0]")
		volume      = flag.Float64("volume", 80, "initial output volume, clamped to [0, 100]")
		inputDevID  = flag.Int("input-device", -1, "PortAudio input device index, -1 for default")
		outputDevID = flag.Int("output-device", -1, "PortAudio output device index, -1 for default")
		listDevices = flag.Bool("list-devices", false, "list available PortAudio devices and exit")
		metricsAddr = flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
	)
	flag.Parse()

	logger := log.New(os.Stderr)

	if err := portaudio.Initialize(); err != nil {
		logger.Fatal("portaudio: initialize", "err", err)
	}
	defer portaudio.Terminate()

	if *listDevices {
		if err := printDevices(); err != nil {
			logger.Fatal("list devices", "err", err)
		}

		return
	}

	app, err := newApp(appConfig{
		frameSize:   *frameSize,
		hopSize:     *hopSize,
		pitch:       *pitch,
		volume:      *volume,
		inputDevID:  *inputDevID,
		outputDevID: *outputDevID,
		metricsAddr: *metricsAddr,
		logger:      logger,
	})
	if err != nil {
		logger.Fatal("phasovoxd: setup", "err", err)
	}
	defer app.Close()

	if err := app.Start(); err != nil {
		logger.Fatal("phasovoxd: start", "err", err)
	}

	logger.Info("phasovoxd running", "frame_size", *frameSize, "hop_size", *hopSize,
		"sample_rate", app.sampleRate, "input", app.inputName, "output", app.outputName)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("phasovoxd: shutting down")
	app.pipeline.Stop()
}

func printDevices() error {
	devices, err := portaudio.Devices()
	if err != nil {
		return fmt.Errorf("portaudio: devices: %w", err)
	}

	for i, d := range devices {
		fmt.Printf("%d: %s (in=%d out=%d default_sr=%.0f)\n",
			i, d.Name, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate)
	}

	return nil
}

// sliderLabels is the Labels implementation backing the control
// interface's note_name/frequency text slots; phasovoxd just logs
// updates instead of rendering a UI, since the UI layer is out of scope
// for this engine.
type sliderLabels struct {
	logger *log.Logger
}

func (s sliderLabels) SetText(name, value string) {
	s.logger.Debug("label", "name", name, "value", value)
}

// atomicFloat64 is a lock-free holder for the pitch ratio and volume
// control values, sampled once per frame/block by the pipeline.
type atomicFloat64 struct {
	bits atomic.Uint64
}

func (a *atomicFloat64) store(v float64) {
	a.bits.Store(math.Float64bits(v))
}

func (a *atomicFloat64) load() float64 {
	return math.Float64frombits(a.bits.Load())
}

type app struct {
	pipeline   *pipeline.Pipeline
	capture    *portaudio.Stream
	playback   *portaudio.Stream
	captureBuf []float32
	playBuf    []float32

	sampleRate float64
	inputName  string
	outputName string

	pitchCtl  atomicFloat64
	volumeCtl atomicFloat64
}

type appConfig struct {
	frameSize   int
	hopSize     int
	pitch       float64
	volume      float64
	inputDevID  int
	outputDevID int
	metricsAddr string
	logger      *log.Logger
}

func newApp(cfg appConfig) (*app, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: devices: %w", err)
	}

	inputDev, err := resolveDevice(devices, cfg.inputDevID, portaudio.DefaultInputDevice)
	if err != nil {
		return nil, fmt.Errorf("portaudio: resolve input device: %w", err)
	}

	outputDev, err := resolveDevice(devices, cfg.outputDevID, portaudio.DefaultOutputDevice)
	if err != nil {
		return nil, fmt.Errorf("portaudio: resolve output device: %w", err)
	}

	sampleRate := inputDev.DefaultSampleRate

	a := &app{sampleRate: sampleRate, inputName: inputDev.Name, outputName: outputDev.Name}
	a.pitchCtl.store(cfg.pitch)
	a.volumeCtl.store(cfg.volume)

	var metrics *pipeline.Metrics
	if cfg.metricsAddr != "" {
		metrics = pipeline.NewMetrics(prometheus.DefaultRegisterer)
		go serveMetrics(cfg.metricsAddr, cfg.logger)
	}

	p, err := pipeline.New(pipeline.Config{
		SampleRate: sampleRate,
		FrameSize:  cfg.frameSize,
		HopSize:    cfg.hopSize,
		PitchRatio: a.pitchCtl.load,
		Volume:     a.volumeCtl.load,
		Labels:     sliderLabels{logger: cfg.logger},
		Metrics:    metrics,
		Logger:     cfg.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: new: %w", err)
	}

	a.pipeline = p
	a.captureBuf = make([]float32, cfg.hopSize)
	a.playBuf = make([]float32, cfg.hopSize)

	captureParams := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   inputDev,
			Channels: 1,
			Latency:  inputDev.DefaultLowInputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: cfg.hopSize,
	}

	captureStream, err := portaudio.OpenStream(captureParams, a.captureBuf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open capture stream: %w", err)
	}

	a.capture = captureStream

	playbackParams := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   outputDev,
			Channels: 1,
			Latency:  outputDev.DefaultLowOutputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: cfg.hopSize,
	}

	playbackStream, err := portaudio.OpenStream(playbackParams, a.playBuf)
	if err != nil {
		captureStream.Close()
		return nil, fmt.Errorf("portaudio: open playback stream: %w", err)
	}

	a.playback = playbackStream

	return a, nil
}

// Start starts the PortAudio streams and the pipeline's run gate, then
// launches the capture and playback loops. Each loop is a direct
// translation of spec.md's two cooperative tasks onto a dedicated
// goroutine, since PortAudio's blocking Read/Write calls are each other's
// natural suspension points.
func (a *app) Start() error {
	if err := a.capture.Start(); err != nil {
		return fmt.Errorf("portaudio: start capture: %w", err)
	}

	if err := a.playback.Start(); err != nil {
		a.capture.Stop()
		return fmt.Errorf("portaudio: start playback: %w", err)
	}

	a.pipeline.Start()

	go a.captureLoop()
	go a.playbackLoop()

	return nil
}

func (a *app) captureLoop() {
	samples := make([]float64, len(a.captureBuf))

	for {
		if err := a.capture.Read(); err != nil {
			return
		}

		for i, s := range a.captureBuf {
			samples[i] = float64(s)
		}

		if err := a.pipeline.FeedCapture(samples); err != nil {
			return
		}
	}
}

func (a *app) playbackLoop() {
	out := make([]float64, len(a.playBuf))

	for {
		if err := a.pipeline.PullPlayback(out); err != nil {
			return
		}

		for i, s := range out {
			a.playBuf[i] = float32(s)
		}

		if err := a.playback.Write(); err != nil {
			return
		}
	}
}

// SetPitch updates the live pitch ratio, clamped to [0.5, 2.0] by the
// pipeline on every frame.
func (a *app) SetPitch(ratio float64) { a.pitchCtl.store(ratio) }

// SetVolume updates the live output volume, clamped to [0, 100] by the
// pipeline on every block.
func (a *app) SetVolume(volume float64) { a.volumeCtl.store(volume) }

func (a *app) Close() {
	a.capture.Stop()
	a.capture.Close()
	a.playback.Stop()
	a.playback.Close()
}

// serveMetrics runs a minimal HTTP server exposing /metrics for
// Prometheus scraping. It runs for the lifetime of the process; errors
// are logged rather than fatal, since metrics are an optional concern.
func serveMetrics(addr string, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server", "err", err)
	}
}

func resolveDevice(devices []*portaudio.DeviceInfo, idx int, fallback func() (*portaudio.DeviceInfo, error)) (*portaudio.DeviceInfo, error) {
	if idx >= 0 && idx < len(devices) {
		return devices[idx], nil
	}

	return fallback()
}
