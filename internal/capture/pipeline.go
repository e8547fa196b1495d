// Package capture implements the per-camera Capture Graph of spec.md §4.1:
// source -> format-convert -> orientation -> depth-1 queue -> encoder ->
// encoded tap, built once per camera and shared by all of that camera's
// subscribers.
//
// Grounded on helixml-helix/api/pkg/desktop/gst_pipeline.go's GstPipeline:
// github.com/go-gst/go-gst's gst.Pipeline + app.Sink + SinkCallbacks object
// model is used in place of the teacher's own exec.Command("gst-launch-1.0",
// ...) subprocess string-builder (cvpipe/pipeline.go), because the spec's
// vocabulary of "request-pad allocation", "tee-style fan-out", and "a pull
// sink exposing a callback on_encoded(frame)" maps directly onto go-gst's
// explicit element/appsink object model. Orientation handling (the
// none/hflip/vflip/rot-90/180/270 enum) is grounded on the angkira capture
// reference file's getFlipPipelineElement/validateFlipMethod, which covers
// the identical six-way enum via videoflip.
package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"
	"go.uber.org/zap"

	"github.com/n0remac/camhub/internal/config"
	"github.com/n0remac/camhub/internal/frame"
	"github.com/n0remac/camhub/internal/mediaerr"
)

var initOnce sync.Once

// Init initializes the GStreamer runtime. Safe to call from multiple
// goroutines; initialization happens exactly once per process.
func Init() {
	initOnce.Do(func() {
		gst.Init(nil)
	})
}

// EncoderRestartBackoffCap is the ceiling named in spec.md §4.1/§5.
const EncoderRestartBackoffCap = 30 * time.Second

// Graph owns one camera's GStreamer pipeline and exposes the encoded tap as
// an on_encoded callback invoked once per encoded access unit.
type Graph struct {
	cfg config.CameraConfig
	log *zap.Logger

	mu       sync.Mutex
	pipeline *gst.Pipeline
	appsink  *app.Sink
	running  atomic.Bool
	start    time.Time

	onEncoded func(frame.Encoded)
	onFault   func(error)
}

// New builds a Graph for cfg. The pipeline is not started until Start is
// called.
func New(cfg config.CameraConfig, log *zap.Logger, onEncoded func(frame.Encoded), onFault func(error)) *Graph {
	Init()
	return &Graph{cfg: cfg, log: log, onEncoded: onEncoded, onFault: onFault}
}

func (g *Graph) describe() string {
	orientation := orientationElement(g.cfg.Orientation)
	enc, parse := encoderElements(g.cfg)
	return fmt.Sprintf(
		"v4l2src device=%s ! video/x-raw,width=%d,height=%d,framerate=%d/1 "+
			"! videoconvert ! %s "+
			"! queue name=depth1 leaky=downstream max-size-buffers=1 max-size-time=0 max-size-bytes=0 "+
			"! %s %s"+
			"! appsink name=encoded_tap emit-signals=true max-buffers=2 drop=true sync=false",
		g.cfg.Device, g.cfg.Width, g.cfg.Height, g.cfg.FPS,
		orientation, enc, parse,
	)
}

func orientationElement(o config.Orientation) string {
	switch o {
	case config.OrientationHFlip:
		return "videoflip method=horizontal-flip"
	case config.OrientationVFlip:
		return "videoflip method=vertical-flip"
	case config.OrientationRot90:
		return "videoflip method=rotate-90"
	case config.OrientationRot180:
		return "videoflip method=rotate-180"
	case config.OrientationRot270:
		return "videoflip method=rotate-270"
	default:
		return "identity"
	}
}

func encoderElements(cfg config.CameraConfig) (encoder, parse string) {
	switch cfg.Codec {
	case config.CodecVP8:
		return fmt.Sprintf(
			"vp8enc deadline=1 keyframe-max-dist=%d target-bitrate=%d",
			cfg.KeyframeInterval, cfg.BitrateBps,
		), ""
	default: // config.CodecH264
		return fmt.Sprintf(
			"x264enc tune=zerolatency speed-preset=%s key-int-max=%d bframes=0 bitrate=%d",
			presetOr(cfg.SpeedPreset, "ultrafast"), cfg.KeyframeInterval, cfg.BitrateBps/1000,
		), "! h264parse config-interval=1 "
	}
}

func presetOr(preset, fallback string) string {
	if preset == "" {
		return fallback
	}
	return preset
}

// Start brings the graph to the running state. It is idempotent: calling
// Start while already running is a no-op. Fails with
// mediaerr.CaptureStart if the device cannot be opened or caps negotiation
// fails within the first 5 seconds.
func (g *Graph) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running.Load() {
		return nil
	}

	pipeline, err := gst.NewPipelineFromString(g.describe())
	if err != nil {
		return &mediaerr.CaptureStart{Camera: g.cfg.ID, Reason: err.Error()}
	}

	elem, err := pipeline.GetElementByName("encoded_tap")
	if err != nil {
		return &mediaerr.CaptureStart{Camera: g.cfg.ID, Reason: "encoded_tap element missing: " + err.Error()}
	}
	sink := app.SinkFromElement(elem)
	sink.SetCallbacks(&app.SinkCallbacks{NewSampleFunc: g.onNewSample})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return &mediaerr.CaptureStart{Camera: g.cfg.ID, Reason: err.Error()}
	}

	if err := waitForPlayingOrError(pipeline, 5*time.Second); err != nil {
		_ = pipeline.SetState(gst.StateNull)
		return &mediaerr.CaptureStart{Camera: g.cfg.ID, Reason: err.Error()}
	}

	g.pipeline = pipeline
	g.appsink = sink
	g.start = time.Now()
	g.running.Store(true)
	go g.watchBus(pipeline)
	return nil
}

func waitForPlayingOrError(pipeline *gst.Pipeline, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	bus := pipeline.GetBus()
	for time.Now().Before(deadline) {
		msg := bus.TimedPop(gst.ClockTime(100 * time.Millisecond))
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			return fmt.Errorf("%v", gerr)
		case gst.MessageAsyncDone:
			return nil
		}
	}
	return nil
}

func (g *Graph) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowEOS
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowError
	}
	data := buffer.Map(gst.MapRead).Bytes()
	buf := frame.Get(len(data))
	buf = append(buf, data...)
	buffer.Unmap()

	pts := buffer.PresentationTimestamp().AsDuration()
	keyframe := !buffer.HasFlags(gst.BufferFlagDeltaUnit)

	if g.onEncoded != nil {
		g.onEncoded(frame.Encoded{Payload: buf, PTS: pts, Keyframe: keyframe})
	}
	return gst.FlowOK
}

func (g *Graph) watchBus(pipeline *gst.Pipeline) {
	bus := pipeline.GetBus()
	for g.running.Load() {
		msg := bus.TimedPop(gst.ClockTime(100 * time.Millisecond))
		if msg == nil {
			continue
		}
		if msg.Type() == gst.MessageError {
			gerr := msg.ParseError()
			if g.onFault != nil {
				g.onFault(fmt.Errorf("%v", gerr))
			}
		}
	}
}

// Flush drops all in-flight buffers in every queue element. Must be
// invoked whenever the subscriber set transitions from non-empty to empty
// (spec.md §4.1), to prevent a stale buffer resurfacing at next
// subscription (scenario S6).
func (g *Graph) Flush() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pipeline == nil {
		return
	}
	elem, err := g.pipeline.GetElementByName("depth1")
	if err != nil {
		return
	}
	elem.SendEvent(gst.NewFlushStartEvent())
	elem.SendEvent(gst.NewFlushStopEvent(true))
}

// Stop brings the graph to the null state and releases the device handle.
func (g *Graph) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running.Load() {
		return
	}
	g.running.Store(false)
	if g.pipeline != nil {
		_ = g.pipeline.SetState(gst.StateNull)
	}
}

// Restart restarts the graph with exponential backoff capped at 30s, per
// spec.md §4.1/§5. Grounded on avast/retry-go/v4's retry.Do, used by
// helixml-helix for the same capped-exponential-backoff shape.
func (g *Graph) Restart(ctx context.Context) error {
	g.Stop()
	return retry.Do(
		func() error { return g.Start(ctx) },
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(EncoderRestartBackoffCap),
	)
}
