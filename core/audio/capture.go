package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"
)

type CaptureMode int

const (
	// CaptureTurnBased accumulates frames until Stop packages them.
	CaptureTurnBased CaptureMode = iota
	// CaptureStreaming hands every frame to a callback as soon as it is read.
	CaptureStreaming
)

func (m CaptureMode) String() string {
	switch m {
	case CaptureTurnBased:
		return "turn_based"
	case CaptureStreaming:
		return "streaming"
	}
	return fmt.Sprintf("CaptureMode(%d)", int(m))
}

const DefaultStreamingBacklog = 64

// Capture owns an input stream and the goroutine reading from it.
type Capture struct {
	device          InputDevice
	encoding        EncodingInfo
	framesPerBuffer int
	mode            CaptureMode
	onFrame         func([]byte)
	backlog         int

	mu  sync.Mutex
	run *captureRun

	droppedFrames metric.Int64Counter
}

// captureRun is one open input stream and the goroutines serving it. Only
// the Stop call that detaches it from the Capture tears it down.
type captureRun struct {
	stream  InputStream
	stopped atomic.Bool
	wg      sync.WaitGroup

	mu     sync.Mutex
	frames [][]byte
}

type CaptureOption func(*Capture)

// WithStreamingCallback switches the capture to streaming mode. onFrame is
// called from a dedicated goroutine, never from the device reader, and owns
// every frame it receives.
func WithStreamingCallback(onFrame func(frame []byte)) CaptureOption {
	return func(c *Capture) {
		c.mode = CaptureStreaming
		c.onFrame = onFrame
	}
}

func WithCaptureEncoding(encoding EncodingInfo) CaptureOption {
	return func(c *Capture) { c.encoding = encoding }
}

func WithFramesPerBuffer(frames int) CaptureOption {
	return func(c *Capture) {
		if frames > 0 {
			c.framesPerBuffer = frames
		}
	}
}

// WithStreamingBacklog bounds how many frames may wait for the streaming
// callback before new frames are dropped.
func WithStreamingBacklog(frames int) CaptureOption {
	return func(c *Capture) {
		if frames > 0 {
			c.backlog = frames
		}
	}
}

func NewCapture(device InputDevice, opts ...CaptureOption) *Capture {
	c := &Capture{
		device:          device,
		encoding:        GetDefaultEncodingInfo(),
		framesPerBuffer: DefaultFramesPerBuffer,
		backlog:         DefaultStreamingBacklog,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.encoding.IsZero() {
		c.encoding = GetDefaultEncodingInfo()
	}

	var err error
	if c.droppedFrames, err = meter.Int64Counter("audio.capture.dropped_frames",
		metric.WithDescription("Streamed frames dropped because the consumer fell behind")); err != nil {
		logger.Warn("failed to create capture counter", "error", err)
	}
	return c
}

func (c *Capture) Mode() CaptureMode { return c.mode }

func (c *Capture) EncodingInfo() EncodingInfo { return c.encoding }

func (c *Capture) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run != nil
}

// Start opens the input stream and starts reading from it. Starting a
// running capture is a no-op. Read errors end the capture and are only
// logged.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run != nil {
		return nil
	}
	if c.mode == CaptureStreaming && c.onFrame == nil {
		return errors.New("streaming capture requires a frame callback")
	}

	stream, err := c.device.OpenInput(c.encoding, c.framesPerBuffer)
	if err != nil {
		return fmt.Errorf("failed to open input stream: %w", err)
	}

	run := &captureRun{stream: stream}
	c.run = run

	var handoff chan []byte
	if c.mode == CaptureStreaming {
		handoff = make(chan []byte, c.backlog)
		run.wg.Add(1)
		go c.forward(run, handoff)
	}

	run.wg.Add(1)
	go c.read(ctx, run, handoff)
	return nil
}

// Stop halts capture and waits for the reader to exit. In turn-based mode it
// returns everything captured as a WAV container; in streaming mode, and
// when the capture is not running, it returns nil. Concurrent calls are
// safe, only the first one tears the stream down.
func (c *Capture) Stop() ([]byte, error) {
	c.mu.Lock()
	run := c.run
	c.run = nil
	c.mu.Unlock()
	if run == nil {
		return nil, nil
	}

	run.stopped.Store(true)
	run.wg.Wait()
	if err := run.stream.Close(); err != nil {
		logger.Warn("failed to close input stream", "error", err)
	}

	if c.mode == CaptureStreaming {
		return nil, nil
	}

	run.mu.Lock()
	pcm := bytes.Join(run.frames, nil)
	run.frames = nil
	run.mu.Unlock()
	return EncodeWAV(pcm, c.encoding)
}

func (c *Capture) read(ctx context.Context, run *captureRun, handoff chan<- []byte) {
	defer run.wg.Done()
	if handoff != nil {
		defer close(handoff)
	}

	for !run.stopped.Load() && ctx.Err() == nil {
		frame, err := run.stream.Read()
		if err != nil {
			logger.Error("failed to read from input stream", "error", err)
			return
		}
		if len(frame) == 0 {
			continue
		}

		if handoff == nil {
			run.mu.Lock()
			run.frames = append(run.frames, frame)
			run.mu.Unlock()
			continue
		}

		select {
		case handoff <- frame:
		default:
			if c.droppedFrames != nil {
				c.droppedFrames.Add(ctx, 1)
			}
			logger.Warn("streaming consumer is behind, dropping frame", "bytes", len(frame))
		}
	}
}

func (c *Capture) forward(run *captureRun, handoff <-chan []byte) {
	defer run.wg.Done()
	for frame := range handoff {
		c.onFrame(frame)
	}
}
