package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-realtime/core/audio"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

var logger = otelslog.NewLogger("github.com/koscakluka/ema-realtime/core/audio/miniaudio")

// Client opens miniaudio devices and adapts their callbacks to blocking
// streams.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext

	mu     sync.Mutex
	closed bool
}

func NewClient() (*Client, error) {
	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("malgo InitContext failed: %w", err)
	}

	return &Client{audioContext: audioCtx}, nil
}

func (c *Client) OpenInput(encoding audio.EncodingInfo, framesPerBuffer int) (audio.InputStream, error) {
	ctx, err := c.context(encoding)
	if err != nil {
		return nil, err
	}

	stream := &captureStream{}
	if err := stream.Init(ctx, encoding, framesPerBuffer); err != nil {
		return nil, err
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, err
	}
	return stream, nil
}

func (c *Client) OpenOutput(encoding audio.EncodingInfo, framesPerBuffer int) (audio.OutputStream, error) {
	ctx, err := c.context(encoding)
	if err != nil {
		return nil, err
	}

	stream := &playbackStream{}
	if err := stream.Init(ctx, encoding, framesPerBuffer); err != nil {
		return nil, err
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, err
	}
	return stream, nil
}

// Close releases the miniaudio context. Streams must be closed first.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	err := c.audioContext.Uninit()
	c.audioContext.Free()
	return err
}

func (c *Client) context(encoding audio.EncodingInfo) (*malgo.AllocatedContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("miniaudio client is closed")
	}
	if encoding.Format != audio.EncodingLinear16 {
		return nil, fmt.Errorf("%w: miniaudio client only supports linear16", audio.ErrUnsupportedFormat)
	}
	return c.audioContext, nil
}

func deviceConfig(deviceType malgo.DeviceType, encoding audio.EncodingInfo, framesPerBuffer int) malgo.DeviceConfig {
	config := malgo.DefaultDeviceConfig(deviceType)
	config.SampleRate = uint32(encoding.SampleRate)
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = uint32(framesPerBuffer)
	switch deviceType {
	case malgo.Capture:
		config.Capture.Format = malgo.FormatS16
		config.Capture.Channels = uint32(encoding.ChannelCount())
		config.PerformanceProfile = malgo.LowLatency
		config.Periods = 3
	case malgo.Playback:
		config.Playback.Format = malgo.FormatS16
		config.Playback.Channels = uint32(encoding.ChannelCount())
		config.Periods = 4
	}
	return config
}
