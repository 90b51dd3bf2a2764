package miniaudio

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-realtime/core/audio"
)

// capturedPeriods bounds how many device periods can wait for Read.
const capturedPeriods = 32

type captureStream struct {
	device *malgo.Device

	frames chan []byte
	done   chan struct{}

	mu        sync.Mutex
	closeOnce sync.Once
}

func (c *captureStream) Init(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo, framesPerBuffer int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	bytesPerFrame := malgo.SampleSizeInBytes(malgo.FormatS16) * encoding.ChannelCount()
	c.frames = make(chan []byte, capturedPeriods)
	c.done = make(chan struct{})

	var err error
	c.device, err = malgo.InitDevice(audioContext.Context, deviceConfig(malgo.Capture, encoding, framesPerBuffer), malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}
			// The device reuses pInput, the reader gets its own copy.
			frame := make([]byte, n)
			copy(frame, pInput[:n])
			select {
			case c.frames <- frame:
			default:
				logger.Warn("capture reader is behind, dropping period", "bytes", n)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	return nil
}

func (c *captureStream) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	} else if c.device.IsStarted() {
		return nil
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

func (c *captureStream) Read() ([]byte, error) {
	select {
	case frame := <-c.frames:
		return frame, nil
	case <-c.done:
		return nil, io.EOF
	}
}

func (c *captureStream) Close() error {
	var errs error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		close(c.done)
		if c.device == nil {
			return
		}
		if c.device.IsStarted() {
			if err := c.device.Stop(); err != nil {
				errs = errors.Join(errs, fmt.Errorf("failed to stop capture device: %w", err))
			}
		}
		c.device.Uninit()
		c.device = nil
	})
	return errs
}
