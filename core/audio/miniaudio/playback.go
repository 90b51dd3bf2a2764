package miniaudio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-realtime/core/audio"
)

// bufferedPeriods is how much audio Write lets pile up ahead of the device
// before blocking.
const bufferedPeriods = 4

type playbackStream struct {
	device *malgo.Device

	mu sync.Mutex

	audioMu       sync.Mutex
	drained       *sync.Cond
	leftoverAudio []byte
	highWater     int
	closed        bool
}

func (c *playbackStream) Init(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo, framesPerBuffer int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	bytesPerFrame := malgo.SampleSizeInBytes(malgo.FormatS16) * encoding.ChannelCount()
	c.drained = sync.NewCond(&c.audioMu)
	c.highWater = framesPerBuffer * bytesPerFrame * bufferedPeriods

	var err error
	if c.device, err = malgo.InitDevice(
		audioContext.Context,
		deviceConfig(malgo.Playback, encoding, framesPerBuffer),
		malgo.DeviceCallbacks{Data: c.processAudio(bytesPerFrame)},
	); err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	return nil
}

func (c *playbackStream) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	return nil
}

// Write queues audio for the device callback and blocks while more than
// bufferedPeriods of audio are still waiting to be played.
func (c *playbackStream) Write(audio []byte) error {
	c.audioMu.Lock()
	defer c.audioMu.Unlock()
	if c.closed {
		return fmt.Errorf("playback stream closed")
	}

	c.leftoverAudio = append(c.leftoverAudio, audio...)
	for len(c.leftoverAudio) > c.highWater && !c.closed {
		c.drained.Wait()
	}
	return nil
}

func (c *playbackStream) Close() error {
	c.audioMu.Lock()
	if c.closed {
		c.audioMu.Unlock()
		return nil
	}
	c.closed = true
	c.leftoverAudio = nil
	c.drained.Broadcast()
	c.audioMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return nil
	}

	var errs error
	if c.device.IsStarted() {
		if err := c.device.Stop(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to stop playback device: %w", err))
		}
	}
	c.device.Uninit()
	c.device = nil
	return errs
}

func (c *playbackStream) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame

		c.audioMu.Lock()
		defer c.audioMu.Unlock()
		defer c.drained.Broadcast()

		if len(c.leftoverAudio) == 0 {
			return
		}

		if len(c.leftoverAudio) < need {
			copy(pOutput, c.leftoverAudio)
			c.leftoverAudio = c.leftoverAudio[:0]
			return
		}

		copy(pOutput, c.leftoverAudio[:need])
		c.leftoverAudio = c.leftoverAudio[need:]
	}
}
