package portaudio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-realtime/core/audio"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

var logger = otelslog.NewLogger("github.com/koscakluka/ema-realtime/core/audio/portaudio")

// Client opens blocking PortAudio streams on the default devices.
type Client struct {
	mu     sync.Mutex
	closed bool
}

func NewClient() (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &Client{}, nil
}

func (c *Client) OpenInput(encoding audio.EncodingInfo, framesPerBuffer int) (audio.InputStream, error) {
	if err := c.checkEncoding(encoding); err != nil {
		return nil, err
	}

	in := make([]int16, framesPerBuffer*encoding.ChannelCount())
	stream, err := portaudio.OpenDefaultStream(encoding.ChannelCount(), 0, float64(encoding.SampleRate), framesPerBuffer, in)
	if err != nil {
		return nil, fmt.Errorf("failed to open PortAudio input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("failed to start PortAudio input stream: %w", err)
	}

	return &inputStream{stream: stream, in: in}, nil
}

func (c *Client) OpenOutput(encoding audio.EncodingInfo, framesPerBuffer int) (audio.OutputStream, error) {
	if err := c.checkEncoding(encoding); err != nil {
		return nil, err
	}

	out := make([]int16, framesPerBuffer*encoding.ChannelCount())
	stream, err := portaudio.OpenDefaultStream(0, encoding.ChannelCount(), float64(encoding.SampleRate), framesPerBuffer, out)
	if err != nil {
		return nil, fmt.Errorf("failed to open PortAudio output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("failed to start PortAudio output stream: %w", err)
	}

	return &outputStream{stream: stream, encoding: encoding, out: out}, nil
}

// Close terminates PortAudio. Streams must be closed first.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return portaudio.Terminate()
}

func (c *Client) checkEncoding(encoding audio.EncodingInfo) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errors.New("PortAudio client is closed")
	}
	if encoding.Format != audio.EncodingLinear16 {
		return fmt.Errorf("%w: PortAudio client only supports linear16", audio.ErrUnsupportedFormat)
	}
	return nil
}

type inputStream struct {
	stream *portaudio.Stream
	in     []int16
}

func (s *inputStream) Read() ([]byte, error) {
	if err := s.stream.Read(); err != nil {
		if !errors.Is(err, portaudio.InputOverflowed) {
			return nil, fmt.Errorf("failed to read from PortAudio stream: %w", err)
		}
		logger.Debug("PortAudio input overflowed")
	}

	audioBuffer := bytes.Buffer{}
	audioBuffer.Grow(len(s.in) * 2)
	if err := binary.Write(&audioBuffer, binary.LittleEndian, s.in); err != nil {
		return nil, fmt.Errorf("failed to encode captured samples: %w", err)
	}
	return audioBuffer.Bytes(), nil
}

func (s *inputStream) Close() error {
	return errors.Join(s.stream.Stop(), s.stream.Close())
}

type outputStream struct {
	stream        *portaudio.Stream
	encoding      audio.EncodingInfo
	out           []int16
	leftoverAudio []byte
}

// Write plays whole device buffers and keeps the remainder for the next
// call; Close pads and plays whatever is left.
func (s *outputStream) Write(audio []byte) error {
	bufferSize := len(s.out) * 2
	s.leftoverAudio = append(s.leftoverAudio, audio...)
	for len(s.leftoverAudio) >= bufferSize {
		if err := s.writeBuffer(s.leftoverAudio[:bufferSize]); err != nil {
			return err
		}
		s.leftoverAudio = s.leftoverAudio[bufferSize:]
	}
	return nil
}

func (s *outputStream) writeBuffer(buffer []byte) error {
	if err := binary.Read(bytes.NewReader(buffer), binary.LittleEndian, s.out); err != nil {
		return fmt.Errorf("failed to decode playback samples: %w", err)
	}
	if err := s.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
		return fmt.Errorf("failed to write to PortAudio stream: %w", err)
	}
	return nil
}

func (s *outputStream) Close() error {
	var errs error
	if len(s.leftoverAudio) > 0 {
		padded := s.encoding.PadWithSilence(s.leftoverAudio, len(s.out)*2)
		s.leftoverAudio = nil
		errs = errors.Join(errs, s.writeBuffer(padded))
	}
	return errors.Join(errs, s.stream.Stop(), s.stream.Close())
}
