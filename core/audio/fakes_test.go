package audio

import (
	"errors"
	"sync"
	"time"
)

type fakeOutputDevice struct {
	mu      sync.Mutex
	opened  int
	streams []*fakeOutputStream

	// gate, when set, blocks OpenOutput until it is closed.
	gate    chan struct{}
	openErr error
	// writeHook runs after every recorded write.
	writeHook func(written []byte)
}

func (d *fakeOutputDevice) OpenOutput(EncodingInfo, int) (OutputStream, error) {
	if d.gate != nil {
		<-d.gate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened++
	if d.openErr != nil {
		return nil, d.openErr
	}
	stream := &fakeOutputStream{device: d}
	d.streams = append(d.streams, stream)
	return stream, nil
}

func (d *fakeOutputDevice) openCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

func (d *fakeOutputDevice) closedStreams() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	closed := 0
	for _, stream := range d.streams {
		if stream.closed {
			closed++
		}
	}
	return closed
}

func (d *fakeOutputDevice) writes() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	var all [][]byte
	for _, stream := range d.streams {
		all = append(all, stream.written...)
	}
	return all
}

type fakeOutputStream struct {
	device  *fakeOutputDevice
	written [][]byte
	closed  bool
}

func (s *fakeOutputStream) Write(audio []byte) error {
	s.device.mu.Lock()
	if s.closed {
		s.device.mu.Unlock()
		return errors.New("stream closed")
	}
	s.written = append(s.written, append([]byte(nil), audio...))
	hook := s.device.writeHook
	s.device.mu.Unlock()
	if hook != nil {
		hook(audio)
	}
	return nil
}

func (s *fakeOutputStream) Close() error {
	s.device.mu.Lock()
	defer s.device.mu.Unlock()
	if s.closed {
		return errors.New("stream already closed")
	}
	s.closed = true
	return nil
}

type fakeInputDevice struct {
	mu       sync.Mutex
	frames   chan []byte
	readErr   error
	readDelay time.Duration
	openErr   error
	closed   int
	lastOpen EncodingInfo
}

func newFakeInputDevice(frames ...[]byte) *fakeInputDevice {
	d := &fakeInputDevice{frames: make(chan []byte, len(frames)+1)}
	for _, frame := range frames {
		d.frames <- frame
	}
	return d
}

func (d *fakeInputDevice) OpenInput(encoding EncodingInfo, _ int) (InputStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.lastOpen = encoding
	return &fakeInputStream{device: d}, nil
}

func (d *fakeInputDevice) closeCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type fakeInputStream struct {
	device *fakeInputDevice
}

// Read hands out queued frames and then silence so the reader keeps
// spinning until it is stopped, like a live microphone.
func (s *fakeInputStream) Read() ([]byte, error) {
	select {
	case frame := <-s.device.frames:
		return frame, nil
	default:
	}
	s.device.mu.Lock()
	err, delay := s.device.readErr, s.device.readDelay
	s.device.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *fakeInputStream) Close() error {
	s.device.mu.Lock()
	defer s.device.mu.Unlock()
	s.device.closed++
	return nil
}
