package audio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
)

const (
	DefaultPlaybackCapacity = 20
	DefaultSubChunkSize     = 1024
	DefaultPollInterval     = 100 * time.Millisecond
)

// Playback is a bounded queue of outbound audio chunks drained to an output
// device by a consumer goroutine. Producers never block: when the queue is
// full the oldest chunk is dropped.
type Playback struct {
	device   OutputDevice
	encoding EncodingInfo

	capacity        int
	subChunkSize    int
	pollInterval    time.Duration
	framesPerBuffer int

	mu      sync.Mutex
	queue   [][]byte
	run     *playbackRun
	playing bool
	closed  bool

	// updateSignal wakes the consumer when a chunk is queued or playback is
	// stopped.
	updateSignal chan struct{}

	droppedChunks metric.Int64Counter
}

// playbackRun is one consumer goroutine and its output stream. A stopped run
// never plays again; the next Enqueue starts a fresh one.
type playbackRun struct {
	stopped atomic.Bool
	done    chan struct{}
}

type PlaybackOption func(*Playback)

func WithPlaybackCapacity(capacity int) PlaybackOption {
	return func(p *Playback) {
		if capacity > 0 {
			p.capacity = capacity
		}
	}
}

// WithSubChunkSize bounds how much audio is written between checks of the
// stop signal, and so the latency of StopImmediately.
func WithSubChunkSize(size int) PlaybackOption {
	return func(p *Playback) {
		if size > 0 {
			p.subChunkSize = size
		}
	}
}

func WithPollInterval(interval time.Duration) PlaybackOption {
	return func(p *Playback) {
		if interval > 0 {
			p.pollInterval = interval
		}
	}
}

func WithPlaybackEncoding(encoding EncodingInfo) PlaybackOption {
	return func(p *Playback) { p.encoding = encoding }
}

func NewPlayback(device OutputDevice, opts ...PlaybackOption) *Playback {
	p := &Playback{
		device:          device,
		encoding:        GetDefaultEncodingInfo(),
		capacity:        DefaultPlaybackCapacity,
		subChunkSize:    DefaultSubChunkSize,
		pollInterval:    DefaultPollInterval,
		framesPerBuffer: DefaultFramesPerBuffer,
		updateSignal:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.encoding.IsZero() {
		p.encoding = GetDefaultEncodingInfo()
	}
	if frameSize := p.encoding.FrameSize(); frameSize > 0 {
		p.framesPerBuffer = p.subChunkSize / frameSize
	}

	var err error
	if p.droppedChunks, err = meter.Int64Counter("audio.playback.dropped_chunks",
		metric.WithDescription("Chunks evicted from a full playback buffer")); err != nil {
		logger.Warn("failed to create playback counter", "error", err)
	}
	return p
}

// Enqueue appends chunk to the queue, evicting the oldest chunk if the queue
// is at capacity, and makes sure a consumer is running. The chunk must not be
// modified by the caller afterwards.
func (p *Playback) Enqueue(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		logger.Debug("dropping audio enqueued after cleanup", "bytes", len(chunk))
		return
	}

	if len(p.queue) >= p.capacity {
		p.queue[0] = nil
		p.queue = p.queue[1:]
		if p.droppedChunks != nil {
			p.droppedChunks.Add(context.Background(), 1)
		}
	}
	p.queue = append(p.queue, chunk)
	p.playing = true

	if p.run == nil || p.run.stopped.Load() {
		previous := p.run
		p.run = &playbackRun{done: make(chan struct{})}
		go p.consume(p.run, previous)
	}
	p.mu.Unlock()

	p.signalUpdate()
}

// StopImmediately drops everything queued and makes the consumer exit within
// one sub-chunk write.
func (p *Playback) StopImmediately() {
	p.mu.Lock()
	if p.run != nil {
		p.run.stopped.Store(true)
	}
	clear(p.queue)
	p.queue = nil
	p.playing = false
	p.mu.Unlock()

	p.signalUpdate()
}

// Cleanup stops playback and waits for the consumer to release its output
// stream. Safe to call more than once; later Enqueue calls are ignored.
func (p *Playback) Cleanup() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	run := p.run
	p.mu.Unlock()

	p.StopImmediately()
	if run != nil {
		<-run.done
	}
}

func (p *Playback) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *Playback) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Queued returns the queued chunks, oldest first.
func (p *Playback) Queued() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	queued := make([][]byte, len(p.queue))
	copy(queued, p.queue)
	return queued
}

func (p *Playback) consume(run *playbackRun, previous *playbackRun) {
	defer close(run.done)

	// Only one output stream is open at a time.
	if previous != nil {
		<-previous.done
	}
	if run.stopped.Load() {
		return
	}

	stream, err := p.device.OpenOutput(p.encoding, p.framesPerBuffer)
	if err != nil {
		logger.Error("failed to open output stream", "error", err)
		p.mu.Lock()
		run.stopped.Store(true)
		if p.run == run {
			p.playing = false
		}
		p.mu.Unlock()
		return
	}
	defer func() {
		if err := stream.Close(); err != nil {
			logger.Warn("failed to close output stream", "error", err)
		}
	}()

	timer := time.NewTimer(p.pollInterval)
	defer timer.Stop()
	for !run.stopped.Load() {
		chunk, ok := p.next(run)
		if !ok {
			timer.Reset(p.pollInterval)
			select {
			case <-p.updateSignal:
			case <-timer.C:
			}
			continue
		}

		p.play(run, stream, chunk)
	}
}

// next pops the head of the queue unless run has been stopped.
func (p *Playback) next(run *playbackRun) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if run.stopped.Load() || len(p.queue) == 0 {
		if len(p.queue) == 0 && p.run == run {
			p.playing = false
		}
		return nil, false
	}

	chunk := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	p.playing = true
	return chunk, true
}

func (p *Playback) play(run *playbackRun, stream OutputStream, chunk []byte) {
	for start := 0; start < len(chunk); start += p.subChunkSize {
		if run.stopped.Load() {
			return
		}
		end := min(start+p.subChunkSize, len(chunk))
		if err := stream.Write(chunk[start:end]); err != nil {
			logger.Warn("failed to write audio chunk", "error", err)
			return
		}
	}
}

func (p *Playback) signalUpdate() {
	select {
	case p.updateSignal <- struct{}{}:
	default:
	}
}
