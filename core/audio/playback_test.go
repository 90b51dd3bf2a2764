package audio

import (
	"bytes"
	"testing"
	"time"
)

func chunk(i int) []byte { return []byte{byte(i)} }

func TestPlaybackEnqueueDropsOldestWhenFull(t *testing.T) {
	device := &fakeOutputDevice{gate: make(chan struct{})}
	p := NewPlayback(device)

	for i := 1; i <= 21; i++ {
		p.Enqueue(chunk(i))
	}

	queued := p.Queued()
	if len(queued) != DefaultPlaybackCapacity {
		t.Fatalf("expected %d queued chunks, got %d", DefaultPlaybackCapacity, len(queued))
	}
	for i, got := range queued {
		if want := chunk(i + 2); !bytes.Equal(got, want) {
			t.Fatalf("expected chunk %d at position %d, got %v", i+2, i, got)
		}
	}

	close(device.gate)
	p.Cleanup()
}

func TestPlaybackKeepsMostRecentChunksForAnyOverflow(t *testing.T) {
	device := &fakeOutputDevice{gate: make(chan struct{})}
	p := NewPlayback(device, WithPlaybackCapacity(3))

	for i := 1; i <= 10; i++ {
		p.Enqueue(chunk(i))
	}

	queued := p.Queued()
	if len(queued) != 3 || queued[0][0] != 8 || queued[1][0] != 9 || queued[2][0] != 10 {
		t.Fatalf("expected chunks 8..10, got %v", queued)
	}

	close(device.gate)
	p.Cleanup()
}

func TestPlaybackWritesChunksInSubChunks(t *testing.T) {
	device := &fakeOutputDevice{}
	p := NewPlayback(device, WithSubChunkSize(4), WithPollInterval(5*time.Millisecond))

	p.Enqueue([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})

	waitFor(t, func() bool { return len(device.writes()) == 3 })
	writes := device.writes()
	if !bytes.Equal(writes[0], []byte{1, 2, 3, 4}) || !bytes.Equal(writes[2], []byte{9, 10}) {
		t.Fatalf("expected writes split into 4 byte sub-chunks, got %v", writes)
	}
	waitFor(t, func() bool { return !p.IsPlaying() })

	p.Cleanup()
	if device.closedStreams() != 1 {
		t.Fatalf("expected output stream to be closed on cleanup, got %d closed", device.closedStreams())
	}
}

func TestPlaybackStopImmediatelyAbortsBetweenSubChunks(t *testing.T) {
	var p *Playback
	device := &fakeOutputDevice{gate: make(chan struct{})}
	device.writeHook = func([]byte) { p.StopImmediately() }
	p = NewPlayback(device, WithSubChunkSize(2), WithPollInterval(5*time.Millisecond))

	p.Enqueue([]byte{1, 2, 3, 4, 5, 6})
	p.Enqueue([]byte{7, 8})
	close(device.gate)

	waitFor(t, func() bool { return device.closedStreams() == 1 })
	if got := len(device.writes()); got != 1 {
		t.Fatalf("expected playback to stop after the first sub-chunk, got %d writes", got)
	}
	if p.Len() != 0 || p.IsPlaying() {
		t.Fatalf("expected queue cleared and playback idle, got len=%d playing=%t", p.Len(), p.IsPlaying())
	}
	p.Cleanup()
}

func TestPlaybackRestartsConsumerAfterStop(t *testing.T) {
	device := &fakeOutputDevice{}
	p := NewPlayback(device, WithPollInterval(5*time.Millisecond))

	p.Enqueue([]byte{1})
	waitFor(t, func() bool { return len(device.writes()) == 1 })
	p.StopImmediately()

	p.Enqueue([]byte{2})
	waitFor(t, func() bool { return len(device.writes()) == 2 })
	if device.openCalls() != 2 {
		t.Fatalf("expected a new output stream for the new consumer, got %d opens", device.openCalls())
	}

	p.Cleanup()
	if device.closedStreams() != 2 {
		t.Fatalf("expected both output streams closed, got %d", device.closedStreams())
	}
}

func TestPlaybackCleanupIsIdempotent(t *testing.T) {
	device := &fakeOutputDevice{}
	p := NewPlayback(device, WithPollInterval(5*time.Millisecond))
	p.Enqueue([]byte{1})
	waitFor(t, func() bool { return len(device.writes()) == 1 })

	p.Cleanup()
	p.Cleanup()

	if device.closedStreams() != 1 {
		t.Fatalf("expected exactly one stream close, got %d", device.closedStreams())
	}

	p.Enqueue([]byte{2})
	if device.openCalls() != 1 || p.Len() != 0 {
		t.Fatalf("expected enqueue after cleanup to be dropped, got opens=%d len=%d", device.openCalls(), p.Len())
	}
}

func TestPlaybackCleanupWithoutConsumer(t *testing.T) {
	p := NewPlayback(&fakeOutputDevice{})
	p.Cleanup()
	p.Cleanup()
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}
