package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/clients"
	"github.com/koscakluka/ema-realtime/core/events"
	"github.com/koscakluka/ema-realtime/core/realtime"
)

type textSender interface {
	SendText(ctx context.Context, text string) error
}

// session ties a model client to the local microphone and speakers.
type session struct {
	client   clients.ModelClient
	device   audio.InputDevice
	playback *audio.Playback
	tracker  *playedAudio

	streaming bool
	send      func(tea.Msg)

	mu      sync.Mutex
	capture *audio.Capture
}

func newSession(client clients.ModelClient, device audio.InputDevice, playback *audio.Playback, tracker *playedAudio) *session {
	return &session{
		client:    client,
		device:    device,
		playback:  playback,
		tracker:   tracker,
		streaming: clients.Supports(client, clients.CapabilityStreaming),
		send:      func(tea.Msg) {},
	}
}

// subscribe routes client events to playback and to the UI. Handlers run on
// the receive loop, so they only enqueue audio and pass messages on.
func (s *session) subscribe(send func(tea.Msg)) {
	s.send = send
	registry := s.client.Events()

	registry.Subscribe(events.KindResponseAudioDelta, func(event events.Event) {
		pcm, err := realtime.AudioDelta(event)
		if err != nil {
			send(errorMsg{err: err})
			return
		}
		s.tracker.add(event.StringField("item_id"), len(pcm))
		s.playback.Enqueue(pcm)
	})
	registry.Subscribe(events.KindUserInterruption, func(events.Event) {
		s.playback.StopImmediately()
		send(interruptedMsg{})
	})
	registry.Subscribe(events.KindResponseTextDelta, func(event events.Event) {
		send(assistantDeltaMsg(realtime.TextDelta(event)))
	})
	registry.Subscribe(events.KindResponseAudioTranscriptDelta, func(event events.Event) {
		send(assistantDeltaMsg(realtime.TextDelta(event)))
	})
	registry.Subscribe(events.KindInputTranscriptionCompleted, func(event events.Event) {
		send(userTranscriptMsg(realtime.Transcript(event)))
	})
	registry.Subscribe(events.KindResponseDone, func(events.Event) {
		send(responseDoneMsg{})
	})
	registry.Subscribe(events.KindError, func(event events.Event) {
		send(errorMsg{err: fmt.Errorf("server error: %s", realtime.ErrorMessage(event))})
	})
}

// startStreaming opens the microphone for good when the client detects turns
// by itself. Turn based clients record on demand instead.
func (s *session) startStreaming(ctx context.Context) error {
	if !s.streaming {
		return nil
	}
	streamer, ok := s.client.(clients.Streaming)
	if !ok {
		return fmt.Errorf("client %s cannot stream audio", s.client.Name())
	}

	capture := audio.NewCapture(s.device, audio.WithStreamingCallback(func(frame []byte) {
		if err := streamer.StreamAudio(ctx, frame); err != nil {
			s.send(errorMsg{err: err})
		}
	}))
	if err := capture.Start(ctx); err != nil {
		return fmt.Errorf("failed to start microphone: %w", err)
	}

	s.mu.Lock()
	s.capture = capture
	s.mu.Unlock()
	return nil
}

func (s *session) isRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture != nil && s.capture.IsRunning()
}

// toggleRecording starts a turn based recording, or stops the running one
// and submits it.
func (s *session) toggleRecording(ctx context.Context) tea.Cmd {
	committer, ok := s.client.(clients.TurnBased)
	if !ok || s.streaming {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capture == nil || !s.capture.IsRunning() {
		s.playback.StopImmediately()
		capture := audio.NewCapture(s.device)
		if err := capture.Start(ctx); err != nil {
			return errorCmd(fmt.Errorf("failed to start recording: %w", err))
		}
		s.capture = capture
		return nil
	}

	capture := s.capture
	return func() tea.Msg {
		recording, err := capture.Stop()
		if err != nil {
			return errorMsg{err: fmt.Errorf("failed to stop recording: %w", err)}
		}
		if recording == nil {
			// Another stop already submitted this recording.
			return nil
		}
		if err := committer.CommitAudio(ctx, recording); err != nil {
			return errorMsg{err: err}
		}
		return recordingSentMsg{duration: capture.EncodingInfo().Duration(len(recording))}
	}
}

func (s *session) sendText(ctx context.Context, text string) tea.Cmd {
	sender, ok := s.client.(textSender)
	if !ok {
		return errorCmd(fmt.Errorf("client %s does not accept text", s.client.Name()))
	}
	return func() tea.Msg {
		if err := sender.SendText(ctx, text); err != nil {
			return errorMsg{err: err}
		}
		return nil
	}
}

func (s *session) stopCapture() {
	s.mu.Lock()
	capture := s.capture
	s.mu.Unlock()
	if capture != nil {
		if _, err := capture.Stop(); err != nil {
			s.send(errorMsg{err: err})
		}
	}
}

// playedAudio estimates how much of the latest output item has actually
// left the speakers: everything enqueued minus what is still waiting.
type playedAudio struct {
	playback *audio.Playback

	mu       sync.Mutex
	itemID   string
	enqueued int
}

func newPlayedAudio(playback *audio.Playback) *playedAudio {
	return &playedAudio{playback: playback}
}

func (p *playedAudio) add(itemID string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if itemID != p.itemID {
		p.itemID = itemID
		p.enqueued = 0
	}
	p.enqueued += n
}

func (p *playedAudio) played(itemID string) time.Duration {
	p.mu.Lock()
	enqueued := p.enqueued
	current := p.itemID
	p.mu.Unlock()
	if itemID != current {
		return 0
	}

	queued := 0
	for _, chunk := range p.playback.Queued() {
		queued += len(chunk)
	}
	return audio.GetDefaultEncodingInfo().Duration(max(enqueued-queued, 0))
}
