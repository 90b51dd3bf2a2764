package realtime

import (
	"context"
	"encoding/base64"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-realtime/core/events"
)

func responseCreated(id string) map[string]any {
	return map[string]any{"type": "response.created", "response": map[string]any{"id": id}}
}

func outputItemAdded(id string) map[string]any {
	return map[string]any{"type": "response.output_item.added", "item": map[string]any{"id": id}}
}

func audioDelta(itemID string, pcm []byte) map[string]any {
	return map[string]any{
		"type":    "response.audio.delta",
		"item_id": itemID,
		"delta":   base64.StdEncoding.EncodeToString(pcm),
	}
}

var speechStarted = map[string]any{"type": "input_audio_buffer.speech_started"}

func TestInterruptionCancelsThenTruncates(t *testing.T) {
	client, conn := newConnectedClient(t)

	var during []Session
	client.Events().Subscribe(events.KindUserInterruption, func(events.Event) {
		during = append(during, client.Session())
	})

	conn.push(t, responseCreated("R1"), outputItemAdded("I1"), speechStarted)
	runToEnd(t, client, conn)

	types := conn.requestTypes()
	if !slices.Equal(types, []string{requestResponseCancel, requestItemTruncate}) {
		t.Fatalf("expected cancel then truncate, got %v", types)
	}
	if id := conn.lastRequest(requestResponseCancel)["response_id"]; id != "R1" {
		t.Fatalf("expected cancel for R1, got %v", id)
	}
	truncate := conn.lastRequest(requestItemTruncate)
	if truncate["item_id"] != "I1" || truncate["content_index"] != float64(0) {
		t.Fatalf("unexpected truncate request %v", truncate)
	}

	if len(during) != 1 {
		t.Fatalf("expected one interruption notification, got %d", len(during))
	}
	if during[0].State != StateIdle || during[0].ResponseID != "" || during[0].ItemID != "" {
		t.Fatalf("expected idle session with cleared ids when notified, got %+v", during[0])
	}
}

func TestInterruptionWithoutItemOnlyCancels(t *testing.T) {
	client, conn := newConnectedClient(t)

	conn.push(t, responseCreated("R1"), speechStarted)
	runToEnd(t, client, conn)

	if types := conn.requestTypes(); !slices.Equal(types, []string{requestResponseCancel}) {
		t.Fatalf("expected only cancel, got %v", types)
	}
}

func TestSpeechWhileIdleOnlyNotifies(t *testing.T) {
	client, conn := newConnectedClient(t)

	var seen []events.Kind
	interruptions := 0
	client.Events().Subscribe(events.KindAny, func(event events.Event) {
		seen = append(seen, event.Type)
	})
	client.Events().Subscribe(events.KindUserInterruption, func(events.Event) {
		interruptions++
	})

	conn.push(t, speechStarted)
	runToEnd(t, client, conn)

	if types := conn.requestTypes(); len(types) != 0 {
		t.Fatalf("expected no requests while idle, got %v", types)
	}
	if interruptions != 1 {
		t.Fatalf("expected one interruption notification, got %d", interruptions)
	}
	expected := []events.Kind{events.KindUserInterruption, events.KindSpeechStarted}
	if !slices.Equal(seen, expected) {
		t.Fatalf("expected %v, got %v", expected, seen)
	}
}

func TestResponseDoneReturnsToIdle(t *testing.T) {
	client, conn := newConnectedClient(t)

	var sessions []Session
	client.Events().Subscribe(events.KindAny, func(events.Event) {
		sessions = append(sessions, client.Session())
	})

	conn.push(t,
		responseCreated("R1"),
		outputItemAdded("I1"),
		map[string]any{"type": "response.done"},
		speechStarted,
	)
	runToEnd(t, client, conn)

	if sessions[0].State != StateResponding || sessions[0].ResponseID != "R1" {
		t.Fatalf("expected responding after response.created, got %+v", sessions[0])
	}
	if sessions[1].ItemID != "I1" {
		t.Fatalf("expected item id after output item, got %+v", sessions[1])
	}
	if sessions[2].State != StateIdle || sessions[2].ResponseID != "" || sessions[2].ItemID != "" {
		t.Fatalf("expected idle after response.done, got %+v", sessions[2])
	}
	if types := conn.requestTypes(); len(types) != 0 {
		t.Fatalf("expected no cancel after the response was done, got %v", types)
	}
}

func TestSessionIdsOnlySetWhileResponding(t *testing.T) {
	client, conn := newConnectedClient(t)

	var violations []Session
	client.Events().Subscribe(events.KindAny, func(events.Event) {
		session := client.Session()
		if (session.ResponseID != "") != (session.State == StateResponding) ||
			(session.State == StateIdle && session.ItemID != "") {
			violations = append(violations, session)
		}
	})

	conn.push(t,
		outputItemAdded("I0"),
		responseCreated("R1"),
		outputItemAdded("I1"),
		speechStarted,
		outputItemAdded("I2"),
		responseCreated("R2"),
		map[string]any{"type": "response.done"},
		map[string]any{"type": "response.done"},
		speechStarted,
	)
	runToEnd(t, client, conn)

	if len(violations) != 0 {
		t.Fatalf("session ids set outside of a response: %+v", violations)
	}
}

func TestTruncateUsesPlayedAudio(t *testing.T) {
	// 4800 bytes of mono 24kHz linear16 is 100ms
	delta := make([]byte, 4800)

	tests := []struct {
		name     string
		played   func(string) time.Duration
		expected float64
	}{
		{name: "received audio", played: nil, expected: 100},
		{name: "played audio", played: func(string) time.Duration { return 40 * time.Millisecond }, expected: 40},
		{name: "clamped to received", played: func(string) time.Duration { return time.Second }, expected: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, conn := newConnectedClient(t, WithPlayedAudio(tt.played))

			conn.push(t, responseCreated("R1"), outputItemAdded("I1"), audioDelta("I1", delta), speechStarted)
			runToEnd(t, client, conn)

			truncate := conn.lastRequest(requestItemTruncate)
			if truncate == nil {
				t.Fatalf("expected truncate request")
			}
			if truncate["audio_end_ms"] != tt.expected {
				t.Fatalf("expected audio_end_ms %v, got %v", tt.expected, truncate["audio_end_ms"])
			}
		})
	}
}

func TestMalformedEventsAreDropped(t *testing.T) {
	client, conn := newConnectedClient(t)

	var seen []events.Kind
	client.Events().Subscribe(events.KindAny, func(event events.Event) {
		seen = append(seen, event.Type)
	})

	conn.inbound <- fakeMessage{data: []byte("not json")}
	conn.push(t,
		map[string]any{"no_type": true},
		map[string]any{"type": "response.created"},
		map[string]any{"type": "response.output_item.added"},
		map[string]any{"type": "response.text.delta", "delta": "hi"},
	)
	runToEnd(t, client, conn)

	if !slices.Equal(seen, []events.Kind{events.KindResponseTextDelta}) {
		t.Fatalf("expected only the valid event to be dispatched, got %v", seen)
	}
	if session := client.Session(); session.State != StateIdle {
		t.Fatalf("expected malformed events to leave state untouched, got %+v", session)
	}
}

func TestErrorEventsReachErrorSubscriber(t *testing.T) {
	client, conn := newConnectedClient(t)

	var messages []string
	client.Events().Subscribe(events.KindError, func(event events.Event) {
		messages = append(messages, ErrorMessage(event))
	})
	var afterError bool
	client.Events().Subscribe(events.KindResponseTextDelta, func(events.Event) {
		afterError = true
	})

	conn.push(t,
		map[string]any{"type": "error", "error": map[string]any{"type": "invalid_request_error", "message": "bad"}},
		map[string]any{"type": "response.text.delta", "delta": "still running"},
	)
	runToEnd(t, client, conn)

	if !slices.Equal(messages, []string{"bad"}) {
		t.Fatalf("expected error message to be forwarded, got %v", messages)
	}
	if !afterError {
		t.Fatalf("expected the loop to continue after an error event")
	}
}

func TestUnknownEventsPassThrough(t *testing.T) {
	client, conn := newConnectedClient(t)

	var received events.Event
	client.Events().Subscribe(events.Kind("rate_limits.updated"), func(event events.Event) {
		received = event
	})

	conn.push(t, map[string]any{"type": "rate_limits.updated", "rate_limits": []any{}})
	runToEnd(t, client, conn)

	if received.Type != "rate_limits.updated" || received.Payload["rate_limits"] == nil {
		t.Fatalf("expected unknown event to be forwarded untouched, got %+v", received)
	}
}

func TestRunReturnsConnectionErrorOnReadFailure(t *testing.T) {
	client, conn := newConnectedClient(t)
	readErr := errors.New("connection reset")
	conn.inbound <- fakeMessage{err: readErr}

	err := client.Run(context.Background())
	if !errors.Is(err, ErrConnection) || !errors.Is(err, readErr) {
		t.Fatalf("expected ErrConnection wrapping the read error, got %v", err)
	}
	if client.IsConnected() {
		t.Fatalf("expected connection to be released")
	}
}

func TestRunStopsWhenContextIsCancelled(t *testing.T) {
	client, _ := newConnectedClient(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("receive loop did not stop")
	}
	if client.IsConnected() {
		t.Fatalf("expected client to be disconnected")
	}
}

func TestRunStopsOnDisconnect(t *testing.T) {
	client, conn := newConnectedClient(t)

	running := make(chan struct{})
	client.Events().Subscribe(events.KindSessionUpdated, func(events.Event) { close(running) })
	conn.push(t, map[string]any{"type": "session.updated"})

	var wg sync.WaitGroup
	var runErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = client.Run(context.Background())
	}()

	<-running
	client.Disconnect()
	wg.Wait()
	if runErr != nil {
		t.Fatalf("expected clean shutdown, got %v", runErr)
	}
}

func TestRunWithoutConnection(t *testing.T) {
	if err := NewClient().Run(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestPayloadHelpers(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5}
	event := events.New(events.KindResponseAudioDelta, audioDelta("I1", pcm))

	decoded, err := AudioDelta(event)
	if err != nil {
		t.Fatalf("failed to decode audio delta: %v", err)
	}
	if !slices.Equal(decoded, pcm) {
		t.Fatalf("expected %v, got %v", pcm, decoded)
	}
	if n := decodedLen(event.StringField("delta")); n != len(pcm) {
		t.Fatalf("expected decoded length %d, got %d", len(pcm), n)
	}

	invalid := events.New(events.KindResponseAudioDelta, map[string]any{"delta": "!!!"})
	if _, err := AudioDelta(invalid); !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}

	text := events.New(events.KindResponseTextDelta, map[string]any{"delta": "hi"})
	if TextDelta(text) != "hi" {
		t.Fatalf("expected text delta, got %q", TextDelta(text))
	}
}
