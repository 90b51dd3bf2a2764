package events

import "time"

// Kind identifies the type of an event. Inbound kinds mirror the "type" field
// of the realtime protocol; kinds the engine does not know about are still
// valid and are passed through to subscribers untouched.
type Kind string

const (
	// KindAny is the wildcard sentinel. A handler subscribed under it is
	// invoked for every dispatched event.
	KindAny Kind = "*"

	KindError                        Kind = "error"
	KindSessionCreated               Kind = "session.created"
	KindSessionUpdated               Kind = "session.updated"
	KindResponseCreated              Kind = "response.created"
	KindResponseOutputItemAdded      Kind = "response.output_item.added"
	KindResponseDone                 Kind = "response.done"
	KindResponseTextDelta            Kind = "response.text.delta"
	KindResponseAudioDelta           Kind = "response.audio.delta"
	KindResponseAudioTranscriptDelta Kind = "response.audio_transcript.delta"
	KindFunctionCallArgumentsDone    Kind = "response.function_call_arguments.done"
	KindSpeechStarted                Kind = "input_audio_buffer.speech_started"
	KindSpeechStopped                Kind = "input_audio_buffer.speech_stopped"
	KindInputTranscriptionCompleted  Kind = "conversation.item.input_audio_transcription.completed"

	// KindUserInterruption is raised locally whenever the user starts
	// speaking, so local playback can be stopped.
	KindUserInterruption Kind = "user.interruption"
)

var knownKinds = map[Kind]struct{}{
	KindError:                        {},
	KindSessionCreated:               {},
	KindSessionUpdated:               {},
	KindResponseCreated:              {},
	KindResponseOutputItemAdded:      {},
	KindResponseDone:                 {},
	KindResponseTextDelta:            {},
	KindResponseAudioDelta:           {},
	KindResponseAudioTranscriptDelta: {},
	KindFunctionCallArgumentsDone:    {},
	KindSpeechStarted:                {},
	KindSpeechStopped:                {},
	KindInputTranscriptionCompleted:  {},
	KindUserInterruption:             {},
}

// IsKnown reports whether the kind is one the session engine interprets or
// raises itself.
func (k Kind) IsKnown() bool {
	_, ok := knownKinds[k]
	return ok
}

func (k Kind) String() string { return string(k) }

// Event is a single inbound (or locally raised) event. It is never modified
// after creation, subscribers must treat Payload as read-only.
type Event struct {
	Type    Kind
	Payload map[string]any
	// CallID is set for events tied to a function call.
	CallID string

	receivedAt time.Time
}

func New(kind Kind, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	event := Event{Type: kind, Payload: payload, receivedAt: time.Now()}
	if callID, ok := payload["call_id"].(string); ok {
		event.CallID = callID
	}
	return event
}

func (e Event) Kind() Kind { return e.Type }

func (e Event) Timestamp() time.Time { return e.receivedAt }

// Field walks nested objects of the payload, e.g. Field("response", "id").
func (e Event) Field(path ...string) (any, bool) {
	var current any = e.Payload
	for _, key := range path {
		object, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = object[key]; !ok {
			return nil, false
		}
	}
	return current, true
}

// StringField is Field for string values, returning "" when the value is
// missing or not a string.
func (e Event) StringField(path ...string) string {
	value, ok := e.Field(path...)
	if !ok {
		return ""
	}
	s, _ := value.(string)
	return s
}
