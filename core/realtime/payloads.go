package realtime

import (
	"encoding/base64"
	"fmt"

	"github.com/koscakluka/ema-realtime/core/events"
)

// AudioDelta decodes the audio carried by a response.audio.delta event. The
// audio is in the session's output format, mono 24kHz linear16 for pcm16.
func AudioDelta(event events.Event) ([]byte, error) {
	delta := event.StringField("delta")
	if delta == "" {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(delta)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid audio delta: %w", ErrProtocol, err)
	}
	return decoded, nil
}

// TextDelta returns the text of a text or transcript delta event.
func TextDelta(event events.Event) string {
	return event.StringField("delta")
}

// Transcript returns the transcript of a completed input transcription.
func Transcript(event events.Event) string {
	return event.StringField("transcript")
}

func ErrorMessage(event events.Event) string {
	if message := event.StringField("error", "message"); message != "" {
		return message
	}
	return event.StringField("message")
}
