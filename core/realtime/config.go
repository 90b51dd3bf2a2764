package realtime

import (
	"time"

	"github.com/koscakluka/ema-realtime/core/audio"
)

const (
	DefaultURL         = "wss://api.openai.com/v1/realtime"
	DefaultSessionsURL = "https://api.openai.com/v1/realtime/sessions"
	DefaultModel       = "gpt-4o-realtime-preview-2024-10-01"
	DefaultVoice       = "alloy"
	DefaultAudioFormat = "pcm16"
	DefaultToolChoice  = "auto"

	apiKeyEnv = "OPENAI_API_KEY"
)

// Mode selects how user audio reaches the model.
type Mode string

const (
	// ModeTurnBased submits complete recordings with CommitAudio.
	ModeTurnBased Mode = "turn_based"
	// ModeStreaming appends captured audio continuously with StreamAudio and
	// relies on server-side turn detection.
	ModeStreaming Mode = "streaming"
)

type Modality string

const (
	ModalityText  Modality = "text"
	ModalityAudio Modality = "audio"
)

type TurnDetection struct {
	Type string `yaml:"type"`
	// Threshold is the voice activation threshold, 0 to 1.
	Threshold float64 `yaml:"threshold"`
	// PrefixPadding is audio kept from before speech was detected.
	PrefixPadding time.Duration `yaml:"prefix_padding"`
	// SilenceDuration is how much silence ends a turn.
	SilenceDuration time.Duration `yaml:"silence_duration"`
}

// Config describes one realtime session. Tools are set in code, every other
// field can come from a YAML client configuration.
type Config struct {
	URL         string `yaml:"url"`
	SessionsURL string `yaml:"sessions_url"`
	Model       string `yaml:"model"`
	// APIKey falls back to the OPENAI_API_KEY environment variable.
	APIKey string `yaml:"api_key"`
	// EphemeralKey exchanges the API key for a short lived client secret
	// before every connection.
	EphemeralKey bool `yaml:"ephemeral_key"`
	Mode         Mode `yaml:"mode"`

	Modalities         []Modality    `yaml:"modalities"`
	Instructions       string        `yaml:"instructions"`
	Voice              string        `yaml:"voice"`
	InputAudioFormat   string        `yaml:"input_audio_format"`
	OutputAudioFormat  string        `yaml:"output_audio_format"`
	TranscriptionModel string        `yaml:"transcription_model"`
	TurnDetection      TurnDetection `yaml:"turn_detection"`
	Tools              []Tool        `yaml:"-"`
	ToolChoice         string        `yaml:"tool_choice"`
	Temperature        float64       `yaml:"temperature"`
}

func DefaultConfig() Config {
	return Config{
		URL:                DefaultURL,
		SessionsURL:        DefaultSessionsURL,
		Model:              DefaultModel,
		Mode:               ModeTurnBased,
		Modalities:         []Modality{ModalityText, ModalityAudio},
		Instructions:       "You are a helpful assistant. Start the conversation with a greeting.",
		Voice:              DefaultVoice,
		InputAudioFormat:   DefaultAudioFormat,
		OutputAudioFormat:  DefaultAudioFormat,
		TranscriptionModel: "whisper-1",
		TurnDetection: TurnDetection{
			Type:            "server_vad",
			Threshold:       0.5,
			PrefixPadding:   500 * time.Millisecond,
			SilenceDuration: 200 * time.Millisecond,
		},
		ToolChoice:  DefaultToolChoice,
		Temperature: 0.8,
	}
}

// audioEncoding is the PCM layout behind the pcm16 wire format.
func audioEncoding() audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: audio.DefaultSampleRate, Format: audio.EncodingLinear16, Channels: 1}
}
