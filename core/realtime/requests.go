package realtime

import (
	"encoding/base64"

	"github.com/google/uuid"
)

// Outbound request types.
const (
	requestSessionUpdate       = "session.update"
	requestItemCreate          = "conversation.item.create"
	requestItemTruncate        = "conversation.item.truncate"
	requestResponseCreate      = "response.create"
	requestResponseCancel      = "response.cancel"
	requestInputAudioAppend    = "input_audio_buffer.append"
	requestInputAudioCommit    = "input_audio_buffer.commit"
	contentTypeInputText       = "input_text"
	itemTypeMessage            = "message"
	itemTypeFunctionCallOutput = "function_call_output"
)

type request struct {
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`
}

func newRequest(typ string) request {
	return request{EventID: "evt_" + uuid.NewString(), Type: typ}
}

type sessionUpdateRequest struct {
	request
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Modalities              []Modality           `json:"modalities"`
	Instructions            string               `json:"instructions"`
	Voice                   string               `json:"voice"`
	InputAudioFormat        string               `json:"input_audio_format"`
	OutputAudioFormat       string               `json:"output_audio_format"`
	InputAudioTranscription *transcriptionConfig `json:"input_audio_transcription,omitempty"`
	TurnDetection           *turnDetectionConfig `json:"turn_detection"`
	Tools                   []wireTool           `json:"tools"`
	ToolChoice              string               `json:"tool_choice,omitempty"`
	Temperature             float64              `json:"temperature"`
}

type transcriptionConfig struct {
	Model string `json:"model"`
}

type turnDetectionConfig struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int64   `json:"prefix_padding_ms"`
	SilenceDurationMs int64   `json:"silence_duration_ms"`
}

func newSessionUpdate(config Config) (sessionUpdateRequest, error) {
	tools, err := toWireTools(config.Tools)
	if err != nil {
		return sessionUpdateRequest{}, err
	}

	modalities := config.Modalities
	if modalities == nil {
		modalities = []Modality{}
	}

	session := sessionConfig{
		Modalities:        modalities,
		Instructions:      config.Instructions,
		Voice:             config.Voice,
		InputAudioFormat:  config.InputAudioFormat,
		OutputAudioFormat: config.OutputAudioFormat,
		Tools:             tools,
		ToolChoice:        config.ToolChoice,
		Temperature:       config.Temperature,
	}
	if config.TranscriptionModel != "" {
		session.InputAudioTranscription = &transcriptionConfig{Model: config.TranscriptionModel}
	}
	if config.TurnDetection.Type != "" {
		session.TurnDetection = &turnDetectionConfig{
			Type:              config.TurnDetection.Type,
			Threshold:         config.TurnDetection.Threshold,
			PrefixPaddingMs:   config.TurnDetection.PrefixPadding.Milliseconds(),
			SilenceDurationMs: config.TurnDetection.SilenceDuration.Milliseconds(),
		}
	}

	return sessionUpdateRequest{request: newRequest(requestSessionUpdate), Session: session}, nil
}

type itemCreateRequest struct {
	request
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	Content []itemContent `json:"content,omitempty"`
	CallID  string        `json:"call_id,omitempty"`
	Output  *string       `json:"output,omitempty"`
}

type itemContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func newUserText(text string) itemCreateRequest {
	return itemCreateRequest{
		request: newRequest(requestItemCreate),
		Item: conversationItem{
			Type:    itemTypeMessage,
			Role:    "user",
			Content: []itemContent{{Type: contentTypeInputText, Text: text}},
		},
	}
}

func newFunctionOutput(callID, output string) itemCreateRequest {
	return itemCreateRequest{
		request: newRequest(requestItemCreate),
		Item: conversationItem{
			Type:   itemTypeFunctionCallOutput,
			CallID: callID,
			Output: &output,
		},
	}
}

type responseCreateRequest struct {
	request
	Response responseConfig `json:"response"`
}

type responseConfig struct {
	Modalities []Modality `json:"modalities"`
}

func newResponseCreate(modalities []Modality) responseCreateRequest {
	return responseCreateRequest{
		request:  newRequest(requestResponseCreate),
		Response: responseConfig{Modalities: modalities},
	}
}

type responseCancelRequest struct {
	request
	ResponseID string `json:"response_id,omitempty"`
}

func newResponseCancel(responseID string) responseCancelRequest {
	return responseCancelRequest{request: newRequest(requestResponseCancel), ResponseID: responseID}
}

type itemTruncateRequest struct {
	request
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMs   int64  `json:"audio_end_ms"`
}

func newItemTruncate(itemID string, audioEndMs int64) itemTruncateRequest {
	return itemTruncateRequest{
		request:    newRequest(requestItemTruncate),
		ItemID:     itemID,
		AudioEndMs: audioEndMs,
	}
}

type audioAppendRequest struct {
	request
	Audio string `json:"audio"`
}

func newAudioAppend(pcm []byte) audioAppendRequest {
	return audioAppendRequest{
		request: newRequest(requestInputAudioAppend),
		Audio:   base64.StdEncoding.EncodeToString(pcm),
	}
}

func newAudioCommit() request {
	return newRequest(requestInputAudioCommit)
}
