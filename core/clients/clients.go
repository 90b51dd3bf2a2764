// Package clients describes what a conversational model client can do and
// builds clients from named configurations.
package clients

import (
	"context"

	"github.com/koscakluka/ema-realtime/core/events"
)

// ModelClient is a live connection to a conversational model. Inbound events
// are published through Events while Run is active.
type ModelClient interface {
	Name() string
	Connect(ctx context.Context) error
	Run(ctx context.Context) error
	Disconnect()
	Events() *events.Registry
}

// TurnBased clients take user input one complete turn at a time.
type TurnBased interface {
	ModelClient
	SendText(ctx context.Context, text string) error
	CommitAudio(ctx context.Context, recording []byte) error
}

// Streaming clients take user audio continuously and detect turns
// themselves.
type Streaming interface {
	ModelClient
	StreamAudio(ctx context.Context, chunk []byte) error
}

type Capability string

const (
	CapabilityText      Capability = "text"
	CapabilityTurnBased Capability = "turn_based_audio"
	CapabilityStreaming Capability = "streaming_audio"
	CapabilityTools     Capability = "tools"
)

// Capable is implemented by clients whose capabilities depend on their
// configuration rather than on the methods they have.
type Capable interface {
	Capabilities() []Capability
}

// CapabilitiesOf reports what client can do, preferring what the client says
// about itself over the interfaces it implements.
func CapabilitiesOf(client ModelClient) []Capability {
	if capable, ok := client.(Capable); ok {
		return capable.Capabilities()
	}

	capabilities := []Capability{}
	if _, ok := client.(TurnBased); ok {
		capabilities = append(capabilities, CapabilityText, CapabilityTurnBased)
	}
	if _, ok := client.(Streaming); ok {
		capabilities = append(capabilities, CapabilityStreaming)
	}
	return capabilities
}

func Supports(client ModelClient, capability Capability) bool {
	for _, c := range CapabilitiesOf(client) {
		if c == capability {
			return true
		}
	}
	return false
}
