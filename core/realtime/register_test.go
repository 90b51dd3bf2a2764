package realtime

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/koscakluka/ema-realtime/core/clients"
)

func TestRegistryLoadsRealtimeClient(t *testing.T) {
	registry := clients.NewRegistry()
	if err := Register(registry); err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	document := `
client: openai-realtime
mode: streaming
voice: echo
modalities: [text]
turn_detection:
  silence_duration: 300ms
`
	loaded, err := registry.Load(strings.NewReader(document))
	if err != nil {
		t.Fatalf("failed to load client: %v", err)
	}

	client, ok := loaded.(*Client)
	if !ok {
		t.Fatalf("expected *Client, got %T", loaded)
	}
	config := client.Session().Config
	if config.Mode != ModeStreaming || config.Voice != "echo" {
		t.Fatalf("expected configured mode and voice, got %+v", config)
	}
	if !slices.Equal(config.Modalities, []Modality{ModalityText}) {
		t.Fatalf("expected text modality only, got %v", config.Modalities)
	}
	if config.TurnDetection.SilenceDuration != 300*time.Millisecond {
		t.Fatalf("expected 300ms silence duration, got %v", config.TurnDetection.SilenceDuration)
	}
	if config.TurnDetection.Threshold != 0.5 || config.Model != DefaultModel {
		t.Fatalf("expected unset keys to keep defaults, got %+v", config)
	}

	capabilities := clients.CapabilitiesOf(client)
	if !slices.Contains(capabilities, clients.CapabilityStreaming) || slices.Contains(capabilities, clients.CapabilityTurnBased) {
		t.Fatalf("unexpected capabilities for streaming client %v", capabilities)
	}
}

func TestFactoryRejectsUnknownMode(t *testing.T) {
	registry := clients.NewRegistry()
	_ = Register(registry)

	_, err := registry.Load(strings.NewReader("client: openai-realtime\nmode: telepathy\n"))
	if !errors.Is(err, clients.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestFactoryValidatesModeSetByOptions(t *testing.T) {
	registry := clients.NewRegistry()
	_ = Register(registry, WithMode("telepathy"))

	if _, err := registry.New(clientName, nil); !errors.Is(err, clients.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for a mode set through options, got %v", err)
	}
}
