package realtime

import (
	"fmt"

	"github.com/koscakluka/ema-realtime/core/clients"
)

// Register makes the client available as "openai-realtime". opts are applied
// on top of every decoded configuration.
func Register(registry *clients.Registry, opts ...ClientOption) error {
	return registry.Register(clientName, NewFactory(opts...))
}

// NewFactory builds clients from the defaults overlaid with the decoded
// configuration and then opts. The result is validated after opts apply.
func NewFactory(opts ...ClientOption) clients.Factory {
	return func(decode clients.Decoder) (clients.ModelClient, error) {
		config := DefaultConfig()
		if err := decode(&config); err != nil {
			return nil, err
		}
		client := NewClient(append([]ClientOption{WithConfig(config)}, opts...)...)
		switch client.config.Mode {
		case ModeTurnBased, ModeStreaming:
		default:
			return nil, fmt.Errorf("%w: unknown mode %q", clients.ErrInvalidConfig, client.config.Mode)
		}
		return client, nil
	}
}

// Capabilities depend on the configured mode: a streaming client cannot
// commit recordings and a turn based one cannot stream.
func (c *Client) Capabilities() []clients.Capability {
	capabilities := []clients.Capability{clients.CapabilityText, clients.CapabilityTools}
	switch c.config.Mode {
	case ModeStreaming:
		capabilities = append(capabilities, clients.CapabilityStreaming)
	case ModeTurnBased:
		capabilities = append(capabilities, clients.CapabilityTurnBased)
	}
	return capabilities
}

var (
	_ clients.TurnBased = (*Client)(nil)
	_ clients.Streaming = (*Client)(nil)
	_ clients.Capable   = (*Client)(nil)
)
