package realtime

import (
	"time"

	"github.com/koscakluka/ema-realtime/core/events"
)

type ClientOption func(*Client)

// WithConfig replaces the whole configuration. Options applied after it
// still adjust individual fields.
func WithConfig(config Config) ClientOption {
	return func(c *Client) { c.config = config }
}

func WithMode(mode Mode) ClientOption {
	return func(c *Client) { c.config.Mode = mode }
}

func WithInstructions(instructions string) ClientOption {
	return func(c *Client) { c.config.Instructions = instructions }
}

func WithVoice(voice string) ClientOption {
	return func(c *Client) { c.config.Voice = voice }
}

func WithModel(model string) ClientOption {
	return func(c *Client) { c.config.Model = model }
}

func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) { c.config.APIKey = apiKey }
}

func WithEphemeralKey() ClientOption {
	return func(c *Client) { c.config.EphemeralKey = true }
}

func WithTools(tools ...Tool) ClientOption {
	return func(c *Client) { c.config.Tools = append(c.config.Tools, tools...) }
}

// WithDialer replaces the websocket transport, mostly useful in tests.
func WithDialer(dialer Dialer) ClientOption {
	return func(c *Client) {
		if dialer != nil {
			c.dial = dialer
		}
	}
}

// WithEventRegistry shares an existing registry instead of creating one.
func WithEventRegistry(registry *events.Registry) ClientOption {
	return func(c *Client) {
		if registry != nil {
			c.events = registry
		}
	}
}

// WithPlayedAudio reports how much of an output item the user actually
// heard. It is used to truncate the item when the user interrupts; without
// it the duration of all received audio for the item is used.
func WithPlayedAudio(played func(itemID string) time.Duration) ClientOption {
	return func(c *Client) { c.playedAudio = played }
}
