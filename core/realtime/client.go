package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const clientName = "openai-realtime"

type State int

const (
	StateIdle State = iota
	StateResponding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResponding:
		return "responding"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Session is a snapshot of the live session. ResponseID and ItemID are only
// ever set while State is StateResponding.
type Session struct {
	State      State
	ResponseID string
	ItemID     string
	Config     Config
}

// Client drives one realtime conversation over a websocket. Connect opens the
// session, Run consumes inbound events until the connection closes, and the
// Send, Stream and Commit methods write requests in between.
type Client struct {
	config      Config
	dial        Dialer
	events      *events.Registry
	playedAudio func(itemID string) time.Duration

	// connMu serializes writes, the websocket allows a single writer.
	connMu sync.Mutex
	conn   Conn

	stateMu    sync.Mutex
	state      State
	responseID string
	itemID     string
	// itemAudio counts audio delta bytes received per output item.
	itemAudio map[string]int

	eventsReceived metric.Int64Counter
	interruptions  metric.Int64Counter
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		config:    DefaultConfig(),
		dial:      WebsocketDialer,
		events:    events.NewRegistry(),
		itemAudio: map[string]int{},
	}
	for _, opt := range opts {
		opt(c)
	}

	var err error
	if c.eventsReceived, err = meter.Int64Counter("realtime.events.received",
		metric.WithDescription("Inbound realtime events by type"),
	); err != nil {
		logger.Warn("failed to create events counter", "error", err)
	}
	if c.interruptions, err = meter.Int64Counter("realtime.interruptions",
		metric.WithDescription("Responses cancelled because the user started speaking"),
	); err != nil {
		logger.Warn("failed to create interruptions counter", "error", err)
	}

	return c
}

func (c *Client) Name() string { return clientName }

func (c *Client) Mode() Mode { return c.config.Mode }

// Events is the registry inbound events are dispatched through.
func (c *Client) Events() *events.Registry { return c.events }

func (c *Client) Session() Session {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return Session{
		State:      c.state,
		ResponseID: c.responseID,
		ItemID:     c.itemID,
		Config:     c.config,
	}
}

func (c *Client) IsConnected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn != nil
}

// Connect opens the websocket and configures the session. On failure the
// connection is closed and nothing is retained, Connect can simply be called
// again.
func (c *Client) Connect(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "connect realtime session")
	defer span.End()
	span.SetAttributes(
		attribute.String("realtime.model", c.config.Model),
		attribute.String("realtime.mode", string(c.config.Mode)),
	)

	err := c.connect(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		return nil
	}

	update, err := newSessionUpdate(c.config)
	if err != nil {
		return fmt.Errorf("%w: failed to build session configuration: %w", ErrConnection, err)
	}

	apiKey, err := c.apiKey(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	endpoint, header, err := c.endpoint(apiKey)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	conn, err := c.dial(ctx, endpoint, header)
	if err != nil {
		return fmt.Errorf("%w: failed to dial %s: %w", ErrConnection, c.config.URL, err)
	}

	if err := conn.WriteJSON(update); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close connection after failed configuration", "error", closeErr)
		}
		return fmt.Errorf("%w: failed to configure session: %w", ErrConnection, err)
	}

	c.resetSession()
	c.conn = conn
	logger.Info("realtime session connected", "model", c.config.Model, "mode", string(c.config.Mode))
	return nil
}

func lookupAPIKey() (string, bool) {
	apiKey, ok := os.LookupEnv(apiKeyEnv)
	return apiKey, ok && apiKey != ""
}

// apiKey resolves the key used to authenticate the websocket, minting an
// ephemeral one when configured to.
func (c *Client) apiKey(ctx context.Context) (string, error) {
	apiKey := c.config.APIKey
	if apiKey == "" {
		var ok bool
		if apiKey, ok = lookupAPIKey(); !ok {
			return "", fmt.Errorf("%s not set", apiKeyEnv)
		}
	}
	if !c.config.EphemeralKey {
		return apiKey, nil
	}

	config := c.config
	config.APIKey = apiKey
	key, err := NewEphemeralKey(ctx, config)
	if err != nil {
		return "", fmt.Errorf("failed to create ephemeral key: %w", err)
	}
	return key.Value, nil
}

func (c *Client) endpoint(apiKey string) (string, http.Header, error) {
	rawURL := c.config.URL
	if rawURL == "" {
		rawURL = DefaultURL
	}
	endpoint, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, fmt.Errorf("invalid realtime url %q: %w", rawURL, err)
	}
	if c.config.Model != "" {
		query := endpoint.Query()
		query.Set("model", c.config.Model)
		endpoint.RawQuery = query.Encode()
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+apiKey)
	header.Set("OpenAI-Beta", "realtime=v1")
	return endpoint.String(), header, nil
}

// Disconnect closes the connection if one is open. It is safe to call any
// number of times and from error handling paths; teardown errors are only
// logged.
func (c *Client) Disconnect() {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	if conn != nil {
		closeFrame := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		err := errors.Join(
			conn.WriteMessage(websocket.CloseMessage, closeFrame),
			conn.Close(),
		)
		if err != nil {
			logger.Debug("realtime connection teardown", "error", err)
		}
	}
	c.connMu.Unlock()

	if conn != nil {
		c.stateMu.Lock()
		c.resetSessionLocked()
		c.stateMu.Unlock()
		logger.Info("realtime session disconnected")
	}
}

// SendText adds a user message to the conversation and asks for a response.
func (c *Client) SendText(ctx context.Context, text string) error {
	if err := c.send(ctx, newUserText(text)); err != nil {
		return err
	}
	return c.send(ctx, newResponseCreate(c.config.Modalities))
}

// StreamAudio appends a chunk of mono 24kHz linear16 audio to the input
// buffer. Server turn detection decides when the turn ends, nothing is
// committed.
func (c *Client) StreamAudio(ctx context.Context, chunk []byte) error {
	if c.config.Mode != ModeStreaming {
		return fmt.Errorf("stream audio: %w", ErrUnsupported)
	}
	if len(chunk) == 0 {
		return nil
	}
	return c.send(ctx, newAudioAppend(chunk))
}

// CommitAudio submits a complete recording as one user turn. WAV and MP3
// input is converted to the wire format first.
func (c *Client) CommitAudio(ctx context.Context, recording []byte) error {
	if c.config.Mode != ModeTurnBased {
		return fmt.Errorf("commit audio: %w", ErrUnsupported)
	}

	pcm, err := audio.Convert(recording, audioEncoding())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFormat, err)
	}

	if err := c.send(ctx, newAudioAppend(pcm)); err != nil {
		return err
	}
	return c.send(ctx, newAudioCommit())
}

// SendFunctionResult answers a function call and asks the model to continue.
func (c *Client) SendFunctionResult(ctx context.Context, callID, result string) error {
	if err := c.send(ctx, newFunctionOutput(callID, result)); err != nil {
		return err
	}
	return c.send(ctx, newResponseCreate(c.config.Modalities))
}

func (c *Client) send(ctx context.Context, request any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.WriteJSON(request); err != nil {
		c.dropConnLocked()
		return fmt.Errorf("%w: failed to send request: %w", ErrConnection, err)
	}
	return nil
}

// dropConnLocked abandons a connection that failed a write so the next
// Connect dials again. The receive loop sees the closed connection and exits.
// Must be called with connMu held.
func (c *Client) dropConnLocked() {
	conn := c.conn
	c.conn = nil
	if err := conn.Close(); err != nil {
		logger.Debug("failed to close broken connection", "error", err)
	}

	c.stateMu.Lock()
	c.resetSessionLocked()
	c.stateMu.Unlock()
	logger.Warn("realtime connection dropped after a failed write")
}

func (c *Client) resetSession() {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.resetSessionLocked()
}

func (c *Client) resetSessionLocked() {
	c.state = StateIdle
	c.responseID = ""
	c.itemID = ""
	clear(c.itemAudio)
}
