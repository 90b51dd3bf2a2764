package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/koscakluka/ema-realtime/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Run consumes inbound events in arrival order until the connection closes.
// For every event the session state is updated first and the event is then
// dispatched through the registry, so handlers always observe the new state.
//
// Run returns nil when the connection is closed, by either side or by
// cancelling ctx, and an ErrConnection wrapped error when reading fails
// unexpectedly. Only one Run may be active per connection.
func (c *Client) Run(ctx context.Context) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	stop := context.AfterFunc(ctx, c.Disconnect)
	defer stop()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			closedLocally := c.release(conn)
			if closedLocally || ctx.Err() != nil || isClosure(err) {
				logger.Debug("realtime receive loop finished", "reason", err)
				return nil
			}
			logger.Error("realtime connection failed", "error", err)
			return fmt.Errorf("%w: failed to read event: %w", ErrConnection, err)
		}

		event, err := parseEvent(message)
		if err != nil {
			logger.Warn("dropping inbound event", "error", err)
			continue
		}
		c.handle(ctx, event)
	}
}

// release disconnects conn unless it has already been replaced or closed
// locally, which it reports.
func (c *Client) release(conn Conn) (closedLocally bool) {
	c.connMu.Lock()
	current := c.conn
	c.connMu.Unlock()
	if current != conn {
		return true
	}
	c.Disconnect()
	return false
}

func parseEvent(message []byte) (events.Event, error) {
	var payload map[string]any
	if err := json.Unmarshal(message, &payload); err != nil {
		return events.Event{}, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	kind, _ := payload["type"].(string)
	if kind == "" {
		return events.Event{}, fmt.Errorf("%w: event without type", ErrProtocol)
	}
	return events.New(events.Kind(kind), payload), nil
}

func (c *Client) handle(ctx context.Context, event events.Event) {
	if c.eventsReceived != nil {
		c.eventsReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", string(event.Type))))
	}

	switch event.Type {
	case events.KindResponseCreated:
		responseID := event.StringField("response", "id")
		if responseID == "" {
			logger.Warn("dropping inbound event", "error", fmt.Errorf("%w: response.created without response id", ErrProtocol))
			return
		}
		c.stateMu.Lock()
		c.state = StateResponding
		c.responseID = responseID
		c.itemID = ""
		c.stateMu.Unlock()

	case events.KindResponseOutputItemAdded:
		itemID := event.StringField("item", "id")
		if itemID == "" {
			logger.Warn("dropping inbound event", "error", fmt.Errorf("%w: output item without id", ErrProtocol))
			return
		}
		c.stateMu.Lock()
		if c.state == StateResponding {
			c.itemID = itemID
		} else {
			logger.Debug("ignoring output item outside of a response", "item_id", itemID)
		}
		c.stateMu.Unlock()

	case events.KindResponseDone:
		c.stateMu.Lock()
		c.resetSessionLocked()
		c.stateMu.Unlock()

	case events.KindResponseAudioDelta:
		if itemID := event.StringField("item_id"); itemID != "" {
			c.stateMu.Lock()
			if c.state == StateResponding {
				c.itemAudio[itemID] += decodedLen(event.StringField("delta"))
			}
			c.stateMu.Unlock()
		}

	case events.KindSpeechStarted:
		c.interrupt(ctx)

	case events.KindError:
		logger.Warn("realtime server reported an error",
			"code", event.StringField("error", "code"),
			"message", ErrorMessage(event),
		)

	default:
		if !event.Type.IsKnown() {
			logger.Debug("passing through unrecognised event", "type", string(event.Type))
		}
	}

	c.events.Dispatch(event)
}

// interrupt cancels the response in flight, truncates its output item to the
// audio the user heard and returns to idle, in that order. Interruption
// subscribers are notified afterwards whether or not anything was cancelled.
func (c *Client) interrupt(ctx context.Context) {
	c.stateMu.Lock()
	state, responseID, itemID := c.state, c.responseID, c.itemID
	received := audioEncoding().Duration(c.itemAudio[itemID])
	c.stateMu.Unlock()

	if state == StateResponding {
		ctx, span := tracer.Start(ctx, "interrupt response", trace.WithAttributes(
			attribute.String("realtime.response_id", responseID),
			attribute.String("realtime.item_id", itemID),
		))

		if responseID != "" {
			if err := c.send(ctx, newResponseCancel(responseID)); err != nil {
				err = fmt.Errorf("failed to cancel response %s: %w", responseID, err)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				logger.Error("interruption failed", "error", err)
			}
		}

		if itemID != "" {
			played := received
			if c.playedAudio != nil {
				played = min(c.playedAudio(itemID), received)
			}
			if err := c.send(ctx, newItemTruncate(itemID, played.Milliseconds())); err != nil {
				err = fmt.Errorf("failed to truncate item %s: %w", itemID, err)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				logger.Error("interruption failed", "error", err)
			}
		}

		c.stateMu.Lock()
		c.resetSessionLocked()
		c.stateMu.Unlock()

		if c.interruptions != nil {
			c.interruptions.Add(ctx, 1)
		}
		span.End()
	}

	c.events.Dispatch(events.New(events.KindUserInterruption, map[string]any{
		"type":        string(events.KindUserInterruption),
		"response_id": responseID,
		"item_id":     itemID,
	}))
}

// decodedLen is the exact length of standard, padded base64 once decoded.
func decodedLen(encoded string) int {
	if len(encoded) == 0 {
		return 0
	}
	padding := len(encoded) - len(strings.TrimRight(encoded, "="))
	return len(encoded)/4*3 - padding
}
