package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-realtime/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Tool describes a function the model may call. Execute is optional; tools
// without it have to be answered with SendFunctionResult by the caller.
type Tool struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
	Execute     func(ctx context.Context, arguments string) (string, error)
}

// NewTool builds a tool whose parameter schema is reflected from T. The
// model's JSON arguments are decoded into T before execute is called.
func NewTool[T any](name, description string, execute func(ctx context.Context, parameters T) (string, error)) Tool {
	reflector := jsonschema.Reflector{DoNotReference: true}
	var zero T
	schema := reflector.Reflect(&zero)
	schema.Version = ""
	schema.ID = ""

	tool := Tool{Name: name, Description: description, Parameters: schema}
	if execute != nil {
		tool.Execute = func(ctx context.Context, arguments string) (string, error) {
			var parameters T
			if arguments != "" {
				if err := json.Unmarshal([]byte(arguments), &parameters); err != nil {
					return "", fmt.Errorf("failed to decode arguments for %q: %w", name, err)
				}
			}
			return execute(ctx, parameters)
		}
	}
	return tool
}

// wireTool is a tool as the session.update request expects it; the API
// wants the "function" discriminator on every entry.
type wireTool struct {
	Type        string             `json:"type"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

func toWireTools(tools []Tool) ([]wireTool, error) {
	wire := make([]wireTool, 0, len(tools))
	if len(tools) == 0 {
		return wire, nil
	}

	if err := copier.Copy(&wire, tools); err != nil {
		return nil, fmt.Errorf("failed to copy tool descriptors: %w", err)
	}
	for i := range wire {
		wire[i].Type = "function"
		if wire[i].Parameters == nil {
			wire[i].Parameters = &jsonschema.Schema{Type: "object"}
		}
	}
	return wire, nil
}

// HandleToolCalls executes configured tools when the model asks for them and
// sends their results back. Tools run on their own goroutine so the receive
// loop is never blocked. It occupies the function-call-arguments subscription.
func (c *Client) HandleToolCalls(ctx context.Context) (unsubscribe func()) {
	return c.events.Subscribe(events.KindFunctionCallArgumentsDone, func(event events.Event) {
		callID := event.CallID
		name := event.StringField("name")
		arguments := event.StringField("arguments")
		if callID == "" || name == "" {
			logger.Warn("ignoring function call without id or name", "call_id", callID, "name", name)
			return
		}
		go func() {
			if err := c.callTool(ctx, callID, name, arguments); err != nil {
				logger.Error("failed to answer function call", "call_id", callID, "tool", name, "error", err)
			}
		}()
	})
}

func (c *Client) callTool(ctx context.Context, callID, name, arguments string) error {
	ctx, span := tracer.Start(ctx, "execute tool")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", name), attribute.String("tool.call_id", callID))

	var result string
	tool, ok := c.findTool(name)
	switch {
	case !ok:
		err := fmt.Errorf("tool not found: %s", name)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		result = toolError(err)
	case tool.Execute == nil:
		// Someone else answers this call.
		return nil
	default:
		response, err := tool.Execute(ctx, arguments)
		if err != nil {
			err = fmt.Errorf("failed to execute tool %q: %w", name, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			result = toolError(err)
		} else {
			result = response
		}
	}

	return c.SendFunctionResult(ctx, callID, result)
}

func (c *Client) findTool(name string) (Tool, bool) {
	for _, tool := range c.config.Tools {
		if tool.Name == name {
			return tool, true
		}
	}
	return Tool{}, false
}

func toolError(err error) string {
	encoded, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(encoded)
}
