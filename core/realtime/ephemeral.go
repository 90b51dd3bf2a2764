package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// EphemeralKey is a short lived client secret that can be handed to a less
// trusted process in place of the API key.
type EphemeralKey struct {
	Value     string
	ExpiresAt time.Time
}

type ephemeralKeyRequest struct {
	Model        string     `json:"model"`
	Modalities   []Modality `json:"modalities,omitempty"`
	Instructions string     `json:"instructions,omitempty"`
	Voice        string     `json:"voice,omitempty"`
}

type ephemeralKeyResponse struct {
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
}

// NewEphemeralKey mints a client secret for a session configured like config.
// The secret can be used as Config.APIKey for a later Connect.
func NewEphemeralKey(ctx context.Context, config Config) (*EphemeralKey, error) {
	ctx, span := tracer.Start(ctx, "create ephemeral key")
	defer span.End()
	span.SetAttributes(attribute.String("realtime.model", config.Model))

	key, err := newEphemeralKey(ctx, config)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return key, nil
}

func newEphemeralKey(ctx context.Context, config Config) (*EphemeralKey, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		var ok bool
		if apiKey, ok = lookupAPIKey(); !ok {
			return nil, fmt.Errorf("%s not set", apiKeyEnv)
		}
	}
	url := config.SessionsURL
	if url == "" {
		url = DefaultSessionsURL
	}

	body, err := json.Marshal(ephemeralKeyRequest{
		Model:        config.Model,
		Modalities:   config.Modalities,
		Instructions: config.Instructions,
		Voice:        config.Voice,
	})
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: error sending request: %w", ErrConnection, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		logger.Warn("ephemeral key request rejected", "status", resp.Status, "body", string(respBody))
		return nil, fmt.Errorf("non-OK HTTP status: %s", resp.Status)
	}

	var parsed ephemeralKeyResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: error unmarshalling response: %w", ErrProtocol, err)
	}
	if parsed.ClientSecret.Value == "" {
		return nil, fmt.Errorf("%w: response without client secret", ErrProtocol)
	}

	return &EphemeralKey{
		Value:     parsed.ClientSecret.Value,
		ExpiresAt: time.Unix(parsed.ClientSecret.ExpiresAt, 0),
	}, nil
}
