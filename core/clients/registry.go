package clients

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownClient = errors.New("unknown client")
	ErrInvalidConfig = errors.New("invalid client configuration")
)

// Decoder fills v with the client specific part of a configuration.
type Decoder func(v any) error

// Factory builds a client from its configuration. decode is never nil.
type Factory func(decode Decoder) (ModelClient, error)

// Registry maps client names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds a factory under name, replacing any previous one.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return errors.New("client name must not be empty")
	}
	if factory == nil {
		return fmt.Errorf("nil factory for client %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		logger.Warn("replacing client factory", "client", name)
	}
	r.factories[name] = factory
	return nil
}

// Names lists the registered clients in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// New builds the named client. A nil decode leaves the factory's defaults
// untouched.
func (r *Registry) New(name string, decode Decoder) (ModelClient, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClient, name)
	}

	if decode == nil {
		decode = func(any) error { return nil }
	}
	client, err := factory(decode)
	if err != nil {
		return nil, fmt.Errorf("failed to create client %q: %w", name, err)
	}
	return client, nil
}

// Load reads a YAML document whose "client" key names the factory; the rest
// of the document configures the client, e.g.
//
//	client: openai-realtime
//	mode: streaming
//	voice: alloy
func (r *Registry) Load(reader io.Reader) (ModelClient, error) {
	var document yaml.Node
	if err := yaml.NewDecoder(reader).Decode(&document); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidConfig)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	var header struct {
		Client string `yaml:"client"`
	}
	if err := document.Decode(&header); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if header.Client == "" {
		return nil, fmt.Errorf("%w: missing client name", ErrInvalidConfig)
	}

	return r.New(header.Client, func(v any) error {
		if err := document.Decode(v); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		return nil
	})
}
