package realtime

import "errors"

var (
	// ErrConnection means the transport could not be opened or written to.
	// The client has to be connected again before it can be used.
	ErrConnection = errors.New("realtime connection error")
	// ErrProtocol marks an inbound payload that could not be interpreted. The
	// offending event is dropped and the receive loop continues.
	ErrProtocol = errors.New("realtime protocol error")
	// ErrFormat means audio could not be converted to the wire format.
	ErrFormat = errors.New("audio format error")

	ErrNotConnected = errors.New("realtime client is not connected")
	// ErrUnsupported is returned for operations the configured mode does not
	// offer, e.g. streaming audio through a turn-based client.
	ErrUnsupported = errors.New("operation not supported in this mode")
)
