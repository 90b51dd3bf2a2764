package realtime

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeMessage struct {
	data []byte
	err  error
}

type fakeConn struct {
	mu            sync.Mutex
	written       []map[string]any
	writeErr      error
	controlFrames int
	closeCalls    int

	inbound   chan fakeMessage
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan fakeMessage, 64),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var request map[string]any
	if err := json.Unmarshal(data, &request); err != nil {
		return err
	}
	c.written = append(c.written, request)
	return nil
}

func (c *fakeConn) WriteMessage(int, []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controlFrames++
	return nil
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case message, ok := <-c.inbound:
		if !ok {
			return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
		}
		if message.err != nil {
			return 0, nil, message.err
		}
		return websocket.TextMessage, message.data, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closeCalls++
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// push queues inbound events, given as JSON objects.
func (c *fakeConn) push(t *testing.T, payloads ...map[string]any) {
	t.Helper()
	for _, payload := range payloads {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to encode inbound event: %v", err)
		}
		c.inbound <- fakeMessage{data: data}
	}
}

func (c *fakeConn) requests() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.written...)
}

// requestTypes lists the types of everything written after session.update.
func (c *fakeConn) requestTypes() []string {
	types := []string{}
	for _, request := range c.requests() {
		if request["type"] == requestSessionUpdate {
			continue
		}
		types = append(types, request["type"].(string))
	}
	return types
}

func (c *fakeConn) lastRequest(typ string) map[string]any {
	requests := c.requests()
	for i := len(requests) - 1; i >= 0; i-- {
		if requests[i]["type"] == typ {
			return requests[i]
		}
	}
	return nil
}

func fakeDialer(conn *fakeConn) Dialer {
	return func(context.Context, string, http.Header) (Conn, error) {
		return conn, nil
	}
}

func newConnectedClient(t *testing.T, opts ...ClientOption) (*Client, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	opts = append([]ClientOption{WithAPIKey("test-key"), WithDialer(fakeDialer(conn))}, opts...)
	client := NewClient(opts...)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	return client, conn
}

// runToEnd closes the inbound stream and runs the receive loop over
// everything queued so far.
func runToEnd(t *testing.T, client *Client, conn *fakeConn) {
	t.Helper()
	close(conn.inbound)
	if err := client.Run(context.Background()); err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
