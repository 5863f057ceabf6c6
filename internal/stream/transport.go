package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/chatsim/internal/chatgen"
)

// ErrTransportClosed is returned by transports after Close and wraps write
// failures on a dead connection. It marks a normal end of stream.
var ErrTransportClosed = errors.New("stream: transport closed")

// Transport pushes chat events to one client.
type Transport interface {
	// Name identifies the transport kind in logs and metrics.
	Name() string

	// Send delivers one message.
	Send(ctx context.Context, msg chatgen.Message) error

	// Ping sends a keep-alive.
	Ping(ctx context.Context) error

	// Close releases the connection. Further calls to Send and Ping fail
	// with [ErrTransportClosed].
	Close() error
}

// SetSSEHeaders writes the response headers of an event stream, disabling
// caching and proxy buffering.
func SetSSEHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// SSETransport writes Server-Sent Events to an HTTP response.
type SSETransport struct {
	mu     sync.Mutex
	w      http.ResponseWriter
	rc     *http.ResponseController
	closed bool
}

var _ Transport = (*SSETransport)(nil)

// NewSSETransport sets the stream headers, sends them and lifts the server
// write deadline for this response. It fails when w cannot flush.
func NewSSETransport(w http.ResponseWriter) (*SSETransport, error) {
	rc := http.NewResponseController(w)
	SetSSEHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return nil, fmt.Errorf("stream: response does not support flushing: %w", err)
	}
	_ = rc.SetWriteDeadline(time.Time{})
	return &SSETransport{w: w, rc: rc}, nil
}

// Name implements [Transport].
func (t *SSETransport) Name() string { return "sse" }

// Send implements [Transport] with a "data: <json>\n\n" frame.
func (t *SSETransport) Send(_ context.Context, msg chatgen.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("stream: encode message: %w", err)
	}
	frame := make([]byte, 0, len(b)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, b...)
	frame = append(frame, "\n\n"...)
	return t.write(frame)
}

// Ping implements [Transport] with a ": ping\n\n" comment frame.
func (t *SSETransport) Ping(context.Context) error {
	return t.write([]byte(": ping\n\n"))
}

// Close implements [Transport]. The response itself ends when the handler
// returns.
func (t *SSETransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *SSETransport) write(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	if _, err := t.w.Write(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	if err := t.rc.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	return nil
}

// wsWriteTimeout bounds a single WebSocket write or ping.
const wsWriteTimeout = 10 * time.Second

// WSTransport sends chat events as JSON text frames over a WebSocket.
type WSTransport struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

var _ Transport = (*WSTransport)(nil)

// AcceptWS upgrades the request. The returned context ends when the client
// closes the connection; the stream is one-way, so incoming data messages
// close it.
func AcceptWS(w http.ResponseWriter, r *http.Request, opts *websocket.AcceptOptions) (*WSTransport, context.Context, error) {
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("stream: websocket accept: %w", err)
	}
	ctx := conn.CloseRead(r.Context())
	return &WSTransport{conn: conn}, ctx, nil
}

// Name implements [Transport].
func (t *WSTransport) Name() string { return "ws" }

// Send implements [Transport].
func (t *WSTransport) Send(ctx context.Context, msg chatgen.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("stream: encode message: %w", err)
	}
	if t.isClosed() {
		return ErrTransportClosed
	}
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := t.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	return nil
}

// Ping implements [Transport] with a WebSocket ping control frame.
func (t *WSTransport) Ping(ctx context.Context) error {
	if t.isClosed() {
		return ErrTransportClosed
	}
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := t.conn.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	return nil
}

// Close implements [Transport]. Only the first call closes the connection.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	return t.conn.Close(websocket.StatusNormalClosure, "stream ended")
}

func (t *WSTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
