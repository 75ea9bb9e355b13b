package phoenix

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Endpoint derives the channel-multiplexed WebSocket endpoint from an
// http(s) server URL: scheme http->ws, https->wss, path fixed at
// /socket/websocket, host and optional port preserved.
func Endpoint(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server_url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already a websocket scheme, leave as-is
	default:
		return "", fmt.Errorf("server_url must use http(s) or ws(s) scheme, got %q", u.Scheme)
	}
	u.Path = "/socket/websocket"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// Transport owns one WebSocket connection: it serializes outbound writes
// behind a single mutex and hands inbound text frames to a single reader
// goroutine. It has no knowledge of Phoenix semantics beyond raw bytes.
type Transport struct {
	logger *slog.Logger

	dialer           websocket.Dialer
	handshakeTimeout time.Duration

	writeMu sync.Mutex
	conn    *websocket.Conn

	closed   chan struct{}
	closeMu  sync.Mutex
	isClosed bool
}

// TransportOption configures a Transport at construction.
type TransportOption func(*Transport)

// WithHandshakeTimeout overrides the default dial handshake timeout.
func WithHandshakeTimeout(d time.Duration) TransportOption {
	return func(t *Transport) { t.handshakeTimeout = d }
}

// NewTransport constructs an unconnected Transport.
func NewTransport(logger *slog.Logger, opts ...TransportOption) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Transport{
		logger:           logger,
		handshakeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.dialer = websocket.Dialer{HandshakeTimeout: t.handshakeTimeout}
	return t
}

// Open dials the endpoint. Fails with a wrapped error (the root package
// turns this into ConnectError) on handshake failure.
func (t *Transport) Open(ctx context.Context, endpoint string, header http.Header) error {
	conn, _, err := t.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}

	t.writeMu.Lock()
	t.conn = conn
	t.closed = make(chan struct{})
	t.isClosed = false
	t.writeMu.Unlock()

	t.logger.Debug("transport opened", "endpoint", endpoint)
	return nil
}

// Write serializes text against concurrent writers: exactly one writer at a
// time, matching the shared-resource policy for the whole connection.
func (t *Transport) Write(text []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.conn == nil {
		return ErrDisconnected
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, text); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// WritePing sends a control ping frame, serialized with the other writes.
// The Heartbeat Driver does not use it; it sends only the application-level
// heartbeat frame.
func (t *Transport) WritePing() error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.conn == nil {
		return ErrDisconnected
	}
	return t.conn.WriteMessage(websocket.PingMessage, nil)
}

// ReadLoop is the single consumer of the inbound stream; concurrent readers
// are disallowed by contract. It invokes onMessage for every text frame and
// returns when the connection is closed or reading fails, invoking onClose
// exactly once with the error that ended reading (never nil, even for a
// clean close).
func (t *Transport) ReadLoop(onMessage func([]byte), onClose func(error)) {
	conn := t.conn
	if conn == nil {
		onClose(ErrDisconnected)
		return
	}

	conn.SetPongHandler(func(string) error {
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.markClosed()
			onClose(err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		onMessage(data)
	}
}

func (t *Transport) markClosed() {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.isClosed {
		return
	}
	t.isClosed = true
	if t.closed != nil {
		close(t.closed)
	}
}

// Close gracefully closes the underlying connection, if any.
func (t *Transport) Close() error {
	t.writeMu.Lock()
	conn := t.conn
	t.conn = nil
	t.writeMu.Unlock()

	t.markClosed()
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}

// Connected reports whether Open has succeeded and Close has not since been
// called. A connection that dropped without Close still reports true.
func (t *Transport) Connected() bool {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn != nil
}
