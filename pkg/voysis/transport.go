package voysis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// transport owns the session's WebSocket connection. It is opened lazily
// and at most one connection is live at a time.
type transport struct {
	url     string
	dialer  *websocket.Dialer
	handler func([]byte)
	logger  *slog.Logger

	openMu sync.Mutex // serializes dials

	mu   sync.Mutex
	conn *websocket.Conn

	writeMu sync.Mutex
}

func newTransport(url string, dialer *websocket.Dialer, handler func([]byte), logger *slog.Logger) *transport {
	return &transport{
		url:     url,
		dialer:  dialer,
		handler: handler,
		logger:  logger,
	}
}

// Open connects if no connection is open. It returns nil immediately when
// the connection is already open.
func (t *transport) Open(ctx context.Context) error {
	t.openMu.Lock()
	defer t.openMu.Unlock()

	if t.IsOpen() {
		return nil
	}

	t.logger.Debug("connecting", "url", t.url)
	conn, resp, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		te := &TransportError{Op: "open", Err: err}
		if resp != nil {
			te.HTTPStatus = resp.StatusCode
		}
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			te.Code = ce.Code
		}
		return te
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	go t.readLoop(conn)
	return nil
}

// IsOpen reports whether a connection is currently open.
func (t *transport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// SendText sends one text frame. It never queues: when the connection is
// not open the frame is rejected.
func (t *transport) SendText(data []byte) error {
	return t.send(websocket.TextMessage, data)
}

// SendBinary sends one binary frame.
func (t *transport) SendBinary(data []byte) error {
	return t.send(websocket.BinaryMessage, data)
}

func (t *transport) send(messageType int, data []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return &TransportError{Op: "send", Err: errNotOpen}
	}

	t.writeMu.Lock()
	err := conn.WriteMessage(messageType, data)
	t.writeMu.Unlock()
	if err != nil {
		t.drop(conn)
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

// Close sends a normal closure and closes the connection. Closing a closed
// transport is a no-op.
func (t *transport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return conn.Close()
}

// drop forgets conn if it is still the current connection.
func (t *transport) drop(conn *websocket.Conn) {
	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
	}
	t.mu.Unlock()
	conn.Close()
}

func (t *transport) readLoop(conn *websocket.Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			t.logClose(err)
			t.drop(conn)
			return
		}
		if messageType != websocket.TextMessage {
			t.logger.Debug("ignoring non-text frame", "type", messageType, "len", len(data))
			continue
		}
		t.logger.Debug("received", "frame", truncate(data, 1000))
		t.handler(data)
	}
}

func (t *transport) logClose(err error) {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		t.logger.Debug("connection ended", "error", err)
		return
	}
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		t.logger.Warn("connection closed abnormally", "code", ce.Code, "reason", ce.Text)
		return
	}
	t.logger.Debug("connection closed", "code", ce.Code)
}
