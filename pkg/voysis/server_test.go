package voysis

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// mockServer is an in-process Voysis endpoint. Every text request is
// recorded on requests and then passed to handle, which may answer it.
type mockServer struct {
	t        *testing.T
	srv      *httptest.Server
	requests chan *requestFrame
	binary   chan []byte
	conns    chan *mockConn

	mu     sync.Mutex
	handle func(c *mockConn, req *requestFrame)
}

type mockConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func newMockServer(t *testing.T) *mockServer {
	t.Helper()
	ms := &mockServer{
		t:        t,
		requests: make(chan *requestFrame, 64),
		binary:   make(chan []byte, 1024),
		conns:    make(chan *mockConn, 8),
		handle:   defaultHandler,
	}
	upgrader := websocket.Upgrader{}
	ms.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/websocketapi" {
			http.NotFound(w, r)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := &mockConn{ws: ws}
		ms.conns <- c
		ms.serve(c)
	}))
	t.Cleanup(ms.srv.Close)
	return ms
}

func (ms *mockServer) url() string {
	return "ws" + strings.TrimPrefix(ms.srv.URL, "http") + "/websocketapi"
}

func (ms *mockServer) setHandler(h func(c *mockConn, req *requestFrame)) {
	ms.mu.Lock()
	ms.handle = h
	ms.mu.Unlock()
}

func (ms *mockServer) serve(c *mockConn) {
	defer c.ws.Close()
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if mt == websocket.BinaryMessage {
			ms.binary <- data
			continue
		}
		var req requestFrame
		if err := json.Unmarshal(data, &req); err != nil {
			ms.t.Errorf("mock server: bad request frame %q: %v", data, err)
			continue
		}
		ms.requests <- &req

		ms.mu.Lock()
		h := ms.handle
		ms.mu.Unlock()
		if h != nil {
			h(c, &req)
		}
	}
}

// nextRequest waits for the next request matching uri.
func (ms *mockServer) nextRequest(uri string) *requestFrame {
	ms.t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case req := <-ms.requests:
			if req.RestURI == uri {
				return req
			}
		case <-timeout:
			ms.t.Fatalf("no request for %s", uri)
			return nil
		}
	}
}

func (ms *mockServer) nextBinary() []byte {
	ms.t.Helper()
	select {
	case b := <-ms.binary:
		return b
	case <-time.After(5 * time.Second):
		ms.t.Fatal("no binary frame")
		return nil
	}
}

func (ms *mockServer) conn() *mockConn {
	ms.t.Helper()
	select {
	case c := <-ms.conns:
		return c
	case <-time.After(5 * time.Second):
		ms.t.Fatal("no connection")
		return nil
	}
}

func (c *mockConn) write(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *mockConn) respond(req *requestFrame, code int, message string, entity any) {
	frame := map[string]any{
		"type":            "response",
		"requestId":       req.RequestID,
		"responseCode":    code,
		"responseMessage": message,
	}
	if entity != nil {
		frame["entity"] = entity
	}
	c.write(frame)
}

func (c *mockConn) notify(notificationType string, entity any) {
	frame := map[string]any{
		"type":             "notification",
		"notificationType": notificationType,
	}
	if entity != nil {
		frame["entity"] = entity
	}
	c.write(frame)
}

func (c *mockConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.Close()
}

var testQuery = map[string]any{
	"id":        "q1",
	"locale":    "en-US",
	"queryType": "audio",
	"_links":    map[string]any{"self": map[string]any{"href": "/queries/q1"}},
}

// defaultHandler answers the endpoints the client uses.
func defaultHandler(c *mockConn, req *requestFrame) {
	switch {
	case req.RestURI == "/tokens":
		c.respond(req, 200, "OK", map[string]any{
			"token":     "session-token",
			"expiresAt": time.Now().Add(time.Hour).UTC().Format(time.RFC3339Nano),
		})
	case req.RestURI == "/queries":
		q := map[string]any{}
		for k, v := range testQuery {
			q[k] = v
		}
		if entity, ok := req.Entity.(map[string]any); ok {
			q["queryType"] = entity["queryType"]
			if tq, ok := entity["textQuery"]; ok {
				q["textQuery"] = tq
			}
		}
		c.respond(req, 201, "Created", q)
	case strings.HasSuffix(req.RestURI, "/feedback"):
		c.respond(req, 200, "OK", map[string]any{})
	case strings.HasSuffix(req.RestURI, "/cancellation"):
		c.respond(req, 200, "OK", nil)
	default:
		c.respond(req, 404, "Not Found", nil)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestSession(t *testing.T, ms *mockServer, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{
		WithWebSocketURL(ms.url()),
		WithLogger(discardLogger()),
		WithReportTimeout(2 * time.Second),
	}, opts...)
	s, err := NewSession("voysis.test", "profile-1", opts...)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
