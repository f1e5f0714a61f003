package service

import (
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"

	"github.com/ethereum-optimism/infra/vitest-bridge/types"
)

// StreamEvent is one message on the live display stream.
type StreamEvent struct {
	Type       string         `json:"type"` // running | passed | failed | skipped | summary
	Test       string         `json:"test,omitempty"`
	Suite      string         `json:"suite,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	Message    string         `json:"message,omitempty"`
	Summary    *types.Summary `json:"summary,omitempty"`
}

const clientSendBuffer = 64

// StreamHub broadcasts test transitions to connected display clients over
// WebSocket. It satisfies the run reporting sink interface, so it is wired
// into a run like any other reporter. A client that cannot keep up is
// dropped rather than allowed to stall the pipeline.
type StreamHub struct {
	log      log.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*streamClient]struct{}
}

func NewStreamHub(logger log.Logger) *StreamHub {
	return &StreamHub{
		log: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*streamClient]struct{}),
	}
}

func (h *StreamHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", "err", err)
		return
	}

	c := &streamClient{
		conn: conn,
		send: make(chan StreamEvent, clientSendBuffer),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("stream client connected", "remote", conn.RemoteAddr())

	go c.writePump()

	// inbound messages are ignored; the read loop only detects disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(c)
}

// ClientCount reports the number of connected display clients.
func (h *StreamHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *StreamHub) MarkRunning(t types.Test) {
	h.broadcast(StreamEvent{Type: "running", Test: t.Label, Suite: t.Suite})
}

func (h *StreamHub) MarkPassed(t types.Test, duration time.Duration) {
	h.broadcast(StreamEvent{Type: "passed", Test: t.Label, Suite: t.Suite, DurationMs: duration.Milliseconds()})
}

func (h *StreamHub) MarkFailed(t types.Test, message string, duration time.Duration) {
	h.broadcast(StreamEvent{Type: "failed", Test: t.Label, Suite: t.Suite, DurationMs: duration.Milliseconds(), Message: message})
}

func (h *StreamHub) MarkSkipped(t types.Test, message string) {
	h.broadcast(StreamEvent{Type: "skipped", Test: t.Label, Suite: t.Suite, Message: message})
}

// PublishSummary ends a run on the stream.
func (h *StreamHub) PublishSummary(summary types.Summary) {
	h.broadcast(StreamEvent{Type: "summary", Summary: &summary})
}

func (h *StreamHub) broadcast(ev StreamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			h.log.Warn("dropping slow stream client", "remote", c.conn.RemoteAddr())
			delete(h.clients, c)
			c.close()
		}
	}
}

func (h *StreamHub) drop(c *streamClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
	}
	h.mu.Unlock()
	c.close()
}

// Close disconnects every client.
func (h *StreamHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

type streamClient struct {
	conn      *websocket.Conn
	send      chan StreamEvent
	closeOnce sync.Once
}

func (c *streamClient) writePump() {
	for ev := range c.send {
		if err := c.conn.WriteJSON(ev); err != nil {
			break
		}
	}
	_ = c.conn.Close()
}

func (c *streamClient) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}
