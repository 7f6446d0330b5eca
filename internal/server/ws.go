package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/groblegark/relay/internal/idgen"
)

var upgrader = websocket.Upgrader{
	// Topic names are the only routing input and publishing is open anyway,
	// so cross-origin subscriptions are allowed.
	CheckOrigin: func(*http.Request) bool { return true },
}

// writeWait bounds how long a single frame write may block. A subscriber
// that stops reading fills its TCP buffer; without a deadline its Send would
// stall the broadcast while the broker holds its write lock.
var writeWait = 5 * time.Second

// wsConn adapts a gorilla websocket connection to the registry.Conn
// interface. Writes are serialized: the broadcast path and the open frame
// can race with the close path.
type wsConn struct {
	id string
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

// handleSubscribe handles GET /{topics}/ws: upgrades the connection and
// registers it for every listed topic. The read loop exists only to detect
// close or error; inbound frames are discarded.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	topics, ok := s.topics(w, r)
	if !ok {
		return
	}

	id, err := idgen.Generate()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		slog.Info("websocket upgrade failed", "err", err)
		return
	}

	conn := &wsConn{id: id, ws: ws}
	if err := s.broker.Subscribe(conn, topics); err != nil {
		slog.Error("subscribe failed", "conn", id, "err", err)
		_ = ws.Close()
		return
	}
	slog.Info("subscriber connected", "conn", id, "topics", topics)

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	s.broker.Unsubscribe(id)
	_ = ws.Close()
	slog.Info("subscriber disconnected", "conn", id)
}
