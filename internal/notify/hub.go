// Package notify pushes economy events to out-of-process widgets over
// WebSocket. Every frame is one JSON-encoded message.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// Message is the frame written to subscribers.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// SnapshotFunc produces the first message a new subscriber receives.
type SnapshotFunc func() Message

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// Hub fans messages out to connected subscribers. A subscriber that falls
// more than sendBuffer messages behind is disconnected rather than slowing
// the publisher down.
type Hub struct {
	upgrader websocket.Upgrader
	snapshot SnapshotFunc

	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID atomic.Uint64

	dropped atomic.Uint64
}

func NewHub(snapshot SnapshotFunc) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		snapshot: snapshot,
		subs:     make(map[uint64]*subscriber),
	}
}

// ServeHTTP upgrades the request and keeps the subscriber until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub := &subscriber{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	if h.snapshot != nil {
		frame, err := json.Marshal(h.snapshot())
		if err == nil {
			sub.send <- frame
		}
	}

	id := h.nextID.Add(1)

	h.mu.Lock()
	h.subs[id] = sub
	h.mu.Unlock()

	slog.Debug("websocket subscriber connected", "id", id, "remote", r.RemoteAddr)

	go h.writeLoop(sub)
	h.readLoop(sub)

	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()

	sub.close()
	slog.Debug("websocket subscriber gone", "id", id)
}

// readLoop discards client frames and returns when the connection closes.
func (h *Hub) readLoop(s *subscriber) {
	s.conn.SetReadLimit(4096)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, _, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return

		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))

			err := s.conn.WriteMessage(websocket.TextMessage, frame)
			if err != nil {
				s.close()
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))

			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			if err != nil {
				s.close()
				return
			}
		}
	}
}

// Broadcast sends msg to every subscriber without blocking.
func (h *Hub) Broadcast(msg Message) {
	frame, err := json.Marshal(msg)
	if err != nil {
		slog.Error("encode websocket message", "type", msg.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, s := range h.subs {
		select {
		case s.send <- frame:
		default:
			h.dropped.Add(1)
			delete(h.subs, id)
			s.close()

			slog.Warn("websocket subscriber too slow, disconnected", "id", id)
		}
	}
}

// Len is the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs)
}

// Dropped counts subscribers disconnected for being too slow.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close disconnects every subscriber.
func (h *Hub) Close(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, s := range h.subs {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		s.close()
		delete(h.subs, id)
	}

	return nil
}
