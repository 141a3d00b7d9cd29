package api

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/pjbroadbent/layouts-service/internal/engine"
)

// EventHub pushes engine client events (join/leave snap group, join/leave
// tab group, tab activation) to connected websocket clients.
type EventHub struct {
	logger   *logrus.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan engine.ClientEvent
}

// NewEventHub builds a hub and subscribes it to the engine's client events.
func NewEventHub(eng *engine.Engine, logger *logrus.Logger) *EventHub {
	hub := &EventHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan engine.ClientEvent),
	}
	eng.OnClientEvent.Connect(hub.broadcast)
	return hub
}

// Serve upgrades the request to a websocket and streams events until the
// client disconnects.
func (h *EventHub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	send := make(chan engine.ClientEvent, 64)
	h.mu.Lock()
	h.clients[conn] = send
	h.mu.Unlock()
	h.logger.WithField("remote", conn.RemoteAddr().String()).Debug("Event client connected")

	go func() {
		defer h.drop(conn)
		for ev := range send {
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.WithError(err).Debug("Event write failed")
				return
			}
		}
	}()
	// Reads are discarded; the read loop only detects disconnects.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// broadcast fans one event out to every connected client. Slow clients drop
// events rather than block the engine.
func (h *EventHub) broadcast(ev engine.ClientEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, send := range h.clients {
		select {
		case send <- ev:
		default:
			h.logger.WithField("remote", conn.RemoteAddr().String()).Debug("Event client lagging, dropping event")
		}
	}
}

func (h *EventHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	send, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(send)
	}
	h.mu.Unlock()
	conn.Close()
}
