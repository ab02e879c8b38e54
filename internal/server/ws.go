package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ayusman/trafficcv/internal/track"
	"github.com/ayusman/trafficcv/internal/units"
)

const (
	writeWait     = 5 * time.Second
	clientBacklog = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// eventMessage is the JSON sent to WebSocket clients.
type eventMessage struct {
	track.Event
	Units     string  `json:"units"`
	SpeedUnit float64 `json:"speed_units,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub broadcasts track events to WebSocket clients. It implements
// track.Observer; slow clients miss events rather than blocking the loop.
type Hub struct {
	units   string
	clients map[*client]struct{}
	mu      sync.RWMutex
	closed  bool
}

// NewHub creates a Hub that reports speeds in unit alongside the raw event.
func NewHub(unit string) *Hub {
	if u, err := units.Normalize(unit); err == nil {
		unit = u
	} else {
		unit = units.KPH
	}
	return &Hub{
		units:   unit,
		clients: make(map[*client]struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OnEvent implements track.Observer.
func (h *Hub) OnEvent(e track.Event) {
	msg := eventMessage{Event: e, Units: h.units}
	if e.Kind == track.EventSpeed {
		msg.SpeedUnit = units.FromMPS(e.SpeedMPS, h.units)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			log.Debug().Str("remote", c.conn.RemoteAddr().String()).Msg("event client backlog full, dropping event")
		}
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBacklog)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.remove(c)
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
