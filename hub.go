package main

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Envelope is the wire format for every event pushed to subscribers.
type Envelope struct {
	ID    string `json:"id"`
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

const (
	eventConnected         = "connected"
	eventStateChanged      = "stateChanged"
	eventLogMessage        = "logMessage"
	eventConnectionClosing = "connectionClosing"
)

type client struct {
	conn     *websocket.Conn
	send     chan Envelope
	clientID string
}

// Hub fans out session events to all live subscriber channels. Multiple
// channels may share one clientID (multiple tabs). A client whose last
// channel drops is only treated as departed after a cancellable grace timer
// fires, and a session with no clients left is reaped after a longer one.
type Hub struct {
	gameID string

	disconnectGrace time.Duration
	sessionGrace    time.Duration

	onDeparted  func(clientID string)
	onAbandoned func()

	mu         sync.Mutex
	clients    map[string]map[*client]struct{}
	conns      map[*client]string
	departures map[string]*time.Timer
	reap       *time.Timer
	closed     bool
}

func newHub(gameID string, disconnectGrace, sessionGrace time.Duration) *Hub {
	h := &Hub{
		gameID:          gameID,
		disconnectGrace: disconnectGrace,
		sessionGrace:    sessionGrace,
		clients:         make(map[string]map[*client]struct{}),
		conns:           make(map[*client]string),
		departures:      make(map[string]*time.Timer),
	}

	// a session nobody ever subscribes to must still be reaped
	h.armReapLocked()

	return h
}

// setHooks installs the departure and abandonment callbacks. The reap timer
// may already be running, so the swap happens under the hub lock.
func (h *Hub) setHooks(onDeparted func(clientID string), onAbandoned func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.onDeparted = onDeparted
	h.onAbandoned = onAbandoned
}

// Connect registers a channel under its clientID, cancels any pending
// removal timers, and acknowledges the connection to that channel only.
func (h *Hub) Connect(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(c.send)
		return
	}

	if h.clients[c.clientID] == nil {
		h.clients[c.clientID] = make(map[*client]struct{})
	}
	h.clients[c.clientID][c] = struct{}{}
	h.conns[c] = c.clientID

	if timer, ok := h.departures[c.clientID]; ok {
		timer.Stop()
		delete(h.departures, c.clientID)
	}

	if h.reap != nil {
		h.reap.Stop()
		h.reap = nil
	}

	h.pushLocked(c, Envelope{
		ID:    uuid.NewString(),
		Event: eventConnected,
		Data:  map[string]string{"clientId": c.clientID},
	})

	log.Debug().Str("gameID", h.gameID).Str("clientID", c.clientID).Msg("Subscriber connected")
}

func (h *Hub) Disconnect(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(c)
}

// Broadcast pushes an event to every open channel, optionally narrowed by
// allow/deny lists of clientIDs. A full channel is dropped rather than
// allowed to block delivery to the others.
func (h *Hub) Broadcast(event string, data any, allow, deny []string) {
	env := Envelope{
		ID:    uuid.NewString(),
		Event: event,
		Data:  data,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c, clientID := range h.conns {
		if !allowDeny(clientID, allow, deny) {
			continue
		}

		h.pushLocked(c, env)
	}
}

// Close notifies every channel that the session is going away, then releases
// all channels and cancels all pending timers.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	env := Envelope{
		ID:    uuid.NewString(),
		Event: eventConnectionClosing,
	}

	for c := range h.conns {
		select {
		case c.send <- env:
		default:
		}

		close(c.send)
		delete(h.conns, c)
	}

	h.clients = make(map[string]map[*client]struct{})

	for clientID, timer := range h.departures {
		timer.Stop()
		delete(h.departures, clientID)
	}

	if h.reap != nil {
		h.reap.Stop()
		h.reap = nil
	}
}

// ClientCount reports how many distinct clientIDs have open channels.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// pushLocked delivers an envelope without blocking; a subscriber that cannot
// keep up is dropped. Callers must hold h.mu.
func (h *Hub) pushLocked(c *client, env Envelope) {
	select {
	case c.send <- env:
	default:
		log.Warn().Str("gameID", h.gameID).Str("clientID", c.clientID).Msg("Subscriber channel full, dropping connection")
		h.removeLocked(c)
	}
}

func (h *Hub) removeLocked(c *client) {
	clientID, ok := h.conns[c]
	if !ok {
		return
	}

	delete(h.conns, c)
	close(c.send)

	set := h.clients[clientID]
	delete(set, c)
	if len(set) > 0 {
		return
	}

	delete(h.clients, clientID)

	if h.closed {
		return
	}

	log.Debug().Str("gameID", h.gameID).Str("clientID", clientID).Msg("Last channel closed, starting departure grace timer")
	h.armDepartureLocked(clientID)

	if len(h.clients) == 0 {
		h.armReapLocked()
	}
}

func (h *Hub) armDepartureLocked(clientID string) {
	h.departures[clientID] = time.AfterFunc(h.disconnectGrace, func() {
		defer logPanic(h.gameID)

		h.mu.Lock()
		delete(h.departures, clientID)
		_, reconnected := h.clients[clientID]
		closed := h.closed
		departed := h.onDeparted
		h.mu.Unlock()

		if closed || reconnected {
			return
		}

		if departed != nil {
			departed(clientID)
		}
	})
}

func (h *Hub) armReapLocked() {
	h.reap = time.AfterFunc(h.sessionGrace, func() {
		defer logPanic(h.gameID)

		h.mu.Lock()
		abandoned := len(h.clients) == 0 && !h.closed
		reap := h.onAbandoned
		h.mu.Unlock()

		if abandoned && reap != nil {
			reap()
		}
	})
}

// allowDeny resolves a recipient filter; the allow list takes precedence
// when both are given, and absence of both means "everyone".
func allowDeny(clientID string, allow, deny []string) bool {
	switch {
	case len(allow) > 0:
		return contains(allow, clientID)
	case len(deny) > 0:
		return !contains(deny, clientID)
	default:
		return true
	}
}

func contains(list []string, value string) bool {
	for _, entry := range list {
		if entry == value {
			return true
		}
	}

	return false
}

func logPanic(gameID string) {
	if r := recover(); r != nil {
		log.Error().Str("gameID", gameID).Any("panic", r).Msg("Recovered panic in session timer")
	}
}

func (c *client) readPump(h *Hub) {
	defer func() {
		h.Disconnect(c)
		_ = c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()

	for env := range c.send {
		if err := c.conn.WriteJSON(env); err != nil {
			log.Debug().Str("clientID", c.clientID).Err(err).Msg("Failed to write event to subscriber")
			return
		}
	}
}
