package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsLogger is the minimal logging dependency for the hub.
type wsLogger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopWSLogger struct{}

func (noopWSLogger) Warn(string, ...any)  {}
func (noopWSLogger) Error(string, ...any) {}

// client is a single connected WebSocket client: a bounded outbound
// queue whose capacity is K (spec.md §4.9, §8 "Slow client eviction").
// A full queue at send time is fatal for the connection.
type client struct {
	id   uint64
	conn *websocket.Conn
	send chan []byte
}

// InitialStateFunc produces the full state snapshot to unicast to a
// client the moment it connects, so a new client isn't left blank until
// the next debounced broadcast happens to fire (spec.md §6). Hub is
// constructed before AppState in cmd/hearthd/main.go to avoid an import
// cycle, so this is wired in after the fact via SetInitialState.
type InitialStateFunc func() ([]byte, error)

// Hub tracks every connected client and broadcasts the debounced state
// snapshot to all of them, evicting any whose bounded queue is full
// (spec.md §4.9). It also supports unicasting to a single client by id,
// grounded on the original `send(user_id: Option<usize>, …)` in
// `_examples/original_source/server/src/core/websockets.rs`, which this
// Go port splits into Broadcast (the None case) and Send (the Some
// case) rather than carrying an Option-shaped parameter. Grounded on the
// teacher's WebSocket hub otherwise, with the ticket-based
// authentication removed per spec.md's explicit no-authentication
// Non-goal.
type Hub struct {
	mu      sync.RWMutex
	clients map[uint64]*client
	nextID  uint64

	sendBufferSize int
	log            wsLogger
	initial        InitialStateFunc
}

// NewHub constructs an empty Hub. sendBufferSize is each client's
// bounded outbound queue capacity K.
func NewHub(sendBufferSize int, log wsLogger) *Hub {
	if log == nil {
		log = noopWSLogger{}
	}
	if sendBufferSize <= 0 {
		sendBufferSize = 32
	}
	return &Hub{clients: make(map[uint64]*client), sendBufferSize: sendBufferSize, log: log}
}

// SetInitialState wires the snapshot producer used to unicast state to
// each newly connected client. Safe to call at any time; connections
// accepted before it is set simply receive no initial push and wait for
// the next debounced broadcast instead.
func (h *Hub) SetInitialState(f InitialStateFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.initial = f
}

// NumUsers is O(1), implementing appstate.Broadcaster.
func (h *Hub) NumUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast implements appstate.Broadcaster: sends payload to every
// connected client, gathering dead ids during iteration and removing
// them only after the full pass (spec.md §4.9).
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	var dead []uint64
	for _, c := range clients {
		if !h.trySend(c, payload) {
			dead = append(dead, c.id)
		}
	}

	if len(dead) == 0 {
		return
	}
	h.mu.Lock()
	for _, id := range dead {
		delete(h.clients, id)
	}
	h.mu.Unlock()
	h.log.Warn("websocket: evicted slow clients", "count", len(dead))
}

func (h *Hub) trySend(c *client, payload []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Send unicasts payload to a single client by id — the `Some(id)` case
// of the original's `send(user_id: Option<usize>, …)`, with Broadcast
// above covering the `None` case. A full queue is fatal for that one
// client, exactly as a full queue is fatal for a client during
// Broadcast; it is evicted and false is returned.
func (h *Hub) Send(id uint64, payload []byte) bool {
	h.mu.RLock()
	c, ok := h.clients[id]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	if h.trySend(c, payload) {
		return true
	}

	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
	h.log.Warn("websocket: evicted slow client", "client_id", id)
	return false
}

// ServeHTTP upgrades the connection, registers the client, and — if an
// InitialStateFunc has been wired via SetInitialState — unicasts the
// current state snapshot to it immediately, so a client left otherwise
// idle still sees real state rather than waiting for the next
// debounced broadcast.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket: upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	h.nextID++
	c := &client{id: h.nextID, conn: conn, send: make(chan []byte, h.sendBufferSize)}
	h.clients[c.id] = c
	initial := h.initial
	h.mu.Unlock()

	go h.writePump(c)

	if initial != nil {
		payload, err := initial()
		if err != nil {
			h.log.Error("websocket: building initial state snapshot failed", "error", err)
		} else {
			h.Send(c.id, payload)
		}
	}

	h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	if ok {
		delete(h.clients, c.id)
	}
	h.mu.Unlock()
	if ok {
		close(c.send)
	}
}
