// README: WebSocket hub streaming corridor snapshots to viewers of that corridor.
package broadcast

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"greencorridor/internal/modules/corridor"
	"greencorridor/internal/types"
)

const writeWait = 5 * time.Second

type wsClient struct {
	id         uuid.UUID
	corridorID types.ID
	conn       *websocket.Conn
	send       chan []byte
	once       sync.Once
}

type hubMessage struct {
	corridorID types.ID
	payload    []byte
}

// Hub delivers at most once: a full hub queue or a slow client's full buffer drops the message.
type Hub struct {
	upgrader  websocket.Upgrader
	queue     chan hubMessage
	clientBuf int

	mu      sync.RWMutex
	clients map[types.ID]map[uuid.UUID]*wsClient
}

func NewHub(queueSize, clientBuf int) *Hub {
	if queueSize <= 0 {
		queueSize = 256
	}
	if clientBuf <= 0 {
		clientBuf = 16
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		queue:     make(chan hubMessage, queueSize),
		clientBuf: clientBuf,
		clients:   make(map[types.ID]map[uuid.UUID]*wsClient),
	}
}

// Run delivers queued snapshots until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case m := <-h.queue:
			h.deliver(m)
		}
	}
}

func (h *Hub) Publish(_ context.Context, snap corridor.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	select {
	case h.queue <- hubMessage{corridorID: snap.CorridorID, payload: payload}:
	default:
		log.Printf("[hub] queue full, dropping update for %s", snap.CorridorID)
	}
	return nil
}

// Subscribers returns the number of clients watching a corridor.
func (h *Hub) Subscribers(id types.ID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[id])
}

// ServeWS upgrades the request and subscribes the connection to corridorID.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, corridorID types.ID) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &wsClient{
		id:         uuid.New(),
		corridorID: corridorID,
		conn:       conn,
		send:       make(chan []byte, h.clientBuf),
	}

	h.mu.Lock()
	if h.clients[corridorID] == nil {
		h.clients[corridorID] = make(map[uuid.UUID]*wsClient)
	}
	h.clients[corridorID][c.id] = c
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
	return nil
}

func (h *Hub) deliver(m hubMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients[m.corridorID] {
		select {
		case c.send <- m.payload:
		default:
			log.Printf("[hub] client %s slow, dropping update for %s", c.id, m.corridorID)
		}
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	if set, ok := h.clients[c.corridorID]; ok {
		delete(set, c.id)
		if len(set) == 0 {
			delete(h.clients, c.corridorID)
		}
	}
	h.mu.Unlock()
	c.once.Do(func() { close(c.send) })
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	var all []*wsClient
	for _, set := range h.clients {
		for _, c := range set {
			all = append(all, c)
		}
	}
	h.clients = make(map[types.ID]map[uuid.UUID]*wsClient)
	h.mu.Unlock()
	for _, c := range all {
		c.once.Do(func() { close(c.send) })
	}
}

// readPump discards client frames and unregisters on disconnect.
func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
