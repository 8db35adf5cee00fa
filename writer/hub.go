package writer

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"heatflow/logger"
	"heatflow/models"
)

const clientBuffer = 64

// Hub broadcasts every feed message as a JSON text frame to all connected
// websocket clients. A client that falls behind by more than its buffer
// loses messages rather than slowing the others.
type Hub struct {
	in       <-chan models.FeedMessage
	upgrader websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[string]*hubClient

	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

type hubClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func NewHub(in <-chan models.FeedMessage) *Hub {
	return &Hub{
		in: in,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[string]*hubClient),
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
	}
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithComponent("feed_hub").WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &hubClient{id: uuid.NewString(), conn: conn, send: make(chan []byte, clientBuffer)}
	h.clientsMu.Lock()
	h.clients[c.id] = c
	total := len(h.clients)
	h.clientsMu.Unlock()

	h.log.WithComponent("feed_hub").WithFields(logger.Fields{
		"client":  c.id,
		"remote":  r.RemoteAddr,
		"clients": total,
	}).Info("client connected")

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards inbound frames and unregisters the client once the
// connection fails.
func (h *Hub) readPump(c *hubClient) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *hubClient) {
	defer c.conn.Close()
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) remove(c *hubClient) {
	h.clientsMu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	total := len(h.clients)
	h.clientsMu.Unlock()

	h.log.WithComponent("feed_hub").WithFields(logger.Fields{
		"client":  c.id,
		"clients": total,
	}).Info("client disconnected")
}

// Clients is the number of connected clients.
func (h *Hub) Clients() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(data []byte) {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.WithComponent("feed_hub").WithFields(logger.Fields{"client": c.id}).Debug("client buffer full, dropping message")
		}
	}
}

func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return fmt.Errorf("feed hub already running")
	}
	ctx, h.cancel = context.WithCancel(ctx)
	h.running = true
	h.mu.Unlock()

	h.wg.Add(1)
	go h.run(ctx)
	return nil
}

func (h *Hub) run(ctx context.Context) {
	defer h.wg.Done()

	log := h.log.WithComponent("feed_hub")
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-h.in:
			if !ok {
				return
			}
			data, err := EncodeJSON(msg)
			if err != nil {
				log.WithError(err).Warn("failed to encode message")
				continue
			}
			h.broadcast(data)
		}
	}
}

// Stop ends broadcasting and closes every client connection.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.cancel()
	h.mu.Unlock()

	h.wg.Wait()

	h.clientsMu.Lock()
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
	h.clientsMu.Unlock()
	h.log.WithComponent("feed_hub").Info("feed hub stopped")
}
