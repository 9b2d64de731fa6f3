package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"trading-advisor-bot/internal/events"
	"trading-advisor-bot/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	clientSendBuffer = 64
	writeWait        = 10 * time.Second
	pingPeriod       = 30 * time.Second
)

// Hub relays bus events to websocket dashboard clients.
type Hub struct {
	bus    *events.EventBus
	logger *logging.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	started bool
	done    chan struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan events.Event
}

// NewHub creates the hub.
func NewHub(bus *events.EventBus, logger *logging.Logger) *Hub {
	return &Hub{
		bus:     bus,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
		done:    make(chan struct{}),
	}
}

// Start subscribes the hub to every bus event.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return
	}
	h.started = true

	h.bus.SubscribeAll(func(event events.Event) {
		h.broadcast(event)
	})
}

// Stop disconnects every client.
func (h *Hub) Stop() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

func (h *Hub) broadcast(event events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- event:
		default:
			// Slow client: drop it rather than block the bus.
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// HandleWebSocket upgrades the connection and streams events.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan events.Event, clientSendBuffer),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go h.writePump(client)
	go h.readPump(client)
}

func (h *Hub) writePump(client *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case event, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(event); err != nil {
				h.remove(client)
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(client)
				return
			}
		case <-h.done:
			return
		}
	}
}

// readPump drains client frames so pongs and closes are processed.
func (h *Hub) readPump(client *wsClient) {
	defer func() {
		h.remove(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(512)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		close(client.send)
		delete(h.clients, client)
	}
}
