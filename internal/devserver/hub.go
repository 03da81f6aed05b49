package devserver

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/tender-automation/dashboard/internal/protocol"
)

const writeTimeout = 5 * time.Second

type client struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) write(f protocol.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	mt := websocket.TextMessage
	if f.Binary {
		mt = websocket.BinaryMessage
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(mt, f.Data)
}

// Hub keeps the connected push channel clients and broadcasts to them.
type Hub struct {
	upgrader websocket.Upgrader
	binary   bool
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub creates a hub. When binary is set, messages go out as msgpack frames.
func NewHub(binary bool, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from any local tool
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		binary:  binary,
		logger:  logger.With("component", "hub"),
		clients: make(map[string]*client),
	}
}

// HandleWebSocket upgrades the request and holds the connection until the client leaves.
func (h *Hub) HandleWebSocket(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	cl := &client{id: uuid.New().String(), conn: ws}
	total := h.add(cl)
	h.logger.Info("client connected", "client", cl.id, "total", total)

	defer func() {
		h.remove(cl.id)
		ws.Close()
	}()

	// Clients only listen; reading drives ping/pong and notices the close.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("connection error", "client", cl.id, "error", err)
			}
			return nil
		}
	}
}

func (h *Hub) add(cl *client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[cl.id] = cl
	return len(h.clients)
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[id]; ok {
		delete(h.clients, id)
		h.logger.Info("client disconnected", "client", id, "total", len(h.clients))
	}
}

func (h *Hub) snapshot() []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*client, 0, len(h.clients))
	for _, cl := range h.clients {
		out = append(out, cl)
	}
	return out
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends m to every client and returns how many received it.
func (h *Hub) Broadcast(m protocol.Message) (int, error) {
	frame, err := protocol.Encode(m, h.binary)
	if err != nil {
		return 0, err
	}
	return h.BroadcastFrame(frame), nil
}

// BroadcastFrame sends a pre-encoded frame to every client. Clients that fail to
// receive it are dropped.
func (h *Hub) BroadcastFrame(f protocol.Frame) int {
	sent := 0
	for _, cl := range h.snapshot() {
		if err := cl.write(f); err != nil {
			h.logger.Warn("broadcast failed", "client", cl.id, "error", err)
			h.remove(cl.id)
			cl.conn.Close()
			continue
		}
		sent++
	}
	return sent
}

// DropAll closes every connection without a close handshake, as a network failure would.
func (h *Hub) DropAll() int {
	clients := h.snapshot()
	for _, cl := range clients {
		h.remove(cl.id)
		cl.conn.Close()
	}
	return len(clients)
}
