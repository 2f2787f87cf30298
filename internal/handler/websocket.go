package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/itemfeed/internal/model"
	"github.com/vyrodovalexey/itemfeed/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	replyBuffer    = 8
	closeGrace     = 100 * time.Millisecond
)

// WebSocketHandler pushes store state to WebSocket clients whenever it
// changes. Clients may send {"type":"ping"} and get a pong back.
type WebSocketHandler struct {
	store    store.Store
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// wsClient is one connection. Only run writes to conn; read hands its
// replies over through the replies channel.
type wsClient struct {
	conn    *websocket.Conn
	replies chan model.WebSocketMessage
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler instance.
func NewWebSocketHandler(s store.Store, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		store: s,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// RegisterRoutes registers the WebSocket routes with the router.
func (h *WebSocketHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws", h.HandleWebSocket).Methods(http.MethodGet)
}

// HandleWebSocket upgrades the request and starts the client's read and
// write loops.
//
//nolint:contextcheck // the connection outlives the request context
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &wsClient{
		conn:    conn,
		replies: make(chan model.WebSocketMessage, replyBuffer),
		ctx:     ctx,
		cancel:  cancel,
		logger:  h.logger.With(zap.String("remote_addr", conn.RemoteAddr().String())),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	c.logger.Info("websocket client connected")

	updates, unsubscribe := h.store.Subscribe()

	go func() {
		defer unsubscribe()
		c.run(h.store, updates)
	}()
	go func() {
		c.read()
		h.drop(c)
	}()
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// drop forgets c and closes its connection.
func (h *WebSocketHandler) drop(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	c.cancel()
	if err := c.conn.Close(); err != nil {
		c.logger.Debug("error closing connection", zap.Error(err))
	}
	if ok {
		c.logger.Info("websocket client disconnected")
	}
}

// CloseAllConnections sends every client a close frame and then closes the
// connections.
func (h *WebSocketHandler) CloseAllConnections() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	// The write loops send the close frames once cancelled.
	for _, c := range clients {
		c.cancel()
	}
	time.Sleep(closeGrace)

	for _, c := range clients {
		h.drop(c)
	}

	h.logger.Info("all websocket connections closed", zap.Int("count", len(clients)))
}

// read consumes client messages until the connection fails or closes.
func (c *wsClient) read() {
	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error("failed to set read deadline", zap.Error(err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		reply := replyTo(data)
		c.logger.Debug("received message", zap.ByteString("message", data), zap.String("reply", reply.Type))

		select {
		case c.replies <- reply:
		case <-c.ctx.Done():
			return
		default:
			c.logger.Warn("reply buffer full, dropping reply", zap.String("type", reply.Type))
		}
	}
}

// replyTo answers a client message: pong for a ping, an error otherwise.
func replyTo(data []byte) model.WebSocketMessage {
	var msg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return model.NewErrorMessage("malformed message")
	}
	if msg.Type != model.WSMessageTypePing {
		return model.NewErrorMessage("unsupported message type")
	}
	return model.NewPongMessage()
}

// run owns all writes: the initial state, state after each change, replies
// and keepalive pings. It sends a close frame when the client is cancelled.
func (c *wsClient) run(s store.Store, updates <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if err := c.writeJSON(model.NewStateMessage(s.State())); err != nil {
		c.logger.Debug("failed to send initial state", zap.Error(err))
		return
	}

	for {
		var err error
		select {
		case <-c.ctx.Done():
			c.writeClose()
			return
		case _, ok := <-updates:
			if !ok {
				return
			}
			err = c.writeJSON(model.NewStateMessage(s.State()))
		case reply := <-c.replies:
			err = c.writeJSON(reply)
		case <-ticker.C:
			err = c.write(websocket.PingMessage, nil)
		}
		if err != nil {
			c.logger.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
}

func (c *wsClient) writeJSON(msg model.WebSocketMessage) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

func (c *wsClient) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

func (c *wsClient) writeClose() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down")
	if err := c.write(websocket.CloseMessage, msg); err != nil {
		c.logger.Debug("failed to send close message", zap.Error(err))
	}
}
