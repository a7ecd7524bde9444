package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"dwiju-assistant/backend/internal/models"
	apperrors "dwiju-assistant/backend/pkg/errors"
	"dwiju-assistant/backend/pkg/logger"
	"dwiju-assistant/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024

	// Frames queued per connection before the reader blocks.
	inboxSize = 8
)

// Frame types.
const (
	TypeChat         = "chat"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeTyping       = "typing"
	TypeChatResponse = "chat-response"
	TypeError        = "error"
)

// Exchanger runs one chat exchange.
type Exchanger interface {
	Exchange(ctx context.Context, accountID string, req models.ChatRequest) (*models.ChatResponse, error)
}

// Inbound is a client frame. A frame without a type is a chat message.
type Inbound struct {
	Type string `json:"type,omitempty"`
	models.ChatRequest
}

// Message is a server frame.
type Message struct {
	Type    string `json:"type"`
	Content any    `json:"content,omitempty"`
}

// ErrorContent is the payload of an error frame.
type ErrorContent struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// Hub tracks open connections so they can be closed on shutdown.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	closed  bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

func (h *Hub) add(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown closes every connection and refuses new ones. In-flight
// exchanges are cancelled.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.cancel()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = c.conn.Close()
	}
}

// Handler upgrades authenticated requests to chat connections.
type Handler struct {
	hub      *Hub
	tokens   middleware.TokenValidator
	chat     Exchanger
	mapError func(error) *apperrors.AppError
	log      *logger.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket chat handler. mapError turns exchange
// failures into the codes sent in error frames. allowedOrigins empty
// accepts any origin.
func NewHandler(hub *Hub, tokens middleware.TokenValidator, chat Exchanger, mapError func(error) *apperrors.AppError, allowedOrigins []string, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.GetGlobal()
	}
	if mapError == nil {
		mapError = apperrors.FromError
	}
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}
	return &Handler{
		hub:      hub,
		tokens:   tokens,
		chat:     chat,
		mapError: mapError,
		log:      log,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := origins[origin]
				return ok
			},
		},
	}
}

// ServeWs handles GET /ws/chat?token=...
func (h *Handler) ServeWs(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		_ = c.Error(apperrors.NewUnauthorizedError(apperrors.CodeNoToken, "Access token required"))
		c.Abort()
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		_ = c.Error(middleware.TokenError(err))
		c.Abort()
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err.Error())
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		id:        uuid.NewString(),
		accountID: claims.UserID,
		conn:      conn,
		send:      make(chan []byte, 16),
		inbox:     make(chan Inbound, inboxSize),
		ctx:       ctx,
		cancel:    cancel,
		handler:   h,
	}
	client.log = h.log.With("client_id", client.id, "user_id", claims.UserID)

	if !h.hub.add(client) {
		cancel()
		_ = conn.Close()
		return
	}
	client.log.Info("websocket connected")

	go client.writePump()
	go client.process()
	client.readPump()
}

// Client is one websocket connection.
type Client struct {
	id        string
	accountID string
	conn      *websocket.Conn
	send      chan []byte
	inbox     chan Inbound
	ctx       context.Context
	cancel    context.CancelFunc
	handler   *Handler
	log       *logger.Logger
	// sessionID is used for chat frames that omit sessionId, so one
	// connection keeps appending to one conversation.
	sessionID string
}

// readPump reads frames until the connection fails. Closing the connection
// cancels the exchange in flight.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		close(c.inbox)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("websocket read failed", "error", err.Error())
			}
			return
		}

		var frame Inbound
		if err := json.Unmarshal(data, &frame); err != nil {
			c.sendError(apperrors.NewBadRequestError(apperrors.CodeValidation, "Invalid message format"))
			continue
		}

		if frame.Type == TypePing {
			c.sendMessage(TypePong, nil)
			continue
		}

		select {
		case c.inbox <- frame:
		case <-c.ctx.Done():
			return
		}
	}
}

// process runs chat frames one at a time in arrival order.
func (c *Client) process() {
	defer func() {
		c.handler.hub.remove(c)
		close(c.send)
		c.log.Info("websocket disconnected")
	}()

	for frame := range c.inbox {
		if frame.Type != "" && frame.Type != TypeChat {
			c.sendError(apperrors.NewBadRequestError(apperrors.CodeValidation, "Unknown message type"))
			continue
		}
		if c.ctx.Err() != nil {
			continue
		}

		if frame.SessionID == "" {
			if c.sessionID == "" {
				c.sessionID = uuid.NewString()
			}
			frame.SessionID = c.sessionID
		}

		c.sendMessage(TypeTyping, map[string]any{"isTyping": true})
		resp, err := c.handler.chat.Exchange(c.ctx, c.accountID, frame.ChatRequest)
		if err != nil {
			if c.ctx.Err() != nil {
				continue
			}
			c.sendError(c.handler.mapError(err))
			continue
		}
		c.sendMessage(TypeChatResponse, resp)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendMessage(messageType string, content any) {
	data, err := json.Marshal(Message{Type: messageType, Content: content})
	if err != nil {
		c.log.Error("websocket frame marshal failed", "type", messageType, "error", err.Error())
		return
	}
	select {
	case c.send <- data:
	case <-c.ctx.Done():
	}
}

func (c *Client) sendError(e *apperrors.AppError) {
	c.sendMessage(TypeError, ErrorContent{Code: e.Code, Error: e.Message})
}
