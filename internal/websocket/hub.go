package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/scenery-voice/internal/metrics"
	"github.com/satriahrh/scenery-voice/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks

	// Longest utterance buffered before audio_end; 60s of 16 kHz PCM16.
	maxUtteranceBytes = 60 * 16000 * 2

	// Time allowed for one scripted turn.
	turnTimeout = 60 * time.Second
)

var errClientClosed = errors.New("client connection closed")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Hub maintains the set of active voice stream connections, one per session.
type Hub struct {
	// Registered clients by session id.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run returns.
	stopped chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	conversation usecase.ConversationService
	metrics      *metrics.Server
	clock        clock.Clock
	logger       *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(conversation usecase.ConversationService, m *metrics.Server, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:      make(map[string]*Client),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		stopped:      make(chan struct{}),
		conversation: conversation,
		metrics:      m,
		clock:        clock.New(),
		logger:       logger,
	}
}

// Run starts the hub's main loop and closes every client when ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.sessionID]; ok {
				// a reconnecting session replaces its stale connection
				old.shutdown()
				h.metrics.ConnectionClosed()
			}
			h.clients[client.sessionID] = client
			h.mu.Unlock()
			h.metrics.ConnectionOpened()
			h.logger.Info("Client registered", zap.String("session_id", client.sessionID))

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.sessionID]; ok && current == client {
				delete(h.clients, client.sessionID)
				h.metrics.ConnectionClosed()
			}
			h.mu.Unlock()
			client.shutdown()
			h.logger.Info("Client unregistered", zap.String("session_id", client.sessionID))

		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				client.shutdown()
				delete(h.clients, id)
				h.metrics.ConnectionClosed()
			}
			h.mu.Unlock()
			h.logger.Info("Hub stopped")
			return
		}
	}
}

// ClientCount returns the number of registered sessions
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// idleClients returns the clients with no inbound traffic since cutoff
func (h *Hub) idleClients(cutoff time.Time) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var idle []*Client
	for _, client := range h.clients {
		if client.lastActive().Before(cutoff) {
			idle = append(idle, client)
		}
	}
	return idle
}

// HasSession reports whether sessionID has an open connection
func (h *Hub) HasSession(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[sessionID]
	return ok
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Closed once the client is shut down; writers select on it instead of
	// send being closed.
	done      chan struct{}
	closeOnce sync.Once

	sessionID string

	logger *zap.Logger

	// Unix nanoseconds of the last inbound message
	active atomic.Int64

	// Utterance audio received since the last audio_end
	audio      []byte
	turnCancel context.CancelFunc
	mutex      sync.Mutex
}

// HandleWebSocket upgrades the request and serves one voice stream connection.
func HandleWebSocket(hub *Hub, c echo.Context, sessionID string) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan WriteData, 256),
		done:      make(chan struct{}),
		sessionID: sessionID,
		logger:    hub.logger.With(zap.String("session_id", sessionID)),
	}
	client.touch()

	select {
	case client.hub.register <- client:
	case <-hub.stopped:
		conn.Close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

func (c *Client) touch() {
	c.active.Store(c.hub.clock.Now().UnixNano())
}

func (c *Client) lastActive() time.Time {
	return time.Unix(0, c.active.Load())
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mutex.Lock()
		if c.turnCancel != nil {
			c.turnCancel()
		}
		c.mutex.Unlock()
	})
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopped:
			c.shutdown()
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		kind, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}
		c.touch()

		switch kind {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.processBinaryAudioChunk(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", kind))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// emit queues one server message for the write pump
func (c *Client) emit(msg interface{}) error {
	payload, err := EncodeServerMessage(msg)
	if err != nil {
		return err
	}
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
		return nil
	case <-c.done:
		return errClientClosed
	}
}

// processMessage processes incoming control messages from the client
func (c *Client) processMessage(message []byte) {
	if IsAudioEnd(message) {
		c.handleAudioEnd()
		return
	}

	msgType, err := messageType(message)
	if err != nil {
		c.logger.Warn("Failed to parse message", zap.Error(err))
		c.emit(CreateErrorMessage("invalid message"))
		return
	}
	c.logger.Warn("Unknown message type", zap.String("type", string(msgType)))
}

// processBinaryAudioChunk buffers one PCM frame of the current utterance
func (c *Client) processBinaryAudioChunk(data []byte) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if len(c.audio)+len(data) > maxUtteranceBytes {
		c.logger.Warn("Utterance too long, dropping audio chunk", zap.Int("size", len(data)))
		return
	}
	c.audio = append(c.audio, data...)
	c.hub.metrics.AudioReceived(len(data))

	c.logger.Debug("Received binary audio chunk",
		zap.Int("size", len(data)),
		zap.Int("buffered", len(c.audio)))
}

// handleAudioEnd hands the buffered utterance to the conversation service.
// A turn still running for this client is cancelled first.
func (c *Client) handleAudioEnd() {
	c.mutex.Lock()
	audio := c.audio
	c.audio = nil
	if c.turnCancel != nil {
		c.turnCancel()
	}
	ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
	c.turnCancel = cancel
	c.mutex.Unlock()

	c.logger.Info("Utterance ended", zap.Int("bytes", len(audio)))
	go c.respond(ctx, cancel, audio)
}

func (c *Client) respond(ctx context.Context, cancel context.CancelFunc, audio []byte) {
	defer cancel()

	err := c.hub.conversation.HandleUtterance(ctx, c.sessionID, audio, c.emit)
	if errors.Is(err, context.Canceled) || errors.Is(err, errClientClosed) {
		return
	}
	c.hub.metrics.TurnCompleted(err)
	if err != nil {
		c.logger.Error("Conversation turn failed", zap.Error(err))
		c.emit(CreateErrorMessage("failed to process audio"))
	}
}
