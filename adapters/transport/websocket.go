package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/scenery-voice/domain/repositories"
)

const (
	// Time allowed to write a message to the peer.
	defaultWriteWait = 10 * time.Second

	// Time allowed for the opening handshake.
	defaultHandshakeTimeout = 10 * time.Second

	// Maximum message size accepted from the server; tts_audio fragments are the largest.
	defaultMaxMessageSize = 4 * 1024 * 1024

	// SessionQueryParam carries the session identifier on the stream URL
	SessionQueryParam = "session_id"
)

// TokenSource issues a bearer token for a session
type TokenSource interface {
	Token(sessionID string) (string, error)
}

// Config configures the WebSocket dialer
type Config struct {
	Endpoint         string
	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	MaxMessageSize   int64
	Tokens           TokenSource
}

// Dialer opens voice stream connections with gorilla/websocket
type Dialer struct {
	endpoint  *url.URL
	dialer    *websocket.Dialer
	writeWait time.Duration
	readLimit int64
	tokens    TokenSource
	logger    *zap.Logger
}

// NewDialer validates the endpoint and creates a dialer
func NewDialer(cfg Config, logger *zap.Logger) (*Dialer, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid endpoint scheme %q: must be ws or wss", u.Scheme)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	handshake := cfg.HandshakeTimeout
	if handshake <= 0 {
		handshake = defaultHandshakeTimeout
	}
	writeWait := cfg.WriteWait
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	readLimit := cfg.MaxMessageSize
	if readLimit <= 0 {
		readLimit = defaultMaxMessageSize
	}

	return &Dialer{
		endpoint: u,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshake,
			ReadBufferSize:   1024,
			WriteBufferSize:  4096,
		},
		writeWait: writeWait,
		readLimit: readLimit,
		tokens:    cfg.Tokens,
		logger:    logger,
	}, nil
}

// URL returns the stream URL for a session
func (d *Dialer) URL(sessionID string) string {
	u := *d.endpoint
	q := u.Query()
	q.Set(SessionQueryParam, sessionID)
	u.RawQuery = q.Encode()
	return u.String()
}

// Dial implements repositories.Dialer
func (d *Dialer) Dial(ctx context.Context, sessionID string) (repositories.Connection, error) {
	header := http.Header{}
	if d.tokens != nil {
		token, err := d.tokens.Token(sessionID)
		if err != nil {
			return nil, fmt.Errorf("issue connection token: %w", err)
		}
		header.Set("Authorization", "Bearer "+token)
	}

	target := d.URL(sessionID)
	conn, resp, err := d.dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	conn.SetReadLimit(d.readLimit)

	d.logger.Debug("WebSocket connected", zap.String("url", target))
	return &Conn{conn: conn, writeWait: d.writeWait}, nil
}

// Conn adapts a gorilla connection to repositories.Connection
type Conn struct {
	conn      *websocket.Conn
	writeWait time.Duration

	// gorilla allows one concurrent writer
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (c *Conn) WriteBinary(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

func (c *Conn) WriteText(data []byte) error {
	return c.write(websocket.TextMessage, data)
}

func (c *Conn) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.conn.WriteMessage(messageType, data)
}

// ReadMessage returns the next data message. Control frames are handled by gorilla.
func (c *Conn) ReadMessage() (repositories.MessageKind, []byte, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return 0, nil, err
		}
		switch messageType {
		case websocket.TextMessage:
			return repositories.TextMessage, data, nil
		case websocket.BinaryMessage:
			return repositories.BinaryMessage, data, nil
		}
	}
}

// Close sends a normal close frame and releases the socket. It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		// the peer may already be gone
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeWait))
		c.writeMu.Unlock()

		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
