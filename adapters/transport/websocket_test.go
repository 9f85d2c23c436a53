package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/scenery-voice/domain/repositories"
)

type staticToken string

func (s staticToken) Token(sessionID string) (string, error) {
	return string(s) + ":" + sessionID, nil
}

type failingToken struct{}

func (failingToken) Token(string) (string, error) {
	return "", errors.New("no key")
}

type handshake struct {
	sessionID     string
	authorization string
}

// echoServer upgrades every request, reports its handshake and echoes every data message back
func echoServer(t *testing.T) (*httptest.Server, chan handshake) {
	t.Helper()
	seen := make(chan handshake, 1)
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- handshake{
			sessionID:     r.URL.Query().Get(SessionQueryParam),
			authorization: r.Header.Get("Authorization"),
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server, seen
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/voice/stream"
}

func TestDialerRoundTrip(t *testing.T) {
	server, seen := echoServer(t)

	dialer, err := NewDialer(Config{Endpoint: wsURL(server), Tokens: staticToken("tok")}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewDialer failed: %v", err)
	}

	conn, err := dialer.Dial(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	hs := <-seen
	if hs.sessionID != "session-1" {
		t.Errorf("Expected session_id session-1, got %q", hs.sessionID)
	}
	if hs.authorization != "Bearer tok:session-1" {
		t.Errorf("Expected bearer token, got %q", hs.authorization)
	}

	if err := conn.WriteBinary([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("WriteBinary failed: %v", err)
	}
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if kind != repositories.BinaryMessage || len(data) != 4 {
		t.Errorf("Expected 4 byte binary echo, got kind %d len %d", kind, len(data))
	}

	if err := conn.WriteText([]byte(`{"type":"audio_end"}`)); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}
	kind, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if kind != repositories.TextMessage || string(data) != `{"type":"audio_end"}` {
		t.Errorf("Expected text echo, got kind %d %q", kind, data)
	}
}

func TestDialerWithoutTokenSendsNoAuthorization(t *testing.T) {
	server, seen := echoServer(t)

	dialer, err := NewDialer(Config{Endpoint: wsURL(server)}, nil)
	if err != nil {
		t.Fatalf("NewDialer failed: %v", err)
	}
	conn, err := dialer.Dial(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if hs := <-seen; hs.authorization != "" {
		t.Errorf("Expected no Authorization header, got %q", hs.authorization)
	}
}

func TestDialerTokenFailure(t *testing.T) {
	dialer, err := NewDialer(Config{Endpoint: "ws://127.0.0.1:1/voice/stream", Tokens: failingToken{}}, nil)
	if err != nil {
		t.Fatalf("NewDialer failed: %v", err)
	}
	if _, err := dialer.Dial(context.Background(), "s"); err == nil {
		t.Error("Expected token error")
	}
}

func TestDialerHandshakeRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	dialer, _ := NewDialer(Config{Endpoint: wsURL(server), HandshakeTimeout: time.Second}, nil)
	_, err := dialer.Dial(context.Background(), "s")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("Expected handshake status error, got %v", err)
	}
}

func TestConnCloseIsIdempotentAndEndsReads(t *testing.T) {
	server, _ := echoServer(t)
	dialer, _ := NewDialer(Config{Endpoint: wsURL(server)}, nil)

	conn, err := dialer.Dial(context.Background(), "s")
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	first := conn.Close()
	second := conn.Close()
	if first != second {
		t.Errorf("Expected repeated Close to return the same result, got %v and %v", first, second)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("Expected read error after close")
	}
}

func TestNewDialerValidatesEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		wantErr  bool
	}{
		{"ws", "ws://localhost:8000/voice/stream", false},
		{"wss", "wss://voice.example.com/voice/stream", false},
		{"http", "http://localhost:8000/voice/stream", true},
		{"garbage", "://nope", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDialer(Config{Endpoint: tt.endpoint}, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewDialer() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDialerURLKeepsExistingQuery(t *testing.T) {
	dialer, err := NewDialer(Config{Endpoint: "ws://localhost:8000/voice/stream?lang=id"}, nil)
	if err != nil {
		t.Fatalf("NewDialer failed: %v", err)
	}
	got := dialer.URL("abc")
	if !strings.Contains(got, "lang=id") || !strings.Contains(got, "session_id=abc") {
		t.Errorf("Expected both query parameters, got %s", got)
	}
}
