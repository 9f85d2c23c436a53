package repositories

import "context"

// MessageKind distinguishes text from binary transport messages
type MessageKind int

const (
	TextMessage MessageKind = iota + 1
	BinaryMessage
)

// Dialer opens duplex, message-oriented connections to the voice endpoint
type Dialer interface {
	Dial(ctx context.Context, sessionID string) (Connection, error)
}

// Connection is one transport instance bound to a session.
// Writes are issued from a single goroutine; ReadMessage from another.
type Connection interface {
	WriteBinary(data []byte) error
	WriteText(data []byte) error
	ReadMessage() (MessageKind, []byte, error)
	Close() error
}
