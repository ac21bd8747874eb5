package transport

import (
	"bytes"
	"context"

	"github.com/gorilla/websocket"
)

// MessageType is the data frame type of a WebSocket message.
type MessageType int

const (
	// TextMessage denotes a UTF-8 text frame.
	TextMessage MessageType = websocket.TextMessage
	// BinaryMessage denotes a binary data frame.
	BinaryMessage MessageType = websocket.BinaryMessage
)

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	default:
		return "unknown"
	}
}

// Channel is one framed, bidirectional connection. A session is its only user.
//
// ReadMessage and WriteMessage block until the operation completes; callers
// that want asynchronous completion run them on their own goroutine. At most
// one ReadMessage and one WriteMessage may be outstanding at a time. Close may
// be called concurrently with both and unblocks them.
//
// Errors returned by a Channel are *Error values carrying a Kind.
type Channel interface {
	// Handshake performs the protocol upgrade. It must succeed before any
	// read or write.
	Handshake(ctx context.Context) error

	// ReadMessage reads the next complete data frame into dst, which the
	// caller has reset. It returns the frame type and the number of bytes read.
	ReadMessage(ctx context.Context, dst *bytes.Buffer) (MessageType, int, error)

	// WriteMessage writes p as a single frame of type typ. p may be empty.
	WriteMessage(ctx context.Context, typ MessageType, p []byte) (int, error)

	// Close tears down the connection. It is idempotent.
	Close() error

	// RemoteAddr identifies the peer for logging.
	RemoteAddr() string
}
