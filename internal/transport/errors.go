package transport

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/gorilla/websocket"
)

// Kind classifies a transport failure. Every kind is terminal for a session.
type Kind int

const (
	// KindIO is any socket-level failure not covered by another kind.
	KindIO Kind = iota
	// KindHandshake means the upgrade negotiation failed.
	KindHandshake
	// KindGracefulClose means the peer completed a normal close handshake.
	KindGracefulClose
	// KindTimeout means an idle or operation deadline expired.
	KindTimeout
	// KindProtocol means the peer violated the framing protocol or sent an
	// abnormal close code.
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io error"
	case KindHandshake:
		return "handshake failure"
	case KindGracefulClose:
		return "graceful close"
	case KindTimeout:
		return "timeout"
	case KindProtocol:
		return "protocol error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the error type returned by Channel implementations.
type Error struct {
	Op   string // "handshake", "read", "write"
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout reports whether the error is a deadline expiry, so *Error
// satisfies the net.Error timeout convention.
func (e *Error) Timeout() bool { return e.Kind == KindTimeout }

// Classify wraps err in an *Error, inferring its Kind from gorilla/websocket
// and net error values. A nil err yields nil; an *Error is returned as is.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var te *Error
	if errors.As(err, &te) {
		return te
	}

	return &Error{Op: op, Kind: kindOf(err), Err: err}
}

func kindOf(err error) Kind {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return KindGracefulClose
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return KindProtocol
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		return KindProtocol
	}

	if errors.Is(err, websocket.ErrBadHandshake) {
		return KindHandshake
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	return KindIO
}

// KindOf returns the Kind of err, or KindIO if err is not an *Error.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindIO
}

// IsGracefulClose reports whether err is a normal close by the peer.
func IsGracefulClose(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == KindGracefulClose
}

// IsTimeout reports whether err is a deadline expiry.
func IsTimeout(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == KindTimeout
}
