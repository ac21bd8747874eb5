package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/wsduplex/internal/logging"
	"go.uber.org/zap"
)

const (
	// DefaultHandshakeTimeout bounds the HTTP upgrade.
	DefaultHandshakeTimeout = 30 * time.Second

	// DefaultIdleTimeout is the time allowed between frames from the peer.
	DefaultIdleTimeout = 300 * time.Second

	// DefaultWriteTimeout is the time allowed to write one frame.
	DefaultWriteTimeout = 30 * time.Second

	// closeGrace bounds the best-effort close frame sent by Close.
	closeGrace = time.Second
)

// Options configures a WebSocketChannel. Zero durations disable the
// corresponding deadline; a zero ReadLimit means no limit.
type Options struct {
	HandshakeTimeout time.Duration
	IdleTimeout      time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64
	ServerHeader     string
	CheckOrigin      func(r *http.Request) bool
}

// DefaultOptions returns the timeouts the server uses when none are configured.
func DefaultOptions() Options {
	return Options{
		HandshakeTimeout: DefaultHandshakeTimeout,
		IdleTimeout:      DefaultIdleTimeout,
		WriteTimeout:     DefaultWriteTimeout,
	}
}

// WebSocketChannel is a Channel over a gorilla/websocket connection. It is
// created from an HTTP upgrade request; the upgrade itself happens in
// Handshake, which must be called before the HTTP handler returns.
type WebSocketChannel struct {
	w        http.ResponseWriter
	r        *http.Request
	opts     Options
	upgrader websocket.Upgrader

	mu        sync.Mutex
	conn      *websocket.Conn
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketChannel prepares a channel for the upgrade request r.
func NewWebSocketChannel(w http.ResponseWriter, r *http.Request, opts Options) *WebSocketChannel {
	return &WebSocketChannel{
		w:    w,
		r:    r,
		opts: opts,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: opts.HandshakeTimeout,
			CheckOrigin:      opts.CheckOrigin,
		},
	}
}

// Handshake validates and answers the HTTP upgrade request.
func (c *WebSocketChannel) Handshake(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &Error{Op: "handshake", Kind: KindHandshake, Err: err}
	}

	logRequestDetails(c.r)

	header := http.Header{}
	if c.opts.ServerHeader != "" {
		header.Set("Server", c.opts.ServerHeader)
	}

	// Upgrade writes the HTTP error response itself on failure.
	conn, err := c.upgrader.Upgrade(c.w, c.r, header)
	if err != nil {
		return &Error{Op: "handshake", Kind: KindHandshake, Err: err}
	}

	if c.opts.ReadLimit > 0 {
		conn.SetReadLimit(c.opts.ReadLimit)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return &Error{Op: "handshake", Kind: KindHandshake, Err: errors.New("channel closed during handshake")}
	}
	c.conn = conn
	c.mu.Unlock()

	return nil
}

func (c *WebSocketChannel) current() (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, errors.New("websocket not upgraded")
	}
	if c.closed {
		return nil, errors.New("use of closed channel")
	}
	return c.conn, nil
}

// ReadMessage reads the next data frame into dst. The read deadline is
// re-armed with IdleTimeout on every call; cancelling ctx expires it early.
func (c *WebSocketChannel) ReadMessage(ctx context.Context, dst *bytes.Buffer) (MessageType, int, error) {
	conn, err := c.current()
	if err != nil {
		return 0, 0, &Error{Op: "read", Kind: KindIO, Err: err}
	}

	if c.opts.IdleTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(c.opts.IdleTimeout)); err != nil {
			return 0, 0, Classify("read", err)
		}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	typ, r, err := conn.NextReader()
	if err != nil {
		return 0, 0, c.classifyCtx(ctx, "read", err)
	}

	n, err := dst.ReadFrom(r)
	if err != nil {
		return 0, int(n), c.classifyCtx(ctx, "read", err)
	}

	return MessageType(typ), int(n), nil
}

// WriteMessage writes p as one frame, bounded by WriteTimeout.
func (c *WebSocketChannel) WriteMessage(ctx context.Context, typ MessageType, p []byte) (int, error) {
	conn, err := c.current()
	if err != nil {
		return 0, &Error{Op: "write", Kind: KindIO, Err: err}
	}

	if c.opts.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
			return 0, Classify("write", err)
		}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	if err := conn.WriteMessage(int(typ), p); err != nil {
		return 0, c.classifyCtx(ctx, "write", err)
	}
	return len(p), nil
}

// classifyCtx reports context cancellation in preference to the deadline
// error it provoked.
func (c *WebSocketChannel) classifyCtx(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		kind := KindIO
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return &Error{Op: op, Kind: kind, Err: ctxErr}
	}
	return Classify(op, err)
}

// Close sends a best-effort normal close frame and closes the socket.
func (c *WebSocketChannel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		conn := c.conn
		c.closed = true
		c.mu.Unlock()

		if conn == nil {
			return
		}

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		if err := conn.Close(); err != nil {
			c.closeErr = fmt.Errorf("failed to close websocket: %w", err)
		}
	})
	return c.closeErr
}

// RemoteAddr returns the peer address.
func (c *WebSocketChannel) RemoteAddr() string {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		return conn.RemoteAddr().String()
	}
	return c.r.RemoteAddr
}

// logRequestDetails logs the upgrade request at debug level
func logRequestDetails(req *http.Request) {
	headers := make(map[string]string, len(req.Header))
	for key, values := range req.Header {
		headers[key] = strings.Join(values, ", ")
	}

	logging.LogHTTPRequest(req.RemoteAddr, req.Method, req.URL.Path, headers)

	logging.Debug("WebSocket upgrade request details",
		zap.String("remote_addr", req.RemoteAddr),
		zap.String("host", req.Host),
		zap.String("origin", req.Header.Get("Origin")),
		zap.String("sec_websocket_version", req.Header.Get("Sec-WebSocket-Version")),
		zap.String("user_agent", req.Header.Get("User-Agent")),
	)
}
