// Package transporttest provides a scripted in-memory transport.Channel for
// exercising sessions without sockets.
package transporttest

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/muurk/wsduplex/internal/transport"
)

// Op names the channel operation recorded by an Event.
type Op string

const (
	OpHandshake Op = "handshake"
	OpRead      Op = "read"
	OpWrite     Op = "write"
	OpClose     Op = "close"
)

// Event records one call made on the channel. OpRead is recorded when the
// read is issued, OpWrite when the write is issued.
type Event struct {
	Op   Op
	Type transport.MessageType
	Data []byte
}

type inbound struct {
	typ  transport.MessageType
	data []byte
	err  error
}

// Channel is a transport.Channel driven by the test. Inbound frames are
// queued with Push*; every call is recorded on Events. Overlapping operations
// (two reads, or a read and a write) are counted as violations.
type Channel struct {
	HandshakeErr error

	frames chan inbound
	events chan Event
	closed chan struct{}

	closeOnce sync.Once
	inflight  atomic.Int32
	violation atomic.Int32
	reads     atomic.Int32
	writes    atomic.Int32

	mu        sync.Mutex
	written   [][]byte
	writeHold chan struct{}
	writeErr  error
}

// New returns an empty channel.
func New() *Channel {
	return &Channel{
		frames: make(chan inbound, 64),
		events: make(chan Event, 1024),
		closed: make(chan struct{}),
	}
}

// Push queues an inbound frame.
func (c *Channel) Push(typ transport.MessageType, data []byte) {
	c.frames <- inbound{typ: typ, data: append([]byte(nil), data...)}
}

// PushText queues an inbound text frame.
func (c *Channel) PushText(s string) {
	c.Push(transport.TextMessage, []byte(s))
}

// PushError makes the next read fail with err.
func (c *Channel) PushError(err error) {
	c.frames <- inbound{err: err}
}

// PushGracefulClose makes the next read report a normal close by the peer.
func (c *Channel) PushGracefulClose() {
	c.PushError(&transport.Error{Op: "read", Kind: transport.KindGracefulClose})
}

// FailWrites makes every subsequent write fail with err.
func (c *Channel) FailWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

// HoldWrites makes writes block until ReleaseWrite is called once per write.
func (c *Channel) HoldWrites() {
	c.mu.Lock()
	c.writeHold = make(chan struct{}, 64)
	c.mu.Unlock()
}

// ReleaseWrite lets one held write complete.
func (c *Channel) ReleaseWrite() {
	c.mu.Lock()
	hold := c.writeHold
	c.mu.Unlock()
	if hold != nil {
		hold <- struct{}{}
	}
}

// Events returns the stream of recorded calls.
func (c *Channel) Events() <-chan Event { return c.events }

// Reads returns the number of reads issued.
func (c *Channel) Reads() int { return int(c.reads.Load()) }

// Writes returns the number of writes issued.
func (c *Channel) Writes() int { return int(c.writes.Load()) }

// Violations returns how many times an operation started while another was
// outstanding.
func (c *Channel) Violations() int { return int(c.violation.Load()) }

// Written returns copies of every payload written so far.
func (c *Channel) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Channel) record(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}

func (c *Channel) enter() {
	if c.inflight.Add(1) > 1 {
		c.violation.Add(1)
	}
}

func (c *Channel) leave() { c.inflight.Add(-1) }

var errClosed = errors.New("use of closed channel")

// Handshake implements transport.Channel.
func (c *Channel) Handshake(ctx context.Context) error {
	c.record(Event{Op: OpHandshake})
	if c.HandshakeErr != nil {
		return &transport.Error{Op: "handshake", Kind: transport.KindHandshake, Err: c.HandshakeErr}
	}
	return ctx.Err()
}

// ReadMessage implements transport.Channel. It blocks until a frame is
// pushed, the channel is closed, or ctx is done.
func (c *Channel) ReadMessage(ctx context.Context, dst *bytes.Buffer) (transport.MessageType, int, error) {
	c.enter()
	defer c.leave()
	c.reads.Add(1)
	c.record(Event{Op: OpRead})

	select {
	case f := <-c.frames:
		if f.err != nil {
			return 0, 0, transport.Classify("read", f.err)
		}
		n, _ := dst.Write(f.data)
		return f.typ, n, nil
	case <-c.closed:
		return 0, 0, &transport.Error{Op: "read", Kind: transport.KindIO, Err: errClosed}
	case <-ctx.Done():
		return 0, 0, transport.Classify("read", ctx.Err())
	}
}

// WriteMessage implements transport.Channel.
func (c *Channel) WriteMessage(ctx context.Context, typ transport.MessageType, p []byte) (int, error) {
	c.enter()
	defer c.leave()
	c.writes.Add(1)

	data := append([]byte(nil), p...)
	c.record(Event{Op: OpWrite, Type: typ, Data: data})

	c.mu.Lock()
	hold := c.writeHold
	writeErr := c.writeErr
	c.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-c.closed:
			return 0, &transport.Error{Op: "write", Kind: transport.KindIO, Err: errClosed}
		case <-ctx.Done():
			return 0, transport.Classify("write", ctx.Err())
		}
	}

	if writeErr != nil {
		return 0, transport.Classify("write", writeErr)
	}

	c.mu.Lock()
	c.written = append(c.written, data)
	c.mu.Unlock()
	return len(p), nil
}

// Close implements transport.Channel.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.record(Event{Op: OpClose})
	})
	return nil
}

// RemoteAddr implements transport.Channel.
func (c *Channel) RemoteAddr() string { return "transporttest" }

var _ transport.Channel = (*Channel)(nil)
