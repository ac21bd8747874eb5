package session

import (
	"bytes"
	"errors"
	"runtime"
	"sync/atomic"
	"weak"

	"github.com/muurk/wsduplex/internal/transport"
)

// ErrFinalized is returned when writing to a message that has been sent,
// released or moved, or whose session has closed.
var ErrFinalized = errors.New("message already finalized")

// noCopy makes go vet's copylocks check flag copies of a Message.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// finalizer is the single-use token shared by whichever handle currently
// owns a frame. Its done flag makes Send, Release and the cleanup hook
// mutually exclusive.
type finalizer struct {
	session weak.Pointer[Session]
	done    atomic.Bool
}

// resolve returns the session if it is still reachable and open.
func (f *finalizer) resolve() *Session {
	s := f.session.Value()
	if s == nil || s.closed.Load() {
		return nil
	}
	return s
}

// finalize runs the terminal action at most once: a write when send is
// true, otherwise a resumed read. It does nothing if the session is gone.
func (f *finalizer) finalize(send bool, typ transport.MessageType) {
	if !f.done.CompareAndSwap(false, true) {
		return
	}

	s := f.resolve()
	if s == nil {
		return
	}

	if send {
		s.post(func() { s.beginWrite(typ) })
	} else {
		s.post(s.beginRead)
	}
}

// Message is the handle for one received frame. It grants read access to
// the payload and write access to the response buffer until it is
// finalized, either by Send (respond) or Release (resume listening without
// responding). A Message must not be copied; use Move to hand it on.
//
// The payload and response buffer belong to the session and are only valid
// until finalization.
type Message struct {
	_ noCopy

	fin        atomic.Pointer[finalizer]
	cleanup    runtime.Cleanup
	hasCleanup bool

	payload  []byte
	out      *bytes.Buffer
	typ      transport.MessageType
	respType transport.MessageType
}

func newMessage(s *Session, payload []byte, out *bytes.Buffer, typ transport.MessageType) *Message {
	m := &Message{
		payload:  payload,
		out:      out,
		typ:      typ,
		respType: typ,
	}
	m.fin.Store(&finalizer{session: weak.Make(s)})
	return m
}

// live reports whether the message still owns its frame and the session is
// still open.
func (m *Message) live() bool {
	f := m.fin.Load()
	return f != nil && !f.done.Load() && f.resolve() != nil
}

// Payload returns the frame payload, or nil once the message is finalized
// or its session has closed. The slice aliases the session's input buffer;
// do not retain it.
func (m *Message) Payload() []byte {
	if !m.live() {
		return nil
	}
	return m.payload
}

// Type returns the type of the received frame.
func (m *Message) Type() transport.MessageType { return m.typ }

// SetResponseType overrides the frame type used by Send. By default the
// response has the same type as the received frame.
func (m *Message) SetResponseType(t transport.MessageType) { m.respType = t }

// Write appends p to the response buffer.
func (m *Message) Write(p []byte) (int, error) {
	if !m.live() {
		return 0, ErrFinalized
	}
	return m.out.Write(p)
}

// WriteString appends s to the response buffer.
func (m *Message) WriteString(s string) (int, error) {
	if !m.live() {
		return 0, ErrFinalized
	}
	return m.out.WriteString(s)
}

// Len returns the number of response bytes written so far.
func (m *Message) Len() int {
	if !m.live() {
		return 0
	}
	return m.out.Len()
}

// Send finalizes the message by writing the response buffer as one frame,
// even if it is empty. It is a no-op if the message was already finalized
// or moved, or if the session has closed.
func (m *Message) Send() {
	m.finalize(true)
}

// Release finalizes the message without responding; the session resumes
// reading. It is a no-op if the message was already finalized or moved, or
// if the session has closed. The session calls Release when the handler
// returns.
func (m *Message) Release() {
	m.finalize(false)
}

func (m *Message) finalize(send bool) {
	f := m.fin.Load()
	if f == nil {
		return
	}
	m.stopCleanup()
	f.finalize(send, m.respType)
}

// Finalized reports whether the message can no longer be used: it was sent,
// released or moved from.
func (m *Message) Finalized() bool {
	f := m.fin.Load()
	return f == nil || f.done.Load()
}

// Move transfers ownership of the frame to a new Message and leaves m empty;
// finalizing m afterwards does nothing. Handlers use Move to keep a message
// past their return and finish it from another goroutine. If the returned
// message becomes unreachable without being finalized, it is released.
func (m *Message) Move() *Message {
	f := m.fin.Swap(nil)
	m.stopCleanup()

	moved := &Message{
		payload:  m.payload,
		out:      m.out,
		typ:      m.typ,
		respType: m.respType,
	}
	m.payload = nil
	m.out = nil

	if f == nil {
		return moved
	}

	moved.fin.Store(f)
	moved.cleanup = runtime.AddCleanup(moved, func(f *finalizer) {
		f.finalize(false, 0)
	}, f)
	moved.hasCleanup = true
	return moved
}

func (m *Message) stopCleanup() {
	if m.hasCleanup {
		m.cleanup.Stop()
		m.hasCleanup = false
	}
}
