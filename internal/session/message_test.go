package session

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/muurk/wsduplex/internal/transport/transporttest"
)

func TestMovedFromMessageDoesNothing(t *testing.T) {
	kept := make(chan *Message, 1)
	h := startHarness(t, HandlerFunc(func(m *Message) {
		moved := m.Move()

		if m.Payload() != nil {
			t.Error("moved-from Payload() != nil")
		}
		if _, err := m.WriteString("x"); !errors.Is(err, ErrFinalized) {
			t.Errorf("moved-from WriteString() error = %v, want %v", err, ErrFinalized)
		}
		if !m.Finalized() {
			t.Error("moved-from Finalized() = false")
		}
		if string(moved.Payload()) != "hold" {
			t.Errorf("moved Payload() = %q, want %q", moved.Payload(), "hold")
		}
		kept <- moved
	}))

	h.expect(transporttest.OpRead)
	h.ch.PushText("hold")
	m := <-kept

	// The handler returned, but the implicit release acted on the
	// moved-from handle, so the session must still be waiting.
	h.expectQuiet()
	if got := h.s.State(); got != StateReadComplete {
		t.Errorf("State() = %v, want %v", got, StateReadComplete)
	}

	_, _ = m.WriteString("later")
	m.Send()

	if ev := h.expect(transporttest.OpWrite); string(ev.Data) != "later" {
		t.Errorf("wrote %q, want %q", ev.Data, "later")
	}
	h.expect(transporttest.OpRead)
}

func TestRetainedMessageOutlivesSession(t *testing.T) {
	kept := make(chan *Message, 1)
	h := startHarness(t, HandlerFunc(func(m *Message) {
		kept <- m.Move()
	}))

	h.expect(transporttest.OpRead)
	h.ch.PushText("retain")
	m := <-kept

	h.s.Close()
	h.expect(transporttest.OpClose)
	h.waitClosed()

	if m.Payload() != nil {
		t.Error("Payload() != nil after session closed")
	}
	if _, err := m.WriteString("too late"); !errors.Is(err, ErrFinalized) {
		t.Errorf("WriteString() error = %v, want %v", err, ErrFinalized)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
	m.Send()
	m.Release()

	h.expectQuiet()
	if h.ch.Writes() != 0 || h.ch.Reads() != 1 {
		t.Errorf("reads = %d, writes = %d, want 1, 0", h.ch.Reads(), h.ch.Writes())
	}
}

func TestDeferredSendFromAnotherGoroutine(t *testing.T) {
	h := startHarness(t, HandlerFunc(func(m *Message) {
		moved := m.Move()
		go func() {
			time.Sleep(10 * time.Millisecond)
			_, _ = moved.WriteString("deferred")
			moved.Send()
		}()
	}))

	h.expect(transporttest.OpRead)
	h.ch.PushText("go")

	if ev := h.expect(transporttest.OpWrite); string(ev.Data) != "deferred" {
		t.Errorf("wrote %q, want %q", ev.Data, "deferred")
	}
	h.expect(transporttest.OpRead)
	if h.ch.Violations() != 0 {
		t.Errorf("overlapping operations = %d, want 0", h.ch.Violations())
	}
}

func TestMoveChainFinalizesOnce(t *testing.T) {
	kept := make(chan *Message, 1)
	h := startHarness(t, HandlerFunc(func(m *Message) {
		first := m.Move()
		second := first.Move()
		first.Release()
		kept <- second
	}))

	h.expect(transporttest.OpRead)
	h.ch.PushText("chain")
	m := <-kept
	h.expectQuiet()

	m.Release()
	h.expect(transporttest.OpRead)

	m.Release()
	m.Send()
	h.expectQuiet()
}

func TestDroppedMovedMessageIsReleased(t *testing.T) {
	h := startHarness(t, HandlerFunc(func(m *Message) {
		_ = m.Move()
	}))

	h.expect(transporttest.OpRead)
	h.ch.PushText("drop")

	for i := 0; i < 100; i++ {
		runtime.GC()
		select {
		case ev := <-h.ch.Events():
			if ev.Op != transporttest.OpRead {
				t.Fatalf("event = %s, want %s", ev.Op, transporttest.OpRead)
			}
			if h.ch.Writes() != 0 {
				t.Errorf("writes = %d, want 0", h.ch.Writes())
			}
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
	t.Fatal("dropped message was never released")
}

func TestMoveOfEmptyMessage(t *testing.T) {
	var m Message
	moved := m.Move()
	if !moved.Finalized() {
		t.Error("Move() of empty message returned a live message")
	}
	moved.Send()
	moved.Release()
}
