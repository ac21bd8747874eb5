package handlers

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/muurk/wsduplex/internal/session"
)

// Echo writes the payload back as the response.
var Echo = session.HandlerFunc(func(m *session.Message) {
	_, _ = m.Write(m.Payload())
	m.Send()
})

// PingPong answers "ping" with "pong". Any other frame is released without
// a response.
var PingPong = session.HandlerFunc(func(m *session.Message) {
	if !bytes.Equal(m.Payload(), []byte("ping")) {
		return
	}
	_, _ = m.WriteString("pong")
	m.Send()
})

// Discard never responds.
var Discard = session.HandlerFunc(func(*session.Message) {})

// Deferred takes ownership of each frame and hands it to next after delay,
// on a separate goroutine. The session keeps waiting for the frame to be
// finalized in the meantime. Whatever next leaves unfinished is released.
func Deferred(delay time.Duration, next session.Handler) session.Handler {
	return session.HandlerFunc(func(m *session.Message) {
		moved := m.Move()
		time.AfterFunc(delay, func() {
			defer moved.Release()
			next.HandleMessage(moved)
		})
	})
}

var registry = map[string]session.Handler{
	"echo":     Echo,
	"pingpong": PingPong,
	"discard":  Discard,
}

// ByName returns the stock handler registered under name.
func ByName(name string) (session.Handler, error) {
	h, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown handler %q (available: %v)", name, Names())
	}
	return h, nil
}

// Names lists the registered handler names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
