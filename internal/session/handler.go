package session

// Handler is the application dispatcher. HandleMessage is called once per
// received frame, synchronously on the session's strand, and must return
// promptly. The message is finalized when HandleMessage returns unless the
// handler has moved it elsewhere with Message.Move.
type Handler interface {
	HandleMessage(m *Message)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(m *Message)

// HandleMessage calls f(m).
func (f HandlerFunc) HandleMessage(m *Message) { f(m) }
