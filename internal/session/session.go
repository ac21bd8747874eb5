package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/muurk/wsduplex/internal/executor"
	"github.com/muurk/wsduplex/internal/logging"
	"github.com/muurk/wsduplex/internal/transport"
	"go.uber.org/zap"
)

// DefaultOutputReserve is the output buffer capacity reserved before each
// dispatch so handlers rarely trigger a reallocation.
const DefaultOutputReserve = 1 << 20

var (
	// ErrAlreadyStarted is returned by Start on its second call.
	ErrAlreadyStarted = errors.New("session already started")

	// ErrExecutorStopped is the close reason when the strand stops accepting
	// work while the session is still open.
	ErrExecutorStopped = errors.New("executor stopped")
)

// Options configures a Session.
type Options struct {
	// OutputReserve is the capacity reserved in the output buffer before each
	// dispatch. Zero means DefaultOutputReserve; negative disables it.
	OutputReserve int

	// OnClose is called exactly once when the session reaches StateClosed.
	// err is nil for a local shutdown.
	OnClose func(s *Session, err error)
}

// Stats counts traffic on a session.
type Stats struct {
	FramesIn  uint64
	FramesOut uint64
	BytesIn   uint64
	BytesOut  uint64
}

// Session drives one transport.Channel through the read, dispatch, optional
// write cycle. Every state transition runs on the session's strand; I/O runs
// on short-lived goroutines whose completions are posted back to the strand.
type Session struct {
	id      string
	ch      transport.Channel
	handler Handler
	strand  *executor.Strand
	opts    Options

	// ctx is cancelled on close to unblock outstanding I/O.
	ctx    context.Context
	cancel context.CancelFunc

	// Owned by the strand. in and out are separate allocations so messages
	// can alias them without keeping the Session reachable.
	state State
	in    *bytes.Buffer
	out   *bytes.Buffer

	started   atomic.Bool
	closed    atomic.Bool
	stateView atomic.Int32
	closeOnce sync.Once
	done      chan struct{}

	errMu sync.Mutex
	err   error

	framesIn  atomic.Uint64
	framesOut atomic.Uint64
	bytesIn   atomic.Uint64
	bytesOut  atomic.Uint64
}

// New creates an idle session bound to ch. The session takes ownership of
// ch and closes it when it reaches StateClosed.
func New(ch transport.Channel, h Handler, strand *executor.Strand, opts Options) *Session {
	if opts.OutputReserve == 0 {
		opts.OutputReserve = DefaultOutputReserve
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:      uuid.NewString(),
		ch:      ch,
		handler: h,
		strand:  strand,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		state:   StateIdle,
		in:      new(bytes.Buffer),
		out:     new(bytes.Buffer),
		done:    make(chan struct{}),
	}
}

// ID returns the unique session identifier used in logs.
func (s *Session) ID() string { return s.id }

// RemoteAddr returns the peer address of the underlying channel.
func (s *Session) RemoteAddr() string { return s.ch.RemoteAddr() }

// State returns the most recently published state.
func (s *Session) State() State { return State(s.stateView.Load()) }

// Done is closed once the session has reached StateClosed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the reason the session closed, nil while open or after a
// local shutdown.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Stats returns a snapshot of the traffic counters.
func (s *Session) Stats() Stats {
	return Stats{
		FramesIn:  s.framesIn.Load(),
		FramesOut: s.framesOut.Load(),
		BytesIn:   s.bytesIn.Load(),
		BytesOut:  s.bytesOut.Load(),
	}
}

// Start performs the handshake on the calling goroutine and then begins the
// read cycle on the strand. The handshake must run on the caller because an
// HTTP upgrade has to complete before the request handler returns. A failed
// handshake closes the session and is returned; it is never retried.
func (s *Session) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	logging.LogConnection(s.ch.RemoteAddr(), s.id, "connection_accepted")

	if err := s.ch.Handshake(ctx); err != nil {
		err = transport.Classify("handshake", err)
		s.post(func() { s.fail(err) })
		<-s.done
		return err
	}

	logging.LogConnection(s.ch.RemoteAddr(), s.id, "websocket_upgraded")

	if !s.post(s.beginRead) {
		return ErrExecutorStopped
	}
	return nil
}

// Close shuts the session down from outside the cycle, for example during
// server shutdown. It is idempotent and does not wait; use Done for that.
func (s *Session) Close() {
	s.post(func() { s.fail(nil) })
}

// post runs fn on the strand. If the strand no longer accepts work the
// session is torn down directly and post reports false.
func (s *Session) post(fn func()) bool {
	if s.strand.Post(fn) {
		return true
	}
	s.teardown(ErrExecutorStopped)
	return false
}

func (s *Session) isClosed() bool {
	return s.state == StateClosed || s.closed.Load()
}

func (s *Session) setState(to State) {
	from := s.state
	s.state = to
	s.stateView.Store(int32(to))
	logging.LogStateTransition(s.id, from.String(), to.String())
}

// beginRead issues the next read. It is a no-op while a read or write is
// outstanding, which keeps an out-of-turn caller from overlapping I/O.
func (s *Session) beginRead() {
	if s.isClosed() || s.state.inFlight() {
		return
	}

	s.in.Reset()
	s.setState(StateReading)

	in := s.in
	go func() {
		typ, n, err := s.ch.ReadMessage(s.ctx, in)
		s.post(func() { s.onReadComplete(typ, n, err) })
	}()
}

func (s *Session) onReadComplete(typ transport.MessageType, n int, err error) {
	if s.isClosed() {
		return
	}
	s.setState(StateReadComplete)

	if err != nil {
		s.fail(err)
		return
	}

	s.framesIn.Add(1)
	s.bytesIn.Add(uint64(n))

	if s.opts.OutputReserve > 0 {
		s.out.Grow(s.opts.OutputReserve)
	}

	payload := s.in.Bytes()
	logging.LogFrame(s.id, "received", int(typ), payload)

	s.dispatch(newMessage(s, payload, s.out, typ))
}

// dispatch invokes the handler and finalizes m on every exit path. Release
// is a no-op if the handler already sent or moved the message.
func (s *Session) dispatch(m *Message) {
	defer m.Release()
	defer func() {
		if r := recover(); r != nil {
			logging.Warn("Recovered panic in message handler",
				zap.String("session_id", s.id),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			s.fail(fmt.Errorf("handler panic: %v", r))
		}
	}()

	s.handler.HandleMessage(m)
}

// beginWrite writes the accumulated output, which may be empty. It only
// proceeds from StateReadComplete.
func (s *Session) beginWrite(typ transport.MessageType) {
	if s.isClosed() || s.state != StateReadComplete {
		return
	}

	s.setState(StateWriting)

	payload := s.out.Bytes()
	logging.LogFrame(s.id, "sent", int(typ), payload)

	go func() {
		n, err := s.ch.WriteMessage(s.ctx, typ, payload)
		s.post(func() { s.onWriteComplete(n, err) })
	}()
}

func (s *Session) onWriteComplete(n int, err error) {
	if s.isClosed() {
		return
	}
	s.setState(StateWriteComplete)

	if err != nil {
		s.fail(err)
		return
	}

	s.framesOut.Add(1)
	s.bytesOut.Add(uint64(n))

	s.out.Reset()
	s.beginRead()
}

// fail moves the session to StateClosed. Must run on the strand.
func (s *Session) fail(err error) {
	if s.state != StateClosed {
		s.setState(StateClosed)
	}
	s.teardown(err)
}

// teardown releases the channel and publishes the close exactly once. It is
// safe from any goroutine.
func (s *Session) teardown(err error) {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.stateView.Store(int32(StateClosed))

		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()

		s.report(err)

		s.cancel()
		if cerr := s.ch.Close(); cerr != nil {
			logging.Debug("Error closing channel",
				zap.String("session_id", s.id),
				zap.Error(cerr),
			)
		}

		logging.LogConnection(s.ch.RemoteAddr(), s.id, "websocket_closed")

		if s.opts.OnClose != nil {
			s.opts.OnClose(s, err)
		}
		close(s.done)
	})
}

// report is the error sink for close reasons.
func (s *Session) report(err error) {
	stats := s.Stats()
	fields := []zap.Field{
		zap.String("session_id", s.id),
		zap.String("remote_addr", s.ch.RemoteAddr()),
		zap.Uint64("frames_in", stats.FramesIn),
		zap.Uint64("frames_out", stats.FramesOut),
	}

	switch {
	case err == nil:
		logging.Info("Session closed", fields...)
	case transport.IsGracefulClose(err):
		logging.Info("Session closed by peer", fields...)
	default:
		fields = append(fields,
			zap.String("kind", transport.KindOf(err).String()),
			zap.Error(err),
		)
		logging.Error("Session failed", fields...)
	}
}
