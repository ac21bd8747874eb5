// Package session implements the per-connection protocol engine: a state
// machine that alternates reading a frame, dispatching it to the application
// Handler, and optionally writing a response.
//
// # State Machine
//
//	Idle -> Reading -> ReadComplete -> Writing -> WriteComplete -> Reading ...
//	                       |
//	                       +-------------------------------------> Reading
//
// Closed is reachable from every state and is terminal. Handshake failures,
// peer closes, timeouts and transport errors all close the session; nothing
// is retried.
//
// # Single Flight
//
// All transitions run on the session's executor.Strand, so no two ever
// execute concurrently. Reads and writes run on goroutines and post their
// completion back to the strand. At most one read or one write is
// outstanding, never both, and a new read is not issued until the previous
// Message has been finalized.
//
// # Messages
//
// Each successfully read frame produces one Message. The handler may:
//
//   - write a response and call Send: exactly one frame is written, then the
//     session reads again
//   - return without calling Send: nothing is written and the session reads
//     again
//   - call Move to keep the message and finish it later from another
//     goroutine
//
// Finalization happens at most once regardless of how many of Send, Release
// or the implicit release at handler return are triggered. A Message refers
// to its session through a weak pointer; once the session has closed every
// operation on an outstanding Message is a silent no-op.
//
// # Example
//
//	h := session.HandlerFunc(func(m *session.Message) {
//	    if string(m.Payload()) == "ping" {
//	        m.WriteString("pong")
//	        m.Send()
//	    }
//	})
//	s := session.New(ch, h, ex.NewStrand(), session.Options{})
//	if err := s.Start(ctx); err != nil {
//	    return err
//	}
//	<-s.Done()
package session
