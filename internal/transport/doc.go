// Package transport defines the connection abstraction consumed by sessions
// and its gorilla/websocket implementation.
//
// A Channel exposes blocking ReadMessage and WriteMessage calls; sessions run
// each call on a dedicated goroutine and post the completion back to their
// strand, which gives the asynchronous read/write model without tying up an
// executor worker while the socket is idle.
//
// # Errors
//
// Every failure is an *Error carrying a Kind:
//
//   - KindHandshake: the HTTP upgrade was rejected or failed
//   - KindGracefulClose: the peer sent close code 1000, 1001 or 1005
//   - KindTimeout: the idle or write deadline expired
//   - KindProtocol: framing violation, oversized frame, abnormal close code
//   - KindIO: anything else at the socket level
//
// Timeouts are enforced by the channel itself through read and write
// deadlines, so an expired connection surfaces as an ordinary error
// completion.
//
// # Control Frames
//
// Ping, pong and close frames are handled by gorilla/websocket; only text and
// binary data frames are returned from ReadMessage.
package transport
