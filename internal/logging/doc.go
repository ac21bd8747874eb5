// Package logging provides structured logging for the wsduplex server.
//
// This package wraps a global zap logger with convenience functions for the
// logging patterns used by the transport, session and server packages.
//
// # Log Levels
//
//   - Debug: state transitions, frame hex dumps, upgrade request headers
//   - Info: connection lifecycle, graceful closes, server start/stop
//   - Warn: shutdown timeouts, recovered handler panics
//   - Error: transport failures, handshake failures
//
// # Structured Logging
//
// All log functions use structured fields:
//
//	logging.Info("Session closed",
//	    zap.String("session_id", id),
//	    zap.Uint64("frames_in", stats.FramesIn),
//	)
//
// Connection events share one message so they are easy to filter:
//
//	logging.LogConnection(remoteAddr, sessionID, "websocket_upgraded")
//	logging.LogConnection(remoteAddr, sessionID, "websocket_closed")
//
// # Configuration
//
// Initialize logging at startup; an empty level falls back to the
// WSDUPLEX_LOG_LEVEL environment variable and then to a silent nop logger:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
