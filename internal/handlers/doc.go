// Package handlers provides stock session.Handler implementations used by
// the wsduplex server and its tests.
//
// Echo, PingPong and Discard are selected by name through ByName. Deferred
// and Capture wrap another handler: Deferred finishes the frame later from
// its own goroutine, and Capture appends every inbound frame to a JSON Lines
// file for offline analysis.
package handlers
