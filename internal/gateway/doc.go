// Package gateway maintains the control connection to the platform's event
// gateway.
//
// A Session dials the websocket, waits for Hello, sends Identify and then runs
// three loops: a receive loop that decodes envelopes, a heartbeat loop that
// keeps the connection alive, and a dispatch worker that feeds decoded events
// to an events.Dispatcher one at a time, in the order they were received.
//
// Sessions are never resumed. When the connection drops, a heartbeat goes
// unacknowledged, or the server asks for it, the session reconnects and
// identifies from scratch: the sequence number and the local identity are
// reset, and any events dispatched while disconnected are lost.
package gateway
