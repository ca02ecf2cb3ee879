// ABOUTME: Package transport carries routing events over WebSocket connections
// ABOUTME: It authenticates the upgrade, runs the read/write pumps, and hands frames to the router

// Package transport adapts gorilla/websocket connections to routing.Channel.
//
// Each connection has one writer goroutine fed by a bounded buffer. The
// router never blocks on a slow client: when the buffer is full the event is
// dropped and the connection is closed so the client can reconnect and
// resynchronize.
package transport
