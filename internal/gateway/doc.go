// ABOUTME: Package gateway assembles the salesdesk server from its parts
// ABOUTME: HTTP API, WebSocket endpoint, gRPC health, and optional tailnet listeners

// Package gateway wires the conversation router to its transports.
//
// # Servers
//
// The HTTP server (chi) serves:
//
//   - /health and /health/ready for probes
//   - /ws, the authenticated WebSocket endpoint handled by package transport
//   - /api/sales/*, the sales dashboard API (role sales)
//   - /api/chat/*, helpers for any authenticated user
//
// When server.grpc_addr is set a gRPC server exposes grpc.health.v1 with the
// service name "salesdesk.Routing".
//
// # Tailscale
//
// With tailscale.enabled the gateway joins the tailnet through tsnet and
// listens there instead of on server.http_addr. Funnel exposes the HTTP
// server publicly on :443.
//
// # Collaborators
//
// New builds everything from config: the SQLite store, the assistant
// responder, the AMQP event publisher, the Redis roster mirror, and the rate
// limiter. Tests substitute the store, publisher, and responder with options.
package gateway
