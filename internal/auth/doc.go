// Package auth provides authentication and authorization for salesdesk-gateway.
//
// # Tokens
//
// Customers and sales reps authenticate with HS256 JWTs signed with the
// configured auth.jwt_secret. The user id is read from the "userId" claim,
// falling back to "sub". The gateway only verifies tokens; Generate exists for
// the bootstrap command and tests.
//
// # WebSocket Handshake
//
// HandshakeToken reads the token from the "token" query parameter or the
// Authorization header, and Authenticate resolves it to a stored user. Any
// failure is reported before the connection is upgraded.
//
// # HTTP Middleware
//
//	r.Use(auth.HTTPAuthMiddleware(store, verifier))  // every /api route
//	r.Use(auth.RequireSalesHTTP())                   // /api/sales routes
//
// Handlers read the caller with FromContext.
package auth
