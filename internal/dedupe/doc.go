// Package dedupe drops customer messages a client resends after a reconnect.
// Clients tag each message with a clientId; the router asks the Window whether
// that id was already seen for the customer within the configured TTL.
package dedupe
