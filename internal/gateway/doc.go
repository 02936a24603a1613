// Package gateway maintains one persistent, authenticated connection to a
// push platform's websocket gateway and forwards parsed dispatch frames to a
// handler. Reconnection is invisible to the caller: server-directed
// reconnects re-dial immediately, invalid sessions re-identify on the same
// socket after a short pause, and everything else backs off exponentially
// with jitter. The connection handle and sequence counter are owned by the
// connection loop and its heartbeat child; nothing else touches them.
package gateway
