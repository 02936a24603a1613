// ABOUTME: Discord transport: REST sends plus gateway event normalization.
// ABOUTME: Inbound events arrive via the gateway manager, not polling.

// Package discord adapts Discord to the platform Transport contract. Sends go
// through the REST API behind the resilient remote client; inbound traffic is
// pushed over the gateway connection, so this package only normalizes those
// dispatch payloads instead of polling.
package discord
