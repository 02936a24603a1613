// ABOUTME: Platform adapter contract shared by all chat transports.
// ABOUTME: Telegram and Discord implementations live in subpackages.

// Package platform defines the boundary between the integration layer and a
// concrete chat platform. An Adapter owns both directions: it polls or
// receives inbound updates and normalizes them into model events, and it
// performs outbound sends. Push platforms that receive events through the
// gateway implement the smaller Transport interface instead.
package platform
