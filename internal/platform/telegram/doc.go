// ABOUTME: Telegram Bot API adapter: long-poll inbound, HTML outbound.
// ABOUTME: All HTTP goes through the resilient remote client.

// Package telegram adapts the Telegram Bot API to the platform contract.
// Inbound updates arrive through getUpdates long polling with a persistent
// offset cursor; outbound sends use HTML parse mode rendered from markdown.
package telegram
