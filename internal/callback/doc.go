// Package callback encodes logical interactive callbacks into compact
// delimited wire strings and back. Platforms impose small payload ceilings on
// button callback data (Telegram allows 64 bytes), so the wire form is a
// positional token string rather than JSON. Unknown or malformed wire payloads
// decode to "none" rather than an error; stale buttons are an expected input,
// not a fault.
package callback
