// Package remote is the single outbound HTTP pipeline for platform API calls.
// Every request — JSON calls and multipart uploads alike — passes through a
// per-scope circuit breaker and a retry policy: 429 honors the server's
// retry-after hint, 5xx and transport errors back off exponentially with
// jitter, and 4xx auth or request errors surface immediately. Callers receive
// a classified *Error so the outbox and gateway can tell transient from
// permanent without parsing strings.
package remote
