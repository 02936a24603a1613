// Package outbox provides at-least-once delivery of outbound sends against an
// unreliable platform API, with retry state persisted so it survives
// restarts. A direct caller's Send retries promptly through a short fixed
// ladder; the background sweep recovers anything left behind — records from a
// crashed process, records whose rate-limit window had not elapsed, records
// enqueued by callers that did not wait. The persisted record is the single
// source of truth for retry state; an in-memory inflight set keeps the sweep
// and a direct caller from attempting the same record at once.
package outbox
