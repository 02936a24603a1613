// Package store persists the two kinds of state this layer owns: outbox
// records awaiting confirmed delivery, and pending-interaction records backing
// approval and question prompts. The Store interface is implemented by
// SQLiteStore for production and MemoryStore for tests; both enforce the same
// semantics, including ErrNotFound on missing records.
//
// The outbox table is the single source of truth for retry state. It is read
// and written by both a sender's own retry loop and the periodic sweep; the
// in-memory inflight guard in the outbox package, not the store, arbitrates
// between them.
package store
