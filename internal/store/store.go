// ABOUTME: Store interface and record types for courier persistence.
// ABOUTME: Outbox records and pending-interaction records survive restarts.

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Send operation kinds carried by outbox records.
const (
	SendKindText       = "text"
	SendKindEdit       = "edit"
	SendKindAttachment = "attachment"
)

// OutboxRecord is one durable outbound send. RecordID is the idempotency key:
// it stays stable across every retry of the same record, so retries are never
// duplicate deliveries.
type OutboxRecord struct {
	RecordID      string
	Platform      string
	TargetChannel string
	ThreadID      string
	Kind          string // text, edit, attachment
	Payload       []byte // kind-specific JSON
	Attempts      int
	LastError     string
	NextAttemptAt *time.Time
	CreatedAt     time.Time
}

// Interaction kinds for pending records.
const (
	InteractionApproval = "approval"
	InteractionQuestion = "question"
)

// PendingInteraction is the persisted half of an in-flight approval or
// question prompt. The in-memory promise lives in the interact package; this
// record is what lets a restarted process recognize and expire stale prompts.
type PendingInteraction struct {
	RequestID    string
	Kind         string // approval, question
	Platform     string
	ChatID       string
	ThreadID     string
	PromptMsgID  string
	Payload      []byte // kind-specific JSON: prompt text, options, etc.
	Selected     []int  // accumulated multi-select option indices
	AwaitingText bool   // next plain-text message resolves the prompt
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Store is the persistence boundary for the integration layer.
type Store interface {
	// PutOutboxRecord inserts or replaces an outbox record.
	PutOutboxRecord(ctx context.Context, rec *OutboxRecord) error

	// GetOutboxRecord fetches a record by id, or ErrNotFound.
	GetOutboxRecord(ctx context.Context, recordID string) (*OutboxRecord, error)

	// DeleteOutboxRecord removes a delivered record. Deleting a missing
	// record is not an error; a racing sweep may have delivered it already.
	DeleteOutboxRecord(ctx context.Context, recordID string) error

	// ListOutboxRecords returns all persisted records, oldest first.
	ListOutboxRecords(ctx context.Context) ([]*OutboxRecord, error)

	// PutPendingInteraction inserts or replaces a pending-interaction record.
	PutPendingInteraction(ctx context.Context, rec *PendingInteraction) error

	// GetPendingInteraction fetches a record by request id, or ErrNotFound.
	GetPendingInteraction(ctx context.Context, requestID string) (*PendingInteraction, error)

	// DeletePendingInteraction removes a resolved or expired record.
	DeletePendingInteraction(ctx context.Context, requestID string) error

	// ListPendingInteractions returns all pending records, oldest first.
	ListPendingInteractions(ctx context.Context) ([]*PendingInteraction, error)

	// Close releases store resources.
	Close() error
}
