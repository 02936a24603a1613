// ABOUTME: Durable retry-with-backoff delivery manager for outbound sends.
// ABOUTME: Direct sends walk a fixed immediate ladder; a periodic sweep recovers the rest.

package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/beaconlabs/courier/internal/remote"
	"github.com/beaconlabs/courier/internal/store"
)

// ErrExhausted means a record reached its attempt limit. The record is kept
// with its last error for inspection; it is never deleted automatically.
var ErrExhausted = errors.New("outbox: delivery attempts exhausted")

// ErrPending means the immediate retries failed but the record remains
// scheduled; the sweep will keep trying until the attempt limit.
var ErrPending = errors.New("outbox: delivery pending, sweep will retry")

// ErrUnsupportedKind means the record's kind has no sender operation. This is
// permanent and the record never enters the retry path.
var ErrUnsupportedKind = errors.New("outbox: unsupported send kind")

// errInflight is returned internally when another goroutine holds the record.
var errInflight = errors.New("outbox: record attempt already in flight")

// Sender performs the physical delivery of one record. Platform adapters
// implement this on top of the remote client.
type Sender interface {
	Deliver(ctx context.Context, rec *store.OutboxRecord) error
}

// Config bounds the manager's retry behavior.
type Config struct {
	MaxAttempts   int
	SweepInterval time.Duration
	// Ladder is the immediate-retry schedule a direct Send walks before
	// handing the record to the sweep.
	Ladder []time.Duration
}

// DefaultConfig matches the platform-facing defaults: five total attempts,
// a five-second sweep, and a 0s/1s/2s immediate ladder.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   5,
		SweepInterval: 5 * time.Second,
		Ladder:        []time.Duration{0, time.Second, 2 * time.Second},
	}
}

// Manager coordinates direct sends and the background sweep over one store.
type Manager struct {
	store  store.Store
	sender Sender
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}

	// Injection points for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewManager creates a delivery manager.
func NewManager(st store.Store, sender Sender, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default().With("component", "outbox")
	}
	m := &Manager{
		store:    st,
		sender:   sender,
		cfg:      cfg,
		logger:   logger,
		inflight: make(map[string]struct{}),
		now:      time.Now,
	}
	m.sleep = func(ctx context.Context, d time.Duration) error {
		if d <= 0 {
			return ctx.Err()
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
	return m
}

// Send persists the record, then retries delivery through the immediate
// ladder. On success the record is deleted and Send returns nil. If the
// ladder runs out the record stays persisted and ErrPending is returned; the
// sweep finishes the job. ErrExhausted means the attempt limit was reached.
func (m *Manager) Send(ctx context.Context, rec *store.OutboxRecord) error {
	switch rec.Kind {
	case store.SendKindText, store.SendKindEdit, store.SendKindAttachment:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedKind, rec.Kind)
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now().UTC()
	}
	// Insert only when new: re-sending an id must not reset persisted retry
	// state, or a crash-looping caller could retry forever.
	if _, err := m.store.GetOutboxRecord(ctx, rec.RecordID); errors.Is(err, store.ErrNotFound) {
		if err := m.store.PutOutboxRecord(ctx, rec); err != nil {
			return fmt.Errorf("persisting outbox record: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("checking outbox record: %w", err)
	}

	for {
		// The persisted record is authoritative; reload it each pass so a
		// racing sweep's progress is visible here.
		current, err := m.store.GetOutboxRecord(ctx, rec.RecordID)
		if errors.Is(err, store.ErrNotFound) {
			return nil // delivered by someone else
		}
		if err != nil {
			return fmt.Errorf("reloading outbox record: %w", err)
		}
		if current.Attempts >= m.cfg.MaxAttempts {
			return fmt.Errorf("%w: %s after %d attempts: %s",
				ErrExhausted, current.RecordID, current.Attempts, current.LastError)
		}

		if current.NextAttemptAt != nil {
			if wait := current.NextAttemptAt.Sub(m.now()); wait > 0 {
				if current.Attempts >= len(m.cfg.Ladder) {
					// Past the immediate ladder: leave it to the sweep.
					return ErrPending
				}
				if err := m.sleep(ctx, wait); err != nil {
					return err
				}
			}
		}

		delivered, err := m.attempt(ctx, current)
		if delivered {
			return nil
		}
		if errors.Is(err, errInflight) {
			// The sweep holds this record; yield briefly and re-check.
			if serr := m.sleep(ctx, 50*time.Millisecond); serr != nil {
				return serr
			}
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Failed attempt: state is persisted, loop decides whether the
		// ladder still covers the next one.
	}
}

// Run executes the periodic sweep until ctx is done. Each cycle lists all
// persisted records and attempts any whose schedule has elapsed, recovering
// records left by other callers or by a crash.
func (m *Manager) Run(ctx context.Context) {
	m.logger.Info("outbox sweep started", "interval", m.cfg.SweepInterval)
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("outbox sweep stopped")
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep runs one recovery cycle.
func (m *Manager) Sweep(ctx context.Context) {
	records, err := m.store.ListOutboxRecords(ctx)
	if err != nil {
		m.logger.Error("sweep: listing records", "err", err)
		return
	}

	now := m.now()
	for _, rec := range records {
		if rec.Attempts >= m.cfg.MaxAttempts {
			continue // exhausted, kept for inspection
		}
		if rec.NextAttemptAt != nil && rec.NextAttemptAt.After(now) {
			continue // not due yet
		}
		if _, err := m.attempt(ctx, rec); err != nil && !errors.Is(err, errInflight) {
			m.logger.Warn("sweep: delivery failed",
				"record_id", rec.RecordID, "attempts", rec.Attempts+1, "err", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// attempt performs one guarded delivery try and persists the outcome.
// Returns delivered=true when the record is gone (sent here or elsewhere).
func (m *Manager) attempt(ctx context.Context, rec *store.OutboxRecord) (bool, error) {
	if !m.acquire(rec.RecordID) {
		return false, errInflight
	}
	defer m.release(rec.RecordID)

	// Re-read under the guard; a concurrent attempt may have finished
	// between our reload and acquiring the slot.
	current, err := m.store.GetOutboxRecord(ctx, rec.RecordID)
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if current.Attempts >= m.cfg.MaxAttempts {
		return false, ErrExhausted
	}

	sendErr := m.sender.Deliver(ctx, current)
	if sendErr == nil {
		if err := m.store.DeleteOutboxRecord(ctx, current.RecordID); err != nil {
			return true, err
		}
		m.logger.Debug("outbox delivered",
			"record_id", current.RecordID, "attempts", current.Attempts+1)
		return true, nil
	}

	current.Attempts++
	current.LastError = sendErr.Error()
	next := m.now().Add(m.delayAfter(current.Attempts, sendErr)).UTC()
	current.NextAttemptAt = &next
	if err := m.store.PutOutboxRecord(ctx, current); err != nil {
		return false, fmt.Errorf("persisting retry state: %w", err)
	}
	return false, sendErr
}

// delayAfter resolves the wait before the next attempt: a rate-limit hint on
// the error wins, otherwise the fixed ladder (its last rung repeats).
func (m *Manager) delayAfter(attempts int, err error) time.Duration {
	if hint, ok := remote.RetryAfterHint(err); ok {
		return hint
	}
	if len(m.cfg.Ladder) == 0 {
		return time.Second
	}
	// attempts is already incremented: ladder[0] is the wait before attempt 2.
	idx := attempts - 1
	if idx >= len(m.cfg.Ladder) {
		idx = len(m.cfg.Ladder) - 1
	}
	return m.cfg.Ladder[idx]
}

func (m *Manager) acquire(recordID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[recordID]; busy {
		return false
	}
	m.inflight[recordID] = struct{}{}
	return true
}

func (m *Manager) release(recordID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, recordID)
}
