// ABOUTME: Tests exercising both Store implementations through one suite.
// ABOUTME: Validates roundtrips, ErrNotFound, ordering, and timestamp precision.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// forEachStore runs fn against both implementations.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()

	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLiteStore(":memory:")
		require.NoError(t, err)
		defer s.Close()
		fn(t, s)
	})

	t.Run("memory", func(t *testing.T) {
		s := NewMemoryStore()
		defer s.Close()
		fn(t, s)
	})
}

func TestStore_OutboxRecord_Roundtrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		next := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
		rec := &OutboxRecord{
			RecordID:      "rec-1",
			Platform:      "telegram",
			TargetChannel: "100",
			ThreadID:      "7",
			Kind:          SendKindText,
			Payload:       []byte(`{"text":"hello"}`),
			Attempts:      2,
			LastError:     "server error",
			NextAttemptAt: &next,
			CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		}
		require.NoError(t, s.PutOutboxRecord(ctx, rec))

		got, err := s.GetOutboxRecord(ctx, "rec-1")
		require.NoError(t, err)
		assert.Equal(t, rec.RecordID, got.RecordID)
		assert.Equal(t, rec.Platform, got.Platform)
		assert.Equal(t, rec.TargetChannel, got.TargetChannel)
		assert.Equal(t, rec.ThreadID, got.ThreadID)
		assert.Equal(t, rec.Kind, got.Kind)
		assert.Equal(t, rec.Payload, got.Payload)
		assert.Equal(t, rec.Attempts, got.Attempts)
		assert.Equal(t, rec.LastError, got.LastError)
		require.NotNil(t, got.NextAttemptAt)
		assert.True(t, got.NextAttemptAt.Equal(next))
	})
}

func TestStore_OutboxRecord_NotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		_, err := s.GetOutboxRecord(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_OutboxRecord_DeleteIsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		rec := &OutboxRecord{
			RecordID:  "rec-1",
			Platform:  "telegram",
			Kind:      SendKindText,
			Payload:   []byte(`{}`),
			CreatedAt: time.Now().UTC().Truncate(time.Second),
		}
		require.NoError(t, s.PutOutboxRecord(ctx, rec))
		require.NoError(t, s.DeleteOutboxRecord(ctx, "rec-1"))

		// A racing sweep may delete first; second delete must not fail.
		require.NoError(t, s.DeleteOutboxRecord(ctx, "rec-1"))
		_, err := s.GetOutboxRecord(ctx, "rec-1")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_OutboxRecord_ListOldestFirst(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		for i, id := range []string{"c", "a", "b"} {
			require.NoError(t, s.PutOutboxRecord(ctx, &OutboxRecord{
				RecordID:  id,
				Platform:  "telegram",
				Kind:      SendKindText,
				Payload:   []byte(`{}`),
				CreatedAt: base.Add(time.Duration(i) * time.Second),
			}))
		}

		records, err := s.ListOutboxRecords(ctx)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "c", records[0].RecordID)
		assert.Equal(t, "a", records[1].RecordID)
		assert.Equal(t, "b", records[2].RecordID)
	})
}

func TestStore_OutboxRecord_UpdateRetryState(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		rec := &OutboxRecord{
			RecordID:  "rec-1",
			Platform:  "discord",
			Kind:      SendKindText,
			Payload:   []byte(`{}`),
			CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		}
		require.NoError(t, s.PutOutboxRecord(ctx, rec))

		next := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
		rec.Attempts = 1
		rec.LastError = "rate limited"
		rec.NextAttemptAt = &next
		require.NoError(t, s.PutOutboxRecord(ctx, rec))

		got, err := s.GetOutboxRecord(ctx, "rec-1")
		require.NoError(t, err)
		assert.Equal(t, 1, got.Attempts)
		assert.Equal(t, "rate limited", got.LastError)
		require.NotNil(t, got.NextAttemptAt)
		assert.True(t, got.NextAttemptAt.Equal(next))
	})
}

func TestStore_PendingInteraction_Roundtrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		rec := &PendingInteraction{
			RequestID:    "req-1",
			Kind:         InteractionQuestion,
			Platform:     "telegram",
			ChatID:       "100",
			ThreadID:     "3",
			PromptMsgID:  "555",
			Payload:      []byte(`{"question":"deploy?"}`),
			Selected:     []int{0, 2},
			AwaitingText: true,
			CreatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			ExpiresAt:    time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC),
		}
		require.NoError(t, s.PutPendingInteraction(ctx, rec))

		got, err := s.GetPendingInteraction(ctx, "req-1")
		require.NoError(t, err)
		assert.Equal(t, rec.Kind, got.Kind)
		assert.Equal(t, rec.PromptMsgID, got.PromptMsgID)
		assert.Equal(t, []int{0, 2}, got.Selected)
		assert.True(t, got.AwaitingText)
		assert.True(t, got.ExpiresAt.Equal(rec.ExpiresAt))

		require.NoError(t, s.DeletePendingInteraction(ctx, "req-1"))
		_, err = s.GetPendingInteraction(ctx, "req-1")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_PendingInteraction_List(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		for i := 0; i < 3; i++ {
			require.NoError(t, s.PutPendingInteraction(ctx, &PendingInteraction{
				RequestID: string(rune('a' + i)),
				Kind:      InteractionApproval,
				Platform:  "telegram",
				ChatID:    "100",
				Payload:   []byte(`{}`),
				CreatedAt: base.Add(time.Duration(i) * time.Second),
				ExpiresAt: base.Add(time.Hour),
			}))
		}

		records, err := s.ListPendingInteractions(ctx)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "a", records[0].RequestID)
	})
}
