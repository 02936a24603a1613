// ABOUTME: Tests for the event dedupe cache.
// ABOUTME: Validates TTL expiry, size-bound eviction, key scoping, and concurrency.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/beaconlabs/courier/internal/model"
)

func TestCache_Seen_NewKey(t *testing.T) {
	c := New(5*time.Minute, 100)

	assert.False(t, c.Seen("k1"))
	assert.True(t, c.Seen("k1"))
}

func TestCache_Seen_Expires(t *testing.T) {
	c := New(time.Minute, 100)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	assert.False(t, c.Seen("k1"))

	clock = clock.Add(30 * time.Second)
	assert.True(t, c.Seen("k1"))

	// Past the TTL the key counts as new again.
	clock = clock.Add(2 * time.Minute)
	assert.False(t, c.Seen("k1"))
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	c := New(time.Hour, 3)

	for i := 0; i < 3; i++ {
		c.Seen(fmt.Sprintf("k%d", i))
	}
	assert.Equal(t, 3, c.Len())

	// Inserting a fourth key evicts k0.
	c.Seen("k3")
	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Seen("k0"))
}

func TestCache_PrunesExpiredOnInsert(t *testing.T) {
	c := New(time.Minute, 100)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	c.Seen("old1")
	c.Seen("old2")
	clock = clock.Add(2 * time.Minute)
	c.Seen("fresh")
	assert.Equal(t, 1, c.Len())
}

func TestEventKey_ScopedPerConversation(t *testing.T) {
	a := model.MessageEvent{Update: 7, Thread: model.ThreadRef{Platform: "telegram", ChatID: "100"}}
	b := model.MessageEvent{Update: 7, Thread: model.ThreadRef{Platform: "telegram", ChatID: "200"}}

	// Same update id in different chats must not collide.
	assert.NotEqual(t, EventKey(a), EventKey(b))
	assert.Equal(t, "telegram:100:-#7", EventKey(a))
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New(time.Minute, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Seen(fmt.Sprintf("w%d-k%d", n, j))
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1000, c.Len())
}
