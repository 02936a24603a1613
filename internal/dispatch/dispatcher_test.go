// ABOUTME: Tests for per-conversation ordering, bypass, and idle signaling.
// ABOUTME: Instrumented handlers observe concurrency and execution order.

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconlabs/courier/internal/callback"
	"github.com/beaconlabs/courier/internal/dedupe"
	"github.com/beaconlabs/courier/internal/model"
)

func msgEvent(chatID string, update int64, text string) model.MessageEvent {
	return model.MessageEvent{
		Update: update,
		Thread: model.ThreadRef{Platform: "telegram", ChatID: chatID},
		Text:   text,
	}
}

// recorder captures handler invocations in order.
type recorder struct {
	mu      sync.Mutex
	calls   []string
	running int
	maxRun  int
}

func (r *recorder) handler(name string, delay time.Duration) Handler {
	return func(ctx context.Context, ev model.Event) error {
		r.mu.Lock()
		r.running++
		if r.running > r.maxRun {
			r.maxRun = r.running
		}
		r.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}

		r.mu.Lock()
		r.calls = append(r.calls, name)
		r.running--
		r.mu.Unlock()
		return nil
	}
}

func (r *recorder) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestDispatcher_SameConversation_StrictOrder(t *testing.T) {
	d := New(Config{})
	defer d.Close()
	rec := &recorder{}

	// H1 is slow; H2 must still wait for it.
	r1 := d.Dispatch(msgEvent("100", 1, "first"), rec.handler("H1", 30*time.Millisecond))
	r2 := d.Dispatch(msgEvent("100", 2, "second"), rec.handler("H2", 0))
	assert.Equal(t, StatusQueued, r1.Status)
	assert.Equal(t, StatusQueued, r2.Status)
	assert.Equal(t, "telegram:100:-", r1.Context.ConversationID)

	require.NoError(t, d.WaitIdle(context.Background()))
	assert.Equal(t, []string{"H1", "H2"}, rec.order())
	assert.Equal(t, 1, rec.maxRun, "handlers for one conversation must never overlap")
}

func TestDispatcher_ManyEvents_ArrivalOrder(t *testing.T) {
	d := New(Config{})
	defer d.Close()
	rec := &recorder{}

	var want []string
	for i := 0; i < 20; i++ {
		name := fmt.Sprintf("H%d", i)
		want = append(want, name)
		d.Dispatch(msgEvent("100", int64(i), "work"), rec.handler(name, time.Millisecond))
	}

	require.NoError(t, d.WaitIdle(context.Background()))
	assert.Equal(t, want, rec.order())
}

func TestDispatcher_DifferentConversations_RunConcurrently(t *testing.T) {
	d := New(Config{})
	defer d.Close()
	rec := &recorder{}

	for i := 0; i < 4; i++ {
		d.Dispatch(msgEvent(fmt.Sprintf("%d", i), 1, "work"), rec.handler(fmt.Sprintf("H%d", i), 50*time.Millisecond))
	}

	require.NoError(t, d.WaitIdle(context.Background()))
	assert.Greater(t, rec.maxRun, 1, "independent conversations should overlap")
}

func TestDispatcher_StopWord_Bypasses(t *testing.T) {
	d := New(Config{})
	defer d.Close()
	rec := &recorder{}

	started := make(chan struct{})
	release := make(chan struct{})
	blocker := func(ctx context.Context, ev model.Event) error {
		close(started)
		<-release
		rec.mu.Lock()
		rec.calls = append(rec.calls, "slow")
		rec.mu.Unlock()
		return nil
	}

	d.Dispatch(msgEvent("100", 1, "long job"), blocker)
	<-started
	d.Dispatch(msgEvent("100", 2, "queued behind"), rec.handler("queued", 0))

	// " STOP " matches the stop-token set after trim + case fold and must run
	// inline even though the lane is busy.
	res := d.Dispatch(msgEvent("100", 3, "  STOP "), rec.handler("stop", 0))
	assert.Equal(t, StatusDispatched, res.Status)
	assert.True(t, res.Bypassed)
	assert.Equal(t, []string{"stop"}, rec.order())

	close(release)
	require.NoError(t, d.WaitIdle(context.Background()))
	assert.Equal(t, []string{"stop", "slow", "queued"}, rec.order())
}

func TestDispatcher_UrgentCallback_Bypasses(t *testing.T) {
	c := callback.New()
	d := New(Config{Codec: c})
	defer d.Close()
	rec := &recorder{}

	wire, err := c.Encode(callback.Callback{
		ID:     callback.IDInterrupt,
		Fields: map[string]string{callback.FieldRequestID: "r1"},
	})
	require.NoError(t, err)

	ev := model.InteractionEvent{
		Update:      1,
		Thread:      model.ThreadRef{Platform: "telegram", ChatID: "100"},
		Interaction: model.InteractionRef{InteractionID: "cb1"},
		Payload:     wire,
	}
	res := d.Dispatch(ev, rec.handler("interrupt", 0))
	assert.Equal(t, StatusDispatched, res.Status)
	assert.True(t, res.Bypassed)
}

func TestDispatcher_UnknownCallback_Queues(t *testing.T) {
	d := New(Config{})
	defer d.Close()
	rec := &recorder{}

	ev := model.InteractionEvent{
		Update:  1,
		Thread:  model.ThreadRef{Platform: "telegram", ChatID: "100"},
		Payload: "some_ordinary_button",
	}
	res := d.Dispatch(ev, rec.handler("h", 0))
	assert.Equal(t, StatusQueued, res.Status)
	assert.False(t, res.Bypassed)
	require.NoError(t, d.WaitIdle(context.Background()))
}

func TestDispatcher_RawPrefix_Bypasses(t *testing.T) {
	d := New(Config{RawPrefixes: []string{"legacy_stop:"}})
	defer d.Close()
	rec := &recorder{}

	ev := model.InteractionEvent{
		Update:  1,
		Thread:  model.ThreadRef{Platform: "telegram", ChatID: "100"},
		Payload: "legacy_stop:42",
	}
	res := d.Dispatch(ev, rec.handler("h", 0))
	assert.Equal(t, StatusDispatched, res.Status)
}

func TestDispatcher_DedupePredicate(t *testing.T) {
	cache := dedupe.New(time.Minute, 100)
	d := New(Config{
		Dedupe: func(dc Context, ev model.Event) bool {
			return !cache.SeenEvent(ev)
		},
	})
	defer d.Close()
	rec := &recorder{}

	first := d.Dispatch(msgEvent("100", 7, "hi"), rec.handler("h1", 0))
	second := d.Dispatch(msgEvent("100", 7, "hi"), rec.handler("h2", 0))
	assert.Equal(t, StatusQueued, first.Status)
	assert.Equal(t, StatusDuplicate, second.Status)

	require.NoError(t, d.WaitIdle(context.Background()))
	assert.Equal(t, []string{"h1"}, rec.order())
}

func TestDispatcher_AllowPredicate_Denies(t *testing.T) {
	d := New(Config{
		Allow: func(dc Context, ev model.Event) bool {
			return dc.FromUserID == "alice"
		},
	})
	defer d.Close()
	rec := &recorder{}

	ev := msgEvent("100", 1, "hi")
	ev.FromUserID = "mallory"
	res := d.Dispatch(ev, rec.handler("h", 0))
	assert.Equal(t, StatusDenied, res.Status)

	require.NoError(t, d.WaitIdle(context.Background()))
	assert.Empty(t, rec.order())
}

func TestDispatcher_HandlerFailure_DoesNotStopLane(t *testing.T) {
	d := New(Config{})
	defer d.Close()
	rec := &recorder{}

	d.Dispatch(msgEvent("100", 1, "a"), func(ctx context.Context, ev model.Event) error {
		return errors.New("boom")
	})
	d.Dispatch(msgEvent("100", 2, "b"), func(ctx context.Context, ev model.Event) error {
		panic("much worse")
	})
	d.Dispatch(msgEvent("100", 3, "c"), rec.handler("survivor", 0))

	require.NoError(t, d.WaitIdle(context.Background()))
	assert.Equal(t, []string{"survivor"}, rec.order())
}

func TestDispatcher_WaitIdle_Timeout(t *testing.T) {
	d := New(Config{})
	defer d.Close()

	release := make(chan struct{})
	d.Dispatch(msgEvent("100", 1, "x"), func(ctx context.Context, ev model.Event) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, d.WaitIdle(ctx))

	close(release)
	require.NoError(t, d.WaitIdle(context.Background()))
}

func TestDispatcher_WorkerGoneAfterDrain(t *testing.T) {
	d := New(Config{})
	defer d.Close()
	rec := &recorder{}

	d.Dispatch(msgEvent("100", 1, "x"), rec.handler("h1", 0))
	require.NoError(t, d.WaitIdle(context.Background()))

	d.mu.Lock()
	lanes := len(d.lanes)
	d.mu.Unlock()
	assert.Zero(t, lanes)

	// A new event for the same conversation starts a fresh worker.
	d.Dispatch(msgEvent("100", 2, "y"), rec.handler("h2", 0))
	require.NoError(t, d.WaitIdle(context.Background()))
	assert.Equal(t, []string{"h1", "h2"}, rec.order())
}
