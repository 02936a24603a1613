// ABOUTME: Per-conversation serializing dispatcher with urgent-event bypass.
// ABOUTME: One worker goroutine per active lane, created on demand, gone on drain.

package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/beaconlabs/courier/internal/callback"
	"github.com/beaconlabs/courier/internal/model"
)

// Status is the outcome of a Dispatch call.
type Status string

const (
	// StatusDispatched: the handler already ran inline (bypass path).
	StatusDispatched Status = "dispatched"
	// StatusQueued: the event joined its conversation lane.
	StatusQueued Status = "queued"
	// StatusDuplicate: the dedupe predicate rejected the event.
	StatusDuplicate Status = "duplicate"
	// StatusDenied: the allowlist predicate rejected the event.
	StatusDenied Status = "denied"
)

// Handler processes one normalized event. Errors are logged and contained at
// the worker boundary; a handler can never take down its lane.
type Handler func(ctx context.Context, ev model.Event) error

// Context is derived per event for predicates and logging. Never persisted.
type Context struct {
	ConversationID string
	Platform       string
	FromUserID     string
	Kind           model.EventKind
	UpdateID       int64
}

// Result reports where an event went.
type Result struct {
	Status   Status
	Context  Context
	Bypassed bool
}

// Predicate inspects an event before it is routed.
type Predicate func(dc Context, ev model.Event) bool

// Config wires the dispatcher's injected lookup tables and predicates. All
// tables are fixed at construction; nothing is mutated at runtime.
type Config struct {
	// Codec decodes interaction payloads for the structural bypass rule.
	Codec *callback.Codec
	// Dedupe returns false to drop an event as a duplicate. Optional.
	Dedupe Predicate
	// Allow returns false to deny an event. Optional.
	Allow Predicate
	// Bypass marks additional events urgent beyond the structural rule. Optional.
	Bypass Predicate
	// RawPrefixes are legacy wire prefixes treated as urgent without decoding.
	RawPrefixes []string
	Logger      *slog.Logger
}

// lane is one conversation's FIFO queue plus its worker bookkeeping.
type lane struct {
	items []queued
}

type queued struct {
	ev      model.Event
	handler Handler
	dc      Context
}

// Dispatcher serializes handler execution per conversation.
type Dispatcher struct {
	codec       *callback.Codec
	dedupe      Predicate
	allow       Predicate
	bypass      Predicate
	rawPrefixes []string
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	lanes    map[string]*lane
	inflight int
	waiters  []chan struct{}
}

// New creates a dispatcher. Close releases its workers' context.
func New(cfg Config) *Dispatcher {
	if cfg.Codec == nil {
		cfg.Codec = callback.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default().With("component", "dispatch")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		codec:       cfg.Codec,
		dedupe:      cfg.Dedupe,
		allow:       cfg.Allow,
		bypass:      cfg.Bypass,
		rawPrefixes: cfg.RawPrefixes,
		logger:      cfg.Logger,
		ctx:         ctx,
		cancel:      cancel,
		lanes:       make(map[string]*lane),
	}
}

// Dispatch routes one event. Bypass events run the handler inline before
// returning; everything else is appended to its conversation lane.
func (d *Dispatcher) Dispatch(ev model.Event, handler Handler) Result {
	dc := deriveContext(ev)

	if d.dedupe != nil && !d.dedupe(dc, ev) {
		return Result{Status: StatusDuplicate, Context: dc}
	}
	if d.allow != nil && !d.allow(dc, ev) {
		d.logger.Warn("event denied", "conversation", dc.ConversationID, "from", dc.FromUserID)
		return Result{Status: StatusDenied, Context: dc}
	}

	urgent := d.structuralBypass(ev)
	if !urgent && d.bypass != nil {
		urgent = d.bypass(dc, ev)
	}

	if urgent {
		d.mu.Lock()
		d.inflight++
		d.mu.Unlock()
		d.invoke(queued{ev: ev, handler: handler, dc: dc})
		d.finishOne()
		return Result{Status: StatusDispatched, Context: dc, Bypassed: true}
	}

	d.enqueue(queued{ev: ev, handler: handler, dc: dc})
	return Result{Status: StatusQueued, Context: dc}
}

// enqueue appends to the conversation lane, starting a worker if the lane is
// new. The invariant: at most one worker exists per conversation id.
func (d *Dispatcher) enqueue(item queued) {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.lanes[item.dc.ConversationID]
	if ok {
		l.items = append(l.items, item)
		return
	}
	l = &lane{items: []queued{item}}
	d.lanes[item.dc.ConversationID] = l
	go d.work(item.dc.ConversationID, l)
}

// work drains one lane strictly in arrival order, one item at a time, then
// removes the lane and exits.
func (d *Dispatcher) work(conversationID string, l *lane) {
	for {
		d.mu.Lock()
		if len(l.items) == 0 {
			delete(d.lanes, conversationID)
			d.notifyIfIdle()
			d.mu.Unlock()
			return
		}
		item := l.items[0]
		l.items = l.items[1:]
		d.inflight++
		d.mu.Unlock()

		d.invoke(item)
		d.finishOne()
	}
}

// invoke runs one handler, containing errors and panics. Each dequeued item
// is attempted at most once; there is no redelivery.
func (d *Dispatcher) invoke(item queued) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panic",
				"conversation", item.dc.ConversationID,
				"update_id", item.dc.UpdateID,
				"panic", r)
		}
	}()
	if err := item.handler(d.ctx, item.ev); err != nil {
		d.logger.Error("handler failed",
			"conversation", item.dc.ConversationID,
			"update_id", item.dc.UpdateID,
			"err", err)
	}
}

func (d *Dispatcher) finishOne() {
	d.mu.Lock()
	d.inflight--
	d.notifyIfIdle()
	d.mu.Unlock()
}

// notifyIfIdle wakes idle waiters when no lanes and no in-flight handlers
// remain. Must be called with mu held.
func (d *Dispatcher) notifyIfIdle() {
	if len(d.lanes) != 0 || d.inflight != 0 {
		return
	}
	for _, ch := range d.waiters {
		close(ch)
	}
	d.waiters = nil
}

// WaitIdle blocks until the dispatcher has zero lanes and zero in-flight
// handlers, or ctx is done. Used to sequence shutdown behind queued work.
func (d *Dispatcher) WaitIdle(ctx context.Context) error {
	d.mu.Lock()
	if len(d.lanes) == 0 && d.inflight == 0 {
		d.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	d.waiters = append(d.waiters, ch)
	d.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels the context handlers run under. Queued items still drain, but
// handlers are expected to abandon cleanly once they observe cancellation.
func (d *Dispatcher) Close() {
	d.cancel()
}

// deriveContext builds the per-event dispatch context.
func deriveContext(ev model.Event) Context {
	dc := Context{
		ConversationID: ev.ThreadRef().ConversationID(),
		Platform:       ev.ThreadRef().Platform,
		Kind:           ev.Kind(),
		UpdateID:       ev.UpdateID(),
	}
	switch e := ev.(type) {
	case model.MessageEvent:
		dc.FromUserID = e.FromUserID
	case model.InteractionEvent:
		dc.FromUserID = e.FromUserID
	}
	return dc
}
