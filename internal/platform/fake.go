// ABOUTME: In-memory fake adapter for tests across packages.
// ABOUTME: Records every outbound call and serves queued inbound events.

package platform

import (
	"context"
	"strconv"
	"sync"

	"github.com/beaconlabs/courier/internal/model"
)

// SentText records one SendText call on the fake.
type SentText struct {
	Thread model.ThreadRef
	Text   string
	Opts   SendOptions
	Msg    model.MessageRef
}

// SentEdit records one EditText call on the fake.
type SentEdit struct {
	Msg  model.MessageRef
	Text string
	Opts SendOptions
}

// SentAck records one AckInteraction call on the fake.
type SentAck struct {
	Ref    model.InteractionRef
	Notice string
}

// Fake is an in-memory Adapter for tests. Message ids are sequential
// integers; inbound events come from an explicit queue.
type Fake struct {
	name string

	mu          sync.Mutex
	nextMsgID   int
	queued      []model.Event
	failNext    []error
	Texts       []SentText
	Edits       []SentEdit
	Acks        []SentAck
	Deleted     []model.MessageRef
	Attachments []OutgoingAttachment
}

// NewFake creates a fake adapter reporting the given platform name.
func NewFake(name string) *Fake {
	return &Fake{name: name}
}

func (f *Fake) Name() string { return f.name }

// QueueEvents appends events for the next PollEvents calls to return.
func (f *Fake) QueueEvents(events ...model.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued = append(f.queued, events...)
}

// FailNext makes the next n outbound calls return err, in order.
func (f *Fake) FailNext(err error, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.failNext = append(f.failNext, err)
	}
}

func (f *Fake) takeFailure() error {
	if len(f.failNext) == 0 {
		return nil
	}
	err := f.failNext[0]
	f.failNext = f.failNext[1:]
	return err
}

func (f *Fake) PollEvents(ctx context.Context) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	events := f.queued
	f.queued = nil
	return events, nil
}

func (f *Fake) SendText(ctx context.Context, thread model.ThreadRef, text string, opts *SendOptions) (model.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return model.MessageRef{}, err
	}
	f.nextMsgID++
	msg := model.MessageRef{Thread: thread, MessageID: strconv.Itoa(f.nextMsgID)}
	var o SendOptions
	if opts != nil {
		o = *opts
	}
	f.Texts = append(f.Texts, SentText{Thread: thread, Text: text, Opts: o, Msg: msg})
	return msg, nil
}

func (f *Fake) EditText(ctx context.Context, msg model.MessageRef, text string, opts *SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return err
	}
	var o SendOptions
	if opts != nil {
		o = *opts
	}
	f.Edits = append(f.Edits, SentEdit{Msg: msg, Text: text, Opts: o})
	return nil
}

func (f *Fake) AckInteraction(ctx context.Context, ref model.InteractionRef, notice string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return err
	}
	f.Acks = append(f.Acks, SentAck{Ref: ref, Notice: notice})
	return nil
}

func (f *Fake) DeleteMessage(ctx context.Context, msg model.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return err
	}
	f.Deleted = append(f.Deleted, msg)
	return nil
}

func (f *Fake) SendAttachment(ctx context.Context, thread model.ThreadRef, att OutgoingAttachment) (model.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return model.MessageRef{}, err
	}
	f.nextMsgID++
	msg := model.MessageRef{Thread: thread, MessageID: strconv.Itoa(f.nextMsgID)}
	f.Attachments = append(f.Attachments, att)
	return msg, nil
}

// LastText returns the most recent SendText record, for test assertions.
func (f *Fake) LastText() (SentText, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Texts) == 0 {
		return SentText{}, false
	}
	return f.Texts[len(f.Texts)-1], true
}

// LastEdit returns the most recent EditText record, for test assertions.
func (f *Fake) LastEdit() (SentEdit, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Edits) == 0 {
		return SentEdit{}, false
	}
	return f.Edits[len(f.Edits)-1], true
}
