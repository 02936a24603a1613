// ABOUTME: The two normalized event variants every transport produces.
// ABOUTME: UpdateID is the per-platform dedupe cursor, not a global id.

package model

// EventKind discriminates the Event sum type.
type EventKind string

const (
	KindMessage     EventKind = "message"
	KindInteraction EventKind = "interaction"
)

// Event is the closed sum of MessageEvent and InteractionEvent. UpdateID is
// scoped to one platform+chat and is used for deduplication and cursor
// tracking only.
type Event interface {
	Kind() EventKind
	UpdateID() int64
	ThreadRef() ThreadRef
}

// MessageEvent is a normalized inbound chat message.
type MessageEvent struct {
	Update      int64
	Thread      ThreadRef
	Message     MessageRef
	FromUserID  string
	Text        string
	IsEdited    bool
	ReplyTo     *MessageRef
	Attachments []Attachment
}

func (e MessageEvent) Kind() EventKind      { return KindMessage }
func (e MessageEvent) UpdateID() int64      { return e.Update }
func (e MessageEvent) ThreadRef() ThreadRef { return e.Thread }

// InteractionEvent is a normalized button press or slash-command invocation.
// Payload carries the raw wire callback data; Message, when present, is the
// message the interaction was attached to.
type InteractionEvent struct {
	Update      int64
	Thread      ThreadRef
	Interaction InteractionRef
	FromUserID  string
	Payload     string
	Message     *MessageRef
}

func (e InteractionEvent) Kind() EventKind      { return KindInteraction }
func (e InteractionEvent) UpdateID() int64      { return e.Update }
func (e InteractionEvent) ThreadRef() ThreadRef { return e.Thread }
