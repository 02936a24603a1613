// ABOUTME: Adapter and Transport interfaces plus outbound send option types.
// ABOUTME: Everything here is platform-neutral; adapters translate.

package platform

import (
	"context"
	"errors"

	"github.com/beaconlabs/courier/internal/model"
)

// ErrUnsupported is returned by a transport asked for an operation the
// underlying platform cannot perform.
var ErrUnsupported = errors.New("platform: operation not supported")

// Button is one inline key on a prompt message. Data is an encoded callback
// wire payload and comes back verbatim in InteractionEvent.Payload.
type Button struct {
	Label string
	Data  string
}

// SendOptions carries the optional parts of an outbound text send.
type SendOptions struct {
	// Keyboard renders as rows of inline buttons attached to the message.
	Keyboard [][]Button
	// ReplyTo quotes an earlier message in the same thread.
	ReplyTo string
	// NoPreview suppresses link previews where the platform supports it.
	NoPreview bool
}

// OutgoingAttachment is one outbound file send.
type OutgoingAttachment struct {
	Kind     model.AttachmentKind
	FileName string
	MIMEType string
	Content  []byte
	Caption  string
}

// Transport is the outbound-only contract, sufficient for push platforms
// whose inbound events arrive through the gateway connection manager.
type Transport interface {
	// Name returns the stable lowercase platform id ("telegram", "discord").
	Name() string

	// SendText delivers a message to a thread and returns its reference.
	SendText(ctx context.Context, thread model.ThreadRef, text string, opts *SendOptions) (model.MessageRef, error)

	// EditText rewrites an existing message, replacing text and keyboard.
	EditText(ctx context.Context, msg model.MessageRef, text string, opts *SendOptions) error

	// AckInteraction acknowledges a button press. A non-empty notice shows
	// the user a short transient note where the platform supports one.
	AckInteraction(ctx context.Context, ref model.InteractionRef, notice string) error
}

// Adapter is the full platform contract for pull platforms.
type Adapter interface {
	Transport

	// PollEvents performs one long-poll cycle and returns normalized
	// events, advancing the adapter's internal cursor so the same update
	// is never returned twice.
	PollEvents(ctx context.Context) ([]model.Event, error)

	// DeleteMessage removes a message. Deleting an already-gone message is
	// not an error.
	DeleteMessage(ctx context.Context, msg model.MessageRef) error

	// SendAttachment delivers one file to a thread.
	SendAttachment(ctx context.Context, thread model.ThreadRef, att OutgoingAttachment) (model.MessageRef, error)
}
