// ABOUTME: Registry of transports keyed by platform id.
// ABOUTME: Implements outbox delivery by decoding persisted payloads.

package platform

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/beaconlabs/courier/internal/model"
	"github.com/beaconlabs/courier/internal/store"
)

// TextPayload is the persisted form of an outbox text send.
type TextPayload struct {
	Text      string     `json:"text"`
	Keyboard  [][]Button `json:"keyboard,omitempty"`
	ReplyTo   string     `json:"reply_to,omitempty"`
	NoPreview bool       `json:"no_preview,omitempty"`
}

// EditPayload is the persisted form of an outbox edit.
type EditPayload struct {
	MessageID string     `json:"message_id"`
	Text      string     `json:"text"`
	Keyboard  [][]Button `json:"keyboard,omitempty"`
}

// AttachmentPayload is the persisted form of an outbox file send.
type AttachmentPayload struct {
	Kind     model.AttachmentKind `json:"kind"`
	FileName string               `json:"file_name"`
	MIMEType string               `json:"mime_type,omitempty"`
	Content  []byte               `json:"content"`
	Caption  string               `json:"caption,omitempty"`
}

// Registry maps platform ids to their transports and turns persisted outbox
// records back into concrete sends. It satisfies the outbox Sender interface.
type Registry struct {
	transports map[string]Transport
}

// NewRegistry builds a registry over the given transports, keyed by Name().
func NewRegistry(transports ...Transport) *Registry {
	r := &Registry{transports: make(map[string]Transport, len(transports))}
	for _, t := range transports {
		r.transports[t.Name()] = t
	}
	return r
}

// Transport returns the transport for a platform id.
func (r *Registry) Transport(platform string) (Transport, bool) {
	t, ok := r.transports[platform]
	return t, ok
}

// Deliver executes one outbox record against its platform transport.
func (r *Registry) Deliver(ctx context.Context, rec *store.OutboxRecord) error {
	t, ok := r.transports[rec.Platform]
	if !ok {
		return fmt.Errorf("platform: no transport registered for %q", rec.Platform)
	}

	thread := model.ThreadRef{Platform: rec.Platform, ChatID: rec.TargetChannel, ThreadID: rec.ThreadID}

	switch rec.Kind {
	case store.SendKindText:
		var p TextPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return fmt.Errorf("platform: decoding text payload: %w", err)
		}
		_, err := t.SendText(ctx, thread, p.Text, &SendOptions{
			Keyboard:  p.Keyboard,
			ReplyTo:   p.ReplyTo,
			NoPreview: p.NoPreview,
		})
		return err

	case store.SendKindEdit:
		var p EditPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return fmt.Errorf("platform: decoding edit payload: %w", err)
		}
		msg := model.MessageRef{Thread: thread, MessageID: p.MessageID}
		return t.EditText(ctx, msg, p.Text, &SendOptions{Keyboard: p.Keyboard})

	case store.SendKindAttachment:
		adapter, ok := t.(Adapter)
		if !ok {
			return fmt.Errorf("platform: %s: attachments: %w", rec.Platform, ErrUnsupported)
		}
		var p AttachmentPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return fmt.Errorf("platform: decoding attachment payload: %w", err)
		}
		_, err := adapter.SendAttachment(ctx, thread, OutgoingAttachment{
			Kind:     p.Kind,
			FileName: p.FileName,
			MIMEType: p.MIMEType,
			Content:  p.Content,
			Caption:  p.Caption,
		})
		return err

	default:
		return fmt.Errorf("platform: unsupported record kind %q", rec.Kind)
	}
}
