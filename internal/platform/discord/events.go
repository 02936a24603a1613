// ABOUTME: Normalizes gateway dispatch payloads into model events.
// ABOUTME: Snowflake ids double as the per-channel update cursor.

package discord

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/beaconlabs/courier/internal/model"
)

type wireUser struct {
	ID  string `json:"id"`
	Bot bool   `json:"bot"`
}

type wireAttachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type wireMessage struct {
	ID                string           `json:"id"`
	ChannelID         string           `json:"channel_id"`
	Author            *wireUser        `json:"author"`
	Content           string           `json:"content"`
	Attachments       []wireAttachment `json:"attachments"`
	ReferencedMessage *wireMessage     `json:"referenced_message"`
}

type wireMember struct {
	User *wireUser `json:"user"`
}

type wireInteraction struct {
	ID        string       `json:"id"`
	Token     string       `json:"token"`
	Type      int          `json:"type"`
	ChannelID string       `json:"channel_id"`
	User      *wireUser    `json:"user"`
	Member    *wireMember  `json:"member"`
	Message   *wireMessage `json:"message"`
	Data      struct {
		CustomID string `json:"custom_id"`
	} `json:"data"`
}

// interactionTypeComponent is a button press.
const interactionTypeComponent = 3

// NormalizeDispatch maps one gateway dispatch to a model event. ok=false for
// event types this layer has no use for, bot-authored messages included.
func NormalizeDispatch(eventType string, data json.RawMessage) (model.Event, bool) {
	switch eventType {
	case "MESSAGE_CREATE":
		return normalizeMessage(data, false)
	case "MESSAGE_UPDATE":
		return normalizeMessage(data, true)
	case "INTERACTION_CREATE":
		return normalizeInteraction(data)
	default:
		return nil, false
	}
}

func normalizeMessage(data json.RawMessage, edited bool) (model.Event, bool) {
	var m wireMessage
	if err := json.Unmarshal(data, &m); err != nil || m.ID == "" || m.ChannelID == "" {
		return nil, false
	}
	if m.Author != nil && m.Author.Bot {
		return nil, false
	}

	thread := model.ThreadRef{Platform: PlatformName, ChatID: m.ChannelID}
	ev := model.MessageEvent{
		Update:   snowflake(m.ID),
		Thread:   thread,
		Message:  model.MessageRef{Thread: thread, MessageID: m.ID},
		Text:     m.Content,
		IsEdited: edited,
	}
	if m.Author != nil {
		ev.FromUserID = m.Author.ID
	}
	if m.ReferencedMessage != nil {
		ev.ReplyTo = &model.MessageRef{Thread: thread, MessageID: m.ReferencedMessage.ID}
	}
	for _, att := range m.Attachments {
		ev.Attachments = append(ev.Attachments, model.Attachment{
			Kind:      attachmentKind(att.ContentType),
			FileID:    att.ID,
			FileName:  att.Filename,
			MIMEType:  att.ContentType,
			SizeBytes: att.Size,
		})
	}
	return ev, true
}

func normalizeInteraction(data json.RawMessage) (model.Event, bool) {
	var in wireInteraction
	if err := json.Unmarshal(data, &in); err != nil || in.Type != interactionTypeComponent {
		return nil, false
	}
	if in.ID == "" || in.Token == "" || in.ChannelID == "" {
		return nil, false
	}

	thread := model.ThreadRef{Platform: PlatformName, ChatID: in.ChannelID}
	ev := model.InteractionEvent{
		Update: snowflake(in.ID),
		Thread: thread,
		Interaction: model.InteractionRef{
			Thread:        thread,
			InteractionID: joinInteractionID(in.ID, in.Token),
		},
		Payload: in.Data.CustomID,
	}
	switch {
	case in.Member != nil && in.Member.User != nil:
		ev.FromUserID = in.Member.User.ID
	case in.User != nil:
		ev.FromUserID = in.User.ID
	}
	if in.Message != nil {
		ev.Message = &model.MessageRef{Thread: thread, MessageID: in.Message.ID}
	}
	return ev, true
}

// snowflake parses a Discord id for use as the update cursor. Snowflakes are
// 64-bit and strictly increasing per channel.
func snowflake(id string) int64 {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func attachmentKind(contentType string) model.AttachmentKind {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return model.AttachmentImage
	case strings.HasPrefix(contentType, "audio/"):
		return model.AttachmentAudio
	case strings.HasPrefix(contentType, "video/"):
		return model.AttachmentVideo
	default:
		return model.AttachmentDocument
	}
}
