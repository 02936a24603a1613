// ABOUTME: Converts raw Bot API updates into normalized model events.
// ABOUTME: Unsupported update shapes normalize to nothing, never to errors.

package telegram

import (
	"strconv"

	"github.com/beaconlabs/courier/internal/model"
)

// normalizeUpdate maps one update to a model event. ok=false means the update
// carries nothing this layer routes (member changes, polls, and so on).
func normalizeUpdate(u apiUpdate) (model.Event, bool) {
	switch {
	case u.Message != nil:
		return messageEvent(u.UpdateID, u.Message, false), true
	case u.EditedMessage != nil:
		return messageEvent(u.UpdateID, u.EditedMessage, true), true
	case u.CallbackQuery != nil:
		return callbackEvent(u.UpdateID, u.CallbackQuery)
	default:
		return nil, false
	}
}

func threadRef(m *apiMessage) model.ThreadRef {
	ref := model.ThreadRef{
		Platform: PlatformName,
		ChatID:   strconv.FormatInt(m.Chat.ID, 10),
	}
	if m.MessageThreadID != 0 {
		ref.ThreadID = strconv.FormatInt(m.MessageThreadID, 10)
	}
	return ref
}

func messageEvent(updateID int64, m *apiMessage, edited bool) model.MessageEvent {
	thread := threadRef(m)
	ev := model.MessageEvent{
		Update:   updateID,
		Thread:   thread,
		Message:  model.MessageRef{Thread: thread, MessageID: strconv.FormatInt(m.MessageID, 10)},
		Text:     m.Text,
		IsEdited: edited,
	}
	if ev.Text == "" {
		ev.Text = m.Caption
	}
	if m.From != nil {
		ev.FromUserID = strconv.FormatInt(m.From.ID, 10)
	}
	if m.ReplyToMessage != nil {
		ev.ReplyTo = &model.MessageRef{
			Thread:    thread,
			MessageID: strconv.FormatInt(m.ReplyToMessage.MessageID, 10),
		}
	}
	ev.Attachments = attachments(m)
	return ev
}

func attachments(m *apiMessage) []model.Attachment {
	var atts []model.Attachment
	if len(m.Photo) > 0 {
		// Telegram sends every thumbnail size; keep only the largest.
		best := m.Photo[0]
		for _, p := range m.Photo[1:] {
			if p.Width*p.Height > best.Width*best.Height {
				best = p
			}
		}
		atts = append(atts, model.Attachment{
			Kind:      model.AttachmentPhoto,
			FileID:    best.FileID,
			SizeBytes: best.FileSize,
		})
	}
	for kind, doc := range map[model.AttachmentKind]*apiDocument{
		model.AttachmentDocument: m.Document,
		model.AttachmentAudio:    m.Audio,
		model.AttachmentVoice:    m.Voice,
		model.AttachmentVideo:    m.Video,
	} {
		if doc == nil {
			continue
		}
		atts = append(atts, model.Attachment{
			Kind:      kind,
			FileID:    doc.FileID,
			FileName:  doc.FileName,
			MIMEType:  doc.MIMEType,
			SizeBytes: doc.FileSize,
		})
	}
	return atts
}

func callbackEvent(updateID int64, cq *apiCallbackQuery) (model.Event, bool) {
	if cq.Message == nil {
		// No originating message means no routable conversation.
		return nil, false
	}
	thread := threadRef(cq.Message)
	ev := model.InteractionEvent{
		Update:      updateID,
		Thread:      thread,
		Interaction: model.InteractionRef{Thread: thread, InteractionID: cq.ID},
		Payload:     cq.Data,
		Message: &model.MessageRef{
			Thread:    thread,
			MessageID: strconv.FormatInt(cq.Message.MessageID, 10),
		},
	}
	if cq.From != nil {
		ev.FromUserID = strconv.FormatInt(cq.From.ID, 10)
	}
	return ev, true
}
