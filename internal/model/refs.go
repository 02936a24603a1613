// ABOUTME: Identity value types for conversations, messages, and interactions.
// ABOUTME: ThreadRef is the canonical key for one ordered processing lane.

package model

import "fmt"

// ThreadRef identifies one conversation on one platform. Platform is a stable
// lowercase id ("telegram", "discord"). ThreadID disambiguates sub-threads
// (forum topics, Discord threads) and is empty for plain chats. Compared by
// value.
type ThreadRef struct {
	Platform string
	ChatID   string
	ThreadID string
}

// ConversationID returns the dispatcher lane key for this thread. The thread
// component is "-" when no sub-thread exists so the key shape is stable.
func (t ThreadRef) ConversationID() string {
	thread := t.ThreadID
	if thread == "" {
		thread = "-"
	}
	return fmt.Sprintf("%s:%s:%s", t.Platform, t.ChatID, thread)
}

// String implements fmt.Stringer.
func (t ThreadRef) String() string { return t.ConversationID() }

// MessageRef identifies one message within a thread.
type MessageRef struct {
	Thread    ThreadRef
	MessageID string
}

// InteractionRef identifies one button press or command invocation.
// Interaction ids are platform-issued and single-use.
type InteractionRef struct {
	Thread        ThreadRef
	InteractionID string
}

// AttachmentKind classifies inbound media.
type AttachmentKind string

const (
	AttachmentPhoto    AttachmentKind = "photo"
	AttachmentDocument AttachmentKind = "document"
	AttachmentAudio    AttachmentKind = "audio"
	AttachmentVoice    AttachmentKind = "voice"
	AttachmentVideo    AttachmentKind = "video"
	AttachmentImage    AttachmentKind = "image"
)

// Attachment describes one piece of inbound media. FileID is the
// platform-scoped handle used to fetch the content later.
type Attachment struct {
	Kind      AttachmentKind
	FileID    string
	FileName  string
	MIMEType  string
	SizeBytes int64
}
