// ABOUTME: Tests for outbox record delivery through the transport registry.

package platform

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconlabs/courier/internal/model"
	"github.com/beaconlabs/courier/internal/store"
)

func TestRegistry_Deliver_Text(t *testing.T) {
	fake := NewFake("telegram")
	reg := NewRegistry(fake)

	payload, err := json.Marshal(TextPayload{
		Text:     "hello",
		Keyboard: [][]Button{{{Label: "OK", Data: "a:r1:accept"}}},
	})
	require.NoError(t, err)

	err = reg.Deliver(context.Background(), &store.OutboxRecord{
		RecordID:      "r1",
		Platform:      "telegram",
		TargetChannel: "100",
		Kind:          store.SendKindText,
		Payload:       payload,
	})
	require.NoError(t, err)

	sent, ok := fake.LastText()
	require.True(t, ok)
	assert.Equal(t, "hello", sent.Text)
	assert.Equal(t, "telegram:100:-", sent.Thread.ConversationID())
	require.Len(t, sent.Opts.Keyboard, 1)
	assert.Equal(t, "OK", sent.Opts.Keyboard[0][0].Label)
}

func TestRegistry_Deliver_Edit(t *testing.T) {
	fake := NewFake("telegram")
	reg := NewRegistry(fake)

	payload, err := json.Marshal(EditPayload{MessageID: "42", Text: "updated"})
	require.NoError(t, err)

	err = reg.Deliver(context.Background(), &store.OutboxRecord{
		RecordID:      "r2",
		Platform:      "telegram",
		TargetChannel: "100",
		ThreadID:      "7",
		Kind:          store.SendKindEdit,
		Payload:       payload,
	})
	require.NoError(t, err)

	edit, ok := fake.LastEdit()
	require.True(t, ok)
	assert.Equal(t, "42", edit.Msg.MessageID)
	assert.Equal(t, "telegram:100:7", edit.Msg.Thread.ConversationID())
	assert.Equal(t, "updated", edit.Text)
}

func TestRegistry_Deliver_Attachment(t *testing.T) {
	fake := NewFake("telegram")
	reg := NewRegistry(fake)

	payload, err := json.Marshal(AttachmentPayload{
		Kind:     model.AttachmentDocument,
		FileName: "report.txt",
		Content:  []byte("data"),
	})
	require.NoError(t, err)

	err = reg.Deliver(context.Background(), &store.OutboxRecord{
		RecordID:      "r3",
		Platform:      "telegram",
		TargetChannel: "100",
		Kind:          store.SendKindAttachment,
		Payload:       payload,
	})
	require.NoError(t, err)
	require.Len(t, fake.Attachments, 1)
	assert.Equal(t, "report.txt", fake.Attachments[0].FileName)
}

func TestRegistry_Deliver_UnknownPlatform(t *testing.T) {
	reg := NewRegistry(NewFake("telegram"))
	err := reg.Deliver(context.Background(), &store.OutboxRecord{
		RecordID: "r4",
		Platform: "matrix",
		Kind:     store.SendKindText,
		Payload:  []byte(`{"text":"x"}`),
	})
	assert.ErrorContains(t, err, "no transport registered")
}

// transportOnly exposes a Fake through the Transport methods alone so the
// registry cannot upgrade it to an Adapter.
type transportOnly struct{ f *Fake }

func (t transportOnly) Name() string { return t.f.Name() }
func (t transportOnly) SendText(ctx context.Context, thread model.ThreadRef, text string, opts *SendOptions) (model.MessageRef, error) {
	return t.f.SendText(ctx, thread, text, opts)
}
func (t transportOnly) EditText(ctx context.Context, msg model.MessageRef, text string, opts *SendOptions) error {
	return t.f.EditText(ctx, msg, text, opts)
}
func (t transportOnly) AckInteraction(ctx context.Context, ref model.InteractionRef, notice string) error {
	return t.f.AckInteraction(ctx, ref, notice)
}

func TestRegistry_Deliver_AttachmentOnTransportOnly(t *testing.T) {
	reg := NewRegistry(transportOnly{f: NewFake("discord")})
	payload, _ := json.Marshal(AttachmentPayload{FileName: "x"})
	err := reg.Deliver(context.Background(), &store.OutboxRecord{
		RecordID: "r5",
		Platform: "discord",
		Kind:     store.SendKindAttachment,
		Payload:  payload,
	})
	assert.ErrorIs(t, err, ErrUnsupported)
}
