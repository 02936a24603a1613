// ABOUTME: Tests for the Telegram adapter against a scripted Bot API server.

package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconlabs/courier/internal/model"
	"github.com/beaconlabs/courier/internal/platform"
	"github.com/beaconlabs/courier/internal/remote"
)

// botServer scripts Bot API method responses and records request bodies.
type botServer struct {
	*httptest.Server
	requests map[string][]map[string]any
	results  map[string]string // method -> result JSON
}

func newBotServer(t *testing.T) *botServer {
	t.Helper()
	bs := &botServer{
		requests: make(map[string][]map[string]any),
		results:  make(map[string]string),
	}
	bs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[1:]
		var body map[string]any
		if r.Header.Get("Content-Type") == "application/json" {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		}
		bs.requests[method] = append(bs.requests[method], body)

		result, ok := bs.results[method]
		if !ok {
			result = "true"
		}
		fmt.Fprintf(w, `{"ok":true,"result":%s}`, result)
	}))
	t.Cleanup(bs.Close)
	return bs
}

func newTestAdapter(t *testing.T, bs *botServer) *Adapter {
	t.Helper()
	return New(remote.New(bs.URL), WithPollTimeout(0))
}

func TestAdapter_PollEvents_NormalizesAndAdvancesCursor(t *testing.T) {
	bs := newBotServer(t)
	bs.results["getUpdates"] = `[
		{"update_id": 10, "message": {"message_id": 1, "chat": {"id": 100},
			"from": {"id": 7}, "text": "hello",
			"reply_to_message": {"message_id": 9, "chat": {"id": 100}}}},
		{"update_id": 11, "edited_message": {"message_id": 1, "chat": {"id": 100},
			"message_thread_id": 5, "text": "hello!"}},
		{"update_id": 12, "callback_query": {"id": "cb9", "from": {"id": 7},
			"data": "a:r1:accept",
			"message": {"message_id": 2, "chat": {"id": 100}}}},
		{"update_id": 13, "message": {"message_id": 3, "chat": {"id": 100},
			"caption": "pic", "photo": [
				{"file_id": "small", "width": 90, "height": 60, "file_size": 100},
				{"file_id": "large", "width": 900, "height": 600, "file_size": 9000}]}}
	]`

	a := newTestAdapter(t, bs)
	events, err := a.PollEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 4)

	msg, ok := events[0].(model.MessageEvent)
	require.True(t, ok)
	assert.Equal(t, int64(10), msg.UpdateID())
	assert.Equal(t, "telegram:100:-", msg.Thread.ConversationID())
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, "7", msg.FromUserID)
	require.NotNil(t, msg.ReplyTo)
	assert.Equal(t, "9", msg.ReplyTo.MessageID)

	edited, ok := events[1].(model.MessageEvent)
	require.True(t, ok)
	assert.True(t, edited.IsEdited)
	assert.Equal(t, "telegram:100:5", edited.Thread.ConversationID())

	cb, ok := events[2].(model.InteractionEvent)
	require.True(t, ok)
	assert.Equal(t, "cb9", cb.Interaction.InteractionID)
	assert.Equal(t, "a:r1:accept", cb.Payload)
	require.NotNil(t, cb.Message)
	assert.Equal(t, "2", cb.Message.MessageID)

	photo, ok := events[3].(model.MessageEvent)
	require.True(t, ok)
	assert.Equal(t, "pic", photo.Text)
	require.Len(t, photo.Attachments, 1)
	assert.Equal(t, "large", photo.Attachments[0].FileID, "only the largest size survives")

	// The next poll asks past everything seen.
	bs.results["getUpdates"] = `[]`
	_, err = a.PollEvents(context.Background())
	require.NoError(t, err)

	second := bs.requests["getUpdates"][1]
	assert.Equal(t, float64(14), second["offset"])
}

func TestAdapter_PollEvents_SkipsUnsupportedUpdates(t *testing.T) {
	bs := newBotServer(t)
	bs.results["getUpdates"] = `[{"update_id": 20}]`

	a := newTestAdapter(t, bs)
	events, err := a.PollEvents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)

	// The cursor still advances past the skipped update.
	bs.results["getUpdates"] = `[]`
	_, err = a.PollEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(21), bs.requests["getUpdates"][1]["offset"])
}

func TestAdapter_SendText_KeyboardAndThread(t *testing.T) {
	bs := newBotServer(t)
	bs.results["sendMessage"] = `{"message_id": 55, "chat": {"id": 100}}`

	a := newTestAdapter(t, bs)
	thread := model.ThreadRef{Platform: "telegram", ChatID: "100", ThreadID: "5"}
	msg, err := a.SendText(context.Background(), thread, "**bold** move", &platform.SendOptions{
		Keyboard: [][]platform.Button{{{Label: "Go", Data: "a:r1:accept"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "55", msg.MessageID)

	sent := bs.requests["sendMessage"][0]
	assert.Equal(t, "100", sent["chat_id"])
	assert.Equal(t, "5", sent["message_thread_id"])
	assert.Equal(t, "HTML", sent["parse_mode"])
	assert.Equal(t, "<b>bold</b> move", sent["text"])

	markup := sent["reply_markup"].(map[string]any)
	rows := markup["inline_keyboard"].([]any)
	button := rows[0].([]any)[0].(map[string]any)
	assert.Equal(t, "Go", button["text"])
	assert.Equal(t, "a:r1:accept", button["callback_data"])
}

func TestAdapter_EditText(t *testing.T) {
	bs := newBotServer(t)
	bs.results["editMessageText"] = `{"message_id": 55, "chat": {"id": 100}}`

	a := newTestAdapter(t, bs)
	thread := model.ThreadRef{Platform: "telegram", ChatID: "100"}
	err := a.EditText(context.Background(), model.MessageRef{Thread: thread, MessageID: "55"}, "done", nil)
	require.NoError(t, err)

	sent := bs.requests["editMessageText"][0]
	assert.Equal(t, "55", sent["message_id"])
	assert.Equal(t, "done", sent["text"])
	assert.NotContains(t, sent, "reply_markup", "no keyboard removes the buttons")
}

func TestAdapter_AckInteraction(t *testing.T) {
	bs := newBotServer(t)
	a := newTestAdapter(t, bs)

	thread := model.ThreadRef{Platform: "telegram", ChatID: "100"}
	ref := model.InteractionRef{Thread: thread, InteractionID: "cb9"}
	require.NoError(t, a.AckInteraction(context.Background(), ref, "This prompt is no longer active"))

	sent := bs.requests["answerCallbackQuery"][0]
	assert.Equal(t, "cb9", sent["callback_query_id"])
	assert.Equal(t, "This prompt is no longer active", sent["text"])
}

func TestAdapter_SendAttachment_Multipart(t *testing.T) {
	var gotField, gotName, gotChatID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sendDocument", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotChatID = r.FormValue("chat_id")
		for field, headers := range r.MultipartForm.File {
			gotField = field
			gotName = headers[0].Filename
		}
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":77,"chat":{"id":100}}}`)
	}))
	defer server.Close()

	a := New(remote.New(server.URL))
	thread := model.ThreadRef{Platform: "telegram", ChatID: "100"}
	msg, err := a.SendAttachment(context.Background(), thread, platform.OutgoingAttachment{
		Kind:     model.AttachmentDocument,
		FileName: "report.txt",
		Content:  []byte("data"),
	})
	require.NoError(t, err)
	assert.Equal(t, "77", msg.MessageID)
	assert.Equal(t, "document", gotField)
	assert.Equal(t, "report.txt", gotName)
	assert.Equal(t, "100", gotChatID)
}

func TestAdapter_APILevelError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"description":"Bad Request: chat not found","error_code":400}`)
	}))
	defer server.Close()

	a := New(remote.New(server.URL))
	thread := model.ThreadRef{Platform: "telegram", ChatID: "bogus"}
	_, err := a.SendText(context.Background(), thread, "hi", nil)
	assert.ErrorContains(t, err, "chat not found")
}
