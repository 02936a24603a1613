// ABOUTME: The Adapter implementation: polling cursor and outbound calls.
// ABOUTME: Breaker scopes fall out of the Bot API method names.

package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/beaconlabs/courier/internal/model"
	"github.com/beaconlabs/courier/internal/platform"
	"github.com/beaconlabs/courier/internal/remote"
)

// PlatformName is the stable id this adapter reports.
const PlatformName = "telegram"

// Adapter implements platform.Adapter against the Bot API.
type Adapter struct {
	api         *remote.Client
	logger      *slog.Logger
	pollSeconds int

	mu     sync.Mutex
	offset int64
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// WithPollTimeout sets the long-poll hold time in seconds.
func WithPollTimeout(seconds int) Option {
	return func(a *Adapter) { a.pollSeconds = seconds }
}

// New creates an adapter over a remote client whose base URL already carries
// the bot token ("https://api.telegram.org/bot<token>").
func New(api *remote.Client, opts ...Option) *Adapter {
	a := &Adapter{
		api:         api,
		logger:      slog.Default().With("component", "telegram"),
		pollSeconds: 25,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string { return PlatformName }

// invoke posts one Bot API method and unwraps the response envelope.
func (a *Adapter) invoke(ctx context.Context, method string, body any, result any) error {
	var resp apiResponse
	if err := a.api.PostJSON(ctx, "/"+method, body, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("telegram: %s: %s (code %d)", method, resp.Description, resp.ErrorCode)
	}
	if result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("telegram: %s: decoding result: %w", method, err)
		}
	}
	return nil
}

// PollEvents runs one getUpdates cycle. The offset cursor advances past every
// update returned, acknowledged or not, so an update is delivered once.
func (a *Adapter) PollEvents(ctx context.Context) ([]model.Event, error) {
	a.mu.Lock()
	offset := a.offset
	a.mu.Unlock()

	req := map[string]any{
		"timeout":         a.pollSeconds,
		"allowed_updates": []string{"message", "edited_message", "callback_query"},
	}
	if offset > 0 {
		req["offset"] = offset
	}

	var updates []apiUpdate
	if err := a.invoke(ctx, "getUpdates", req, &updates); err != nil {
		return nil, err
	}

	var events []model.Event
	for _, u := range updates {
		if u.UpdateID >= offset {
			offset = u.UpdateID + 1
		}
		ev, ok := normalizeUpdate(u)
		if !ok {
			a.logger.Debug("skipping unsupported update", "update_id", u.UpdateID)
			continue
		}
		events = append(events, ev)
	}

	a.mu.Lock()
	if offset > a.offset {
		a.offset = offset
	}
	a.mu.Unlock()

	return events, nil
}

func (a *Adapter) SendText(ctx context.Context, thread model.ThreadRef, text string, opts *platform.SendOptions) (model.MessageRef, error) {
	req := map[string]any{
		"chat_id":    thread.ChatID,
		"text":       renderHTML(text),
		"parse_mode": "HTML",
	}
	if thread.ThreadID != "" {
		req["message_thread_id"] = thread.ThreadID
	}
	if opts != nil {
		if len(opts.Keyboard) > 0 {
			req["reply_markup"] = keyboardMarkup(opts.Keyboard)
		}
		if opts.ReplyTo != "" {
			req["reply_to_message_id"] = opts.ReplyTo
		}
		if opts.NoPreview {
			req["disable_web_page_preview"] = true
		}
	}

	var msg apiMessage
	if err := a.invoke(ctx, "sendMessage", req, &msg); err != nil {
		return model.MessageRef{}, err
	}
	return model.MessageRef{Thread: thread, MessageID: strconv.FormatInt(msg.MessageID, 10)}, nil
}

func (a *Adapter) EditText(ctx context.Context, msg model.MessageRef, text string, opts *platform.SendOptions) error {
	req := map[string]any{
		"chat_id":    msg.Thread.ChatID,
		"message_id": msg.MessageID,
		"text":       renderHTML(text),
		"parse_mode": "HTML",
	}
	if opts != nil && len(opts.Keyboard) > 0 {
		req["reply_markup"] = keyboardMarkup(opts.Keyboard)
	}
	return a.invoke(ctx, "editMessageText", req, nil)
}

func (a *Adapter) DeleteMessage(ctx context.Context, msg model.MessageRef) error {
	req := map[string]any{
		"chat_id":    msg.Thread.ChatID,
		"message_id": msg.MessageID,
	}
	err := a.invoke(ctx, "deleteMessage", req, nil)
	if err != nil && remote.IsPermanent(err) {
		// Already gone; deletion is idempotent at this boundary.
		a.logger.Debug("delete ignored", "message_id", msg.MessageID, "err", err)
		return nil
	}
	return err
}

func (a *Adapter) AckInteraction(ctx context.Context, ref model.InteractionRef, notice string) error {
	req := map[string]any{"callback_query_id": ref.InteractionID}
	if notice != "" {
		req["text"] = notice
	}
	return a.invoke(ctx, "answerCallbackQuery", req, nil)
}

func (a *Adapter) SendAttachment(ctx context.Context, thread model.ThreadRef, att platform.OutgoingAttachment) (model.MessageRef, error) {
	method, field := "sendDocument", "document"
	switch att.Kind {
	case model.AttachmentPhoto, model.AttachmentImage:
		method, field = "sendPhoto", "photo"
	case model.AttachmentAudio:
		method, field = "sendAudio", "audio"
	case model.AttachmentVoice:
		method, field = "sendVoice", "voice"
	case model.AttachmentVideo:
		method, field = "sendVideo", "video"
	}

	fields := map[string]string{"chat_id": thread.ChatID}
	if thread.ThreadID != "" {
		fields["message_thread_id"] = thread.ThreadID
	}
	if att.Caption != "" {
		fields["caption"] = renderHTML(att.Caption)
		fields["parse_mode"] = "HTML"
	}

	var resp apiResponse
	err := a.api.Upload(ctx, "/"+method, fields, remote.FilePart{
		Field:    field,
		Name:     att.FileName,
		Content:  att.Content,
		MIMEType: att.MIMEType,
	}, &resp)
	if err != nil {
		return model.MessageRef{}, err
	}
	if !resp.OK {
		return model.MessageRef{}, fmt.Errorf("telegram: %s: %s (code %d)", method, resp.Description, resp.ErrorCode)
	}
	var msg apiMessage
	if err := json.Unmarshal(resp.Result, &msg); err != nil {
		return model.MessageRef{}, fmt.Errorf("telegram: %s: decoding result: %w", method, err)
	}
	return model.MessageRef{Thread: thread, MessageID: strconv.FormatInt(msg.MessageID, 10)}, nil
}

func keyboardMarkup(rows [][]platform.Button) inlineKeyboardMarkup {
	markup := inlineKeyboardMarkup{InlineKeyboard: make([][]inlineKeyboardButton, len(rows))}
	for i, row := range rows {
		buttons := make([]inlineKeyboardButton, len(row))
		for j, b := range row {
			buttons[j] = inlineKeyboardButton{Text: b.Label, CallbackData: b.Data}
		}
		markup.InlineKeyboard[i] = buttons
	}
	return markup
}
