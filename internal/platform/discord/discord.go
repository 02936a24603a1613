// ABOUTME: REST side of the Discord transport: sends, edits, interaction acks.
// ABOUTME: Interaction ids carry the response token after a slash.

package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/beaconlabs/courier/internal/model"
	"github.com/beaconlabs/courier/internal/platform"
	"github.com/beaconlabs/courier/internal/remote"
)

// PlatformName is the stable id this transport reports.
const PlatformName = "discord"

// Discord component type and style constants, per the interactions API.
const (
	componentActionRow    = 1
	componentButton       = 2
	buttonStyleSecondary  = 2
	responseDeferredEdit  = 6
	responseChannelNotice = 4
	flagEphemeral         = 64
)

type apiMessage struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

type gatewayInfo struct {
	URL string `json:"url"`
}

// Transport implements platform.Transport over the Discord REST API.
type Transport struct {
	api    *remote.Client
	logger *slog.Logger
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

// New creates a transport over a remote client based at the Discord API root
// with the bot Authorization header already attached.
func New(api *remote.Client, opts ...Option) *Transport {
	t := &Transport{
		api:    api,
		logger: slog.Default().With("component", "discord"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) Name() string { return PlatformName }

// ResolveGatewayURL fetches the websocket endpoint for the gateway manager.
func (t *Transport) ResolveGatewayURL(ctx context.Context) (string, error) {
	var info gatewayInfo
	if err := t.api.GetJSON(ctx, "/gateway/bot", &info); err != nil {
		return "", fmt.Errorf("discord: resolving gateway: %w", err)
	}
	if info.URL == "" {
		return "", fmt.Errorf("discord: gateway info missing url")
	}
	return info.URL + "?v=10&encoding=json", nil
}

func (t *Transport) SendText(ctx context.Context, thread model.ThreadRef, text string, opts *platform.SendOptions) (model.MessageRef, error) {
	body := map[string]any{"content": text}
	if opts != nil {
		if len(opts.Keyboard) > 0 {
			body["components"] = components(opts.Keyboard)
		}
		if opts.ReplyTo != "" {
			body["message_reference"] = map[string]any{"message_id": opts.ReplyTo}
		}
	}

	var msg apiMessage
	path := fmt.Sprintf("/channels/%s/messages", thread.ChatID)
	if err := t.api.PostJSON(ctx, path, body, &msg); err != nil {
		return model.MessageRef{}, err
	}
	return model.MessageRef{Thread: thread, MessageID: msg.ID}, nil
}

func (t *Transport) EditText(ctx context.Context, msg model.MessageRef, text string, opts *platform.SendOptions) error {
	body := map[string]any{
		"content": text,
		// An explicit empty list strips existing buttons from the message.
		"components": []any{},
	}
	if opts != nil && len(opts.Keyboard) > 0 {
		body["components"] = components(opts.Keyboard)
	}
	path := fmt.Sprintf("/channels/%s/messages/%s", msg.Thread.ChatID, msg.MessageID)
	return t.api.PatchJSON(ctx, path, body, nil)
}

// AckInteraction answers an interaction. Without a notice it defers with a
// silent message update; with one, it replies ephemerally so only the
// clicking user sees it.
func (t *Transport) AckInteraction(ctx context.Context, ref model.InteractionRef, notice string) error {
	id, token, ok := splitInteractionID(ref.InteractionID)
	if !ok {
		return fmt.Errorf("discord: interaction id %q missing response token", ref.InteractionID)
	}

	body := map[string]any{"type": responseDeferredEdit}
	if notice != "" {
		body = map[string]any{
			"type": responseChannelNotice,
			"data": map[string]any{"content": notice, "flags": flagEphemeral},
		}
	}
	path := fmt.Sprintf("/interactions/%s/%s/callback", id, token)
	return t.api.PostJSON(ctx, path, body, nil)
}

// components renders keyboard rows as action rows of secondary buttons.
func components(rows [][]platform.Button) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		buttons := make([]map[string]any, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, map[string]any{
				"type":      componentButton,
				"style":     buttonStyleSecondary,
				"label":     b.Label,
				"custom_id": b.Data,
			})
		}
		out = append(out, map[string]any{
			"type":       componentActionRow,
			"components": buttons,
		})
	}
	return out
}

// joinInteractionID packs the interaction id and response token into the
// single id slot the model offers; splitInteractionID undoes it.
func joinInteractionID(id, token string) string {
	return id + "/" + token
}

func splitInteractionID(packed string) (id, token string, ok bool) {
	i := strings.IndexByte(packed, '/')
	if i <= 0 || i == len(packed)-1 {
		return "", "", false
	}
	return packed[:i], packed[i+1:], true
}
