package transport

import (
	"context"
	"errors"
	"net/http"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
)

// Discord JSON error codes for authorization rejections.
const (
	jsonCodeMissingAccess      = 50001
	jsonCodeMissingPermissions = 50013
)

// DiscordMessenger sends auction panels and prompts through a disgo client.
type DiscordMessenger struct {
	client bot.Client
}

func NewDiscordMessenger(client bot.Client) *DiscordMessenger {
	return &DiscordMessenger{client: client}
}

func (m *DiscordMessenger) Send(ctx context.Context, channelID snowflake.ID, p Payload) (MessageRef, error) {
	msg, err := m.client.Rest().CreateMessage(channelID, buildMessageCreate(p), rest.WithCtx(ctx))
	if err != nil {
		return MessageRef{}, wrapRestErr("send", err)
	}
	return MessageRef{ChannelID: msg.ChannelID, MessageID: msg.ID}, nil
}

func (m *DiscordMessenger) Edit(ctx context.Context, ref MessageRef, p Payload) error {
	_, err := m.client.Rest().UpdateMessage(ref.ChannelID, ref.MessageID, buildMessageUpdate(p), rest.WithCtx(ctx))
	if err != nil {
		return wrapRestErr("edit", err)
	}
	return nil
}

func (m *DiscordMessenger) Delete(ctx context.Context, ref MessageRef) error {
	if err := m.client.Rest().DeleteMessage(ref.ChannelID, ref.MessageID, rest.WithCtx(ctx)); err != nil {
		return wrapRestErr("delete", err)
	}
	return nil
}

func buildMessageCreate(p Payload) discord.MessageCreate {
	builder := discord.NewMessageCreateBuilder()
	if p.Content != "" {
		builder.SetContent(p.Content)
	}
	if embed, ok := buildEmbed(p); ok {
		builder.SetEmbeds(embed)
	}
	return builder.Build()
}

func buildMessageUpdate(p Payload) discord.MessageUpdate {
	builder := discord.NewMessageUpdateBuilder()
	builder.SetContent(p.Content)
	if embed, ok := buildEmbed(p); ok {
		builder.SetEmbeds(embed)
	}
	return builder.Build()
}

func buildEmbed(p Payload) (discord.Embed, bool) {
	if p.Title == "" && p.Description == "" && len(p.Fields) == 0 {
		return discord.Embed{}, false
	}

	eb := discord.NewEmbedBuilder().
		SetTitle(p.Title).
		SetDescription(p.Description).
		SetColor(p.Color)
	for _, f := range p.Fields {
		eb.AddField(f.Name, f.Value, f.Inline)
	}
	if p.Footer != "" {
		eb.SetFooterText(p.Footer)
	}
	return eb.Build(), true
}

func wrapRestErr(op string, err error) error {
	var restErr rest.Error
	if errors.As(err, &restErr) {
		perm := restErr.Code == jsonCodeMissingAccess || restErr.Code == jsonCodeMissingPermissions
		if !perm && restErr.Response != nil {
			perm = restErr.Response.StatusCode == http.StatusForbidden
		}
		return &Error{Op: op, Permission: perm, Err: err}
	}
	return &Error{Op: op, Err: err}
}
