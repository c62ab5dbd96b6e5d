package commands

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/snowflake/v2"

	"github.com/mazadhq/mazadbot/mazadbot/auction"
	"github.com/mazadhq/mazadbot/mazadbot/database"
	"github.com/mazadhq/mazadbot/mazadbot/database/models"
)

var Commands = []discord.ApplicationCommandCreate{
	AuctionCommand,
	ConfigCommand,
	DBRetryCommand,
}

// respondError turns a domain error into an ephemeral reply. Unknown
// errors bubble up so the command logger records them.
func respondError(event *handler.CommandEvent, err error) error {
	var (
		parseErr    *auction.ParseError
		validErr    *auction.ValidationError
		stateErr    *auction.StateError
		conflictErr *auction.ConflictError
		raceErr     *auction.ConcurrencyConflict
		storageErr  *database.StorageError
	)

	var content string
	switch {
	case errors.As(err, &parseErr):
		content = fmt.Sprintf("❌ %s — try `500`, `2.5k` or `1m`.", parseErr.Error())
	case errors.As(err, &validErr):
		content = "❌ " + validErr.Reason
	case errors.As(err, &stateErr):
		content = "❌ " + stateErr.Reason
	case errors.As(err, &conflictErr):
		content = fmt.Sprintf("❌ This guild already has a live auction (#%d). End it first.", conflictErr.AuctionID)
	case errors.As(err, &raceErr):
		content = fmt.Sprintf("⚡ Too slow! <@%s> got there first with %s.",
			raceErr.LeadingBidder, auction.FormatAmount(raceErr.LeadingBid))
	case errors.As(err, &storageErr):
		content = "❌ Storage is having trouble; the auction keeps running. Try `/db-retry`."
	default:
		return err
	}

	return event.CreateMessage(discord.MessageCreate{
		Content: content,
		Flags:   discord.MessageFlagEphemeral,
	})
}

func ephemeral(event *handler.CommandEvent, content string) error {
	return event.CreateMessage(discord.MessageCreate{
		Content: content,
		Flags:   discord.MessageFlagEphemeral,
	})
}

// canManage reports whether the invoker may run auctioneer commands: guild
// admins always can, otherwise the configured auctioneer role decides, with
// the guild's secret code as a fallback. An unconfigured guild allows
// everyone.
func canManage(ctx context.Context, store *database.Gateway, event *handler.CommandEvent, code string) bool {
	member := event.Member()
	if member == nil {
		return false
	}
	if member.Permissions.Has(discord.PermissionAdministrator) {
		return true
	}

	guildID := event.GuildID()
	if guildID == nil {
		return false
	}

	roleRaw, err := store.GetSetting(ctx, guildID.String(), models.SettingAuctioneerRole)
	if err != nil {
		return errors.Is(err, database.ErrNotFound)
	}

	roleID, err := snowflake.Parse(roleRaw)
	if err != nil {
		return true
	}
	for _, r := range member.RoleIDs {
		if r == roleID {
			return true
		}
	}

	if code != "" {
		secret, err := store.GetSetting(ctx, guildID.String(), models.SettingSecretCode)
		if err == nil && secret != "" && subtle.ConstantTimeCompare([]byte(code), []byte(secret)) == 1 {
			return true
		}
	}
	return false
}

// inAuctionChannel reports whether the command came from the guild's
// configured auction channel. Unconfigured guilds allow any channel.
func inAuctionChannel(ctx context.Context, store *database.Gateway, event *handler.CommandEvent) bool {
	guildID := event.GuildID()
	if guildID == nil {
		return false
	}
	raw, err := store.GetSetting(ctx, guildID.String(), models.SettingAuctionChannel)
	if err != nil {
		return true
	}
	return allowedChannel(raw, event.ChannelID())
}

func allowedChannel(raw string, channelID snowflake.ID) bool {
	want, err := snowflake.Parse(raw)
	if err != nil {
		return true
	}
	return want == channelID
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}
