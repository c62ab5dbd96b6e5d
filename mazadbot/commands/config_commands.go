package commands

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"

	"github.com/mazadhq/mazadbot/mazadbot"
	"github.com/mazadhq/mazadbot/mazadbot/database/models"
	"github.com/mazadhq/mazadbot/mazadbot/handlers"
)

var ConfigCommand = discord.SlashCommandCreate{
	Name:        "config",
	Description: "Guild auction configuration",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "set-role",
			Description: "Set the auctioneer role",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionRole{
					Name:        "role",
					Description: "Members with this role can run auctions",
					Required:    true,
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "set-channels",
			Description: "Set the auction and log channels",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionChannel{
					Name:        "auction_channel",
					Description: "Channel where auction panels are posted",
				},
				discord.ApplicationCommandOptionChannel{
					Name:        "log_channel",
					Description: "Channel for auction outcome logs",
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "set-misc",
			Description: "Set commission, currency and the secret code",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionInt{
					Name:        "commission",
					Description: "Commission percentage taken from the final price",
					MinValue:    intPtr(0),
					MaxValue:    intPtr(100),
				},
				discord.ApplicationCommandOptionString{
					Name:        "currency",
					Description: "Display name of the currency",
				},
				discord.ApplicationCommandOptionString{
					Name:        "secret_code",
					Description: "Fallback code granting auctioneer access",
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "show",
			Description: "Show the guild's auction configuration",
		},
	},
}

var DBRetryCommand = discord.SlashCommandCreate{
	Name:        "db-retry",
	Description: "Probe the primary database and restore it if reachable",
}

type ConfigHandler struct {
	bot *mazadbot.Bot
}

func NewConfigHandler(b *mazadbot.Bot) *ConfigHandler {
	return &ConfigHandler{bot: b}
}

func (h *ConfigHandler) Register(r handler.Router) {
	r.Route("/config", func(r handler.Router) {
		r.Command("/set-role", handlers.WrapWithLogging("config set-role", h.HandleSetRole))
		r.Command("/set-channels", handlers.WrapWithLogging("config set-channels", h.HandleSetChannels))
		r.Command("/set-misc", handlers.WrapWithLogging("config set-misc", h.HandleSetMisc))
		r.Command("/show", handlers.WrapWithLogging("config show", h.HandleShow))
	})
	r.Command("/db-retry", handlers.WrapWithLogging("db-retry", h.HandleDBRetry))
}

func (h *ConfigHandler) HandleSetRole(event *handler.CommandEvent) error {
	ctx, cancel := commandContext()
	defer cancel()

	guildID := event.GuildID()
	if guildID == nil {
		return ephemeral(event, "Configuration only applies inside a guild.")
	}
	if !isAdmin(event) {
		return ephemeral(event, "Only guild admins can change configuration.")
	}

	role := event.SlashCommandInteractionData().Role("role")
	if err := h.bot.Store.SetSetting(ctx, guildID.String(), models.SettingAuctioneerRole, role.ID.String()); err != nil {
		return respondError(event, err)
	}
	return ephemeral(event, fmt.Sprintf("Auctioneer role set to <@&%s>.", role.ID))
}

func (h *ConfigHandler) HandleSetChannels(event *handler.CommandEvent) error {
	ctx, cancel := commandContext()
	defer cancel()

	guildID := event.GuildID()
	if guildID == nil {
		return ephemeral(event, "Configuration only applies inside a guild.")
	}
	if !isAdmin(event) {
		return ephemeral(event, "Only guild admins can change configuration.")
	}

	data := event.SlashCommandInteractionData()
	var changed []string

	if ch, ok := data.OptChannel("auction_channel"); ok {
		if err := h.bot.Store.SetSetting(ctx, guildID.String(), models.SettingAuctionChannel, ch.ID.String()); err != nil {
			return respondError(event, err)
		}
		changed = append(changed, fmt.Sprintf("auction channel → <#%s>", ch.ID))
	}
	if ch, ok := data.OptChannel("log_channel"); ok {
		if err := h.bot.Store.SetSetting(ctx, guildID.String(), models.SettingLogChannel, ch.ID.String()); err != nil {
			return respondError(event, err)
		}
		changed = append(changed, fmt.Sprintf("log channel → <#%s>", ch.ID))
	}

	if len(changed) == 0 {
		return ephemeral(event, "Nothing to change — pass at least one channel.")
	}
	return ephemeral(event, "Updated: "+strings.Join(changed, ", "))
}

func (h *ConfigHandler) HandleSetMisc(event *handler.CommandEvent) error {
	ctx, cancel := commandContext()
	defer cancel()

	guildID := event.GuildID()
	if guildID == nil {
		return ephemeral(event, "Configuration only applies inside a guild.")
	}
	if !isAdmin(event) {
		return ephemeral(event, "Only guild admins can change configuration.")
	}

	data := event.SlashCommandInteractionData()
	var changed []string

	if pct, ok := data.OptInt("commission"); ok {
		if err := h.bot.Store.SetSetting(ctx, guildID.String(), models.SettingCommissionPct, strconv.Itoa(pct)); err != nil {
			return respondError(event, err)
		}
		changed = append(changed, fmt.Sprintf("commission → %d%%", pct))
	}
	if currency, ok := data.OptString("currency"); ok {
		if err := h.bot.Store.SetSetting(ctx, guildID.String(), models.SettingCurrencyName, currency); err != nil {
			return respondError(event, err)
		}
		changed = append(changed, "currency → "+currency)
	}
	if code, ok := data.OptString("secret_code"); ok {
		if err := h.bot.Store.SetSetting(ctx, guildID.String(), models.SettingSecretCode, code); err != nil {
			return respondError(event, err)
		}
		changed = append(changed, "secret code updated")
	}

	if len(changed) == 0 {
		return ephemeral(event, "Nothing to change — pass at least one option.")
	}
	return ephemeral(event, "Updated: "+strings.Join(changed, ", "))
}

func (h *ConfigHandler) HandleShow(event *handler.CommandEvent) error {
	ctx, cancel := commandContext()
	defer cancel()

	guildID := event.GuildID()
	if guildID == nil {
		return ephemeral(event, "Configuration only applies inside a guild.")
	}

	settings, err := h.bot.Store.AllSettings(ctx, guildID.String())
	if err != nil {
		return respondError(event, err)
	}
	if len(settings) == 0 {
		return ephemeral(event, "No configuration set for this guild yet.")
	}

	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		value := settings[k]
		if k == models.SettingSecretCode {
			value = "••••••"
		}
		fmt.Fprintf(&sb, "`%s` = %s\n", k, value)
	}
	return ephemeral(event, sb.String())
}

func (h *ConfigHandler) HandleDBRetry(event *handler.CommandEvent) error {
	ctx, cancel := commandContext()
	defer cancel()

	if !isAdmin(event) {
		return ephemeral(event, "Only guild admins can probe the database.")
	}

	status, err := h.bot.AuctionManager.RetryStorage(ctx)
	if err != nil {
		return ephemeral(event, fmt.Sprintf(
			"Primary still unreachable — staying on %s.\nState: %s | failures: %d | probes: %d",
			status.Secondary, status.State, status.PrimaryFailures, status.ProbeAttempts))
	}
	return ephemeral(event, fmt.Sprintf(
		"Primary %s is healthy.\nState: %s | failures: %d | failovers: %d | probes: %d",
		status.Primary, status.State, status.PrimaryFailures, status.Failovers, status.ProbeAttempts))
}

func isAdmin(event *handler.CommandEvent) bool {
	member := event.Member()
	return member != nil && member.Permissions.Has(discord.PermissionAdministrator)
}
