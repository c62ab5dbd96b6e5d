package commands

import (
	"fmt"
	"math"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/paginator"

	"github.com/mazadhq/mazadbot/mazadbot"
	"github.com/mazadhq/mazadbot/mazadbot/auction"
	"github.com/mazadhq/mazadbot/mazadbot/database/models"
	"github.com/mazadhq/mazadbot/mazadbot/handlers"
)

const auctionsPerPage = 5

var AuctionCommand = discord.SlashCommandCreate{
	Name:        "auction",
	Description: "Run and follow live auctions",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "open",
			Description: "Open a new auction in this guild",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "item",
					Description: "What is being auctioned",
					Required:    true,
				},
				discord.ApplicationCommandOptionString{
					Name:        "start_bid",
					Description: "Starting bid (e.g. 10k, 2.5m)",
					Required:    true,
				},
				discord.ApplicationCommandOptionString{
					Name:        "min_increment",
					Description: "Minimum raise over the leading bid",
					Required:    true,
				},
				discord.ApplicationCommandOptionInt{
					Name:        "duration",
					Description: "Auction duration in minutes",
					Required:    true,
					MinValue:    intPtr(1),
					MaxValue:    intPtr(1440),
				},
				discord.ApplicationCommandOptionString{
					Name:        "code",
					Description: "Secret code, if you lack the auctioneer role",
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "bid",
			Description: "Bid on the live auction",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "amount",
					Description: "Bid amount (e.g. 250k, 1.2m)",
					Required:    true,
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "undo",
			Description: "Remove the most recent bid",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "code",
					Description: "Secret code, if you lack the auctioneer role",
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "end",
			Description: "End the live auction now",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "code",
					Description: "Secret code, if you lack the auctioneer role",
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "status",
			Description: "Show the live auction and storage health",
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "history",
			Description: "Browse recent auctions in this guild",
		},
	},
}

type AuctionHandler struct {
	bot *mazadbot.Bot
}

func NewAuctionHandler(b *mazadbot.Bot) *AuctionHandler {
	return &AuctionHandler{bot: b}
}

func (h *AuctionHandler) Register(r handler.Router) {
	r.Route("/auction", func(r handler.Router) {
		r.Command("/open", handlers.WrapWithLogging("auction open", h.HandleOpen))
		r.Command("/bid", handlers.WrapWithLogging("auction bid", h.HandleBid))
		r.Command("/undo", handlers.WrapWithLogging("auction undo", h.HandleUndo))
		r.Command("/end", handlers.WrapWithLogging("auction end", h.HandleEnd))
		r.Command("/status", handlers.WrapWithLogging("auction status", h.HandleStatus))
		r.Command("/history", handlers.WrapWithLogging("auction history", h.HandleHistory))
	})
}

func (h *AuctionHandler) HandleOpen(event *handler.CommandEvent) error {
	ctx, cancel := commandContext()
	defer cancel()

	guildID := event.GuildID()
	if guildID == nil {
		return ephemeral(event, "Auctions only run inside a guild.")
	}
	if !inAuctionChannel(ctx, h.bot.Store, event) {
		return ephemeral(event, "Auction commands only work in the configured auction channel.")
	}

	data := event.SlashCommandInteractionData()
	code, _ := data.OptString("code")
	if !canManage(ctx, h.bot.Store, event, code) {
		return ephemeral(event, "You need the auctioneer role to open auctions.")
	}

	startBid, err := auction.ParseAmount(data.String("start_bid"))
	if err != nil {
		return respondError(event, err)
	}
	minIncrement, err := auction.ParseAmount(data.String("min_increment"))
	if err != nil {
		return respondError(event, err)
	}

	result, err := h.bot.AuctionManager.Open(ctx, auction.OpenParams{
		GuildID:        guildID.String(),
		ItemName:       data.String("item"),
		StartBid:       startBid,
		MinIncrement:   minIncrement,
		DurationMin:    data.Int("duration"),
		PanelChannelID: event.ChannelID().String(),
	})
	if err != nil {
		return respondError(event, err)
	}

	return event.CreateMessage(discord.MessageCreate{Content: result.Message})
}

func (h *AuctionHandler) HandleBid(event *handler.CommandEvent) error {
	ctx, cancel := commandContext()
	defer cancel()

	guildID := event.GuildID()
	if guildID == nil {
		return ephemeral(event, "Auctions only run inside a guild.")
	}

	if !inAuctionChannel(ctx, h.bot.Store, event) {
		return ephemeral(event, "Auction commands only work in the configured auction channel.")
	}

	data := event.SlashCommandInteractionData()
	result, err := h.bot.AuctionManager.PlaceBid(ctx, guildID.String(), event.User().ID.String(), data.String("amount"))
	if err != nil {
		return respondError(event, err)
	}

	return event.CreateMessage(discord.MessageCreate{Content: result.Message})
}

func (h *AuctionHandler) HandleUndo(event *handler.CommandEvent) error {
	ctx, cancel := commandContext()
	defer cancel()

	guildID := event.GuildID()
	if guildID == nil {
		return ephemeral(event, "Auctions only run inside a guild.")
	}
	if !inAuctionChannel(ctx, h.bot.Store, event) {
		return ephemeral(event, "Auction commands only work in the configured auction channel.")
	}
	code, _ := event.SlashCommandInteractionData().OptString("code")
	if !canManage(ctx, h.bot.Store, event, code) {
		return ephemeral(event, "You need the auctioneer role to undo bids.")
	}

	result, err := h.bot.AuctionManager.UndoLast(ctx, guildID.String())
	if err != nil {
		return respondError(event, err)
	}

	return event.CreateMessage(discord.MessageCreate{Content: result.Message})
}

func (h *AuctionHandler) HandleEnd(event *handler.CommandEvent) error {
	ctx, cancel := commandContext()
	defer cancel()

	guildID := event.GuildID()
	if guildID == nil {
		return ephemeral(event, "Auctions only run inside a guild.")
	}
	if !inAuctionChannel(ctx, h.bot.Store, event) {
		return ephemeral(event, "Auction commands only work in the configured auction channel.")
	}
	code, _ := event.SlashCommandInteractionData().OptString("code")
	if !canManage(ctx, h.bot.Store, event, code) {
		return ephemeral(event, "You need the auctioneer role to end auctions.")
	}

	result, err := h.bot.AuctionManager.End(ctx, guildID.String())
	if err != nil {
		return respondError(event, err)
	}

	return event.CreateMessage(discord.MessageCreate{Content: result.Message})
}

func (h *AuctionHandler) HandleStatus(event *handler.CommandEvent) error {
	guildID := event.GuildID()
	if guildID == nil {
		return ephemeral(event, "Auctions only run inside a guild.")
	}

	result := h.bot.AuctionManager.AuctionStatus(guildID.String())
	return event.CreateMessage(discord.MessageCreate{
		Content: result.Message,
		Flags:   discord.MessageFlagEphemeral,
	})
}

func (h *AuctionHandler) HandleHistory(event *handler.CommandEvent) error {
	ctx, cancel := commandContext()
	defer cancel()

	guildID := event.GuildID()
	if guildID == nil {
		return ephemeral(event, "Auctions only run inside a guild.")
	}

	auctions, err := h.bot.AuctionManager.History(ctx, guildID.String(), 50)
	if err != nil {
		return respondError(event, err)
	}
	if len(auctions) == 0 {
		return ephemeral(event, "No auctions have run in this guild yet.")
	}

	totalPages := int(math.Ceil(float64(len(auctions)) / float64(auctionsPerPage)))

	return h.bot.Paginator.Create(event.Respond, paginator.Pages{
		ID:      event.ID().String(),
		Creator: event.User().ID,
		PageFunc: func(page int, embed *discord.EmbedBuilder) {
			startIdx := page * auctionsPerPage
			endIdx := min(startIdx+auctionsPerPage, len(auctions))

			var description strings.Builder
			for _, a := range auctions[startIdx:endIdx] {
				description.WriteString(formatHistoryLine(a))
				description.WriteString("\n")
			}

			embed.SetTitle("🏛️ Auction History").
				SetDescription(description.String()).
				SetColor(0x2B2D31).
				SetFooter(fmt.Sprintf("Page %d/%d • Total Auctions: %d", page+1, totalPages, len(auctions)), "")
		},
		Pages:      totalPages,
		ExpireMode: paginator.ExpireModeAfterLastUsage,
	}, false)
}

func formatHistoryLine(a *models.Auction) string {
	switch {
	case a.Status != models.AuctionStatusEnded:
		return fmt.Sprintf("**#%d %s** — live, leading %s (%d bids)",
			a.ID, a.ItemName, auction.FormatAmount(a.CurrentBid), a.BidCount)
	case a.WinnerID == "":
		return fmt.Sprintf("**#%d %s** — no bids, closed <t:%d:R>",
			a.ID, a.ItemName, endedUnix(a))
	default:
		return fmt.Sprintf("**#%d %s** — sold to <@%s> for %s, closed <t:%d:R>",
			a.ID, a.ItemName, a.WinnerID, auction.FormatAmount(a.FinalPrice), endedUnix(a))
	}
}

func endedUnix(a *models.Auction) int64 {
	if a.EndedAt != nil {
		return a.EndedAt.Unix()
	}
	return a.EndsAt.Unix()
}

func intPtr(i int) *int {
	return &i
}
