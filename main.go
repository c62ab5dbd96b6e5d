package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/handler"

	"github.com/mazadhq/mazadbot/mazadbot"
	"github.com/mazadhq/mazadbot/mazadbot/auction"
	"github.com/mazadhq/mazadbot/mazadbot/commands"
	"github.com/mazadhq/mazadbot/mazadbot/database"
	"github.com/mazadhq/mazadbot/mazadbot/logger"
	"github.com/mazadhq/mazadbot/mazadbot/transport"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	customHandler := logger.NewHandler()
	slog.SetDefault(slog.New(customHandler))

	slog.Info("Starting Mazad Discord Bot",
		slog.String("version", version),
		slog.String("commit", commit))

	shouldSyncCommands := flag.Bool("sync-commands", false, "Whether to sync commands to discord")
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := mazadbot.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Configuration loaded successfully")

	slog.Info("Initializing storage backends...")
	dbStartTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	secondary, err := database.NewSQLite(cfg.LocalDB.Path)
	if err != nil {
		slog.Error("Failed to open embedded store", slog.Any("error", err))
		os.Exit(-1)
	}

	// The primary being down at boot is survivable: construction is lazy,
	// so the gateway starts degraded on the embedded store and the probe
	// loop wins the primary back. Only a malformed config is fatal here.
	primary, err := database.NewPostgres(ctx, database.PostgresConfig{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		Database: cfg.DB.Database,
		PoolSize: cfg.DB.PoolSize,
	})
	if err != nil {
		slog.Error("Invalid primary database configuration", slog.Any("error", err))
		os.Exit(-1)
	}

	store := database.NewGateway(primary, secondary)
	if err := store.Init(ctx); err != nil {
		slog.Error("Failed to initialize storage schema", slog.Any("error", err))
		os.Exit(-1)
	}
	defer store.Close()

	stopProbe := store.StartProbeLoop(0)
	defer stopProbe()

	slog.Info("Storage ready",
		slog.String("primary", "postgres"),
		slog.String("secondary", "sqlite"),
		slog.Duration("took", time.Since(dbStartTime)))

	b := mazadbot.New(*cfg, version, commit)
	b.Store = store

	h := handler.New()

	auctionHandler := commands.NewAuctionHandler(b)
	auctionHandler.Register(h)
	configHandler := commands.NewConfigHandler(b)
	configHandler.Register(h)

	if err = b.SetupBot(h, bot.NewListenerFunc(b.OnReady)); err != nil {
		slog.Error("Failed to setup bot",
			slog.String("type", "sys"),
			slog.Any("error", err),
			slog.String("status", "failed"),
		)
		os.Exit(-1)
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		b.Client.Close(ctx)
	}()

	manager, err := auction.NewManager(auction.Config{
		InactivityThreshold: cfg.Auction.InactivityThreshold(),
		Countdown:           cfg.Auction.Countdown(),
		PanelUpdateDelay:    cfg.Auction.PanelUpdateDelay(),
		PromoMinInterval:    cfg.Auction.PromoMinInterval(),
		BidCooldown:         cfg.Auction.BidCooldown(),
		MinBidAmount:        cfg.Auction.MinBidAmount,
		MaxBidAmount:        cfg.Auction.MaxBidAmount,
		MonitorTick:         cfg.Auction.MonitorTick(),
	}, store, transport.NewDiscordMessenger(b.Client))
	if err != nil {
		slog.Error("Failed to create auction manager", slog.Any("error", err))
		os.Exit(-1)
	}
	b.AuctionManager = manager

	if err := manager.Recover(ctx); err != nil {
		slog.Error("Failed to recover live auctions", slog.Any("error", err))
		os.Exit(-1)
	}

	if *shouldSyncCommands {
		slog.Info("Syncing commands",
			slog.String("type", "sys"),
			slog.Any("guild_ids", cfg.Bot.DevGuilds),
		)
		if err = handler.SyncCommands(b.Client, commands.Commands, cfg.Bot.DevGuilds); err != nil {
			slog.Error("Failed to sync commands",
				slog.String("type", "sys"),
				slog.Any("error", err),
				slog.String("status", "failed"),
			)
		}
	}

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = b.Client.OpenGateway(ctx); err != nil {
		slog.Error("Failed to open gateway",
			slog.String("type", "sys"),
			slog.Any("error", err),
			slog.String("status", "failed"),
		)
		os.Exit(-1)
	}

	slog.Info("Bot is running. Press CTRL-C to exit.")
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s
	slog.Info("Shutting down bot...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	manager.Shutdown(shutdownCtx)
}
