package mazadbot

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/pelletier/go-toml/v2"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	cfg := DefaultConfig()
	if err = toml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns a config with the auction tunables pre-filled so a
// minimal TOML file (token + db) is enough to run.
func DefaultConfig() *Config {
	return &Config{
		Auction: AuctionConfig{
			InactivityThresholdSec: 30,
			CountdownSeconds:       3,
			PanelUpdateDelayMS:     500,
			PromoMinIntervalSec:    45,
			BidCooldownSec:         2,
			MinBidAmount:           1_000,
			MaxBidAmount:           1_000_000_000_000,
			MonitorTickMS:          1000,
		},
	}
}

type Config struct {
	Log     LogConfig     `toml:"log"`
	Bot     BotConfig     `toml:"bot"`
	DB      DBConfig      `toml:"db"`
	LocalDB LocalDBConfig `toml:"local_db"`
	Auction AuctionConfig `toml:"auction"`
}

type BotConfig struct {
	DevGuilds []snowflake.ID `toml:"dev_guilds"`
	Token     string         `toml:"token"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type DBConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	PoolSize int    `toml:"pool_size"`
}

// LocalDBConfig configures the embedded fallback store.
type LocalDBConfig struct {
	Path string `toml:"path"`
}

// AuctionConfig carries the timing and amount tunables for live auctions.
type AuctionConfig struct {
	InactivityThresholdSec int   `toml:"inactivity_threshold_seconds"`
	CountdownSeconds       int   `toml:"countdown_seconds"`
	PanelUpdateDelayMS     int   `toml:"panel_update_delay_ms"`
	PromoMinIntervalSec    int   `toml:"promo_min_interval_seconds"`
	BidCooldownSec         int   `toml:"bid_cooldown_seconds"`
	MinBidAmount           int64 `toml:"min_bid_amount"`
	MaxBidAmount           int64 `toml:"max_bid_amount"`
	MonitorTickMS          int   `toml:"monitor_tick_ms"`
}

func (c AuctionConfig) InactivityThreshold() time.Duration {
	return time.Duration(c.InactivityThresholdSec) * time.Second
}

func (c AuctionConfig) Countdown() time.Duration {
	return time.Duration(c.CountdownSeconds) * time.Second
}

func (c AuctionConfig) PanelUpdateDelay() time.Duration {
	return time.Duration(c.PanelUpdateDelayMS) * time.Millisecond
}

func (c AuctionConfig) PromoMinInterval() time.Duration {
	return time.Duration(c.PromoMinIntervalSec) * time.Second
}

func (c AuctionConfig) BidCooldown() time.Duration {
	return time.Duration(c.BidCooldownSec) * time.Second
}

func (c AuctionConfig) MonitorTick() time.Duration {
	return time.Duration(c.MonitorTickMS) * time.Millisecond
}
