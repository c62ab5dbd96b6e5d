package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Well-known per-guild setting keys.
const (
	SettingAuctioneerRole = "auctioneer_role"
	SettingAuctionChannel = "auction_channel"
	SettingLogChannel     = "log_channel"
	SettingCommissionPct  = "commission_pct"
	SettingCurrencyName   = "currency_name"
	SettingSecretCode     = "secret_code"
)

type Setting struct {
	bun.BaseModel `bun:"table:guild_settings,alias:gs"`

	GuildID   string    `bun:"guild_id,pk"`
	Key       string    `bun:"key,pk"`
	Value     string    `bun:"value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
