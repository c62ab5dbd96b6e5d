package models

import (
	"time"

	"github.com/uptrace/bun"
)

type AuctionStatus string

const (
	AuctionStatusOpen      AuctionStatus = "OPEN"
	AuctionStatusCountdown AuctionStatus = "COUNTDOWN"
	AuctionStatusEnded     AuctionStatus = "ENDED"
)

// Live reports whether the auction can still accept bids or transitions.
func (s AuctionStatus) Live() bool {
	return s == AuctionStatusOpen || s == AuctionStatusCountdown
}

type Auction struct {
	bun.BaseModel `bun:"table:auctions,alias:a"`

	ID            int64         `bun:"id,pk"`
	GuildID       string        `bun:"guild_id,notnull"`
	ItemName      string        `bun:"item_name,notnull"`
	Status        AuctionStatus `bun:"status,notnull"`
	StartBid      int64         `bun:"start_bid,notnull"`
	MinIncrement  int64         `bun:"min_increment,notnull"`
	CurrentBid    int64         `bun:"current_bid,notnull"`
	CurrentBidder string        `bun:"current_bidder"`
	CommissionPct int64         `bun:"commission_pct,notnull"`
	CurrencyName  string        `bun:"currency_name,notnull"`
	BidCount      int           `bun:"bid_count,notnull"`

	StartedAt         time.Time  `bun:"started_at,notnull"`
	EndsAt            time.Time  `bun:"ends_at,notnull"`
	EndedAt           *time.Time `bun:"ended_at,nullzero"`
	CountdownDeadline *time.Time `bun:"countdown_deadline,nullzero"`
	LastActivityAt    time.Time  `bun:"last_activity_at,notnull"`

	FinalPrice int64  `bun:"final_price"`
	WinnerID   string `bun:"winner_id"`

	PanelChannelID string `bun:"panel_channel_id"`
	PanelMessageID string `bun:"panel_message_id"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

type Bid struct {
	bun.BaseModel `bun:"table:auction_bids,alias:ab"`

	ID         int64     `bun:"id,pk,autoincrement"`
	AuctionID  int64     `bun:"auction_id,notnull"`
	SequenceNo int64     `bun:"sequence_no,notnull"`
	BidderID   string    `bun:"bidder_id,notnull"`
	Amount     int64     `bun:"amount,notnull"`
	PlacedAt   time.Time `bun:"placed_at,notnull"`
}
