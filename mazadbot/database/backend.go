package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mazadhq/mazadbot/mazadbot/database/models"
	"github.com/uptrace/bun"
)

// ErrNotFound is returned when a lookup matches no row on either backend.
var ErrNotFound = errors.New("not found")

// Backend is the storage contract both the networked primary and the
// embedded secondary satisfy. The gateway treats them interchangeably.
type Backend interface {
	Name() string
	Ping(ctx context.Context) error
	Init(ctx context.Context) error

	CreateAuction(ctx context.Context, a *models.Auction) error
	UpdateAuction(ctx context.Context, a *models.Auction) error
	GetAuction(ctx context.Context, id int64) (*models.Auction, error)
	GetActiveAuction(ctx context.Context, guildID string) (*models.Auction, error)
	GetActiveAuctions(ctx context.Context) ([]*models.Auction, error)
	GetRecentAuctions(ctx context.Context, guildID string, limit int) ([]*models.Auction, error)
	MaxAuctionID(ctx context.Context) (int64, error)

	AddBid(ctx context.Context, b *models.Bid) error
	RemoveBid(ctx context.Context, auctionID, sequenceNo int64) error
	GetBids(ctx context.Context, auctionID int64) ([]*models.Bid, error)

	GetSetting(ctx context.Context, guildID, key string) (string, error)
	SetSetting(ctx context.Context, guildID, key, value string) error
	AllSettings(ctx context.Context, guildID string) (map[string]string, error)

	Close() error
}

// bunBackend implements Backend over a bun.DB. Both concrete backends embed
// it; only connection setup and Ping differ per dialect.
type bunBackend struct {
	name string
	db   *bun.DB
}

func (b *bunBackend) Name() string { return b.name }

func (b *bunBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *bunBackend) Init(ctx context.Context) error {
	tables := []interface{}{
		(*models.Auction)(nil),
		(*models.Bid)(nil),
		(*models.Setting)(nil),
	}

	for _, model := range tables {
		if _, err := b.db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_auctions_guild_status ON auctions(guild_id, status);",
		"CREATE INDEX IF NOT EXISTS idx_auctions_recent ON auctions(guild_id, started_at);",
		"CREATE INDEX IF NOT EXISTS idx_auction_bids_auction ON auction_bids(auction_id, sequence_no);",
	}

	for _, idx := range indexes {
		if _, err := b.execWithLog(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

func (b *bunBackend) execWithLog(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	result, err := b.db.ExecContext(ctx, query, args...)
	duration := time.Since(start)

	if err != nil {
		slog.Error("Query failed",
			slog.String("type", "db"),
			slog.String("backend", b.name),
			slog.String("query", query),
			slog.Duration("took", duration),
			slog.Any("error", err),
		)
		return result, err
	}

	slog.Debug("Query executed",
		slog.String("type", "db"),
		slog.String("backend", b.name),
		slog.String("query", query),
		slog.Duration("took", duration),
	)
	return result, nil
}

func (b *bunBackend) CreateAuction(ctx context.Context, a *models.Auction) error {
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now
	_, err := b.db.NewInsert().Model(a).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create auction: %w", err)
	}
	return nil
}

func (b *bunBackend) UpdateAuction(ctx context.Context, a *models.Auction) error {
	a.UpdatedAt = time.Now()
	res, err := b.db.NewUpdate().
		Model(a).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update auction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Recovery after failover: the row may only exist on the other
		// backend. Upsert so state converges.
		if _, err := b.db.NewInsert().Model(a).Exec(ctx); err != nil {
			return fmt.Errorf("failed to upsert auction: %w", err)
		}
	}
	return nil
}

func (b *bunBackend) GetAuction(ctx context.Context, id int64) (*models.Auction, error) {
	auction := new(models.Auction)
	err := b.db.NewSelect().
		Model(auction).
		Where("a.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}
	return auction, nil
}

func (b *bunBackend) GetActiveAuction(ctx context.Context, guildID string) (*models.Auction, error) {
	auction := new(models.Auction)
	err := b.db.NewSelect().
		Model(auction).
		Where("a.guild_id = ?", guildID).
		Where("a.status IN (?, ?)", models.AuctionStatusOpen, models.AuctionStatusCountdown).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active auction: %w", err)
	}
	return auction, nil
}

func (b *bunBackend) GetActiveAuctions(ctx context.Context) ([]*models.Auction, error) {
	var auctions []*models.Auction
	err := b.db.NewSelect().
		Model(&auctions).
		Where("a.status IN (?, ?)", models.AuctionStatusOpen, models.AuctionStatusCountdown).
		Order("a.started_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get active auctions: %w", err)
	}
	return auctions, nil
}

func (b *bunBackend) GetRecentAuctions(ctx context.Context, guildID string, limit int) ([]*models.Auction, error) {
	var auctions []*models.Auction
	err := b.db.NewSelect().
		Model(&auctions).
		Where("a.guild_id = ?", guildID).
		Order("a.started_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent auctions: %w", err)
	}
	return auctions, nil
}

func (b *bunBackend) MaxAuctionID(ctx context.Context) (int64, error) {
	var maxID sql.NullInt64
	err := b.db.NewSelect().
		Model((*models.Auction)(nil)).
		ColumnExpr("MAX(a.id)").
		Scan(ctx, &maxID)
	if err != nil {
		return 0, fmt.Errorf("failed to get max auction id: %w", err)
	}
	return maxID.Int64, nil
}

func (b *bunBackend) AddBid(ctx context.Context, bid *models.Bid) error {
	_, err := b.db.NewInsert().Model(bid).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to add bid: %w", err)
	}
	return nil
}

func (b *bunBackend) RemoveBid(ctx context.Context, auctionID, sequenceNo int64) error {
	_, err := b.db.NewDelete().
		Model((*models.Bid)(nil)).
		Where("auction_id = ?", auctionID).
		Where("sequence_no = ?", sequenceNo).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove bid: %w", err)
	}
	return nil
}

func (b *bunBackend) GetBids(ctx context.Context, auctionID int64) ([]*models.Bid, error) {
	var bids []*models.Bid
	err := b.db.NewSelect().
		Model(&bids).
		Where("ab.auction_id = ?", auctionID).
		Order("ab.sequence_no ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get bids: %w", err)
	}
	return bids, nil
}

func (b *bunBackend) GetSetting(ctx context.Context, guildID, key string) (string, error) {
	setting := new(models.Setting)
	err := b.db.NewSelect().
		Model(setting).
		Where("gs.guild_id = ?", guildID).
		Where("gs.key = ?", key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return setting.Value, nil
}

func (b *bunBackend) SetSetting(ctx context.Context, guildID, key, value string) error {
	setting := &models.Setting{
		GuildID:   guildID,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	_, err := b.db.NewInsert().
		Model(setting).
		On("CONFLICT (guild_id, key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

func (b *bunBackend) AllSettings(ctx context.Context, guildID string) (map[string]string, error) {
	var settings []*models.Setting
	err := b.db.NewSelect().
		Model(&settings).
		Where("gs.guild_id = ?", guildID).
		Order("gs.key ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	out := make(map[string]string, len(settings))
	for _, s := range settings {
		out[s.Key] = s.Value
	}
	return out, nil
}

func (b *bunBackend) Close() error {
	return b.db.Close()
}
