package auction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mazadhq/mazadbot/mazadbot/database"
	"github.com/mazadhq/mazadbot/mazadbot/database/models"
	"github.com/stretchr/testify/require"
)

// memBackend is an always-healthy in-memory store for manager tests.
type memBackend struct {
	mu       sync.Mutex
	auctions map[int64]*models.Auction
	bids     []*models.Bid
	settings map[string]string
}

func newMemBackend() *memBackend {
	return &memBackend{
		auctions: make(map[int64]*models.Auction),
		settings: make(map[string]string),
	}
}

func (m *memBackend) Name() string               { return "mem" }
func (m *memBackend) Ping(context.Context) error { return nil }
func (m *memBackend) Init(context.Context) error { return nil }
func (m *memBackend) Close() error               { return nil }

func (m *memBackend) CreateAuction(_ context.Context, a *models.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.auctions[a.ID] = &cp
	return nil
}

func (m *memBackend) UpdateAuction(_ context.Context, a *models.Auction) error {
	return m.CreateAuction(nil, a)
}

func (m *memBackend) GetAuction(_ context.Context, id int64) (*models.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memBackend) GetActiveAuction(_ context.Context, guildID string) (*models.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.auctions {
		if a.GuildID == guildID && a.Status.Live() {
			cp := *a
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *memBackend) GetActiveAuctions(context.Context) ([]*models.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Auction
	for _, a := range m.auctions {
		if a.Status.Live() {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memBackend) GetRecentAuctions(context.Context, string, int) ([]*models.Auction, error) {
	return nil, nil
}

func (m *memBackend) MaxAuctionID(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var maxID int64
	for id := range m.auctions {
		if id > maxID {
			maxID = id
		}
	}
	return maxID, nil
}

func (m *memBackend) AddBid(_ context.Context, b *models.Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.bids = append(m.bids, &cp)
	return nil
}

func (m *memBackend) RemoveBid(_ context.Context, auctionID, sequenceNo int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, b := range m.bids {
		if b.AuctionID == auctionID && b.SequenceNo == sequenceNo {
			m.bids = append(m.bids[:i], m.bids[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memBackend) GetBids(_ context.Context, auctionID int64) ([]*models.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Bid
	for _, b := range m.bids {
		if b.AuctionID == auctionID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memBackend) GetSetting(_ context.Context, guildID, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.settings[guildID+"/"+key]
	if !ok {
		return "", database.ErrNotFound
	}
	return v, nil
}

func (m *memBackend) SetSetting(_ context.Context, guildID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[guildID+"/"+key] = value
	return nil
}

func (m *memBackend) AllSettings(context.Context, string) (map[string]string, error) {
	return map[string]string{}, nil
}

func newTestManager(t *testing.T) (*Manager, *fakeMessenger, *database.Gateway) {
	t.Helper()

	store := database.NewGateway(newMemBackend(), newMemBackend())
	msgr := newFakeMessenger()

	mgr, err := NewManager(Config{
		InactivityThreshold: time.Hour,
		Countdown:           3 * time.Second,
		PanelUpdateDelay:    10 * time.Millisecond,
		PromoMinInterval:    time.Hour,
		BidCooldown:         0,
		MinBidAmount:        1_000,
		MaxBidAmount:        1_000_000_000_000,
		MonitorTick:         time.Hour,
	}, store, msgr)
	require.NoError(t, err)

	return mgr, msgr, store
}

func TestManagerEndPostsOutcomeToLogChannel(t *testing.T) {
	mgr, msgr, store := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, store.SetSetting(ctx, "guild-1", models.SettingLogChannel, "555"))

	_, err := mgr.Open(ctx, testParams())
	require.NoError(t, err)

	_, err = mgr.PlaceBid(ctx, "guild-1", "alice", "250k")
	require.NoError(t, err)

	result, err := mgr.End(ctx, "guild-1")
	require.NoError(t, err)
	require.True(t, result.Success)

	logged := msgr.sendsTo(555)
	require.Len(t, logged, 1, "finalize posts exactly one outcome log")
	require.Contains(t, logged[0].Content, "sold to <@alice>")
	require.Contains(t, logged[0].Content, "250K")
}

func TestManagerEndWithoutLogChannelSkipsLog(t *testing.T) {
	mgr, msgr, _ := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.Open(ctx, testParams())
	require.NoError(t, err)

	result, err := mgr.End(ctx, "guild-1")
	require.NoError(t, err)
	require.Contains(t, result.Message, "no bids")

	require.Empty(t, msgr.sendsTo(555), "no log channel configured, no log sent")
	require.NotEmpty(t, msgr.sendsTo(100), "panel summary still goes to the auction channel")
}
