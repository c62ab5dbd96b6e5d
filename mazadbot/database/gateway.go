package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mazadhq/mazadbot/mazadbot/database/models"
)

const (
	maxWriteAttempts = 3
	baseBackoff      = 100 * time.Millisecond
	probeInterval    = 30 * time.Second
)

type ConnectionState string

const (
	StateActive   ConnectionState = "ACTIVE"
	StateDegraded ConnectionState = "DEGRADED"
)

// StorageError wraps a backend failure that survived retry and failover.
type StorageError struct {
	Op      string
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed on %s: %v", e.Op, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ConnectionStatus is a point-in-time snapshot for /auction status and
// /db-retry output.
type ConnectionStatus struct {
	State           ConnectionState
	Primary         string
	Secondary       string
	PrimaryFailures int64
	Failovers       int64
	ProbeAttempts   int64
	DegradedSince   time.Time
}

// Gateway routes storage operations to the primary backend, retrying with
// exponential backoff, and fails over to the embedded secondary when the
// primary is exhausted. While degraded, a probe loop tries to win the
// primary back.
type Gateway struct {
	primary   Backend
	secondary Backend

	mu              sync.RWMutex
	degraded        bool
	degradedSince   time.Time
	primaryFailures int64
	failovers       int64
	probeAttempts   int64

	probeStop chan struct{}
	probeOnce sync.Once
}

func NewGateway(primary, secondary Backend) *Gateway {
	return &Gateway{
		primary:   primary,
		secondary: secondary,
		probeStop: make(chan struct{}),
	}
}

// Init prepares schema on both backends so failover never has to create
// tables mid-flight.
func (g *Gateway) Init(ctx context.Context) error {
	if err := g.secondary.Init(ctx); err != nil {
		return fmt.Errorf("secondary init failed: %w", err)
	}
	if err := g.primary.Init(ctx); err != nil {
		slog.Warn("Primary init failed, starting degraded",
			slog.String("type", "db"),
			slog.Any("error", err),
		)
		g.markDegraded(err)
		return nil
	}
	return nil
}

// execute runs fn against the current backend. On the primary it retries
// maxWriteAttempts times with doubling backoff before failing over; on the
// secondary a failure is final.
func (g *Gateway) execute(ctx context.Context, op string, fn func(Backend) error) error {
	if g.isDegraded() {
		if err := fn(g.secondary); err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrNotFound
			}
			return &StorageError{Op: op, Backend: g.secondary.Name(), Err: err}
		}
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		if attempt > 0 {
			backoff := baseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return &StorageError{Op: op, Backend: g.primary.Name(), Err: ctx.Err()}
			}
		}

		if lastErr = fn(g.primary); lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrNotFound) {
			return ErrNotFound
		}

		g.mu.Lock()
		g.primaryFailures++
		g.mu.Unlock()

		slog.Warn("Primary storage attempt failed",
			slog.String("type", "db"),
			slog.String("op", op),
			slog.Int("attempt", attempt+1),
			slog.Any("error", lastErr),
		)
	}

	g.markDegraded(lastErr)

	if err := fn(g.secondary); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return &StorageError{Op: op, Backend: g.secondary.Name(), Err: err}
	}
	return nil
}

func (g *Gateway) isDegraded() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.degraded
}

func (g *Gateway) markDegraded(cause error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.degraded {
		return
	}
	g.degraded = true
	g.degradedSince = time.Now()
	g.failovers++
	slog.Error("Primary storage exhausted, failing over to embedded store",
		slog.String("type", "db"),
		slog.String("secondary", g.secondary.Name()),
		slog.Any("error", cause),
	)
}

// Probe pings the primary and restores ACTIVE routing on success. Safe to
// call at any time; a probe while ACTIVE is a cheap health check.
func (g *Gateway) Probe(ctx context.Context) (ConnectionStatus, error) {
	g.mu.Lock()
	g.probeAttempts++
	g.mu.Unlock()

	err := g.primary.Ping(ctx)
	if err == nil {
		g.mu.Lock()
		wasDegraded := g.degraded
		g.degraded = false
		g.degradedSince = time.Time{}
		g.mu.Unlock()

		if wasDegraded {
			slog.Info("Primary storage recovered",
				slog.String("type", "db"),
				slog.String("primary", g.primary.Name()),
			)
		}
		return g.Status(), nil
	}

	g.mu.Lock()
	if !g.degraded {
		g.degraded = true
		g.degradedSince = time.Now()
		g.failovers++
	}
	g.mu.Unlock()

	return g.Status(), fmt.Errorf("primary probe failed: %w", err)
}

// StartProbeLoop probes the primary periodically while degraded. Returns a
// stop function.
func (g *Gateway) StartProbeLoop(interval time.Duration) func() {
	if interval <= 0 {
		interval = probeInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if g.isDegraded() {
					ctx, cancel := context.WithTimeout(context.Background(), defaultConnTimeout)
					_, _ = g.Probe(ctx)
					cancel()
				}
			case <-g.probeStop:
				return
			}
		}
	}()
	return func() {
		g.probeOnce.Do(func() { close(g.probeStop) })
	}
}

func (g *Gateway) Status() ConnectionStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()

	state := StateActive
	if g.degraded {
		state = StateDegraded
	}
	return ConnectionStatus{
		State:           state,
		Primary:         g.primary.Name(),
		Secondary:       g.secondary.Name(),
		PrimaryFailures: g.primaryFailures,
		Failovers:       g.failovers,
		ProbeAttempts:   g.probeAttempts,
		DegradedSince:   g.degradedSince,
	}
}

func (g *Gateway) CreateAuction(ctx context.Context, a *models.Auction) error {
	return g.execute(ctx, "create_auction", func(b Backend) error {
		return b.CreateAuction(ctx, a)
	})
}

func (g *Gateway) UpdateAuction(ctx context.Context, a *models.Auction) error {
	return g.execute(ctx, "update_auction", func(b Backend) error {
		return b.UpdateAuction(ctx, a)
	})
}

// EndAuction persists the terminal snapshot of an auction.
func (g *Gateway) EndAuction(ctx context.Context, a *models.Auction) error {
	return g.execute(ctx, "end_auction", func(b Backend) error {
		return b.UpdateAuction(ctx, a)
	})
}

func (g *Gateway) GetAuction(ctx context.Context, id int64) (*models.Auction, error) {
	var out *models.Auction
	err := g.execute(ctx, "get_auction", func(b Backend) error {
		var err error
		out, err = b.GetAuction(ctx, id)
		return err
	})
	return out, err
}

func (g *Gateway) GetActiveAuction(ctx context.Context, guildID string) (*models.Auction, error) {
	var out *models.Auction
	err := g.execute(ctx, "get_active_auction", func(b Backend) error {
		var err error
		out, err = b.GetActiveAuction(ctx, guildID)
		return err
	})
	return out, err
}

func (g *Gateway) GetActiveAuctions(ctx context.Context) ([]*models.Auction, error) {
	var out []*models.Auction
	err := g.execute(ctx, "get_active_auctions", func(b Backend) error {
		var err error
		out, err = b.GetActiveAuctions(ctx)
		return err
	})
	return out, err
}

func (g *Gateway) GetRecentAuctions(ctx context.Context, guildID string, limit int) ([]*models.Auction, error) {
	var out []*models.Auction
	err := g.execute(ctx, "get_recent_auctions", func(b Backend) error {
		var err error
		out, err = b.GetRecentAuctions(ctx, guildID, limit)
		return err
	})
	return out, err
}

func (g *Gateway) MaxAuctionID(ctx context.Context) (int64, error) {
	var out int64
	err := g.execute(ctx, "max_auction_id", func(b Backend) error {
		var err error
		out, err = b.MaxAuctionID(ctx)
		return err
	})
	return out, err
}

func (g *Gateway) AddBid(ctx context.Context, bid *models.Bid) error {
	return g.execute(ctx, "add_bid", func(b Backend) error {
		return b.AddBid(ctx, bid)
	})
}

func (g *Gateway) RemoveLastBid(ctx context.Context, auctionID, sequenceNo int64) error {
	return g.execute(ctx, "remove_last_bid", func(b Backend) error {
		return b.RemoveBid(ctx, auctionID, sequenceNo)
	})
}

func (g *Gateway) GetBids(ctx context.Context, auctionID int64) ([]*models.Bid, error) {
	var out []*models.Bid
	err := g.execute(ctx, "get_bids", func(b Backend) error {
		var err error
		out, err = b.GetBids(ctx, auctionID)
		return err
	})
	return out, err
}

func (g *Gateway) GetSetting(ctx context.Context, guildID, key string) (string, error) {
	var out string
	err := g.execute(ctx, "get_setting", func(b Backend) error {
		var err error
		out, err = b.GetSetting(ctx, guildID, key)
		return err
	})
	return out, err
}

func (g *Gateway) SetSetting(ctx context.Context, guildID, key, value string) error {
	return g.execute(ctx, "set_setting", func(b Backend) error {
		return b.SetSetting(ctx, guildID, key, value)
	})
}

func (g *Gateway) AllSettings(ctx context.Context, guildID string) (map[string]string, error) {
	var out map[string]string
	err := g.execute(ctx, "all_settings", func(b Backend) error {
		var err error
		out, err = b.AllSettings(ctx, guildID)
		return err
	})
	return out, err
}

func (g *Gateway) Close() {
	if err := g.primary.Close(); err != nil {
		slog.Warn("Failed to close primary backend", slog.Any("error", err))
	}
	if err := g.secondary.Close(); err != nil {
		slog.Warn("Failed to close secondary backend", slog.Any("error", err))
	}
}
