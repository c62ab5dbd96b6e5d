package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/sync/errgroup"

	"github.com/mazadhq/mazadbot/mazadbot/database"
	"github.com/mazadhq/mazadbot/mazadbot/database/models"
	"github.com/mazadhq/mazadbot/mazadbot/logger"
	"github.com/mazadhq/mazadbot/mazadbot/transport"
)

const (
	persistTimeout   = 10 * time.Second
	cooldownCacheLen = 4096
	panelColor       = 0x2b2d31
	endedColor       = 0xed4245

	defaultCommissionPct = 5
	defaultCurrencyName  = "coins"
)

// Config carries the runtime tunables for live auctions.
type Config struct {
	InactivityThreshold time.Duration
	Countdown           time.Duration
	PanelUpdateDelay    time.Duration
	PromoMinInterval    time.Duration
	BidCooldown         time.Duration
	MinBidAmount        int64
	MaxBidAmount        int64
	MonitorTick         time.Duration
}

// Result is what the command layer renders back to the invoker.
type Result struct {
	Success bool
	Message string
	Auction *models.Auction
}

type session struct {
	la    *LiveAuction
	mon   *monitor
	panel *Panel
}

// Manager owns every live auction: it opens them, routes bids, runs their
// monitors, keeps panels fresh and writes state through to storage. Storage
// is never a precondition; auction ids come from an in-memory counter
// seeded at recovery.
type Manager struct {
	cfg       Config
	store     *database.Gateway
	messenger transport.Messenger
	registry  *Registry
	cooldowns *CooldownGate
	promos    *promoPicker

	idSeq atomic.Int64

	mu       sync.Mutex
	sessions map[string]*session
}

func NewManager(cfg Config, store *database.Gateway, messenger transport.Messenger) (*Manager, error) {
	cooldowns, err := NewCooldownGate(cfg.BidCooldown, cooldownCacheLen)
	if err != nil {
		return nil, fmt.Errorf("failed to create cooldown cache: %w", err)
	}

	return &Manager{
		cfg:       cfg,
		store:     store,
		messenger: messenger,
		registry:  NewRegistry(),
		cooldowns: cooldowns,
		promos:    newPromoPicker(time.Now().UnixNano()),
		sessions:  make(map[string]*session),
	}, nil
}

// Recover seeds the id counter from storage and resumes every persisted
// live auction: registry entry, panel reattach, monitor restart.
func (m *Manager) Recover(ctx context.Context) error {
	maxID, err := m.store.MaxAuctionID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read max auction id: %w", err)
	}
	m.idSeq.Store(maxID)

	active, err := m.store.GetActiveAuctions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active auctions: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, rec := range active {
		rec := rec
		g.Go(func() error {
			bids, err := m.store.GetBids(gctx, rec.ID)
			if err != nil {
				return fmt.Errorf("failed to load bids for auction %d: %w", rec.ID, err)
			}

			la := resumeLiveAuction(rec, bids)
			if err := m.registry.Register(la); err != nil {
				// Two live rows for one guild can only come from failover
				// drift; keep the first and end the straggler.
				logger.LogError("Duplicate live auction during recovery, ending it", err,
					slog.Int64("auction_id", rec.ID))
				snap, _ := la.Finalize(time.Now())
				m.persistEnd(&snap)
				return nil
			}

			m.startSession(la)
			logger.LogSystem("Resumed live auction",
				slog.Int64("auction_id", rec.ID),
				slog.String("guild_id", rec.GuildID),
				slog.String("status", string(rec.Status)))
			return nil
		})
	}
	return g.Wait()
}

// Open starts a new auction for the guild. Exactly one can be live per
// guild; losers of a concurrent open race get ConflictError.
func (m *Manager) Open(ctx context.Context, p OpenParams) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	p.CommissionPct = m.guildInt(ctx, p.GuildID, models.SettingCommissionPct, defaultCommissionPct)
	if p.CurrencyName == "" {
		p.CurrencyName = m.guildString(ctx, p.GuildID, models.SettingCurrencyName, defaultCurrencyName)
	}

	now := time.Now()
	la := newLiveAuction(m.idSeq.Add(1), p, now)

	if err := m.registry.Register(la); err != nil {
		return nil, err
	}

	snap := la.Snapshot()
	go func() {
		pctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := m.store.CreateAuction(pctx, &snap); err != nil {
			logger.LogError("Failed to persist new auction", err,
				slog.Int64("auction_id", snap.ID))
		}
	}()

	m.startSession(la)

	return &Result{
		Success: true,
		Message: fmt.Sprintf("Auction #%d opened for **%s** — starting at %s, increments of %s.",
			snap.ID, snap.ItemName, FormatAmount(snap.StartBid), FormatAmount(snap.MinIncrement)),
		Auction: &snap,
	}, nil
}

// PlaceBid parses and applies a bid against the guild's live auction.
func (m *Manager) PlaceBid(ctx context.Context, guildID, bidderID, raw string) (*Result, error) {
	la, ok := m.registry.Get(guildID)
	if !ok {
		return nil, &StateError{Reason: "no live auction in this guild"}
	}

	amount, err := ParseAmount(raw)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	cooldownKey := guildID + ":" + bidderID
	if remaining, blocked := m.cooldowns.Check(cooldownKey, now); blocked {
		return nil, &ValidationError{
			Reason:     fmt.Sprintf("slow down — try again in %.1fs", remaining.Seconds()),
			RetryAfter: remaining,
		}
	}

	limits := Limits{MinAmount: m.cfg.MinBidAmount, MaxAmount: m.cfg.MaxBidAmount}
	basis := la.CurrentSeq()

	prev := la.Snapshot().CurrentBid
	bid, err := la.PlaceBid(bidderID, amount, basis, limits, now)
	if err != nil {
		return nil, err
	}
	m.cooldowns.Touch(cooldownKey, now)

	snap := la.Snapshot()
	m.persistBid(la, bid)
	m.refreshPanel(la)

	delta := ""
	if prev > 0 {
		delta = fmt.Sprintf(" (%s)", CompareAmounts(amount, prev))
	}
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Bid of %s accepted%s — <@%s> leads auction #%d.",
			FormatAmount(amount), delta, bidderID, snap.ID),
		Auction: &snap,
	}, nil
}

// UndoLast removes the most recent bid from the guild's live auction.
func (m *Manager) UndoLast(ctx context.Context, guildID string) (*Result, error) {
	la, ok := m.registry.Get(guildID)
	if !ok {
		return nil, &StateError{Reason: "no live auction in this guild"}
	}

	removed, err := la.UndoLast(time.Now())
	if err != nil {
		return nil, err
	}

	snap := la.Snapshot()
	go func() {
		pctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := m.store.RemoveLastBid(pctx, removed.AuctionID, removed.SequenceNo); err != nil {
			logger.LogError("Failed to remove undone bid", err,
				slog.Int64("auction_id", removed.AuctionID))
		}
		if err := m.store.UpdateAuction(pctx, &snap); err != nil {
			logger.LogError("Failed to persist auction after undo", err,
				slog.Int64("auction_id", snap.ID))
		}
	}()
	m.refreshPanel(la)

	leader := "no leading bid"
	if snap.CurrentBidder != "" {
		leader = fmt.Sprintf("<@%s> leads with %s", snap.CurrentBidder, FormatAmount(snap.CurrentBid))
	}
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Removed %s bid by <@%s> — %s.",
			FormatAmount(removed.Amount), removed.BidderID, leader),
		Auction: &snap,
	}, nil
}

// End finalizes the guild's live auction immediately.
func (m *Manager) End(ctx context.Context, guildID string) (*Result, error) {
	la, ok := m.registry.Get(guildID)
	if !ok {
		return nil, &StateError{Reason: "no live auction in this guild"}
	}

	rec, err := m.finalize(la)
	if err != nil {
		return nil, err
	}
	return &Result{
		Success: true,
		Message: m.outcomeMessage(rec),
		Auction: rec,
	}, nil
}

// AuctionStatus reports the guild's live auction and the storage health.
func (m *Manager) AuctionStatus(guildID string) *Result {
	status := m.store.Status()
	storeLine := fmt.Sprintf("Storage: %s (primary %s, %d failures, %d failovers)",
		status.State, status.Primary, status.PrimaryFailures, status.Failovers)

	la, ok := m.registry.Get(guildID)
	if !ok {
		return &Result{
			Success: true,
			Message: "No live auction in this guild.\n" + storeLine,
		}
	}

	snap := la.Snapshot()
	leader := "no bids yet"
	if snap.CurrentBidder != "" {
		leader = fmt.Sprintf("%s by <@%s>", FormatAmount(snap.CurrentBid), snap.CurrentBidder)
	}
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Auction #%d — **%s** [%s]\nLeading: %s | Bids: %d | Ends: <t:%d:R>\n%s",
			snap.ID, snap.ItemName, snap.Status, leader, snap.BidCount, snap.EndsAt.Unix(), storeLine),
		Auction: &snap,
	}
}

// History returns the guild's most recent auctions, newest first.
func (m *Manager) History(ctx context.Context, guildID string, limit int) ([]*models.Auction, error) {
	return m.store.GetRecentAuctions(ctx, guildID, limit)
}

// Bids returns the accepted bids of the guild's live auction.
func (m *Manager) Bids(guildID string) ([]*models.Bid, error) {
	la, ok := m.registry.Get(guildID)
	if !ok {
		return nil, &StateError{Reason: "no live auction in this guild"}
	}
	return la.BidsSnapshot(), nil
}

// RetryStorage probes the primary backend on demand.
func (m *Manager) RetryStorage(ctx context.Context) (database.ConnectionStatus, error) {
	return m.store.Probe(ctx)
}

// StorageStatus snapshots the gateway state.
func (m *Manager) StorageStatus() database.ConnectionStatus {
	return m.store.Status()
}

// Shutdown stops every monitor and waits for in-flight ticks.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for _, s := range sessions {
			s.mon.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logger.LogError("Shutdown timed out waiting for monitors", ctx.Err())
	}
}

func (m *Manager) startSession(la *LiveAuction) {
	snap := la.Snapshot()

	var panel *Panel
	channelID, err := snowflake.Parse(snap.PanelChannelID)
	if err != nil {
		logger.LogError("Invalid panel channel, panel disabled", err,
			slog.Int64("auction_id", snap.ID))
	} else if snap.PanelMessageID != "" {
		if msgID, err := snowflake.Parse(snap.PanelMessageID); err == nil {
			panel = ResumePanel(m.messenger, transport.MessageRef{
				ChannelID: channelID,
				MessageID: msgID,
			}, m.cfg.PanelUpdateDelay)
		}
	}
	if panel == nil && err == nil {
		panel = NewPanel(m.messenger, channelID, m.cfg.PanelUpdateDelay)
	}

	mon := newMonitor(la, monitorConfig{
		tick:                m.cfg.MonitorTick,
		inactivityThreshold: m.cfg.InactivityThreshold,
		countdown:           m.cfg.Countdown,
		promoMinInterval:    m.cfg.PromoMinInterval,
	})
	mon.onCountdown = m.handleCountdown
	mon.onFinalize = func(la *LiveAuction) { _, _ = m.finalize(la) }
	mon.onPromo = m.handlePromo

	m.mu.Lock()
	m.sessions[snap.GuildID] = &session{la: la, mon: mon, panel: panel}
	m.mu.Unlock()

	m.refreshPanel(la)
	go mon.run()
}

func (m *Manager) session(guildID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[guildID]
}

func (m *Manager) handleCountdown(la *LiveAuction, deadline time.Time) {
	snap := la.Snapshot()
	logger.LogMonitor("Auction entering countdown",
		slog.Int64("auction_id", snap.ID),
		slog.Time("deadline", deadline))

	m.refreshPanel(la)
	m.persistSnapshot(la)

	if sess := m.session(snap.GuildID); sess != nil && sess.panel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		secs := int(m.cfg.Countdown.Round(time.Second).Seconds())
		_, err := m.messenger.Send(ctx, sess.panel.channelID, transport.Payload{
			Content: fmt.Sprintf("⏰ No new bids on **%s** — closing in %d seconds!", snap.ItemName, secs),
		})
		if err != nil {
			logger.LogError("Failed to send countdown notice", err,
				slog.Int64("auction_id", snap.ID))
		}
	}
}

func (m *Manager) handlePromo(la *LiveAuction) {
	snap := la.Snapshot()
	sess := m.session(snap.GuildID)
	if sess == nil || sess.panel == nil {
		return
	}

	bidText := "no bids yet"
	if snap.CurrentBid > 0 {
		bidText = FormatAmount(snap.CurrentBid)
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	_, err := m.messenger.Send(ctx, sess.panel.channelID, transport.Payload{
		Content: m.promos.Pick(snap.ItemName, bidText),
	})
	if err != nil {
		logger.LogError("Failed to send promo", err,
			slog.Int64("auction_id", snap.ID))
	}
}

// finalize drives the terminal transition: freeze the outcome, close the
// panel with a summary, persist, release the guild slot. StateError means
// another path already ended it.
func (m *Manager) finalize(la *LiveAuction) (*models.Auction, error) {
	rec, err := la.Finalize(time.Now())
	if err != nil {
		return nil, err
	}

	logger.LogMonitor("Auction ended",
		slog.Int64("auction_id", rec.ID),
		slog.String("winner", rec.WinnerID),
		slog.Int64("final_price", rec.FinalPrice))

	guildID := rec.GuildID
	sess := m.session(guildID)

	if sess != nil && sess.panel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := sess.panel.Finalize(ctx, m.summaryPayload(&rec)); err != nil {
			logger.LogError("Failed to finalize panel", err,
				slog.Int64("auction_id", rec.ID))
		}
		cancel()
	}

	m.logOutcome(&rec)
	m.persistEnd(&rec)
	m.registry.Remove(guildID, rec.ID)

	m.mu.Lock()
	if s, ok := m.sessions[guildID]; ok && s.la == la {
		delete(m.sessions, guildID)
	}
	m.mu.Unlock()

	// The monitor exits on its own once it sees ENDED; when finalize came
	// from the monitor itself, waiting here would deadlock.
	if sess != nil {
		go sess.mon.Stop()
	}

	return &rec, nil
}

// logOutcome posts the auction result to the guild's configured log
// channel, if one is set.
func (m *Manager) logOutcome(rec *models.Auction) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	raw, err := m.store.GetSetting(ctx, rec.GuildID, models.SettingLogChannel)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			logger.LogError("Failed to read log channel setting", err,
				slog.Int64("auction_id", rec.ID))
		}
		return
	}
	channelID, err := snowflake.Parse(raw)
	if err != nil {
		return
	}

	if _, err := m.messenger.Send(ctx, channelID, transport.Payload{
		Content: m.outcomeMessage(rec),
	}); err != nil {
		logger.LogError("Failed to post auction outcome log", err,
			slog.Int64("auction_id", rec.ID))
	}
}

func (m *Manager) refreshPanel(la *LiveAuction) {
	snap := la.Snapshot()
	if sess := m.session(snap.GuildID); sess != nil && sess.panel != nil {
		sess.panel.Update(m.panelPayload(&snap))
	}
}

func (m *Manager) persistBid(la *LiveAuction, bid *models.Bid) {
	bidCopy := *bid
	snap := la.Snapshot()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := m.store.AddBid(ctx, &bidCopy); err != nil {
			logger.LogError("Failed to persist bid", err,
				slog.Int64("auction_id", bidCopy.AuctionID),
				slog.Int64("sequence_no", bidCopy.SequenceNo))
		}
		if err := m.store.UpdateAuction(ctx, &snap); err != nil {
			logger.LogError("Failed to persist auction after bid", err,
				slog.Int64("auction_id", snap.ID))
		}
	}()
}

func (m *Manager) persistSnapshot(la *LiveAuction) {
	if sess := m.session(la.GuildID()); sess != nil && sess.panel != nil {
		if ref := sess.panel.Ref(); !ref.Zero() {
			la.setPanelRef(ref.ChannelID.String(), ref.MessageID.String())
		}
	}
	snap := la.Snapshot()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := m.store.UpdateAuction(ctx, &snap); err != nil {
			logger.LogError("Failed to persist auction snapshot", err,
				slog.Int64("auction_id", snap.ID))
		}
	}()
}

func (m *Manager) persistEnd(rec *models.Auction) {
	recCopy := *rec
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := m.store.EndAuction(ctx, &recCopy); err != nil {
			logger.LogError("Failed to persist ended auction", err,
				slog.Int64("auction_id", recCopy.ID))
		}
	}()
}

func (m *Manager) panelPayload(snap *models.Auction) transport.Payload {
	leader := "No bids yet — be the first!"
	if snap.CurrentBidder != "" {
		leader = fmt.Sprintf("%s by <@%s>", FormatAmount(snap.CurrentBid), snap.CurrentBidder)
	}

	fields := []transport.Field{
		{Name: "Leading Bid", Value: leader, Inline: true},
		{Name: "Min Increment", Value: FormatAmount(snap.MinIncrement), Inline: true},
		{Name: "Bids", Value: strconv.Itoa(snap.BidCount), Inline: true},
	}

	description := fmt.Sprintf("Bidding is open until <t:%d:R>.", snap.EndsAt.Unix())
	color := panelColor
	if snap.Status == models.AuctionStatusCountdown && snap.CountdownDeadline != nil {
		description = fmt.Sprintf("⏰ Closing <t:%d:R> unless someone bids!", snap.CountdownDeadline.Unix())
	}

	return transport.Payload{
		Title:       fmt.Sprintf("🏛️ Auction #%d — %s", snap.ID, snap.ItemName),
		Description: description,
		Fields:      fields,
		Footer:      fmt.Sprintf("Starting bid %s %s", FormatAmount(snap.StartBid), snap.CurrencyName),
		Color:       color,
	}
}

func (m *Manager) summaryPayload(rec *models.Auction) transport.Payload {
	if rec.WinnerID == "" {
		return transport.Payload{
			Title:       fmt.Sprintf("🏛️ Auction #%d Closed", rec.ID),
			Description: fmt.Sprintf("**%s** received no bids.", rec.ItemName),
			Color:       endedColor,
		}
	}

	commission := Commission(rec.FinalPrice, rec.CommissionPct)
	return transport.Payload{
		Title:       fmt.Sprintf("🏛️ Auction #%d Sold", rec.ID),
		Description: fmt.Sprintf("**%s** goes to <@%s> for %s %s!", rec.ItemName, rec.WinnerID, FormatAmount(rec.FinalPrice), rec.CurrencyName),
		Fields: []transport.Field{
			{Name: "Final Price", Value: FormatAmount(rec.FinalPrice), Inline: true},
			{Name: "Commission", Value: fmt.Sprintf("%s (%d%%)", FormatAmount(commission), rec.CommissionPct), Inline: true},
			{Name: "Bids", Value: strconv.Itoa(rec.BidCount), Inline: true},
		},
		Color: endedColor,
	}
}

func (m *Manager) outcomeMessage(rec *models.Auction) string {
	if rec.WinnerID == "" {
		return fmt.Sprintf("Auction #%d for **%s** closed with no bids.", rec.ID, rec.ItemName)
	}
	return fmt.Sprintf("Auction #%d for **%s** sold to <@%s> for %s (commission %s).",
		rec.ID, rec.ItemName, rec.WinnerID, FormatAmount(rec.FinalPrice),
		FormatAmount(Commission(rec.FinalPrice, rec.CommissionPct)))
}

func (m *Manager) guildInt(ctx context.Context, guildID, key string, fallback int64) int64 {
	raw, err := m.store.GetSetting(ctx, guildID, key)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			logger.LogError("Failed to read guild setting", err, slog.String("key", key))
		}
		return fallback
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func (m *Manager) guildString(ctx context.Context, guildID, key, fallback string) string {
	raw, err := m.store.GetSetting(ctx, guildID, key)
	if err != nil || raw == "" {
		return fallback
	}
	return raw
}
