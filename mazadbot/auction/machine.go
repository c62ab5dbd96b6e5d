package auction

import (
	"fmt"
	"sync"
	"time"

	"github.com/mazadhq/mazadbot/mazadbot/database/models"
)

const (
	minDurationMinutes = 1
	maxDurationMinutes = 1440
)

// OpenParams are the caller-supplied fields of a new auction.
type OpenParams struct {
	GuildID        string
	ItemName       string
	StartBid       int64
	MinIncrement   int64
	DurationMin    int
	CommissionPct  int64
	CurrencyName   string
	PanelChannelID string
}

func (p OpenParams) validate() error {
	if p.ItemName == "" {
		return &ValidationError{Reason: "item name is required"}
	}
	if p.StartBid <= 0 {
		return &ValidationError{Reason: "start bid must be positive"}
	}
	if p.MinIncrement <= 0 {
		return &ValidationError{Reason: "minimum increment must be positive"}
	}
	if p.DurationMin < minDurationMinutes || p.DurationMin > maxDurationMinutes {
		return &ValidationError{
			Reason: fmt.Sprintf("duration must be between %d and %d minutes", minDurationMinutes, maxDurationMinutes),
		}
	}
	return nil
}

// LiveAuction is the in-memory authority for one running auction. Every
// mutation happens under mu; persistence trails behind and never gates a
// transition.
type LiveAuction struct {
	mu          sync.Mutex
	rec         models.Auction
	bids        []*models.Bid
	nextSeq     int64
	lastPromoAt time.Time
}

func newLiveAuction(id int64, p OpenParams, now time.Time) *LiveAuction {
	return &LiveAuction{
		rec: models.Auction{
			ID:             id,
			GuildID:        p.GuildID,
			ItemName:       p.ItemName,
			Status:         models.AuctionStatusOpen,
			StartBid:       p.StartBid,
			MinIncrement:   p.MinIncrement,
			CurrentBid:     0,
			CommissionPct:  p.CommissionPct,
			CurrencyName:   p.CurrencyName,
			StartedAt:      now,
			EndsAt:         now.Add(time.Duration(p.DurationMin) * time.Minute),
			LastActivityAt: now,
			PanelChannelID: p.PanelChannelID,
		},
		nextSeq: 1,
	}
}

// resumeLiveAuction rebuilds the in-memory state from persisted rows. The
// bid rows are the authority for the leading bid: auction-row writes are
// async and can land out of order, so CurrentBid, CurrentBidder and BidCount
// are recomputed rather than trusted.
func resumeLiveAuction(rec *models.Auction, bids []*models.Bid) *LiveAuction {
	r := *rec
	nextSeq := int64(1)
	var last *models.Bid
	for _, b := range bids {
		if b.SequenceNo >= nextSeq {
			nextSeq = b.SequenceNo + 1
			last = b
		}
	}

	if last != nil {
		r.CurrentBid = last.Amount
		r.CurrentBidder = last.BidderID
	} else {
		r.CurrentBid = 0
		r.CurrentBidder = ""
	}
	r.BidCount = len(bids)

	return &LiveAuction{
		rec:     r,
		bids:    append([]*models.Bid(nil), bids...),
		nextSeq: nextSeq,
	}
}

func (la *LiveAuction) ID() int64 {
	la.mu.Lock()
	defer la.mu.Unlock()
	return la.rec.ID
}

func (la *LiveAuction) GuildID() string {
	la.mu.Lock()
	defer la.mu.Unlock()
	return la.rec.GuildID
}

// Snapshot copies the record so callers can render or persist without
// holding the lock.
func (la *LiveAuction) Snapshot() models.Auction {
	la.mu.Lock()
	defer la.mu.Unlock()
	return la.rec
}

// BidsSnapshot copies the accepted-bid history in sequence order.
func (la *LiveAuction) BidsSnapshot() []*models.Bid {
	la.mu.Lock()
	defer la.mu.Unlock()
	out := make([]*models.Bid, len(la.bids))
	for i, b := range la.bids {
		cp := *b
		out[i] = &cp
	}
	return out
}

// CurrentSeq returns the sequence number of the last accepted bid, 0 when
// no bid has been accepted. Callers pass it back to PlaceBid as the basis
// for conflict detection.
func (la *LiveAuction) CurrentSeq() int64 {
	la.mu.Lock()
	defer la.mu.Unlock()
	return la.nextSeq - 1
}

// minValidBid is the lowest acceptable next bid. Callers must hold mu.
func (la *LiveAuction) minValidBid() int64 {
	if la.rec.CurrentBid == 0 {
		return la.rec.StartBid
	}
	return la.rec.CurrentBid + la.rec.MinIncrement
}

// PlaceBid validates and applies a bid atomically. basisSeq is the bid
// sequence the caller observed before submitting; when validation fails
// because the price moved past that basis, the caller lost a race and gets
// a ConcurrencyConflict instead of a plain rejection. A bid during
// COUNTDOWN reverts the auction to OPEN.
func (la *LiveAuction) PlaceBid(bidderID string, amount int64, basisSeq int64, limits Limits, now time.Time) (*models.Bid, error) {
	la.mu.Lock()
	defer la.mu.Unlock()

	if !la.rec.Status.Live() {
		return nil, &StateError{Reason: "auction has ended"}
	}
	if la.rec.CurrentBidder == bidderID && la.rec.CurrentBidder != "" {
		return nil, &StateError{Reason: "you are already the highest bidder"}
	}
	if err := ValidateAmount(amount, limits); err != nil {
		return nil, err
	}

	if min := la.minValidBid(); amount < min {
		if la.nextSeq-1 > basisSeq {
			return nil, &ConcurrencyConflict{
				LeadingBid:    la.rec.CurrentBid,
				LeadingBidder: la.rec.CurrentBidder,
			}
		}
		return nil, &ValidationError{
			Reason: fmt.Sprintf("bid must be at least %s", FormatAmount(min)),
		}
	}

	bid := &models.Bid{
		AuctionID:  la.rec.ID,
		SequenceNo: la.nextSeq,
		BidderID:   bidderID,
		Amount:     amount,
		PlacedAt:   now,
	}
	la.nextSeq++
	la.bids = append(la.bids, bid)

	la.rec.CurrentBid = amount
	la.rec.CurrentBidder = bidderID
	la.rec.BidCount++
	la.rec.LastActivityAt = now

	if la.rec.Status == models.AuctionStatusCountdown {
		la.rec.Status = models.AuctionStatusOpen
		la.rec.CountdownDeadline = nil
	}

	return bid, nil
}

// UndoLast removes the most recent bid and restores the previous leader.
// The sequence counter never moves backwards, so a bid accepted after an
// undo still gets a fresh sequence number.
func (la *LiveAuction) UndoLast(now time.Time) (*models.Bid, error) {
	la.mu.Lock()
	defer la.mu.Unlock()

	if !la.rec.Status.Live() {
		return nil, &StateError{Reason: "auction has ended"}
	}
	if len(la.bids) == 0 {
		return nil, &StateError{Reason: "no bids to undo"}
	}

	removed := la.bids[len(la.bids)-1]
	la.bids = la.bids[:len(la.bids)-1]

	if len(la.bids) == 0 {
		la.rec.CurrentBid = 0
		la.rec.CurrentBidder = ""
	} else {
		prev := la.bids[len(la.bids)-1]
		la.rec.CurrentBid = prev.Amount
		la.rec.CurrentBidder = prev.BidderID
	}
	la.rec.BidCount = len(la.bids)
	la.rec.LastActivityAt = now

	if la.rec.Status == models.AuctionStatusCountdown {
		la.rec.Status = models.AuctionStatusOpen
		la.rec.CountdownDeadline = nil
	}

	return removed, nil
}

// BeginCountdown moves OPEN to COUNTDOWN when the auction has been idle at
// least threshold. Returns the deadline and true on transition.
func (la *LiveAuction) BeginCountdown(threshold, countdown time.Duration, now time.Time) (time.Time, bool) {
	la.mu.Lock()
	defer la.mu.Unlock()

	if la.rec.Status != models.AuctionStatusOpen {
		return time.Time{}, false
	}
	if now.Sub(la.rec.LastActivityAt) < threshold {
		return time.Time{}, false
	}

	deadline := now.Add(countdown)
	la.rec.Status = models.AuctionStatusCountdown
	la.rec.CountdownDeadline = &deadline
	return deadline, true
}

// CountdownDue reports whether the countdown deadline has passed.
func (la *LiveAuction) CountdownDue(now time.Time) bool {
	la.mu.Lock()
	defer la.mu.Unlock()
	return la.rec.Status == models.AuctionStatusCountdown &&
		la.rec.CountdownDeadline != nil &&
		!now.Before(*la.rec.CountdownDeadline)
}

// Finalize moves the auction to ENDED and freezes the outcome. ENDED is
// terminal; finalizing twice is a StateError.
func (la *LiveAuction) Finalize(now time.Time) (models.Auction, error) {
	la.mu.Lock()
	defer la.mu.Unlock()

	if la.rec.Status == models.AuctionStatusEnded {
		return la.rec, &StateError{Reason: "auction already ended"}
	}

	la.rec.Status = models.AuctionStatusEnded
	la.rec.CountdownDeadline = nil
	ended := now
	la.rec.EndedAt = &ended
	if la.rec.CurrentBidder != "" {
		la.rec.FinalPrice = la.rec.CurrentBid
		la.rec.WinnerID = la.rec.CurrentBidder
	}

	return la.rec, nil
}

// promoDue checks and stamps the promo rate limit in one step.
func (la *LiveAuction) promoDue(minInterval time.Duration, now time.Time) bool {
	la.mu.Lock()
	defer la.mu.Unlock()

	if la.rec.Status != models.AuctionStatusOpen {
		return false
	}
	if !la.lastPromoAt.IsZero() && now.Sub(la.lastPromoAt) < minInterval {
		return false
	}
	la.lastPromoAt = now
	return true
}

// setPanelRef records where the live panel message lives.
func (la *LiveAuction) setPanelRef(channelID, messageID string) {
	la.mu.Lock()
	defer la.mu.Unlock()
	la.rec.PanelChannelID = channelID
	la.rec.PanelMessageID = messageID
}
