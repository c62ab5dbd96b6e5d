package auction

import (
	"sync"
	"testing"
	"time"

	"github.com/mazadhq/mazadbot/mazadbot/database/models"
	"github.com/stretchr/testify/require"
)

var testLimits = Limits{MinAmount: 1_000, MaxAmount: 1_000_000_000_000}

func testParams() OpenParams {
	return OpenParams{
		GuildID:        "guild-1",
		ItemName:       "Signed Jersey",
		StartBid:       100_000,
		MinIncrement:   50_000,
		DurationMin:    60,
		CommissionPct:  5,
		CurrencyName:   "coins",
		PanelChannelID: "100",
	}
}

func newTestAuction(t *testing.T) *LiveAuction {
	t.Helper()
	p := testParams()
	require.NoError(t, p.validate())
	return newLiveAuction(1, p, time.Now())
}

func TestOpenParamsValidate(t *testing.T) {
	var validErr *ValidationError

	p := testParams()
	p.StartBid = 0
	require.ErrorAs(t, p.validate(), &validErr)

	p = testParams()
	p.MinIncrement = -1
	require.ErrorAs(t, p.validate(), &validErr)

	p = testParams()
	p.DurationMin = 0
	require.ErrorAs(t, p.validate(), &validErr)

	p = testParams()
	p.DurationMin = 1441
	require.ErrorAs(t, p.validate(), &validErr)

	p = testParams()
	p.ItemName = ""
	require.ErrorAs(t, p.validate(), &validErr)
}

func TestPlaceBidFirstBidMeetsStartBid(t *testing.T) {
	la := newTestAuction(t)
	now := time.Now()

	_, err := la.PlaceBid("alice", 99_999, la.CurrentSeq(), testLimits, now)
	var validErr *ValidationError
	require.ErrorAs(t, err, &validErr)

	bid, err := la.PlaceBid("alice", 100_000, la.CurrentSeq(), testLimits, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), bid.SequenceNo)

	snap := la.Snapshot()
	require.Equal(t, int64(100_000), snap.CurrentBid)
	require.Equal(t, "alice", snap.CurrentBidder)
	require.Equal(t, 1, snap.BidCount)
}

func TestPlaceBidEnforcesIncrement(t *testing.T) {
	la := newTestAuction(t)
	now := time.Now()

	_, err := la.PlaceBid("alice", 100_000, la.CurrentSeq(), testLimits, now)
	require.NoError(t, err)

	_, err = la.PlaceBid("bob", 149_999, la.CurrentSeq(), testLimits, now)
	var validErr *ValidationError
	require.ErrorAs(t, err, &validErr)

	_, err = la.PlaceBid("bob", 150_000, la.CurrentSeq(), testLimits, now)
	require.NoError(t, err)
}

func TestPlaceBidSelfOutbid(t *testing.T) {
	la := newTestAuction(t)
	now := time.Now()

	_, err := la.PlaceBid("alice", 100_000, la.CurrentSeq(), testLimits, now)
	require.NoError(t, err)

	_, err = la.PlaceBid("alice", 200_000, la.CurrentSeq(), testLimits, now)
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
}

func TestPlaceBidStaleBasisGetsConflict(t *testing.T) {
	la := newTestAuction(t)
	now := time.Now()

	basis := la.CurrentSeq()
	_, err := la.PlaceBid("alice", 100_000, basis, testLimits, now)
	require.NoError(t, err)

	// Bob observed the auction before Alice's bid landed; his amount no
	// longer clears the bar, so he lost a race, not a rule.
	_, err = la.PlaceBid("bob", 100_000, basis, testLimits, now)
	var conflict *ConcurrencyConflict
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, int64(100_000), conflict.LeadingBid)
	require.Equal(t, "alice", conflict.LeadingBidder)
}

func TestPlaceBidConcurrentEqualBids(t *testing.T) {
	la := newTestAuction(t)
	now := time.Now()
	basis := la.CurrentSeq()

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, bidder := range []string{"alice", "bob"} {
		i, bidder := i, bidder
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = la.PlaceBid(bidder, 100_000, basis, testLimits, now)
		}()
	}
	wg.Wait()

	var accepted, conflicts int
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		var conflict *ConcurrencyConflict
		require.ErrorAs(t, err, &conflict)
		conflicts++
	}

	require.Equal(t, 1, accepted, "exactly one of two equal bids wins")
	require.Equal(t, 1, conflicts, "the loser gets a conflict, not a rule rejection")
}

func TestPlaceBidRevertsCountdown(t *testing.T) {
	la := newTestAuction(t)
	start := time.Now()

	_, err := la.PlaceBid("alice", 100_000, la.CurrentSeq(), testLimits, start)
	require.NoError(t, err)

	idle := start.Add(31 * time.Second)
	_, ok := la.BeginCountdown(30*time.Second, 3*time.Second, idle)
	require.True(t, ok)
	require.Equal(t, models.AuctionStatusCountdown, la.Snapshot().Status)

	_, err = la.PlaceBid("bob", 200_000, la.CurrentSeq(), testLimits, idle.Add(time.Second))
	require.NoError(t, err)

	snap := la.Snapshot()
	require.Equal(t, models.AuctionStatusOpen, snap.Status)
	require.Nil(t, snap.CountdownDeadline)
}

func TestUndoChainRestoresPreviousLeader(t *testing.T) {
	la := newTestAuction(t)
	now := time.Now()

	_, err := la.PlaceBid("alice", 100_000, la.CurrentSeq(), testLimits, now)
	require.NoError(t, err)
	_, err = la.PlaceBid("bob", 150_000, la.CurrentSeq(), testLimits, now)
	require.NoError(t, err)

	removed, err := la.UndoLast(now)
	require.NoError(t, err)
	require.Equal(t, "bob", removed.BidderID)

	snap := la.Snapshot()
	require.Equal(t, int64(100_000), snap.CurrentBid)
	require.Equal(t, "alice", snap.CurrentBidder)
	require.Equal(t, 1, snap.BidCount)

	removed, err = la.UndoLast(now)
	require.NoError(t, err)
	require.Equal(t, "alice", removed.BidderID)

	snap = la.Snapshot()
	require.Equal(t, int64(0), snap.CurrentBid)
	require.Empty(t, snap.CurrentBidder)

	_, err = la.UndoLast(now)
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
}

func TestSequenceNeverReusedAfterUndo(t *testing.T) {
	la := newTestAuction(t)
	now := time.Now()

	first, err := la.PlaceBid("alice", 100_000, la.CurrentSeq(), testLimits, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), first.SequenceNo)

	_, err = la.UndoLast(now)
	require.NoError(t, err)

	second, err := la.PlaceBid("bob", 100_000, la.CurrentSeq(), testLimits, now)
	require.NoError(t, err)
	require.Equal(t, int64(2), second.SequenceNo)
}

func TestFinalizeIsTerminal(t *testing.T) {
	la := newTestAuction(t)
	now := time.Now()

	_, err := la.PlaceBid("alice", 100_000, la.CurrentSeq(), testLimits, now)
	require.NoError(t, err)

	rec, err := la.Finalize(now)
	require.NoError(t, err)
	require.Equal(t, models.AuctionStatusEnded, rec.Status)
	require.Equal(t, int64(100_000), rec.FinalPrice)
	require.Equal(t, "alice", rec.WinnerID)
	require.NotNil(t, rec.EndedAt)

	var stateErr *StateError

	_, err = la.Finalize(now)
	require.ErrorAs(t, err, &stateErr)

	_, err = la.PlaceBid("bob", 200_000, la.CurrentSeq(), testLimits, now)
	require.ErrorAs(t, err, &stateErr)

	_, err = la.UndoLast(now)
	require.ErrorAs(t, err, &stateErr)
}

func TestFinalizeWithNoBids(t *testing.T) {
	la := newTestAuction(t)

	rec, err := la.Finalize(time.Now())
	require.NoError(t, err)
	require.Equal(t, models.AuctionStatusEnded, rec.Status)
	require.Zero(t, rec.FinalPrice)
	require.Empty(t, rec.WinnerID)
}

func TestResumeLiveAuctionContinuesSequence(t *testing.T) {
	rec := &models.Auction{
		ID:            7,
		GuildID:       "guild-1",
		ItemName:      "Vintage Amp",
		Status:        models.AuctionStatusOpen,
		StartBid:      100_000,
		MinIncrement:  50_000,
		CurrentBid:    150_000,
		CurrentBidder: "bob",
		BidCount:      2,
		EndsAt:        time.Now().Add(time.Hour),
	}
	bids := []*models.Bid{
		{AuctionID: 7, SequenceNo: 1, BidderID: "alice", Amount: 100_000},
		{AuctionID: 7, SequenceNo: 2, BidderID: "bob", Amount: 150_000},
	}

	la := resumeLiveAuction(rec, bids)
	require.Equal(t, int64(2), la.CurrentSeq())

	bid, err := la.PlaceBid("carol", 200_000, la.CurrentSeq(), testLimits, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(3), bid.SequenceNo)
}

func TestResumeLiveAuctionRecomputesLeaderFromBids(t *testing.T) {
	// The auction row can be stale when async writes landed out of order
	// before a crash; the bid rows decide who leads.
	rec := &models.Auction{
		ID:            7,
		GuildID:       "guild-1",
		ItemName:      "Vintage Amp",
		Status:        models.AuctionStatusOpen,
		StartBid:      100_000,
		MinIncrement:  50_000,
		CurrentBid:    100_000,
		CurrentBidder: "alice",
		BidCount:      1,
		EndsAt:        time.Now().Add(time.Hour),
	}
	bids := []*models.Bid{
		{AuctionID: 7, SequenceNo: 1, BidderID: "alice", Amount: 100_000},
		{AuctionID: 7, SequenceNo: 2, BidderID: "bob", Amount: 150_000},
	}

	la := resumeLiveAuction(rec, bids)

	snap := la.Snapshot()
	require.Equal(t, int64(150_000), snap.CurrentBid)
	require.Equal(t, "bob", snap.CurrentBidder)
	require.Equal(t, 2, snap.BidCount)

	// No bid rows at all clears a stale leader.
	empty := resumeLiveAuction(rec, nil)
	snap = empty.Snapshot()
	require.Zero(t, snap.CurrentBid)
	require.Empty(t, snap.CurrentBidder)
	require.Zero(t, snap.BidCount)
}
