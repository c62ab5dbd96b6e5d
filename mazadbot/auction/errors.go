package auction

import (
	"fmt"
	"time"
)

// ParseError reports raw bid text that could not be read as an amount.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %q: %s", e.Input, e.Reason)
}

// ValidationError reports a well-formed bid that breaks an auction rule.
// RetryAfter is set when the rule is the per-bidder cooldown.
type ValidationError struct {
	Reason     string
	RetryAfter time.Duration
}

func (e *ValidationError) Error() string { return e.Reason }

// StateError reports an operation that is not legal in the auction's
// current state (bidding on an ended auction, ending twice, a leader
// outbidding themselves, undoing with no bids).
type StateError struct {
	Reason string
}

func (e *StateError) Error() string { return e.Reason }

// ConflictError reports an attempt to open a second live auction in a
// guild that already has one.
type ConflictError struct {
	GuildID   string
	AuctionID int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("guild %s already has a live auction (#%d)", e.GuildID, e.AuctionID)
}

// ConcurrencyConflict reports a bid that lost a race: between the bidder
// observing the auction and the bid being applied, another bid advanced
// the price past it. It carries the bid that is now leading.
type ConcurrencyConflict struct {
	LeadingBid    int64
	LeadingBidder string
}

func (e *ConcurrencyConflict) Error() string {
	return fmt.Sprintf("outpaced by a concurrent bid of %s", FormatAmount(e.LeadingBid))
}
