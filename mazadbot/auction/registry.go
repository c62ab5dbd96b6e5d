package auction

import "sync"

// Registry holds at most one live auction per guild. Registration is
// check-then-act under one lock, so two concurrent opens in the same guild
// cannot both win.
type Registry struct {
	mu   sync.RWMutex
	live map[string]*LiveAuction
}

func NewRegistry() *Registry {
	return &Registry{live: make(map[string]*LiveAuction)}
}

// Register claims the guild slot for la. Returns ConflictError when another
// live auction already holds it.
func (r *Registry) Register(la *LiveAuction) error {
	guildID := la.GuildID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.live[guildID]; ok {
		return &ConflictError{GuildID: guildID, AuctionID: existing.ID()}
	}
	r.live[guildID] = la
	return nil
}

// Get returns the guild's live auction, if any.
func (r *Registry) Get(guildID string) (*LiveAuction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	la, ok := r.live[guildID]
	return la, ok
}

// Remove releases the guild slot, but only if it is still held by the
// auction with the given id. A stale remove after a newer auction opened
// is a no-op.
func (r *Registry) Remove(guildID string, auctionID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if la, ok := r.live[guildID]; ok && la.ID() == auctionID {
		delete(r.live, guildID)
	}
}

// All snapshots the currently live auctions.
func (r *Registry) All() []*LiveAuction {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*LiveAuction, 0, len(r.live))
	for _, la := range r.live {
		out = append(out, la)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live)
}
