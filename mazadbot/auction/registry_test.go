package auction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistryOnePerGuild(t *testing.T) {
	r := NewRegistry()

	first := newLiveAuction(1, testParams(), time.Now())
	require.NoError(t, r.Register(first))

	second := newLiveAuction(2, testParams(), time.Now())
	err := r.Register(second)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, int64(1), conflict.AuctionID)

	got, ok := r.Get("guild-1")
	require.True(t, ok)
	require.Equal(t, int64(1), got.ID())
}

func TestRegistryRemoveIsScopedToAuction(t *testing.T) {
	r := NewRegistry()

	first := newLiveAuction(1, testParams(), time.Now())
	require.NoError(t, r.Register(first))

	// A stale remove for a different auction id must not free the slot.
	r.Remove("guild-1", 99)
	_, ok := r.Get("guild-1")
	require.True(t, ok)

	r.Remove("guild-1", 1)
	_, ok = r.Get("guild-1")
	require.False(t, ok)

	second := newLiveAuction(2, testParams(), time.Now())
	require.NoError(t, r.Register(second))
	require.Equal(t, 1, r.Len())
}
