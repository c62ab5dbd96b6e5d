package auction

import (
	"testing"
	"time"

	"github.com/mazadhq/mazadbot/mazadbot/database/models"
	"github.com/stretchr/testify/require"
)

type monitorEvents struct {
	countdowns int
	finalizes  int
	promos     int
}

func newTestMonitor(t *testing.T, la *LiveAuction) (*monitor, *monitorEvents, *time.Time) {
	t.Helper()

	events := &monitorEvents{}
	clock := time.Now()

	mon := newMonitor(la, monitorConfig{
		tick:                time.Second,
		inactivityThreshold: 30 * time.Second,
		countdown:           3 * time.Second,
		promoMinInterval:    45 * time.Second,
	})
	mon.onCountdown = func(*LiveAuction, time.Time) { events.countdowns++ }
	mon.onFinalize = func(la *LiveAuction) {
		_, _ = la.Finalize(mon.now())
		events.finalizes++
	}
	mon.onPromo = func(*LiveAuction) { events.promos++ }
	mon.now = func() time.Time { return clock }

	return mon, events, &clock
}

func TestMonitorIdleTriggersCountdown(t *testing.T) {
	la := newTestAuction(t)
	mon, events, clock := newTestMonitor(t, la)

	*clock = la.Snapshot().LastActivityAt.Add(29 * time.Second)
	require.False(t, mon.tick())
	require.Zero(t, events.countdowns, "idle below threshold must not start countdown")
	require.Equal(t, models.AuctionStatusOpen, la.Snapshot().Status)

	*clock = la.Snapshot().LastActivityAt.Add(30 * time.Second)
	require.False(t, mon.tick())
	require.Equal(t, 1, events.countdowns)

	snap := la.Snapshot()
	require.Equal(t, models.AuctionStatusCountdown, snap.Status)
	require.NotNil(t, snap.CountdownDeadline)

	// Another tick while the deadline is pending neither re-enters
	// countdown nor finalizes early.
	*clock = clock.Add(time.Second)
	require.False(t, mon.tick())
	require.Equal(t, 1, events.countdowns)
	require.Zero(t, events.finalizes)
}

func TestMonitorCountdownExpiryFinalizes(t *testing.T) {
	la := newTestAuction(t)
	mon, events, clock := newTestMonitor(t, la)

	*clock = la.Snapshot().LastActivityAt.Add(30 * time.Second)
	require.False(t, mon.tick())
	require.Equal(t, models.AuctionStatusCountdown, la.Snapshot().Status)

	*clock = clock.Add(3 * time.Second)
	require.True(t, mon.tick(), "finalizing tick reports terminal")
	require.Equal(t, 1, events.finalizes)
	require.Equal(t, models.AuctionStatusEnded, la.Snapshot().Status)
}

func TestMonitorBidDuringCountdownReverts(t *testing.T) {
	la := newTestAuction(t)
	mon, events, clock := newTestMonitor(t, la)

	*clock = la.Snapshot().LastActivityAt.Add(30 * time.Second)
	require.False(t, mon.tick())

	_, err := la.PlaceBid("alice", 100_000, la.CurrentSeq(), testLimits, *clock)
	require.NoError(t, err)
	require.Equal(t, models.AuctionStatusOpen, la.Snapshot().Status)

	// The tick the old deadline would have fired on must be a no-op.
	*clock = clock.Add(3 * time.Second)
	require.False(t, mon.tick())
	require.Zero(t, events.finalizes)
	require.Equal(t, models.AuctionStatusOpen, la.Snapshot().Status)
}

func TestMonitorTickAfterEndedIsNoop(t *testing.T) {
	la := newTestAuction(t)
	mon, events, _ := newTestMonitor(t, la)

	_, err := la.Finalize(time.Now())
	require.NoError(t, err)

	require.True(t, mon.tick())
	require.Zero(t, events.countdowns)
	require.Zero(t, events.finalizes)
}

func TestMonitorHardEndTime(t *testing.T) {
	la := newTestAuction(t)
	mon, events, clock := newTestMonitor(t, la)

	*clock = la.Snapshot().EndsAt
	require.True(t, mon.tick())
	require.Equal(t, 1, events.finalizes)
	require.Equal(t, models.AuctionStatusEnded, la.Snapshot().Status)
}

func TestMonitorPromoGating(t *testing.T) {
	la := newTestAuction(t)
	mon, events, clock := newTestMonitor(t, la)

	// Half the threshold idle: promo fires once, then the min interval
	// holds it back.
	*clock = la.Snapshot().LastActivityAt.Add(15 * time.Second)
	require.False(t, mon.tick())
	require.Equal(t, 1, events.promos)

	*clock = clock.Add(time.Second)
	require.False(t, mon.tick())
	require.Equal(t, 1, events.promos, "promo must respect the min interval")
}

func TestMonitorStopIsIdempotent(t *testing.T) {
	la := newTestAuction(t)
	mon, _, _ := newTestMonitor(t, la)

	go mon.run()

	mon.Stop()
	mon.Stop()
}
