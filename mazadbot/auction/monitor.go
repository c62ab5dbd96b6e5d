package auction

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mazadhq/mazadbot/mazadbot/database/models"
)

// monitor drives one live auction's timers: inactivity into countdown,
// countdown into finalize, promos while idle, and the hard end-time stop.
// One goroutine per live auction; a panicking tick never takes down the
// loop or its siblings.
type monitor struct {
	la  *LiveAuction
	cfg monitorConfig

	onCountdown func(la *LiveAuction, deadline time.Time)
	onFinalize  func(la *LiveAuction)
	onPromo     func(la *LiveAuction)

	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

type monitorConfig struct {
	tick                time.Duration
	inactivityThreshold time.Duration
	countdown           time.Duration
	promoMinInterval    time.Duration
}

func newMonitor(la *LiveAuction, cfg monitorConfig) *monitor {
	if cfg.tick <= 0 {
		cfg.tick = time.Second
	}
	return &monitor{
		la:   la,
		cfg:  cfg,
		now:  time.Now,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (m *monitor) run() {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if m.tick() {
				return
			}
		case <-m.stop:
			return
		}
	}
}

// Stop halts the loop and waits for the in-flight tick to finish.
func (m *monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

// tick runs one evaluation pass. Returns true when the auction reached a
// terminal state and the loop should exit.
func (m *monitor) tick() (terminal bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Monitor tick panicked",
				slog.String("type", "monitor"),
				slog.Int64("auction_id", m.la.ID()),
				slog.Any("panic", r),
			)
		}
	}()

	now := m.now()
	snap := m.la.Snapshot()

	switch snap.Status {
	case models.AuctionStatusEnded:
		return true

	case models.AuctionStatusOpen:
		if !now.Before(snap.EndsAt) {
			m.onFinalize(m.la)
			return true
		}

		idle := now.Sub(snap.LastActivityAt)
		if idle >= m.cfg.inactivityThreshold {
			if deadline, ok := m.la.BeginCountdown(m.cfg.inactivityThreshold, m.cfg.countdown, now); ok {
				m.onCountdown(m.la, deadline)
			}
		} else if idle >= m.cfg.inactivityThreshold/2 {
			if m.la.promoDue(m.cfg.promoMinInterval, now) {
				m.onPromo(m.la)
			}
		}

	case models.AuctionStatusCountdown:
		// A bid between ticks reverts the status; CountdownDue re-checks
		// under the auction lock so a stale deadline never fires.
		if m.la.CountdownDue(now) {
			m.onFinalize(m.la)
			return true
		}
	}

	return false
}
