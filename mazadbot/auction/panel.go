package auction

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/mazadhq/mazadbot/mazadbot/logger"
	"github.com/mazadhq/mazadbot/mazadbot/transport"
)

const panelRenderTimeout = 10 * time.Second

// Panel keeps one channel message in sync with an auction, coalescing
// bursts of updates into at most one render per delay window. The newest
// snapshot always wins; intermediate ones are dropped.
type Panel struct {
	messenger transport.Messenger
	channelID snowflake.ID
	delay     time.Duration

	mu      sync.Mutex
	ref     transport.MessageRef
	pending *transport.Payload
	timer   *time.Timer
	closed  bool
}

func NewPanel(messenger transport.Messenger, channelID snowflake.ID, delay time.Duration) *Panel {
	return &Panel{
		messenger: messenger,
		channelID: channelID,
		delay:     delay,
	}
}

// ResumePanel reattaches to a panel message that survived a restart.
func ResumePanel(messenger transport.Messenger, ref transport.MessageRef, delay time.Duration) *Panel {
	return &Panel{
		messenger: messenger,
		channelID: ref.ChannelID,
		delay:     delay,
		ref:       ref,
	}
}

// Ref returns the current panel message location, zero before first render.
func (p *Panel) Ref() transport.MessageRef {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ref
}

// Update queues a snapshot for rendering. The first update in a quiet
// window renders promptly; updates arriving while a window is open replace
// the queued snapshot.
func (p *Panel) Update(payload transport.Payload) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.pending = &payload
	if p.timer == nil {
		p.timer = time.AfterFunc(0, p.flush)
	}
}

func (p *Panel) flush() {
	p.mu.Lock()
	if p.closed || p.pending == nil {
		p.timer = nil
		p.mu.Unlock()
		return
	}
	payload := *p.pending
	p.pending = nil
	ref := p.ref
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), panelRenderTimeout)
	defer cancel()

	if ref.Zero() {
		newRef, err := p.messenger.Send(ctx, p.channelID, payload)
		if err != nil {
			logger.LogError("Panel send failed", err)
		} else {
			p.mu.Lock()
			p.ref = newRef
			p.mu.Unlock()
		}
	} else if err := p.messenger.Edit(ctx, ref, payload); err != nil {
		logger.LogError("Panel edit failed", err)
	}

	p.mu.Lock()
	if p.closed {
		p.timer = nil
	} else {
		// Hold the window open so a burst right after this render still
		// coalesces; the next fire is a no-op when nothing is pending.
		p.timer = time.AfterFunc(p.delay, p.flush)
	}
	p.mu.Unlock()
}

// Finalize closes the panel: no further updates render, a terminal summary
// goes to the channel, and the live panel message is removed. Safe to call
// once; later Updates are dropped silently.
func (p *Panel) Finalize(ctx context.Context, summary transport.Payload) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.pending = nil
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	ref := p.ref
	p.mu.Unlock()

	if _, err := p.messenger.Send(ctx, p.channelID, summary); err != nil {
		return err
	}
	if !ref.Zero() {
		if err := p.messenger.Delete(ctx, ref); err != nil {
			return err
		}
	}
	return nil
}
