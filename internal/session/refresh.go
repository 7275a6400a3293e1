package session

import (
	"context"
	"sync"
	"time"

	"pkt.systems/vmplane/internal/authstore"
	"pkt.systems/vmplane/internal/clock"
	"pkt.systems/vmplane/internal/transport"
)

const (
	// RefreshLead is how long before access expiry renewal is attempted.
	RefreshLead = 90 * time.Second
	// MinRefreshInterval bounds the renewal period from below.
	MinRefreshInterval = 5 * time.Second
)

// refresher owns the renewal ticker and its goroutine.
type refresher struct {
	interval time.Duration
	ticker   *clock.Ticker
	stop     chan struct{}
	once     sync.Once
}

func (r *refresher) Stop() {
	r.once.Do(func() {
		r.ticker.Stop()
		close(r.stop)
	})
}

// RefreshInterval returns the renewal period for a bundle issued at now.
func RefreshInterval(bundle authstore.Bundle, now time.Time) time.Duration {
	expiry, err := bundle.AccessExpiry()
	if err != nil {
		return MinRefreshInterval
	}
	d := expiry.Sub(now) - RefreshLead
	if d < MinRefreshInterval {
		return MinRefreshInterval
	}
	return d
}

// ScheduledRefresh returns the active renewal period, or zero when no
// renewal is scheduled.
func (c *Connector) ScheduledRefresh() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refresher == nil {
		return 0
	}
	return c.refresher.interval
}

func (c *Connector) startRefresh(bundle authstore.Bundle) {
	interval := RefreshInterval(bundle, c.clock.Now())
	r := &refresher{
		interval: interval,
		ticker:   c.clock.NewTicker(interval),
		stop:     make(chan struct{}),
	}
	c.mu.Lock()
	prev := c.refresher
	c.refresher = r
	c.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}
	c.logger.Debug("token renewal scheduled", "interval", interval.String())
	go c.runRefresh(r)
}

// stopRefresh cancels renewal. Calling it when nothing is scheduled is a
// no-op.
func (c *Connector) stopRefresh() {
	c.mu.Lock()
	r := c.refresher
	c.refresher = nil
	c.mu.Unlock()
	if r != nil {
		r.Stop()
	}
}

func (c *Connector) runRefresh(r *refresher) {
	for {
		select {
		case <-r.stop:
			return
		case <-c.ctx.Done():
			return
		case <-r.ticker.C:
			select {
			case <-r.stop:
				return
			default:
			}
			c.refreshTick(c.ctx)
		}
	}
}

// refreshTick adopts a newer bundle from the store or renews the current
// one. Failure to renew is the expiry transition.
func (c *Connector) refreshTick(ctx context.Context) {
	if c.resync(ctx, "") {
		return
	}
	if err := c.refresh(ctx); err != nil {
		c.logger.Info("token renewal failed", "error", err)
		c.expire()
	}
}

// resync adopts the store's bundle when its access token differs from
// the installed one and it validates. Tokens the backend already
// rejected, stale or dropped at expiry, are not adopted. Load errors
// count as no change.
func (c *Connector) resync(ctx context.Context, stale string) bool {
	bundle, err := c.store.Load(ctx, c.key)
	if err != nil {
		c.logger.Debug("token store load failed", "error", err)
		return false
	}
	if bundle.IsZero() {
		return false
	}
	c.mu.Lock()
	current := c.tokens.AccessToken
	rejected := c.rejected
	c.mu.Unlock()
	switch bundle.AccessToken {
	case current, rejected, stale:
		return false
	}
	if err := c.validate(bundle); err != nil {
		return false
	}
	c.install(bundle, false)
	c.logger.Debug("adopted tokens from store", "user", bundle.User)
	return true
}

// refresh renews the installed bundle through the refresh endpoint.
func (c *Connector) refresh(ctx context.Context) error {
	c.mu.Lock()
	user := c.tokens.User
	token := c.tokens.RefreshToken
	c.mu.Unlock()
	if token == "" {
		return ErrUnauthenticated
	}
	env, err := c.client.Post(ctx, transport.PathAuthRefresh, transport.Credentials{}, refreshRequest{
		User:   user,
		Device: c.device,
		Token:  token,
	})
	bundle, err := decodeBundle(env, err)
	if err != nil {
		return err
	}
	if err := c.validate(bundle); err != nil {
		return err
	}
	if !c.installIf(bundle, true, token) {
		// Logged out or replaced while the request was in flight.
		return nil
	}
	c.logger.Debug("tokens renewed", "user", bundle.User)
	return nil
}
