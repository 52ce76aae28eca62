package client

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// startRenewal begins the proactive renewal loop: every RenewInterval the
// client refreshes credentials and re-fetches the session, so ordinary
// traffic rarely pays the latency of a reactive 401 recovery and fewer
// requests race a simultaneously-expired token. Idempotent.
func (c *Client) startRenewal() {
	c.renewMu.Lock()
	defer c.renewMu.Unlock()
	if c.renewCron != nil {
		return
	}

	runner := cron.New()
	spec := fmt.Sprintf("@every %s", c.cfg.RenewInterval)
	if _, err := runner.AddFunc(spec, c.renewCycle); err != nil {
		c.log.WithError(err).Error("failed to schedule session renewal")
		return
	}
	runner.Start()
	c.renewCron = runner
	c.log.WithField("interval", c.cfg.RenewInterval.String()).Debug("session renewal scheduled")
}

// stopRenewal cancels the loop. Idempotent; called on every transition to
// unauthenticated.
func (c *Client) stopRenewal() {
	c.renewMu.Lock()
	defer c.renewMu.Unlock()
	if c.renewCron == nil {
		return
	}
	c.renewCron.Stop()
	c.renewCron = nil
	c.log.Debug("session renewal canceled")
}

// renewCycle is one proactive renewal. Unlike FetchSession's tolerant
// reconcile, the rotation wait here is required: renewing against a stale
// anti-forgery token is exactly the failure this loop exists to prevent.
// Any failure ends the session.
func (c *Client) renewCycle() {
	if !c.sessions.IsAuthenticated() {
		c.stopRenewal()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout+c.cfg.CSRFWaitTimeout)
	defer cancel()

	token, err := c.csrf.Wait(ctx)
	if err != nil {
		c.observeRenewal("error")
		c.log.WithError(err).Warn("proactive renewal aborted, signing out")
		c.Logout(ctx, true)
		return
	}

	if err := c.RefreshCredentials(ctx, token); err != nil {
		c.observeRenewal("error")
		c.log.WithError(err).Warn("proactive renewal failed, signing out")
		c.Logout(ctx, true)
		return
	}
	if err := c.FetchSession(ctx); err != nil {
		c.observeRenewal("error")
		return
	}

	c.observeRenewal("ok")
	c.log.Debug("session renewed proactively")
}

func (c *Client) observeRenewal(result string) {
	if c.metrics != nil {
		c.metrics.RefreshTotal.WithLabelValues("renewal", result).Inc()
	}
}
