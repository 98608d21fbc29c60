package controller

import (
	"context"
	"log/slog"

	"github.com/zapleads/zapleads/internal/identity"
	"github.com/zapleads/zapleads/internal/models"
	"github.com/zapleads/zapleads/internal/scheduler"
	"github.com/zapleads/zapleads/internal/session"
)

// StartSweep registers the inactivity sweep on the scheduler.
func (c *Controller) StartSweep(ctx context.Context, sched *scheduler.Scheduler) error {
	if err := sched.AddJob(c.cfg.SweepSpec, func() {
		c.Sweep(ctx)
	}); err != nil {
		return err
	}
	slog.Info("Controller inactivity sweep scheduled", "spec", c.cfg.SweepSpec)
	return nil
}

// Sweep walks every in-memory session once: prunes sessions whose lead is
// gone or no longer the bot's, expires long-lived stale conversations, and
// advances the reminder ladder. Each session is handled independently; a
// failure on one never stops the rest.
func (c *Controller) Sweep(ctx context.Context) {
	for key, st := range c.sessions.Snapshot() {
		c.sweepSession(ctx, key, st)
	}
}

func (c *Controller) sweepSession(ctx context.Context, key identity.Key, st session.State) {
	now := c.now()
	idle := now.Sub(st.LastInteraction)

	lead, err := c.store.GetLead(ctx, st.LeadID)
	if err != nil {
		slog.Error("Controller sweep lead lookup failed", "error", err, "lead_id", st.LeadID)
		return
	}

	// Sessions for missing, finished or handed-off leads are pruned once a
	// short grace period passes, in case a reply is still mid-flight.
	if lead == nil || lead.Finished() || lead.Status != models.StatusNovo {
		if idle > c.cfg.PruneGrace {
			slog.Debug("Controller pruning stale session", "key", string(key), "lead_id", st.LeadID)
			c.dropSession(key)
		}
		return
	}

	raw := sendAddress(st, lead)

	// Long-lived active conversations expire: notify, mark perdido,
	// re-sync the label, drop the session.
	if c.leadAge(lead) > c.cfg.ExpiryWindow {
		c.expireLead(ctx, key, lead, raw)
		return
	}

	c.remind(ctx, key, st, lead, raw)
}

// expireLead closes out a conversation that outlived the expiry window.
func (c *Controller) expireLead(ctx context.Context, key identity.Key, lead *models.Lead, raw string) {
	slog.Info("Controller expiring stale lead", "lead_id", lead.ID, "criado_em", lead.CriadoEm)
	c.send(ctx, raw, msgExpiry)
	if err := c.store.UpdateStatus(ctx, lead.ID, models.StatusPerdido); err != nil {
		slog.Error("Controller expiry status update failed", "error", err, "lead_id", lead.ID)
	} else {
		lead.Status = models.StatusPerdido
	}
	c.syncLabelAsync(lead, raw)
	c.dropSession(key)
}

// remind advances the two-stage reminder ladder: one short-delay nudge per
// quiet period, then spaced follow-ups up to the configured cap. Send failures
// are swallowed; bookkeeping only advances after a successful send.
func (c *Controller) remind(ctx context.Context, key identity.Key, st session.State, lead *models.Lead, raw string) {
	now := c.now()
	idle := now.Sub(st.LastInteraction)

	if idle <= c.cfg.FirstReminderDelay {
		return
	}
	if lead.FollowUpCount >= c.cfg.MaxFollowUps {
		return
	}

	if !st.Reminded {
		if !c.send(ctx, raw, msgReminder) {
			return
		}
		c.sessions.MarkReminded(key)
		c.recordFollowUp(ctx, lead)
		return
	}

	// Repeat nudges are spaced by the follow-up interval since the last one.
	if lead.LastFollowUpAt != nil && now.Sub(*lead.LastFollowUpAt) < c.cfg.FollowUpInterval {
		return
	}
	if !c.send(ctx, raw, msgFollowUp) {
		return
	}
	c.recordFollowUp(ctx, lead)
}

func (c *Controller) recordFollowUp(ctx context.Context, lead *models.Lead) {
	now := c.now()
	count := lead.FollowUpCount + 1
	if err := c.store.UpdateFollowUp(ctx, lead.ID, count, now); err != nil {
		slog.Error("Controller follow-up update failed", "error", err, "lead_id", lead.ID)
		return
	}
	lead.FollowUpCount = count
	lead.LastFollowUpAt = &now
	slog.Info("Controller follow-up sent", "lead_id", lead.ID, "count", count)
}

// sendAddress picks the JID scheduler sends go to: the raw identifier the
// last inbound message arrived from, or the persisted phone with the country
// code restored. The display format alone loses the 55 prefix and would
// address a different user.
func sendAddress(st session.State, lead *models.Lead) string {
	if st.Raw != "" {
		return st.Raw
	}
	digits := identity.Digits(lead.Telefone)
	if len(digits) == 10 || len(digits) == 11 {
		digits = "55" + digits
	}
	return digits
}
