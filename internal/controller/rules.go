package controller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zapleads/zapleads/internal/models"
	"github.com/zapleads/zapleads/internal/session"
)

// reconnectMenu is the short menu offered once per process to a known lead
// that messages without an active session.
var reconnectMenu = []string{"Nova cotação", "Recomeçar atendimento"}

// ruleSelfEcho drops events that are the transport echoing back the
// controller's own outbound messages.
func (c *Controller) ruleSelfEcho(ctx context.Context, ec *eventContext) bool {
	if !ec.evt.FromMe {
		return false
	}
	if c.echo.Consume(ec.evt.ID) {
		return true
	}
	return false
}

// ruleManualIntervention handles messages sent from the shared account by a
// human operator: a self-flagged message whose ID is not in the echo guard.
// The lead is handed to the human and the bot goes quiet.
func (c *Controller) ruleManualIntervention(ctx context.Context, ec *eventContext) bool {
	if !ec.evt.FromMe {
		return false
	}
	c.handOffToHuman(ctx, ec, "manual")
	return true
}

// handOffToHuman moves a novo lead to negociacao and tears down its session.
// The persisted buttons are cleared too, so session healing cannot rebuild a
// conversation the human now owns.
func (c *Controller) handOffToHuman(ctx context.Context, ec *eventContext, reason string) {
	lead := c.activeLead(ctx, ec)
	if lead != nil && lead.Status == models.StatusNovo {
		if err := c.store.UpdateStatus(ctx, lead.ID, models.StatusNegociacao); err != nil {
			slog.Error("Controller handoff status update failed", "error", err, "lead_id", lead.ID)
		} else {
			slog.Info("Controller lead handed off to human", "lead_id", lead.ID, "reason", reason)
			lead.Status = models.StatusNegociacao
		}
	}
	if lead != nil && len(lead.LastButtons) > 0 {
		if err := c.store.UpdateLastButtons(ctx, lead.ID, nil); err != nil {
			slog.Error("Controller last buttons clear failed", "error", err, "lead_id", lead.ID)
		}
		lead.LastButtons = nil
	}
	c.dropSession(ec.key)
}

// ruleTriggerRestart bypasses every silence rule when the message is a
// qualifying trigger phrase or the explicit restart keyword. This is the only
// path that can resurrect a previously silenced conversation.
func (c *Controller) ruleTriggerRestart(ctx context.Context, ec *eventContext) bool {
	// A numbered pick of a menu option that reads as a trigger (the
	// reconnected notice offers exactly those) counts as the trigger itself.
	effective := c.translateOption(ec.key, ec.text)
	if !c.isTrigger(effective) && !c.isRestart(effective) {
		return false
	}
	ec.text = effective

	c.dropSession(ec.key)
	c.sessions.ClearNotified(ec.key)

	if lead := c.activeLead(ctx, ec); lead != nil {
		if err := c.store.ResetQualification(ctx, lead.ID); err != nil {
			slog.Error("Controller qualification reset failed", "error", err, "lead_id", lead.ID)
		} else {
			lead.Status = models.StatusNovo
			lead.PercentualConclusao = models.InitialCompletion
			lead.FollowUpCount = 0
			lead.LastFollowUpAt = nil
		}
		if err := c.store.UpdateLastButtons(ctx, lead.ID, nil); err != nil {
			slog.Error("Controller last buttons clear failed", "error", err, "lead_id", lead.ID)
		}
		lead.LastButtons = nil
		if err := c.engine.ResetSession(ctx, lead.ID); err != nil {
			slog.Error("Controller engine session reset failed", "error", err, "lead_id", lead.ID)
		}
	}

	c.process(ctx, ec)
	return true
}

// ruleSessionHealing recovers in-memory state lost to a restart: when the
// persisted lead still carries the last offered options but the session or
// buttons cache is missing, both are rebuilt so an in-flight numbered reply
// stays interpretable. Never terminates evaluation.
func (c *Controller) ruleSessionHealing(ctx context.Context, ec *eventContext) bool {
	lead := c.activeLead(ctx, ec)
	if lead == nil || len(lead.LastButtons) == 0 {
		return false
	}
	// Finished or handed-off conversations are never rebuilt; only a
	// trigger or restart resurrects them.
	if lead.FinishedOrManual() {
		return false
	}
	_, hasSession := c.sessions.Get(ec.key)
	if hasSession && len(c.buttons.Get(ec.key)) > 0 {
		return false
	}
	slog.Info("Controller healing session from persisted buttons", "lead_id", lead.ID, "key", string(ec.key))
	if !hasSession {
		c.sessions.Put(ec.key, session.State{LeadID: lead.ID, Raw: ec.raw, LastInteraction: c.now()})
	}
	c.buttons.Put(ec.key, lead.LastButtons)
	return false
}

// ruleFinishedLeadSilence keeps the bot quiet for finished or handed-off
// leads with no active session, unless the engine is mid an interactive step.
func (c *Controller) ruleFinishedLeadSilence(ctx context.Context, ec *eventContext) bool {
	lead := c.activeLead(ctx, ec)
	if lead == nil || !lead.FinishedOrManual() {
		return false
	}
	if _, ok := c.sessions.Get(ec.key); ok {
		return false
	}
	if c.engineAwaitingChoice(ctx, lead.ID) {
		return false
	}
	return true
}

// ruleUnsolicitedMedia silences media attachments arriving with no active
// session. An unsolicited photo or document from a novo lead is read as the
// customer having escalated elsewhere, so it also triggers the human handoff.
func (c *Controller) ruleUnsolicitedMedia(ctx context.Context, ec *eventContext) bool {
	if !ec.evt.Kind.IsMedia() {
		return false
	}
	if _, ok := c.sessions.Get(ec.key); ok {
		return false
	}
	c.handOffToHuman(ctx, ec, "unsolicited_media")
	return true
}

// ruleNoSessionGate handles sessionless non-trigger messages. A known active
// lead gets a one-time reconnected notice with a short menu; an entirely
// unknown identity is dropped with no reply at all.
func (c *Controller) ruleNoSessionGate(ctx context.Context, ec *eventContext) bool {
	if _, ok := c.sessions.Get(ec.key); ok {
		return false
	}
	lead := c.activeLead(ctx, ec)
	if lead == nil {
		slog.Debug("Controller dropping message from unknown identity", "key", string(ec.key))
		return true
	}
	if !c.sessions.MarkNotified(ec.key) {
		return true
	}
	// The notice opens no session and persists nothing: the menu lives only
	// in the buttons cache, so a numbered pick translates into its trigger
	// phrase while any other follow-up stays dropped.
	if c.send(ctx, ec.raw, msgReconnect) {
		c.buttons.Put(ec.key, reconnectMenu)
	}
	return true
}

// ruleProcess is the default: an active session exists, so the message is fed
// through the engine. Always terminates evaluation.
func (c *Controller) ruleProcess(ctx context.Context, ec *eventContext) bool {
	c.process(ctx, ec)
	return true
}

// process runs the speaking path: resolve or create the lead, translate a
// numeric shorthand reply, invoke the engine, send the reply, and apply
// post-processing auto-silence. No lock is held across the engine call or the
// send.
func (c *Controller) process(ctx context.Context, ec *eventContext) {
	lead := c.activeLead(ctx, ec)
	if lead == nil {
		created, err := c.getOrCreateLead(ctx, ec.raw, ec.evt.PushName)
		if err != nil {
			slog.Error("Controller lead creation failed", "error", err, "key", string(ec.key))
			c.send(ctx, ec.raw, msgApology)
			return
		}
		lead = created
		ec.lead = created
	}

	c.sessions.Touch(ec.key, lead.ID, ec.raw, c.now())

	effective := c.translateOption(ec.key, ec.text)

	if err := c.transport.SetTyping(ctx, ec.raw, true); err != nil {
		slog.Debug("Controller typing indicator failed", "error", err)
	}
	reply, err := c.engine.ProcessUserMessage(ctx, lead.ID, effective)
	if stopErr := c.transport.SetTyping(ctx, ec.raw, false); stopErr != nil {
		slog.Debug("Controller typing indicator failed", "error", stopErr)
	}
	if err != nil {
		slog.Error("Controller engine processing failed", "error", err, "lead_id", lead.ID)
		c.send(ctx, ec.raw, msgApology)
		return
	}

	if !c.send(ctx, ec.raw, renderReply(reply)) {
		return
	}

	labels := reply.ButtonLabels()
	c.buttons.Put(ec.key, labels)
	if err := c.store.UpdateLastButtons(ctx, lead.ID, labels); err != nil {
		slog.Error("Controller last buttons update failed", "error", err, "lead_id", lead.ID)
	}

	c.afterReply(ctx, ec)
}

// afterReply applies post-processing auto-silence: once the lead reaches full
// completion or leaves novo, and the engine is not expecting further input,
// the session is torn down so subsequent casual messages stay unanswered.
// Label sync always runs, fire-and-forget.
func (c *Controller) afterReply(ctx context.Context, ec *eventContext) {
	leadID := ec.lead.ID
	current, err := c.store.GetLead(ctx, leadID)
	if err != nil || current == nil {
		if err != nil {
			slog.Error("Controller lead reload failed", "error", err, "lead_id", leadID)
		}
		return
	}

	c.syncLabelAsync(current, ec.raw)

	autoSilence := current.PercentualConclusao >= 100 ||
		current.Status == models.StatusNegociacao || current.Status.IsTerminal()
	if autoSilence && !c.engineAwaitingChoice(ctx, leadID) {
		slog.Info("Controller auto-silencing finished conversation", "lead_id", leadID, "status", string(current.Status), "percentual", current.PercentualConclusao)
		c.dropSession(ec.key)
		if err := c.store.UpdateLastButtons(ctx, leadID, nil); err != nil {
			slog.Error("Controller last buttons clear failed", "error", err, "lead_id", leadID)
		}
	}
}

// renderReply formats the engine reply for the transport, appending the
// offered options as a numbered menu.
func renderReply(reply models.EngineReply) string {
	if len(reply.Buttons) == 0 {
		return reply.Text
	}
	var b strings.Builder
	b.WriteString(reply.Text)
	for i, btn := range reply.Buttons {
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, btn.Label))
	}
	return b.String()
}
