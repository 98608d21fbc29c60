// Package controller implements the WhatsApp conversation controller: the
// component that decides, for every inbound event, whether the automated
// assistant should speak, stay silent, resume, or hand off to a human.
//
// The decision logic is an ordered list of silence rules evaluated per event;
// the first matching rule wins. Everything downstream (the qualification
// engine, persistence, the transport) is an injected collaborator.
package controller

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/zapleads/zapleads/internal/engine"
	"github.com/zapleads/zapleads/internal/identity"
	"github.com/zapleads/zapleads/internal/messaging"
	"github.com/zapleads/zapleads/internal/models"
	"github.com/zapleads/zapleads/internal/session"
	"github.com/zapleads/zapleads/internal/store"
)

// User-visible messages. Failures always surface as the generic apology,
// never as an internal error.
const (
	msgApology   = "Desculpe, tive um problema para processar sua mensagem. Pode tentar de novo em instantes?"
	msgReconnect = "Oi! Vi que você já falou com a gente. Como posso ajudar?\n1. Nova cotação\n2. Recomeçar atendimento"
	msgReminder  = "Oi! Ainda está por aí? Ficou alguma dúvida sobre os planos?"
	msgFollowUp  = "Olá! Passando para lembrar que sua cotação ainda está aberta. Quer continuar de onde paramos?"
	msgExpiry    = "Como não tivemos retorno, estamos encerrando este atendimento. Quando quiser retomar, é só mandar uma mensagem!"
)

// Config holds the controller's tuning values. All of them are operational
// settings, not part of the conversational contract.
type Config struct {
	// TriggerPhrases are the normalized phrases that open (or reopen) a
	// qualification conversation.
	TriggerPhrases []string
	// RestartKeyword resets an existing conversation from scratch.
	RestartKeyword string

	// FirstReminderDelay is the idle time before the first nudge.
	FirstReminderDelay time.Duration
	// FollowUpInterval is the spacing between repeated follow-up nudges.
	FollowUpInterval time.Duration
	// MaxFollowUps caps the reminder ladder.
	MaxFollowUps int
	// ExpiryWindow is the lead age after which an active conversation is
	// expired and the lead marked perdido.
	ExpiryWindow time.Duration
	// PruneGrace is the idle time before sessions of finished or handed-off
	// leads are dropped by the sweep.
	PruneGrace time.Duration
	// SweepSpec is the cron expression driving the inactivity sweep.
	SweepSpec string

	// HotLabelID and ColdLabelID are the transport-side label identifiers
	// reflecting lead temperature. Empty IDs disable label sync.
	HotLabelID  string
	ColdLabelID string

	// PrimaryOwnerEmail is the preferred owner for new leads; OwnerNameHint
	// is the fallback substring match. See pickOwner.
	PrimaryOwnerEmail string
	OwnerNameHint     string

	// Origin is recorded on leads created by this controller.
	Origin string

	// EchoCapacity bounds the echo guard.
	EchoCapacity int
}

// DefaultConfig returns production-shaped defaults. main overrides them from
// the environment.
func DefaultConfig() Config {
	return Config{
		TriggerPhrases:     []string{"quero uma cotação", "nova cotação", "quero um plano", "vim pelo site"},
		RestartKeyword:     "recomeçar atendimento",
		FirstReminderDelay: 2 * time.Minute,
		FollowUpInterval:   6 * time.Hour,
		MaxFollowUps:       3,
		ExpiryWindow:       48 * time.Hour,
		PruneGrace:         5 * time.Minute,
		SweepSpec:          "*/30 * * * * *",
		Origin:             "whatsapp",
		EchoCapacity:       session.DefaultEchoCapacity,
	}
}

// Controller owns the in-memory conversation state and the silence policy.
type Controller struct {
	cfg       Config
	store     store.Store
	engine    engine.Engine
	transport messaging.Service

	sessions *session.Store
	echo     *session.EchoGuard
	buttons  *session.ButtonsCache

	rules []rule

	// now is injectable for tests.
	now func() time.Time
}

// New creates a controller with the given collaborators.
func New(cfg Config, st store.Store, eng engine.Engine, transport messaging.Service) *Controller {
	c := &Controller{
		cfg:       cfg,
		store:     st,
		engine:    eng,
		transport: transport,
		sessions:  session.NewStore(),
		echo:      session.NewEchoGuard(cfg.EchoCapacity),
		buttons:   session.NewButtonsCache(),
		now:       time.Now,
	}
	c.rules = []rule{
		{"self_echo", c.ruleSelfEcho},
		{"manual_intervention", c.ruleManualIntervention},
		{"trigger_restart", c.ruleTriggerRestart},
		{"session_healing", c.ruleSessionHealing},
		{"finished_lead_silence", c.ruleFinishedLeadSilence},
		{"unsolicited_media", c.ruleUnsolicitedMedia},
		{"no_session_gate", c.ruleNoSessionGate},
		{"process", c.ruleProcess},
	}
	return c
}

// Run consumes transport events until the context is cancelled. Errors from
// individual events are logged and never stop the loop.
func (c *Controller) Run(ctx context.Context) {
	slog.Info("Controller event loop starting")
	for {
		select {
		case evt, ok := <-c.transport.Events():
			if !ok {
				slog.Info("Controller event stream closed")
				return
			}
			c.HandleEvent(ctx, evt)
		case <-ctx.Done():
			slog.Info("Controller event loop stopping")
			return
		}
	}
}

// eventContext carries the per-event state shared by the rules.
type eventContext struct {
	evt  models.MessageEvent
	raw  string       // real (unmasked) raw identifier
	key  identity.Key // normalized lookup key
	text string       // trimmed message text

	lead       *models.Lead
	leadLoaded bool
}

// rule is one entry of the ordered silence policy. apply returns true when
// the event is fully handled and evaluation must stop.
type rule struct {
	name  string
	apply func(ctx context.Context, ec *eventContext) bool
}

// HandleEvent runs one inbound event through the silence policy.
func (c *Controller) HandleEvent(ctx context.Context, evt models.MessageEvent) {
	raw := identity.ResolveReal(evt.Sender, evt.SenderAlt, evt.ContextSenders)
	ec := &eventContext{
		evt:  evt,
		raw:  raw,
		key:  identity.Normalize(raw),
		text: strings.TrimSpace(evt.Text),
	}

	for _, r := range c.rules {
		if r.apply(ctx, ec) {
			slog.Debug("Controller event handled", "rule", r.name, "key", string(ec.key), "message_id", evt.ID)
			return
		}
	}
	// The process rule always terminates; reaching here means a rule slipped.
	slog.Warn("Controller no rule handled event", "key", string(ec.key), "message_id", evt.ID)
}

// activeLead lazily resolves the lead for the event's identity. Lookup errors
// degrade to "no lead" and are never fatal.
func (c *Controller) activeLead(ctx context.Context, ec *eventContext) *models.Lead {
	if ec.leadLoaded {
		return ec.lead
	}
	ec.leadLoaded = true
	ec.lead = c.findActiveLead(ctx, ec.raw)
	return ec.lead
}

// normalizeText lowercases and trims a phrase for trigger comparison.
func normalizeText(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// isTrigger reports whether the text matches a configured trigger phrase.
func (c *Controller) isTrigger(text string) bool {
	normalized := normalizeText(text)
	for _, phrase := range c.cfg.TriggerPhrases {
		if normalized == normalizeText(phrase) {
			return true
		}
	}
	return false
}

// isRestart reports whether the text matches the restart keyword.
func (c *Controller) isRestart(text string) bool {
	return c.cfg.RestartKeyword != "" && normalizeText(text) == normalizeText(c.cfg.RestartKeyword)
}

// engineAwaitingChoice reports whether the engine is mid an outbound-driven
// interactive step for the lead. Engine errors count as "not awaiting".
func (c *Controller) engineAwaitingChoice(ctx context.Context, leadID string) bool {
	if leadID == "" {
		return false
	}
	info, err := c.engine.GetOrCreateSession(ctx, leadID)
	if err != nil {
		slog.Debug("Controller engine session lookup failed", "error", err, "lead_id", leadID)
		return false
	}
	return info.Step == models.StepAwaitingChoice
}

// send delivers a message and records its ID in the echo guard, so the echoed
// copy is not mistaken for manual intervention.
func (c *Controller) send(ctx context.Context, to, body string) bool {
	id, err := c.transport.SendMessage(ctx, to, body)
	if err != nil {
		slog.Error("Controller send failed", "error", err, "to", to)
		return false
	}
	c.echo.Add(id)
	return true
}

// dropSession tears down every piece of in-memory state for an identity.
func (c *Controller) dropSession(key identity.Key) {
	c.sessions.Delete(key)
	c.buttons.Delete(key)
}
