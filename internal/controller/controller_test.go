package controller

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zapleads/zapleads/internal/identity"
	"github.com/zapleads/zapleads/internal/messaging"
	"github.com/zapleads/zapleads/internal/models"
	"github.com/zapleads/zapleads/internal/session"
	"github.com/zapleads/zapleads/internal/store"
)

type engineCall struct {
	leadID string
	text   string
}

// fakeEngine scripts replies and records every call.
type fakeEngine struct {
	mu      sync.Mutex
	replies []models.EngineReply
	err     error
	calls   []engineCall
	steps   map[string]models.SessionStep
	resets  []string
}

func (f *fakeEngine) ProcessUserMessage(ctx context.Context, leadID, text string) (models.EngineReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, engineCall{leadID: leadID, text: text})
	if f.err != nil {
		return models.EngineReply{}, f.err
	}
	if len(f.replies) == 0 {
		return models.EngineReply{Text: "ok"}, nil
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

func (f *fakeEngine) GetOrCreateSession(ctx context.Context, leadID string) (models.SessionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if step, ok := f.steps[leadID]; ok {
		return models.SessionInfo{Step: step}, nil
	}
	return models.SessionInfo{Step: models.StepIdle}, nil
}

func (f *fakeEngine) ResetSession(ctx context.Context, leadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, leadID)
	return nil
}

func (f *fakeEngine) callTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.text
	}
	return out
}

const (
	testSender  = "5511987654321@s.whatsapp.net"
	testTrigger = "quero uma cotação"
)

func newTestController(t *testing.T, eng *fakeEngine) (*Controller, *store.InMemoryStore, *messaging.MockService) {
	t.Helper()
	st := store.NewInMemoryStore()
	st.SeedOwners([]models.Owner{
		{Nome: "Ana Souza", Email: "ana@zapleads.com.br"},
		{Nome: "Bruno Lima", Email: "bruno@zapleads.com.br"},
	})
	mock := messaging.NewMockService()
	c := New(DefaultConfig(), st, eng, mock)
	return c, st, mock
}

func textEvent(id, sender, text string) models.MessageEvent {
	return models.MessageEvent{ID: id, Sender: sender, Kind: models.KindText, Text: text, Timestamp: time.Now()}
}

func seedLead(t *testing.T, st *store.InMemoryStore, lead *models.Lead) *models.Lead {
	t.Helper()
	if lead.CriadoEm.IsZero() {
		lead.CriadoEm = time.Now()
	}
	if err := st.CreateLead(context.Background(), lead); err != nil {
		t.Fatalf("CreateLead failed: %v", err)
	}
	return lead
}

func TestTriggerCreatesLeadAndReplies(t *testing.T) {
	eng := &fakeEngine{replies: []models.EngineReply{
		{Text: "Qual seu nome?", Buttons: []models.Button{{Label: "Prefiro não dizer"}}},
	}}
	c, st, mock := newTestController(t, eng)
	ctx := context.Background()

	c.HandleEvent(ctx, textEvent("m1", testSender, testTrigger))

	sent := mock.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(sent))
	}
	if !strings.Contains(sent[0].Body, "Qual seu nome?") {
		t.Errorf("unexpected reply body %q", sent[0].Body)
	}
	if !strings.Contains(sent[0].Body, "1. Prefiro não dizer") {
		t.Errorf("reply should list options, got %q", sent[0].Body)
	}

	lead, err := st.FindActiveLead(ctx, []string{"(11) 98765-4321"})
	if err != nil || lead == nil {
		t.Fatalf("expected created lead, got %v / %v", lead, err)
	}
	if lead.Status != models.StatusNovo {
		t.Errorf("expected status novo, got %s", lead.Status)
	}
	if lead.PercentualConclusao != models.InitialCompletion {
		t.Errorf("expected initial completion, got %d", lead.PercentualConclusao)
	}
	if lead.OwnerEmail != "ana@zapleads.com.br" {
		t.Errorf("expected first owner attribution, got %q", lead.OwnerEmail)
	}
	if len(st.Interactions()) != 1 {
		t.Errorf("expected creation interaction logged")
	}
	if len(lead.LastButtons) != 1 || lead.LastButtons[0] != "Prefiro não dizer" {
		t.Errorf("expected persisted buttons, got %v", lead.LastButtons)
	}
}

func TestSelfEchoIsSkipped(t *testing.T) {
	eng := &fakeEngine{}
	c, st, mock := newTestController(t, eng)
	ctx := context.Background()

	c.HandleEvent(ctx, textEvent("m1", testSender, testTrigger))
	sent := mock.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(sent))
	}

	// The transport echoes our own outbound message back, flagged self.
	echo := textEvent(sent[0].ID, testSender, sent[0].Body)
	echo.FromMe = true
	c.HandleEvent(ctx, echo)

	if len(mock.Sent()) != 1 {
		t.Errorf("echo must not produce a reply")
	}
	lead, _ := st.FindActiveLead(ctx, []string{"(11) 98765-4321"})
	if lead == nil || lead.Status != models.StatusNovo {
		t.Errorf("echo must not mutate the lead, got %+v", lead)
	}
	if _, ok := c.sessions.Get(identity.Normalize(testSender)); !ok {
		t.Errorf("echo must not clear the session")
	}
}

func TestManualInterventionHandsOff(t *testing.T) {
	eng := &fakeEngine{}
	c, st, mock := newTestController(t, eng)
	ctx := context.Background()
	key := identity.Normalize(testSender)

	lead := seedLead(t, st, &models.Lead{
		ID: "lead-1", Telefone: "(11) 98765-4321",
		Status: models.StatusNovo, PercentualConclusao: models.InitialCompletion,
	})
	c.sessions.Put(key, session.State{LeadID: lead.ID, LastInteraction: time.Now()})

	manual := textEvent("operator-msg", testSender, "Oi, aqui é o Bruno, vou te atender")
	manual.FromMe = true
	c.HandleEvent(ctx, manual)

	got, _ := st.GetLead(ctx, lead.ID)
	if got.Status != models.StatusNegociacao {
		t.Errorf("expected negociacao after manual intervention, got %s", got.Status)
	}
	if _, ok := c.sessions.Get(key); ok {
		t.Errorf("session must be cleared on manual intervention")
	}
	if len(mock.Sent()) != 0 {
		t.Errorf("manual intervention must not produce a reply")
	}
}

func TestHandedOffLeadStaysSilentDespitePersistedButtons(t *testing.T) {
	eng := &fakeEngine{}
	c, st, mock := newTestController(t, eng)
	ctx := context.Background()
	key := identity.Normalize(testSender)

	// Mid-menu conversation: session live, options persisted.
	lead := seedLead(t, st, &models.Lead{
		ID: "lead-1", Telefone: "(11) 98765-4321",
		Status: models.StatusNovo, PercentualConclusao: 40,
		LastButtons: []string{"Essencial", "Completo"},
	})
	c.sessions.Put(key, session.State{LeadID: lead.ID, LastInteraction: time.Now()})
	c.buttons.Put(key, lead.LastButtons)

	manual := textEvent("operator-msg", testSender, "Pode deixar que eu assumo daqui")
	manual.FromMe = true
	c.HandleEvent(ctx, manual)

	got, _ := st.GetLead(ctx, lead.ID)
	if got.Status != models.StatusNegociacao {
		t.Fatalf("expected negociacao after manual intervention, got %s", got.Status)
	}
	if len(got.LastButtons) != 0 {
		t.Errorf("handoff must clear persisted buttons, got %v", got.LastButtons)
	}

	// The customer's next messages must not resurrect the bot.
	c.HandleEvent(ctx, textEvent("m2", testSender, "ok, obrigado"))
	c.HandleEvent(ctx, textEvent("m3", testSender, "2"))

	if len(mock.Sent()) != 0 {
		t.Errorf("bot must stay silent after handoff, got %d sends", len(mock.Sent()))
	}
	if len(eng.calls) != 0 {
		t.Errorf("engine must not be invoked after handoff, got %d calls", len(eng.calls))
	}
}

func TestUnsolicitedMediaHandsOff(t *testing.T) {
	eng := &fakeEngine{}
	c, st, mock := newTestController(t, eng)
	ctx := context.Background()

	lead := seedLead(t, st, &models.Lead{
		ID: "lead-1", Telefone: "(11) 98765-4321",
		Status: models.StatusNovo, PercentualConclusao: models.InitialCompletion,
	})

	media := models.MessageEvent{ID: "m1", Sender: testSender, Kind: models.KindImage, Timestamp: time.Now()}
	c.HandleEvent(ctx, media)

	got, _ := st.GetLead(ctx, lead.ID)
	if got.Status != models.StatusNegociacao {
		t.Errorf("expected negociacao after unsolicited media, got %s", got.Status)
	}
	if len(mock.Sent()) != 0 {
		t.Errorf("unsolicited media must not produce a reply")
	}
}

func TestTriggerAlwaysReplies(t *testing.T) {
	t.Run("resets a handed-off lead", func(t *testing.T) {
		eng := &fakeEngine{}
		c, st, mock := newTestController(t, eng)
		ctx := context.Background()

		lead := seedLead(t, st, &models.Lead{
			ID: "lead-1", Telefone: "(11) 98765-4321",
			Status: models.StatusProposta, PercentualConclusao: 70,
			FollowUpCount: 2, LastButtons: []string{"Sim", "Não"},
		})

		c.HandleEvent(ctx, textEvent("m1", testSender, testTrigger))

		if len(mock.Sent()) != 1 {
			t.Fatalf("trigger must always produce a reply, got %d sends", len(mock.Sent()))
		}
		got, _ := st.GetLead(ctx, lead.ID)
		if got.Status != models.StatusNovo {
			t.Errorf("expected status reset to novo, got %s", got.Status)
		}
		if got.PercentualConclusao != models.InitialCompletion {
			t.Errorf("expected completion reset, got %d", got.PercentualConclusao)
		}
		if got.FollowUpCount != 0 || got.LastFollowUpAt != nil {
			t.Errorf("expected follow-up counters cleared, got %d / %v", got.FollowUpCount, got.LastFollowUpAt)
		}
		if len(eng.resets) != 1 || eng.resets[0] != lead.ID {
			t.Errorf("expected engine session reset for %s, got %v", lead.ID, eng.resets)
		}
	})

	t.Run("fechado lead gets a fresh one", func(t *testing.T) {
		eng := &fakeEngine{}
		c, st, mock := newTestController(t, eng)
		ctx := context.Background()

		seedLead(t, st, &models.Lead{
			ID: "lead-closed", Telefone: "(11) 98765-4321",
			Status: models.StatusFechado, PercentualConclusao: 100,
		})

		c.HandleEvent(ctx, textEvent("m1", testSender, testTrigger))

		if len(mock.Sent()) != 1 {
			t.Fatalf("trigger must always produce a reply, got %d sends", len(mock.Sent()))
		}
		fresh, _ := st.FindActiveLead(ctx, []string{"(11) 98765-4321"})
		if fresh == nil || fresh.ID == "lead-closed" {
			t.Fatalf("expected a fresh lead, got %+v", fresh)
		}
		if fresh.Status != models.StatusNovo {
			t.Errorf("expected fresh lead novo, got %s", fresh.Status)
		}
	})
}

func TestNumericReplyIsTranslated(t *testing.T) {
	eng := &fakeEngine{replies: []models.EngineReply{
		{Text: "Qual plano?", Buttons: []models.Button{{Label: "Essencial"}, {Label: "Completo"}}},
		{Text: "Anotado!"},
	}}
	c, _, _ := newTestController(t, eng)
	ctx := context.Background()

	c.HandleEvent(ctx, textEvent("m1", testSender, testTrigger))
	c.HandleEvent(ctx, textEvent("m2", testSender, "2"))

	texts := eng.callTexts()
	if len(texts) != 2 {
		t.Fatalf("expected 2 engine calls, got %d", len(texts))
	}
	if texts[1] != "Completo" {
		t.Errorf("expected bare 2 translated to option label, got %q", texts[1])
	}
}

func TestUnknownIdentitySmallTalkIsDropped(t *testing.T) {
	eng := &fakeEngine{}
	c, st, mock := newTestController(t, eng)
	ctx := context.Background()

	c.HandleEvent(ctx, textEvent("m1", testSender, "oi"))

	if len(mock.Sent()) != 0 {
		t.Errorf("unknown sender small talk must not be answered")
	}
	lead, _ := st.FindActiveLead(ctx, []string{"(11) 98765-4321"})
	if lead != nil {
		t.Errorf("unknown sender small talk must not create a lead, got %+v", lead)
	}
	if len(eng.calls) != 0 {
		t.Errorf("engine must not be invoked")
	}
}

func TestFinishedLeadStaysSilent(t *testing.T) {
	eng := &fakeEngine{}
	c, st, mock := newTestController(t, eng)
	ctx := context.Background()

	seedLead(t, st, &models.Lead{
		ID: "lead-1", Telefone: "(11) 98765-4321",
		Status: models.StatusNovo, PercentualConclusao: 100,
	})

	for i := 0; i < 3; i++ {
		c.HandleEvent(ctx, textEvent("m1", testSender, "e aí, tudo bem?"))
	}

	if len(mock.Sent()) != 0 {
		t.Errorf("finished lead must never be answered, got %d sends", len(mock.Sent()))
	}
}

func TestKnownLeadGetsOneReconnectNotice(t *testing.T) {
	eng := &fakeEngine{}
	c, st, mock := newTestController(t, eng)
	ctx := context.Background()

	lead := seedLead(t, st, &models.Lead{
		ID: "lead-1", Telefone: "(11) 98765-4321",
		Status: models.StatusNovo, PercentualConclusao: 40,
	})

	c.HandleEvent(ctx, textEvent("m1", testSender, "oi de novo"))

	sent := mock.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one reconnect notice, got %d sends", len(sent))
	}
	if !strings.Contains(sent[0].Body, "1.") || !strings.Contains(sent[0].Body, "2.") {
		t.Errorf("reconnect notice should offer a menu, got %q", sent[0].Body)
	}
	if _, ok := c.sessions.Get(identity.Normalize(testSender)); ok {
		t.Errorf("reconnect notice must not open a session")
	}
	got, _ := st.GetLead(ctx, lead.ID)
	if len(got.LastButtons) != 0 {
		t.Errorf("reconnect menu must not be persisted, got %v", got.LastButtons)
	}
	if len(eng.calls) != 0 {
		t.Errorf("reconnect notice must not invoke the engine")
	}

	// Casual follow-ups after the notice stay dropped; only the menu picks
	// or a trigger phrase resume.
	c.HandleEvent(ctx, textEvent("m2", testSender, "hm?"))
	if len(mock.Sent()) != 1 {
		t.Errorf("follow-up small talk must not be answered, got %d sends", len(mock.Sent()))
	}
	if len(eng.calls) != 0 {
		t.Errorf("follow-up small talk must not invoke the engine")
	}
}

func TestReconnectMenuNumericPickTriggersRestart(t *testing.T) {
	eng := &fakeEngine{replies: []models.EngineReply{{Text: "Vamos recomeçar! Qual seu nome?"}}}
	c, st, mock := newTestController(t, eng)
	ctx := context.Background()

	lead := seedLead(t, st, &models.Lead{
		ID: "lead-1", Telefone: "(11) 98765-4321",
		Status: models.StatusNovo, PercentualConclusao: 40,
	})

	c.HandleEvent(ctx, textEvent("m1", testSender, "oi de novo"))
	c.HandleEvent(ctx, textEvent("m2", testSender, "2"))

	sent := mock.Sent()
	if len(sent) != 2 {
		t.Fatalf("expected notice plus restart reply, got %d sends", len(sent))
	}
	if len(eng.resets) != 1 || eng.resets[0] != lead.ID {
		t.Errorf("expected engine reset from menu pick, got %v", eng.resets)
	}
	got, _ := st.GetLead(ctx, lead.ID)
	if got.PercentualConclusao != models.InitialCompletion {
		t.Errorf("expected qualification reset, got %d", got.PercentualConclusao)
	}
}

func TestSessionHealingAfterRestart(t *testing.T) {
	eng := &fakeEngine{replies: []models.EngineReply{{Text: "Plano Completo anotado."}}}
	c, st, _ := newTestController(t, eng)
	ctx := context.Background()

	// Persisted state survived; in-memory session and buttons did not.
	seedLead(t, st, &models.Lead{
		ID: "lead-1", Telefone: "(11) 98765-4321",
		Status: models.StatusNovo, PercentualConclusao: 40,
		LastButtons: []string{"Essencial", "Completo"},
	})

	c.HandleEvent(ctx, textEvent("m1", testSender, "2"))

	texts := eng.callTexts()
	if len(texts) != 1 {
		t.Fatalf("expected healed session to reach the engine, got %d calls", len(texts))
	}
	if texts[0] != "Completo" {
		t.Errorf("expected numbered reply interpretable after healing, got %q", texts[0])
	}
}

func TestEngineErrorSendsApology(t *testing.T) {
	eng := &fakeEngine{err: context.DeadlineExceeded}
	c, _, mock := newTestController(t, eng)
	ctx := context.Background()
	key := identity.Normalize(testSender)

	c.HandleEvent(ctx, textEvent("m1", testSender, testTrigger))

	sent := mock.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected apology, got %d sends", len(sent))
	}
	if sent[0].Body != msgApology {
		t.Errorf("expected generic apology, got %q", sent[0].Body)
	}
	if _, ok := c.sessions.Get(key); !ok {
		t.Errorf("session must be left intact so the user can retry")
	}
}

func TestSweepReminderLadder(t *testing.T) {
	eng := &fakeEngine{}
	c, st, mock := newTestController(t, eng)
	ctx := context.Background()
	key := identity.Normalize(testSender)

	base := time.Now()
	lead := seedLead(t, st, &models.Lead{
		ID: "lead-1", Telefone: "(11) 98765-4321",
		Status: models.StatusNovo, PercentualConclusao: 40,
		CriadoEm: base,
	})
	c.sessions.Put(key, session.State{LeadID: lead.ID, Raw: testSender, LastInteraction: base})

	// Past the first threshold: exactly one nudge.
	c.now = func() time.Time { return base.Add(c.cfg.FirstReminderDelay + time.Second) }
	c.Sweep(ctx)

	if len(mock.Sent()) != 1 {
		t.Fatalf("expected one reminder, got %d sends", len(mock.Sent()))
	}
	if mock.Sent()[0].To != testSender {
		t.Errorf("reminder must go to the inbound identifier, got %q", mock.Sent()[0].To)
	}
	got, _ := st.GetLead(ctx, lead.ID)
	if got.FollowUpCount != 1 {
		t.Errorf("expected followUpCount 1, got %d", got.FollowUpCount)
	}

	// A second sweep shortly after must not send again.
	c.now = func() time.Time { return base.Add(c.cfg.FirstReminderDelay + 30*time.Second) }
	c.Sweep(ctx)

	if len(mock.Sent()) != 1 {
		t.Errorf("second sweep within the interval must not send, got %d", len(mock.Sent()))
	}

	// Once the follow-up interval elapses, the next rung fires.
	c.now = func() time.Time { return base.Add(c.cfg.FirstReminderDelay + c.cfg.FollowUpInterval + time.Minute) }
	c.Sweep(ctx)

	if len(mock.Sent()) != 2 {
		t.Errorf("expected follow-up after interval, got %d sends", len(mock.Sent()))
	}
	got, _ = st.GetLead(ctx, lead.ID)
	if got.FollowUpCount != 2 {
		t.Errorf("expected followUpCount 2, got %d", got.FollowUpCount)
	}
}

func TestSweepRespectsFollowUpCap(t *testing.T) {
	eng := &fakeEngine{}
	c, st, mock := newTestController(t, eng)
	ctx := context.Background()
	key := identity.Normalize(testSender)

	base := time.Now()
	capAt := time.Now().Add(-time.Hour)
	lead := seedLead(t, st, &models.Lead{
		ID: "lead-1", Telefone: "(11) 98765-4321",
		Status: models.StatusNovo, PercentualConclusao: 40,
		FollowUpCount: c.cfg.MaxFollowUps, LastFollowUpAt: &capAt,
		CriadoEm: base,
	})
	c.sessions.Put(key, session.State{LeadID: lead.ID, LastInteraction: base})

	c.now = func() time.Time { return base.Add(c.cfg.FollowUpInterval * 4) }
	c.Sweep(ctx)

	if len(mock.Sent()) != 0 {
		t.Errorf("capped lead must not receive more nudges, got %d", len(mock.Sent()))
	}
}

func TestSweepExpiresOldLead(t *testing.T) {
	eng := &fakeEngine{}
	c, st, mock := newTestController(t, eng)
	ctx := context.Background()
	key := identity.Normalize(testSender)

	base := time.Now()
	lead := seedLead(t, st, &models.Lead{
		ID: "lead-1", Telefone: "(11) 98765-4321",
		Status: models.StatusNovo, PercentualConclusao: 40,
		CriadoEm: base.Add(-c.cfg.ExpiryWindow - time.Hour),
	})
	c.sessions.Put(key, session.State{LeadID: lead.ID, LastInteraction: base})

	c.now = func() time.Time { return base }
	c.Sweep(ctx)

	sent := mock.Sent()
	if len(sent) != 1 || sent[0].Body != msgExpiry {
		t.Fatalf("expected expiry message, got %v", sent)
	}
	// Without a recorded raw identifier the address is rebuilt from the
	// stored phone with the country code restored.
	if sent[0].To != "5511987654321" {
		t.Errorf("expiry must address the full number, got %q", sent[0].To)
	}
	got, _ := st.GetLead(ctx, lead.ID)
	if got.Status != models.StatusPerdido {
		t.Errorf("expected perdido after expiry, got %s", got.Status)
	}
	if _, ok := c.sessions.Get(key); ok {
		t.Errorf("expired session must be dropped")
	}
}

func TestSweepPrunesHandedOffSessions(t *testing.T) {
	eng := &fakeEngine{}
	c, st, mock := newTestController(t, eng)
	ctx := context.Background()
	key := identity.Normalize(testSender)

	base := time.Now()
	lead := seedLead(t, st, &models.Lead{
		ID: "lead-1", Telefone: "(11) 98765-4321",
		Status: models.StatusNegociacao, PercentualConclusao: 40,
		CriadoEm: base,
	})
	c.sessions.Put(key, session.State{LeadID: lead.ID, LastInteraction: base})

	// Inside the grace period the session survives.
	c.now = func() time.Time { return base.Add(c.cfg.PruneGrace / 2) }
	c.Sweep(ctx)
	if _, ok := c.sessions.Get(key); !ok {
		t.Fatalf("session pruned before grace expired")
	}

	c.now = func() time.Time { return base.Add(c.cfg.PruneGrace + time.Minute) }
	c.Sweep(ctx)
	if _, ok := c.sessions.Get(key); ok {
		t.Errorf("handed-off session must be pruned after grace")
	}
	if len(mock.Sent()) != 0 {
		t.Errorf("pruning must be silent, got %d sends", len(mock.Sent()))
	}
}

func TestSyncLabel(t *testing.T) {
	eng := &fakeEngine{}
	c, _, mock := newTestController(t, eng)
	c.cfg.HotLabelID = "7"
	c.cfg.ColdLabelID = "8"
	ctx := context.Background()

	hot := &models.Lead{ID: "lead-1", PercentualConclusao: 100, Idade: "34", PlanoDesejado: "Completo"}
	c.syncLabel(ctx, hot, testSender)

	cold := &models.Lead{ID: "lead-2", PercentualConclusao: 40}
	c.syncLabel(ctx, cold, testSender)

	labels := mock.Labels()
	if len(labels) != 2 {
		t.Fatalf("expected 2 label ops, got %d", len(labels))
	}
	if labels[0].Add[0] != "7" || labels[0].Remove[0] != "8" {
		t.Errorf("qualified lead should get hot label, got %+v", labels[0])
	}
	if labels[1].Add[0] != "8" || labels[1].Remove[0] != "7" {
		t.Errorf("incomplete lead should get cold label, got %+v", labels[1])
	}
}

func TestSyncLabelSkipsWhenUnconfigured(t *testing.T) {
	eng := &fakeEngine{}
	c, _, mock := newTestController(t, eng)
	ctx := context.Background()

	c.syncLabel(ctx, &models.Lead{ID: "lead-1"}, testSender)

	if len(mock.Labels()) != 0 {
		t.Errorf("label sync without configured IDs must be a no-op")
	}
}

func TestEndToEndQualificationFlow(t *testing.T) {
	eng := &fakeEngine{replies: []models.EngineReply{
		{Text: "Olá! Qual seu nome?"},
		{Text: "Prazer, Maria! Qual plano te interessa?", Buttons: []models.Button{
			{Label: "Essencial"}, {Label: "Completo"}, {Label: "Premium"},
		}},
		{Text: "Ótima escolha!"},
	}}
	c, st, mock := newTestController(t, eng)
	ctx := context.Background()

	c.HandleEvent(ctx, textEvent("m1", testSender, testTrigger))
	c.HandleEvent(ctx, textEvent("m2", testSender, "Maria"))
	c.HandleEvent(ctx, textEvent("m3", testSender, "2️⃣"))

	texts := eng.callTexts()
	if len(texts) != 3 {
		t.Fatalf("expected 3 engine calls, got %d", len(texts))
	}
	if texts[2] != "Completo" {
		t.Errorf("expected decorated numeric reply translated, got %q", texts[2])
	}
	if len(mock.Sent()) != 3 {
		t.Errorf("expected 3 replies, got %d", len(mock.Sent()))
	}

	lead, _ := st.FindActiveLead(ctx, []string{"(11) 98765-4321"})
	if lead == nil {
		t.Fatalf("expected active lead")
	}
	if lead.Status != models.StatusNovo {
		t.Errorf("expected lead still novo mid-flow, got %s", lead.Status)
	}
}
