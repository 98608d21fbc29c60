// Package models defines core domain types shared across ZapLeads components.
package models

import "time"

// LeadStatus represents the commercial stage of a lead in the funnel.
type LeadStatus string

// Lead status values. The bot only drives leads while they are StatusNovo;
// every other status means a human or the funnel outcome owns the conversation.
const (
	StatusNovo       LeadStatus = "novo"
	StatusProposta   LeadStatus = "proposta"
	StatusNegociacao LeadStatus = "negociacao"
	StatusFechado    LeadStatus = "fechado"
	StatusPerdido    LeadStatus = "perdido"
)

// IsTerminal reports whether the status permanently closes the lead. Closed
// leads never block a fresh lead from being created for the same number.
func (s LeadStatus) IsTerminal() bool {
	return s == StatusFechado || s == StatusPerdido
}

// InitialCompletion is the completion percentage assigned to a lead that has
// just entered the qualification flow.
const InitialCompletion = 10

// Lead is the persisted lead record. It is owned by the CRUD subsystem; the
// conversation controller reads and mutates only the fields listed here.
type Lead struct {
	ID                  string     `json:"id"`
	Nome                string     `json:"nome"`
	Telefone            string     `json:"telefone"` // display format, e.g. (11) 98765-4321
	Status              LeadStatus `json:"status"`
	PercentualConclusao int        `json:"percentualConclusao"` // 0-100
	Idade               string     `json:"idade"`
	PlanoDesejado       string     `json:"planoDesejado"`
	LastButtons         []string   `json:"lastButtons"`
	LastFollowUpAt      *time.Time `json:"lastFollowUpAt"`
	FollowUpCount       int        `json:"followUpCount"`
	OwnerEmail          string     `json:"ownerEmail"`
	Origem              string     `json:"origem"`
	CriadoEm            time.Time  `json:"criadoEm"`
}

// Finished reports whether the qualification conversation is over for silence
// purposes: a fully completed flow and a terminal status both independently
// qualify.
func (l *Lead) Finished() bool {
	return l.PercentualConclusao >= 100 || l.Status.IsTerminal()
}

// FinishedOrManual reports whether the bot must treat the lead as no longer
// its own: any status other than novo means a human took over.
func (l *Lead) FinishedOrManual() bool {
	return l.Status != StatusNovo || l.PercentualConclusao >= 100
}

// Qualified reports whether the lead carries every field the sales team needs:
// a completed flow, a known age and a desired plan. Qualified leads get the
// "hot" conversation label.
func (l *Lead) Qualified() bool {
	return l.PercentualConclusao >= 100 && l.Idade != "" && l.PlanoDesejado != ""
}

// Interaction is an audit log row recorded when the controller creates a lead
// or observes a notable event on one.
type Interaction struct {
	ID       string    `json:"id"`
	LeadID   string    `json:"leadId"`
	Tipo     string    `json:"tipo"`
	Conteudo string    `json:"conteudo"`
	CriadoEm time.Time `json:"criadoEm"`
}

// Owner is a CRM user that leads can be attributed to.
type Owner struct {
	Nome  string `json:"nome"`
	Email string `json:"email"`
}

// MessageKind classifies the payload of an inbound transport event.
type MessageKind string

// Message kinds emitted by the transport adapter.
const (
	KindText     MessageKind = "text"
	KindImage    MessageKind = "image"
	KindVideo    MessageKind = "video"
	KindAudio    MessageKind = "audio"
	KindDocument MessageKind = "document"
	KindSticker  MessageKind = "sticker"
)

// IsMedia reports whether the kind is a media attachment rather than text.
func (k MessageKind) IsMedia() bool {
	return k != KindText && k != ""
}

// MessageEvent is a transport-agnostic inbound message event. The messaging
// adapter converts raw transport events into this shape before they reach the
// controller.
type MessageEvent struct {
	ID        string // transport message ID
	Sender    string // raw sender identifier, possibly masked by a relay
	SenderAlt string // alternative real identifier, when the transport exposes one
	// ContextSenders are additional candidate identifiers recovered from
	// nested context payloads, in transport priority order.
	ContextSenders []string
	Kind           MessageKind
	Text           string
	PushName       string
	FromMe         bool // sent from the controller's own account
	Timestamp      time.Time
}

// Button is a quick-reply option offered alongside an assistant reply.
type Button struct {
	Label string `json:"label"`
}

// EngineReply is the conversational engine's answer to one user message.
type EngineReply struct {
	Text    string   `json:"text"`
	Buttons []Button `json:"buttons,omitempty"`
}

// ButtonLabels extracts the ordered option labels from a reply.
func (r EngineReply) ButtonLabels() []string {
	if len(r.Buttons) == 0 {
		return nil
	}
	labels := make([]string, len(r.Buttons))
	for i, b := range r.Buttons {
		labels[i] = b.Label
	}
	return labels
}

// SessionStep identifies where the engine's own session currently is.
type SessionStep string

// Engine session steps consulted by the controller.
const (
	// StepAwaitingChoice means the engine sent an outbound-driven interactive
	// prompt and is waiting for the user to pick an option. The silence policy
	// keeps the conversation open while the engine reports this step.
	StepAwaitingChoice SessionStep = "awaiting_choice"
	// StepIdle means the engine has no pending interactive prompt.
	StepIdle SessionStep = "idle"
)

// SessionInfo is the engine-side session snapshot exposed to the controller.
type SessionInfo struct {
	Step SessionStep `json:"step"`
}
