// Package engine implements the conversational qualification engine consumed
// by the WhatsApp controller. The production implementation drives the sales
// funnel through OpenAI chat completions; the controller only depends on the
// Engine interface.
package engine

import (
	"context"

	"github.com/zapleads/zapleads/internal/models"
)

// Engine is the conversational collaborator contract.
type Engine interface {
	// ProcessUserMessage advances the lead's qualification conversation with
	// one user message and returns the assistant reply, possibly with
	// quick-reply buttons.
	ProcessUserMessage(ctx context.Context, leadID, text string) (models.EngineReply, error)

	// GetOrCreateSession returns the engine-side session snapshot for a lead,
	// creating an idle session when none exists. The silence policy consults
	// the step to detect outbound-driven interactive prompts in flight.
	GetOrCreateSession(ctx context.Context, leadID string) (models.SessionInfo, error)

	// ResetSession discards the engine-side conversation state for a lead.
	ResetSession(ctx context.Context, leadID string) error
}

// QualificationRecorder is the narrow persistence surface the engine writes
// flow progress through. The controller's store satisfies it.
type QualificationRecorder interface {
	UpdateQualification(ctx context.Context, leadID string, percentual int, idade, planoDesejado string) error
}
