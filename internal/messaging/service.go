// Package messaging provides the transport abstraction between the WhatsApp
// client and the conversation controller.
package messaging

import (
	"context"

	"github.com/zapleads/zapleads/internal/models"
)

// Service is the pluggable message transport consumed by the controller. It
// sends messages, reflects presence and labels, and delivers inbound events.
type Service interface {
	// SendMessage sends a text message and returns the transport message ID.
	SendMessage(ctx context.Context, to string, body string) (string, error)

	// SetTyping toggles the composing indicator for a chat. Best-effort.
	SetTyping(ctx context.Context, to string, typing bool) error

	// ApplyLabel applies and removes conversation labels. Best-effort.
	ApplyLabel(ctx context.Context, to string, add []string, remove []string) error

	// Events returns the inbound message event stream.
	Events() <-chan models.MessageEvent

	// Start begins background event processing.
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error
}
