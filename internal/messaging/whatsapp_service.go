package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zapleads/zapleads/internal/models"
	"github.com/zapleads/zapleads/internal/whatsapp"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"
)

// Constants for WhatsAppService configuration.
const (
	// DefaultChannelBufferSize defines the default buffer size for the event channel
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
)

// WhatsAppService implements Service using the Whatsmeow-based whatsapp client.
type WhatsAppService struct {
	client   whatsapp.Sender
	waClient *whatsapp.Client // access to the underlying client for event handling
	events   chan models.MessageEvent
	done     chan struct{}
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given Sender.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	service := &WhatsAppService{
		client: client,
		events: make(chan models.MessageEvent, DefaultChannelBufferSize),
		done:   make(chan struct{}),
	}

	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}

	return service
}

// Start begins background event processing.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil {
		slog.Debug("WhatsAppService no full client available, skipping event handling (likely mock)")
		return nil
	}
	go s.handleEvents(ctx)
	slog.Debug("WhatsAppService event handler started")
	return nil
}

// Stop stops background processing.
func (s *WhatsAppService) Stop() error {
	slog.Info("WhatsAppService Stop invoked")
	close(s.done)
	close(s.events)
	if s.waClient != nil {
		s.waClient.Disconnect()
	}
	return nil
}

// SendMessage sends a message and returns the transport message ID.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) (string, error) {
	id, err := s.client.SendMessage(ctx, to, body)
	if err != nil {
		slog.Error("WhatsAppService SendMessage error", "error", err, "to", to)
		return "", err
	}
	slog.Debug("WhatsAppService message sent", "to", to, "message_id", id)
	return id, nil
}

// SetTyping toggles the composing indicator. Failures are returned but safe to ignore.
func (s *WhatsAppService) SetTyping(ctx context.Context, to string, typing bool) error {
	return s.client.SetTyping(ctx, to, typing)
}

// ApplyLabel applies and removes conversation labels. The first failure is
// returned; remaining operations still run.
func (s *WhatsAppService) ApplyLabel(ctx context.Context, to string, add []string, remove []string) error {
	var firstErr error
	for _, labelID := range add {
		if err := s.client.SetLabel(ctx, to, labelID, true); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to add label %s: %w", labelID, err)
		}
	}
	for _, labelID := range remove {
		if err := s.client.SetLabel(ctx, to, labelID, false); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to remove label %s: %w", labelID, err)
		}
	}
	return firstErr
}

// Events returns the inbound message event stream.
func (s *WhatsAppService) Events() <-chan models.MessageEvent {
	return s.events
}

// handleEvents registers the whatsmeow event handler and forwards converted
// message events until the context is cancelled.
func (s *WhatsAppService) handleEvents(ctx context.Context) {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Error("WhatsAppService handleEvents: no client available")
		return
	}

	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			s.handleIncomingMessage(v)
		case *events.Connected:
			slog.Info("WhatsAppService connected to WhatsApp")
		case *events.Disconnected:
			slog.Warn("WhatsAppService disconnected from WhatsApp; client will reconnect")
		case *events.LoggedOut:
			slog.Error("WhatsAppService logged out from WhatsApp; re-pairing required")
		default:
			// Ignore other event types.
		}
	})

	<-ctx.Done()
	slog.Debug("WhatsAppService handleEvents stopping due to context cancellation")
}

// handleIncomingMessage converts a whatsmeow message event and forwards it.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	event, ok := convertMessage(evt)
	if !ok {
		slog.Debug("WhatsAppService ignoring unsupported message payload", "from", evt.Info.Sender.String())
		return
	}

	select {
	case s.events <- event:
		slog.Debug("WhatsAppService inbound event forwarded", "from", event.Sender, "kind", event.Kind, "from_me", event.FromMe)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService event channel blocked, dropping message", "from", event.Sender, "timeout", DefaultChannelTimeout)
	}
}

// convertMessage maps a whatsmeow message event into the transport-agnostic
// shape. Returns false for payloads the controller has no use for (protocol
// messages, reactions, etc).
func convertMessage(evt *events.Message) (models.MessageEvent, bool) {
	if evt.Message == nil {
		return models.MessageEvent{}, false
	}
	msg := evt.Message

	// On our own outbound messages Info.Sender is the bot account; the
	// customer the message was written to is the chat JID.
	sender := evt.Info.Sender.String()
	if evt.Info.IsFromMe {
		sender = evt.Info.Chat.String()
	}

	out := models.MessageEvent{
		ID:        string(evt.Info.ID),
		Sender:    sender,
		PushName:  evt.Info.PushName,
		FromMe:    evt.Info.IsFromMe,
		Timestamp: evt.Info.Timestamp,
	}
	if !evt.Info.SenderAlt.IsEmpty() {
		out.SenderAlt = evt.Info.SenderAlt.String()
	}

	// Candidate real identifiers from nested context payloads, in fixed
	// priority order. Relay-masked events carry the real participant here.
	out.ContextSenders = contextParticipants(msg)

	switch {
	case msg.Conversation != nil:
		out.Kind = models.KindText
		out.Text = msg.GetConversation()
	case msg.ExtendedTextMessage != nil:
		out.Kind = models.KindText
		out.Text = msg.ExtendedTextMessage.GetText()
	case msg.ImageMessage != nil:
		out.Kind = models.KindImage
		out.Text = msg.ImageMessage.GetCaption()
	case msg.VideoMessage != nil:
		out.Kind = models.KindVideo
		out.Text = msg.VideoMessage.GetCaption()
	case msg.AudioMessage != nil:
		out.Kind = models.KindAudio
	case msg.DocumentMessage != nil:
		out.Kind = models.KindDocument
		out.Text = msg.DocumentMessage.GetCaption()
	case msg.StickerMessage != nil:
		out.Kind = models.KindSticker
	default:
		return models.MessageEvent{}, false
	}

	return out, true
}

// contextParticipants collects ContextInfo participants from the message
// sub-payloads in priority order.
func contextParticipants(msg *waE2E.Message) []string {
	infos := []*waE2E.ContextInfo{
		msg.GetExtendedTextMessage().GetContextInfo(),
		msg.GetImageMessage().GetContextInfo(),
		msg.GetAudioMessage().GetContextInfo(),
		msg.GetVideoMessage().GetContextInfo(),
		msg.GetDocumentMessage().GetContextInfo(),
	}
	var participants []string
	for _, info := range infos {
		if p := info.GetParticipant(); p != "" {
			participants = append(participants, p)
		}
	}
	return participants
}
