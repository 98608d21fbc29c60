package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/zapleads/zapleads/internal/models"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

func strPtr(s string) *string { return &s }

func newMessageEvent(msg *waE2E.Message, fromMe bool) *events.Message {
	evt := &events.Message{Message: msg}
	evt.Info.ID = "wamid-1"
	evt.Info.Chat = types.NewJID("5511987654321", "s.whatsapp.net")
	if fromMe {
		// Our own messages carry the bot account as sender.
		evt.Info.Sender = types.NewJID("5511900000000", "s.whatsapp.net")
	} else {
		evt.Info.Sender = types.NewJID("5511987654321", "s.whatsapp.net")
	}
	evt.Info.IsFromMe = fromMe
	evt.Info.PushName = "Maria"
	evt.Info.Timestamp = time.Now()
	return evt
}

func TestConvertMessagePlainText(t *testing.T) {
	evt := newMessageEvent(&waE2E.Message{Conversation: strPtr("oi, quero um plano")}, false)

	out, ok := convertMessage(evt)
	if !ok {
		t.Fatal("expected conversion to succeed")
	}
	if out.Kind != models.KindText || out.Text != "oi, quero um plano" {
		t.Errorf("unexpected event: %+v", out)
	}
	if out.ID != "wamid-1" || out.FromMe {
		t.Errorf("unexpected metadata: %+v", out)
	}
}

func TestConvertMessageExtendedText(t *testing.T) {
	msg := &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: strPtr("quero sim"),
			ContextInfo: &waE2E.ContextInfo{
				Participant: strPtr("5511987654321@s.whatsapp.net"),
			},
		},
	}
	evt := newMessageEvent(msg, false)

	out, ok := convertMessage(evt)
	if !ok {
		t.Fatal("expected conversion to succeed")
	}
	if out.Text != "quero sim" {
		t.Errorf("unexpected text: %q", out.Text)
	}
	if len(out.ContextSenders) != 1 || out.ContextSenders[0] != "5511987654321@s.whatsapp.net" {
		t.Errorf("unexpected context senders: %v", out.ContextSenders)
	}
}

func TestConvertMessageMediaKinds(t *testing.T) {
	cases := []struct {
		name string
		msg  *waE2E.Message
		kind models.MessageKind
	}{
		{"image", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: strPtr("foto")}}, models.KindImage},
		{"video", &waE2E.Message{VideoMessage: &waE2E.VideoMessage{}}, models.KindVideo},
		{"audio", &waE2E.Message{AudioMessage: &waE2E.AudioMessage{}}, models.KindAudio},
		{"document", &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{}}, models.KindDocument},
		{"sticker", &waE2E.Message{StickerMessage: &waE2E.StickerMessage{}}, models.KindSticker},
	}
	for _, c := range cases {
		out, ok := convertMessage(newMessageEvent(c.msg, false))
		if !ok {
			t.Fatalf("%s: expected conversion to succeed", c.name)
		}
		if out.Kind != c.kind {
			t.Errorf("%s: expected kind %s, got %s", c.name, c.kind, out.Kind)
		}
		if !out.Kind.IsMedia() {
			t.Errorf("%s: expected media kind", c.name)
		}
	}
}

func TestConvertMessageSkipsUnsupportedPayloads(t *testing.T) {
	if _, ok := convertMessage(newMessageEvent(&waE2E.Message{}, false)); ok {
		t.Error("empty payload should be skipped")
	}
	if _, ok := convertMessage(&events.Message{}); ok {
		t.Error("nil message should be skipped")
	}
}

func TestConvertMessageFromMe(t *testing.T) {
	out, ok := convertMessage(newMessageEvent(&waE2E.Message{Conversation: strPtr("resposta manual")}, true))
	if !ok {
		t.Fatal("expected conversion to succeed")
	}
	if !out.FromMe {
		t.Error("expected FromMe to be set")
	}
	// Sender must be the conversation peer, not the bot's own account, so the
	// manual-intervention path resolves the customer's lead.
	if out.Sender != "5511987654321@s.whatsapp.net" {
		t.Errorf("expected chat peer as sender, got %q", out.Sender)
	}
}

func TestMockServiceRecordsSends(t *testing.T) {
	m := NewMockService()
	id, err := m.SendMessage(context.Background(), "5511987654321", "olá")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if id == "" {
		t.Error("expected generated message ID")
	}
	sent := m.Sent()
	if len(sent) != 1 || sent[0].Body != "olá" {
		t.Errorf("unexpected sent messages: %+v", sent)
	}
}
