package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/zapleads/zapleads/internal/models"
)

// SentMessage records one outbound message observed by the mock service.
type SentMessage struct {
	To   string
	Body string
	ID   string
}

// LabelOp records one label mutation observed by the mock service.
type LabelOp struct {
	To     string
	Add    []string
	Remove []string
}

// MockService implements Service in memory for tests. Sends are recorded and
// assigned sequential message IDs; events are pushed by the test itself.
type MockService struct {
	mu       sync.Mutex
	sent     []SentMessage
	labels   []LabelOp
	events   chan models.MessageEvent
	nextID   int
	SendErr  error // returned by SendMessage when set
	LabelErr error // returned by ApplyLabel when set
}

// NewMockService creates an empty mock transport.
func NewMockService() *MockService {
	return &MockService{events: make(chan models.MessageEvent, DefaultChannelBufferSize)}
}

// SendMessage records the message and returns a generated ID.
func (m *MockService) SendMessage(ctx context.Context, to string, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return "", m.SendErr
	}
	m.nextID++
	id := fmt.Sprintf("mock-%d", m.nextID)
	m.sent = append(m.sent, SentMessage{To: to, Body: body, ID: id})
	return id, nil
}

// SetTyping is a no-op.
func (m *MockService) SetTyping(ctx context.Context, to string, typing bool) error {
	return nil
}

// ApplyLabel records the label mutation.
func (m *MockService) ApplyLabel(ctx context.Context, to string, add []string, remove []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LabelErr != nil {
		return m.LabelErr
	}
	m.labels = append(m.labels, LabelOp{To: to, Add: add, Remove: remove})
	return nil
}

// Events returns the event channel; tests push events with PushEvent.
func (m *MockService) Events() <-chan models.MessageEvent {
	return m.events
}

// PushEvent delivers an inbound event to whoever consumes Events.
func (m *MockService) PushEvent(evt models.MessageEvent) {
	m.events <- evt
}

// Start is a no-op.
func (m *MockService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the event channel.
func (m *MockService) Stop() error {
	close(m.events)
	return nil
}

// Sent returns a copy of the recorded outbound messages.
func (m *MockService) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// Labels returns a copy of the recorded label mutations.
func (m *MockService) Labels() []LabelOp {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LabelOp, len(m.labels))
	copy(out, m.labels)
	return out
}
