package services

import (
	"context"
	"sync"
)

// MockMessenger records replies instead of sending them
type MockMessenger struct {
	mu   sync.Mutex
	sent []OutboundMessage
	err  error
}

// NewMockMessenger creates an empty mock messenger
func NewMockMessenger() *MockMessenger {
	return &MockMessenger{}
}

// SetAsMockForTesting sets this mock as the global messenger
func (m *MockMessenger) SetAsMockForTesting() {
	SetMessenger(m)
}

// SetError makes every Send call fail with err
func (m *MockMessenger) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Send records msg
func (m *MockMessenger) Send(ctx context.Context, msg OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns the messages sent so far
func (m *MockMessenger) Sent() []OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]OutboundMessage(nil), m.sent...)
}

// Last returns the most recent message, or nil
func (m *MockMessenger) Last() *OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	msg := m.sent[len(m.sent)-1]
	return &msg
}
