package services

import (
	"context"
	"strings"
	"sync"
)

// MockTranslator is a mock implementation of Translator for testing
type MockTranslator struct {
	mu        sync.Mutex
	responses map[string]string
	err       error
	questions []string
}

// NewMockTranslator creates a mock with no canned answers
func NewMockTranslator() *MockTranslator {
	return &MockTranslator{responses: make(map[string]string)}
}

// SetAsMockForTesting sets this mock as the global translator
func (m *MockTranslator) SetAsMockForTesting() {
	SetTranslator(m)
}

// SetSQL makes Translate return sql for question
func (m *MockTranslator) SetSQL(question, sql string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[strings.TrimSpace(question)] = sql
}

// SetError makes every Translate call fail with err
func (m *MockTranslator) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Translate returns the canned SQL for question
func (m *MockTranslator) Translate(ctx context.Context, question, schemaDescription string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions = append(m.questions, question)

	if m.err != nil {
		return "", m.err
	}
	sql, ok := m.responses[strings.TrimSpace(question)]
	if !ok {
		return "", newQueryError(KindTranslationFailure, "no canned SQL for question", nil)
	}
	return sql, nil
}

// Questions returns the questions received so far
func (m *MockTranslator) Questions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.questions...)
}
