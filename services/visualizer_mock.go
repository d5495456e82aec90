package services

import (
	"bytes"
	"context"
	"image/color"
	"sync"

	"github.com/disintegration/imaging"
)

// MockVisualizer returns a fixed 1x1 PNG
type MockVisualizer struct {
	mu    sync.Mutex
	err   error
	calls int
}

// NewMockVisualizer creates a mock visualizer
func NewMockVisualizer() *MockVisualizer {
	return &MockVisualizer{}
}

// SetAsMockForTesting sets this mock as the global visualizer
func (m *MockVisualizer) SetAsMockForTesting() {
	SetVisualizer(m)
}

// SetError makes every Render call fail with err
func (m *MockVisualizer) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Render returns a placeholder PNG
func (m *MockVisualizer) Render(ctx context.Context, question string, result *QueryResult) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.New(1, 1, color.White), imaging.PNG); err != nil {
		return nil, newQueryError(KindRenderFailure, "failed to encode placeholder", err)
	}
	return buf.Bytes(), nil
}

// Calls returns how many times Render was called
func (m *MockVisualizer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
