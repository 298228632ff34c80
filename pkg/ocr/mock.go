package ocr

import (
	"context"
	"image"
	"sync"
)

// Func adapts a function to a reader.
type Func func(ctx context.Context, img image.Image) string

// ReadText calls f.
func (f Func) ReadText(ctx context.Context, img image.Image) string {
	return f(ctx, img)
}

// Mock is a reader for tests. ReadFunc decides the text; calls are recorded.
type Mock struct {
	ReadFunc func(ctx context.Context, img image.Image) string

	mu    sync.Mutex
	calls []image.Rectangle
}

// NewMock returns a mock that always reads text.
func NewMock(text string) *Mock {
	return &Mock{ReadFunc: func(context.Context, image.Image) string { return text }}
}

// ReadText records the crop bounds and delegates to ReadFunc.
func (m *Mock) ReadText(ctx context.Context, img image.Image) string {
	m.mu.Lock()
	m.calls = append(m.calls, img.Bounds())
	m.mu.Unlock()
	if m.ReadFunc == nil {
		return ""
	}
	return m.ReadFunc(ctx, img)
}

// Calls returns the bounds of every crop read.
func (m *Mock) Calls() []image.Rectangle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]image.Rectangle, len(m.calls))
	copy(out, m.calls)
	return out
}
