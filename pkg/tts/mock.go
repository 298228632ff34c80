package tts

import (
	"context"
	"sync"
	"time"
)

// Mock is a Provider for tests. Behaviour comes from the function fields and
// every phrase it is asked to speak is recorded.
type Mock struct {
	// SynthesizeFunc handles Synthesize. Nil fails with ErrProviderUnavailable.
	SynthesizeFunc func(ctx context.Context, text string) (*AudioResult, error)
	// HealthFunc handles Health. Nil is healthy.
	HealthFunc func(ctx context.Context) error

	mu      sync.Mutex
	phrases []string
	health  int
	closed  bool
}

// NewMock returns a mock producing silence at 20ms per character.
func NewMock() *Mock {
	return &Mock{SynthesizeFunc: Silence}
}

// Silence synthesizes 24kHz PCM16 silence lasting 20ms per character.
func Silence(_ context.Context, text string) (*AudioResult, error) {
	const bytesPerChar = 960
	return &AudioResult{
		Audio: make([]byte, len(text)*bytesPerChar),
		Format: AudioFormat{
			Encoding:   EncodingPCM24,
			SampleRate: 24000,
			Channels:   1,
			BitDepth:   16,
		},
		Duration:  time.Duration(len(text)) * 20 * time.Millisecond,
		CharCount: len(text),
	}, nil
}

// WithError returns a mock that always fails with err.
func WithError(err error) *Mock {
	return &Mock{
		SynthesizeFunc: func(context.Context, string) (*AudioResult, error) { return nil, err },
		HealthFunc:     func(context.Context) error { return err },
	}
}

// Synthesize records text and delegates to SynthesizeFunc.
func (m *Mock) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	m.mu.Lock()
	m.phrases = append(m.phrases, text)
	fn := m.SynthesizeFunc
	m.mu.Unlock()

	if fn == nil {
		return nil, opError("mock", opSynthesize, ErrProviderUnavailable)
	}
	return fn(ctx, text)
}

// Health counts the check and delegates to HealthFunc.
func (m *Mock) Health(ctx context.Context) error {
	m.mu.Lock()
	m.health++
	fn := m.HealthFunc
	m.mu.Unlock()

	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Phrases returns every text passed to Synthesize, in order.
func (m *Mock) Phrases() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.phrases...)
}

// HealthChecks returns how many times Health was called.
func (m *Mock) HealthChecks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.health
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Reset forgets recorded phrases and health checks.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phrases = nil
	m.health = 0
}

var _ Provider = (*Mock)(nil)
