package tts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultChainBackoff is how long a failed provider is tried last.
const DefaultChainBackoff = 30 * time.Second

// Chain speaks through the first provider that works. A provider that fails
// moves to the back of the order for the backoff period, so a cloud voice
// that lost connectivity does not delay every announcement. It is still
// tried when everything ahead of it fails.
type Chain struct {
	providers []Provider
	backoff   time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu       sync.Mutex
	failedAt []time.Time
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithChainBackoff sets how long a failed provider stays at the back.
func WithChainBackoff(d time.Duration) ChainOption {
	return func(c *Chain) { c.backoff = d }
}

// WithChainClock sets the time source.
func WithChainClock(now func() time.Time) ChainOption {
	return func(c *Chain) { c.now = now }
}

// WithChainLogger sets the logger.
func WithChainLogger(l *slog.Logger) ChainOption {
	return func(c *Chain) { c.logger = l }
}

// NewChain creates a chain over providers in preference order.
func NewChain(providers []Provider, opts ...ChainOption) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	c := &Chain{
		providers: providers,
		backoff:   DefaultChainBackoff,
		now:       time.Now,
		logger:    slog.Default(),
		failedAt:  make([]time.Time, len(providers)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "tts.chain")
	return c, nil
}

// order returns provider indexes: healthy ones first, then those still
// backing off, each group in preference order.
func (c *Chain) order() []int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	ready := make([]int, 0, len(c.providers))
	var cooling []int
	for i, at := range c.failedAt {
		if !at.IsZero() && now.Sub(at) < c.backoff {
			cooling = append(cooling, i)
			continue
		}
		ready = append(ready, i)
	}
	return append(ready, cooling...)
}

func (c *Chain) mark(i int, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if failed {
		c.failedAt[i] = c.now()
	} else {
		c.failedAt[i] = time.Time{}
	}
}

// Synthesize tries providers until one succeeds.
func (c *Chain) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	var errs []error
	for n, i := range c.order() {
		result, err := c.providers[i].Synthesize(ctx, text)
		if err == nil {
			c.mark(i, false)
			if n > 0 {
				c.logger.Info("fallback provider spoke", "provider", i, "chars", len(text))
			}
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.mark(i, true)
		errs = append(errs, err)
		c.logger.Warn("provider failed", "provider", i, "error", err)
	}
	return nil, &ChainError{Errors: errs}
}

// Health succeeds when at least one provider is healthy.
func (c *Chain) Health(ctx context.Context) error {
	var errs []error
	for _, p := range c.providers {
		err := p.Health(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return &ChainError{Errors: errs}
}

// Close closes every provider and returns the last error.
func (c *Chain) Close() error {
	var last error
	for _, p := range c.providers {
		if err := p.Close(); err != nil {
			last = err
		}
	}
	return last
}

// ChainError holds the error of every provider that was tried.
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	if len(e.Errors) == 0 {
		return "tts chain: no provider tried"
	}
	return fmt.Sprintf("tts chain: %d provider(s) failed, last: %v", len(e.Errors), e.Errors[len(e.Errors)-1])
}

func (e *ChainError) Unwrap() []error {
	return e.Errors
}

var _ Provider = (*Chain)(nil)
