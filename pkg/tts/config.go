package tts

import (
	"fmt"
	"log/slog"
	"time"
)

// Speaking rates accepted by the HTTP providers.
const (
	MinSpeed = 0.25
	MaxSpeed = 4.0
)

// Config holds the settings shared by HTTP providers.
type Config struct {
	APIKey  string
	BaseURL string
	Voice   string
	Model   string
	Speed   float64
	Format  Encoding
	Timeout time.Duration

	// Retries is the number of extra attempts after a 429 or 5xx response.
	// The wait before attempt n is n*Backoff.
	Retries int
	Backoff time.Duration

	Logger *slog.Logger
}

// Option configures a provider.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithVoice sets the voice.
func WithVoice(voice string) Option {
	return func(c *Config) { c.Voice = voice }
}

// WithModel sets the model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithSpeed sets the speaking rate.
func WithSpeed(speed float64) Option {
	return func(c *Config) { c.Speed = speed }
}

// WithFormat sets the audio encoding requested from the provider.
func WithFormat(enc Encoding) Option {
	return func(c *Config) { c.Format = enc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithRetry sets the retry budget for throttled or failing requests.
func WithRetry(retries int, backoff time.Duration) Option {
	return func(c *Config) {
		c.Retries = retries
		c.Backoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// newConfig returns defaults for short announcements with opts applied.
// Announcements are a sentence long, so the timeout is tight and retries are few.
func newConfig(opts ...Option) Config {
	c := Config{
		Speed:   1.0,
		Format:  EncodingMP3,
		Timeout: 15 * time.Second,
		Retries: 2,
		Backoff: 100 * time.Millisecond,
		Logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Validate checks the key and the speaking rate.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	if c.Speed < MinSpeed || c.Speed > MaxSpeed {
		return fmt.Errorf("%w: speed %.2f outside [%.2f, %.2f]", ErrInvalidConfig, c.Speed, MinSpeed, MaxSpeed)
	}
	return nil
}

func (c Config) wait(attempt int) time.Duration {
	return c.Backoff * time.Duration(attempt)
}
