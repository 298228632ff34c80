package tts

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Player plays an encoded clip and returns when playback ends.
type Player interface {
	Play(ctx context.Context, audio []byte, encoding string) error
}

// Speaker synthesizes and plays phrases in the background. It satisfies the
// speech arbiter's sink: Speak returns immediately and completion is
// reported through the done callback with the phrase id.
type Speaker struct {
	provider Provider
	player   Player
	done     func(id string, err error)
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	wg      sync.WaitGroup
	playing int
}

// SpeakerOption configures a Speaker.
type SpeakerOption func(*Speaker)

// WithPhraseTimeout bounds synthesis plus playback of one phrase.
func WithPhraseTimeout(d time.Duration) SpeakerOption {
	return func(s *Speaker) {
		s.timeout = d
	}
}

// WithSpeakerLogger sets the logger.
func WithSpeakerLogger(l *slog.Logger) SpeakerOption {
	return func(s *Speaker) {
		s.logger = l
	}
}

// NewSpeaker creates a speaker. done may be nil.
func NewSpeaker(provider Provider, player Player, done func(id string, err error), opts ...SpeakerOption) *Speaker {
	s := &Speaker{
		provider: provider,
		player:   player,
		done:     done,
		timeout:  30 * time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.done == nil {
		s.done = func(string, error) {}
	}
	s.logger = s.logger.With("component", "tts.speaker")
	return s
}

// Speak starts synthesizing and playing text. A failure during synthesis or
// playback is reported through done, never returned.
func (s *Speaker) Speak(ctx context.Context, id, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}

	s.mu.Lock()
	s.playing++
	s.mu.Unlock()
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		err := s.play(ctx, text)
		if err != nil {
			s.logger.Warn("phrase failed", "id", id, "error", err)
		}
		s.mu.Lock()
		s.playing--
		s.mu.Unlock()
		s.done(id, err)
	}()
	return nil
}

func (s *Speaker) play(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.provider.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	return s.player.Play(ctx, result.Audio, string(result.Format.Encoding))
}

// Playing returns the number of phrases in progress.
func (s *Speaker) Playing() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Wait blocks until every started phrase has finished.
func (s *Speaker) Wait() {
	s.wg.Wait()
}
