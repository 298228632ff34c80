// Package speech is the single gate for spoken output. It suppresses repeated
// announcements, keeps the microphone closed while the speaker is busy and
// reopens it when speech completes.
package speech

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind is the source of a phrase. It selects the cooldown window.
type Kind int

const (
	Perception Kind = iota
	Navigation
	Dialogue
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Perception:
		return "perception"
	case Navigation:
		return "navigation"
	case Dialogue:
		return "dialogue"
	default:
		return "unknown"
	}
}

// Request is one phrase to speak.
type Request struct {
	Text string
	Kind Kind
	Key  string // cooldown key; dialogue responses ignore it
}

// PerceptionKey builds the cooldown key for an object announcement.
func PerceptionKey(label, position, distance string) string {
	return "perception|" + strings.ToLower(label) + "|" + position + "|" + distance
}

// NavigationKey builds the cooldown key for a navigation instruction.
func NavigationKey(instruction string) string {
	return "navigation|" + instruction
}

// Sink plays a phrase. It must return quickly and report completion through
// Arbiter.Done with the same id.
type Sink interface {
	Speak(ctx context.Context, id, text string) error
}

// Listener is the microphone side of the half-duplex pair.
type Listener interface {
	StartListening() error
	StopListening() error
}

// Scheduler runs f after d and returns a function cancelling it.
type Scheduler func(d time.Duration, f func()) (cancel func())

// AfterFunc is a Scheduler backed by time.AfterFunc. f runs on its own goroutine.
func AfterFunc(d time.Duration, f func()) func() {
	t := time.AfterFunc(d, f)
	return func() { t.Stop() }
}

type spoken struct {
	at   time.Time
	text string
}

// Arbiter owns the speaker and the cooldown state.
//
// It is not safe for concurrent use. The owner drives it from one goroutine
// and supplies a Scheduler that runs callbacks on that same goroutine.
type Arbiter struct {
	cfg      Config
	sink     Sink
	listener Listener
	schedule Scheduler
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger

	speaking   bool
	currentID  string
	lastSpoken string
	cooldowns  map[string]spoken
	lastReply  time.Time

	continuous    bool
	listening     bool
	lastStart     time.Time
	cancelRestart func()
	afterSpeech   []func()
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithConfig sets the timing configuration.
func WithConfig(cfg Config) Option {
	return func(a *Arbiter) {
		a.cfg = cfg
	}
}

// WithListener sets the microphone controlled by the arbiter.
func WithListener(l Listener) Option {
	return func(a *Arbiter) {
		a.listener = l
	}
}

// WithScheduler sets how delayed restarts are scheduled.
func WithScheduler(s Scheduler) Option {
	return func(a *Arbiter) {
		a.schedule = s
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Arbiter) {
		a.now = now
	}
}

// WithIDs sets the utterance id generator.
func WithIDs(fn func() string) Option {
	return func(a *Arbiter) {
		a.newID = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Arbiter) {
		a.logger = l
	}
}

// NewArbiter creates an arbiter speaking through sink. Continuous listening
// starts enabled.
func NewArbiter(sink Sink, opts ...Option) (*Arbiter, error) {
	a := &Arbiter{
		cfg:        DefaultConfig(),
		sink:       sink,
		schedule:   AfterFunc,
		now:        time.Now,
		newID:      uuid.NewString,
		logger:     slog.Default(),
		cooldowns:  make(map[string]spoken),
		continuous: true,
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	a.logger = a.logger.With("component", "speech.arbiter")
	return a, nil
}

func (a *Arbiter) cooldown(k Kind) time.Duration {
	switch k {
	case Navigation:
		return a.cfg.NavigationCooldown
	case Dialogue:
		return a.cfg.DialogueCooldown
	default:
		return a.cfg.PerceptionCooldown
	}
}

func (a *Arbiter) key(req Request) string {
	if req.Key != "" {
		return req.Key
	}
	return req.Kind.String() + "|" + strings.ToLower(strings.TrimSpace(req.Text))
}

// Speak hands the phrase to the sink unless it is blank, something is already
// being spoken or its key is still cooling down. It reports whether the
// phrase was accepted.
func (a *Arbiter) Speak(ctx context.Context, req Request) bool {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return false
	}
	if a.speaking {
		a.logger.Debug("suppressed, speaker busy", "text", text)
		return false
	}

	now := a.now()
	cd := a.cooldown(req.Kind)
	key := a.key(req)
	if req.Kind == Dialogue {
		if cd > 0 && !a.lastReply.IsZero() && now.Sub(a.lastReply) < cd {
			return false
		}
	} else if last, ok := a.cooldowns[key]; ok && now.Sub(last.at) < cd {
		a.logger.Debug("suppressed, cooling down", "key", key)
		return false
	}

	id := a.newID()
	a.speaking = true
	a.currentID = id
	a.pauseListening()

	if err := a.sink.Speak(ctx, id, text); err != nil {
		a.logger.Warn("speech sink failed", "error", err)
		a.speaking = false
		a.currentID = ""
		if a.continuous {
			a.ScheduleRestart(a.cfg.RestartDelay)
		}
		return false
	}

	if req.Kind == Dialogue {
		a.lastReply = now
	} else {
		a.cooldowns[key] = spoken{at: now, text: text}
	}
	a.lastSpoken = text
	a.logger.Debug("speaking", "id", id, "kind", req.Kind.String(), "text", text)
	return true
}

// Done reports that utterance id finished (or failed). It releases the
// speaker, runs deferred side effects and schedules listening to resume.
// Unknown ids are ignored.
func (a *Arbiter) Done(id string) {
	if !a.speaking || id != a.currentID {
		return
	}
	a.speaking = false
	a.currentID = ""

	pending := a.afterSpeech
	a.afterSpeech = nil
	for _, fn := range pending {
		fn()
	}

	if a.continuous && !a.speaking {
		a.ScheduleRestart(a.cfg.RestartDelay)
	}
}

// AfterSpeech runs fn once the current utterance completes, or immediately
// when nothing is being spoken.
func (a *Arbiter) AfterSpeech(fn func()) {
	if !a.speaking {
		fn()
		return
	}
	a.afterSpeech = append(a.afterSpeech, fn)
}

// Speaking reports whether an utterance is in flight.
func (a *Arbiter) Speaking() bool {
	return a.speaking
}

// LastSpoken returns the text of the last accepted phrase.
func (a *Arbiter) LastSpoken() string {
	return a.lastSpoken
}

// LastSpokenFor returns the last text spoken under key.
func (a *Arbiter) LastSpokenFor(key string) (string, bool) {
	s, ok := a.cooldowns[key]
	return s.text, ok
}

// Listening reports whether the microphone was started and not stopped since.
func (a *Arbiter) Listening() bool {
	return a.listening
}

// Continuous reports whether listening resumes automatically.
func (a *Arbiter) Continuous() bool {
	return a.continuous
}

// SetContinuous enables or disables automatic listening restarts. Disabling
// cancels any pending restart.
func (a *Arbiter) SetContinuous(on bool) {
	a.continuous = on
	if !on {
		a.CancelRestart()
	}
}

// CancelRestart cancels a scheduled listening restart.
func (a *Arbiter) CancelRestart() {
	if a.cancelRestart != nil {
		a.cancelRestart()
		a.cancelRestart = nil
	}
}

// RestartPending reports whether a listening restart is scheduled.
func (a *Arbiter) RestartPending() bool {
	return a.cancelRestart != nil
}

// ScheduleRestart replaces any pending restart with one after d.
func (a *Arbiter) ScheduleRestart(d time.Duration) {
	a.CancelRestart()
	a.cancelRestart = a.schedule(d, a.restart)
}

// restart starts listening if still wanted. Starts closer together than
// MinRestartSpacing are pushed back by RestartRetry.
func (a *Arbiter) restart() {
	a.cancelRestart = nil
	if !a.continuous || a.speaking || a.listening {
		return
	}
	if !a.lastStart.IsZero() && a.now().Sub(a.lastStart) < a.cfg.MinRestartSpacing {
		a.ScheduleRestart(a.cfg.RestartRetry)
		return
	}
	if err := a.StartListening(); err != nil {
		a.logger.Warn("listening restart failed", "error", err)
	}
}

// StartListening opens the microphone now, unless the speaker is busy.
func (a *Arbiter) StartListening() error {
	if a.listener == nil || a.speaking {
		return nil
	}
	if err := a.listener.StartListening(); err != nil {
		a.listening = false
		return err
	}
	a.listening = true
	a.lastStart = a.now()
	return nil
}

// StopListening closes the microphone and cancels any pending restart.
func (a *Arbiter) StopListening() {
	a.CancelRestart()
	if a.listener != nil && a.listening {
		if err := a.listener.StopListening(); err != nil {
			a.logger.Warn("stop listening failed", "error", err)
		}
	}
	a.listening = false
}

// RecognitionEnded records that the recognizer stopped on its own, after a
// final result or an error.
func (a *Arbiter) RecognitionEnded() {
	a.listening = false
}

func (a *Arbiter) pauseListening() {
	a.CancelRestart()
	if a.listener != nil && a.listening {
		if err := a.listener.StopListening(); err != nil {
			a.logger.Warn("pause listening failed", "error", err)
		}
	}
	a.listening = false
}
