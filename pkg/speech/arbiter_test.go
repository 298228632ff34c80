package speech

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type recordingSink struct {
	ids   []string
	texts []string
	err   error
}

func (s *recordingSink) Speak(_ context.Context, id, text string) error {
	if s.err != nil {
		return s.err
	}
	s.ids = append(s.ids, id)
	s.texts = append(s.texts, text)
	return nil
}

type recordingListener struct {
	starts, stops int
	startErr      error
}

func (l *recordingListener) StartListening() error {
	if l.startErr != nil {
		return l.startErr
	}
	l.starts++
	return nil
}

func (l *recordingListener) StopListening() error {
	l.stops++
	return nil
}

// manualScheduler collects callbacks so tests fire them explicitly.
type manualScheduler struct {
	pending []*scheduled
}

type scheduled struct {
	d         time.Duration
	f         func()
	cancelled bool
}

func (m *manualScheduler) Schedule(d time.Duration, f func()) func() {
	s := &scheduled{d: d, f: f}
	m.pending = append(m.pending, s)
	return func() { s.cancelled = true }
}

// Fire runs every live callback scheduled so far and reports their delays.
func (m *manualScheduler) Fire() []time.Duration {
	pending := m.pending
	m.pending = nil
	var fired []time.Duration
	for _, s := range pending {
		if s.cancelled {
			continue
		}
		fired = append(fired, s.d)
		s.f()
	}
	return fired
}

func (m *manualScheduler) Live() int {
	n := 0
	for _, s := range m.pending {
		if !s.cancelled {
			n++
		}
	}
	return n
}

type fixture struct {
	arb      *Arbiter
	sink     *recordingSink
	listener *recordingListener
	sched    *manualScheduler
	clock    *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sink:     &recordingSink{},
		listener: &recordingListener{},
		sched:    &manualScheduler{},
		clock:    &fakeClock{t: time.Unix(1_700_000_000, 0)},
	}
	n := 0
	arb, err := NewArbiter(f.sink,
		WithListener(f.listener),
		WithScheduler(f.sched.Schedule),
		WithClock(f.clock.Now),
		WithIDs(func() string { n++; return "utt-" + strconv.Itoa(n) }),
	)
	if err != nil {
		t.Fatalf("NewArbiter: %v", err)
	}
	f.arb = arb
	return f
}

func (f *fixture) lastID() string {
	return f.sink.ids[len(f.sink.ids)-1]
}

func TestSpeakRepeatedObjectSuppressed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := PerceptionKey("puerta", "far_left", "near")

	if !f.arb.Speak(ctx, Request{Text: "door to the left, near.", Kind: Perception, Key: key}) {
		t.Fatal("first announcement rejected")
	}
	f.arb.Done(f.lastID())

	f.clock.Advance(time.Second)
	if f.arb.Speak(ctx, Request{Text: "door to the left, near.", Kind: Perception, Key: key}) {
		t.Error("same key within cooldown was spoken")
	}

	f.clock.Advance(2 * time.Second)
	midKey := PerceptionKey("puerta", "far_left", "mid")
	if !f.arb.Speak(ctx, Request{Text: "door to the left, mid distance.", Kind: Perception, Key: midKey}) {
		t.Error("different distance bucket rejected")
	}
	if len(f.sink.texts) != 2 {
		t.Fatalf("sink got %d phrases, want 2", len(f.sink.texts))
	}
}

func TestSpeakCooldownExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := Request{Text: "stairs ahead, far.", Kind: Perception, Key: PerceptionKey("escalera_norm", "center", "far")}

	f.arb.Speak(ctx, req)
	f.arb.Done(f.lastID())

	f.clock.Advance(2499 * time.Millisecond)
	if f.arb.Speak(ctx, req) {
		t.Error("spoken before cooldown elapsed")
	}
	f.clock.Advance(time.Millisecond)
	if !f.arb.Speak(ctx, req) {
		t.Error("not spoken once cooldown elapsed")
	}
}

func TestSpeakNavigationCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := Request{Text: "Now, turn right.", Kind: Navigation, Key: NavigationKey("turn_right")}

	f.arb.Speak(ctx, req)
	f.arb.Done(f.lastID())
	f.clock.Advance(4 * time.Second)
	if f.arb.Speak(ctx, req) {
		t.Error("navigation repeated within 5s")
	}
	f.clock.Advance(time.Second)
	if !f.arb.Speak(ctx, req) {
		t.Error("navigation rejected after 5s")
	}
}

func TestSpeakRejectsWhileSpeaking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.arb.Speak(ctx, Request{Text: "Starting guidance to franklin.", Kind: Dialogue})
	if !f.arb.Speaking() {
		t.Fatal("arbiter not speaking after accept")
	}
	if f.arb.Speak(ctx, Request{Text: "door ahead, near.", Kind: Perception, Key: "k"}) {
		t.Error("second phrase accepted while speaking")
	}
	f.arb.Done(f.lastID())
	if !f.arb.Speak(ctx, Request{Text: "door ahead, near.", Kind: Perception, Key: "k"}) {
		t.Error("phrase rejected after speech done")
	}
}

func TestSpeakDialogueHasNoCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if !f.arb.Speak(ctx, Request{Text: "I didn't understand.", Kind: Dialogue}) {
			t.Fatalf("dialogue response %d rejected", i)
		}
		f.arb.Done(f.lastID())
	}
}

func TestSpeakBlankIgnored(t *testing.T) {
	f := newFixture(t)
	if f.arb.Speak(context.Background(), Request{Text: "  ", Kind: Dialogue}) {
		t.Error("blank text accepted")
	}
	if f.arb.Speaking() {
		t.Error("speaking after blank request")
	}
}

func TestSpeakSinkFailure(t *testing.T) {
	f := newFixture(t)
	f.sink.err = errors.New("tts down")
	req := Request{Text: "door ahead, near.", Kind: Perception, Key: "k"}

	if f.arb.Speak(context.Background(), req) {
		t.Error("accepted despite sink failure")
	}
	if f.arb.Speaking() {
		t.Error("left speaking after sink failure")
	}

	f.sink.err = nil
	if !f.arb.Speak(context.Background(), req) {
		t.Error("failed phrase should not start a cooldown")
	}
}

func TestHalfDuplex(t *testing.T) {
	f := newFixture(t)
	if err := f.arb.StartListening(); err != nil {
		t.Fatalf("StartListening: %v", err)
	}
	if !f.arb.Listening() {
		t.Fatal("not listening")
	}

	f.arb.Speak(context.Background(), Request{Text: "Starting guidance.", Kind: Dialogue})
	if f.arb.Listening() {
		t.Error("still listening while speaking")
	}
	if f.listener.stops != 1 {
		t.Errorf("stops = %d, want 1", f.listener.stops)
	}

	f.clock.Advance(time.Second)
	f.arb.Done(f.lastID())
	fired := f.sched.Fire()
	if len(fired) != 1 || fired[0] != 200*time.Millisecond {
		t.Errorf("restart delays = %v, want [200ms]", fired)
	}
	if !f.arb.Listening() || f.listener.starts != 2 {
		t.Errorf("listening=%v starts=%d, want resumed", f.arb.Listening(), f.listener.starts)
	}
}

func TestStartListeningWhileSpeakingIsDeferred(t *testing.T) {
	f := newFixture(t)
	f.arb.Speak(context.Background(), Request{Text: "hello", Kind: Dialogue})
	if err := f.arb.StartListening(); err != nil {
		t.Fatal(err)
	}
	if f.arb.Listening() || f.listener.starts != 0 {
		t.Error("microphone opened during speech")
	}
}

func TestRestartSpacing(t *testing.T) {
	f := newFixture(t)
	f.arb.StartListening()
	f.arb.RecognitionEnded()

	f.clock.Advance(100 * time.Millisecond)
	f.arb.ScheduleRestart(0)
	f.sched.Fire()
	if f.listener.starts != 1 {
		t.Fatalf("restarted %v after previous start", 100*time.Millisecond)
	}
	if f.sched.Live() != 1 || f.sched.pending[0].d != 300*time.Millisecond {
		t.Fatalf("expected one 300ms retry, got %d pending", f.sched.Live())
	}

	f.clock.Advance(300 * time.Millisecond)
	f.sched.Fire()
	if f.listener.starts != 2 {
		t.Errorf("starts = %d after retry, want 2", f.listener.starts)
	}
}

func TestDoneIgnoresStaleID(t *testing.T) {
	f := newFixture(t)
	f.arb.Speak(context.Background(), Request{Text: "hello", Kind: Dialogue})
	f.arb.Done("other")
	if !f.arb.Speaking() {
		t.Error("stale id released the speaker")
	}
}

func TestAfterSpeech(t *testing.T) {
	f := newFixture(t)
	var ran []string

	f.arb.AfterSpeech(func() { ran = append(ran, "idle") })
	if len(ran) != 1 {
		t.Fatal("AfterSpeech did not run immediately when idle")
	}

	f.arb.Speak(context.Background(), Request{Text: "Opening the camera.", Kind: Dialogue})
	f.arb.AfterSpeech(func() { ran = append(ran, "switch") })
	if len(ran) != 1 {
		t.Fatal("AfterSpeech ran before speech completed")
	}
	f.arb.Done(f.lastID())
	if len(ran) != 2 || ran[1] != "switch" {
		t.Errorf("ran = %v", ran)
	}
}

func TestSetContinuousOffCancelsRestart(t *testing.T) {
	f := newFixture(t)
	f.arb.Speak(context.Background(), Request{Text: "hello", Kind: Dialogue})
	f.arb.Done(f.lastID())
	if !f.arb.RestartPending() {
		t.Fatal("no restart scheduled")
	}
	f.arb.SetContinuous(false)
	if f.arb.RestartPending() {
		t.Error("restart still pending")
	}
	f.sched.Fire()
	if f.listener.starts != 0 {
		t.Error("listener started after continuous was disabled")
	}
}

func TestLastSpoken(t *testing.T) {
	f := newFixture(t)
	key := NavigationKey("turn_left")
	f.arb.Speak(context.Background(), Request{Text: "Now, turn left.", Kind: Navigation, Key: key})
	if got := f.arb.LastSpoken(); got != "Now, turn left." {
		t.Errorf("LastSpoken = %q", got)
	}
	if got, ok := f.arb.LastSpokenFor(key); !ok || got != "Now, turn left." {
		t.Errorf("LastSpokenFor = %q, %v", got, ok)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg := DefaultConfig()
	cfg.NavigationCooldown = -time.Second
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
	if _, err := NewArbiter(&recordingSink{}, WithConfig(cfg)); err == nil {
		t.Error("NewArbiter accepted invalid config")
	}
}
