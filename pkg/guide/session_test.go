package guide

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-wayfinder/pkg/detection"
	"github.com/teslashibe/go-wayfinder/pkg/dialogue"
	"github.com/teslashibe/go-wayfinder/pkg/mic"
	"github.com/teslashibe/go-wayfinder/pkg/signage"
)

type utterance struct {
	id, text string
}

type fakeSink struct {
	mu   sync.Mutex
	said []utterance
}

func (f *fakeSink) Speak(_ context.Context, id, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.said = append(f.said, utterance{id: id, text: text})
	return nil
}

func (f *fakeSink) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.said))
	for i, u := range f.said {
		out[i] = u.text
	}
	return out
}

func (f *fakeSink) last() utterance {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.said) == 0 {
		return utterance{}
	}
	return f.said[len(f.said)-1]
}

type fakeRecognizer struct {
	mu           sync.Mutex
	starts, stop int
}

func (r *fakeRecognizer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	return nil
}

func (r *fakeRecognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stop++
	return nil
}

func (r *fakeRecognizer) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.stop
}

type harness struct {
	s    *Session
	sink *fakeSink
	rec  *fakeRecognizer
	mic  *mic.Resource
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Speech.RestartDelay = 5 * time.Millisecond
	cfg.Speech.ErrorRestartDelay = 10 * time.Millisecond
	cfg.Speech.MinRestartSpacing = 20 * time.Millisecond
	cfg.Speech.RestartRetry = 10 * time.Millisecond
	return cfg
}

func start(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	h := &harness{sink: &fakeSink{}, rec: &fakeRecognizer{}, mic: mic.New()}
	opts = append([]Option{
		WithCatalog(dialogue.DefaultCatalog()),
		WithRecognizer(h.rec),
		WithMic(h.mic),
	}, opts...)

	s, err := New(cfg, h.sink, opts...)
	require.NoError(t, err)
	h.s = s

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) sync(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.s.Sync(ctx))
}

func (h *harness) say(t *testing.T, text string) {
	t.Helper()
	require.NoError(t, h.s.SubmitUtterance(text))
	h.sync(t)
}

// finish completes the utterance currently being spoken.
func (h *harness) finish(t *testing.T) {
	t.Helper()
	require.NoError(t, h.s.SpeechDone(h.sink.last().id))
	h.sync(t)
}

func (h *harness) waitSpoken(t *testing.T, n int) []string {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.sink.texts()) >= n }, 2*time.Second, 5*time.Millisecond)
	return h.sink.texts()
}

func (h *harness) waitSeq(t *testing.T, seq uint64) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return h.s.Snapshot().FrameSeq == seq }, 2*time.Second, 5*time.Millisecond)
	return h.s.Snapshot()
}

func (h *harness) waitApplied(t *testing.T, n uint64) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return h.s.Snapshot().FramesApplied == n }, 2*time.Second, 5*time.Millisecond)
	return h.s.Snapshot()
}

func door() detection.Detection {
	return detection.Detection{
		Label:      "puerta",
		Confidence: 0.9,
		Box:        detection.Box{Left: 20, Top: 100, Right: 80, Bottom: 400},
	}
}

func TestNewRequiresSink(t *testing.T) {
	_, err := New(DefaultConfig(), nil)
	assert.ErrorIs(t, err, ErrNoSink)

	cfg := DefaultConfig()
	cfg.MinConfidence = 2
	_, err = New(cfg, &fakeSink{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFrameAnnouncesBestObject(t *testing.T) {
	h := start(t, testConfig())

	require.NoError(t, h.s.SubmitFrame(Frame{Seq: 1, Detections: []detection.Detection{door()}}))
	said := h.waitSpoken(t, 1)
	assert.Equal(t, "door to the left, near.", said[0])

	snap := h.waitSeq(t, 1)
	require.NotNil(t, snap.Best)
	assert.Equal(t, "puerta", snap.Best.Label)
	assert.Equal(t, "door", snap.Best.Name)
	assert.Equal(t, "far_left", snap.Best.Position)
	assert.Equal(t, "near", snap.Best.Distance)
}

func TestRepeatedObjectSuppressedWithinCooldown(t *testing.T) {
	h := start(t, testConfig())

	h.s.SubmitFrame(Frame{Seq: 1, Detections: []detection.Detection{door()}})
	h.waitSpoken(t, 1)
	h.finish(t)

	h.s.SubmitFrame(Frame{Seq: 2, Detections: []detection.Detection{door()}})
	h.waitSeq(t, 2)
	h.sync(t)
	assert.Len(t, h.sink.texts(), 1)
}

func TestLowConfidenceNotAnnounced(t *testing.T) {
	h := start(t, testConfig())

	d := door()
	d.Confidence = 0.6
	h.s.SubmitFrame(Frame{Seq: 1, Detections: []detection.Detection{d}})
	snap := h.waitSeq(t, 1)
	assert.NotNil(t, snap.Best)
	assert.Empty(t, h.sink.texts())
}

func TestOutOfOrderFrameDropped(t *testing.T) {
	h := start(t, testConfig())

	h.s.SubmitFrame(Frame{Seq: 5, Detections: []detection.Detection{door()}})
	h.waitSeq(t, 5)

	stairs := detection.Detection{Label: "escalera_norm", Confidence: 0.95, Box: detection.Box{Left: 300, Top: 0, Right: 340, Bottom: 600}}
	h.s.SubmitFrame(Frame{Seq: 4, Detections: []detection.Detection{stairs}})
	h.s.SubmitFrame(Frame{Seq: 6})
	snap := h.waitSeq(t, 6)

	// Frame 4 never replaced the best object; frame 6 had no detections.
	assert.Nil(t, snap.Best)
	assert.Equal(t, []string{"door to the left, near."}, h.sink.texts())
}

func TestFrameQueueDropsWhenFull(t *testing.T) {
	cfg := testConfig()
	cfg.FrameQueue = 1
	s, err := New(cfg, &fakeSink{})
	require.NoError(t, err)

	assert.NoError(t, s.SubmitFrame(Frame{Seq: 1}))
	assert.ErrorIs(t, s.SubmitFrame(Frame{Seq: 2}), ErrFrameDropped)
}

func TestUnsequencedFramesAlwaysApplied(t *testing.T) {
	h := start(t, testConfig())

	require.NoError(t, h.s.SubmitFrame(Frame{Detections: []detection.Detection{door()}}))
	h.waitApplied(t, 1)

	elevator := detection.Detection{Label: "ascensor", Confidence: 0.9, Box: detection.Box{Left: 560, Top: 100, Right: 620, Bottom: 400}}
	require.NoError(t, h.s.SubmitFrame(Frame{Detections: []detection.Detection{elevator}}))
	snap := h.waitApplied(t, 2)

	require.NotNil(t, snap.Best)
	assert.Equal(t, "ascensor", snap.Best.Label)
	assert.Equal(t, "far_right", snap.Best.Position)
	assert.Equal(t, uint64(0), snap.FrameSeq)
}

func TestFrameSequencesAreKeptPerSource(t *testing.T) {
	h := start(t, testConfig())

	h.s.SubmitFrame(Frame{Source: "camera", Seq: 40, Detections: []detection.Detection{door()}})
	h.waitApplied(t, 1)

	elevator := detection.Detection{Label: "ascensor", Confidence: 0.9, Box: detection.Box{Left: 560, Top: 100, Right: 620, Bottom: 400}}
	h.s.SubmitFrame(Frame{Source: "remote", Seq: 1, Detections: []detection.Detection{elevator}})
	snap := h.waitApplied(t, 2)
	require.NotNil(t, snap.Best)
	assert.Equal(t, "ascensor", snap.Best.Label)

	// Stale within its own source.
	h.s.SubmitFrame(Frame{Source: "camera", Seq: 39, Detections: []detection.Detection{door()}})
	h.s.SubmitFrame(Frame{Source: "camera", Seq: 41})
	snap = h.waitApplied(t, 3)
	assert.Equal(t, uint64(41), snap.FrameSeq)
	assert.Nil(t, snap.Best)
}

func TestSubmitFrameAfterRunReturns(t *testing.T) {
	s, err := New(testConfig(), &fakeSink{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Run(ctx), context.Canceled)

	for i := uint64(1); i <= 3; i++ {
		assert.ErrorIs(t, s.SubmitFrame(Frame{Seq: i}), ErrClosed)
	}
}

func TestConversationSetsRoute(t *testing.T) {
	h := start(t, testConfig())
	require.NoError(t, h.s.StartDialogue())
	h.sync(t)
	starts, _ := h.rec.counts()
	assert.Equal(t, 1, starts)
	assert.True(t, h.s.Snapshot().Listening)
	assert.Equal(t, "home_dialogue", h.s.Snapshot().MicOwner)

	h.say(t, "I am at Franklin")
	assert.Equal(t, "Understood, you are at franklin. Where are you headed?", h.sink.last().text)
	snap := h.s.Snapshot()
	assert.True(t, snap.AwaitingDestination)
	assert.Equal(t, "awaiting_destination", snap.Phase)
	assert.Equal(t, "I am at Franklin", snap.RecognizedText)
	h.finish(t)

	// Listening resumes after the response.
	require.Eventually(t, func() bool { s, _ := h.rec.counts(); return s == 2 }, 2*time.Second, 5*time.Millisecond)

	h.say(t, "go to los leones")
	assert.Equal(t, "Starting guidance to los leones.", h.sink.last().text)
	h.finish(t)

	snap = h.s.Snapshot()
	assert.Equal(t, "franklin", snap.Origin)
	assert.Equal(t, "los leones", snap.Destination)
	assert.Equal(t, "guiding", snap.Phase)
	assert.False(t, snap.Listening, "guidance start releases the microphone")
	assert.Equal(t, "none", snap.MicOwner)
}

func TestPartialOnlyUpdatesText(t *testing.T) {
	h := start(t, testConfig())
	require.NoError(t, h.s.SubmitPartial("go to los"))
	h.sync(t)

	snap := h.s.Snapshot()
	assert.Equal(t, "go to los", snap.RecognizedText)
	assert.Empty(t, snap.Destination)
	assert.Empty(t, h.sink.texts())
}

func TestSearchTargetsObject(t *testing.T) {
	h := start(t, testConfig())
	h.say(t, "find door")
	assert.Equal(t, "Searching for door. Please wait.", h.sink.last().text)
	h.finish(t)

	stairs := detection.Detection{Label: "escalera_norm", Confidence: 0.95, Box: detection.Box{Left: 300, Top: 0, Right: 340, Bottom: 600}}
	far := door()
	far.Box = detection.Box{Left: 500, Top: 100, Right: 560, Bottom: 150}
	h.s.SubmitFrame(Frame{Seq: 1, Detections: []detection.Detection{stairs, far}})

	snap := h.waitSeq(t, 1)
	require.NotNil(t, snap.Best)
	assert.Equal(t, "puerta", snap.Best.Label)
	assert.Equal(t, "puerta", snap.ObjectSought)
	said := h.waitSpoken(t, 2)
	assert.Equal(t, "door to the right, far.", said[1])
}

func TestDescribeUsesBestObject(t *testing.T) {
	h := start(t, testConfig())
	h.s.SubmitFrame(Frame{Seq: 1, Detections: []detection.Detection{door()}})
	h.waitSpoken(t, 1)
	h.finish(t)

	h.say(t, "describe surroundings")
	assert.Equal(t, "Describing your surroundings. I see door to the left, near.", h.sink.last().text)
}

func TestOpenCameraSwitchesAfterSpeech(t *testing.T) {
	h := start(t, testConfig())
	h.say(t, "open camera")
	assert.Equal(t, "Opening the camera.", h.sink.last().text)
	assert.False(t, h.s.Snapshot().SwitchToVision, "switch waits for speech to finish")

	h.finish(t)
	snap := h.s.Snapshot()
	assert.True(t, snap.SwitchToVision)
	assert.Equal(t, "vision", snap.View)
	assert.Equal(t, "vision_test", snap.MicOwner)

	require.NoError(t, h.s.ExitVision())
	h.sync(t)
	snap = h.s.Snapshot()
	assert.False(t, snap.SwitchToVision)
	assert.Equal(t, "home", snap.View)
	assert.Equal(t, "home_dialogue", snap.MicOwner)
}

func TestEnterVisionRevokesHomeMicrophone(t *testing.T) {
	h := start(t, testConfig())
	require.NoError(t, h.s.StartDialogue())
	h.sync(t)

	require.NoError(t, h.s.EnterVision())
	h.sync(t)
	_, stops := h.rec.counts()
	assert.Equal(t, 1, stops)
	assert.Equal(t, mic.VisionTest, h.mic.Owner())

	// Listening continues under the vision flow.
	require.Eventually(t, func() bool { s, _ := h.rec.counts(); return s == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestMicrophoneTakenByAnotherFlow(t *testing.T) {
	h := start(t, testConfig())
	require.NoError(t, h.s.StartDialogue())
	h.sync(t)

	h.mic.Acquire(mic.VisionTest)
	require.Eventually(t, func() bool { _, s := h.rec.counts(); return s == 1 }, 2*time.Second, 5*time.Millisecond)
	h.sync(t)
	assert.False(t, h.s.Snapshot().Listening)
}

func TestRecognitionErrorRestarts(t *testing.T) {
	h := start(t, testConfig())
	require.NoError(t, h.s.StartDialogue())
	h.sync(t)

	require.NoError(t, h.s.RecognitionError(errors.New("no match")))
	require.Eventually(t, func() bool { s, _ := h.rec.counts(); return s == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestStopDialogueCancelsRestart(t *testing.T) {
	cfg := testConfig()
	cfg.Speech.ErrorRestartDelay = 200 * time.Millisecond
	h := start(t, cfg)
	require.NoError(t, h.s.StartDialogue())
	h.sync(t)

	require.NoError(t, h.s.RecognitionError(errors.New("network")))
	require.NoError(t, h.s.StopDialogue())
	h.sync(t)

	time.Sleep(300 * time.Millisecond)
	starts, _ := h.rec.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, "none", h.s.Snapshot().MicOwner)
}

func TestRecognitionUnavailableNoticeOnce(t *testing.T) {
	h := start(t, testConfig())

	require.NoError(t, h.s.RecognitionUnavailable())
	h.sync(t)
	h.finish(t)
	require.NoError(t, h.s.RecognitionUnavailable())
	h.sync(t)

	assert.Equal(t, []string{NoticeRecognitionUnavailable}, h.sink.texts())
	assert.Equal(t, NoticeRecognitionUnavailable, h.s.Snapshot().Notice)

	require.NoError(t, h.s.StartDialogue())
	h.sync(t)
	starts, _ := h.rec.counts()
	assert.Zero(t, starts)
}

func TestGuidanceOffSilencesFrames(t *testing.T) {
	h := start(t, testConfig())
	require.NoError(t, h.s.SetGuidance(false))
	h.sync(t)

	h.s.SubmitFrame(Frame{Seq: 1, Detections: []detection.Detection{door()}})
	h.waitSeq(t, 1)
	h.sync(t)
	assert.Empty(t, h.sink.texts())
	assert.False(t, h.s.Snapshot().GuidanceEnabled)
}

func signFrame(seq uint64) Frame {
	return Frame{
		Seq: seq,
		Detections: []detection.Detection{{
			Label:      "senales_amarillas",
			Confidence: 0.7,
			Box:        detection.Box{Left: 500, Top: 100, Right: 600, Bottom: 200},
		}},
		Image: image.NewRGBA(image.Rect(0, 0, 640, 640)),
	}
}

func routeTo(t *testing.T, h *harness) {
	t.Helper()
	h.say(t, "estoy en franklin")
	h.finish(t)
	h.say(t, "me dirijo a los leones")
	h.finish(t)
}

func TestSignagePassAnnouncesTurn(t *testing.T) {
	reader := signage.ReaderFunc(func(context.Context, image.Image) string {
		return "Dirección a Los Leones"
	})
	h := start(t, testConfig(), WithReader(reader))
	routeTo(t, h)

	h.s.SubmitFrame(signFrame(1))
	said := h.waitSpoken(t, 3)
	assert.Equal(t, "Continue straight toward the sign, then turn right.", said[2])
}

func TestSignagePassWarnsWrongDirection(t *testing.T) {
	reader := signage.ReaderFunc(func(context.Context, image.Image) string {
		return "Dirección a Cerrillos"
	})
	h := start(t, testConfig(), WithReader(reader))
	routeTo(t, h)

	h.s.SubmitFrame(signFrame(1))
	said := h.waitSpoken(t, 3)
	assert.Equal(t, "Wrong platform direction. Head toward Los Leones.", said[2])
}

func TestSignageNeedsRoute(t *testing.T) {
	var calls int
	var mu sync.Mutex
	reader := signage.ReaderFunc(func(context.Context, image.Image) string {
		mu.Lock()
		calls++
		mu.Unlock()
		return "Dirección a Los Leones"
	})
	h := start(t, testConfig(), WithReader(reader))

	h.s.SubmitFrame(signFrame(1))
	h.waitSeq(t, 1)
	h.sync(t)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls)
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	h := start(t, testConfig())

	var mu sync.Mutex
	var got []Snapshot
	unsubscribe := h.s.Subscribe(func(s Snapshot) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	})

	h.say(t, "estoy en pac")
	mu.Lock()
	n := len(got)
	last := got[n-1]
	mu.Unlock()
	assert.Positive(t, n)
	assert.Equal(t, "pac", last.Origin)

	unsubscribe()
	h.say(t, "status")
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, n)
}

func TestRunTwice(t *testing.T) {
	h := start(t, testConfig())
	h.sync(t)
	assert.ErrorIs(t, h.s.Run(context.Background()), ErrRunning)
}
