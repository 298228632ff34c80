// Package guide runs a guidance session. Camera detections, speech
// recognition callbacks and speech completion events arrive from different
// goroutines; Session serializes all of them onto one loop that owns the
// perception, dialogue, signage and speech state.
package guide

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/teslashibe/go-wayfinder/pkg/detection"
	"github.com/teslashibe/go-wayfinder/pkg/dialogue"
	"github.com/teslashibe/go-wayfinder/pkg/mic"
	"github.com/teslashibe/go-wayfinder/pkg/perception"
	"github.com/teslashibe/go-wayfinder/pkg/route"
	"github.com/teslashibe/go-wayfinder/pkg/signage"
	"github.com/teslashibe/go-wayfinder/pkg/speech"
)

var (
	// ErrNoSink is returned by New without a speech sink.
	ErrNoSink = errors.New("guide: speech sink required")
	// ErrNoRecognizer is returned when listening starts without a recognizer.
	ErrNoRecognizer = errors.New("guide: no speech recognizer")
	// ErrMicBusy is returned when another flow owns the microphone.
	ErrMicBusy = errors.New("guide: microphone owned by another flow")
	// ErrClosed is returned once the session loop has stopped.
	ErrClosed = errors.New("guide: session closed")
	// ErrRunning is returned by a second call to Run.
	ErrRunning = errors.New("guide: session already running")
	// ErrFrameDropped is returned by SubmitFrame when the loop is behind.
	ErrFrameDropped = errors.New("guide: frame dropped")
)

// NoticeRecognitionUnavailable is spoken and shown once when the platform
// has no speech recognition.
const NoticeRecognitionUnavailable = "Speech recognition is not available on this device."

// Recognizer is the platform speech recognizer. Results come back through
// Session.SubmitFinal, SubmitPartial, RecognitionError and
// RecognitionUnavailable.
type Recognizer interface {
	Start() error
	Stop() error
}

// Frame is one camera frame after detection.
type Frame struct {
	// Source names the stream the frame belongs to. Sequence numbers are
	// only compared within one source.
	Source     string
	// Seq orders frames of one source. Zero means unsequenced: the frame is
	// always applied.
	Seq        uint64
	Detections []detection.Detection
	// Width and Height of the detection coordinate space; zero means the
	// model input size.
	Width, Height float64
	// Image is the full-resolution preview used for sign cropping. Optional.
	Image image.Image
}

// View is the screen the user is on.
type View int

const (
	Home View = iota
	Vision
)

// String returns the view name.
func (v View) String() string {
	if v == Vision {
		return "vision"
	}
	return "home"
}

// Session is a guidance session. Create with New and drive with Run.
type Session struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	sink       speech.Sink
	recognizer Recognizer
	reader     signage.Reader
	mic        *mic.Resource
	catalog    *dialogue.Catalog
	line       *route.Line
	labels     *detection.LabelTable
	vocab      *perception.Vocabulary
	notice     string

	frames chan Frame
	events chan func(context.Context)
	done   chan struct{}
	passes sync.WaitGroup
	inst   instruments

	// Owned by the loop.
	engine         *perception.Engine
	machine        *dialogue.Machine
	validator      *signage.Validator
	arbiter        *speech.Arbiter
	owner          mic.Owner
	view           View
	lastSeq        map[string]uint64
	frameSeq       uint64
	framesApplied  uint64
	best           perception.Result
	hasBest        bool
	recognized     string
	switchToVision bool
	unavailable    bool

	snapshot atomic.Pointer[Snapshot]
	subMu    sync.Mutex
	subs     map[int]func(Snapshot)
	nextSub  int

	started atomic.Bool
}

// Option configures a Session.
type Option func(*Session)

// WithRecognizer sets the speech recognizer.
func WithRecognizer(r Recognizer) Option {
	return func(s *Session) {
		s.recognizer = r
	}
}

// WithReader sets the OCR collaborator used for signage.
func WithReader(r signage.Reader) Option {
	return func(s *Session) {
		s.reader = r
	}
}

// WithMic shares a microphone with other flows.
func WithMic(m *mic.Resource) Option {
	return func(s *Session) {
		s.mic = m
	}
}

// WithCatalog sets the command catalog.
func WithCatalog(c *dialogue.Catalog) Option {
	return func(s *Session) {
		s.catalog = c
	}
}

// WithLine sets the metro line.
func WithLine(l *route.Line) Option {
	return func(s *Session) {
		s.line = l
	}
}

// WithLabels sets the label table used to resolve raw class indices.
func WithLabels(t *detection.LabelTable) Option {
	return func(s *Session) {
		s.labels = t
	}
}

// WithVocabulary sets how labels are spoken.
func WithVocabulary(v *perception.Vocabulary) Option {
	return func(s *Session) {
		s.vocab = v
	}
}

// WithNotice sets a startup notice shown in snapshots, such as a catalog
// that failed to load.
func WithNotice(n string) Option {
	return func(s *Session) {
		s.notice = n
	}
}

// WithClock sets the time source for cooldowns and throttles.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// New creates a session speaking through sink.
func New(cfg Config, sink speech.Sink, opts ...Option) (*Session, error) {
	if sink == nil {
		return nil, ErrNoSink
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		cfg:    cfg,
		sink:   sink,
		logger: slog.Default(),
		now:    time.Now,
		owner:  mic.HomeDialogue,
		subs:   make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "guide")
	if s.line == nil {
		s.line = route.DefaultLine()
	}
	if s.vocab == nil {
		s.vocab = perception.DefaultVocabulary()
	}
	if s.mic == nil {
		s.mic = mic.New()
	}
	if s.reader == nil {
		s.reader = signage.ReaderFunc(func(context.Context, image.Image) string { return "" })
	}

	var err error
	s.engine, err = perception.NewEngine(cfg.Calibration, perception.WithLabels(s.labels))
	if err != nil {
		return nil, err
	}
	s.validator, err = signage.NewValidator(s.line,
		signage.WithConfig(cfg.Signage),
		signage.WithClock(s.now),
		signage.WithLogger(s.logger),
	)
	if err != nil {
		return nil, err
	}
	s.arbiter, err = speech.NewArbiter(sink,
		speech.WithConfig(cfg.Speech),
		speech.WithListener(micListener{s}),
		speech.WithScheduler(s.schedule),
		speech.WithClock(s.now),
		speech.WithLogger(s.logger),
	)
	if err != nil {
		return nil, err
	}
	// Listening is continuous only between StartDialogue and StopDialogue.
	s.arbiter.SetContinuous(false)
	s.machine = dialogue.New(
		dialogue.WithCatalog(s.catalog),
		dialogue.WithLine(s.line),
		dialogue.WithObjectNames(s.vocab.Name),
		dialogue.WithLogger(s.logger),
	)

	s.frames = make(chan Frame, cfg.FrameQueue)
	s.lastSeq = make(map[string]uint64)
	s.events = make(chan func(context.Context), cfg.EventQueue)
	s.done = make(chan struct{})
	s.inst = newInstruments()

	// Another flow may take the microphone from any goroutine; the stop runs
	// on the loop.
	revoked := func() {
		go func() {
			_ = s.post(func(context.Context) {
				if s.mic.Owner() != s.owner {
					s.arbiter.StopListening()
				}
			})
		}()
	}
	s.mic.OnRevoke(mic.HomeDialogue, revoked)
	s.mic.OnRevoke(mic.VisionTest, revoked)

	s.publish()
	return s, nil
}

// Run consumes events until ctx is cancelled. It must be called once.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer func() {
		close(s.done)
		s.passes.Wait()
		s.arbiter.CancelRestart()
	}()

	s.logger.Info("session started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session stopped")
			return ctx.Err()
		case fn := <-s.events:
			fn(ctx)
			s.publish()
		case f := <-s.frames:
			s.applyFrame(ctx, f)
			s.publish()
		}
	}
}

// post queues fn for the loop. It blocks while the queue is full and fails
// once the loop has stopped.
func (s *Session) post(fn func(context.Context)) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.events <- fn:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// schedule runs f on the loop after d.
func (s *Session) schedule(d time.Duration, f func()) func() {
	var cancelled atomic.Bool
	t := time.AfterFunc(d, func() {
		_ = s.post(func(context.Context) {
			if !cancelled.Load() {
				f()
			}
		})
	})
	return func() {
		cancelled.Store(true)
		t.Stop()
	}
}

// Sync returns once every event queued before the call has been handled.
func (s *Session) Sync(ctx context.Context) error {
	ack := make(chan struct{})
	if err := s.post(func(context.Context) { close(ack) }); err != nil {
		return err
	}
	select {
	case <-ack:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitFrame queues a frame. It returns ErrFrameDropped when the loop is
// behind and ErrClosed once Run has returned.
func (s *Session) SubmitFrame(f Frame) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.frames <- f:
		return nil
	default:
		s.inst.dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", "queue_full")))
		return ErrFrameDropped
	}
}

// SubmitFinal delivers a final recognition result with its alternatives.
// confidences may be nil.
func (s *Session) SubmitFinal(texts []string, confidences []float64) error {
	texts = append([]string(nil), texts...)
	confidences = append([]float64(nil), confidences...)
	return s.post(func(ctx context.Context) {
		s.handleFinal(ctx, texts, confidences)
	})
}

// SubmitUtterance delivers a single final utterance.
func (s *Session) SubmitUtterance(text string) error {
	return s.SubmitFinal([]string{text}, nil)
}

// SubmitPartial delivers interim recognition text. It only updates the
// displayed text.
func (s *Session) SubmitPartial(text string) error {
	return s.post(func(context.Context) {
		s.recognized = text
	})
}

// RecognitionError reports a recoverable recognizer error.
func (s *Session) RecognitionError(err error) error {
	return s.post(func(context.Context) {
		s.handleRecognitionError(err)
	})
}

// RecognitionUnavailable reports that the platform cannot recognize speech.
func (s *Session) RecognitionUnavailable() error {
	return s.post(s.handleUnavailable)
}

// SpeechDone reports that utterance id finished playing or failed.
func (s *Session) SpeechDone(id string) error {
	return s.post(func(context.Context) {
		s.arbiter.Done(id)
	})
}

// StartDialogue starts continuous listening for the current view.
func (s *Session) StartDialogue() error {
	return s.post(func(context.Context) {
		s.startDialogue()
	})
}

// StopDialogue stops listening and cancels any scheduled restart.
func (s *Session) StopDialogue() error {
	return s.post(func(context.Context) {
		s.stopDialogue()
	})
}

// EnterVision switches to the camera test flow, taking the microphone from
// the home dialogue.
func (s *Session) EnterVision() error {
	return s.post(func(context.Context) {
		s.enterView(Vision)
	})
}

// ExitVision returns to the home dialogue, taking the microphone back.
func (s *Session) ExitVision() error {
	return s.post(func(context.Context) {
		s.enterView(Home)
	})
}

// SetGuidance turns spoken guidance on or off.
func (s *Session) SetGuidance(on bool) error {
	return s.post(func(context.Context) {
		s.machine.SetGuidance(on)
	})
}

// micListener opens the recognizer on behalf of the current view.
type micListener struct {
	s *Session
}

func (l micListener) StartListening() error {
	if l.s.recognizer == nil {
		return ErrNoRecognizer
	}
	if l.s.unavailable {
		return ErrNoRecognizer
	}
	if !l.s.mic.TryAcquire(l.s.owner) {
		return ErrMicBusy
	}
	return l.s.recognizer.Start()
}

func (l micListener) StopListening() error {
	if l.s.recognizer == nil {
		return nil
	}
	return l.s.recognizer.Stop()
}
