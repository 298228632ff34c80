// Package app wires the camera, detector, sign reader, speech output, guidance
// session and web API into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-wayfinder/internal/config"
	"github.com/teslashibe/go-wayfinder/pkg/audio"
	"github.com/teslashibe/go-wayfinder/pkg/camera"
	"github.com/teslashibe/go-wayfinder/pkg/detection"
	"github.com/teslashibe/go-wayfinder/pkg/dialogue"
	"github.com/teslashibe/go-wayfinder/pkg/guide"
	"github.com/teslashibe/go-wayfinder/pkg/ocr"
	"github.com/teslashibe/go-wayfinder/pkg/route"
	"github.com/teslashibe/go-wayfinder/pkg/signage"
	"github.com/teslashibe/go-wayfinder/pkg/tts"
	"github.com/teslashibe/go-wayfinder/pkg/web"
)

// Notices shown in the snapshot when a component degrades at startup.
const (
	NoticeNoCommands = "Voice commands are unavailable; only station phrases are understood."
	NoticeNoLabels   = "Object names are unavailable; raw model labels are used."
)

// App is the main application orchestrator.
// It manages all components and their lifecycle.
type App struct {
	config *config.Config
	logger *slog.Logger

	// Guidance
	line     *route.Line
	labels   *detection.LabelTable
	catalog  *dialogue.Catalog
	notices  []string
	reader   signage.Reader
	session  *guide.Session
	remote   *web.RemoteRecognizer
	provider tts.Provider
	speaker  *tts.Speaker
	player   tts.Player

	// Vision
	capture       *camera.Capture
	cameraManager *camera.Manager
	detector      detection.Detector

	// Web API
	webServer *web.Server
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		a.logger = l
	}
}

// WithPlayer replaces the audio player.
func WithPlayer(p tts.Player) Option {
	return func(a *App) {
		a.player = p
	}
}

// WithProvider replaces the speech synthesis chain.
func WithProvider(p tts.Provider) Option {
	return func(a *App) {
		a.provider = p
	}
}

// WithReader replaces the sign reader.
func WithReader(r signage.Reader) Option {
	return func(a *App) {
		a.reader = r
	}
}

// New creates an application with the given configuration.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		config: cfg,
		logger: slog.Default(),
		remote: &web.RemoteRecognizer{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Init initializes all components.
// Call this after New() and before Run(). Optional components that fail to
// start are logged and left out.
func (a *App) Init() error {
	if err := a.initGuidance(); err != nil {
		return fmt.Errorf("guidance init: %w", err)
	}
	if err := a.initSpeech(); err != nil {
		return fmt.Errorf("speech init: %w", err)
	}
	if err := a.initSession(); err != nil {
		return fmt.Errorf("session init: %w", err)
	}
	if !a.config.Model.DisableCamera {
		if err := a.initVision(); err != nil {
			a.logger.Warn("local vision disabled, frames must arrive over the API", "error", err)
		}
	}
	a.initWeb()
	return nil
}

func (a *App) initGuidance() error {
	var err error
	if len(a.config.Stations) > 0 {
		if a.line, err = route.NewLine(a.config.Stations...); err != nil {
			return err
		}
	} else {
		a.line = route.DefaultLine()
	}

	if a.labels, err = detection.LoadLabels(a.config.Model.Labels); err != nil {
		a.logger.Warn("labels not loaded", "path", a.config.Model.Labels, "error", err)
		a.labels = nil
		a.notices = append(a.notices, NoticeNoLabels)
	}

	a.catalog = dialogue.DefaultCatalog()
	if a.config.Catalog != "" {
		if a.catalog, err = dialogue.LoadCatalog(a.config.Catalog); err != nil {
			a.logger.Warn("command catalog not loaded", "path", a.config.Catalog, "error", err)
			a.catalog = dialogue.NewCatalog()
			a.notices = append(a.notices, NoticeNoCommands)
		}
	}

	if a.reader == nil {
		a.reader = a.newReader()
	}
	return nil
}

func (a *App) newReader() signage.Reader {
	g, err := ocr.NewGemini(
		ocr.WithAPIKey(a.config.OCR.APIKey),
		ocr.WithModel(a.config.OCR.Model),
		ocr.WithTimeout(a.config.OCR.Timeout),
		ocr.WithLogger(a.logger),
	)
	if err != nil {
		a.logger.Warn("sign reading disabled", "error", err)
		return ocr.Func(func(context.Context, image.Image) string { return "" })
	}
	return g
}

func (a *App) initSpeech() error {
	if a.provider == nil {
		var providers []tts.Provider
		if a.config.TTS.OpenAIKey != "" {
			p, err := tts.NewOpenAI(
				tts.WithAPIKey(a.config.TTS.OpenAIKey),
				tts.WithVoice(a.config.TTS.Voice),
				tts.WithModel(a.config.TTS.Model),
				tts.WithSpeed(a.config.TTS.Speed),
				tts.WithTimeout(a.config.TTS.Timeout),
				tts.WithLogger(a.logger),
			)
			if err != nil {
				a.logger.Warn("openai speech disabled", "error", err)
			} else {
				providers = append(providers, p)
			}
		}
		if a.config.TTS.EspeakVoice != "" {
			providers = append(providers, tts.NewEspeak(a.config.TTS.EspeakVoice))
		}
		chain, err := tts.NewChain(providers, tts.WithChainLogger(a.logger))
		if err != nil {
			return err
		}
		a.provider = chain
	}

	if a.player == nil {
		if a.config.TTS.Player == "ffplay" {
			a.player = audio.NewFFPlay(a.logger)
		} else {
			fields := strings.Fields(a.config.TTS.Player)
			if len(fields) == 0 {
				return errors.New("no audio player configured")
			}
			args := fields[1:]
			a.player = audio.NewCommandPlayer(fields[0], func(string) []string { return args }, a.logger)
		}
	}

	a.speaker = tts.NewSpeaker(a.provider, a.player, a.speechDone,
		tts.WithPhraseTimeout(a.config.TTS.Timeout*2),
		tts.WithSpeakerLogger(a.logger))
	return nil
}

// speechDone reports playback completion back to the session loop.
func (a *App) speechDone(id string, err error) {
	if err != nil {
		a.logger.Warn("phrase not played", "id", id, "error", err)
	}
	if a.session == nil {
		return
	}
	if err := a.session.SpeechDone(id); err != nil && !errors.Is(err, guide.ErrClosed) {
		a.logger.Warn("speech done not delivered", "id", id, "error", err)
	}
}

func (a *App) initSession() error {
	opts := []guide.Option{
		guide.WithLine(a.line),
		guide.WithCatalog(a.catalog),
		guide.WithReader(a.reader),
		guide.WithRecognizer(a.remote),
		guide.WithLogger(a.logger),
	}
	if a.labels != nil {
		opts = append(opts, guide.WithLabels(a.labels))
	}
	if len(a.notices) > 0 {
		opts = append(opts, guide.WithNotice(strings.Join(a.notices, " ")))
	}

	s, err := guide.New(a.config.Guide, a.speaker, opts...)
	if err != nil {
		return err
	}
	a.session = s
	return nil
}

func (a *App) initVision() error {
	capture, err := camera.Open(a.config.Camera, a.logger)
	if err != nil {
		return err
	}
	detector, err := detection.NewYOLO(a.config.YOLO(), a.labels, a.logger)
	if err != nil {
		capture.Close()
		return err
	}

	a.capture = capture
	a.detector = detector
	a.cameraManager = camera.NewManager(capture.Config(), capture.Apply)
	return nil
}

func (a *App) initWeb() {
	opts := []web.Option{web.WithLogger(a.logger)}
	if a.cameraManager != nil {
		opts = append(opts, web.WithCamera(a.cameraManager))
	}
	a.webServer = web.NewServer(a.config.Addr(), a.session, opts...)
	a.remote.Bind(a.webServer.Hub())
}

// Session returns the guidance session.
func (a *App) Session() *guide.Session {
	return a.session
}

// Web returns the web server.
func (a *App) Web() *web.Server {
	return a.webServer
}

// Run starts the session, the web API and the local camera pipeline.
// Blocks until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.session.Run(ctx)
	})
	g.Go(func() error {
		return a.webServer.Start(ctx)
	})
	if a.capture != nil && a.detector != nil {
		g.Go(func() error {
			return a.capture.Run(ctx, a.processFrame)
		})
	}

	a.logger.Info("wayfinder running", "addr", a.config.Addr(), "camera", a.capture != nil)
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// frameSourceCamera keeps local capture sequence numbers apart from API frames.
const frameSourceCamera = "camera"

// processFrame runs detection on a captured frame and hands it to the session.
func (a *App) processFrame(f camera.Frame) {
	dets, err := a.detector.Detect(f.JPEG)
	if err != nil {
		a.logger.Debug("detection failed", "seq", f.Seq, "error", err)
		return
	}
	frame := guide.Frame{Source: frameSourceCamera, Seq: f.Seq, Detections: dets, Image: f.Image}
	if err := a.session.SubmitFrame(frame); err != nil {
		a.logger.Debug("frame dropped", "seq", f.Seq, "error", err)
	}
}

// Shutdown releases devices and providers. Call after Run returns.
func (a *App) Shutdown() {
	if a.capture != nil {
		a.capture.Close()
	}
	if a.detector != nil {
		a.detector.Close()
	}
	if a.speaker != nil {
		a.speaker.Wait()
	}
	if a.provider != nil {
		a.provider.Close()
	}
}
