// Package web exposes the guidance session over HTTP and WebSocket: snapshot
// observation for dashboards and event ingestion for remote front ends that
// run detection or speech recognition themselves.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-wayfinder/pkg/camera"
	"github.com/teslashibe/go-wayfinder/pkg/guide"
	"github.com/teslashibe/go-wayfinder/pkg/hub"
	"github.com/teslashibe/go-wayfinder/pkg/protocol"
)

// Session is the part of guide.Session the server drives.
type Session interface {
	Snapshot() guide.Snapshot
	Subscribe(fn func(guide.Snapshot)) func()
	SubmitFrame(f guide.Frame) error
	SubmitFinal(texts []string, confidences []float64) error
	SubmitPartial(text string) error
	SpeechDone(id string) error
	RecognitionError(err error) error
	RecognitionUnavailable() error
	StartDialogue() error
	StopDialogue() error
	EnterVision() error
	ExitVision() error
	SetGuidance(on bool) error
}

// Server is the HTTP and WebSocket front of a session.
type Server struct {
	app       *fiber.App
	addr      string
	session   Session
	camera    *camera.Manager
	statusHub *hub.Hub
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithCamera exposes the capture settings under /api/camera.
func WithCamera(m *camera.Manager) Option {
	return func(s *Server) {
		s.camera = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a server for session listening on addr (":8080").
func NewServer(addr string, session Session, opts ...Option) *Server {
	s := &Server{
		addr:    addr,
		session: session,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web")
	s.statusHub = hub.New("status", hub.WithLogger(s.logger), hub.WithHandler(s.handleInbound))

	app := fiber.New(fiber.Config{
		AppName:               "Wayfinder",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/utterance", s.handleUtterance)
	api.Post("/frames", s.handleFrames)
	api.Post("/speech/done", s.handleSpeechDone)
	api.Post("/recognition", s.handleRecognition)
	api.Post("/mode/:mode", s.handleMode)
	if s.camera != nil {
		api.Get("/camera", s.handleGetCamera)
		api.Put("/camera", s.handleUpdateCamera)
		api.Get("/camera/capabilities", s.handleCameraCapabilities)
	}

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the hub snapshots are broadcast on.
func (s *Server) Hub() *hub.Hub {
	return s.statusHub
}

// Start listens on the configured address until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled. Every session snapshot is
// broadcast to /ws/status clients while serving.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.statusHub.Run(ctx)
	unsubscribe := s.session.Subscribe(s.broadcastSnapshot)
	defer unsubscribe()

	go func() {
		<-ctx.Done()
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("shutdown failed", "error", err)
		}
	}()

	s.logger.Info("web server listening", "addr", ln.Addr().String())
	if err := s.app.Listener(ln); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// broadcastSnapshot runs on the session loop and must not block.
func (s *Server) broadcastSnapshot(snap guide.Snapshot) {
	msg, err := protocol.NewSnapshotMessage(snap)
	if err != nil {
		s.logger.Warn("snapshot encode failed", "error", err)
		return
	}
	if err := s.statusHub.BroadcastState(string(protocol.TypeSnapshot), msg); err != nil {
		s.logger.Warn("snapshot broadcast failed", "error", err)
	}
}
