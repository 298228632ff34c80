package web

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-wayfinder/pkg/camera"
	"github.com/teslashibe/go-wayfinder/pkg/guide"
	"github.com/teslashibe/go-wayfinder/pkg/hub"
	"github.com/teslashibe/go-wayfinder/pkg/protocol"
)

var errBadRequest = errors.New("web: bad request")

// handleStatus returns the current session snapshot
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.session.Snapshot())
}

// handleUtterance accepts a recognition result
func (s *Server) handleUtterance(c *fiber.Ctx) error {
	var req protocol.UtteranceData
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	return s.reply(c, s.submitUtterance(req))
}

// handleFrames accepts one frame of detector output
func (s *Server) handleFrames(c *fiber.Ctx) error {
	var req protocol.DetectionsData
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	err := s.session.SubmitFrame(req.Frame())
	if err != nil && !errors.Is(err, guide.ErrFrameDropped) {
		return s.reply(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"seq":      req.Seq,
		"accepted": err == nil,
	})
}

// handleSpeechDone accepts a playback completion report
func (s *Server) handleSpeechDone(c *fiber.Ctx) error {
	var req protocol.SpeechDoneData
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	return s.reply(c, s.speechDone(req))
}

// handleRecognition accepts a recognizer failure report
func (s *Server) handleRecognition(c *fiber.Ctx) error {
	var req protocol.RecognitionData
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	return s.reply(c, s.recognition(req))
}

// handleMode switches view, listening or guidance
func (s *Server) handleMode(c *fiber.Ctx) error {
	return s.reply(c, s.applyMode(c.Params("mode")))
}

func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	return c.JSON(s.camera.Map())
}

// handleUpdateCamera applies a partial camera config or a preset
func (s *Server) handleUpdateCamera(c *fiber.Ctx) error {
	var params map[string]any
	if err := c.BodyParser(&params); err != nil {
		return badRequest(c, err)
	}
	if err := s.camera.Update(params); err != nil {
		return badRequest(c, err)
	}
	return c.JSON(s.camera.Map())
}

func (s *Server) handleCameraCapabilities(c *fiber.Ctx) error {
	return c.JSON(camera.Capabilities())
}

// handleStatusWS streams snapshots and accepts protocol messages
func (s *Server) handleStatusWS(conn *websocket.Conn) {
	// Send current status before registering; the write pump owns the
	// connection afterwards.
	if msg, err := protocol.NewSnapshotMessage(s.session.Snapshot()); err == nil {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}

	client := hub.NewClient(s.statusHub, conn)
	if client == nil {
		return
	}
	client.Run()
}

// handleInbound runs on a websocket client's read goroutine.
func (s *Server) handleInbound(c *hub.Client, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.logger.Warn("invalid websocket message", "error", err)
		return
	}

	if msg.Type == protocol.TypePing {
		ping, err := msg.GetPingData()
		if err != nil {
			return
		}
		pong, err := protocol.NewPongMessage(ping.ID, ping.Timestamp, time.Now().UnixMilli())
		if err == nil {
			_ = s.statusHub.SendJSON(c, pong)
		}
		return
	}

	if err := s.dispatch(msg); err != nil {
		s.logger.Warn("websocket message rejected", "type", msg.Type, "error", err)
	}
}

// dispatch applies a client message to the session.
func (s *Server) dispatch(msg *protocol.Message) error {
	switch msg.Type {
	case protocol.TypeDetections:
		data, err := msg.GetDetectionsData()
		if err != nil {
			return fmt.Errorf("%w: %v", errBadRequest, err)
		}
		if err := s.session.SubmitFrame(data.Frame()); err != nil && !errors.Is(err, guide.ErrFrameDropped) {
			return err
		}
		return nil

	case protocol.TypeUtterance:
		data, err := msg.GetUtteranceData()
		if err != nil {
			return fmt.Errorf("%w: %v", errBadRequest, err)
		}
		return s.submitUtterance(*data)

	case protocol.TypeSpeechDone:
		data, err := msg.GetSpeechDoneData()
		if err != nil {
			return fmt.Errorf("%w: %v", errBadRequest, err)
		}
		return s.speechDone(*data)

	case protocol.TypeRecognition:
		data, err := msg.GetRecognitionData()
		if err != nil {
			return fmt.Errorf("%w: %v", errBadRequest, err)
		}
		return s.recognition(*data)

	case protocol.TypeMode:
		var data protocol.ModeData
		if err := msg.ParseData(&data); err != nil {
			return fmt.Errorf("%w: %v", errBadRequest, err)
		}
		return s.applyMode(data.Mode)
	}
	return fmt.Errorf("%w: unsupported message type %q", errBadRequest, msg.Type)
}

func (s *Server) submitUtterance(d protocol.UtteranceData) error {
	if len(d.Alternatives) == 0 {
		return fmt.Errorf("%w: alternatives required", errBadRequest)
	}
	if !d.Final {
		return s.session.SubmitPartial(d.Alternatives[0])
	}
	return s.session.SubmitFinal(d.Alternatives, d.Confidences)
}

func (s *Server) speechDone(d protocol.SpeechDoneData) error {
	if d.ID == "" {
		return fmt.Errorf("%w: id required", errBadRequest)
	}
	if d.Error != "" {
		s.logger.Warn("remote playback failed", "id", d.ID, "error", d.Error)
	}
	return s.session.SpeechDone(d.ID)
}

func (s *Server) recognition(d protocol.RecognitionData) error {
	if d.Unavailable {
		return s.session.RecognitionUnavailable()
	}
	reason := d.Error
	if reason == "" {
		reason = "recognition failed"
	}
	return s.session.RecognitionError(errors.New(reason))
}

func (s *Server) applyMode(mode string) error {
	if err := (protocol.ModeData{Mode: mode}).Validate(); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	switch mode {
	case protocol.ModeHome:
		return s.session.ExitVision()
	case protocol.ModeVision:
		return s.session.EnterVision()
	case protocol.ModeListen:
		return s.session.StartDialogue()
	case protocol.ModeStop:
		return s.session.StopDialogue()
	case protocol.ModeGuidanceOn:
		return s.session.SetGuidance(true)
	default:
		return s.session.SetGuidance(false)
	}
}

// reply maps a session error to a status code.
func (s *Server) reply(c *fiber.Ctx, err error) error {
	switch {
	case err == nil:
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
	case errors.Is(err, errBadRequest):
		return badRequest(c, err)
	case errors.Is(err, guide.ErrClosed):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
}
