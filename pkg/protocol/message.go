// Package protocol defines the JSON messages exchanged with dashboards and
// remote front ends over HTTP and WebSocket.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Server → client
	TypeSnapshot   MessageType = "snapshot"   // Session state after an event
	TypeRecognizer MessageType = "recognizer" // Start or stop the client's speech recognizer

	// Client → server
	TypeDetections  MessageType = "detections"  // One frame of detector output
	TypeUtterance   MessageType = "utterance"   // Speech recognition result
	TypeSpeechDone  MessageType = "speech_done" // Playback of an utterance finished
	TypeMode        MessageType = "mode"        // View / listening / guidance switch
	TypeRecognition MessageType = "recognition" // Recognizer failure report

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// ErrUnknownMode is returned for mode names outside the Mode constants.
var ErrUnknownMode = errors.New("protocol: unknown mode")

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, errors.New("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Server → Client Message Types
// =============================================================================

// RecognizerData asks a front end to start or stop speech recognition.
type RecognizerData struct {
	Listening bool `json:"listening"`
}

// =============================================================================
// Client → Server Message Types
// =============================================================================

// BoxData is a bounding box in detector coordinates.
type BoxData struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// DetectionData is one labeled box.
type DetectionData struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        BoxData `json:"box"`
}

// DetectionsData is the detector output for one frame. Width and Height give
// the coordinate space of the boxes, zero meaning the 640x640 model space.
// Seq orders frames within Source; a missing seq is never dropped as stale.
type DetectionsData struct {
	Source     string          `json:"source,omitempty"`
	Seq        uint64          `json:"seq,omitempty"`
	Width      float64         `json:"width,omitempty"`
	Height     float64         `json:"height,omitempty"`
	Detections []DetectionData `json:"detections"`
}

// UtteranceData is a recognition result. Alternatives are ordered as the
// recognizer returned them; Confidences may be empty.
type UtteranceData struct {
	Alternatives []string  `json:"alternatives"`
	Confidences  []float64 `json:"confidences,omitempty"`
	Final        bool      `json:"final"`
}

// SpeechDoneData reports the end of playback.
type SpeechDoneData struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

// Mode names accepted in ModeData.
const (
	ModeHome        = "home"         // Return to the home dialogue
	ModeVision      = "vision"       // Open the camera flow
	ModeListen      = "listen"       // Start continuous listening
	ModeStop        = "stop"         // Stop listening
	ModeGuidanceOn  = "guidance_on"  // Enable spoken guidance
	ModeGuidanceOff = "guidance_off" // Silence spoken guidance
)

// ModeData switches views, listening or guidance.
type ModeData struct {
	Mode string `json:"mode"`
}

// Validate checks the mode name.
func (d ModeData) Validate() error {
	switch d.Mode {
	case ModeHome, ModeVision, ModeListen, ModeStop, ModeGuidanceOn, ModeGuidanceOff:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownMode, d.Mode)
}

// RecognitionData reports a recognizer failure. Unavailable means the
// device cannot recognize speech at all.
type RecognitionData struct {
	Error       string `json:"error,omitempty"`
	Unavailable bool   `json:"unavailable,omitempty"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
