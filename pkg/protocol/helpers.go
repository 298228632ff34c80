package protocol

import (
	"github.com/teslashibe/go-wayfinder/pkg/detection"
	"github.com/teslashibe/go-wayfinder/pkg/guide"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewSnapshotMessage creates a snapshot message
func NewSnapshotMessage(s guide.Snapshot) (*Message, error) {
	return NewMessage(TypeSnapshot, s)
}

// NewRecognizerMessage creates a recognizer control message
func NewRecognizerMessage(listening bool) (*Message, error) {
	return NewMessage(TypeRecognizer, RecognizerData{Listening: listening})
}

// NewDetectionsMessage creates a detections message
func NewDetectionsMessage(seq uint64, dets []detection.Detection) (*Message, error) {
	data := DetectionsData{Seq: seq, Detections: make([]DetectionData, 0, len(dets))}
	for _, d := range dets {
		data.Detections = append(data.Detections, DetectionData{
			Label:      d.Label,
			Confidence: d.Confidence,
			Box:        BoxData{Left: d.Box.Left, Top: d.Box.Top, Right: d.Box.Right, Bottom: d.Box.Bottom},
		})
	}
	return NewMessage(TypeDetections, data)
}

// NewUtteranceMessage creates a final utterance message
func NewUtteranceMessage(alternatives []string, confidences []float64) (*Message, error) {
	return NewMessage(TypeUtterance, UtteranceData{
		Alternatives: alternatives,
		Confidences:  confidences,
		Final:        true,
	})
}

// NewModeMessage creates a mode message
func NewModeMessage(mode string) (*Message, error) {
	return NewMessage(TypeMode, ModeData{Mode: mode})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetDetectionsData extracts detections from a message
func (m *Message) GetDetectionsData() (*DetectionsData, error) {
	var data DetectionsData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// SourceRemote is the frame source used when a client names none.
const SourceRemote = "remote"

// Frame converts the detections into a session frame.
func (d *DetectionsData) Frame() guide.Frame {
	source := d.Source
	if source == "" {
		source = SourceRemote
	}
	f := guide.Frame{
		Source:     source,
		Seq:        d.Seq,
		Width:      d.Width,
		Height:     d.Height,
		Detections: make([]detection.Detection, 0, len(d.Detections)),
	}
	for _, det := range d.Detections {
		f.Detections = append(f.Detections, detection.Detection{
			Label:      det.Label,
			Confidence: det.Confidence,
			Box:        detection.Box{Left: det.Box.Left, Top: det.Box.Top, Right: det.Box.Right, Bottom: det.Box.Bottom},
		})
	}
	return f
}

// GetUtteranceData extracts an utterance from a message
func (m *Message) GetUtteranceData() (*UtteranceData, error) {
	var data UtteranceData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSpeechDoneData extracts a playback report from a message
func (m *Message) GetSpeechDoneData() (*SpeechDoneData, error) {
	var data SpeechDoneData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetModeData extracts and validates a mode switch from a message
func (m *Message) GetModeData() (*ModeData, error) {
	var data ModeData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetRecognitionData extracts a recognizer report from a message
func (m *Message) GetRecognitionData() (*RecognitionData, error) {
	var data RecognitionData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetRecognizerData extracts a recognizer control from a message
func (m *Message) GetRecognizerData() (*RecognizerData, error) {
	var data RecognizerData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
