package web

import (
	"errors"
	"sync/atomic"

	"github.com/teslashibe/go-wayfinder/pkg/hub"
	"github.com/teslashibe/go-wayfinder/pkg/protocol"
)

// ErrNoFrontEnd is returned when no websocket client could run the recognizer.
var ErrNoFrontEnd = errors.New("web: no front end connected")

// RemoteRecognizer drives the speech recognizer of connected front ends.
// Results come back as utterance and recognition messages. It is bound to
// a hub after construction because the session needs the recognizer before
// the server exists.
type RemoteRecognizer struct {
	hub atomic.Pointer[hub.Hub]
}

// Bind attaches the hub control messages are broadcast on.
func (r *RemoteRecognizer) Bind(h *hub.Hub) {
	r.hub.Store(h)
}

// Start asks front ends to begin listening.
func (r *RemoteRecognizer) Start() error {
	return r.send(true)
}

// Stop asks front ends to stop listening.
func (r *RemoteRecognizer) Stop() error {
	return r.send(false)
}

func (r *RemoteRecognizer) send(listening bool) error {
	h := r.hub.Load()
	if h == nil || !h.IsRunning() || h.ClientCount() == 0 {
		return ErrNoFrontEnd
	}
	msg, err := protocol.NewRecognizerMessage(listening)
	if err != nil {
		return err
	}
	return h.BroadcastState(string(protocol.TypeRecognizer), msg)
}
