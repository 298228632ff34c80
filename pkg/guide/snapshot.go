package guide

// BestObject is the object guidance currently focuses on.
type BestObject struct {
	Label      string  `json:"label"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Position   string  `json:"position"`
	Distance   string  `json:"distance"`
	Meters     float64 `json:"meters,omitempty"`
}

// Snapshot is the externally observable session state.
type Snapshot struct {
	Phase               string      `json:"phase"`
	Origin              string      `json:"origin"`
	Destination         string      `json:"destination"`
	AwaitingDestination bool        `json:"awaiting_destination"`
	ObjectSought        string      `json:"object_sought"`
	Mode                string      `json:"mode"`
	GuidanceEnabled     bool        `json:"guidance_enabled"`
	LastResponse        string      `json:"last_response"`
	RecognizedText      string      `json:"recognized_text"`
	Listening           bool        `json:"listening"`
	Speaking            bool        `json:"speaking"`
	MicOwner            string      `json:"mic_owner"`
	View                string      `json:"view"`
	SwitchToVision      bool        `json:"switch_to_vision"`
	Best                *BestObject `json:"best,omitempty"`
	FrameSeq            uint64      `json:"frame_seq"`
	FramesApplied       uint64      `json:"frames_applied"`
	Notice              string      `json:"notice,omitempty"`
}

// Snapshot returns the state as of the last handled event. Safe to call
// from any goroutine.
func (s *Session) Snapshot() Snapshot {
	return *s.snapshot.Load()
}

// Subscribe registers fn to receive a snapshot after every handled event.
// fn runs on the session loop and must not block. The returned function
// unsubscribes.
func (s *Session) Subscribe(fn func(Snapshot)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Session) publish() {
	st := s.machine.State()
	snap := &Snapshot{
		Phase:               st.Phase().String(),
		Origin:              st.Origin,
		Destination:         st.Destination,
		AwaitingDestination: st.AwaitingDestination,
		ObjectSought:        st.ObjectSought,
		Mode:                st.Mode,
		GuidanceEnabled:     st.GuidanceEnabled,
		LastResponse:        st.LastResponse,
		RecognizedText:      s.recognized,
		Listening:           s.arbiter.Listening(),
		Speaking:            s.arbiter.Speaking(),
		MicOwner:            s.mic.Owner().String(),
		View:                s.view.String(),
		SwitchToVision:      s.switchToVision,
		FrameSeq:            s.frameSeq,
		FramesApplied:       s.framesApplied,
		Notice:              s.notice,
	}
	if s.hasBest {
		snap.Best = &BestObject{
			Label:      s.best.Label,
			Name:       s.vocab.Name(s.best.Label),
			Confidence: s.best.Confidence,
			Position:   s.best.Position.String(),
			Distance:   s.best.Distance.String(),
			Meters:     s.best.Meters,
		}
	}
	s.snapshot.Store(snap)

	s.subMu.Lock()
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(*snap)
	}
}
