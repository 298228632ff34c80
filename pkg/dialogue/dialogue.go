// Package dialogue runs the voice conversation that captures where the rider
// is and where they are going, and executes catalog voice commands.
//
// A Machine is not safe for concurrent use; it is owned by the session loop.
package dialogue

import (
	"log/slog"
	"strings"

	"github.com/teslashibe/go-wayfinder/pkg/route"
)

// Phase is the conversation phase.
type Phase int

const (
	// Idle means origin and destination are not both known.
	Idle Phase = iota
	// AwaitingDestination means the origin is known and the user was asked where to go.
	AwaitingDestination
	// Guiding means origin and destination are both known.
	Guiding
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case AwaitingDestination:
		return "awaiting_destination"
	case Guiding:
		return "guiding"
	default:
		return "unknown"
	}
}

// State is the dialogue state. Empty strings mean "not set".
type State struct {
	Origin                   string `json:"origin"`
	Destination              string `json:"destination"`
	AwaitingDestination      bool   `json:"awaiting_destination"`
	ObjectSought             string `json:"object_sought"`
	Mode                     string `json:"mode"`
	LastConfirmedDestination string `json:"last_confirmed_destination"`
	GuidanceEnabled          bool   `json:"guidance_enabled"`
	LastResponse             string `json:"last_response"`
}

// Phase derives the conversation phase from the state.
func (s State) Phase() Phase {
	switch {
	case s.AwaitingDestination:
		return AwaitingDestination
	case s.Origin != "" && s.Destination != "":
		return Guiding
	default:
		return Idle
	}
}

// Result is the outcome of handling one utterance.
type Result struct {
	Response   string
	Intent     string // executed intent, empty if none
	Understood bool

	// ReleaseMic asks the owner to stop listening once Response is spoken.
	ReleaseMic bool
	// SwitchToVision asks the owner to open the camera flow once Response is spoken.
	SwitchToVision bool
	// Describe asks the owner to add a description of the current best object.
	Describe bool
}

// Machine is the dialogue state machine.
type Machine struct {
	catalog    *Catalog
	line       *route.Line
	objectName func(string) string
	state      State
	logger     *slog.Logger
}

// Option configures a Machine.
type Option func(*Machine)

// WithCatalog sets the command catalog. A nil catalog matches nothing.
func WithCatalog(c *Catalog) Option {
	return func(m *Machine) {
		m.catalog = c
	}
}

// WithLine sets the line used to recognize station names in free text.
func WithLine(l *route.Line) Option {
	return func(m *Machine) {
		m.line = l
	}
}

// WithObjectNames sets how object labels are spoken in responses.
func WithObjectNames(fn func(label string) string) Option {
	return func(m *Machine) {
		m.objectName = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = l
	}
}

// New creates a machine in the Idle phase with voice guidance enabled.
func New(opts ...Option) *Machine {
	m := &Machine{
		logger: slog.Default(),
		state:  State{GuidanceEnabled: true},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.objectName == nil {
		m.objectName = func(s string) string { return strings.ReplaceAll(s, "_", " ") }
	}
	m.logger = m.logger.With("component", "dialogue")
	return m
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	return m.state
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	return m.state.Phase()
}

// SetGuidance turns voice guidance on or off outside of a voice command.
func (m *Machine) SetGuidance(on bool) {
	m.state.GuidanceEnabled = on
}

// Reset clears the route and target, keeping guidance and the last confirmed destination.
func (m *Machine) Reset() {
	m.state = State{
		GuidanceEnabled:          m.state.GuidanceEnabled,
		LastConfirmedDestination: m.state.LastConfirmedDestination,
	}
}

// Handle processes one final utterance. The state is updated atomically: the
// whole transition is computed on a copy and committed at the end.
func (m *Machine) Handle(utterance string) Result {
	next := m.state
	res := m.handle(&next, utterance)
	next.LastResponse = res.Response
	m.state = next

	m.logger.Debug("utterance handled",
		"utterance", utterance,
		"intent", res.Intent,
		"understood", res.Understood,
		"phase", next.Phase().String())
	return res
}

func (m *Machine) handle(s *State, utterance string) Result {
	if strings.TrimSpace(utterance) == "" {
		return notUnderstood()
	}

	// "I am at X" sets the origin from any phase.
	if origin, _, ok := Extract(StationPatterns, utterance, SlotOrigin); ok {
		return m.setOrigin(s, m.canonicalStation(origin), IntentLocate)
	}

	if e, ok := m.catalog.Match(utterance); ok {
		if requiresStation(e.Intent) {
			slot := e.Station
			if slot == "" && e.Intent == IntentLocate {
				slot = e.Object
			}
			if slot == "" {
				slot = m.extractStation(utterance)
			}
			if slot == "" {
				return Result{Response: RespAskStation, Understood: true}
			}
			e.Station = m.canonicalStation(slot)
		}
		if e.Intent == IntentSearchObject && e.Object == "" {
			if obj, _, ok := Extract(ObjectPatterns, utterance); ok {
				e.Object = obj
			}
		}
		return m.execute(s, e)
	}

	if dest, _, ok := Extract(StationPatterns, utterance, SlotDestination); ok {
		return m.execute(s, Entry{Intent: IntentGoToStation, Station: m.canonicalStation(dest)})
	}

	// While waiting for a destination a bare station name is enough.
	if s.AwaitingDestination && m.line != nil {
		if st, ok := m.line.Find(utterance); ok {
			return m.execute(s, Entry{Intent: IntentGoToStation, Station: st.Name})
		}
	}

	return notUnderstood()
}

func (m *Machine) setOrigin(s *State, origin, intent string) Result {
	s.Origin = origin
	s.Destination = ""
	s.AwaitingDestination = true
	return Result{
		Response:   "Understood, you are at " + origin + ". Where are you headed?",
		Intent:     intent,
		Understood: true,
	}
}

// extractStation tries the pattern table, then a known station name anywhere
// in the utterance.
func (m *Machine) extractStation(utterance string) string {
	if v, _, ok := Extract(StationPatterns, utterance); ok {
		return v
	}
	if m.line != nil {
		if st, ok := m.line.Find(utterance); ok {
			return st.Name
		}
	}
	return ""
}

// canonicalStation replaces an extracted value with the line's spelling of the
// station it names, when there is one.
func (m *Machine) canonicalStation(v string) string {
	if m.line == nil {
		return v
	}
	if st, ok := m.line.Lookup(v); ok {
		return st.Name
	}
	if st, ok := m.line.Find(v); ok {
		return st.Name
	}
	return v
}

// PickAlternative returns the recognition hypothesis with the highest confidence.
// Without confidences the first hypothesis is used.
func PickAlternative(texts []string, confidences []float64) string {
	if len(texts) == 0 {
		return ""
	}
	best := 0
	if len(confidences) > 0 {
		top := -1.0
		for i, c := range confidences {
			if i < len(texts) && c > top {
				top, best = c, i
			}
		}
	}
	return texts[best]
}

func notUnderstood() Result {
	return Result{Response: RespNotUnderstood}
}
