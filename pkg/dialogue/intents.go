package dialogue

import "fmt"

// Catalog intents.
const (
	IntentSearchObject        = "search_object"
	IntentLocate              = "locate"
	IntentActivateGuidance    = "activate_guidance"
	IntentGoToStation         = "go_to_station"
	IntentConfirm             = "confirm"
	IntentCancel              = "cancel"
	IntentModify              = "modify"
	IntentRepeat              = "repeat"
	IntentDescribeEnvironment = "describe_environment"
	IntentOpenCamera          = "open_camera"
	IntentGuidanceOn          = "guidance_on"
	IntentGuidanceOff         = "guidance_off"
	IntentClearTarget         = "clear_target"
	IntentStatus              = "status"
)

// Fixed responses.
const (
	RespNotUnderstood = "I didn't understand. Where are you headed?"
	RespAskStation    = "Sorry, which station? Please repeat."
	RespUnknownIntent = "Intent not recognized."
)

// UnknownStationResponse asks again when a destination is not on the line.
func UnknownStationResponse(name string) string {
	return name + " is not a station on this line. Where are you headed?"
}

func requiresStation(intent string) bool {
	return intent == IntentGoToStation || intent == IntentLocate
}

// execute applies the side effects of a matched entry whose slots are filled.
func (m *Machine) execute(s *State, e Entry) Result {
	res := Result{Intent: e.Intent, Understood: true}

	switch e.Intent {
	case IntentSearchObject:
		if e.Object == "" {
			res.Response = "Searching for the object. Please wait."
			break
		}
		s.ObjectSought = e.Object
		res.Response = "Searching for " + m.objectName(e.Object) + ". Please wait."

	case IntentLocate:
		return m.setOrigin(s, e.Station, IntentLocate)

	case IntentActivateGuidance:
		mode := e.Mode
		if mode == "" {
			mode = "default"
		}
		s.Mode = mode
		s.GuidanceEnabled = true
		res.Response = "Starting guidance in " + mode + " mode."

	case IntentGoToStation:
		if m.line != nil {
			if _, ok := m.line.Lookup(e.Station); !ok {
				return Result{Response: UnknownStationResponse(e.Station), Understood: true}
			}
		}
		s.Destination = e.Station
		s.AwaitingDestination = false
		if s.LastConfirmedDestination == e.Station {
			res.Response = "Resuming guidance to " + e.Station + "."
		} else {
			s.LastConfirmedDestination = e.Station
			res.Response = "Starting guidance to " + e.Station + "."
			res.ReleaseMic = true
		}

	case IntentConfirm:
		res.Response = "Command confirmed."

	case IntentCancel:
		s.ObjectSought = ""
		res.Response = "Operation cancelled."

	case IntentModify:
		res.Response = "What would you like to change?"

	case IntentRepeat:
		if s.LastResponse == "" {
			res.Response = "There is nothing to repeat."
		} else {
			res.Response = s.LastResponse
		}

	case IntentDescribeEnvironment:
		res.Response = "Describing your surroundings."
		res.Describe = true

	case IntentOpenCamera:
		res.Response = "Opening the camera."
		res.SwitchToVision = true

	case IntentGuidanceOn:
		s.GuidanceEnabled = true
		res.Response = "Voice guidance on."

	case IntentGuidanceOff:
		s.GuidanceEnabled = false
		res.Response = "Voice guidance off."

	case IntentClearTarget:
		s.ObjectSought = ""
		res.Response = "Target cleared."

	case IntentStatus:
		res.Response = statusLine(*s, m.objectName)

	default:
		m.logger.Warn("unknown intent in catalog", "intent", e.Intent)
		res.Response = RespUnknownIntent
		res.Understood = false
	}
	return res
}

func statusLine(s State, name func(string) string) string {
	guidance := "off"
	if s.GuidanceEnabled {
		guidance = "on"
	}
	target := "none"
	if s.ObjectSought != "" {
		target = name(s.ObjectSought)
	}
	line := fmt.Sprintf("Guidance %s. Target: %s.", guidance, target)
	switch {
	case s.Origin != "" && s.Destination != "":
		line += fmt.Sprintf(" Route: %s to %s.", s.Origin, s.Destination)
	case s.Origin != "":
		line += fmt.Sprintf(" You are at %s.", s.Origin)
	}
	return line
}
